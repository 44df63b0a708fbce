package miniscope

import (
	"fmt"
	"math"

	"tinygo.org/x/drivers"

	"headstage-go/errcode"
)

// LED drive path: a digital on/off byte through the sensor gateway MCU plus
// an analog attenuation byte on the digital potentiometer's wiper.
const (
	ledEnableReg uint8 = 0x04 // gateway MCU register gating the LED driver
	ledOnByte    uint8 = 0x01
	ledOffByte   uint8 = 0x00

	potWiperReg uint8 = 0x00
)

// LEDCode converts a brightness percentage into the drive pair: the enable
// byte and the pot attenuation byte (0 attenuation = full brightness).
// Brightness 0 always forces fully off; any nonzero value enables the
// driver. Inputs outside [0, 100] are rejected.
func LEDCode(percent float64) (enable uint8, attenuation uint8, err error) {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return 0, 0, errcode.New(errcode.OutOfRange, "miniscope.LEDCode",
			fmt.Sprintf("brightness %.1f%% outside [0, 100]", percent))
	}
	enable = ledOnByte
	if percent == 0 {
		enable = ledOffByte
	}
	attenuation = uint8(math.Round(255 * (100 - percent) / 100))
	return enable, attenuation, nil
}

// LED controls the excitation LED through the passthrough bus.
type LED struct {
	bus drivers.I2C
}

func NewLED(bus drivers.I2C) *LED {
	return &LED{bus: bus}
}

// SetBrightness applies a brightness percentage as two independent writes:
// the enable byte first, then the attenuation byte.
func (l *LED) SetBrightness(percent float64) error {
	enable, attenuation, err := LEDCode(percent)
	if err != nil {
		return err
	}
	if err := l.bus.Tx(uint16(SubSensor), []byte{ledEnableReg, enable}, nil); err != nil {
		return err
	}
	return l.bus.Tx(uint16(SubPot), []byte{potWiperReg, attenuation}, nil)
}

// Off forces the LED fully off regardless of prior state.
func (l *LED) Off() error {
	return l.SetBrightness(0)
}
