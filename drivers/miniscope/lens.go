package miniscope

import (
	"fmt"
	"math"

	"tinygo.org/x/drivers"

	"headstage-go/errcode"
)

// Liquid-lens driver. Focus voltage is quantized onto the driver's step
// grid; each update is a data byte followed by a fixed strobe byte that
// latches the new output.
const (
	LensMinVoltage = 24.4
	LensMaxVoltage = 69.7
	lensStepV      = 0.0445

	lensDataReg  uint8 = 0x08
	lensLatchReg uint8 = 0x09
	lensCtrlReg  uint8 = 0x03

	lensStrobeByte uint8 = 0x02
	lensOffByte    uint8 = 0x00
)

// LensCode converts a focus voltage to its register byte:
//
//	code = floor((v - 24.4) / 0.0445) >> 2
//
// Inputs outside [24.4, 69.7] V are rejected.
func LensCode(voltage float64) (uint8, error) {
	if math.IsNaN(voltage) || voltage < LensMinVoltage || voltage > LensMaxVoltage {
		return 0, errcode.New(errcode.OutOfRange, "miniscope.LensCode",
			fmt.Sprintf("lens voltage %.2f V outside [%.1f, %.1f]", voltage, LensMinVoltage, LensMaxVoltage))
	}
	steps := uint32(math.Floor((voltage - LensMinVoltage) / lensStepV))
	return uint8(steps >> 2), nil
}

// LensVoltage is the inverse mapping: the voltage at the bottom of the
// code's quantization bin (one bin spans four driver steps, 0.178 V).
func LensVoltage(code uint8) float64 {
	return LensMinVoltage + float64(uint32(code)<<2)*lensStepV
}

// Lens controls the liquid-lens driver through the passthrough bus.
type Lens struct {
	bus drivers.I2C
}

func NewLens(bus drivers.I2C) *Lens {
	return &Lens{bus: bus}
}

// SetVoltage programs a focus voltage: data byte, then the fixed strobe.
func (l *Lens) SetVoltage(voltage float64) error {
	code, err := LensCode(voltage)
	if err != nil {
		return err
	}
	if err := l.bus.Tx(uint16(SubLens), []byte{lensDataReg, code}, nil); err != nil {
		return err
	}
	return l.bus.Tx(uint16(SubLens), []byte{lensLatchReg, lensStrobeByte}, nil)
}

// Off disables the lens driver output.
func (l *Lens) Off() error {
	return l.bus.Tx(uint16(SubLens), []byte{lensCtrlReg, lensOffByte}, nil)
}
