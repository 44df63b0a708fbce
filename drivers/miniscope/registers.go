// Package miniscope drives the headstage imaging module: a deserializer with
// sub-device passthrough, the image sensor behind a gateway MCU, an LED
// digital potentiometer and a liquid-lens driver.
//
// The register catalogues below are a fixed bit-exact contract with the
// hardware; indices and values must be reproduced verbatim.
package miniscope

import "headstage-go/types"

// DesRegister is a named control register on the deserializer.
type DesRegister uint32

const (
	DesTriggerOff DesRegister = 0x1D0 // frame trigger offset
	DesReadSz     DesRegister = 0x1D1 // frame read size
	DesTrigger    DesRegister = 0x1D2 // frame trigger edge select
	DesSyncBits   DesRegister = 0x1D3 // sync word polarity
	DesDataGate   DesRegister = 0x1D4 // data gate polarity
	DesMark       DesRegister = 0x1D5 // frame-start marking mode

	// Passthrough slave slots: adjacent ID/alias register pairs.
	DesSlaveID1    DesRegister = 0x1E0
	DesSlaveAlias1 DesRegister = 0x1E1
	DesSlaveID2    DesRegister = 0x1E2
	DesSlaveAlias2 DesRegister = 0x1E3
	DesSlaveID3    DesRegister = 0x1E4
	DesSlaveAlias3 DesRegister = 0x1E5
)

func (r DesRegister) String() string {
	switch r {
	case DesTriggerOff:
		return "TRIGGEROFF"
	case DesReadSz:
		return "READSZ"
	case DesTrigger:
		return "TRIGGER"
	case DesSyncBits:
		return "SYNCBITS"
	case DesDataGate:
		return "DATAGATE"
	case DesMark:
		return "MARK"
	case DesSlaveID1:
		return "SLAVEID1"
	case DesSlaveAlias1:
		return "SLAVEALIAS1"
	case DesSlaveID2:
		return "SLAVEID2"
	case DesSlaveAlias2:
		return "SLAVEALIAS2"
	case DesSlaveID3:
		return "SLAVEID3"
	case DesSlaveAlias3:
		return "SLAVEALIAS3"
	}
	return "UNKNOWN"
}

// Deserializer configuration values for the miniscope video stream.
const (
	desTriggerOffValue = 0x00000000 // trigger aligned with frame start
	desReadSzValue     = 0x00000260 // 608-pixel rows
	desTriggerValue    = 0x00000001 // hsync rising edge
	desSyncBitsValue   = 0x00000000
	desDataGateValue   = 0x00000005 // gate on vsync, active high
	desMarkValue       = 0x00000006 // mark frame start on vsync rising
)

// 7-bit bus addresses of the sub-devices behind the passthrough.
const (
	SubSensor uint8 = 0x10 // sensor gateway MCU
	SubPot    uint8 = 0x50 // LED digital potentiometer
	SubLens   uint8 = 0x77 // liquid-lens driver
)

// NumSubSlots is the number of passthrough slave slots the deserializer
// exposes.
const NumSubSlots = 3

// Sensor registers (numeric indices 0–204, written through the gateway MCU).
const (
	sensPLLReset       uint16 = 8   // PLL soft reset
	sensClockGenerator uint16 = 9   // clock generator reset/dividers
	sensLogicBlocks    uint16 = 10  // logic clock and block enables
	sensPLLEnable      uint16 = 16  // power-down control, PLL enable bit
	sensPLLConfig      uint16 = 17  // PLL divider configuration
	sensLockDetect     uint16 = 24  // PLL lock detector
	sensClockMgmt1     uint16 = 26  // clock management, phase 1
	sensClockMgmt2     uint16 = 27  // clock management, phase 2
	sensCoreConfig     uint16 = 32  // image core configuration
	sensColumnMux      uint16 = 34  // column multiplexer
	sensImageCore      uint16 = 40  // image core soft reset
	sensAnalogClock    uint16 = 42  // analog clock distribution
	sensAFE            uint16 = 48  // analog front end
	sensBias           uint16 = 64  // bias generator
	sensChargePump     uint16 = 72  // charge pump
	sensLVDS           uint16 = 112 // LVDS transmitters
	sensSequencer      uint16 = 192 // frame sequencer
	sensExposureGran   uint16 = 199 // exposure granularity
	sensShutterWidth   uint16 = 200 // shutter width (frame-rate derived)
	sensGain           uint16 = 204 // analog gain select
)

// Analog gain is not computed: each setting is a raw register word written
// verbatim.
var gainWords = map[types.Gain]uint16{
	types.GainLow:    0x00E1,
	types.GainMedium: 0x00E4,
	types.GainHigh:   0x0024,
}

// shutterWidths maps the finite frame-rate set to precomputed shutter-width
// register values. An unrecognized rate falls back to the 30 Hz value.
var shutterWidths = map[types.FrameRate]uint16{
	types.FrameRate10: 10000,
	types.FrameRate15: 6667,
	types.FrameRate20: 5000,
	types.FrameRate25: 4000,
	types.FrameRate30: 3300,
}

const shutterWidthDefault uint16 = 3300 // 30 Hz fallback

// ShutterWidth returns the register value for a frame rate, falling back to
// the 30 Hz value for an unrecognized rate.
func ShutterWidth(rate types.FrameRate) uint16 {
	if w, ok := shutterWidths[rate]; ok {
		return w
	}
	return shutterWidthDefault
}
