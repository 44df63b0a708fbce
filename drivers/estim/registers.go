// Package estim provides constants for register addresses used in the
// operation of the headstage electrical-stimulation driver.
package estim

// Register is a named control register on the stimulation driver. The
// catalogue is a fixed bit-exact contract with the chip; the numeric indices
// must not change.
type Register uint32

const (
	RegEnable             Register = 0x00 // R/W stimulation enable
	RegCurrent1           Register = 0x01 // R/W phase-1 current DAC code
	RegRestCurrent        Register = 0x02 // R/W inter-phase rest current DAC code
	RegCurrent2           Register = 0x03 // R/W phase-2 current DAC code
	RegPulseDur1          Register = 0x04 // R/W phase-1 duration
	RegInterPhaseInterval Register = 0x05 // R/W interval between phases
	RegPulseDur2          Register = 0x06 // R/W phase-2 duration
	RegInterPulseInterval Register = 0x07 // R/W interval between pulses
	RegBurstCount         Register = 0x08 // R/W pulses per burst
	RegInterBurstInterval Register = 0x09 // R/W interval between bursts
	RegTrainCount         Register = 0x0A // R/W bursts per train
	RegTrainDelay         Register = 0x0B // R/W delay before train start
	RegTrigger            Register = 0x0C // W   1 starts a train, 0 stops
	RegPowerOn            Register = 0x0D // R/W output stage power
)

// String gives the register's catalogue name. The switch is exhaustive over
// the catalogue; an unknown index is a programming error and reads as such.
func (r Register) String() string {
	switch r {
	case RegEnable:
		return "ENABLE"
	case RegCurrent1:
		return "CURRENT1"
	case RegRestCurrent:
		return "RESTCURR"
	case RegCurrent2:
		return "CURRENT2"
	case RegPulseDur1:
		return "PULSEDUR1"
	case RegInterPhaseInterval:
		return "INTERPHASEINTERVAL"
	case RegPulseDur2:
		return "PULSEDUR2"
	case RegInterPulseInterval:
		return "INTERPULSEINTERVAL"
	case RegBurstCount:
		return "BURSTCOUNT"
	case RegInterBurstInterval:
		return "INTERBURSTINTERVAL"
	case RegTrainCount:
		return "TRAINCOUNT"
	case RegTrainDelay:
		return "TRAINDELAY"
	case RegTrigger:
		return "TRIGGER"
	case RegPowerOn:
		return "POWERON"
	}
	return "UNKNOWN"
}
