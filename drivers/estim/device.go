package estim

import (
	"headstage-go/errcode"
	"headstage-go/link"
	"headstage-go/types"
)

// Device drives the stimulation chip over an exclusively-owned register link.
// There is no bring-up sequence: every parameter is bound one-to-one to a
// register and takes effect as soon as it is written.
type Device struct {
	link link.Register
}

// New wraps a register link bound to the stimulator's device address.
func New(l link.Register) *Device {
	return &Device{link: l}
}

func (d *Device) write(reg Register, value uint32) error {
	if err := d.link.WriteRegister(uint32(reg), value); err != nil {
		return errcode.Wrap(errcode.LinkFailure, "estim."+reg.String(), err)
	}
	return nil
}

func boolWord(on bool) uint32 {
	if on {
		return 1
	}
	return 0
}

// writeCurrent encodes and writes a current parameter. Encoding errors are
// returned before any register traffic.
func (d *Device) writeCurrent(reg Register, uA float64) error {
	code, err := CurrentCode(uA)
	if err != nil {
		return err
	}
	return d.write(reg, code)
}

func (d *Device) SetEnable(on bool) error  { return d.write(RegEnable, boolWord(on)) }
func (d *Device) SetPowerOn(on bool) error { return d.write(RegPowerOn, boolWord(on)) }

func (d *Device) SetCurrent1(uA float64) error    { return d.writeCurrent(RegCurrent1, uA) }
func (d *Device) SetRestCurrent(uA float64) error { return d.writeCurrent(RegRestCurrent, uA) }
func (d *Device) SetCurrent2(uA float64) error    { return d.writeCurrent(RegCurrent2, uA) }

// Duration and count fields map identically onto their unsigned registers.

func (d *Device) SetPulseDur1(v uint32) error          { return d.write(RegPulseDur1, v) }
func (d *Device) SetInterPhaseInterval(v uint32) error { return d.write(RegInterPhaseInterval, v) }
func (d *Device) SetPulseDur2(v uint32) error          { return d.write(RegPulseDur2, v) }
func (d *Device) SetInterPulseInterval(v uint32) error { return d.write(RegInterPulseInterval, v) }
func (d *Device) SetBurstCount(v uint32) error         { return d.write(RegBurstCount, v) }
func (d *Device) SetInterBurstInterval(v uint32) error { return d.write(RegInterBurstInterval, v) }
func (d *Device) SetTrainCount(v uint32) error         { return d.write(RegTrainCount, v) }
func (d *Device) SetTrainDelay(v uint32) error         { return d.write(RegTrainDelay, v) }

// Trigger forwards the boolean verbatim to the trigger register. This path is
// not a configuration parameter: it stays validation-free and low-latency,
// each input producing exactly one write.
func (d *Device) Trigger(on bool) error { return d.write(RegTrigger, boolWord(on)) }

// Apply writes a full parameter set in catalogue order. Currents are encoded
// first so an invalid value rejects the whole set before any register write.
func (d *Device) Apply(p types.StimParams) error {
	c1, err := CurrentCode(p.Current1UA)
	if err != nil {
		return err
	}
	rest, err := CurrentCode(p.RestCurrentUA)
	if err != nil {
		return err
	}
	c2, err := CurrentCode(p.Current2UA)
	if err != nil {
		return err
	}

	steps := []struct {
		reg Register
		val uint32
	}{
		{RegEnable, boolWord(p.Enable)},
		{RegCurrent1, c1},
		{RegRestCurrent, rest},
		{RegCurrent2, c2},
		{RegPulseDur1, p.PulseDur1},
		{RegInterPhaseInterval, p.InterPhaseInterval},
		{RegPulseDur2, p.PulseDur2},
		{RegInterPulseInterval, p.InterPulseInterval},
		{RegBurstCount, p.BurstCount},
		{RegInterBurstInterval, p.InterBurstInterval},
		{RegTrainCount, p.TrainCount},
		{RegTrainDelay, p.TrainDelay},
		{RegPowerOn, boolWord(p.PowerOn)},
	}
	for _, s := range steps {
		if err := d.write(s.reg, s.val); err != nil {
			return err
		}
	}
	return nil
}
