package miniscope

import (
	"fmt"
	"sync"
	"time"

	"headstage-go/errcode"
	"headstage-go/link"
	"headstage-go/types"
)

// State is the camera bring-up/shutdown state.
type State uint8

const (
	StateUnconfigured State = iota
	StateDeserializerReady
	StateSensorShutDown
	StateSensorRunning
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateDeserializerReady:
		return "deserializer_ready"
	case StateSensorShutDown:
		return "sensor_shutdown"
	case StateSensorRunning:
		return "sensor_running"
	case StateTornDown:
		return "torn_down"
	}
	return "invalid"
}

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// SettleDelay is the mandatory blocking wait between clock management
	// phases during bring-up. Default 300 ms. It is never skipped.
	SettleDelay time.Duration
}

// Device owns the imaging module's bring-up/shutdown state machine and its
// live parameters. All hardware access goes through the exclusively-owned
// register link; the state mutex keeps every transition and live update
// serialized.
type Device struct {
	mu    sync.Mutex
	pass  *Passthrough
	led   *LED
	lens  *Lens
	state State
	cfg   Config
}

// New wraps a register link bound to the imaging module's device address.
func New(l link.Register, cfgs ...Config) *Device {
	var cfg Config
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 300 * time.Millisecond
	}
	pass := NewPassthrough(l)
	return &Device{
		pass:  pass,
		led:   NewLED(pass),
		lens:  NewLens(pass),
		state: StateUnconfigured,
		cfg:   cfg,
	}
}

// State returns the current machine state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// seqError adds the step context while preserving the underlying code
// (a mid-sequence addressing error must not masquerade as a link failure).
func seqError(op string, err error) error {
	c := errcode.Of(err)
	if c == errcode.OK || c == errcode.Error {
		c = errcode.LinkFailure
	}
	return errcode.Wrap(c, op, err)
}

func (d *Device) badState(op string, want State) error {
	return errcode.New(errcode.BadSequence, op,
		fmt.Sprintf("state %s, need %s", d.state, want))
}

// ConfigureDeserializer performs the one-time link-level setup: frame
// trigger, frame size, sync and data-gate polarity, frame marking, then the
// three passthrough slave slots. The machine does not detect prior
// completion; skipping is only valid via an explicit skip token at the
// bring-up call (see BringUp).
func (d *Device) ConfigureDeserializer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.configureDeserializerLocked()
}

func (d *Device) configureDeserializerLocked() error {
	if d.state != StateUnconfigured {
		return d.badState("miniscope.ConfigureDeserializer", StateUnconfigured)
	}

	steps := []struct {
		reg DesRegister
		val uint32
	}{
		{DesTriggerOff, desTriggerOffValue},
		{DesReadSz, desReadSzValue},
		{DesTrigger, desTriggerValue},
		{DesSyncBits, desSyncBitsValue},
		{DesDataGate, desDataGateValue},
		{DesMark, desMarkValue},
	}
	for _, s := range steps {
		if err := d.pass.link.WriteRegister(uint32(s.reg), s.val); err != nil {
			return seqError("miniscope."+s.reg.String(), err)
		}
	}

	for _, sub := range []uint8{SubSensor, SubPot, SubLens} {
		if err := d.pass.RegisterSubDevice(sub); err != nil {
			return err
		}
	}

	d.state = StateDeserializerReady
	return nil
}

// PowerDown runs the full sensor power-down sequence. Valid from
// DeserializerReady (initial quiesce) and from SensorRunning.
func (d *Device) PowerDown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.powerDownLocked()
}

func (d *Device) powerDownLocked() error {
	if d.state != StateDeserializerReady && d.state != StateSensorRunning {
		return d.badState("miniscope.PowerDown", StateDeserializerReady)
	}
	if err := d.runSeq("powerdown", powerDownSeq); err != nil {
		return err
	}
	d.state = StateSensorShutDown
	return nil
}

// PowerUp runs the bring-up mirror sequence with the mandatory settling
// delay, programming exposure granularity, the frame-rate shutter width and
// the analog gain along the way.
func (d *Device) PowerUp(rate types.FrameRate, gain types.Gain) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.powerUpLocked(rate, gain)
}

func (d *Device) powerUpLocked(rate types.FrameRate, gain types.Gain) error {
	if d.state != StateSensorShutDown {
		return d.badState("miniscope.PowerUp", StateSensorShutDown)
	}
	word, ok := gainWords[gain]
	if !ok {
		return errcode.New(errcode.InvalidParams, "miniscope.PowerUp",
			fmt.Sprintf("unknown gain %q", gain))
	}

	if err := d.runSeq("powerup", powerUpPhase1); err != nil {
		return err
	}

	// Mandatory settle between clock management phases; never skipped.
	time.Sleep(d.cfg.SettleDelay)

	if err := d.runSeq("powerup", powerUpPhase2); err != nil {
		return err
	}
	if err := d.pass.WriteSensorRegister(sensExposureGran, sensExposureGranValue); err != nil {
		return seqError("powerup.exposure", err)
	}
	if err := d.pass.WriteSensorRegister(sensShutterWidth, ShutterWidth(rate)); err != nil {
		return seqError("powerup.shutter", err)
	}
	if err := d.pass.WriteSensorRegister(sensGain, word); err != nil {
		return seqError("powerup.gain", err)
	}
	if err := d.runSeq("powerup", powerUpPhase3); err != nil {
		return err
	}

	d.state = StateSensorRunning
	return nil
}

// BringUp is the full configuration path: deserializer setup (unless the
// caller passes an explicit skip token for a previously verified setup),
// initial power-down quiesce, then power-up. Any failure leaves the machine
// in the state it reached; the caller decides whether to retry or tear down.
func (d *Device) BringUp(skipInit bool, rate types.FrameRate, gain types.Gain) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if skipInit && d.state == StateUnconfigured {
		// Hardware verified configured by the caller in a prior attempt.
		d.state = StateDeserializerReady
	}
	if d.state == StateUnconfigured {
		if err := d.configureDeserializerLocked(); err != nil {
			return err
		}
	}
	if d.state == StateDeserializerReady {
		if err := d.powerDownLocked(); err != nil {
			return err
		}
	}
	return d.powerUpLocked(rate, gain)
}

// Shutdown disables the lens driver, forces the LED fully off, then runs the
// full power-down sequence. It always attempts every stage even when an
// earlier one fails, returning the first error, and leaves the machine torn
// down regardless.
func (d *Device) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateTornDown {
		return nil
	}

	var first error
	if d.state == StateSensorRunning || d.state == StateSensorShutDown {
		if err := d.lens.Off(); err != nil && first == nil {
			first = err
		}
		if err := d.led.Off(); err != nil && first == nil {
			first = err
		}
	}
	// The power-down sequence runs from every configured state: from
	// SensorShutDown it is redundant but safe, and from DeserializerReady
	// it is the best-effort quiesce after a failed or partial power-down.
	if d.state != StateUnconfigured {
		if err := d.runSeq("shutdown", powerDownSeq); err != nil && first == nil {
			first = err
		}
	}
	d.state = StateTornDown
	return first
}

// ------------------------
// Live parameters
// ------------------------

func (d *Device) requireRunning(op string) error {
	if d.state != StateSensorRunning {
		return d.badState(op, StateSensorRunning)
	}
	return nil
}

// SetLEDBrightness updates the excitation LED while the sensor runs.
func (d *Device) SetLEDBrightness(percent float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.requireRunning("miniscope.SetLEDBrightness"); err != nil {
		return err
	}
	return d.led.SetBrightness(percent)
}

// SetLensVoltage updates the liquid-lens focus voltage while the sensor runs.
func (d *Device) SetLensVoltage(voltage float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.requireRunning("miniscope.SetLensVoltage"); err != nil {
		return err
	}
	return d.lens.SetVoltage(voltage)
}

// SetGain updates the sensor analog gain while the sensor runs; it does not
// re-run bring-up.
func (d *Device) SetGain(gain types.Gain) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.requireRunning("miniscope.SetGain"); err != nil {
		return err
	}
	word, ok := gainWords[gain]
	if !ok {
		return errcode.New(errcode.InvalidParams, "miniscope.SetGain",
			fmt.Sprintf("unknown gain %q", gain))
	}
	if err := d.pass.WriteSensorRegister(sensGain, word); err != nil {
		return seqError("miniscope.SetGain", err)
	}
	return nil
}
