// services/headstage/session.go
package headstage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"headstage-go/bus"
	"headstage-go/drivers/estim"
	"headstage-go/drivers/miniscope"
	"headstage-go/errcode"
	"headstage-go/types"
)

// Options configures one session over one named device.
type Options struct {
	// Device is the registered device name to reserve.
	Device string

	// SkipInitialization skips the one-time deserializer setup. Only pass
	// true immediately after a verified successful bring-up of the same
	// physical hardware; the sensor is unreliable enough that skipping
	// re-init is never safe by default.
	SkipInitialization bool

	// Stim holds initial stimulator parameters, applied before parameter
	// streams attach.
	Stim *types.StimParams

	// Miniscope holds the camera's frame rate, gain and initial live
	// parameters for bring-up.
	Miniscope *types.MiniscopeParams

	// MiniscopeConfig tunes non-hardware behaviour (settling delay).
	MiniscopeConfig miniscope.Config

	Logger *slog.Logger
}

// Session ties together, for one device: the reserved handle, the one-time
// bring-up, the live-parameter subscription and guaranteed teardown. The
// two-phase contract is Open (fallible, performs bring-up) and Close
// (always runs the fixed shutdown and releases the handle exactly once).
type Session struct {
	name   string
	handle *DeviceHandle
	conn   *bus.Connection
	sub    *bus.Subscription
	log    *slog.Logger

	stim  *estim.Device
	scope *miniscope.Device

	pumpDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Open reserves the device, runs its bring-up and attaches the parameter
// pump. On any failure the resources already acquired are torn down
// best-effort and the parameter streams never attach.
func Open(ctx context.Context, reg *Registry, b *bus.Bus, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handle, err := reg.Reserve(opts.Device)
	if err != nil {
		return nil, err
	}

	s := &Session{
		name:   opts.Device,
		handle: handle,
		conn:   b.NewConnection("session:" + opts.Device),
		log:    logger,
	}
	s.publishState("opening", "bring_up")

	fail := func(err error) (*Session, error) {
		// Best-effort teardown of whatever was already acquired.
		if s.scope != nil {
			if derr := s.scope.Shutdown(); derr != nil {
				s.log.Warn("shutdown after failed open", "device", s.name, "err", derr)
			}
		}
		s.publishState("error", string(errcode.Of(err)))
		s.conn.Disconnect()
		handle.Release()
		return nil, err
	}

	switch handle.Info().Kind {
	case types.KindStimulator:
		s.stim = estim.New(handle.Link())
		if opts.Stim != nil {
			if err := s.stim.Apply(*opts.Stim); err != nil {
				return fail(err)
			}
		}

	case types.KindMiniscope:
		params := types.MiniscopeParams{FrameRate: types.FrameRate30, Gain: types.GainLow}
		if opts.Miniscope != nil {
			params = *opts.Miniscope
		}
		s.scope = miniscope.New(handle.Link(), opts.MiniscopeConfig)
		if err := s.scope.BringUp(opts.SkipInitialization, params.FrameRate, params.Gain); err != nil {
			return fail(err)
		}
		if err := s.scope.SetLEDBrightness(params.LEDPercent); err != nil {
			return fail(err)
		}
		if params.LensVoltage != 0 {
			if err := s.scope.SetLensVoltage(params.LensVoltage); err != nil {
				return fail(err)
			}
		}

	default:
		return fail(errcode.New(errcode.InvalidParams, "headstage.Open",
			fmt.Sprintf("device %q has unknown kind %q", opts.Device, handle.Info().Kind)))
	}

	// Subscribing replays any retained parameter values before later
	// updates, so the pump starts from the authoritative current state.
	s.sub = s.conn.Subscribe(paramPattern(s.name))
	s.pumpDone = make(chan struct{})
	go s.pump(ctx)

	s.publishState("running", "configured")
	return s, nil
}

// pump applies parameter updates in arrival order, one at a time. A single
// goroutine per session keeps every register write - including the
// 3-transaction sensor primitive - free of interleaving.
func (s *Session) pump(ctx context.Context) {
	defer close(s.pumpDone)
	for {
		select {
		case <-ctx.Done():
			// Stop delivering further writes. Bring-up/shutdown sequences
			// are never run on this goroutine, so none is aborted here.
			return
		case msg, ok := <-s.sub.Channel():
			if !ok {
				return
			}
			s.applyUpdate(msg)
		}
	}
}

func (s *Session) applyUpdate(msg *bus.Message) {
	if len(msg.Topic) == 0 {
		return
	}
	param := msg.Topic[len(msg.Topic)-1]

	var err error
	switch {
	case s.stim != nil:
		err = s.applyStim(param, msg.Payload)
	case s.scope != nil:
		err = s.applyScope(param, msg.Payload)
	}
	if err != nil {
		s.log.Warn("parameter update rejected",
			"device", s.name, "param", param, "code", string(errcode.Of(err)), "err", err)
	}
}

func badPayload(param string, v any) error {
	return errcode.New(errcode.InvalidParams, "headstage.param",
		fmt.Sprintf("%s: unusable payload %T", param, v))
}

func (s *Session) applyStim(param string, v any) error {
	// The trigger path first: forwarded verbatim, no validation overhead.
	if param == ParamTrigger {
		on, ok := asBool(v)
		if !ok {
			return badPayload(param, v)
		}
		return s.stim.Trigger(on)
	}

	switch param {
	case ParamEnable, ParamPowerOn:
		on, ok := asBool(v)
		if !ok {
			return badPayload(param, v)
		}
		if param == ParamEnable {
			return s.stim.SetEnable(on)
		}
		return s.stim.SetPowerOn(on)

	case ParamCurrent1, ParamRestCurrent, ParamCurrent2:
		uA, ok := asFloat(v)
		if !ok {
			return badPayload(param, v)
		}
		switch param {
		case ParamCurrent1:
			return s.stim.SetCurrent1(uA)
		case ParamRestCurrent:
			return s.stim.SetRestCurrent(uA)
		default:
			return s.stim.SetCurrent2(uA)
		}

	case ParamPulseDur1, ParamInterPhaseInterval, ParamPulseDur2,
		ParamInterPulseInterval, ParamBurstCount, ParamInterBurstInterval,
		ParamTrainCount, ParamTrainDelay:
		n, ok := asUint32(v)
		if !ok {
			return badPayload(param, v)
		}
		switch param {
		case ParamPulseDur1:
			return s.stim.SetPulseDur1(n)
		case ParamInterPhaseInterval:
			return s.stim.SetInterPhaseInterval(n)
		case ParamPulseDur2:
			return s.stim.SetPulseDur2(n)
		case ParamInterPulseInterval:
			return s.stim.SetInterPulseInterval(n)
		case ParamBurstCount:
			return s.stim.SetBurstCount(n)
		case ParamInterBurstInterval:
			return s.stim.SetInterBurstInterval(n)
		case ParamTrainCount:
			return s.stim.SetTrainCount(n)
		default:
			return s.stim.SetTrainDelay(n)
		}
	}
	return errcode.New(errcode.InvalidParams, "headstage.param",
		fmt.Sprintf("unknown stimulator parameter %q", param))
}

func (s *Session) applyScope(param string, v any) error {
	switch param {
	case ParamLED:
		p, ok := asFloat(v)
		if !ok {
			return badPayload(param, v)
		}
		return s.scope.SetLEDBrightness(p)
	case ParamLens:
		volts, ok := asFloat(v)
		if !ok {
			return badPayload(param, v)
		}
		return s.scope.SetLensVoltage(volts)
	case ParamGain:
		g, ok := asGain(v)
		if !ok {
			return badPayload(param, v)
		}
		return s.scope.SetGain(g)
	}
	return errcode.New(errcode.InvalidParams, "headstage.param",
		fmt.Sprintf("unknown miniscope parameter %q", param))
}

// Publish sends a retained parameter update for this session's device.
// Retention keeps the topic holding the authoritative current value.
func (s *Session) Publish(param string, value any) {
	s.conn.Publish(s.conn.NewMessage(ParamTopic(s.name, param), value, true))
}

// Trigger publishes a non-retained trigger edge. Trigger is an event
// stream, not a current value: edges must never be replayed to a late
// subscriber.
func (s *Session) Trigger(on bool) {
	s.conn.Publish(s.conn.NewMessage(ParamTopic(s.name, ParamTrigger), on, false))
}

// Close detaches the parameter streams, runs the fixed shutdown sequence
// and releases the device handle. It runs exactly once and always executes
// every teardown stage, returning the first error encountered.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.publishState("closing", "teardown")

		// Stop deliveries first so no update interleaves with shutdown.
		s.conn.Disconnect()
		if s.pumpDone != nil {
			<-s.pumpDone
		}

		var first error
		if s.scope != nil {
			if err := s.scope.Shutdown(); err != nil {
				first = err
			}
		}
		if s.stim != nil {
			// Silence the output stage.
			if err := s.stim.Trigger(false); err != nil && first == nil {
				first = err
			}
			if err := s.stim.SetEnable(false); err != nil && first == nil {
				first = err
			}
			if err := s.stim.SetPowerOn(false); err != nil && first == nil {
				first = err
			}
		}

		s.handle.Release()
		s.publishState("closed", "released")
		s.closeErr = first
	})
	return s.closeErr
}

func (s *Session) publishState(level, status string) {
	s.conn.Publish(s.conn.NewMessage(StateTopic(s.name), types.SessionState{
		Level:  level,
		Status: status,
		TSms:   time.Now().UnixMilli(),
	}, true))
}
