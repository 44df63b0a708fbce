package headstage

import (
	"context"
	"testing"
	"time"

	"headstage-go/bus"
	"headstage-go/drivers/estim"
	"headstage-go/drivers/miniscope"
	"headstage-go/errcode"
	"headstage-go/link/linktest"
	"headstage-go/types"
)

const (
	stimAddr  uint32 = 0x20
	scopeAddr uint32 = 0x30
)

func newTestRig(t *testing.T) (*fakeTransport, *Registry, *bus.Bus) {
	t.Helper()
	tr := newFakeTransport()
	r := NewRegistry(tr)
	if err := r.Register("stim-a", types.DeviceInfo{Kind: types.KindStimulator, Address: stimAddr}); err != nil {
		t.Fatalf("register stim: %v", err)
	}
	if err := r.Register("scope-a", types.DeviceInfo{Kind: types.KindMiniscope, Address: scopeAddr}); err != nil {
		t.Fatalf("register scope: %v", err)
	}
	return tr, r, bus.NewBus(16)
}

func fastScope() miniscope.Config {
	return miniscope.Config{SettleDelay: time.Millisecond}
}

// waitFor polls until cond is satisfied; the pump applies updates
// asynchronously so tests have to wait for the writes to land.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestOpenStimulatorAppliesInitialParams(t *testing.T) {
	tr, r, b := newTestRig(t)

	p := types.StimParams{
		Enable:     true,
		Current1UA: 500,
		PulseDur1:  200,
		TrainCount: 3,
		PowerOn:    true,
	}
	s, err := Open(context.Background(), r, b, Options{Device: "stim-a", Stim: &p})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// Initial parameters are written before Open returns, power last.
	writes := tr.rec.Writes()
	if len(writes) == 0 {
		t.Fatal("no writes during open")
	}
	last := writes[len(writes)-1]
	if last.Addr != uint32(estim.RegPowerOn) || last.Value != 1 {
		t.Fatalf("last open write = reg %#x val %d, want POWERON=1", last.Addr, last.Value)
	}
	code, _ := estim.CurrentCode(500)
	if got, ok := tr.rec.LastRegister(uint32(estim.RegCurrent1)); !ok || got != code {
		t.Fatalf("current1 code = %d (%v), want %d", got, ok, code)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Close silences the output stage: trigger off, enable off, power off.
	writes = tr.rec.Writes()
	n := len(writes)
	tail := writes[n-3:]
	want := []uint32{uint32(estim.RegTrigger), uint32(estim.RegEnable), uint32(estim.RegPowerOn)}
	for i, w := range tail {
		if w.Addr != want[i] || w.Value != 0 {
			t.Fatalf("close tail[%d] = reg %#x val %d, want reg %#x val 0", i, w.Addr, w.Value, want[i])
		}
	}

	// Handle released exactly once.
	h, err := r.Reserve("stim-a")
	if err != nil {
		t.Fatalf("reserve after close: %v", err)
	}
	h.Release()
}

func TestSessionAppliesRetainedParamsOnOpen(t *testing.T) {
	tr, r, b := newTestRig(t)

	// A current value published before the session exists must still be
	// applied: subscribing replays the retained message.
	conn := b.NewConnection("test")
	conn.Publish(conn.NewMessage(ParamTopic("stim-a", ParamCurrent1), 1000.0, true))

	s, err := Open(context.Background(), r, b, Options{Device: "stim-a"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	code, _ := estim.CurrentCode(1000)
	waitFor(t, "retained current1 write", func() bool {
		got, ok := tr.rec.LastRegister(uint32(estim.RegCurrent1))
		return ok && got == code
	})
}

func TestSessionForwardsTriggerEdgesInOrder(t *testing.T) {
	tr, r, b := newTestRig(t)

	s, err := Open(context.Background(), r, b, Options{Device: "stim-a"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	s.Trigger(true)
	s.Trigger(false)
	s.Trigger(true)

	waitFor(t, "trigger sequence 1,0,1", func() bool {
		vs := tr.rec.RegisterValues(uint32(estim.RegTrigger))
		if len(vs) != 3 {
			return false
		}
		return vs[0] == 1 && vs[1] == 0 && vs[2] == 1
	})
}

func TestSessionRejectsOverWideDurations(t *testing.T) {
	tr, r, b := newTestRig(t)

	s, err := Open(context.Background(), r, b, Options{Device: "stim-a"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	// A duration wider than the register must be dropped, not truncated.
	// The valid update behind it on the same stream proves the pump saw
	// and rejected the first one.
	s.Publish(ParamPulseDur1, int64(0x100000005))
	s.Publish(ParamPulseDur1, 123)

	waitFor(t, "valid pulse duration write", func() bool {
		v, ok := tr.rec.LastRegister(uint32(estim.RegPulseDur1))
		return ok && v == 123
	})
	if vs := tr.rec.RegisterValues(uint32(estim.RegPulseDur1)); len(vs) != 1 {
		t.Fatalf("truncated duration reached hardware: %v", vs)
	}
}

func TestSessionMiniscopeLiveUpdates(t *testing.T) {
	tr, r, b := newTestRig(t)

	s, err := Open(context.Background(), r, b, Options{
		Device:          "scope-a",
		MiniscopeConfig: fastScope(),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	s.Publish(ParamLED, 40.0)
	// 40% brightness is attenuation 153 on the pot wiper.
	waitFor(t, "led attenuation write", func() bool {
		for _, w := range tr.rec.Writes() {
			if w.Kind == linktest.KindSubByte && w.Sub == miniscope.SubPot && w.Byte == 153 {
				return true
			}
		}
		return false
	})

	s.Publish(ParamGain, "medium")
	// Gain lands as a 3-transaction sensor write: register 204, word 0x00E4.
	waitFor(t, "gain sensor write", func() bool {
		ws := tr.rec.Writes()
		for i := 0; i+2 < len(ws); i++ {
			w0, w1, w2 := ws[i], ws[i+1], ws[i+2]
			if w0.Kind == linktest.KindSubByte && w0.Sub == miniscope.SubSensor &&
				w0.Reg == 0x00 && w0.Byte == 0x05 &&
				w1.Reg == 0xCC && w1.Byte == 0x00 &&
				w2.Reg == 0xE4 && w2.Byte == 0x00 {
				return true
			}
		}
		return false
	})
}

func TestSessionCancellationStillRunsFullShutdown(t *testing.T) {
	tr, r, b := newTestRig(t)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := Open(ctx, r, b, Options{Device: "scope-a", MiniscopeConfig: fastScope()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	cancel()
	time.Sleep(20 * time.Millisecond)

	// Deliveries have stopped: a further update produces no writes.
	before := len(tr.rec.Writes())
	s.Publish(ParamLED, 80.0)
	time.Sleep(20 * time.Millisecond)
	if after := len(tr.rec.Writes()); after != before {
		t.Fatalf("update applied after cancellation: %d new writes", after-before)
	}

	// Close still runs the fixed teardown sequence.
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	writes := tr.rec.Writes()
	var lensOff bool
	for _, w := range writes[before:] {
		if w.Kind == linktest.KindSubByte && w.Sub == miniscope.SubLens && w.Reg == 0x03 && w.Byte == 0x00 {
			lensOff = true
		}
	}
	if !lensOff {
		t.Fatal("close did not switch the lens driver off")
	}

	// The device handle is released.
	h, err := r.Reserve("scope-a")
	if err != nil {
		t.Fatalf("reserve after close: %v", err)
	}
	h.Release()
}

func TestOpenFailedBringUpReleasesDevice(t *testing.T) {
	tr, r, b := newTestRig(t)

	tr.rec.FailAt(2)
	_, err := Open(context.Background(), r, b, Options{Device: "scope-a", MiniscopeConfig: fastScope()})
	if !errcode.Is(err, errcode.LinkFailure) {
		t.Fatalf("open: got %v, want link_failure", err)
	}

	// Parameter streams never attached: a published update reaches nothing.
	tr.rec.Reset()
	conn := b.NewConnection("test")
	conn.Publish(conn.NewMessage(ParamTopic("scope-a", ParamLED), 50.0, true))
	time.Sleep(20 * time.Millisecond)
	if n := len(tr.rec.Writes()); n != 0 {
		t.Fatalf("%d writes after failed open, want none", n)
	}

	// The reservation was rolled back.
	h, err := r.Reserve("scope-a")
	if err != nil {
		t.Fatalf("reserve after failed open: %v", err)
	}
	h.Release()
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	tr, r, b := newTestRig(t)

	s, err := Open(context.Background(), r, b, Options{Device: "scope-a", MiniscopeConfig: fastScope()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	before := len(tr.rec.Writes())
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if after := len(tr.rec.Writes()); after != before {
		t.Fatalf("second close wrote %d transactions", after-before)
	}
}
