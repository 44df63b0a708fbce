package headstage

import (
	"testing"

	"headstage-go/errcode"
	"headstage-go/link"
	"headstage-go/link/linktest"
	"headstage-go/types"
)

// fakeTransport binds every device address to one shared recorder so tests
// can inspect the full write ordering across the link.
type fakeTransport struct {
	rec   *linktest.Recorder
	bound []uint32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{rec: linktest.NewRecorder()}
}

func (t *fakeTransport) Bind(deviceAddr uint32) link.Register {
	t.bound = append(t.bound, deviceAddr)
	return t.rec
}

func (t *fakeTransport) Close() error { return nil }

func TestRegistryRegisterRejectsBadNames(t *testing.T) {
	r := NewRegistry(newFakeTransport())

	if err := r.Register("", types.DeviceInfo{}); !errcode.Is(err, errcode.InvalidParams) {
		t.Fatalf("empty name: got %v, want invalid_params", err)
	}
	if err := r.Register("stim-a", types.DeviceInfo{Kind: types.KindStimulator}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("stim-a", types.DeviceInfo{Kind: types.KindStimulator}); !errcode.Is(err, errcode.InvalidParams) {
		t.Fatalf("duplicate name: got %v, want invalid_params", err)
	}
}

func TestRegistryReserveIsExclusive(t *testing.T) {
	tr := newFakeTransport()
	r := NewRegistry(tr)
	if err := r.Register("scope-a", types.DeviceInfo{Kind: types.KindMiniscope, Address: 0x30}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := r.Reserve("no-such-device"); !errcode.Is(err, errcode.UnknownDevice) {
		t.Fatalf("unknown device: got %v, want unknown_device", err)
	}

	h, err := r.Reserve("scope-a")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if h.Name() != "scope-a" || h.Info().Address != 0x30 {
		t.Fatalf("handle mismatch: %s addr=%#x", h.Name(), h.Info().Address)
	}
	if len(tr.bound) != 1 || tr.bound[0] != 0x30 {
		t.Fatalf("transport bound to %v, want [0x30]", tr.bound)
	}

	if _, err := r.Reserve("scope-a"); !errcode.Is(err, errcode.DeviceInUse) {
		t.Fatalf("second reserve: got %v, want device_in_use", err)
	}

	h.Release()
	if _, err := r.Reserve("scope-a"); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
}

func TestDeviceHandleReleaseIsIdempotent(t *testing.T) {
	r := NewRegistry(newFakeTransport())
	if err := r.Register("stim-a", types.DeviceInfo{Kind: types.KindStimulator}); err != nil {
		t.Fatalf("register: %v", err)
	}

	h1, err := r.Reserve("stim-a")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	h1.Release()

	h2, err := r.Reserve("stim-a")
	if err != nil {
		t.Fatalf("reserve after release: %v", err)
	}

	// A second release of a stale handle must not free the new holder's
	// reservation.
	h1.Release()
	if _, err := r.Reserve("stim-a"); !errcode.Is(err, errcode.DeviceInUse) {
		t.Fatalf("stale release freed the device: got %v, want device_in_use", err)
	}
	h2.Release()
}
