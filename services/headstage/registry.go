// services/headstage/registry.go
package headstage

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"headstage-go/errcode"
	"headstage-go/link"
	"headstage-go/types"
)

// DeviceHandle is an opaque, exclusively-owned capability bound to one
// physical device address on the control link. All register traffic for the
// device goes through it; it is invalid after release.
type DeviceHandle struct {
	id   uuid.UUID
	name string
	info types.DeviceInfo
	link link.Register

	releaseOnce sync.Once
	registry    *Registry
}

func (h *DeviceHandle) ID() uuid.UUID         { return h.id }
func (h *DeviceHandle) Name() string          { return h.name }
func (h *DeviceHandle) Info() types.DeviceInfo { return h.info }
func (h *DeviceHandle) Link() link.Register   { return h.link }

// Release returns the device to the registry. Safe to call more than once;
// only the first call releases.
func (h *DeviceHandle) Release() {
	h.releaseOnce.Do(func() {
		h.registry.release(h.name)
	})
}

type regEntry struct {
	info types.DeviceInfo
	held bool
}

// Registry is the minimal reserve/register/release bookkeeping for named
// devices on one transport. Exactly one holder per device: Reserve fails if
// the device is already held.
type Registry struct {
	mu        sync.Mutex
	transport link.Transport
	devices   map[string]*regEntry
}

func NewRegistry(t link.Transport) *Registry {
	return &Registry{
		transport: t,
		devices:   map[string]*regEntry{},
	}
}

// Register records a named device. Registering the same name twice is a
// configuration mistake and fails.
func (r *Registry) Register(name string, info types.DeviceInfo) error {
	if name == "" {
		return errcode.New(errcode.InvalidParams, "headstage.Register", "empty device name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.devices[name]; exists {
		return errcode.New(errcode.InvalidParams, "headstage.Register",
			fmt.Sprintf("device %q already registered", name))
	}
	r.devices[name] = &regEntry{info: info}
	return nil
}

// Reserve takes exclusive ownership of a named device and binds a register
// link to its address.
func (r *Registry) Reserve(name string) (*DeviceHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent, ok := r.devices[name]
	if !ok {
		return nil, errcode.New(errcode.UnknownDevice, "headstage.Reserve",
			fmt.Sprintf("device %q not registered", name))
	}
	if ent.held {
		return nil, errcode.New(errcode.DeviceInUse, "headstage.Reserve",
			fmt.Sprintf("device %q already reserved", name))
	}
	ent.held = true

	return &DeviceHandle{
		id:       uuid.New(),
		name:     name,
		info:     ent.info,
		link:     r.transport.Bind(ent.info.Address),
		registry: r,
	}, nil
}

func (r *Registry) release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ent, ok := r.devices[name]; ok {
		ent.held = false
	}
}
