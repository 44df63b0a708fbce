// Package linktest provides an instrumented in-memory register link for
// driver and session tests. It records every write in arrival order and can
// inject a failure at a chosen write index.
package linktest

import (
	"sync"

	"headstage-go/errcode"
	"headstage-go/link"
)

// Kind discriminates recorded writes.
type Kind int

const (
	KindRegister Kind = iota
	KindSubByte
)

// Write is one recorded link transaction.
type Write struct {
	Kind  Kind
	Addr  uint32 // register writes
	Value uint32 // register writes
	Sub   uint8  // sub-device writes
	Reg   uint8
	Byte  uint8
}

// Recorder implements link.Register, recording all traffic.
type Recorder struct {
	mu     sync.Mutex
	writes []Write

	// FailAt injects a link failure on the Nth write (0-based) when >= 0.
	failAt int
	count  int
}

func NewRecorder() *Recorder {
	return &Recorder{failAt: -1}
}

// FailAt makes the n-th write (counting every kind, 0-based) fail with
// errcode.LinkFailure. Writes before and after succeed.
func (r *Recorder) FailAt(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAt = n
}

func (r *Recorder) step() error {
	n := r.count
	r.count++
	if r.failAt >= 0 && n == r.failAt {
		return errcode.New(errcode.LinkFailure, "linktest.write", "injected failure")
	}
	return nil
}

func (r *Recorder) WriteRegister(addr uint32, value uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.step(); err != nil {
		return err
	}
	r.writes = append(r.writes, Write{Kind: KindRegister, Addr: addr, Value: value})
	return nil
}

func (r *Recorder) WriteSubByte(sub uint8, reg uint8, value uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.step(); err != nil {
		return err
	}
	r.writes = append(r.writes, Write{Kind: KindSubByte, Sub: sub, Reg: reg, Byte: value})
	return nil
}

// Writes returns a copy of all recorded writes in order.
func (r *Recorder) Writes() []Write {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Write, len(r.writes))
	copy(out, r.writes)
	return out
}

// Reset clears the recorded writes and the failure trigger.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = nil
	r.count = 0
	r.failAt = -1
}

// RegisterValues returns every value written to addr, in order.
func (r *Recorder) RegisterValues(addr uint32) []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uint32
	for _, w := range r.writes {
		if w.Kind == KindRegister && w.Addr == addr {
			out = append(out, w.Value)
		}
	}
	return out
}

// LastRegister returns the last value written to addr and whether any was.
func (r *Recorder) LastRegister(addr uint32) (uint32, bool) {
	vs := r.RegisterValues(addr)
	if len(vs) == 0 {
		return 0, false
	}
	return vs[len(vs)-1], true
}

var _ link.Register = (*Recorder)(nil)
