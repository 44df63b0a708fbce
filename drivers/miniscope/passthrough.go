package miniscope

import (
	"fmt"
	"sync"

	"tinygo.org/x/drivers"

	"headstage-go/errcode"
	"headstage-go/link"
)

var _ drivers.I2C = (*Passthrough)(nil)

// Gateway protocol bytes for wide sensor registers. The control bus only
// carries single-byte primitives, so each 16-bit sensor write is a fixed
// 3-transaction sequence of byte pairs through the gateway MCU:
// (register-high, address-select), (register-low, data-high),
// (data-low, terminator).
const (
	gwAddressSelect uint8 = 0x05
	gwTerminator    uint8 = 0x00
)

// Passthrough routes sub-device traffic through the deserializer. A
// sub-device must be registered into one of the deserializer's slave slots
// before any traffic flows; the slot write is the 7-bit bus address shifted
// left once, stored twice (ID then alias) in the slot's adjacent registers.
//
// Passthrough implements drivers.I2C for the write-only control path, so
// sub-device drivers (LED pot, lens driver) are written against the usual
// bus interface.
type Passthrough struct {
	mu    sync.Mutex
	link  link.Register
	slots []uint8 // registered 7-bit addresses, slot order
}

var slaveSlotRegs = [NumSubSlots][2]DesRegister{
	{DesSlaveID1, DesSlaveAlias1},
	{DesSlaveID2, DesSlaveAlias2},
	{DesSlaveID3, DesSlaveAlias3},
}

func NewPassthrough(l link.Register) *Passthrough {
	return &Passthrough{link: l}
}

// RegisterSubDevice assigns addr to a slave slot and programs the
// deserializer's ID/alias pair. Registering an address twice is idempotent:
// the same pair is rewritten into its existing slot. Registering a fourth
// distinct address fails, the protocol only exposes NumSubSlots slots.
func (p *Passthrough) RegisterSubDevice(addr uint8) error {
	if addr > 0x7F {
		return errcode.New(errcode.Addressing, "miniscope.RegisterSubDevice",
			fmt.Sprintf("address 0x%02X is not a 7-bit bus address", addr))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	slot := -1
	for i, a := range p.slots {
		if a == addr {
			slot = i
			break
		}
	}
	if slot < 0 {
		if len(p.slots) >= NumSubSlots {
			return errcode.New(errcode.Addressing, "miniscope.RegisterSubDevice",
				fmt.Sprintf("no free slave slot for 0x%02X (%d in use)", addr, NumSubSlots))
		}
		slot = len(p.slots)
	}

	shifted := uint32(addr) << 1
	regs := slaveSlotRegs[slot]
	if err := p.link.WriteRegister(uint32(regs[0]), shifted); err != nil {
		return errcode.Wrap(errcode.LinkFailure, "miniscope."+regs[0].String(), err)
	}
	if err := p.link.WriteRegister(uint32(regs[1]), shifted); err != nil {
		return errcode.Wrap(errcode.LinkFailure, "miniscope."+regs[1].String(), err)
	}

	if slot == len(p.slots) {
		p.slots = append(p.slots, addr)
	}
	return nil
}

func (p *Passthrough) registeredLocked(addr uint8) bool {
	for _, a := range p.slots {
		if a == addr {
			return true
		}
	}
	return false
}

// Tx implements drivers.I2C for registered sub-devices. w is a register byte
// followed by data bytes written to consecutive registers. The control path
// is write-only; requesting a read is unsupported.
func (p *Passthrough) Tx(addr uint16, w, r []byte) error {
	if len(r) > 0 {
		return errcode.New(errcode.Addressing, "miniscope.Tx", "sub-device reads unsupported")
	}
	if len(w) < 2 {
		return errcode.New(errcode.InvalidParams, "miniscope.Tx", "need register and data byte")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sub := uint8(addr)
	if !p.registeredLocked(sub) {
		return errcode.New(errcode.Addressing, "miniscope.Tx",
			fmt.Sprintf("sub-device 0x%02X not registered", sub))
	}
	reg := w[0]
	for i, b := range w[1:] {
		if err := p.link.WriteSubByte(sub, reg+uint8(i), b); err != nil {
			return errcode.Wrap(errcode.LinkFailure, "miniscope.Tx", err)
		}
	}
	return nil
}

// WriteSensorRegister writes a 16-bit value to a sensor register via the
// gateway 3-transaction sequence. The whole sequence runs under one lock so
// concurrent writers can never interleave a partial register write.
func (p *Passthrough) WriteSensorRegister(reg uint16, value uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.registeredLocked(SubSensor) {
		return errcode.New(errcode.Addressing, "miniscope.WriteSensorRegister",
			"sensor gateway not registered")
	}

	pairs := [3][2]uint8{
		{uint8(reg >> 8), gwAddressSelect},
		{uint8(reg), uint8(value >> 8)},
		{uint8(value), gwTerminator},
	}
	for _, pair := range pairs {
		if err := p.link.WriteSubByte(SubSensor, pair[0], pair[1]); err != nil {
			return errcode.Wrap(errcode.LinkFailure, "miniscope.WriteSensorRegister", err)
		}
	}
	return nil
}
