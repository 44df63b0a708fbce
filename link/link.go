// Package link provides the control-link primitives the drivers are written
// against: 32-bit register writes addressed to one device, and single-byte
// sub-device writes routed through that device's deserializer passthrough.
package link

// Register is the write surface for one device on the control link. It is
// exclusively owned: all traffic for the device goes through one Register,
// and implementations must keep each call atomic on the wire.
type Register interface {
	// WriteRegister writes a 32-bit value to a managed register.
	WriteRegister(addr uint32, value uint32) error

	// WriteSubByte writes one byte to register reg of the sub-device at
	// 7-bit bus address sub, through the deserializer passthrough.
	WriteSubByte(sub uint8, reg uint8, value uint8) error
}

// Transport hands out Register instances bound to device addresses.
type Transport interface {
	Bind(deviceAddr uint32) Register
	Close() error
}
