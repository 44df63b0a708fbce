package link

import (
	"encoding/binary"
	"fmt"
	"sync"

	"go.bug.st/serial"

	"headstage-go/errcode"
)

const (
	// DefaultBaudRate matches the headstage control UART.
	DefaultBaudRate = 115200

	frameSync = 0xAA

	opWriteRegister = 0x01
	opWriteSubByte  = 0x02
)

// SerialTransport is a Transport over a byte-level serial port. Every write
// is one framed packet; a mutex serializes frames so concurrent Register
// owners cannot interleave bytes on the wire.
type SerialTransport struct {
	mu   sync.Mutex
	port serial.Port
	name string
}

// OpenSerial opens the named port at the given baud rate (0 means default).
func OpenSerial(name string, baudRate int) (*SerialTransport, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return &SerialTransport{port: port, name: name}, nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

// Bind returns a Register issuing frames for the device at deviceAddr.
func (t *SerialTransport) Bind(deviceAddr uint32) Register {
	return &serialRegister{t: t, dev: deviceAddr}
}

type serialRegister struct {
	t   *SerialTransport
	dev uint32
}

// Frame layout: sync, op, device(4), payload, checksum. Payload is
// addr(4)+value(4) for register writes and sub+reg+value for sub-device
// byte writes. Checksum is the byte sum of everything after the sync.
func (r *serialRegister) writeFrame(op byte, payload []byte) error {
	buf := make([]byte, 0, 2+4+len(payload)+1)
	buf = append(buf, frameSync, op)
	buf = binary.LittleEndian.AppendUint32(buf, r.dev)
	buf = append(buf, payload...)

	var sum byte
	for _, b := range buf[1:] {
		sum += b
	}
	buf = append(buf, sum)

	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	if r.t.port == nil {
		return errcode.New(errcode.LinkFailure, "link.write", "transport closed")
	}
	if _, err := r.t.port.Write(buf); err != nil {
		return errcode.Wrap(errcode.LinkFailure, "link.write", err)
	}
	return nil
}

func (r *serialRegister) WriteRegister(addr uint32, value uint32) error {
	payload := make([]byte, 0, 8)
	payload = binary.LittleEndian.AppendUint32(payload, addr)
	payload = binary.LittleEndian.AppendUint32(payload, value)
	return r.writeFrame(opWriteRegister, payload)
}

func (r *serialRegister) WriteSubByte(sub uint8, reg uint8, value uint8) error {
	return r.writeFrame(opWriteSubByte, []byte{sub, reg, value})
}

var _ Transport = (*SerialTransport)(nil)
var _ Register = (*serialRegister)(nil)
