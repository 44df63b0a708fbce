package errcode

// Code is a stable error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// OutOfRange: a physical-unit input fell outside its declared domain.
	// Raised before any register write; a value that would wrap on a
	// current-output DAC must never reach hardware.
	OutOfRange Code = "out_of_range"

	// LinkFailure: the underlying register/byte write failed. Not retried
	// at this layer; propagated to the owning session.
	LinkFailure Code = "link_failure"

	// Addressing: passthrough slot exhaustion or access to a sub-device
	// that was never registered with the deserializer.
	Addressing Code = "addressing"

	// BadSequence: a live-parameter update or trigger arrived before
	// bring-up completed, or after teardown.
	BadSequence Code = "bad_sequence"

	DeviceInUse   Code = "device_in_use"
	UnknownDevice Code = "unknown_device"
	InvalidParams Code = "invalid_params"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New builds an *E with a code, operation and message.
func New(c Code, op, msg string) *E {
	return &E{C: c, Op: op, Msg: msg}
}

// Wrap attaches a code and operation to a cause.
func Wrap(c Code, op string, err error) *E {
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	type wrapper interface{ Unwrap() error }
	if w, ok := err.(wrapper); ok {
		if inner := w.Unwrap(); inner != nil {
			if c := Of(inner); c != Error {
				return c
			}
		}
	}
	return Error
}

// Is reports whether err carries the given code.
func Is(err error, c Code) bool { return Of(err) == c }
