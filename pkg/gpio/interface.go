// Package gpio defines the digital I/O capability used by the sensor engine
// and implements it on top of several GPIO backends.
package gpio

import "time"

// Level is the logic level of a digital pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Direction is the configured direction of a pin.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "in"
	case Output:
		return "out"
	default:
		return "unknown"
	}
}

// PinSpec names a pin and the direction it is acquired with. Pin identifiers
// are platform specific and are passed through to the backend unvalidated.
type PinSpec struct {
	ID        int
	Direction Direction
}

// DigitalIO hands out exclusive ownership of a set of pins.
type DigitalIO interface {
	// Acquire configures the pins and returns a handle owning them until
	// Release is called.
	Acquire(pins ...PinSpec) (Handle, error)
}

// Handle is a scoped ownership of the pins passed to Acquire.
type Handle interface {
	Write(pin int, level Level) error
	Read(pin int) (Level, error)
	// Release returns the pins to the backend. Calling it more than once is
	// a no-op.
	Release() error
}

// StampedReader is implemented by handles that timestamp reads themselves,
// e.g. when the pins live on a remote MCU.
type StampedReader interface {
	ReadStamped(pin int) (Level, time.Time, error)
}

// Pulser is implemented by handles that can pulse a trigger pin and time the
// echo themselves. A remote MCU needs this because one read round trip takes
// longer than the whole echo of a near object.
//
// Pulse drives trig high for width, then waits up to timeout for each edge of
// echo and returns their timestamps. A missing edge is reported as
// ErrEchoRise or ErrEchoFall.
type Pulser interface {
	Pulse(trig, echo int, width, timeout time.Duration) (rise, fall time.Time, err error)
}

// Closer is implemented by backends holding process-wide resources.
type Closer interface {
	Close() error
}
