//go:build !linux

package gpio

import "fmt"

// RPIO is only available on Linux.
type RPIO struct{}

// NewRPIO returns a backend whose acquisitions always fail.
func NewRPIO() *RPIO {
	return &RPIO{}
}

func (r *RPIO) Acquire(pins ...PinSpec) (Handle, error) {
	return nil, fmt.Errorf("rpio: %w", ErrUnsupported)
}

// GPIOD is only available on Linux.
type GPIOD struct{}

// NewGPIOD is only available on Linux.
func NewGPIOD(chip string) (*GPIOD, error) {
	return nil, fmt.Errorf("gpiod: %w", ErrUnsupported)
}

func (g *GPIOD) Acquire(pins ...PinSpec) (Handle, error) {
	return nil, fmt.Errorf("gpiod: %w", ErrUnsupported)
}
