//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// RPIO drives Raspberry Pi pins through /dev/gpiomem. Pin identifiers are BCM
// numbers.
type RPIO struct {
	reg *registry

	mu     sync.Mutex
	opened bool
}

// Ensure RPIO implements DigitalIO.
var _ DigitalIO = (*RPIO)(nil)

// NewRPIO creates the backend. The GPIO memory is mapped on first use.
func NewRPIO() *RPIO {
	return &RPIO{reg: newRegistry()}
}

// Acquire implements DigitalIO.
func (r *RPIO) Acquire(pins ...PinSpec) (Handle, error) {
	if err := r.open(); err != nil {
		return nil, err
	}
	h, err := acquire(r.reg, r, pins)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Close unmaps the GPIO memory.
func (r *RPIO) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.opened {
		return nil
	}
	r.opened = false
	return rpio.Close()
}

func (r *RPIO) open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opened {
		return nil
	}
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("failed to open gpio memory: %w", err)
	}
	r.opened = true
	return nil
}

func (r *RPIO) setup(p PinSpec) error {
	pin := rpio.Pin(p.ID)
	switch p.Direction {
	case Output:
		pin.Output()
		pin.Low()
	case Input:
		pin.Input()
		pin.PullDown()
	default:
		return fmt.Errorf("unsupported direction %s", p.Direction)
	}
	return nil
}

func (r *RPIO) write(pin int, level Level) error {
	if level == High {
		rpio.Pin(pin).High()
	} else {
		rpio.Pin(pin).Low()
	}
	return nil
}

func (r *RPIO) read(pin int) (Level, error) {
	return rpio.Pin(pin).Read() == rpio.High, nil
}

func (r *RPIO) free(pin int) error {
	p := rpio.Pin(pin)
	p.Input()
	p.PullOff()
	return nil
}
