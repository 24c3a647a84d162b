package gpio

import (
	"fmt"
	"sync"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Periph drives pins through the periph.io host drivers. Pin identifiers are
// mapped to the "GPIO<n>" names of the gpio registry.
type Periph struct {
	reg *registry

	mu   sync.Mutex
	pins map[int]pgpio.PinIO
}

// Ensure Periph implements DigitalIO.
var _ DigitalIO = (*Periph)(nil)

// NewPeriph initializes the periph host drivers.
func NewPeriph() (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	return &Periph{
		reg:  newRegistry(),
		pins: make(map[int]pgpio.PinIO),
	}, nil
}

// Acquire implements DigitalIO.
func (p *Periph) Acquire(pins ...PinSpec) (Handle, error) {
	h, err := acquire(p.reg, p, pins)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (p *Periph) lookup(id int) (pgpio.PinIO, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pin, ok := p.pins[id]; ok {
		return pin, nil
	}
	name := fmt.Sprintf("GPIO%d", id)
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("no gpio pin named %s", name)
	}
	p.pins[id] = pin
	return pin, nil
}

func (p *Periph) setup(spec PinSpec) error {
	pin, err := p.lookup(spec.ID)
	if err != nil {
		return err
	}
	switch spec.Direction {
	case Output:
		return pin.Out(pgpio.Low)
	case Input:
		return pin.In(pgpio.PullDown, pgpio.NoEdge)
	default:
		return fmt.Errorf("unsupported direction %s", spec.Direction)
	}
}

func (p *Periph) write(id int, level Level) error {
	pin, err := p.lookup(id)
	if err != nil {
		return err
	}
	return pin.Out(pgpio.Level(level))
}

func (p *Periph) read(id int) (Level, error) {
	pin, err := p.lookup(id)
	if err != nil {
		return Low, err
	}
	return Level(pin.Read()), nil
}

func (p *Periph) free(id int) error {
	pin, err := p.lookup(id)
	if err != nil {
		return err
	}
	if err := pin.Halt(); err != nil {
		return err
	}
	return pin.In(pgpio.Float, pgpio.NoEdge)
}
