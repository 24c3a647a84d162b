//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/gpiod"
)

// GPIOD drives pins through the Linux GPIO character device. Pin identifiers
// are line offsets on the chip.
type GPIOD struct {
	reg  *registry
	chip *gpiod.Chip

	mu    sync.Mutex
	lines map[int]*gpiod.Line
}

// Ensure GPIOD implements DigitalIO.
var _ DigitalIO = (*GPIOD)(nil)

// NewGPIOD opens the named chip, e.g. "gpiochip0".
func NewGPIOD(chip string) (*GPIOD, error) {
	c, err := gpiod.NewChip(chip, gpiod.WithConsumer("hcsr04"))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", chip, err)
	}
	return &GPIOD{
		reg:   newRegistry(),
		chip:  c,
		lines: make(map[int]*gpiod.Line),
	}, nil
}

// Acquire implements DigitalIO.
func (g *GPIOD) Acquire(pins ...PinSpec) (Handle, error) {
	h, err := acquire(g.reg, g, pins)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Close releases the chip.
func (g *GPIOD) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, l := range g.lines {
		l.Close()
		delete(g.lines, id)
	}
	return g.chip.Close()
}

func (g *GPIOD) line(id int) (*gpiod.Line, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.lines[id]
	if !ok {
		return nil, fmt.Errorf("line %d: %w", id, ErrPinNotAcquired)
	}
	return l, nil
}

func (g *GPIOD) setup(p PinSpec) error {
	var opt gpiod.LineReqOption
	switch p.Direction {
	case Output:
		opt = gpiod.AsOutput(0)
	case Input:
		opt = gpiod.AsInput
	default:
		return fmt.Errorf("unsupported direction %s", p.Direction)
	}

	l, err := g.chip.RequestLine(p.ID, opt)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.lines[p.ID] = l
	g.mu.Unlock()
	return nil
}

func (g *GPIOD) write(id int, level Level) error {
	l, err := g.line(id)
	if err != nil {
		return err
	}
	v := 0
	if level == High {
		v = 1
	}
	return l.SetValue(v)
}

func (g *GPIOD) read(id int) (Level, error) {
	l, err := g.line(id)
	if err != nil {
		return Low, err
	}
	v, err := l.Value()
	if err != nil {
		return Low, err
	}
	return v != 0, nil
}

func (g *GPIOD) free(id int) error {
	g.mu.Lock()
	l, ok := g.lines[id]
	delete(g.lines, id)
	g.mu.Unlock()
	if !ok {
		return nil
	}
	return l.Close()
}
