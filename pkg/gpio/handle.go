package gpio

import (
	"fmt"
	"sync"
)

// port is the per-pin primitive set a backend provides. The shared handle
// takes care of ownership bookkeeping on top of it.
type port interface {
	setup(p PinSpec) error
	write(pin int, level Level) error
	read(pin int) (Level, error)
	free(pin int) error
}

// registry tracks which pins of a backend are currently owned.
type registry struct {
	mu   sync.Mutex
	held map[int]struct{}
}

func newRegistry() *registry {
	return &registry{held: make(map[int]struct{})}
}

func (r *registry) claim(pins []PinSpec) (map[int]Direction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned := make(map[int]Direction, len(pins))
	for _, p := range pins {
		if _, dup := owned[p.ID]; dup {
			return nil, fmt.Errorf("pin %d: %w", p.ID, ErrDuplicatePin)
		}
		if _, busy := r.held[p.ID]; busy {
			return nil, fmt.Errorf("pin %d: %w", p.ID, ErrPinBusy)
		}
		owned[p.ID] = p.Direction
	}
	for id := range owned {
		r.held[id] = struct{}{}
	}
	return owned, nil
}

func (r *registry) release(pins map[int]Direction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range pins {
		delete(r.held, id)
	}
}

func (r *registry) busy() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.held)
}

// handle is the Handle implementation shared by all backends.
type handle struct {
	reg  *registry
	port port

	mu       sync.Mutex
	pins     map[int]Direction
	order    []PinSpec
	released bool
}

// acquire claims pins in reg and configures them through p. On a setup
// failure every pin configured so far is freed again.
func acquire(reg *registry, p port, pins []PinSpec) (*handle, error) {
	owned, err := reg.claim(pins)
	if err != nil {
		return nil, err
	}

	for i, spec := range pins {
		if err := p.setup(spec); err != nil {
			for _, done := range pins[:i] {
				_ = p.free(done.ID)
			}
			reg.release(owned)
			return nil, fmt.Errorf("failed to configure pin %d as %s: %w", spec.ID, spec.Direction, err)
		}
	}

	return &handle{
		reg:   reg,
		port:  p,
		pins:  owned,
		order: append([]PinSpec(nil), pins...),
	}, nil
}

func (h *handle) check(pin int, write bool) error {
	if h.released {
		return ErrReleased
	}
	dir, ok := h.pins[pin]
	if !ok {
		return fmt.Errorf("pin %d: %w", pin, ErrPinNotAcquired)
	}
	if write && dir != Output {
		return fmt.Errorf("pin %d: %w", pin, ErrWrongDirection)
	}
	return nil
}

// Write sets the level of an output pin.
func (h *handle) Write(pin int, level Level) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(pin, true); err != nil {
		return err
	}
	return h.port.write(pin, level)
}

// Read returns the level of an acquired pin.
func (h *handle) Read(pin int) (Level, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(pin, false); err != nil {
		return Low, err
	}
	return h.port.read(pin)
}

// Release frees the pins in reverse acquisition order.
func (h *handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true

	var firstErr error
	for i := len(h.order) - 1; i >= 0; i-- {
		if err := h.port.free(h.order[i].ID); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to free pin %d: %w", h.order[i].ID, err)
		}
	}
	h.reg.release(h.pins)
	return firstErr
}

var _ Handle = (*handle)(nil)
