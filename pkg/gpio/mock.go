package gpio

import (
	"math/rand"
	"sync"
	"time"

	"github.com/itohio/hcsr04/pkg/config"
)

// Echo describes the echo pulse the mock produces for one trigger pulse.
type Echo struct {
	Delay   time.Duration // Trigger falling edge to echo rising edge
	Width   time.Duration // Echo high time
	Missing bool          // Echo never goes high
	Stuck   bool          // Echo goes high and never returns low
}

// EchoFor returns the echo a sensor produces for an object distance cm away
// when sound travels at speed m/s.
func EchoFor(cm, speed float64, delay time.Duration) Echo {
	seconds := 2 * cm / (speed * 100)
	return Echo{
		Delay: delay,
		Width: time.Duration(seconds * float64(time.Second)),
	}
}

// Mock simulates an ultrasonic sensor wired to two pins. It runs on a virtual
// clock: every pin read advances time by the poll step and Sleep advances it
// by the requested duration, which makes measurements fully deterministic.
//
// The first output pin of an acquisition is treated as the trigger and the
// first input pin as the echo. A falling edge on the trigger starts the next
// echo, taken from the script or, once the script is exhausted, generated from
// the mock configuration.
type Mock struct {
	cfg config.MockConfig
	reg *registry

	mu   sync.Mutex
	now  time.Time
	rnd  *rand.Rand
	step time.Duration

	script []Echo

	trigger, echo int
	trigLevel     Level
	trigRise      time.Time
	armed         bool
	fallAt        time.Time
	current       Echo

	// Call counters
	acquires, frees, writes, reads, pulses int

	lastPulse time.Duration
}

// Ensure Mock implements DigitalIO.
var _ DigitalIO = (*Mock)(nil)

// NewMock creates a new simulated sensor.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		cfg = &config.Default().Mock
	}
	c := *cfg
	if c.SpeedOfSound <= 0 {
		c.SpeedOfSound = config.Default().Mock.SpeedOfSound
	}
	step := c.PollStep
	if step <= 0 {
		step = time.Microsecond
	}

	return &Mock{
		cfg:     c,
		reg:     newRegistry(),
		now:     time.Unix(0, 0),
		rnd:     rand.New(rand.NewSource(c.Seed)),
		step:    step,
		trigger: -1,
		echo:    -1,
	}
}

// Script queues echoes to be produced by the next trigger pulses, in order.
func (m *Mock) Script(echoes ...Echo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, echoes...)
}

// Acquire implements DigitalIO.
func (m *Mock) Acquire(pins ...PinSpec) (Handle, error) {
	m.mu.Lock()
	m.acquires++
	m.mu.Unlock()

	h, err := acquire(m.reg, m, pins)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Now returns the virtual time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Sleep advances the virtual time.
func (m *Mock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Calls returns the total number of DigitalIO operations performed, including
// acquisitions and releases.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquires + m.frees + m.writes + m.reads
}

// Pulses returns the number of trigger pulses seen.
func (m *Mock) Pulses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pulses
}

// LastPulseWidth returns the high time of the most recent trigger pulse.
func (m *Mock) LastPulseWidth() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPulse
}

// Held returns the number of pins currently acquired.
func (m *Mock) Held() int {
	return m.reg.busy()
}

func (m *Mock) setup(p PinSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch p.Direction {
	case Output:
		if m.trigger < 0 {
			m.trigger = p.ID
			m.trigLevel = Low
		}
	case Input:
		if m.echo < 0 {
			m.echo = p.ID
		}
	}
	return nil
}

func (m *Mock) free(pin int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frees++
	if pin == m.trigger {
		m.trigger = -1
		m.armed = false
	}
	if pin == m.echo {
		m.echo = -1
	}
	return nil
}

func (m *Mock) write(pin int, level Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++

	if pin != m.trigger {
		return nil
	}
	if level == High && m.trigLevel == Low {
		m.trigRise = m.now
	}
	if level == Low && m.trigLevel == High {
		m.pulses++
		m.lastPulse = m.now.Sub(m.trigRise)
		m.armed = true
		m.fallAt = m.now
		m.current = m.nextEcho()
	}
	m.trigLevel = level
	return nil
}

func (m *Mock) read(pin int) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++

	var level Level
	switch pin {
	case m.trigger:
		level = m.trigLevel
	case m.echo:
		level = m.echoLevel(m.now)
	}
	m.now = m.now.Add(m.step)
	return level, nil
}

// echoLevel returns the echo pin level at time t. Must be called with mu held.
func (m *Mock) echoLevel(t time.Time) Level {
	if !m.armed || m.current.Missing {
		return Low
	}
	rise := m.fallAt.Add(m.current.Delay)
	if t.Before(rise) {
		return Low
	}
	if m.current.Stuck {
		return High
	}
	if t.Before(rise.Add(m.current.Width)) {
		return High
	}
	return Low
}

// nextEcho pops the script or synthesizes an echo. Must be called with mu held.
func (m *Mock) nextEcho() Echo {
	if len(m.script) > 0 {
		e := m.script[0]
		m.script = m.script[1:]
		return e
	}
	cm := m.cfg.Distance
	if m.cfg.Jitter > 0 {
		cm += (m.rnd.Float64()*2 - 1) * m.cfg.Jitter
	}
	if cm < 0 {
		cm = 0
	}
	return EchoFor(cm, m.cfg.SpeedOfSound, m.cfg.EchoDelay)
}
