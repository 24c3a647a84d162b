// Package monitor measures a sensor repeatedly and keeps the readings of a
// sliding time window.
package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/itohio/hcsr04/pkg/config"
	"github.com/itohio/hcsr04/pkg/hcsr04"
)

// Sensor is the part of *hcsr04.Sensor the monitor needs.
type Sensor interface {
	MeasureRaw(ctx context.Context, sampleSize int, sampleWait time.Duration) (float64, error)
	Distance(raw float64) float64
	Depth(raw, holeDepth float64) float64
}

var _ Sensor = (*hcsr04.Sensor)(nil)

// Reading is the result of one measurement.
type Reading struct {
	Timestamp time.Time
	Raw       float64 // Median distance, cm
	Value     float64 // Distance or depth in the sensor unit, rounded
	Err       error   // Non-nil if the measurement failed
}

// Stats summarizes the successful readings of the window.
type Stats struct {
	Count  int
	Failed int
	Min    float64
	Max    float64
	Median float64
}

// Monitor measures a sensor every interval.
// Readings are kept in a FIFO ordered oldest first and trimmed by timestamp.
type Monitor struct {
	sensor Sensor
	now    func() time.Time

	interval   time.Duration
	window     time.Duration
	holeDepth  float64
	sampleSize int
	sampleWait time.Duration

	mu       sync.RWMutex
	readings []Reading
	shutdown bool

	callbacks []func(readings []Reading)
	cbMu      sync.RWMutex
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithTimeSource replaces time.Now for reading timestamps.
func WithTimeSource(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a monitor using the monitor and sampling sections of cfg.
// A zero hole depth selects distance readings, anything else depth readings.
func New(sensor Sensor, cfg *config.Config, opts ...Option) *Monitor {
	m := &Monitor{
		sensor:     sensor,
		now:        time.Now,
		interval:   cfg.Monitor.Interval,
		window:     cfg.Monitor.Window,
		holeDepth:  cfg.Monitor.HoleDepth,
		sampleSize: cfg.Sampling.SampleSize,
		sampleWait: cfg.Sampling.SampleWait,
		readings:   make([]Reading, 0),
	}
	if m.interval <= 0 {
		m.interval = config.Default().Monitor.Interval
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run measures immediately and then every interval until ctx is done.
// Callbacks are not invoked after Run returns.
func (m *Monitor) Run(ctx context.Context) {
	m.mu.Lock()
	m.shutdown = false
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.shutdown = true
		m.mu.Unlock()
	}()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, ok := m.step(ctx); !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Step performs one measurement, records it and notifies the callbacks.
// A measurement interrupted by ctx is not recorded.
func (m *Monitor) Step(ctx context.Context) (Reading, bool) {
	return m.step(ctx)
}

func (m *Monitor) step(ctx context.Context) (Reading, bool) {
	raw, err := m.sensor.MeasureRaw(ctx, m.sampleSize, m.sampleWait)
	if ctx.Err() != nil {
		return Reading{}, false
	}

	r := Reading{Timestamp: m.now(), Raw: raw, Err: err}
	if err != nil {
		log.Printf("Measurement failed: %v", err)
		r.Raw = 0
	} else if m.holeDepth != 0 {
		r.Value = m.sensor.Depth(raw, m.holeDepth)
	} else {
		r.Value = m.sensor.Distance(raw)
	}

	m.add(r)
	return r, true
}

// add appends r and drops readings that fell out of the window.
func (m *Monitor) add(r Reading) {
	m.mu.Lock()
	m.readings = append(m.readings, r)

	if m.window > 0 {
		cutoff := r.Timestamp.Add(-m.window)
		cutoffIndex := 0
		for i, old := range m.readings {
			if old.Timestamp.After(cutoff) {
				cutoffIndex = i
				break
			}
		}
		if cutoffIndex > 0 {
			m.readings = append(m.readings[:0:0], m.readings[cutoffIndex:]...)
		}
	}

	shouldNotify := !m.shutdown
	m.mu.Unlock()

	if shouldNotify {
		m.notifyCallbacks()
	}
}

// Readings returns a copy of the window, oldest first.
func (m *Monitor) Readings() []Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Reading, len(m.readings))
	copy(result, m.readings)
	return result
}

// Latest returns the most recent reading, if any.
func (m *Monitor) Latest() (Reading, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.readings) == 0 {
		return Reading{}, false
	}
	return m.readings[len(m.readings)-1], true
}

// Stats returns min, max and median of the successful readings in the window.
func (m *Monitor) Stats() Stats {
	return Summarize(m.Readings())
}

// Summarize computes Stats over readings.
func Summarize(readings []Reading) Stats {
	var st Stats
	values := make([]float64, 0, len(readings))
	for _, r := range readings {
		if r.Err != nil {
			st.Failed++
			continue
		}
		if len(values) == 0 || r.Value < st.Min {
			st.Min = r.Value
		}
		if len(values) == 0 || r.Value > st.Max {
			st.Max = r.Value
		}
		values = append(values, r.Value)
	}
	st.Count = len(values)
	st.Median = hcsr04.Median(values)
	return st
}

// OnUpdate registers a callback invoked with a copy of the window after every
// recorded reading. The callback should return quickly.
func (m *Monitor) OnUpdate(callback func(readings []Reading)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

func (m *Monitor) notifyCallbacks() {
	readings := m.Readings()

	m.cbMu.RLock()
	callbacks := make([]func(readings []Reading), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(readings)
		}
	}
}
