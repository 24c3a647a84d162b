// Package hcsr04 measures distance with an HC-SR04 style ultrasonic sensor
// driven through two digital pins.
//
// A measurement pulses the trigger pin, times the echo pin high period and
// converts the round trip time to centimeters with a temperature corrected
// speed of sound. Each raw measurement is the median of several pulses.
package hcsr04

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/itohio/hcsr04/pkg/config"
	"github.com/itohio/hcsr04/pkg/gpio"
	"github.com/itohio/hcsr04/pkg/units"
)

const (
	// DefaultSampleSize is the number of pulses per raw measurement.
	DefaultSampleSize = 11
	// DefaultSampleWait lets a previous echo die out before the next pulse.
	// Values much lower than this may pick up stray echoes.
	DefaultSampleWait = 100 * time.Millisecond
	// DefaultMaxPolls bounds each echo wait by the number of pin reads.
	DefaultMaxPolls = 1000
	// TriggerPulse is the trigger high time that starts a burst.
	TriggerPulse = 10 * time.Microsecond
)

// Timeout bounds both echo waits. A wait fails as soon as either bound is
// exceeded; a zero field disables that bound.
type Timeout struct {
	MaxPolls int
	Deadline time.Duration
}

// DefaultTimeout returns the empirically safe poll bound.
func DefaultTimeout() Timeout {
	return Timeout{MaxPolls: DefaultMaxPolls}
}

// Sensor performs measurements for one sensor config. Measurements on the
// same Sensor are serialized.
type Sensor struct {
	io      gpio.DigitalIO
	cfg     Config
	clock   Clock
	timeout Timeout
	pulse   time.Duration

	sampleSize int
	sampleWait time.Duration

	mu sync.Mutex
}

// Option configures a Sensor.
type Option func(*Sensor)

// WithClock replaces the wall clock, e.g. with a simulated one.
func WithClock(c Clock) Option {
	return func(s *Sensor) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithTimeout sets the echo wait bounds.
func WithTimeout(t Timeout) Option {
	return func(s *Sensor) { s.timeout = t }
}

// WithTriggerPulse overrides the trigger pulse width.
func WithTriggerPulse(d time.Duration) Option {
	return func(s *Sensor) {
		if d > 0 {
			s.pulse = d
		}
	}
}

// WithSampling sets the sample size and wait used by MeasureDistance and
// MeasureDepth.
func WithSampling(size int, wait time.Duration) Option {
	return func(s *Sensor) {
		s.sampleSize = size
		s.sampleWait = wait
	}
}

// New creates a sensor that measures through io. The config is not validated
// here so that a bad unit is reported by the first measurement before any pin
// is touched; use NewConfig to fail at construction.
func New(io gpio.DigitalIO, cfg Config, opts ...Option) *Sensor {
	s := &Sensor{
		io:         io,
		cfg:        cfg,
		clock:      WallClock,
		timeout:    DefaultTimeout(),
		pulse:      TriggerPulse,
		sampleSize: DefaultSampleSize,
		sampleWait: DefaultSampleWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromAppConfig creates a sensor from the application configuration.
func FromAppConfig(io gpio.DigitalIO, cfg *config.Config, opts ...Option) (*Sensor, error) {
	sc, err := FromConfig(cfg.Sensor)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithSampling(cfg.Sampling.SampleSize, cfg.Sampling.SampleWait),
		WithTimeout(Timeout{
			MaxPolls: cfg.Sampling.MaxPolls,
			Deadline: cfg.Sampling.EchoDeadline,
		}),
	}
	return New(io, sc, append(base, opts...)...), nil
}

// Config returns the sensor config.
func (s *Sensor) Config() Config {
	return s.cfg
}

// MeasureRaw returns the median of sampleSize pulse distances in centimeters.
//
// Configuration errors are returned before any pin is acquired. An echo
// timeout on any pulse aborts the whole measurement. The pins are released
// on every return path.
func (s *Sensor) MeasureRaw(ctx context.Context, sampleSize int, sampleWait time.Duration) (float64, error) {
	samples, err := s.MeasureSamples(ctx, sampleSize, sampleWait)
	if err != nil {
		return 0, err
	}
	return Median(samples), nil
}

// MeasureSamples performs sampleSize pulses and returns their distances in
// centimeters, in measurement order.
func (s *Sensor) MeasureSamples(ctx context.Context, sampleSize int, sampleWait time.Duration) (samples []float64, err error) {
	celsius, err := s.cfg.Celsius()
	if err != nil {
		return nil, err
	}
	if sampleSize <= 0 {
		return nil, fmt.Errorf("%d: %w", sampleSize, ErrInvalidSampleSize)
	}
	if sampleWait < 0 {
		return nil, fmt.Errorf("%s: %w", sampleWait, ErrInvalidSampleWait)
	}
	cmPerSecond := SpeedOfSound(celsius) * 100

	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.io.Acquire(
		gpio.PinSpec{ID: s.cfg.TriggerPin, Direction: gpio.Output},
		gpio.PinSpec{ID: s.cfg.EchoPin, Direction: gpio.Input},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire pins: %w", err)
	}
	defer func() {
		if rerr := h.Release(); rerr != nil && err == nil {
			samples, err = nil, fmt.Errorf("failed to release pins: %w", rerr)
		}
	}()

	samples = make([]float64, 0, sampleSize)
	for i := 0; i < sampleSize; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		elapsed, err := s.ping(ctx, h, i, sampleWait)
		if err != nil {
			return nil, err
		}
		samples = append(samples, elapsed.Seconds()*cmPerSecond/2)
	}
	return samples, nil
}

// MeasureDistance measures with the sensor's sampling settings and returns the
// rounded distance in the configured unit.
func (s *Sensor) MeasureDistance(ctx context.Context) (float64, error) {
	raw, err := s.MeasureRaw(ctx, s.sampleSize, s.sampleWait)
	if err != nil {
		return 0, err
	}
	return s.Distance(raw), nil
}

// MeasureDepth measures with the sensor's sampling settings and returns the
// rounded liquid depth in the configured unit. holeDepth is the distance from
// the sensor to the bottom, in cm for metric and inches for imperial.
func (s *Sensor) MeasureDepth(ctx context.Context, holeDepth float64) (float64, error) {
	raw, err := s.MeasureRaw(ctx, s.sampleSize, s.sampleWait)
	if err != nil {
		return 0, err
	}
	return s.Depth(raw, holeDepth), nil
}

// Distance converts a raw distance to the configured unit.
func (s *Sensor) Distance(raw float64) float64 {
	if s.cfg.Unit == Imperial {
		return units.DistanceImperial(raw, s.cfg.Precision)
	}
	return units.DistanceMetric(raw, s.cfg.Precision)
}

// Depth converts a raw distance to a depth in the configured unit.
func (s *Sensor) Depth(raw, holeDepth float64) float64 {
	if s.cfg.Unit == Imperial {
		return units.DepthImperial(raw, holeDepth, s.cfg.Precision)
	}
	return units.DepthMetric(raw, holeDepth, s.cfg.Precision)
}

// ping emits one burst and returns the echo high time.
func (s *Sensor) ping(ctx context.Context, h gpio.Handle, sample int, wait time.Duration) (time.Duration, error) {
	trig := s.cfg.TriggerPin

	if err := h.Write(trig, gpio.Low); err != nil {
		return 0, fmt.Errorf("failed to write trigger pin %d: %w", trig, err)
	}
	if err := s.settle(ctx, wait); err != nil {
		return 0, err
	}
	if p, ok := h.(gpio.Pulser); ok {
		return s.remotePing(p, sample)
	}
	if err := h.Write(trig, gpio.High); err != nil {
		return 0, fmt.Errorf("failed to write trigger pin %d: %w", trig, err)
	}
	s.clock.Sleep(s.pulse)
	if err := h.Write(trig, gpio.Low); err != nil {
		return 0, fmt.Errorf("failed to write trigger pin %d: %w", trig, err)
	}

	off, err := s.await(h, gpio.Low, PhaseRise, sample)
	if err != nil {
		return 0, err
	}
	on, err := s.await(h, gpio.High, PhaseFall, sample)
	if err != nil {
		return 0, err
	}
	return on.Sub(off), nil
}

// remotePing lets the handle time the echo itself. Without a deadline the
// wait on each edge is bounded by config.DefaultEchoDeadline.
func (s *Sensor) remotePing(p gpio.Pulser, sample int) (time.Duration, error) {
	timeout := s.timeout.Deadline
	if timeout <= 0 {
		timeout = config.DefaultEchoDeadline
	}

	rise, fall, err := p.Pulse(s.cfg.TriggerPin, s.cfg.EchoPin, s.pulse, timeout)
	switch {
	case errors.Is(err, gpio.ErrEchoRise):
		return 0, &EchoTimeoutError{Phase: PhaseRise, Sample: sample, Elapsed: timeout}
	case errors.Is(err, gpio.ErrEchoFall):
		return 0, &EchoTimeoutError{Phase: PhaseFall, Sample: sample, Elapsed: timeout}
	case err != nil:
		return 0, fmt.Errorf("failed to pulse trigger pin %d: %w", s.cfg.TriggerPin, err)
	}
	return fall.Sub(rise), nil
}

// await polls the echo pin while it reads level and returns the timestamp of
// the last such reading. If the very first read already differs, its own
// timestamp is returned.
func (s *Sensor) await(h gpio.Handle, level gpio.Level, phase Phase, sample int) (time.Time, error) {
	start := s.clock.Now()
	var last time.Time
	polls := 0

	for {
		got, ts, err := s.read(h)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to read echo pin %d: %w", s.cfg.EchoPin, err)
		}
		if got != level {
			if polls == 0 {
				return ts, nil
			}
			return last, nil
		}
		last = ts
		polls++

		elapsed := s.clock.Now().Sub(start)
		if (s.timeout.MaxPolls > 0 && polls >= s.timeout.MaxPolls) ||
			(s.timeout.Deadline > 0 && elapsed > s.timeout.Deadline) {
			return time.Time{}, &EchoTimeoutError{
				Phase:   phase,
				Sample:  sample,
				Polls:   polls,
				Elapsed: elapsed,
			}
		}
	}
}

func (s *Sensor) read(h gpio.Handle) (gpio.Level, time.Time, error) {
	if sr, ok := h.(gpio.StampedReader); ok {
		return sr.ReadStamped(s.cfg.EchoPin)
	}
	level, err := h.Read(s.cfg.EchoPin)
	return level, s.clock.Now(), err
}

func (s *Sensor) settle(ctx context.Context, d time.Duration) error {
	if cs, ok := s.clock.(contextSleeper); ok {
		return cs.SleepContext(ctx, d)
	}
	s.clock.Sleep(d)
	return ctx.Err()
}

// Median returns the middle element of the sorted samples. For an even count
// this is the upper of the two middle values, not their average.
func Median(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	return sorted[len(sorted)/2]
}
