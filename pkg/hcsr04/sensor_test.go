package hcsr04

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/itohio/hcsr04/pkg/config"
	"github.com/itohio/hcsr04/pkg/gpio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	trigPin = 23
	echoPin = 24
	// One mock poll step is 1us, which bounds the timing error of a single
	// sample to ~0.0172cm at room temperature.
	sampleDelta = 0.02
	echoDelay   = 100 * time.Microsecond
)

func newMock() *gpio.Mock {
	cfg := config.Default().Mock
	cfg.PollStep = time.Microsecond
	cfg.Jitter = 0
	return gpio.NewMock(&cfg)
}

// newSensor polls the 1us mock up to 10000 times per edge so that echoes of
// up to ~1.7m fit. Tests of the default bound pass WithTimeout explicitly.
func newSensor(t *testing.T, io *gpio.Mock, cfg Config, opts ...Option) *Sensor {
	t.Helper()
	base := []Option{
		WithClock(io),
		WithTimeout(Timeout{MaxPolls: 10 * DefaultMaxPolls}),
	}
	return New(io, cfg, append(base, opts...)...)
}

func metricConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := NewConfig(trigPin, echoPin, 20, Metric, 1)
	require.NoError(t, err)
	return cfg
}

func script(io *gpio.Mock, celsius float64, distances ...float64) {
	speed := SpeedOfSound(celsius)
	for _, d := range distances {
		io.Script(gpio.EchoFor(d, speed, echoDelay))
	}
}

func TestMeasureRaw_Median(t *testing.T) {
	io := newMock()
	s := newSensor(t, io, metricConfig(t))
	script(io, 20, 10.2, 9.8, 10.5, 10.1, 9.9)

	raw, err := s.MeasureRaw(context.Background(), 5, DefaultSampleWait)
	require.NoError(t, err)
	assert.InDelta(t, 10.1, raw, sampleDelta)
	assert.Equal(t, 5, io.Pulses())
	assert.Equal(t, 0, io.Held(), "pins must be released")
}

func TestMeasureRaw_EvenSampleSizePicksUpperMiddle(t *testing.T) {
	io := newMock()
	s := newSensor(t, io, metricConfig(t))
	script(io, 20, 8.0, 5.0, 7.0, 6.0)

	raw, err := s.MeasureRaw(context.Background(), 4, DefaultSampleWait)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, raw, sampleDelta)
	assert.NotEqual(t, 6.5, raw)
}

func TestMeasureSamples_Order(t *testing.T) {
	io := newMock()
	s := newSensor(t, io, metricConfig(t))
	script(io, 20, 30, 20, 40)

	samples, err := s.MeasureSamples(context.Background(), 3, 0)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.InDelta(t, 30, samples[0], sampleDelta)
	assert.InDelta(t, 20, samples[1], sampleDelta)
	assert.InDelta(t, 40, samples[2], sampleDelta)
}

func TestMeasureRaw_TriggerPulse(t *testing.T) {
	io := newMock()
	s := newSensor(t, io, metricConfig(t))
	script(io, 20, 10)

	_, err := s.MeasureRaw(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, TriggerPulse, io.LastPulseWidth())
}

func TestMeasureRaw_SampleWaitAdvancesClock(t *testing.T) {
	io := newMock()
	s := newSensor(t, io, metricConfig(t))
	script(io, 20, 10, 10, 10)

	start := io.Now()
	_, err := s.MeasureRaw(context.Background(), 3, 50*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, io.Now().Sub(start), 150*time.Millisecond)
}

func TestMeasureRaw_InvalidUnitTouchesNoPins(t *testing.T) {
	io := newMock()
	cfg := Config{TriggerPin: trigPin, EchoPin: echoPin, Temperature: 20, Unit: "kelvin"}
	s := newSensor(t, io, cfg)

	_, err := s.MeasureRaw(context.Background(), DefaultSampleSize, DefaultSampleWait)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidUnit)
	assert.True(t, IsConfigurationError(err))
	assert.Equal(t, 0, io.Calls(), "no I/O may happen before the unit is validated")
}

func TestMeasureRaw_InvalidSampling(t *testing.T) {
	tests := []struct {
		name string
		size int
		wait time.Duration
		want error
	}{
		{name: "zero sample size", size: 0, wait: 0, want: ErrInvalidSampleSize},
		{name: "negative sample size", size: -1, wait: 0, want: ErrInvalidSampleSize},
		{name: "negative wait", size: 3, wait: -time.Millisecond, want: ErrInvalidSampleWait},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			io := newMock()
			s := newSensor(t, io, metricConfig(t))

			_, err := s.MeasureRaw(context.Background(), tt.size, tt.wait)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsConfigurationError(err))
			assert.Equal(t, 0, io.Calls())
		})
	}
}

func TestMeasureRaw_ImperialTemperature(t *testing.T) {
	cfg, err := NewConfig(trigPin, echoPin, 68, Imperial, 1)
	require.NoError(t, err)

	celsius, err := cfg.Celsius()
	require.NoError(t, err)
	assert.InDelta(t, 20.0016, celsius, 1e-9)

	speed, err := cfg.SpeedOfSound()
	require.NoError(t, err)
	assert.InDelta(t, 331.3*1.0359661, speed, 1e-3)
	assert.InDelta(t, SpeedOfSound(20.0016), speed, 1e-12)

	io := newMock()
	s := newSensor(t, io, cfg)
	script(io, 20.0016, 25, 25, 25)

	raw, err := s.MeasureRaw(context.Background(), 3, 0)
	require.NoError(t, err)
	assert.InDelta(t, 25, raw, sampleDelta)
}

func TestMeasureRaw_ImperialIsIdempotent(t *testing.T) {
	cfg, err := NewConfig(trigPin, echoPin, 68, Imperial, 1)
	require.NoError(t, err)

	io := newMock()
	s := newSensor(t, io, cfg)

	var results []float64
	for i := 0; i < 2; i++ {
		script(io, 20.0016, 40, 40, 40)
		raw, err := s.MeasureRaw(context.Background(), 3, 0)
		require.NoError(t, err)
		results = append(results, raw)

		celsius, err := s.Config().Celsius()
		require.NoError(t, err)
		assert.InDelta(t, 20.0016, celsius, 1e-9)
		assert.Equal(t, float64(68), s.Config().Temperature)
	}
	assert.InDelta(t, results[0], results[1], 1e-9)
	assert.InDelta(t, 40, results[1], sampleDelta)
}

func TestMeasureRaw_EchoNeverRises(t *testing.T) {
	io := newMock()
	s := newSensor(t, io, metricConfig(t), WithTimeout(DefaultTimeout()))
	io.Script(gpio.Echo{Missing: true})

	raw, err := s.MeasureRaw(context.Background(), 5, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEchoTimeout)
	assert.False(t, IsConfigurationError(err))
	assert.Equal(t, float64(0), raw)

	var te *EchoTimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, PhaseRise, te.Phase)
	assert.Equal(t, 0, te.Sample)
	assert.Equal(t, DefaultMaxPolls, te.Polls)
	assert.Equal(t, 1, io.Pulses(), "batch must abort on the first failed sample")
	assert.Equal(t, 0, io.Held(), "pins must be released on timeout")
}

func TestMeasureRaw_EchoStuckHigh(t *testing.T) {
	io := newMock()
	s := newSensor(t, io, metricConfig(t))
	script(io, 20, 10, 10)
	io.Script(gpio.Echo{Delay: echoDelay, Stuck: true})

	samples, err := s.MeasureSamples(context.Background(), 3, 0)
	assert.Nil(t, samples, "no partial batch may be returned")

	var te *EchoTimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, PhaseFall, te.Phase)
	assert.Equal(t, 2, te.Sample)
	assert.Equal(t, 0, io.Held())
}

func TestMeasureRaw_Deadline(t *testing.T) {
	io := newMock()
	s := newSensor(t, io, metricConfig(t), WithTimeout(Timeout{Deadline: 50 * time.Microsecond}))
	io.Script(gpio.Echo{Missing: true})

	_, err := s.MeasureRaw(context.Background(), 1, 0)

	var te *EchoTimeoutError
	require.True(t, errors.As(err, &te))
	assert.Greater(t, te.Elapsed, 50*time.Microsecond)
	assert.Less(t, te.Polls, DefaultMaxPolls)
}

func TestMeasureRaw_PollBoundIsExclusive(t *testing.T) {
	// An echo rising after 999 low reads still succeeds; the 1000th low
	// read times out.
	io := newMock()
	s := newSensor(t, io, metricConfig(t), WithTimeout(DefaultTimeout()))
	io.Script(
		gpio.Echo{Delay: 998*time.Microsecond + 500*time.Nanosecond, Width: 300 * time.Microsecond},
		gpio.Echo{Delay: 999*time.Microsecond + 500*time.Nanosecond, Width: 300 * time.Microsecond},
	)

	_, err := s.MeasureRaw(context.Background(), 1, 0)
	require.NoError(t, err)

	_, err = s.MeasureRaw(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrEchoTimeout)
}

func TestMeasureRaw_Canceled(t *testing.T) {
	io := newMock()
	s := newSensor(t, io, metricConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.MeasureRaw(ctx, 3, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, io.Pulses())
	assert.Equal(t, 0, io.Held())
}

func TestMeasureRaw_PinsBusy(t *testing.T) {
	io := newMock()
	s := newSensor(t, io, metricConfig(t))

	h, err := io.Acquire(gpio.PinSpec{ID: echoPin, Direction: gpio.Input})
	require.NoError(t, err)
	defer h.Release()

	_, err = s.MeasureRaw(context.Background(), 1, 0)
	assert.ErrorIs(t, err, gpio.ErrPinBusy)
	assert.Equal(t, 1, io.Held())
}

type releaseFailIO struct {
	*gpio.Mock
}

type releaseFailHandle struct {
	gpio.Handle
}

func (h releaseFailHandle) Release() error {
	_ = h.Handle.Release()
	return errors.New("unexport failed")
}

func (f releaseFailIO) Acquire(pins ...gpio.PinSpec) (gpio.Handle, error) {
	h, err := f.Mock.Acquire(pins...)
	if err != nil {
		return nil, err
	}
	return releaseFailHandle{h}, nil
}

func TestMeasureRaw_ReleaseError(t *testing.T) {
	io := newMock()
	s := New(releaseFailIO{io}, metricConfig(t), WithClock(io))
	script(io, 20, 10)

	raw, err := s.MeasureRaw(context.Background(), 1, 0)
	assert.ErrorContains(t, err, "failed to release pins")
	assert.Equal(t, float64(0), raw)
}

func TestMeasureRaw_TimeoutWinsOverReleaseError(t *testing.T) {
	io := newMock()
	s := New(releaseFailIO{io}, metricConfig(t), WithClock(io))
	io.Script(gpio.Echo{Missing: true})

	_, err := s.MeasureRaw(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrEchoTimeout)
}

// remoteIO hands out handles that time the echo themselves, the way the
// serial bridge does.
type remoteIO struct {
	mock *gpio.Mock

	mu     sync.Mutex
	echoes []time.Duration
	err    error
	pulses []remotePulse
}

type remotePulse struct {
	trig, echo     int
	width, timeout time.Duration
}

type pulserHandle struct {
	gpio.Handle
	io *remoteIO
}

func (r *remoteIO) Acquire(pins ...gpio.PinSpec) (gpio.Handle, error) {
	h, err := r.mock.Acquire(pins...)
	if err != nil {
		return nil, err
	}
	return pulserHandle{Handle: h, io: r}, nil
}

func (h pulserHandle) Pulse(trig, echo int, width, timeout time.Duration) (time.Time, time.Time, error) {
	r := h.io
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pulses = append(r.pulses, remotePulse{trig, echo, width, timeout})
	if r.err != nil {
		return time.Time{}, time.Time{}, r.err
	}
	rise := time.UnixMicro(1000)
	high := r.echoes[0]
	r.echoes = r.echoes[1:]
	return rise, rise.Add(high), nil
}

func TestMeasureRaw_PulsingHandle(t *testing.T) {
	io := &remoteIO{mock: newMock()}
	speed := SpeedOfSound(20)
	for _, cm := range []float64{10, 12, 11} {
		io.echoes = append(io.echoes, gpio.EchoFor(cm, speed, 0).Width)
	}
	s := New(io, metricConfig(t), WithClock(io.mock), WithTimeout(DefaultTimeout()))

	samples, err := s.MeasureSamples(context.Background(), 3, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.InDelta(t, 10, samples[0], 1e-6)
	assert.InDelta(t, 12, samples[1], 1e-6)
	assert.InDelta(t, 11, samples[2], 1e-6)

	// Without a deadline each edge wait is still bounded.
	want := remotePulse{trigPin, echoPin, TriggerPulse, config.DefaultEchoDeadline}
	assert.Equal(t, []remotePulse{want, want, want}, io.pulses)
	assert.Equal(t, 0, io.mock.Pulses(), "the echo is not polled")
	assert.Equal(t, 0, io.mock.Held())
}

func TestMeasureRaw_PulsingHandleUsesDeadline(t *testing.T) {
	io := &remoteIO{mock: newMock(), echoes: []time.Duration{time.Millisecond}}
	s := New(io, metricConfig(t), WithClock(io.mock), WithTimeout(Timeout{Deadline: 25 * time.Millisecond}))

	_, err := s.MeasureRaw(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, io.pulses, 1)
	assert.Equal(t, 25*time.Millisecond, io.pulses[0].timeout)
}

func TestMeasureRaw_PulsingHandleTimeout(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		phase Phase
	}{
		{name: "no rise", err: fmt.Errorf("bridge rejected: %w", gpio.ErrEchoRise), phase: PhaseRise},
		{name: "no fall", err: fmt.Errorf("bridge rejected: %w", gpio.ErrEchoFall), phase: PhaseFall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			io := &remoteIO{mock: newMock(), err: tt.err}
			s := New(io, metricConfig(t), WithClock(io.mock))

			_, err := s.MeasureRaw(context.Background(), 3, 0)
			require.ErrorIs(t, err, ErrEchoTimeout)
			var te *EchoTimeoutError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.phase, te.Phase)
			assert.Equal(t, 0, te.Sample)
			assert.Equal(t, 0, io.mock.Held())
		})
	}
}

func TestMeasureRaw_PulsingHandleError(t *testing.T) {
	io := &remoteIO{mock: newMock(), err: gpio.ErrNoReply}
	s := New(io, metricConfig(t), WithClock(io.mock))

	_, err := s.MeasureRaw(context.Background(), 1, 0)
	assert.ErrorIs(t, err, gpio.ErrNoReply)
	assert.NotErrorIs(t, err, ErrEchoTimeout)
}

func TestMeasureDistanceAndDepth(t *testing.T) {
	// The 1us mock measures 40cm as 40.00-40.02cm, so every expected value
	// is kept clear of a rounding boundary.
	tests := []struct {
		name      string
		unit      Unit
		temp      float64
		celsius   float64
		hole      float64
		wantDist  float64
		wantDepth float64
	}{
		{
			name:      "metric",
			unit:      Metric,
			temp:      20,
			celsius:   20,
			hole:      100,
			wantDist:  40.0,
			wantDepth: 60.0,
		},
		{
			name:    "imperial",
			unit:    Imperial,
			temp:    68,
			celsius: 20.0016,
			hole:    40,
			// 40 * 0.394 = 15.76
			wantDist:  15.8,
			wantDepth: 24.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewConfig(trigPin, echoPin, tt.temp, tt.unit, 1)
			require.NoError(t, err)

			io := newMock()
			s := newSensor(t, io, cfg, WithSampling(3, time.Millisecond))

			script(io, tt.celsius, 40, 40, 40)
			dist, err := s.MeasureDistance(context.Background())
			require.NoError(t, err)
			assert.InDelta(t, tt.wantDist, dist, 1e-9)

			script(io, tt.celsius, 40, 40, 40)
			depth, err := s.MeasureDepth(context.Background(), tt.hole)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantDepth, depth, 1e-9)
		})
	}
}

func TestDistanceAndDepthConversion(t *testing.T) {
	tests := []struct {
		name      string
		unit      Unit
		raw       float64
		hole      float64
		wantDist  float64
		wantDepth float64
	}{
		{name: "metric", unit: Metric, raw: 42.0096, hole: 100, wantDist: 42.0, wantDepth: 58.0},
		// 42.0096 * 0.394 = 16.5518
		{name: "imperial", unit: Imperial, raw: 42.0096, hole: 40, wantDist: 16.6, wantDepth: 23.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewConfig(trigPin, echoPin, 20, tt.unit, 1)
			require.NoError(t, err)
			s := New(newMock(), cfg)

			assert.InDelta(t, tt.wantDist, s.Distance(tt.raw), 1e-9)
			assert.InDelta(t, tt.wantDepth, s.Depth(tt.raw, tt.hole), 1e-9)
		})
	}
}

func TestFromAppConfig_DefaultsOnFastBackend(t *testing.T) {
	// A memory mapped backend reads a pin in ~100ns, so a poll count bound
	// would expire long before the echo rises.
	cfg := config.Default()
	cfg.Sampling.SampleSize = 3
	mockCfg := cfg.Mock
	mockCfg.PollStep = 100 * time.Nanosecond
	mockCfg.EchoDelay = 450 * time.Microsecond
	mockCfg.Jitter = 0
	mockCfg.SpeedOfSound = SpeedOfSound(cfg.Sensor.Temperature)
	io := gpio.NewMock(&mockCfg)

	s, err := FromAppConfig(io, cfg, WithClock(io))
	require.NoError(t, err)

	dist, err := s.MeasureDistance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50.0, dist, 1e-9)

	// Nothing in range: the deadline still ends the wait.
	io.Script(gpio.Echo{Missing: true})
	_, err = s.MeasureDistance(context.Background())
	var te *EchoTimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, PhaseRise, te.Phase)
	assert.Greater(t, te.Elapsed, config.DefaultEchoDeadline)
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{name: "empty", samples: nil, want: 0},
		{name: "single", samples: []float64{3}, want: 3},
		{name: "odd", samples: []float64{10.2, 9.8, 10.5, 10.1, 9.9}, want: 10.1},
		{name: "even takes upper middle", samples: []float64{5, 6, 7, 8}, want: 7},
		{name: "duplicates", samples: []float64{2, 2, 1, 2}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]float64(nil), tt.samples...)
			assert.Equal(t, tt.want, Median(in))
			assert.Equal(t, tt.samples, in, "input must not be reordered")
		})
	}
}
