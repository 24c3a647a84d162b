package hcsr04

import (
	"context"
	"time"
)

// Clock is the time source of a measurement.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// WallClock is the system clock.
var WallClock Clock = wallClock{}

// SleepContext sleeps for d or until ctx is done.
func (wallClock) SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type contextSleeper interface {
	SleepContext(ctx context.Context, d time.Duration) error
}
