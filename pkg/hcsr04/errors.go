package hcsr04

import (
	"errors"
	"fmt"
	"time"
)

// error definitions
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrInvalidUnit       = Error("wrong unit type, unit must be imperial or metric")
	ErrInvalidPrecision  = Error("precision must not be negative")
	ErrInvalidSampleSize = Error("sample size must be positive")
	ErrInvalidSampleWait = Error("sample wait must not be negative")
	ErrEchoTimeout       = Error("echo pulse was not received")
)

// IsConfigurationError reports whether err was caused by invalid sensor or
// sampling parameters rather than by the hardware.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidUnit) ||
		errors.Is(err, ErrInvalidPrecision) ||
		errors.Is(err, ErrInvalidSampleSize) ||
		errors.Is(err, ErrInvalidSampleWait)
}

// Phase names the part of the echo pulse that was being waited for.
type Phase int

const (
	// PhaseRise waits for the echo pin to go high after the trigger pulse.
	PhaseRise Phase = iota
	// PhaseFall waits for the echo pin to return low.
	PhaseFall
)

func (p Phase) String() string {
	if p == PhaseRise {
		return "rising edge"
	}
	return "falling edge"
}

// EchoTimeoutError is returned when the echo pin does not change level within
// the configured bound. It matches ErrEchoTimeout with errors.Is.
type EchoTimeoutError struct {
	Phase   Phase
	Sample  int           // Zero based index of the failed sample
	Polls   int           // Reads performed while waiting
	Elapsed time.Duration // Wall time spent waiting
}

func (e *EchoTimeoutError) Error() string {
	return fmt.Sprintf("%s: no %s on sample %d after %d polls (%s)",
		ErrEchoTimeout, e.Phase, e.Sample, e.Polls, e.Elapsed)
}

func (e *EchoTimeoutError) Is(target error) bool {
	return target == ErrEchoTimeout
}
