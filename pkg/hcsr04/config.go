package hcsr04

import (
	"fmt"
	"math"

	"github.com/itohio/hcsr04/pkg/config"
)

// Unit is the measurement system of temperatures and derived values.
type Unit string

const (
	Metric   Unit = "metric"
	Imperial Unit = "imperial"
)

// ParseUnit returns the Unit named by s.
func ParseUnit(s string) (Unit, error) {
	u := Unit(s)
	if err := u.Validate(); err != nil {
		return "", err
	}
	return u, nil
}

// Validate returns ErrInvalidUnit for anything but metric or imperial.
func (u Unit) Validate() error {
	switch u {
	case Metric, Imperial:
		return nil
	default:
		return fmt.Errorf("%q: %w", string(u), ErrInvalidUnit)
	}
}

// Config describes one sensor. Temperature is in Fahrenheit for the imperial
// unit and in Celsius otherwise. Config is a value and is never modified by
// measurements.
type Config struct {
	TriggerPin  int
	EchoPin     int
	Temperature float64
	Unit        Unit
	Precision   int
}

// NewConfig builds a validated sensor config.
func NewConfig(triggerPin, echoPin int, temperature float64, unit Unit, precision int) (Config, error) {
	c := Config{
		TriggerPin:  triggerPin,
		EchoPin:     echoPin,
		Temperature: temperature,
		Unit:        unit,
		Precision:   precision,
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// FromConfig builds a sensor config from the sensor section of the
// application configuration.
func FromConfig(cfg config.SensorConfig) (Config, error) {
	return NewConfig(cfg.TriggerPin, cfg.EchoPin, cfg.Temperature, Unit(cfg.Unit), cfg.Precision)
}

// Validate checks the unit and precision.
func (c Config) Validate() error {
	if err := c.Unit.Validate(); err != nil {
		return err
	}
	if c.Precision < 0 {
		return fmt.Errorf("%d: %w", c.Precision, ErrInvalidPrecision)
	}
	return nil
}

// Celsius returns the configured temperature in degrees Celsius.
func (c Config) Celsius() (float64, error) {
	switch c.Unit {
	case Imperial:
		return FahrenheitToCelsius(c.Temperature), nil
	case Metric:
		return c.Temperature, nil
	default:
		return 0, c.Unit.Validate()
	}
}

// SpeedOfSound returns the temperature corrected speed of sound, m/s.
func (c Config) SpeedOfSound() (float64, error) {
	celsius, err := c.Celsius()
	if err != nil {
		return 0, err
	}
	return SpeedOfSound(celsius), nil
}

// FahrenheitToCelsius uses the 0.5556 factor of the reference sensor tables.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 0.5556
}

// SpeedOfSound returns the speed of sound in dry air, m/s, at the given
// temperature in Celsius.
func SpeedOfSound(celsius float64) float64 {
	return 331.3 * math.Sqrt(1+celsius/273.15)
}
