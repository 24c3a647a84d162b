package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEchoDeadline bounds each echo wait when no other bound is set. It is
// well above the ~38ms an HC-SR04 holds echo high when nothing is in range.
const DefaultEchoDeadline = 60 * time.Millisecond

// Config represents the application configuration.
type Config struct {
	Sensor   SensorConfig   `yaml:"sensor"`
	Sampling SamplingConfig `yaml:"sampling"`
	Backend  BackendConfig  `yaml:"backend"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Mock     MockConfig     `yaml:"mock"`
}

// SensorConfig describes the wiring and environment of one sensor.
type SensorConfig struct {
	TriggerPin  int     `yaml:"trigger_pin"`
	EchoPin     int     `yaml:"echo_pin"`
	Temperature float64 `yaml:"temperature"` // Fahrenheit when unit is imperial, Celsius otherwise
	Unit        string  `yaml:"unit"`        // metric or imperial
	Precision   int     `yaml:"precision"`   // Decimal digits of derived values
}

// SamplingConfig contains the parameters of one raw measurement.
type SamplingConfig struct {
	SampleSize   int           `yaml:"sample_size"`
	SampleWait   time.Duration `yaml:"sample_wait"`   // Settle time before each trigger pulse
	MaxPolls     int           `yaml:"max_polls"`     // Echo wait bound in reads (0 = off); only meaningful for slow backends
	EchoDeadline time.Duration `yaml:"echo_deadline"` // Echo wait bound in wall time (0 = off)
}

// BackendConfig selects the GPIO driver.
type BackendConfig struct {
	Driver string `yaml:"driver"` // rpio, periph, gpiod, serial or mock
	Chip   string `yaml:"chip"`   // gpiod chip name
	Port   string `yaml:"port"`   // serial bridge port
	Baud   int    `yaml:"baud"`   // serial bridge baud rate
}

// MonitorConfig contains parameters of continuous measurement.
type MonitorConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Window    time.Duration `yaml:"window"`
	HoleDepth float64       `yaml:"hole_depth"` // Sensor to bottom distance in the configured unit (0 = distance mode)
}

// MockConfig contains simulated sensor configuration.
type MockConfig struct {
	Distance     float64       `yaml:"distance"`       // Simulated distance (cm)
	Jitter       float64       `yaml:"jitter"`         // Peak jitter added to each echo (cm)
	EchoDelay    time.Duration `yaml:"echo_delay"`     // Time from trigger to echo rising edge
	PollStep     time.Duration `yaml:"poll_step"`      // Virtual time consumed by one pin read
	SpeedOfSound float64       `yaml:"speed_of_sound"` // m/s used to turn distance into echo width
	Seed         int64         `yaml:"seed"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Sensor: SensorConfig{
			TriggerPin:  23,
			EchoPin:     24,
			Temperature: 20,
			Unit:        "metric",
			Precision:   1,
		},
		Sampling: SamplingConfig{
			SampleSize:   11,
			SampleWait:   100 * time.Millisecond,
			MaxPolls:     0,
			EchoDeadline: DefaultEchoDeadline,
		},
		Backend: BackendConfig{
			Driver: "rpio",
			Chip:   "gpiochip0",
			Port:   "/dev/ttyACM0",
			Baud:   115200,
		},
		Monitor: MonitorConfig{
			Interval:  time.Second,
			Window:    time.Minute,
			HoleDepth: 0,
		},
		Mock: MockConfig{
			Distance:     50,
			Jitter:       0.5,
			EchoDelay:    450 * time.Microsecond,
			PollStep:     10 * time.Microsecond,
			SpeedOfSound: 343.21, // 20 C
			Seed:         1,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate reports configuration values that can never produce a measurement.
// The unit itself is validated by the sensor when the sensor config is built.
func (c *Config) Validate() error {
	if c.Sensor.Precision < 0 {
		return fmt.Errorf("invalid precision %d: must be >= 0", c.Sensor.Precision)
	}
	if c.Sampling.SampleSize <= 0 {
		return fmt.Errorf("invalid sample_size %d: must be > 0", c.Sampling.SampleSize)
	}
	if c.Sampling.SampleWait < 0 {
		return fmt.Errorf("invalid sample_wait %s: must be >= 0", c.Sampling.SampleWait)
	}
	if c.Sampling.MaxPolls < 0 {
		return fmt.Errorf("invalid max_polls %d: must be >= 0", c.Sampling.MaxPolls)
	}
	if c.Sampling.EchoDeadline < 0 {
		return fmt.Errorf("invalid echo_deadline %s: must be >= 0", c.Sampling.EchoDeadline)
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Sensor.Unit == "" {
		c.Sensor.Unit = def.Sensor.Unit
	}

	if c.Sampling.SampleSize == 0 {
		c.Sampling.SampleSize = def.Sampling.SampleSize
	}
	// An echo wait must always be bounded
	if c.Sampling.MaxPolls == 0 && c.Sampling.EchoDeadline == 0 {
		c.Sampling.EchoDeadline = DefaultEchoDeadline
	}

	if c.Backend.Driver == "" {
		c.Backend.Driver = def.Backend.Driver
	}
	if c.Backend.Chip == "" {
		c.Backend.Chip = def.Backend.Chip
	}
	if c.Backend.Port == "" {
		c.Backend.Port = def.Backend.Port
	}
	if c.Backend.Baud == 0 {
		c.Backend.Baud = def.Backend.Baud
	}

	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = def.Monitor.Interval
	}
	if c.Monitor.Window == 0 {
		c.Monitor.Window = def.Monitor.Window
	}

	if c.Mock.PollStep == 0 {
		c.Mock.PollStep = def.Mock.PollStep
	}
	if c.Mock.SpeedOfSound == 0 {
		c.Mock.SpeedOfSound = def.Mock.SpeedOfSound
	}
	if c.Mock.EchoDelay == 0 {
		c.Mock.EchoDelay = def.Mock.EchoDelay
	}
}
