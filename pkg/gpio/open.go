package gpio

import (
	"fmt"

	"github.com/itohio/hcsr04/pkg/config"
)

// Drivers lists the backend names accepted by Open.
var Drivers = []string{"rpio", "periph", "gpiod", "serial", "mock"}

// Open creates the backend selected by cfg.Backend.Driver. Backends that hold
// process-wide resources implement Closer.
func Open(cfg *config.Config) (DigitalIO, error) {
	switch cfg.Backend.Driver {
	case "rpio":
		return NewRPIO(), nil
	case "periph":
		return NewPeriph()
	case "gpiod":
		return NewGPIOD(cfg.Backend.Chip)
	case "serial":
		return OpenSerial(cfg.Backend.Port, cfg.Backend.Baud)
	case "mock":
		return NewMock(&cfg.Mock), nil
	default:
		return nil, fmt.Errorf("%q: %w", cfg.Backend.Driver, ErrUnknownDriver)
	}
}

// Close closes io if the backend holds resources.
func Close(io DigitalIO) error {
	if c, ok := io.(Closer); ok {
		return c.Close()
	}
	return nil
}
