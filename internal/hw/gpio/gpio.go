package gpio

import (
	"fmt"

	"github.com/M3larry/OpenAstroTracker-Firmware/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// MockDriver is a test implementation that logs actions and remembers
// the last level written to each pin. The zero value is ready to use.
type MockDriver struct {
	levels map[int]Level
}

// NewDriver creates a GPIO driver for the named backend:
// "mock" for development on PC, "rpio" for /dev/gpiomem via go-rpio,
// "cdev" for the Linux GPIO character device on the given chip.
func NewDriver(backend, chip string) (Driver, error) {
	switch backend {
	case "mock":
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	case "rpio":
		return NewRPiRealDriver()
	case "cdev":
		return NewCdevDriver(chip), nil
	default:
		return nil, fmt.Errorf("unknown gpio backend: %q", backend)
	}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	if m.levels == nil {
		m.levels = make(map[int]Level)
	}
	m.levels[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	return m.levels[pin], nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
