package gpio

import (
	"fmt"

	"github.com/M3larry/OpenAstroTracker-Firmware/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// rpioPin is the part of rpio.Pin the driver uses.
type rpioPin interface {
	Input()
	Output()
	High()
	Low()
	Read() rpio.State
}

// RPiDriver drives BCM pins through the memory-mapped /dev/gpiomem via
// go-rpio. It remembers the mode of every pin it has configured.
type RPiDriver struct {
	pin   func(n int) rpioPin
	unmap func() error
	pins  map[int]rpioPin
	modes map[int]PinMode
}

// NewRPiRealDriver maps GPIO memory and returns a Raspberry Pi driver.
// Requires /dev/gpiomem access or root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	debug.Verbose("GPIO memory mapped successfully")

	return newRPiDriver(func(n int) rpioPin { return rpio.Pin(n) }, rpio.Close), nil
}

func newRPiDriver(pin func(n int) rpioPin, unmap func() error) *RPiDriver {
	return &RPiDriver{
		pin:   pin,
		unmap: unmap,
		pins:  make(map[int]rpioPin),
		modes: make(map[int]PinMode),
	}
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p, ok := r.pins[pin]
	if !ok {
		p = r.pin(pin)
	}
	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	r.pins[pin] = p
	r.modes[pin] = mode
	return nil
}

// WritePin drives an output. A pin not set up yet, or set up as an input,
// is switched to output first.
func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	if _, ok := r.pins[pin]; !ok || r.modes[pin] != Output {
		if err := r.SetupPin(pin, Output); err != nil {
			return err
		}
	}
	if level == High {
		r.pins[pin].High()
	} else {
		r.pins[pin].Low()
	}
	return nil
}

// ReadPin samples a pin. Pins never set up are configured as inputs; an
// output pin reads back its driven level.
func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	p, ok := r.pins[pin]
	if !ok {
		if err := r.SetupPin(pin, Input); err != nil {
			return Low, err
		}
		p = r.pins[pin]
	}
	return Level(p.Read() == rpio.High), nil
}

// Close returns every used pin to input and unmaps GPIO memory.
func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (rpio)")

	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
		delete(r.pins, pin)
		delete(r.modes, pin)
	}
	return r.unmap()
}
