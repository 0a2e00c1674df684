package gpio

import (
	"fmt"

	"github.com/M3larry/OpenAstroTracker-Firmware/internal/debug"
	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

const consumer = "oataxis"

// CdevDriver drives GPIOs through the Linux GPIO character device
// (/dev/gpiochipN). Pin numbers are line offsets on the chip.
type CdevDriver struct {
	chip  string
	lines map[int]*gpiocdev.Line
	modes map[int]PinMode
}

// NewCdevDriver creates a driver for the named chip, e.g. "gpiochip0".
// Lines are requested lazily by SetupPin.
func NewCdevDriver(chip string) *CdevDriver {
	debug.Info("Initializing GPIO character device driver (%s)", chip)
	return &CdevDriver{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
		modes: make(map[int]PinMode),
	}
}

func (c *CdevDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	var opt gpiocdev.LineReqOption
	switch mode {
	case Input:
		opt = gpiocdev.AsInput
	case Output:
		opt = gpiocdev.AsOutput(0)
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	if l, ok := c.lines[pin]; ok {
		if c.modes[pin] == mode {
			return nil
		}
		if err := l.Close(); err != nil {
			return fmt.Errorf("release line %d: %w", pin, err)
		}
		delete(c.lines, pin)
	}

	l, err := gpiocdev.RequestLine(c.chip, pin, opt, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return fmt.Errorf("request line %d on %s: %w", pin, c.chip, err)
	}
	c.lines[pin] = l
	c.modes[pin] = mode
	return nil
}

// WritePin drives an output. Lines not requested yet are requested as outputs.
func (c *CdevDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	if c.modes[pin] != Output || c.lines[pin] == nil {
		if err := c.SetupPin(pin, Output); err != nil {
			return err
		}
	}
	v := 0
	if level == High {
		v = 1
	}
	return c.lines[pin].SetValue(v)
}

func (c *CdevDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	l, ok := c.lines[pin]
	if !ok {
		if err := c.SetupPin(pin, Input); err != nil {
			return Low, err
		}
		l = c.lines[pin]
	}
	v, err := l.Value()
	if err != nil {
		return Low, fmt.Errorf("read line %d: %w", pin, err)
	}
	return Level(v != 0), nil
}

// Close releases every requested line; the kernel returns them to input.
func (c *CdevDriver) Close() error {
	debug.Trace("GPIO Close (cdev)")

	var err error
	for pin, l := range c.lines {
		debug.Verbose("Releasing line %d", pin)
		err = multierr.Append(err, l.Close())
		delete(c.lines, pin)
		delete(c.modes, pin)
	}
	return err
}
