package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a configuration file accepted by Load.
const MaxConfigFileBytes = 64 * 1024

// GPIO backends accepted in gpio.backend.
const (
	BackendMock = "mock"
	BackendRPio = "rpio"
	BackendCdev = "cdev"
)

// AxisConfig describes the mechanics and motion limits of the rotation axis.
type AxisConfig struct {
	Name              string  `yaml:"name"`                  // e.g., "ra" or "dec"
	Transmission      float64 `yaml:"transmission"`          // ring circumference / pulley circumference
	MaxSpeedDegPerSec float64 `yaml:"max_speed_deg_per_sec"` // speed used by goto moves
	RampDeg           float64 `yaml:"ramp_deg"`              // deceleration distance before a target. 0 = abrupt stop.
	MinSpeedDegPerSec float64 `yaml:"min_speed_deg_per_sec"` // floor of the deceleration ramp
	MaxStepsPerLoop   int     `yaml:"max_steps_per_loop"`    // bound on steps issued by a single loop call
}

// StepperConfig holds the configuration for a STEP/DIR stepper driver.
type StepperConfig struct {
	StepPin       int  `yaml:"step_pin"`
	DirPin        int  `yaml:"dir_pin"`
	EnablePin     int  `yaml:"enable_pin"` // A4988/TMC ENABLE pin (BCM). 0 = not used. Active LOW.
	StepsPerRev   int  `yaml:"steps_per_rev"`
	Microstepping int  `yaml:"microstepping"`
	PulseWidthUs  int  `yaml:"pulse_width_us"` // STEP high time
	InvertDir     bool `yaml:"invert_dir"`
}

// GPIOConfig selects the GPIO implementation.
type GPIOConfig struct {
	Backend string `yaml:"backend"` // "mock", "rpio" or "cdev"
	Chip    string `yaml:"chip"`    // character device chip name, cdev only
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	Axis     AxisConfig     `yaml:"axis"`
	Stepper  StepperConfig  `yaml:"stepper"`
	GPIO     GPIOConfig     `yaml:"gpio"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath checks that path names a .yaml file directly inside a
// directory called "configs" and does not use ".." elements.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, elem := range strings.Split(filepath.ToSlash(path), "/") {
		if elem == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the validated configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data, applies defaults and validates the result.
// Every validation problem is reported, not only the first one.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Axis.Name == "" {
		c.Axis.Name = "axis"
	}
	if c.Axis.MaxSpeedDegPerSec == 0 {
		c.Axis.MaxSpeedDegPerSec = 2 // reasonable slew speed for a belt-driven ring
	}
	if c.Axis.RampDeg > 0 && c.Axis.MinSpeedDegPerSec == 0 {
		c.Axis.MinSpeedDegPerSec = 0.05
	}
	if c.Axis.MaxStepsPerLoop == 0 {
		c.Axis.MaxStepsPerLoop = 64
	}
	if c.Stepper.StepsPerRev == 0 {
		c.Stepper.StepsPerRev = 200 // 1.8° motor
	}
	if c.Stepper.Microstepping == 0 {
		c.Stepper.Microstepping = 1
	}
	if c.Stepper.PulseWidthUs == 0 {
		c.Stepper.PulseWidthUs = 2
	}
	if c.GPIO.Backend == "" {
		c.GPIO.Backend = BackendMock
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = "gpiochip0"
	}
}

// Validate reports configuration errors. Transmission and step angle
// problems are fatal for the axis, so they are rejected here rather than at
// runtime.
func (c *Config) Validate() error {
	var err error
	if !finite(c.Axis.Transmission) || c.Axis.Transmission <= 0 {
		err = multierr.Append(err, fmt.Errorf("axis.transmission must be > 0, got %g", c.Axis.Transmission))
	}
	if !finite(c.Axis.MaxSpeedDegPerSec) || c.Axis.MaxSpeedDegPerSec <= 0 {
		err = multierr.Append(err, fmt.Errorf("axis.max_speed_deg_per_sec must be > 0, got %g", c.Axis.MaxSpeedDegPerSec))
	}
	if !finite(c.Axis.RampDeg) || c.Axis.RampDeg < 0 {
		err = multierr.Append(err, fmt.Errorf("axis.ramp_deg must be >= 0, got %g", c.Axis.RampDeg))
	}
	if !finite(c.Axis.MinSpeedDegPerSec) || c.Axis.MinSpeedDegPerSec < 0 || c.Axis.MinSpeedDegPerSec > c.Axis.MaxSpeedDegPerSec {
		err = multierr.Append(err, fmt.Errorf("axis.min_speed_deg_per_sec must be between 0 and max_speed_deg_per_sec, got %g", c.Axis.MinSpeedDegPerSec))
	}
	if c.Axis.MaxStepsPerLoop < 1 {
		err = multierr.Append(err, fmt.Errorf("axis.max_steps_per_loop must be >= 1, got %d", c.Axis.MaxStepsPerLoop))
	}

	if c.Stepper.StepPin < 0 || c.Stepper.DirPin < 0 || c.Stepper.EnablePin < 0 {
		err = multierr.Append(err, errors.New("stepper pins must be >= 0"))
	}
	if c.Stepper.StepPin == c.Stepper.DirPin {
		err = multierr.Append(err, fmt.Errorf("stepper.step_pin and stepper.dir_pin must differ, both are %d", c.Stepper.StepPin))
	}
	if c.Stepper.StepsPerRev < 1 {
		err = multierr.Append(err, fmt.Errorf("stepper.steps_per_rev must be >= 1, got %d", c.Stepper.StepsPerRev))
	}
	if c.Stepper.Microstepping < 1 {
		err = multierr.Append(err, fmt.Errorf("stepper.microstepping must be >= 1, got %d", c.Stepper.Microstepping))
	}
	if c.Stepper.PulseWidthUs < 1 {
		err = multierr.Append(err, fmt.Errorf("stepper.pulse_width_us must be >= 1, got %d", c.Stepper.PulseWidthUs))
	}

	switch c.GPIO.Backend {
	case BackendMock, BackendRPio, BackendCdev:
	default:
		err = multierr.Append(err, fmt.Errorf("gpio.backend must be one of %q, %q, %q, got %q",
			BackendMock, BackendRPio, BackendCdev, c.GPIO.Backend))
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		err = multierr.Append(err, fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel))
	}
	return err
}

// PulseWidth returns the STEP pulse high time.
func (c *Config) PulseWidth() time.Duration {
	return time.Duration(c.Stepper.PulseWidthUs) * time.Microsecond
}

// StepAngleDeg returns the motor shaft angle of one (micro)step in degrees.
func (c *Config) StepAngleDeg() float64 {
	return 360.0 / float64(c.Stepper.StepsPerRev*c.Stepper.Microstepping)
}

// MockGPIO reports whether the mock GPIO backend is selected.
func (c *Config) MockGPIO() bool {
	return c.GPIO.Backend == BackendMock
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
