// Package config assembles the supervisor's runtime settings from defaults,
// an optional YAML file and command-line flags, in that order of precedence.
//
// Loop timings and the retry policy are fixed and not configurable.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/valve-supervisor/internal/gpio"
)

// Config holds everything a deployment may change.
type Config struct {
	Backend   string        `yaml:"backend"`
	Chip      string        `yaml:"chip"`
	Pins      Pins          `yaml:"pins"`
	Broker    string        `yaml:"broker"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	HTTPAddr  string        `yaml:"http"`
	SkipBlink bool          `yaml:"skip_startup_blink"`

	// Command-line only.
	Path       string `yaml:"-"`
	PrintState bool   `yaml:"-"`
}

// Pins holds line offsets (BCM numbering) per logical signal.
type Pins struct {
	Break     int `yaml:"break"`
	Valve     int `yaml:"valve"`
	Trigger   int `yaml:"trigger"`
	Indicator int `yaml:"indicator"`
	Close     int `yaml:"close"`
}

// Defaults
const (
	DefaultBroker    = "tcp://192.168.1.200:1883"
	DefaultHeartbeat = 15 * time.Minute
	DefaultHTTPAddr  = ":80"
)

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Backend: gpio.BackendCdev,
		Chip:    gpio.DefaultChip,
		Pins: Pins{
			Break:     gpio.DefaultPinBreak,
			Valve:     gpio.DefaultPinValve,
			Trigger:   gpio.DefaultPinTrigger,
			Indicator: gpio.DefaultPinIndicator,
			Close:     gpio.DefaultPinClosePulse,
		},
		Broker:    DefaultBroker,
		Heartbeat: DefaultHeartbeat,
		HTTPAddr:  DefaultHTTPAddr,
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.readFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	cfg.Path = path
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// FromArgs builds the configuration for the command named name. A -config
// file is applied over the defaults first, then every flag given explicitly
// in args wins over the file.
func FromArgs(name string, args []string, output io.Writer) (*Config, error) {
	// First pass only locates the file; errors surface in the second pass.
	first := Default()
	pfs := flag.NewFlagSet(name, flag.ContinueOnError)
	pfs.SetOutput(io.Discard)
	first.bind(pfs)
	_ = pfs.Parse(args)

	cfg := Default()
	if first.Path != "" {
		if err := cfg.readFile(first.Path); err != nil {
			return nil, err
		}
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	cfg.bind(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// bind registers the command-line flags onto c's fields, using the current
// field values as defaults.
func (c *Config) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.Path, "config", c.Path, "YAML configuration file (optional)")
	fs.StringVar(&c.Backend, "backend", c.Backend, `GPIO backend ("cdev" or "periph")`)
	fs.StringVar(&c.Chip, "chip", c.Chip, "GPIO chip for the cdev backend")
	fs.IntVar(&c.Pins.Break, "pin-break", c.Pins.Break, "BCM pin for the wiring break sense line")
	fs.IntVar(&c.Pins.Valve, "pin-valve", c.Pins.Valve, "BCM pin for the valve position line")
	fs.IntVar(&c.Pins.Trigger, "pin-trigger", c.Pins.Trigger, "BCM pin for the close trigger line")
	fs.IntVar(&c.Pins.Indicator, "pin-indicator", c.Pins.Indicator, "BCM pin for the red/green indicator")
	fs.IntVar(&c.Pins.Close, "pin-close", c.Pins.Close, "BCM pin for the close pulse output")
	fs.StringVar(&c.Broker, "broker", c.Broker, "MQTT broker address (empty to disable)")
	fs.DurationVar(&c.Heartbeat, "heartbeat", c.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "HTTP status address (empty to disable)")
	fs.BoolVar(&c.PrintState, "print-state", c.PrintState, "Print current input levels and exit")
	fs.BoolVar(&c.SkipBlink, "skip-startup-blink", c.SkipBlink, "Skip the startup indicator sequence")
}

// PinMap converts the configured offsets to a gpio.PinMap.
func (c *Config) PinMap() gpio.PinMap {
	return gpio.PinMap{
		gpio.Break:      c.Pins.Break,
		gpio.Valve:      c.Pins.Valve,
		gpio.Trigger:    c.Pins.Trigger,
		gpio.Indicator:  c.Pins.Indicator,
		gpio.ClosePulse: c.Pins.Close,
	}
}

// PinNames returns the pin offsets keyed by signal name, for status output.
func (c *Config) PinNames() map[string]int {
	out := make(map[string]int, 5)
	for pin, line := range c.PinMap() {
		out[pin.String()] = line
	}
	return out
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	switch c.Backend {
	case gpio.BackendCdev:
		if c.Chip == "" {
			errs = append(errs, "chip is required for the cdev backend")
		}
	case gpio.BackendPeriph:
	default:
		errs = append(errs, fmt.Sprintf("backend must be %q or %q, got %q", gpio.BackendCdev, gpio.BackendPeriph, c.Backend))
	}

	if err := c.PinMap().Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Heartbeat < 0 {
		errs = append(errs, "heartbeat must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
