//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "valve-supervisor"

// CdevIO drives the supervisor lines through the Linux GPIO character device.
type CdevIO struct {
	chip  *gpiocdev.Chip
	lines map[Pin]*gpiocdev.Line
}

// NewCdevIO requests all supervisor lines on the given chip.
// Inputs are requested with pull-up so an unconnected sense line reads as
// intact/open/normal. Outputs are requested high: green indicator and an
// inactive close line, so no pulse can be seen at boot.
func NewCdevIO(chipName string, pins PinMap) (*CdevIO, error) {
	if err := pins.Validate(); err != nil {
		return nil, fmt.Errorf("pin map: %w", err)
	}

	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	c := &CdevIO{chip: chip, lines: make(map[Pin]*gpiocdev.Line, len(pins))}

	for _, p := range Inputs {
		line, err := chip.RequestLine(pins[p], gpiocdev.AsInput, gpiocdev.WithPullUp)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", p, pins[p], err)
		}
		c.lines[p] = line
	}
	for _, p := range Outputs {
		line, err := chip.RequestLine(pins[p], gpiocdev.AsOutput(1))
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", p, pins[p], err)
		}
		c.lines[p] = line
	}

	return c, nil
}

// Read returns the raw level of an input line.
func (c *CdevIO) Read(pin Pin) (bool, error) {
	line, ok := c.lines[pin]
	if !ok || pin.IsOutput() {
		return false, fmt.Errorf("read %s: %w", pin, ErrNotInput)
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read %s pin: %w", pin, err)
	}
	return v != 0, nil
}

// Write drives an output line.
func (c *CdevIO) Write(pin Pin, level bool) error {
	line, ok := c.lines[pin]
	if !ok || !pin.IsOutput() {
		return fmt.Errorf("write %s: %w", pin, ErrNotOutput)
	}
	v := 0
	if level {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("write %s pin: %w", pin, err)
	}
	return nil
}

// Close releases GPIO resources.
// The close line is driven high (inactive) before release so the actuator is
// left in its safe state. Input lines are reconfigured to input with
// pull-down, matching Pi boot defaults.
func (c *CdevIO) Close() error {
	var errs []error

	if line := c.lines[ClosePulse]; line != nil {
		if err := line.SetValue(1); err != nil {
			errs = append(errs, fmt.Errorf("release close pin: %w", err))
		}
	}
	for _, p := range Inputs {
		line := c.lines[p]
		if line == nil {
			continue
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", p, err))
		}
	}
	for p, line := range c.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", p, err))
		}
	}
	c.lines = nil
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		c.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
