// Package gpio provides digital I/O over named logical pins with hardware abstraction.
// The real implementations use the Linux GPIO character device (gpiocdev) or periph.io.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
)

// Errors returned by backends for misdirected access.
var (
	ErrNotInput  = errors.New("not an input line")
	ErrNotOutput = errors.New("not an output line")
)

// Pin is a logical signal line. The mapping to physical lines is done by the backend.
type Pin int

const (
	Break      Pin = iota // input: high = valve wiring intact, low = break
	Valve                 // input: high = valve open, low = closed
	Trigger               // input: high = normal, low = close requested
	Indicator             // output: high = green, low = red
	ClosePulse            // output: held high, driven low to close the valve
)

// Inputs lists the sense lines in the order they are evaluated.
var Inputs = []Pin{Break, Valve, Trigger}

// Outputs lists the driven lines.
var Outputs = []Pin{Indicator, ClosePulse}

func (p Pin) String() string {
	switch p {
	case Break:
		return "break"
	case Valve:
		return "valve"
	case Trigger:
		return "trigger"
	case Indicator:
		return "indicator"
	case ClosePulse:
		return "close"
	default:
		return fmt.Sprintf("pin(%d)", int(p))
	}
}

// IsOutput reports whether p is driven by the supervisor.
func (p Pin) IsOutput() bool {
	return p == Indicator || p == ClosePulse
}

// IO reads and drives the supervisor's signal lines.
// Levels are raw: true = high, false = low.
type IO interface {
	// Read returns the level of an input line.
	Read(pin Pin) (bool, error)

	// Write drives an output line.
	Write(pin Pin, level bool) error

	// Close releases GPIO resources.
	Close() error
}

// PinMap maps logical pins to line offsets (BCM numbering on a Raspberry Pi).
type PinMap map[Pin]int

// Default pin assignments (BCM numbering)
const (
	DefaultPinBreak      = 17
	DefaultPinValve      = 27
	DefaultPinTrigger    = 22
	DefaultPinIndicator  = 23
	DefaultPinClosePulse = 24
)

// DefaultChip is the GPIO character device used by the cdev backend.
const DefaultChip = "gpiochip0"

// DefaultPinMap returns the default pin assignments.
func DefaultPinMap() PinMap {
	return PinMap{
		Break:      DefaultPinBreak,
		Valve:      DefaultPinValve,
		Trigger:    DefaultPinTrigger,
		Indicator:  DefaultPinIndicator,
		ClosePulse: DefaultPinClosePulse,
	}
}

// Validate checks that every logical pin is mapped and no line is used twice.
func (m PinMap) Validate() error {
	seen := make(map[int]Pin, len(m))
	for _, p := range append(append([]Pin{}, Inputs...), Outputs...) {
		offset, ok := m[p]
		if !ok {
			return fmt.Errorf("pin %s not mapped", p)
		}
		if offset < 0 {
			return fmt.Errorf("pin %s: invalid line %d", p, offset)
		}
		if other, dup := seen[offset]; dup {
			return fmt.Errorf("line %d assigned to both %s and %s", offset, other, p)
		}
		seen[offset] = p
	}
	return nil
}

// Backend names accepted by Open.
const (
	BackendCdev   = "cdev"
	BackendPeriph = "periph"
)

// Open returns the IO implementation for the named backend.
func Open(backend, chip string, pins PinMap) (IO, error) {
	switch backend {
	case BackendCdev, "":
		c, err := NewCdevIO(chip, pins)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendPeriph:
		p, err := NewPeriphIO(pins)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown gpio backend %q", backend)
	}
}
