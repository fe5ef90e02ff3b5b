//go:build linux

package gpio

import (
	"fmt"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphIO drives the supervisor lines through periph.io.
// Pins are looked up by their "GPIOn" names, n being the BCM number.
type PeriphIO struct {
	pins map[Pin]pgpio.PinIO
}

// NewPeriphIO initialises the periph host drivers and configures every line.
func NewPeriphIO(pins PinMap) (*PeriphIO, error) {
	if err := pins.Validate(); err != nil {
		return nil, fmt.Errorf("pin map: %w", err)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	return configurePeriph(pins, gpioreg.ByName)
}

// configurePeriph sets up every line found by byName. On failure the lines
// already configured are released again.
func configurePeriph(pins PinMap, byName func(string) pgpio.PinIO) (*PeriphIO, error) {
	p := &PeriphIO{pins: make(map[Pin]pgpio.PinIO, len(pins))}
	for _, lp := range Inputs {
		pin, err := lookup(byName, lp, pins[lp])
		if err != nil {
			p.Close()
			return nil, err
		}
		if err := pin.In(pgpio.PullUp, pgpio.NoEdge); err != nil {
			p.Close()
			return nil, fmt.Errorf("configure %s pin %d: %w", lp, pins[lp], err)
		}
		p.pins[lp] = pin
	}
	for _, lp := range Outputs {
		pin, err := lookup(byName, lp, pins[lp])
		if err != nil {
			p.Close()
			return nil, err
		}
		if err := pin.Out(pgpio.High); err != nil {
			p.Close()
			return nil, fmt.Errorf("configure %s pin %d: %w", lp, pins[lp], err)
		}
		p.pins[lp] = pin
	}
	return p, nil
}

func lookup(byName func(string) pgpio.PinIO, lp Pin, offset int) (pgpio.PinIO, error) {
	name := fmt.Sprintf("GPIO%d", offset)
	pin := byName(name)
	if pin == nil {
		return nil, fmt.Errorf("%s pin: no such line %s", lp, name)
	}
	return pin, nil
}

// Read returns the raw level of an input line.
func (p *PeriphIO) Read(pin Pin) (bool, error) {
	line, ok := p.pins[pin]
	if !ok || pin.IsOutput() {
		return false, fmt.Errorf("read %s: %w", pin, ErrNotInput)
	}
	return line.Read() == pgpio.High, nil
}

// Write drives an output line.
func (p *PeriphIO) Write(pin Pin, level bool) error {
	line, ok := p.pins[pin]
	if !ok || !pin.IsOutput() {
		return fmt.Errorf("write %s: %w", pin, ErrNotOutput)
	}
	if err := line.Out(pgpio.Level(level)); err != nil {
		return fmt.Errorf("write %s pin: %w", pin, err)
	}
	return nil
}

// Close leaves the close line high and releases the pins.
func (p *PeriphIO) Close() error {
	var errs []error
	if line := p.pins[ClosePulse]; line != nil {
		if err := line.Out(pgpio.High); err != nil {
			errs = append(errs, fmt.Errorf("release close pin: %w", err))
		}
	}
	for lp, line := range p.pins {
		if err := line.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt %s pin: %w", lp, err))
		}
	}
	p.pins = nil
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
