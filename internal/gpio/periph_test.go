//go:build linux

package gpio

import (
	"fmt"
	"strings"
	"testing"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// haltPin records whether it was halted.
type haltPin struct {
	*gpiotest.Pin
	halted bool
}

func (p *haltPin) Halt() error {
	p.halted = true
	return nil
}

// testPins returns fake lines for every "GPIOn" name in m except missing.
func testPins(m PinMap, missing Pin) (map[string]*haltPin, func(string) pgpio.PinIO) {
	lines := make(map[string]*haltPin)
	for lp, offset := range m {
		if lp == missing {
			continue
		}
		name := fmt.Sprintf("GPIO%d", offset)
		lines[name] = &haltPin{Pin: &gpiotest.Pin{N: name, Num: offset}}
	}
	return lines, func(name string) pgpio.PinIO {
		if l, ok := lines[name]; ok {
			return l
		}
		return nil
	}
}

func TestConfigurePeriph(t *testing.T) {
	lines, byName := testPins(DefaultPinMap(), -1)

	p, err := configurePeriph(DefaultPinMap(), byName)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	closeLine := lines[fmt.Sprintf("GPIO%d", DefaultPinClosePulse)]
	if closeLine.L != pgpio.High {
		t.Error("close line should start high")
	}
	breakLine := lines[fmt.Sprintf("GPIO%d", DefaultPinBreak)]
	if breakLine.P != pgpio.PullUp {
		t.Errorf("break line pull: got %v, want PullUp", breakLine.P)
	}

	if err := p.Write(ClosePulse, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if closeLine.L != pgpio.Low {
		t.Error("close line should follow writes")
	}
	if _, err := p.Read(Indicator); err == nil {
		t.Error("expected error reading an output")
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if closeLine.L != pgpio.High || !closeLine.halted {
		t.Error("close should leave the close line high and halted")
	}
}

func TestConfigurePeriphReleasesOnFailure(t *testing.T) {
	lines, byName := testPins(DefaultPinMap(), ClosePulse)

	_, err := configurePeriph(DefaultPinMap(), byName)
	if err == nil || !strings.Contains(err.Error(), "no such line") {
		t.Fatalf("expected missing line error, got %v", err)
	}
	for name, l := range lines {
		if !l.halted {
			t.Errorf("%s should be released after a failed setup", name)
		}
	}
}
