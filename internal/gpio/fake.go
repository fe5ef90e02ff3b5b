package gpio

import (
	"fmt"
	"time"
)

// FakeIO is a test double that returns scripted input levels and records writes.
type FakeIO struct {
	// Samples contains scripted levels per input pin.
	// Each Read of a pin consumes its next sample; once exhausted, the last
	// sample is returned repeatedly.
	Samples map[Pin][]bool

	// Writes records every output write in order.
	Writes []Write

	// Reads counts Read calls per pin.
	Reads map[Pin]int

	// Now, if set, timestamps recorded writes.
	Now func() time.Time

	// OnRead, if set, is called after each successful Read with the pin and
	// the level returned.
	OnRead func(pin Pin, level bool)

	// ReadError, if set, will be returned by Read().
	ReadError error

	// WriteError, if set, will be returned by Write().
	WriteError error

	// Closed tracks if Close was called
	Closed bool

	index  map[Pin]int
	levels map[Pin]bool
}

// Write is a single recorded output write.
type Write struct {
	Pin   Pin
	Level bool
	At    time.Time
}

// NewFakeIO creates a FakeIO with the given per-pin samples.
func NewFakeIO(samples map[Pin][]bool) *FakeIO {
	if samples == nil {
		samples = make(map[Pin][]bool)
	}
	return &FakeIO{
		Samples: samples,
		Reads:   make(map[Pin]int),
		index:   make(map[Pin]int),
		levels:  make(map[Pin]bool),
	}
}

// Read returns the next scripted sample for pin.
func (f *FakeIO) Read(pin Pin) (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if pin.IsOutput() {
		return false, fmt.Errorf("read %s: %w", pin, ErrNotInput)
	}

	samples := f.Samples[pin]
	if len(samples) == 0 {
		return false, fmt.Errorf("no samples configured for %s", pin)
	}

	i := f.index[pin]
	level := samples[i]
	if i < len(samples)-1 {
		f.index[pin] = i + 1
	}
	f.Reads[pin]++

	if f.OnRead != nil {
		f.OnRead(pin, level)
	}
	return level, nil
}

// Set replaces the samples for pin with a single constant level.
func (f *FakeIO) Set(pin Pin, level bool) {
	f.Samples[pin] = []bool{level}
	f.index[pin] = 0
}

// Write records the output write.
func (f *FakeIO) Write(pin Pin, level bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	if !pin.IsOutput() {
		return fmt.Errorf("write %s: %w", pin, ErrNotOutput)
	}

	w := Write{Pin: pin, Level: level}
	if f.Now != nil {
		w.At = f.Now()
	}
	f.Writes = append(f.Writes, w)
	f.levels[pin] = level
	return nil
}

// Level returns the last level written to pin and whether it was ever written.
func (f *FakeIO) Level(pin Pin) (level, written bool) {
	level, written = f.levels[pin]
	return level, written
}

// WritesTo returns the recorded writes for a single pin.
func (f *FakeIO) WritesTo(pin Pin) []Write {
	var out []Write
	for _, w := range f.Writes {
		if w.Pin == pin {
			out = append(out, w)
		}
	}
	return out
}

// Close marks the IO as closed.
func (f *FakeIO) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds all samples and clears recorded writes and reads.
func (f *FakeIO) Reset() {
	f.Writes = nil
	f.Reads = make(map[Pin]int)
	f.index = make(map[Pin]int)
	f.levels = make(map[Pin]bool)
	f.Closed = false
}
