package timing

import (
	"testing"
	"time"
)

func TestBusyDelayMinimumElapsed(t *testing.T) {
	var c Busy
	for _, d := range []time.Duration{time.Millisecond, 5 * time.Millisecond} {
		start := time.Now()
		c.Delay(d)
		if got := time.Since(start); got < d {
			t.Errorf("Delay(%v) returned after %v", d, got)
		}
	}
}

func TestBusyDelayNonPositive(t *testing.T) {
	var c Busy
	start := time.Now()
	c.Delay(0)
	c.Delay(-time.Second)
	if time.Since(start) > 100*time.Millisecond {
		t.Error("non-positive delay should return immediately")
	}
}

func TestVirtualDelay(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	v := NewVirtual(start)

	if !v.Now().Equal(start) {
		t.Errorf("expected %v, got %v", start, v.Now())
	}

	v.Delay(40 * time.Millisecond)
	v.Delay(350 * time.Millisecond)

	if want := start.Add(390 * time.Millisecond); !v.Now().Equal(want) {
		t.Errorf("expected %v, got %v", want, v.Now())
	}
	if len(v.Delays) != 2 {
		t.Fatalf("expected 2 recorded delays, got %d", len(v.Delays))
	}
	if v.Delays[1] != 350*time.Millisecond {
		t.Errorf("expected second delay 350ms, got %v", v.Delays[1])
	}
	if v.Elapsed() != 390*time.Millisecond {
		t.Errorf("expected elapsed 390ms, got %v", v.Elapsed())
	}
}
