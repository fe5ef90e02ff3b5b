// Package timing provides the blocking delay primitive used by the supervisor loop.
package timing

import "time"

// Clock tells time and blocks for fixed durations.
type Clock interface {
	Now() time.Time

	// Delay blocks for at least d. It never returns early.
	Delay(d time.Duration)
}

// Busy is a Clock whose Delay spins on the monotonic clock instead of
// sleeping, so the calling goroutine never parks for the duration.
type Busy struct{}

// Now returns the current wall time.
func (Busy) Now() time.Time {
	return time.Now()
}

// Delay spins until at least d has elapsed.
func (Busy) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	start := time.Now()
	for time.Since(start) < d {
	}
}

// Virtual is a Clock for tests. Delay advances virtual time without blocking
// and records every requested duration.
type Virtual struct {
	now    time.Time
	Delays []time.Duration
}

// NewVirtual creates a Virtual clock starting at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

// Now returns the current virtual time.
func (v *Virtual) Now() time.Time {
	return v.now
}

// Delay advances virtual time by d.
func (v *Virtual) Delay(d time.Duration) {
	v.Delays = append(v.Delays, d)
	v.now = v.now.Add(d)
}

// Elapsed returns the sum of all delays so far.
func (v *Virtual) Elapsed() time.Duration {
	var total time.Duration
	for _, d := range v.Delays {
		total += d
	}
	return total
}
