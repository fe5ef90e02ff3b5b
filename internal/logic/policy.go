package logic

// Policy holds the debounce and attempt counters of one open episode.
// The zero value is a fresh episode.
type Policy struct {
	fakeClose     int
	closeAttempts int
	gaveUp        bool
}

// ValveClosed ends the episode: both counters return to zero.
func (p *Policy) ValveClosed() {
	p.fakeClose = 0
	p.closeAttempts = 0
	p.gaveUp = false
}

// TriggerCleared resets the debounce. The attempt count is kept until the
// valve is sensed closed.
func (p *Policy) TriggerCleared() {
	p.fakeClose = 0
}

// TriggerAsserted records one asserted observation and returns what to do.
//
// The first DebounceObservations consecutive observations only settle. Each
// later observation pulses while fewer than MaxCloseAttempts pulses were
// issued in this episode. After that nothing is done; the first such
// observation returns ActionGiveUp, the rest ActionNone.
func (p *Policy) TriggerAsserted() Action {
	if p.fakeClose < DebounceObservations {
		p.fakeClose++
		return ActionSettle
	}
	if p.closeAttempts < MaxCloseAttempts {
		p.closeAttempts++
		return ActionPulse
	}
	if !p.gaveUp {
		p.gaveUp = true
		return ActionGiveUp
	}
	return ActionNone
}

// Armed reports whether the trigger has been observed asserted since it was last clear.
func (p *Policy) Armed() bool {
	return p.fakeClose > 0
}

// Exhausted reports whether the attempt budget of this episode is spent.
func (p *Policy) Exhausted() bool {
	return p.closeAttempts >= MaxCloseAttempts
}

// Counters returns the current counter values.
func (p *Policy) Counters() Counters {
	return Counters{
		FakeClose:     p.fakeClose,
		CloseAttempts: p.closeAttempts,
	}
}
