// Package logic contains the pure decision policy of the valve supervisor.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Fixed timings of the supervisor loop.
const (
	FastBlinkPeriod    = 16 * time.Millisecond  // indicator half-period while a break is present
	DebounceSettle     = 40 * time.Millisecond  // wait after each unconfirmed trigger observation
	StartupBlinkPeriod = 500 * time.Millisecond // indicator half-period during boot
	PulseAssert        = 350 * time.Millisecond // close line held low
	PulseRecovery      = 650 * time.Millisecond // close line held high after a pulse

	StartupBlinks = 10
)

// Thresholds
const (
	// DebounceObservations is the number of asserted observations that only
	// arm the debounce. The next consecutive one may pulse.
	DebounceObservations = 2

	// MaxCloseAttempts is the number of pulses allowed per open episode.
	// The cap is a fixed policy: once reached there is no retry or backoff
	// until the valve is sensed closed.
	MaxCloseAttempts = 4
)

// Color is the indicator color.
type Color string

const (
	Green Color = "GREEN"
	Red   Color = "RED"
)

// Level returns the indicator line level for c: green = high, red = low.
func (c Color) Level() bool {
	return c == Green
}

// ColorOf returns the color shown for a given indicator line level.
func ColorOf(level bool) Color {
	if level {
		return Green
	}
	return Red
}

// Action is what the supervisor must do after a trigger observation.
type Action int

const (
	ActionNone   Action = iota // nothing; attempts exhausted
	ActionSettle               // wait DebounceSettle, no pulse
	ActionPulse                // emit one close pulse
	ActionGiveUp               // first observation after the attempt cap; no pulse
)

func (a Action) String() string {
	switch a {
	case ActionSettle:
		return "SETTLE"
	case ActionPulse:
		return "PULSE"
	case ActionGiveUp:
		return "GIVE_UP"
	default:
		return "NONE"
	}
}

// EventType is a supervisor state transition.
type EventType string

const (
	EventBreakDetected     EventType = "BREAK_DETECTED"
	EventBreakCleared      EventType = "BREAK_CLEARED"
	EventValveOpen         EventType = "VALVE_OPEN"
	EventValveClosed       EventType = "VALVE_CLOSED"
	EventTriggerAsserted   EventType = "TRIGGER_ASSERTED"
	EventTriggerCleared    EventType = "TRIGGER_CLEARED"
	EventClosePulse        EventType = "CLOSE_PULSE"
	EventAttemptsExhausted EventType = "ATTEMPTS_EXHAUSTED"
)

// Event is a transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Attempt   int // pulse number within the episode (CLOSE_PULSE only)
	Counters  Counters
}

// Counters is a snapshot of the policy counters.
type Counters struct {
	FakeClose     int
	CloseAttempts int
}

// Totals counts supervisor activity since startup.
type Totals struct {
	Passes   int64
	Episodes int // open episodes started
	Breaks   int // wiring breaks detected
	Pulses   int // close pulses issued
	GiveUps  int // episodes that spent the whole attempt budget
}

// State is the supervisor's view of the valve after a pass.
type State struct {
	Indicator       Color
	Broken          bool
	ValveKnown      bool // false until the valve line has been read once
	ValveOpen       bool
	TriggerAsserted bool // last sampled trigger; false while the valve is closed
	Exhausted       bool
	Counters        Counters
	Totals          Totals
}
