// Package supervisor runs the valve supervision loop over the GPIO lines.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"

	"github.com/sweeney/valve-supervisor/internal/gpio"
	"github.com/sweeney/valve-supervisor/internal/logic"
	"github.com/sweeney/valve-supervisor/internal/timing"
)

// Notifier receives supervisor events. Notify is called from the loop and
// must not block.
type Notifier interface {
	Notify(event logic.Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(event logic.Event)

// Notify calls f(event).
func (f NotifierFunc) Notify(event logic.Event) {
	f(event)
}

// Reporter receives the supervisor state after every pass.
type Reporter interface {
	Update(state logic.State)
}

// Supervisor owns the indicator and close lines and the episode counters.
// It is not safe for concurrent use; all methods must be called from the
// goroutine running the loop.
type Supervisor struct {
	io       gpio.IO
	clock    timing.Clock
	notifier Notifier
	reporter Reporter

	policy logic.Policy
	state  logic.State

	// closeLow is set while the close line may still be driven low after a
	// failed release. Every pass retries the release before anything else.
	closeLow bool
}

// New creates a Supervisor. notifier and reporter may be nil.
func New(io gpio.IO, clock timing.Clock, notifier Notifier, reporter Reporter) *Supervisor {
	return &Supervisor{
		io:       io,
		clock:    clock,
		notifier: notifier,
		reporter: reporter,
		state:    logic.State{Indicator: logic.Green},
	}
}

// Run performs the startup sequence (unless skipStartup) and then loops
// until ctx is cancelled. Cancellation is only observed between passes and
// between fast-blink toggles; a pulse or settle wait always completes.
//
// A pass that fails on GPIO access is abandoned, logged and retried after
// one fast-blink period.
func (s *Supervisor) Run(ctx context.Context, skipStartup bool) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := s.init(); err != nil {
		return err
	}
	if !skipStartup {
		if err := s.Startup(); err != nil {
			return err
		}
	}

	var lastErr string
	for ctx.Err() == nil {
		err := s.Pass(ctx)
		switch {
		case err == nil:
			if lastErr != "" {
				log.Printf("gpio recovered")
				lastErr = ""
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			if msg := err.Error(); msg != lastErr {
				log.Printf("pass error: %v", err)
				lastErr = msg
			}
			s.clock.Delay(logic.FastBlinkPeriod)
		}
	}
	return nil
}

// init puts both outputs in their resting state: close line inactive,
// indicator green.
func (s *Supervisor) init() error {
	if err := s.io.Write(gpio.ClosePulse, true); err != nil {
		return fmt.Errorf("init close line: %w", err)
	}
	return s.setIndicator(logic.Green)
}

// Startup blinks the indicator to confirm boot and settles on green.
func (s *Supervisor) Startup() error {
	if err := s.setIndicator(logic.Green); err != nil {
		return err
	}
	for i := 0; i < logic.StartupBlinks; i++ {
		if err := s.toggleIndicator(); err != nil {
			return err
		}
		s.clock.Delay(logic.StartupBlinkPeriod)
	}
	return s.setIndicator(logic.Green)
}

// Pass runs one iteration of the supervision loop: break check, valve
// state, then the close trigger while the valve is open. It returns
// ctx.Err() only if ctx is cancelled while a break is being signalled.
func (s *Supervisor) Pass(ctx context.Context) error {
	s.state.Totals.Passes++

	if s.closeLow {
		if err := s.release(); err != nil {
			return err
		}
	}

	if err := s.checkBreak(ctx); err != nil {
		return err
	}

	open, err := s.io.Read(gpio.Valve)
	if err != nil {
		return fmt.Errorf("read valve: %w", err)
	}
	if !open {
		return s.valveClosed()
	}
	if err := s.valveOpen(); err != nil {
		return err
	}

	normal, err := s.io.Read(gpio.Trigger)
	if err != nil {
		return fmt.Errorf("read trigger: %w", err)
	}
	if normal {
		s.triggerClear()
		return nil
	}
	return s.triggerAsserted()
}

// State returns the state after the last pass.
func (s *Supervisor) State() logic.State {
	st := s.state
	st.Counters = s.policy.Counters()
	st.Exhausted = s.policy.Exhausted()
	return st
}

// checkBreak fast-blinks the indicator for as long as the break line reads low.
func (s *Supervisor) checkBreak(ctx context.Context) error {
	for {
		intact, err := s.io.Read(gpio.Break)
		if err != nil {
			return fmt.Errorf("read break: %w", err)
		}
		if intact {
			if s.state.Broken {
				s.state.Broken = false
				s.emit(logic.EventBreakCleared, 0)
			}
			return nil
		}

		if !s.state.Broken {
			s.state.Broken = true
			s.state.Totals.Breaks++
			s.emit(logic.EventBreakDetected, 0)
			s.report()
		}
		if err := s.toggleIndicator(); err != nil {
			return err
		}
		s.clock.Delay(logic.FastBlinkPeriod)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (s *Supervisor) valveClosed() error {
	if err := s.setIndicator(logic.Red); err != nil {
		return err
	}
	s.policy.ValveClosed()
	s.state.TriggerAsserted = false
	if s.state.ValveOpen || !s.state.ValveKnown {
		s.state.ValveKnown = true
		s.state.ValveOpen = false
		s.emit(logic.EventValveClosed, 0)
	}
	s.report()
	return nil
}

func (s *Supervisor) valveOpen() error {
	if err := s.setIndicator(logic.Green); err != nil {
		return err
	}
	if !s.state.ValveOpen || !s.state.ValveKnown {
		s.state.ValveKnown = true
		s.state.ValveOpen = true
		s.state.Totals.Episodes++
		s.emit(logic.EventValveOpen, 0)
	}
	return nil
}

func (s *Supervisor) triggerClear() {
	s.policy.TriggerCleared()
	if s.state.TriggerAsserted {
		s.state.TriggerAsserted = false
		s.emit(logic.EventTriggerCleared, 0)
	}
	s.report()
}

func (s *Supervisor) triggerAsserted() error {
	if !s.state.TriggerAsserted {
		s.state.TriggerAsserted = true
		s.emit(logic.EventTriggerAsserted, 0)
	}

	switch s.policy.TriggerAsserted() {
	case logic.ActionSettle:
		s.report()
		s.clock.Delay(logic.DebounceSettle)
	case logic.ActionPulse:
		s.state.Totals.Pulses++
		s.emit(logic.EventClosePulse, s.policy.Counters().CloseAttempts)
		s.report()
		return s.pulse()
	case logic.ActionGiveUp:
		s.state.Totals.GiveUps++
		s.emit(logic.EventAttemptsExhausted, 0)
		s.report()
	default:
		s.report()
	}
	return nil
}

// pulse drives the close line low for PulseAssert, then holds it high for
// PulseRecovery.
func (s *Supervisor) pulse() error {
	s.closeLow = true
	if err := s.io.Write(gpio.ClosePulse, false); err != nil {
		return fmt.Errorf("assert close pulse: %w", err)
	}
	s.clock.Delay(logic.PulseAssert)
	return s.release()
}

// release drives the close line back high and holds it for PulseRecovery.
// On failure closeLow stays set and the next pass tries again.
func (s *Supervisor) release() error {
	if err := s.io.Write(gpio.ClosePulse, true); err != nil {
		return fmt.Errorf("release close pulse: %w", err)
	}
	s.closeLow = false
	s.clock.Delay(logic.PulseRecovery)
	return nil
}

func (s *Supervisor) setIndicator(c logic.Color) error {
	if err := s.io.Write(gpio.Indicator, c.Level()); err != nil {
		return fmt.Errorf("set indicator: %w", err)
	}
	s.state.Indicator = c
	return nil
}

func (s *Supervisor) toggleIndicator() error {
	return s.setIndicator(logic.ColorOf(!s.state.Indicator.Level()))
}

func (s *Supervisor) emit(t logic.EventType, attempt int) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(logic.Event{
		Timestamp: s.clock.Now(),
		Type:      t,
		Attempt:   attempt,
		Counters:  s.policy.Counters(),
	})
}

func (s *Supervisor) report() {
	if s.reporter == nil {
		return
	}
	s.reporter.Update(s.State())
}
