package signal

import "github.com/mcdev12/signalboard/go/internal/models"

// Signal is the state machine of one light. It knows nothing about timers:
// whoever owns it calls Tick once per elapsed second.
type Signal struct {
	light *models.TrafficLight
}

// Step is the outcome of a single Tick.
type Step struct {
	// Countdown is set when the remaining time changed and a countdown tick should be emitted.
	Countdown bool
	Remaining int
	// Entered is the state that was entered because the countdown expired, if any.
	Entered models.LightState
}

// NewSignal wraps light. The light must not be shared with another Signal.
func NewSignal(light *models.TrafficLight) Signal {
	return Signal{light: light}
}

// Enter switches the light to state for secs seconds.
func (s Signal) Enter(state models.LightState, secs int) {
	if secs < 0 {
		secs = 0
	}
	s.light.CurrentState = state
	s.light.TimeLeft = secs
}

// Tick advances the countdown by one second. When it reaches zero the next
// state in the cycle is entered with its configured duration, unless the
// light is under manual control, in which case it holds at zero.
func (s Signal) Tick() Step {
	l := s.light
	if l.TimeLeft <= 0 && !l.AutoControl {
		return Step{}
	}

	if l.TimeLeft > 0 {
		l.TimeLeft--
	}
	step := Step{Countdown: true, Remaining: l.TimeLeft}
	if l.TimeLeft > 0 || !l.AutoControl {
		return step
	}

	next := l.CurrentState.Next()
	s.Enter(next, l.Timing.For(next))
	step.Entered = next
	return step
}

// Holding reports whether a manual-mode light has run out its countdown.
func (s Signal) Holding() bool {
	return !s.light.AutoControl && s.light.TimeLeft <= 0
}
