package models

import "fmt"

// LightState defines the active lamp of a traffic light.
type LightState string

const (
	LightStateRed    LightState = "red"
	LightStateYellow LightState = "yellow"
	LightStateGreen  LightState = "green"
)

// Valid reports whether s is one of the three lamp states.
func (s LightState) Valid() bool {
	switch s {
	case LightStateRed, LightStateYellow, LightStateGreen:
		return true
	}
	return false
}

// Next returns the state that follows s in the fixed cycle green → yellow → red → green.
func (s LightState) Next() LightState {
	switch s {
	case LightStateGreen:
		return LightStateYellow
	case LightStateYellow:
		return LightStateRed
	default:
		return LightStateGreen
	}
}

// ParseLightState converts a raw string into a LightState.
func ParseLightState(raw string) (LightState, error) {
	s := LightState(raw)
	if !s.Valid() {
		return "", fmt.Errorf("invalid light state %q", raw)
	}
	return s, nil
}

// Timing holds the configured duration of every state, in whole seconds.
type Timing struct {
	Green  int `json:"green" yaml:"green"`
	Yellow int `json:"yellow" yaml:"yellow"`
	Red    int `json:"red" yaml:"red"`
}

// For returns the configured duration for state.
func (t Timing) For(state LightState) int {
	switch state {
	case LightStateGreen:
		return t.Green
	case LightStateYellow:
		return t.Yellow
	default:
		return t.Red
	}
}

// Validate rejects non-positive durations.
func (t Timing) Validate() error {
	if t.Green <= 0 || t.Yellow <= 0 || t.Red <= 0 {
		return fmt.Errorf("timing durations must be positive: green=%d yellow=%d red=%d", t.Green, t.Yellow, t.Red)
	}
	return nil
}

// TrafficLight is one simulated intersection signal.
type TrafficLight struct {
	ID           string
	Name         string
	Location     string
	Subject      string // actuator subject for state publishes
	Timing       Timing
	CurrentState LightState
	TimeLeft     int
	AutoControl  bool
}

// Snapshot returns the full client-facing view of the light.
func (l *TrafficLight) Snapshot() LightSnapshot {
	return LightSnapshot{
		ID:           l.ID,
		Name:         l.Name,
		Location:     l.Location,
		Timing:       l.Timing,
		CurrentState: l.CurrentState,
		TimeLeft:     l.TimeLeft,
		AutoControl:  l.AutoControl,
	}
}

// TimingSnapshot returns the view sent after a congestion adjustment.
func (l *TrafficLight) TimingSnapshot() TimingSnapshot {
	return TimingSnapshot{
		ID:           l.ID,
		Timing:       l.Timing,
		CurrentState: l.CurrentState,
		TimeLeft:     l.TimeLeft,
		AutoControl:  l.AutoControl,
	}
}

// Status returns the view returned by the control endpoints.
func (l *TrafficLight) Status() LightStatus {
	return LightStatus{
		ID:           l.ID,
		CurrentState: l.CurrentState,
		TimeLeft:     l.TimeLeft,
		AutoControl:  l.AutoControl,
	}
}

// LightSnapshot is the full state of a light as seen by subscribers.
type LightSnapshot struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Location     string     `json:"location"`
	Timing       Timing     `json:"timing"`
	CurrentState LightState `json:"currentState"`
	TimeLeft     int        `json:"timeLeft"`
	AutoControl  bool       `json:"autoControl"`
}

// TimingSnapshot is one element of a timingUpdate payload.
type TimingSnapshot struct {
	ID           string     `json:"id"`
	Timing       Timing     `json:"timing"`
	CurrentState LightState `json:"currentState"`
	TimeLeft     int        `json:"timeLeft"`
	AutoControl  bool       `json:"autoControl"`
}

// LightStatus is the light summary returned after a manual command.
type LightStatus struct {
	ID           string     `json:"id"`
	CurrentState LightState `json:"currentState"`
	TimeLeft     int        `json:"timeLeft"`
	AutoControl  bool       `json:"autoControl"`
}

// ManualCommand is an override request from a subscriber, the HTTP API or the actuator bus.
// An empty State leaves the cycle alone; a nil or zero Duration means the configured default.
type ManualCommand struct {
	LightID     string     `json:"lightId"`
	State       LightState `json:"state,omitempty"`
	Duration    *int       `json:"duration,omitempty"`
	AutoControl *bool      `json:"autoControl,omitempty"`
}
