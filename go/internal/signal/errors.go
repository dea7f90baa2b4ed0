package signal

import "errors"

var (
	// ErrMissingLightID is returned when a command does not name a light
	ErrMissingLightID = errors.New("lightId is required")
	// ErrLightNotFound is returned when a command names an unknown light
	ErrLightNotFound = errors.New("traffic light not found")
	// ErrInvalidState is returned when a command names a state other than red, yellow or green
	ErrInvalidState = errors.New("invalid state, choose one of red, yellow, green")
	// ErrInvalidDuration is returned when a command carries a negative duration
	ErrInvalidDuration = errors.New("duration must not be negative")
)
