package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/signalboard/go/internal/models"
)

// Event payload types shared between the engine, the gateway and the actuator sink.

// EventType names an event on the live-update channel
type EventType string

const (
	EventTypeInit                EventType = "trafficLightInit"
	EventTypeTransition          EventType = "trafficLightUpdate"
	EventTypeCountdown           EventType = "trafficLightCountdown"
	EventTypeTimingUpdate        EventType = "timingUpdate"
	EventTypeManualControlResult EventType = "manualControlResult"

	// EventTypeManualControl is the only inbound event
	EventTypeManualControl EventType = "manualControl"
)

// Event is the envelope for every outbound message. LightID is empty for
// events that cover all lights.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	LightID   string          `json:"lightId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// TransitionPayload is the payload for a trafficLightUpdate event
type TransitionPayload struct {
	ID       string            `json:"id"`
	State    models.LightState `json:"state"`
	TimeLeft int               `json:"timeLeft"`
}

// CountdownPayload is the payload for a trafficLightCountdown event
type CountdownPayload struct {
	ID       string `json:"id"`
	TimeLeft int    `json:"timeLeft"`
}

// ManualControlResultPayload acknowledges a manualControl command to its sender
type ManualControlResultPayload struct {
	LightID string              `json:"lightId"`
	Success bool                `json:"success"`
	Error   string              `json:"error,omitempty"`
	Light   *models.LightStatus `json:"light,omitempty"`
}

// InboundMessage is a message received from a subscriber
type InboundMessage struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newEvent(t EventType, lightID string, at time.Time, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		// payloads are plain structs; this only happens on programmer error
		panic(fmt.Sprintf("marshal %s payload: %v", t, err))
	}
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		LightID:   lightID,
		Timestamp: at,
		Data:      data,
	}
}

// NewInit builds the snapshot sent to a subscriber when it connects.
func NewInit(at time.Time, lights []models.LightSnapshot) Event {
	return newEvent(EventTypeInit, "", at, lights)
}

// NewTransition builds a state-change event.
func NewTransition(at time.Time, id string, state models.LightState, timeLeft int) Event {
	return newEvent(EventTypeTransition, id, at, TransitionPayload{ID: id, State: state, TimeLeft: timeLeft})
}

// NewCountdown builds a per-second countdown tick.
func NewCountdown(at time.Time, id string, timeLeft int) Event {
	return newEvent(EventTypeCountdown, id, at, CountdownPayload{ID: id, TimeLeft: timeLeft})
}

// NewTimingUpdate builds the broadcast sent after a congestion adjustment.
func NewTimingUpdate(at time.Time, lights []models.TimingSnapshot) Event {
	return newEvent(EventTypeTimingUpdate, "", at, lights)
}

// NewManualControlResult builds the acknowledgement for a manualControl command.
func NewManualControlResult(at time.Time, payload ManualControlResultPayload) Event {
	return newEvent(EventTypeManualControlResult, payload.LightID, at, payload)
}

// ParsePayload decodes event data into the payload struct for its type
func ParsePayload(event Event) (interface{}, error) {
	switch event.Type {
	case EventTypeInit:
		var payload []models.LightSnapshot
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeTransition:
		var payload TransitionPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeCountdown:
		var payload CountdownPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeTimingUpdate:
		var payload []models.TimingSnapshot
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeManualControlResult:
		var payload ManualControlResultPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}
}
