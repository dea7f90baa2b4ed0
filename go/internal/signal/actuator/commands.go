package actuator

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/signalboard/go/internal/metrics"
	"github.com/mcdev12/signalboard/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const commandTypeSetLight = "setLight"

var ErrMalformedCommand = errors.New("malformed actuator command")

// Command is a message received on the command subject
type Command struct {
	Type        string            `json:"type"`
	LightID     string            `json:"lightId"`
	State       models.LightState `json:"state"`
	Duration    *int              `json:"duration,omitempty"`
	AutoControl *bool             `json:"autoControl,omitempty"`
}

// ParseCommand decodes a command. Only setLight commands naming a light and a state are accepted.
func ParseCommand(data []byte) (models.ManualCommand, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return models.ManualCommand{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	if cmd.Type != commandTypeSetLight {
		return models.ManualCommand{}, fmt.Errorf("%w: unsupported type %q", ErrMalformedCommand, cmd.Type)
	}
	if cmd.LightID == "" || cmd.State == "" {
		return models.ManualCommand{}, fmt.Errorf("%w: lightId and state are required", ErrMalformedCommand)
	}
	return models.ManualCommand{
		LightID:     cmd.LightID,
		State:       cmd.State,
		Duration:    cmd.Duration,
		AutoControl: cmd.AutoControl,
	}, nil
}

// Commander applies manual commands
type Commander interface {
	ApplyManualCommand(cmd models.ManualCommand) (models.LightStatus, error)
}

// CommandListener applies commands published on the bus by external controllers
type CommandListener struct {
	nc        *nats.Conn
	subject   string
	commander Commander
	metrics   *metrics.ActuatorMetrics
	sub       *nats.Subscription
}

func NewCommandListener(nc *nats.Conn, subject string, commander Commander, m *metrics.ActuatorMetrics) *CommandListener {
	if m == nil {
		m = metrics.NewActuatorMetrics(prometheus.NewRegistry())
	}
	return &CommandListener{
		nc:        nc,
		subject:   subject,
		commander: commander,
		metrics:   m,
	}
}

// Start subscribes to the command subject
func (l *CommandListener) Start() error {
	sub, err := l.nc.Subscribe(l.subject, func(msg *nats.Msg) {
		l.handleMessage(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", l.subject, err)
	}
	l.sub = sub
	log.Info().Str("subject", l.subject).Msg("listening for actuator commands")
	return nil
}

// Stop removes the subscription
func (l *CommandListener) Stop() error {
	if l.sub == nil {
		return nil
	}
	return l.sub.Unsubscribe()
}

func (l *CommandListener) handleMessage(data []byte) {
	cmd, err := ParseCommand(data)
	if err != nil {
		l.metrics.Commands.WithLabelValues("malformed").Inc()
		log.Warn().Err(err).Msg("ignoring actuator command")
		return
	}

	status, err := l.commander.ApplyManualCommand(cmd)
	if err != nil {
		l.metrics.Commands.WithLabelValues("rejected").Inc()
		log.Warn().Err(err).Str("light_id", cmd.LightID).Msg("actuator command rejected")
		return
	}

	l.metrics.Commands.WithLabelValues("applied").Inc()
	log.Info().
		Str("light_id", status.ID).
		Str("state", string(status.CurrentState)).
		Int("time_left", status.TimeLeft).
		Msg("actuator command applied")
}
