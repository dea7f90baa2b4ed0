package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/mcdev12/signalboard/go/internal/metrics"
	"github.com/mcdev12/signalboard/go/internal/models"
	"github.com/mcdev12/signalboard/go/internal/signal/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// StateMessage is what an actuator receives on a light's subject after every transition
type StateMessage struct {
	State    models.LightState `json:"state"`
	Duration int               `json:"duration"`
}

// msgPublisher is the slice of jetstream.JetStream the publisher needs
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type outbound struct {
	eventID string
	lightID string
	subject string
	message StateMessage
}

// Publisher is an engine sink that forwards every transition to the light's
// actuator subject. Publish never blocks the engine: messages go through a
// bounded queue drained by Run, and are dropped when the queue is full.
type Publisher struct {
	js       msgPublisher
	config   Config
	subjects map[string]string
	queue    chan outbound
	metrics  *metrics.ActuatorMetrics
}

// NewPublisher creates a publisher. subjects maps light id to state subject.
func NewPublisher(js msgPublisher, cfg Config, subjects map[string]string, m *metrics.ActuatorMetrics) *Publisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if m == nil {
		m = metrics.NewActuatorMetrics(prometheus.NewRegistry())
	}
	return &Publisher{
		js:       js,
		config:   cfg,
		subjects: subjects,
		queue:    make(chan outbound, cfg.QueueSize),
		metrics:  m,
	}
}

// Publish implements the engine sink. Only transitions are forwarded.
func (p *Publisher) Publish(event events.Event) {
	if event.Type != events.EventTypeTransition {
		return
	}

	decoded, err := events.ParsePayload(event)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("failed to decode transition for actuator")
		return
	}
	payload := decoded.(events.TransitionPayload)

	subject, ok := p.subjects[payload.ID]
	if !ok {
		p.metrics.Published.WithLabelValues("no_subject").Inc()
		return
	}

	msg := outbound{
		eventID: event.ID,
		lightID: payload.ID,
		subject: subject,
		message: StateMessage{State: payload.State, Duration: payload.TimeLeft},
	}

	select {
	case p.queue <- msg:
	default:
		p.metrics.Published.WithLabelValues("dropped").Inc()
		log.Warn().
			Str("light_id", payload.ID).
			Str("subject", subject).
			Msg("actuator queue full, dropping state message")
	}
}

// Run drains the queue until ctx is cancelled
func (p *Publisher) Run(ctx context.Context) {
	log.Info().Int("queue_size", cap(p.queue)).Msg("actuator publisher started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("actuator publisher stopped")
			return
		case msg := <-p.queue:
			if err := p.send(ctx, msg); err != nil {
				p.metrics.Published.WithLabelValues("error").Inc()
				log.Error().
					Err(err).
					Str("light_id", msg.lightID).
					Str("subject", msg.subject).
					Msg("failed to publish state to actuator bus")
				continue
			}
			p.metrics.Published.WithLabelValues("ok").Inc()
		}
	}
}

func (p *Publisher) send(ctx context.Context, msg outbound) error {
	data, err := json.Marshal(msg.message)
	if err != nil {
		return fmt.Errorf("marshal state message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: msg.subject,
		Data:    data,
		Header: nats.Header{
			"Light-ID":    []string{msg.lightID},
			"Light-State": []string{string(msg.message.State)},
			"Event-ID":    []string{msg.eventID},
		},
	},
		jetstream.WithMsgID(msg.eventID),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", msg.subject).
		Str("event_id", msg.eventID).
		Uint64("sequence", ack.Sequence).
		Msg("published state to actuator bus")
	return nil
}

// EnsureStream creates or updates the stream that captures every light subject
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg Config, subjects map[string]string) error {
	subjectList := lo.Uniq(lo.Values(subjects))
	slices.Sort(subjectList)

	sc := jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Traffic light state changes for actuators",
		Subjects:    subjectList,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
		Duplicates:  cfg.DuplicateWindow,
	}

	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		if _, err = js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Strs("subjects", subjectList).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !streamConfigEqual(info.Config, sc) {
		if _, err = js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("updated JetStream stream")
	}
	return nil
}

func streamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates &&
		sameSubjects(a.Subjects, b.Subjects)
}

func sameSubjects(a, b []string) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
