package actuator

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Config describes the actuator bus connection
type Config struct {
	URL             string
	StreamName      string
	CommandSubject  string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ConnectTimeout  time.Duration
	MaxAge          time.Duration // How long to keep state messages
	Replicas        int
	DuplicateWindow time.Duration
	QueueSize       int
	PublishTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		StreamName:      "TRAFFIC_STATES",
		CommandSubject:  "traffic.commands",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		ConnectTimeout:  2 * time.Second,
		MaxAge:          24 * time.Hour,
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
		QueueSize:       256,
		PublishTimeout:  5 * time.Second,
	}
}

// DefaultSubject is the state subject used for a light with none configured
func DefaultSubject(lightID string) string {
	return "traffic." + lightID
}

// Connect dials the bus and opens a JetStream context
func Connect(cfg Config) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.Name("signalboard"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return nc, js, nil
}
