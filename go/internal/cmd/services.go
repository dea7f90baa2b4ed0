package main

import (
	"context"
	"time"

	"github.com/mcdev12/signalboard/go/clients/congestion_client"
	"github.com/mcdev12/signalboard/go/internal/config"
	"github.com/mcdev12/signalboard/go/internal/metrics"
	"github.com/mcdev12/signalboard/go/internal/models"
	"github.com/mcdev12/signalboard/go/internal/signal"
	"github.com/mcdev12/signalboard/go/internal/signal/actuator"
	"github.com/mcdev12/signalboard/go/internal/signal/congestion"
	"github.com/mcdev12/signalboard/go/internal/signal/gateway"
	"github.com/mcdev12/signalboard/go/internal/signal/rpc"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type Services struct {
	Registry *prometheus.Registry
	Engine   *signal.Engine
	Gateway  *gateway.Service
	Lights   *rpc.Service
	Poller   *congestion.Poller
	Actuator *actuatorBus
}

// actuatorBus groups the optional NATS side of the server
type actuatorBus struct {
	nc        *nats.Conn
	publisher *actuator.Publisher
	listener  *actuator.CommandListener
}

func setupServices(cfg *config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Config → Engine → Sinks (gateway, actuator) → Poller → RPC
	registry := metrics.NewRegistry()
	m := metrics.New(registry)

	lights := cfg.TrafficLights(actuator.DefaultSubject)
	engine, err := signal.NewEngine(lights, signal.AdjustmentTables(cfg.Adjustments),
		signal.WithMetrics(m.Engine))
	if err != nil {
		return nil, err
	}

	services := &Services{
		Registry: registry,
		Engine:   engine,
		Lights:   rpc.NewService(engine),
	}

	var reader gateway.CongestionReader
	if cfg.Congestion.Enabled {
		client := congestion_client.NewCongestionClient(cfg.Congestion.APIURL, congestion_client.DefaultBreakerConfig())
		services.Poller = congestion.NewPoller(client, engine, congestion.Config{
			Interval: cfg.Congestion.PollInterval,
			Timeout:  cfg.Congestion.Timeout,
		}, nil, m.Congestion)
		reader = services.Poller
	}

	services.Gateway = gateway.NewService(gateway.DefaultConfig(), engine, reader, m.WebSocket)
	engine.AddSink(services.Gateway.Sink())

	if cfg.NATS.Enabled {
		services.Actuator = setupActuator(cfg, lights, engine, m.Actuator)
	}

	return services, nil
}

// setupActuator connects to the bus. Failure leaves the server running without it.
func setupActuator(cfg *config.Config, lights []models.TrafficLight, engine *signal.Engine, m *metrics.ActuatorMetrics) *actuatorBus {
	busCfg := actuator.DefaultConfig()
	busCfg.URL = cfg.NATS.URL
	if cfg.NATS.Stream != "" {
		busCfg.StreamName = cfg.NATS.Stream
	}
	if cfg.NATS.CommandSubject != "" {
		busCfg.CommandSubject = cfg.NATS.CommandSubject
	}

	nc, js, err := actuator.Connect(busCfg)
	if err != nil {
		log.Warn().Err(err).Str("url", busCfg.URL).Msg("actuator bus unavailable, continuing without it")
		return nil
	}

	subjects := lo.SliceToMap(lights, func(l models.TrafficLight) (string, string) {
		return l.ID, l.Subject
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := actuator.EnsureStream(ctx, js, busCfg, subjects); err != nil {
		log.Warn().Err(err).Msg("failed to ensure actuator stream, continuing without actuator bus")
		nc.Close()
		return nil
	}

	publisher := actuator.NewPublisher(js, busCfg, subjects, m)
	engine.AddSink(publisher)

	log.Info().Str("url", busCfg.URL).Str("stream", busCfg.StreamName).Msg("actuator bus connected")

	return &actuatorBus{
		nc:        nc,
		publisher: publisher,
		listener:  actuator.NewCommandListener(nc, busCfg.CommandSubject, engine, m),
	}
}

// Start launches every background loop. The gateway loop runs before the
// engine starts so the first transitions have somewhere to go.
func (s *Services) Start(ctx context.Context) {
	go s.Gateway.Start(ctx)

	if s.Actuator != nil {
		go s.Actuator.publisher.Run(ctx)
		if err := s.Actuator.listener.Start(); err != nil {
			log.Warn().Err(err).Msg("actuator command listener not started")
		}
	}

	s.Engine.Start(ctx)

	if s.Poller != nil {
		go s.Poller.Run(ctx)
	}
}

// Stop halts the engine and releases the bus connection
func (s *Services) Stop() {
	s.Engine.Stop()

	if s.Actuator != nil {
		if err := s.Actuator.listener.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop actuator command listener")
		}
		if err := s.Actuator.nc.Drain(); err != nil {
			log.Error().Err(err).Msg("failed to drain NATS connection")
		}
	}
}
