package gateway

import (
	"context"
	"net/http"

	"github.com/mcdev12/signalboard/go/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Service is the live-update gateway: WebSocket fan-out plus the HTTP control surface
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	controlHandler    *ControlHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new gateway service. congestion may be nil when polling is disabled.
func NewService(config Config, controller LightController, congestion CongestionReader, m *metrics.WebSocketMetrics) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, controller, m)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		controlHandler:    NewControlHandler(controller, congestion),
	}
}

// Sink returns the engine sink that feeds every subscriber
func (s *Service) Sink() *ConnectionManager {
	return s.connectionManager
}

// Start runs the broadcast loop until ctx is cancelled
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting live-update gateway")
	s.connectionManager.Start(ctx)
	log.Info().Msg("live-update gateway stopped")
}

// RegisterRoutes registers the WebSocket and control HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.controlHandler.RegisterRoutes(mux)
	log.Info().Msg("gateway routes registered")
}
