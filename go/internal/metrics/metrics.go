package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signalboard"

// Metrics bundles every subsystem's collectors.
type Metrics struct {
	Engine     *EngineMetrics
	WebSocket  *WebSocketMetrics
	Congestion *CongestionMetrics
	Actuator   *ActuatorMetrics
}

// New creates and registers all subsystem metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Engine:     NewEngineMetrics(reg),
		WebSocket:  NewWebSocketMetrics(reg),
		Congestion: NewCongestionMetrics(reg),
		Actuator:   NewActuatorMetrics(reg),
	}
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// EngineMetrics holds Prometheus metrics for the timing engine.
type EngineMetrics struct {
	Transitions    *prometheus.CounterVec
	ManualCommands *prometheus.CounterVec
	Adjustments    *prometheus.CounterVec
}

// NewEngineMetrics creates and registers timing engine metrics on the given registry.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "transitions_total",
			Help:      "Total number of light state transitions, by entered state.",
		}, []string{"state"}),
		ManualCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "manual_commands_total",
			Help:      "Total number of manual commands, by outcome.",
		}, []string{"outcome"}),
		Adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "congestion_adjustments_total",
			Help:      "Total number of congestion adjustment passes, by applied table.",
		}, []string{"level"}),
	}

	reg.MustRegister(m.Transitions, m.ManualCommands, m.Adjustments)
	return m
}

// WebSocketMetrics holds Prometheus metrics for WebSocket connections.
type WebSocketMetrics struct {
	ActiveConnections prometheus.Gauge
	MessagesPublished prometheus.Counter
	SlowClientsClosed prometheus.Counter
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of active WebSocket connections.",
		}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_published_total",
			Help:      "Total number of WebSocket messages published.",
		}),
		SlowClientsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "slow_clients_closed_total",
			Help:      "Total number of connections closed because their send buffer was full.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.MessagesPublished, m.SlowClientsClosed)
	return m
}

// CongestionMetrics holds Prometheus metrics for the congestion poll.
type CongestionMetrics struct {
	Polls             *prometheus.CounterVec
	VehiclesPerMinute prometheus.Gauge
}

// NewCongestionMetrics creates and registers congestion poll metrics on the given registry.
func NewCongestionMetrics(reg prometheus.Registerer) *CongestionMetrics {
	m := &CongestionMetrics{
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "congestion",
			Name:      "polls_total",
			Help:      "Total number of congestion polls, by result.",
		}, []string{"result"}),
		VehiclesPerMinute: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "congestion",
			Name:      "vehicles_per_minute",
			Help:      "Vehicles per minute from the last successful poll.",
		}),
	}

	reg.MustRegister(m.Polls, m.VehiclesPerMinute)
	return m
}

// ActuatorMetrics holds Prometheus metrics for the actuator bus.
type ActuatorMetrics struct {
	Published *prometheus.CounterVec
	Commands  *prometheus.CounterVec
}

// NewActuatorMetrics creates and registers actuator metrics on the given registry.
func NewActuatorMetrics(reg prometheus.Registerer) *ActuatorMetrics {
	m := &ActuatorMetrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actuator",
			Name:      "state_messages_total",
			Help:      "Total number of state messages handled by the actuator publisher, by result.",
		}, []string{"result"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actuator",
			Name:      "commands_total",
			Help:      "Total number of commands received from the actuator bus, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.Published, m.Commands)
	return m
}
