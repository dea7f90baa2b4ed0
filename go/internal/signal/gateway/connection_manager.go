package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/signalboard/go/internal/metrics"
	"github.com/mcdev12/signalboard/go/internal/models"
	"github.com/mcdev12/signalboard/go/internal/signal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var errRateLimited = errors.New("rate limit exceeded")

// LightController is the part of the timing engine the gateway drives
type LightController interface {
	Snapshot() []models.LightSnapshot
	WithSnapshot(fn func([]models.LightSnapshot))
	ApplyManualCommand(cmd models.ManualCommand) (models.LightStatus, error)
}

// ConnectionManager manages live-update WebSocket subscribers. Registration
// and broadcast share one channel and one loop, so a subscriber's init
// snapshot is always delivered before any event emitted after it was taken.
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.Mutex

	upgrader   websocket.Upgrader
	config     ConnectionConfig
	controller LightController
	metrics    *metrics.WebSocketMetrics

	broadcastCh chan broadcastMessage
	done        chan struct{}
	closeOnce   sync.Once
}

// Connection represents a WebSocket connection to a subscriber
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	limiter *rate.Limiter
	closed  bool

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool

	// CommandRate and CommandBurst bound inbound manualControl messages per connection
	CommandRate  rate.Limit
	CommandBurst int
}

// broadcastMessage is one unit of work for the broadcast loop. A message
// with register set adds that connection and delivers the event to it alone;
// a message with target set goes to that connection only; anything else
// goes to every subscriber.
type broadcastMessage struct {
	event    events.Event
	register *Connection
	target   *Connection
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		CommandRate:  rate.Limit(5),
		CommandBurst: 10,
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, controller LightController, m *metrics.WebSocketMetrics) *ConnectionManager {
	if m == nil {
		m = metrics.NewWebSocketMetrics(prometheus.NewRegistry())
	}
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		controller:  controller,
		metrics:     m,
		broadcastCh: make(chan broadcastMessage, 1000),
		done:        make(chan struct{}),
	}
}

// Start processes registrations and broadcasts until ctx is cancelled
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			cm.shutdown()
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

func (cm *ConnectionManager) shutdown() {
	cm.closeOnce.Do(func() { close(cm.done) })

	cm.mu.Lock()
	defer cm.mu.Unlock()
	for conn := range cm.connections {
		cm.removeLocked(conn)
		conn.Conn.Close()
	}
}

// Publish forwards an engine event to every subscriber. It blocks while the
// broadcast queue is full so no subscriber misses an event, and returns
// immediately once the manager has shut down.
func (cm *ConnectionManager) Publish(event events.Event) {
	cm.enqueue(broadcastMessage{event: event})
}

func (cm *ConnectionManager) enqueue(message broadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	case <-cm.done:
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and subscribes it
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		limiter:     rate.NewLimiter(cm.config.CommandRate, cm.config.CommandBurst),
		ConnectedAt: time.Now(),
	}

	cm.subscribe(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

// subscribe takes the snapshot and queues the registration while the engine
// is locked, so nothing the engine emits afterwards can overtake it.
func (cm *ConnectionManager) subscribe(conn *Connection) {
	cm.controller.WithSnapshot(func(lights []models.LightSnapshot) {
		cm.enqueue(broadcastMessage{
			event:    events.NewInit(time.Now(), lights),
			register: conn,
		})
	})
}

// sendTo queues an event for a single connection
func (cm *ConnectionManager) sendTo(conn *Connection, event events.Event) {
	cm.enqueue(broadcastMessage{event: event, target: conn})
}

// unregisterConnection removes a connection from the manager
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.removeLocked(conn)
}

func (cm *ConnectionManager) removeLocked(conn *Connection) {
	if conn.closed {
		return
	}
	conn.closed = true
	close(conn.Send)

	if cm.connections[conn] {
		delete(cm.connections, conn)
		cm.metrics.ActiveConnections.Dec()
		log.Info().
			Str("connection_id", conn.ID).
			Int("total_connections", len(cm.connections)).
			Msg("connection unregistered")
	}
}

// handleBroadcast delivers one message. Sends never block; a connection
// whose buffer is full is closed.
func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	eventData, err := json.Marshal(message.event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	var targets []*Connection
	switch {
	case message.register != nil:
		conn := message.register
		if conn.closed {
			return
		}
		cm.connections[conn] = true
		cm.metrics.ActiveConnections.Inc()
		targets = []*Connection{conn}
	case message.target != nil:
		if !cm.connections[message.target] {
			return
		}
		targets = []*Connection{message.target}
	default:
		targets = make([]*Connection, 0, len(cm.connections))
		for conn := range cm.connections {
			targets = append(targets, conn)
		}
	}

	for _, conn := range targets {
		select {
		case conn.Send <- eventData:
			cm.metrics.MessagesPublished.Inc()
		default:
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("connection send buffer full, closing connection")
			cm.metrics.SlowClientsClosed.Inc()
			cm.removeLocked(conn)
			conn.Conn.Close()
		}
	}

	log.Trace().
		Str("event_type", string(message.event.Type)).
		Str("light_id", message.event.LightID).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// ConnectionCount returns the number of registered subscribers
func (cm *ConnectionManager) ConnectionCount() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.connections)
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage forwards a manualControl command to the engine and
// acknowledges it to this connection only.
func (c *Connection) handleClientMessage(message []byte) {
	var in events.InboundMessage
	if err := json.Unmarshal(message, &in); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("ignoring malformed client message")
		c.reply(models.ManualCommand{}, models.LightStatus{}, fmt.Errorf("malformed message: %w", err))
		return
	}

	if in.Type != events.EventTypeManualControl {
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", string(in.Type)).
			Msg("ignoring unsupported client message")
		return
	}

	var cmd models.ManualCommand
	if err := json.Unmarshal(in.Data, &cmd); err != nil {
		c.reply(cmd, models.LightStatus{}, fmt.Errorf("malformed command: %w", err))
		return
	}

	if !c.limiter.Allow() {
		log.Warn().Str("connection_id", c.ID).Str("light_id", cmd.LightID).Msg("manual command rate limited")
		c.reply(cmd, models.LightStatus{}, errRateLimited)
		return
	}

	status, err := c.Manager.controller.ApplyManualCommand(cmd)
	if err != nil {
		log.Info().
			Err(err).
			Str("connection_id", c.ID).
			Str("light_id", cmd.LightID).
			Msg("manual command rejected")
	}
	c.reply(cmd, status, err)
}

func (c *Connection) reply(cmd models.ManualCommand, status models.LightStatus, err error) {
	payload := events.ManualControlResultPayload{
		LightID: cmd.LightID,
		Success: err == nil,
	}
	if err != nil {
		payload.Error = err.Error()
	} else {
		payload.Light = &status
	}
	c.Manager.sendTo(c, events.NewManualControlResult(time.Now(), payload))
}
