package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/signalboard/go/internal/metrics"
	"github.com/mcdev12/signalboard/go/internal/models"
	"github.com/mcdev12/signalboard/go/internal/signal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// Sink receives every event the engine emits, in emission order.
// Publish is called with the engine lock held and must not call back into the engine.
type Sink interface {
	Publish(event events.Event)
}

// Engine owns every traffic light and is the only writer of light state.
// All mutations are serialized on a single mutex; events are emitted while
// it is held so each light's events reach sinks in the order they happened.
type Engine struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string

	adjustments AdjustmentTables
	clock       Clock
	sinks       []Sink
	metrics     *metrics.EngineMetrics

	root    context.Context
	stopped bool
}

type entry struct {
	light  *models.TrafficLight
	signal Signal
	cycle  *cycle
	gen    uint64
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the real clock
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithMetrics sets the collectors the engine reports to
func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSinks registers event sinks
func WithSinks(sinks ...Sink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, sinks...) }
}

// NewEngine creates an engine for lights. Light IDs must be unique.
func NewEngine(lights []models.TrafficLight, adjustments AdjustmentTables, opts ...Option) (*Engine, error) {
	e := &Engine{
		entries:     make(map[string]*entry, len(lights)),
		adjustments: adjustments,
		clock:       clockwork.NewRealClock(),
		root:        context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.NewEngineMetrics(prometheus.NewRegistry())
	}
	if _, ok := adjustments[models.CongestionMedium]; !ok {
		return nil, fmt.Errorf("adjustment tables must define %q", models.CongestionMedium)
	}

	for i := range lights {
		l := lights[i]
		if l.ID == "" {
			return nil, fmt.Errorf("light at index %d has no id", i)
		}
		if _, exists := e.entries[l.ID]; exists {
			return nil, fmt.Errorf("duplicate light id %q", l.ID)
		}
		if !l.CurrentState.Valid() {
			return nil, fmt.Errorf("light %q: %w: %q", l.ID, ErrInvalidState, l.CurrentState)
		}
		if err := l.Timing.Validate(); err != nil {
			return nil, fmt.Errorf("light %q: %w", l.ID, err)
		}
		if l.TimeLeft <= 0 {
			l.TimeLeft = l.Timing.For(l.CurrentState)
		}
		light := &l
		e.entries[l.ID] = &entry{light: light, signal: NewSignal(light)}
		e.order = append(e.order, l.ID)
	}

	return e, nil
}

// AddSink registers another event sink
func (e *Engine) AddSink(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

// Start begins the cycle of every light. Cycles stop when ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.root = ctx
	e.stopped = false
	for _, id := range e.order {
		e.startCycleLocked(id)
	}
	log.Info().Int("lights", len(e.order)).Msg("timing engine started")
}

// Stop cancels every pending cycle
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopped = true
	for _, id := range e.order {
		e.cancelCycleLocked(id)
	}
	log.Info().Msg("timing engine stopped")
}

// StartCycle restarts the cycle of light id from its current state and time left.
func (e *Engine) StartCycle(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrLightNotFound, id)
	}
	e.startCycleLocked(id)
	return nil
}

// ApplyManualCommand applies an override. Every validation happens before
// any field is written, so a rejected command leaves no trace.
func (e *Engine) ApplyManualCommand(cmd models.ManualCommand) (models.LightStatus, error) {
	if err := validateCommand(cmd); err != nil {
		e.metrics.ManualCommands.WithLabelValues("rejected").Inc()
		return models.LightStatus{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.entries[cmd.LightID]
	if !ok {
		e.metrics.ManualCommands.WithLabelValues("not_found").Inc()
		return models.LightStatus{}, fmt.Errorf("%w: %s", ErrLightNotFound, cmd.LightID)
	}

	resume := false
	if cmd.AutoControl != nil {
		resume = *cmd.AutoControl && ent.signal.Holding()
		ent.light.AutoControl = *cmd.AutoControl
	}

	switch {
	case cmd.State != "":
		duration := ent.light.Timing.For(cmd.State)
		if cmd.Duration != nil && *cmd.Duration > 0 {
			duration = *cmd.Duration
		}
		ent.signal.Enter(cmd.State, duration)
		e.startCycleLocked(cmd.LightID)
	case resume:
		next := ent.light.CurrentState.Next()
		ent.signal.Enter(next, ent.light.Timing.For(next))
		e.startCycleLocked(cmd.LightID)
	}

	e.metrics.ManualCommands.WithLabelValues("applied").Inc()
	log.Info().
		Str("light_id", cmd.LightID).
		Str("state", string(ent.light.CurrentState)).
		Int("time_left", ent.light.TimeLeft).
		Bool("auto_control", ent.light.AutoControl).
		Msg("manual command applied")

	return ent.light.Status(), nil
}

func validateCommand(cmd models.ManualCommand) error {
	if cmd.LightID == "" {
		return ErrMissingLightID
	}
	if cmd.State != "" && !cmd.State.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, cmd.State)
	}
	if cmd.Duration != nil && *cmd.Duration < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDuration, *cmd.Duration)
	}
	return nil
}

// ApplyCongestionAdjustment overwrites the timing of every auto-controlled
// light with the table for level. A light showing red or green has its time
// left reset to the new duration straight away; the running ticker keeps its
// phase. A yellow light keeps its remaining time and picks the new durations
// up on its next entry. Returns the timing that was applied.
func (e *Engine) ApplyCongestionAdjustment(level models.CongestionLevel) models.Timing {
	timing, applied := e.adjustments.Lookup(level)

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range e.order {
		l := e.entries[id].light
		if !l.AutoControl {
			continue
		}
		l.Timing = timing
		if l.CurrentState == models.LightStateRed || l.CurrentState == models.LightStateGreen {
			l.TimeLeft = timing.For(l.CurrentState)
		}
		log.Info().
			Str("light_id", l.ID).
			Str("name", l.Name).
			Int("green", timing.Green).
			Int("yellow", timing.Yellow).
			Int("red", timing.Red).
			Msg("light timing adjusted")
	}

	e.metrics.Adjustments.WithLabelValues(string(applied)).Inc()
	e.emitLocked(events.NewTimingUpdate(e.clock.Now(), e.timingSnapshotLocked()))
	return timing
}

// Snapshot returns the full state of every light in configuration order.
func (e *Engine) Snapshot() []models.LightSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// WithSnapshot calls fn with a snapshot while holding the engine lock, so no
// event is emitted between the snapshot and whatever fn does with it.
// fn must not call back into the engine.
func (e *Engine) WithSnapshot(fn func([]models.LightSnapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.snapshotLocked())
}

// Light returns the snapshot of a single light
func (e *Engine) Light(id string) (models.LightSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.entries[id]
	if !ok {
		return models.LightSnapshot{}, fmt.Errorf("%w: %s", ErrLightNotFound, id)
	}
	return ent.light.Snapshot(), nil
}

func (e *Engine) snapshotLocked() []models.LightSnapshot {
	return lo.Map(e.order, func(id string, _ int) models.LightSnapshot {
		return e.entries[id].light.Snapshot()
	})
}

func (e *Engine) timingSnapshotLocked() []models.TimingSnapshot {
	return lo.Map(e.order, func(id string, _ int) models.TimingSnapshot {
		return e.entries[id].light.TimingSnapshot()
	})
}

func (e *Engine) emitLocked(event events.Event) {
	for _, s := range e.sinks {
		s.Publish(event)
	}
}
