package congestion

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/signalboard/go/internal/metrics"
	"github.com/mcdev12/signalboard/go/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 5 * time.Second
)

// Source fetches the current congestion reading
type Source interface {
	CurrentCongestion(ctx context.Context) (models.CongestionSample, error)
}

// Adjuster applies a congestion level to the lights
type Adjuster interface {
	ApplyCongestionAdjustment(level models.CongestionLevel) models.Timing
}

// Config controls the poll loop
type Config struct {
	Interval time.Duration
	// Timeout bounds each fetch
	Timeout time.Duration
}

// Poller periodically reads congestion data and retunes the engine. A failed
// fetch skips the pass and leaves every duration as it was.
type Poller struct {
	source   Source
	adjuster Adjuster
	config   Config
	clock    clockwork.Clock
	metrics  *metrics.CongestionMetrics

	mu     sync.RWMutex
	latest *models.CongestionSample
}

// NewPoller creates a poller. A nil clock means the real clock; nil metrics are registered on a private registry.
func NewPoller(source Source, adjuster Adjuster, config Config, clock clockwork.Clock, m *metrics.CongestionMetrics) *Poller {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if m == nil {
		m = metrics.NewCongestionMetrics(prometheus.NewRegistry())
	}
	return &Poller{
		source:   source,
		adjuster: adjuster,
		config:   config,
		clock:    clock,
		metrics:  m,
	}
}

// Run polls every interval until ctx is cancelled. The first poll happens one interval after Run is called.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.config.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", p.config.Interval).Msg("congestion poller started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("congestion poller stopped")
			return
		case <-ticker.Chan():
			p.Poll(ctx)
		}
	}
}

// Poll performs a single fetch-and-apply pass. It reports whether an adjustment was applied.
func (p *Poller) Poll(ctx context.Context) bool {
	fetchCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	sample, err := p.source.CurrentCongestion(fetchCtx)
	if err != nil {
		p.metrics.Polls.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("congestion fetch failed, keeping current timings")
		return false
	}

	p.mu.Lock()
	p.latest = &sample
	p.mu.Unlock()

	p.metrics.Polls.WithLabelValues("ok").Inc()
	p.metrics.VehiclesPerMinute.Set(sample.VehiclesPerMinute)

	log.Info().
		Str("level", string(sample.Level)).
		Float64("vehicles_per_minute", sample.VehiclesPerMinute).
		Msg("current congestion")

	timing := p.adjuster.ApplyCongestionAdjustment(sample.Level)
	log.Debug().
		Int("green", timing.Green).
		Int("yellow", timing.Yellow).
		Int("red", timing.Red).
		Msg("congestion adjustment applied")
	return true
}

// Latest returns the most recent successful sample
func (p *Poller) Latest() (models.CongestionSample, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return models.CongestionSample{}, false
	}
	return *p.latest, true
}
