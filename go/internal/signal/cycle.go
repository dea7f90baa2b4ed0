package signal

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/signalboard/go/internal/signal/events"
	"github.com/rs/zerolog/log"
)

// cycle is the single driver of one light: a one-second ticker and the
// goroutine reading it. gen identifies the cycle so a goroutine that lost a
// race with its replacement can tell its ticks are stale.
type cycle struct {
	ticker clockwork.Ticker
	cancel context.CancelFunc
	gen    uint64
}

func (c *cycle) stop() {
	c.cancel()
	c.ticker.Stop()
}

// startCycleLocked replaces any existing cycle of light id with a new one
// starting from the light's current state and time left, and emits the
// transition into that state.
func (e *Engine) startCycleLocked(id string) {
	ent := e.entries[id]
	e.cancelCycleLocked(id)

	l := ent.light
	e.metrics.Transitions.WithLabelValues(string(l.CurrentState)).Inc()
	e.emitLocked(events.NewTransition(e.clock.Now(), id, l.CurrentState, l.TimeLeft))

	if e.stopped {
		return
	}

	ent.gen++
	ctx, cancel := context.WithCancel(e.root)
	c := &cycle{
		ticker: e.clock.NewTicker(time.Second),
		cancel: cancel,
		gen:    ent.gen,
	}
	ent.cycle = c

	go e.drive(ctx, id, c)

	log.Debug().
		Str("light_id", id).
		Str("state", string(l.CurrentState)).
		Int("time_left", l.TimeLeft).
		Uint64("gen", c.gen).
		Msg("cycle started")
}

// cancelCycleLocked stops and forgets the cycle of light id, if any
func (e *Engine) cancelCycleLocked(id string) {
	ent := e.entries[id]
	if ent.cycle == nil {
		return
	}
	ent.cycle.stop()
	ent.cycle = nil
	log.Debug().Str("light_id", id).Msg("cancelled existing cycle")
}

func (e *Engine) drive(ctx context.Context, id string, c *cycle) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.ticker.Chan():
			if !e.tick(id, c.gen) {
				return
			}
		}
	}
}

// tick advances light id by one second. It returns false once the cycle
// identified by gen is no longer the light's current one.
func (e *Engine) tick(id string, gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent := e.entries[id]
	if ent.cycle == nil || ent.cycle.gen != gen {
		return false
	}

	step := ent.signal.Tick()
	now := e.clock.Now()
	if step.Countdown {
		e.emitLocked(events.NewCountdown(now, id, step.Remaining))
	}
	if step.Entered != "" {
		e.metrics.Transitions.WithLabelValues(string(step.Entered)).Inc()
		e.emitLocked(events.NewTransition(now, id, step.Entered, ent.light.TimeLeft))
		log.Debug().
			Str("light_id", id).
			Str("state", string(step.Entered)).
			Int("duration", ent.light.TimeLeft).
			Msg("light transitioned")
	}
	return true
}
