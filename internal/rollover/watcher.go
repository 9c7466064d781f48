// Package rollover notices business-day changes and purges state that
// belonged to the previous day.
package rollover

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"servedate/internal/clock"
	"servedate/internal/events"
	"servedate/internal/metrics"
	"servedate/internal/ordercache"
	"servedate/internal/servedate"
)

// DefaultInterval is how often the watcher re-evaluates today's key.
const DefaultInterval = 60 * time.Second

// Purger removes cached state that no longer belongs to today.
type Purger interface {
	PurgeStale(ctx context.Context) ordercache.Purge
}

// Watcher tracks the current business day.
type Watcher struct {
	clock    clock.Clock
	purger   Purger
	bus      *events.EventBus
	interval time.Duration
	logger   *zerolog.Logger

	mu      sync.Mutex
	lastKey servedate.Key
	running bool
	stopCh  chan struct{}
	kick    chan struct{}
}

// NewWatcher creates a watcher. purger and bus may be nil.
func NewWatcher(c clock.Clock, purger Purger, bus *events.EventBus, interval time.Duration, logger *zerolog.Logger) *Watcher {
	if c == nil {
		c = clock.System{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	w := &Watcher{
		clock:    c,
		purger:   purger,
		bus:      bus,
		interval: interval,
		logger:   logger,
		kick:     make(chan struct{}, 1),
	}
	if bus != nil {
		bus.Subscribe(events.TypeClockSynced, func(events.Event) error {
			w.Kick()
			return nil
		})
	}
	return w
}

// Today returns the key observed by the last check.
func (w *Watcher) Today() servedate.Key {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastKey
}

// Kick requests an immediate check from the running loop.
func (w *Watcher) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Start checks once and then on every interval, or when kicked, until ctx is
// done or Stop is called. It blocks. A stopped watcher may be started again.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	stop := make(chan struct{})
	w.stopCh = stop
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		if w.stopCh == stop {
			w.running = false
		}
		w.mu.Unlock()
	}()

	w.logger.Info().Dur("interval", w.interval).Msg("serve date watcher started")
	w.Check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("serve date watcher stopped by context")
			return
		case <-stop:
			w.logger.Info().Msg("serve date watcher stopped")
			return
		case <-ticker.C:
			w.Check(ctx)
		case <-w.kick:
			w.Check(ctx)
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.running {
		w.running = false
		close(w.stopCh)
	}
	w.mu.Unlock()
}

// Check evaluates today's key and purges stale state. It reports whether a
// rollover was observed; the first check only establishes the baseline.
func (w *Watcher) Check(ctx context.Context) bool {
	today := servedate.Today(w.clock)

	w.mu.Lock()
	prev := w.lastKey
	w.lastKey = today
	w.mu.Unlock()

	rolled := prev != "" && prev != today
	if rolled {
		metrics.IncServeDateRollover()
		w.logger.Info().
			Str("from", prev.String()).
			Str("to", today.String()).
			Msg("business day rolled over")
		w.publish(events.TypeServeDateRolled, events.ServeDateRolled{From: prev.String(), To: today.String()})
	}

	if w.purger != nil {
		if p := w.purger.PurgeStale(ctx); p.Removed {
			w.publish(events.TypeOrderCachePurged, events.OrderCachePurged{
				ServeDate: p.ServeDate.String(),
				Reason:    p.Reason,
			})
		}
	}

	return rolled
}

func (w *Watcher) publish(evType string, payload any) {
	if w.bus == nil {
		return
	}
	if err := w.bus.PublishJSON(evType, payload); err != nil {
		w.logger.Error().Err(err).Str("event", evType).Msg("failed to publish event")
	}
}
