package servertime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"servedate/internal/clock"
	"servedate/internal/events"
	"servedate/internal/metrics"
)

// DefaultInterval is how often the poller re-reads the server clock.
const DefaultInterval = 60 * time.Second

// Fetcher returns the authoritative current instant.
type Fetcher interface {
	Fetch(ctx context.Context) (time.Time, error)
}

// Poller periodically feeds a clock.Source with server time.
type Poller struct {
	fetcher  Fetcher
	source   *clock.Source
	bus      *events.EventBus
	interval time.Duration
	limiter  *rate.Limiter
	logger   *zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewPoller creates a poller. minRefresh bounds how often Refresh may hit the
// backend outside the regular interval. bus may be nil.
func NewPoller(fetcher Fetcher, source *clock.Source, bus *events.EventBus, interval, minRefresh time.Duration, logger *zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if minRefresh <= 0 {
		minRefresh = 5 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Poller{
		fetcher:  fetcher,
		source:   source,
		bus:      bus,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(minRefresh), 1),
		logger:   logger,
	}
}

// Start syncs once and then on every interval until ctx is done or Stop is
// called. It blocks. A stopped poller may be started again.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	stop := make(chan struct{})
	p.stopCh = stop
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.stopCh == stop {
			p.running = false
		}
		p.mu.Unlock()
	}()

	p.logger.Info().Dur("interval", p.interval).Msg("server time poller started")
	_ = p.Sync(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("server time poller stopped by context")
			return
		case <-stop:
			p.logger.Info().Msg("server time poller stopped")
			return
		case <-ticker.C:
			_ = p.Sync(ctx)
		}
	}
}

// Stop stops the poller.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.running {
		p.running = false
		close(p.stopCh)
	}
	p.mu.Unlock()
}

// Sync fetches server time once. On failure the source keeps its previous
// state, falling back to the device clock if it never synced.
func (p *Poller) Sync(ctx context.Context) error {
	serverNow, err := p.fetcher.Fetch(ctx)
	if err != nil {
		metrics.IncClockSync("error")
		p.logger.Warn().
			Err(err).
			Bool("authoritative", p.source.Authoritative()).
			Msg("server time unavailable, keeping current clock")
		return err
	}

	p.source.Observe(serverNow)
	offset := p.source.Offset()
	metrics.IncClockSync("ok")
	metrics.SetClockOffset(offset.Seconds())

	p.logger.Debug().
		Time("server_time", serverNow).
		Dur("offset", offset).
		Msg("server time synced")

	if p.bus != nil {
		if err := p.bus.PublishJSON(events.TypeClockSynced, events.ClockSynced{
			ServerTime: serverNow,
			Offset:     offset,
		}); err != nil {
			p.logger.Error().Err(err).Msg("failed to publish clock sync")
		}
	}
	return nil
}

// Refresh triggers an out-of-band sync, for example when a screen is opened.
// It reports false without contacting the backend when called too often.
func (p *Poller) Refresh(ctx context.Context) (bool, error) {
	if !p.limiter.Allow() {
		return false, nil
	}
	return true, p.Sync(ctx)
}
