package menucache

import (
	"context"

	"github.com/rs/zerolog"

	"servedate/internal/metrics"
	"servedate/internal/servedate"
)

// Fetcher loads menus for a range from the source of truth.
type Fetcher interface {
	Fetch(ctx context.Context, r servedate.Range) ([]Menu, error)
}

// Loader serves menu windows from the cache, fetching and storing on a miss.
type Loader struct {
	cache   *Cache
	fetcher Fetcher
	logger  *zerolog.Logger
}

// NewLoader creates a loader. cache may be nil, in which case every call fetches.
func NewLoader(cache *Cache, fetcher Fetcher, logger *zerolog.Logger) *Loader {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Loader{cache: cache, fetcher: fetcher, logger: logger}
}

// Menus returns the menus for r. Entries are cached under r's exact bounds, so
// a 7-day and a 10-day window starting on the same day are stored separately.
func (l *Loader) Menus(ctx context.Context, r servedate.Range) ([]Menu, error) {
	if l.cache != nil {
		var cached []Menu
		if l.cache.Get(ctx, r, &cached) {
			metrics.IncMenuCache("hit")
			return cached, nil
		}
	}
	metrics.IncMenuCache("miss")

	menus, err := l.fetcher.Fetch(ctx, r)
	if err != nil {
		return nil, err
	}
	if menus == nil {
		menus = []Menu{}
	}

	if l.cache != nil {
		if err := l.cache.Put(ctx, r, menus); err != nil {
			l.logger.Warn().Err(err).Str("key", Key(r)).Msg("menu cache write failed")
		}
	}
	return menus, nil
}
