// Package menucache caches menu listings fetched for a window of serve dates.
package menucache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"servedate/internal/events"
	"servedate/internal/metrics"
	"servedate/internal/servedate"
)

const keyPrefix = "menus:"

// Cache stores one JSON document per fetched range, keyed by its exact bounds.
type Cache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

// New creates a cache. ttl <= 0 disables caching entirely.
func New(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *Cache {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Cache{redis: client, ttl: ttl, logger: logger}
}

func (c *Cache) enabled() bool {
	return c.redis != nil && c.ttl > 0
}

// Key returns the redis key for r.
func Key(r servedate.Range) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, r.Start, r.End)
}

func parseKey(key string) (servedate.Range, bool) {
	rest, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return servedate.Range{}, false
	}
	start, end, ok := strings.Cut(rest, ":")
	if !ok {
		return servedate.Range{}, false
	}
	r := servedate.Range{Start: servedate.Key(start), End: servedate.Key(end)}
	if !r.Start.Valid() || !r.End.Valid() {
		return servedate.Range{}, false
	}
	return r, true
}

// Get loads the document cached for r into out. Misses, decode failures and
// redis errors all report false.
func (c *Cache) Get(ctx context.Context, r servedate.Range, out any) bool {
	if !c.enabled() {
		return false
	}
	val, err := c.redis.Get(ctx, Key(r)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", Key(r)).Msg("menu cache read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

// Put caches val for r.
func (c *Cache) Put(ctx context.Context, r servedate.Range, val any) error {
	if !c.enabled() {
		return nil
	}
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshal menus: %w", err)
	}
	return c.redis.Set(ctx, Key(r), data, c.ttl).Err()
}

// InvalidateDay deletes every cached range whose bounds include day and
// returns how many were removed.
func (c *Cache) InvalidateDay(ctx context.Context, day servedate.Key) (int, error) {
	if c.redis == nil {
		return 0, nil
	}

	var stale []string
	iter := c.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		r, ok := parseKey(key)
		if !ok {
			continue
		}
		if servedate.InRange(r.Start, r.End, day) {
			stale = append(stale, key)
		}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan menu cache: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	n, err := c.redis.Del(ctx, stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete menu cache: %w", err)
	}
	metrics.AddMenuCacheInvalidated(int(n))
	c.logger.Debug().Str("serve_date", day.String()).Int64("removed", n).Msg("menu cache invalidated")
	return int(n), nil
}

// Subscribe drops cached ranges covering the serve date of every submitted order.
func (c *Cache) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.TypeOrderSubmitted, func(e events.Event) error {
		var payload events.OrderSubmitted
		if err := e.Decode(&payload); err != nil {
			return err
		}
		_, err := c.InvalidateDay(context.Background(), servedate.Key(payload.ServeDate))
		return err
	})
}
