package ordercache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"servedate/internal/clock"
	"servedate/internal/metrics"
	"servedate/internal/servedate"
)

// DefaultKey is the storage slot holding the last submitted order.
const DefaultKey = "servedate:last_order"

// Purge reasons.
const (
	ReasonStale   = "stale"
	ReasonCorrupt = "corrupt"
)

// Storage is a single string-valued key/value slot provider.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Customer holds the customer fields entered at checkout.
type Customer struct {
	Name             string `json:"name"`
	Department       string `json:"department"`
	DeliveryType     string `json:"delivery_type"`
	DeliveryLocation string `json:"delivery_location,omitempty"`
	RequestTime      string `json:"request_time,omitempty"`
}

// SelectedMenu is one ordered line.
type SelectedMenu struct {
	MenuID int64  `json:"menu_id"`
	Title  string `json:"title,omitempty"`
	Qty    int    `json:"qty"`
	Price  int    `json:"price,omitempty"`
}

// CachedOrder is the persisted record of the most recent order. It belongs to
// exactly one business day, ServeDate, the day it was saved on.
// OrderServeDate is the day the order is to be served, which may be later.
type CachedOrder struct {
	ServeDate      servedate.Key  `json:"serve_date"`
	OrderServeDate servedate.Key  `json:"order_serve_date,omitempty"`
	Customer       Customer       `json:"customer"`
	Menus          []SelectedMenu `json:"menus"`
	SubmissionID   string         `json:"submission_id,omitempty"`
	SavedAt        time.Time      `json:"saved_at"`
}

// Purge describes what a read-time check removed.
type Purge struct {
	Removed   bool
	Reason    string
	ServeDate servedate.Key
}

// Cache keeps the last order for the current business day only.
type Cache struct {
	store  Storage
	clock  clock.Clock
	key    string
	logger *zerolog.Logger
}

// Option customizes a Cache.
type Option func(*Cache)

// WithKey overrides the storage slot name.
func WithKey(key string) Option {
	return func(c *Cache) {
		if key != "" {
			c.key = key
		}
	}
}

// New creates a Cache. c should be the authoritative clock.Source when one is
// wired so that records are tagged with the server's business day.
func New(store Storage, c clock.Clock, logger *zerolog.Logger, opts ...Option) *Cache {
	if c == nil {
		c = clock.System{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	cache := &Cache{store: store, clock: c, key: DefaultKey, logger: logger}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

// Save overwrites any previous record and tags it with today's business day.
// A ServeDate supplied by the caller is kept as OrderServeDate unless that is
// already set. The stored copy is returned.
func (c *Cache) Save(ctx context.Context, order CachedOrder) (CachedOrder, error) {
	now := c.clock.Now()
	if order.OrderServeDate == "" {
		order.OrderServeDate = order.ServeDate
	}
	order.ServeDate = servedate.KeyOf(now)
	order.SavedAt = now

	data, err := json.Marshal(order)
	if err != nil {
		return CachedOrder{}, fmt.Errorf("marshal cached order: %w", err)
	}
	if err := c.store.Set(ctx, c.key, string(data)); err != nil {
		return CachedOrder{}, fmt.Errorf("store cached order: %w", err)
	}
	return order, nil
}

// Load returns the cached order when it belongs to today's business day.
// A stale or corrupt record is deleted and reported as absent; storage
// failures are logged and also reported as absent.
func (c *Cache) Load(ctx context.Context) (*CachedOrder, bool) {
	order, _ := c.inspect(ctx)
	return order, order != nil
}

// PurgeStale removes the record if it no longer belongs to today.
func (c *Cache) PurgeStale(ctx context.Context) Purge {
	_, p := c.inspect(ctx)
	return p
}

// Clear removes the record unconditionally.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Remove(ctx, c.key); err != nil {
		return fmt.Errorf("remove cached order: %w", err)
	}
	return nil
}

func (c *Cache) inspect(ctx context.Context) (*CachedOrder, Purge) {
	raw, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", c.key).Msg("order cache read failed")
		return nil, Purge{}
	}
	if !ok {
		return nil, Purge{}
	}

	var order CachedOrder
	if err := json.Unmarshal([]byte(raw), &order); err != nil || !order.ServeDate.Valid() {
		c.logger.Warn().Str("key", c.key).Msg("discarding corrupt cached order")
		return nil, c.remove(ctx, Purge{Removed: true, Reason: ReasonCorrupt})
	}

	today := servedate.KeyOf(c.clock.Now())
	if order.ServeDate != today {
		c.logger.Debug().
			Str("serve_date", order.ServeDate.String()).
			Str("today", today.String()).
			Msg("discarding cached order from previous business day")
		return nil, c.remove(ctx, Purge{Removed: true, Reason: ReasonStale, ServeDate: order.ServeDate})
	}

	return &order, Purge{}
}

func (c *Cache) remove(ctx context.Context, p Purge) Purge {
	if err := c.store.Remove(ctx, c.key); err != nil {
		c.logger.Warn().Err(err).Str("key", c.key).Msg("order cache remove failed")
		p.Removed = false
		return p
	}
	metrics.IncOrderCachePurged(p.Reason)
	return p
}
