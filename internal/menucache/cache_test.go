package menucache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servedate/internal/events"
	"servedate/internal/servedate"
)

type menu struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := zerolog.New(io.Discard)
	return New(client, ttl, &logger), mr
}

func rng(start, end string) servedate.Range {
	return servedate.Range{Start: servedate.Key(start), End: servedate.Key(end)}
}

func TestCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, time.Minute)
	r := rng("2025-09-02", "2025-09-08")

	var got []menu
	assert.False(t, c.Get(ctx, r, &got))

	require.NoError(t, c.Put(ctx, r, []menu{{ID: 1, Title: "Curry"}}))
	assert.True(t, mr.Exists("menus:2025-09-02:2025-09-08"))

	require.True(t, c.Get(ctx, r, &got))
	assert.Equal(t, []menu{{ID: 1, Title: "Curry"}}, got)

	// A different window never shares an entry.
	assert.False(t, c.Get(ctx, rng("2025-09-02", "2025-09-11"), &got))

	mr.FastForward(2 * time.Minute)
	assert.False(t, c.Get(ctx, r, &got))
}

func TestCache_DisabledWithoutTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, 0)
	r := rng("2025-09-02", "2025-09-08")

	require.NoError(t, c.Put(ctx, r, []menu{{ID: 1}}))
	assert.False(t, mr.Exists(Key(r)))
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, time.Minute)
	r := rng("2025-09-02", "2025-09-08")
	require.NoError(t, mr.Set(Key(r), "{broken"))

	var got []menu
	assert.False(t, c.Get(ctx, r, &got))
}

func TestCache_InvalidateDay(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, time.Hour)

	require.NoError(t, c.Put(ctx, rng("2025-09-02", "2025-09-08"), []menu{}))
	require.NoError(t, c.Put(ctx, rng("2025-09-09", "2025-09-15"), []menu{}))
	require.NoError(t, c.Put(ctx, rng("2025-09-08", "2025-09-17"), []menu{}))
	require.NoError(t, mr.Set("menus:garbage", "x"))
	require.NoError(t, mr.Set("other:2025-09-08:2025-09-08", "x"))

	tests := []struct {
		day     servedate.Key
		removed int
		left    []string
	}{
		// Both boundaries are inclusive.
		{day: "2025-09-08", removed: 2, left: []string{"menus:2025-09-09:2025-09-15"}},
		{day: "2025-09-01", removed: 0, left: []string{"menus:2025-09-09:2025-09-15"}},
		{day: "2025-09-15", removed: 1, left: nil},
	}

	for _, tt := range tests {
		n, err := c.InvalidateDay(ctx, tt.day)
		require.NoError(t, err)
		assert.Equal(t, tt.removed, n, "day %s", tt.day)

		for _, k := range tt.left {
			assert.True(t, mr.Exists(k), "%s should survive %s", k, tt.day)
		}
	}

	assert.True(t, mr.Exists("menus:garbage"))
	assert.True(t, mr.Exists("other:2025-09-08:2025-09-08"))
}

func TestCache_SubscribeInvalidatesOnOrder(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, time.Hour)
	require.NoError(t, c.Put(ctx, rng("2025-09-02", "2025-09-08"), []menu{}))

	bus := events.NewEventBus()
	c.Subscribe(bus)

	require.NoError(t, bus.PublishJSON(events.TypeOrderSubmitted, events.OrderSubmitted{
		SubmissionID: "sub-1",
		ServeDate:    "2025-09-05",
		Slot:         "12:00～12:15",
	}))

	assert.False(t, mr.Exists("menus:2025-09-02:2025-09-08"))
}
