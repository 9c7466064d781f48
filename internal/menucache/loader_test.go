package menucache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"servedate/internal/events"
	"servedate/internal/servedate"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, r servedate.Range) ([]Menu, error) {
	args := m.Called(ctx, r)
	menus, _ := args.Get(0).([]Menu)
	return menus, args.Error(1)
}

func TestLoader_FetchesOnceThenServesFromCache(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, time.Hour)
	r := rng("2025-09-02", "2025-09-08")
	want := []Menu{{ID: 1, ServeDate: "2025-09-03", Name: "Curry", Price: 650, Remaining: 12}}

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, r).Return(want, nil).Once()

	l := NewLoader(c, fetcher, nil)

	got, err := l.Menus(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, mr.Exists(Key(r)))

	got, err = l.Menus(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	fetcher.AssertExpectations(t)
}

func TestLoader_OrderInvalidatesCachedWindow(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, time.Hour)
	r := rng("2025-09-02", "2025-09-08")

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, r).Return([]Menu{{ID: 1, Remaining: 1}}, nil).Once()
	fetcher.On("Fetch", mock.Anything, r).Return([]Menu{{ID: 1, Remaining: 0}}, nil).Once()

	bus := events.NewEventBus()
	c.Subscribe(bus)
	l := NewLoader(c, fetcher, nil)

	got, err := l.Menus(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 1, got[0].Remaining)

	require.NoError(t, bus.PublishJSON(events.TypeOrderSubmitted, events.OrderSubmitted{ServeDate: "2025-09-04"}))
	assert.False(t, mr.Exists(Key(r)))

	got, err = l.Menus(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 0, got[0].Remaining)
	fetcher.AssertExpectations(t)
}

func TestLoader_FetchErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, time.Hour)
	r := rng("2025-09-02", "2025-09-08")

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, r).Return(nil, errors.New("backend down")).Once()

	_, err := NewLoader(c, fetcher, nil).Menus(ctx, r)
	assert.EqualError(t, err, "backend down")
	assert.False(t, mr.Exists(Key(r)))
}

func TestLoader_WithoutCache(t *testing.T) {
	r := rng("2025-09-02", "2025-09-08")
	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, r).Return(nil, nil).Twice()

	l := NewLoader(nil, fetcher, nil)
	for i := 0; i < 2; i++ {
		got, err := l.Menus(context.Background(), r)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NotNil(t, got)
	}
	fetcher.AssertExpectations(t)
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, MenusPath, r.URL.Path)
		assert.Equal(t, "2025-09-02", r.URL.Query().Get("start"))
		assert.Equal(t, "2025-09-11", r.URL.Query().Get("end"))
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":7,"serve_date":"2025-09-05","name":"Soba","price":500,"remaining":3,"cafe":true}]`))
	}))
	defer srv.Close()

	menus, err := NewHTTPFetcher(srv.URL+"/", "key", srv.Client()).Fetch(context.Background(), rng("2025-09-02", "2025-09-11"))
	require.NoError(t, err)
	assert.Equal(t, []Menu{{ID: 7, ServeDate: "2025-09-05", Name: "Soba", Price: 500, Remaining: 3, Cafe: true}}, menus)
}

func TestHTTPFetcher_BadResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{}`},
		{name: "not a list", status: http.StatusOK, body: `{"menus":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPFetcher(srv.URL, "", srv.Client()).Fetch(context.Background(), rng("2025-09-02", "2025-09-08"))
			assert.ErrorIs(t, err, ErrBadResponse)
		})
	}
}
