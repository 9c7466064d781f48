package servertime

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"servedate/internal/clock"
	"servedate/internal/events"
	"servedate/internal/servedate"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

var fastRetry = RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestClient_Fetch(t *testing.T) {
	want := time.Date(2025, 9, 2, 18, 14, 0, 0, servedate.Location)

	tests := []struct {
		name string
		body string
	}{
		{name: "iso string with offset", body: `{"current_time":"2025-09-02T18:14:00+09:00","timezone":"Asia/Tokyo"}`},
		{name: "iso string utc", body: `{"current_time":"2025-09-02T09:14:00Z"}`},
		{name: "epoch seconds", body: `{"current_time":1756804440}`},
		{name: "epoch millis", body: `{"current_time":1756804440000}`},
		{name: "epoch millis string", body: `{"current_time":"1756804440000"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, Path, r.URL.Path)
				assert.Equal(t, "secret", r.Header.Get("x-api-key"))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL+"/", "secret", srv.Client(), fastRetry, testLogger())
			got, err := c.Fetch(context.Background())
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}
}

func TestClient_FetchBadPayload(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "missing field", status: http.StatusOK, body: `{}`},
		{name: "null field", status: http.StatusOK, body: `{"current_time":null}`},
		{name: "garbage time", status: http.StatusOK, body: `{"current_time":"soon"}`},
		{name: "epoch overflow", status: http.StatusOK, body: `{"current_time":1e300}`},
		{name: "not json", status: http.StatusOK, body: `<html>`},
		{name: "client error", status: http.StatusNotFound, body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "", srv.Client(), fastRetry, testLogger())
			_, err := c.Fetch(context.Background())
			assert.ErrorIs(t, err, ErrBadResponse)
		})
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"current_time":"2025-09-02T12:00:00+09:00"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client(), fastRetry, testLogger())
	_, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client(), fastRetry, testLogger())
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}

func TestPoller_SyncObservesAndPublishes(t *testing.T) {
	serverNow := time.Date(2025, 9, 3, 0, 1, 0, 0, servedate.Location)
	device := clock.NewFixed(time.Date(2025, 9, 2, 23, 50, 0, 0, servedate.Location))
	source := clock.NewSource(device)

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything).Return(serverNow, nil).Once()

	bus := events.NewEventBus()
	var got events.ClockSynced
	bus.Subscribe(events.TypeClockSynced, func(e events.Event) error {
		return e.Decode(&got)
	})

	p := NewPoller(fetcher, source, bus, time.Minute, time.Second, testLogger())
	require.NoError(t, p.Sync(context.Background()))

	assert.True(t, source.Authoritative())
	assert.Equal(t, servedate.Key("2025-09-03"), servedate.Today(source))
	assert.True(t, serverNow.Equal(got.ServerTime))
	assert.Equal(t, 11*time.Minute, got.Offset)
	fetcher.AssertExpectations(t)
}

func TestPoller_SyncFailureKeepsDeviceClock(t *testing.T) {
	deviceNow := time.Date(2025, 9, 2, 12, 0, 0, 0, servedate.Location)
	source := clock.NewSource(clock.NewFixed(deviceNow))

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything).Return(time.Time{}, errors.New("offline"))

	bus := events.NewEventBus()
	published := false
	bus.Subscribe(events.TypeClockSynced, func(events.Event) error {
		published = true
		return nil
	})

	p := NewPoller(fetcher, source, bus, time.Minute, time.Second, testLogger())
	assert.Error(t, p.Sync(context.Background()))
	assert.False(t, source.Authoritative())
	assert.True(t, deviceNow.Equal(source.Now()))
	assert.False(t, published)
}

func TestPoller_RefreshIsThrottled(t *testing.T) {
	source := clock.NewSource(nil)
	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything).Return(time.Now(), nil).Once()

	p := NewPoller(fetcher, source, nil, time.Minute, time.Hour, testLogger())

	ran, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = p.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
}

type countingFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *countingFetcher) Fetch(context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return time.Now(), nil
}

func (f *countingFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPoller_StartStop(t *testing.T) {
	fetcher := &countingFetcher{}
	p := NewPoller(fetcher, clock.NewSource(nil), nil, 5*time.Millisecond, time.Second, testLogger())

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return fetcher.count() >= 3 }, time.Second, time.Millisecond)
	p.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPoller_RestartAfterStop(t *testing.T) {
	fetcher := &countingFetcher{}
	p := NewPoller(fetcher, clock.NewSource(nil), nil, 5*time.Millisecond, time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool { return fetcher.count() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done

	// Stopped by context, then started again and stopped explicitly.
	before := fetcher.count()
	done = make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()
	assert.Eventually(t, func() bool { return fetcher.count() >= before+2 }, time.Second, time.Millisecond)
	p.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after restart")
	}
}
