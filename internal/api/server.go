package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"servedate/internal/menucache"
	"servedate/internal/ordercache"
	"servedate/internal/ordering"
	"servedate/internal/servedate"
	"servedate/internal/slots"
)

// ClockStatus reports whether the business clock follows the server.
type ClockStatus interface {
	Now() time.Time
	Authoritative() bool
}

// Refresher forces an out-of-band server-time sync.
type Refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// OrderSubmitter validates and submits orders.
type OrderSubmitter interface {
	Submit(ctx context.Context, req ordering.Request) (ordering.Order, error)
}

// LastOrder returns today's cached order.
type LastOrder interface {
	Load(ctx context.Context) (*ordercache.CachedOrder, bool)
}

// MenuLister returns the menus offered within a window.
type MenuLister interface {
	Menus(ctx context.Context, r servedate.Range) ([]menucache.Menu, error)
}

// Deps are the collaborators served over HTTP. Refresher, Orders, LastOrder
// and Menus may be nil; their routes then answer 503.
type Deps struct {
	Clock      ClockStatus
	Evaluator  *slots.Evaluator
	Refresher  Refresher
	Orders     OrderSubmitter
	LastOrder  LastOrder
	Menus      MenuLister
	WindowDays int
	MaxDays    int
}

// HTTPServer exposes the business calendar.
type HTTPServer struct {
	deps   Deps
	logger *zerolog.Logger
	server *http.Server
}

// NewHTTPServer builds the server listening on port.
func NewHTTPServer(deps Deps, port int, logger *zerolog.Logger) *HTTPServer {
	if deps.WindowDays <= 0 {
		deps.WindowDays = servedate.DefaultWindowDays
	}
	if deps.MaxDays < deps.WindowDays {
		deps.MaxDays = servedate.ExtendedWindowDays
		if deps.MaxDays < deps.WindowDays {
			deps.MaxDays = deps.WindowDays
		}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	s := &HTTPServer{deps: deps, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/calendar", s.handleCalendar)
	mux.HandleFunc("/api/menus", s.handleMenus)
	mux.HandleFunc("/api/orders", s.handleOrders)
	mux.HandleFunc("/api/orders/last", s.handleLastOrder)
	mux.HandleFunc("/api/clock/refresh", s.handleClockRefresh)
	mux.HandleFunc("/server-time", s.handleServerTime)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routing handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("calendar API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
