package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"servedate/internal/metrics"
	"servedate/internal/ordering"
	"servedate/internal/servedate"
)

// validationResponse mirrors the rejection body the web client expects.
type validationResponse struct {
	Detail *ordering.ValidationError `json:"detail"`
}

// ServerTimeResponse is the response for GET /server-time.
type ServerTimeResponse struct {
	CurrentTime string `json:"current_time"`
	Timezone    string `json:"timezone"`
}

// handleOrders validates and submits an order.
// POST /api/orders
func (s *HTTPServer) handleOrders(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("orders")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}
	if s.deps.Orders == nil {
		writeError(w, http.StatusServiceUnavailable, "ordering is not configured")
		return
	}

	var req ordering.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	order, err := s.deps.Orders.Submit(r.Context(), req)
	if err != nil {
		var verr *ordering.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Detail: verr})
			return
		}
		s.logger.Error().Err(err).Msg("order submission failed")
		writeError(w, http.StatusBadGateway, "order submission failed")
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// handleLastOrder returns today's cached order.
// GET /api/orders/last
func (s *HTTPServer) handleLastOrder(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("orders_last")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}
	if s.deps.LastOrder == nil {
		writeError(w, http.StatusServiceUnavailable, "order cache is not configured")
		return
	}

	order, ok := s.deps.LastOrder.Load(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, "no order for today")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// handleClockRefresh forces a server-time sync.
// POST /api/clock/refresh
func (s *HTTPServer) handleClockRefresh(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("clock_refresh")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}
	if s.deps.Refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "server time sync is not configured")
		return
	}

	ran, err := s.deps.Refresher.Refresh(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "server time unavailable")
		return
	}
	if !ran {
		writeError(w, http.StatusTooManyRequests, "refresh requested too often")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"refreshed": true})
}

// handleServerTime reports the business clock in the backend's format.
// GET /server-time
func (s *HTTPServer) handleServerTime(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("server_time")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	now := time.Now()
	if s.deps.Clock != nil {
		now = s.deps.Clock.Now()
	}
	writeJSON(w, http.StatusOK, ServerTimeResponse{
		CurrentTime: now.In(servedate.Location).Format(time.RFC3339),
		Timezone:    servedate.Location.String(),
	})
}
