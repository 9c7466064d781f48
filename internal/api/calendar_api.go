package api

import (
	"net/http"
	"strconv"

	"servedate/internal/metrics"
	"servedate/internal/servedate"
	"servedate/internal/slots"
)

// CalendarResponse is the response for GET /api/calendar.
type CalendarResponse struct {
	Today              string           `json:"today"`
	Authoritative      bool             `json:"authoritative"`
	Window             []string         `json:"window"`
	Range              servedate.Range  `json:"range"`
	Selected           string           `json:"selected"`
	Snapped            bool             `json:"snapped"` // requested date fell outside the window
	DailyCutoffExpired bool             `json:"daily_cutoff_expired"`
	CutoffAt           string           `json:"cutoff_at"`
	Slots              []slots.SlotInfo `json:"slots"`
	CafeSlots          []slots.SlotInfo `json:"cafe_slots"`
}

// handleCalendar returns the orderable window and slot availability.
// GET /api/calendar?days=7&date=2025-09-03
func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("calendar")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	today := s.deps.Evaluator.Today()
	window, ok := s.window(w, r, today)
	if !ok {
		return
	}

	selected := window.Start()
	snapped := false
	if v := r.URL.Query().Get("date"); v != "" {
		key, err := servedate.ToKey(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
		selected = window.Snap(key)
		snapped = selected != key
	}

	resp := CalendarResponse{
		Today:              today.String(),
		Authoritative:      s.deps.Clock != nil && s.deps.Clock.Authoritative(),
		Window:             window.Strings(),
		Range:              window.Range(),
		Selected:           selected.String(),
		Snapped:            snapped,
		DailyCutoffExpired: s.deps.Evaluator.IsDailyCutoffExpired(),
		CutoffAt:           s.deps.Evaluator.CutoffAt().Format("15:04"),
		Slots:              s.deps.Evaluator.Slots(selected),
		CafeSlots:          s.deps.Evaluator.CafeSlots(selected),
	}

	writeJSON(w, http.StatusOK, resp)
}

// window builds the window starting today from the days query parameter. It
// writes the error response itself and reports false on failure.
func (s *HTTPServer) window(w http.ResponseWriter, r *http.Request, today servedate.Key) (servedate.Window, bool) {
	days := s.deps.WindowDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > s.deps.MaxDays {
			writeError(w, http.StatusBadRequest, "days must be between 1 and "+strconv.Itoa(s.deps.MaxDays))
			return nil, false
		}
		days = n
	}

	window, err := servedate.BuildWindowFrom(today, days)
	if err != nil {
		s.logger.Error().Err(err).Str("today", today.String()).Msg("failed to build window")
		writeError(w, http.StatusInternalServerError, "failed to build window")
		return nil, false
	}
	return window, true
}
