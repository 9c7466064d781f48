package api

import (
	"net/http"

	"servedate/internal/menucache"
	"servedate/internal/metrics"
	"servedate/internal/servedate"
)

// MenusResponse is the response for GET /api/menus.
type MenusResponse struct {
	Range servedate.Range  `json:"range"`
	Menus []menucache.Menu `json:"menus"`
}

// handleMenus lists the menus offered in the window starting today.
// GET /api/menus?days=7
func (s *HTTPServer) handleMenus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("menus")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}
	if s.deps.Menus == nil {
		writeError(w, http.StatusServiceUnavailable, "menus are not configured")
		return
	}

	window, ok := s.window(w, r, s.deps.Evaluator.Today())
	if !ok {
		return
	}

	rng := window.Range()
	menus, err := s.deps.Menus.Menus(r.Context(), rng)
	if err != nil {
		s.logger.Error().Err(err).Str("start", rng.Start.String()).Str("end", rng.End.String()).Msg("failed to load menus")
		writeError(w, http.StatusBadGateway, "failed to load menus")
		return
	}

	writeJSON(w, http.StatusOK, MenusResponse{Range: rng, Menus: menus})
}
