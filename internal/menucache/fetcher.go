package menucache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"servedate/internal/servedate"
)

// MenusPath is the backend endpoint listing menus for a range of serve dates.
const MenusPath = "/menus"

// ErrBadResponse is returned when the backend answers with an unusable payload.
var ErrBadResponse = errors.New("menucache: bad response")

// Menu is one dish offered on a serve date.
type Menu struct {
	ID        int64         `json:"id"`
	ServeDate servedate.Key `json:"serve_date"`
	Name      string        `json:"name"`
	Price     int           `json:"price"`
	Remaining int           `json:"remaining"`
	Cafe      bool          `json:"cafe"`
}

// HTTPFetcher reads menus from the ordering backend.
type HTTPFetcher struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPFetcher constructs a fetcher for baseURL. httpClient may be nil.
func NewHTTPFetcher(baseURL, apiKey string, httpClient *http.Client) *HTTPFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Fetch returns the menus served within r, both ends inclusive.
func (f *HTTPFetcher) Fetch(ctx context.Context, r servedate.Range) ([]Menu, error) {
	q := url.Values{}
	q.Set("start", r.Start.String())
	q.Set("end", r.End.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+MenusPath+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("x-api-key", f.apiKey)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http %d", ErrBadResponse, resp.StatusCode)
	}
	var menus []Menu
	if err := json.NewDecoder(resp.Body).Decode(&menus); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return menus, nil
}
