// Package servertime fetches the authoritative business clock from the
// ordering backend and keeps a clock.Source in sync with it.
package servertime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"servedate/internal/servedate"
)

// Path is the backend endpoint reporting the server's current time.
const Path = "/server-time"

// ErrBadResponse is returned when the backend answers with an unusable payload.
var ErrBadResponse = errors.New("servertime: bad response")

// RetryConfig controls exponential backoff between fetch attempts.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetry is used when a zero RetryConfig is supplied.
var DefaultRetry = RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    5 * time.Second,
}

// Response is the body of GET /server-time. CurrentTime may be an ISO-8601
// string or an epoch number.
type Response struct {
	CurrentTime json.RawMessage `json:"current_time"`
	Timezone    string          `json:"timezone"`
}

// Client calls the server-time endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      RetryConfig
	logger     *zerolog.Logger
}

// NewClient constructs a client for baseURL. httpClient may be nil.
func NewClient(baseURL, apiKey string, httpClient *http.Client, retry RetryConfig, logger *zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = DefaultRetry.MaxAttempts
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = DefaultRetry.BaseDelay
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = DefaultRetry.MaxDelay
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		retry:      retry,
		logger:     logger,
	}
}

// Fetch returns the server's current instant.
func (c *Client) Fetch(ctx context.Context) (time.Time, error) {
	var body Response
	if err := c.doGet(ctx, c.baseURL+Path, &body); err != nil {
		return time.Time{}, err
	}
	return decodeCurrentTime(body.CurrentTime)
}

func decodeCurrentTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, fmt.Errorf("%w: missing current_time", ErrBadResponse)
	}

	var value any
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
		}
		value = s
	} else {
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
		}
		value = n
	}

	t, err := servedate.ParseInstant(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	return t, nil
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
		if err != nil {
			return nil, err
		}
		c.addHeaders(req)
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: http %d", ErrBadResponse, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

// do executes a request with exponential backoff. 5xx and transport errors
// are retried; anything else is returned to the caller.
func (c *Client) do(ctx context.Context, buildReq func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	delay := c.retry.BaseDelay

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
		}

		if attempt == c.retry.MaxAttempts {
			break
		}

		c.logger.Debug().
			Err(lastErr).
			Int("attempt", attempt).
			Int("max_attempts", c.retry.MaxAttempts).
			Dur("delay", delay).
			Msg("server time fetch failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}

	return nil, fmt.Errorf("all %d attempts failed, last error: %w", c.retry.MaxAttempts, lastErr)
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}
