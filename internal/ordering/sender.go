package ordering

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OrdersPath is the backend endpoint accepting orders.
const OrdersPath = "/orders"

// HTTPSender posts orders to the ordering backend.
type HTTPSender struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPSender constructs a sender for baseURL. httpClient may be nil.
func NewHTTPSender(baseURL, apiKey string, httpClient *http.Client) *HTTPSender {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSender{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type orderBody struct {
	SubmissionID string     `json:"submission_id"`
	ServeDate    string     `json:"serve_date"`
	RequestTime  string     `json:"request_time"`
	Name         string     `json:"name"`
	Department   string     `json:"department"`
	DeliveryType string     `json:"delivery_type"`
	Location     string     `json:"delivery_location,omitempty"`
	Menus        []menuLine `json:"menus"`
}

type menuLine struct {
	MenuID int64 `json:"menu_id"`
	Qty    int   `json:"qty"`
}

// Send posts order. Orders are not retried: a repeated POST could book twice.
func (s *HTTPSender) Send(ctx context.Context, order Order) error {
	body := orderBody{
		SubmissionID: order.SubmissionID,
		ServeDate:    order.ServeDate.String(),
		RequestTime:  order.RequestTime,
		Name:         order.Customer.Name,
		Department:   order.Customer.Department,
		DeliveryType: order.Customer.DeliveryType,
		Location:     order.Customer.DeliveryLocation,
		Menus:        make([]menuLine, 0, len(order.Menus)),
	}
	for _, m := range order.Menus {
		body.Menus = append(body.Menus, menuLine{MenuID: m.ID, Qty: m.Qty})
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+OrdersPath, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return nil
}
