package ordering

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servedate/internal/ordercache"
)

func TestHTTPSender_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, OrdersPath, r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL+"/", "key", srv.Client())
	err := s.Send(context.Background(), Order{
		SubmissionID: "sub-1",
		ServeDate:    "2025-09-02",
		RequestTime:  "12:00～12:15",
		Customer:     ordercache.Customer{Name: "Sato", Department: "Sales", DeliveryType: "pickup"},
		Menus:        []Menu{{ID: 3, Qty: 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, "2025-09-02", got["serve_date"])
	assert.Equal(t, "12:00～12:15", got["request_time"])
	assert.Equal(t, "Sato", got["name"])
	menus, ok := got["menus"].([]any)
	require.True(t, ok)
	require.Len(t, menus, 1)
	assert.Equal(t, float64(3), menus[0].(map[string]any)["menu_id"])
}

func TestHTTPSender_ErrorStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewHTTPSender(srv.URL, "", srv.Client()).Send(context.Background(), Order{ServeDate: "2025-09-02"})
	assert.EqualError(t, err, "http 500")
	assert.Equal(t, 1, calls)
}
