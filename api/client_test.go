package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlerazeezcore/the-book-platform/logger"
)

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()

	c := NewClient(logger.Discard, Config{})
	assert.Equal(t, "http://127.0.0.1:5050", c.Config().Endpoint)

	c = NewClient(logger.Discard, Config{Endpoint: "http://backend:5050/"})
	assert.Equal(t, "http://backend:5050", c.Config().Endpoint)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer healthy.Close()

	c := NewClient(logger.Discard, Config{Endpoint: healthy.URL})
	assert.True(t, c.Health(context.Background()))

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	c = NewClient(logger.Discard, Config{Endpoint: broken.URL})
	assert.False(t, c.Health(context.Background()))
}

func TestHealthTimeout(t *testing.T) {
	t.Parallel()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer slow.Close()

	c := NewClient(logger.Discard, Config{Endpoint: slow.URL, Timeout: 50 * time.Millisecond})
	assert.False(t, c.Health(context.Background()))
}

func TestAvailability(t *testing.T) {
	t.Parallel()

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/availability", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "EBL", req["origin"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"meta": {"provider": "wings"},
			"results": [{"total_amount": "275,500"}],
			"results_return": []
		}`))
	}))
	defer svr.Close()

	c := NewClient(logger.Discard, Config{Endpoint: svr.URL})
	resp, err := c.Availability(context.Background(), map[string]any{"origin": "EBL"})
	require.NoError(t, err)

	assert.Equal(t, "wings", resp.Meta["provider"])
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "275,500", resp.Results[0]["total_amount"])
	assert.Empty(t, resp.ResultsReturn)
}

func TestAvailabilityError(t *testing.T) {
	t.Parallel()

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"search failed"}`, http.StatusInternalServerError)
	}))
	defer svr.Close()

	c := NewClient(logger.Discard, Config{Endpoint: svr.URL})
	_, err := c.Availability(context.Background(), map[string]any{})
	require.Error(t, err)

	var errResp *ErrorResponse
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, http.StatusInternalServerError, errResp.StatusCode)
	assert.Contains(t, errResp.Body, "search failed")
}

func TestBookPassesThroughPendingStatus(t *testing.T) {
	t.Parallel()

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/book", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"pending","booking_id":"PND-0011223344"}`))
	}))
	defer svr.Close()

	c := NewClient(logger.Discard, Config{Endpoint: svr.URL})
	body, status, err := c.Book(context.Background(), map[string]any{"trip_type": "oneway"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "PND-0011223344", body["booking_id"])
}

func TestBookSuccess(t *testing.T) {
	t.Parallel()

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","pnr":"ABC123"}`))
	}))
	defer svr.Close()

	c := NewClient(logger.Discard, Config{Endpoint: svr.URL})
	body, status, err := c.Book(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ABC123", body["pnr"])
}

func TestPermissions(t *testing.T) {
	t.Parallel()

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/permissions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"providers":{"wings":{"seats_estimation_enabled":false}}}`))
	}))
	defer svr.Close()

	c := NewClient(logger.Discard, Config{Endpoint: svr.URL})
	perms, err := c.Permissions(context.Background())
	require.NoError(t, err)

	providers, ok := perms["providers"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, providers, "wings")
}
