package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlerazeezcore/the-book-platform/env"
	"github.com/dlerazeezcore/the-book-platform/logger"
)

type fakeGateway struct {
	*httptest.Server

	seatsEnabled     bool
	bookStatus       int
	bookBody         string
	permissionsCalls int
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()

	g := &fakeGateway{
		seatsEnabled: true,
		bookStatus:   http.StatusOK,
		bookBody:     `{"status":"success","pnr":"ABC123"}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/api/permissions", func(w http.ResponseWriter, r *http.Request) {
		g.permissionsCalls++
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"providers": map[string]any{
				"OTA": map[string]any{"seats_estimation_enabled": g.seatsEnabled},
			},
		}))
	})
	mux.HandleFunc("/api/availability", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"meta":           map[string]any{"provider": "wings"},
			"results":        []map[string]any{twoSegmentResult()},
			"results_return": []map[string]any{},
		}))
	})
	mux.HandleFunc("/api/book", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(g.bookStatus)
		_, _ = w.Write([]byte(g.bookBody))
	})

	g.Server = httptest.NewServer(mux)
	t.Cleanup(g.Close)
	return g
}

func newTestWebServer(t *testing.T, backendURL string) *Server {
	t.Helper()

	s, err := NewServer(logger.Discard, Config{
		Addr:    "127.0.0.1:0",
		DataDir: t.TempDir(),
		Env: env.FromMap(map[string]string{
			"AVAILABILITY_BACKEND_URL": backendURL,
			"SUPER_ADMIN_EMAIL":        "ops@example.test",
			"SUPER_ADMIN_PASSWORD":     "pw-pw-pw-pw",
		}),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHandleBuild(t *testing.T) {
	t.Parallel()

	g := newFakeGateway(t)
	s := newTestWebServer(t, g.URL)

	rec, _ := doJSON(t, s, http.MethodGet, "/__build", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.NotEmpty(t, rec.Body.String())
}

func TestHandleHealthReportsBackend(t *testing.T) {
	t.Parallel()

	g := newFakeGateway(t)
	s := newTestWebServer(t, g.URL)

	rec, body := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, g.URL, body["backend"])
}

func TestHandleAvailabilityEnriches(t *testing.T) {
	t.Parallel()

	g := newFakeGateway(t)
	s := newTestWebServer(t, g.URL)

	rec, body := doJSON(t, s, http.MethodPost, "/api/availability", map[string]any{
		"from": "ebl", "to": "bgw", "date": "2026-09-01",
		"trip_type": "oneway", "cabin": "business",
		"pax": map[string]int{"adults": 1},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	results := body["results"].([]any)
	require.Len(t, results, 1)
	r := results[0].(map[string]any)

	assert.Equal(t, true, r["_has_bag"])
	assert.Equal(t, "Business", r["_cabin"])
	assert.Equal(t, "IQD 275,500", r["_price_label"])
	assert.NotEmpty(t, r["_flight_key"])
	assert.Equal(t, true, body["seats_enabled"])
}

func TestHandleAvailabilityBackendDown(t *testing.T) {
	t.Parallel()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer down.Close()

	s := newTestWebServer(t, down.URL)
	rec, body := doJSON(t, s, http.MethodPost, "/api/availability", map[string]any{"from": "EBL", "to": "BGW"})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotEmpty(t, body["error"])
}

func TestHandleBookPassesThrough(t *testing.T) {
	t.Parallel()

	g := newFakeGateway(t)
	s := newTestWebServer(t, g.URL)

	rec, body := doJSON(t, s, http.MethodPost, "/api/book", map[string]any{"trip_type": "oneway"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ABC123", body["pnr"])
}

func TestHandleBookPreservesPendingStatus(t *testing.T) {
	t.Parallel()

	g := newFakeGateway(t)
	g.bookStatus = http.StatusAccepted
	g.bookBody = `{"status":"pending","booking_id":"PND-0011223344"}`
	s := newTestWebServer(t, g.URL)

	rec, body := doJSON(t, s, http.MethodPost, "/api/book", map[string]any{})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "PND-0011223344", body["booking_id"])
}

func TestHandleFeatures(t *testing.T) {
	t.Parallel()

	g := newFakeGateway(t)
	g.seatsEnabled = false
	s := newTestWebServer(t, g.URL)

	rec, body := doJSON(t, s, http.MethodGet, "/api/features", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["seats_estimation"])
}

func TestPermissionsCached(t *testing.T) {
	t.Parallel()

	g := newFakeGateway(t)
	s := newTestWebServer(t, g.URL)

	doJSON(t, s, http.MethodGet, "/api/features", nil)
	doJSON(t, s, http.MethodGet, "/api/features", nil)
	assert.Equal(t, 1, g.permissionsCalls)
}

func TestHandleSeatsEstimateDisabled(t *testing.T) {
	t.Parallel()

	g := newFakeGateway(t)
	g.seatsEnabled = false
	s := newTestWebServer(t, g.URL)

	rec, body := doJSON(t, s, http.MethodPost, "/api/seats-estimate", map[string]any{
		"from": "EBL", "to": "BGW", "keys_out": []string{"k"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Seat estimation is disabled.", body["error"])
}

func TestHandleSeatsEstimate(t *testing.T) {
	t.Parallel()

	g := newFakeGateway(t)
	s := newTestWebServer(t, g.URL)

	key := flightKey(twoSegmentResult())
	rec, body := doJSON(t, s, http.MethodPost, "/api/seats-estimate", map[string]any{
		"from": "EBL", "to": "BGW", "date": "2026-09-01",
		"trip_type": "oneway", "cabin": "economy",
		"pax":      map[string]int{"adults": 1},
		"keys_out": []string{key},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	// The fake gateway always returns the flight, so the estimate caps out.
	seatsOut := body["seats_out"].(map[string]any)
	assert.EqualValues(t, 9, seatsOut[key])
}

func TestConfigDefaultsPortFromEnv(t *testing.T) {
	t.Parallel()

	s, err := NewServer(logger.Discard, Config{
		DataDir: t.TempDir(),
		Env: env.FromMap(map[string]string{
			"PORT":                 "0",
			"SUPER_ADMIN_EMAIL":    "ops@example.test",
			"SUPER_ADMIN_PASSWORD": "pw-pw-pw-pw",
		}),
	})
	require.NoError(t, err)
	defer func() { _ = s.Stop() }()

	assert.NotEmpty(t, s.Addr())
}
