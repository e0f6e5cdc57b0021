package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlerazeezcore/the-book-platform/api"
	"github.com/dlerazeezcore/the-book-platform/logger"
)

func seatResult(flight string) map[string]any {
	return map[string]any{
		"segments": []any{
			map[string]any{
				"airline": "IA",
				"flight":  flight,
				"dep":     "EBL",
				"arr":     "BGW",
				"dep_dt":  "2026-09-01T08:05:00.000+0300",
				"arr_dt":  "2026-09-01T09:10:00.000+0300",
			},
		},
	}
}

func seatKey(flight string) string {
	return flightKey(seatResult(flight))
}

// fakeSeatsBackend serves availability where flight 322 sells out at the
// given passenger total and flight 450 never does.
func fakeSeatsBackend(t *testing.T, sellOutAt int, calls *int) *httptest.Server {
	t.Helper()
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/availability", r.URL.Path)
		*calls++

		var payload searchPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		total := payload.Pax.total()

		results := []map[string]any{seatResult("450")}
		if total < sellOutAt {
			results = append(results, seatResult("322"))
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"meta":           map[string]any{},
			"results":        results,
			"results_return": []map[string]any{},
		}))
	}))
	t.Cleanup(svr.Close)
	return svr
}

func TestEstimateSeats(t *testing.T) {
	t.Parallel()

	calls := 0
	backend := fakeSeatsBackend(t, 3, &calls)
	client := api.NewClient(logger.Discard, api.Config{Endpoint: backend.URL})

	payload := searchPayload{
		From: "EBL", To: "BGW", Date: "2026-09-01",
		TripType: "oneway", Cabin: "economy",
		Pax: Pax{Adults: 1},
	}

	seatsOut, seatsIn := estimateSeats(context.Background(), client, payload,
		[]string{seatKey("322"), seatKey("450")}, nil)

	// Flight 322 vanished when probing 3 passengers, flight 450 never did.
	assert.Equal(t, 2, seatsOut[seatKey("322")])
	assert.Equal(t, 9, seatsOut[seatKey("450")])
	assert.Empty(t, seatsIn)

	// One probe per passenger total from 2 through 8.
	assert.Equal(t, 7, calls)
}

func TestEstimateSeatsNoKeys(t *testing.T) {
	t.Parallel()

	client := api.NewClient(logger.Discard, api.Config{Endpoint: "http://unused:1"})
	out, in := estimateSeats(context.Background(), client, searchPayload{Pax: Pax{Adults: 1}}, nil, nil)
	assert.Empty(t, out)
	assert.Empty(t, in)
}

func TestEstimateSeatsLargePartySkipsProbing(t *testing.T) {
	t.Parallel()

	calls := 0
	backend := fakeSeatsBackend(t, 99, &calls)
	client := api.NewClient(logger.Discard, api.Config{Endpoint: backend.URL})

	payload := searchPayload{Pax: Pax{Adults: 8, Children: 2}}
	out, _ := estimateSeats(context.Background(), client, payload, []string{seatKey("322")}, nil)

	assert.Equal(t, 9, out[seatKey("322")])
	assert.Equal(t, 0, calls)
}

func TestEstimateSeatsBackendFailure(t *testing.T) {
	t.Parallel()

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer svr.Close()

	client := api.NewClient(logger.Discard, api.Config{Endpoint: svr.URL})
	out, in := estimateSeats(context.Background(), client, searchPayload{Pax: Pax{Adults: 1}},
		[]string{seatKey("322")}, []string{seatKey("450")})

	assert.Empty(t, out)
	assert.Empty(t, in)
}

func TestEstimateSeatsReturnLeg(t *testing.T) {
	t.Parallel()

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload searchPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		// Return flight 777 sells out at 4 passengers.
		ret := []map[string]any{}
		if payload.Pax.total() < 4 {
			ret = append(ret, seatResult("777"))
		}
		fmt.Fprintf(w, `{"meta":{},"results":[],"results_return":%s}`, mustJSON(t, ret))
	}))
	defer svr.Close()

	client := api.NewClient(logger.Discard, api.Config{Endpoint: svr.URL})
	payload := searchPayload{TripType: "roundtrip", Pax: Pax{Adults: 2}}
	_, seatsIn := estimateSeats(context.Background(), client, payload, nil, []string{seatKey("777")})

	assert.Equal(t, 3, seatsIn[seatKey("777")])
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
