package web

import (
	"context"

	"github.com/dlerazeezcore/the-book-platform/api"
)

// Wings reports fares but not seat counts, so remaining seats are probed by
// re-searching with growing passenger totals until a flight drops out of the
// results. A flight that disappears at N passengers has N-1 seats; one that
// survives every probe is reported as 9+.
const (
	seatsMaxProbe = 8
	seatsCeiling  = 9
)

// Pax is the passenger breakdown of a search.
type Pax struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Infants  int `json:"infants"`
}

func (p Pax) total() int {
	t := p.Adults + p.Children + p.Infants
	if t < 1 {
		return 1
	}
	return t
}

type searchPayload struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Date       string `json:"date"`
	TripType   string `json:"trip_type"`
	ReturnDate string `json:"return_date,omitempty"`
	Cabin      string `json:"cabin"`
	Pax        Pax    `json:"pax"`
}

// estimateSeats probes seat availability for the given outbound and return
// flight keys. A search failure mid-probe abandons the estimate and returns
// empty maps; partial answers would be misleading.
func estimateSeats(ctx context.Context, client *api.Client, payload searchPayload, keysOut, keysIn []string) (map[string]int, map[string]int) {
	seatsOut := pendingKeys(keysOut)
	seatsIn := pendingKeys(keysIn)
	if len(seatsOut) == 0 && len(seatsIn) == 0 {
		return map[string]int{}, map[string]int{}
	}

	baseTotal := payload.Pax.total()
	if baseTotal >= seatsMaxProbe {
		seats := baseTotal
		if seats > seatsCeiling {
			seats = seatsCeiling
		}
		return fillAll(seatsOut, seats), fillAll(seatsIn, seats)
	}

	baseAdults := payload.Pax.Adults
	if baseAdults < 1 {
		baseAdults = 1
	}

	for paxTotal := baseTotal + 1; paxTotal <= seatsMaxProbe; paxTotal++ {
		probe := payload
		probe.Pax.Adults = baseAdults + (paxTotal - baseTotal)

		resp, err := client.Availability(ctx, probe)
		if err != nil {
			return map[string]int{}, map[string]int{}
		}

		outSet := keySet(resp.Results)
		inSet := keySet(resp.ResultsReturn)

		for k, v := range seatsOut {
			if v == 0 && !outSet[k] {
				seatsOut[k] = paxTotal - 1
			}
		}
		for k, v := range seatsIn {
			if v == 0 && !inSet[k] {
				seatsIn[k] = paxTotal - 1
			}
		}
	}

	return fillUnresolved(seatsOut), fillUnresolved(seatsIn)
}

// pendingKeys seeds the result map with 0 meaning "not yet resolved".
func pendingKeys(keys []string) map[string]int {
	out := make(map[string]int, len(keys))
	for _, k := range keys {
		if k != "" {
			out[k] = 0
		}
	}
	return out
}

func keySet(results []map[string]any) map[string]bool {
	set := make(map[string]bool, len(results))
	for _, r := range results {
		if k := flightKey(r); k != "" {
			set[k] = true
		}
	}
	return set
}

func fillAll(m map[string]int, seats int) map[string]int {
	for k := range m {
		m[k] = seats
	}
	return m
}

func fillUnresolved(m map[string]int) map[string]int {
	for k, v := range m {
		if v == 0 {
			m[k] = seatsCeiling
		}
	}
	return m
}
