package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dlerazeezcore/the-book-platform/httpserver"
	"github.com/dlerazeezcore/the-book-platform/wings"
	"github.com/google/uuid"
)

// Pax is the passenger counts of a search.
type Pax struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Infants  int `json:"infants"`
}

// AvailabilityRequest is the body of POST /api/availability.
type AvailabilityRequest struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Date       string `json:"date"`
	TripType   string `json:"trip_type"`
	ReturnDate string `json:"return_date"`
	Cabin      string `json:"cabin"`
	Pax        *Pax   `json:"pax"`
}

// BookingRequest is the body of POST /api/book. Itineraries arrive as
// JSON strings so the frontend can pass back whatever shape it selected
// from search results.
type BookingRequest struct {
	TripType              string            `json:"trip_type"`
	OutboundItineraryJSON string            `json:"outbound_itinerary_json"`
	ReturnItineraryJSON   string            `json:"return_itinerary_json"`
	Passengers            []wings.Passenger `json:"passengers"`
	Contact               *wings.Contact    `json:"contact"`
}

// normalizeCabin maps a user cabin to the Wings cabin value.
func normalizeCabin(v string) string {
	if strings.EqualFold(strings.TrimSpace(v), "business") {
		return "Business"
	}
	return "Economy"
}

func searchPayload(from, to, date, cabin string, pax Pax) *wings.SearchRequest {
	return &wings.SearchRequest{
		ProcessingInfo: wings.ProcessingInfo{SearchType: "STANDARD"},
		OriginDestinationInformation: []wings.OriginDestination{{
			DepartureDateTime:   wings.Value{Value: date},
			OriginLocation:      wings.Location{LocationCode: from},
			DestinationLocation: wings.Location{LocationCode: to},
		}},
		TravelPreferences: []wings.TravelPreference{{
			CabinPref: []wings.CabinPref{{Cabin: cabin}},
		}},
		TravelerInfoSummary: wings.TravelerInfoSummary{
			AirTravelerAvail: []wings.AirTravelerAvail{{
				PassengerTypeQuantity: []wings.PassengerTypeQuantity{
					{Code: "ADT", Quantity: pax.Adults},
					{Code: "CHD", Quantity: pax.Children},
					{Code: "INF", Quantity: pax.Infants},
				},
			}},
		},
	}
}

func disabledResponse() map[string]any {
	return map[string]any{
		"meta":             map[string]any{"disabled": true, "reason": "Provider OTA is disabled"},
		"results_outbound": []any{},
	}
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if s.wingsClient == nil {
		httpserver.WriteError(w, errWingsNotConfigured, http.StatusInternalServerError)
		return
	}

	var req AvailabilityRequest
	if err := httpserver.ReadJSON(r, &req); err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}
	pax := Pax{Adults: 1}
	if req.Pax != nil {
		pax = *req.Pax
	}
	roundtrip := req.TripType == "roundtrip" && req.ReturnDate != ""
	cabin := normalizeCabin(req.Cabin)

	pol := s.permissions.OTAPolicy(s.now())
	if !pol.Availability {
		httpserver.WriteJSON(w, http.StatusOK, disabledResponse())
		return
	}

	ctx := r.Context()

	respOut, err := s.wingsClient.AirLowFareSearch(ctx, searchPayload(req.From, req.To, req.Date, cabin, pax))
	if err != nil {
		httpserver.WriteError(w, err, http.StatusInternalServerError)
		return
	}
	normOut := wings.Normalize(respOut)
	results := normOut.Results

	// Separate return search so the frontend can select legs independently
	var resultsReturn []wings.Itinerary
	if roundtrip {
		respRet, err := s.wingsClient.AirLowFareSearch(ctx, searchPayload(req.To, req.From, req.ReturnDate, cabin, pax))
		if err != nil {
			httpserver.WriteError(w, err, http.StatusInternalServerError)
			return
		}
		resultsReturn = wings.Normalize(respRet).Results

		if rtMap := s.roundtripPriceMap(r, req, cabin, pax); len(rtMap) > 0 {
			for i := range resultsReturn {
				info, ok := rtMap[wings.ItinerarySignature(resultsReturn[i])]
				if !ok {
					continue
				}
				resultsReturn[i].RoundtripTotalCurrency = info.currency
				resultsReturn[i].RoundtripTotalAmount = info.amount
				raw := info.amountRaw
				resultsReturn[i].RoundtripAmountRaw = &raw
			}
		}
	}

	if pol.FiltersEnabled && len(pol.BlockedAirlines) > 0 {
		results = filterBlockedAirlines(results, pol.BlockedAirlines)
		resultsReturn = filterBlockedAirlines(resultsReturn, pol.BlockedAirlines)
	}

	if resultsReturn == nil {
		resultsReturn = []wings.Itinerary{}
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"meta":           normOut.Meta,
		"results":        results,
		"results_return": resultsReturn,
	})
}

type roundtripPrice struct {
	currency  string
	amount    string
	amountRaw float64
}

// roundtripPriceMap searches the roundtrip as a single priced itinerary
// and keys the true totals by the signature of each option's first
// return segment. A failed search just means no enrichment.
func (s *Server) roundtripPriceMap(r *http.Request, req AvailabilityRequest, cabin string, pax Pax) map[string]roundtripPrice {
	payload := searchPayload(req.From, req.To, req.Date, cabin, pax)
	payload.OriginDestinationInformation = append(payload.OriginDestinationInformation, wings.OriginDestination{
		DepartureDateTime:   wings.Value{Value: req.ReturnDate},
		OriginLocation:      wings.Location{LocationCode: req.To},
		DestinationLocation: wings.Location{LocationCode: req.From},
	})

	resp, err := s.wingsClient.AirLowFareSearch(r.Context(), payload)
	if err != nil {
		s.logger.Warn("Roundtrip price search failed: %v", err)
		return nil
	}

	out := map[string]roundtripPrice{}
	for _, pi := range resp.PricedItineraries.PricedItinerary {
		options := pi.AirItinerary.OriginDestinationOptions.OriginDestinationOption
		if len(options) < 2 || len(options[1].FlightSegment) == 0 {
			continue
		}

		fare := pi.AirItineraryPricingInfo.ItinTotalFare.First().TotalFare
		if fare == nil {
			continue
		}
		ccy := fare.CurrencyCode
		if ccy == "" {
			ccy = "IQD"
		}

		raw := fare.Amount.Float64()
		out[wings.SegmentSignature(options[1].FlightSegment[0])] = roundtripPrice{
			currency:  ccy,
			amount:    wings.FormatMoney(raw),
			amountRaw: raw,
		}
	}
	return out
}

func filterBlockedAirlines(results []wings.Itinerary, blocked []string) []wings.Itinerary {
	set := map[string]bool{}
	for _, b := range blocked {
		set[b] = true
	}

	out := results[:0]
	for _, it := range results {
		code := ""
		if len(it.Segments) > 0 {
			code = strings.ToUpper(strings.TrimSpace(it.Segments[0].Airline))
		}
		if !set[code] {
			out = append(out, it)
		}
	}
	return out
}

func newPendingID() string {
	u := uuid.New()
	return "PND-" + strings.ToUpper(fmt.Sprintf("%x", u[:]))[:10]
}

func pendingResponse(reason string) map[string]any {
	return map[string]any{
		"pending":    true,
		"status":     "pending",
		"pending_id": newPendingID(),
		"provider":   "OTA",
		"reason":     reason,
	}
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	if s.wingsClient == nil {
		httpserver.WriteError(w, errWingsNotConfigured, http.StatusInternalServerError)
		return
	}

	var req BookingRequest
	if err := httpserver.ReadJSON(r, &req); err != nil {
		httpserver.WriteError(w, err, http.StatusBadRequest)
		return
	}

	pol := s.permissions.OTAPolicy(s.now())
	if !pol.Availability {
		httpserver.WriteJSON(w, http.StatusOK, disabledResponse())
		return
	}

	// Permissions set to availability-only, or the schedule has ticketing
	// closed: queue as pending so it can be completed manually.
	if !pol.TicketingEffective {
		httpserver.WriteJSON(w, http.StatusOK, pendingResponse("Ticketing is disabled by permissions or schedule."))
		return
	}

	outbound, err := wings.ParseBookableItinerary([]byte(req.OutboundItineraryJSON))
	if err != nil {
		httpserver.WriteError(w, fmt.Errorf("invalid outbound_itinerary_json: %w", err), http.StatusBadRequest)
		return
	}

	var ret *wings.BookableItinerary
	if req.ReturnItineraryJSON != "" {
		if ret, err = wings.ParseBookableItinerary([]byte(req.ReturnItineraryJSON)); err != nil {
			httpserver.WriteError(w, fmt.Errorf("invalid return_itinerary_json: %w", err), http.StatusBadRequest)
			return
		}
	}

	if len(req.Passengers) == 0 {
		httpserver.WriteError(w, errors.New("passengers is required"), http.StatusBadRequest)
		return
	}

	airbookXML, err := wings.BuildAirBookXML(outbound, ret, req.Passengers, req.Contact, req.TripType)
	if err != nil {
		s.logger.Error("Building AirBook request failed: %v", err)
		httpserver.WriteJSON(w, http.StatusAccepted, pendingResponse("Ticketing failed. Manual completion required."))
		return
	}

	airbookResp, err := s.wingsClient.AirBook(r.Context(), airbookXML)
	if err != nil {
		// Provider offline or rejecting: hand back a pending booking
		// rather than losing the sale.
		s.logger.Error("AirBook failed: %v", err)
		httpserver.WriteJSON(w, http.StatusAccepted, pendingResponse("Ticketing failed upstream. Manual completion required."))
		return
	}

	refs := wings.ExtractBookingRefs(airbookResp)
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"pnr":           refs.PNR,
		"connectota_id": refs.ConnectOTAID,
		"request_xml":   airbookXML,
		"response_xml":  airbookResp,
	})
}
