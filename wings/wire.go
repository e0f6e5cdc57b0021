package wings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Wings responses are loose about shapes: fields documented as arrays
// arrive as single objects, numbers arrive as strings, and vice versa.
// The wire types here absorb that so the rest of the package can work
// with predictable values.

// List accepts either a JSON array or a single object.
type List[T any] []T

func (l *List[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*l = nil
		return nil
	}
	if b[0] == '[' {
		var s []T
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = s
		return nil
	}
	var single T
	if err := json.Unmarshal(b, &single); err != nil {
		return err
	}
	*l = []T{single}
	return nil
}

// First returns the first element, or the zero value for an empty list.
func (l List[T]) First() T {
	if len(l) == 0 {
		var zero T
		return zero
	}
	return l[0]
}

// Text accepts a JSON string, number or bool and stores it as a string.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(string(b))
	return nil
}

func (t Text) String() string {
	return string(t)
}

// Number accepts a JSON number or a numeric string.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing number %q: %w", s, err)
	}
	*n = Number(f)
	return nil
}

func (n Number) Float64() float64 {
	return float64(n)
}

// SearchRequest is the AirLowFareSearch payload.
type SearchRequest struct {
	ProcessingInfo               ProcessingInfo      `json:"ProcessingInfo"`
	OriginDestinationInformation []OriginDestination `json:"OriginDestinationInformation"`
	TravelPreferences            []TravelPreference  `json:"TravelPreferences"`
	TravelerInfoSummary          TravelerInfoSummary `json:"TravelerInfoSummary"`
}

type ProcessingInfo struct {
	SearchType string `json:"SearchType"`
}

type OriginDestination struct {
	DepartureDateTime   Value    `json:"DepartureDateTime"`
	OriginLocation      Location `json:"OriginLocation"`
	DestinationLocation Location `json:"DestinationLocation"`
}

type Value struct {
	Value string `json:"value"`
}

type Location struct {
	LocationCode string `json:"LocationCode"`
}

type TravelPreference struct {
	CabinPref []CabinPref `json:"CabinPref"`
}

type CabinPref struct {
	Cabin string `json:"Cabin"`
}

type TravelerInfoSummary struct {
	AirTravelerAvail []AirTravelerAvail `json:"AirTravelerAvail"`
}

type AirTravelerAvail struct {
	PassengerTypeQuantity []PassengerTypeQuantity `json:"PassengerTypeQuantity"`
}

type PassengerTypeQuantity struct {
	Code     string `json:"Code"`
	Quantity int    `json:"Quantity"`
}

// SearchResponse is the AirLowFareSearch response.
type SearchResponse struct {
	EchoToken         string `json:"echoToken"`
	TargetName        string `json:"targetName"`
	PricedItineraries struct {
		PricedItinerary List[PricedItinerary] `json:"pricedItinerary"`
	} `json:"pricedItineraries"`
}

type PricedItinerary struct {
	SequenceNumber          int           `json:"sequenceNumber"`
	AirItinerary            AirItinerary  `json:"airItinerary"`
	AirItineraryPricingInfo PricingInfo   `json:"airItineraryPricingInfo"`
	TicketingInfo           TicketingInfo `json:"ticketingInfo"`
}

type AirItinerary struct {
	OriginDestinationOptions struct {
		OriginDestinationOption List[OriginDestinationOption] `json:"originDestinationOption"`
	} `json:"originDestinationOptions"`
}

type OriginDestinationOption struct {
	FlightSegment List[FlightSegment] `json:"flightSegment"`
}

type FlightSegment struct {
	DepartureDateTime string          `json:"departureDateTime"`
	ArrivalDateTime   string          `json:"arrivalDateTime"`
	FlightNumber      Text            `json:"flightNumber"`
	ResBookDesigCode  string          `json:"resBookDesigCode"`
	FareBasisCode     string          `json:"fareBasisCode"`
	DepartureAirport  Airport         `json:"departureAirport"`
	ArrivalAirport    Airport         `json:"arrivalAirport"`
	OperatingAirline  Airline         `json:"operatingAirline"`
	MarketingAirline  Airline         `json:"marketingAirline"`
	Equipment         List[Equipment] `json:"equipment"`
	TPAExtensions     TPAExtensions   `json:"tpaextensions"`
}

type Airport struct {
	LocationCode string `json:"locationCode"`
}

type Airline struct {
	Code             string `json:"code"`
	CompanyShortName string `json:"companyShortName"`
}

type Equipment struct {
	AirEquipType Text `json:"airEquipType"`
}

type TPAExtensions struct {
	Any List[TPAExtension] `json:"any"`
}

type TPAExtension struct {
	FreeBaggage      Text `json:"freeBaggage"`
	Duration         Text `json:"duration"`
	AircraftName     Text `json:"aircraftName"`
	DepartureAirport Text `json:"departureAirport"`
	ArrivalAirport   Text `json:"arrivalAirport"`
	DepartureCountry Text `json:"departureCountry"`
	ArrivalCountry   Text `json:"arrivalCountry"`
	DepartureCity    Text `json:"departureCity"`
	ArrivalCity      Text `json:"arrivalCity"`
}

type PricingInfo struct {
	ItinTotalFare List[ItinTotalFare] `json:"itinTotalFare"`
}

type ItinTotalFare struct {
	BaseFare  *Fare `json:"baseFare"`
	TotalFare *Fare `json:"totalFare"`
}

type Fare struct {
	CurrencyCode  string `json:"currencyCode"`
	DecimalPlaces Text   `json:"decimalPlaces"`
	Amount        Number `json:"amount"`
}

type TicketingInfo struct {
	TicketingVendor TicketingVendor `json:"ticketingVendor"`
}

type TicketingVendor struct {
	CompanyShortName string `json:"companyShortName"`
	Code             Text   `json:"code"`
	CodeContext      string `json:"codeContext"`
}
