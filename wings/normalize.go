package wings

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Normalized search result shapes. The JSON field names are part of the
// contract with the web frontend, which passes itineraries back verbatim
// when booking.

type Meta struct {
	EchoToken  string `json:"echoToken"`
	TargetName string `json:"targetName"`
}

type Segment struct {
	Dep         string `json:"dep"`
	Arr         string `json:"arr"`
	DepDT       string `json:"dep_dt"`
	ArrDT       string `json:"arr_dt"`
	Airline     string `json:"airline"`
	AirlineName string `json:"airline_name"`
	Flight      string `json:"flight"`
	Class       string `json:"class"`
	FareBasis   string `json:"fare_basis"`
	Equipment   string `json:"equipment"`
	Aircraft    string `json:"aircraft"`
	Baggage     string `json:"baggage"`
	DurationRaw string `json:"duration_raw"`
}

type Summary struct {
	DepartTime   string `json:"depart_time"`
	ArriveTime   string `json:"arrive_time"`
	DurationMins int    `json:"duration_mins"`
	Duration     string `json:"duration"`
	Stops        int    `json:"stops"`
	StopsLabel   string `json:"stops_label"`
}

type Ticketing struct {
	CompanyShortName string `json:"companyShortName"`
	Code             string `json:"code"`
	CodeContext      string `json:"codeContext"`
}

type Itinerary struct {
	SequenceNumber int       `json:"sequenceNumber"`
	Segments       []Segment `json:"segments"`
	Summary        Summary   `json:"summary"`
	TotalCurrency  string    `json:"total_currency"`
	TotalAmount    string    `json:"total_amount"`
	AmountRaw      float64   `json:"amount_raw"`
	Ticketing      Ticketing `json:"ticketing"`

	// Set on return results of a roundtrip search, when a matching
	// roundtrip-priced itinerary is found.
	RoundtripTotalCurrency string   `json:"roundtrip_total_currency,omitempty"`
	RoundtripTotalAmount   string   `json:"roundtrip_total_amount,omitempty"`
	RoundtripAmountRaw     *float64 `json:"roundtrip_amount_raw,omitempty"`
}

// Availability is the normalized form of a one-leg search response.
type Availability struct {
	Meta    Meta        `json:"meta"`
	Results []Itinerary `json:"results_outbound"`
}

// Wings timestamps look like 2026-02-02T14:20:00.000+0300.
var timeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatHHMM(s string) string {
	t, ok := parseTime(s)
	if !ok {
		return ""
	}
	return t.Format("15:04")
}

// DurationMinutes returns the whole minutes between two Wings timestamps,
// or 0 when either end is unparseable.
func DurationMinutes(depDT, arrDT string) int {
	d0, ok0 := parseTime(depDT)
	d1, ok1 := parseTime(arrDT)
	if !ok0 || !ok1 {
		return 0
	}
	mins := int(d1.Sub(d0).Minutes())
	if mins < 0 {
		return 0
	}
	return mins
}

// FormatDuration renders minutes as "2h 15m", "2h" or "45m".
func FormatDuration(mins int) string {
	if mins <= 0 {
		return ""
	}
	h, m := mins/60, mins%60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}

// StopsLabel renders a stop count the way the frontend shows it.
func StopsLabel(stops int) string {
	switch stops {
	case 0:
		return "Non-stop"
	case 1:
		return "1 stop"
	default:
		return fmt.Sprintf("%d stops", stops)
	}
}

// FormatMoney formats an amount with thousands separators, keeping two
// decimals only when the amount has a fractional part.
func FormatMoney(amount float64) string {
	whole := amount
	frac := false
	if diff := amount - float64(int64(amount+0.5)); diff > 1e-9 || diff < -1e-9 {
		frac = true
	}

	var intPart int64
	var decimals string
	if frac {
		s := strconv.FormatFloat(amount, 'f', 2, 64)
		dot := strings.IndexByte(s, '.')
		intPart, _ = strconv.ParseInt(s[:dot], 10, 64)
		decimals = s[dot:]
	} else {
		intPart = int64(whole + 0.5)
		if whole < 0 {
			intPart = int64(whole - 0.5)
		}
	}

	return groupThousands(intPart) + decimals
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}

	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// Normalize flattens an AirLowFareSearch response into the shape the web
// frontend renders: one entry per priced itinerary, first leg only.
func Normalize(resp *SearchResponse) *Availability {
	out := &Availability{Results: []Itinerary{}}
	if resp == nil {
		return out
	}
	out.Meta = Meta{EchoToken: resp.EchoToken, TargetName: resp.TargetName}

	for idx, pi := range resp.PricedItineraries.PricedItinerary {
		odo := pi.AirItinerary.OriginDestinationOptions.OriginDestinationOption.First()
		segs := odo.FlightSegment
		if len(segs) == 0 {
			continue
		}

		segments := make([]Segment, 0, len(segs))
		for _, s := range segs {
			ext := s.TPAExtensions.Any.First()
			airline := s.OperatingAirline.Code
			if airline == "" {
				airline = s.MarketingAirline.Code
			}

			segments = append(segments, Segment{
				Dep:         s.DepartureAirport.LocationCode,
				Arr:         s.ArrivalAirport.LocationCode,
				DepDT:       s.DepartureDateTime,
				ArrDT:       s.ArrivalDateTime,
				Airline:     airline,
				AirlineName: s.OperatingAirline.CompanyShortName,
				Flight:      s.FlightNumber.String(),
				Class:       s.ResBookDesigCode,
				FareBasis:   s.FareBasisCode,
				Equipment:   s.Equipment.First().AirEquipType.String(),
				Aircraft:    ext.AircraftName.String(),
				Baggage:     ext.FreeBaggage.String(),
				DurationRaw: ext.Duration.String(),
			})
		}

		first, last := segments[0], segments[len(segments)-1]
		totalMins := DurationMinutes(first.DepDT, last.ArrDT)
		stops := len(segments) - 1

		fare := pi.AirItineraryPricingInfo.ItinTotalFare.First()
		currency := "IQD"
		amount := 0.0
		if fare.TotalFare != nil {
			if fare.TotalFare.CurrencyCode != "" {
				currency = fare.TotalFare.CurrencyCode
			}
			amount = fare.TotalFare.Amount.Float64()
		}

		seq := pi.SequenceNumber
		if seq == 0 {
			seq = idx + 1
		}

		vendor := pi.TicketingInfo.TicketingVendor
		out.Results = append(out.Results, Itinerary{
			SequenceNumber: seq,
			Segments:       segments,
			Summary: Summary{
				DepartTime:   formatHHMM(first.DepDT),
				ArriveTime:   formatHHMM(last.ArrDT),
				DurationMins: totalMins,
				Duration:     FormatDuration(totalMins),
				Stops:        stops,
				StopsLabel:   StopsLabel(stops),
			},
			TotalCurrency: currency,
			TotalAmount:   FormatMoney(amount),
			AmountRaw:     amount,
			Ticketing: Ticketing{
				CompanyShortName: vendor.CompanyShortName,
				Code:             vendor.Code.String(),
				CodeContext:      vendor.CodeContext,
			},
		})
	}

	return out
}
