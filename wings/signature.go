package wings

import "strings"

// Matching a return option to a roundtrip-priced itinerary is done on a
// stable signature of the first return segment.

// SegmentSignature builds the signature of a raw Wings flight segment.
func SegmentSignature(seg FlightSegment) string {
	airline := strings.ToUpper(seg.OperatingAirline.Code)
	if airline == "" {
		airline = strings.ToUpper(seg.MarketingAirline.Code)
	}
	return strings.Join([]string{
		strings.ToUpper(seg.DepartureAirport.LocationCode),
		strings.ToUpper(seg.ArrivalAirport.LocationCode),
		strings.TrimSpace(seg.DepartureDateTime),
		strings.TrimSpace(seg.ArrivalDateTime),
		airline,
		strings.TrimSpace(seg.FlightNumber.String()),
	}, "|")
}

// ItinerarySignature builds the signature of a normalized itinerary from
// its first segment.
func ItinerarySignature(it Itinerary) string {
	if len(it.Segments) == 0 {
		return "|||||"
	}
	s := it.Segments[0]
	return strings.Join([]string{
		strings.ToUpper(s.Dep),
		strings.ToUpper(s.Arr),
		strings.TrimSpace(s.DepDT),
		strings.TrimSpace(s.ArrDT),
		strings.ToUpper(s.Airline),
		strings.TrimSpace(s.Flight),
	}, "|")
}
