package wings

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Passenger is a traveler on a booking request.
type Passenger struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BirthDate string `json:"birth_date"` // YYYY-MM-DD
	PaxType   string `json:"pax_type"`   // ADT / CHD / INF

	NamePrefix   string `json:"name_prefix"` // MR / MS
	Gender       string `json:"gender"`      // M / F / U
	Passport     string `json:"passport"`
	IssueCountry string `json:"issue_country"`
	Nationality  string `json:"nationality"`
	ExpireDate   string `json:"expire_date"`
	DocType      string `json:"doc_type"`
}

// Contact is the booking contact details.
type Contact struct {
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Country string `json:"country"`
	City    string `json:"city"`
}

const (
	defaultContactPhone = "9647500000000"
	defaultContactEmail = "dler.azeez@example.com"
	defaultCountry      = "IQ"
	defaultCity         = "Erbil"
	defaultAirlineCode  = "IA"
	defaultAirlineName  = "Iraqi Airways"
	defaultDocExpire    = "2030-01-01"
	defaultDocType      = "2"
)

// BookableItinerary is a priced itinerary in a canonical form the booking
// builder can consume. It is parsed from JSON in either of the shapes that
// reach the gateway: the raw Wings priced itinerary, or the normalized
// itinerary the frontend passes back from search results.
type BookableItinerary struct {
	legs    [][]FlightSegment
	pricing legPricing
	vendor  Ticketing
}

type legPricing struct {
	BaseCur, BaseDec, BaseAmt string
	TotCur, TotDec, TotAmt    string
}

// TicketingVendor returns the vendor attached to the itinerary.
func (b *BookableItinerary) TicketingVendor() Ticketing {
	return b.vendor
}

// ParseBookableItinerary decodes a priced-itinerary JSON document.
// encoding/json matches keys case-insensitively, which also covers the
// capitalized variants (AirItinerary/FlightSegment) Wings sometimes emits.
func ParseBookableItinerary(data []byte) (*BookableItinerary, error) {
	var probe struct {
		// Wings priced itinerary shape
		AirItinerary            *AirItinerary  `json:"airItinerary"`
		AirItineraryPricingInfo *PricingInfo   `json:"airItineraryPricingInfo"`
		TicketingInfo           *TicketingInfo `json:"ticketingInfo"`

		// Normalized itinerary shape
		Segments      []Segment  `json:"segments"`
		TotalCurrency string     `json:"total_currency"`
		TotalAmount   Text       `json:"total_amount"`
		AmountRaw     *float64   `json:"amount_raw"`
		Ticketing     *Ticketing `json:"ticketing"`

		// Vendor blocks that arrive already extracted
		TicketingVendor *Ticketing `json:"ticketingVendor"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing itinerary: %w", err)
	}

	b := &BookableItinerary{}

	switch {
	case probe.Ticketing != nil && probe.Ticketing.Code != "":
		b.vendor = *probe.Ticketing
	case probe.TicketingVendor != nil && probe.TicketingVendor.Code != "":
		b.vendor = *probe.TicketingVendor
	case probe.TicketingInfo != nil:
		v := probe.TicketingInfo.TicketingVendor
		b.vendor = Ticketing{CompanyShortName: v.CompanyShortName, Code: v.Code.String(), CodeContext: v.CodeContext}
	}

	if probe.AirItinerary != nil {
		for _, odo := range probe.AirItinerary.OriginDestinationOptions.OriginDestinationOption {
			b.legs = append(b.legs, odo.FlightSegment)
		}
		b.pricing = pricingFromWings(probe.AirItineraryPricingInfo)
		return b, nil
	}

	if len(probe.Segments) > 0 {
		segs := make([]FlightSegment, 0, len(probe.Segments))
		for _, s := range probe.Segments {
			segs = append(segs, FlightSegment{
				DepartureDateTime: s.DepDT,
				ArrivalDateTime:   s.ArrDT,
				FlightNumber:      Text(s.Flight),
				DepartureAirport:  Airport{LocationCode: strings.ToUpper(s.Dep)},
				ArrivalAirport:    Airport{LocationCode: strings.ToUpper(s.Arr)},
				OperatingAirline:  Airline{Code: s.Airline, CompanyShortName: s.AirlineName},
				MarketingAirline:  Airline{Code: s.Airline},
				Equipment:         List[Equipment]{{AirEquipType: Text(s.Equipment)}},
				TPAExtensions: TPAExtensions{Any: List[TPAExtension]{{
					FreeBaggage:  Text(s.Baggage),
					AircraftName: Text(s.Aircraft),
				}}},
			})
		}
		b.legs = [][]FlightSegment{segs}

		cur := probe.TotalCurrency
		if cur == "" {
			cur = "IQD"
		}
		amt := 0.0
		if probe.AmountRaw != nil {
			amt = *probe.AmountRaw
		} else if s := strings.ReplaceAll(probe.TotalAmount.String(), ",", ""); s != "" {
			amt, _ = strconv.ParseFloat(strings.TrimSpace(s), 64)
		}
		amtStr := strconv.FormatFloat(amt, 'f', -1, 64)
		b.pricing = legPricing{
			BaseCur: cur, BaseDec: "2", BaseAmt: amtStr,
			TotCur: cur, TotDec: "2", TotAmt: amtStr,
		}
		return b, nil
	}

	return nil, errors.New("itinerary has no recognizable segments")
}

func pricingFromWings(info *PricingInfo) legPricing {
	p := legPricing{BaseCur: "IQD", BaseDec: "2", TotCur: "IQD", TotDec: "2"}
	if info == nil {
		return p
	}
	fare := info.ItinTotalFare.First()
	base, total := fare.BaseFare, fare.TotalFare
	if base == nil {
		base = total
	}
	if total == nil {
		total = base
	}
	if base != nil {
		if base.CurrencyCode != "" {
			p.BaseCur = base.CurrencyCode
		}
		if base.DecimalPlaces != "" {
			p.BaseDec = base.DecimalPlaces.String()
		}
		p.BaseAmt = strconv.FormatFloat(base.Amount.Float64(), 'f', -1, 64)
	}
	if total != nil {
		if total.CurrencyCode != "" {
			p.TotCur = total.CurrencyCode
		}
		if total.DecimalPlaces != "" {
			p.TotDec = total.DecimalPlaces.String()
		}
		p.TotAmt = strconv.FormatFloat(total.Amount.Float64(), 'f', -1, 64)
	}
	return p
}

// leg returns the segments of a given leg, or nil.
func (b *BookableItinerary) leg(index int) []FlightSegment {
	if index < 0 || index >= len(b.legs) {
		return nil
	}
	return b.legs[index]
}

// OTA_AirBookRQ document structure.

type airBookRQ struct {
	XMLName      xml.Name         `xml:"OTA_AirBookRQ"`
	AirItinerary bookItinerary    `xml:"AirItinerary"`
	PriceInfo    bookPriceInfo    `xml:"PriceInfo"`
	TravelerInfo bookTravelerInfo `xml:"TravelerInfo"`
	Fulfillment  bookFulfillment  `xml:"Fulfillment"`
	Ticketing    bookTicketing    `xml:"Ticketing"`
}

type bookItinerary struct {
	DirectionInd string       `xml:"DirectionInd,attr"`
	Options      []bookOption `xml:"OriginDestinationOptions>OriginDestinationOption"`
}

type bookOption struct {
	FlightSegments []bookSegment `xml:"FlightSegment"`
}

type bookSegment struct {
	DepartureDateTime string            `xml:"DepartureDateTime,attr"`
	ArrivalDateTime   string            `xml:"ArrivalDateTime,attr"`
	StopQuantity      string            `xml:"StopQuantity,attr"`
	RPH               string            `xml:"RPH,attr"`
	FlightNumber      string            `xml:"FlightNumber,attr"`
	DepartureAirport  bookAirport       `xml:"DepartureAirport"`
	ArrivalAirport    bookAirport       `xml:"ArrivalAirport"`
	OperatingAirline  bookOperating     `xml:"OperatingAirline"`
	Equipment         *bookEquipment    `xml:"Equipment,omitempty"`
	TPAExtensions     bookSegExtensions `xml:"TPA_Extensions"`
	MarketingAirline  bookMarketing     `xml:"MarketingAirline"`
}

type bookAirport struct {
	LocationCode string `xml:"LocationCode,attr"`
}

type bookOperating struct {
	CompanyShortName string `xml:"CompanyShortName,attr"`
	Code             string `xml:"Code,attr"`
}

type bookMarketing struct {
	Code string `xml:"Code,attr"`
}

type bookEquipment struct {
	AirEquipType string `xml:"AirEquipType,attr"`
}

type bookSegExtensions struct {
	Ext bookSegExtension `xml:"TPA_Extension"`
}

type bookSegExtension struct {
	DepartureAirport string `xml:"DepartureAirport"`
	DepartureCountry string `xml:"departureCountry"`
	DepartureCity    string `xml:"departureCity"`
	ArrivalCity      string `xml:"arrivalCity"`
	ArrivalAirport   string `xml:"ArrivalAirport"`
	ArrivalCountry   string `xml:"arrivalCountry"`
	FreeBaggage      string `xml:"freeBaggage"`
	AircraftName     string `xml:"aircraftName"`
}

type bookPriceInfo struct {
	BaseFare  bookFare `xml:"ItinTotalFare>BaseFare"`
	TotalFare bookFare `xml:"ItinTotalFare>TotalFare"`
}

type bookFare struct {
	CurrencyCode  string `xml:"CurrencyCode,attr"`
	DecimalPlaces string `xml:"DecimalPlaces,attr"`
	Amount        string `xml:"Amount,attr"`
}

type bookTravelerInfo struct {
	AirTravelers []bookAirTraveler `xml:"AirTraveler"`
}

type bookAirTraveler struct {
	BirthDate              string       `xml:"BirthDate,attr"`
	PassengerTypeCode      string       `xml:"PassengerTypeCode,attr"`
	AccompaniedByInfantInd string       `xml:"AccompaniedByInfantInd,attr"`
	Gender                 string       `xml:"Gender,attr"`
	PersonName             bookName     `xml:"PersonName"`
	Telephone              *bookPhone   `xml:"Telephone,omitempty"`
	Email                  string       `xml:"Email,omitempty"`
	Document               bookDocument `xml:"Document"`
}

type bookName struct {
	NamePrefix string `xml:"NamePrefix"`
	GivenName  string `xml:"GivenName"`
	Surname    string `xml:"Surname"`
}

type bookPhone struct {
	PhoneNumber string `xml:"PhoneNumber,attr"`
}

type bookDocument struct {
	DocID                string `xml:"DocID,attr"`
	DocType              string `xml:"DocType,attr"`
	DocIssueCountry      string `xml:"DocIssueCountry,attr"`
	DocHolderNationality string `xml:"DocHolderNationality,attr"`
	ExpireDate           string `xml:"ExpireDate,attr"`
}

type bookFulfillment struct {
	Name bookFulfillmentName `xml:"Name"`
}

type bookFulfillmentName struct {
	GivenName string                 `xml:"GivenName"`
	Surname   string                 `xml:"Surname"`
	Ext       bookFulfillmentDetails `xml:"TPA_Extensions>TPA_Extension"`
}

type bookFulfillmentDetails struct {
	Username         string `xml:"Username"`
	Country          string `xml:"Country"`
	PersianLastName  string `xml:"PersianLasttName"`
	Gender           string `xml:"Gender"`
	City             string `xml:"City"`
	PersianFirstName string `xml:"PersianFirstName"`
	Mobile           string `xml:"Mobile"`
	Nationality      string `xml:"Nationality"`
	NationalityNum   string `xml:"NationalityNum"`
}

type bookTicketing struct {
	Vendor bookVendor `xml:"TicketingVendor"`
}

type bookVendor struct {
	CompanyShortName string `xml:"CompanyShortName,attr"`
	Code             string `xml:"Code,attr"`
	CodeContext      string `xml:"CodeContext,attr"`
}

// BuildAirBookXML assembles the OTA_AirBookRQ document for an outbound
// itinerary, an optional return itinerary, and the travelers.
func BuildAirBookXML(outbound, ret *BookableItinerary, passengers []Passenger, contact *Contact, tripType string) (string, error) {
	if outbound == nil {
		return "", errors.New("outbound itinerary is required")
	}

	vendor := outbound.vendor
	if vendor.CompanyShortName == "" || vendor.Code == "" || vendor.CodeContext == "" {
		return "", errors.New("ticketing vendor not found, cannot book without vendor")
	}

	roundtrip := strings.EqualFold(strings.TrimSpace(tripType), "roundtrip")
	direction := "OneWay"
	if roundtrip {
		direction = "Return"
	}

	outLeg := buildLeg(outbound.leg(0))
	if len(outLeg.FlightSegments) == 0 {
		return "", errors.New("no outbound segments found in itinerary")
	}

	options := []bookOption{outLeg}
	if roundtrip && ret != nil {
		// The return itinerary holds its leg at index 0 when searched as a
		// reverse one-way, or at index 1 when it came from a
		// roundtrip-priced itinerary.
		rtLeg := buildLeg(ret.leg(0))
		if len(rtLeg.FlightSegments) == 0 {
			rtLeg = buildLeg(ret.leg(1))
		}
		if len(rtLeg.FlightSegments) > 0 {
			options = append(options, rtLeg)
		}
	}

	pr := outbound.pricing
	baseAmt := pr.BaseAmt
	if baseAmt == "" {
		baseAmt = pr.TotAmt
	}
	totAmt := pr.TotAmt
	if totAmt == "" {
		totAmt = pr.BaseAmt
	}

	doc := airBookRQ{
		AirItinerary: bookItinerary{DirectionInd: direction, Options: options},
		PriceInfo: bookPriceInfo{
			BaseFare:  bookFare{CurrencyCode: pr.BaseCur, DecimalPlaces: pr.BaseDec, Amount: baseAmt},
			TotalFare: bookFare{CurrencyCode: pr.TotCur, DecimalPlaces: pr.TotDec, Amount: totAmt},
		},
		TravelerInfo: bookTravelerInfo{AirTravelers: buildAirTravelers(passengers, contact)},
		Fulfillment:  buildFulfillment(passengers, contact),
		Ticketing: bookTicketing{Vendor: bookVendor{
			CompanyShortName: vendor.CompanyShortName,
			Code:             vendor.Code,
			CodeContext:      vendor.CodeContext,
		}},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling OTA_AirBookRQ: %w", err)
	}

	return xml.Header + string(out) + "\n", nil
}

func buildLeg(segs []FlightSegment) bookOption {
	opt := bookOption{}
	for idx, seg := range segs {
		opCode := strings.ToUpper(seg.OperatingAirline.Code)
		if opCode == "" {
			opCode = strings.ToUpper(seg.MarketingAirline.Code)
		}
		if opCode == "" {
			opCode = defaultAirlineCode
		}
		mkCode := strings.ToUpper(seg.MarketingAirline.Code)
		if mkCode == "" {
			mkCode = opCode
		}
		opName := seg.OperatingAirline.CompanyShortName
		if opName == "" {
			opName = defaultAirlineName
		}

		var equipment *bookEquipment
		if eq := seg.Equipment.First().AirEquipType.String(); eq != "" {
			equipment = &bookEquipment{AirEquipType: eq}
		}

		ext := seg.TPAExtensions.Any.First()
		opt.FlightSegments = append(opt.FlightSegments, bookSegment{
			DepartureDateTime: seg.DepartureDateTime,
			ArrivalDateTime:   seg.ArrivalDateTime,
			StopQuantity:      "0",
			RPH:               strconv.Itoa(idx + 1),
			FlightNumber:      seg.FlightNumber.String(),
			DepartureAirport:  bookAirport{LocationCode: strings.ToUpper(seg.DepartureAirport.LocationCode)},
			ArrivalAirport:    bookAirport{LocationCode: strings.ToUpper(seg.ArrivalAirport.LocationCode)},
			OperatingAirline:  bookOperating{CompanyShortName: opName, Code: opCode},
			Equipment:         equipment,
			TPAExtensions: bookSegExtensions{Ext: bookSegExtension{
				DepartureAirport: ext.DepartureAirport.String(),
				DepartureCountry: ext.DepartureCountry.String(),
				DepartureCity:    ext.DepartureCity.String(),
				ArrivalCity:      ext.ArrivalCity.String(),
				ArrivalAirport:   ext.ArrivalAirport.String(),
				ArrivalCountry:   ext.ArrivalCountry.String(),
				FreeBaggage:      ext.FreeBaggage.String(),
				AircraftName:     ext.AircraftName.String(),
			}},
			MarketingAirline: bookMarketing{Code: mkCode},
		})
	}
	return opt
}

func buildAirTravelers(passengers []Passenger, contact *Contact) []bookAirTraveler {
	phone, email := defaultContactPhone, defaultContactEmail
	issue := defaultCountry
	if contact != nil {
		if contact.Phone != "" {
			phone = contact.Phone
		}
		if contact.Email != "" {
			email = contact.Email
		}
		if contact.Country != "" {
			issue = contact.Country
		}
	}

	travelers := make([]bookAirTraveler, 0, len(passengers))
	for i, p := range passengers {
		gender := strings.ToUpper(p.Gender)
		if gender == "" {
			gender = "M"
		}
		prefix := p.NamePrefix
		if prefix == "" {
			prefix = "MR"
			if gender == "F" {
				prefix = "MS"
			}
		}
		paxType := p.PaxType
		if paxType == "" {
			paxType = "ADT"
		}

		t := bookAirTraveler{
			BirthDate:              p.BirthDate,
			PassengerTypeCode:      paxType,
			AccompaniedByInfantInd: "false",
			Gender:                 gender,
			PersonName: bookName{
				NamePrefix: prefix,
				GivenName:  p.FirstName,
				Surname:    p.LastName,
			},
			Document: documentFor(i, p, issue),
		}

		// Only the first traveler carries the contact fields
		if i == 0 {
			t.Telephone = &bookPhone{PhoneNumber: phone}
			t.Email = email
		}

		travelers = append(travelers, t)
	}
	return travelers
}

func documentFor(i int, p Passenger, defaultIssue string) bookDocument {
	passport := p.Passport
	if passport == "" {
		// A reasonably unique fallback passport number per traveler
		digit := strconv.Itoa((i + 7) % 10)
		passport = "P" + strings.Repeat(digit, 8)
	}

	issue := p.IssueCountry
	if issue == "" {
		issue = defaultIssue
	}
	nation := p.Nationality
	if nation == "" {
		nation = issue
	}
	expire := p.ExpireDate
	if expire == "" {
		expire = defaultDocExpire
	}
	docType := p.DocType
	if docType == "" {
		docType = defaultDocType
	}

	return bookDocument{
		DocID:                passport,
		DocType:              docType,
		DocIssueCountry:      upper2(issue),
		DocHolderNationality: upper2(nation),
		ExpireDate:           expire,
	}
}

func upper2(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) > 2 {
		return s[:2]
	}
	return s
}

func buildFulfillment(passengers []Passenger, contact *Contact) bookFulfillment {
	p0 := Passenger{FirstName: "Test", LastName: "User", BirthDate: "1990-01-01"}
	if len(passengers) > 0 {
		p0 = passengers[0]
	}

	phone, email := defaultContactPhone, defaultContactEmail
	country, city := defaultCountry, defaultCity
	if contact != nil {
		if contact.Phone != "" {
			phone = contact.Phone
		}
		if contact.Email != "" {
			email = contact.Email
		}
		if contact.Country != "" {
			country = contact.Country
		}
		if contact.City != "" {
			city = contact.City
		}
	}

	genderText := "Male"
	if strings.EqualFold(p0.Gender, "F") {
		genderText = "Female"
	}

	nationalityNum := p0.Passport
	if nationalityNum == "" {
		nationalityNum = "P12345678"
	}

	return bookFulfillment{Name: bookFulfillmentName{
		GivenName: p0.FirstName,
		Surname:   p0.LastName,
		Ext: bookFulfillmentDetails{
			Username:         email,
			Country:          country,
			PersianLastName:  p0.LastName,
			Gender:           genderText,
			City:             city,
			PersianFirstName: p0.FirstName,
			Mobile:           phone,
			Nationality:      country,
			NationalityNum:   nationalityNum,
		},
	}}
}

// BookingRefs are the reference ids extracted from an AirBook response.
type BookingRefs struct {
	PNR          string `json:"pnr"`
	ConnectOTAID string `json:"connectota_id"`
}

// ExtractBookingRefs scans an AirBook XML response for BookingReferenceID
// elements. The first ID found becomes the PNR; an ID with ID_Context
// "connectota" is reported separately.
func ExtractBookingRefs(xmlText string) BookingRefs {
	refs := BookingRefs{}

	dec := xml.NewDecoder(strings.NewReader(xmlText))
	for {
		tok, err := dec.Token()
		if err != nil {
			return refs
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "BookingReferenceID" {
			continue
		}

		var id, ctx string
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "ID":
				id = attr.Value
			case "ID_Context":
				ctx = attr.Value
			}
		}
		if id != "" && refs.PNR == "" {
			refs.PNR = id
		}
		if strings.EqualFold(ctx, "connectota") {
			refs.ConnectOTAID = id
		}
	}
}
