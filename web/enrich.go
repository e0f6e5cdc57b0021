package web

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Gateway timestamps pass through from Wings, e.g. 2026-02-02T14:20:00.000+0300.
var segmentTimeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

func parseSegmentTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range segmentTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// clockLabel renders a 12-hour time without a leading zero, e.g. 11:25 AM.
// Unparseable inputs fall back to the raw value.
func clockLabel(raw string) string {
	t, ok := parseSegmentTime(raw)
	if !ok {
		return raw
	}
	return t.Format("3:04 PM")
}

func durationLabel(totalMins int) string {
	if totalMins <= 0 {
		return "0 min"
	}
	h, m := totalMins/60, totalMins%60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%d hr %d min", h, m)
	case h > 0:
		return fmt.Sprintf("%d hr", h)
	default:
		return fmt.Sprintf("%d min", m)
	}
}

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// hasIncludedBag reports whether any segment carries a positive baggage
// allowance. Baggage arrives as a string ("1pc", "0 kg", "No baggage"), a
// number, or an object ({"pieces": 0}, {"weight": 20, "unit": "KG"}).
func hasIncludedBag(segments []any) bool {
	for _, raw := range segments {
		seg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch b := seg["baggage"].(type) {
		case nil:
			continue
		case float64:
			if b > 0 {
				return true
			}
		case map[string]any:
			for _, k := range []string{"pieces", "piece", "pc", "paxPieces", "quantity", "qty", "weight", "kg", "kilograms", "value", "amount"} {
				if n, ok := toFloat(b[k]); ok && n > 0 {
					return true
				}
			}
		case string:
			if baggageStringIncluded(b) {
				return true
			}
		}
	}
	return false
}

func baggageStringIncluded(b string) bool {
	t := strings.ToLower(strings.TrimSpace(b))
	if t == "" {
		return false
	}

	if nums := numberPattern.FindAllString(t, -1); len(nums) > 0 {
		for _, n := range nums {
			if v, err := strconv.ParseFloat(n, 64); err == nil && v > 0 {
				return true
			}
		}
		return false
	}

	switch {
	case strings.HasPrefix(t, "0"),
		strings.Contains(t, "none"),
		strings.Contains(t, "no") && strings.Contains(t, "bag"),
		strings.Contains(t, "without") && strings.Contains(t, "bag"),
		strings.Contains(t, "not included") && strings.Contains(t, "bag"):
		return false
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", ""), 64)
		return f, err == nil
	}
	return 0, false
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// enrichResults annotates gateway search results in place with the
// display-oriented fields the frontend renders: included-baggage flag,
// 12-hour segment times, layover labels, cabin labels, a formatted price
// and the stable flight key used by seat estimation.
func enrichResults(results []map[string]any, cabin string) {
	cabinLabel := capitalize(strings.TrimSpace(cabin))
	if cabinLabel == "" {
		cabinLabel = "Economy"
	}

	for _, r := range results {
		segs, _ := r["segments"].([]any)
		r["_has_bag"] = hasIncludedBag(segs)

		var prevArr time.Time
		havePrevArr := false
		for _, raw := range segs {
			seg, ok := raw.(map[string]any)
			if !ok {
				continue
			}

			depRaw, arrRaw := str(seg["dep_dt"]), str(seg["arr_dt"])
			seg["_dep_time"] = clockLabel(depRaw)
			seg["_arr_time"] = clockLabel(arrRaw)
			seg["_cabin"] = cabinLabel

			// Layover shown before this segment, at the intermediate stop.
			dep, depOK := parseSegmentTime(depRaw)
			if havePrevArr && depOK {
				if mins := int(dep.Sub(prevArr).Minutes()); mins > 0 {
					seg["_layover"] = fmt.Sprintf("%s layover · %s", durationLabel(mins), str(seg["dep"]))
				}
			}
			if arr, ok := parseSegmentTime(arrRaw); ok {
				prevArr, havePrevArr = arr, true
			}
		}

		r["_cabin"] = cabinLabel
		r["_flight_key"] = flightKey(r)

		price := r["amount_raw"]
		if price == nil {
			price = r["total_amount"]
		}
		r["_price_label"] = FormatIQD(price)
	}
}

// flightKey is a stable identity for an itinerary, built from its segments.
func flightKey(r map[string]any) string {
	segs, _ := r["segments"].([]any)
	parts := make([]string, 0, len(segs))
	for _, raw := range segs {
		seg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		parts = append(parts, strings.Join([]string{
			str(seg["airline"]),
			str(seg["flight"]),
			str(seg["dep"]),
			str(seg["arr"]),
			str(seg["dep_dt"]),
			str(seg["arr_dt"]),
		}, "|"))
	}
	return strings.Join(parts, "||")
}

// FormatIQD formats a money value as Iraqi Dinar with thousands separators,
// keeping any decimals untouched: 100000 -> "IQD 100,000",
// "100000.999" -> "IQD 100,000.999".
func FormatIQD(value any) string {
	var s string
	switch v := value.(type) {
	case nil:
		return "IQD 0"
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		s = strings.TrimSpace(fmt.Sprint(value))
	}
	if s == "" {
		return "IQD 0"
	}

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimSpace(strings.TrimPrefix(s, "-"))

	intPart, decPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, decPart = s[:i], s[i+1:]
	}

	intDigits := keepDigits(intPart)
	if intDigits == "" {
		intDigits = "0"
	}
	intDigits = strings.TrimLeft(intDigits, "0")
	if intDigits == "" {
		intDigits = "0"
	}

	out := groupThousands(intDigits)
	if decDigits := keepDigits(decPart); decDigits != "" {
		out += "." + decDigits
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return "IQD " + out
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	return strings.ToUpper(s[:1]) + s[1:]
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

func groupThousands(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
