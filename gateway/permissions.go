package gateway

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// Permissions is the provider policy config, kept as a JSON file so
// admins can flip switches without a redeploy.
type Permissions struct {
	Providers map[string]Provider `json:"providers"`
}

// Provider is the policy for a single supplier. Providers can be removed
// entirely; a missing provider is treated as disabled.
type Provider struct {
	// Availability switch (search results)
	AvailabilityEnabled *bool `json:"availability_enabled,omitempty"`

	// Seat estimation via extra searches
	SeatsEstimationEnabled *bool `json:"seats_estimation_enabled,omitempty"`

	// TicketingMode "full" issues tickets via the provider;
	// "availability_only" queues bookings as pending.
	TicketingMode string `json:"ticketing_mode,omitempty"`

	FiltersEnabled   *bool    `json:"filters_enabled,omitempty"`
	BlockedAirlines  []string `json:"blocked_airlines"`
	BlockedSuppliers []string `json:"blocked_suppliers"`

	// Ticketing schedule (availability can remain on outside it)
	TicketingSchedule Schedule `json:"ticketing_schedule"`
}

// Schedule restricts ticketing to time windows. Rules are evaluated in
// order; any match enables ticketing.
type Schedule struct {
	Enabled  bool           `json:"enabled"`
	Timezone string         `json:"timezone,omitempty"`
	Rules    []ScheduleRule `json:"rules"`
}

// ScheduleRule is a weekly window. Days use 0=Mon .. 6=Sun.
type ScheduleRule struct {
	Days  []int  `json:"days"`
	Start string `json:"start"` // HH:MM
	End   string `json:"end"`   // HH:MM
}

const defaultTimezone = "Asia/Baghdad"

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func boolPtr(v bool) *bool { return &v }

// DefaultPermissions is the policy used until an admin saves one: the OTA
// provider fully enabled, ticketing around the clock.
func DefaultPermissions() Permissions {
	return Permissions{
		Providers: map[string]Provider{
			"OTA": {
				AvailabilityEnabled:    boolPtr(true),
				SeatsEstimationEnabled: boolPtr(true),
				TicketingMode:          "full",
				FiltersEnabled:         boolPtr(true),
				BlockedAirlines:        []string{},
				BlockedSuppliers:       []string{},
				TicketingSchedule: Schedule{
					Enabled:  false,
					Timezone: defaultTimezone,
					Rules: []ScheduleRule{
						{Days: []int{0, 1, 2, 3, 4, 5, 6}, Start: "00:00", End: "23:59"},
					},
				},
			},
		},
	}
}

// PermissionsStore reads and writes the permissions JSON file, flock
// guarded so concurrent writers don't tear it.
type PermissionsStore struct {
	path string
	lock *flock.Flock
}

func NewPermissionsStore(path string) *PermissionsStore {
	return &PermissionsStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Load returns the stored permissions, or the defaults when the file is
// missing or unreadable.
func (s *PermissionsStore) Load() Permissions {
	if err := s.lock.RLock(); err == nil {
		defer func() { _ = s.lock.Unlock() }()
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return DefaultPermissions()
	}

	var p Permissions
	if err := json.Unmarshal(data, &p); err != nil {
		return DefaultPermissions()
	}
	if p.Providers == nil {
		p.Providers = map[string]Provider{}
	}
	return p
}

// Save normalizes and persists the permissions. Providers are not
// force-inserted: admins may delete them.
func (s *PermissionsStore) Save(p Permissions) (Permissions, error) {
	if p.Providers == nil {
		p.Providers = map[string]Provider{}
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return p, fmt.Errorf("encoding permissions: %w", err)
	}

	if err := s.lock.Lock(); err == nil {
		defer func() { _ = s.lock.Unlock() }()
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return p, fmt.Errorf("creating permissions dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return p, fmt.Errorf("writing permissions: %w", err)
	}
	return p, nil
}

// OTAPolicy is the effective policy the flight handlers consult.
type OTAPolicy struct {
	Availability        bool
	SeatsEstimation     bool
	TicketingEffective  bool
	TicketingMode       string
	TicketingScheduleOK bool
	FiltersEnabled      bool
	BlockedAirlines     []string
}

// OTAPolicy resolves the policy for the OTA provider at the given time.
func (s *PermissionsStore) OTAPolicy(now time.Time) OTAPolicy {
	p, ok := s.Load().Providers["OTA"]
	if !ok {
		return OTAPolicy{
			Availability:       false,
			TicketingEffective: false,
			TicketingMode:      "availability_only",
			FiltersEnabled:     true,
			BlockedAirlines:    []string{},
		}
	}
	return providerPolicy("OTA", p, now)
}

func providerPolicy(code string, p Provider, now time.Time) OTAPolicy {
	availability := boolOr(p.AvailabilityEnabled, true)
	for _, s := range p.BlockedSuppliers {
		if strings.TrimSpace(s) == code {
			availability = false
		}
	}

	mode := strings.ToLower(strings.TrimSpace(p.TicketingMode))
	if mode != "full" {
		mode = "availability_only"
	}

	scheduleOK := scheduleAllows(p.TicketingSchedule, now)

	blocked := make([]string, 0, len(p.BlockedAirlines))
	for _, a := range p.BlockedAirlines {
		if a = strings.ToUpper(strings.TrimSpace(a)); a != "" {
			blocked = append(blocked, a)
		}
	}

	return OTAPolicy{
		Availability:        availability,
		SeatsEstimation:     boolOr(p.SeatsEstimationEnabled, true),
		TicketingEffective:  availability && mode == "full" && scheduleOK,
		TicketingMode:       mode,
		TicketingScheduleOK: scheduleOK,
		FiltersEnabled:      boolOr(p.FiltersEnabled, true),
		BlockedAirlines:     blocked,
	}
}

func scheduleLocation(tzname string) *time.Location {
	tzname = strings.TrimSpace(tzname)
	if tzname == "" {
		tzname = defaultTimezone
	}
	if loc, err := time.LoadLocation(tzname); err == nil {
		return loc
	}
	// Baghdad has no DST
	return time.FixedZone("+03", 3*60*60)
}

func parseHHMM(v string) (mins int, ok bool) {
	hh, mm, found := strings.Cut(strings.TrimSpace(v), ":")
	if !found {
		return 0, false
	}
	var h, m int
	if _, err := fmt.Sscanf(hh+" "+mm, "%d %d", &h, &m); err != nil {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// weekdayMon0 maps time.Weekday to 0=Mon .. 6=Sun.
func weekdayMon0(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// scheduleAllows reports whether ticketing is open at the given instant.
// A disabled schedule always allows; an enabled schedule with no valid
// rules never does. Overnight windows (start > end) wrap past midnight.
func scheduleAllows(s Schedule, now time.Time) bool {
	if !s.Enabled {
		return true
	}

	loc := scheduleLocation(s.Timezone)
	local := now.In(loc)
	wd := weekdayMon0(local.Weekday())
	tnow := local.Hour()*60 + local.Minute()

	for _, r := range s.Rules {
		if !containsInt(r.Days, wd) {
			continue
		}
		st, okS := parseHHMM(r.Start)
		en, okE := parseHHMM(r.End)
		if !okS || !okE {
			continue
		}

		if st <= en && st <= tnow && tnow <= en {
			return true
		}
		if st > en && (tnow >= st || tnow <= en) {
			return true
		}
	}
	return false
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// ScheduleWindow is a concrete ticketing window in local time.
type ScheduleWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ScheduleInfo is the schedule context reported by the status endpoint.
type ScheduleInfo struct {
	Enabled       bool            `json:"enabled"`
	Timezone      string          `json:"timezone,omitempty"`
	Now           string          `json:"now,omitempty"`
	CurrentWindow *ScheduleWindow `json:"current_window"`
	NextWindow    *ScheduleWindow `json:"next_window"`
}

// computeScheduleWindows expands the rules over the coming week and
// reports the window containing now plus the one after it.
func computeScheduleWindows(s Schedule, now time.Time) ScheduleInfo {
	loc := scheduleLocation(s.Timezone)
	local := now.In(loc)

	tzname := strings.TrimSpace(s.Timezone)
	if tzname == "" {
		tzname = defaultTimezone
	}

	type window struct {
		start, end time.Time
	}
	var windows []window

	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	for _, r := range s.Rules {
		st, okS := parseHHMM(r.Start)
		en, okE := parseHHMM(r.End)
		if !okS || !okE {
			continue
		}
		for offset := 0; offset < 8; offset++ {
			day := midnight.AddDate(0, 0, offset)
			if !containsInt(r.Days, weekdayMon0(day.Weekday())) {
				continue
			}
			start := day.Add(time.Duration(st) * time.Minute)
			end := day.Add(time.Duration(en) * time.Minute)
			if en < st {
				end = end.AddDate(0, 0, 1)
			}
			windows = append(windows, window{start: start, end: end})
		}
	}

	sort.Slice(windows, func(i, j int) bool { return windows[i].start.Before(windows[j].start) })

	var current, next *window
	for i := range windows {
		w := windows[i]
		if !w.start.After(local) && !w.end.Before(local) {
			current = &windows[i]
			break
		}
	}
	if current != nil {
		for i := range windows {
			if windows[i].start.After(current.end) {
				next = &windows[i]
				break
			}
		}
	} else {
		for i := range windows {
			if windows[i].start.After(local) {
				next = &windows[i]
				break
			}
		}
	}

	fmtWindow := func(w *window) *ScheduleWindow {
		if w == nil {
			return nil
		}
		return &ScheduleWindow{
			Start: w.start.Format(time.RFC3339),
			End:   w.end.Format(time.RFC3339),
		}
	}

	return ScheduleInfo{
		Enabled:       s.Enabled,
		Timezone:      tzname,
		Now:           local.Format(time.RFC3339),
		CurrentWindow: fmtWindow(current),
		NextWindow:    fmtWindow(next),
	}
}

// ProviderStatus is one provider's effective policy in the status reply.
type ProviderStatus struct {
	Availability        bool         `json:"availability"`
	TicketingMode       string       `json:"ticketing_mode"`
	TicketingScheduleOK bool         `json:"ticketing_schedule_ok"`
	TicketingEffective  bool         `json:"ticketing_effective"`
	Schedule            ScheduleInfo `json:"schedule"`
}

// Status resolves the effective policy of every configured provider.
func (s *PermissionsStore) Status(now time.Time) map[string]ProviderStatus {
	out := map[string]ProviderStatus{}
	for code, p := range s.Load().Providers {
		pol := providerPolicy(code, p, now)
		out[code] = ProviderStatus{
			Availability:        pol.Availability,
			TicketingMode:       pol.TicketingMode,
			TicketingScheduleOK: pol.TicketingScheduleOK,
			TicketingEffective:  pol.TicketingEffective,
			Schedule:            computeScheduleWindows(p.TicketingSchedule, now),
		}
	}
	return out
}
