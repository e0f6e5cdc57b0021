package gateway

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustTime parses an RFC3339 instant.
func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestScheduleAllows(t *testing.T) {
	t.Parallel()

	// 2026-08-31 is a Monday (weekday 0)
	monMorning := mustTime(t, "2026-08-31T09:30:00+03:00")
	monNight := mustTime(t, "2026-08-31T23:30:00+03:00")
	tueEarly := mustTime(t, "2026-09-01T01:30:00+03:00")

	tests := []struct {
		name     string
		schedule Schedule
		now      time.Time
		want     bool
	}{
		{
			name:     "disabled schedule always allows",
			schedule: Schedule{Enabled: false},
			now:      monMorning,
			want:     true,
		},
		{
			name:     "enabled with no rules never allows",
			schedule: Schedule{Enabled: true, Timezone: "Asia/Baghdad"},
			now:      monMorning,
			want:     false,
		},
		{
			name: "inside normal window",
			schedule: Schedule{Enabled: true, Timezone: "Asia/Baghdad", Rules: []ScheduleRule{
				{Days: []int{0}, Start: "09:00", End: "18:00"},
			}},
			now:  monMorning,
			want: true,
		},
		{
			name: "outside normal window",
			schedule: Schedule{Enabled: true, Timezone: "Asia/Baghdad", Rules: []ScheduleRule{
				{Days: []int{0}, Start: "09:00", End: "18:00"},
			}},
			now:  monNight,
			want: false,
		},
		{
			name: "wrong day",
			schedule: Schedule{Enabled: true, Timezone: "Asia/Baghdad", Rules: []ScheduleRule{
				{Days: []int{4, 5}, Start: "09:00", End: "18:00"},
			}},
			now:  monMorning,
			want: false,
		},
		{
			name: "overnight window before midnight",
			schedule: Schedule{Enabled: true, Timezone: "Asia/Baghdad", Rules: []ScheduleRule{
				{Days: []int{0}, Start: "22:00", End: "02:00"},
			}},
			now:  monNight,
			want: true,
		},
		{
			name: "overnight window after midnight matches the new day",
			schedule: Schedule{Enabled: true, Timezone: "Asia/Baghdad", Rules: []ScheduleRule{
				{Days: []int{1}, Start: "22:00", End: "02:00"},
			}},
			now:  tueEarly,
			want: true,
		},
		{
			name: "rule with unparseable times is skipped",
			schedule: Schedule{Enabled: true, Timezone: "Asia/Baghdad", Rules: []ScheduleRule{
				{Days: []int{0}, Start: "soon", End: "later"},
			}},
			now:  monMorning,
			want: false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, scheduleAllows(tc.schedule, tc.now))
		})
	}
}

func TestComputeScheduleWindows(t *testing.T) {
	t.Parallel()

	schedule := Schedule{
		Enabled:  true,
		Timezone: "Asia/Baghdad",
		Rules: []ScheduleRule{
			{Days: []int{0, 1}, Start: "09:00", End: "18:00"},
		},
	}

	// Inside Monday's window: current is today, next is Tuesday
	info := computeScheduleWindows(schedule, mustTime(t, "2026-08-31T10:00:00+03:00"))
	require.NotNil(t, info.CurrentWindow)
	assert.Equal(t, "2026-08-31T09:00:00+03:00", info.CurrentWindow.Start)
	assert.Equal(t, "2026-08-31T18:00:00+03:00", info.CurrentWindow.End)
	require.NotNil(t, info.NextWindow)
	assert.Equal(t, "2026-09-01T09:00:00+03:00", info.NextWindow.Start)

	// After Monday's window: no current, next is Tuesday
	info = computeScheduleWindows(schedule, mustTime(t, "2026-08-31T20:00:00+03:00"))
	assert.Nil(t, info.CurrentWindow)
	require.NotNil(t, info.NextWindow)
	assert.Equal(t, "2026-09-01T09:00:00+03:00", info.NextWindow.Start)
}

func TestComputeScheduleWindowsOvernight(t *testing.T) {
	t.Parallel()

	schedule := Schedule{
		Enabled:  true,
		Timezone: "Asia/Baghdad",
		Rules: []ScheduleRule{
			{Days: []int{0}, Start: "22:00", End: "02:00"},
		},
	}

	info := computeScheduleWindows(schedule, mustTime(t, "2026-08-31T23:00:00+03:00"))
	require.NotNil(t, info.CurrentWindow)
	assert.Equal(t, "2026-08-31T22:00:00+03:00", info.CurrentWindow.Start)
	assert.Equal(t, "2026-09-01T02:00:00+03:00", info.CurrentWindow.End)
}

func TestOTAPolicyDefaults(t *testing.T) {
	t.Parallel()

	store := NewPermissionsStore(filepath.Join(t.TempDir(), "permissions.json"))

	pol := store.OTAPolicy(time.Now())
	assert.True(t, pol.Availability)
	assert.True(t, pol.SeatsEstimation)
	assert.True(t, pol.TicketingEffective)
	assert.Equal(t, "full", pol.TicketingMode)
	assert.True(t, pol.FiltersEnabled)
	assert.Empty(t, pol.BlockedAirlines)
}

func TestOTAPolicyDeletedProviderIsDisabled(t *testing.T) {
	t.Parallel()

	store := NewPermissionsStore(filepath.Join(t.TempDir(), "permissions.json"))
	_, err := store.Save(Permissions{Providers: map[string]Provider{}})
	require.NoError(t, err)

	pol := store.OTAPolicy(time.Now())
	assert.False(t, pol.Availability)
	assert.False(t, pol.TicketingEffective)
	assert.Equal(t, "availability_only", pol.TicketingMode)
}

func TestOTAPolicyBlockedSupplierDisablesAvailability(t *testing.T) {
	t.Parallel()

	store := NewPermissionsStore(filepath.Join(t.TempDir(), "permissions.json"))
	_, err := store.Save(Permissions{Providers: map[string]Provider{
		"OTA": {BlockedSuppliers: []string{"OTA"}},
	}})
	require.NoError(t, err)

	pol := store.OTAPolicy(time.Now())
	assert.False(t, pol.Availability)
	assert.False(t, pol.TicketingEffective)
}

func TestOTAPolicyNormalizesBlockedAirlines(t *testing.T) {
	t.Parallel()

	store := NewPermissionsStore(filepath.Join(t.TempDir(), "permissions.json"))
	_, err := store.Save(Permissions{Providers: map[string]Provider{
		"OTA": {BlockedAirlines: []string{" ia ", "TK", ""}},
	}})
	require.NoError(t, err)

	pol := store.OTAPolicy(time.Now())
	assert.Equal(t, []string{"IA", "TK"}, pol.BlockedAirlines)
}

func TestPermissionsStoreLoadOnBrokenFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "permissions.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))

	p := NewPermissionsStore(path).Load()
	assert.Contains(t, p.Providers, "OTA")
}

func TestPermissionsStatus(t *testing.T) {
	t.Parallel()

	store := NewPermissionsStore(filepath.Join(t.TempDir(), "permissions.json"))
	_, err := store.Save(Permissions{Providers: map[string]Provider{
		"OTA": {
			TicketingMode: "availability_only",
			TicketingSchedule: Schedule{
				Enabled:  true,
				Timezone: "Asia/Baghdad",
				Rules:    []ScheduleRule{{Days: []int{0}, Start: "09:00", End: "18:00"}},
			},
		},
	}})
	require.NoError(t, err)

	status := store.Status(mustTime(t, "2026-08-31T10:00:00+03:00"))
	require.Contains(t, status, "OTA")

	ota := status["OTA"]
	assert.True(t, ota.Availability)
	assert.Equal(t, "availability_only", ota.TicketingMode)
	assert.True(t, ota.TicketingScheduleOK)
	assert.False(t, ota.TicketingEffective)
	assert.True(t, ota.Schedule.Enabled)
	require.NotNil(t, ota.Schedule.CurrentWindow)
}
