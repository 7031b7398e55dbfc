package calendar

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func sampleEvent(t *testing.T) Event {
	t.Helper()
	loc := berlin(t)
	return Event{
		Title:       "Release party",
		Description: "Drinks & demos",
		Location:    "Kulturbrauerei, Berlin",
		URL:         "https://punktual.app/e/release",
		Start:       time.Date(2026, 3, 1, 18, 0, 0, 0, loc),
		End:         time.Date(2026, 3, 1, 21, 30, 0, 0, loc),
		Timezone:    "Europe/Berlin",
		UID:         "release-party@punktual.app",
	}
}

func TestNormalize_DefaultsEndToOneHour(t *testing.T) {
	e := sampleEvent(t)
	e.End = time.Time{}

	n, err := Normalize(e)
	require.NoError(t, err)
	require.Equal(t, e.Start.Add(time.Hour), n.End)
}

func TestNormalize_AllDayTruncatesToDates(t *testing.T) {
	loc := berlin(t)
	n, err := Normalize(Event{
		Title:    "Offsite",
		Start:    time.Date(2026, 5, 4, 15, 30, 0, 0, loc),
		Timezone: "Europe/Berlin",
		AllDay:   true,
	})
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 5, 4, 0, 0, 0, 0, loc), n.Start)
	require.Equal(t, n.Start, n.End, "all-day end defaults to the same day")
}

func TestNormalize_ConvertsIntoEventZone(t *testing.T) {
	n, err := Normalize(Event{
		Title:    "Call",
		Start:    time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
		Timezone: "Europe/Berlin",
	})
	require.NoError(t, err)
	require.Equal(t, 18, n.Start.Hour())
	require.Equal(t, "Europe/Berlin", n.Start.Location().String())
}

func TestNormalize_Errors(t *testing.T) {
	base := sampleEvent(t)

	tests := []struct {
		name   string
		mutate func(*Event)
		want   error
	}{
		{"blank title", func(e *Event) { e.Title = "   " }, ErrTitleRequired},
		{"long title", func(e *Event) { e.Title = strings.Repeat("a", MaxTitleLength+1) }, ErrTitleTooLong},
		{"zero start", func(e *Event) { e.Start = time.Time{} }, ErrStartRequired},
		{"end before start", func(e *Event) { e.End = e.Start.Add(-time.Minute) }, ErrEndBeforeStart},
		{"bad timezone", func(e *Event) { e.Timezone = "Mars/Olympus" }, ErrInvalidTimezone},
		{"bad rrule", func(e *Event) { e.Recurrence = "FREQ=SOMETIMES" }, ErrInvalidRecurrence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base
			tt.mutate(&e)
			_, err := Normalize(e)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNormalize_AcceptsRecurrenceWithPrefix(t *testing.T) {
	e := sampleEvent(t)
	e.Recurrence = "RRULE:FREQ=WEEKLY;COUNT=4"

	n, err := Normalize(e)
	require.NoError(t, err)
	require.Equal(t, "FREQ=WEEKLY;COUNT=4", n.Recurrence)
}

func TestNormalize_DerivesStableUID(t *testing.T) {
	e := sampleEvent(t)
	e.UID = ""

	a, err := Normalize(e)
	require.NoError(t, err)
	b, err := Normalize(e)
	require.NoError(t, err)

	require.Equal(t, a.UID, b.UID)
	require.True(t, strings.HasSuffix(a.UID, "@punktual.app"))

	e.Title = "Other party"
	c, err := Normalize(e)
	require.NoError(t, err)
	require.NotEqual(t, a.UID, c.UID)
}

func TestParsePlatform(t *testing.T) {
	tests := map[string]Platform{
		"google":         PlatformGoogle,
		"  Outlook ":     PlatformOutlook,
		"OFFICE365":      PlatformOffice365,
		"yahoo":          PlatformYahoo,
		"apple":          PlatformApple,
		"ics":            PlatformApple,
		"iCal":           PlatformApple,
		"apple-calendar": PlatformApple,
	}
	for input, want := range tests {
		got, err := ParsePlatform(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}

	_, err := ParsePlatform("lotus-notes")
	require.ErrorIs(t, err, ErrUnknownPlatform)
}
