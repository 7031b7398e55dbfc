// Package calendar turns an event description into "add to calendar"
// artifacts: provider deep links, RFC 5545 ICS documents and embeddable
// button markup. Everything here is pure; callers own persistence and I/O.
package calendar

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/teambition/rrule-go"
)

const MaxTitleLength = 200

var (
	ErrTitleRequired     = errors.New("title is required")
	ErrTitleTooLong      = fmt.Errorf("title exceeds %d characters", MaxTitleLength)
	ErrStartRequired     = errors.New("start time is required")
	ErrEndBeforeStart    = errors.New("end is before start")
	ErrInvalidTimezone   = errors.New("invalid timezone")
	ErrInvalidRecurrence = errors.New("invalid recurrence rule")
)

// Event is the input for every generator in this package.
type Event struct {
	Title       string
	Description string
	Location    string
	URL         string
	Start       time.Time
	End         time.Time
	// Timezone is an IANA zone name. Empty means UTC.
	Timezone string
	AllDay   bool
	// Recurrence is an RRULE body without the "RRULE:" prefix.
	Recurrence string
	UID        string
}

// Zone returns the event's time zone, falling back to UTC.
func (e Event) Zone() *time.Location {
	if e.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Normalize validates e and fills in defaults. The result is safe to hand
// to any of the link generators.
func Normalize(e Event) (Event, error) {
	e.Title = strings.TrimSpace(e.Title)
	e.Description = strings.TrimSpace(e.Description)
	e.Location = strings.TrimSpace(e.Location)
	e.URL = strings.TrimSpace(e.URL)
	e.Timezone = strings.TrimSpace(e.Timezone)
	e.Recurrence = strings.TrimPrefix(strings.TrimSpace(e.Recurrence), "RRULE:")

	if e.Title == "" {
		return Event{}, ErrTitleRequired
	}
	if utf8.RuneCountInString(e.Title) > MaxTitleLength {
		return Event{}, ErrTitleTooLong
	}
	if e.Start.IsZero() {
		return Event{}, ErrStartRequired
	}

	loc := time.UTC
	if e.Timezone != "" {
		l, err := time.LoadLocation(e.Timezone)
		if err != nil {
			return Event{}, fmt.Errorf("%w: %s", ErrInvalidTimezone, e.Timezone)
		}
		loc = l
	}

	e.Start = e.Start.In(loc)
	if !e.End.IsZero() {
		e.End = e.End.In(loc)
	}

	if e.AllDay {
		e.Start = dateOnly(e.Start, loc)
		if e.End.IsZero() {
			e.End = e.Start
		} else {
			e.End = dateOnly(e.End, loc)
		}
	} else if e.End.IsZero() {
		e.End = e.Start.Add(time.Hour)
	}

	if e.End.Before(e.Start) {
		return Event{}, ErrEndBeforeStart
	}

	if e.Recurrence != "" {
		opt, err := rrule.StrToROption(e.Recurrence)
		if err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
		}
		opt.Dtstart = e.Start
		if _, err := rrule.NewRRule(*opt); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
		}
	}

	if e.UID == "" {
		e.UID = deriveUID(e)
	}
	return e, nil
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// deriveUID hashes the identifying fields so the same event always gets
// the same UID and calendar clients deduplicate re-imports.
func deriveUID(e Event) string {
	h := sha256.New()
	for _, part := range []string{
		e.Title,
		e.Start.UTC().Format(time.RFC3339),
		e.End.UTC().Format(time.RFC3339),
		e.Location,
		e.Recurrence,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:32] + "@punktual.app"
}
