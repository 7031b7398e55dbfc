package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"
)

var ErrUnparseableDate = errors.New("could not understand date")

// ParseWhen reads a human date such as "next friday 7pm" or
// "2026-03-01 18:00". Relative expressions resolve against now, and
// ambiguous ones prefer the future. Times without a zone are taken in loc.
func ParseWhen(text string, loc *time.Location, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, ErrUnparseableDate
	}
	if loc == nil {
		loc = time.UTC
	}

	cfg := &dps.Configuration{
		Languages:           []string{"en"},
		CurrentTime:         now.In(loc),
		DefaultTimezone:     loc,
		PreferredDateSource: dps.Future,
	}

	dt, err := dps.Parse(cfg, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrUnparseableDate, text, err)
	}
	if dt.Time.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableDate, text)
	}
	return dt.Time.In(loc), nil
}
