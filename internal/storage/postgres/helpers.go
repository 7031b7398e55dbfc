package postgres

import (
	"strings"
	"time"
)

// nullableString maps "" to SQL NULL.
func nullableString(value *string) *string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	return value
}

// inZone converts a timestamptz read back from the database into the
// event's own zone. Unknown zones fall back to UTC.
func inZone(t time.Time, zone string) time.Time {
	if zone == "" {
		return t.UTC()
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return t.UTC()
	}
	return t.In(loc)
}
