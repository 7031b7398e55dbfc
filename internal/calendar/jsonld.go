package calendar

import (
	"errors"
	"time"

	"github.com/piprate/json-gold/ld"
)

var ErrInvalidDocument = errors.New("invalid JSON-LD document")

// schemaContext is inlined so compaction never fetches a remote context.
var schemaContext = map[string]any{
	"@vocab": "https://schema.org/",
}

// EventJSONLD builds a compacted schema.org Event for a normalized event.
func EventJSONLD(e Event) (map[string]any, error) {
	doc := map[string]any{
		"@context":  schemaContext,
		"@type":     "Event",
		"name":      e.Title,
		"startDate": schemaDate(e, e.Start),
		"endDate":   schemaDate(e, e.End),
	}
	if e.Description != "" {
		doc["description"] = e.Description
	}
	if e.URL != "" {
		doc["url"] = e.URL
	}
	if e.Location != "" {
		doc["location"] = map[string]any{
			"@type": "Place",
			"name":  e.Location,
		}
	}
	if e.Recurrence != "" {
		doc["eventSchedule"] = map[string]any{
			"@type":            "Schedule",
			"repeatFrequency":  e.Recurrence,
			"scheduleTimezone": e.Zone().String(),
		}
	}
	return compact(doc)
}

func schemaDate(e Event, t time.Time) string {
	if e.AllDay {
		return t.Format(isoDate)
	}
	return t.Format(time.RFC3339)
}

func compact(doc map[string]any) (map[string]any, error) {
	processor := ld.NewJsonLdProcessor()
	opts := ld.NewJsonLdOptions("")
	opts.CompactArrays = true

	result, err := processor.Compact(doc, map[string]any{"@context": schemaContext}, opts)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrInvalidDocument
	}
	return result, nil
}
