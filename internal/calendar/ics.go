package calendar

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	ics "github.com/arran4/golang-ical"
)

const (
	ProductID     = "-//Punktual//Calendar Links//EN"
	icsDataPrefix = "data:text/calendar;charset=utf8,"
)

// ICS renders e as a VCALENDAR with a single VEVENT, stamped with the
// current time.
func ICS(e Event) ([]byte, error) {
	return Default.ICS(e)
}

// ICSDataURI is the "Apple Calendar" link: the ICS document inline in a
// data: URI.
func ICSDataURI(e Event) (string, error) {
	return Default.ICSDataURI(e)
}

func (g *Generator) ICS(e Event) ([]byte, error) {
	n, err := Normalize(e)
	if err != nil {
		return nil, err
	}
	return g.renderICS(n), nil
}

func (g *Generator) ICSDataURI(e Event) (string, error) {
	n, err := Normalize(e)
	if err != nil {
		return "", err
	}
	return g.dataURI(n), nil
}

func (g *Generator) dataURI(e Event) string {
	escaped := strings.ReplaceAll(url.QueryEscape(string(g.renderICS(e))), "+", "%20")
	return icsDataPrefix + escaped
}

// renderICS expects a normalized event.
func (g *Generator) renderICS(e Event) []byte {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(ProductID)

	ev := cal.AddEvent(e.UID)
	ev.SetDtStampTime(g.now().UTC())
	if e.AllDay {
		ev.SetAllDayStartAt(e.Start)
		ev.SetAllDayEndAt(exclusiveEnd(e))
	} else {
		ev.SetStartAt(e.Start.UTC())
		ev.SetEndAt(e.End.UTC())
	}
	ev.SetSummary(e.Title)
	if e.Description != "" {
		ev.SetDescription(e.Description)
	}
	if e.Location != "" {
		ev.SetLocation(e.Location)
	}
	if e.URL != "" {
		ev.SetURL(e.URL)
	}
	if e.Recurrence != "" {
		ev.AddRrule(e.Recurrence)
	}

	return []byte(cal.Serialize(ics.WithNewLineWindows))
}

var ErrInvalidDataURI = errors.New("invalid calendar data URI")

// DecodeICSDataURI returns the calendar document inside a data:text/calendar
// URI. Both percent-encoded and base64 payloads are accepted.
func DecodeICSDataURI(uri string) ([]byte, error) {
	if !IsICSDataURI(uri) {
		return nil, ErrInvalidDataURI
	}
	header, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return nil, ErrInvalidDataURI
	}
	if strings.HasSuffix(strings.ToLower(header), ";base64") {
		body, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
		}
		return body, nil
	}
	body, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return []byte(body), nil
}

// ValidateICSDataURI reports whether uri decodes to a calendar with at
// least one VEVENT.
func ValidateICSDataURI(uri string) error {
	body, err := DecodeICSDataURI(uri)
	if err != nil {
		return err
	}
	cal, err := ics.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	if len(cal.Events()) == 0 {
		return fmt.Errorf("%w: no VEVENT", ErrInvalidDataURI)
	}
	return nil
}

// Filename suggests a download name for an event's ICS file.
func Filename(e Event) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(e.Title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "-") {
				b.WriteByte('-')
			}
		}
		if b.Len() >= 60 {
			break
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "event"
	}
	return fmt.Sprintf("%s.ics", name)
}
