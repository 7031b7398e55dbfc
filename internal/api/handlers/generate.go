package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/punktual/server/internal/calendar"
	"github.com/punktual/server/internal/domain/events"
	"github.com/punktual/server/internal/validation"
)

// GenerateHandler is the stateless generator used by the landing page.
// Nothing is stored.
type GenerateHandler struct {
	Generator *calendar.Generator
	Env       string
	Now       func() time.Time
}

type generateRequest struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Location    string               `json:"location"`
	URL         string               `json:"url"`
	Start       *time.Time           `json:"start,omitempty"`
	StartText   string               `json:"start_text,omitempty"`
	End         *time.Time           `json:"end,omitempty"`
	Duration    int                  `json:"duration_minutes,omitempty"`
	Timezone    string               `json:"timezone"`
	AllDay      bool                 `json:"all_day"`
	Recurrence  string               `json:"recurrence"`
	Style       calendar.ButtonStyle `json:"style"`
}

type generatedEvent struct {
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Timezone string    `json:"timezone"`
	AllDay   bool      `json:"all_day"`
}

type generateResponse struct {
	Event      generatedEvent `json:"event"`
	Links      calendar.Links `json:"links"`
	ICSDataURI string         `json:"ics_data_uri"`
	Embed      calendar.Embed `json:"embed"`
}

const maxDurationMinutes = 60 * 24 * 31

func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err, h.Env)
		return
	}

	ev, err := h.toEvent(req)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	normalized, err := calendar.Normalize(ev)
	if err != nil {
		writeError(w, r, events.CalendarValidationError(err), h.Env)
		return
	}
	links, err := h.Generator.Generate(normalized)
	if err != nil {
		writeError(w, r, events.CalendarValidationError(err), h.Env)
		return
	}
	dataURI, err := h.Generator.ICSDataURI(normalized)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	embed, err := calendar.BuildEmbed(normalized, req.Style, links)
	if err != nil {
		writeError(w, r, events.CalendarValidationError(err), h.Env)
		return
	}
	countLinks(links)

	writeJSON(w, http.StatusOK, generateResponse{
		Event: generatedEvent{
			Title:    normalized.Title,
			Start:    normalized.Start,
			End:      normalized.End,
			Timezone: normalized.Timezone,
			AllDay:   normalized.AllDay,
		},
		Links:      links,
		ICSDataURI: dataURI,
		Embed:      embed,
	})
}

// toEvent resolves free-text start times and durations. An explicit start
// wins over start_text; an explicit end wins over duration_minutes.
func (h *GenerateHandler) toEvent(req generateRequest) (calendar.Event, error) {
	if err := validation.ValidateURL(strings.TrimSpace(req.URL), "url", false); err != nil {
		return calendar.Event{}, err
	}

	loc := time.UTC
	if tz := strings.TrimSpace(req.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return calendar.Event{}, validation.Error{Field: "timezone", Message: "must be an IANA time zone"}
		}
		loc = l
	}

	ev := calendar.Event{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		URL:         req.URL,
		Timezone:    req.Timezone,
		AllDay:      req.AllDay,
		Recurrence:  req.Recurrence,
	}

	switch {
	case req.Start != nil:
		ev.Start = *req.Start
	case strings.TrimSpace(req.StartText) != "":
		start, err := calendar.ParseWhen(req.StartText, loc, h.now())
		if err != nil {
			return calendar.Event{}, err
		}
		ev.Start = start
	}

	switch {
	case req.End != nil:
		ev.End = *req.End
	case req.Duration < 0 || req.Duration > maxDurationMinutes:
		return calendar.Event{}, validation.Error{Field: "duration_minutes", Message: "must be between 0 and 44640"}
	case req.Duration > 0 && !ev.Start.IsZero():
		ev.End = ev.Start.Add(time.Duration(req.Duration) * time.Minute)
	}
	return ev, nil
}

func (h *GenerateHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
