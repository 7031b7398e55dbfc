package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/punktual/server/internal/calendar"
	"github.com/punktual/server/internal/domain/events"
)

// EventsHandler serves the signed-in user's saved events.
type EventsHandler struct {
	Service *events.Service
	Env     string
}

type eventListResponse struct {
	Items      []events.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		writeError(w, r, errNoUser, h.Env)
		return
	}
	page, err := events.ParsePagination(r.URL.Query())
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	result, err := h.Service.List(r.Context(), userID, page)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	items := result.Events
	if items == nil {
		items = []events.Event{}
	}
	writeJSON(w, http.StatusOK, eventListResponse{Items: items, NextCursor: result.NextCursor})
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		writeError(w, r, errNoUser, h.Env)
		return
	}
	var input events.EventInput
	if err := decodeJSON(r, &input); err != nil {
		writeDecodeError(w, r, err, h.Env)
		return
	}
	event, err := h.Service.Create(r.Context(), userID, input)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	w.Header().Set("Location", "/api/v1/events/"+event.ID)
	writeJSON(w, http.StatusCreated, event)
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		writeError(w, r, errNoUser, h.Env)
		return
	}
	event, err := h.Service.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		writeError(w, r, errNoUser, h.Env)
		return
	}
	var input events.EventInput
	if err := decodeJSON(r, &input); err != nil {
		writeDecodeError(w, r, err, h.Env)
		return
	}
	event, err := h.Service.Update(r.Context(), userID, r.PathValue("id"), input)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		writeError(w, r, errNoUser, h.Env)
		return
	}
	if err := h.Service.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EventsHandler) Links(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		writeError(w, r, errNoUser, h.Env)
		return
	}
	links, err := h.Service.Links(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	countLinks(links)
	writeJSON(w, http.StatusOK, map[string]calendar.Links{"links": links})
}

func (h *EventsHandler) Embed(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		writeError(w, r, errNoUser, h.Env)
		return
	}
	embed, err := h.Service.Embed(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, embed)
}

// ICS downloads the event as an .ics attachment.
func (h *EventsHandler) ICS(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		writeError(w, r, errNoUser, h.Env)
		return
	}
	body, filename, err := h.Service.ICS(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeICS(w, body, filename)
}

func writeICS(w http.ResponseWriter, body []byte, filename string) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
