package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/punktual/server/internal/audit"
	"github.com/punktual/server/internal/calendar"
	"github.com/punktual/server/internal/clientip"
	"github.com/punktual/server/internal/domain/shortlinks"
)

const trackTimeout = 2 * time.Second

type ShortLinksHandler struct {
	Service *shortlinks.Service
	BaseURL string
	Env     string
}

type shortLinkResponse struct {
	shortlinks.ShortLink
	ShortURL string `json:"short_url"`
}

func (h *ShortLinksHandler) present(link shortlinks.ShortLink) shortLinkResponse {
	return shortLinkResponse{ShortLink: link, ShortURL: h.BaseURL + "/s/" + link.ID}
}

// Create is the create-short-link endpoint.
func (h *ShortLinksHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		writeError(w, r, errNoUser, h.Env)
		return
	}
	var input shortlinks.CreateInput
	if err := decodeJSON(r, &input); err != nil {
		writeDecodeError(w, r, err, h.Env)
		return
	}

	link, err := h.Service.Create(r.Context(), userID, input)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	audit.FromContext(r.Context()).LogFromRequest(r, audit.ActionShortLinkCreate, "short_link", link.ID, audit.StatusSuccess,
		map[string]string{"platform": string(link.Platform)})

	w.Header().Set("Location", "/s/"+link.ID)
	writeJSON(w, http.StatusCreated, h.present(*link))
}

func (h *ShortLinksHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		writeError(w, r, errNoUser, h.Env)
		return
	}
	links, err := h.Service.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	items := make([]shortLinkResponse, 0, len(links))
	for _, link := range links {
		items = append(items, h.present(link))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Redirect records the click and sends the visitor on. A click over the
// per-IP limit is not counted but still redirects. Apple links carry the
// ICS document inline, which browsers refuse to navigate to, so it is
// served as a download instead.
func (h *ShortLinksHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	link, err := h.Service.Resolve(r.Context(), id)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	h.track(r, id)

	w.Header().Set("Cache-Control", "no-store")
	if link.Platform == calendar.PlatformApple || calendar.IsICSDataURI(link.TargetURL) {
		body, err := calendar.DecodeICSDataURI(link.TargetURL)
		if err != nil {
			writeError(w, r, err, h.Env)
			return
		}
		writeICS(w, body, "event.ics")
		return
	}
	http.Redirect(w, r, link.TargetURL, http.StatusFound)
}

// Click is the track-click endpoint for clients that open the target
// themselves.
func (h *ShortLinksHandler) Click(w http.ResponseWriter, r *http.Request) {
	err := h.Service.TrackClick(r.Context(), r.PathValue("id"), clickMeta(r))
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShortLinksHandler) track(r *http.Request, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), trackTimeout)
	defer cancel()

	err := h.Service.TrackClick(ctx, id, clickMeta(r))
	switch {
	case err == nil, errors.Is(err, shortlinks.ErrRateLimited):
	default:
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("short_id", id).Msg("click tracking failed")
	}
}

func clickMeta(r *http.Request) shortlinks.ClickMeta {
	return shortlinks.ClickMeta{
		IP:        clientip.FromRequest(r),
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
	}
}
