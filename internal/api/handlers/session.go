package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/punktual/server/internal/api/middleware"
	"github.com/punktual/server/internal/domain/users"
)

// ProfileGetter loads the local profile for a signed-in user.
type ProfileGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*users.Profile, error)
}

type SessionHandler struct {
	Users ProfileGetter
	Env   string
}

type sessionResponse struct {
	User    sessionUser    `json:"user"`
	Profile *users.Profile `json:"profile,omitempty"`
}

type sessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Session reports who is signed in. A valid token without a profile row
// still answers 200; the profile appears after the next login.
func (h *SessionHandler) Session(w http.ResponseWriter, r *http.Request) {
	userID, claims, ok := currentUser(r)
	if !ok {
		writeError(w, r, errNoUser, h.Env)
		return
	}

	resp := sessionResponse{User: sessionUser{ID: userID.String(), Email: claims.Email}}
	profile, err := h.Users.Get(r.Context(), userID)
	switch {
	case err == nil:
		resp.Profile = profile
	case errors.Is(err, users.ErrNotFound):
	default:
		writeError(w, r, err, h.Env)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

// CSRFToken hands the browser a token for the double-submit check. It must
// be mounted behind the CSRF middleware.
func (h *SessionHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token := middleware.CSRFToken(r)
	w.Header().Set(middleware.CSRFHeaderName, token)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}
