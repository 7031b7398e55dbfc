package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/punktual/server/internal/api/problem"
	"github.com/punktual/server/internal/auth"
	"github.com/punktual/server/internal/calendar"
	"github.com/punktual/server/internal/cms"
	"github.com/punktual/server/internal/domain/account"
	"github.com/punktual/server/internal/domain/events"
	"github.com/punktual/server/internal/domain/shortlinks"
	"github.com/punktual/server/internal/domain/users"
	"github.com/punktual/server/internal/metrics"
	"github.com/punktual/server/internal/validation"
)

var (
	errEmptyBody = errors.New("request body is empty")
	errNoUser    = errors.New("no authenticated user")
)

// decodeJSON reads exactly one JSON object and rejects unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// writeDecodeError maps body decoding failures to 400 or 413.
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error, env string) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeTooLarge, "Request body too large", err, env)
		return
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	detail := "Request body is not valid JSON"
	switch {
	case errors.Is(err, errEmptyBody):
		detail = "Request body is required"
	case errors.As(err, &typeErr):
		detail = fmt.Sprintf("%s: wrong type", typeErr.Field)
	case errors.As(err, &syntaxErr):
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		detail = strings.TrimPrefix(err.Error(), "json: ")
	}
	problem.BadRequest(w, r, "Invalid request body", err, env, problem.WithDetail(detail))
}

// currentUser returns the authenticated user. RequireAuth has already
// rejected anonymous requests on routes that call this.
func currentUser(r *http.Request) (uuid.UUID, *auth.Claims, bool) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		return uuid.Nil, nil, false
	}
	id, err := claims.UserID()
	if err != nil {
		return uuid.Nil, nil, false
	}
	return id, claims, true
}

// writeError maps domain errors onto problem responses. Anything it does
// not recognize is a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error, env string) {
	var verr validation.Error
	switch {
	case errors.Is(err, errNoUser):
		problem.Unauthorized(w, r, err, env)
	case errors.As(err, &verr):
		problem.BadRequest(w, r, "Validation failed", err, env,
			problem.WithDetail(verr.Error()),
			problem.WithErrors(map[string]any{verr.Field: verr.Message}))
	case errors.Is(err, calendar.ErrUnparseableDate):
		problem.BadRequest(w, r, "Validation failed", err, env,
			problem.WithDetail("start_text: could not understand the date"),
			problem.WithErrors(map[string]any{"start_text": "could not understand the date"}))
	case errors.Is(err, events.ErrNotFound),
		errors.Is(err, shortlinks.ErrNotFound),
		errors.Is(err, users.ErrNotFound),
		errors.Is(err, cms.ErrNotFound):
		problem.NotFound(w, r, err, env)
	case errors.Is(err, shortlinks.ErrExpired):
		problem.Write(w, r, http.StatusGone, problem.TypeGone, "Link expired", err, env)
	case errors.Is(err, shortlinks.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Too many requests", err, env)
	case errors.Is(err, account.ErrInvalidToken):
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Invalid confirmation token", err, env,
			problem.WithDetail("The confirmation token is missing, wrong or expired. Request a new one."))
	case errors.Is(err, shortlinks.ErrIDExhausted):
		problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeServiceMissing, "Could not allocate a short link", err, env)
	case errors.Is(err, cms.ErrUnavailable):
		problem.Write(w, r, http.StatusBadGateway, problem.TypeBadGateway, "Blog temporarily unavailable", err, env)
	default:
		problem.Internal(w, r, err, env)
	}
}

func countLinks(links calendar.Links) {
	for platform := range links {
		metrics.CalendarLinksGenerated.WithLabelValues(string(platform)).Inc()
	}
}
