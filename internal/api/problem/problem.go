// Package problem writes RFC 7807 application/problem+json responses.
package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/problem+json"

const typeBase = "https://punktual.app/problems/"

// Problem type URIs.
const (
	TypeValidation     = typeBase + "validation-error"
	TypeNotFound       = typeBase + "not-found"
	TypeGone           = typeBase + "gone"
	TypeUnauthorized   = typeBase + "unauthorized"
	TypeForbidden      = typeBase + "forbidden"
	TypeCSRF           = typeBase + "csrf-failure"
	TypeConflict       = typeBase + "conflict"
	TypeRateLimited    = typeBase + "rate-limited"
	TypeTooLarge       = typeBase + "payload-too-large"
	TypeBadGateway     = typeBase + "upstream-error"
	TypeServiceMissing = typeBase + "service-unavailable"
	TypeServerError    = typeBase + "server-error"
)

type ProblemDetails struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Status    int            `json:"status"`
	Detail    string         `json:"detail,omitempty"`
	Instance  string         `json:"instance,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Errors    map[string]any `json:"errors,omitempty"`
}

type Option func(*ProblemDetails)

// WithDetail sets a client-safe detail shown in every environment.
func WithDetail(detail string) Option {
	return func(p *ProblemDetails) {
		p.Detail = detail
	}
}

func WithInstance(instance string) Option {
	return func(p *ProblemDetails) {
		p.Instance = instance
	}
}

func WithErrors(errs map[string]any) Option {
	return func(p *ProblemDetails) {
		p.Errors = errs
	}
}

// Write renders a problem response. The underlying error text is exposed
// only in development and test; elsewhere the detail is the status text.
// 5xx are logged at error level, 4xx at warn, through the request logger.
func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	problem := ProblemDetails{
		Type:   typ,
		Title:  title,
		Status: status,
	}

	for _, opt := range opts {
		opt(&problem)
	}

	if problem.Detail == "" && err != nil {
		if env == "development" || env == "test" {
			problem.Detail = err.Error()
		} else {
			problem.Detail = http.StatusText(status)
		}
	}

	if r != nil {
		if problem.Instance == "" {
			problem.Instance = r.URL.Path
		}
		if problem.RequestID == "" {
			problem.RequestID = w.Header().Get("X-Request-ID")
		}
		logProblem(r, status, typ, title, err)
	}

	WriteProblem(w, problem)
}

func logProblem(r *http.Request, status int, typ, title string, err error) {
	if err == nil || status < 400 {
		return
	}
	logger := zerolog.Ctx(r.Context())
	event := logger.Warn()
	if status >= 500 {
		event = logger.Error()
	}
	event.
		Err(err).
		Int("status", status).
		Str("type", typ).
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Msg(title)
}

func WriteProblem(w http.ResponseWriter, problem ProblemDetails) {
	payload, err := json.Marshal(problem)
	if err != nil {
		fallback := fmt.Sprintf("{\"type\":\"about:blank\",\"title\":\"%s\",\"status\":500}", http.StatusText(http.StatusInternalServerError))
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fallback))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(problem.Status)
	_, _ = w.Write(payload)
}

// Shorthands for the common statuses.

func BadRequest(w http.ResponseWriter, r *http.Request, title string, err error, env string, opts ...Option) {
	Write(w, r, http.StatusBadRequest, TypeValidation, title, err, env, opts...)
}

func NotFound(w http.ResponseWriter, r *http.Request, err error, env string) {
	Write(w, r, http.StatusNotFound, TypeNotFound, "Not found", err, env)
}

func Unauthorized(w http.ResponseWriter, r *http.Request, err error, env string) {
	Write(w, r, http.StatusUnauthorized, TypeUnauthorized, "Unauthorized", err, env)
}

func Internal(w http.ResponseWriter, r *http.Request, err error, env string) {
	Write(w, r, http.StatusInternalServerError, TypeServerError, "Internal server error", err, env)
}

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
)
