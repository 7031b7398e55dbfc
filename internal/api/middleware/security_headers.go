package middleware

import (
	"net/http"
	"strings"
)

const (
	apiCSP = "default-src 'none'; frame-ancestors 'none'"
	// Redirect targets and the ICS download are navigations, not documents
	// we render, but they still must not be framed.
	redirectCSP = "default-src 'none'; frame-ancestors 'none'; form-action 'none'"
)

// SecurityHeaders sets the baseline response headers for a JSON API.
// HSTS is only sent over TLS and only when requireHTTPS is set.
func SecurityHeaders(requireHTTPS bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			if strings.HasPrefix(r.URL.Path, "/s/") {
				h.Set("Content-Security-Policy", redirectCSP)
				h.Set("Referrer-Policy", "no-referrer")
			} else {
				h.Set("Content-Security-Policy", apiCSP)
			}

			if requireHTTPS && r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			}

			next.ServeHTTP(w, r)
		})
	}
}
