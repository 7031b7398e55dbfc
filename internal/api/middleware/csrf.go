package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/csrf"

	"github.com/punktual/server/internal/api/problem"
	"github.com/punktual/server/internal/audit"
	"github.com/punktual/server/internal/config"
)

const (
	CSRFHeaderName = "X-CSRF-Token"
	CSRFCookieName = "pk_csrf"
)

var errCSRFHeaderMissing = errors.New("csrf token header required")

// CSRF applies gorilla/csrf double-submit protection. Bearer-authenticated
// requests skip the check since browsers never attach that header on their
// own. When secure is false (local HTTP) requests are marked plaintext so
// the origin check does not demand https.
func CSRF(authKey []byte, secure bool, cors config.CORSConfig, env string) func(http.Handler) http.Handler {
	protect := csrf.Protect(authKey,
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.CookieName(CSRFCookieName),
		csrf.RequestHeader(CSRFHeaderName),
		csrf.TrustedOrigins(trustedHosts(cors.AllowedOrigins)),
		csrf.ErrorHandler(csrfErrorHandler(env)),
	)

	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsBearerRequest(r) {
				r = csrf.UnsafeSkipCheck(r)
			}
			if !secure {
				r = csrf.PlaintextHTTPRequest(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// CSRFToken returns the masked token for the current request. Only valid
// inside the CSRF middleware.
func CSRFToken(r *http.Request) string {
	return csrf.Token(r)
}

// RequireCSRFHeader guards safe-method routes that still return sensitive
// data (the GDPR export). gorilla/csrf never validates GET, so the request
// must carry a non-empty X-CSRF-Token, which a cross-site form or image tag
// cannot send, and must not be flagged cross-site by the browser.
func RequireCSRFHeader(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsBearerRequest(r) {
				next.ServeHTTP(w, r)
				return
			}
			if strings.TrimSpace(r.Header.Get(CSRFHeaderName)) == "" || r.Header.Get("Sec-Fetch-Site") == "cross-site" {
				audit.FromContext(r.Context()).LogFromRequest(r, audit.ActionCSRFFailure, "request", r.URL.Path, audit.StatusFailure,
					map[string]string{"reason": errCSRFHeaderMissing.Error()})
				problem.Write(w, r, http.StatusForbidden, problem.TypeCSRF, "CSRF validation failed", errCSRFHeaderMissing, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func csrfErrorHandler(env string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reason := csrf.FailureReason(r)
		if reason == nil {
			reason = errors.New("csrf validation failed")
		}
		audit.FromContext(r.Context()).LogFromRequest(r, audit.ActionCSRFFailure, "request", r.URL.Path, audit.StatusFailure,
			map[string]string{"reason": reason.Error(), "method": r.Method})
		problem.Write(w, r, http.StatusForbidden, problem.TypeCSRF, "CSRF validation failed", reason, env)
	})
}

// trustedHosts turns CORS origins into the host[:port] form gorilla/csrf
// compares against the Origin header.
func trustedHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, origin := range origins {
		u, err := url.Parse(strings.TrimSpace(origin))
		if err != nil || u.Host == "" {
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}
