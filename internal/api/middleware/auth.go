package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/punktual/server/internal/api/problem"
	"github.com/punktual/server/internal/auth"
)

const (
	// SessionCookieName holds the BaaS access token for browser sessions.
	SessionCookieName = "pk_session"
	RefreshCookieName = "pk_refresh"
)

// Authenticate attaches verified claims to the request context when a
// Bearer header or session cookie carries a valid access token. It never
// rejects; routes that need a user add RequireAuth.
func Authenticate(manager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := requestToken(r)
			if token == "" || manager == nil {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := manager.Validate(token)
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("ignoring invalid access token")
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

// RequireAuth answers 401 unless Authenticate found a user.
func RequireAuth(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := auth.ClaimsFromContext(r.Context())
			if claims == nil {
				problem.Unauthorized(w, r, auth.ErrMissingToken, env)
				return
			}
			if _, err := claims.UserID(); err != nil {
				problem.Unauthorized(w, r, err, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsBearerRequest reports whether the caller authenticates with an
// Authorization header rather than cookies.
func IsBearerRequest(r *http.Request) bool {
	_, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
	return err == nil
}

func requestToken(r *http.Request) string {
	if token, err := auth.TokenFromHeader(r.Header.Get("Authorization")); err == nil {
		return token
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}
