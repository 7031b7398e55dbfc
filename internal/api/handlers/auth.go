package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/punktual/server/internal/api/middleware"
	"github.com/punktual/server/internal/api/problem"
	"github.com/punktual/server/internal/audit"
	"github.com/punktual/server/internal/auth/baas"
	"github.com/punktual/server/internal/clientip"
	"github.com/punktual/server/internal/domain/users"
	"github.com/punktual/server/internal/validation"
)

const (
	stateCookieName    = "pk_oauth_state"
	verifierCookieName = "pk_oauth_verifier"
	nextCookieName     = "pk_oauth_next"

	oauthCookieMaxAge = 10 * time.Minute
	defaultNextPath   = "/dashboard"
	loginPath         = "/login"
)

// Login failure codes passed to the frontend as /login?error=<code>.
const (
	loginErrOAuthFailed   = "oauth_failed"
	loginErrStateMismatch = "state_mismatch"
	loginErrMissingCode   = "missing_code"
	loginErrProvider      = "provider_error"
)

var supportedProviders = map[string]bool{"google": true, "github": true}

// OAuthClient is the part of the BaaS auth API the sign-in flow uses.
type OAuthClient interface {
	AuthorizeURL(provider, redirectTo, codeChallenge string) string
	ExchangeCode(ctx context.Context, code, verifier string) (*baas.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*baas.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// ProfileUpserter keeps the local profile in step with the identity provider.
type ProfileUpserter interface {
	UpsertFromAuth(ctx context.Context, user baas.User) (*users.Profile, error)
}

type AuthHandler struct {
	Client        OAuthClient
	Users         ProfileUpserter
	BaseURL       string
	SessionMaxAge time.Duration
	Env           string
}

// Login starts the PKCE flow for provider and redirects to the BaaS.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if !supportedProviders[provider] {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Unknown sign-in provider",
			errors.New("unsupported provider "+provider), h.Env,
			problem.WithDetail("Supported providers are google and github"))
		return
	}

	verifier, challenge, err := baas.NewPKCE()
	if err != nil {
		problem.Internal(w, r, err, h.Env)
		return
	}
	state, err := baas.GenerateState()
	if err != nil {
		problem.Internal(w, r, err, h.Env)
		return
	}
	next := validation.SafeRedirectPath(r.URL.Query().Get("next"), defaultNextPath)

	secure := secureCookies(h.Env)
	setOAuthCookie(w, stateCookieName, state, secure)
	setOAuthCookie(w, verifierCookieName, verifier, secure)
	setOAuthCookie(w, nextCookieName, next, secure)

	redirectTo := h.BaseURL + "/auth/callback"
	http.Redirect(w, r, h.Client.AuthorizeURL(provider, redirectTo, challenge), http.StatusFound)
}

// Callback completes the sign-in. Every failure ends on the login page with
// an error code; the browser never sees a problem document here.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())
	auditLog := audit.FromContext(r.Context())
	secure := secureCookies(h.Env)

	fail := func(code string, err error) {
		clearOAuthCookies(w, secure)
		logger.Warn().Err(err).Str("reason", code).Msg("oauth callback failed")
		auditLog.LogFromRequest(r, audit.ActionLoginFailed, "session", "", audit.StatusFailure,
			map[string]string{"reason": code})
		http.Redirect(w, r, loginPath+"?error="+url.QueryEscape(code), http.StatusFound)
	}

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		fail(loginErrProvider, errors.New(providerErr+": "+q.Get("error_description")))
		return
	}
	code := q.Get("code")
	if code == "" {
		fail(loginErrMissingCode, errors.New("callback without code"))
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != q.Get("state") {
		fail(loginErrStateMismatch, errors.New("state cookie does not match"))
		return
	}
	verifierCookie, err := r.Cookie(verifierCookieName)
	if err != nil || verifierCookie.Value == "" {
		fail(loginErrStateMismatch, errors.New("missing pkce verifier"))
		return
	}

	session, err := h.Client.ExchangeCode(r.Context(), code, verifierCookie.Value)
	if err != nil {
		fail(loginErrOAuthFailed, err)
		return
	}
	profile, err := h.Users.UpsertFromAuth(r.Context(), session.User)
	if err != nil {
		fail(loginErrOAuthFailed, err)
		return
	}

	next := defaultNextPath
	if c, err := r.Cookie(nextCookieName); err == nil {
		next = validation.SafeRedirectPath(c.Value, defaultNextPath)
	}

	clearOAuthCookies(w, secure)
	h.setSessionCookies(w, session)
	auditLog.LogSuccess(audit.ActionLogin, profile.ID.String(), "session", "", clientip.FromRequest(r),
		map[string]string{"provider": profile.Provider})
	http.Redirect(w, r, next, http.StatusFound)
}

// Refresh trades the refresh cookie for a new session.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(middleware.RefreshCookieName)
	if err != nil || c.Value == "" {
		problem.Unauthorized(w, r, errors.New("missing refresh cookie"), h.Env)
		return
	}
	session, err := h.Client.Refresh(r.Context(), c.Value)
	if err != nil {
		clearSessionCookies(w, h.Env)
		if errors.Is(err, baas.ErrUnauthorized) {
			problem.Unauthorized(w, r, err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusBadGateway, problem.TypeBadGateway, "Auth service unavailable", err, h.Env)
		return
	}
	h.setSessionCookies(w, session)
	w.WriteHeader(http.StatusNoContent)
}

// Logout clears the session cookies. Revoking the session upstream is best
// effort.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(middleware.SessionCookieName); err == nil && c.Value != "" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.Client.SignOut(ctx, c.Value); err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("upstream sign out failed")
		}
	}
	audit.FromContext(r.Context()).LogFromRequest(r, audit.ActionLogout, "session", "", audit.StatusSuccess, nil)
	clearSessionCookies(w, h.Env)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, session *baas.Session) {
	secure := secureCookies(h.Env)
	accessMaxAge := session.ExpiresIn
	if accessMaxAge <= 0 {
		accessMaxAge = int(time.Hour.Seconds())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.AccessToken,
		Path:     "/",
		MaxAge:   accessMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	if session.RefreshToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     middleware.RefreshCookieName,
			Value:    session.RefreshToken,
			Path:     "/auth",
			MaxAge:   int(h.SessionMaxAge.Seconds()),
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func clearSessionCookies(w http.ResponseWriter, env string) {
	secure := secureCookies(env)
	for name, path := range map[string]string{
		middleware.SessionCookieName: "/",
		middleware.RefreshCookieName: "/auth",
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     path,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func setOAuthCookie(w http.ResponseWriter, name, value string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/auth",
		MaxAge:   int(oauthCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearOAuthCookies(w http.ResponseWriter, secure bool) {
	for _, name := range []string{stateCookieName, verifierCookieName, nextCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/auth",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// secureCookies is false only for local development and tests over plain HTTP.
func secureCookies(env string) bool {
	return env != "development" && env != "test"
}
