package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/punktual/server/internal/api/handlers"
	"github.com/punktual/server/internal/api/middleware"
	"github.com/punktual/server/internal/audit"
	"github.com/punktual/server/internal/auth"
	"github.com/punktual/server/internal/clientip"
	"github.com/punktual/server/internal/config"
	"github.com/punktual/server/internal/metrics"
	"github.com/punktual/server/web"
)

// Deps is everything the router mounts. Handlers left nil are not routed,
// which keeps tests small.
type Deps struct {
	Config   config.Config
	Logger   zerolog.Logger
	JWT      *auth.JWTManager
	CSRFKey  []byte
	ClientIP *clientip.Resolver
	Audit    *audit.Logger
	Build    BuildInfo

	Health     *handlers.HealthChecker
	Generate   *handlers.GenerateHandler
	Session    *handlers.SessionHandler
	Events     *handlers.EventsHandler
	ShortLinks *handlers.ShortLinksHandler
	Account    *handlers.AccountHandler
	Blog       *handlers.BlogHandler
	Auth       *handlers.AuthHandler
}

type Router struct {
	Handler http.Handler
	limiter *middleware.RateLimiter
}

// Stop ends the rate limiter's cleanup loop.
func (r *Router) Stop() {
	r.limiter.Stop()
}

type csrfMode int

const (
	csrfNone csrfMode = iota
	// csrfCheck runs the double-submit check. Safe methods pass and get a token.
	csrfCheck
	// csrfHeader also demands the token header on safe methods.
	csrfHeader
)

type route struct {
	pattern string
	tier    middleware.RateLimitTier
	auth    bool
	csrf    csrfMode
	handler http.HandlerFunc
}

func NewRouter(d Deps) *Router {
	env := d.Config.Environment
	limiter := middleware.NewRateLimiter(d.Config.RateLimit, env)
	secure := strings.HasPrefix(d.Config.Server.BaseURL, "https://")
	csrfProtect := middleware.CSRF(d.CSRFKey, secure, d.Config.CORS, env)

	mux := http.NewServeMux()
	handle := func(rt route) {
		h := http.Handler(rt.handler)
		if strings.HasPrefix(rt.pattern, "POST ") || strings.HasPrefix(rt.pattern, "PUT ") {
			h = middleware.RequestSize(middleware.JSONMaxBodySize, env)(h)
		}
		if rt.csrf == csrfHeader {
			h = middleware.RequireCSRFHeader(env)(h)
		}
		if rt.csrf != csrfNone {
			h = csrfProtect(h)
		}
		if rt.auth {
			h = middleware.RequireAuth(env)(h)
		}
		if rt.tier != "" {
			h = limiter.Limit(rt.tier)(h)
		}
		mux.Handle(rt.pattern, withRoute(rt.pattern, h))
	}

	mux.Handle("GET /metrics", withRoute("GET /metrics", metrics.Handler()))
	mux.Handle("GET /healthz", withRoute("GET /healthz", handlers.Healthz()))
	mux.Handle("GET /version", withRoute("GET /version", VersionHandler(d.Build)))
	mux.Handle("GET /robots.txt", withRoute("GET /robots.txt", web.RobotsTxtHandler()))
	if d.Health != nil {
		mux.Handle("GET /readyz", withRoute("GET /readyz", d.Health.Readyz()))
		mux.Handle("GET /health", withRoute("GET /health", d.Health.Health()))
	}

	var routes []route
	if d.Generate != nil {
		routes = append(routes,
			route{"POST /api/v1/generate", middleware.TierPublic, false, csrfNone, d.Generate.Generate},
		)
	}
	if d.Session != nil {
		routes = append(routes,
			route{"GET /api/v1/csrf", middleware.TierPublic, false, csrfCheck, d.Session.CSRFToken},
			route{"GET /api/v1/session", middleware.TierPublic, false, csrfNone, d.Session.Session},
		)
	}
	if d.Events != nil {
		routes = append(routes,
			route{"GET /api/v1/events", middleware.TierAPI, true, csrfNone, d.Events.List},
			route{"POST /api/v1/events", middleware.TierAPI, true, csrfCheck, d.Events.Create},
			route{"GET /api/v1/events/{id}", middleware.TierAPI, true, csrfNone, d.Events.Get},
			route{"PUT /api/v1/events/{id}", middleware.TierAPI, true, csrfCheck, d.Events.Update},
			route{"DELETE /api/v1/events/{id}", middleware.TierAPI, true, csrfCheck, d.Events.Delete},
			route{"GET /api/v1/events/{id}/links", middleware.TierAPI, true, csrfNone, d.Events.Links},
			route{"GET /api/v1/events/{id}/embed", middleware.TierAPI, true, csrfNone, d.Events.Embed},
			route{"GET /api/v1/events/{id}/ics", middleware.TierAPI, true, csrfNone, d.Events.ICS},
		)
	}
	if d.ShortLinks != nil {
		routes = append(routes,
			route{"POST /api/v1/links", middleware.TierAPI, true, csrfCheck, d.ShortLinks.Create},
			route{"GET /api/v1/links", middleware.TierAPI, true, csrfNone, d.ShortLinks.List},
			route{"GET /s/{id}", middleware.TierTracking, false, csrfNone, d.ShortLinks.Redirect},
			route{"POST /api/v1/links/{id}/click", middleware.TierTracking, false, csrfNone, d.ShortLinks.Click},
		)
	}
	if d.Account != nil {
		routes = append(routes,
			route{"GET /api/v1/account/export", middleware.TierSensitive, true, csrfHeader, d.Account.Export},
			route{"POST /api/v1/account/deletion-token", middleware.TierSensitive, true, csrfCheck, d.Account.DeletionToken},
			route{"DELETE /api/v1/account", middleware.TierSensitive, true, csrfCheck, d.Account.Delete},
		)
	}
	if d.Blog != nil {
		routes = append(routes,
			route{"GET /api/v1/blog/posts", middleware.TierPublic, false, csrfNone, d.Blog.List},
			route{"GET /api/v1/blog/posts/{slug}", middleware.TierPublic, false, csrfNone, d.Blog.Get},
		)
	}
	if d.Auth != nil {
		routes = append(routes,
			route{"GET /auth/{provider}/login", middleware.TierAuth, false, csrfNone, d.Auth.Login},
			route{"GET /auth/callback", middleware.TierAuth, false, csrfNone, d.Auth.Callback},
			route{"POST /auth/refresh", middleware.TierAuth, false, csrfNone, d.Auth.Refresh},
			route{"POST /auth/logout", middleware.TierAuth, false, csrfNone, d.Auth.Logout},
		)
	}
	for _, rt := range routes {
		handle(rt)
	}

	auditLogger := d.Audit
	if auditLogger == nil {
		auditLogger = audit.NewLoggerWithZerolog(d.Logger)
	}

	var h http.Handler = mux
	h = middleware.RequestSize(middleware.DefaultMaxBodySize, env)(h)
	h = middleware.Authenticate(d.JWT)(h)
	h = middleware.CORS(d.Config.CORS, d.Logger)(h)
	h = middleware.SecurityHeaders(d.Config.IsProduction())(h)
	h = audit.Middleware(auditLogger)(h)
	h = metrics.HTTPMiddleware(h)
	h = middleware.RequestLogging(d.Logger)(h)
	if d.ClientIP != nil {
		h = d.ClientIP.Middleware(h)
	}
	h = middleware.CorrelationID(d.Logger)(h)
	h = middleware.Tracing(h)

	return &Router{Handler: h, limiter: limiter}
}

// withRoute labels metrics and the request span with the matched pattern.
func withRoute(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.SetRoute(r.Context(), pattern)
		middleware.SetSpanRoute(r.Context(), pattern)
		next.ServeHTTP(w, r)
	})
}
