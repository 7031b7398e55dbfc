package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace for all Punktual metrics
const namespace = "punktual"

// Registry is the private Prometheus registry served at /metrics.
var Registry = prometheus.NewRegistry()

// AppInfo exposes version information as labels (value is always 1).
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// HealthCheckStatus tracks individual health check results.
// Values: 0 = fail, 1 = warn, 2 = pass
var HealthCheckStatus = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_check_status",
		Help:      "Individual health check status (0=fail, 1=warn, 2=pass)",
	},
	[]string{"check"},
)

// Domain metrics
var (
	CalendarLinksGenerated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_links_generated_total",
			Help:      "Total number of calendar links generated",
		},
		[]string{"platform"},
	)

	ShortLinksCreated = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shortlinks_created_total",
			Help:      "Total number of short links created",
		},
	)

	// ShortLinkClicks counts click tracking outcomes.
	// result: recorded|rate_limited|not_found|expired|error
	ShortLinkClicks = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shortlink_clicks_total",
			Help:      "Total number of short link clicks by outcome",
		},
		[]string{"result"},
	)

	RateLimited = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the in-memory rate limiter",
		},
		[]string{"tier"},
	)

	CMSCacheHits = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cms_cache_hits_total",
			Help:      "Total number of CMS cache hits",
		},
	)

	CMSCacheMisses = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cms_cache_misses_total",
			Help:      "Total number of CMS cache misses",
		},
	)
)

// Init registers runtime collectors and sets version information.
func Init(version, commit, buildDate string) {
	// Register is used instead of MustRegister so repeated calls (tests) are harmless.
	_ = Registry.Register(collectors.NewGoCollector())
	_ = Registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}

// Handler serves the private registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
