package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punktual/server/internal/metrics"
)

const (
	statusPass = "pass"
	statusWarn = "warn"
	statusFail = "fail"

	checkTimeout = 2 * time.Second
)

// HealthCheck represents the health status of the server
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

type CheckResult struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Querier is the slice of pgxpool.Pool the checks need.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HealthChecker reports on the database, the migration state and the job
// queue. The CMS is an optional dependency and only ever warns.
type HealthChecker struct {
	db          Querier
	jobsEnabled bool
	cms         func(context.Context) error
	version     string
	gitCommit   string
}

func NewHealthChecker(db Querier, jobsEnabled bool, version, gitCommit string) *HealthChecker {
	return &HealthChecker{
		db:          db,
		jobsEnabled: jobsEnabled,
		version:     version,
		gitCommit:   gitCommit,
	}
}

// WithCMSCheck adds a reachability probe for the blog backend.
func (h *HealthChecker) WithCMSCheck(probe func(context.Context) error) *HealthChecker {
	h.cms = probe
	return h
}

// Health runs every check and answers 503 when any of them fails.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Err() != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]CheckResult{
			"database":   h.checkDatabase(ctx),
			"migrations": h.checkMigrations(ctx),
			"job_queue":  h.checkJobQueue(ctx),
		}
		if h.cms != nil {
			checks["cms"] = h.checkCMS(ctx)
		}

		overall := "healthy"
		code := http.StatusOK
		for name, check := range checks {
			recordCheck(name, check.Status)
			switch {
			case check.Status == statusFail:
				overall = "unhealthy"
				code = http.StatusServiceUnavailable
			case check.Status == statusWarn && overall == "healthy":
				overall = "degraded"
			}
		}

		writeJSON(w, code, HealthCheck{
			Status:    overall,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Checks:    checks,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// Readyz answers 200 once the database accepts queries.
func (h *HealthChecker) Readyz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		if check := h.checkDatabase(ctx); check.Status != statusPass {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not_ready", Message: check.Message})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ready"})
	}
}

func (h *HealthChecker) checkDatabase(ctx context.Context) CheckResult {
	if h.db == nil {
		return CheckResult{Status: statusFail, Message: "Database pool not initialized"}
	}

	start := time.Now()
	dbCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var one int
	err := h.db.QueryRow(dbCtx, "SELECT 1").Scan(&one)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		message := "Database query failed"
		switch {
		case dbCtx.Err() == context.DeadlineExceeded:
			message = "Database query timed out"
		case strings.Contains(err.Error(), "connection refused"):
			message = "Database connection refused"
		case strings.Contains(err.Error(), "authentication failed"):
			message = "Database authentication failed"
		}
		return CheckResult{
			Status:    statusFail,
			Message:   message,
			LatencyMs: latency,
			Details:   map[string]any{"error": err.Error()},
		}
	}

	result := CheckResult{Status: statusPass, Message: "PostgreSQL connection successful", LatencyMs: latency}
	if pool, ok := h.db.(*pgxpool.Pool); ok {
		stats := pool.Stat()
		result.Details = map[string]any{
			"max_connections":      stats.MaxConns(),
			"total_connections":    stats.TotalConns(),
			"idle_connections":     stats.IdleConns(),
			"acquired_connections": stats.AcquiredConns(),
		}
	}
	return result
}

// checkMigrations reads golang-migrate's bookkeeping table. A dirty flag
// means a migration died halfway and needs a manual force.
func (h *HealthChecker) checkMigrations(ctx context.Context) CheckResult {
	if h.db == nil {
		return CheckResult{Status: statusFail, Message: "Database pool not initialized"}
	}

	start := time.Now()
	migCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var version int64
	var dirty bool
	err := h.db.QueryRow(migCtx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		message := "Failed to query migration version"
		if strings.Contains(err.Error(), "does not exist") {
			message = "Migrations table not found; run punktual migrate up"
		}
		return CheckResult{
			Status:    statusFail,
			Message:   message,
			LatencyMs: latency,
			Details:   map[string]any{"error": err.Error()},
		}
	}
	if dirty {
		return CheckResult{
			Status:    statusFail,
			Message:   "Database in dirty migration state - manual intervention required",
			LatencyMs: latency,
			Details:   map[string]any{"version": version, "dirty": true},
		}
	}
	return CheckResult{
		Status:    statusPass,
		Message:   fmt.Sprintf("Migrations applied (version %d)", version),
		LatencyMs: latency,
		Details:   map[string]any{"version": version, "dirty": false},
	}
}

func (h *HealthChecker) checkJobQueue(ctx context.Context) CheckResult {
	if !h.jobsEnabled {
		return CheckResult{Status: statusWarn, Message: "Job workers disabled on this instance"}
	}
	if h.db == nil {
		return CheckResult{Status: statusFail, Message: "Database pool not initialized"}
	}

	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var available, retryable int64
	err := h.db.QueryRow(jobCtx, `
		SELECT
			count(*) FILTER (WHERE state = 'available'),
			count(*) FILTER (WHERE state = 'retryable')
		FROM river_job`).Scan(&available, &retryable)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		message := "Failed to query job queue"
		if strings.Contains(err.Error(), "does not exist") {
			message = "River tables not found; run punktual migrate up"
		}
		return CheckResult{
			Status:    statusFail,
			Message:   message,
			LatencyMs: latency,
			Details:   map[string]any{"error": err.Error()},
		}
	}

	return CheckResult{
		Status:    statusPass,
		Message:   "River job queue operational",
		LatencyMs: latency,
		Details:   map[string]any{"available_jobs": available, "retryable_jobs": retryable},
	}
}

func (h *HealthChecker) checkCMS(ctx context.Context) CheckResult {
	start := time.Now()
	cmsCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.cms(cmsCtx); err != nil {
		return CheckResult{
			Status:    statusWarn,
			Message:   "CMS unreachable; blog pages will fail",
			LatencyMs: time.Since(start).Milliseconds(),
			Details:   map[string]any{"error": err.Error()},
		}
	}
	return CheckResult{Status: statusPass, Message: "CMS reachable", LatencyMs: time.Since(start).Milliseconds()}
}

func recordCheck(name, status string) {
	value := 0.0
	switch status {
	case statusPass:
		value = 2
	case statusWarn:
		value = 1
	}
	metrics.HealthCheckStatus.WithLabelValues(name).Set(value)
}

// Healthz is the liveness probe: the process is up and serving.
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	})
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// writeJSON is shared by every handler in this package.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
