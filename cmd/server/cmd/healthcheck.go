package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	healthcheckCmd = &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check by calling the /health endpoint.

Used as the container HEALTHCHECK. "degraded" counts as healthy because
only optional dependencies (the blog CMS) can degrade.

Exit codes:
  0 - Server is healthy or degraded
  1 - Server is unhealthy, unreachable, or answered with something else`,
		RunE: runHealthcheck,
	}

	healthcheckTimeout int
	healthcheckURL     string
)

func init() {
	healthcheckCmd.Flags().IntVar(&healthcheckTimeout, "timeout", 5, "timeout in seconds")
	healthcheckCmd.Flags().StringVar(&healthcheckURL, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/health)")
}

// HealthResponse is the part of the /health body the probe reads.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthCheckResult is one probe outcome.
type HealthCheckResult struct {
	IsHealthy bool
	Status    string
	Error     string
	LatencyMs int64
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	url := healthcheckURL
	if url == "" {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		url = fmt.Sprintf("http://localhost:%s/health", port)
	}

	result := performHealthCheck(url, time.Duration(healthcheckTimeout)*time.Second)
	if result.Error != "" {
		return fmt.Errorf("health check failed: %s", result.Error)
	}
	if !result.IsHealthy {
		return fmt.Errorf("server status: %s", result.Status)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%dms)\n", result.Status, result.LatencyMs)
	return nil
}

func performHealthCheck(url string, timeout time.Duration) HealthCheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HealthCheckResult{Error: err.Error()}
	}

	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return HealthCheckResult{Error: err.Error(), LatencyMs: latency}
	}
	defer func() { _ = resp.Body.Close() }()

	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return HealthCheckResult{
			Error:     fmt.Sprintf("invalid response (status %d): %v", resp.StatusCode, err),
			LatencyMs: latency,
		}
	}

	healthy := resp.StatusCode == http.StatusOK && (body.Status == "healthy" || body.Status == "degraded")
	return HealthCheckResult{
		IsHealthy: healthy,
		Status:    body.Status,
		LatencyMs: latency,
	}
}
