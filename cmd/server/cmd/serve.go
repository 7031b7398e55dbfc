package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/punktual/server/internal/api"
	"github.com/punktual/server/internal/api/handlers"
	"github.com/punktual/server/internal/audit"
	"github.com/punktual/server/internal/auth"
	"github.com/punktual/server/internal/auth/baas"
	"github.com/punktual/server/internal/calendar"
	"github.com/punktual/server/internal/clientip"
	"github.com/punktual/server/internal/cms"
	"github.com/punktual/server/internal/config"
	"github.com/punktual/server/internal/domain/account"
	"github.com/punktual/server/internal/domain/events"
	"github.com/punktual/server/internal/domain/shortlinks"
	"github.com/punktual/server/internal/domain/users"
	"github.com/punktual/server/internal/email"
	"github.com/punktual/server/internal/jobs"
	"github.com/punktual/server/internal/metrics"
	"github.com/punktual/server/internal/storage/postgres"
	"github.com/punktual/server/internal/telemetry"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server and the background job workers.

Configuration comes from environment variables, optionally layered over a
YAML file passed with --config. SIGINT or SIGTERM triggers a graceful
shutdown.

Examples:
  # Start with configuration from env vars
  punktual serve

  # Start on a specific host and port
  punktual serve --host 127.0.0.1 --port 9090

  # Start with debug logging and a config file
  punktual serve --log-level debug --config /etc/punktual/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("environment", cfg.Environment).Msg("starting punktual server")

	metrics.Init(Version, GitCommit, BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	poolCtx, poolCancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := postgres.Connect(poolCtx, cfg.Database)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	store, err := postgres.NewStore(pool)
	if err != nil {
		return err
	}

	dbCollector := metrics.NewDBCollector(pool)
	collectorCtx, collectorCancel := context.WithCancel(context.Background())
	go dbCollector.Start(collectorCtx, 15*time.Second)
	defer collectorCancel()
	defer dbCollector.Stop()

	keys, err := auth.DeriveKeys([]byte(cfg.Auth.SecretKey))
	if err != nil {
		return fmt.Errorf("derive keys: %w", err)
	}

	baasClient := baas.NewClient(baas.Config{
		BaseURL:        cfg.Auth.BaaSURL,
		AnonKey:        cfg.Auth.AnonKey,
		ServiceRoleKey: cfg.Auth.ServiceRoleKey,
	})

	mailer, err := email.NewService(cfg.Email, logger)
	if err != nil {
		return fmt.Errorf("email service: %w", err)
	}

	riverClient, err := newRiverClient(cfg, store, baasClient, mailer)
	if err != nil {
		return fmt.Errorf("river client: %w", err)
	}
	if cfg.Jobs.Enabled {
		if err := riverClient.Start(ctx); err != nil {
			return fmt.Errorf("river workers failed to start: %w", err)
		}
		logger.Info().Msg("river background job workers started")
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			if err := riverClient.Stop(stopCtx); err != nil {
				logger.Error().Err(err).Msg("river workers shutdown error")
			} else {
				logger.Info().Msg("river workers stopped")
			}
		}()
	} else {
		logger.Warn().Msg("jobs disabled; account purges are queued but not processed")
	}

	resolver, err := clientip.NewResolver(cfg.RateLimit.TrustedProxyCIDRs)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	router := api.NewRouter(buildDeps(cfg, logger, store, riverClient, baasClient, keys, resolver))
	defer router.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	return gracefulShutdown(server, logger)
}

// newRiverClient returns a working client when jobs are enabled and an
// insert-only one otherwise, so account deletion can always enqueue.
func newRiverClient(cfg config.Config, store *postgres.Store, baasClient *baas.Client, mailer *email.Service) (*river.Client[pgx.Tx], error) {
	slogger := newSlogLogger(cfg.Logging)
	hooks := []rivertype.Hook{metrics.NewRiverMetricsHook()}
	if !cfg.Jobs.Enabled {
		return jobs.NewClient(store.Pool(), nil, slogger, hooks, nil)
	}

	workers := jobs.NewWorkers(jobs.Deps{
		Users:         baasClient,
		Mailer:        mailer,
		Clicks:        store.Clicks(),
		Tokens:        store.DeletionTokens(),
		ShortLinks:    store.ShortLinks(),
		RetentionDays: cfg.Jobs.ClickRetentionDays,
		Logger:        slogger,
	})
	periodic, err := jobs.NewPeriodicJobs(cfg.Jobs)
	if err != nil {
		return nil, err
	}
	return jobs.NewClient(store.Pool(), workers, slogger, hooks, periodic)
}

func buildDeps(
	cfg config.Config,
	logger zerolog.Logger,
	store *postgres.Store,
	riverClient *river.Client[pgx.Tx],
	baasClient *baas.Client,
	keys auth.Keys,
	resolver *clientip.Resolver,
) api.Deps {
	env := cfg.Environment

	userService := users.NewService(store.Users(), logger)
	eventService := events.NewService(store.Events(), calendar.Default)
	linkService := shortlinks.NewService(store.ShortLinks(), shortlinks.Config{
		Salt:          keys.ClickSalt,
		WindowSeconds: cfg.Tracking.WindowSeconds,
		MaxClicks:     cfg.Tracking.MaxClicksPerWindow,
	}, logger)
	accountService := account.NewService(postgres.NewAccountRepository(store, riverClient), keys.Deletion, logger)
	blog := cms.NewService(cms.NewClient(cfg.CMS.URL, cfg.CMS.Token), cfg.CMS.CacheTTL, logger)

	health := handlers.NewHealthChecker(store.Pool(), cfg.Jobs.Enabled, Version, GitCommit)
	if cfg.CMS.URL != "" {
		health = health.WithCMSCheck(blog.Ping)
	}

	deps := api.Deps{
		Config:   cfg,
		Logger:   logger,
		JWT:      auth.NewJWTManager(cfg.Auth.JWTSecret, time.Hour, ""),
		CSRFKey:  keys.CSRF,
		ClientIP: resolver,
		Audit:    audit.NewLoggerWithZerolog(logger),
		Build:    buildInfo(),

		Health:     health,
		Generate:   &handlers.GenerateHandler{Generator: calendar.Default, Env: env},
		Session:    &handlers.SessionHandler{Users: userService, Env: env},
		Events:     &handlers.EventsHandler{Service: eventService, Env: env},
		ShortLinks: &handlers.ShortLinksHandler{Service: linkService, BaseURL: cfg.Server.BaseURL, Env: env},
		Account:    &handlers.AccountHandler{Service: accountService, Env: env},
		Blog:       &handlers.BlogHandler{Posts: blog, Env: env},
	}
	if cfg.Auth.BaaSURL != "" {
		deps.Auth = &handlers.AuthHandler{
			Client:        baasClient,
			Users:         userService,
			BaseURL:       cfg.Server.BaseURL,
			SessionMaxAge: cfg.Auth.SessionMaxAge,
			Env:           env,
		}
	} else {
		logger.Warn().Msg("BAAS_URL not set; sign-in routes are disabled")
	}
	return deps
}

func gracefulShutdown(server *http.Server, logger zerolog.Logger) error {
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
