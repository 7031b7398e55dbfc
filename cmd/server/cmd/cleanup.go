package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/punktual/server/internal/jobs"
	"github.com/punktual/server/internal/storage/postgres"
)

var cleanupRetentionDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune old clicks and expired links and tokens once",
	Long: `Run the click retention and expired cleanup jobs once, in-process.

The server schedules the same work through River; this command is for
cron-less deployments and manual runs.

Examples:
  # Use CLICK_RETENTION_DAYS from the environment
  punktual cleanup

  # Keep only the last 30 days of clicks
  punktual cleanup --retention-days 30`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().IntVar(&cleanupRetentionDays, "retention-days", 0, "days of click history to keep (default: CLICK_RETENTION_DAYS)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if cleanupRetentionDays > 0 {
		cfg.Jobs.ClickRetentionDays = cleanupRetentionDays
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := postgres.NewStore(pool)
	if err != nil {
		return err
	}

	return jobs.RunCleanup(ctx, jobs.Deps{
		Clicks:        store.Clicks(),
		Tokens:        store.DeletionTokens(),
		ShortLinks:    store.ShortLinks(),
		RetentionDays: cfg.Jobs.ClickRetentionDays,
		Logger:        newSlogLogger(cfg.Logging),
	})
}
