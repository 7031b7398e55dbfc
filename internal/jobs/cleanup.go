package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

const DefaultClickRetentionDays = 90

// ClickPruner deletes click rows recorded before a cutoff.
type ClickPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExpiredDeleter deletes rows whose expiry has passed.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ClickRetentionArgs defines the job that prunes old click statistics.
type ClickRetentionArgs struct {
	RetentionDays int `json:"retention_days"`
}

func (ClickRetentionArgs) Kind() string { return JobKindClickRetention }

func (a ClickRetentionArgs) cutoff(now time.Time) time.Time {
	days := a.RetentionDays
	if days <= 0 {
		days = DefaultClickRetentionDays
	}
	return now.AddDate(0, 0, -days)
}

type ClickRetentionWorker struct {
	river.WorkerDefaults[ClickRetentionArgs]
	Clicks ClickPruner
	Logger *slog.Logger
	now    func() time.Time
}

func (ClickRetentionWorker) Kind() string { return JobKindClickRetention }

func (w ClickRetentionWorker) Work(ctx context.Context, job *river.Job[ClickRetentionArgs]) error {
	if w.Clicks == nil {
		return fmt.Errorf("click repository not configured")
	}
	if job == nil {
		return fmt.Errorf("click retention job missing")
	}

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cutoff := job.Args.cutoff(clock(w.now))
	deleted, err := w.Clicks.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete old clicks: %w", err)
	}
	logger.Info("click retention completed", "cutoff", cutoff, "deleted_count", deleted)
	return nil
}

// ExpiredCleanupArgs defines the job that removes expired deletion tokens
// and short links.
type ExpiredCleanupArgs struct{}

func (ExpiredCleanupArgs) Kind() string { return JobKindExpiredCleanup }

type ExpiredCleanupWorker struct {
	river.WorkerDefaults[ExpiredCleanupArgs]
	Tokens     ExpiredDeleter
	ShortLinks ExpiredDeleter
	Logger     *slog.Logger
	now        func() time.Time
}

func (ExpiredCleanupWorker) Kind() string { return JobKindExpiredCleanup }

func (w ExpiredCleanupWorker) Work(ctx context.Context, job *river.Job[ExpiredCleanupArgs]) error {
	if w.Tokens == nil || w.ShortLinks == nil {
		return fmt.Errorf("repositories not configured")
	}

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := clock(w.now)
	tokens, err := w.Tokens.DeleteExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("delete expired deletion tokens: %w", err)
	}
	links, err := w.ShortLinks.DeleteExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("delete expired short links: %w", err)
	}

	logger.Info("expired cleanup completed",
		"deleted_tokens", tokens,
		"deleted_short_links", links,
	)
	return nil
}

func clock(now func() time.Time) time.Time {
	if now != nil {
		return now().UTC()
	}
	return time.Now().UTC()
}
