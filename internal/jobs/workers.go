package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// Deps are the collaborators the workers need.
type Deps struct {
	Users         UserDeleter
	Mailer        Mailer
	Clicks        ClickPruner
	Tokens        ExpiredDeleter
	ShortLinks    ExpiredDeleter
	RetentionDays int
	Logger        *slog.Logger
}

func NewWorkers(deps Deps) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[AccountPurgeArgs](workers, AccountPurgeWorker{
		Users:  deps.Users,
		Mailer: deps.Mailer,
		Logger: deps.Logger,
	})
	river.AddWorker[ClickRetentionArgs](workers, ClickRetentionWorker{
		Clicks: deps.Clicks,
		Logger: deps.Logger,
	})
	river.AddWorker[ExpiredCleanupArgs](workers, ExpiredCleanupWorker{
		Tokens:     deps.Tokens,
		ShortLinks: deps.ShortLinks,
		Logger:     deps.Logger,
	})
	return workers
}

// RunCleanup runs click retention and expired cleanup once, in-process.
// Used by the cleanup command.
func RunCleanup(ctx context.Context, deps Deps) error {
	retention := ClickRetentionWorker{Clicks: deps.Clicks, Logger: deps.Logger}
	if err := retention.Work(ctx, &river.Job[ClickRetentionArgs]{
		JobRow: &rivertype.JobRow{Kind: JobKindClickRetention, Attempt: 1},
		Args:   ClickRetentionArgs{RetentionDays: deps.RetentionDays},
	}); err != nil {
		return fmt.Errorf("click retention: %w", err)
	}

	expired := ExpiredCleanupWorker{Tokens: deps.Tokens, ShortLinks: deps.ShortLinks, Logger: deps.Logger}
	if err := expired.Work(ctx, &river.Job[ExpiredCleanupArgs]{
		JobRow: &rivertype.JobRow{Kind: JobKindExpiredCleanup, Attempt: 1},
	}); err != nil {
		return fmt.Errorf("expired cleanup: %w", err)
	}
	return nil
}
