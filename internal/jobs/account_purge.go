package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
)

// AccountPurgeArgs carries what is left of a user once their rows are gone.
type AccountPurgeArgs struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

func (AccountPurgeArgs) Kind() string { return JobKindAccountPurge }

func (AccountPurgeArgs) InsertOpts() river.InsertOpts {
	return InsertOptsForKind(JobKindAccountPurge)
}

// UserDeleter removes the auth user at the identity provider.
type UserDeleter interface {
	DeleteUser(ctx context.Context, userID string) error
}

// Mailer sends the deletion confirmation.
type Mailer interface {
	SendAccountDeleted(ctx context.Context, to, name string) error
}

// AccountPurgeWorker finishes an account deletion outside the request:
// it deletes the BaaS auth user, then mails a confirmation.
type AccountPurgeWorker struct {
	river.WorkerDefaults[AccountPurgeArgs]
	Users  UserDeleter
	Mailer Mailer
	Logger *slog.Logger
}

func (AccountPurgeWorker) Kind() string { return JobKindAccountPurge }

func (w AccountPurgeWorker) Work(ctx context.Context, job *river.Job[AccountPurgeArgs]) error {
	if job == nil {
		return fmt.Errorf("account purge job missing")
	}
	if w.Users == nil {
		return fmt.Errorf("user deleter not configured")
	}
	if job.Args.UserID == "" {
		return river.JobCancel(fmt.Errorf("account purge: user id is required"))
	}

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := w.Users.DeleteUser(ctx, job.Args.UserID); err != nil {
		return fmt.Errorf("delete auth user: %w", err)
	}
	logger.Info("auth user deleted", "user_id", job.Args.UserID, "attempt", job.Attempt)

	if w.Mailer == nil || job.Args.Email == "" {
		return nil
	}
	if err := w.Mailer.SendAccountDeleted(ctx, job.Args.Email, job.Args.DisplayName); err != nil {
		return fmt.Errorf("send deletion confirmation: %w", err)
	}
	return nil
}
