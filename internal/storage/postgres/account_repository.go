package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/punktual/server/internal/domain/account"
	"github.com/punktual/server/internal/domain/events"
	"github.com/punktual/server/internal/domain/shortlinks"
	"github.com/punktual/server/internal/domain/users"
	"github.com/punktual/server/internal/jobs"
	"github.com/punktual/server/internal/metrics"
)

// JobInserter enqueues River jobs inside an existing transaction.
// *river.Client[pgx.Tx] satisfies it.
type JobInserter interface {
	InsertTx(ctx context.Context, tx pgx.Tx, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// AccountRepository backs the export and deletion flows.
type AccountRepository struct {
	store    *Store
	inserter JobInserter
}

func NewAccountRepository(store *Store, inserter JobInserter) *AccountRepository {
	return &AccountRepository{store: store, inserter: inserter}
}

func (r *AccountRepository) Profile(ctx context.Context, userID uuid.UUID) (*users.Profile, error) {
	return r.store.Users().Get(ctx, userID)
}

func (r *AccountRepository) Events(ctx context.Context, userID uuid.UUID) (_ []events.Event, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("export_events", start, err) }()

	var out []events.Event
	err = r.store.WithUser(ctx, userID, func(tx pgx.Tx) error {
		var err error
		out, err = listAllEvents(ctx, tx, userID)
		return err
	})
	return out, err
}

func (r *AccountRepository) ShortLinks(ctx context.Context, userID uuid.UUID) ([]shortlinks.ShortLink, error) {
	return r.store.ShortLinks().ListForUser(ctx, userID)
}

func (r *AccountRepository) Clicks(ctx context.Context, userID uuid.UUID) ([]shortlinks.Click, error) {
	return r.store.Clicks().ListForUser(ctx, userID)
}

func (r *AccountRepository) SaveDeletionToken(ctx context.Context, token account.DeletionToken) error {
	return r.store.DeletionTokens().Save(ctx, token)
}

func (r *AccountRepository) GetDeletionToken(ctx context.Context, userID uuid.UUID) (*account.DeletionToken, error) {
	return r.store.DeletionTokens().Get(ctx, userID)
}

// BeginTx opens the deletion transaction scoped to userID.
func (r *AccountRepository) BeginTx(ctx context.Context, userID uuid.UUID) (account.TxRepository, account.TxCommitter, error) {
	if r.inserter == nil {
		return nil, nil, fmt.Errorf("account repository: job inserter not configured")
	}

	tx, err := r.store.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	if err := setLocal(ctx, tx, "app.current_user_id", userID.String()); err != nil {
		_ = tx.Rollback(ctx)
		return nil, nil, err
	}
	return &accountTx{tx: tx, inserter: r.inserter}, &txCommitter{tx: tx}, nil
}

type accountTx struct {
	tx       pgx.Tx
	inserter JobInserter
}

// DeleteUserData removes every row owned by userID. Children go first so
// the counts reflect what each statement actually removed.
func (a *accountTx) DeleteUserData(ctx context.Context, userID uuid.UUID) (counts account.DeletedCounts, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("delete_user_data", start, err) }()

	steps := []struct {
		name  string
		query string
		dst   *int64
	}{
		{"clicks", `DELETE FROM clicks c USING short_links s WHERE s.id = c.short_id AND s.user_id = $1`, &counts.Clicks},
		{"short links", `DELETE FROM short_links WHERE user_id = $1`, &counts.ShortLinks},
		{"events", `DELETE FROM events WHERE user_id = $1`, &counts.Events},
		{"deletion tokens", `DELETE FROM deletion_tokens WHERE user_id = $1`, &counts.Tokens},
		{"profile", `DELETE FROM profiles WHERE id = $1`, &counts.Profiles},
	}
	for _, step := range steps {
		tag, err := a.tx.Exec(ctx, step.query, userID)
		if err != nil {
			return account.DeletedCounts{}, fmt.Errorf("delete %s: %w", step.name, err)
		}
		*step.dst = tag.RowsAffected()
	}
	return counts, nil
}

// EnqueuePurge inserts the account_purge job in the same transaction, so
// the job exists only if the local delete commits.
func (a *accountTx) EnqueuePurge(ctx context.Context, req account.PurgeRequest) error {
	_, err := a.inserter.InsertTx(ctx, a.tx, jobs.AccountPurgeArgs{
		UserID:      req.UserID.String(),
		Email:       req.Email,
		DisplayName: req.DisplayName,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueue account purge: %w", err)
	}
	return nil
}

type txCommitter struct {
	tx pgx.Tx
}

func (c *txCommitter) Commit(ctx context.Context) error {
	return c.tx.Commit(ctx)
}

func (c *txCommitter) Rollback(ctx context.Context) error {
	return c.tx.Rollback(ctx)
}
