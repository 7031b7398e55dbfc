package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/punktual/server/internal/domain/account"
	"github.com/punktual/server/internal/metrics"
)

type DeletionTokenRepository struct {
	store *Store
}

// Save stores token, replacing any earlier one for the same user.
func (r *DeletionTokenRepository) Save(ctx context.Context, token account.DeletionToken) (err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("save_deletion_token", start, err) }()

	return r.store.WithUser(ctx, token.UserID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO deletion_tokens (user_id, token_hash, expires_at, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE
   SET token_hash = EXCLUDED.token_hash,
       expires_at = EXCLUDED.expires_at,
       created_at = EXCLUDED.created_at`,
			token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("save deletion token: %w", err)
		}
		return nil
	})
}

func (r *DeletionTokenRepository) Get(ctx context.Context, userID uuid.UUID) (_ *account.DeletionToken, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("get_deletion_token", start, err) }()

	var out account.DeletionToken
	err = r.store.WithUser(ctx, userID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`SELECT user_id, token_hash, expires_at, created_at FROM deletion_tokens WHERE user_id = $1`,
			userID,
		).Scan(&out.UserID, &out.TokenHash, &out.ExpiresAt, &out.CreatedAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrTokenNotFound
		}
		return nil, fmt.Errorf("get deletion token: %w", err)
	}
	return &out, nil
}

func (r *DeletionTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("delete_expired_deletion_tokens", start, err) }()

	err = r.store.WithSystem(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM deletion_tokens WHERE expires_at < $1`, now)
		if err != nil {
			return fmt.Errorf("delete expired deletion tokens: %w", err)
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}
