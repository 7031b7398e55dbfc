package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/punktual/server/internal/domain/users"
	"github.com/punktual/server/internal/metrics"
)

const profileColumns = `id, email, display_name, avatar_url, provider, created_at, updated_at`

// UserRepository stores the local profile mirror of BaaS users.
type UserRepository struct {
	store *Store
}

func (r *UserRepository) Upsert(ctx context.Context, profile users.Profile) (_ *users.Profile, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("upsert_profile", start, err) }()

	var out users.Profile
	err = r.store.WithUser(ctx, profile.ID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO profiles (id, email, display_name, avatar_url, provider)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
   SET email = EXCLUDED.email,
       display_name = EXCLUDED.display_name,
       avatar_url = EXCLUDED.avatar_url,
       provider = EXCLUDED.provider,
       updated_at = now()
RETURNING `+profileColumns,
			profile.ID, profile.Email, profile.DisplayName, profile.AvatarURL, profile.Provider,
		)
		return scanProfile(row, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return &out, nil
}

func (r *UserRepository) Get(ctx context.Context, id uuid.UUID) (_ *users.Profile, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("get_profile", start, err) }()

	var out users.Profile
	err = r.store.WithUser(ctx, id, func(tx pgx.Tx) error {
		return getProfile(ctx, tx, id, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func getProfile(ctx context.Context, tx pgx.Tx, id uuid.UUID, out *users.Profile) error {
	row := tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	if err := scanProfile(row, out); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return users.ErrNotFound
		}
		return fmt.Errorf("get profile: %w", err)
	}
	return nil
}

func scanProfile(row pgx.Row, p *users.Profile) error {
	return row.Scan(&p.ID, &p.Email, &p.DisplayName, &p.AvatarURL, &p.Provider, &p.CreatedAt, &p.UpdatedAt)
}
