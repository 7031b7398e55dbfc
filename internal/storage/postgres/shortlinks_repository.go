package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/punktual/server/internal/calendar"
	"github.com/punktual/server/internal/domain/shortlinks"
	"github.com/punktual/server/internal/metrics"
)

const shortLinkColumns = `id, user_id, event_id, platform, target_url, click_count, created_at, expires_at`

type ShortLinkRepository struct {
	store *Store
}

func (r *ShortLinkRepository) Create(ctx context.Context, link shortlinks.ShortLink) (_ *shortlinks.ShortLink, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("insert_short_link", start, err) }()

	var out shortlinks.ShortLink
	err = r.store.WithUser(ctx, link.UserID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO short_links (id, user_id, event_id, platform, target_url, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+shortLinkColumns,
			link.ID, link.UserID, nullableString(link.EventID), string(link.Platform), link.TargetURL, link.ExpiresAt,
		)
		return scanShortLink(row, &out)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, shortlinks.ErrDuplicateID
		}
		return nil, fmt.Errorf("insert short link: %w", err)
	}
	return &out, nil
}

// Get reads a link for the public redirect path through resolve_short_link,
// which runs without a user identity.
func (r *ShortLinkRepository) Get(ctx context.Context, id string) (_ *shortlinks.ShortLink, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("get_short_link", start, err) }()

	var out shortlinks.ShortLink
	row := r.store.pool.QueryRow(ctx, `SELECT `+shortLinkColumns+` FROM resolve_short_link($1)`, id)
	if err = scanShortLink(row, &out); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shortlinks.ErrNotFound
		}
		return nil, fmt.Errorf("get short link: %w", err)
	}
	return &out, nil
}

func (r *ShortLinkRepository) ListForUser(ctx context.Context, userID uuid.UUID) (_ []shortlinks.ShortLink, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("list_short_links", start, err) }()

	var out []shortlinks.ShortLink
	err = r.store.WithUser(ctx, userID, func(tx pgx.Tx) error {
		var err error
		out, err = listShortLinks(ctx, tx, userID)
		return err
	})
	return out, err
}

func (r *ShortLinkRepository) EventOwned(ctx context.Context, userID uuid.UUID, eventID string) (_ bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("event_owned", start, err) }()

	var owned bool
	err = r.store.WithUser(ctx, userID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM events WHERE id = $1 AND user_id = $2)`,
			eventID, userID,
		).Scan(&owned)
	})
	if err != nil {
		return false, fmt.Errorf("check event owner: %w", err)
	}
	return owned, nil
}

// TrackClick calls the track_click database function, which applies the
// per-IP window and records the click atomically.
func (r *ShortLinkRepository) TrackClick(ctx context.Context, params shortlinks.TrackParams) (_ shortlinks.ClickResult, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("track_click", start, err) }()

	var result string
	err = r.store.pool.QueryRow(ctx,
		`SELECT track_click($1, $2, $3, $4, $5, $6)`,
		params.ShortID, params.IPHash, params.WindowSeconds, params.MaxClicks, params.UserAgent, params.Referrer,
	).Scan(&result)
	if err != nil {
		return "", fmt.Errorf("track_click: %w", err)
	}
	return shortlinks.ClickResult(result), nil
}

// DeleteExpired removes links whose expiry is before now. Their clicks go
// with them through the foreign key.
func (r *ShortLinkRepository) DeleteExpired(ctx context.Context, now time.Time) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("delete_expired_short_links", start, err) }()

	err = r.store.WithSystem(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM short_links WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
		if err != nil {
			return fmt.Errorf("delete expired short links: %w", err)
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

func listShortLinks(ctx context.Context, tx pgx.Tx, userID uuid.UUID) ([]shortlinks.ShortLink, error) {
	rows, err := tx.Query(ctx,
		`SELECT `+shortLinkColumns+` FROM short_links WHERE user_id = $1 ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list short links: %w", err)
	}
	defer rows.Close()

	var out []shortlinks.ShortLink
	for rows.Next() {
		var l shortlinks.ShortLink
		if err := scanShortLink(rows, &l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate short links: %w", err)
	}
	return out, nil
}

func scanShortLink(row pgx.Row, l *shortlinks.ShortLink) error {
	var platform string
	if err := row.Scan(&l.ID, &l.UserID, &l.EventID, &platform, &l.TargetURL, &l.ClickCount, &l.CreatedAt, &l.ExpiresAt); err != nil {
		return err
	}
	l.Platform = calendar.Platform(platform)
	return nil
}
