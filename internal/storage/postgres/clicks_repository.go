package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/punktual/server/internal/domain/shortlinks"
	"github.com/punktual/server/internal/metrics"
)

// ClickRepository reads and prunes recorded clicks. Inserts go through the
// track_click function on ShortLinkRepository.
type ClickRepository struct {
	store *Store
}

func (r *ClickRepository) ListForUser(ctx context.Context, userID uuid.UUID) (_ []shortlinks.Click, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("list_clicks", start, err) }()

	var out []shortlinks.Click
	err = r.store.WithUser(ctx, userID, func(tx pgx.Tx) error {
		var err error
		out, err = listClicks(ctx, tx, userID)
		return err
	})
	return out, err
}

// DeleteBefore removes clicks recorded before cutoff across all users.
func (r *ClickRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("delete_old_clicks", start, err) }()

	err = r.store.WithSystem(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM clicks WHERE created_at < $1`, cutoff)
		if err != nil {
			return fmt.Errorf("delete old clicks: %w", err)
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

func listClicks(ctx context.Context, tx pgx.Tx, userID uuid.UUID) ([]shortlinks.Click, error) {
	rows, err := tx.Query(ctx, `
SELECT c.id, c.short_id, c.ip_hash, c.user_agent, c.referrer, c.created_at
  FROM clicks c
  JOIN short_links s ON s.id = c.short_id
 WHERE s.user_id = $1
 ORDER BY c.created_at, c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list clicks: %w", err)
	}
	defer rows.Close()

	var out []shortlinks.Click
	for rows.Next() {
		var c shortlinks.Click
		if err := rows.Scan(&c.ID, &c.ShortID, &c.IPHash, &c.UserAgent, &c.Referrer, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan click: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clicks: %w", err)
	}
	return out, nil
}
