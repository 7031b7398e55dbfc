package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/punktual/server/internal/api/pagination"
	"github.com/punktual/server/internal/domain/events"
	"github.com/punktual/server/internal/metrics"
)

const eventColumns = `id, user_id, title, description, location, url, start_at, end_at,
       timezone, all_day, recurrence, style, created_at, updated_at`

type EventRepository struct {
	store *Store
}

func (r *EventRepository) List(ctx context.Context, userID uuid.UUID, p events.Pagination) (_ events.ListResult, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("list_events", start, err) }()

	limit := p.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}

	var cursorStart *time.Time
	var cursorID *string
	if strings.TrimSpace(p.After) != "" {
		cursor, err := pagination.DecodeEventCursor(p.After)
		if err != nil {
			return events.ListResult{}, err
		}
		cursorStart = &cursor.Start
		cursorID = &cursor.ID
	}

	var items []events.Event
	err = r.store.WithUser(ctx, userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT `+eventColumns+`
  FROM events
 WHERE user_id = $1
   AND ($2::timestamptz IS NULL OR (start_at, id) > ($2::timestamptz, $3::text))
 ORDER BY start_at, id
 LIMIT $4`,
			userID, cursorStart, cursorID, limit+1,
		)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		items, err = collectEvents(rows)
		return err
	})
	if err != nil {
		return events.ListResult{}, err
	}

	result := events.ListResult{Events: items}
	if len(items) > limit {
		result.Events = items[:limit]
		last := result.Events[limit-1]
		result.NextCursor = pagination.EncodeEventCursor(last.Start, last.ID)
	}
	return result, nil
}

func (r *EventRepository) Get(ctx context.Context, userID uuid.UUID, id string) (_ *events.Event, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("get_event", start, err) }()

	var out events.Event
	err = r.store.WithUser(ctx, userID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 AND user_id = $2`, id, userID)
		return scanEvent(row, &out)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &out, nil
}

func (r *EventRepository) Create(ctx context.Context, e events.Event) (_ *events.Event, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("create_event", start, err) }()

	var out events.Event
	err = r.store.WithUser(ctx, e.UserID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO events (id, user_id, title, description, location, url, start_at, end_at,
                    timezone, all_day, recurrence, style)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING `+eventColumns,
			e.ID, e.UserID, e.Title, e.Description, e.Location, e.URL, e.Start, e.End,
			e.Timezone, e.AllDay, e.Recurrence, e.Style,
		)
		return scanEvent(row, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return &out, nil
}

func (r *EventRepository) Update(ctx context.Context, e events.Event) (_ *events.Event, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("update_event", start, err) }()

	var out events.Event
	err = r.store.WithUser(ctx, e.UserID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
UPDATE events
   SET title = $3, description = $4, location = $5, url = $6, start_at = $7, end_at = $8,
       timezone = $9, all_day = $10, recurrence = $11, style = $12, updated_at = now()
 WHERE id = $1 AND user_id = $2
RETURNING `+eventColumns,
			e.ID, e.UserID, e.Title, e.Description, e.Location, e.URL, e.Start, e.End,
			e.Timezone, e.AllDay, e.Recurrence, e.Style,
		)
		return scanEvent(row, &out)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("update event: %w", err)
	}
	return &out, nil
}

func (r *EventRepository) Delete(ctx context.Context, userID uuid.UUID, id string) (err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("delete_event", start, err) }()

	return r.store.WithUser(ctx, userID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM events WHERE id = $1 AND user_id = $2`, id, userID)
		if err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return events.ErrNotFound
		}
		return nil
	})
}

// listAllEvents is the unpaginated read used by the data export.
func listAllEvents(ctx context.Context, tx pgx.Tx, userID uuid.UUID) ([]events.Event, error) {
	rows, err := tx.Query(ctx, `SELECT `+eventColumns+` FROM events WHERE user_id = $1 ORDER BY start_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]events.Event, error) {
	defer rows.Close()
	var out []events.Event
	for rows.Next() {
		var e events.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func scanEvent(row pgx.Row, e *events.Event) error {
	if err := row.Scan(
		&e.ID, &e.UserID, &e.Title, &e.Description, &e.Location, &e.URL, &e.Start, &e.End,
		&e.Timezone, &e.AllDay, &e.Recurrence, &e.Style, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return err
	}
	e.Start = inZone(e.Start, e.Timezone)
	e.End = inZone(e.End, e.Timezone)
	return nil
}
