// Package postgres implements the domain repositories on pgx. User-scoped
// work runs inside WithUser so the row-level security policies in the
// migrations see the caller's identity.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punktual/server/internal/config"
)

const uniqueViolation = "23505"

// Store owns the pool and hands out repositories.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres store: pool is nil")
	}
	return &Store{pool: pool}, nil
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Users() *UserRepository {
	return &UserRepository{store: s}
}

func (s *Store) Events() *EventRepository {
	return &EventRepository{store: s}
}

func (s *Store) ShortLinks() *ShortLinkRepository {
	return &ShortLinkRepository{store: s}
}

func (s *Store) Clicks() *ClickRepository {
	return &ClickRepository{store: s}
}

func (s *Store) DeletionTokens() *DeletionTokenRepository {
	return &DeletionTokenRepository{store: s}
}

// WithUser runs fn in a transaction whose row-level security identity is
// userID. The setting is transaction-local.
func (s *Store) WithUser(ctx context.Context, userID uuid.UUID, fn func(pgx.Tx) error) error {
	return s.withSetting(ctx, "app.current_user_id", userID.String(), fn)
}

// WithSystem runs fn with the maintenance policy enabled, for jobs that
// act across all users.
func (s *Store) WithSystem(ctx context.Context, fn func(pgx.Tx) error) error {
	return s.withSetting(ctx, "app.system", "on", fn)
}

func (s *Store) withSetting(ctx context.Context, key, value string, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := setLocal(ctx, tx, key, value); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func setLocal(ctx context.Context, tx pgx.Tx, key, value string) error {
	if _, err := tx.Exec(ctx, `SELECT set_config($1, $2, true)`, key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
