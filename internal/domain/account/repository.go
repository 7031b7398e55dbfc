package account

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/punktual/server/internal/domain/events"
	"github.com/punktual/server/internal/domain/shortlinks"
	"github.com/punktual/server/internal/domain/users"
)

// DeletionToken is the stored half of a deletion confirmation. Only the
// hash of the token handed to the user is kept.
type DeletionToken struct {
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// PurgeRequest is the follow-up work queued after local data is gone.
type PurgeRequest struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
}

// DeletedCounts reports how many rows each table lost.
type DeletedCounts struct {
	Clicks     int64
	ShortLinks int64
	Events     int64
	Tokens     int64
	Profiles   int64
}

type Repository interface {
	Profile(ctx context.Context, userID uuid.UUID) (*users.Profile, error)
	Events(ctx context.Context, userID uuid.UUID) ([]events.Event, error)
	ShortLinks(ctx context.Context, userID uuid.UUID) ([]shortlinks.ShortLink, error)
	Clicks(ctx context.Context, userID uuid.UUID) ([]shortlinks.Click, error)

	// SaveDeletionToken replaces any earlier token for the same user.
	SaveDeletionToken(ctx context.Context, token DeletionToken) error
	GetDeletionToken(ctx context.Context, userID uuid.UUID) (*DeletionToken, error)

	BeginTx(ctx context.Context, userID uuid.UUID) (TxRepository, TxCommitter, error)
}

// TxRepository is the subset of operations that run inside the deletion
// transaction.
type TxRepository interface {
	DeleteUserData(ctx context.Context, userID uuid.UUID) (DeletedCounts, error)
	EnqueuePurge(ctx context.Context, req PurgeRequest) error
}

type TxCommitter interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
