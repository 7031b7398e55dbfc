package shortlinks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/punktual/server/internal/calendar"
)

var (
	ErrNotFound = errors.New("short link not found")
	ErrExpired  = errors.New("short link expired")
	// ErrDuplicateID is returned by repositories when the generated ID is taken.
	ErrDuplicateID = errors.New("short link id already exists")
	ErrIDExhausted = errors.New("could not allocate a unique short link id")
	ErrRateLimited = errors.New("click rate limit exceeded")
)

type ShortLink struct {
	ID         string            `json:"id"`
	UserID     uuid.UUID         `json:"user_id"`
	EventID    *string           `json:"event_id,omitempty"`
	Platform   calendar.Platform `json:"platform"`
	TargetURL  string            `json:"target_url"`
	ClickCount int64             `json:"click_count"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
}

// Expired reports whether the link is past its expiry at now.
func (l ShortLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// Click is one recorded redirect. Only a salted hash of the client IP is kept.
type Click struct {
	ID        int64     `json:"id"`
	ShortID   string    `json:"short_id"`
	IPHash    string    `json:"ip_hash"`
	UserAgent string    `json:"user_agent,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ClickResult is what the track_click database function reports.
type ClickResult string

const (
	ClickRecorded    ClickResult = "recorded"
	ClickRateLimited ClickResult = "rate_limited"
	ClickNotFound    ClickResult = "not_found"
)

type TrackParams struct {
	ShortID       string
	IPHash        string
	UserAgent     string
	Referrer      string
	WindowSeconds int
	MaxClicks     int
}

type Repository interface {
	// Create inserts link and returns ErrDuplicateID when link.ID is taken.
	Create(ctx context.Context, link ShortLink) (*ShortLink, error)
	// Get looks a link up by ID regardless of owner; redirects are public.
	Get(ctx context.Context, id string) (*ShortLink, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]ShortLink, error)
	EventOwned(ctx context.Context, userID uuid.UUID, eventID string) (bool, error)
	TrackClick(ctx context.Context, params TrackParams) (ClickResult, error)
}
