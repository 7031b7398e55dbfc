// Package users keeps the local profile row for each BaaS-authenticated
// user. The BaaS owns identity; this package only mirrors the fields the
// app displays.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/punktual/server/internal/auth/baas"
	"github.com/punktual/server/internal/sanitize"
)

var ErrNotFound = errors.New("profile not found")

type Profile struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Repository interface {
	Upsert(ctx context.Context, profile Profile) (*Profile, error)
	Get(ctx context.Context, id uuid.UUID) (*Profile, error)
}

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "users").Logger(),
	}
}

// UpsertFromAuth creates or refreshes the profile after a successful login.
func (s *Service) UpsertFromAuth(ctx context.Context, user baas.User) (*Profile, error) {
	id, err := uuid.Parse(user.ID)
	if err != nil {
		return nil, fmt.Errorf("parse auth user id %q: %w", user.ID, err)
	}

	profile, err := s.repo.Upsert(ctx, Profile{
		ID:          id,
		Email:       strings.ToLower(strings.TrimSpace(user.Email)),
		DisplayName: sanitize.PlainText(user.DisplayName()),
		AvatarURL:   avatarURL(user.AvatarURL()),
		Provider:    user.Provider(),
	})
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}

	s.logger.Debug().Str("user_id", id.String()).Str("provider", profile.Provider).Msg("profile synced")
	return profile, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return s.repo.Get(ctx, id)
}

// avatarURL drops anything that is not an https URL.
func avatarURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(strings.ToLower(raw), "https://") {
		return ""
	}
	return raw
}
