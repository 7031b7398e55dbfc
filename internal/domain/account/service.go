// Package account implements the GDPR data export and account deletion
// flows.
package account

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/punktual/server/internal/domain/events"
	"github.com/punktual/server/internal/domain/shortlinks"
	"github.com/punktual/server/internal/domain/users"
)

var (
	// ErrInvalidToken covers missing, mismatched and expired deletion tokens.
	ErrInvalidToken  = errors.New("invalid or expired deletion token")
	ErrTokenNotFound = errors.New("deletion token not found")
)

const (
	DeletionTokenBytes = 32
	DeletionTokenTTL   = 15 * time.Minute
)

// Export is everything stored about a user.
type Export struct {
	Profile    *users.Profile         `json:"profile"`
	Events     []events.Event         `json:"events"`
	ShortLinks []shortlinks.ShortLink `json:"short_links"`
	Clicks     []shortlinks.Click     `json:"clicks"`
	ExportedAt time.Time              `json:"exported_at"`
}

type Service struct {
	repo   Repository
	pepper []byte
	logger zerolog.Logger
	now    func() time.Time
}

// NewService builds the service. pepper keys the stored token hashes.
func NewService(repo Repository, pepper []byte, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		pepper: pepper,
		logger: logger.With().Str("component", "account").Logger(),
		now:    time.Now,
	}
}

// Export gathers the user's data. The four reads run concurrently.
func (s *Service) Export(ctx context.Context, userID uuid.UUID) (*Export, error) {
	out := &Export{
		Events:     []events.Event{},
		ShortLinks: []shortlinks.ShortLink{},
		Clicks:     []shortlinks.Click{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		profile, err := s.repo.Profile(gctx, userID)
		if err != nil && !errors.Is(err, users.ErrNotFound) {
			return fmt.Errorf("export profile: %w", err)
		}
		out.Profile = profile
		return nil
	})
	g.Go(func() error {
		list, err := s.repo.Events(gctx, userID)
		if err != nil {
			return fmt.Errorf("export events: %w", err)
		}
		if list != nil {
			out.Events = list
		}
		return nil
	})
	g.Go(func() error {
		list, err := s.repo.ShortLinks(gctx, userID)
		if err != nil {
			return fmt.Errorf("export short links: %w", err)
		}
		if list != nil {
			out.ShortLinks = list
		}
		return nil
	})
	g.Go(func() error {
		list, err := s.repo.Clicks(gctx, userID)
		if err != nil {
			return fmt.Errorf("export clicks: %w", err)
		}
		if list != nil {
			out.Clicks = list
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out.ExportedAt = s.now().UTC()
	return out, nil
}

// IssueDeletionToken creates a short-lived confirmation token for Delete.
// The plaintext is returned once and never stored.
func (s *Service) IssueDeletionToken(ctx context.Context, userID uuid.UUID) (string, time.Time, error) {
	buf := make([]byte, DeletionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate deletion token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	now := s.now().UTC()
	expiresAt := now.Add(DeletionTokenTTL)
	if err := s.repo.SaveDeletionToken(ctx, DeletionToken{
		UserID:    userID,
		TokenHash: s.hashToken(token),
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}); err != nil {
		return "", time.Time{}, fmt.Errorf("save deletion token: %w", err)
	}

	s.logger.Info().Str("user_id", userID.String()).Time("expires_at", expiresAt).Msg("deletion token issued")
	return token, expiresAt, nil
}

// Delete removes all of the user's rows in one transaction and queues the
// BaaS account purge. token must come from IssueDeletionToken.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	stored, err := s.repo.GetDeletionToken(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("load deletion token: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(s.hashToken(token)), []byte(stored.TokenHash)) != 1 {
		return ErrInvalidToken
	}
	if !s.now().Before(stored.ExpiresAt) {
		return ErrInvalidToken
	}

	req := PurgeRequest{UserID: userID}
	profile, err := s.repo.Profile(ctx, userID)
	switch {
	case err == nil:
		req.Email = profile.Email
		req.DisplayName = profile.DisplayName
	case errors.Is(err, users.ErrNotFound):
	default:
		return fmt.Errorf("load profile: %w", err)
	}

	txRepo, txCommitter, err := s.repo.BeginTx(ctx, userID)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = txCommitter.Rollback(ctx)
	}()

	counts, err := txRepo.DeleteUserData(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete user data: %w", err)
	}
	if err := txRepo.EnqueuePurge(ctx, req); err != nil {
		return fmt.Errorf("enqueue account purge: %w", err)
	}
	if err := txCommitter.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Info().
		Str("user_id", userID.String()).
		Int64("events", counts.Events).
		Int64("short_links", counts.ShortLinks).
		Int64("clicks", counts.Clicks).
		Msg("account data deleted")
	return nil
}

func (s *Service) hashToken(token string) string {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
