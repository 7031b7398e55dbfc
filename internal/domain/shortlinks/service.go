// Package shortlinks creates short redirect links to calendar URLs and
// records clicks on them.
package shortlinks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/punktual/server/internal/calendar"
	"github.com/punktual/server/internal/domain/ids"
	"github.com/punktual/server/internal/metrics"
	"github.com/punktual/server/internal/validation"
)

const (
	// MaxCreateAttempts bounds retries after a short ID collision.
	MaxCreateAttempts = 5
	MaxExpiryDays     = 365

	maxUserAgentLength = 512
	maxReferrerLength  = 2048
)

// CreateInput is the create-short-link request body.
type CreateInput struct {
	EventID       *string `json:"event_id,omitempty"`
	Platform      string  `json:"platform" validate:"required"`
	TargetURL     string  `json:"target_url" validate:"required,max=16384"`
	ExpiresInDays *int    `json:"expires_in_days,omitempty" validate:"omitempty,min=0,max=365"`
}

// ClickMeta describes the request that followed a short link.
type ClickMeta struct {
	IP        string
	UserAgent string
	Referrer  string
}

type Config struct {
	// Salt is prepended to the client IP before hashing.
	Salt          []byte
	WindowSeconds int
	MaxClicks     int
}

type Service struct {
	repo      Repository
	cfg       Config
	logger    zerolog.Logger
	validator *validator.Validate
	now       func() time.Time
}

func NewService(repo Repository, cfg Config, logger zerolog.Logger) *Service {
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 60
	}
	if cfg.MaxClicks <= 0 {
		cfg.MaxClicks = 10
	}
	return &Service{
		repo:      repo,
		cfg:       cfg,
		logger:    logger.With().Str("component", "shortlinks").Logger(),
		validator: validation.New(),
		now:       time.Now,
	}
}

// Create validates input and stores a new link under a fresh random ID.
// The unique index decides collisions; each one draws a new ID.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*ShortLink, error) {
	platform, err := s.validate(input)
	if err != nil {
		return nil, err
	}

	link := ShortLink{
		UserID:    userID,
		Platform:  platform,
		TargetURL: strings.TrimSpace(input.TargetURL),
	}
	if input.EventID != nil && strings.TrimSpace(*input.EventID) != "" {
		eventID := strings.ToUpper(strings.TrimSpace(*input.EventID))
		if err := ids.ValidateULID(eventID); err != nil {
			return nil, validation.Error{Field: "event_id", Message: "must be a valid event id"}
		}
		owned, err := s.repo.EventOwned(ctx, userID, eventID)
		if err != nil {
			return nil, fmt.Errorf("check event owner: %w", err)
		}
		if !owned {
			return nil, validation.Error{Field: "event_id", Message: "event not found"}
		}
		link.EventID = &eventID
	}
	if input.ExpiresInDays != nil && *input.ExpiresInDays > 0 {
		expires := s.now().UTC().Add(time.Duration(*input.ExpiresInDays) * 24 * time.Hour)
		link.ExpiresAt = &expires
	}

	for attempt := 1; attempt <= MaxCreateAttempts; attempt++ {
		link.ID, err = ids.NewShortID(ids.DefaultShortIDLength)
		if err != nil {
			return nil, fmt.Errorf("generate short id: %w", err)
		}
		created, err := s.repo.Create(ctx, link)
		if err == nil {
			metrics.ShortLinksCreated.Inc()
			return created, nil
		}
		if !errors.Is(err, ErrDuplicateID) {
			return nil, fmt.Errorf("create short link: %w", err)
		}
		s.logger.Warn().Int("attempt", attempt).Msg("short id collision, retrying")
	}
	return nil, ErrIDExhausted
}

func (s *Service) validate(input CreateInput) (calendar.Platform, error) {
	if err := s.validator.Struct(input); err != nil {
		return "", validation.FromValidator(err)
	}
	platform, err := calendar.ParsePlatform(input.Platform)
	if err != nil {
		return "", validation.Error{Field: "platform", Message: "must be one of google, outlook, office365, yahoo, apple"}
	}

	target := strings.TrimSpace(input.TargetURL)
	if platform == calendar.PlatformApple {
		if !calendar.IsICSDataURI(target) {
			return "", validation.Error{Field: "target_url", Message: "must be a data:text/calendar URI for apple"}
		}
		if err := calendar.ValidateICSDataURI(target); err != nil {
			return "", validation.Error{Field: "target_url", Message: "must contain a valid calendar with an event"}
		}
		return platform, nil
	}
	if err := validation.ValidateURL(target, "target_url", false); err != nil {
		return "", err
	}
	if !validation.HostIn(target, platform.Host()) {
		return "", validation.Error{Field: "target_url", Message: fmt.Sprintf("must point at %s", platform.Host())}
	}
	return platform, nil
}

// Resolve returns a live link for redirecting.
func (s *Service) Resolve(ctx context.Context, id string) (*ShortLink, error) {
	if !ids.IsShortID(id) {
		return nil, ErrNotFound
	}
	link, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if link.Expired(s.now()) {
		return nil, ErrExpired
	}
	return link, nil
}

// TrackClick records a click. The per-IP window is enforced inside the
// track_click database function.
func (s *Service) TrackClick(ctx context.Context, id string, meta ClickMeta) error {
	if !ids.IsShortID(id) {
		metrics.ShortLinkClicks.WithLabelValues(string(ClickNotFound)).Inc()
		return ErrNotFound
	}

	result, err := s.repo.TrackClick(ctx, TrackParams{
		ShortID:       id,
		IPHash:        s.HashIP(meta.IP),
		UserAgent:     truncate(meta.UserAgent, maxUserAgentLength),
		Referrer:      truncate(meta.Referrer, maxReferrerLength),
		WindowSeconds: s.cfg.WindowSeconds,
		MaxClicks:     s.cfg.MaxClicks,
	})
	if err != nil {
		metrics.ShortLinkClicks.WithLabelValues("error").Inc()
		return fmt.Errorf("track click: %w", err)
	}
	metrics.ShortLinkClicks.WithLabelValues(string(result)).Inc()

	switch result {
	case ClickRecorded:
		return nil
	case ClickRateLimited:
		return ErrRateLimited
	case ClickNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("track click: unexpected result %q", result)
	}
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]ShortLink, error) {
	return s.repo.ListForUser(ctx, userID)
}

// HashIP returns the salted SHA-256 of ip as lowercase hex.
func (s *Service) HashIP(ip string) string {
	h := sha256.New()
	h.Write(s.cfg.Salt)
	h.Write([]byte(strings.TrimSpace(ip)))
	return hex.EncodeToString(h.Sum(nil))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
