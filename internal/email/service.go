// Package email sends transactional mail through Resend.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	"github.com/punktual/server/internal/config"
)

//go:embed templates/*.html
var templateFiles embed.FS

type Service struct {
	config       config.EmailConfig
	templates    *template.Template
	resendClient *resend.Client
	logger       zerolog.Logger
}

// AccountDeletedData holds data for the deletion confirmation template.
type AccountDeletedData struct {
	Name        string
	DeletedAt   time.Time
	CurrentYear int
}

// NewService builds the service. When cfg.Enabled is false every send is
// logged and skipped.
func NewService(cfg config.EmailConfig, logger zerolog.Logger) (*Service, error) {
	templates, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}

	svc := &Service{
		config:    cfg,
		templates: templates,
		logger:    logger.With().Str("component", "email").Logger(),
	}

	if cfg.Enabled {
		if err := validateEmailAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender email in config: %w", err)
		}
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("RESEND_API_KEY is required when email is enabled")
		}
		svc.resendClient = resend.NewClient(cfg.ResendAPIKey)
	}
	return svc, nil
}

// SendAccountDeleted confirms a completed account deletion.
func (s *Service) SendAccountDeleted(ctx context.Context, to, name string) error {
	if err := validateEmailAddress(to); err != nil {
		return fmt.Errorf("invalid recipient email: %w", err)
	}

	if !s.config.Enabled {
		s.logger.Info().Str("to", to).Msg("email service disabled, skipping account deletion email")
		return nil
	}

	now := time.Now().UTC()
	htmlBody, err := s.render("account_deleted.html", AccountDeletedData{
		Name:        name,
		DeletedAt:   now,
		CurrentYear: now.Year(),
	})
	if err != nil {
		return fmt.Errorf("render account deletion template: %w", err)
	}

	if err := s.sendViaResend(ctx, to, "Your Punktual account has been deleted", htmlBody); err != nil {
		return fmt.Errorf("send account deletion email: %w", err)
	}
	return nil
}

func (s *Service) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// validateEmailAddress validates an email address for format and header injection attempts
func validateEmailAddress(email string) error {
	if strings.ContainsAny(email, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}
	return nil
}
