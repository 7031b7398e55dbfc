// Package events manages a user's saved events and renders their calendar
// artifacts on demand.
package events

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/punktual/server/internal/api/pagination"
	"github.com/punktual/server/internal/calendar"
	"github.com/punktual/server/internal/domain/ids"
	"github.com/punktual/server/internal/validation"
)

type Service struct {
	repo      Repository
	generator *calendar.Generator
	validator *validator.Validate
}

func NewService(repo Repository, generator *calendar.Generator) *Service {
	if generator == nil {
		generator = calendar.Default
	}
	return &Service{
		repo:      repo,
		generator: generator,
		validator: validation.New(),
	}
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, p Pagination) (ListResult, error) {
	return s.repo.List(ctx, userID, p)
}

func (s *Service) Get(ctx context.Context, userID uuid.UUID, id string) (*Event, error) {
	if err := ids.ValidateULID(id); err != nil {
		return nil, ErrNotFound
	}
	return s.repo.Get(ctx, userID, strings.ToUpper(id))
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, input EventInput) (*Event, error) {
	event, err := s.build(input)
	if err != nil {
		return nil, err
	}
	event.ID, err = ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}
	event.UserID = userID

	created, err := s.repo.Create(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return created, nil
}

func (s *Service) Update(ctx context.Context, userID uuid.UUID, id string, input EventInput) (*Event, error) {
	if err := ids.ValidateULID(id); err != nil {
		return nil, ErrNotFound
	}
	event, err := s.build(input)
	if err != nil {
		return nil, err
	}
	event.ID = strings.ToUpper(id)
	event.UserID = userID

	updated, err := s.repo.Update(ctx, event)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update event: %w", err)
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, userID uuid.UUID, id string) error {
	if err := ids.ValidateULID(id); err != nil {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, userID, strings.ToUpper(id))
}

// Links renders provider URLs for every platform.
func (s *Service) Links(ctx context.Context, userID uuid.UUID, id string) (calendar.Links, error) {
	event, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.generator.Generate(event.Calendar())
}

// Embed renders the button markup using the event's saved style.
func (s *Service) Embed(ctx context.Context, userID uuid.UUID, id string) (calendar.Embed, error) {
	event, err := s.Get(ctx, userID, id)
	if err != nil {
		return calendar.Embed{}, err
	}
	cal := event.Calendar()
	links, err := s.generator.Generate(cal)
	if err != nil {
		return calendar.Embed{}, err
	}
	return calendar.BuildEmbed(cal, event.Style, links)
}

// ICS returns the event as an RFC 5545 document together with a download
// filename.
func (s *Service) ICS(ctx context.Context, userID uuid.UUID, id string) ([]byte, string, error) {
	event, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, "", err
	}
	cal := event.Calendar()
	body, err := s.generator.ICS(cal)
	if err != nil {
		return nil, "", err
	}
	return body, calendar.Filename(cal), nil
}

// build validates input and produces a normalized record without identity.
func (s *Service) build(input EventInput) (Event, error) {
	if err := s.validator.Struct(input); err != nil {
		return Event{}, validation.FromValidator(err)
	}

	normalized, err := calendar.Normalize(calendar.Event{
		Title:       input.Title,
		Description: input.Description,
		Location:    input.Location,
		URL:         input.URL,
		Start:       input.Start,
		End:         input.End,
		Timezone:    input.Timezone,
		AllDay:      input.AllDay,
		Recurrence:  input.Recurrence,
	})
	if err != nil {
		return Event{}, CalendarValidationError(err)
	}
	style, err := input.Style.WithDefaults()
	if err != nil {
		return Event{}, CalendarValidationError(err)
	}

	return Event{
		Title:       normalized.Title,
		Description: normalized.Description,
		Location:    normalized.Location,
		URL:         normalized.URL,
		Start:       normalized.Start,
		End:         normalized.End,
		Timezone:    normalized.Timezone,
		AllDay:      normalized.AllDay,
		Recurrence:  normalized.Recurrence,
		Style:       style,
	}, nil
}

// ParsePagination reads ?limit and ?after from a list request.
func ParsePagination(values url.Values) (Pagination, error) {
	limit, err := pagination.ParseLimit(values.Get("limit"))
	if err != nil {
		return Pagination{}, ValidationError{Field: "limit", Message: "must be a positive number"}
	}
	after := strings.TrimSpace(values.Get("after"))
	if after != "" {
		if _, err := pagination.DecodeEventCursor(after); err != nil {
			return Pagination{}, ValidationError{Field: "after", Message: "must be a cursor returned by a previous page"}
		}
	}
	return Pagination{Limit: limit, After: after}, nil
}
