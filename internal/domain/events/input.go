package events

import (
	"errors"
	"time"

	"github.com/punktual/server/internal/calendar"
	"github.com/punktual/server/internal/validation"
)

// EventInput is the create/update payload.
type EventInput struct {
	Title       string               `json:"title" validate:"required,max=200"`
	Description string               `json:"description" validate:"max=5000"`
	Location    string               `json:"location" validate:"max=500"`
	URL         string               `json:"url" validate:"omitempty,url,max=2048"`
	Start       time.Time            `json:"start" validate:"required"`
	End         time.Time            `json:"end"`
	Timezone    string               `json:"timezone" validate:"omitempty,max=64"`
	AllDay      bool                 `json:"all_day"`
	Recurrence  string               `json:"recurrence" validate:"omitempty,max=500"`
	Style       calendar.ButtonStyle `json:"style"`
}

// ValidationError reports the first invalid field of a request.
type ValidationError = validation.Error

// CalendarValidationError maps calendar normalization failures onto request
// fields. Errors it does not recognize are returned unchanged.
func CalendarValidationError(err error) error {
	switch {
	case errors.Is(err, calendar.ErrTitleRequired):
		return ValidationError{Field: "title", Message: "is required"}
	case errors.Is(err, calendar.ErrTitleTooLong):
		return ValidationError{Field: "title", Message: err.Error()}
	case errors.Is(err, calendar.ErrStartRequired):
		return ValidationError{Field: "start", Message: "is required"}
	case errors.Is(err, calendar.ErrEndBeforeStart):
		return ValidationError{Field: "end", Message: "must not be before start"}
	case errors.Is(err, calendar.ErrInvalidTimezone):
		return ValidationError{Field: "timezone", Message: "must be an IANA time zone"}
	case errors.Is(err, calendar.ErrInvalidRecurrence):
		return ValidationError{Field: "recurrence", Message: "must be an RRULE such as FREQ=WEEKLY;COUNT=4"}
	case errors.Is(err, calendar.ErrUnknownPlatform):
		return ValidationError{Field: "style.platforms", Message: "contains an unknown platform"}
	case errors.Is(err, calendar.ErrInvalidTheme):
		return ValidationError{Field: "style.theme", Message: "must be light, dark or brand"}
	case errors.Is(err, calendar.ErrInvalidLayout):
		return ValidationError{Field: "style.layout", Message: "must be dropdown or list"}
	case errors.Is(err, calendar.ErrInvalidColor):
		return ValidationError{Field: "style.color", Message: "must be a hex color"}
	}
	return err
}
