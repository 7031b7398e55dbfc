package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/punktual/server/internal/calendar"
)

var ErrNotFound = errors.New("event not found")

// Event is a saved event together with its embed button styling.
type Event struct {
	ID          string               `json:"id"`
	UserID      uuid.UUID            `json:"user_id"`
	Title       string               `json:"title"`
	Description string               `json:"description,omitempty"`
	Location    string               `json:"location,omitempty"`
	URL         string               `json:"url,omitempty"`
	Start       time.Time            `json:"start"`
	End         time.Time            `json:"end"`
	Timezone    string               `json:"timezone,omitempty"`
	AllDay      bool                 `json:"all_day"`
	Recurrence  string               `json:"recurrence,omitempty"`
	Style       calendar.ButtonStyle `json:"style"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Calendar converts the stored record into generator input. The event ID
// doubles as the calendar UID so re-downloads update the same entry.
func (e Event) Calendar() calendar.Event {
	return calendar.Event{
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		URL:         e.URL,
		Start:       e.Start,
		End:         e.End,
		Timezone:    e.Timezone,
		AllDay:      e.AllDay,
		Recurrence:  e.Recurrence,
		UID:         e.ID + "@punktual.app",
	}
}

type Pagination struct {
	Limit int
	After string
}

type ListResult struct {
	Events     []Event
	NextCursor string
}

// Repository persists events. Every call is scoped to userID; rows owned by
// someone else behave as if they did not exist.
type Repository interface {
	List(ctx context.Context, userID uuid.UUID, pagination Pagination) (ListResult, error)
	Get(ctx context.Context, userID uuid.UUID, id string) (*Event, error)
	Create(ctx context.Context, event Event) (*Event, error)
	Update(ctx context.Context, event Event) (*Event, error)
	Delete(ctx context.Context, userID uuid.UUID, id string) error
}
