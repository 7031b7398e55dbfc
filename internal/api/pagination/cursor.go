package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

var ErrInvalidLimit = errors.New("invalid limit")

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// EventCursor points just past an event in (start, id) order.
type EventCursor struct {
	Start time.Time
	ID    string
}

// EncodeEventCursor encodes the cursor as base64(start_unix_nano:ULID).
func EncodeEventCursor(start time.Time, id string) string {
	value := fmt.Sprintf("%d:%s", start.UTC().UnixNano(), strings.ToUpper(strings.TrimSpace(id)))
	return base64.RawURLEncoding.EncodeToString([]byte(value))
}

// DecodeEventCursor reverses EncodeEventCursor.
func DecodeEventCursor(cursor string) (EventCursor, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return EventCursor{}, ErrInvalidCursor
	}
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return EventCursor{}, ErrInvalidCursor
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return EventCursor{}, ErrInvalidCursor
	}
	unixNano, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return EventCursor{}, ErrInvalidCursor
	}
	id := strings.ToUpper(strings.TrimSpace(parts[1]))
	if id == "" {
		return EventCursor{}, ErrInvalidCursor
	}
	return EventCursor{Start: time.Unix(0, unixNano).UTC(), ID: id}, nil
}

// ParseLimit reads a page size. Empty means DefaultLimit; values above
// MaxLimit are clamped.
func ParseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, ErrInvalidLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit, nil
}
