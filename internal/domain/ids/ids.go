package ids

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// DefaultShortIDLength gives 62^8 (~2.2e14) possible short links.
	DefaultShortIDLength = 8

	MinShortIDLength = 4
	MaxShortIDLength = 32

	base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var (
	ulidRegex    = regexp.MustCompile(`(?i)^[0-9A-HJKMNP-TV-Z]{26}$`)
	shortIDRegex = regexp.MustCompile(`^[0-9A-Za-z]+$`)

	ErrInvalidULID    = errors.New("invalid ULID")
	ErrInvalidShortID = errors.New("invalid short id")
)

// NewULID generates a new ULID string.
func NewULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// IsULID returns true when value is a valid ULID (case-insensitive Crockford Base32).
func IsULID(value string) bool {
	return ulidRegex.MatchString(strings.TrimSpace(value))
}

// ValidateULID validates a ULID string.
func ValidateULID(value string) error {
	if !IsULID(value) {
		return ErrInvalidULID
	}
	return nil
}

// NewShortID returns n random base62 characters.
//
// Bytes >= 248 are rejected so every alphabet index is equally likely
// (248 = 4*62).
func NewShortID(n int) (string, error) {
	if n < MinShortIDLength || n > MaxShortIDLength {
		return "", fmt.Errorf("%w: length %d", ErrInvalidShortID, n)
	}

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if b >= 248 {
				continue
			}
			out = append(out, base62Alphabet[int(b)%62])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// IsShortID reports whether value looks like a short link id.
func IsShortID(value string) bool {
	if len(value) < MinShortIDLength || len(value) > MaxShortIDLength {
		return false
	}
	return shortIDRegex.MatchString(value)
}

// NewToken returns a URL-safe random token carrying size bytes of entropy.
func NewToken(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
