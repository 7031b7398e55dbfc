package calendar

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

type Platform string

const (
	PlatformGoogle    Platform = "google"
	PlatformOutlook   Platform = "outlook"
	PlatformOffice365 Platform = "office365"
	PlatformYahoo     Platform = "yahoo"
	PlatformApple     Platform = "apple"
)

// AllPlatforms is the canonical display order.
var AllPlatforms = []Platform{
	PlatformGoogle,
	PlatformOutlook,
	PlatformOffice365,
	PlatformYahoo,
	PlatformApple,
}

var ErrUnknownPlatform = errors.New("unknown calendar platform")

// Links maps each platform to its add-to-calendar URL.
type Links map[Platform]string

func (p Platform) Valid() bool {
	for _, known := range AllPlatforms {
		if p == known {
			return true
		}
	}
	return false
}

// Label is the human-facing provider name used in buttons and lists.
func (p Platform) Label() string {
	switch p {
	case PlatformGoogle:
		return "Google Calendar"
	case PlatformOutlook:
		return "Outlook.com"
	case PlatformOffice365:
		return "Office 365"
	case PlatformYahoo:
		return "Yahoo Calendar"
	case PlatformApple:
		return "Apple Calendar"
	default:
		return string(p)
	}
}

// Host is the web host a platform's links point at. Apple links are ICS
// data URIs and have no host.
func (p Platform) Host() string {
	var base string
	switch p {
	case PlatformGoogle:
		base = googleBase
	case PlatformOutlook:
		base = outlookBase
	case PlatformOffice365:
		base = office365Base
	case PlatformYahoo:
		base = yahooBase
	default:
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return u.Host
}

// IsICSDataURI reports whether s is an inline calendar document as
// produced by ICSDataURI.
func IsICSDataURI(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), "data:text/calendar")
}

// ParsePlatform accepts platform names case-insensitively, plus the
// common aliases for the ICS download.
func ParsePlatform(value string) (Platform, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case "ics", "ical", "apple-calendar":
		return PlatformApple, nil
	}
	p := Platform(v)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, value)
	}
	return p, nil
}
