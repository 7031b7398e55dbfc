package calendar

import (
	"fmt"
	"time"
)

// Generator carries the clock used for DTSTAMP.
type Generator struct {
	Now func() time.Time
}

// Default uses the wall clock.
var Default = &Generator{Now: time.Now}

func (g *Generator) now() time.Time {
	if g == nil || g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

// Generate normalizes e once and builds every platform link.
func Generate(e Event) (Links, error) {
	return Default.Generate(e)
}

// LinkFor builds the link for a single platform.
func LinkFor(p Platform, e Event) (string, error) {
	return Default.LinkFor(p, e)
}

func (g *Generator) Generate(e Event) (Links, error) {
	n, err := Normalize(e)
	if err != nil {
		return nil, err
	}
	links := make(Links, len(AllPlatforms))
	for _, p := range AllPlatforms {
		link, err := g.link(p, n)
		if err != nil {
			return nil, err
		}
		links[p] = link
	}
	return links, nil
}

func (g *Generator) LinkFor(p Platform, e Event) (string, error) {
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, p)
	}
	n, err := Normalize(e)
	if err != nil {
		return "", err
	}
	return g.link(p, n)
}

func (g *Generator) link(p Platform, e Event) (string, error) {
	switch p {
	case PlatformGoogle:
		return GoogleURL(e), nil
	case PlatformOutlook:
		return OutlookURL(e), nil
	case PlatformOffice365:
		return Office365URL(e), nil
	case PlatformYahoo:
		return YahooURL(e), nil
	case PlatformApple:
		return g.dataURI(e), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, p)
	}
}
