package calendar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"github.com/punktual/server/internal/sanitize"
)

const (
	DefaultLabel = "Add to calendar"
	DefaultColor = "#1a73e8"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeBrand Theme = "brand"
)

type Layout string

const (
	LayoutDropdown Layout = "dropdown"
	LayoutList     Layout = "list"
)

var (
	ErrInvalidTheme  = errors.New("invalid theme")
	ErrInvalidLayout = errors.New("invalid layout")
	ErrInvalidColor  = errors.New("invalid color")

	hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
)

// ButtonStyle is how a saved event's embed button looks.
type ButtonStyle struct {
	Theme     Theme      `json:"theme"`
	Label     string     `json:"label"`
	Layout    Layout     `json:"layout"`
	Platforms []Platform `json:"platforms"`
	Color     string     `json:"color"`
}

// Embed is the copy-paste output shown to users.
type Embed struct {
	HTML     string `json:"html"`
	Markdown string `json:"markdown"`
	JSONLD   string `json:"jsonld"`
}

// WithDefaults fills empty fields and validates the rest.
func (s ButtonStyle) WithDefaults() (ButtonStyle, error) {
	if s.Theme == "" {
		s.Theme = ThemeLight
	}
	switch s.Theme {
	case ThemeLight, ThemeDark, ThemeBrand:
	default:
		return ButtonStyle{}, fmt.Errorf("%w: %q", ErrInvalidTheme, s.Theme)
	}

	if s.Layout == "" {
		s.Layout = LayoutDropdown
	}
	if s.Layout != LayoutDropdown && s.Layout != LayoutList {
		return ButtonStyle{}, fmt.Errorf("%w: %q", ErrInvalidLayout, s.Layout)
	}

	s.Label = sanitize.PlainText(s.Label)
	if s.Label == "" {
		s.Label = DefaultLabel
	}

	if s.Color == "" {
		s.Color = DefaultColor
	}
	if !hexColor.MatchString(s.Color) {
		return ButtonStyle{}, fmt.Errorf("%w: %q", ErrInvalidColor, s.Color)
	}

	if len(s.Platforms) == 0 {
		s.Platforms = append([]Platform(nil), AllPlatforms...)
	} else {
		seen := make(map[Platform]bool, len(s.Platforms))
		platforms := make([]Platform, 0, len(s.Platforms))
		for _, p := range s.Platforms {
			if !p.Valid() {
				return ButtonStyle{}, fmt.Errorf("%w: %q", ErrUnknownPlatform, p)
			}
			if !seen[p] {
				seen[p] = true
				platforms = append(platforms, p)
			}
		}
		s.Platforms = platforms
	}
	return s, nil
}

var embedTemplate = template.Must(template.New("embed").Parse(
	`<div class="punktual-button punktual-{{.Theme}}" data-layout="{{.Layout}}" style="--punktual-color: {{.Color}}">
{{- if eq .Layout "dropdown"}}
  <details>
    <summary>{{.Label}}</summary>
    <ul>
{{- range .Items}}
      <li><a href="{{.Href}}"{{if .Download}} download="{{.Download}}"{{else}} target="_blank" rel="noopener"{{end}}>{{.Name}}</a></li>
{{- end}}
    </ul>
  </details>
{{- else}}
  <span class="punktual-label">{{.Label}}</span>
  <ul>
{{- range .Items}}
    <li><a href="{{.Href}}"{{if .Download}} download="{{.Download}}"{{else}} target="_blank" rel="noopener"{{end}}>{{.Name}}</a></li>
{{- end}}
  </ul>
{{- end}}
</div>
`))

type embedItem struct {
	Name     string
	Href     template.URL
	Download string
}

type embedView struct {
	Theme  Theme
	Layout Layout
	Color  template.CSS
	Label  string
	Items  []embedItem
}

// BuildEmbed renders the HTML button, a Markdown link list and schema.org
// JSON-LD for an event. links must come from Generate for the same event.
func BuildEmbed(e Event, style ButtonStyle, links Links) (Embed, error) {
	n, err := Normalize(e)
	if err != nil {
		return Embed{}, err
	}
	style, err = style.WithDefaults()
	if err != nil {
		return Embed{}, err
	}

	view := embedView{
		Theme:  style.Theme,
		Layout: style.Layout,
		// hexColor already constrains this to a CSS-safe literal.
		Color: template.CSS(style.Color),
		Label: style.Label,
	}

	var md strings.Builder
	fmt.Fprintf(&md, "**%s**\n\n", markdownEscape(n.Title))
	for _, p := range style.Platforms {
		href, ok := links[p]
		if !ok || href == "" {
			continue
		}
		item := embedItem{Name: p.Label(), Href: template.URL(href)}
		if p == PlatformApple {
			item.Download = Filename(n)
		}
		view.Items = append(view.Items, item)
		fmt.Fprintf(&md, "- [%s](<%s>)\n", p.Label(), href)
	}

	var buf bytes.Buffer
	if err := embedTemplate.Execute(&buf, view); err != nil {
		return Embed{}, fmt.Errorf("render embed: %w", err)
	}

	doc, err := EventJSONLD(n)
	if err != nil {
		return Embed{}, err
	}
	ldJSON, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Embed{}, fmt.Errorf("marshal json-ld: %w", err)
	}

	return Embed{
		HTML:     buf.String(),
		Markdown: md.String(),
		JSONLD:   string(ldJSON),
	}, nil
}

var markdownReplacer = strings.NewReplacer(
	`\`, `\\`, `*`, `\*`, `_`, `\_`, `[`, `\[`, `]`, `\]`, "`", "\\`",
)

func markdownEscape(s string) string {
	return markdownReplacer.Replace(s)
}
