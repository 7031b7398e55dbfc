// Package sanitize wraps the bluemonday policies used for user and CMS text.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// StrictPolicy removes all HTML tags and attributes.
	StrictPolicy = bluemonday.StrictPolicy()

	// UGCPolicy allows the formatting a blog post body needs
	// (paragraphs, emphasis, links, lists, images, code) and nothing executable.
	UGCPolicy = bluemonday.UGCPolicy()
)

// Text strips all HTML tags. The result is HTML-escaped and may be written
// straight into a page. Use for: post titles, excerpts, author names.
func Text(input string) string {
	return StrictPolicy.Sanitize(input)
}

// PlainText strips all HTML tags and un-escapes entities, for values that
// will be escaped again by html/template or sent outside HTML (button
// labels, ICS text).
func PlainText(input string) string {
	return strings.TrimSpace(html.UnescapeString(StrictPolicy.Sanitize(input)))
}

// HTML sanitizes rich content. Use for: CMS post bodies.
func HTML(input string) string {
	return UGCPolicy.Sanitize(input)
}

// TextSlice sanitizes each string in a slice, removing all HTML.
func TextSlice(inputs []string) []string {
	if inputs == nil {
		return nil
	}
	sanitized := make([]string, len(inputs))
	for i, input := range inputs {
		sanitized[i] = Text(input)
	}
	return sanitized
}
