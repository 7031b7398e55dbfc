package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestText_RemovesAllHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"script tag", `Launch <script>alert('xss')</script> party`, `Launch  party`},
		{"inline handler", `<span onclick="steal()">Add to calendar</span>`, `Add to calendar`},
		{"mixed tags", `<b>Bold</b> <i>Italic</i> <a href="http://example.com">Link</a>`, `Bold Italic Link`},
		{"image onerror", `<img src=x onerror="alert(1)">`, ``},
		{"plain text", `Team offsite`, `Team offsite`},
		{"empty", ``, ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, Text(tt.input))
		})
	}
}

func TestPlainText_UnescapesEntities(t *testing.T) {
	require.Equal(t, "Q&A night", PlainText("  <b>Q&amp;A</b> night "))
	require.Equal(t, "Tom & Jerry", PlainText("Tom & Jerry"))
	require.Equal(t, "", PlainText("<script>alert(1)</script>"))
}

func TestHTML_AllowsPostFormatting(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"removes script", `<p>Hello <script>alert('xss')</script> World</p>`, `<p>Hello  World</p>`},
		{"removes handlers", `<p onclick="alert(1)">Click me</p>`, `<p>Click me</p>`},
		{"keeps emphasis", `<p><b>Bold</b> <em>Emphasis</em></p>`, `<p><b>Bold</b> <em>Emphasis</em></p>`},
		{"nofollow links", `<p><a href="https://example.com">Link</a></p>`, `<p><a href="https://example.com" rel="nofollow">Link</a></p>`},
		{"keeps lists", `<ul><li>One</li><li>Two</li></ul>`, `<ul><li>One</li><li>Two</li></ul>`},
		{"drops javascript links", `<a href="javascript:alert(1)">Click</a>`, `Click`},
		{"drops style", `<p style="color:red">Text</p>`, `<p>Text</p>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, HTML(tt.input))
		})
	}
}

func TestTextSlice(t *testing.T) {
	require.Nil(t, TextSlice(nil))
	require.Equal(t, []string{"release", "howto"}, TextSlice([]string{"<b>release</b>", "how<script>x</script>to"}))
}

func TestHTML_CommonXSSVectors(t *testing.T) {
	vectors := []string{
		`<p><script>alert('XSS')</script>Text</p>`,
		`<p onclick="alert('XSS')">Text</p>`,
		`<p style="background:expression(alert('XSS'))">Text</p>`,
		`<p><img src=x onerror=alert('XSS')>Text</p>`,
		`<p><a href="javascript:alert('XSS')">Link</a></p>`,
		`<iframe src="https://evil.example"></iframe>`,
	}

	for _, v := range vectors {
		result := HTML(v)
		for _, d := range []string{"alert", "javascript:", "<script", "onerror=", "onclick=", "<iframe"} {
			require.False(t, strings.Contains(result, d), "HTML(%q) kept %q: %q", v, d, result)
		}
	}
}
