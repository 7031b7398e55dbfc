package cmd

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var generateNow = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func TestRunGenerate_Links(t *testing.T) {
	var out bytes.Buffer
	err := runGenerate(&out, generateOptions{
		title:    "Team sync",
		start:    "2026-07-01T10:00:00Z",
		duration: 30,
		format:   "links",
	}, generateNow)
	require.NoError(t, err)

	var links map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &links))
	assert.Len(t, links, 5)
	assert.True(t, strings.HasPrefix(links["google"], "https://calendar.google.com/calendar/render?"))
	u, err := url.Parse(links["google"])
	require.NoError(t, err)
	assert.Equal(t, "20260701T100000Z/20260701T103000Z", u.Query().Get("dates"))
	assert.True(t, strings.HasPrefix(links["apple"], "data:text/calendar"))
}

func TestRunGenerate_SinglePlatform(t *testing.T) {
	var out bytes.Buffer
	err := runGenerate(&out, generateOptions{
		title:    "Launch",
		start:    "2026-07-01T10:00:00Z",
		platform: "outlook",
	}, generateNow)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.String(), "https://outlook.live.com/calendar/0/deeplink/compose?"))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
}

func TestRunGenerate_ICSFromFreeText(t *testing.T) {
	var out bytes.Buffer
	err := runGenerate(&out, generateOptions{
		title:    "Launch",
		start:    "tomorrow 9am",
		timezone: "Europe/Berlin",
		format:   "ics",
	}, generateNow)
	require.NoError(t, err)

	body := out.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Launch")
	// 09:00 Berlin summer time is 07:00 UTC.
	assert.Contains(t, body, "DTSTART:20260611T070000Z")
}

func TestRunGenerate_Embed(t *testing.T) {
	var out bytes.Buffer
	err := runGenerate(&out, generateOptions{
		title:  "Launch <party>",
		start:  "2026-07-01T10:00:00Z",
		format: "embed",
	}, generateNow)
	require.NoError(t, err)

	var embed struct {
		HTML     string `json:"html"`
		Markdown string `json:"markdown"`
		JSONLD   string `json:"jsonld"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &embed))
	assert.NotEmpty(t, embed.HTML)
	assert.Contains(t, embed.Markdown, "Google Calendar")
	assert.Contains(t, embed.JSONLD, "schema.org")
}

func TestRunGenerate_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts generateOptions
		want string
	}{
		{"unparseable start", generateOptions{title: "x", start: "qwerty zzz"}, "--start"},
		{"bad zone", generateOptions{title: "x", start: "2026-07-01T10:00:00Z", timezone: "Mars/Olympus"}, "time zone"},
		{"negative duration", generateOptions{title: "x", start: "2026-07-01T10:00:00Z", duration: -5}, "--duration"},
		{"unknown format", generateOptions{title: "x", start: "2026-07-01T10:00:00Z", format: "pdf"}, "unknown format"},
		{"unknown platform", generateOptions{title: "x", start: "2026-07-01T10:00:00Z", platform: "aol"}, "platform"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runGenerate(&out, tt.opts, generateNow)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
