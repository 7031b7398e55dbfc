package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/punktual/server/internal/calendar"
)

type generateOptions struct {
	title       string
	start       string
	end         string
	duration    int
	timezone    string
	location    string
	description string
	url         string
	allDay      bool
	rrule       string
	format      string
	platform    string
}

var genOpts generateOptions

// generateCmd prints calendar output for one event without touching the database.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print calendar links, ICS or embed code for an event",
	Long: `Generate calendar output for a single event described by flags.

--start accepts RFC 3339 or free text such as "next friday 7pm", read in
--timezone. --end wins over --duration.

Examples:
  # Every platform link as JSON
  punktual generate --title "Team sync" --start "2026-07-01T10:00:00Z" --duration 30

  # An ICS file
  punktual generate --title "Launch" --start "tomorrow 9am" --timezone Europe/Berlin --format ics > launch.ics

  # Only the Outlook link
  punktual generate --title "Launch" --start "tomorrow 9am" --platform outlook

  # The HTML button, Markdown and JSON-LD
  punktual generate --title "Launch" --start "2026-07-01" --all-day --format embed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate(cmd.OutOrStdout(), genOpts, time.Now())
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)

	f := generateCmd.Flags()
	f.StringVar(&genOpts.title, "title", "", "event title (required)")
	f.StringVar(&genOpts.start, "start", "", "start time, RFC 3339 or free text (required)")
	f.StringVar(&genOpts.end, "end", "", "end time, RFC 3339 or free text")
	f.IntVar(&genOpts.duration, "duration", 0, "duration in minutes when --end is not set")
	f.StringVar(&genOpts.timezone, "timezone", "", "IANA time zone (default: UTC)")
	f.StringVar(&genOpts.location, "location", "", "event location")
	f.StringVar(&genOpts.description, "description", "", "event description")
	f.StringVar(&genOpts.url, "url", "", "event URL")
	f.BoolVar(&genOpts.allDay, "all-day", false, "all-day event")
	f.StringVar(&genOpts.rrule, "rrule", "", "recurrence rule, e.g. FREQ=WEEKLY;COUNT=4")
	f.StringVar(&genOpts.format, "format", "links", "output format: links, ics or embed")
	f.StringVar(&genOpts.platform, "platform", "", "print only this platform's link")
	_ = generateCmd.MarkFlagRequired("title")
	_ = generateCmd.MarkFlagRequired("start")
}

func runGenerate(out io.Writer, opts generateOptions, now time.Time) error {
	ev, err := opts.event(now)
	if err != nil {
		return err
	}

	if opts.platform != "" {
		p, err := calendar.ParsePlatform(opts.platform)
		if err != nil {
			return err
		}
		link, err := calendar.LinkFor(p, ev)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, link)
		return err
	}

	switch strings.ToLower(opts.format) {
	case "", "links":
		links, err := calendar.Generate(ev)
		if err != nil {
			return err
		}
		return writeIndented(out, links)
	case "ics":
		body, err := calendar.ICS(ev)
		if err != nil {
			return err
		}
		_, err = out.Write(body)
		return err
	case "embed":
		links, err := calendar.Generate(ev)
		if err != nil {
			return err
		}
		embed, err := calendar.BuildEmbed(ev, calendar.ButtonStyle{}, links)
		if err != nil {
			return err
		}
		return writeIndented(out, embed)
	default:
		return fmt.Errorf("unknown format %q (want links, ics or embed)", opts.format)
	}
}

func (o generateOptions) event(now time.Time) (calendar.Event, error) {
	loc := time.UTC
	if tz := strings.TrimSpace(o.timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return calendar.Event{}, fmt.Errorf("unknown time zone %q", tz)
		}
		loc = l
	}

	start, err := parseTime(o.start, loc, now)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("--start: %w", err)
	}
	ev := calendar.Event{
		Title:       o.title,
		Description: o.description,
		Location:    o.location,
		URL:         o.url,
		Start:       start,
		Timezone:    strings.TrimSpace(o.timezone),
		AllDay:      o.allDay,
		Recurrence:  o.rrule,
	}

	switch {
	case strings.TrimSpace(o.end) != "":
		end, err := parseTime(o.end, loc, now)
		if err != nil {
			return calendar.Event{}, fmt.Errorf("--end: %w", err)
		}
		ev.End = end
	case o.duration < 0:
		return calendar.Event{}, fmt.Errorf("--duration must not be negative")
	case o.duration > 0:
		ev.End = start.Add(time.Duration(o.duration) * time.Minute)
	}
	return ev, nil
}

func parseTime(text string, loc *time.Location, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(text)); err == nil {
		return t, nil
	}
	return calendar.ParseWhen(text, loc, now)
}

func writeIndented(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
