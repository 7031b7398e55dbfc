package calendar

import (
	"net/url"
	"strings"
	"time"
)

const (
	googleBase    = "https://calendar.google.com/calendar/render"
	outlookBase   = "https://outlook.live.com/calendar/0/deeplink/compose"
	office365Base = "https://outlook.office.com/calendar/0/deeplink/compose"
	yahooBase     = "https://calendar.yahoo.com/"

	utcStamp   = "20060102T150405Z"
	dateStamp  = "20060102"
	isoDate    = "2006-01-02"
	isoUTCTime = "2006-01-02T15:04:05Z"
)

// GoogleURL builds a Google Calendar "render" template link.
func GoogleURL(e Event) string {
	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", e.Title)
	setIf(q, "details", e.Description)
	setIf(q, "location", e.Location)

	if e.AllDay {
		q.Set("dates", e.Start.Format(dateStamp)+"/"+exclusiveEnd(e).Format(dateStamp))
	} else {
		q.Set("dates", e.Start.UTC().Format(utcStamp)+"/"+e.End.UTC().Format(utcStamp))
	}
	setIf(q, "ctz", e.Timezone)
	if e.Recurrence != "" {
		q.Set("recur", "RRULE:"+e.Recurrence)
	}
	return googleBase + "?" + encode(q)
}

// OutlookURL builds an Outlook.com compose deep link.
func OutlookURL(e Event) string {
	return outlookCompose(outlookBase, e)
}

// Office365URL builds the Microsoft 365 variant of the Outlook deep link.
func Office365URL(e Event) string {
	return outlookCompose(office365Base, e)
}

func outlookCompose(base string, e Event) string {
	q := url.Values{}
	q.Set("path", "/calendar/action/compose")
	q.Set("rru", "addevent")
	q.Set("subject", e.Title)
	setIf(q, "body", e.Description)
	setIf(q, "location", e.Location)

	if e.AllDay {
		q.Set("startdt", e.Start.Format(isoDate))
		q.Set("enddt", exclusiveEnd(e).Format(isoDate))
		q.Set("allday", "true")
	} else {
		q.Set("startdt", e.Start.UTC().Format(isoUTCTime))
		q.Set("enddt", e.End.UTC().Format(isoUTCTime))
		q.Set("allday", "false")
	}
	return base + "?" + encode(q)
}

// YahooURL builds a Yahoo Calendar v=60 link.
func YahooURL(e Event) string {
	q := url.Values{}
	q.Set("v", "60")
	q.Set("title", e.Title)
	setIf(q, "desc", e.Description)
	setIf(q, "in_loc", e.Location)

	if e.AllDay {
		q.Set("st", e.Start.Format(dateStamp))
		q.Set("dur", "allday")
	} else {
		q.Set("st", e.Start.UTC().Format(utcStamp))
		q.Set("et", e.End.UTC().Format(utcStamp))
	}
	return yahooBase + "?" + encode(q)
}

// exclusiveEnd is the day after the last day of an all-day event, which is
// how every provider expects all-day ranges.
func exclusiveEnd(e Event) time.Time {
	return e.End.AddDate(0, 0, 1)
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

// encode percent-encodes spaces as %20; some providers render a literal "+".
func encode(q url.Values) string {
	return strings.ReplaceAll(q.Encode(), "+", "%20")
}
