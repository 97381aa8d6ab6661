package schedule

import (
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

// DefaultProdID identifies this service in exported calendars.
const DefaultProdID = "-//caseload-scheduler//Calendar Feed//EN"

// FeedEntry is one appointment to export. Series is set for anchors.
type FeedEntry struct {
	Appointment Appointment
	Series      *Series
	Label       string
}

// FeedOptions controls calendar level properties.
type FeedOptions struct {
	ProdID string
	Now    time.Time
}

var summaryStripper = strings.NewReplacer(",", "", ";", "", `\`, "")

// SanitizeSummary removes the characters iCalendar reserves in text values.
func SanitizeSummary(s string) string {
	return summaryStripper.Replace(s)
}

// EncodeICS writes one VEVENT per entry. Recurrence is declared with the
// series' RRULE verbatim rather than expanded. Filtering canceled rows is
// the caller's job; a canceled entry is marked STATUS:CANCELLED.
func EncodeICS(w io.Writer, opts FeedOptions, entries []FeedEntry) error {
	if opts.ProdID == "" {
		opts.ProdID = DefaultProdID
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	cal := ics.NewCalendar()
	cal.SetProductId(opts.ProdID)
	cal.SetCalscale("GREGORIAN")

	for _, e := range entries {
		a := e.Appointment
		ev := cal.AddEvent(a.ID)
		ev.SetDtStampTime(opts.Now.UTC())
		ev.SetStartAt(toTime(a.StartAt))
		ev.SetEndAt(toTime(a.EndAt))
		ev.SetSummary(SanitizeSummary(e.Label))
		if a.Status == StatusCanceled {
			ev.SetStatus(ics.ObjectStatusCancelled)
		}
		if e.Series != nil && a.IsAnchor() {
			ev.AddRrule(e.Series.RRule)
		}
	}

	_, err := io.WriteString(w, cal.Serialize(ics.WithNewLineWindows))
	return err
}
