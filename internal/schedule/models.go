package schedule

import (
	"fmt"
	"strings"

	"github.com/samber/mo"
)

// Status of a persisted appointment or a projected calendar event.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// ParseStatus accepts the enumerated values case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusScheduled, StatusCompleted, StatusCanceled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// ExceptionStatus says what a RecurringException does to its instance.
type ExceptionStatus string

const (
	ExceptionMoved    ExceptionStatus = "moved"
	ExceptionCanceled ExceptionStatus = "canceled"
)

// Appointment is a persisted row. Times are naive epoch milliseconds.
type Appointment struct {
	ID                 string            `json:"id"`
	ClientID           string            `json:"client_id"`
	StartAt            int64             `json:"start_at"`
	EndAt              int64             `json:"end_at"`
	Status             Status            `json:"status"`
	RecurringSeriesID  mo.Option[string] `json:"recurring_series_id"`
	OriginalInstanceAt mo.Option[int64]  `json:"original_instance_at"`
	Note               string            `json:"note,omitempty"`
}

// IsAnchor reports whether the appointment is the anchor row of a series.
func (a Appointment) IsAnchor() bool {
	return a.RecurringSeriesID.IsPresent()
}

// Validate checks the time ordering and the status enum.
func (a Appointment) Validate() error {
	if a.EndAt <= a.StartAt {
		return fmt.Errorf("%w: end_at must be after start_at", ErrInvalidTimes)
	}
	if _, err := ParseStatus(string(a.Status)); err != nil {
		return err
	}
	return nil
}

// Series is a weekly recurrence. DTStart fixes both the first eligible day
// and the time of day of every occurrence.
type Series struct {
	ID          string           `json:"id"`
	ClientID    string           `json:"client_id"`
	RRule       string           `json:"rrule"`
	DTStart     int64            `json:"dtstart"`
	DurationMin int              `json:"duration_min"`
	UntilAt     mo.Option[int64] `json:"until_at"`
	Count       mo.Option[int]   `json:"count"`

	// Rule is the parsed form of RRule. Stores fill it in with Compile when
	// a series is loaded; Generate parses on the fly when it is nil.
	Rule RecurrenceRule `json:"-"`
}

// Compile parses RRule once and caches the result on the series.
func (s *Series) Compile() {
	s.Rule = ParseRule(s.RRule, s.DTStart)
}

func (s Series) rule() RecurrenceRule {
	if s.Rule != nil {
		return s.Rule
	}
	return ParseRule(s.RRule, s.DTStart)
}

func (s Series) durationMs() int64 {
	return int64(s.DurationMin) * minuteMs
}

// Exception overrides one nominal instance of a series.
type Exception struct {
	ID                 string           `json:"id"`
	RecurringSeriesID  string           `json:"recurring_series_id"`
	OriginalInstanceAt int64            `json:"original_instance_at"`
	NewStartAt         mo.Option[int64] `json:"new_start_at"`
	NewEndAt           mo.Option[int64] `json:"new_end_at"`
	Status             ExceptionStatus  `json:"status"`
}

// CalendarEvent is the transient projection returned by a window query.
type CalendarEvent struct {
	ID                 string            `json:"id"`
	ClientID           string            `json:"client_id"`
	StartAt            int64             `json:"start_at"`
	EndAt              int64             `json:"end_at"`
	Status             Status            `json:"status"`
	RecurringSeriesID  mo.Option[string] `json:"recurring_series_id"`
	OriginalInstanceAt mo.Option[int64]  `json:"original_instance_at"`
}
