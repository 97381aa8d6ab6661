package schedule

import (
	"strconv"
	"strings"

	"github.com/samber/mo"
)

// Occurrence is one resolvable entry of the calendar: a OneOff or Anchor
// backed by a persisted row, or a Virtual instance computed from a series.
// Only the persisted kinds carry an Appointment that can be written back.
type Occurrence interface {
	Event() CalendarEvent
	isOccurrence()
}

// OneOff is an appointment that belongs to no series.
type OneOff struct {
	Appointment Appointment
}

// Anchor is the persisted row standing for instance zero of Series. Series
// is zero when the anchor was listed without its series in scope.
type Anchor struct {
	Appointment Appointment
	Series      Series
}

// Virtual is a computed series instance after overlay.
type Virtual struct {
	Series   Series
	Instance Instance
}

func (OneOff) isOccurrence()  {}
func (Anchor) isOccurrence()  {}
func (Virtual) isOccurrence() {}

func (o OneOff) Event() CalendarEvent { return appointmentEvent(o.Appointment) }
func (o Anchor) Event() CalendarEvent { return appointmentEvent(o.Appointment) }

func (o Virtual) Event() CalendarEvent {
	return CalendarEvent{
		ID:                 VirtualEventID(o.Series.ID, o.Instance.OriginalInstanceAt),
		ClientID:           o.Series.ClientID,
		StartAt:            o.Instance.StartAt,
		EndAt:              o.Instance.EndAt,
		Status:             StatusScheduled,
		RecurringSeriesID:  mo.Some(o.Series.ID),
		OriginalInstanceAt: mo.Some(o.Instance.OriginalInstanceAt),
	}
}

func appointmentEvent(a Appointment) CalendarEvent {
	return CalendarEvent{
		ID:                 a.ID,
		ClientID:           a.ClientID,
		StartAt:            a.StartAt,
		EndAt:              a.EndAt,
		Status:             a.Status,
		RecurringSeriesID:  a.RecurringSeriesID,
		OriginalInstanceAt: a.OriginalInstanceAt,
	}
}

// VirtualEventID is the synthetic id "<seriesId>:<originalInstanceAt>".
func VirtualEventID(seriesID string, originalInstanceAt int64) string {
	return seriesID + ":" + strconv.FormatInt(originalInstanceAt, 10)
}

// ParseVirtualEventID splits a synthetic id. ok is false for plain ids.
func ParseVirtualEventID(id string) (seriesID string, originalInstanceAt int64, ok bool) {
	i := strings.LastIndexByte(id, ':')
	if i <= 0 || i == len(id)-1 {
		return "", 0, false
	}
	at, err := strconv.ParseInt(id[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return id[:i], at, true
}
