package app

import (
	"github.com/samber/mo"

	"caseload-scheduler/internal/schedule"
)

// createAppointmentReq books a one-off appointment, or a recurring series
// with its anchor when RRule is set.
type createAppointmentReq struct {
	ClientID    string `json:"client_id" binding:"required"`
	StartAt     int64  `json:"start_at" binding:"required"` // epoch ms
	EndAt       int64  `json:"end_at,omitempty"`
	DurationMin int    `json:"duration_min,omitempty"`
	RRule       string `json:"rrule,omitempty"`
	UntilAt     *int64 `json:"until_at,omitempty"`
	Count       *int   `json:"count,omitempty"`
	Status      string `json:"status,omitempty"`
	Note        string `json:"note,omitempty"`
}

func (r createAppointmentReq) durationMin() int {
	if r.DurationMin > 0 {
		return r.DurationMin
	}
	if r.EndAt > r.StartAt {
		return int((r.EndAt - r.StartAt) / 60000)
	}
	return 0
}

// endAt falls back to StartAt plus DurationMin for one-offs.
func (r createAppointmentReq) endAt() int64 {
	if r.EndAt == 0 && r.DurationMin > 0 {
		return r.StartAt + int64(r.DurationMin)*60000
	}
	return r.EndAt
}

func (r createAppointmentReq) recurringBooking() schedule.RecurringBooking {
	return schedule.RecurringBooking{
		ClientID:    r.ClientID,
		StartAt:     r.StartAt,
		DurationMin: r.durationMin(),
		RRule:       r.RRule,
		UntilAt:     mo.PointerToOption(r.UntilAt),
		Count:       mo.PointerToOption(r.Count),
		Note:        r.Note,
	}
}

type rescheduleReq struct {
	Scope   string `json:"scope"` // "this" (default) or "series"
	StartAt int64  `json:"start_at" binding:"required"`
	EndAt   *int64 `json:"end_at,omitempty"`
}

type statusReq struct {
	Status string `json:"status" binding:"required"`
}

type seriesResp struct {
	Series     schedule.Series      `json:"series"`
	Exceptions []schedule.Exception `json:"exceptions"`
}
