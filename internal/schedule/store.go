package schedule

import (
	"context"

	"github.com/samber/mo"
)

// AppointmentStore persists appointment rows, one-offs and anchors alike.
type AppointmentStore interface {
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	// ListAppointmentsInRange returns rows with from <= start_at <= to,
	// ascending by start_at.
	ListAppointmentsInRange(ctx context.Context, from, to int64) ([]Appointment, error)
	// ListFeedAppointments returns every non-canceled row, ascending by start_at.
	ListFeedAppointments(ctx context.Context) ([]Appointment, error)
	CreateAppointment(ctx context.Context, a Appointment) error
	// UpdateAppointmentTimes moves a row. originalInstanceAt is written only
	// when present.
	UpdateAppointmentTimes(ctx context.Context, id string, startAt, endAt int64, originalInstanceAt mo.Option[int64]) error
	UpdateAppointmentStatus(ctx context.Context, id string, status Status) error
	// DeleteAppointment removes the row. Removing an anchor also removes its
	// series and exceptions in the same write.
	DeleteAppointment(ctx context.Context, id string) error
}

// SeriesStore persists recurring series.
type SeriesStore interface {
	GetSeries(ctx context.Context, id string) (Series, error)
	// GetAnchor returns the anchor appointment of a series.
	GetAnchor(ctx context.Context, seriesID string) (Appointment, error)
	// ListSeriesInRange returns the series with dtstart <= to and no until
	// or until >= from, in store order.
	ListSeriesInRange(ctx context.Context, from, to int64) ([]Series, error)
	// CreateRecurring writes the series and its anchor atomically.
	CreateRecurring(ctx context.Context, s Series, anchor Appointment) error
	// ShiftSeries moves dtstart, the anchor's times and the anchor's
	// original_instance_at (when set) by deltaMs atomically. Exceptions are
	// left untouched.
	ShiftSeries(ctx context.Context, seriesID string, deltaMs int64) error
}

// ExceptionStore persists per-instance overrides.
type ExceptionStore interface {
	ListExceptions(ctx context.Context, seriesID string) ([]Exception, error)
	// PutException inserts or replaces the exception for
	// (RecurringSeriesID, OriginalInstanceAt).
	PutException(ctx context.Context, ex Exception) error
}

// Store is everything the scheduling service reads and writes.
type Store interface {
	AppointmentStore
	SeriesStore
	ExceptionStore
}
