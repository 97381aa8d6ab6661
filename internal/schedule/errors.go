package schedule

import "errors"

var (
	// ErrInvalidWindow is returned for a missing or inverted query window.
	ErrInvalidWindow = errors.New("invalid window")
	// ErrUnknownSeries is returned when a referenced series does not exist.
	ErrUnknownSeries = errors.New("unknown series")
	// ErrUnknownAppointment is returned when a referenced appointment does not exist.
	ErrUnknownAppointment = errors.New("unknown appointment")
	// ErrUnknownOccurrence is returned for an event id that names no occurrence.
	ErrUnknownOccurrence = errors.New("unknown occurrence")
	// ErrInvalidStatus is returned for a status outside the enumerated set.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidScope is returned for an edit scope the target does not accept.
	ErrInvalidScope = errors.New("invalid scope")
	// ErrInvalidTimes is returned when end is not after start.
	ErrInvalidTimes = errors.New("invalid times")
	// ErrVirtualOccurrence is returned when a status change needs storage
	// identity that a computed occurrence does not have.
	ErrVirtualOccurrence = errors.New("virtual occurrence has no persisted row")
	// ErrConflict is returned when a write collides with existing data.
	ErrConflict = errors.New("conflict")
)
