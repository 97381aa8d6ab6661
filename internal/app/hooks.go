package app

import (
	"context"

	appLog "caseload-scheduler/internal/log"
	"caseload-scheduler/internal/schedule"
)

// NoteRequestHook announces completed sessions so the note generator,
// which runs outside this service, can pick them up from the log stream.
func NoteRequestHook() schedule.CompletionHook {
	return schedule.CompletionHookFunc(func(_ context.Context, a schedule.Appointment) error {
		appLog.Info("session note requested",
			"appointment_id", a.ID,
			"client_id", a.ClientID,
			"start_at", a.StartAt,
			"series_id", a.RecurringSeriesID.OrElse(""),
		)
		return nil
	})
}
