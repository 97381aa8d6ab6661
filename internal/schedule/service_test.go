package schedule_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseload-scheduler/internal/schedule"
	"caseload-scheduler/internal/storage/memory"
)

func ms(year int, month time.Month, day, hour, minute int) int64 {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC).UnixMilli()
}

// sequentialIDs hands out id-1, id-2, ... so a recurring booking gets
// series id-1 and anchor id-2.
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

var exportTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newService(t *testing.T, opts ...schedule.Option) (*schedule.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	opts = append([]schedule.Option{
		schedule.WithIDGenerator(sequentialIDs()),
		schedule.WithClock(func() time.Time { return exportTime }),
	}, opts...)
	return schedule.NewService(store, opts...), store
}

// wednesdays books the 50 minute weekly session starting 2025-10-08 10:00.
func wednesdays(t *testing.T, svc *schedule.Service, rule string) (schedule.Series, schedule.Appointment) {
	t.Helper()
	series, anchor, err := svc.BookRecurring(context.Background(), schedule.RecurringBooking{
		ClientID:    "client-1",
		StartAt:     ms(2025, 10, 8, 10, 0),
		DurationMin: 50,
		RRule:       rule,
	})
	require.NoError(t, err)
	require.Equal(t, "id-1", series.ID)
	require.Equal(t, "id-2", anchor.ID)
	return series, anchor
}

const secondWednesday = int64(1760522400000)

func TestBookRecurringCreatesAnchor(t *testing.T) {
	svc, store := newService(t)
	series, anchor := wednesdays(t, svc, "FREQ=WEEKLY;BYDAY=WE")

	assert.Equal(t, int64(1759917600000), series.DTStart)
	assert.Equal(t, series.DTStart, anchor.StartAt)
	assert.Equal(t, series.DTStart+50*60*1000, anchor.EndAt)
	assert.Equal(t, mo.Some("id-1"), anchor.RecurringSeriesID)
	assert.True(t, anchor.OriginalInstanceAt.IsAbsent())
	assert.Equal(t, schedule.StatusScheduled, anchor.Status)

	got, err := store.GetAnchor(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, anchor, got)
}

func TestBookRecurringValidation(t *testing.T) {
	tests := []struct {
		name    string
		booking schedule.RecurringBooking
	}{
		{name: "zero duration", booking: schedule.RecurringBooking{StartAt: 1000, RRule: "FREQ=WEEKLY"}},
		{name: "until before start", booking: schedule.RecurringBooking{StartAt: 1000, DurationMin: 30, RRule: "FREQ=WEEKLY", UntilAt: mo.Some[int64](999)}},
		{name: "zero count", booking: schedule.RecurringBooking{StartAt: 1000, DurationMin: 30, RRule: "FREQ=WEEKLY", Count: mo.Some(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t)
			_, _, err := svc.BookRecurring(context.Background(), tt.booking)
			assert.ErrorIs(t, err, schedule.ErrInvalidTimes)
		})
	}
}

func TestBookOneOff(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	a, err := svc.BookOneOff(ctx, schedule.Appointment{
		ClientID:          "client-2",
		StartAt:           1000,
		EndAt:             2000,
		RecurringSeriesID: mo.Some("ignored"),
	})
	require.NoError(t, err)
	assert.Equal(t, "id-1", a.ID)
	assert.Equal(t, schedule.StatusScheduled, a.Status)
	assert.False(t, a.IsAnchor())

	_, err = svc.BookOneOff(ctx, schedule.Appointment{ClientID: "c", StartAt: 2000, EndAt: 2000})
	assert.ErrorIs(t, err, schedule.ErrInvalidTimes)

	_, err = svc.BookOneOff(ctx, schedule.Appointment{ClientID: "c", StartAt: 1000, EndAt: 2000, Status: "done"})
	assert.ErrorIs(t, err, schedule.ErrInvalidStatus)
}

func TestEventsWeekScenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	wednesdays(t, svc, "FREQ=WEEKLY;BYDAY=WE")

	events, err := svc.Events(ctx, ms(2025, 10, 13, 0, 0), ms(2025, 10, 19, 23, 59))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, schedule.CalendarEvent{
		ID:                 "id-1:1760522400000",
		ClientID:           "client-1",
		StartAt:            secondWednesday,
		EndAt:              secondWednesday + 50*60*1000,
		Status:             schedule.StatusScheduled,
		RecurringSeriesID:  mo.Some("id-1"),
		OriginalInstanceAt: mo.Some(secondWednesday),
	}, events[0])
}

func TestEventsAnchorStandsForInstanceZero(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	wednesdays(t, svc, "FREQ=WEEKLY;BYDAY=WE")

	events, err := svc.Events(ctx, ms(2025, 10, 6, 0, 0), ms(2025, 10, 19, 23, 59))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "id-2", events[0].ID)
	assert.Equal(t, "id-1:1760522400000", events[1].ID)
}

func TestEventsInvalidWindow(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Events(context.Background(), 10, 9)
	assert.ErrorIs(t, err, schedule.ErrInvalidWindow)
}

func TestEventsRejectsOversizedWindow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, schedule.WithMaxWindow(7*24*time.Hour))
	wednesdays(t, svc, "FREQ=WEEKLY;BYDAY=WE")

	_, err := svc.Events(ctx, ms(2025, 10, 13, 0, 0), ms(2025, 10, 20, 0, 0))
	require.NoError(t, err, "exactly the maximum is allowed")

	_, err = svc.Events(ctx, ms(2025, 10, 13, 0, 0), ms(2025, 10, 20, 0, 1))
	assert.ErrorIs(t, err, schedule.ErrInvalidWindow)

	_, err = svc.Events(ctx, math.MinInt64, math.MaxInt64)
	assert.ErrorIs(t, err, schedule.ErrInvalidWindow)
}

func TestEventsDefaultMaxWindow(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Events(context.Background(), 0, 9_000_000_000_000_000)
	assert.ErrorIs(t, err, schedule.ErrInvalidWindow)

	_, err = svc.Events(context.Background(), 0, schedule.DefaultMaxWindow.Milliseconds())
	assert.NoError(t, err)
}

func TestEventsCountIncludesOffRuleAnchor(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, _, err := svc.BookRecurring(ctx, schedule.RecurringBooking{
		ClientID: "c", StartAt: ms(2025, 10, 8, 10, 0), DurationMin: 50,
		RRule: "FREQ=WEEKLY;BYDAY=MO,FR", Count: mo.Some(2),
	})
	require.NoError(t, err)

	events, err := svc.Events(ctx, ms(2025, 10, 1, 0, 0), ms(2026, 1, 1, 0, 0))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "id-2", events[0].ID)
	assert.Equal(t, ms(2025, 10, 10, 10, 0), events[1].StartAt)
}

func TestEventsCountExhaustedLeavesAnchorOnly(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, _, err := svc.BookRecurring(ctx, schedule.RecurringBooking{
		ClientID: "c", StartAt: ms(2025, 10, 8, 10, 0), DurationMin: 50,
		RRule: "FREQ=WEEKLY", Count: mo.Some(1),
	})
	require.NoError(t, err)

	events, err := svc.Events(ctx, ms(2025, 10, 1, 0, 0), ms(2026, 1, 1, 0, 0))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "id-2", events[0].ID)
}

func TestResolveOccurrence(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	series, anchor := wednesdays(t, svc, "FREQ=WEEKLY;BYDAY=WE")

	occ, err := svc.ResolveOccurrence(ctx, "id-1:1760522400000")
	require.NoError(t, err)
	v, ok := occ.(schedule.Virtual)
	require.True(t, ok)
	assert.Equal(t, secondWednesday, v.Instance.StartAt)

	occ, err = svc.ResolveOccurrence(ctx, schedule.VirtualEventID(series.ID, series.DTStart))
	require.NoError(t, err)
	a, ok := occ.(schedule.Anchor)
	require.True(t, ok)
	assert.Equal(t, anchor.ID, a.Appointment.ID)

	occ, err = svc.ResolveOccurrence(ctx, anchor.ID)
	require.NoError(t, err)
	assert.IsType(t, schedule.Anchor{}, occ)

	_, err = svc.ResolveOccurrence(ctx, schedule.VirtualEventID(series.ID, ms(2025, 10, 16, 10, 0)))
	assert.ErrorIs(t, err, schedule.ErrUnknownOccurrence)

	_, err = svc.ResolveOccurrence(ctx, "nope:1760522400000")
	assert.ErrorIs(t, err, schedule.ErrUnknownSeries)

	_, err = svc.ResolveOccurrence(ctx, "missing")
	assert.ErrorIs(t, err, schedule.ErrUnknownAppointment)
}

func TestRescheduleThisVirtual(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	wednesdays(t, svc, "FREQ=WEEKLY;BYDAY=WE")

	occ, err := svc.Reschedule(ctx, "id-1:1760522400000", schedule.Edit{
		Scope:   schedule.ScopeThis,
		StartAt: ms(2025, 10, 16, 14, 0),
	})
	require.NoError(t, err)
	ev := occ.Event()
	assert.Equal(t, "id-1:1760522400000", ev.ID)
	assert.Equal(t, ms(2025, 10, 16, 14, 0), ev.StartAt)
	assert.Equal(t, ms(2025, 10, 16, 14, 50), ev.EndAt)

	events, err := svc.Events(ctx, ms(2025, 10, 13, 0, 0), ms(2025, 10, 19, 23, 59))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "id-1:1760522400000", events[0].ID)
	assert.Equal(t, ms(2025, 10, 16, 14, 0), events[0].StartAt)
	assert.Equal(t, mo.Some(secondWednesday), events[0].OriginalInstanceAt)

	// A second move replaces the exception rather than adding one.
	_, err = svc.Reschedule(ctx, "id-1:1760522400000", schedule.Edit{
		StartAt: ms(2025, 10, 17, 9, 0),
		EndAt:   mo.Some(ms(2025, 10, 17, 10, 0)),
	})
	require.NoError(t, err)
	exceptions, err := store.ListExceptions(ctx, "id-1")
	require.NoError(t, err)
	require.Len(t, exceptions, 1)
	assert.Equal(t, mo.Some(ms(2025, 10, 17, 10, 0)), exceptions[0].NewEndAt)
	assert.Equal(t, "id-3", exceptions[0].ID)
}

func TestRescheduleRejectsInvertedTimes(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	wednesdays(t, svc, "FREQ=WEEKLY;BYDAY=WE")

	_, err := svc.Reschedule(ctx, "id-1:1760522400000", schedule.Edit{
		StartAt: ms(2025, 10, 16, 14, 0),
		EndAt:   mo.Some(ms(2025, 10, 16, 13, 0)),
	})
	assert.ErrorIs(t, err, schedule.ErrInvalidTimes)
}

func TestRescheduleThisAnchorKeepsNominal(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	series, _ := wednesdays(t, svc, "FREQ=WEEKLY;BYDAY=WE")

	occ, err := svc.Reschedule(ctx, "id-2", schedule.Edit{Scope: schedule.ScopeThis, StartAt: ms(2025, 10, 9, 9, 0)})
	require.NoError(t, err)
	a, ok := occ.(schedule.Anchor)
	require.True(t, ok)
	assert.Equal(t, ms(2025, 10, 9, 9, 0), a.Appointment.StartAt)
	assert.Equal(t, ms(2025, 10, 9, 9, 50), a.Appointment.EndAt)
	assert.Equal(t, mo.Some(series.DTStart), a.Appointment.OriginalInstanceAt)
	assert.Equal(t, series.DTStart, a.Series.DTStart, "series untouched")

	events, err := svc.Events(ctx, ms(2025, 10, 6, 0, 0), ms(2025, 10, 12, 23, 59))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "id-2", events[0].ID)
}

func TestRescheduleSeriesFromVirtual(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	wednesdays(t, svc, "FREQ=WEEKLY")

	// A one hour later Thursday slot shifts the whole series by 25h.
	occ, err := svc.Reschedule(ctx, "id-1:1760522400000", schedule.Edit{Scope: schedule.ScopeSeries, StartAt: ms(2025, 10, 16, 11, 0)})
	require.NoError(t, err)
	assert.Equal(t, schedule.VirtualEventID("id-1", ms(2025, 10, 16, 11, 0)), occ.Event().ID)

	series, err := store.GetSeries(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, ms(2025, 10, 9, 11, 0), series.DTStart)

	anchor, err := store.GetAnchor(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, series.DTStart, anchor.StartAt)
	assert.Equal(t, ms(2025, 10, 9, 11, 50), anchor.EndAt)

	events, err := svc.Events(ctx, ms(2025, 10, 13, 0, 0), ms(2025, 10, 19, 23, 59))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ms(2025, 10, 16, 11, 0), events[0].StartAt)
}

func TestRescheduleSeriesKeepsExceptions(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	wednesdays(t, svc, "FREQ=WEEKLY;BYDAY=WE")
	require.NoError(t, svc.Cancel(ctx, "id-1:1760522400000"))

	occ, err := svc.Reschedule(ctx, "id-2", schedule.Edit{Scope: schedule.ScopeSeries, StartAt: ms(2025, 10, 8, 12, 0)})
	require.NoError(t, err)
	assert.Equal(t, "id-2", occ.Event().ID)
	assert.Equal(t, ms(2025, 10, 8, 12, 0), occ.Event().StartAt)

	exceptions, err := store.ListExceptions(ctx, "id-1")
	require.NoError(t, err)
	require.Len(t, exceptions, 1)
	assert.Equal(t, secondWednesday, exceptions[0].OriginalInstanceAt)
}

func TestRescheduleOneOff(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	a, err := svc.BookOneOff(ctx, schedule.Appointment{ClientID: "c", StartAt: 1000, EndAt: 2000})
	require.NoError(t, err)

	_, err = svc.Reschedule(ctx, a.ID, schedule.Edit{Scope: schedule.ScopeSeries, StartAt: 5000})
	assert.ErrorIs(t, err, schedule.ErrInvalidScope)

	occ, err := svc.Reschedule(ctx, a.ID, schedule.Edit{StartAt: 5000})
	require.NoError(t, err)
	o, ok := occ.(schedule.OneOff)
	require.True(t, ok)
	assert.Equal(t, int64(5000), o.Appointment.StartAt)
	assert.Equal(t, int64(6000), o.Appointment.EndAt)
	assert.True(t, o.Appointment.OriginalInstanceAt.IsAbsent())
}

func TestCancelVirtual(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	wednesdays(t, svc, "FREQ=WEEKLY;BYDAY=WE")
	require.NoError(t, svc.Cancel(ctx, "id-1:1760522400000"))

	for _, w := range [][2]int64{
		{ms(2025, 10, 13, 0, 0), ms(2025, 10, 19, 23, 59)},
		{secondWednesday, secondWednesday},
		{ms(2025, 1, 1, 0, 0), ms(2026, 1, 1, 0, 0)},
	} {
		events, err := svc.Events(ctx, w[0], w[1])
		require.NoError(t, err)
		for _, ev := range events {
			assert.NotEqual(t, "id-1:1760522400000", ev.ID)
		}
	}

	_, exceptions, err := svc.Series(ctx, "id-1")
	require.NoError(t, err)
	require.Len(t, exceptions, 1)
	assert.Equal(t, schedule.ExceptionCanceled, exceptions[0].Status)
	assert.True(t, exceptions[0].NewStartAt.IsAbsent())
}

func TestCancelPersisted(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	wednesdays(t, svc, "FREQ=WEEKLY;BYDAY=WE")

	require.NoError(t, svc.Cancel(ctx, "id-2"))
	a, err := svc.Appointment(ctx, "id-2")
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCanceled, a.Status)

	// The series keeps producing its later instances.
	events, err := svc.Events(ctx, ms(2025, 10, 6, 0, 0), ms(2025, 10, 19, 23, 59))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, schedule.StatusCanceled, events[0].Status)
}

type recordingHook struct {
	calls []schedule.Appointment
	err   error
}

func (h *recordingHook) AppointmentCompleted(_ context.Context, a schedule.Appointment) error {
	h.calls = append(h.calls, a)
	return h.err
}

func TestSetStatusNotifiesOnCompletion(t *testing.T) {
	ctx := context.Background()
	hook := &recordingHook{}
	svc, _ := newService(t, schedule.WithCompletionHook(hook))
	wednesdays(t, svc, "FREQ=WEEKLY;BYDAY=WE")

	a, err := svc.SetStatus(ctx, "id-2", "completed")
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCompleted, a.Status)
	require.Len(t, hook.calls, 1)
	assert.Equal(t, "id-2", hook.calls[0].ID)
	assert.Equal(t, schedule.StatusCompleted, hook.calls[0].Status)

	_, err = svc.SetStatus(ctx, "id-2", "COMPLETED")
	require.NoError(t, err)
	assert.Len(t, hook.calls, 1, "no notification without a transition")

	_, err = svc.SetStatus(ctx, "id-2", "scheduled")
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, "id-2", "completed")
	require.NoError(t, err)
	assert.Len(t, hook.calls, 2)
}

func TestSetStatusHookFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	hook := &recordingHook{err: errors.New("note service down")}
	svc, _ := newService(t, schedule.WithCompletionHook(hook))
	a, err := svc.BookOneOff(ctx, schedule.Appointment{ClientID: "c", StartAt: 1000, EndAt: 2000})
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, a.ID, "completed")
	require.NoError(t, err)
	assert.Len(t, hook.calls, 1)

	stored, err := svc.Appointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCompleted, stored.Status)
}

func TestSetStatusVirtual(t *testing.T) {
	ctx := context.Background()
	hook := &recordingHook{}
	svc, _ := newService(t, schedule.WithCompletionHook(hook))
	wednesdays(t, svc, "FREQ=WEEKLY;BYDAY=WE")

	_, err := svc.SetStatus(ctx, "id-1:1760522400000", "completed")
	assert.ErrorIs(t, err, schedule.ErrVirtualOccurrence)
	assert.Empty(t, hook.calls)

	_, err = svc.SetStatus(ctx, "id-1:1760522400000", "canceled")
	require.NoError(t, err)
	events, err := svc.Events(ctx, ms(2025, 10, 13, 0, 0), ms(2025, 10, 19, 23, 59))
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = svc.SetStatus(ctx, "id-2", "finished")
	assert.ErrorIs(t, err, schedule.ErrInvalidStatus)
}

func TestDeleteAnchorRemovesSeries(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	wednesdays(t, svc, "FREQ=WEEKLY;BYDAY=WE")
	require.NoError(t, svc.Cancel(ctx, "id-1:1760522400000"))

	assert.ErrorIs(t, svc.Delete(ctx, "id-1:1761127200000"), schedule.ErrVirtualOccurrence)

	require.NoError(t, svc.Delete(ctx, "id-2"))
	_, _, err := svc.Series(ctx, "id-1")
	assert.ErrorIs(t, err, schedule.ErrUnknownSeries)

	events, err := svc.Events(ctx, ms(2025, 1, 1, 0, 0), ms(2026, 1, 1, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.ErrorIs(t, svc.Delete(ctx, "id-2"), schedule.ErrUnknownAppointment)
}

func TestParseScope(t *testing.T) {
	for in, want := range map[string]schedule.Scope{
		"":       schedule.ScopeThis,
		"this":   schedule.ScopeThis,
		"SERIES": schedule.ScopeSeries,
	} {
		got, err := schedule.ParseScope(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := schedule.ParseScope("following")
	assert.ErrorIs(t, err, schedule.ErrInvalidScope)
}
