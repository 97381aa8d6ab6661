package schedule

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

// SeriesWithExceptions pairs a series with its indexed exceptions.
type SeriesWithExceptions struct {
	Series     Series
	Exceptions ExceptionIndex
}

// Merge combines persisted appointments with the overlaid instances of each
// series into one feed, stable-sorted by start. Appointments come first on
// ties, then series in the given order. Instance zero of every series is
// left to its anchor row and never emitted as a virtual occurrence.
func Merge(appointments []Appointment, series []SeriesWithExceptions, windowStart, windowEnd int64) []Occurrence {
	out := make([]Occurrence, 0, len(appointments))
	seriesByID := make(map[string]Series, len(series))
	for _, s := range series {
		seriesByID[s.Series.ID] = s.Series
	}

	for _, a := range appointments {
		if sid, ok := a.RecurringSeriesID.Get(); ok {
			out = append(out, Anchor{Appointment: a, Series: seriesByID[sid]})
			continue
		}
		out = append(out, OneOff{Appointment: a})
	}

	for _, s := range series {
		instances := Generate(s.Series, windowStart, windowEnd)
		for _, inst := range Overlay(instances, s.Exceptions) {
			if inst.OriginalInstanceAt == s.Series.DTStart {
				continue
			}
			out = append(out, Virtual{Series: s.Series, Instance: inst})
		}
	}

	slices.SortStableFunc(out, func(a, b Occurrence) int {
		return cmp.Compare(a.Event().StartAt, b.Event().StartAt)
	})
	return out
}

// Events answers a window query against the stores.
func Events(ctx context.Context, store Store, windowStart, windowEnd int64) ([]CalendarEvent, error) {
	occurrences, err := Occurrences(ctx, store, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	events := make([]CalendarEvent, len(occurrences))
	for i, o := range occurrences {
		events[i] = o.Event()
	}
	return events, nil
}

// Occurrences is Events without the projection to CalendarEvent.
func Occurrences(ctx context.Context, store Store, windowStart, windowEnd int64) ([]Occurrence, error) {
	if windowStart > windowEnd {
		return nil, fmt.Errorf("%w: start %d is after end %d", ErrInvalidWindow, windowStart, windowEnd)
	}

	appointments, err := store.ListAppointmentsInRange(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	seriesList, err := store.ListSeriesInRange(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}

	expanded := make([]SeriesWithExceptions, 0, len(seriesList))
	for _, s := range seriesList {
		exceptions, err := store.ListExceptions(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("list exceptions for series %s: %w", s.ID, err)
		}
		if s.Rule == nil {
			s.Compile()
		}
		expanded = append(expanded, SeriesWithExceptions{Series: s, Exceptions: IndexExceptions(exceptions)})
	}

	return Merge(appointments, expanded, windowStart, windowEnd), nil
}
