// Package memory is an in-memory schedule.Store for tests and local runs.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/mo"

	"caseload-scheduler/internal/schedule"
)

type exceptionKey struct {
	seriesID           string
	originalInstanceAt int64
}

// Store implements schedule.Store using maps behind one RWMutex, so every
// multi-row edit is atomic with respect to readers.
type Store struct {
	mu           sync.RWMutex
	appointments map[string]schedule.Appointment
	series       map[string]schedule.Series
	seriesOrder  []string
	exceptions   map[exceptionKey]schedule.Exception
}

// New creates an empty store.
func New() *Store {
	return &Store{
		appointments: make(map[string]schedule.Appointment),
		series:       make(map[string]schedule.Series),
		exceptions:   make(map[exceptionKey]schedule.Exception),
	}
}

// Appointment operations

func (s *Store) GetAppointment(_ context.Context, id string) (schedule.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.appointments[id]
	if !ok {
		return schedule.Appointment{}, fmt.Errorf("%w: %s", schedule.ErrUnknownAppointment, id)
	}
	return a, nil
}

func (s *Store) ListAppointmentsInRange(_ context.Context, from, to int64) ([]schedule.Appointment, error) {
	return s.listAppointments(func(a schedule.Appointment) bool {
		return a.StartAt >= from && a.StartAt <= to
	}), nil
}

func (s *Store) ListFeedAppointments(_ context.Context) ([]schedule.Appointment, error) {
	return s.listAppointments(func(a schedule.Appointment) bool {
		return a.Status != schedule.StatusCanceled
	}), nil
}

func (s *Store) listAppointments(keep func(schedule.Appointment) bool) []schedule.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []schedule.Appointment
	for _, a := range s.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b schedule.Appointment) int {
		if c := cmp.Compare(a.StartAt, b.StartAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (s *Store) CreateAppointment(_ context.Context, a schedule.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.appointments[a.ID]; exists {
		return fmt.Errorf("%w: appointment %s exists", schedule.ErrConflict, a.ID)
	}
	s.appointments[a.ID] = a
	return nil
}

func (s *Store) UpdateAppointmentTimes(_ context.Context, id string, startAt, endAt int64, originalInstanceAt mo.Option[int64]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return fmt.Errorf("%w: %s", schedule.ErrUnknownAppointment, id)
	}
	a.StartAt, a.EndAt = startAt, endAt
	if originalInstanceAt.IsPresent() {
		a.OriginalInstanceAt = originalInstanceAt
	}
	s.appointments[id] = a
	return nil
}

func (s *Store) UpdateAppointmentStatus(_ context.Context, id string, status schedule.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return fmt.Errorf("%w: %s", schedule.ErrUnknownAppointment, id)
	}
	a.Status = status
	s.appointments[id] = a
	return nil
}

func (s *Store) DeleteAppointment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return fmt.Errorf("%w: %s", schedule.ErrUnknownAppointment, id)
	}
	delete(s.appointments, id)

	if seriesID, ok := a.RecurringSeriesID.Get(); ok {
		delete(s.series, seriesID)
		s.seriesOrder = slices.DeleteFunc(s.seriesOrder, func(sid string) bool { return sid == seriesID })
		for k := range s.exceptions {
			if k.seriesID == seriesID {
				delete(s.exceptions, k)
			}
		}
	}
	return nil
}

// Series operations

func (s *Store) GetSeries(_ context.Context, id string) (schedule.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.series[id]
	if !ok {
		return schedule.Series{}, fmt.Errorf("%w: %s", schedule.ErrUnknownSeries, id)
	}
	return series, nil
}

func (s *Store) GetAnchor(_ context.Context, seriesID string) (schedule.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.appointments {
		if sid, ok := a.RecurringSeriesID.Get(); ok && sid == seriesID {
			return a, nil
		}
	}
	return schedule.Appointment{}, fmt.Errorf("%w: anchor of series %s", schedule.ErrUnknownAppointment, seriesID)
}

func (s *Store) ListSeriesInRange(_ context.Context, from, to int64) ([]schedule.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []schedule.Series
	for _, id := range s.seriesOrder {
		series := s.series[id]
		if series.DTStart > to {
			continue
		}
		if until, ok := series.UntilAt.Get(); ok && until < from {
			continue
		}
		out = append(out, series)
	}
	return out, nil
}

func (s *Store) CreateRecurring(_ context.Context, series schedule.Series, anchor schedule.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.series[series.ID]; exists {
		return fmt.Errorf("%w: series %s exists", schedule.ErrConflict, series.ID)
	}
	if _, exists := s.appointments[anchor.ID]; exists {
		return fmt.Errorf("%w: appointment %s exists", schedule.ErrConflict, anchor.ID)
	}
	series.Compile()
	s.series[series.ID] = series
	s.seriesOrder = append(s.seriesOrder, series.ID)
	s.appointments[anchor.ID] = anchor
	return nil
}

func (s *Store) ShiftSeries(_ context.Context, seriesID string, deltaMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, ok := s.series[seriesID]
	if !ok {
		return fmt.Errorf("%w: %s", schedule.ErrUnknownSeries, seriesID)
	}
	var (
		anchor schedule.Appointment
		found  bool
	)
	for _, a := range s.appointments {
		if sid, ok := a.RecurringSeriesID.Get(); ok && sid == seriesID {
			anchor, found = a, true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: anchor of series %s", schedule.ErrUnknownAppointment, seriesID)
	}

	series.DTStart += deltaMs
	series.Compile()
	anchor.StartAt += deltaMs
	anchor.EndAt += deltaMs
	if at, ok := anchor.OriginalInstanceAt.Get(); ok {
		anchor.OriginalInstanceAt = mo.Some(at + deltaMs)
	}
	s.series[seriesID] = series
	s.appointments[anchor.ID] = anchor
	return nil
}

// Exception operations

func (s *Store) ListExceptions(_ context.Context, seriesID string) ([]schedule.Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []schedule.Exception
	for k, ex := range s.exceptions {
		if k.seriesID == seriesID {
			out = append(out, ex)
		}
	}
	slices.SortFunc(out, func(a, b schedule.Exception) int {
		return cmp.Compare(a.OriginalInstanceAt, b.OriginalInstanceAt)
	})
	return out, nil
}

func (s *Store) PutException(_ context.Context, ex schedule.Exception) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.series[ex.RecurringSeriesID]; !ok {
		return fmt.Errorf("%w: %s", schedule.ErrUnknownSeries, ex.RecurringSeriesID)
	}
	key := exceptionKey{seriesID: ex.RecurringSeriesID, originalInstanceAt: ex.OriginalInstanceAt}
	if prev, ok := s.exceptions[key]; ok {
		ex.ID = prev.ID
	}
	s.exceptions[key] = ex
	return nil
}

var _ schedule.Store = (*Store)(nil)
