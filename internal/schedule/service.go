package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	appLog "caseload-scheduler/internal/log"
)

// Scope says how much of a series an edit touches.
type Scope string

const (
	ScopeThis   Scope = "this"
	ScopeSeries Scope = "series"
)

// ParseScope defaults an empty scope to ScopeThis.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(strings.ToLower(strings.TrimSpace(s))); sc {
	case "":
		return ScopeThis, nil
	case ScopeThis, ScopeSeries:
		return sc, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
}

// Edit is a reschedule request. EndAt defaults to keeping the duration.
// With ScopeSeries only StartAt is used.
type Edit struct {
	Scope   Scope
	StartAt int64
	EndAt   mo.Option[int64]
}

// RecurringBooking creates a series together with its anchor.
type RecurringBooking struct {
	ClientID    string
	StartAt     int64
	DurationMin int
	RRule       string
	UntilAt     mo.Option[int64]
	Count       mo.Option[int]
	Note        string
}

// CompletionHook is notified after an appointment becomes completed.
type CompletionHook interface {
	AppointmentCompleted(ctx context.Context, a Appointment) error
}

// CompletionHookFunc adapts a function to CompletionHook.
type CompletionHookFunc func(ctx context.Context, a Appointment) error

func (f CompletionHookFunc) AppointmentCompleted(ctx context.Context, a Appointment) error {
	return f(ctx, a)
}

// LabelFunc renders the display label of an exported appointment.
type LabelFunc func(ctx context.Context, a Appointment) string

// DefaultLabel names the client the session is with.
func DefaultLabel(_ context.Context, a Appointment) string {
	return "Session " + a.ClientID
}

// DefaultMaxWindow bounds the span of one window query.
const DefaultMaxWindow = 3 * 366 * 24 * time.Hour

// Service implements bookings, edits and exports over a Store.
type Service struct {
	store     Store
	hooks     []CompletionHook
	label     LabelFunc
	prodID    string
	maxWindow time.Duration
	now       func() time.Time
	newID     func() string
}

// Option configures a Service.
type Option func(*Service)

func WithCompletionHook(h CompletionHook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, h) }
}

func WithLabel(f LabelFunc) Option {
	return func(s *Service) { s.label = f }
}

func WithProdID(id string) Option {
	return func(s *Service) { s.prodID = id }
}

// WithMaxWindow caps windowEnd - windowStart for Events.
func WithMaxWindow(d time.Duration) Option {
	return func(s *Service) { s.maxWindow = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService builds a Service on top of store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		label:     DefaultLabel,
		prodID:    DefaultProdID,
		maxWindow: DefaultMaxWindow,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events answers a window query no longer than the configured maximum.
func (s *Service) Events(ctx context.Context, windowStart, windowEnd int64) ([]CalendarEvent, error) {
	// The unsigned difference is exact for any ordered pair of int64 bounds.
	if windowStart <= windowEnd && uint64(windowEnd-windowStart) > uint64(s.maxWindow.Milliseconds()) {
		return nil, fmt.Errorf("%w: window longer than %s", ErrInvalidWindow, s.maxWindow)
	}
	return Events(ctx, s.store, windowStart, windowEnd)
}

// Appointment returns a persisted appointment.
func (s *Service) Appointment(ctx context.Context, id string) (Appointment, error) {
	return s.store.GetAppointment(ctx, id)
}

// Series returns a series with its exceptions.
func (s *Service) Series(ctx context.Context, id string) (Series, []Exception, error) {
	series, err := s.store.GetSeries(ctx, id)
	if err != nil {
		return Series{}, nil, err
	}
	exceptions, err := s.store.ListExceptions(ctx, id)
	if err != nil {
		return Series{}, nil, err
	}
	return series, exceptions, nil
}

// BookOneOff stores an appointment that belongs to no series.
func (s *Service) BookOneOff(ctx context.Context, a Appointment) (Appointment, error) {
	a.ID = s.newID()
	a.RecurringSeriesID = mo.None[string]()
	a.OriginalInstanceAt = mo.None[int64]()
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if err := a.Validate(); err != nil {
		return Appointment{}, err
	}
	if err := s.store.CreateAppointment(ctx, a); err != nil {
		return Appointment{}, err
	}
	return a, nil
}

// BookRecurring creates a series starting at b.StartAt and its anchor.
func (s *Service) BookRecurring(ctx context.Context, b RecurringBooking) (Series, Appointment, error) {
	if b.DurationMin <= 0 {
		return Series{}, Appointment{}, fmt.Errorf("%w: duration must be positive", ErrInvalidTimes)
	}
	if until, ok := b.UntilAt.Get(); ok && until < b.StartAt {
		return Series{}, Appointment{}, fmt.Errorf("%w: until_at is before start_at", ErrInvalidTimes)
	}
	if count, ok := b.Count.Get(); ok && count <= 0 {
		return Series{}, Appointment{}, fmt.Errorf("%w: count must be positive", ErrInvalidTimes)
	}

	series := Series{
		ID:          s.newID(),
		ClientID:    b.ClientID,
		RRule:       b.RRule,
		DTStart:     b.StartAt,
		DurationMin: b.DurationMin,
		UntilAt:     b.UntilAt,
		Count:       b.Count,
	}
	anchor := Appointment{
		ID:                s.newID(),
		ClientID:          b.ClientID,
		StartAt:           series.DTStart,
		EndAt:             series.DTStart + series.durationMs(),
		Status:            StatusScheduled,
		RecurringSeriesID: mo.Some(series.ID),
		Note:              b.Note,
	}
	if err := s.store.CreateRecurring(ctx, series, anchor); err != nil {
		return Series{}, Appointment{}, err
	}
	series.Compile()
	return series, anchor, nil
}

// ResolveOccurrence decodes a CalendarEvent id. A synthetic id must name a
// slot the series really produces; its instance zero resolves to the anchor.
func (s *Service) ResolveOccurrence(ctx context.Context, eventID string) (Occurrence, error) {
	if seriesID, at, ok := ParseVirtualEventID(eventID); ok {
		series, err := s.store.GetSeries(ctx, seriesID)
		if err != nil {
			return nil, err
		}
		series.Compile()
		if at == series.DTStart {
			anchor, err := s.store.GetAnchor(ctx, series.ID)
			if err != nil {
				return nil, err
			}
			return Anchor{Appointment: anchor, Series: series}, nil
		}
		if !IsInstance(series, at) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownOccurrence, eventID)
		}
		exceptions, err := s.store.ListExceptions(ctx, series.ID)
		if err != nil {
			return nil, err
		}
		inst := Instance{OriginalInstanceAt: at, StartAt: at, EndAt: at + series.durationMs()}
		if overlaid := Overlay([]Instance{inst}, IndexExceptions(exceptions)); len(overlaid) == 1 {
			inst = overlaid[0]
		}
		return Virtual{Series: series, Instance: inst}, nil
	}

	a, err := s.store.GetAppointment(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if seriesID, ok := a.RecurringSeriesID.Get(); ok {
		series, err := s.store.GetSeries(ctx, seriesID)
		if err != nil {
			return nil, err
		}
		series.Compile()
		return Anchor{Appointment: a, Series: series}, nil
	}
	return OneOff{Appointment: a}, nil
}

// Reschedule moves an occurrence. ScopeThis moves one row or records a
// Moved exception. ScopeSeries shifts the whole series by the distance
// between the occurrence's nominal slot and edit.StartAt.
func (s *Service) Reschedule(ctx context.Context, eventID string, edit Edit) (Occurrence, error) {
	occ, err := s.ResolveOccurrence(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if edit.Scope == "" {
		edit.Scope = ScopeThis
	}

	switch o := occ.(type) {
	case OneOff:
		if edit.Scope != ScopeThis {
			return nil, fmt.Errorf("%w: %s applies to recurring appointments only", ErrInvalidScope, edit.Scope)
		}
		if err := s.moveAppointment(ctx, o.Appointment, edit, mo.None[int64]()); err != nil {
			return nil, err
		}
		return s.ResolveOccurrence(ctx, o.Appointment.ID)

	case Anchor:
		if edit.Scope == ScopeSeries {
			return s.shiftSeries(ctx, o.Series, o.Series.DTStart, edit.StartAt)
		}
		nominal := o.Appointment.OriginalInstanceAt.OrElse(o.Series.DTStart)
		if err := s.moveAppointment(ctx, o.Appointment, edit, mo.Some(nominal)); err != nil {
			return nil, err
		}
		return s.ResolveOccurrence(ctx, o.Appointment.ID)

	case Virtual:
		if edit.Scope == ScopeSeries {
			return s.shiftSeries(ctx, o.Series, o.Instance.OriginalInstanceAt, edit.StartAt)
		}
		end := edit.EndAt.OrElse(edit.StartAt + (o.Instance.EndAt - o.Instance.StartAt))
		if end <= edit.StartAt {
			return nil, fmt.Errorf("%w: end_at must be after start_at", ErrInvalidTimes)
		}
		ex := Exception{
			ID:                 s.newID(),
			RecurringSeriesID:  o.Series.ID,
			OriginalInstanceAt: o.Instance.OriginalInstanceAt,
			NewStartAt:         mo.Some(edit.StartAt),
			NewEndAt:           mo.Some(end),
			Status:             ExceptionMoved,
		}
		if err := s.store.PutException(ctx, ex); err != nil {
			return nil, err
		}
		return s.ResolveOccurrence(ctx, eventID)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOccurrence, eventID)
}

func (s *Service) moveAppointment(ctx context.Context, a Appointment, edit Edit, original mo.Option[int64]) error {
	end := edit.EndAt.OrElse(edit.StartAt + (a.EndAt - a.StartAt))
	if end <= edit.StartAt {
		return fmt.Errorf("%w: end_at must be after start_at", ErrInvalidTimes)
	}
	return s.store.UpdateAppointmentTimes(ctx, a.ID, edit.StartAt, end, original)
}

func (s *Service) shiftSeries(ctx context.Context, series Series, nominal, newStart int64) (Occurrence, error) {
	delta := newStart - nominal
	if err := s.store.ShiftSeries(ctx, series.ID, delta); err != nil {
		return nil, err
	}
	occ, err := s.ResolveOccurrence(ctx, VirtualEventID(series.ID, nominal+delta))
	if errors.Is(err, ErrUnknownOccurrence) {
		// An explicit BYDAY can leave the shifted slot off the rule.
		return s.ResolveOccurrence(ctx, VirtualEventID(series.ID, series.DTStart+delta))
	}
	return occ, err
}

// Cancel cancels a single occurrence. Persisted rows change status; a
// virtual occurrence gets a Canceled exception.
func (s *Service) Cancel(ctx context.Context, eventID string) error {
	occ, err := s.ResolveOccurrence(ctx, eventID)
	if err != nil {
		return err
	}
	switch o := occ.(type) {
	case OneOff:
		return s.store.UpdateAppointmentStatus(ctx, o.Appointment.ID, StatusCanceled)
	case Anchor:
		return s.store.UpdateAppointmentStatus(ctx, o.Appointment.ID, StatusCanceled)
	case Virtual:
		return s.store.PutException(ctx, Exception{
			ID:                 s.newID(),
			RecurringSeriesID:  o.Series.ID,
			OriginalInstanceAt: o.Instance.OriginalInstanceAt,
			Status:             ExceptionCanceled,
		})
	}
	return fmt.Errorf("%w: %s", ErrUnknownOccurrence, eventID)
}

// SetStatus transitions a persisted appointment and notifies completion
// hooks on a change into completed. Virtual occurrences accept canceled
// only, which is recorded as an exception.
func (s *Service) SetStatus(ctx context.Context, eventID, raw string) (Appointment, error) {
	status, err := ParseStatus(raw)
	if err != nil {
		return Appointment{}, err
	}
	occ, err := s.ResolveOccurrence(ctx, eventID)
	if err != nil {
		return Appointment{}, err
	}

	var a Appointment
	switch o := occ.(type) {
	case OneOff:
		a = o.Appointment
	case Anchor:
		a = o.Appointment
	case Virtual:
		if status != StatusCanceled {
			return Appointment{}, fmt.Errorf("%w: %s cannot become %s", ErrVirtualOccurrence, eventID, status)
		}
		return Appointment{}, s.Cancel(ctx, eventID)
	}

	prev := a.Status
	if err := s.store.UpdateAppointmentStatus(ctx, a.ID, status); err != nil {
		return Appointment{}, err
	}
	a.Status = status
	if prev != StatusCompleted && status == StatusCompleted {
		s.notifyCompleted(ctx, a)
	}
	return a, nil
}

func (s *Service) notifyCompleted(ctx context.Context, a Appointment) {
	for _, h := range s.hooks {
		if err := h.AppointmentCompleted(ctx, a); err != nil {
			appLog.Error("completion hook failed", err, "appointment_id", a.ID)
		}
	}
}

// Delete removes a persisted appointment. Virtual occurrences have no row.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, _, ok := ParseVirtualEventID(id); ok {
		return fmt.Errorf("%w: %s", ErrVirtualOccurrence, id)
	}
	return s.store.DeleteAppointment(ctx, id)
}

// ExportICS writes every non-canceled appointment as an iCalendar feed.
func (s *Service) ExportICS(ctx context.Context, w io.Writer) error {
	appointments, err := s.store.ListFeedAppointments(ctx)
	if err != nil {
		return fmt.Errorf("list feed appointments: %w", err)
	}

	entries := make([]FeedEntry, 0, len(appointments))
	for _, a := range appointments {
		entry := FeedEntry{Appointment: a, Label: s.label(ctx, a)}
		if seriesID, ok := a.RecurringSeriesID.Get(); ok {
			series, err := s.store.GetSeries(ctx, seriesID)
			switch {
			case errors.Is(err, ErrUnknownSeries):
				appLog.Warn("anchor without series", "appointment_id", a.ID, "series_id", seriesID)
			case err != nil:
				return fmt.Errorf("get series %s: %w", seriesID, err)
			default:
				entry.Series = &series
			}
		}
		entries = append(entries, entry)
	}

	return EncodeICS(w, FeedOptions{ProdID: s.prodID, Now: s.now()}, entries)
}
