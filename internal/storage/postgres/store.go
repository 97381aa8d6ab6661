// Package postgres is a schedule.Store backed by pgx. Multi-row edits run
// in one transaction so window queries never see half of an edit.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/mo"

	"caseload-scheduler/internal/schedule"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type Store struct {
	DB *pgxpool.Pool
}

// New connects a pool to dbURL.
func New(ctx context.Context, dbURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &Store{DB: pool}, nil
}

func (s *Store) Close() {
	s.DB.Close()
}

const appointmentCols = `id,client_id,start_at,end_at,status,recurring_series_id,original_instance_at,note`

func scanAppointment(row pgx.Row) (schedule.Appointment, error) {
	var (
		a        schedule.Appointment
		status   string
		seriesID *string
		original *int64
	)
	if err := row.Scan(&a.ID, &a.ClientID, &a.StartAt, &a.EndAt, &status, &seriesID, &original, &a.Note); err != nil {
		return schedule.Appointment{}, err
	}
	a.Status = schedule.Status(status)
	a.RecurringSeriesID = mo.PointerToOption(seriesID)
	a.OriginalInstanceAt = mo.PointerToOption(original)
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]schedule.Appointment, error) {
	defer rows.Close()

	var out []schedule.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func notFound(err, sentinel error, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	return err
}

func conflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", schedule.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func (s *Store) GetAppointment(ctx context.Context, id string) (schedule.Appointment, error) {
	q := `SELECT ` + appointmentCols + ` FROM appointments WHERE id=$1`
	a, err := scanAppointment(s.DB.QueryRow(ctx, q, id))
	if err != nil {
		return schedule.Appointment{}, notFound(err, schedule.ErrUnknownAppointment, id)
	}
	return a, nil
}

func (s *Store) ListAppointmentsInRange(ctx context.Context, from, to int64) ([]schedule.Appointment, error) {
	q := `SELECT ` + appointmentCols + ` FROM appointments
	      WHERE start_at >= $1 AND start_at <= $2
	      ORDER BY start_at, id`
	rows, err := s.DB.Query(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (s *Store) ListFeedAppointments(ctx context.Context) ([]schedule.Appointment, error) {
	q := `SELECT ` + appointmentCols + ` FROM appointments
	      WHERE status <> 'canceled'
	      ORDER BY start_at, id`
	rows, err := s.DB.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (s *Store) CreateAppointment(ctx context.Context, a schedule.Appointment) error {
	return insertAppointment(ctx, s.DB, a)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertAppointment(ctx context.Context, db execer, a schedule.Appointment) error {
	q := `INSERT INTO appointments (` + appointmentCols + `)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := db.Exec(ctx, q,
		a.ID, a.ClientID, a.StartAt, a.EndAt, string(a.Status),
		a.RecurringSeriesID.ToPointer(), a.OriginalInstanceAt.ToPointer(), a.Note)
	return conflict(err)
}

func (s *Store) UpdateAppointmentTimes(ctx context.Context, id string, startAt, endAt int64, originalInstanceAt mo.Option[int64]) error {
	q := `UPDATE appointments
	      SET start_at=$1, end_at=$2, original_instance_at=COALESCE($3, original_instance_at)
	      WHERE id=$4`
	res, err := s.DB.Exec(ctx, q, startAt, endAt, originalInstanceAt.ToPointer(), id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", schedule.ErrUnknownAppointment, id)
	}
	return nil
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id string, status schedule.Status) error {
	res, err := s.DB.Exec(ctx, `UPDATE appointments SET status=$1 WHERE id=$2`, string(status), id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", schedule.ErrUnknownAppointment, id)
	}
	return nil
}

func (s *Store) DeleteAppointment(ctx context.Context, id string) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var seriesID *string
	err = tx.QueryRow(ctx, `DELETE FROM appointments WHERE id=$1 RETURNING recurring_series_id`, id).Scan(&seriesID)
	if err != nil {
		return notFound(err, schedule.ErrUnknownAppointment, id)
	}
	if seriesID != nil {
		// exceptions go with the series via ON DELETE CASCADE
		if _, err := tx.Exec(ctx, `DELETE FROM recurring_series WHERE id=$1`, *seriesID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

const seriesCols = `id,client_id,rrule,dtstart,duration_min,until_at,count`

func scanSeries(row pgx.Row) (schedule.Series, error) {
	var (
		sr    schedule.Series
		until *int64
		count *int
	)
	if err := row.Scan(&sr.ID, &sr.ClientID, &sr.RRule, &sr.DTStart, &sr.DurationMin, &until, &count); err != nil {
		return schedule.Series{}, err
	}
	sr.UntilAt = mo.PointerToOption(until)
	sr.Count = mo.PointerToOption(count)
	sr.Compile()
	return sr, nil
}

func (s *Store) GetSeries(ctx context.Context, id string) (schedule.Series, error) {
	q := `SELECT ` + seriesCols + ` FROM recurring_series WHERE id=$1`
	sr, err := scanSeries(s.DB.QueryRow(ctx, q, id))
	if err != nil {
		return schedule.Series{}, notFound(err, schedule.ErrUnknownSeries, id)
	}
	return sr, nil
}

func (s *Store) GetAnchor(ctx context.Context, seriesID string) (schedule.Appointment, error) {
	q := `SELECT ` + appointmentCols + ` FROM appointments WHERE recurring_series_id=$1`
	a, err := scanAppointment(s.DB.QueryRow(ctx, q, seriesID))
	if err != nil {
		return schedule.Appointment{}, notFound(err, schedule.ErrUnknownAppointment, "anchor of series "+seriesID)
	}
	return a, nil
}

func (s *Store) ListSeriesInRange(ctx context.Context, from, to int64) ([]schedule.Series, error) {
	q := `SELECT ` + seriesCols + ` FROM recurring_series
	      WHERE dtstart <= $2 AND (until_at IS NULL OR until_at >= $1)
	      ORDER BY created_at, id`
	rows, err := s.DB.Query(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Series
	for rows.Next() {
		sr, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

func (s *Store) CreateRecurring(ctx context.Context, sr schedule.Series, anchor schedule.Appointment) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	q := `INSERT INTO recurring_series (` + seriesCols + `)
	      VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := tx.Exec(ctx, q,
		sr.ID, sr.ClientID, sr.RRule, sr.DTStart, sr.DurationMin,
		sr.UntilAt.ToPointer(), sr.Count.ToPointer()); err != nil {
		return conflict(err)
	}
	if err := insertAppointment(ctx, tx, anchor); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ShiftSeries(ctx context.Context, seriesID string, deltaMs int64) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx, `UPDATE recurring_series SET dtstart=dtstart+$1 WHERE id=$2`, deltaMs, seriesID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", schedule.ErrUnknownSeries, seriesID)
	}

	q := `UPDATE appointments
	      SET start_at=start_at+$1, end_at=end_at+$1, original_instance_at=original_instance_at+$1
	      WHERE recurring_series_id=$2`
	res, err = tx.Exec(ctx, q, deltaMs, seriesID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%w: anchor of series %s", schedule.ErrUnknownAppointment, seriesID)
	}
	return tx.Commit(ctx)
}

func (s *Store) ListExceptions(ctx context.Context, seriesID string) ([]schedule.Exception, error) {
	q := `SELECT id,recurring_series_id,original_instance_at,new_start_at,new_end_at,status
	      FROM recurring_exceptions WHERE recurring_series_id=$1
	      ORDER BY original_instance_at`
	rows, err := s.DB.Query(ctx, q, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Exception
	for rows.Next() {
		var (
			ex               schedule.Exception
			newStart, newEnd *int64
			status           string
		)
		if err := rows.Scan(&ex.ID, &ex.RecurringSeriesID, &ex.OriginalInstanceAt, &newStart, &newEnd, &status); err != nil {
			return nil, err
		}
		ex.NewStartAt = mo.PointerToOption(newStart)
		ex.NewEndAt = mo.PointerToOption(newEnd)
		ex.Status = schedule.ExceptionStatus(status)
		out = append(out, ex)
	}
	return out, rows.Err()
}

func (s *Store) PutException(ctx context.Context, ex schedule.Exception) error {
	q := `INSERT INTO recurring_exceptions
	      (id,recurring_series_id,original_instance_at,new_start_at,new_end_at,status)
	      VALUES ($1,$2,$3,$4,$5,$6)
	      ON CONFLICT (recurring_series_id, original_instance_at)
	      DO UPDATE SET new_start_at=EXCLUDED.new_start_at, new_end_at=EXCLUDED.new_end_at, status=EXCLUDED.status`
	_, err := s.DB.Exec(ctx, q,
		ex.ID, ex.RecurringSeriesID, ex.OriginalInstanceAt,
		ex.NewStartAt.ToPointer(), ex.NewEndAt.ToPointer(), string(ex.Status))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf("%w: %s", schedule.ErrUnknownSeries, ex.RecurringSeriesID)
	}
	return err
}

var _ schedule.Store = (*Store)(nil)
