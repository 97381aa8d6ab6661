package postgres

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS recurring_series (
    id           text PRIMARY KEY,
    client_id    text NOT NULL,
    rrule        text NOT NULL,
    dtstart      bigint NOT NULL,
    duration_min integer NOT NULL CHECK (duration_min > 0),
    until_at     bigint,
    count        integer CHECK (count > 0),
    created_at   timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS appointments (
    id                   text PRIMARY KEY,
    client_id            text NOT NULL,
    start_at             bigint NOT NULL,
    end_at               bigint NOT NULL,
    status               text NOT NULL CHECK (status IN ('scheduled', 'completed', 'canceled')),
    recurring_series_id  text UNIQUE REFERENCES recurring_series (id),
    original_instance_at bigint,
    note                 text NOT NULL DEFAULT '',
    created_at           timestamptz NOT NULL DEFAULT now(),
    CHECK (end_at > start_at)
);

CREATE INDEX IF NOT EXISTS appointments_start_at_idx ON appointments (start_at);

CREATE TABLE IF NOT EXISTS recurring_exceptions (
    id                   text PRIMARY KEY,
    recurring_series_id  text NOT NULL REFERENCES recurring_series (id) ON DELETE CASCADE,
    original_instance_at bigint NOT NULL,
    new_start_at         bigint,
    new_end_at           bigint,
    status               text NOT NULL CHECK (status IN ('moved', 'canceled')),
    UNIQUE (recurring_series_id, original_instance_at)
);
`

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, schema)
	return err
}
