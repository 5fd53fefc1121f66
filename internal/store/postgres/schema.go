package postgres

import (
	"context"
	"fmt"
)

// schema is applied idempotently at startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		email      TEXT NOT NULL,
		name       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id           TEXT PRIMARY KEY,
		title        TEXT NOT NULL,
		city         TEXT NOT NULL DEFAULT '',
		start_at     TIMESTAMPTZ NOT NULL,
		seats        INTEGER NOT NULL CHECK (seats > 0),
		status       TEXT NOT NULL DEFAULT 'expected',
		organizer_id TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_status_start ON events (status, start_at)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		event_id     TEXT NOT NULL REFERENCES events (id),
		created_at   TIMESTAMPTZ NOT NULL,
		cancelled_at TIMESTAMPTZ,
		UNIQUE (user_id, event_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_event_active
		ON bookings (event_id) WHERE cancelled_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		event_id      TEXT NOT NULL,
		type          TEXT NOT NULL,
		message       TEXT NOT NULL DEFAULT '',
		is_sent       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL,
		sent_at       TIMESTAMPTZ,
		error_message TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_event_type
		ON notifications (event_id, type, created_at)`,
	`CREATE TABLE IF NOT EXISTS ratings (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		event_id   TEXT NOT NULL REFERENCES events (id),
		score      INTEGER NOT NULL CHECK (score BETWEEN 1 AND 5),
		comment    TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (user_id, event_id)
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		subject    TEXT NOT NULL DEFAULT '',
		args       JSONB NOT NULL DEFAULT '{}',
		run_at     TIMESTAMPTZ NOT NULL,
		status     TEXT NOT NULL DEFAULT 'pending',
		attempts   INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks (status, run_at)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_subject ON tasks (name, subject, created_at)`,
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
