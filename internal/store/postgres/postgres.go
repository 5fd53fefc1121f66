// Package postgres implements the store contract on PostgreSQL using pgx.
// Queries are built with goqu; the event-scoped critical section maps onto
// a row-level SELECT ... FOR UPDATE lock held until the transaction ends.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afisha-platform/booking-core/internal/model"
	"github.com/afisha-platform/booking-core/internal/store"
)

const dialect = "postgres"

// querier is the subset of pgx shared by the pool and a transaction, so
// the same query helpers serve both paths.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL-backed implementation of store.Store and
// queue.TaskStore.
type Store struct {
	pool *pgxpool.Pool
	sql  goqu.DialectWrapper
}

// New wraps a connection pool. Call Migrate before first use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, sql: goqu.Dialect(dialect)}
}

// WithEventTx implements store.Store.
func (s *Store) WithEventTx(ctx context.Context, eventID string, fn func(tx store.Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer pgtx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(&eventTx{q: pgtx, sql: s.sql}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// eventTx is the in-transaction view. Its EventForUpdate acquires the
// row-level lock that serializes all check-then-write sequences per event.
type eventTx struct {
	q   querier
	sql goqu.DialectWrapper
}

func (t *eventTx) EventForUpdate(ctx context.Context, eventID string) (*model.Event, error) {
	query, args, err := t.sql.From("events").
		Select("id", "title", "city", "start_at", "seats", "status", "organizer_id", "created_at").
		Where(goqu.C("id").Eq(eventID)).
		ForUpdate(exp.Wait).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build event lock query: %w", err)
	}
	event, err := scanEvent(t.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrEventNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}
	return event, nil
}

func (t *eventTx) ActiveBookingCount(ctx context.Context, eventID string) (int, error) {
	query, args, err := t.sql.From("bookings").
		Select(goqu.COUNT("*")).
		Where(goqu.C("event_id").Eq(eventID), goqu.C("cancelled_at").IsNull()).
		Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var count int
	if err := t.q.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active bookings: %w", err)
	}
	return count, nil
}

func (t *eventTx) UpsertActiveBooking(ctx context.Context, userID, eventID string, now time.Time) (*model.Booking, bool, error) {
	query, args, err := t.sql.From("bookings").
		Select("id", "user_id", "event_id", "created_at", "cancelled_at").
		Where(goqu.C("user_id").Eq(userID), goqu.C("event_id").Eq(eventID)).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, false, fmt.Errorf("build booking lookup: %w", err)
	}

	booking, err := scanBooking(t.q.QueryRow(ctx, query, args...))
	switch {
	case err == nil:
		if booking.IsActive() {
			return booking, false, nil
		}
		update, uargs, buildErr := t.sql.Update("bookings").
			Set(goqu.Record{"cancelled_at": nil}).
			Where(goqu.C("id").Eq(booking.ID)).
			Prepared(true).ToSQL()
		if buildErr != nil {
			return nil, false, fmt.Errorf("build booking reactivate: %w", buildErr)
		}
		if _, execErr := t.q.Exec(ctx, update, uargs...); execErr != nil {
			return nil, false, fmt.Errorf("reactivate booking: %w", execErr)
		}
		booking.CancelledAt = nil
		return booking, true, nil

	case errors.Is(err, pgx.ErrNoRows):
		booking = &model.Booking{
			ID:        uuid.New().String(),
			UserID:    userID,
			EventID:   eventID,
			CreatedAt: now,
		}
		insert, iargs, buildErr := t.sql.Insert("bookings").
			Rows(goqu.Record{
				"id":         booking.ID,
				"user_id":    booking.UserID,
				"event_id":   booking.EventID,
				"created_at": booking.CreatedAt,
			}).
			Prepared(true).ToSQL()
		if buildErr != nil {
			return nil, false, fmt.Errorf("build booking insert: %w", buildErr)
		}
		if _, execErr := t.q.Exec(ctx, insert, iargs...); execErr != nil {
			return nil, false, fmt.Errorf("insert booking: %w", execErr)
		}
		return booking, false, nil

	default:
		return nil, false, fmt.Errorf("load booking: %w", err)
	}
}

func (t *eventTx) CancelActiveBooking(ctx context.Context, userID, eventID string, now time.Time) (*model.Booking, error) {
	query, args, err := t.sql.Update("bookings").
		Set(goqu.Record{"cancelled_at": now}).
		Where(
			goqu.C("user_id").Eq(userID),
			goqu.C("event_id").Eq(eventID),
			goqu.C("cancelled_at").IsNull(),
		).
		Returning("id", "user_id", "event_id", "created_at", "cancelled_at").
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build booking cancel: %w", err)
	}
	booking, err := scanBooking(t.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrBookingNotFound
		}
		return nil, fmt.Errorf("cancel booking: %w", err)
	}
	return booking, nil
}

func (t *eventTx) SetEventStatus(ctx context.Context, eventID string, status model.EventStatus) error {
	query, args, err := t.sql.Update("events").
		Set(goqu.Record{"status": string(status)}).
		Where(goqu.C("id").Eq(eventID)).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build status update: %w", err)
	}
	if _, err := t.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	return nil
}

// ─── Plain (non-transactional) store methods ─────────────────────────────

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	query, args, err := s.sql.Insert("users").
		Rows(goqu.Record{"id": user.ID, "email": user.Email, "name": user.Name}).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build user insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	query, args, err := s.sql.From("users").
		Select("id", "email", "name").
		Where(goqu.C("id").Eq(id)).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build user query: %w", err)
	}
	var u model.User
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&u.ID, &u.Email, &u.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *Store) CreateEvent(ctx context.Context, event *model.Event) error {
	query, args, err := s.sql.Insert("events").
		Rows(goqu.Record{
			"id":           event.ID,
			"title":        event.Title,
			"city":         event.City,
			"start_at":     event.StartAt,
			"seats":        event.Seats,
			"status":       string(event.Status),
			"organizer_id": event.OrganizerID,
			"created_at":   event.CreatedAt,
		}).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build event insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	query, args, err := s.sql.From("events").
		Select("id", "title", "city", "start_at", "seats", "status", "organizer_id", "created_at").
		Where(goqu.C("id").Eq(id)).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build event query: %w", err)
	}
	event, err := scanEvent(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	query, args, err := s.sql.From("events").
		Select("id", "title", "city", "start_at", "seats", "status", "organizer_id", "created_at").
		Order(goqu.C("start_at").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build events query: %w", err)
	}
	return s.queryEvents(ctx, query, args)
}

func (s *Store) ExpectedEventsStartingBetween(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	query, args, err := s.sql.From("events").
		Select("id", "title", "city", "start_at", "seats", "status", "organizer_id", "created_at").
		Where(
			goqu.C("status").Eq(string(model.StatusExpected)),
			goqu.C("start_at").Gt(from),
			goqu.C("start_at").Lte(to),
		).
		Order(goqu.C("start_at").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build window query: %w", err)
	}
	return s.queryEvents(ctx, query, args)
}

func (s *Store) FinishEventsStartedBefore(ctx context.Context, cutoff time.Time) ([]model.Event, error) {
	query, args, err := s.sql.Update("events").
		Set(goqu.Record{"status": string(model.StatusFinished)}).
		Where(
			goqu.C("status").Eq(string(model.StatusExpected)),
			goqu.C("start_at").Lt(cutoff),
		).
		Returning("id", "title", "city", "start_at", "seats", "status", "organizer_id", "created_at").
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build finish update: %w", err)
	}
	return s.queryEvents(ctx, query, args)
}

func (s *Store) ListActiveBookings(ctx context.Context, eventID string) ([]model.Booking, error) {
	query, args, err := s.sql.From("bookings").
		Select("id", "user_id", "event_id", "created_at", "cancelled_at").
		Where(goqu.C("event_id").Eq(eventID), goqu.C("cancelled_at").IsNull()).
		Order(goqu.C("created_at").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build bookings query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active bookings: %w", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.UserID, &b.EventID, &b.CreatedAt, &b.CancelledAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (s *Store) ActiveBookingExists(ctx context.Context, userID, eventID string) (bool, error) {
	query, args, err := s.sql.From("bookings").
		Select(goqu.COUNT("*")).
		Where(
			goqu.C("user_id").Eq(userID),
			goqu.C("event_id").Eq(eventID),
			goqu.C("cancelled_at").IsNull(),
		).
		Prepared(true).ToSQL()
	if err != nil {
		return false, fmt.Errorf("build booking exists query: %w", err)
	}
	var count int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check active booking: %w", err)
	}
	return count > 0, nil
}

func (s *Store) AppendNotification(ctx context.Context, rec *model.NotificationRecord) error {
	query, args, err := s.sql.Insert("notifications").
		Rows(goqu.Record{
			"id":            rec.ID,
			"user_id":       rec.UserID,
			"event_id":      rec.EventID,
			"type":          string(rec.Type),
			"message":       rec.Message,
			"is_sent":       rec.IsSent,
			"created_at":    rec.CreatedAt,
			"sent_at":       rec.SentAt,
			"error_message": rec.ErrorMessage,
		}).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build notification insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Store) ReminderRecordedSince(ctx context.Context, eventID string, since time.Time) (bool, error) {
	query, args, err := s.sql.From("notifications").
		Select(goqu.COUNT("*")).
		Where(
			goqu.C("event_id").Eq(eventID),
			goqu.C("type").Eq(string(model.NotificationReminder)),
			goqu.C("created_at").Gte(since),
		).
		Prepared(true).ToSQL()
	if err != nil {
		return false, fmt.Errorf("build reminder dedup query: %w", err)
	}
	var count int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check reminder records: %w", err)
	}
	return count > 0, nil
}

func (s *Store) UpsertRating(ctx context.Context, rating *model.Rating) (*model.Rating, error) {
	// goqu's conflict helpers do not cover a multi-column target cleanly,
	// so this one statement is plain SQL.
	row := s.pool.QueryRow(ctx,
		`INSERT INTO ratings (id, user_id, event_id, score, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, event_id)
		 DO UPDATE SET score = EXCLUDED.score, comment = EXCLUDED.comment
		 RETURNING id, user_id, event_id, score, comment, created_at`,
		rating.ID, rating.UserID, rating.EventID, rating.Score, rating.Comment, rating.CreatedAt,
	)
	var r model.Rating
	if err := row.Scan(&r.ID, &r.UserID, &r.EventID, &r.Score, &r.Comment, &r.CreatedAt); err != nil {
		return nil, fmt.Errorf("upsert rating: %w", err)
	}
	return &r, nil
}

func (s *Store) AverageRating(ctx context.Context, eventID string) (float64, error) {
	query, args, err := s.sql.From("ratings").
		Select(goqu.COALESCE(goqu.AVG("score"), 0)).
		Where(goqu.C("event_id").Eq(eventID)).
		Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build rating query: %w", err)
	}
	var avg float64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&avg); err != nil {
		return 0, fmt.Errorf("average rating: %w", err)
	}
	return avg, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────

func (s *Store) queryEvents(ctx context.Context, query string, args []any) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var status string
		if err := rows.Scan(&e.ID, &e.Title, &e.City, &e.StartAt, &e.Seats, &status, &e.OrganizerID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Status = model.EventStatus(status)
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	var status string
	if err := row.Scan(&e.ID, &e.Title, &e.City, &e.StartAt, &e.Seats, &status, &e.OrganizerID, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Status = model.EventStatus(status)
	return &e, nil
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	if err := row.Scan(&b.ID, &b.UserID, &b.EventID, &b.CreatedAt, &b.CancelledAt); err != nil {
		return nil, err
	}
	return &b, nil
}
