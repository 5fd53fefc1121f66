// Package store defines the persistence contract for the booking core and
// the sentinel errors every backend maps its failures onto. Two backends
// implement it: postgres (production) and memstore (tests, local runs).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/afisha-platform/booking-core/internal/model"
)

var (
	// ErrEventNotFound is returned when the referenced event does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrEventNotBookable is returned when the event is cancelled, finished,
	// or has already started.
	ErrEventNotBookable = errors.New("event is not open for booking")

	// ErrNoSeats is returned when the event has no remaining capacity.
	ErrNoSeats = errors.New("no seats left")

	// ErrBookingNotFound is returned when no active booking exists for the
	// (user, event) pair.
	ErrBookingNotFound = errors.New("booking not found or already cancelled")

	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// Tx is the view of the store inside an event-scoped transaction opened by
// WithEventTx. The event row is exclusively locked for the duration, so a
// check-then-write sequence against these methods is atomic with respect
// to every other WithEventTx on the same event.
type Tx interface {
	// EventForUpdate loads the event and acquires its exclusive lock.
	EventForUpdate(ctx context.Context, eventID string) (*model.Event, error)

	// ActiveBookingCount counts bookings with cancelled_at unset.
	ActiveBookingCount(ctx context.Context, eventID string) (int, error)

	// UpsertActiveBooking creates the booking row for (user, event), or
	// reactivates a previously cancelled one. An already-active booking is
	// returned unchanged. The second result reports whether an existing
	// row was reactivated.
	UpsertActiveBooking(ctx context.Context, userID, eventID string, now time.Time) (*model.Booking, bool, error)

	// CancelActiveBooking sets cancelled_at on the active booking for
	// (user, event), or returns ErrBookingNotFound.
	CancelActiveBooking(ctx context.Context, userID, eventID string, now time.Time) (*model.Booking, error)

	// SetEventStatus updates the locked event's status.
	SetEventStatus(ctx context.Context, eventID string, status model.EventStatus) error
}

// Store is the shared durable state all components coordinate through.
type Store interface {
	// WithEventTx runs fn inside a transaction holding the exclusive lock
	// for one event. The lock does not block transactions on other events.
	// Writes are visible to others only after fn returns nil.
	WithEventTx(ctx context.Context, eventID string, fn func(tx Tx) error) error

	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)

	CreateEvent(ctx context.Context, event *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)

	// ExpectedEventsStartingBetween returns expected events with start_at
	// in the half-open window (from, to].
	ExpectedEventsStartingBetween(ctx context.Context, from, to time.Time) ([]model.Event, error)

	// FinishEventsStartedBefore bulk-promotes expected events whose
	// start_at is before cutoff to finished, returning the promoted events.
	FinishEventsStartedBefore(ctx context.Context, cutoff time.Time) ([]model.Event, error)

	ListActiveBookings(ctx context.Context, eventID string) ([]model.Booking, error)
	ActiveBookingExists(ctx context.Context, userID, eventID string) (bool, error)

	// AppendNotification writes one audit row for a dispatch attempt.
	AppendNotification(ctx context.Context, rec *model.NotificationRecord) error

	// ReminderRecordedSince reports whether any reminder-type notification
	// record exists for the event created at or after since.
	ReminderRecordedSince(ctx context.Context, eventID string, since time.Time) (bool, error)

	// UpsertRating inserts or overwrites the rating for (user, event).
	UpsertRating(ctx context.Context, rating *model.Rating) (*model.Rating, error)

	// AverageRating returns the mean score for the event, 0 when unrated.
	AverageRating(ctx context.Context, eventID string) (float64, error)
}
