// Package model defines the core domain types for the afisha booking system.
package model

import "time"

// EventStatus is the lifecycle state of an event. Transitions are one-way:
// expected -> cancelled or expected -> finished, never back.
type EventStatus string

const (
	StatusExpected  EventStatus = "expected"
	StatusCancelled EventStatus = "cancelled"
	StatusFinished  EventStatus = "finished"
)

// Event represents a bookable event created by an organizer.
type Event struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	City        string      `json:"city"`
	StartAt     time.Time   `json:"start_at"`
	Seats       int         `json:"seats"`
	Status      EventStatus `json:"status"`
	OrganizerID string      `json:"organizer_id"`
	CreatedAt   time.Time   `json:"created_at"`
}

// IsBookable reports whether new bookings are accepted: the event must
// still be expected and must not have started.
func (e *Event) IsBookable(now time.Time) bool {
	return e.Status == StatusExpected && e.StartAt.After(now)
}

// User is the projection of a platform account that the booking core
// needs: an identity and an address to notify.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Booking ties a user to an event. Cancellation is a soft delete: the row
// survives with cancelled_at set, and a later re-booking reactivates it,
// so there is never more than one row per (user, event).
type Booking struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	EventID     string     `json:"event_id"`
	CreatedAt   time.Time  `json:"created_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// IsActive reports whether the booking still holds a seat.
func (b *Booking) IsActive() bool {
	return b.CancelledAt == nil
}

// NotificationType classifies a notification dispatch.
type NotificationType string

const (
	NotificationBooking        NotificationType = "booking"
	NotificationCancellation   NotificationType = "cancellation"
	NotificationReminder       NotificationType = "reminder"
	NotificationEventCancelled NotificationType = "event_cancelled"
)

// NotificationRecord is the append-only audit row written once per
// dispatch attempt. It is never mutated after creation.
type NotificationRecord struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	EventID      string           `json:"event_id"`
	Type         NotificationType `json:"type"`
	Message      string           `json:"message"`
	IsSent       bool             `json:"is_sent"`
	CreatedAt    time.Time        `json:"created_at"`
	SentAt       *time.Time       `json:"sent_at,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// Rating is a score a user leaves for an event they attended.
// One row per (user, event); re-rating overwrites.
type Rating struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	EventID   string    `json:"event_id"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}
