// Package service implements the business orchestration between the seat
// ledger, the task queue, and the store: creating and cancelling bookings,
// cancelling events, and rating attended events.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/afisha-platform/booking-core/internal/ledger"
	"github.com/afisha-platform/booking-core/internal/model"
	"github.com/afisha-platform/booking-core/internal/notify"
	"github.com/afisha-platform/booking-core/internal/queue"
	"github.com/afisha-platform/booking-core/internal/store"
)

// ErrEventNotCancellable is returned when cancelling an event that is
// already finished or cancelled.
var ErrEventNotCancellable = errors.New("event is already finished or cancelled")

// BookingCoordinator wraps the seat ledger with notification intents. The
// caller's result reflects the seat operation alone: intents are enqueued
// only after the reservation or release is durably committed, and an
// enqueue failure is logged, never surfaced.
type BookingCoordinator struct {
	ledger *ledger.SeatLedger
	store  store.Store
	broker *queue.Broker
	logger *slog.Logger
}

// NewBookingCoordinator constructs a BookingCoordinator.
func NewBookingCoordinator(l *ledger.SeatLedger, s store.Store, b *queue.Broker, logger *slog.Logger) *BookingCoordinator {
	return &BookingCoordinator{ledger: l, store: s, broker: b, logger: logger}
}

// CreateBooking reserves a seat and enqueues the booking notification.
// Errors: store.ErrEventNotFound, store.ErrEventNotBookable,
// store.ErrNoSeats.
func (c *BookingCoordinator) CreateBooking(ctx context.Context, userID, eventID string) (*model.Booking, error) {
	booking, err := c.ledger.TryReserve(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	c.enqueue(ctx, notify.TaskBooking, eventID, notify.Intent{UserID: userID, EventID: eventID}, time.Time{})
	return booking, nil
}

// CancelBooking releases the user's seat and enqueues the cancellation
// notification. Errors: store.ErrBookingNotFound.
func (c *BookingCoordinator) CancelBooking(ctx context.Context, userID, eventID string) (*model.Booking, error) {
	booking, err := c.ledger.Release(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	c.enqueue(ctx, notify.TaskCancellation, eventID, notify.Intent{UserID: userID, EventID: eventID}, time.Time{})
	return booking, nil
}

// CancelEvent transitions an expected event to cancelled under the event
// lock, then runs the status-changed hook (fan-out notice plus best-effort
// reminder cancellation).
func (c *BookingCoordinator) CancelEvent(ctx context.Context, eventID string) error {
	err := c.store.WithEventTx(ctx, eventID, func(tx store.Tx) error {
		event, err := tx.EventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status != model.StatusExpected {
			return ErrEventNotCancellable
		}
		return tx.SetEventStatus(ctx, eventID, model.StatusCancelled)
	})
	if err != nil {
		return err
	}
	c.NotifyStatusChanged(ctx, eventID, model.StatusCancelled)
	return nil
}

// NotifyStatusChanged is the explicit hook run at every terminal status
// transition. Cancelled events fan out a notice to active bookings; both
// terminal states cancel still-pending reminder tasks. In-flight reminders
// are not recalled; the reminder handler re-checks status at fire time.
func (c *BookingCoordinator) NotifyStatusChanged(ctx context.Context, eventID string, status model.EventStatus) {
	if status == model.StatusCancelled {
		c.enqueue(ctx, notify.TaskEventCancelled, eventID, notify.Intent{EventID: eventID}, time.Time{})
	}
	cancelled, err := c.broker.CancelPending(ctx, notify.TaskReminder, eventID)
	if err != nil {
		c.logger.Error("cancel pending reminders", "event_id", eventID, "error", err)
		return
	}
	if cancelled > 0 {
		c.logger.Info("cancelled pending reminders",
			"event_id", eventID, "count", cancelled, "status", status)
	}
}

// enqueue is fire-and-forget relative to the caller.
func (c *BookingCoordinator) enqueue(ctx context.Context, task, eventID string, intent notify.Intent, runAt time.Time) {
	if err := c.broker.Enqueue(ctx, task, eventID, intent, runAt); err != nil {
		c.logger.Error("enqueue notification intent",
			"task", task, "event_id", eventID, "error", err)
	}
}
