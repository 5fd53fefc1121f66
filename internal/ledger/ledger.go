// Package ledger enforces the seat-capacity invariant for events: the
// number of active bookings never exceeds an event's seat count, no matter
// how many reservations race for the last seat.
package ledger

import (
	"context"
	"time"

	"github.com/afisha-platform/booking-core/internal/model"
	"github.com/afisha-platform/booking-core/internal/store"
)

// SeatLedger performs the atomic check-then-write for reservations and
// releases. Every decision sequence runs inside the store's event-scoped
// transaction, so concurrent calls for the same event serialize on the
// event's exclusive lock while other events proceed unimpeded.
type SeatLedger struct {
	store store.Store
}

// NewSeatLedger constructs a SeatLedger over a store.
func NewSeatLedger(s store.Store) *SeatLedger {
	return &SeatLedger{store: s}
}

// TryReserve books one seat on the event for the user.
//
// The checks run in a fixed order under the event lock: existence
// (store.ErrEventNotFound), bookability — status expected and not yet
// started (store.ErrEventNotBookable), then capacity (store.ErrNoSeats).
// Only then is the booking row created, or a previously cancelled row for
// the same (user, event) reactivated. A booking that is already active is
// returned as-is; re-reserving is not an error.
//
// No other TryReserve or Release on the same event observes an
// intermediate state of this sequence.
func (l *SeatLedger) TryReserve(ctx context.Context, userID, eventID string) (*model.Booking, error) {
	var booking *model.Booking
	err := l.store.WithEventTx(ctx, eventID, func(tx store.Tx) error {
		now := time.Now().UTC()

		event, err := tx.EventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if !event.IsBookable(now) {
			return store.ErrEventNotBookable
		}

		active, err := tx.ActiveBookingCount(ctx, eventID)
		if err != nil {
			return err
		}
		if active >= event.Seats {
			return store.ErrNoSeats
		}

		booking, _, err = tx.UpsertActiveBooking(ctx, userID, eventID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// Release cancels the user's active booking on the event by setting
// cancelled_at. Idempotent in effect: a second call finds no active row
// and returns store.ErrBookingNotFound with no further side effect.
func (l *SeatLedger) Release(ctx context.Context, userID, eventID string) (*model.Booking, error) {
	var booking *model.Booking
	err := l.store.WithEventTx(ctx, eventID, func(tx store.Tx) error {
		var txErr error
		booking, txErr = tx.CancelActiveBooking(ctx, userID, eventID, time.Now().UTC())
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}
