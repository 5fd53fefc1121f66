package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/afisha-platform/booking-core/internal/model"
	"github.com/afisha-platform/booking-core/internal/store"
)

var (
	// ErrReferenceMissing marks a dispatch whose user or event vanished
	// between enqueue and processing. Recorded, never propagated.
	ErrReferenceMissing = errors.New("referenced user or event no longer exists")

	// ErrDeliveryFailed marks a transport error or a negative transport
	// result. Recorded; redelivery is the queue's concern.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// Report aggregates a fan-out dispatch.
type Report struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Dispatcher turns notification intents into delivered (or audited-failed)
// emails. Its only externally visible state is the NotificationRecord rows
// it appends, exactly one per dispatch attempt.
type Dispatcher struct {
	store       store.Store
	mailer      Mailer
	logger      *slog.Logger
	sender      string
	sendTimeout time.Duration
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(s store.Store, mailer Mailer, logger *slog.Logger, sender string, sendTimeout time.Duration) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		store:       s,
		mailer:      mailer,
		logger:      logger,
		sender:      sender,
		sendTimeout: sendTimeout,
	}
}

// DispatchBooking sends the booking confirmation for (user, event).
func (d *Dispatcher) DispatchBooking(ctx context.Context, userID, eventID string) error {
	_, err := d.dispatch(ctx, userID, eventID, model.NotificationBooking)
	return err
}

// DispatchCancellation sends the booking-cancelled notice for (user, event).
func (d *Dispatcher) DispatchCancellation(ctx context.Context, userID, eventID string) error {
	_, err := d.dispatch(ctx, userID, eventID, model.NotificationCancellation)
	return err
}

// DispatchReminder sends the one-hour reminder, unless the event is no
// longer expected, in which case the reminder is discarded: no delivery
// attempt, no record. The first result reports whether it was skipped.
func (d *Dispatcher) DispatchReminder(ctx context.Context, userID, eventID string) (bool, error) {
	event, err := d.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrEventNotFound) {
			d.logger.Info("reminder skipped, event gone", "event_id", eventID)
			return true, nil
		}
		return false, err
	}
	if event.Status != model.StatusExpected {
		d.logger.Info("reminder skipped, event no longer expected",
			"event_id", eventID, "status", event.Status)
		return true, nil
	}
	_, err = d.dispatch(ctx, userID, eventID, model.NotificationReminder)
	return false, err
}

// DispatchEventCancelled fans out the event-cancelled notice to every
// active booking. One recipient's failure never blocks the rest; the
// report counts per-recipient outcomes.
func (d *Dispatcher) DispatchEventCancelled(ctx context.Context, eventID string) (Report, error) {
	var report Report
	if _, err := d.store.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, store.ErrEventNotFound) {
			d.logger.Info("event-cancelled fan-out skipped, event gone", "event_id", eventID)
			return report, nil
		}
		return report, err
	}
	bookings, err := d.store.ListActiveBookings(ctx, eventID)
	if err != nil {
		return report, err
	}
	for _, booking := range bookings {
		sent, dispatchErr := d.dispatch(ctx, booking.UserID, eventID, model.NotificationEventCancelled)
		if dispatchErr != nil {
			d.logger.Error("event-cancelled dispatch failed",
				"event_id", eventID, "user_id", booking.UserID, "error", dispatchErr)
			report.Failed++
			continue
		}
		if sent {
			report.Sent++
		} else {
			report.Failed++
		}
	}
	d.logger.Info("event-cancelled fan-out complete",
		"event_id", eventID, "sent", report.Sent, "failed", report.Failed)
	return report, nil
}

// dispatch runs one intent through render -> deliver -> record. It returns
// an error only for infrastructural failures (store reads other than
// not-found, audit write failures), which the queue may redeliver; a
// delivery failure or missing reference is captured in the record and is
// not an error here.
func (d *Dispatcher) dispatch(ctx context.Context, userID, eventID string, typ model.NotificationType) (bool, error) {
	now := time.Now().UTC()
	rec := &model.NotificationRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		EventID:   eventID,
		Type:      typ,
		CreatedAt: now,
	}

	user, userErr := d.store.GetUser(ctx, userID)
	if userErr != nil && !errors.Is(userErr, store.ErrUserNotFound) {
		return false, userErr
	}
	event, eventErr := d.store.GetEvent(ctx, eventID)
	if eventErr != nil && !errors.Is(eventErr, store.ErrEventNotFound) {
		return false, eventErr
	}
	if userErr != nil || eventErr != nil {
		// Failures must be auditable, not silent.
		rec.Message = placeholderMessage
		rec.ErrorMessage = fmt.Sprintf("%s: user=%v event=%v", ErrReferenceMissing, userErr, eventErr)
		if err := d.store.AppendNotification(ctx, rec); err != nil {
			return false, err
		}
		d.logger.Warn("notification reference missing",
			"type", typ, "user_id", userID, "event_id", eventID)
		return false, nil
	}

	subject, body := render(typ, event)
	rec.Message = body

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	ok, sendErr := d.mailer.Send(sendCtx, Mail{
		To:      user.Email,
		From:    d.sender,
		Subject: subject,
		Body:    body,
	})
	cancel()

	if ok && sendErr == nil {
		sentAt := time.Now().UTC()
		rec.IsSent = true
		rec.SentAt = &sentAt
	} else {
		rec.ErrorMessage = fmt.Sprintf("%s: %v", ErrDeliveryFailed, sendErr)
		d.logger.Warn("notification delivery failed",
			"type", typ, "user_id", userID, "event_id", eventID, "error", sendErr)
	}

	if err := d.store.AppendNotification(ctx, rec); err != nil {
		return false, err
	}
	return rec.IsSent, nil
}
