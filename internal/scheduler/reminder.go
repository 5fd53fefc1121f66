// Package scheduler implements the periodic sweeps: reminder scheduling
// and event lifecycle promotion. Both derive all work from durable state,
// so a crashed or repeated run is safe.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/afisha-platform/booking-core/internal/notify"
	"github.com/afisha-platform/booking-core/internal/queue"
	"github.com/afisha-platform/booking-core/internal/store"
)

const (
	// Reminders fire one hour before the event starts; each sweep covers
	// events starting within the (now+1h, now+2h] window.
	reminderLead        = time.Hour
	reminderWindow      = 2 * time.Hour
	reminderDedupWindow = 24 * time.Hour
)

// ReminderScheduler sweeps for events that need reminders and schedules
// one deferred reminder task per active booking.
type ReminderScheduler struct {
	store  store.Store
	broker *queue.Broker
	logger *slog.Logger
}

// NewReminderScheduler constructs a ReminderScheduler.
func NewReminderScheduler(s store.Store, b *queue.Broker, logger *slog.Logger) *ReminderScheduler {
	return &ReminderScheduler{store: s, broker: b, logger: logger}
}

// Sweep schedules reminders for events starting in (now+1h, now+2h] and
// returns how many bookings were scheduled.
//
// An event is skipped entirely when a reminder was already recorded or a
// reminder task was already enqueued within the last 24 hours, so
// overlapping sweep runs never double-schedule. A booking whose fire time
// has already passed is skipped rather than fired immediately.
func (s *ReminderScheduler) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	events, err := s.store.ExpectedEventsStartingBetween(ctx, now.Add(reminderLead), now.Add(reminderWindow))
	if err != nil {
		return 0, err
	}

	scheduled := 0
	for _, event := range events {
		since := now.Add(-reminderDedupWindow)

		recorded, err := s.store.ReminderRecordedSince(ctx, event.ID, since)
		if err != nil {
			s.logger.Error("reminder dedup check", "event_id", event.ID, "error", err)
			continue
		}
		if recorded {
			continue
		}
		enqueued, err := s.broker.EnqueuedSince(ctx, notify.TaskReminder, event.ID, since)
		if err != nil {
			s.logger.Error("reminder task dedup check", "event_id", event.ID, "error", err)
			continue
		}
		if enqueued {
			continue
		}

		bookings, err := s.store.ListActiveBookings(ctx, event.ID)
		if err != nil {
			s.logger.Error("list bookings for reminders", "event_id", event.ID, "error", err)
			continue
		}
		fireAt := event.StartAt.Add(-reminderLead)
		for _, booking := range bookings {
			if !fireAt.After(now) {
				// Sweep drifted past the fire time; do not fire late.
				continue
			}
			intent := notify.Intent{UserID: booking.UserID, EventID: event.ID}
			if err := s.broker.Enqueue(ctx, notify.TaskReminder, event.ID, intent, fireAt); err != nil {
				s.logger.Error("enqueue reminder",
					"event_id", event.ID, "user_id", booking.UserID, "error", err)
				continue
			}
			scheduled++
		}
	}

	s.logger.Info("reminder sweep complete", "events", len(events), "scheduled", scheduled)
	return scheduled, nil
}
