package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/afisha-platform/booking-core/internal/queue"
)

// Task names for the four intent types. The queue subject is always the
// event ID, so pending work can be cancelled or deduplicated per event.
const (
	TaskBooking        = "notify.booking"
	TaskCancellation   = "notify.cancellation"
	TaskReminder       = "notify.reminder"
	TaskEventCancelled = "notify.event_cancelled"
)

// Intent is the durable payload of a notification task. Fan-out intents
// carry no user: the dispatcher resolves recipients at fire time.
type Intent struct {
	UserID  string `json:"user_id,omitempty"`
	EventID string `json:"event_id"`
}

func decodeIntent(task queue.Task) (Intent, error) {
	var intent Intent
	if err := json.Unmarshal(task.Args, &intent); err != nil {
		return intent, fmt.Errorf("decode %s args: %w", task.Name, err)
	}
	if intent.EventID == "" {
		return intent, fmt.Errorf("%s args missing event_id", task.Name)
	}
	return intent, nil
}

// RegisterHandlers binds the dispatcher to the worker pool.
func RegisterHandlers(worker *queue.Worker, dispatcher *Dispatcher) {
	worker.Register(TaskBooking, func(ctx context.Context, task queue.Task) error {
		intent, err := decodeIntent(task)
		if err != nil {
			return err
		}
		return dispatcher.DispatchBooking(ctx, intent.UserID, intent.EventID)
	})
	worker.Register(TaskCancellation, func(ctx context.Context, task queue.Task) error {
		intent, err := decodeIntent(task)
		if err != nil {
			return err
		}
		return dispatcher.DispatchCancellation(ctx, intent.UserID, intent.EventID)
	})
	worker.Register(TaskReminder, func(ctx context.Context, task queue.Task) error {
		intent, err := decodeIntent(task)
		if err != nil {
			return err
		}
		_, err = dispatcher.DispatchReminder(ctx, intent.UserID, intent.EventID)
		return err
	})
	worker.Register(TaskEventCancelled, func(ctx context.Context, task queue.Task) error {
		intent, err := decodeIntent(task)
		if err != nil {
			return err
		}
		_, err = dispatcher.DispatchEventCancelled(ctx, intent.EventID)
		return err
	})
}
