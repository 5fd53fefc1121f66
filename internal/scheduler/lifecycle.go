package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/afisha-platform/booking-core/internal/model"
	"github.com/afisha-platform/booking-core/internal/store"
)

// Events are promoted to finished two hours after they start.
const finishGrace = 2 * time.Hour

// StatusHook is run for every event the sweeper promotes; the coordinator
// provides it to cancel pending reminders.
type StatusHook interface {
	NotifyStatusChanged(ctx context.Context, eventID string, status model.EventStatus)
}

// LifecycleSweeper promotes long-started expected events to finished.
type LifecycleSweeper struct {
	store  store.Store
	hook   StatusHook
	logger *slog.Logger
}

// NewLifecycleSweeper constructs a LifecycleSweeper.
func NewLifecycleSweeper(s store.Store, hook StatusHook, logger *slog.Logger) *LifecycleSweeper {
	return &LifecycleSweeper{store: s, hook: hook, logger: logger}
}

// Sweep bulk-promotes expected events with start_at older than two hours
// to finished and runs the status hook for each. Returns the promoted
// count.
func (s *LifecycleSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-finishGrace)
	finished, err := s.store.FinishEventsStartedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, event := range finished {
		s.hook.NotifyStatusChanged(ctx, event.ID, model.StatusFinished)
	}
	if len(finished) > 0 {
		s.logger.Info("lifecycle sweep complete", "finished", len(finished))
	}
	return len(finished), nil
}
