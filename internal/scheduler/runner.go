package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// SweepFunc is one sweep pass; it returns how many items it acted on.
type SweepFunc func(ctx context.Context) (int, error)

// Run executes sweep immediately and then on every interval tick until ctx
// is cancelled. A failing pass is logged and does not stop the loop.
func Run(ctx context.Context, logger *slog.Logger, name string, interval time.Duration, sweep SweepFunc) {
	run := func() {
		if _, err := sweep(ctx); err != nil && ctx.Err() == nil {
			logger.Error("sweep failed", "sweep", name, "error", err)
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
