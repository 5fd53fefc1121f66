package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// HandlerFunc processes one claimed task. A nil return completes the task;
// an error returns it for redelivery until the attempt budget is spent.
type HandlerFunc func(ctx context.Context, task Task) error

// Worker polls the task store and runs registered handlers. Each claimed
// task is processed by exactly one goroutine; redelivery after a handler
// error makes the overall contract at-least-once.
type Worker struct {
	tasks        TaskStore
	logger       *slog.Logger
	handlers     map[string]HandlerFunc
	workers      int
	pollInterval time.Duration
	maxAttempts  int
}

// NewWorker constructs a worker pool. Zero or negative tunables fall back
// to safe defaults.
func NewWorker(tasks TaskStore, logger *slog.Logger, workers int, pollInterval time.Duration, maxAttempts int) *Worker {
	if workers <= 0 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Worker{
		tasks:        tasks,
		logger:       logger,
		handlers:     make(map[string]HandlerFunc),
		workers:      workers,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
	}
}

// Register binds a handler to a task name. Must be called before Run.
func (w *Worker) Register(name string, fn HandlerFunc) {
	w.handlers[name] = fn
}

// Run blocks, polling for due tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		g.Go(func() error {
			w.loop(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain claims and processes due tasks one at a time until none remain,
// so a backlog is worked off faster than one task per poll interval.
func (w *Worker) drain(ctx context.Context) {
	for {
		claimed, err := w.tasks.ClaimDueTasks(ctx, time.Now().UTC(), 1)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error("claim tasks", "error", err)
			}
			return
		}
		if len(claimed) == 0 {
			return
		}
		w.process(ctx, claimed[0])
		if ctx.Err() != nil {
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, task Task) {
	handler, ok := w.handlers[task.Name]
	if !ok {
		w.logger.Error("no handler for task", "task", task.Name, "id", task.ID)
		if err := w.tasks.MarkTaskFailed(ctx, task.ID, fmt.Sprintf("no handler for %q", task.Name)); err != nil {
			w.logger.Error("mark task failed", "id", task.ID, "error", err)
		}
		return
	}

	err := handler(ctx, task)
	if err == nil {
		if markErr := w.tasks.MarkTaskDone(ctx, task.ID); markErr != nil {
			w.logger.Error("mark task done", "id", task.ID, "error", markErr)
		}
		return
	}

	if task.Attempts >= w.maxAttempts {
		w.logger.Error("task failed permanently",
			"task", task.Name, "id", task.ID, "attempts", task.Attempts, "error", err)
		if markErr := w.tasks.MarkTaskFailed(ctx, task.ID, err.Error()); markErr != nil {
			w.logger.Error("mark task failed", "id", task.ID, "error", markErr)
		}
		return
	}

	w.logger.Warn("task failed, returning for retry",
		"task", task.Name, "id", task.ID, "attempts", task.Attempts, "error", err)
	if markErr := w.tasks.ReturnTask(ctx, task.ID, err.Error()); markErr != nil {
		w.logger.Error("return task", "id", task.ID, "error", markErr)
	}
}
