// Package queue implements the durable task queue that decouples
// notification dispatch from the request path. Tasks are rows in the same
// store as the domain data, claimed by a polling worker pool; delivery is
// at least once, and a task scheduled with a future run-at time stays
// invisible to workers until that time.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ErrTaskNotFound is returned when a status transition targets a task that
// does not exist or is no longer in the expected state.
var ErrTaskNotFound = errors.New("task not found")

// Task is one unit of queued work. Subject groups tasks that concern the
// same entity (here: the event ID) so pending work can be cancelled or
// deduplicated per entity without parsing args.
type Task struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Subject   string          `json:"subject"`
	Args      json.RawMessage `json:"args"`
	RunAt     time.Time       `json:"run_at"`
	Status    Status          `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// TaskStore is the persistence contract for tasks. Both store backends
// implement it alongside the domain store.
type TaskStore interface {
	// EnqueueTask inserts a pending task.
	EnqueueTask(ctx context.Context, task *Task) error

	// ClaimDueTasks atomically moves up to limit pending tasks with
	// run_at <= now to running (incrementing attempts) and returns them.
	// Two concurrent claimers never receive the same task.
	ClaimDueTasks(ctx context.Context, now time.Time, limit int) ([]Task, error)

	// MarkTaskDone finishes a running task.
	MarkTaskDone(ctx context.Context, id string) error

	// MarkTaskFailed terminally fails a running task.
	MarkTaskFailed(ctx context.Context, id, lastError string) error

	// ReturnTask puts a running task back to pending for redelivery.
	ReturnTask(ctx context.Context, id, lastError string) error

	// CancelPendingTasks marks pending tasks matching name and subject as
	// cancelled, returning how many were affected. Running tasks are left
	// alone; their handlers re-check state at fire time.
	CancelPendingTasks(ctx context.Context, name, subject string) (int, error)

	// TaskEnqueuedSince reports whether any task matching name and subject
	// was created at or after since, in any status.
	TaskEnqueuedSince(ctx context.Context, name, subject string, since time.Time) (bool, error)
}

// Broker is the producer side of the queue.
type Broker struct {
	tasks TaskStore
}

// NewBroker constructs a Broker over a task store.
func NewBroker(tasks TaskStore) *Broker {
	return &Broker{tasks: tasks}
}

// Enqueue schedules a task. A zero runAt means "as soon as possible".
func (b *Broker) Enqueue(ctx context.Context, name, subject string, args any, runAt time.Time) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal task args: %w", err)
	}
	now := time.Now().UTC()
	if runAt.IsZero() {
		runAt = now
	}
	task := &Task{
		ID:        uuid.New().String(),
		Name:      name,
		Subject:   subject,
		Args:      payload,
		RunAt:     runAt.UTC(),
		Status:    StatusPending,
		CreatedAt: now,
	}
	if err := b.tasks.EnqueueTask(ctx, task); err != nil {
		return fmt.Errorf("enqueue task %s: %w", name, err)
	}
	return nil
}

// CancelPending cancels still-pending tasks for one subject.
func (b *Broker) CancelPending(ctx context.Context, name, subject string) (int, error) {
	return b.tasks.CancelPendingTasks(ctx, name, subject)
}

// EnqueuedSince reports whether a matching task was enqueued at or after since.
func (b *Broker) EnqueuedSince(ctx context.Context, name, subject string, since time.Time) (bool, error) {
	return b.tasks.TaskEnqueuedSince(ctx, name, subject, since)
}
