package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/afisha-platform/booking-core/internal/queue"
)

// queue.TaskStore implementation. The data mutex makes claiming atomic,
// so concurrent workers never receive the same task.

func (m *Memstore) EnqueueTask(_ context.Context, task *queue.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *task
	m.tasks[task.ID] = &stored
	m.taskOrder = append(m.taskOrder, task.ID)
	return nil
}

func (m *Memstore) ClaimDueTasks(_ context.Context, now time.Time, limit int) ([]queue.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*queue.Task
	for _, id := range m.taskOrder {
		t := m.tasks[id]
		if t.Status == queue.StatusPending && !t.RunAt.After(now) {
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].RunAt.Equal(due[j].RunAt) {
			return due[i].RunAt.Before(due[j].RunAt)
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]queue.Task, 0, len(due))
	for _, t := range due {
		t.Status = queue.StatusRunning
		t.Attempts++
		claimed = append(claimed, *t)
	}
	return claimed, nil
}

func (m *Memstore) MarkTaskDone(_ context.Context, id string) error {
	return m.transitionTask(id, queue.StatusRunning, queue.StatusDone, "")
}

func (m *Memstore) MarkTaskFailed(_ context.Context, id, lastError string) error {
	return m.transitionTask(id, queue.StatusRunning, queue.StatusFailed, lastError)
}

func (m *Memstore) ReturnTask(_ context.Context, id, lastError string) error {
	return m.transitionTask(id, queue.StatusRunning, queue.StatusPending, lastError)
}

func (m *Memstore) transitionTask(id string, from, to queue.Status, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != from {
		return queue.ErrTaskNotFound
	}
	t.Status = to
	if lastError != "" {
		t.LastError = lastError
	}
	return nil
}

func (m *Memstore) CancelPendingTasks(_ context.Context, name, subject string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancelled := 0
	for _, t := range m.tasks {
		if t.Name == name && t.Subject == subject && t.Status == queue.StatusPending {
			t.Status = queue.StatusCancelled
			cancelled++
		}
	}
	return cancelled, nil
}

func (m *Memstore) TaskEnqueuedSince(_ context.Context, name, subject string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.Name == name && t.Subject == subject && !t.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// Tasks returns a copy of every task, in enqueue order. Test helper.
func (m *Memstore) Tasks() []queue.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]queue.Task, 0, len(m.taskOrder))
	for _, id := range m.taskOrder {
		out = append(out, *m.tasks[id])
	}
	return out
}
