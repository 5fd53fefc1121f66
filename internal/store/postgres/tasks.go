package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/afisha-platform/booking-core/internal/queue"
)

// TaskStore implementation. Claiming uses FOR UPDATE SKIP LOCKED so
// concurrent workers never receive the same task.

func (s *Store) EnqueueTask(ctx context.Context, task *queue.Task) error {
	query, args, err := s.sql.Insert("tasks").
		Rows(goqu.Record{
			"id":         task.ID,
			"name":       task.Name,
			"subject":    task.Subject,
			"args":       []byte(task.Args),
			"run_at":     task.RunAt,
			"status":     string(task.Status),
			"attempts":   task.Attempts,
			"last_error": task.LastError,
			"created_at": task.CreatedAt,
		}).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build task insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Store) ClaimDueTasks(ctx context.Context, now time.Time, limit int) ([]queue.Task, error) {
	due := s.sql.From("tasks").
		Select("id").
		Where(
			goqu.C("status").Eq(string(queue.StatusPending)),
			goqu.C("run_at").Lte(now),
		).
		Order(goqu.C("run_at").Asc(), goqu.C("created_at").Asc()).
		Limit(uint(limit)).
		ForUpdate(exp.SkipLocked)

	query, args, err := s.sql.Update("tasks").
		Set(goqu.Record{
			"status":   string(queue.StatusRunning),
			"attempts": goqu.L("attempts + 1"),
		}).
		Where(goqu.C("id").In(due)).
		Returning("id", "name", "subject", "args", "run_at", "status", "attempts", "last_error", "created_at").
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build task claim: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("claim tasks: %w", err)
	}
	defer rows.Close()

	var tasks []queue.Task
	for rows.Next() {
		var t queue.Task
		var status string
		var rawArgs []byte
		if err := rows.Scan(&t.ID, &t.Name, &t.Subject, &rawArgs, &t.RunAt, &status, &t.Attempts, &t.LastError, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = queue.Status(status)
		t.Args = rawArgs
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) MarkTaskDone(ctx context.Context, id string) error {
	return s.transitionTask(ctx, id, queue.StatusRunning, queue.StatusDone, "")
}

func (s *Store) MarkTaskFailed(ctx context.Context, id, lastError string) error {
	return s.transitionTask(ctx, id, queue.StatusRunning, queue.StatusFailed, lastError)
}

func (s *Store) ReturnTask(ctx context.Context, id, lastError string) error {
	return s.transitionTask(ctx, id, queue.StatusRunning, queue.StatusPending, lastError)
}

func (s *Store) transitionTask(ctx context.Context, id string, from, to queue.Status, lastError string) error {
	record := goqu.Record{"status": string(to)}
	if lastError != "" {
		record["last_error"] = lastError
	}
	query, args, err := s.sql.Update("tasks").
		Set(record).
		Where(goqu.C("id").Eq(id), goqu.C("status").Eq(string(from))).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build task transition: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrTaskNotFound
	}
	return nil
}

func (s *Store) CancelPendingTasks(ctx context.Context, name, subject string) (int, error) {
	query, args, err := s.sql.Update("tasks").
		Set(goqu.Record{"status": string(queue.StatusCancelled)}).
		Where(
			goqu.C("name").Eq(name),
			goqu.C("subject").Eq(subject),
			goqu.C("status").Eq(string(queue.StatusPending)),
		).
		Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build task cancel: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cancel pending tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) TaskEnqueuedSince(ctx context.Context, name, subject string, since time.Time) (bool, error) {
	query, args, err := s.sql.From("tasks").
		Select(goqu.COUNT("*")).
		Where(
			goqu.C("name").Eq(name),
			goqu.C("subject").Eq(subject),
			goqu.C("created_at").Gte(since),
		).
		Prepared(true).ToSQL()
	if err != nil {
		return false, fmt.Errorf("build task dedup query: %w", err)
	}
	var count int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check enqueued tasks: %w", err)
	}
	return count > 0, nil
}
