// Package taskqueue is a Postgres-backed work queue. Claims use
// FOR UPDATE SKIP LOCKED so multiple worker processes can poll the same
// table without stepping on each other.
package taskqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supplyline/catalog-service/internal/pkg/ident"
)

type TaskQueue struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *TaskQueue {
	return &TaskQueue{pool: pool}
}

type ScheduleTaskInput struct {
	TaskType    string
	Payload     interface{}
	Priority    int
	ScheduledAt *time.Time
	MaxRetries  int
}

func (q *TaskQueue) ScheduleTask(ctx context.Context, input ScheduleTaskInput) (string, error) {
	payload, err := json.Marshal(input.Payload)
	if err != nil {
		return "", err
	}

	maxRetries := 3
	if input.MaxRetries > 0 {
		maxRetries = input.MaxRetries
	}
	scheduledFor := time.Now()
	if input.ScheduledAt != nil {
		scheduledFor = *input.ScheduledAt
	}

	id := ident.New()
	_, err = q.pool.Exec(ctx, `
		INSERT INTO task_queue (id, task_type, payload, priority, status, scheduled_for, max_retries)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6)
	`, id, input.TaskType, payload, input.Priority, scheduledFor, maxRetries)
	if err != nil {
		return "", err
	}
	return id, nil
}

type ClaimTasksInput struct {
	WorkerID  string
	TaskTypes []string
	MaxTasks  int
}

// ClaimTasks atomically moves due pending tasks to claimed for this worker.
func (q *TaskQueue) ClaimTasks(ctx context.Context, input ClaimTasksInput) ([]ClaimedTask, error) {
	rows, err := q.pool.Query(ctx, `
		UPDATE task_queue
		SET status = 'claimed', worker_id = $1, started_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM task_queue
			WHERE status = 'pending'
			  AND task_type = ANY($2)
			  AND scheduled_for <= NOW()
			ORDER BY priority DESC, scheduled_for
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, task_type, payload
	`, input.WorkerID, input.TaskTypes, input.MaxTasks)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]ClaimedTask, 0)
	for rows.Next() {
		var task ClaimedTask
		if err := rows.Scan(&task.ID, &task.TaskType, &task.Payload); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (q *TaskQueue) MarkProcessing(ctx context.Context, taskID string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE task_queue
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1
	`, taskID)
	return err
}

func (q *TaskQueue) CompleteTask(ctx context.Context, taskID string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE task_queue
		SET status = 'completed', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, taskID)
	return err
}

// FailTask records a failure. Retryable failures under the retry budget go
// back to pending with a linear backoff.
func (q *TaskQueue) FailTask(ctx context.Context, taskID, errorMessage string, shouldRetry bool) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE task_queue
		SET status = CASE
		        WHEN $3 AND retry_count < max_retries THEN 'pending'
		        ELSE 'failed'
		    END,
		    retry_count = retry_count + 1,
		    scheduled_for = CASE
		        WHEN $3 AND retry_count < max_retries
		        THEN NOW() + make_interval(secs => 30 * (retry_count + 1))
		        ELSE scheduled_for
		    END,
		    failed_at = CASE
		        WHEN $3 AND retry_count < max_retries THEN failed_at
		        ELSE NOW()
		    END,
		    error_message = $2,
		    worker_id = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, taskID, errorMessage, shouldRetry)
	return err
}

func (q *TaskQueue) CancelTask(ctx context.Context, taskID string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE task_queue
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'claimed')
	`, taskID)
	return err
}

// RecoverOrphans returns tasks abandoned by dead workers to pending, or
// fails them when out of retries.
func (q *TaskQueue) RecoverOrphans(ctx context.Context, deadline time.Duration) (int64, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE task_queue
		SET status = CASE WHEN retry_count < max_retries THEN 'pending' ELSE 'failed' END,
		    retry_count = retry_count + 1,
		    error_message = 'reclaimed: worker stopped responding',
		    worker_id = NULL,
		    updated_at = NOW()
		WHERE status IN ('claimed', 'processing')
		  AND updated_at < NOW() - $1::interval
	`, deadline.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *TaskQueue) CleanupOldTasks(ctx context.Context, daysToKeep int) (int64, error) {
	tag, err := q.pool.Exec(ctx, `
		DELETE FROM task_queue
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND updated_at < NOW() - make_interval(days => $1)
	`, daysToKeep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *TaskQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	err := q.pool.QueryRow(ctx, `
		SELECT id, task_type, payload, priority, status,
		       scheduled_for, started_at, completed_at, failed_at,
		       worker_id, retry_count, max_retries, error_message,
		       created_at, updated_at
		FROM task_queue
		WHERE id = $1
	`, taskID).Scan(
		&task.ID, &task.TaskType, &task.Payload, &task.Priority, &task.Status,
		&task.ScheduledFor, &task.StartedAt, &task.CompletedAt, &task.FailedAt,
		&task.WorkerID, &task.RetryCount, &task.MaxRetries, &task.ErrorMessage,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}
