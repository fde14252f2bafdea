package taskqueue

import "encoding/json"

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusClaimed    TaskStatus = "claimed"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusCancelled  TaskStatus = "cancelled"
)

// Task types handled by the sync worker.
const (
	TaskTypeAnalyze = "sync_analyze"
	TaskTypeExecute = "sync_execute"
)

// AnalyzePayload schedules preview analysis for an existing draft preview.
type AnalyzePayload struct {
	PreviewID string `json:"previewId"`
}

// ExecutePayload schedules execution of a ready preview.
type ExecutePayload struct {
	PreviewID   string `json:"previewId"`
	TriggeredBy string `json:"triggeredBy"`
}

type Task struct {
	ID           string          `db:"id"`
	TaskType     string          `db:"task_type"`
	Payload      json.RawMessage `db:"payload"`
	Priority     int             `db:"priority"`
	Status       TaskStatus      `db:"status"`
	ScheduledFor *string         `db:"scheduled_for"`
	StartedAt    *string         `db:"started_at"`
	CompletedAt  *string         `db:"completed_at"`
	FailedAt     *string         `db:"failed_at"`
	WorkerID     *string         `db:"worker_id"`
	RetryCount   int             `db:"retry_count"`
	MaxRetries   int             `db:"max_retries"`
	ErrorMessage *string         `db:"error_message"`
	CreatedAt    string          `db:"created_at"`
	UpdatedAt    string          `db:"updated_at"`
}

type ClaimedTask struct {
	ID       string          `db:"id"`
	TaskType string          `db:"task_type"`
	Payload  json.RawMessage `db:"payload"`
}
