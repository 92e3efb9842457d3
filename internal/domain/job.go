package domain

import (
	"encoding/json"
	"time"
)

// Job is the durable job record owned by the queue engine
type Job struct {
	JobID        string          `db:"job_id"`
	JobName      string          `db:"job_name"`
	JobType      Kind            `db:"job_type"`
	Provider     string          `db:"provider"`
	Data         json.RawMessage `db:"data"`
	State        JobState        `db:"state"`
	Progress     int             `db:"progress"`
	ReturnValue  json.RawMessage `db:"return_value"`
	FailedReason *string         `db:"failed_reason"`
	WorkerID     *string         `db:"worker_id"`
	CreatedAt    time.Time       `db:"created_at"`
	ProcessedOn  *time.Time      `db:"processed_on"`
	FinishedOn   *time.Time      `db:"finished_on"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// LogEntry is one line of a job's append-only log
type LogEntry struct {
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
}

// JobSnapshot is the queryable view of a job: record plus its log
type JobSnapshot struct {
	Job
	Logs []LogEntry
}

// JobMessage represents a job message from RabbitMQ
type JobMessage struct {
	JobID       string `json:"job_id"`
	Redelivered bool   `json:"-"`
}

// JobFilter narrows the admin job history listing
type JobFilter struct {
	JobType  Kind
	State    JobState
	Provider string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the keyset position for paginating job history
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}
