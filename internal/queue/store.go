// Package queue is the job engine: it persists submitted jobs, publishes them
// to the broker and runs a worker that claims, executes and finalizes them.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
)

// Store is the durable job record. Implementations must make state
// transitions atomic: only a waiting job, or an active job whose heartbeat is
// older than staleAfter, can be claimed; only an active job can complete.
// ClaimJob reports ErrJobHeld for an active job that is not yet stale.
type Store interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	GetLogs(ctx context.Context, jobID string) ([]domain.LogEntry, error)
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error)

	ClaimJob(ctx context.Context, jobID, workerID string, staleAfter time.Duration) (*domain.Job, error)
	UpdateProgress(ctx context.Context, jobID string, progress int) error
	AppendLog(ctx context.Context, jobID, message string) error
	UpdateJobHeartbeat(ctx context.Context, jobID string) error
	CompleteJob(ctx context.Context, jobID string, returnValue json.RawMessage) error
	FailJob(ctx context.Context, jobID, reason string) error
}
