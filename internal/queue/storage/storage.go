// Package storage is the postgres implementation of the job store.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
	"github.com/jmoiron/sqlx"
)

// return_value is coalesced because a NULL cannot be scanned into
// json.RawMessage. JSON parameters are passed as strings: lib/pq encodes
// []byte as bytea.
const jobColumns = `
	job_id, job_name, job_type, provider, data, state, progress,
	COALESCE(return_value, 'null'::jsonb) AS return_value,
	failed_reason, worker_id, created_at, processed_on, finished_on, updated_at`

// Storage handles all job database operations
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts a new job record
func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, job_name, job_type, provider,
			data, state, progress, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9
		)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.JobID,
		job.JobName,
		job.JobType,
		job.Provider,
		string(job.Data),
		job.State,
		job.Progress,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by its ID
func (s *Storage) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// GetLogs returns a job's log lines in insertion order
func (s *Storage) GetLogs(ctx context.Context, jobID string) ([]domain.LogEntry, error) {
	query := `
		SELECT message, created_at
		FROM job_logs
		WHERE job_id = $1
		ORDER BY log_id
	`

	logs := []domain.LogEntry{}
	if err := s.db.SelectContext(ctx, &logs, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to get job logs: %w", err)
	}

	return logs, nil
}

// ListJobs returns jobs newest first, fetching one row past PageSize so the
// caller can detect a further page
func (s *Storage) ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}

	if filter.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, filter.State)
		argIdx++
	}

	if filter.Provider != "" {
		query += fmt.Sprintf(" AND provider = $%d", argIdx)
		args = append(args, filter.Provider)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	jobs := []domain.Job{}
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// ClaimJob moves a waiting job to active, or takes over an active job whose
// heartbeat is older than staleAfter. Staleness is judged by the database
// clock, the same clock that writes heartbeats.
func (s *Storage) ClaimJob(ctx context.Context, jobID, workerID string, staleAfter time.Duration) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET state = $1,
		    worker_id = $2,
		    processed_on = NOW(),
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
		  AND (state = $4 OR (state = $1 AND last_heartbeat_at < NOW() - $5 * INTERVAL '1 millisecond'))
		RETURNING ` + jobColumns

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query,
		domain.JobStateActive,
		workerID,
		jobID,
		domain.JobStateWaiting,
		staleAfter.Milliseconds(),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.unclaimableReason(ctx, jobID)
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
		slog.String("job_type", string(job.JobType)),
	)

	return &job, nil
}

// unclaimableReason tells a job held by a live worker apart from one that is
// missing or already finished
func (s *Storage) unclaimableReason(ctx context.Context, jobID string) error {
	var state domain.JobState
	err := s.db.GetContext(ctx, &state, `SELECT state FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrJobNotFound
		}
		return fmt.Errorf("failed to read job state: %w", err)
	}

	if state == domain.JobStateActive {
		return domain.ErrJobHeld
	}
	return domain.ErrJobAlreadyClaimed
}

// UpdateProgress raises an active job's progress; it never lowers it
func (s *Storage) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	query := `
		UPDATE jobs
		SET progress = GREATEST(progress, $1),
		    updated_at = NOW()
		WHERE job_id = $2 AND state = $3
	`

	return s.execActive(ctx, "update job progress", query, progress, jobID, domain.JobStateActive)
}

// AppendLog adds a line to the job's log
func (s *Storage) AppendLog(ctx context.Context, jobID, message string) error {
	query := `INSERT INTO job_logs (job_id, message) VALUES ($1, $2)`

	if _, err := s.db.ExecContext(ctx, query, jobID, message); err != nil {
		return fmt.Errorf("failed to append job log: %w", err)
	}
	return nil
}

// UpdateJobHeartbeat refreshes last_heartbeat_at for an active job
func (s *Storage) UpdateJobHeartbeat(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $1 AND state = $2
	`

	result, err := s.db.ExecContext(ctx, query, jobID, domain.JobStateActive)
	if err != nil {
		return fmt.Errorf("failed to update job heartbeat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job heartbeat update - no rows affected (job may not be active)",
			slog.String("job_id", jobID),
		)
	}

	return nil
}

// CompleteJob stores the return value and marks an active job completed
func (s *Storage) CompleteJob(ctx context.Context, jobID string, returnValue json.RawMessage) error {
	query := `
		UPDATE jobs
		SET state = $1,
		    progress = $2,
		    return_value = $3,
		    finished_on = NOW(),
		    updated_at = NOW()
		WHERE job_id = $4 AND state = $5
	`

	return s.execActive(ctx, "complete job", query,
		domain.JobStateCompleted,
		domain.ProgressMax,
		string(returnValue),
		jobID,
		domain.JobStateActive,
	)
}

// FailJob records the failure reason on a waiting or active job
func (s *Storage) FailJob(ctx context.Context, jobID, reason string) error {
	query := `
		UPDATE jobs
		SET state = $1,
		    failed_reason = $2,
		    finished_on = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3 AND state IN ($4, $5)
	`

	return s.execActive(ctx, "fail job", query,
		domain.JobStateFailed,
		reason,
		jobID,
		domain.JobStateWaiting,
		domain.JobStateActive,
	)
}

// execActive runs a state-guarded update and maps zero rows to ErrJobNotActive
func (s *Storage) execActive(ctx context.Context, operation, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", operation, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("failed to %s: %w", operation, domain.ErrJobNotActive)
	}

	return nil
}
