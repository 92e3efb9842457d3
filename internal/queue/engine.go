package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
	"github.com/google/uuid"
)

const (
	// DefaultPageSize applies when a listing asks for no explicit size
	DefaultPageSize = 20

	// MaxPageSize caps a single listing page
	MaxPageSize = 100

	messageContentType = "application/json"
)

// EngineConfig holds engine dependencies
type EngineConfig struct {
	Store     Store
	Publisher Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

// Engine accepts job requests and answers job queries
type Engine struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a job engine
func NewEngine(cfg EngineConfig) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		logger:    logger,
		now:       now,
	}
}

// Enqueue validates req, stores it as a waiting job and publishes it for the
// worker. It returns as soon as the job is queued. A ValidationError means no
// job was created.
func (e *Engine) Enqueue(ctx context.Context, req domain.Request) (*domain.Job, error) {
	payload, err := req.Payload()
	if err != nil {
		return nil, err
	}

	data, err := domain.EncodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job data: %w", err)
	}

	now := e.now().UTC()
	target := payload.Target()

	job := &domain.Job{
		JobID:     uuid.NewString(),
		JobName:   fmt.Sprintf("%s-%d", payload.Kind(), now.UnixMilli()),
		JobType:   payload.Kind(),
		Provider:  strings.ToLower(strings.TrimSpace(target.Provider)),
		Data:      data,
		State:     domain.JobStateWaiting,
		Progress:  domain.ProgressMin,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.store.CreateJob(ctx, job); err != nil {
		e.logger.Error("Failed to create job",
			slog.String("job_type", string(job.JobType)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	body, err := json.Marshal(domain.JobMessage{JobID: job.JobID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode job message: %w", err)
	}

	if err := e.publisher.Publish(ctx, body, messageContentType); err != nil {
		e.logger.Error("Failed to publish job",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)

		reason := "failed to publish job: " + err.Error()
		if failErr := e.store.FailJob(context.WithoutCancel(ctx), job.JobID, reason); failErr != nil {
			e.logger.Error("Failed to mark unpublished job as failed",
				slog.String("job_id", job.JobID),
				slog.String("error", failErr.Error()),
			)
		}
		return nil, fmt.Errorf("failed to publish job: %w", err)
	}

	e.logger.Info("Job enqueued",
		slog.String("job_id", job.JobID),
		slog.String("job_name", job.JobName),
		slog.String("job_type", string(job.JobType)),
		slog.String("provider", job.Provider),
	)

	return job, nil
}

// GetJob returns the job with its log. Unknown or malformed ids yield
// domain.ErrJobNotFound.
func (e *Engine) GetJob(ctx context.Context, jobID string) (*domain.JobSnapshot, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrJobNotFound
	}

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	logs, err := e.store.GetLogs(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job logs: %w", err)
	}

	return &domain.JobSnapshot{Job: *job, Logs: logs}, nil
}

// PageSize applies the listing default and cap to a requested page size
func PageSize(requested int) int {
	switch {
	case requested <= 0:
		return DefaultPageSize
	case requested > MaxPageSize:
		return MaxPageSize
	}
	return requested
}

// ListJobs returns up to PageSize+1 jobs newest first, so the caller can
// tell whether another page exists.
func (e *Engine) ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	filter.PageSize = PageSize(filter.PageSize)

	if filter.JobType != "" && !filter.JobType.Valid() {
		return nil, domain.NewValidationError("type", "type must be one of %s", domain.KindNames())
	}
	if filter.State != "" && !filter.State.Valid() {
		return nil, domain.NewValidationError("state", "state must be one of waiting, active, completed, failed")
	}
	filter.Provider = strings.ToLower(strings.TrimSpace(filter.Provider))

	jobs, err := e.store.ListJobs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// IsNotFound reports whether err means the job does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrJobNotFound)
}
