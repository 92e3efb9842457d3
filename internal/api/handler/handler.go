package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
)

// JobService is the queue engine surface the API needs
type JobService interface {
	Enqueue(ctx context.Context, req domain.Request) (*domain.Job, error)
	GetJob(ctx context.Context, jobID string) (*domain.JobSnapshot, error)
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Jobs          JobService
	CatalogPath   string
	APIToken      string
	AdminUsername string
	AdminPassword string

	// HealthCheck probes the database for GET /health. Nil skips the probe.
	HealthCheck func(ctx context.Context) error
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	jobs   JobService
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
	}
}
