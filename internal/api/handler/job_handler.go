package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/invoice-notifier/internal/api/dto"
	"github.com/cuongbtq/invoice-notifier/internal/domain"
	"github.com/cuongbtq/invoice-notifier/internal/queue"
	"github.com/gin-gonic/gin"
)

// AddJob handles POST /add-job
func (h *JobHandler) AddJob(c *gin.Context) {
	var req domain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	job, err := h.jobs.Enqueue(c.Request.Context(), req)
	if err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: validationErr.Message})
			return
		}

		h.logger.Error("Failed to add job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to add job"})
		return
	}

	c.JSON(http.StatusOK, dto.AddJobResponse{
		OK:      true,
		JobID:   job.JobID,
		JobName: job.JobName,
		JobType: string(job.JobType),
	})
}

// GetJob handles GET /job/:jobId
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("jobId")

	snapshot, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Job not found", JobID: jobID})
			return
		}

		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get job"})
		return
	}

	logs := make([]string, len(snapshot.Logs))
	for i, l := range snapshot.Logs {
		logs[i] = l.Message
	}

	c.JSON(http.StatusOK, dto.JobResponse{
		JobID:        snapshot.JobID,
		JobName:      snapshot.JobName,
		State:        string(snapshot.State),
		Progress:     snapshot.Progress,
		Data:         snapshot.Data,
		ReturnValue:  snapshot.ReturnValue,
		FailedReason: snapshot.FailedReason,
		ProcessedOn:  unixMillis(snapshot.ProcessedOn),
		FinishedOn:   unixMillis(snapshot.FinishedOn),
		Logs:         logs,
	})
}

// ListJobs handles GET /admin/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	req.PageSize = queue.PageSize(req.PageSize)

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor"})
		return
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), domain.JobFilter{
		JobType:  domain.Kind(req.Type),
		State:    domain.JobState(req.State),
		Provider: req.Provider,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: validationErr.Message})
			return
		}

		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list jobs"})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	rows := make([]dto.JobDTO, len(jobs))
	for i, job := range jobs {
		rows[i] = dto.JobDTO{
			JobID:        job.JobID,
			JobName:      job.JobName,
			JobType:      string(job.JobType),
			Provider:     job.Provider,
			State:        string(job.State),
			Progress:     job.Progress,
			FailedReason: job.FailedReason,
			CreatedAt:    job.CreatedAt.UTC().Format(time.RFC3339),
			ProcessedOn:  rfc3339(job.ProcessedOn),
			FinishedOn:   rfc3339(job.FinishedOn),
		}
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(domain.JobCursor{CreatedAt: last.CreatedAt, JobID: last.JobID})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       rows,
		NextCursor: nextCursor,
	})
}

func unixMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func rfc3339(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
