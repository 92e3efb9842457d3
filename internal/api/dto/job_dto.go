package dto

import (
	"encoding/json"

	"github.com/cuongbtq/invoice-notifier/internal/provider"
)

// AddJobResponse is returned once a job is queued
type AddJobResponse struct {
	OK      bool   `json:"ok"`
	JobID   string `json:"jobId"`
	JobName string `json:"jobName"`
	JobType string `json:"jobType"`
}

// JobResponse is the job status view. Timestamps are unix milliseconds.
type JobResponse struct {
	JobID        string          `json:"jobId"`
	JobName      string          `json:"jobName"`
	State        string          `json:"state"`
	Progress     int             `json:"progress"`
	Data         json.RawMessage `json:"data"`
	ReturnValue  json.RawMessage `json:"returnvalue"`
	FailedReason *string         `json:"failedReason"`
	ProcessedOn  *int64          `json:"processedOn"`
	FinishedOn   *int64          `json:"finishedOn"`
	Logs         []string        `json:"logs"`
}

// ProvidersResponse lists the provider catalog
type ProvidersResponse struct {
	Providers []provider.Listing `json:"providers"`
	Count     int                `json:"count"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	JobID   string `json:"jobId,omitempty"`
}

// ListJobsRequest holds admin history filters
type ListJobsRequest struct {
	Type     string `form:"type"`
	State    string `form:"state"`
	Provider string `form:"provider"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// ListJobsResponse is one page of job history
type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// JobDTO is a job history row
type JobDTO struct {
	JobID        string  `json:"job_id"`
	JobName      string  `json:"job_name"`
	JobType      string  `json:"job_type"`
	Provider     string  `json:"provider"`
	State        string  `json:"state"`
	Progress     int     `json:"progress"`
	FailedReason *string `json:"failed_reason,omitempty"`
	CreatedAt    string  `json:"created_at"`
	ProcessedOn  *string `json:"processed_on,omitempty"`
	FinishedOn   *string `json:"finished_on,omitempty"`
}
