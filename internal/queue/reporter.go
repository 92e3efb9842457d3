package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
)

// jobReporter writes a processor's progress and log lines to the store.
// Writes outlive the job's deadline so a timed-out job can still log why.
type jobReporter struct {
	store Store
	jobID string

	mu       sync.Mutex
	progress int
}

func newJobReporter(store Store, job *domain.Job) *jobReporter {
	return &jobReporter{
		store:    store,
		jobID:    job.JobID,
		progress: job.Progress,
	}
}

func (r *jobReporter) Log(ctx context.Context, message string) error {
	return r.store.AppendLog(context.WithoutCancel(ctx), r.jobID, message)
}

// UpdateProgress ignores values below the current progress
func (r *jobReporter) UpdateProgress(ctx context.Context, progress int) error {
	if progress < domain.ProgressMin || progress > domain.ProgressMax {
		return fmt.Errorf("progress %d out of range [%d, %d]", progress, domain.ProgressMin, domain.ProgressMax)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if progress <= r.progress {
		return nil
	}

	if err := r.store.UpdateProgress(context.WithoutCancel(ctx), r.jobID, progress); err != nil {
		return err
	}
	r.progress = progress
	return nil
}
