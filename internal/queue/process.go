package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
)

// processJob claims a job, runs it through the router under a timeout and
// heartbeat, and records the terminal state
func (w *Worker) processJob(ctx context.Context, msg domain.JobMessage) error {
	logger := w.logger.With(slog.String("job_id", msg.JobID))

	logger.Info("Processing job",
		slog.Bool("redelivered", msg.Redelivered),
	)

	// waiting -> active, or take over an active job whose owner stopped heartbeating
	job, err := w.store.ClaimJob(ctx, msg.JobID, w.workerID, w.staleAfter)
	if err != nil {
		if errors.Is(err, domain.ErrJobHeld) {
			// the owner may have died; retry until its heartbeat goes stale
			logger.Info("Job held by another worker, requeueing",
				slog.Duration("stale_after", w.staleAfter),
			)
			return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
		}
		if errors.Is(err, domain.ErrJobAlreadyClaimed) || errors.Is(err, domain.ErrJobNotFound) {
			logger.Warn("Job not claimable, skipping",
				slog.String("reason", err.Error()),
			)
			return fmt.Errorf("failed to claim job: %w", err)
		}
		logger.Error("Failed to claim job",
			slog.String("error", err.Error()),
		)
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	logger = logger.With(slog.String("job_type", string(job.JobType)))

	payload, err := domain.DecodePayload(job.Data)
	if err != nil {
		logger.Error("Failed to decode job data",
			slog.String("error", err.Error()),
		)
		w.fail(ctx, logger, job.JobID, err)
		return err
	}

	jobCtx, cancel := w.jobContext(ctx)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go w.sendJobHeartbeat(jobCtx, job.JobID, heartbeatDone)
	defer close(heartbeatDone)

	start := w.now()
	result, err := w.router.Route(jobCtx, payload, newJobReporter(w.store, job))
	if err != nil {
		logger.Error("Job execution failed",
			slog.Duration("duration", w.now().Sub(start)),
			slog.String("error", err.Error()),
		)
		w.fail(ctx, logger, job.JobID, err)
		return fmt.Errorf("job execution failed: %w", err)
	}

	returnValue, err := json.Marshal(result)
	if err != nil {
		err = fmt.Errorf("failed to encode job result: %w", err)
		w.fail(ctx, logger, job.JobID, err)
		return err
	}

	if err := w.store.CompleteJob(ctx, job.JobID, returnValue); err != nil {
		// the job ran; requeueing would run it again
		logger.Error("Failed to mark job completed",
			slog.String("error", err.Error()),
		)
		return nil
	}

	logger.Info("Job completed successfully",
		slog.Duration("duration", w.now().Sub(start)),
	)

	return nil
}

func (w *Worker) jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.jobTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.jobTimeout)
}

// fail records err as the job's failure reason
func (w *Worker) fail(ctx context.Context, logger *slog.Logger, jobID string, cause error) {
	if err := w.store.FailJob(ctx, jobID, cause.Error()); err != nil {
		logger.Error("Failed to mark job failed",
			slog.String("error", err.Error()),
		)
	}
}

// sendJobHeartbeat keeps the claim fresh while the job runs
func (w *Worker) sendJobHeartbeat(ctx context.Context, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.UpdateJobHeartbeat(ctx, jobID); err != nil {
				w.logger.Warn("Failed to update job heartbeat",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
