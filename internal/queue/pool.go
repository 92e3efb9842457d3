package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
)

// spawnWorkerPool starts one goroutine per unit of concurrency
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop processes dispatched jobs until jobsChan is closed
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)

	for d := range w.jobsChan {
		err := w.processJob(ctx, d.msg)

		if err != nil {
			requeue := shouldRequeueJob(err)

			w.logger.Warn("Job processing failed",
				slog.String("worker_name", workerName),
				slog.String("job_id", d.msg.JobID),
				slog.Bool("requeue", requeue),
				slog.String("error", err.Error()),
			)

			if errors.Is(err, domain.ErrJobHeld) {
				w.waitBeforeRequeue()
			}

			if nackErr := d.delivery.Nack(requeue); nackErr != nil {
				w.logger.Error("Failed to NACK message",
					slog.String("worker_name", workerName),
					slog.String("job_id", d.msg.JobID),
					slog.String("error", nackErr.Error()),
				)
			}
			continue
		}

		if ackErr := d.delivery.Ack(); ackErr != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("worker_name", workerName),
				slog.String("job_id", d.msg.JobID),
				slog.String("error", ackErr.Error()),
			)
		}
	}

	w.logger.Debug("Worker goroutine stopped",
		slog.String("worker_name", workerName),
	)
}

// waitBeforeRequeue spaces out redeliveries of a held job so they do not spin
// while its owner's heartbeat ages
func (w *Worker) waitBeforeRequeue() {
	timer := time.NewTimer(w.heldRetryDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-w.stopChan:
	}
}

// shouldRequeueJob requeues only transient failures that happened before the
// job was claimed. Failed jobs stay failed.
func shouldRequeueJob(err error) bool {
	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
