package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
	"github.com/google/uuid"
)

// dispatchMessages parses deliveries and hands them to the worker pool
func (w *Worker) dispatchMessages(ctx context.Context, deliveries <-chan Delivery) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("Delivery channel closed")
				return
			}

			var msg domain.JobMessage
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				w.logger.Error("Failed to parse message JSON",
					slog.String("error", err.Error()),
				)
				w.discard(delivery)
				continue
			}

			if _, err := uuid.Parse(msg.JobID); err != nil {
				w.logger.Error("Invalid job_id format - not a UUID",
					slog.String("job_id", msg.JobID),
				)
				w.discard(delivery)
				continue
			}
			msg.Redelivered = delivery.Redelivered

			select {
			case w.jobsChan <- dispatch{msg: msg, delivery: delivery}:
			case <-ctx.Done():
				w.requeue(delivery)
				return
			case <-w.stopChan:
				w.requeue(delivery)
				return
			}
		}
	}
}

func (w *Worker) discard(d Delivery) {
	if err := d.Nack(false); err != nil {
		w.logger.Error("Failed to NACK malformed message",
			slog.String("error", err.Error()),
		)
	}
}

func (w *Worker) requeue(d Delivery) {
	if err := d.Nack(true); err != nil {
		w.logger.Error("Failed to NACK message on shutdown",
			slog.String("error", err.Error()),
		)
	}
}
