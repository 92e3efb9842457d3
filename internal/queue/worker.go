package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
	"github.com/cuongbtq/invoice-notifier/internal/processor"
)

// JobRouter executes a decoded payload
type JobRouter interface {
	Route(ctx context.Context, payload domain.Payload, rep processor.Reporter) (any, error)
}

// WorkerConfig holds worker configuration
type WorkerConfig struct {
	ID                string
	Store             Store
	Consumer          Consumer
	Router            JobRouter
	Concurrency       int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	HeldRetryDelay    time.Duration
	Logger            *slog.Logger
	Now               func() time.Time
}

// Worker drains the broker and runs each job through the router
type Worker struct {
	workerID          string
	store             Store
	consumer          Consumer
	router            JobRouter
	concurrency       int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	staleAfter        time.Duration
	heldRetryDelay    time.Duration
	logger            *slog.Logger
	now               func() time.Time

	jobsChan chan dispatch
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// dispatch pairs a parsed message with the delivery it came from
type dispatch struct {
	msg      domain.JobMessage
	delivery Delivery
}

// NewWorker creates a new worker instance
func NewWorker(cfg WorkerConfig) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 4 * heartbeat
	}
	heldRetryDelay := cfg.HeldRetryDelay
	if heldRetryDelay <= 0 {
		heldRetryDelay = heartbeat
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		workerID:          cfg.ID,
		store:             cfg.Store,
		consumer:          cfg.Consumer,
		router:            cfg.Router,
		concurrency:       concurrency,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: heartbeat,
		staleAfter:        staleAfter,
		heldRetryDelay:    heldRetryDelay,
		logger:            logger.With(slog.String("worker_id", cfg.ID)),
		now:               now,
		jobsChan:          make(chan dispatch),
		stopChan:          make(chan struct{}),
	}
}

// Start consumes jobs until ctx is canceled, Stop is called or the broker
// closes the stream, then waits for in-flight jobs to finish.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Duration("heartbeat_interval", w.heartbeatInterval),
	)

	consumeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	deliveries, err := w.consumer.Consume(consumeCtx, w.workerID)
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	// in-flight jobs run to completion even after shutdown begins
	w.spawnWorkerPool(context.WithoutCancel(ctx))

	w.dispatchMessages(consumeCtx, deliveries)

	close(w.jobsChan)
	w.wg.Wait()

	w.logger.Info("Worker stopped")
	return nil
}

// Stop makes Start return once in-flight jobs finish
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
	})
}
