package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
	"github.com/cuongbtq/invoice-notifier/shared/logger"
)

func discardLogger() *slog.Logger {
	return logger.NewDiscard().Logger
}

type memJob struct {
	job       domain.Job
	logs      []domain.LogEntry
	heartbeat time.Time
}

// memStore is an in-memory Store with the same transition rules as the
// postgres store
type memStore struct {
	mu   sync.Mutex
	jobs map[string]*memJob
	now  func() time.Time

	claimErr  error
	createErr error
	claims    int
}

func newMemStore() *memStore {
	return &memStore{
		jobs: make(map[string]*memJob),
		now:  time.Now,
	}
}

func (s *memStore) CreateJob(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return s.createErr
	}
	s.jobs[job.JobID] = &memJob{job: *job}
	return nil
}

func (s *memStore) put(job domain.Job, heartbeat time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = &memJob{job: job, heartbeat: heartbeat}
}

func (s *memStore) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	job := j.job
	return &job, nil
}

func (s *memStore) GetLogs(_ context.Context, jobID string) ([]domain.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return []domain.LogEntry{}, nil
	}
	return append([]domain.LogEntry{}, j.logs...), nil
}

func (s *memStore) ListJobs(_ context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]domain.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if filter.JobType != "" && j.job.JobType != filter.JobType {
			continue
		}
		if filter.State != "" && j.job.State != filter.State {
			continue
		}
		if filter.Provider != "" && j.job.Provider != filter.Provider {
			continue
		}
		if c := filter.Cursor; c != nil {
			if j.job.CreatedAt.After(c.CreatedAt) {
				continue
			}
			if j.job.CreatedAt.Equal(c.CreatedAt) && j.job.JobID >= c.JobID {
				continue
			}
		}
		jobs = append(jobs, j.job)
	}

	sort.Slice(jobs, func(a, b int) bool {
		if !jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
		}
		return jobs[a].JobID > jobs[b].JobID
	})

	if len(jobs) > filter.PageSize+1 {
		jobs = jobs[:filter.PageSize+1]
	}
	return jobs, nil
}

func (s *memStore) ClaimJob(_ context.Context, jobID, workerID string, staleAfter time.Duration) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.claims++
	if s.claimErr != nil {
		return nil, s.claimErr
	}

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	switch {
	case j.job.State == domain.JobStateWaiting:
	case j.job.State == domain.JobStateActive && j.heartbeat.Before(s.now().Add(-staleAfter)):
	case j.job.State == domain.JobStateActive:
		return nil, domain.ErrJobHeld
	default:
		return nil, domain.ErrJobAlreadyClaimed
	}

	now := s.now()
	j.job.State = domain.JobStateActive
	j.job.WorkerID = &workerID
	j.job.ProcessedOn = &now
	j.job.UpdatedAt = now
	j.heartbeat = now

	job := j.job
	return &job, nil
}

func (s *memStore) UpdateProgress(_ context.Context, jobID string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok || j.job.State != domain.JobStateActive {
		return domain.ErrJobNotActive
	}
	if progress > j.job.Progress {
		j.job.Progress = progress
	}
	return nil
}

func (s *memStore) AppendLog(_ context.Context, jobID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	j.logs = append(j.logs, domain.LogEntry{Message: message, CreatedAt: s.now()})
	return nil
}

func (s *memStore) UpdateJobHeartbeat(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[jobID]; ok && j.job.State == domain.JobStateActive {
		j.heartbeat = s.now()
	}
	return nil
}

func (s *memStore) CompleteJob(_ context.Context, jobID string, returnValue json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok || j.job.State != domain.JobStateActive {
		return domain.ErrJobNotActive
	}

	now := s.now()
	j.job.State = domain.JobStateCompleted
	j.job.Progress = domain.ProgressMax
	j.job.ReturnValue = returnValue
	j.job.FinishedOn = &now
	return nil
}

func (s *memStore) FailJob(_ context.Context, jobID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok || j.job.State.IsTerminal() {
		return domain.ErrJobNotActive
	}

	now := s.now()
	j.job.State = domain.JobStateFailed
	j.job.FailedReason = &reason
	j.job.FinishedOn = &now
	return nil
}

// age moves a job's last heartbeat back by d
func (s *memStore) age(jobID string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		j.heartbeat = j.heartbeat.Add(-d)
	}
}

func (s *memStore) claimCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims
}

// memBroker delivers published messages through a buffered channel and
// records acknowledgements
type memBroker struct {
	ch         chan Delivery
	publishErr error

	mu        sync.Mutex
	published [][]byte
	acks      int
	nacks     []bool
}

func newMemBroker() *memBroker {
	return &memBroker{ch: make(chan Delivery, 32)}
}

func (b *memBroker) Publish(_ context.Context, body []byte, _ string) error {
	if b.publishErr != nil {
		return b.publishErr
	}

	b.mu.Lock()
	b.published = append(b.published, body)
	b.mu.Unlock()

	b.deliver(body, false)
	return nil
}

func (b *memBroker) deliver(body []byte, redelivered bool) {
	b.ch <- Delivery{
		Body:        body,
		Redelivered: redelivered,
		Ack: func() error {
			b.mu.Lock()
			b.acks++
			b.mu.Unlock()
			return nil
		},
		Nack: func(requeue bool) error {
			b.mu.Lock()
			b.nacks = append(b.nacks, requeue)
			b.mu.Unlock()
			return nil
		},
	}
}

func (b *memBroker) Consume(context.Context, string) (<-chan Delivery, error) {
	return b.ch, nil
}

func (b *memBroker) settled() (acks int, nacks []bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acks, append([]bool{}, b.nacks...)
}
