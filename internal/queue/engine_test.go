package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(v float64) *float64 { return &v }

func newTestEngine(store *memStore, broker *memBroker, now func() time.Time) *Engine {
	return NewEngine(EngineConfig{
		Store:     store,
		Publisher: broker,
		Logger:    discardLogger(),
		Now:       now,
	})
}

func TestEngine_EnqueueEveryKind(t *testing.T) {
	requests := map[domain.Kind]domain.Request{
		domain.KindFetchAccountData: {Type: domain.KindFetchAccountData, Provider: "eon", AccountContract: "002201234567"},
		domain.KindFetchInvoice:     {Type: domain.KindFetchInvoice, Provider: "eon", AccountContract: "002201234567", Status: domain.InvoiceStatusPaid},
		domain.KindPayInvoice:       {Type: domain.KindPayInvoice, Provider: "eon", AccountContract: "002201234567", InvoiceNumber: "INV-1", Amount: amount(12.5)},
		domain.KindRejectInvoice:    {Type: domain.KindRejectInvoice, Provider: "eon", AccountContract: "002201234567", InvoiceNumber: "INV-1", Reason: "duplicate"},
	}

	fixed := time.Date(2025, 11, 12, 8, 0, 0, 0, time.UTC)

	for kind, req := range requests {
		t.Run(string(kind), func(t *testing.T) {
			store := newMemStore()
			broker := newMemBroker()
			engine := newTestEngine(store, broker, func() time.Time { return fixed })

			job, err := engine.Enqueue(context.Background(), req)
			require.NoError(t, err)

			_, err = uuid.Parse(job.JobID)
			require.NoError(t, err)
			assert.Equal(t, string(kind)+"-1762934400000", job.JobName)
			assert.Equal(t, kind, job.JobType)
			assert.Equal(t, domain.JobStateWaiting, job.State)

			snapshot, err := engine.GetJob(context.Background(), job.JobID)
			require.NoError(t, err)
			assert.Equal(t, domain.JobStateWaiting, snapshot.State)
			assert.Zero(t, snapshot.Progress)
			assert.Empty(t, snapshot.Logs)

			var stored domain.Request
			require.NoError(t, json.Unmarshal(snapshot.Data, &stored))
			assert.Equal(t, kind, stored.Type)

			require.Len(t, broker.published, 1)
			assert.JSONEq(t, `{"job_id":"`+job.JobID+`"}`, string(broker.published[0]))
		})
	}
}

func TestEngine_EnqueueDefaultsInvoiceStatus(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store, newMemBroker(), nil)

	job, err := engine.Enqueue(context.Background(), domain.Request{Type: domain.KindFetchInvoice, Provider: "EON", AccountContract: "1"})
	require.NoError(t, err)

	payload, err := domain.DecodePayload(job.Data)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusUnpaid, payload.(domain.FetchInvoice).Status)
	assert.Equal(t, "eon", job.Provider)
}

func TestEngine_EnqueueNamesAreUnique(t *testing.T) {
	clock := time.Date(2025, 11, 12, 8, 0, 0, 0, time.UTC)
	engine := newTestEngine(newMemStore(), newMemBroker(), func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	})

	req := domain.Request{Type: domain.KindFetchAccountData, Provider: "eon", AccountContract: "1"}
	first, err := engine.Enqueue(context.Background(), req)
	require.NoError(t, err)
	second, err := engine.Enqueue(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, first.JobID, second.JobID)
	assert.NotEqual(t, first.JobName, second.JobName)
	assert.True(t, strings.HasPrefix(second.JobName, "fetch-account-data-"))
}

func TestEngine_EnqueueRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name    string
		req     domain.Request
		message string
	}{
		{
			name:    "pay without amount",
			req:     domain.Request{Type: domain.KindPayInvoice, Provider: "eon", AccountContract: "1", InvoiceNumber: "INV-1"},
			message: "pay-invoice requires invoiceNumber and amount",
		},
		{
			name:    "reject without reason",
			req:     domain.Request{Type: domain.KindRejectInvoice, Provider: "eon", AccountContract: "1", InvoiceNumber: "INV-1"},
			message: "reject-invoice requires invoiceNumber and reason",
		},
		{
			name:    "unknown type",
			req:     domain.Request{Type: "refund", Provider: "eon", AccountContract: "1"},
			message: "type must be one of",
		},
		{
			name:    "missing provider",
			req:     domain.Request{Type: domain.KindFetchAccountData, AccountContract: "1"},
			message: "provider is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			broker := newMemBroker()
			engine := newTestEngine(store, broker, nil)

			job, err := engine.Enqueue(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, job)
			assert.True(t, domain.IsValidationError(err))
			assert.Contains(t, err.Error(), tt.message)

			assert.Empty(t, store.jobs)
			assert.Empty(t, broker.published)
		})
	}
}

func TestEngine_EnqueueStoreFailure(t *testing.T) {
	store := newMemStore()
	store.createErr = errors.New("connection refused")
	broker := newMemBroker()

	_, err := newTestEngine(store, broker, nil).Enqueue(context.Background(), domain.Request{Type: domain.KindFetchAccountData, Provider: "eon", AccountContract: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create job")
	assert.Empty(t, broker.published)
}

func TestEngine_EnqueuePublishFailureFailsJob(t *testing.T) {
	store := newMemStore()
	broker := newMemBroker()
	broker.publishErr = errors.New("channel closed")

	_, err := newTestEngine(store, broker, nil).Enqueue(context.Background(), domain.Request{Type: domain.KindFetchAccountData, Provider: "eon", AccountContract: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")

	require.Len(t, store.jobs, 1)
	for _, j := range store.jobs {
		assert.Equal(t, domain.JobStateFailed, j.job.State)
		require.NotNil(t, j.job.FailedReason)
		assert.Contains(t, *j.job.FailedReason, "failed to publish job")
	}
}

func TestEngine_GetJobNotFound(t *testing.T) {
	engine := newTestEngine(newMemStore(), newMemBroker(), nil)

	for _, id := range []string{uuid.NewString(), "not-a-uuid", ""} {
		_, err := engine.GetJob(context.Background(), id)
		assert.True(t, IsNotFound(err), id)
	}
}

func TestEngine_ListJobs(t *testing.T) {
	store := newMemStore()
	base := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		kind := domain.KindFetchInvoice
		if i%2 == 0 {
			kind = domain.KindFetchAccountData
		}
		store.put(domain.Job{
			JobID:     uuid.NewString(),
			JobType:   kind,
			Provider:  "eon",
			State:     domain.JobStateWaiting,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}, time.Time{})
	}

	engine := newTestEngine(store, newMemBroker(), nil)

	t.Run("filter by type", func(t *testing.T) {
		jobs, err := engine.ListJobs(context.Background(), domain.JobFilter{JobType: domain.KindFetchAccountData})
		require.NoError(t, err)
		require.Len(t, jobs, 3)
		assert.True(t, jobs[0].CreatedAt.After(jobs[1].CreatedAt))
	})

	t.Run("page size includes lookahead row", func(t *testing.T) {
		jobs, err := engine.ListJobs(context.Background(), domain.JobFilter{PageSize: 2})
		require.NoError(t, err)
		assert.Len(t, jobs, 3)
	})

	t.Run("provider filter is case insensitive", func(t *testing.T) {
		jobs, err := engine.ListJobs(context.Background(), domain.JobFilter{Provider: "EON"})
		require.NoError(t, err)
		assert.Len(t, jobs, 5)
	})

	t.Run("invalid filters", func(t *testing.T) {
		_, err := engine.ListJobs(context.Background(), domain.JobFilter{JobType: "refund"})
		assert.True(t, domain.IsValidationError(err))

		_, err = engine.ListJobs(context.Background(), domain.JobFilter{State: "done"})
		assert.True(t, domain.IsValidationError(err))
	})
}

func TestPageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, PageSize(0))
	assert.Equal(t, DefaultPageSize, PageSize(-5))
	assert.Equal(t, 7, PageSize(7))
	assert.Equal(t, MaxPageSize, PageSize(MaxPageSize+1))
}
