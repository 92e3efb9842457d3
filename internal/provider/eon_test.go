package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEON struct {
	t          *testing.T
	logins     atomic.Int32
	dataCalls  atomic.Int32
	expiresIn  int64
	loginCode  int
	balanceErr []int // status codes returned by successive balance calls before succeeding
	mu         sync.Mutex
	invoices   map[string][]map[string]any
}

func newFakeEON(t *testing.T) (*fakeEON, *httptest.Server) {
	f := &fakeEON{
		t:         t,
		expiresIn: 3600,
		loginCode: http.StatusOK,
		invoices: map[string][]map[string]any{
			"unpaid": {
				{"invoiceNumber": "011895623139", "fiscalNumber": "F1", "balanceValue": 317.79, "issuedValue": 317.79, "maturityDate": "2025-11-20", "emissionDate": "2025-10-30T00:00:00", "state": "open"},
				{"invoiceNumber": "011895623140", "fiscalNumber": "F2", "balanceValue": 12.5, "issuedValue": 40, "maturityDate": "2025-12-20", "emissionDate": "2025-11-30"},
			},
			"paid": {
				{"invoiceNumber": "011895620001", "fiscalNumber": "F0", "balanceValue": 0, "issuedValue": 99.1, "maturityDate": "2025-09-20", "emissionDate": "2025-08-30", "state": "closed"},
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/users/v1/userauth/login", func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "sub-key", r.Header.Get(eonSubscriptionKey))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user@example.com", body["username"])

		if f.loginCode != http.StatusOK {
			w.WriteHeader(f.loginCode)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessToken": "token-1",
			"tokenType":   "Bearer",
			"expiresIn":   f.expiresIn,
		})
	})
	mux.HandleFunc("/invoices/v1/invoices/invoice-balance", func(w http.ResponseWriter, r *http.Request) {
		f.dataCalls.Add(1)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "0022", r.URL.Query().Get("accountContract"))

		f.mu.Lock()
		if len(f.balanceErr) > 0 {
			code := f.balanceErr[0]
			f.balanceErr = f.balanceErr[1:]
			f.mu.Unlock()
			w.WriteHeader(code)
			return
		}
		f.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]any{
			"balance":      330.29,
			"refund":       false,
			"date":         "2025-11-12",
			"hasGuarantee": true,
			"balancePay":   true,
		})
	})
	mux.HandleFunc("/invoices/v1/invoices/list", func(w http.ResponseWriter, r *http.Request) {
		f.dataCalls.Add(1)
		status := r.URL.Query().Get("status")
		_ = json.NewEncoder(w).Encode(f.invoices[status])
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestEON(t *testing.T, srv *httptest.Server, clock *fakeClock, maxRetries int) *EON {
	t.Helper()

	p, err := NewEON(Settings{
		BaseURL:  srv.URL,
		APIKey:   "sub-key",
		Username: "user@example.com",
		Password: "secret",
	}, ClientConfig{
		Timeout:       5 * time.Second,
		MaxRetries:    maxRetries,
		RetryInterval: time.Millisecond,
		Now:           clock.Now,
	}, discardLogger())
	require.NoError(t, err)
	return p
}

func TestEON_AuthenticateOncePerValidityWindow(t *testing.T) {
	fake, srv := newFakeEON(t)
	fake.expiresIn = 100
	clock := newFakeClock()
	p := newTestEON(t, srv, clock, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := p.FetchAccountData(ctx, "0022")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, fake.logins.Load())
	assert.EqualValues(t, 5, fake.dataCalls.Load())

	// 90% of the declared 100s lifetime
	clock.Advance(89 * time.Second)
	_, err := p.FetchAccountData(ctx, "0022")
	require.NoError(t, err)
	assert.EqualValues(t, 1, fake.logins.Load())

	clock.Advance(2 * time.Second)
	_, err = p.FetchAccountData(ctx, "0022")
	require.NoError(t, err)
	assert.EqualValues(t, 2, fake.logins.Load())
}

func TestEON_ConcurrentCallsShareLogin(t *testing.T) {
	fake, srv := newFakeEON(t)
	p := newTestEON(t, srv, newFakeClock(), 0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.FetchAccountData(context.Background(), "0022")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, fake.logins.Load())
}

func TestEON_AuthenticationFailure(t *testing.T) {
	fake, srv := newFakeEON(t)
	fake.loginCode = http.StatusUnauthorized
	p := newTestEON(t, srv, newFakeClock(), 3)

	_, err := p.FetchAccountData(context.Background(), "0022")
	require.Error(t, err)

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Equal(t, EONName, authErr.Provider)

	// logins are never retried
	assert.EqualValues(t, 1, fake.logins.Load())
	assert.EqualValues(t, 0, fake.dataCalls.Load())
}

func TestEON_FetchAccountData(t *testing.T) {
	_, srv := newFakeEON(t)
	p := newTestEON(t, srv, newFakeClock(), 0)

	balance, err := p.FetchAccountData(context.Background(), "0022")
	require.NoError(t, err)
	assert.Equal(t, 330.29, balance.Balance)
	assert.True(t, balance.HasGuarantee)
	assert.True(t, balance.BalancePay)
	assert.Nil(t, balance.RefundRequestCreatedAt)
}

func TestEON_UpstreamErrors(t *testing.T) {
	t.Run("client error is not retried", func(t *testing.T) {
		fake, srv := newFakeEON(t)
		fake.balanceErr = []int{http.StatusNotFound}
		p := newTestEON(t, srv, newFakeClock(), 3)

		_, err := p.FetchAccountData(context.Background(), "0022")
		require.Error(t, err)

		var upstreamErr *UpstreamRequestError
		require.True(t, errors.As(err, &upstreamErr))
		assert.Equal(t, http.StatusNotFound, upstreamErr.StatusCode)
		assert.Contains(t, err.Error(), "fetch account data")
		assert.EqualValues(t, 1, fake.dataCalls.Load())
	})

	t.Run("server error is retried", func(t *testing.T) {
		fake, srv := newFakeEON(t)
		fake.balanceErr = []int{http.StatusServiceUnavailable, http.StatusBadGateway}
		p := newTestEON(t, srv, newFakeClock(), 3)

		balance, err := p.FetchAccountData(context.Background(), "0022")
		require.NoError(t, err)
		assert.Equal(t, 330.29, balance.Balance)
		assert.EqualValues(t, 3, fake.dataCalls.Load())
	})

	t.Run("retries are bounded", func(t *testing.T) {
		fake, srv := newFakeEON(t)
		fake.balanceErr = []int{500, 500, 500, 500, 500}
		p := newTestEON(t, srv, newFakeClock(), 2)

		_, err := p.FetchAccountData(context.Background(), "0022")
		require.Error(t, err)

		var upstreamErr *UpstreamRequestError
		require.True(t, errors.As(err, &upstreamErr))
		assert.Equal(t, http.StatusInternalServerError, upstreamErr.StatusCode)
		assert.EqualValues(t, 3, fake.dataCalls.Load())
	})

	t.Run("unauthorized drops the cached token", func(t *testing.T) {
		fake, srv := newFakeEON(t)
		fake.balanceErr = []int{http.StatusUnauthorized}
		p := newTestEON(t, srv, newFakeClock(), 0)

		_, err := p.FetchAccountData(context.Background(), "0022")
		require.Error(t, err)

		_, err = p.FetchAccountData(context.Background(), "0022")
		require.NoError(t, err)
		assert.EqualValues(t, 2, fake.logins.Load())
	})
}

func TestEON_FetchInvoices(t *testing.T) {
	_, srv := newFakeEON(t)
	p := newTestEON(t, srv, newFakeClock(), 0)

	result, err := p.FetchInvoices(context.Background(), "0022", domain.InvoiceStatusUnpaid)
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)
	require.Len(t, result.Invoices, 2)

	first := result.Invoices[0]
	assert.Equal(t, "011895623139", first.InvoiceNumber)
	assert.Equal(t, domain.InvoiceStateUnpaid, first.State)
	assert.Equal(t, "2025-11-20T00:00:00.000Z", first.MaturityDate)
	assert.Equal(t, "2025-10-30T00:00:00.000Z", first.EmissionDate)
}

func TestEON_FetchAllInvoices(t *testing.T) {
	fake, srv := newFakeEON(t)
	p := newTestEON(t, srv, newFakeClock(), 0)
	ctx := context.Background()

	unpaid, err := p.FetchInvoices(ctx, "0022", domain.InvoiceStatusUnpaid)
	require.NoError(t, err)
	paid, err := p.FetchInvoices(ctx, "0022", domain.InvoiceStatusPaid)
	require.NoError(t, err)

	all, err := p.FetchInvoices(ctx, "0022", domain.InvoiceStatusAll)
	require.NoError(t, err)

	assert.Equal(t, unpaid.Count+paid.Count, all.Count)
	assert.Len(t, all.Invoices, all.Count)

	var splitUnpaid, splitPaid []domain.Invoice
	for _, inv := range all.Invoices {
		if inv.State == domain.InvoiceStateUnpaid {
			splitUnpaid = append(splitUnpaid, inv)
		} else {
			splitPaid = append(splitPaid, inv)
		}
	}
	assert.Equal(t, unpaid.Invoices, splitUnpaid)
	assert.Equal(t, paid.Invoices, splitPaid)

	assert.EqualValues(t, 1, fake.logins.Load())
}

func TestEON_PayAndRejectNotImplemented(t *testing.T) {
	fake, srv := newFakeEON(t)
	p := newTestEON(t, srv, newFakeClock(), 0)

	_, err := p.PayInvoice(context.Background(), "0022", "1", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotImplemented))
	assert.Contains(t, err.Error(), EONName)
	assert.Contains(t, err.Error(), CapabilityPayInvoice)

	_, err = p.RejectInvoice(context.Background(), "0022", "1", "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotImplemented))
	assert.Contains(t, err.Error(), CapabilityRejectInvoice)

	assert.EqualValues(t, 0, fake.logins.Load())
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "2025-11-20T00:00:00.000Z", normalizeDate("2025-11-20"))
	assert.Equal(t, "2025-11-20T08:30:00.000Z", normalizeDate("2025-11-20T10:30:00+02:00"))
	assert.Equal(t, "", normalizeDate(""))
	assert.Equal(t, "20.11.2025", normalizeDate("20.11.2025"))
}

func TestSafeTTL(t *testing.T) {
	assert.Equal(t, 54*time.Minute, safeTTL(time.Hour, time.Minute))
	assert.Equal(t, 15*time.Minute, safeTTL(0, 15*time.Minute))
}
