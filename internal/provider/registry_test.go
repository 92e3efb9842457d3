package provider

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name     string
	settings Settings
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Authenticate(context.Context) (Credential, error) {
	return Credential{Token: "stub"}, nil
}

func (s *stubProvider) FetchAccountData(context.Context, string) (*domain.AccountBalance, error) {
	return &domain.AccountBalance{}, nil
}

func (s *stubProvider) FetchInvoices(context.Context, string, domain.InvoiceStatus) (*domain.InvoiceList, error) {
	return &domain.InvoiceList{Invoices: []domain.Invoice{}}, nil
}

func (s *stubProvider) PayInvoice(context.Context, string, string, float64) (*domain.PaymentResult, error) {
	return nil, &NotImplementedError{Provider: s.name, Capability: CapabilityPayInvoice}
}

func (s *stubProvider) RejectInvoice(context.Context, string, string, string) (*domain.RejectionResult, error) {
	return nil, &NotImplementedError{Provider: s.name, Capability: CapabilityRejectInvoice}
}

func countingFactory(name string, calls *atomic.Int32) Factory {
	return func(settings Settings, _ ClientConfig, _ *slog.Logger) (Provider, error) {
		calls.Add(1)
		return &stubProvider{name: name, settings: settings}, nil
	}
}

func testCatalogPath() string {
	return filepath.Join("testdata", "providers.json")
}

func TestRegistry_ResolveIsCaseInsensitive(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry(RegistryConfig{
		CatalogPath: testCatalogPath(),
		Factories:   map[string]Factory{EONName: countingFactory(EONName, &calls)},
		Logger:      discardLogger(),
	})

	lower, err := r.Resolve("eon")
	require.NoError(t, err)
	upper, err := r.Resolve("EON")
	require.NoError(t, err)
	padded, err := r.Resolve("  Eon ")
	require.NoError(t, err)

	assert.Same(t, lower, upper)
	assert.Same(t, lower, padded)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRegistry_SettingsAreMatchedByLowercaseName(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry(RegistryConfig{
		CatalogPath: testCatalogPath(),
		Settings:    map[string]Settings{"EON": {BaseURL: "https://eon.example", Username: "u"}},
		Factories:   map[string]Factory{EONName: countingFactory(EONName, &calls)},
		Logger:      discardLogger(),
	})

	p, err := r.Resolve("eon")
	require.NoError(t, err)
	assert.Equal(t, "https://eon.example", p.(*stubProvider).settings.BaseURL)
}

func TestRegistry_UnknownProvider(t *testing.T) {
	r := NewRegistry(RegistryConfig{
		CatalogPath: testCatalogPath(),
		Logger:      discardLogger(),
	})

	_, err := r.Resolve("enel")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownProvider))
	assert.Equal(t, "unknown provider: enel. Supported providers: acme-gas, eon, nova-apa-serv", err.Error())
}

func TestRegistry_SupportedWithoutAdapter(t *testing.T) {
	r := NewRegistry(RegistryConfig{
		CatalogPath: testCatalogPath(),
		Logger:      discardLogger(),
	})

	_, err := r.Resolve("acme-gas")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotRegistered))
	assert.False(t, errors.Is(err, ErrUnknownProvider))
	assert.Contains(t, err.Error(), "acme-gas")
}

func TestRegistry_FactoryFailure(t *testing.T) {
	boom := errors.New("bad settings")
	r := NewRegistry(RegistryConfig{
		CatalogPath: testCatalogPath(),
		Factories: map[string]Factory{
			EONName: func(Settings, ClientConfig, *slog.Logger) (Provider, error) { return nil, boom },
		},
		Logger: discardLogger(),
	})

	_, err := r.Resolve("eon")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotRegistered))
	assert.True(t, errors.Is(err, boom))
}

func TestRegistry_FallbackWhenCatalogMissing(t *testing.T) {
	r := NewRegistry(RegistryConfig{
		CatalogPath: filepath.Join(t.TempDir(), "missing.json"),
		Logger:      discardLogger(),
	})

	assert.Equal(t, []string{EONName}, r.Supported())
	assert.True(t, r.IsSupported("EON"))
	assert.False(t, r.IsSupported(NovaApaServName))

	p, err := r.Resolve("eon")
	require.NoError(t, err)
	assert.Equal(t, EONName, p.Name())

	_, err = r.Resolve("acme-gas")
	require.Error(t, err)
	assert.Equal(t, "unknown provider: acme-gas. Supported providers: eon", err.Error())
}

func TestRegistry_DefaultFactoriesBuildRealAdapters(t *testing.T) {
	r := NewRegistry(RegistryConfig{
		CatalogPath: testCatalogPath(),
		Logger:      discardLogger(),
	})

	eon, err := r.Resolve("eon")
	require.NoError(t, err)
	assert.IsType(t, &EON{}, eon)

	nova, err := r.Resolve("NOVA-APA-SERV")
	require.NoError(t, err)
	assert.IsType(t, &NovaApaServ{}, nova)
	assert.Equal(t, NovaApaServName, nova.Name())
}

func TestRegistry_ConcurrentFirstAccessBuildsOnce(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry(RegistryConfig{
		CatalogPath: testCatalogPath(),
		Factories:   map[string]Factory{EONName: countingFactory(EONName, &calls)},
		Logger:      discardLogger(),
	})

	const callers = 32
	results := make([]Provider, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := r.Resolve("eon")
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, p := range results {
		assert.Same(t, results[0], p)
	}
}

func TestRegistry_Reset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.json")

	var calls atomic.Int32
	r := NewRegistry(RegistryConfig{
		CatalogPath: path,
		Factories:   map[string]Factory{EONName: countingFactory(EONName, &calls)},
		Logger:      discardLogger(),
	})

	first, err := r.Resolve("eon")
	require.NoError(t, err)
	assert.Equal(t, []string{EONName}, r.Supported())

	writeFile(t, path, `{"providers":[{"id":"eon"},{"id":"nova-apa-serv"}]}`)
	assert.Equal(t, []string{EONName}, r.Supported(), "supported set is read once")

	r.Reset()
	assert.Equal(t, []string{EONName, NovaApaServName}, r.Supported())

	second, err := r.Resolve("eon")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.EqualValues(t, 2, calls.Load())
}
