package provider

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Factory builds an adapter from its settings
type Factory func(settings Settings, client ClientConfig, logger *slog.Logger) (Provider, error)

// DefaultFactories binds every provider id that has an adapter implementation
func DefaultFactories() map[string]Factory {
	return map[string]Factory{
		EONName: func(s Settings, c ClientConfig, l *slog.Logger) (Provider, error) {
			return NewEON(s, c, l)
		},
		NovaApaServName: func(s Settings, c ClientConfig, l *slog.Logger) (Provider, error) {
			return NewNovaApaServ(s, c, l)
		},
	}
}

// fallbackSupported is used when the catalog cannot be read
var fallbackSupported = []string{EONName}

// RegistryConfig holds registry dependencies
type RegistryConfig struct {
	CatalogPath string
	Settings    map[string]Settings
	Client      ClientConfig
	Factories   map[string]Factory
	Logger      *slog.Logger
}

// Registry resolves provider names to long-lived adapter instances. The
// supported set comes from the catalog and is read once until Reset.
type Registry struct {
	catalogPath string
	settings    map[string]Settings
	client      ClientConfig
	factories   map[string]Factory
	logger      *slog.Logger

	mu        sync.Mutex
	supported map[string]struct{}
	providers map[string]Provider
}

// NewRegistry creates a registry
func NewRegistry(cfg RegistryConfig) *Registry {
	factories := cfg.Factories
	if factories == nil {
		factories = DefaultFactories()
	}

	settings := make(map[string]Settings, len(cfg.Settings))
	for name, s := range cfg.Settings {
		settings[strings.ToLower(name)] = s
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		catalogPath: cfg.CatalogPath,
		settings:    settings,
		client:      cfg.Client,
		factories:   factories,
		logger:      logger,
		providers:   make(map[string]Provider),
	}
}

// Resolve returns the cached adapter for name, constructing it on first use.
// Names are case-insensitive.
func (r *Registry) Resolve(name string) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	r.mu.Lock()
	defer r.mu.Unlock()

	supported := r.loadSupportedLocked()
	if _, ok := supported[key]; !ok {
		return nil, &UnknownProviderError{Name: name, Supported: sortedKeys(supported)}
	}

	if p, ok := r.providers[key]; ok {
		return p, nil
	}

	factory, ok := r.factories[key]
	if !ok {
		return nil, &NotRegisteredError{Name: key}
	}

	p, err := factory(r.settings[key], r.client, r.logger)
	if err != nil {
		return nil, &NotRegisteredError{Name: key, Err: err}
	}

	r.providers[key] = p

	r.logger.Info("Provider initialized",
		slog.String("provider", key),
	)

	return p, nil
}

// IsSupported reports whether name is in the supported set
func (r *Registry) IsSupported(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.loadSupportedLocked()[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Supported returns the sorted supported provider ids
func (r *Registry) Supported() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedKeys(r.loadSupportedLocked())
}

// Reset drops cached adapters and the supported set so the next Resolve
// re-reads configuration
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = make(map[string]Provider)
	r.supported = nil
}

func (r *Registry) loadSupportedLocked() map[string]struct{} {
	if r.supported != nil {
		return r.supported
	}

	ids := fallbackSupported
	catalog, err := LoadCatalog(r.catalogPath)
	if err != nil {
		r.logger.Warn("Failed to load provider catalog, using default providers",
			slog.String("catalog_path", r.catalogPath),
			slog.String("error", err.Error()),
		)
	} else {
		ids = catalog.IDs()
	}

	r.supported = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		r.supported[id] = struct{}{}
	}

	return r.supported
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
