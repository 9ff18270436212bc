package ai

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/auswanderer-plattform/backend/internal/encryption"
	"github.com/auswanderer-plattform/backend/internal/logging"
	"github.com/auswanderer-plattform/backend/internal/models"
	"github.com/auswanderer-plattform/backend/internal/monitoring"
)

const (
	// DefaultConfigCacheTTL is how long active provider configs are reused
	DefaultConfigCacheTTL = time.Minute

	activeConfigsKey = "active"
	costCacheSize    = 256
)

// ConfigSource loads provider configuration
type ConfigSource interface {
	// ActiveConfigs returns every config with is_active set.
	ActiveConfigs(ctx context.Context) ([]models.ProviderConfig, error)
}

// CatalogSource loads model pricing and availability
type CatalogSource interface {
	// ModelCosts returns nil, nil when the model is not in the catalog.
	ModelCosts(ctx context.Context, modelID string) (*models.ModelCosts, error)
	AvailableModels(ctx context.Context, provider models.Provider) ([]models.ModelCatalogEntry, error)
}

// EnvKeys are API keys from the environment, used when a config has no stored key
type EnvKeys map[models.Provider]string

// envDefaults are the configs used when the config store is unreachable
var envDefaults = []models.ProviderConfig{
	{ID: "env_claude", Provider: models.ProviderClaude, Model: "claude-3-5-sonnet-20241022", IsActive: true, Priority: 0},
	{ID: "env_openai", Provider: models.ProviderOpenAI, Model: "gpt-4o", IsActive: true, Priority: 1},
	{ID: "env_gemini", Provider: models.ProviderGemini, Model: "gemini-1.5-pro", IsActive: true, Priority: 2},
	{ID: "env_groq", Provider: models.ProviderGroq, Model: "llama-3.1-70b-versatile", IsActive: true, Priority: 3},
}

// AdapterConstructor builds an adapter for a provider
type AdapterConstructor func(ctx context.Context, provider models.Provider, opts Options) (Adapter, error)

// NewAdapter is the default constructor
func NewAdapter(ctx context.Context, provider models.Provider, opts Options) (Adapter, error) {
	switch provider {
	case models.ProviderClaude:
		return NewClaudeAdapter(opts), nil
	case models.ProviderOpenAI:
		return NewOpenAIAdapter(opts), nil
	case models.ProviderGemini:
		return NewGeminiAdapter(ctx, opts)
	case models.ProviderGroq:
		return NewGroqAdapter(opts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithConfigCacheTTL sets the lifetime of cached configs and costs
func WithConfigCacheTTL(ttl time.Duration) FactoryOption {
	return func(f *Factory) { f.cacheTTL = ttl }
}

// WithTimeouts sets the timeout manager handed to adapters
func WithTimeouts(tm *TimeoutManager) FactoryOption {
	return func(f *Factory) { f.timeouts = tm }
}

// WithBaseURLs overrides vendor endpoints
func WithBaseURLs(urls map[models.Provider]string) FactoryOption {
	return func(f *Factory) { f.baseURLs = urls }
}

// WithHTTPClient sets the HTTP client handed to adapters
func WithHTTPClient(c *http.Client) FactoryOption {
	return func(f *Factory) { f.httpClient = c }
}

// WithConstructor replaces the adapter constructor
func WithConstructor(fn AdapterConstructor) FactoryOption {
	return func(f *Factory) { f.construct = fn }
}

// Factory selects AI adapters from the stored provider configuration.
// Health is evaluated on every GetAIAdapter call; only configs and costs are cached.
type Factory struct {
	configs ConfigSource
	catalog CatalogSource
	enc     *encryption.Encryptor
	envKeys EnvKeys

	cacheTTL   time.Duration
	timeouts   *TimeoutManager
	baseURLs   map[models.Provider]string
	httpClient *http.Client
	construct  AdapterConstructor

	configCache *expirable.LRU[string, []models.ProviderConfig]
	costCache   *expirable.LRU[string, Rates]
	logger      zerolog.Logger
}

// NewFactory creates a factory
func NewFactory(configs ConfigSource, catalog CatalogSource, enc *encryption.Encryptor, envKeys EnvKeys, opts ...FactoryOption) *Factory {
	f := &Factory{
		configs:   configs,
		catalog:   catalog,
		enc:       enc,
		envKeys:   envKeys,
		cacheTTL:  DefaultConfigCacheTTL,
		construct: NewAdapter,
		logger:    logging.NewLogger("ai.factory"),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.enc == nil {
		f.enc = encryption.New("")
	}
	if f.timeouts == nil {
		f.timeouts = NewTimeoutManager(nil)
	}
	f.configCache = expirable.NewLRU[string, []models.ProviderConfig](1, nil, f.cacheTTL)
	f.costCache = expirable.NewLRU[string, Rates](costCacheSize, nil, f.cacheTTL)
	return f
}

// ActiveProviders returns active configs ordered by ascending priority.
func (f *Factory) ActiveProviders(ctx context.Context) ([]models.ProviderConfig, error) {
	if cached, ok := f.configCache.Get(activeConfigsKey); ok {
		monitoring.RecordCacheHit("ai_config")
		return append([]models.ProviderConfig(nil), cached...), nil
	}
	monitoring.RecordCacheMiss("ai_config")

	configs, err := f.configs.ActiveConfigs(ctx)
	if err != nil {
		f.logger.Error().Err(err).Msg("Failed to load provider configs, using environment fallback")
		return f.envFallback(), nil
	}

	active := make([]models.ProviderConfig, 0, len(configs))
	for _, c := range configs {
		if c.IsActive {
			active = append(active, c)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})

	f.configCache.Add(activeConfigsKey, active)
	return append([]models.ProviderConfig(nil), active...), nil
}

func (f *Factory) envFallback() []models.ProviderConfig {
	var configs []models.ProviderConfig
	for _, c := range envDefaults {
		if f.envKeys[c.Provider] != "" {
			configs = append(configs, c)
		}
	}
	return configs
}

// GetAIAdapter returns the first healthy adapter in priority order.
func (f *Factory) GetAIAdapter(ctx context.Context) (Adapter, error) {
	configs, err := f.ActiveProviders(ctx)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, ErrNoProviders
	}

	failures := make([]ProviderFailure, 0, len(configs))
	for _, cfg := range configs {
		failure := ProviderFailure{Provider: cfg.Provider, Model: cfg.Model, Priority: cfg.Priority}

		adapter, err := f.createAdapter(ctx, cfg)
		if err != nil {
			failure.Reason = err.Error()
			failure.Err = err
		} else if !adapter.HealthCheck(ctx) {
			failure.Reason = "Health check failed"
			failure.Err = ErrHealthCheckFailed
		} else {
			f.logger.Info().
				Str("provider", string(cfg.Provider)).
				Str("model", cfg.Model).
				Int("skipped", len(failures)).
				Msg("Using AI provider")
			return adapter, nil
		}

		f.logger.Warn().
			Err(failure.Err).
			Str("provider", string(cfg.Provider)).
			Str("model", cfg.Model).
			Msg("AI provider unavailable")
		monitoring.RecordFallback(string(cfg.Provider), errorType(failure.Err))
		failures = append(failures, failure)

		if ctx.Err() != nil {
			break
		}
	}

	monitoring.RecordProvidersExhausted()
	return nil, &ExhaustedError{Failures: failures}
}

// GetSpecificAdapter builds the adapter of the first active config matching
// provider and, when non-empty, model. No health check, no fallback.
func (f *Factory) GetSpecificAdapter(ctx context.Context, provider models.Provider, model string) (Adapter, error) {
	configs, err := f.ActiveProviders(ctx)
	if err != nil {
		return nil, err
	}
	for _, cfg := range configs {
		if cfg.Provider == provider && (model == "" || cfg.Model == model) {
			return f.createAdapter(ctx, cfg)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
}

func (f *Factory) createAdapter(ctx context.Context, cfg models.ProviderConfig) (Adapter, error) {
	apiKey := f.apiKey(cfg)
	if apiKey == "" {
		return nil, fmt.Errorf("%w for %s", ErrMissingAPIKey, cfg.Provider)
	}

	return f.construct(ctx, cfg.Provider, Options{
		APIKey:     apiKey,
		Model:      cfg.Model,
		Settings:   cfg.Settings,
		Rates:      f.rates(ctx, cfg.Provider, cfg.Model),
		BaseURL:    f.baseURLs[cfg.Provider],
		HTTPClient: f.httpClient,
		Timeouts:   f.timeouts,
	})
}

// apiKey prefers the stored key over the environment.
func (f *Factory) apiKey(cfg models.ProviderConfig) string {
	if cfg.HasStoredKey() {
		if key := f.enc.DecryptOrPlain(*cfg.APIKeyEncrypted); key != "" {
			return key
		}
	}
	return f.envKeys[cfg.Provider]
}

// rates resolves catalog pricing, falling back to vendor defaults.
func (f *Factory) rates(ctx context.Context, provider models.Provider, model string) Rates {
	if r, ok := f.costCache.Get(model); ok {
		monitoring.RecordCacheHit("model_cost")
		return r
	}
	monitoring.RecordCacheMiss("model_cost")

	if f.catalog != nil {
		costs, err := f.catalog.ModelCosts(ctx, model)
		if err != nil {
			f.logger.Warn().Err(err).Str("model", model).Msg("Failed to load model costs")
		}
		if err == nil && costs != nil {
			r := Rates{InputPer1k: costs.Input, OutputPer1k: costs.Output}
			f.costCache.Add(model, r)
			return r
		}
	}
	return DefaultRates(provider)
}

// AvailableModels lists available, non-deprecated catalog models.
// Provider may be empty. Store errors yield an empty list.
func (f *Factory) AvailableModels(ctx context.Context, provider models.Provider) []models.ModelCatalogEntry {
	if f.catalog == nil {
		return []models.ModelCatalogEntry{}
	}
	entries, err := f.catalog.AvailableModels(ctx, provider)
	if err != nil {
		f.logger.Error().Err(err).Msg("Failed to load models")
		return []models.ModelCatalogEntry{}
	}
	return entries
}

// InvalidateConfigs drops cached provider configs
func (f *Factory) InvalidateConfigs() {
	f.configCache.Purge()
}

// InvalidateCosts drops cached model costs
func (f *Factory) InvalidateCosts() {
	f.costCache.Purge()
}

// ClearCache drops every cached config and cost
func (f *Factory) ClearCache() {
	f.InvalidateConfigs()
	f.InvalidateCosts()
	f.logger.Debug().Msg("AI config cache cleared")
}
