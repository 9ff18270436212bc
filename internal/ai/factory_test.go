package ai

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/auswanderer-plattform/backend/internal/encryption"
	"github.com/auswanderer-plattform/backend/internal/models"
)

type fakeConfigSource struct {
	mu      sync.Mutex
	configs []models.ProviderConfig
	err     error
	loads   int
}

func (s *fakeConfigSource) ActiveConfigs(ctx context.Context) ([]models.ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return append([]models.ProviderConfig(nil), s.configs...), nil
}

type fakeCatalogSource struct {
	costs  map[string]models.ModelCosts
	models []models.ModelCatalogEntry
	err    error
}

func (s *fakeCatalogSource) ModelCosts(ctx context.Context, modelID string) (*models.ModelCosts, error) {
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.costs[modelID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *fakeCatalogSource) AvailableModels(ctx context.Context, provider models.Provider) ([]models.ModelCatalogEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.ModelCatalogEntry
	for _, m := range s.models {
		if provider == "" || m.Provider == provider {
			out = append(out, m)
		}
	}
	return out, nil
}

// stubAdapter is an Adapter whose health is fixed at construction
type stubAdapter struct {
	*base
	healthy bool
	checks  *int
}

func (a *stubAdapter) Chat(ctx context.Context, req Request) (*Response, error) {
	return &Response{Content: "ok", Provider: a.provider, Model: a.model, Usage: a.usage(1, 1, 0)}, nil
}

func (a *stubAdapter) HealthCheck(ctx context.Context) bool {
	if a.checks != nil {
		*a.checks++
	}
	return a.healthy
}

// stubConstructor builds stub adapters; models listed in unhealthy fail their health check.
func stubConstructor(unhealthy map[string]bool, built *[]Options) AdapterConstructor {
	return func(ctx context.Context, provider models.Provider, opts Options) (Adapter, error) {
		if built != nil {
			*built = append(*built, opts)
		}
		return &stubAdapter{base: newBase(provider, opts), healthy: !unhealthy[opts.Model]}, nil
	}
}

func storedKey(s string) *string { return &s }

func providerConfig(p models.Provider, model string, priority int) models.ProviderConfig {
	return models.ProviderConfig{
		ID:              string(p) + "-" + model,
		Provider:        p,
		Model:           model,
		APIKeyEncrypted: storedKey("key-" + model),
		IsActive:        true,
		Priority:        priority,
	}
}

func TestGetAIAdapter_ThreeProvidersFirstTwoUnhealthy(t *testing.T) {
	source := &fakeConfigSource{configs: []models.ProviderConfig{
		providerConfig(models.ProviderGemini, "gemini-1.5-pro", 2),
		providerConfig(models.ProviderClaude, "claude-3-5-sonnet", 0),
		providerConfig(models.ProviderOpenAI, "gpt-4o", 1),
	}}
	unhealthy := map[string]bool{"claude-3-5-sonnet": true, "gpt-4o": true}

	f := NewFactory(source, nil, nil, nil, WithConstructor(stubConstructor(unhealthy, nil)))

	adapter, err := f.GetAIAdapter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGemini, adapter.Provider())
	assert.Equal(t, "gemini-1.5-pro", adapter.Model())
}

func TestGetAIAdapter_ExhaustedListsEveryFailure(t *testing.T) {
	source := &fakeConfigSource{configs: []models.ProviderConfig{
		providerConfig(models.ProviderClaude, "claude-3-5-sonnet", 0),
		providerConfig(models.ProviderOpenAI, "gpt-4o", 1),
		{ID: "groq", Provider: models.ProviderGroq, Model: "llama", IsActive: true, Priority: 2},
	}}
	unhealthy := map[string]bool{"claude-3-5-sonnet": true, "gpt-4o": true}

	f := NewFactory(source, nil, nil, nil, WithConstructor(stubConstructor(unhealthy, nil)))

	_, err := f.GetAIAdapter(context.Background())
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	require.Len(t, exhausted.Failures, 3)
	assert.Equal(t, models.ProviderClaude, exhausted.Failures[0].Provider)
	assert.Equal(t, "Health check failed", exhausted.Failures[0].Reason)
	assert.Equal(t, models.ProviderOpenAI, exhausted.Failures[1].Provider)
	assert.Equal(t, models.ProviderGroq, exhausted.Failures[2].Provider)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.ErrorIs(t, err, ErrHealthCheckFailed)
	assert.Contains(t, err.Error(), "all AI providers failed")
}

func TestGetAIAdapter_NoProviders(t *testing.T) {
	f := NewFactory(&fakeConfigSource{}, nil, nil, nil, WithConstructor(stubConstructor(nil, nil)))

	_, err := f.GetAIAdapter(context.Background())
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestGetAIAdapter_InactiveConfigsIgnored(t *testing.T) {
	inactive := providerConfig(models.ProviderClaude, "claude", 0)
	inactive.IsActive = false
	source := &fakeConfigSource{configs: []models.ProviderConfig{
		inactive,
		providerConfig(models.ProviderGroq, "llama", 5),
	}}

	f := NewFactory(source, nil, nil, nil, WithConstructor(stubConstructor(nil, nil)))

	adapter, err := f.GetAIAdapter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGroq, adapter.Provider())
}

// TestProperty_Factory_LowestHealthyPriorityWins checks that the selected adapter
// always belongs to the lowest-priority-number healthy config.
func TestProperty_Factory_LowestHealthyPriorityWins(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		configs := make([]models.ProviderConfig, 0, n)
		unhealthy := map[string]bool{}
		for i := 0; i < n; i++ {
			p := rapid.SampledFrom(models.Providers).Draw(rt, "provider")
			model := string(p) + "-model-" + string(rune('a'+i))
			cfg := providerConfig(p, model, rapid.IntRange(0, 5).Draw(rt, "priority"))
			configs = append(configs, cfg)
			if rapid.Bool().Draw(rt, "unhealthy") {
				unhealthy[model] = true
			}
		}

		f := NewFactory(&fakeConfigSource{configs: configs}, nil, nil, nil,
			WithConstructor(stubConstructor(unhealthy, nil)))
		adapter, err := f.GetAIAdapter(context.Background())

		var want *models.ProviderConfig
		for i := range configs {
			c := configs[i]
			if unhealthy[c.Model] {
				continue
			}
			if want == nil || c.Priority < want.Priority {
				want = &configs[i]
			}
		}
		if want == nil {
			var exhausted *ExhaustedError
			if !errors.As(err, &exhausted) {
				t.Fatalf("PROPERTY VIOLATION: expected ExhaustedError, got %v", err)
			}
			if len(exhausted.Failures) != len(configs) {
				t.Fatalf("PROPERTY VIOLATION: %d failures for %d attempted providers", len(exhausted.Failures), len(configs))
			}
			return
		}
		if err != nil {
			t.Fatalf("PROPERTY VIOLATION: unexpected error %v", err)
		}
		if adapter.Model() != want.Model {
			t.Fatalf("PROPERTY VIOLATION: selected %s, want %s with priority %d",
				adapter.Model(), want.Model, want.Priority)
		}
	})
}

func TestActiveProviders_EnvFallbackOnStoreError(t *testing.T) {
	source := &fakeConfigSource{err: errors.New("connection refused")}
	envKeys := EnvKeys{models.ProviderGroq: "gsk-env", models.ProviderClaude: "sk-ant-env"}

	f := NewFactory(source, nil, nil, envKeys, WithConstructor(stubConstructor(nil, nil)))

	configs, err := f.ActiveProviders(context.Background())
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, models.ProviderClaude, configs[0].Provider)
	assert.Equal(t, "claude-3-5-sonnet-20241022", configs[0].Model)
	assert.Equal(t, 0, configs[0].Priority)
	assert.Equal(t, models.ProviderGroq, configs[1].Provider)
	assert.Equal(t, "llama-3.1-70b-versatile", configs[1].Model)
	assert.Equal(t, 3, configs[1].Priority)

	var built []Options
	f = NewFactory(source, nil, nil, envKeys, WithConstructor(stubConstructor(nil, &built)))
	_, err = f.GetAIAdapter(context.Background())
	require.NoError(t, err)
	require.Len(t, built, 1)
	assert.Equal(t, "sk-ant-env", built[0].APIKey)
}

func TestActiveProviders_CachedUntilCleared(t *testing.T) {
	source := &fakeConfigSource{configs: []models.ProviderConfig{providerConfig(models.ProviderClaude, "claude", 0)}}
	f := NewFactory(source, nil, nil, nil)

	ctx := context.Background()
	_, err := f.ActiveProviders(ctx)
	require.NoError(t, err)
	_, err = f.ActiveProviders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, source.loads)

	f.ClearCache()
	_, err = f.ActiveProviders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, source.loads)
}

func TestFactories_DoNotShareCaches(t *testing.T) {
	a := &fakeConfigSource{configs: []models.ProviderConfig{providerConfig(models.ProviderClaude, "claude", 0)}}
	b := &fakeConfigSource{configs: []models.ProviderConfig{providerConfig(models.ProviderGroq, "llama", 0)}}

	fa := NewFactory(a, nil, nil, nil)
	fb := NewFactory(b, nil, nil, nil)

	ca, err := fa.ActiveProviders(context.Background())
	require.NoError(t, err)
	cb, err := fb.ActiveProviders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ProviderClaude, ca[0].Provider)
	assert.Equal(t, models.ProviderGroq, cb[0].Provider)
}

func TestCreateAdapter_KeyResolution(t *testing.T) {
	enc := encryption.New("test-secret-for-factory")
	encrypted, err := enc.Encrypt("sk-stored")
	require.NoError(t, err)

	withStored := providerConfig(models.ProviderClaude, "claude", 0)
	withStored.APIKeyEncrypted = &encrypted
	withoutStored := providerConfig(models.ProviderOpenAI, "gpt-4o", 1)
	withoutStored.APIKeyEncrypted = nil

	var built []Options
	f := NewFactory(&fakeConfigSource{configs: []models.ProviderConfig{withStored, withoutStored}}, nil, enc,
		EnvKeys{models.ProviderOpenAI: "sk-env"}, WithConstructor(stubConstructor(nil, &built)))

	_, err = f.GetSpecificAdapter(context.Background(), models.ProviderClaude, "")
	require.NoError(t, err)
	_, err = f.GetSpecificAdapter(context.Background(), models.ProviderOpenAI, "gpt-4o")
	require.NoError(t, err)

	require.Len(t, built, 2)
	assert.Equal(t, "sk-stored", built[0].APIKey)
	assert.Equal(t, "sk-env", built[1].APIKey)
}

func TestGetSpecificAdapter_NoHealthCheckNoFallback(t *testing.T) {
	checks := 0
	construct := func(ctx context.Context, p models.Provider, opts Options) (Adapter, error) {
		return &stubAdapter{base: newBase(p, opts), healthy: false, checks: &checks}, nil
	}
	source := &fakeConfigSource{configs: []models.ProviderConfig{
		providerConfig(models.ProviderClaude, "claude-a", 0),
		providerConfig(models.ProviderOpenAI, "gpt-4o", 1),
	}}
	f := NewFactory(source, nil, nil, nil, WithConstructor(construct))

	adapter, err := f.GetSpecificAdapter(context.Background(), models.ProviderClaude, "")
	require.NoError(t, err)
	assert.Equal(t, "claude-a", adapter.Model())
	assert.Zero(t, checks)

	_, err = f.GetSpecificAdapter(context.Background(), models.ProviderClaude, "claude-b")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
	_, err = f.GetSpecificAdapter(context.Background(), models.ProviderGemini, "")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestCreateAdapter_RatesFromCatalogOrDefaults(t *testing.T) {
	catalog := &fakeCatalogSource{costs: map[string]models.ModelCosts{
		"gpt-4o": {Input: 0.0025, Output: 0.01},
	}}
	source := &fakeConfigSource{configs: []models.ProviderConfig{
		providerConfig(models.ProviderOpenAI, "gpt-4o", 0),
		providerConfig(models.ProviderGemini, "gemini-unknown", 1),
	}}

	var built []Options
	f := NewFactory(source, catalog, nil, nil, WithConstructor(stubConstructor(nil, &built)))

	_, err := f.GetSpecificAdapter(context.Background(), models.ProviderOpenAI, "")
	require.NoError(t, err)
	_, err = f.GetSpecificAdapter(context.Background(), models.ProviderGemini, "")
	require.NoError(t, err)

	require.Len(t, built, 2)
	assert.Equal(t, Rates{InputPer1k: 0.0025, OutputPer1k: 0.01}, built[0].Rates)
	assert.Equal(t, DefaultRates(models.ProviderGemini), built[1].Rates)
}

func TestAvailableModels_FilterAndErrors(t *testing.T) {
	catalog := &fakeCatalogSource{models: []models.ModelCatalogEntry{
		{ID: "claude-3-5-sonnet", Provider: models.ProviderClaude},
		{ID: "gpt-4o", Provider: models.ProviderOpenAI},
	}}
	f := NewFactory(&fakeConfigSource{}, catalog, nil, nil)

	assert.Len(t, f.AvailableModels(context.Background(), ""), 2)
	only := f.AvailableModels(context.Background(), models.ProviderOpenAI)
	require.Len(t, only, 1)
	assert.Equal(t, "gpt-4o", only[0].ID)

	catalog.err = errors.New("db down")
	assert.Empty(t, f.AvailableModels(context.Background(), ""))
}

func TestNewAdapter_ClosedSwitch(t *testing.T) {
	ctx := context.Background()
	for _, p := range models.Providers {
		adapter, err := NewAdapter(ctx, p, Options{APIKey: "k", Model: "m"})
		require.NoError(t, err, p)
		assert.Equal(t, p, adapter.Provider())
		assert.Equal(t, HealthCheckCostOf(p), adapter.HealthCheckCost())
	}

	_, err := NewAdapter(ctx, models.Provider("mistral"), Options{APIKey: "k"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
