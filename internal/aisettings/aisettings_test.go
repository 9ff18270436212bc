package aisettings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/auswanderer-plattform/backend/internal/ai"
	"github.com/auswanderer-plattform/backend/internal/database"
	"github.com/auswanderer-plattform/backend/internal/encryption"
	"github.com/auswanderer-plattform/backend/internal/models"
	"github.com/auswanderer-plattform/backend/migrations"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	if dbURL := os.Getenv("TEST_DATABASE_URL"); dbURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pool, err := pgxpool.New(ctx, dbURL)
		switch {
		case err != nil || pool.Ping(ctx) != nil:
			fmt.Println("Warning: test database unavailable, Postgres tests will be skipped")
		case database.RunMigrations(dbURL, migrations.FS, ".") != nil:
			fmt.Println("Warning: failed to migrate test database, Postgres tests will be skipped")
			pool.Close()
		default:
			testDB = pool
		}
		cancel()
	}

	code := m.Run()
	if testDB != nil {
		testDB.Close()
	}
	os.Exit(code)
}

// memStore applies patches the way the SQL does
type memStore struct {
	mu      sync.Mutex
	configs []models.ProviderConfig
	err     error
}

func (s *memStore) ListConfigs(ctx context.Context) ([]models.ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ProviderConfig(nil), s.configs...), s.err
}

func (s *memStore) UpdateConfig(ctx context.Context, id string, p Patch, updatedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i := range s.configs {
		if s.configs[i].ID == id {
			idx = i
		}
	}
	if idx < 0 {
		return ErrConfigNotFound
	}
	if p.IsCatalogAgent != nil && *p.IsCatalogAgent {
		for i := range s.configs {
			s.configs[i].IsCatalogAgent = false
		}
	}
	c := &s.configs[idx]
	if p.Provider != nil {
		c.Provider = *p.Provider
	}
	if p.Model != nil {
		c.Model = *p.Model
	}
	if p.APIKeyEncrypted != nil {
		c.APIKeyEncrypted = p.APIKeyEncrypted
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	if p.Priority != nil {
		c.Priority = *p.Priority
	}
	if p.Settings != nil {
		c.Settings = *p.Settings
	}
	if p.IsCatalogAgent != nil {
		c.IsCatalogAgent = *p.IsCatalogAgent
	}
	c.UpdatedBy = &updatedBy
	return nil
}

type fakeFactory struct {
	adapter ai.Adapter
	err     error
	cleared int
}

func (f *fakeFactory) GetSpecificAdapter(ctx context.Context, provider models.Provider, model string) (ai.Adapter, error) {
	return f.adapter, f.err
}

func (f *fakeFactory) AvailableModels(ctx context.Context, provider models.Provider) []models.ModelCatalogEntry {
	return []models.ModelCatalogEntry{{ID: "gpt-4o", Provider: models.ProviderOpenAI, Name: "GPT-4o"}}
}

func (f *fakeFactory) ClearCache() { f.cleared++ }

type countingBroadcaster struct {
	calls int
	err   error
}

func (b *countingBroadcaster) Broadcast(ctx context.Context) error {
	b.calls++
	return b.err
}

type healthAdapter struct {
	healthy bool
}

func (a healthAdapter) Provider() models.Provider { return models.ProviderGroq }
func (a healthAdapter) Model() string { return "llama-3.1-70b-versatile" }
func (a healthAdapter) HealthCheck(ctx context.Context) bool { return a.healthy }
func (a healthAdapter) CalculateCost(in, out int) float64 { return 0 }
func (a healthAdapter) LastUsage() *ai.Usage { return nil }
func (a healthAdapter) HealthCheckCost() ai.HealthCheckCost { return ai.HealthCheckFree }
func (a healthAdapter) Chat(ctx context.Context, req ai.Request) (*ai.Response, error) {
	return nil, errors.New("not used")
}

const testSecret = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func seededStore() *memStore {
	return &memStore{configs: []models.ProviderConfig{
		{ID: "c1", Provider: models.ProviderClaude, Model: "claude-3-5-sonnet-20241022", IsActive: true, Priority: 0, IsCatalogAgent: true},
		{ID: "c2", Provider: models.ProviderOpenAI, Model: "gpt-4o", Priority: 1},
		{ID: "c3", Provider: models.ProviderGemini, Model: "gemini-1.5-pro", Priority: 2},
		{ID: "c4", Provider: models.ProviderGroq, Model: "llama-3.1-70b-versatile", Priority: 3},
	}}
}

var superAdmin = Actor{ID: "admin-1", Role: models.RoleSuperAdmin}

func TestUpdate_EncryptsKeyAndInvalidates(t *testing.T) {
	store := seededStore()
	factory := &fakeFactory{}
	bc := &countingBroadcaster{}
	enc := encryption.New(testSecret)
	svc := NewService(store, factory, enc, bc)

	active := true
	err := svc.Update(context.Background(), UpdateRequest{ID: "c2", APIKey: "sk-test-1234567890abcd", IsActiveSnake: &active}, superAdmin)
	require.NoError(t, err)

	c := store.configs[1]
	assert.True(t, c.IsActive)
	require.NotNil(t, c.APIKeyEncrypted)
	assert.NotEqual(t, "sk-test-1234567890abcd", *c.APIKeyEncrypted)
	plain, err := enc.Decrypt(*c.APIKeyEncrypted)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-1234567890abcd", plain)
	assert.Equal(t, "admin-1", *c.UpdatedBy)

	assert.Equal(t, 1, factory.cleared)
	assert.Equal(t, 1, bc.calls)
}

func TestUpdate_PlainKeyWithoutEncryption(t *testing.T) {
	store := seededStore()
	svc := NewService(store, &fakeFactory{}, nil, nil)

	require.NoError(t, svc.Update(context.Background(), UpdateRequest{ID: "c3", APIKey: "AIza-dev-key"}, superAdmin))
	assert.Equal(t, "AIza-dev-key", *store.configs[2].APIKeyEncrypted)
}

func TestUpdate_EmptyKeyKeepsStoredKey(t *testing.T) {
	store := seededStore()
	stored := "existing"
	store.configs[0].APIKeyEncrypted = &stored
	svc := NewService(store, &fakeFactory{}, nil, nil)

	model := "claude-3-7-sonnet"
	require.NoError(t, svc.Update(context.Background(), UpdateRequest{ID: "c1", Model: &model}, superAdmin))
	assert.Equal(t, "existing", *store.configs[0].APIKeyEncrypted)
	assert.Equal(t, "claude-3-7-sonnet", store.configs[0].Model)
}

func TestUpdate_Validation(t *testing.T) {
	factory := &fakeFactory{}
	svc := NewService(seededStore(), factory, nil, &countingBroadcaster{})
	ctx := context.Background()

	bad := models.Provider("mistral")
	neg := -1
	tests := []struct {
		name  string
		req   UpdateRequest
		actor Actor
		want  error
	}{
		{name: "admin is not enough", req: UpdateRequest{ID: "c1"}, actor: Actor{ID: "a", Role: models.RoleAdmin}, want: ErrForbidden},
		{name: "missing id", req: UpdateRequest{}, actor: superAdmin, want: ErrIDRequired},
		{name: "unknown provider", req: UpdateRequest{ID: "c1", Provider: &bad}, actor: superAdmin, want: ErrInvalidProvider},
		{name: "negative priority", req: UpdateRequest{ID: "c1", Priority: &neg}, actor: superAdmin, want: ErrInvalidPriority},
		{name: "unknown id", req: UpdateRequest{ID: "nope"}, actor: superAdmin, want: ErrConfigNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, svc.Update(ctx, tt.req, tt.actor), tt.want)
		})
	}
	assert.Equal(t, 0, factory.cleared)
}

func TestUpdate_BroadcastFailureIsNotFatal(t *testing.T) {
	factory := &fakeFactory{}
	svc := NewService(seededStore(), factory, nil, &countingBroadcaster{err: errors.New("redis down")})

	model := "gpt-4o-mini"
	require.NoError(t, svc.Update(context.Background(), UpdateRequest{ID: "c2", Model: &model}, superAdmin))
	assert.Equal(t, 1, factory.cleared)
}

// TestProperty_SingleCatalogAgent checks that any sequence of updates leaves at most one catalog agent
func TestProperty_SingleCatalogAgent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		store := seededStore()
		svc := NewService(store, &fakeFactory{}, nil, nil)

		steps := rapid.IntRange(1, 12).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			id := rapid.SampledFrom([]string{"c1", "c2", "c3", "c4"}).Draw(rt, "id")
			flag := rapid.Bool().Draw(rt, "flag")
			if err := svc.Update(context.Background(), UpdateRequest{ID: id, IsCatalogAgent: &flag}, superAdmin); err != nil {
				t.Fatalf("PROPERTY VIOLATION: update failed: %v", err)
			}

			agents := 0
			for _, c := range store.configs {
				if c.IsCatalogAgent {
					agents++
					if flag && c.ID != id {
						t.Fatalf("PROPERTY VIOLATION: %s still flagged after %s was set", c.ID, id)
					}
				}
			}
			if agents > 1 {
				t.Fatalf("PROPERTY VIOLATION: %d catalog agents", agents)
			}
		}
	})
}

func TestList_MasksKeys(t *testing.T) {
	store := seededStore()
	enc := encryption.New(testSecret)
	stored, err := enc.Encrypt("sk-ant-REDACTED")
	require.NoError(t, err)
	store.configs[0].APIKeyEncrypted = &stored

	svc := NewService(store, &fakeFactory{}, enc, nil)
	overview, err := svc.List(context.Background())
	require.NoError(t, err)

	assert.True(t, overview.EncryptionConfigured)
	require.Len(t, overview.Configs, 4)
	assert.Len(t, overview.Models, 1)

	claude := overview.Configs[0]
	assert.True(t, claude.HasAPIKey)
	require.NotNil(t, claude.APIKeyMasked)
	assert.Equal(t, "sk-ant-***...mnop", *claude.APIKeyMasked)
	assert.Equal(t, ai.HealthCheckPaid, claude.HealthCheck)

	groq := overview.Configs[3]
	assert.False(t, groq.HasAPIKey)
	assert.Nil(t, groq.APIKeyMasked)
	assert.Equal(t, ai.HealthCheckFree, groq.HealthCheck)

	store.err = errors.New("db down")
	_, err = svc.List(context.Background())
	assert.Error(t, err)
}

func TestTestProvider(t *testing.T) {
	ctx := context.Background()

	ok := NewService(seededStore(), &fakeFactory{adapter: healthAdapter{healthy: true}}, nil, nil)
	result, err := ok.Test(ctx, models.ProviderGroq, "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "llama-3.1-70b-versatile", result.Model)
	assert.Equal(t, ai.HealthCheckFree, result.HealthCheckCost)

	unhealthy := NewService(seededStore(), &fakeFactory{adapter: healthAdapter{}}, nil, nil)
	result, err = unhealthy.Test(ctx, models.ProviderGroq, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Health Check fehlgeschlagen", result.Error)

	missing := NewService(seededStore(), &fakeFactory{err: ai.ErrProviderNotConfigured}, nil, nil)
	result, err = missing.Test(ctx, models.ProviderGemini, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, ai.ErrProviderNotConfigured.Error())

	_, err = ok.Test(ctx, models.Provider("mistral"), "")
	assert.ErrorIs(t, err, ErrInvalidProvider)
}

func TestPgStore_SingleCatalogAgent(t *testing.T) {
	if testDB == nil {
		t.Skip("Test database not available")
	}
	ctx := context.Background()
	store := NewPgStore(testDB)

	configs, err := store.ListConfigs(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, configs)

	yes := true
	for _, c := range configs {
		require.NoError(t, store.UpdateConfig(ctx, c.ID, Patch{IsCatalogAgent: &yes}, "test"))

		after, err := store.ListConfigs(ctx)
		require.NoError(t, err)
		agents := 0
		for _, a := range after {
			if a.IsCatalogAgent {
				agents++
				assert.Equal(t, c.ID, a.ID)
			}
		}
		assert.Equal(t, 1, agents)
	}

	temp := 0.2
	require.NoError(t, store.UpdateConfig(ctx, configs[0].ID, Patch{Settings: &models.ProviderSettings{Temperature: &temp}}, "test"))
	after, err := store.ListConfigs(ctx)
	require.NoError(t, err)
	for _, a := range after {
		if a.ID == configs[0].ID {
			require.NotNil(t, a.Settings.Temperature)
			assert.Equal(t, 0.2, *a.Settings.Temperature)
		}
	}

	assert.ErrorIs(t, store.UpdateConfig(ctx, "not-a-uuid", Patch{}, "test"), ErrConfigNotFound)
	assert.ErrorIs(t, store.UpdateConfig(ctx, "00000000-0000-0000-0000-000000000000", Patch{}, "test"), ErrConfigNotFound)
}
