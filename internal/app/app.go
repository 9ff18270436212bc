// Package app wires the services shared by the API server and the operator CLI.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/auswanderer-plattform/backend/internal/ai"
	"github.com/auswanderer-plattform/backend/internal/aisettings"
	"github.com/auswanderer-plattform/backend/internal/analysis"
	"github.com/auswanderer-plattform/backend/internal/auth"
	"github.com/auswanderer-plattform/backend/internal/cache"
	"github.com/auswanderer-plattform/backend/internal/catalog"
	"github.com/auswanderer-plattform/backend/internal/config"
	"github.com/auswanderer-plattform/backend/internal/database"
	"github.com/auswanderer-plattform/backend/internal/encryption"
	"github.com/auswanderer-plattform/backend/internal/models"
	"github.com/auswanderer-plattform/backend/internal/notify"
)

// App holds the wired services
type App struct {
	Config *config.Config
	DB     *database.DB
	// Redis is nil when it could not be reached
	Redis *cache.Redis

	Encryptor   *encryption.Encryptor
	Factory     *ai.Factory
	Invalidator *cache.Invalidator
	Limiter     *cache.RateLimiter

	Auth     *auth.Service
	Analyzer *analysis.Analyzer
	Settings *aisettings.Service
	Configs  *aisettings.PgStore
	Catalog  *catalog.PgStore
	Agent    *catalog.Agent
}

// New connects to Postgres and Redis and builds every service.
// Redis is optional; without it rate limiting and cross-instance invalidation are off.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var redis *cache.Redis
	if r, err := cache.NewFromURL(cfg.Redis.URL); err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, rate limiting and cache invalidation disabled")
	} else {
		redis = r
	}

	enc := encryption.New(cfg.AI.EncryptionSecret)
	if !enc.Configured() {
		log.Warn().Msg("AI_KEY_ENCRYPTION_SECRET not set, API keys are stored unencrypted")
	}

	configs := aisettings.NewPgStore(db.Pool)
	catalogStore := catalog.NewPgStore(db.Pool)

	factory := ai.NewFactory(configs, catalogStore, enc, ai.EnvKeys{
		models.ProviderClaude: cfg.AI.AnthropicKey,
		models.ProviderOpenAI: cfg.AI.OpenAIKey,
		models.ProviderGemini: cfg.AI.GoogleAIKey,
		models.ProviderGroq:   cfg.AI.GroqKey,
	},
		ai.WithConfigCacheTTL(cfg.AI.ConfigCacheTTL),
		ai.WithTimeouts(ai.NewTimeoutManager(&ai.TimeoutConfig{
			DefaultTimeout: cfg.AI.RequestTimeout,
			MinTimeout:     cfg.AI.MinTimeout,
			MaxTimeout:     cfg.AI.MaxTimeout,
		})),
		ai.WithBaseURLs(map[models.Provider]string{
			models.ProviderClaude: cfg.AI.AnthropicBaseURL,
			models.ProviderOpenAI: cfg.AI.OpenAIBaseURL,
			models.ProviderGemini: cfg.AI.GeminiBaseURL,
			models.ProviderGroq:   cfg.AI.GroqBaseURL,
		}),
	)

	invalidator := cache.NewInvalidator(redis, cfg.Redis.InvalidationChannel)
	fetcher := catalog.NewFetcher(cfg.Catalog.FetchTimeout, cfg.Catalog.UserAgent, catalog.PricingURLs)

	return &App{
		Config:      cfg,
		DB:          db,
		Redis:       redis,
		Encryptor:   enc,
		Factory:     factory,
		Invalidator: invalidator,
		Limiter:     cache.NewRateLimiter(redis, &cfg.RateLimit),
		Auth:        auth.NewService(auth.NewPgUserStore(db.Pool), &cfg.JWT),
		Analyzer:    analysis.NewAnalyzer(factory, analysis.ReturnMock),
		Settings:    aisettings.NewService(configs, factory, enc, invalidator),
		Configs:     configs,
		Catalog:     catalogStore,
		Agent: catalog.NewAgent(catalogStore, factory, configs, fetcher,
			catalog.WithNotifier(notify.NewMailer(cfg.Email))),
	}, nil
}

// Close releases the connections
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis")
		}
	}
	a.DB.Close()
}
