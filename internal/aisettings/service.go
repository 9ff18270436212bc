// Package aisettings lets admins inspect and change the AI provider configuration.
package aisettings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/auswanderer-plattform/backend/internal/ai"
	"github.com/auswanderer-plattform/backend/internal/encryption"
	"github.com/auswanderer-plattform/backend/internal/logging"
	"github.com/auswanderer-plattform/backend/internal/models"
)

// Service errors
var (
	ErrConfigNotFound  = errors.New("provider config not found")
	ErrIDRequired      = errors.New("config id is required")
	ErrInvalidProvider = errors.New("invalid provider")
	ErrInvalidPriority = errors.New("priority must not be negative")
	ErrForbidden       = errors.New("only super admins can change AI settings")
)

// Factory is the part of the AI factory the settings screen needs
type Factory interface {
	GetSpecificAdapter(ctx context.Context, provider models.Provider, model string) (ai.Adapter, error)
	AvailableModels(ctx context.Context, provider models.Provider) []models.ModelCatalogEntry
	ClearCache()
}

// Broadcaster tells other instances to drop their cached configs
type Broadcaster interface {
	Broadcast(ctx context.Context) error
}

// Actor is the admin performing a change
type Actor struct {
	ID   string
	Role models.AdminRole
}

// Service implements the AI settings use cases
type Service struct {
	store       Store
	factory     Factory
	enc         *encryption.Encryptor
	broadcaster Broadcaster
	logger      zerolog.Logger
}

// NewService creates a settings service. broadcaster may be nil.
func NewService(store Store, factory Factory, enc *encryption.Encryptor, broadcaster Broadcaster) *Service {
	if enc == nil {
		enc = encryption.New("")
	}
	return &Service{
		store:       store,
		factory:     factory,
		enc:         enc,
		broadcaster: broadcaster,
		logger:      logging.NewLogger("aisettings"),
	}
}

// ConfigView is a provider config as shown to admins. The key is never returned.
type ConfigView struct {
	models.ProviderConfig
	APIKeyMasked *string            `json:"api_key_masked"`
	HasAPIKey    bool               `json:"has_api_key"`
	HealthCheck  ai.HealthCheckCost `json:"health_check_cost"`
}

// Overview is the settings screen payload
type Overview struct {
	Configs              []ConfigView               `json:"configs"`
	Models               []models.ModelCatalogEntry `json:"models"`
	EncryptionConfigured bool                       `json:"encryptionConfigured"`
}

// List returns every config with masked keys plus the available models
func (s *Service) List(ctx context.Context) (*Overview, error) {
	configs, err := s.store.ListConfigs(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]ConfigView, len(configs))
	for i, c := range configs {
		views[i] = ConfigView{
			ProviderConfig: c,
			HasAPIKey:      c.HasStoredKey(),
			HealthCheck:    ai.HealthCheckCostOf(c.Provider),
		}
		if c.HasStoredKey() {
			masked := encryption.MaskAPIKey(s.enc.DecryptOrPlain(*c.APIKeyEncrypted))
			views[i].APIKeyMasked = &masked
		}
	}

	return &Overview{
		Configs:              views,
		Models:               s.factory.AvailableModels(ctx, ""),
		EncryptionConfigured: s.enc.Configured(),
	}, nil
}

// UpdateRequest is the body of a settings update. is_active and isActive are
// both accepted; apiKey is only written when non-empty.
type UpdateRequest struct {
	ID             string                   `json:"id"`
	Provider       *models.Provider         `json:"provider"`
	Model          *string                  `json:"model"`
	APIKey         string                   `json:"apiKey"`
	IsActive       *bool                    `json:"isActive"`
	IsActiveSnake  *bool                    `json:"is_active"`
	Priority       *int                     `json:"priority"`
	Settings       *models.ProviderSettings `json:"settings"`
	IsCatalogAgent *bool                    `json:"is_catalog_agent"`
}

// Update changes one provider config and invalidates every instance's cache
func (s *Service) Update(ctx context.Context, req UpdateRequest, actor Actor) error {
	if actor.Role != models.RoleSuperAdmin {
		return ErrForbidden
	}
	if req.ID == "" {
		return ErrIDRequired
	}
	if req.Provider != nil && !req.Provider.Valid() {
		return ErrInvalidProvider
	}
	if req.Priority != nil && *req.Priority < 0 {
		return ErrInvalidPriority
	}

	patch := Patch{
		Provider:       req.Provider,
		Model:          req.Model,
		IsActive:       req.IsActive,
		Priority:       req.Priority,
		Settings:       req.Settings,
		IsCatalogAgent: req.IsCatalogAgent,
	}
	if req.IsActiveSnake != nil {
		patch.IsActive = req.IsActiveSnake
	}
	if req.APIKey != "" {
		stored, err := s.enc.EncryptOrPlain(req.APIKey)
		if err != nil {
			return fmt.Errorf("failed to encrypt api key: %w", err)
		}
		patch.APIKeyEncrypted = &stored
	}

	if err := s.store.UpdateConfig(ctx, req.ID, patch, actor.ID); err != nil {
		return err
	}

	s.factory.ClearCache()
	if s.broadcaster != nil {
		if err := s.broadcaster.Broadcast(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to broadcast AI config invalidation")
		}
	}

	fields := map[string]any{"api_key_changed": req.APIKey != ""}
	if patch.Provider != nil {
		fields["provider"] = string(*patch.Provider)
	}
	if patch.Model != nil {
		fields["model"] = *patch.Model
	}
	if patch.IsActive != nil {
		fields["is_active"] = *patch.IsActive
	}
	if patch.Priority != nil {
		fields["priority"] = *patch.Priority
	}
	if patch.IsCatalogAgent != nil {
		fields["is_catalog_agent"] = *patch.IsCatalogAgent
	}
	logging.LogAdminAction("ai_settings_updated", actor.ID, req.ID, fields)
	return nil
}

// TestResult reports a provider connection test
type TestResult struct {
	Success         bool               `json:"success"`
	Provider        models.Provider    `json:"provider"`
	Model           string             `json:"model,omitempty"`
	LatencyMs       int64              `json:"latencyMs"`
	Message         string             `json:"message,omitempty"`
	Error           string             `json:"error,omitempty"`
	HealthCheckCost ai.HealthCheckCost `json:"healthCheckCost"`
}

// Test builds the configured adapter for provider and runs its health check.
// Failures are reported in the result, not as an error.
func (s *Service) Test(ctx context.Context, provider models.Provider, model string) (*TestResult, error) {
	if !provider.Valid() {
		return nil, ErrInvalidProvider
	}

	result := &TestResult{Provider: provider, HealthCheckCost: ai.HealthCheckCostOf(provider)}
	start := time.Now()

	adapter, err := s.factory.GetSpecificAdapter(ctx, provider, model)
	if err != nil {
		result.LatencyMs = time.Since(start).Milliseconds()
		result.Error = err.Error()
		return result, nil
	}
	result.Model = adapter.Model()

	healthy := adapter.HealthCheck(ctx)
	result.LatencyMs = time.Since(start).Milliseconds()
	if healthy {
		result.Success = true
		result.Message = "Verbindung erfolgreich"
	} else {
		result.Error = "Health Check fehlgeschlagen"
	}

	s.logger.Info().
		Str("provider", string(provider)).
		Bool("healthy", healthy).
		Int64("latency_ms", result.LatencyMs).
		Msg("Provider connection tested")
	return result, nil
}
