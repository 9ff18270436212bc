package aisettings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auswanderer-plattform/backend/internal/ai"
	"github.com/auswanderer-plattform/backend/internal/models"
)

// Patch holds the fields of a config update; nil fields are left unchanged
type Patch struct {
	Provider        *models.Provider
	Model           *string
	APIKeyEncrypted *string
	IsActive        *bool
	Priority        *int
	Settings        *models.ProviderSettings
	IsCatalogAgent  *bool
}

// Store reads and writes ai_provider_config
type Store interface {
	ListConfigs(ctx context.Context) ([]models.ProviderConfig, error)

	// UpdateConfig applies p to the config with the given id. Setting
	// IsCatalogAgent clears the flag on every other config in the same transaction.
	UpdateConfig(ctx context.Context, id string, p Patch, updatedBy string) error
}

// PgStore is the Postgres Store. It is also the AI factory's config source.
type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore creates a config store
func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

var (
	_ Store           = (*PgStore)(nil)
	_ ai.ConfigSource = (*PgStore)(nil)
)

const configColumns = `id::text, provider, model, api_key_encrypted, is_active, priority,
	settings, is_catalog_agent, updated_at, updated_by`

func (s *PgStore) queryConfigs(ctx context.Context, where string) ([]models.ProviderConfig, error) {
	rows, err := s.db.Query(ctx, `SELECT `+configColumns+` FROM ai_provider_config `+where+` ORDER BY priority, provider`)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider configs: %w", err)
	}
	defer rows.Close()

	configs := []models.ProviderConfig{}
	for rows.Next() {
		var c models.ProviderConfig
		if err := rows.Scan(
			&c.ID, &c.Provider, &c.Model, &c.APIKeyEncrypted, &c.IsActive, &c.Priority,
			&c.Settings, &c.IsCatalogAgent, &c.UpdatedAt, &c.UpdatedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan provider config: %w", err)
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// ListConfigs returns every config ordered by priority
func (s *PgStore) ListConfigs(ctx context.Context) ([]models.ProviderConfig, error) {
	return s.queryConfigs(ctx, "")
}

// ActiveConfigs returns the active configs ordered by priority
func (s *PgStore) ActiveConfigs(ctx context.Context) ([]models.ProviderConfig, error) {
	return s.queryConfigs(ctx, "WHERE is_active")
}

// UpdateConfig applies a patch inside one transaction
func (s *PgStore) UpdateConfig(ctx context.Context, id string, p Patch, updatedBy string) error {
	configID, err := uuid.Parse(id)
	if err != nil {
		return ErrConfigNotFound
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `SELECT TRUE FROM ai_provider_config WHERE id = $1 FOR UPDATE`, configID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConfigNotFound
		}
		return fmt.Errorf("failed to lock provider config: %w", err)
	}

	if p.IsCatalogAgent != nil && *p.IsCatalogAgent {
		_, err = tx.Exec(ctx, `
			UPDATE ai_provider_config SET is_catalog_agent = FALSE
			WHERE id <> $1 AND is_catalog_agent
		`, configID)
		if err != nil {
			return fmt.Errorf("failed to clear catalog agent: %w", err)
		}
	}

	var provider *string
	if p.Provider != nil {
		v := string(*p.Provider)
		provider = &v
	}

	_, err = tx.Exec(ctx, `
		UPDATE ai_provider_config SET
			provider = COALESCE($2, provider),
			model = COALESCE($3, model),
			api_key_encrypted = COALESCE($4, api_key_encrypted),
			is_active = COALESCE($5, is_active),
			priority = COALESCE($6, priority),
			settings = COALESCE($7, settings),
			is_catalog_agent = COALESCE($8, is_catalog_agent),
			updated_at = NOW(),
			updated_by = $9
		WHERE id = $1
	`, configID, provider, p.Model, p.APIKeyEncrypted, p.IsActive, p.Priority, p.Settings, p.IsCatalogAgent, updatedBy)
	if err != nil {
		return fmt.Errorf("failed to update provider config: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
