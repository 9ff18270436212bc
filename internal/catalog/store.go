package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/auswanderer-plattform/backend/internal/ai"
	"github.com/auswanderer-plattform/backend/internal/models"
)

// Store errors
var (
	ErrUpdateNotFound   = errors.New("model update not found")
	ErrUpdateNotPending = errors.New("model update is not pending")
	ErrModelNotFound    = errors.New("catalog model not found")
	ErrModelExists      = errors.New("catalog model already exists")
)

// Completion is what a finished check run records
type Completion struct {
	ModelsChecked int
	UpdatesFound  int
	AIModelUsed   string
	Usage         ai.Usage
	Duration      time.Duration
}

// Store persists the model catalog, proposed updates and check runs.
type Store interface {
	ListCatalog(ctx context.Context) ([]models.ModelCatalogEntry, error)
	CreateCheck(ctx context.Context, trigger models.TriggerType, triggeredBy *string) (uuid.UUID, error)
	FailCheck(ctx context.Context, id uuid.UUID, message string) error
	PendingUpdates(ctx context.Context) ([]models.ModelUpdate, error)
	RecentChecks(ctx context.Context, limit int) ([]models.CatalogCheck, error)

	// InTx runs fn in a single transaction; fn's error rolls it back.
	InTx(ctx context.Context, fn func(tx TxStore) error) error
}

// TxStore holds the writes that must commit together: the proposals of a
// check with its completion, and the review of an update under a row lock.
type TxStore interface {
	InsertUpdate(ctx context.Context, u *models.ModelUpdate) error
	CompleteCheck(ctx context.Context, id uuid.UUID, c Completion) error


	// LockUpdate selects the update FOR UPDATE; ErrUpdateNotFound when absent.
	LockUpdate(ctx context.Context, id uuid.UUID) (*models.ModelUpdate, error)
	InsertModel(ctx context.Context, e *models.ModelCatalogEntry) error
	UpdateModelCosts(ctx context.Context, modelID string, input, output decimal.Decimal) error
	DeprecateModel(ctx context.Context, modelID string, at time.Time) error
	MarkApplied(ctx context.Context, id uuid.UUID, by string, at time.Time) error
	MarkDismissed(ctx context.Context, id uuid.UUID, by string, reason *string, at time.Time) error
}

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore is the Postgres Store. It also serves model costs to the AI factory.
type PgStore struct {
	db   DBTX
	pool *pgxpool.Pool
}

// NewPgStore creates a store on the pool
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{db: pool, pool: pool}
}

var (
	_ Store            = (*PgStore)(nil)
	_ TxStore          = (*PgStore)(nil)
	_ ai.CatalogSource = (*PgStore)(nil)
)

const catalogColumns = `id, provider, name, description, input_cost_per_1k, output_cost_per_1k,
	max_tokens, context_window, is_latest, is_deprecated, deprecated_at, is_available,
	capabilities, updated_at`

func scanCatalogEntry(row pgx.Row) (*models.ModelCatalogEntry, error) {
	var e models.ModelCatalogEntry
	err := row.Scan(
		&e.ID, &e.Provider, &e.Name, &e.Description, &e.InputCostPer1k, &e.OutputCostPer1k,
		&e.MaxTokens, &e.ContextWindow, &e.IsLatest, &e.IsDeprecated, &e.DeprecatedAt, &e.IsAvailable,
		&e.Capabilities, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.Capabilities == nil {
		e.Capabilities = []string{}
	}
	return &e, nil
}

func collectCatalog(rows pgx.Rows) ([]models.ModelCatalogEntry, error) {
	defer rows.Close()

	entries := []models.ModelCatalogEntry{}
	for rows.Next() {
		e, err := scanCatalogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ListCatalog returns every catalog model, ordered by provider and name
func (s *PgStore) ListCatalog(ctx context.Context) ([]models.ModelCatalogEntry, error) {
	rows, err := s.db.Query(ctx, `SELECT `+catalogColumns+` FROM ai_model_catalog ORDER BY provider, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}
	return collectCatalog(rows)
}

// AvailableModels lists available, non-deprecated models, latest first.
// An empty provider lists all providers.
func (s *PgStore) AvailableModels(ctx context.Context, provider models.Provider) ([]models.ModelCatalogEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+catalogColumns+`
		FROM ai_model_catalog
		WHERE is_available AND NOT is_deprecated
		  AND ($1 = '' OR provider = $1)
		ORDER BY provider, is_latest DESC, name
	`, string(provider))
	if err != nil {
		return nil, fmt.Errorf("failed to list available models: %w", err)
	}
	return collectCatalog(rows)
}

// ModelCosts returns nil, nil when the model is unknown
func (s *PgStore) ModelCosts(ctx context.Context, modelID string) (*models.ModelCosts, error) {
	var in, out decimal.Decimal
	err := s.db.QueryRow(ctx, `
		SELECT input_cost_per_1k, output_cost_per_1k FROM ai_model_catalog WHERE id = $1
	`, modelID).Scan(&in, &out)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get model costs: %w", err)
	}
	return &models.ModelCosts{Input: in.InexactFloat64(), Output: out.InexactFloat64()}, nil
}

// CreateCheck inserts a running check
func (s *PgStore) CreateCheck(ctx context.Context, trigger models.TriggerType, triggeredBy *string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.Exec(ctx, `
		INSERT INTO ai_catalog_checks (id, trigger_type, triggered_by, status, checked_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, id, trigger, triggeredBy, models.CheckStatusRunning)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create catalog check: %w", err)
	}
	return id, nil
}

// CompleteCheck marks a check completed
func (s *PgStore) CompleteCheck(ctx context.Context, id uuid.UUID, c Completion) error {
	_, err := s.db.Exec(ctx, `
		UPDATE ai_catalog_checks
		SET status = $2, models_checked = $3, updates_found = $4, ai_model_used = $5,
		    ai_input_tokens = $6, ai_output_tokens = $7, ai_cost_usd = $8,
		    duration_ms = $9, completed_at = NOW()
		WHERE id = $1
	`, id, models.CheckStatusCompleted, c.ModelsChecked, c.UpdatesFound, c.AIModelUsed,
		c.Usage.InputTokens, c.Usage.OutputTokens, decimal.NewFromFloat(c.Usage.CostUSD),
		c.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to complete catalog check: %w", err)
	}
	return nil
}

// FailCheck marks a check failed
func (s *PgStore) FailCheck(ctx context.Context, id uuid.UUID, message string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE ai_catalog_checks SET status = $2, error_message = $3, completed_at = NOW()
		WHERE id = $1
	`, id, models.CheckStatusFailed, message)
	if err != nil {
		return fmt.Errorf("failed to mark catalog check failed: %w", err)
	}
	return nil
}

// InsertUpdate stores a proposed update and fills in its ID and CheckedAt
func (s *PgStore) InsertUpdate(ctx context.Context, u *models.ModelUpdate) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	current, err := marshalNullable(u.CurrentData)
	if err != nil {
		return err
	}
	suggested, err := json.Marshal(u.SuggestedData)
	if err != nil {
		return fmt.Errorf("failed to encode suggested data: %w", err)
	}

	err = s.db.QueryRow(ctx, `
		INSERT INTO ai_model_updates (id, update_type, provider, model_id, current_data, suggested_data,
			change_summary, source_url, confidence, status, check_id, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		RETURNING checked_at
	`, u.ID, u.UpdateType, u.Provider, u.ModelID, current, suggested,
		u.ChangeSummary, u.SourceURL, u.Confidence, u.Status, u.CheckID).Scan(&u.CheckedAt)
	if err != nil {
		return fmt.Errorf("failed to insert model update: %w", err)
	}
	return nil
}

const updateColumns = `id, update_type, provider, model_id, current_data, suggested_data, change_summary,
	source_url, confidence, status, check_id, checked_at, applied_at, applied_by,
	dismissed_at, dismissed_by, dismiss_reason`

func scanUpdate(row pgx.Row) (*models.ModelUpdate, error) {
	var (
		u                  models.ModelUpdate
		current, suggested []byte
	)
	err := row.Scan(
		&u.ID, &u.UpdateType, &u.Provider, &u.ModelID, &current, &suggested, &u.ChangeSummary,
		&u.SourceURL, &u.Confidence, &u.Status, &u.CheckID, &u.CheckedAt, &u.AppliedAt, &u.AppliedBy,
		&u.DismissedAt, &u.DismissedBy, &u.DismissReason,
	)
	if err != nil {
		return nil, err
	}
	if len(current) > 0 && string(current) != "null" {
		u.CurrentData = &models.ModelCatalogEntry{}
		if err := json.Unmarshal(current, u.CurrentData); err != nil {
			return nil, fmt.Errorf("failed to decode current data: %w", err)
		}
	}
	u.SuggestedData = models.ModelData{}
	if len(suggested) > 0 {
		if err := json.Unmarshal(suggested, &u.SuggestedData); err != nil {
			return nil, fmt.Errorf("failed to decode suggested data: %w", err)
		}
	}
	return &u, nil
}

// PendingUpdates lists pending updates, newest first
func (s *PgStore) PendingUpdates(ctx context.Context) ([]models.ModelUpdate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+updateColumns+` FROM ai_model_updates
		WHERE status = $1
		ORDER BY checked_at DESC
	`, models.UpdateStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending updates: %w", err)
	}
	defer rows.Close()

	updates := []models.ModelUpdate{}
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model update: %w", err)
		}
		updates = append(updates, *u)
	}
	return updates, rows.Err()
}

// RecentChecks lists the newest check runs
func (s *PgStore) RecentChecks(ctx context.Context, limit int) ([]models.CatalogCheck, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, checked_at, trigger_type, triggered_by, status, models_checked, updates_found,
		       ai_model_used, ai_input_tokens, ai_output_tokens, ai_cost_usd, duration_ms,
		       error_message, completed_at
		FROM ai_catalog_checks
		ORDER BY checked_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog checks: %w", err)
	}
	defer rows.Close()

	checks := []models.CatalogCheck{}
	for rows.Next() {
		var c models.CatalogCheck
		if err := rows.Scan(
			&c.ID, &c.CheckedAt, &c.TriggerType, &c.TriggeredBy, &c.Status, &c.ModelsChecked, &c.UpdatesFound,
			&c.AIModelUsed, &c.AIInputTokens, &c.AIOutputTokens, &c.AICostUSD, &c.DurationMs,
			&c.ErrorMessage, &c.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan catalog check: %w", err)
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// InTx runs fn in a transaction. A store already bound to a transaction reuses it.
func (s *PgStore) InTx(ctx context.Context, fn func(tx TxStore) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PgStore{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LockUpdate selects an update FOR UPDATE
func (s *PgStore) LockUpdate(ctx context.Context, id uuid.UUID) (*models.ModelUpdate, error) {
	u, err := scanUpdate(s.db.QueryRow(ctx, `
		SELECT `+updateColumns+` FROM ai_model_updates WHERE id = $1 FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUpdateNotFound
		}
		return nil, fmt.Errorf("failed to get model update: %w", err)
	}
	return u, nil
}

// InsertModel adds a catalog model
func (s *PgStore) InsertModel(ctx context.Context, e *models.ModelCatalogEntry) error {
	caps := e.Capabilities
	if caps == nil {
		caps = []string{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO ai_model_catalog (id, provider, name, description, input_cost_per_1k, output_cost_per_1k,
			max_tokens, context_window, is_latest, is_deprecated, is_available, capabilities, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, $10, $11, NOW())
	`, e.ID, e.Provider, e.Name, e.Description, e.InputCostPer1k, e.OutputCostPer1k,
		e.MaxTokens, e.ContextWindow, e.IsLatest, e.IsAvailable, caps)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrModelExists
		}
		return fmt.Errorf("failed to insert catalog model: %w", err)
	}
	return nil
}

// UpdateModelCosts sets both per-1k rates of a model
func (s *PgStore) UpdateModelCosts(ctx context.Context, modelID string, input, output decimal.Decimal) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE ai_model_catalog
		SET input_cost_per_1k = $2, output_cost_per_1k = $3, updated_at = NOW()
		WHERE id = $1
	`, modelID, input, output)
	if err != nil {
		return fmt.Errorf("failed to update model costs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrModelNotFound
	}
	return nil
}

// DeprecateModel flags a model deprecated as of the date of at
func (s *PgStore) DeprecateModel(ctx context.Context, modelID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE ai_model_catalog
		SET is_deprecated = TRUE, deprecated_at = $2::date, updated_at = NOW()
		WHERE id = $1
	`, modelID, at)
	if err != nil {
		return fmt.Errorf("failed to deprecate model: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrModelNotFound
	}
	return nil
}

// MarkApplied records who applied an update
func (s *PgStore) MarkApplied(ctx context.Context, id uuid.UUID, by string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE ai_model_updates SET status = $2, applied_at = $3, applied_by = $4 WHERE id = $1
	`, id, models.UpdateStatusApplied, at, by)
	if err != nil {
		return fmt.Errorf("failed to mark update applied: %w", err)
	}
	return nil
}

// MarkDismissed records who dismissed an update and why
func (s *PgStore) MarkDismissed(ctx context.Context, id uuid.UUID, by string, reason *string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE ai_model_updates
		SET status = $2, dismissed_at = $3, dismissed_by = $4, dismiss_reason = $5
		WHERE id = $1
	`, id, models.UpdateStatusDismissed, at, by, reason)
	if err != nil {
		return fmt.Errorf("failed to mark update dismissed: %w", err)
	}
	return nil
}

func marshalNullable(e *models.ModelCatalogEntry) ([]byte, error) {
	if e == nil {
		return nil, nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode current data: %w", err)
	}
	return b, nil
}
