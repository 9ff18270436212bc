package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ModelCatalogEntry is one row of ai_model_catalog
type ModelCatalogEntry struct {
	ID              string          `json:"id" db:"id"`
	Provider        Provider        `json:"provider" db:"provider"`
	Name            string          `json:"name" db:"name"`
	Description     *string         `json:"description,omitempty" db:"description"`
	InputCostPer1k  decimal.Decimal `json:"inputCostPer1k" db:"input_cost_per_1k"`
	OutputCostPer1k decimal.Decimal `json:"outputCostPer1k" db:"output_cost_per_1k"`
	MaxTokens       int             `json:"maxTokens" db:"max_tokens"`
	ContextWindow   *int            `json:"contextWindow,omitempty" db:"context_window"`
	IsLatest        bool            `json:"isLatest" db:"is_latest"`
	IsDeprecated    bool            `json:"isDeprecated" db:"is_deprecated"`
	DeprecatedAt    *time.Time      `json:"deprecatedAt,omitempty" db:"deprecated_at"`
	IsAvailable     bool            `json:"isAvailable" db:"is_available"`
	Capabilities    []string        `json:"capabilities" db:"capabilities"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

// ModelCosts are the per-1k token rates of a catalog model
type ModelCosts struct {
	Input  float64
	Output float64
}

// UpdateType classifies a proposed catalog change
type UpdateType string

const (
	UpdateTypeNewModel    UpdateType = "new_model"
	UpdateTypePriceChange UpdateType = "price_change"
	UpdateTypeDeprecated  UpdateType = "deprecated"
)

// Valid reports whether t is a known update type
func (t UpdateType) Valid() bool {
	switch t {
	case UpdateTypeNewModel, UpdateTypePriceChange, UpdateTypeDeprecated:
		return true
	}
	return false
}

// UpdateStatus is the review state of a model update
type UpdateStatus string

const (
	UpdateStatusPending   UpdateStatus = "pending"
	UpdateStatusApplied   UpdateStatus = "applied"
	UpdateStatusDismissed UpdateStatus = "dismissed"
	UpdateStatusInvalid   UpdateStatus = "invalid"
)

// ModelData is the free-form model description proposed by the catalog agent.
// Values come from LLM output, so accessors coerce loosely typed JSON.
type ModelData map[string]any

// String returns the value at key as a string, or "" when missing.
func (d ModelData) String(key string) string {
	switch v := d[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// Float returns the numeric value at key, 0 when missing or not a number.
func (d ModelData) Float(key string) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// Int returns the value at key truncated to an int.
func (d ModelData) Int(key string) int {
	return int(d.Float(key))
}

// Bool returns the value at key as a bool, false when missing.
func (d ModelData) Bool(key string) bool {
	switch v := d[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// ModelUpdate is one row of ai_model_updates
type ModelUpdate struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	UpdateType    UpdateType         `json:"updateType" db:"update_type"`
	Provider      Provider           `json:"provider" db:"provider"`
	ModelID       string             `json:"modelId" db:"model_id"`
	CurrentData   *ModelCatalogEntry `json:"currentData" db:"current_data"`
	SuggestedData ModelData          `json:"suggestedData" db:"suggested_data"`
	ChangeSummary string             `json:"changeSummary" db:"change_summary"`
	SourceURL     *string            `json:"sourceUrl,omitempty" db:"source_url"`
	Confidence    float64            `json:"confidence" db:"confidence"`
	Status        UpdateStatus       `json:"status" db:"status"`
	CheckID       *uuid.UUID         `json:"checkId,omitempty" db:"check_id"`
	CheckedAt     time.Time          `json:"checkedAt" db:"checked_at"`
	AppliedAt     *time.Time         `json:"appliedAt,omitempty" db:"applied_at"`
	AppliedBy     *string            `json:"appliedBy,omitempty" db:"applied_by"`
	DismissedAt   *time.Time         `json:"dismissedAt,omitempty" db:"dismissed_at"`
	DismissedBy   *string            `json:"dismissedBy,omitempty" db:"dismissed_by"`
	DismissReason *string            `json:"dismissReason,omitempty" db:"dismiss_reason"`
}

// TriggerType says what started a catalog check
type TriggerType string

const (
	TriggerCron   TriggerType = "cron"
	TriggerManual TriggerType = "manual"
)

// CheckStatus is the state of a catalog check run
type CheckStatus string

const (
	CheckStatusRunning   CheckStatus = "running"
	CheckStatusCompleted CheckStatus = "completed"
	CheckStatusFailed    CheckStatus = "failed"
)

// CatalogCheck is one row of ai_catalog_checks
type CatalogCheck struct {
	ID             uuid.UUID           `json:"id" db:"id"`
	CheckedAt      time.Time           `json:"checkedAt" db:"checked_at"`
	TriggerType    TriggerType         `json:"triggerType" db:"trigger_type"`
	TriggeredBy    *string             `json:"triggeredBy,omitempty" db:"triggered_by"`
	Status         CheckStatus         `json:"status" db:"status"`
	ModelsChecked  int                 `json:"modelsChecked" db:"models_checked"`
	UpdatesFound   int                 `json:"updatesFound" db:"updates_found"`
	AIModelUsed    *string             `json:"aiModelUsed,omitempty" db:"ai_model_used"`
	AIInputTokens  *int                `json:"aiInputTokens,omitempty" db:"ai_input_tokens"`
	AIOutputTokens *int                `json:"aiOutputTokens,omitempty" db:"ai_output_tokens"`
	AICostUSD      decimal.NullDecimal `json:"aiCostUsd" db:"ai_cost_usd"`
	DurationMs     *int                `json:"durationMs,omitempty" db:"duration_ms"`
	ErrorMessage   *string             `json:"errorMessage,omitempty" db:"error_message"`
	CompletedAt    *time.Time          `json:"completedAt,omitempty" db:"completed_at"`
}
