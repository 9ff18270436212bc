package models

import (
	"time"
)

// Provider identifies an AI vendor
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderGroq   Provider = "groq"
)

// Providers lists every supported vendor in default priority order
var Providers = []Provider{ProviderClaude, ProviderOpenAI, ProviderGemini, ProviderGroq}

// Valid reports whether p is one of the supported vendors
func (p Provider) Valid() bool {
	switch p {
	case ProviderClaude, ProviderOpenAI, ProviderGemini, ProviderGroq:
		return true
	}
	return false
}

// ProviderSettings are per-config generation defaults
type ProviderSettings struct {
	MaxTokens     *int     `json:"maxTokens,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"topP,omitempty"`
	StopSequences []string `json:"stopSequences,omitempty"`
}

// ProviderConfig is one row of ai_provider_config
type ProviderConfig struct {
	ID              string           `json:"id" db:"id"`
	Provider        Provider         `json:"provider" db:"provider"`
	Model           string           `json:"model" db:"model"`
	APIKeyEncrypted *string          `json:"-" db:"api_key_encrypted"`
	IsActive        bool             `json:"is_active" db:"is_active"`
	Priority        int              `json:"priority" db:"priority"`
	Settings        ProviderSettings `json:"settings" db:"settings"`
	IsCatalogAgent  bool             `json:"is_catalog_agent" db:"is_catalog_agent"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
	UpdatedBy       *string          `json:"updated_by,omitempty" db:"updated_by"`
}

// HasStoredKey reports whether an API key is stored for this config
func (c *ProviderConfig) HasStoredKey() bool {
	return c.APIKeyEncrypted != nil && *c.APIKeyEncrypted != ""
}
