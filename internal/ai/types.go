// Package ai wraps the supported LLM vendors behind one Adapter interface and
// selects a working provider from the stored configuration.
package ai

import (
	"context"

	"github.com/auswanderer-plattform/backend/internal/models"
)

// Role of a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the vendor-neutral chat request
type Request struct {
	System      string    `json:"system"`
	Messages    []Message `json:"messages"`
	MaxTokens   *int      `json:"maxTokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// FinishReason normalizes vendor stop reasons
type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
)

// Usage is the token accounting of one call
type Usage struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	TotalTokens  int     `json:"totalTokens"`
	CostUSD      float64 `json:"costUsd"`
}

// Response is the vendor-neutral chat response
type Response struct {
	Content      string          `json:"content"`
	Usage        Usage           `json:"usage"`
	Model        string          `json:"model"`
	Provider     models.Provider `json:"provider"`
	RequestID    string          `json:"requestId,omitempty"`
	FinishReason FinishReason    `json:"finishReason"`
}

// Adapter is implemented once per vendor.
type Adapter interface {
	Provider() models.Provider
	Model() string

	// Chat sends one completion request. Adapters never retry.
	Chat(ctx context.Context, req Request) (*Response, error)

	// HealthCheck verifies the key and connectivity.
	HealthCheck(ctx context.Context) bool

	// CalculateCost estimates USD for the given token counts.
	CalculateCost(inputTokens, outputTokens int) float64

	// LastUsage returns the usage of the last successful Chat, or nil.
	LastUsage() *Usage

	HealthCheckCost() HealthCheckCost
}

// HealthCheckCost describes what a provider's health check spends
type HealthCheckCost string

const (
	// HealthCheckPaid health checks issue a minimal chat completion.
	HealthCheckPaid HealthCheckCost = "paid"
	// HealthCheckFree health checks call a free listing endpoint.
	HealthCheckFree HealthCheckCost = "free"
)

// HealthCheckCostOf reports the health check cost of a provider.
func HealthCheckCostOf(p models.Provider) HealthCheckCost {
	if p == models.ProviderGroq {
		return HealthCheckFree
	}
	return HealthCheckPaid
}
