package ai

import (
	"context"

	"github.com/auswanderer-plattform/backend/internal/models"
)

const groqBaseURL = "https://api.groq.com/openai/v1/"

// GroqAdapter uses Groq's OpenAI compatible endpoint
type GroqAdapter struct {
	*OpenAIAdapter
}

// NewGroqAdapter creates a Groq adapter
func NewGroqAdapter(opts Options) *GroqAdapter {
	if opts.BaseURL == "" {
		opts.BaseURL = groqBaseURL
	}
	return &GroqAdapter{OpenAIAdapter: newChatCompletionsAdapter(models.ProviderGroq, opts)}
}

// HealthCheck lists models, which costs nothing.
func (a *GroqAdapter) HealthCheck(ctx context.Context) bool {
	return a.healthCheck(ctx, func(ctx context.Context) error {
		_, err := a.client.Models.List(ctx)
		return err
	})
}
