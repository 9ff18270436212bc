package ai

import "github.com/auswanderer-plattform/backend/internal/models"

// Rates are USD prices per 1000 tokens
type Rates struct {
	InputPer1k  float64
	OutputPer1k float64
}

// defaultRates apply when a model is missing from the catalog.
var defaultRates = map[models.Provider]Rates{
	models.ProviderClaude: {InputPer1k: 0.003, OutputPer1k: 0.015},
	models.ProviderOpenAI: {InputPer1k: 0.005, OutputPer1k: 0.015},
	models.ProviderGemini: {InputPer1k: 0.00125, OutputPer1k: 0.005},
	models.ProviderGroq:   {InputPer1k: 0.00059, OutputPer1k: 0.00079}, // llama-3.1-70b
}

// DefaultRates returns the fallback rates of a provider
func DefaultRates(p models.Provider) Rates {
	return defaultRates[p]
}

// Cost returns in/1000*input + out/1000*output.
func (r Rates) Cost(inputTokens, outputTokens int) float64 {
	inputCost := float64(inputTokens) / 1000 * r.InputPer1k
	outputCost := float64(outputTokens) / 1000 * r.OutputPer1k
	return inputCost + outputCost
}
