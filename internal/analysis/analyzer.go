package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/auswanderer-plattform/backend/internal/ai"
	"github.com/auswanderer-plattform/backend/internal/logging"
	"github.com/auswanderer-plattform/backend/internal/monitoring"
)

const (
	maxTokens   = 4096
	temperature = 0.7
)

// AdapterSource hands out a working AI adapter
type AdapterSource interface {
	GetAIAdapter(ctx context.Context) (ai.Adapter, error)
}

// Analyzer runs emigration analyses
type Analyzer struct {
	adapters     AdapterSource
	onExhaustion ExhaustionPolicy
	logger       zerolog.Logger
}

// NewAnalyzer creates an analyzer with the given exhaustion policy
func NewAnalyzer(adapters AdapterSource, policy ExhaustionPolicy) *Analyzer {
	return &Analyzer{
		adapters:     adapters,
		onExhaustion: policy,
		logger:       logging.NewLogger("analysis"),
	}
}

// AnalyzeEmigration ranks destinations for req.
// With ReturnMock, provider and parse failures yield MockResult().
func (a *Analyzer) AnalyzeEmigration(ctx context.Context, req Request) (*Result, error) {
	result, err := a.analyze(ctx, req)
	if err == nil {
		return result, nil
	}

	a.logger.Error().Err(err).Msg("AI analysis failed")

	if a.onExhaustion == PropagateError {
		return nil, err
	}
	monitoring.RecordAnalysisMock(mockReason(err))
	return MockResult(), nil
}

func (a *Analyzer) analyze(ctx context.Context, req Request) (*Result, error) {
	adapter, err := a.adapters.GetAIAdapter(ctx)
	if err != nil {
		return nil, err
	}

	mt := maxTokens
	temp := temperature
	resp, err := adapter.Chat(ctx, ai.Request{
		System:      SystemPrompt,
		Messages:    []ai.Message{{Role: ai.RoleUser, Content: BuildPrompt(req)}},
		MaxTokens:   &mt,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("analysis chat via %s failed: %w", adapter.Provider(), err)
	}

	result, err := ParseResponse(resp.Content)
	if err != nil {
		return nil, err
	}

	usage := resp.Usage
	result.Usage = &usage
	result.Provider = resp.Provider
	result.Model = resp.Model
	return result, nil
}

func mockReason(err error) string {
	var exhausted *ai.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		return "providers_exhausted"
	case errors.Is(err, ai.ErrNoProviders):
		return "no_providers"
	case errors.Is(err, ErrNoJSON), errors.Is(err, ErrInvalidResponse):
		return "parse_error"
	case ai.IsTimeout(err):
		return "timeout"
	default:
		return "chat_error"
	}
}
