package ai

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/auswanderer-plattform/backend/internal/logging"
	"github.com/auswanderer-plattform/backend/internal/models"
	"github.com/auswanderer-plattform/backend/internal/monitoring"
)

const (
	defaultMaxTokens   = 4096
	defaultTemperature = 0.7

	healthCheckMaxTokens = 10
	healthCheckTimeout   = 15 * time.Second
)

// Options configures one adapter instance
type Options struct {
	APIKey   string
	Model    string
	Settings models.ProviderSettings
	Rates    Rates

	// BaseURL overrides the vendor endpoint; empty keeps the SDK default.
	BaseURL    string
	HTTPClient *http.Client
	Timeouts   *TimeoutManager
}

// base carries the state every vendor adapter shares
type base struct {
	provider models.Provider
	model    string
	settings models.ProviderSettings
	rates    Rates
	timeouts *TimeoutManager

	mu        sync.Mutex
	lastUsage *Usage
}

func newBase(provider models.Provider, opts Options) *base {
	timeouts := opts.Timeouts
	if timeouts == nil {
		timeouts = NewTimeoutManager(nil)
	}
	return &base{
		provider: provider,
		model:    opts.Model,
		settings: opts.Settings,
		rates:    opts.Rates,
		timeouts: timeouts,
	}
}

func (b *base) Provider() models.Provider { return b.provider }

func (b *base) Model() string { return b.model }

func (b *base) CalculateCost(inputTokens, outputTokens int) float64 {
	return b.rates.Cost(inputTokens, outputTokens)
}

func (b *base) HealthCheckCost() HealthCheckCost { return HealthCheckCostOf(b.provider) }

func (b *base) LastUsage() *Usage {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastUsage == nil {
		return nil
	}
	u := *b.lastUsage
	return &u
}

// usage builds and remembers the usage of a finished call
func (b *base) usage(inputTokens, outputTokens, totalTokens int) Usage {
	if totalTokens == 0 {
		totalTokens = inputTokens + outputTokens
	}
	u := Usage{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  totalTokens,
		CostUSD:      b.CalculateCost(inputTokens, outputTokens),
	}
	b.mu.Lock()
	b.lastUsage = &u
	b.mu.Unlock()
	return u
}

func (b *base) maxTokens(req Request) int {
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		return *req.MaxTokens
	}
	if b.settings.MaxTokens != nil && *b.settings.MaxTokens > 0 {
		return *b.settings.MaxTokens
	}
	return defaultMaxTokens
}

func (b *base) temperature(req Request) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	if b.settings.Temperature != nil {
		return *b.settings.Temperature
	}
	return defaultTemperature
}

// chat runs one vendor call under the call timeout and records logs and metrics.
func (b *base) chat(ctx context.Context, do func(ctx context.Context) (*Response, error)) (*Response, error) {
	callCtx, cancel, timeout := b.timeouts.WithTimeout(ctx, 0)
	defer cancel()

	start := time.Now()
	resp, err := do(callCtx)
	err = classifyTimeout(callCtx, err, timeout)
	latency := time.Since(start)

	entry := &logging.AICallLogEntry{
		Operation: "chat",
		Provider:  string(b.provider),
		Model:     b.model,
		Latency:   latency,
		Status:    "success",
	}

	if err != nil {
		entry.Status = "error"
		entry.Error = logging.SanitizeForLog(err.Error(), 500)
		logging.LogAICall(entry)
		monitoring.RecordAIProviderCall(string(b.provider), b.model, "error", latency)
		monitoring.RecordAIProviderError(string(b.provider), b.model, errorType(err))
		return nil, err
	}

	entry.InputTokens = resp.Usage.InputTokens
	entry.OutputTokens = resp.Usage.OutputTokens
	entry.CostUSD = resp.Usage.CostUSD
	logging.LogAICall(entry)
	monitoring.RecordAIProviderCall(string(b.provider), b.model, "success", latency)
	monitoring.RecordAIUsage(string(b.provider), b.model, resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Usage.CostUSD)
	return resp, nil
}

// healthCheck runs probe under a short deadline and records the result.
func (b *base) healthCheck(ctx context.Context, probe func(ctx context.Context) error) bool {
	checkCtx, cancel, _ := b.timeouts.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	err := probe(checkCtx)
	healthy := err == nil
	if !healthy {
		logger := logging.NewLogger("ai.adapter")
		logger.Debug().
			Err(err).
			Str("provider", string(b.provider)).
			Str("model", b.model).
			Msg("Health check failed")
	}
	monitoring.RecordHealthCheck(string(b.provider), healthy)
	return healthy
}
