// Package catalog keeps the AI model catalog current. An LLM agent compares
// the stored catalog with vendor pricing pages and proposes updates, which
// admins apply or dismiss.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/auswanderer-plattform/backend/internal/ai"
	"github.com/auswanderer-plattform/backend/internal/logging"
	"github.com/auswanderer-plattform/backend/internal/models"
	"github.com/auswanderer-plattform/backend/internal/monitoring"
)

const (
	agentMaxTokens = 4096

	// RecentChecksLimit is the default number of checks shown to admins
	RecentChecksLimit = 10

	defaultModelName = "Unknown Model"
	defaultMaxTokens = 4096
)

// AdapterSource builds the adapter for the agent provider
type AdapterSource interface {
	GetSpecificAdapter(ctx context.Context, provider models.Provider, model string) (ai.Adapter, error)
}

// ConfigLister lists every provider config, active or not
type ConfigLister interface {
	ListConfigs(ctx context.Context) ([]models.ProviderConfig, error)
}

// PageFetcher returns the pricing page text per provider
type PageFetcher interface {
	FetchAll(ctx context.Context) map[models.Provider]string
}

// Notifier is told about checks that found updates
type Notifier interface {
	NotifyCatalogUpdates(ctx context.Context, checkID uuid.UUID, updatesFound int) error
}

// CheckResult is returned by a successful check
type CheckResult struct {
	CheckID      uuid.UUID `json:"checkId"`
	UpdatesFound int       `json:"updatesFound"`
	Summary      string    `json:"summary,omitempty"`
}

// Agent runs catalog checks and reviews their proposals
type Agent struct {
	store    Store
	adapters AdapterSource
	configs  ConfigLister
	pages    PageFetcher
	notifier Notifier
	now      func() time.Time
	logger   zerolog.Logger
}

// AgentOption configures an Agent
type AgentOption func(*Agent)

// WithNotifier sets who hears about cron checks that found updates
func WithNotifier(n Notifier) AgentOption {
	return func(a *Agent) { a.notifier = n }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) AgentOption {
	return func(a *Agent) { a.now = now }
}

// NewAgent creates a catalog agent
func NewAgent(store Store, adapters AdapterSource, configs ConfigLister, pages PageFetcher, opts ...AgentOption) *Agent {
	a := &Agent{
		store:    store,
		adapters: adapters,
		configs:  configs,
		pages:    pages,
		now:      time.Now,
		logger:   logging.NewLogger("catalog"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunCatalogCheck asks the agent provider for catalog changes and stores them
// as pending updates. The check row is written before any other work so that
// every run, failed or not, leaves a record.
func (a *Agent) RunCatalogCheck(ctx context.Context, triggeredBy *string, trigger models.TriggerType) (*CheckResult, error) {
	start := a.now()

	checkID, err := a.store.CreateCheck(ctx, trigger, triggeredBy)
	if err != nil {
		monitoring.RecordCatalogCheck(string(trigger), string(models.CheckStatusFailed), 0, 0)
		return nil, fmt.Errorf("failed to create check log: %w", err)
	}

	result, usage, err := a.run(ctx, checkID, start)
	if err != nil {
		if ferr := a.store.FailCheck(context.WithoutCancel(ctx), checkID, err.Error()); ferr != nil {
			a.logger.Error().Err(ferr).Str("check_id", checkID.String()).Msg("Failed to record failed catalog check")
		}
		a.logger.Error().Err(err).Str("check_id", checkID.String()).Msg("Catalog check failed")
		monitoring.RecordCatalogCheck(string(trigger), string(models.CheckStatusFailed), 0, usage.CostUSD)
		return nil, err
	}

	a.logger.Info().
		Str("check_id", checkID.String()).
		Int("updates_found", result.UpdatesFound).
		Dur("duration", a.now().Sub(start)).
		Float64("cost_usd", usage.CostUSD).
		Msg("Catalog check completed")
	monitoring.RecordCatalogCheck(string(trigger), string(models.CheckStatusCompleted), result.UpdatesFound, usage.CostUSD)

	if trigger == models.TriggerCron && result.UpdatesFound > 0 && a.notifier != nil {
		if err := a.notifier.NotifyCatalogUpdates(ctx, checkID, result.UpdatesFound); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to send catalog update notification")
		}
	}

	return result, nil
}

func (a *Agent) run(ctx context.Context, checkID uuid.UUID, start time.Time) (*CheckResult, ai.Usage, error) {
	var usage ai.Usage

	catalog, err := a.store.ListCatalog(ctx)
	if err != nil {
		return nil, usage, err
	}

	pages := a.pages.FetchAll(ctx)

	provider := a.agentProvider(ctx)
	a.logger.Info().Str("provider", string(provider)).Msg("Running catalog agent")

	adapter, err := a.adapters.GetSpecificAdapter(ctx, provider, "")
	if err != nil {
		return nil, usage, err
	}

	message, err := BuildAgentMessage(catalog, pages)
	if err != nil {
		return nil, usage, err
	}

	mt := agentMaxTokens
	resp, err := adapter.Chat(ctx, ai.Request{
		System:    AgentPrompt,
		Messages:  []ai.Message{{Role: ai.RoleUser, Content: message}},
		MaxTokens: &mt,
	})
	if err != nil {
		return nil, usage, fmt.Errorf("catalog agent chat via %s failed: %w", provider, err)
	}
	usage = resp.Usage

	proposed, summary := ParseAgentResponse(resp.Content)
	if len(proposed) == 0 && summary == "" {
		a.logger.Warn().
			Str("response", logging.SanitizeForLog(resp.Content, 200)).
			Msg("Catalog agent returned no parsable updates")
	}

	byID := make(map[string]models.ModelCatalogEntry, len(catalog))
	for _, e := range catalog {
		byID[e.ID] = e
	}

	// A check either completes with all of its proposals or leaves none behind.
	err = a.store.InTx(ctx, func(tx TxStore) error {
		for _, p := range proposed {
			u := &models.ModelUpdate{
				UpdateType:    p.Type,
				Provider:      p.Provider,
				ModelID:       p.ModelID,
				SuggestedData: p.SuggestedData,
				ChangeSummary: p.ChangeSummary,
				Confidence:    p.Confidence,
				Status:        models.UpdateStatusPending,
				CheckID:       &checkID,
			}
			if current, ok := byID[p.ModelID]; ok {
				u.CurrentData = &current
			}
			if url, ok := PricingURLs[p.Provider]; ok {
				u.SourceURL = &url
			}
			if err := tx.InsertUpdate(ctx, u); err != nil {
				return err
			}
		}

		return tx.CompleteCheck(ctx, checkID, Completion{
			ModelsChecked: len(catalog),
			UpdatesFound:  len(proposed),
			AIModelUsed:   adapter.Model(),
			Usage:         usage,
			Duration:      a.now().Sub(start),
		})
	})
	if err != nil {
		return nil, usage, err
	}

	return &CheckResult{CheckID: checkID, UpdatesFound: len(proposed), Summary: summary}, usage, nil
}

// agentProvider picks the flagged catalog agent, else the highest priority
// active provider with a stored key, else Claude.
func (a *Agent) agentProvider(ctx context.Context) models.Provider {
	if a.configs == nil {
		return models.ProviderClaude
	}

	configs, err := a.configs.ListConfigs(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to load provider configs, using claude as catalog agent")
		return models.ProviderClaude
	}
	return selectAgentProvider(configs)
}

func selectAgentProvider(configs []models.ProviderConfig) models.Provider {
	for _, c := range configs {
		if c.IsCatalogAgent {
			return c.Provider
		}
	}

	candidates := make([]models.ProviderConfig, 0, len(configs))
	for _, c := range configs {
		if c.IsActive && c.HasStoredKey() {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return models.ProviderClaude
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Priority < candidates[j].Priority })
	return candidates[0].Provider
}

// ApplyModelUpdate writes a pending update into the catalog and marks it applied.
// The update row stays locked for the whole transaction.
func (a *Agent) ApplyModelUpdate(ctx context.Context, id uuid.UUID, appliedBy string) error {
	var applied *models.ModelUpdate

	err := a.store.InTx(ctx, func(tx TxStore) error {
		u, err := tx.LockUpdate(ctx, id)
		if err != nil {
			return err
		}
		if u.Status != models.UpdateStatusPending {
			return ErrUpdateNotPending
		}

		now := a.now()
		data := u.SuggestedData
		switch u.UpdateType {
		case models.UpdateTypeNewModel:
			err = tx.InsertModel(ctx, newCatalogEntry(u))
		case models.UpdateTypePriceChange:
			err = tx.UpdateModelCosts(ctx, u.ModelID, costOf(data, "inputCostPer1k"), costOf(data, "outputCostPer1k"))
		case models.UpdateTypeDeprecated:
			err = tx.DeprecateModel(ctx, u.ModelID, now)
		default:
			err = fmt.Errorf("unknown update type %q", u.UpdateType)
		}
		if err != nil {
			return err
		}

		applied = u
		return tx.MarkApplied(ctx, id, appliedBy, now)
	})
	if err != nil {
		return err
	}

	logging.LogAdminAction("catalog_update_applied", appliedBy, id.String(), map[string]any{
		"update_type": string(applied.UpdateType),
		"model_id":    applied.ModelID,
	})
	return nil
}

// DismissModelUpdate rejects a pending update. An empty reason stores NULL.
func (a *Agent) DismissModelUpdate(ctx context.Context, id uuid.UUID, dismissedBy, reason string) error {
	err := a.store.InTx(ctx, func(tx TxStore) error {
		u, err := tx.LockUpdate(ctx, id)
		if err != nil {
			return err
		}
		if u.Status != models.UpdateStatusPending {
			return ErrUpdateNotPending
		}

		var r *string
		if reason != "" {
			r = &reason
		}
		return tx.MarkDismissed(ctx, id, dismissedBy, r, a.now())
	})
	if err != nil {
		return err
	}

	logging.LogAdminAction("catalog_update_dismissed", dismissedBy, id.String(), map[string]any{"reason": reason})
	return nil
}

// PendingUpdates lists updates awaiting review
func (a *Agent) PendingUpdates(ctx context.Context) ([]models.ModelUpdate, error) {
	return a.store.PendingUpdates(ctx)
}

// RecentChecks lists the newest check runs; limit <= 0 means RecentChecksLimit
func (a *Agent) RecentChecks(ctx context.Context, limit int) ([]models.CatalogCheck, error) {
	if limit <= 0 {
		limit = RecentChecksLimit
	}
	return a.store.RecentChecks(ctx, limit)
}

func newCatalogEntry(u *models.ModelUpdate) *models.ModelCatalogEntry {
	data := u.SuggestedData

	e := &models.ModelCatalogEntry{
		ID:              u.ModelID,
		Provider:        u.Provider,
		Name:            data.String("name"),
		InputCostPer1k:  costOf(data, "inputCostPer1k"),
		OutputCostPer1k: costOf(data, "outputCostPer1k"),
		MaxTokens:       data.Int("maxTokens"),
		IsLatest:        data.Bool("isLatest"),
		IsAvailable:     true,
		Capabilities:    []string{},
	}
	if e.Name == "" {
		e.Name = defaultModelName
	}
	if e.MaxTokens <= 0 {
		e.MaxTokens = defaultMaxTokens
	}
	if d := data.String("description"); d != "" {
		e.Description = &d
	}
	if cw := data.Int("contextWindow"); cw > 0 {
		e.ContextWindow = &cw
	}
	return e
}

func costOf(data models.ModelData, key string) decimal.Decimal {
	v := data.Float(key)
	if v < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
