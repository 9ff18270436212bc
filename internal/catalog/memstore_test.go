package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/auswanderer-plattform/backend/internal/models"
)

// memStore is an in-memory Store whose transactions roll back on error
type memStore struct {
	mu      sync.Mutex
	catalog map[string]models.ModelCatalogEntry
	updates map[uuid.UUID]models.ModelUpdate
	checks  map[uuid.UUID]*memCheck
	order   []uuid.UUID

	// failInsertUpdate is returned by the failInsertUpdateAt-th InsertUpdate
	// call, or by every call when failInsertUpdateAt is zero.
	failInsertUpdate   error
	failInsertUpdateAt int
	insertUpdateCalls  int
}

type memCheck struct {
	models.CatalogCheck
	completion Completion
	seq        int
}

func newMemStore(entries ...models.ModelCatalogEntry) *memStore {
	s := &memStore{
		catalog: map[string]models.ModelCatalogEntry{},
		updates: map[uuid.UUID]models.ModelUpdate{},
		checks:  map[uuid.UUID]*memCheck{},
	}
	for _, e := range entries {
		s.catalog[e.ID] = e
	}
	return s
}

func (s *memStore) ListCatalog(ctx context.Context) ([]models.ModelCatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ModelCatalogEntry, 0, len(s.catalog))
	for _, e := range s.catalog {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) CreateCheck(ctx context.Context, trigger models.TriggerType, triggeredBy *string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.checks[id] = &memCheck{
		CatalogCheck: models.CatalogCheck{
			ID: id, CheckedAt: time.Now(), TriggerType: trigger, TriggeredBy: triggeredBy,
			Status: models.CheckStatusRunning,
		},
		seq: len(s.checks),
	}
	return id, nil
}

func (s *memStore) CompleteCheck(ctx context.Context, id uuid.UUID, c Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chk := s.checks[id]
	chk.Status = models.CheckStatusCompleted
	chk.ModelsChecked = c.ModelsChecked
	chk.UpdatesFound = c.UpdatesFound
	chk.AIModelUsed = &c.AIModelUsed
	chk.completion = c
	now := time.Now()
	chk.CompletedAt = &now
	return nil
}

func (s *memStore) FailCheck(ctx context.Context, id uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chk := s.checks[id]
	chk.Status = models.CheckStatusFailed
	chk.ErrorMessage = &message
	now := time.Now()
	chk.CompletedAt = &now
	return nil
}

func (s *memStore) InsertUpdate(ctx context.Context, u *models.ModelUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertUpdateCalls++
	if s.failInsertUpdate != nil && (s.failInsertUpdateAt == 0 || s.insertUpdateCalls == s.failInsertUpdateAt) {
		return s.failInsertUpdate
	}
	u.ID = uuid.New()
	u.CheckedAt = time.Now()
	s.updates[u.ID] = *u
	s.order = append(s.order, u.ID)
	return nil
}

func (s *memStore) PendingUpdates(ctx context.Context) ([]models.ModelUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.ModelUpdate{}
	for i := len(s.order) - 1; i >= 0; i-- {
		if u := s.updates[s.order[i]]; u.Status == models.UpdateStatusPending {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memStore) RecentChecks(ctx context.Context, limit int) ([]models.CatalogCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*memCheck, 0, len(s.checks))
	for _, c := range s.checks {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq > all[j].seq })
	out := []models.CatalogCheck{}
	for i := 0; i < len(all) && i < limit; i++ {
		out = append(out, all[i].CatalogCheck)
	}
	return out, nil
}

func (s *memStore) InTx(ctx context.Context, fn func(tx TxStore) error) error {
	s.mu.Lock()
	catalog := make(map[string]models.ModelCatalogEntry, len(s.catalog))
	for k, v := range s.catalog {
		catalog[k] = v
	}
	updates := make(map[uuid.UUID]models.ModelUpdate, len(s.updates))
	for k, v := range s.updates {
		updates[k] = v
	}
	checks := make(map[uuid.UUID]memCheck, len(s.checks))
	for k, v := range s.checks {
		checks[k] = *v
	}
	order := append([]uuid.UUID(nil), s.order...)
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.catalog, s.updates, s.order = catalog, updates, order
		for k, v := range checks {
			*s.checks[k] = v
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) LockUpdate(ctx context.Context, id uuid.UUID) (*models.ModelUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.updates[id]
	if !ok {
		return nil, ErrUpdateNotFound
	}
	return &u, nil
}

func (s *memStore) InsertModel(ctx context.Context, e *models.ModelCatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.catalog[e.ID]; ok {
		return ErrModelExists
	}
	s.catalog[e.ID] = *e
	return nil
}

func (s *memStore) UpdateModelCosts(ctx context.Context, modelID string, input, output decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.catalog[modelID]
	if !ok {
		return ErrModelNotFound
	}
	e.InputCostPer1k, e.OutputCostPer1k = input, output
	s.catalog[modelID] = e
	return nil
}

func (s *memStore) DeprecateModel(ctx context.Context, modelID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.catalog[modelID]
	if !ok {
		return ErrModelNotFound
	}
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	e.IsDeprecated, e.DeprecatedAt = true, &day
	s.catalog[modelID] = e
	return nil
}

func (s *memStore) MarkApplied(ctx context.Context, id uuid.UUID, by string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.updates[id]
	u.Status, u.AppliedBy, u.AppliedAt = models.UpdateStatusApplied, &by, &at
	s.updates[id] = u
	return nil
}

func (s *memStore) MarkDismissed(ctx context.Context, id uuid.UUID, by string, reason *string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.updates[id]
	u.Status, u.DismissedBy, u.DismissReason, u.DismissedAt = models.UpdateStatusDismissed, &by, reason, &at
	s.updates[id] = u
	return nil
}

func (s *memStore) check(id uuid.UUID) *memCheck {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checks[id]
}

func (s *memStore) onlyCheck() *memCheck {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.checks {
		return c
	}
	return nil
}
