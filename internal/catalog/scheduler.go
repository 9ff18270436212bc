package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/auswanderer-plattform/backend/internal/logging"
	"github.com/auswanderer-plattform/backend/internal/models"
)

// DefaultCheckInterval runs the catalog agent once a week
const DefaultCheckInterval = 7 * 24 * time.Hour

// Checker runs one catalog check
type Checker interface {
	RunCatalogCheck(ctx context.Context, triggeredBy *string, trigger models.TriggerType) (*CheckResult, error)
}

// Scheduler runs cron catalog checks in-process
type Scheduler struct {
	checker  Checker
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	logger   zerolog.Logger

	mu         sync.Mutex
	running    bool
	lastRun    time.Time
	lastResult *CheckResult
	lastError  string
}

// NewScheduler creates a scheduler; interval <= 0 uses DefaultCheckInterval
func NewScheduler(checker Checker, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Scheduler{
		checker:  checker,
		interval: interval,
		logger:   logging.NewLogger("catalog_scheduler"),
	}
}

// Start begins ticking. The first check runs after one interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx, stopCh)

	s.logger.Info().Dur("interval", s.interval).Msg("Catalog scheduler started")
	return nil
}

// Stop ends the loop and waits for a running check to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh := s.stopCh
	s.mu.Unlock()

	close(stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("Catalog scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if _, err := s.RunNow(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Scheduled catalog check failed")
			}
		}
	}
}

// RunNow runs a cron check immediately
func (s *Scheduler) RunNow(ctx context.Context) (*CheckResult, error) {
	result, err := s.checker.RunCatalogCheck(ctx, nil, models.TriggerCron)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastResult = result
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
	s.mu.Unlock()

	return result, err
}

// SchedulerStatus is reported to admins
type SchedulerStatus struct {
	Running    bool         `json:"running"`
	Interval   string       `json:"interval"`
	LastRun    *time.Time   `json:"lastRun,omitempty"`
	LastResult *CheckResult `json:"lastResult,omitempty"`
	LastError  string       `json:"lastError,omitempty"`
	NextRun    *time.Time   `json:"nextRun,omitempty"`
}

// Status returns a snapshot of the scheduler state
func (s *Scheduler) Status() *SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &SchedulerStatus{
		Running:    s.running,
		Interval:   s.interval.String(),
		LastResult: s.lastResult,
		LastError:  s.lastError,
	}
	if !s.lastRun.IsZero() {
		last := s.lastRun
		status.LastRun = &last
		if s.running {
			next := last.Add(s.interval)
			status.NextRun = &next
		}
	}
	return status
}
