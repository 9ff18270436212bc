package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutConfig holds timeout configuration
type TimeoutConfig struct {
	// DefaultTimeout is used when a call does not ask for a specific one
	DefaultTimeout time.Duration
	// MaxTimeout is the maximum allowed timeout
	MaxTimeout time.Duration
	// MinTimeout is the minimum allowed timeout
	MinTimeout time.Duration
}

// DefaultTimeoutConfig returns default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		DefaultTimeout: 60 * time.Second,
		MaxTimeout:     120 * time.Second,
		MinTimeout:     5 * time.Second,
	}
}

// TimeoutManager bounds outbound provider calls
type TimeoutManager struct {
	config *TimeoutConfig
}

// NewTimeoutManager creates a new timeout manager
func NewTimeoutManager(config *TimeoutConfig) *TimeoutManager {
	if config == nil {
		config = DefaultTimeoutConfig()
	}
	return &TimeoutManager{config: config}
}

// GetTimeout returns the timeout for a call.
// Zero selects the default; other values are clamped to [min, max].
func (t *TimeoutManager) GetTimeout(requested time.Duration) time.Duration {
	if requested == 0 {
		return t.config.DefaultTimeout
	}
	if requested < t.config.MinTimeout {
		return t.config.MinTimeout
	}
	if requested > t.config.MaxTimeout {
		return t.config.MaxTimeout
	}
	return requested
}

// WithTimeout derives a context bounded by the selected timeout
func (t *TimeoutManager) WithTimeout(ctx context.Context, requested time.Duration) (context.Context, context.CancelFunc, time.Duration) {
	timeout := t.GetTimeout(requested)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, timeout
}

// classifyTimeout maps an expired call deadline onto ErrTimeout.
func classifyTimeout(ctx context.Context, err error, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	return err
}
