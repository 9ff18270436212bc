package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/auswanderer-plattform/backend/internal/models"
)

var (
	ErrNoProviders           = errors.New("no AI providers configured")
	ErrMissingAPIKey         = errors.New("no API key")
	ErrUnknownProvider       = errors.New("unknown provider")
	ErrProviderNotConfigured = errors.New("provider not configured")
	ErrHealthCheckFailed     = errors.New("health check failed")
	ErrTimeout               = errors.New("AI provider timeout")
	ErrEmptyResponse         = errors.New("AI provider returned no content")
)

// VendorError is a non-2xx response from a provider API
type VendorError struct {
	Provider   models.Provider
	StatusCode int
	Body       string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Body)
}

// ProviderFailure records why one config could not be used
type ProviderFailure struct {
	Provider models.Provider `json:"provider"`
	Model    string          `json:"model"`
	Priority int             `json:"priority"`
	Reason   string          `json:"reason"`
	Err      error           `json:"-"`
}

// ExhaustedError is returned when no configured provider produced a healthy adapter.
type ExhaustedError struct {
	Failures []ProviderFailure
}

func (e *ExhaustedError) Error() string {
	reasons := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		reasons = append(reasons, fmt.Sprintf("%s: %s", f.Provider, f.Reason))
	}
	return "all AI providers failed: " + strings.Join(reasons, "; ")
}

// Unwrap exposes the individual failure causes to errors.Is / errors.As.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// IsTimeout reports whether err is a provider timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// errorType labels an error for metrics
func errorType(err error) string {
	var vendorErr *VendorError
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrHealthCheckFailed):
		return "health_check"
	case errors.Is(err, ErrMissingAPIKey):
		return "missing_key"
	case errors.As(err, &vendorErr):
		return fmt.Sprintf("http_%d", vendorErr.StatusCode)
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transport"
	}
}
