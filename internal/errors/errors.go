package errors

import (
	"net/http"
	"time"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Request errors (400xx)
	ErrInvalidRequest   ErrorCode = "40001"
	ErrValidationFailed ErrorCode = "40002"
	ErrInvalidJSON      ErrorCode = "40003"
	ErrInvalidProvider  ErrorCode = "40004"

	// Authentication errors (401xx)
	ErrUnauthorized       ErrorCode = "40100"
	ErrInvalidCredentials ErrorCode = "40101"
	ErrTokenExpired       ErrorCode = "40102"
	ErrInvalidCronSecret  ErrorCode = "40103"

	// Authorization errors (403xx)
	ErrForbidden          ErrorCode = "40301"
	ErrSuperAdminRequired ErrorCode = "40302"

	// Resource errors (404xx)
	ErrNotFound            ErrorCode = "40400"
	ErrUpdateNotFound      ErrorCode = "40401"
	ErrProviderNotFound    ErrorCode = "40402"
	ErrProviderUnavailable ErrorCode = "40403"
	ErrModelNotFound       ErrorCode = "40404"

	// Conflict errors (409xx)
	ErrUpdateNotPending ErrorCode = "40901"
	ErrModelExists      ErrorCode = "40902"

	// Rate limit errors (429xx)
	ErrRateLimited ErrorCode = "42901"

	// Server errors (5xxxx)
	ErrInternalServer      ErrorCode = "50001"
	ErrDatabaseError       ErrorCode = "50002"
	ErrCacheError          ErrorCode = "50003"
	ErrCronNotConfigured   ErrorCode = "50004"
	ErrCatalogCheckFailed  ErrorCode = "50005"
	ErrUpstreamError       ErrorCode = "50201"
	ErrUpstreamUnavailable ErrorCode = "50301"
	ErrProvidersExhausted  ErrorCode = "50302"
	ErrUpstreamTimeout     ErrorCode = "50401"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	Timestamp  time.Time `json:"-"`
	HTTPStatus int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// WithDetails returns a copy of the error carrying details
func (e *APIError) WithDetails(details any) *APIError {
	cp := *e
	cp.Details = details
	cp.Timestamp = time.Now().UTC()
	return &cp
}

// WithMessage returns a copy of the error with a different message
func (e *APIError) WithMessage(message string) *APIError {
	cp := *e
	cp.Message = message
	cp.Timestamp = time.Now().UTC()
	return &cp
}

// ErrorBody is the "error" object of an error response
type ErrorBody struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
	Timestamp string    `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
	Method    string    `json:"method,omitempty"`
}

// ErrorResponse represents the error response format
type ErrorResponse struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"request_id"`
}

// NewErrorResponse builds the wire representation of an APIError
func NewErrorResponse(apiErr *APIError, requestID, path, method string) ErrorResponse {
	ts := apiErr.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return ErrorResponse{
		Error: ErrorBody{
			Code:      apiErr.Code,
			Message:   apiErr.Message,
			Details:   apiErr.Details,
			Retryable: IsRetryable(apiErr),
			Timestamp: ts.Format(time.RFC3339),
			Path:      path,
			Method:    method,
		},
		RequestID: requestID,
	}
}

// Common errors
var (
	ErrUnauthorizedError = &APIError{
		Code:       ErrUnauthorized,
		Message:    "Nicht autorisiert",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidProviderError = &APIError{
		Code:       ErrInvalidProvider,
		Message:    "Ungültiger Provider",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidCredentialsError = &APIError{
		Code:       ErrInvalidCredentials,
		Message:    "Invalid email or password",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpiredError = &APIError{
		Code:       ErrTokenExpired,
		Message:    "Token has expired",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidCronSecretError = &APIError{
		Code:       ErrInvalidCronSecret,
		Message:    "Unauthorized",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbiddenError = &APIError{
		Code:       ErrForbidden,
		Message:    "Keine Admin-Berechtigung",
		HTTPStatus: http.StatusForbidden,
	}

	ErrSuperAdminRequiredError = &APIError{
		Code:       ErrSuperAdminRequired,
		Message:    "Nur Super-Admins können AI-Einstellungen ändern",
		HTTPStatus: http.StatusForbidden,
	}

	ErrUpdateNotFoundError = &APIError{
		Code:       ErrUpdateNotFound,
		Message:    "Update not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrProviderNotFoundError = &APIError{
		Code:       ErrProviderNotFound,
		Message:    "Provider not configured",
		HTTPStatus: http.StatusNotFound,
	}

	ErrUpdateNotPendingError = &APIError{
		Code:       ErrUpdateNotPending,
		Message:    "Update already processed",
		HTTPStatus: http.StatusConflict,
	}

	ErrModelNotFoundError = &APIError{
		Code:       ErrModelNotFound,
		Message:    "Model not found in catalog",
		HTTPStatus: http.StatusNotFound,
	}

	ErrModelExistsError = &APIError{
		Code:       ErrModelExists,
		Message:    "Model already in catalog",
		HTTPStatus: http.StatusConflict,
	}

	ErrRateLimitedError = &APIError{
		Code:       ErrRateLimited,
		Message:    "Rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInternalServerError = &APIError{
		Code:       ErrInternalServer,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrCronNotConfiguredError = &APIError{
		Code:       ErrCronNotConfigured,
		Message:    "Cron not configured",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrCatalogCheckFailedError = &APIError{
		Code:       ErrCatalogCheckFailed,
		Message:    "Catalog check failed",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrUpstreamTimeoutError = &APIError{
		Code:       ErrUpstreamTimeout,
		Message:    "AI provider timeout",
		HTTPStatus: http.StatusGatewayTimeout,
	}

	ErrUpstreamUnavailableError = &APIError{
		Code:       ErrUpstreamUnavailable,
		Message:    "AI provider unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrProvidersExhaustedError = &APIError{
		Code:       ErrProvidersExhausted,
		Message:    "All AI providers failed",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       ErrValidationFailed,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewRateLimitError creates a rate limit error telling the client when to retry
func NewRateLimitError(retryAfterSeconds int64) *APIError {
	return ErrRateLimitedError.WithDetails(map[string]int64{"retry_after_seconds": retryAfterSeconds})
}

// NewUpstreamError creates an error for a failed AI provider call
func NewUpstreamError(provider string, statusCode int) *APIError {
	return &APIError{
		Code:    ErrUpstreamError,
		Message: "AI provider returned an error",
		Details: map[string]interface{}{
			"provider":    provider,
			"status_code": statusCode,
		},
		HTTPStatus: http.StatusBadGateway,
	}
}

// GetHTTPStatusFromCode maps an error code onto its HTTP status. Used for
// errors built without an explicit HTTPStatus.
func GetHTTPStatusFromCode(code ErrorCode) int {
	switch code {
	case ErrInvalidRequest, ErrValidationFailed, ErrInvalidJSON, ErrInvalidProvider:
		return http.StatusBadRequest
	case ErrUnauthorized, ErrInvalidCredentials, ErrTokenExpired, ErrInvalidCronSecret:
		return http.StatusUnauthorized
	case ErrForbidden, ErrSuperAdminRequired:
		return http.StatusForbidden
	case ErrNotFound, ErrUpdateNotFound, ErrProviderNotFound, ErrProviderUnavailable, ErrModelNotFound:
		return http.StatusNotFound
	case ErrUpdateNotPending, ErrModelExists:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrUpstreamError:
		return http.StatusBadGateway
	case ErrUpstreamUnavailable, ErrProvidersExhausted:
		return http.StatusServiceUnavailable
	case ErrUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable reports whether the client may retry the request later
func IsRetryable(err *APIError) bool {
	switch err.Code {
	case ErrUpstreamTimeout, ErrUpstreamUnavailable, ErrProvidersExhausted, ErrRateLimited:
		return true
	}
	return false
}

// IsServerError reports whether the error is a 5xx
func IsServerError(err *APIError) bool {
	return err.HTTPStatus >= 500 && err.HTTPStatus < 600
}
