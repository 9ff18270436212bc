package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/auswanderer-plattform/backend/internal/auth"
	"github.com/auswanderer-plattform/backend/internal/cache"
	apierrors "github.com/auswanderer-plattform/backend/internal/errors"
	"github.com/auswanderer-plattform/backend/internal/logging"
	"github.com/auswanderer-plattform/backend/internal/models"
	"github.com/auswanderer-plattform/backend/internal/monitoring"
)

// Context keys for storing admin information
const (
	ContextKeyUserID    = "user_id"
	ContextKeyRole      = "role"
	ContextKeyEmail     = "email"
	ContextKeyClaims    = "claims"
	ContextKeyRequestID = "request_id"
)

// TokenValidator validates admin access tokens
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// JWTAuth validates the Bearer token and stores the admin's identity in the context
func JWTAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			RespondWithError(c, apierrors.ErrUnauthorizedError)
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(tokenString)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				RespondWithError(c, apierrors.ErrTokenExpiredError)
			} else {
				RespondWithError(c, apierrors.ErrUnauthorizedError)
			}
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyRole, string(claims.Role))
		c.Set(ContextKeyEmail, claims.Email)
		c.Set(ContextKeyClaims, claims)

		c.Next()
	}
}

// extractBearerToken extracts the token from a Bearer authorization header
func extractBearerToken(authHeader string) (string, error) {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) || len(authHeader) == len(bearerPrefix) {
		return "", auth.ErrInvalidToken
	}
	return authHeader[len(bearerPrefix):], nil
}

// RespondWithError sends a standardized error response. Server errors are
// also attached to the context so the request log carries them.
func RespondWithError(c *gin.Context, err *apierrors.APIError) {
	if err.HTTPStatus == 0 {
		cp := *err
		cp.HTTPStatus = apierrors.GetHTTPStatusFromCode(err.Code)
		err = &cp
	}
	if apierrors.IsServerError(err) {
		_ = c.Error(err)
	}

	response := apierrors.NewErrorResponse(
		err,
		GetRequestIDFromContext(c),
		c.Request.URL.Path,
		c.Request.Method,
	)
	c.JSON(err.HTTPStatus, response)
}

// RequireRole checks that the admin has one of the allowed roles.
// It must run after JWTAuth.
func RequireRole(allowedRoles ...models.AdminRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRoleFromContext(c)
		for _, allowed := range allowedRoles {
			if role == allowed {
				c.Next()
				return
			}
		}

		apiErr := apierrors.ErrForbiddenError
		if len(allowedRoles) == 1 && allowedRoles[0] == models.RoleSuperAdmin {
			apiErr = apierrors.ErrSuperAdminRequiredError
		}
		logging.LogSecurityEvent("forbidden", GetUserIDFromContext(c), c.ClientIP(), c.Request.URL.Path)
		RespondWithError(c, apiErr)
		c.Abort()
	}
}

// RequireAdmin admits admins and super admins
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin, models.RoleSuperAdmin)
}

// RequireSuperAdmin admits super admins only
func RequireSuperAdmin() gin.HandlerFunc {
	return RequireRole(models.RoleSuperAdmin)
}

// CronAuth guards scheduler endpoints with "Authorization: Bearer <secret>".
// Outside production the check is skipped.
func CronAuth(secret string, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !production {
			c.Next()
			return
		}
		if secret == "" {
			logging.LogSecurityEvent("cron_not_configured", "", c.ClientIP(), c.Request.URL.Path)
			RespondWithError(c, apierrors.ErrCronNotConfiguredError)
			c.Abort()
			return
		}

		expected := "Bearer " + secret
		if subtle.ConstantTimeCompare([]byte(c.GetHeader("Authorization")), []byte(expected)) != 1 {
			logging.LogSecurityEvent("cron_unauthorized", "", c.ClientIP(), c.Request.URL.Path)
			RespondWithError(c, apierrors.ErrInvalidCronSecretError)
			c.Abort()
			return
		}
		c.Next()
	}
}

// Limiter records a request and reports whether it is within the limit
type Limiter interface {
	Check(ctx context.Context, scope, clientID string) (*cache.RateLimitResult, error)
}

// RateLimit limits requests per client IP within scope
func RateLimit(limiter Limiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := limiter.Check(c.Request.Context(), scope, c.ClientIP())
		if err != nil || result == nil {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))

		if !result.Allowed {
			retryAfter := int64(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			monitoring.RecordRateLimitHit(scope)
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			RespondWithError(c, apierrors.NewRateLimitError(retryAfter))
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserIDFromContext returns the admin id, or "" when unauthenticated
func GetUserIDFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// GetRoleFromContext returns the admin role, or "" when unauthenticated
func GetRoleFromContext(c *gin.Context) models.AdminRole {
	return models.AdminRole(c.GetString(ContextKeyRole))
}

// GetEmailFromContext returns the admin e-mail
func GetEmailFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyEmail)
}

// GetClaimsFromContext returns the full claims, or nil
func GetClaimsFromContext(c *gin.Context) *auth.Claims {
	claims, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	cl, _ := claims.(*auth.Claims)
	return cl
}

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// GetRequestIDFromContext returns the request ID, or ""
func GetRequestIDFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// CORS configures CORS headers
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, o := range allowedOrigins {
			if o == origin || o == "*" {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Remaining, Retry-After")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "43200") // 12 hours
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
