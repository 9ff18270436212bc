package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/auswanderer-plattform/backend/internal/config"
)

// RateLimiter implements sliding window rate limiting using Redis
type RateLimiter struct {
	redis  *Redis
	config *config.RateLimitConfig
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	Limit      int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(r *Redis, cfg *config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		redis:  r,
		config: cfg,
	}
}

func (r *RateLimiter) window() time.Duration {
	if r.config.Window <= 0 {
		return 24 * time.Hour
	}
	return r.config.Window
}

func rateLimitKey(scope, clientID string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, clientID)
}

// Check records one request of clientID in scope and reports whether it is allowed.
// Redis errors allow the request.
func (r *RateLimiter) Check(ctx context.Context, scope, clientID string) (*RateLimitResult, error) {
	limit := r.config.AnalysisPerDay
	if !r.config.Enabled || r.redis == nil || limit <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(limit), Limit: limit}, nil
	}

	now := time.Now()
	window := r.window()
	windowStart := now.Add(-window)
	key := rateLimitKey(scope, clientID)

	// Score = timestamp, Member = unique request ID
	pipe := r.redis.Client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("client_id", clientID).Str("scope", scope).Msg("Failed to check rate limit")
		return &RateLimitResult{Allowed: true, Remaining: int64(limit), Limit: limit}, nil
	}

	currentCount := countCmd.Val()
	result := &RateLimitResult{
		Limit:   limit,
		ResetAt: now.Add(window),
	}

	if currentCount >= int64(limit) {
		result.Allowed = false
		result.Remaining = 0

		oldest, err := r.redis.Client.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err == nil && len(oldest) > 0 {
			oldestTime := time.Unix(0, int64(oldest[0].Score))
			result.RetryAfter = oldestTime.Add(window).Sub(now)
			if result.RetryAfter < 0 {
				result.RetryAfter = time.Second
			}
		} else {
			result.RetryAfter = window
		}
		return result, nil
	}

	member := fmt.Sprintf("%d-%s", now.UnixNano(), clientID)
	if err := r.redis.Client.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member}).Err(); err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("Failed to add rate limit entry")
	}
	r.redis.Client.Expire(ctx, key, window*2)

	result.Allowed = true
	result.Remaining = int64(limit) - currentCount - 1
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	return result, nil
}

// Reset clears the window of clientID in scope
func (r *RateLimiter) Reset(ctx context.Context, scope, clientID string) error {
	if r.redis == nil {
		return nil
	}
	return r.redis.Client.Del(ctx, rateLimitKey(scope, clientID)).Err()
}
