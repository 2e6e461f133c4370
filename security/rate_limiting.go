package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter per client IP kept in Redis.
type RateLimiter struct {
	redis  redis.Cmdable
	prefix string
	limit  int64
	window time.Duration

	// clientID identifies the caller, e.RealIP() by default.
	clientID func(e *core.RequestEvent) string
}

func NewRateLimiter(redisClient redis.Cmdable, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
		clientID: func(e *core.RequestEvent) string {
			return e.RealIP()
		},
	}
}

// Allow counts one request for id and reports whether it is within the limit.
func (r *RateLimiter) Allow(ctx context.Context, id string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", r.prefix, id)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, fmt.Errorf("security: redis.Incr: %w", err)
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, r.window).Err(); err != nil {
			return true, fmt.Errorf("security: redis.Expire: %w", err)
		}
	}
	return count <= r.limit, nil
}

// Middleware rejects clients over the limit with 429. Redis errors let the
// request through.
func (r *RateLimiter) Middleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if r == nil || r.redis == nil {
			return e.Next()
		}

		allowed, err := r.Allow(e.Request.Context(), r.clientID(e))
		if err != nil {
			slog.Warn("rate limiter unavailable", "prefix", r.prefix, "error", err)
			return e.Next()
		}
		if !allowed {
			return apis.NewTooManyRequestsError("Too many requests. Please try again later.", nil)
		}
		return e.Next()
	}
}

// AntiBotMiddleware refuses obvious crawlers on endpoints that create state.
func AntiBotMiddleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return apis.NewForbiddenError("Access denied", nil)
		}
		return e.Next()
	}
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
