package security

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"theater-site/internal/status"
	"theater-site/utils"
)

const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// Locker hands out short-lived Redis locks. Without a Redis client every
// Acquire succeeds.
type Locker struct {
	redis  redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewLocker(redisClient redis.Cmdable, prefix string, ttl time.Duration) *Locker {
	return &Locker{redis: redisClient, prefix: prefix, ttl: ttl}
}

// Acquire takes the lock for key or returns status.ErrWebhookLocked when
// someone else holds it. The returned release only deletes the lock if it
// still carries this holder's token.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.redis == nil {
		return func() {}, nil
	}

	token, err := utils.GenerateCode(8)
	if err != nil {
		return nil, fmt.Errorf("security: GenerateCode: %w", err)
	}

	k := l.prefix + ":" + key
	ok, err := l.redis.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("security: redis.SetNX: %w", err)
	}
	if !ok {
		return nil, status.ErrWebhookLocked
	}

	return func() {
		// The request context may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.redis.Eval(releaseCtx, releaseScript, []string{k}, token).Err(); err != nil {
			slog.Warn("security: lock release failed", "key", k, "error", err)
		}
	}, nil
}
