package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware is a fixed-window counter per caller and route, shared
// across api replicas through redis. Callers are keyed by token subject when
// authenticated, by IP otherwise. When redis is absent or failing, each
// process falls back to its own token bucket with the same average rate.
func RateLimitMiddleware(rdb *redis.Client, limit int, window time.Duration, log *zap.Logger) fiber.Handler {
	if limit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	local := newLocalLimiter(rate.Limit(float64(limit)/window.Seconds()), limit)

	return func(c *fiber.Ctx) error {
		caller := GetSubject(c)
		if caller == "" || caller == "anonymous" {
			caller = c.IP()
		}
		key := fmt.Sprintf("rl:%s:%s", c.Path(), caller)

		allowed := true
		if rdb != nil {
			count, err := incrWindow(rdb, key, window)
			if err != nil {
				log.Warn("rate limit store unavailable, using local limiter", zap.Error(err))
				allowed = local.allow(key)
			} else {
				allowed = count <= int64(limit)
			}
		} else {
			allowed = local.allow(key)
		}

		if !allowed {
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", int(window.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":      "rate limit exceeded",
				"request_id": GetRequestID(c),
			})
		}

		return c.Next()
	}
}

func incrWindow(rdb *redis.Client, key string, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	pipe := rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

type localLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newLocalLimiter(r rate.Limit, burst int) *localLimiter {
	return &localLimiter{limiters: make(map[string]*rate.Limiter), rate: r, burst: burst}
}

func (l *localLimiter) allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
