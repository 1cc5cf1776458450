package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/peteat123/Peteat-sub001/internal/apperr"
	"github.com/peteat123/Peteat-sub001/internal/metrics"
)

// Counter increments a fixed-window counter and returns the new value.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(c *redis.Client) *RedisCounter { return &RedisCounter{client: c} }

func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

type RateLimiter struct {
	counter Counter
	prefix  string
	limit   int
	window  time.Duration
	log     *zap.Logger
}

func NewRateLimiter(counter Counter, prefix string, limit int, window time.Duration, log *zap.Logger) *RateLimiter {
	return &RateLimiter{counter: counter, prefix: prefix, limit: limit, window: window, log: log}
}

// MiddlewareByKey limits requests per keyFunc(c). Counter errors fail open.
func (r *RateLimiter) MiddlewareByKey(keyFunc func(c *fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if r.limit <= 0 {
			return c.Next()
		}
		key := fmt.Sprintf("%s:ratelimit:%s", r.prefix, keyFunc(c))
		count, err := r.counter.Incr(c.UserContext(), key, r.window)
		if err != nil {
			r.log.Warn("rate limiter unavailable", zap.Error(err))
			return c.Next()
		}
		if count > int64(r.limit) {
			metrics.RateLimitHits.WithLabelValues("http").Inc()
			err := apperr.RateLimited("rate limit exceeded")
			return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{
				"error": apperr.MessageOf(err),
				"code":  apperr.CodeOf(err),
			})
		}
		return c.Next()
	}
}
