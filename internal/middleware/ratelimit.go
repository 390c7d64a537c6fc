package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"time"

	"roamio/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

var errNoRedis = errors.New("redis client is nil")

// Environments where per-route quotas are not enforced.
var unthrottledEnvs = []string{"test", "development", "stress"}

// Quota is a fixed-window request budget. Routes sharing a Name share counters.
type Quota struct {
	Name   string
	Max    int64
	Window time.Duration
	// Strict answers 503 when Redis is unreachable instead of letting the request through.
	Strict bool
}

// PerMinute and PerHour build the common quotas.
func PerMinute(name string, n int64) Quota { return Quota{Name: name, Max: n, Window: time.Minute} }
func PerHour(name string, n int64) Quota { return Quota{Name: name, Max: n, Window: time.Hour} }

// IncrWindow increments the counter at key and returns the new count and the
// time left in its window. The window starts on the first hit.
func IncrWindow(ctx context.Context, rdb redis.Cmdable, key string, window time.Duration) (int64, time.Duration, error) {
	if rdb == nil {
		return 0, 0, errNoRedis
	}
	cnt, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if cnt == 1 {
		rdb.Expire(ctx, key, window)
		return cnt, window, nil
	}

	ttl, err := rdb.TTL(ctx, key).Result()
	switch {
	case err != nil:
		return cnt, window, nil
	case ttl < 0:
		// The key lost its expiry between INCR and EXPIRE.
		rdb.Expire(ctx, key, window)
		ttl = window
	}
	return cnt, ttl, nil
}

// Allow records one hit by id against q. It returns how long to wait when the
// quota is exhausted and zero otherwise.
func Allow(ctx context.Context, rdb *redis.Client, q Quota, id string) (time.Duration, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if slices.Contains(unthrottledEnvs, env) {
		return 0, nil
	}
	if rdb == nil {
		return 0, errNoRedis
	}

	cnt, ttl, err := IncrWindow(ctx, rdb, fmt.Sprintf("rl:%s:%s", q.Name, id), q.Window)
	if err != nil {
		return 0, err
	}
	if cnt <= q.Max {
		return 0, nil
	}
	return max(ttl, time.Second), nil
}

// RateLimit enforces q per authenticated user, or per client IP for anonymous requests.
func RateLimit(rdb *redis.Client, q Quota) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		id := "ip:" + c.IP()
		if uid, ok := c.Locals("userID").(uint); ok {
			id = "user:" + strconv.FormatUint(uint64(uid), 10)
		}

		wait, err := Allow(ctx, rdb, q, id)
		if err != nil {
			if !q.Strict {
				return c.Next()
			}
			Logger.WarnContext(ctx, "rate limit store unavailable, rejecting",
				slog.String("quota", q.Name),
				slog.String("error", err.Error()),
			)
			return models.RespondWithError(c, fiber.StatusServiceUnavailable,
				models.NewInternalError(fmt.Errorf("rate limit %s: %w", q.Name, err)))
		}
		if wait > 0 {
			secs := int(wait / time.Second)
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				models.NewRateLimitedError(fmt.Sprintf("Too many requests, retry in %d seconds", secs), secs))
		}
		return c.Next()
	}
}
