// Package cache wraps the Redis client used for ephemeral state and read-through caching.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"roamio/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

var client *redis.Client

// errorCounter feeds failed commands into roamio_redis_errors_total. A miss
// (redis.Nil) is not a failure.
type errorCounter struct{}

func countFailure(label string, err error) error {
	if err != nil && !errors.Is(err, redis.Nil) {
		middleware.RedisErrors.WithLabelValues(label).Inc()
	}
	return err
}

func (errorCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		return countFailure(cmd.Name(), next(ctx, cmd))
	}
}

func (errorCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		return countFailure("pipeline", next(ctx, cmds))
	}
}

// NewClient builds a client from either a redis:// URL or a bare host:port.
func NewClient(addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}
	rdb := redis.NewClient(opts)
	rdb.AddHook(errorCounter{})
	return rdb, nil
}

// InitRedis connects the package-level client. Redis only holds ephemeral
// state, so on failure the application runs without it and GetClient returns nil.
func InitRedis(addr string) {
	client = nil
	rdb, err := NewClient(addr)
	if err != nil {
		middleware.Logger.Warn("invalid REDIS_URL, running without redis", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		middleware.Logger.Warn("redis unreachable, running without redis",
			slog.String("addr", rdb.Options().Addr), slog.String("error", err.Error()))
		_ = rdb.Close()
		return
	}
	client = rdb
	middleware.Logger.Info("redis connected", slog.String("addr", rdb.Options().Addr))
}

// SetClient replaces the package-level client. Tests use it to install miniredis.
func SetClient(rdb *redis.Client) {
	client = rdb
}

// GetClient returns the shared client, or nil when Redis is unavailable.
func GetClient() *redis.Client {
	return client
}
