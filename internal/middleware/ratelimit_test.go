package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roamio/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestAllow_UnthrottledEnvironments(t *testing.T) {
	for _, env := range unthrottledEnvs {
		t.Run(env, func(t *testing.T) {
			t.Setenv("APP_ENV", env)
			wait, err := Allow(context.Background(), nil, PerMinute("like", 1), "ip:1")
			assert.NoError(t, err)
			assert.Zero(t, wait)
		})
	}
}

func TestAllow_NilRedis(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	_, err := Allow(context.Background(), nil, PerMinute("like", 1), "ip:1")
	assert.ErrorIs(t, err, errNoRedis)
}

func TestAllow_WindowResets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	mr, rdb := newMiniRedis(t)
	ctx := context.Background()
	q := PerMinute("like", 3)

	for i := 0; i < 3; i++ {
		wait, err := Allow(ctx, rdb, q, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.Zero(t, wait, "request %d should pass", i+1)
	}

	wait, err := Allow(ctx, rdb, q, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, wait)

	other, err := Allow(ctx, rdb, q, "ip:5.6.7.8")
	require.NoError(t, err)
	assert.Zero(t, other, "counters are per client")

	mr.FastForward(time.Minute + time.Second)
	wait, err = Allow(ctx, rdb, q, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestIncrWindow_ReportsRemaining(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	ctx := context.Background()

	cnt, ttl, err := IncrWindow(ctx, rdb, "k", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)
	assert.Equal(t, 5*time.Minute, ttl)

	mr.FastForward(2 * time.Minute)
	cnt, ttl, err = IncrWindow(ctx, rdb, "k", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cnt)
	assert.Equal(t, 3*time.Minute, ttl)
}

func TestIncrWindow_RestoresLostExpiry(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	require.NoError(t, mr.Set("k", "4"))

	cnt, ttl, err := IncrWindow(context.Background(), rdb, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(5), cnt)
	assert.Equal(t, time.Minute, ttl)
	assert.Equal(t, time.Minute, mr.TTL("k"))
}

func TestRateLimit_RejectsWithAppError(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	_, rdb := newMiniRedis(t)

	app := fiber.New()
	app.Get("/limited", RateLimit(rdb, PerMinute("limited", 1)), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/limited", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/limited", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, models.CodeRateLimited, body.Code)
	assert.Equal(t, 60, body.RetryAfter)
}

func TestRateLimit_KeysByAuthenticatedUser(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	mr, rdb := newMiniRedis(t)

	app := fiber.New()
	app.Get("/me", func(c *fiber.Ctx) error {
		c.Locals("userID", uint(42))
		return c.Next()
	}, RateLimit(rdb, PerHour("me", 5)), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, mr.Exists("rl:me:user:42"))
}

func TestRateLimit_StrictQuotaFailsClosed(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	app := fiber.New()
	strict := Quota{Name: "closed", Max: 1, Window: time.Minute, Strict: true}
	app.Get("/closed", RateLimit(nil, strict), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/open", RateLimit(nil, PerMinute("open", 1)), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/closed", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/open", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
