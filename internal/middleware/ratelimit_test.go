package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (m *memCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

func newApp(counter Counter, limit int) *fiber.App {
	rl := NewRateLimiter(counter, "peteat", limit, time.Minute, zap.NewNop())
	app := fiber.New()
	app.Use(Metrics())
	app.Use(rl.MiddlewareByKey(func(c *fiber.Ctx) string { return c.Get("X-Client") }))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app
}

func get(t *testing.T, app *fiber.App, client string) int {
	t.Helper()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Client", client)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRateLimiter_PerKey(t *testing.T) {
	counter := &memCounter{counts: map[string]int64{}}
	app := newApp(counter, 2)

	assert.Equal(t, fiber.StatusOK, get(t, app, "a"))
	assert.Equal(t, fiber.StatusOK, get(t, app, "a"))
	assert.Equal(t, fiber.StatusTooManyRequests, get(t, app, "a"))
	assert.Equal(t, fiber.StatusOK, get(t, app, "b"))
	assert.EqualValues(t, 3, counter.counts["peteat:ratelimit:a"])
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	app := newApp(&memCounter{err: errors.New("redis down")}, 1)
	for i := 0; i < 3; i++ {
		assert.Equal(t, fiber.StatusOK, get(t, app, "a"))
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	counter := &memCounter{counts: map[string]int64{}}
	app := newApp(counter, 0)
	assert.Equal(t, fiber.StatusOK, get(t, app, "a"))
	assert.Empty(t, counter.counts)
}
