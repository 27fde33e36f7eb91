package api

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type limiterClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *limiterClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *limiterClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(limit int, window time.Duration) (*fixedWindowLimiter, *limiterClock) {
	clk := &limiterClock{t: time.Unix(1700000000, 0)}
	rl := newFixedWindowLimiter(limit, window)
	rl.now = clk.Now
	return rl, clk
}

func TestFixedWindowLimiter_AllowsUpToLimit(t *testing.T) {
	rl, _ := newTestLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		ok, _ := rl.allow("k")
		assert.True(t, ok, "request %d should pass", i+1)
	}
	ok, retryAfter := rl.allow("k")
	require.False(t, ok, "sixth request should be blocked")
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, time.Minute)
}

func TestFixedWindowLimiter_WindowResets(t *testing.T) {
	rl, clk := newTestLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		rl.allow("k")
	}
	ok, _ := rl.allow("k")
	require.False(t, ok)

	clk.Advance(time.Minute)
	ok, _ = rl.allow("k")
	assert.True(t, ok, "fresh window should admit again")
}

func TestFixedWindowLimiter_KeysAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter(2, time.Minute)

	rl.allow("a")
	rl.allow("a")
	ok, _ := rl.allow("a")
	require.False(t, ok)

	ok, _ = rl.allow("b")
	assert.True(t, ok, "another key has its own window")
}

func TestFixedWindowLimiter_Sweep(t *testing.T) {
	rl, clk := newTestLimiter(5, time.Minute)

	rl.allow("stale")
	clk.Advance(rateLimitExpiry + time.Minute)
	rl.allow("fresh")
	rl.sweep()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.windows, "stale")
	assert.Contains(t, rl.windows, "fresh")
}

func TestWriteRateLimited(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRateLimited(rec, 90*time.Second)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
}

func TestWriteRateLimited_MinimumOneSecond(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRateLimited(rec, 200*time.Millisecond)

	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:4567"
	assert.Equal(t, "10.1.2.3", clientIP(r))

	r.RemoteAddr = "[::1]:4567"
	assert.Equal(t, "::1", clientIP(r))

	// Forwarding headers are never trusted.
	r.Header.Set("X-Forwarded-For", "198.51.100.9")
	assert.Equal(t, "::1", clientIP(r))
}
