package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// rateLimitTimes is the number of requests allowed per client and
	// route within rateLimitWindow.
	rateLimitTimes  = 5
	rateLimitWindow = 1 * time.Minute
	// rateLimitExpiry is how long after a client's last request before
	// its window record is garbage-collected.
	rateLimitExpiry = 1 * time.Hour
)

// fixedWindowLimiter throttles requests per key with a fixed window.
// Every request counts, success or failure, because the guarded
// endpoints (login, refresh, record listing) are expensive regardless
// of outcome.
type fixedWindowLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	limit   int
	window  time.Duration
	windows map[string]*windowRecord
}

type windowRecord struct {
	count int
	start time.Time
}

func newFixedWindowLimiter(limit int, window time.Duration) *fixedWindowLimiter {
	return &fixedWindowLimiter{
		now:     time.Now,
		limit:   limit,
		window:  window,
		windows: make(map[string]*windowRecord),
	}
}

// allow records one request for key and reports whether it may proceed.
// A blocked request gets the time until the window resets.
func (rl *fixedWindowLimiter) allow(key string) (ok bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rec, found := rl.windows[key]
	if !found || now.Sub(rec.start) >= rl.window {
		rl.windows[key] = &windowRecord{count: 1, start: now}
		return true, 0
	}
	if rec.count >= rl.limit {
		return false, rec.start.Add(rl.window).Sub(now)
	}
	rec.count++
	return true, 0
}

// sweep removes records whose window ended long ago.
func (rl *fixedWindowLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rateLimitExpiry)
	for key, rec := range rl.windows {
		if rec.start.Before(cutoff) {
			delete(rl.windows, key)
		}
	}
}

// RateLimit throttles the wrapped handler per client IP and route.
func (a *API) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r) + " " + r.URL.Path
		if ok, retryAfter := a.limiter.allow(key); !ok {
			writeRateLimited(w, retryAfter)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeRateLimited sends 429 with a Retry-After hint. Throttling is a
// transport-level rejection like 401, not a business envelope.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSON(w, http.StatusTooManyRequests, R{Code: codeTooManyRequests, Message: "too many requests"})
}

// clientIP returns the peer address without the port. Proxy headers are
// not consulted; this service terminates TLS itself.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
