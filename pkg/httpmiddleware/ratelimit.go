package httpmiddleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests a key may make per window.
	Max int
	// Window is the length of the sliding window.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request. Nil means the peer
	// address from RemoteAddr; use ClientIP to honor trusted proxies.
	KeyFunc func(*http.Request) string
}

// counter approximates a sliding window with two fixed buckets: the count of
// the bucket in progress plus the previous bucket's count, weighted by how
// much of it still overlaps the window ending now.
type counter struct {
	prev  float64
	curr  float64
	start time.Time
}

// roll advances c so that now falls inside its current bucket.
func (c *counter) roll(now time.Time, size time.Duration) {
	switch age := now.Sub(c.start); {
	case age < size:
		return
	case age < 2*size:
		c.prev = c.curr
	default:
		c.prev = 0
	}
	c.curr = 0
	c.start = now.Truncate(size)
}

func (c *counter) estimate(now time.Time, size time.Duration) float64 {
	overlap := 1 - now.Sub(c.start).Seconds()/size.Seconds()
	return c.prev*math.Max(overlap, 0) + c.curr
}

type rateLimiter struct {
	max    int
	window time.Duration
	key    func(*http.Request) string

	mu      sync.Mutex
	entries map[string]*counter
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	key := cfg.KeyFunc
	if key == nil {
		key = remoteHost
	}
	return &rateLimiter{
		max:     cfg.Max,
		window:  cfg.Window,
		key:     key,
		entries: make(map[string]*counter),
	}
}

// allow records a request for key at now unless it would exceed the limit.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, allowed bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.entries[key]
	if !ok {
		c = &counter{start: now}
		rl.entries[key] = c
	}
	c.roll(now, rl.window)

	resetAt = c.start.Add(rl.window)
	used := c.estimate(now, rl.window)
	if used >= float64(rl.max) {
		return 0, resetAt, false
	}
	c.curr++
	return max(int(float64(rl.max)-used-1), 0), resetAt, true
}

// cleanup drops keys idle for two full windows.
func (rl *rateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, c := range rl.entries {
		if now.Sub(c.start) >= 2*rl.window {
			delete(rl.entries, key)
		}
	}
}

func (rl *rateLimiter) startCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(2 * rl.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.cleanup(now)
			}
		}
	}()
}

// RateLimit returns a middleware enforcing a per-key sliding window limit.
// Rejected requests get 429 with Retry-After; every response carries the
// X-RateLimit-* headers. Keys are never evicted, see RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newRateLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a goroutine, bound to ctx, that
// evicts idle keys.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	rl.startCleanup(ctx)
	return rl.middleware
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, resetAt, allowed := rl.allow(rl.key(r), time.Now())

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			wait := max(time.Until(resetAt), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
