package httpmiddleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// hit sends a request from remote through h, applying optional header edits.
func hit(h http.Handler, remote string, edit ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", nil)
	req.RemoteAddr = remote
	for _, fn := range edit {
		fn(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) (code int, message string) {
	t.Helper()
	d := jx.DecodeBytes(w.Body.Bytes())
	require.NoError(t, d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			v, err := d.Int()
			code = v
			return err
		case "message":
			v, err := d.Str()
			message = v
			return err
		default:
			return d.Skip()
		}
	}))
	return code, message
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := hit(h, "192.168.1.1:12345")
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:9999").Code)
	}

	w := hit(h, "10.0.0.1:9999")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	code, msg := decodeErrorBody(t, w)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", msg)
}

func TestRateLimit_Keys(t *testing.T) {
	forwarded := func(ip string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("X-Forwarded-For", ip+", 70.41.3.18") }
	}

	t.Run("PerRemoteAddr", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1234").Code)
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1234").Code)
		assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:5678").Code)
	})
	t.Run("ForwardedHeadersIgnoredByDefault", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
		assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:4444", forwarded("203.0.113.50")).Code)
		for i := range 5 {
			w := hit(h, "192.168.1.1:4444", forwarded(fmt.Sprintf("203.0.113.%d", 60+i)), func(r *http.Request) {
				r.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i))
			})
			assert.Equal(t, http.StatusTooManyRequests, w.Code, "spoofed request %d", i)
		}
	})
	t.Run("TrustedProxy", func(t *testing.T) {
		trusted, err := ParseTrustedProxies([]string{"192.168.1.0/24"})
		require.NoError(t, err)
		h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: ClientIP(trusted)})(okHandler())
		chain := func(v string) func(*http.Request) {
			return func(r *http.Request) { r.Header.Set("X-Forwarded-For", v) }
		}
		assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:4444", chain("203.0.113.50")).Code)
		assert.Equal(t, http.StatusOK, hit(h, "192.168.1.2:5555", chain("203.0.113.51")).Code)
		// A client-supplied prefix does not change the key: the rightmost
		// untrusted hop is still 203.0.113.50.
		assert.Equal(t, http.StatusTooManyRequests, hit(h, "192.168.1.2:5555", chain("1.2.3.4, 203.0.113.50")).Code)
	})
	t.Run("CustomKeyFunc", func(t *testing.T) {
		h := RateLimit(RateLimitConfig{
			Max:    1,
			Window: time.Minute,
			KeyFunc: func(r *http.Request) string {
				return r.Header.Get("X-Session")
			},
		})(okHandler())
		session := func(id string) func(*http.Request) {
			return func(r *http.Request) { r.Header.Set("X-Session", id) }
		}
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", session("a")).Code)
		assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.2:1", session("a")).Code)
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", session("b")).Code)
	})
}

func TestRateLimit_SlidingWindow(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_, _, ok := rl.allow("k", start)
	require.True(t, ok)
	_, _, ok = rl.allow("k", start.Add(time.Second))
	require.True(t, ok)
	_, _, ok = rl.allow("k", start.Add(2*time.Second))
	assert.False(t, ok)

	// Just after the window rolls over the previous count still weighs in.
	_, _, ok = rl.allow("k", start.Add(61*time.Second))
	assert.True(t, ok)
	_, _, ok = rl.allow("k", start.Add(62*time.Second))
	assert.False(t, ok)

	// Two windows later the key is fresh again.
	remaining, _, ok := rl.allow("k", start.Add(3*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)
}

func TestRateLimit_Cleanup(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Now()

	rl.allow("stale", now.Add(-5*time.Minute))
	rl.allow("fresh", now)
	rl.cleanup(now)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.entries, "stale")
	assert.Contains(t, rl.entries, "fresh")
}
