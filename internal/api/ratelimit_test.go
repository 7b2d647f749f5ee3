package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		ok, _ := rl.Allow("10.0.0.1")
		assert.True(t, ok, "request %d should pass", i)
	}
	ok, retry := rl.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Greater(t, retry, 0)

	// Other clients have their own windows.
	ok, _ = rl.Allow("10.0.0.2")
	assert.True(t, ok)
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)

	ok, _ := rl.Allow("10.0.0.1")
	require.True(t, ok)
	ok, _ = rl.Allow("10.0.0.1")
	require.False(t, ok)

	time.Sleep(15 * time.Millisecond)
	ok, _ = rl.Allow("10.0.0.1")
	assert.True(t, ok)
}

func TestRateLimiterPrunesStaleWindows(t *testing.T) {
	rl := NewRateLimiter(1, time.Millisecond)
	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")

	time.Sleep(5 * time.Millisecond)
	rl.prune(time.Now())
	assert.Empty(t, rl.windows)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:4411"
	assert.Equal(t, "203.0.113.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.4, 203.0.113.7")
	assert.Equal(t, "198.51.100.4", clientIP(req))
}
