// Rate limiter for the admin mutation endpoints. In-memory fixed window
// per client IP, pruned inline so no background goroutine is needed.
package api

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// pruneThreshold bounds the window map before stale entries are swept.
const pruneThreshold = 1024

// RateLimiter caps requests per client IP over a fixed window.
type RateLimiter struct {
	mu       sync.Mutex
	windows  map[string]*rateWindow
	limit    int           // max requests per window
	interval time.Duration // window length
}

type rateWindow struct {
	count   int
	started time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per interval.
func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		windows:  make(map[string]*rateWindow),
		limit:    limit,
		interval: interval,
	}
}

// Allow records one request for the client and reports whether it fits the
// current window, plus the seconds until the window resets when it does not.
func (rl *RateLimiter) Allow(ip string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if len(rl.windows) > pruneThreshold {
		rl.prune(now)
	}

	w, ok := rl.windows[ip]
	if !ok || now.Sub(w.started) >= rl.interval {
		rl.windows[ip] = &rateWindow{count: 1, started: now}
		return true, 0
	}
	if w.count < rl.limit {
		w.count++
		return true, 0
	}
	return false, int((rl.interval - now.Sub(w.started)).Seconds()) + 1
}

// prune drops windows that lapsed long enough ago to be irrelevant.
// Caller holds the lock.
func (rl *RateLimiter) prune(now time.Time) {
	for ip, w := range rl.windows {
		if now.Sub(w.started) > 2*rl.interval {
			delete(rl.windows, ip)
		}
	}
}

// Middleware wraps a handler with rate limiting. Returns 429 when exceeded.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retry := rl.Allow(clientIP(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop when comma-separated.
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return xff
	}
	ip := r.RemoteAddr
	if i := strings.LastIndexByte(ip, ':'); i >= 0 {
		ip = ip[:i]
	}
	return ip
}
