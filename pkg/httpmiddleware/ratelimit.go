package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per key per Window.
	Max    int
	Window time.Duration
	// KeyFunc extracts the rate limit key. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// window counts requests in the current and previous fixed windows; the
// effective count weights the previous window by its remaining overlap.
type window struct {
	prev, curr float64
	start      time.Time
}

// Limiter is a per-key sliding window counter.
type Limiter struct {
	max    float64
	window time.Duration

	mu   sync.Mutex
	keys map[string]*window
}

// NewLimiter allows max events per key per window.
func NewLimiter(max int, win time.Duration) *Limiter {
	return &Limiter{
		max:    float64(max),
		window: win,
		keys:   make(map[string]*window),
	}
}

// Allow records an event for key at now if it fits in the limit. It returns
// how many events remain and when the current window ends.
func (l *Limiter) Allow(key string, now time.Time) (ok bool, remaining int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.keys[key]
	if w == nil {
		w = &window{start: now.Truncate(l.window)}
		l.keys[key] = w
	}
	switch elapsed := now.Sub(w.start); {
	case elapsed >= 2*l.window:
		w.prev, w.curr = 0, 0
		w.start = now.Truncate(l.window)
	case elapsed >= l.window:
		w.prev, w.curr = w.curr, 0
		w.start = w.start.Add(l.window)
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(l.window)
	used := w.prev*math.Max(overlap, 0) + w.curr
	reset = w.start.Add(l.window)
	if used >= l.max {
		return false, 0, reset
	}
	w.curr++
	return true, int(math.Max(l.max-used-1, 0)), reset
}

// Sweep drops keys idle for two full windows.
func (l *Limiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, w := range l.keys {
		if now.Sub(w.start) >= 2*l.window {
			delete(l.keys, k)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// RateLimit rejects requests over the limit with 429 and the storefront's
// JSON failure body. Stale keys are swept every two windows until ctx is
// done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	l := NewLimiter(cfg.Max, cfg.Window)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.Sweep(now)
			}
		}
	}()

	limit := strconv.Itoa(cfg.Max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			ok, remaining, reset := l.Allow(keyFunc(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(math.Max(reset.Sub(now).Seconds(), 0)))))
				writeFailure(w, http.StatusTooManyRequests, "Too many attempts. Please wait a moment and try again.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys by the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
