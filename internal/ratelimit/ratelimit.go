package ratelimit

import (
	"net/http"
	"sync"
	"time"
)

// Limiter is an in-memory fixed-window request limiter keyed by client. It
// guards the dashboard refresh endpoint: one refresh fans out into several
// concurrent aggregate queries, so a misbehaving client can load the store
// disproportionately.
type Limiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	window   time.Duration
	max      int
}

type counter struct {
	count     int
	expiresAt time.Time
}

func NewLimiter(window time.Duration, max int) *Limiter {
	l := &Limiter{
		counters: make(map[string]*counter),
		window:   window,
		max:      max,
	}
	go l.cleanup()
	return l
}

// Allow reports whether a request under key fits the current window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, ok := l.counters[key]
	if !ok || now.After(c.expiresAt) {
		l.counters[key] = &counter{count: 1, expiresAt: now.Add(l.window)}
		return true
	}
	if c.count >= l.max {
		return false
	}
	c.count++
	return true
}

// Remaining reports how many requests key has left in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok || time.Now().After(c.expiresAt) {
		return l.max
	}
	if rem := l.max - c.count; rem > 0 {
		return rem
	}
	return 0
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		now := time.Now()
		for key, c := range l.counters {
			if now.After(c.expiresAt) {
				delete(l.counters, key)
			}
		}
		l.mu.Unlock()
	}
}

// Middleware rejects over-limit requests with 429, keyed by the client
// address resolved by the router's RealIP middleware.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(r.RemoteAddr) {
				w.Header().Set("Retry-After", l.window.String())
				http.Error(w, "too many refresh requests, please slow down", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
