package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	IPPerMinute      int
	IPBurst          int
	SessionPerMinute int
	SessionBurst     int
	// Now overrides the wall clock. Used by tests.
	Now func() time.Time
}

type RateLimiter struct {
	ipLimiter      *keyedLimiter
	sessionLimiter *keyedLimiter
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		ipLimiter:      newKeyedLimiter(cfg.IPPerMinute, cfg.IPBurst, now),
		sessionLimiter: newKeyedLimiter(cfg.SessionPerMinute, cfg.SessionBurst, now),
	}
}

// Middleware limits requests per client IP.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip != "" && !l.ipLimiter.allow(ip) {
			requestsLimited.Add(1)
			writeError(w, requestID(r), http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionMiddleware limits requests per {sessionID} route parameter.
func (l *RateLimiter) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		if sessionID != "" && !l.sessionLimiter.allow(sessionID) {
			requestsLimited.Add(1)
			writeError(w, requestID(r), http.StatusTooManyRequests, "rate_limited", "too many requests for session")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Prune forgets limiters not used since before cutoff.
func (l *RateLimiter) Prune(cutoff time.Time) int {
	return l.ipLimiter.prune(cutoff) + l.sessionLimiter.prune(cutoff)
}

type keyedLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	now     func() time.Time
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	limiter *rate.Limiter
	last    time.Time
}

func newKeyedLimiter(perMinute, burst int, now func() time.Time) *keyedLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &keyedLimiter{
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		now:     now,
		entries: make(map[string]*limiterEntry),
	}
}

func (l *keyedLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.last = now
	return entry.limiter.AllowN(now, 1)
}

func (l *keyedLimiter) prune(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, entry := range l.entries {
		if entry.last.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
