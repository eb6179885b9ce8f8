package httpapi

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRateLimiterByIP(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 60, IPBurst: 2, Now: clock.Now})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = ip + ":5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := call("10.0.0.1"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := call("10.0.0.1"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := call("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := call("10.0.0.2"); code != http.StatusOK {
		t.Fatalf("expected other ip to pass, got %d", code)
	}

	clock.Advance(time.Second)
	if code := call("10.0.0.1"); code != http.StatusOK {
		t.Fatalf("expected refill after a second, got %d", code)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if ip := clientIP(req); ip != "203.0.113.9" {
		t.Fatalf("unexpected ip %s", ip)
	}
}

func TestRateLimiterPrune(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(RateLimitConfig{Now: clock.Now})
	limiter.ipLimiter.allow("10.0.0.1")
	limiter.sessionLimiter.allow("session-1")

	clock.Advance(10 * time.Minute)
	limiter.ipLimiter.allow("10.0.0.2")

	if removed := limiter.Prune(clock.Now().Add(-5 * time.Minute)); removed != 2 {
		t.Fatalf("expected 2 pruned, got %d", removed)
	}
	if removed := limiter.Prune(clock.Now().Add(time.Minute)); removed != 1 {
		t.Fatalf("expected 1 pruned, got %d", removed)
	}
}
