package server

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/jalaprana/site/internal/testutil"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	defer rl.Stop()

	for i, want := range []int{2, 1, 0} {
		allowed, remaining, _ := rl.Allow("1.2.3.4")
		testutil.True(t, allowed, "request %d should be allowed", i+1)
		testutil.Equal(t, want, remaining)
	}

	allowed, remaining, reset := rl.Allow("1.2.3.4")
	testutil.False(t, allowed, "4th request should be denied")
	testutil.Equal(t, 0, remaining)
	testutil.True(t, reset.After(time.Now()), "reset should be in the future")
}

func TestRateLimiterSeparateIPs(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	allowed, _, _ := rl.Allow("1.1.1.1")
	testutil.True(t, allowed, "first IP should be allowed")
	allowed, _, _ = rl.Allow("2.2.2.2")
	testutil.True(t, allowed, "second IP has its own bucket")
	allowed, _, _ = rl.Allow("1.1.1.1")
	testutil.False(t, allowed, "first IP is exhausted")
}

func TestRateLimiterRefillsAfterWindow(t *testing.T) {
	rl := NewRateLimiter(2, 20*time.Millisecond)
	defer rl.Stop()

	rl.Allow("1.2.3.4")
	rl.Allow("1.2.3.4")
	allowed, _, _ := rl.Allow("1.2.3.4")
	testutil.False(t, allowed, "should be denied within window")

	time.Sleep(50 * time.Millisecond)

	allowed, _, _ = rl.Allow("1.2.3.4")
	testutil.True(t, allowed, "should be allowed after window")
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
	req.RemoteAddr = "198.51.100.9:1234"

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	testutil.StatusCode(t, http.StatusOK, w.Code)
	testutil.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	testutil.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	testutil.NotEqual(t, "", w.Header().Get("X-RateLimit-Reset"))
	testutil.Equal(t, "", w.Header().Get("Retry-After"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	testutil.StatusCode(t, http.StatusTooManyRequests, w.Code)
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	testutil.NoError(t, err)
	testutil.True(t, retryAfter >= 1, "Retry-After should be at least 1, got %d", retryAfter)
	testutil.Contains(t, w.Body.String(), msgTooManyRequests)
}

func TestRateLimiterCleanupDropsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)
	defer rl.Stop()

	rl.Allow("1.2.3.4")
	rl.Allow("5.6.7.8")
	testutil.Equal(t, 2, rl.size())

	deadline := time.Now().Add(time.Second)
	for rl.size() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	testutil.Equal(t, 0, rl.size())
}

func TestRateLimiterStopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	rl.Stop()
	rl.Stop()
}

func TestRateLimiterSweepStartsOnFirstAllow(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()
	testutil.False(t, rl.sweepStarted())

	rl.Allow("1.2.3.4")
	testutil.True(t, rl.sweepStarted())
}

func TestRateLimiterStoppedBeforeUseNeverSweeps(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	rl.Stop()

	allowed, _, _ := rl.Allow("1.2.3.4")
	testutil.True(t, allowed)
	testutil.False(t, rl.sweepStarted())
}

func TestRateLimiterSweepKeepsRecentVisitors(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	defer rl.Stop()

	rl.Allow("1.2.3.4")
	rl.sweep(time.Now())
	testutil.Equal(t, 1, rl.size())

	rl.sweep(time.Now().Add(2 * time.Hour))
	testutil.Equal(t, 0, rl.size())
}

func TestRetryAfterSeconds(t *testing.T) {
	testutil.Equal(t, 1, retryAfterSeconds(time.Now().Add(-time.Second)))
	testutil.Equal(t, 1, retryAfterSeconds(time.Now().Add(200*time.Millisecond)))
	got := retryAfterSeconds(time.Now().Add(90 * time.Second))
	testutil.True(t, got == 90 || got == 91, "got %d", got)
}
