package server

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jalaprana/site/internal/httputil"
)

const msgTooManyRequests = "Trop de demandes, veuillez réessayer dans quelques instants"

// RateLimiter throttles form submissions per client IP. Each IP gets a
// token bucket of limit tokens refilled evenly over window.
type RateLimiter struct {
	limit    int
	window   time.Duration
	interval time.Duration // time to earn back one token

	mu      sync.Mutex
	buckets map[string]*bucket

	done      chan struct{}
	sweepOnce sync.Once
	stopOnce  sync.Once
	sweeping  bool // guarded by mu
}

type bucket struct {
	*rate.Limiter
	touched time.Time
}

// NewRateLimiter allows limit requests per window for each IP. Idle buckets
// are swept by a goroutine started on the first Allow and ended by Stop.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		window:   window,
		interval: window / time.Duration(limit),
		buckets:  map[string]*bucket{},
		done:     make(chan struct{}),
	}
}

// Stop ends the sweep goroutine. It is safe to call more than once, and a
// limiter stopped before its first Allow never starts one.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) startSweep() {
	select {
	case <-rl.done:
		return
	default:
	}
	rl.mu.Lock()
	rl.sweeping = true
	rl.mu.Unlock()
	go rl.sweepLoop()
}

// Allow takes a token from ip's bucket. remaining counts whole tokens left.
// When allowed, resetTime is when the bucket will be full again; otherwise it
// is when the next token arrives.
func (rl *RateLimiter) Allow(ip string) (allowed bool, remaining int, resetTime time.Time) {
	rl.sweepOnce.Do(rl.startSweep)
	now := time.Now()

	rl.mu.Lock()
	b := rl.buckets[ip]
	if b == nil {
		b = &bucket{Limiter: rate.NewLimiter(rate.Every(rl.interval), rl.limit)}
		rl.buckets[ip] = b
	}
	b.touched = now
	allowed = b.AllowN(now, 1)
	tokens := math.Max(b.TokensAt(now), 0)
	rl.mu.Unlock()

	missing := float64(rl.limit) - tokens
	if !allowed {
		missing = 1 - tokens
	}
	resetTime = now.Add(time.Duration(missing * float64(rl.interval)))
	if !allowed {
		return false, 0, resetTime
	}
	return true, int(tokens), resetTime
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header. The X-RateLimit-* headers are set on every response.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, reset := rl.Allow(httputil.ClientIP(r))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if allowed {
			next.ServeHTTP(w, r)
			return
		}
		h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(reset)))
		httputil.WriteError(w, http.StatusTooManyRequests, msgTooManyRequests)
	})
}

// retryAfterSeconds rounds the wait up to whole seconds, at least one.
func retryAfterSeconds(reset time.Time) int {
	return max(int(math.Ceil(time.Until(reset).Seconds())), 1)
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			rl.sweep(now)
		case <-rl.done:
			return
		}
	}
}

// sweep forgets buckets untouched for a full window. Such a bucket has
// refilled, so dropping it changes nothing for its IP.
func (rl *RateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-rl.window)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, b := range rl.buckets {
		if b.touched.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

func (rl *RateLimiter) sweepStarted() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.sweeping
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}
