// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package httpapi

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mentorhub/mentorhub/internal/observability"
)

// Rate limiter defaults.
const (
	// DefaultCleanupInterval is how often idle clients are dropped.
	DefaultCleanupInterval = 5 * time.Minute

	// MinRefillRate keeps a misconfigured window from starving clients
	// forever (tokens per second).
	MinRefillRate = 1.0 / 3600
)

// RateLimiterConfig configures the per-client limiter.
type RateLimiterConfig struct {
	// Burst is the number of requests a client may make at once.
	Burst int

	// Window is the time it takes to refill a drained bucket.
	Window time.Duration

	// CleanupInterval defaults to DefaultCleanupInterval.
	CleanupInterval time.Duration

	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
}

// clientBucket is one client's token bucket.
type clientBucket struct {
	tokens    float64
	lastCheck time.Time
}

// RateLimiter limits requests per client address with a token bucket. It is
// safe for concurrent use. A background goroutine drops idle clients; call
// Close to stop it.
type RateLimiter struct {
	mu         sync.Mutex
	clients    map[string]*clientBucket
	burst      int
	refillRate float64 // tokens per second
	maxIdle    time.Duration
	trustProxy bool
	metrics    *observability.Metrics
	now        func() time.Time

	stopChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewRateLimiter creates a limiter and starts its cleanup goroutine.
// metrics may be nil.
func NewRateLimiter(cfg RateLimiterConfig, metrics *observability.Metrics) *RateLimiter {
	burst := max(cfg.Burst, 1)

	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	rate := max(float64(burst)/window.Seconds(), MinRefillRate)

	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	rl := &RateLimiter{
		clients:    make(map[string]*clientBucket),
		burst:      burst,
		refillRate: rate,
		// A client idle for a full window is back at a full bucket, so
		// forgetting it changes nothing.
		maxIdle:    window,
		trustProxy: cfg.TrustProxy,
		metrics:    metrics,
		now:        time.Now,
		stopChan:   make(chan struct{}),
	}

	rl.wg.Add(1)
	go rl.cleanupLoop(interval)

	return rl
}

// Allow consumes a token for client. When the bucket is empty it returns
// false and the wait until the next token.
func (rl *RateLimiter) Allow(client string) (allowed bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	bucket, exists := rl.clients[client]
	if !exists {
		bucket = &clientBucket{tokens: float64(rl.burst), lastCheck: now}
		rl.clients[client] = bucket
		rl.metrics.SetRateLimiterClients(len(rl.clients))
	}

	elapsed := now.Sub(bucket.lastCheck).Seconds()
	bucket.tokens = math.Min(bucket.tokens+elapsed*rl.refillRate, float64(rl.burst))
	bucket.lastCheck = now

	if bucket.tokens >= 1.0 {
		bucket.tokens--
		return true, 0
	}

	deficit := 1.0 - bucket.tokens
	return false, time.Duration(deficit / rl.refillRate * float64(time.Second))
}

// ClientCount returns the number of tracked clients.
func (rl *RateLimiter) ClientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Cleanup drops clients not seen within maxAge.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	threshold := rl.now().Add(-maxAge)
	for client, bucket := range rl.clients {
		if bucket.lastCheck.Before(threshold) {
			delete(rl.clients, client)
		}
	}
	rl.metrics.SetRateLimiterClients(len(rl.clients))
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	defer rl.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.Cleanup(rl.maxIdle)
		}
	}
}

// Close stops the cleanup goroutine and waits for it to exit. It is safe to
// call more than once.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.stopChan) })
	rl.wg.Wait()
}

// Middleware answers 429 with Retry-After once a client's bucket is empty.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, wait := rl.Allow(rl.clientAddr(r))
		if !allowed {
			secs := int(math.Ceil(wait.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			writeFail(w, http.StatusTooManyRequests, msgTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientAddr is the first X-Forwarded-For hop behind a trusted proxy,
// otherwise the peer IP.
func (rl *RateLimiter) clientAddr(r *http.Request) string {
	if rl.trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
