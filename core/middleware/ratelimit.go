package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/relabs-tech/pmpgw/core/config"
)

// tokenBucket is a simple single-bucket limiter shared across all callers
// (the gateway has no notion of per-client identity ahead of routing).
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

func newTokenBucket(cfg *config.RateLimitConfig) *tokenBucket {
	capacity := float64(cfg.BurstSize)
	if capacity <= 0 {
		capacity = cfg.RequestsPerSecond
	}
	return &tokenBucket{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: cfg.RequestsPerSecond,
		last:       time.Now(),
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(b.last).Seconds()
	b.last = now
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RateLimit rejects requests once the shared token bucket configured by cfg
// is exhausted. A nil cfg disables limiting.
func RateLimit(cfg *config.RateLimitConfig, next http.Handler) http.Handler {
	if cfg == nil || cfg.RequestsPerSecond <= 0 {
		return next
	}
	bucket := newTokenBucket(cfg)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !bucket.allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
