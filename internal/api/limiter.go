package api

import (
	"sync"
	"time"

	"beautycity/internal/config"

	"golang.org/x/time/rate"
)

const (
	defaultBurst     = 5
	limiterIdleAfter = 10 * time.Minute
)

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// rateLimiter hands out one token bucket per client key. Shared by HTTP and gRPC.
// Clients without an API key are keyed by address, so idle buckets are swept.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiter(cfg *config.APIConfig) *rateLimiter {
	burst := cfg.RateLimit.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &rateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(cfg.RateLimit.RPS),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *rateLimiter) enabled() bool {
	return l.limit > 0
}

func (l *rateLimiter) allow(key string) bool {
	if !l.enabled() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= limiterIdleAfter {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

func (l *rateLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= limiterIdleAfter {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}
