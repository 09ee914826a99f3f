package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"beautycity/internal/domain"
)

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker is an in-process keyed mutex. Entries are dropped once no
// goroutine holds or waits for the key.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
	wait  time.Duration
}

func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*lockEntry), wait: wait}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	var timeout <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				l.unref(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	case <-timeout:
		l.unref(key, e)
		return nil, fmt.Errorf("%s: %w", key, domain.ErrLockNotAcquired)
	}
}

func (l *MemoryLocker) unref(key string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// rateLimitSweepEvery bounds how often expired windows are dropped.
const rateLimitSweepEvery = time.Minute

// MemoryRateLimiter keeps one fixed window per key. Keys are client phones and
// addresses, so expired windows are swept.
type MemoryRateLimiter struct {
	mu        sync.Mutex
	entries   map[string]*rateLimitEntry
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{entries: make(map[string]*rateLimitEntry), now: time.Now}
}

func (r *MemoryRateLimiter) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) >= rateLimitSweepEvery {
		r.sweep(now)
	}

	entry, ok := r.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.entries[key] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}

func (r *MemoryRateLimiter) sweep(now time.Time) {
	for key, e := range r.entries {
		if now.After(e.expiresAt) {
			delete(r.entries, key)
		}
	}
	r.lastSweep = now
}
