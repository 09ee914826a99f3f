package repository

import (
	"context"
	"sync/atomic"
	"time"

	"beautycity/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

type failoverState struct {
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func (s *failoverState) markDown() {
	s.isDown.Store(true)
	s.lastCheck.Store(time.Now().UnixNano())
}

// usePrimary reports whether the primary should be tried: it is up, or it is
// down long enough that a recovery attempt is due.
func (s *failoverState) usePrimary() bool {
	if !s.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, s.lastCheck.Load())) > recoveryInterval
}

// FailoverLocker takes locks in Redis and falls back to the in-process
// locker while Redis is unreachable.
type FailoverLocker struct {
	primary  domain.Locker
	fallback domain.Locker
	logger   *zerolog.Logger
	state    failoverState
}

func NewFailoverLocker(primary, fallback domain.Locker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{primary: primary, fallback: fallback, logger: logger}
}

func (l *FailoverLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.state.usePrimary() {
		release, err := l.primary.Lock(ctx, key)
		if err == nil {
			if l.state.isDown.Swap(false) {
				l.logger.Info().Msg("Primary locker recovered")
			}
			return release, nil
		}
		if isContention(err) {
			return nil, err
		}
		l.logger.Error().Err(err).Str("key", key).Msg("Primary locker failed, falling back to memory")
		l.state.markDown()
	}

	return l.fallback.Lock(ctx, key)
}

func (l *FailoverLocker) IsDown() bool {
	return l.state.isDown.Load()
}

type FailoverRateLimiter struct {
	primary  domain.RateLimiter
	fallback domain.RateLimiter
	logger   *zerolog.Logger
	state    failoverState
}

func NewFailoverRateLimiter(primary, fallback domain.RateLimiter, logger *zerolog.Logger) *FailoverRateLimiter {
	return &FailoverRateLimiter{primary: primary, fallback: fallback, logger: logger}
}

func (r *FailoverRateLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.state.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.state.isDown.Store(false)
			return allowed, nil
		}
		r.logger.Error().Err(err).Msg("Primary rate limiter failed, falling back to memory")
		r.state.markDown()
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
