package repository

import (
	"context"
	"testing"
	"time"

	"beautycity/internal/config"
	"beautycity/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	t.Cleanup(func() { _ = Close(client) })
	return s, client
}

func TestRedisLocker(t *testing.T) {
	s, client := newMiniredis(t)
	locker := NewRedisLocker(client, 5*time.Second, 50*time.Millisecond)
	ctx := context.Background()

	t.Run("AcquireAndRelease", func(t *testing.T) {
		release, err := locker.Lock(ctx, "admit:1:7")
		require.NoError(t, err)
		assert.True(t, s.Exists("lock:admit:1:7"))

		release()
		assert.False(t, s.Exists("lock:admit:1:7"))
	})

	t.Run("HeldKeyTimesOut", func(t *testing.T) {
		release, err := locker.Lock(ctx, "admit:1:8")
		require.NoError(t, err)
		defer release()

		_, err = locker.Lock(ctx, "admit:1:8")
		assert.ErrorIs(t, err, domain.ErrLockNotAcquired)
	})

	t.Run("DisjointKeysIndependent", func(t *testing.T) {
		r1, err := locker.Lock(ctx, "admit:1:9")
		require.NoError(t, err)
		defer r1()
		r2, err := locker.Lock(ctx, "admit:2:9")
		require.NoError(t, err)
		defer r2()
	})

	t.Run("ExpiredLockIsNotReleasedByOldOwner", func(t *testing.T) {
		release, err := locker.Lock(ctx, "admit:3:1")
		require.NoError(t, err)

		s.FastForward(10 * time.Second)
		assert.False(t, s.Exists("lock:admit:3:1"))

		other, err := locker.Lock(ctx, "admit:3:1")
		require.NoError(t, err)

		release()
		assert.True(t, s.Exists("lock:admit:3:1"), "stale release must not drop the new owner's lock")
		other()
	})

	t.Run("WaitsForRelease", func(t *testing.T) {
		patient := NewRedisLocker(client, 5*time.Second, time.Second)
		release, err := patient.Lock(ctx, "admit:4:1")
		require.NoError(t, err)

		go func() {
			time.Sleep(60 * time.Millisecond)
			release()
		}()

		second, err := patient.Lock(ctx, "admit:4:1")
		require.NoError(t, err)
		second()
	})

	t.Run("NilClient", func(t *testing.T) {
		_, err := NewRedisLocker(nil, time.Second, time.Second).Lock(ctx, "x")
		assert.Error(t, err)
	})
}

func TestRedisLocker_ServerDown(t *testing.T) {
	s, client := newMiniredis(t)
	s.Close()

	_, err := NewRedisLocker(client, time.Second, time.Second).Lock(context.Background(), "admit:1:1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrLockNotAcquired)
	assert.False(t, isContention(err))
}

func TestRedisRateLimiter(t *testing.T) {
	s, client := newMiniredis(t)
	limiter := NewRedisRateLimiter(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.CheckRateLimit(ctx, "phone:+79990000000", 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.CheckRateLimit(ctx, "phone:+79990000000", 3, time.Hour)
	require.NoError(t, err)
	assert.False(t, allowed)

	s.FastForward(2 * time.Hour)
	allowed, err = limiter.CheckRateLimit(ctx, "phone:+79990000000", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestPing(t *testing.T) {
	s, client := newMiniredis(t)
	assert.NoError(t, Ping(context.Background(), client))

	s.Close()
	assert.Error(t, Ping(context.Background(), client))
	assert.NoError(t, Close(nil))
}
