package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiter_ReferenceConfig(t *testing.T) {
	t.Parallel()

	mr, client := newTestRedis(t)
	clock := newFakeClock()
	l := NewRedisLimiter("cards", client, DefaultConfig(), zaptest.NewLogger(t), WithRedisClock(clock.Now))
	t.Cleanup(func() { _ = l.Close() })
	ctx := context.Background()

	res, err := l.Admit(ctx, "alice", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	tokens, err := mr.Get("request_rate_limiter.{cards:alice}.tokens")
	require.NoError(t, err)
	assert.Equal(t, "0", tokens)
	assert.Equal(t, 2*time.Second, mr.TTL("request_rate_limiter.{cards:alice}.tokens"))

	res, err = l.Admit(ctx, "alice", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)

	clock.Advance(time.Second)
	res, err = l.Admit(ctx, "alice", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedisLimiter_DenialWritesNothing(t *testing.T) {
	t.Parallel()

	mr, client := newTestRedis(t)
	clock := newFakeClock()
	l := NewRedisLimiter("deny", client, Config{Capacity: 2, RefillPerSecond: 1}, nil, WithRedisClock(clock.Now))
	t.Cleanup(func() { _ = l.Close() })
	ctx := context.Background()

	res, err := l.Admit(ctx, "k", 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
	assert.False(t, mr.Exists("request_rate_limiter.{deny:k}.tokens"))
	assert.False(t, mr.Exists("request_rate_limiter.{deny:k}.timestamp"))
}

func TestRedisLimiter_SharedBetweenInstances(t *testing.T) {
	t.Parallel()

	_, client := newTestRedis(t)
	clock := newFakeClock()
	a := NewRedisLimiter("shared", client, DefaultConfig(), nil, WithRedisClock(clock.Now))
	b := NewRedisLimiter("shared", client, DefaultConfig(), nil, WithRedisClock(clock.Now))
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	res, err := a.Admit(context.Background(), "alice", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = b.Admit(context.Background(), "alice", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestRedisLimiter_FallsBackToLocal(t *testing.T) {
	t.Parallel()

	mr, client := newTestRedis(t)
	clock := newFakeClock()
	l := NewRedisLimiter("fallback", client, DefaultConfig(), zaptest.NewLogger(t),
		WithRedisClock(clock.Now), WithRedisTimeout(50*time.Millisecond))
	t.Cleanup(func() { _ = l.Close() })

	mr.Close()

	res, err := l.Admit(context.Background(), "alice", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Admit(context.Background(), "alice", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestRedisLimiter_Reset(t *testing.T) {
	t.Parallel()

	mr, client := newTestRedis(t)
	clock := newFakeClock()
	l := NewRedisLimiter("reset", client, DefaultConfig(), nil, WithRedisClock(clock.Now))
	t.Cleanup(func() { _ = l.Close() })
	ctx := context.Background()

	_, err := l.Admit(ctx, "k", 1)
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, "k"))
	assert.False(t, mr.Exists("request_rate_limiter.{reset:k}.tokens"))

	res, err := l.Admit(ctx, "k", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
