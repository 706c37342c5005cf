package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var _ Limiter = (*RedisLimiter)(nil)

// DefaultRedisPrefix is the key prefix shared by all Redis buckets.
const DefaultRedisPrefix = "request_rate_limiter"

// tokenBucketScript refills and debits one bucket atomically. The bucket
// is stored as two keys holding the token count and the last refill time
// in milliseconds; both expire after twice the fill time. Nothing is
// written when the request is denied.
//
// Returns: [allowed (0/1), tokens left as a string]
var tokenBucketScript = redis.NewScript(`
local tokens_key = KEYS[1]
local timestamp_key = KEYS[2]

local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local fill_time = capacity / rate
local ttl = math.floor(fill_time * 2)
if ttl < 1 then
  ttl = 1
end

local last_tokens = tonumber(redis.call('GET', tokens_key))
if last_tokens == nil then
  last_tokens = capacity
end

local last_refreshed = tonumber(redis.call('GET', timestamp_key))
if last_refreshed == nil then
  last_refreshed = now
end

local delta = math.max(0, now - last_refreshed)
local filled = math.min(capacity, last_tokens + (delta / 1000) * rate)

if filled < requested then
  return {0, tostring(filled)}
end

local left = filled - requested
redis.call('SETEX', tokens_key, ttl, left)
redis.call('SETEX', timestamp_key, ttl, now)
return {1, tostring(left)}
`)

// RedisLimiter keeps token buckets in Redis so that every gateway
// instance shares them. Redis calls go through a breaker; while Redis is
// failing, decisions are made by a local in-memory limiter with the same
// parameters.
type RedisLimiter struct {
	name     string
	config   Config
	client   redis.UniversalClient
	prefix   string
	breaker  *gobreaker.CircuitBreaker
	fallback *TokenBucketLimiter
	logger   *zap.Logger
	now      func() time.Time
	timeout  time.Duration
}

// RedisOption configures a RedisLimiter.
type RedisOption func(*RedisLimiter)

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(l *RedisLimiter) {
		l.prefix = prefix
	}
}

// WithRedisClock replaces the time source used for refill computations.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(l *RedisLimiter) {
		l.now = now
	}
}

// WithRedisTimeout bounds every Redis round trip.
func WithRedisTimeout(d time.Duration) RedisOption {
	return func(l *RedisLimiter) {
		l.timeout = d
	}
}

// WithLocalFallback replaces the in-memory limiter used while Redis fails.
func WithLocalFallback(fallback *TokenBucketLimiter) RedisOption {
	return func(l *RedisLimiter) {
		l.fallback = fallback
	}
}

// NewRedisLimiter creates a Redis-backed limiter. The client is shared and
// is not closed by the limiter.
func NewRedisLimiter(name string, client redis.UniversalClient, cfg Config, logger *zap.Logger, opts ...RedisOption) *RedisLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Validate()

	l := &RedisLimiter{
		name:    name,
		config:  cfg,
		client:  client,
		prefix:  DefaultRedisPrefix,
		logger:  logger,
		now:     time.Now,
		timeout: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.fallback == nil {
		l.fallback = NewTokenBucketLimiter(name, cfg, logger, WithClock(l.now))
	}

	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-ratelimit-" + name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(breaker string, from, to gobreaker.State) {
			logger.Warn("redis rate limiter breaker state change",
				zap.String("name", breaker),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			redisHealthy.WithLabelValues(name).Set(boolToFloat(to == gobreaker.StateClosed))
		},
	})
	redisHealthy.WithLabelValues(name).Set(1)

	return l
}

// Config implements Limiter.
func (l *RedisLimiter) Config() Config {
	return l.config
}

// Admit implements Limiter.
func (l *RedisLimiter) Admit(ctx context.Context, key string, cost int) (*Result, error) {
	start := time.Now()

	out, err := l.breaker.Execute(func() (interface{}, error) {
		return l.admitRedis(ctx, key, cost)
	})
	redisDuration.WithLabelValues(l.name).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		l.logger.Debug("using local rate limiter",
			zap.String("limiter", l.name),
			zap.String("key", key),
			zap.Error(err),
		)
		redisFallbackTotal.WithLabelValues(l.name).Inc()
		return l.fallback.Admit(ctx, key, cost)
	}

	res := out.(*Result)
	RecordDecision(l.name, res.Allowed)
	return res, nil
}

func (l *RedisLimiter) admitRedis(ctx context.Context, key string, cost int) (*Result, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	tokensKey, timestampKey := l.keys(key)
	raw, err := tokenBucketScript.Run(ctx, l.client,
		[]string{tokensKey, timestampKey},
		l.config.RefillPerSecond,
		l.config.Capacity,
		l.now().UnixMilli(),
		cost,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("token bucket script: %w", err)
	}

	return l.parseScriptResult(raw, cost)
}

// parseScriptResult parses [allowed, tokens] from the script.
func (l *RedisLimiter) parseScriptResult(raw interface{}, cost int) (*Result, error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return nil, fmt.Errorf("unexpected script result format: %v", raw)
	}

	allowed, ok := values[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected allowed flag: %v", values[0])
	}
	left, ok := values[1].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected token count: %v", values[1])
	}
	tokens, err := strconv.ParseFloat(left, 64)
	if err != nil {
		return nil, fmt.Errorf("parse token count: %w", err)
	}

	return newResult(l.config, allowed == 1, tokens, cost), nil
}

func (l *RedisLimiter) keys(key string) (tokens, timestamp string) {
	base := l.prefix + ".{" + l.name + ":" + key + "}"
	return base + ".tokens", base + ".timestamp"
}

// Reset deletes the stored bucket for key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	l.fallback.Reset(key)
	tokensKey, timestampKey := l.keys(key)
	return l.client.Del(ctx, tokensKey, timestampKey).Err()
}

// State returns the state of the breaker guarding Redis.
func (l *RedisLimiter) State() gobreaker.State {
	return l.breaker.State()
}

// Close stops the local fallback limiter.
func (l *RedisLimiter) Close() error {
	return l.fallback.Close()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
