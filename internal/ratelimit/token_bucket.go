package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var _ Limiter = (*TokenBucketLimiter)(nil)

// Bucket eviction defaults.
const (
	DefaultBucketTTL       = 10 * time.Minute
	DefaultCleanupInterval = time.Minute
)

// TokenBucketLimiter keeps one token bucket per key in memory. Buckets are
// created full on first use and refilled lazily on each check.
// Call Close when done to stop the background cleanup goroutine.
type TokenBucketLimiter struct {
	name   string
	config Config
	logger *zap.Logger
	now    func() time.Time

	buckets sync.Map

	cleanupInterval time.Duration
	bucketTTL       time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

// bucket represents a token bucket for a single key. Once evicted is set
// the bucket is no longer in the map and must not be handed out.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64

	mu      sync.Mutex
	evicted bool
}

// TokenBucketOption configures a TokenBucketLimiter.
type TokenBucketOption func(*TokenBucketLimiter)

// WithClock replaces the time source.
func WithClock(now func() time.Time) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.now = now
	}
}

// WithEviction sets how often idle buckets are swept and how long a bucket
// may stay idle before it is dropped. A non-positive interval disables the
// cleanup goroutine.
func WithEviction(interval, ttl time.Duration) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.cleanupInterval = interval
		l.bucketTTL = ttl
	}
}

// NewTokenBucketLimiter creates an in-memory token bucket limiter.
func NewTokenBucketLimiter(name string, cfg Config, logger *zap.Logger, opts ...TokenBucketOption) *TokenBucketLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Validate()

	l := &TokenBucketLimiter{
		name:            name,
		config:          cfg,
		logger:          logger,
		now:             time.Now,
		cleanupInterval: DefaultCleanupInterval,
		bucketTTL:       DefaultBucketTTL,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.bucketTTL <= 0 {
		l.bucketTTL = DefaultBucketTTL
	}

	if l.cleanupInterval > 0 {
		go l.startCleanupLoop()
	}

	return l
}

// Config implements Limiter.
func (l *TokenBucketLimiter) Config() Config {
	return l.config
}

// Admit implements Limiter.
func (l *TokenBucketLimiter) Admit(_ context.Context, key string, cost int) (*Result, error) {
	now := l.now()
	b := l.bucket(key, now)

	if cost <= 0 {
		return newResult(l.config, true, b.limiter.TokensAt(now), 0), nil
	}

	allowed := b.limiter.AllowN(now, cost)
	res := newResult(l.config, allowed, b.limiter.TokensAt(now), cost)
	RecordDecision(l.name, allowed)
	return res, nil
}

// bucket returns the live bucket for key and marks it used at now. A
// bucket evicted between the lookup and the mark is skipped, so every
// caller debits the bucket that stays in the map.
func (l *TokenBucketLimiter) bucket(key string, now time.Time) *bucket {
	for {
		value, ok := l.buckets.Load(key)
		if !ok {
			fresh := &bucket{limiter: rate.NewLimiter(rate.Limit(l.config.RefillPerSecond), l.config.Capacity)}
			// The first use happens at now, not at construction time, so the
			// bucket starts full regardless of the injected clock.
			fresh.limiter.SetBurstAt(now, l.config.Capacity)
			value, _ = l.buckets.LoadOrStore(key, fresh)
		}

		b := value.(*bucket)
		b.mu.Lock()
		if b.evicted {
			b.mu.Unlock()
			continue
		}
		b.lastSeen.Store(now.UnixNano())
		b.mu.Unlock()
		return b
	}
}

// evict removes b from the map unless it was used at or after cutoff.
func (l *TokenBucketLimiter) evict(key any, b *bucket, cutoff int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.evicted || b.lastSeen.Load() >= cutoff {
		return false
	}
	b.evicted = true
	l.buckets.CompareAndDelete(key, b)
	return true
}

// Tokens returns the tokens currently available for key.
func (l *TokenBucketLimiter) Tokens(key string) float64 {
	value, ok := l.buckets.Load(key)
	if !ok {
		return float64(l.config.Capacity)
	}
	return value.(*bucket).limiter.TokensAt(l.now())
}

// Reset drops the bucket for key.
func (l *TokenBucketLimiter) Reset(key string) {
	if value, ok := l.buckets.Load(key); ok {
		b := value.(*bucket)
		b.mu.Lock()
		b.evicted = true
		l.buckets.CompareAndDelete(key, b)
		b.mu.Unlock()
	}
}

// startCleanupLoop runs the periodic cleanup of stale buckets.
func (l *TokenBucketLimiter) startCleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup(l.bucketTTL)
		case <-l.stopCleanup:
			return
		}
	}
}

// Cleanup removes buckets idle for longer than maxAge. A bucket idle that
// long has refilled completely, so dropping it is not observable.
func (l *TokenBucketLimiter) Cleanup(maxAge time.Duration) int {
	cutoff := l.now().Add(-maxAge).UnixNano()
	removed := 0

	l.buckets.Range(func(key, value any) bool {
		if l.evict(key, value.(*bucket), cutoff) {
			removed++
		}
		return true
	})

	if removed > 0 {
		l.logger.Debug("evicted idle rate limit buckets",
			zap.String("limiter", l.name),
			zap.Int("count", removed),
		)
	}
	return removed
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (l *TokenBucketLimiter) Close() error {
	l.cleanupOnce.Do(func() {
		close(l.stopCleanup)
	})
	return nil
}
