package ratelimit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RegistryConfig selects where buckets live.
type RegistryConfig struct {
	// Redis holds buckets shared between instances. Nil keeps buckets in
	// memory.
	Redis redis.UniversalClient

	// Prefix is the Redis key prefix.
	Prefix string

	// BucketTTL and CleanupInterval control eviction of idle in-memory
	// buckets.
	BucketTTL       time.Duration
	CleanupInterval time.Duration
}

// Registry holds one limiter per name, created on first use.
type Registry struct {
	config RegistryConfig
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[string]Limiter
}

// NewRegistry creates a limiter registry.
func NewRegistry(cfg RegistryConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultRedisPrefix
	}
	if cfg.BucketTTL <= 0 {
		cfg.BucketTTL = DefaultBucketTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}

	return &Registry{
		config:   cfg,
		logger:   logger,
		limiters: make(map[string]Limiter),
	}
}

// GetOrCreate returns the limiter registered under name. When none exists,
// or the existing one was built with different parameters, a new limiter
// is created from cfg and replaces it.
func (r *Registry) GetOrCreate(name string, cfg Config) Limiter {
	cfg.Validate()

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[name]; ok {
		if l.Config() == cfg {
			return l
		}
		_ = l.Close()
	}

	l := r.newLimiter(name, cfg)
	r.limiters[name] = l
	r.logger.Debug("rate limiter created",
		zap.String("name", name),
		zap.Int("capacity", cfg.Capacity),
		zap.Float64("refill_per_second", cfg.RefillPerSecond),
		zap.Bool("distributed", r.config.Redis != nil),
	)
	return l
}

func (r *Registry) newLimiter(name string, cfg Config) Limiter {
	local := NewTokenBucketLimiter(name, cfg, r.logger,
		WithEviction(r.config.CleanupInterval, r.config.BucketTTL))
	if r.config.Redis == nil {
		return local
	}
	return NewRedisLimiter(name, r.config.Redis, cfg, r.logger,
		WithRedisPrefix(r.config.Prefix),
		WithLocalFallback(local),
	)
}

// Get returns the limiter registered under name.
func (r *Registry) Get(name string) (Limiter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[name]
	return l, ok
}

// Retain closes and drops every limiter whose name is not in keep.
func (r *Registry) Retain(keep map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, l := range r.limiters {
		if !keep[name] {
			_ = l.Close()
			delete(r.limiters, name)
		}
	}
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.limiters))
	for name := range r.limiters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ping checks the Redis connection when buckets are distributed.
func (r *Registry) Ping(ctx context.Context) error {
	if r.config.Redis == nil {
		return nil
	}
	return r.config.Redis.Ping(ctx).Err()
}

// Close closes every limiter. The Redis client is owned by the caller.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, l := range r.limiters {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.limiters, name)
	}
	return errors.Join(errs...)
}
