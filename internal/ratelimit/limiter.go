// Package ratelimit provides per-key token bucket rate limiting for the
// gateway, held in memory or shared through Redis.
package ratelimit

import (
	"context"
	"time"
)

// Reference limits.
const (
	DefaultCapacity        = 1
	DefaultRefillPerSecond = 1.0
	DefaultRequestCost     = 1
)

// Limiter admits or denies requests for a key.
type Limiter interface {
	// Admit deducts cost tokens from key's bucket when enough are
	// available. A denial leaves the bucket unchanged.
	Admit(ctx context.Context, key string, cost int) (*Result, error)

	// Config returns the bucket parameters.
	Config() Config

	// Close releases background resources.
	Close() error
}

// Config holds token bucket parameters.
type Config struct {
	// Capacity is the bucket size and the largest admissible burst.
	Capacity int

	// RefillPerSecond is the rate at which tokens are restored.
	RefillPerSecond float64
}

// DefaultConfig returns the reference bucket configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:        DefaultCapacity,
		RefillPerSecond: DefaultRefillPerSecond,
	}
}

// Validate fills invalid values with defaults.
func (c *Config) Validate() {
	if c.Capacity < 1 {
		c.Capacity = DefaultCapacity
	}
	if c.RefillPerSecond <= 0 {
		c.RefillPerSecond = DefaultRefillPerSecond
	}
}

// fillTime is how long an empty bucket takes to fill.
func (c Config) fillTime() time.Duration {
	return time.Duration(float64(c.Capacity) / c.RefillPerSecond * float64(time.Second))
}

// retryAfter is how long a bucket holding tokens needs to reach cost.
func (c Config) retryAfter(tokens float64, cost int) time.Duration {
	missing := float64(cost) - tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / c.RefillPerSecond * float64(time.Second))
}

// Result represents the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the bucket capacity.
	Limit int

	// Remaining is the number of whole tokens left after the decision.
	Remaining int

	// ResetAfter is the duration until the bucket is full again.
	ResetAfter time.Duration

	// RetryAfter is the duration to wait before retrying (when not allowed).
	RetryAfter time.Duration
}

func newResult(cfg Config, allowed bool, tokens float64, cost int) *Result {
	if tokens < 0 {
		tokens = 0
	}
	res := &Result{
		Allowed:    allowed,
		Limit:      cfg.Capacity,
		Remaining:  int(tokens),
		ResetAfter: cfg.retryAfter(tokens, cfg.Capacity),
	}
	if !allowed {
		res.RetryAfter = cfg.retryAfter(tokens, cost)
	}
	return res
}

// NoopLimiter is a rate limiter that always allows requests.
type NoopLimiter struct{}

// NewNoopLimiter creates a new noop limiter.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Admit implements Limiter.
func (l *NoopLimiter) Admit(context.Context, string, int) (*Result, error) {
	return &Result{Allowed: true}, nil
}

// Config implements Limiter.
func (l *NoopLimiter) Config() Config {
	return Config{}
}

// Close implements Limiter.
func (l *NoopLimiter) Close() error {
	return nil
}
