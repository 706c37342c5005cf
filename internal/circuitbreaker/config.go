// Package circuitbreaker isolates failing backends behind a per-route
// state machine. A breaker stops sending calls to a backend whose recent
// outcomes cross a failure threshold, waits, then lets a single trial
// call decide whether to resume.
package circuitbreaker

import (
	"time"
)

// Default configuration values.
const (
	DefaultFailureRatio = 0.5
	DefaultWindowSize   = 20
	DefaultMinRequests  = 10
	DefaultMaxFailures  = 5
	DefaultTimeout      = 30 * time.Second
	DefaultHalfOpenMax  = 1
)

// Config holds configuration for a circuit breaker.
type Config struct {
	// FailureRatio opens the circuit when the share of failures in the
	// window reaches it, once at least MinRequests outcomes are recorded.
	FailureRatio float64

	// WindowSize is the number of most recent outcomes kept.
	WindowSize int

	// MinRequests is the minimum number of outcomes before FailureRatio
	// is evaluated.
	MinRequests int

	// MaxFailures opens the circuit after that many consecutive failures.
	MaxFailures int

	// Timeout is how long the circuit stays open before a trial call.
	Timeout time.Duration

	// HalfOpenMax is the number of trial calls allowed while half-open.
	// All of them must succeed to close the circuit.
	HalfOpenMax int

	// IsSuccessful decides whether an error counts as a success.
	// If nil, only a nil error is a success.
	IsSuccessful func(err error) bool

	// OnStateChange is called asynchronously after each transition.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now, mainly for tests.
	Now func() time.Time
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		FailureRatio: DefaultFailureRatio,
		WindowSize:   DefaultWindowSize,
		MinRequests:  DefaultMinRequests,
		MaxFailures:  DefaultMaxFailures,
		Timeout:      DefaultTimeout,
		HalfOpenMax:  DefaultHalfOpenMax,
	}
}

// Validate replaces out-of-range values with defaults.
func (c *Config) Validate() {
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = DefaultFailureRatio
	}
	if c.WindowSize < 1 {
		c.WindowSize = DefaultWindowSize
	}
	if c.MinRequests < 1 {
		c.MinRequests = DefaultMinRequests
	}
	if c.MinRequests > c.WindowSize {
		c.MinRequests = c.WindowSize
	}
	if c.MaxFailures < 1 {
		c.MaxFailures = DefaultMaxFailures
	}
	if c.Timeout < time.Millisecond {
		c.Timeout = DefaultTimeout
	}
	if c.HalfOpenMax < 1 {
		c.HalfOpenMax = DefaultHalfOpenMax
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// sameThresholds reports whether other, once validated, trips and recovers
// exactly like c. c must already be validated.
func (c *Config) sameThresholds(other *Config) bool {
	o := *other
	o.Validate()
	return c.FailureRatio == o.FailureRatio &&
		c.WindowSize == o.WindowSize &&
		c.MinRequests == o.MinRequests &&
		c.MaxFailures == o.MaxFailures &&
		c.Timeout == o.Timeout &&
		c.HalfOpenMax == o.HalfOpenMax
}

// WithFailureRatio sets the failure ratio threshold.
func (c *Config) WithFailureRatio(ratio float64) *Config {
	c.FailureRatio = ratio
	return c
}

// WithWindowSize sets the sliding window size.
func (c *Config) WithWindowSize(n int) *Config {
	c.WindowSize = n
	return c
}

// WithMinRequests sets the minimum requests for ratio calculation.
func (c *Config) WithMinRequests(n int) *Config {
	c.MinRequests = n
	return c
}

// WithMaxFailures sets the consecutive failure threshold.
func (c *Config) WithMaxFailures(n int) *Config {
	c.MaxFailures = n
	return c
}

// WithTimeout sets the open state duration.
func (c *Config) WithTimeout(d time.Duration) *Config {
	c.Timeout = d
	return c
}

// WithHalfOpenMax sets the number of trial calls.
func (c *Config) WithHalfOpenMax(n int) *Config {
	c.HalfOpenMax = n
	return c
}

// WithIsSuccessful sets the success check function.
func (c *Config) WithIsSuccessful(fn func(err error) bool) *Config {
	c.IsSuccessful = fn
	return c
}

// WithOnStateChange sets the state change callback.
func (c *Config) WithOnStateChange(fn func(name string, from, to State)) *Config {
	c.OnStateChange = fn
	return c
}

// WithClock sets the time source.
func (c *Config) WithClock(now func() time.Time) *Config {
	c.Now = now
	return c
}
