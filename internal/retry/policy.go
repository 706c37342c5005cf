package retry

import (
	"net/http"
	"strings"
	"time"
)

// Default policy values.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = time.Second
	DefaultMultiplier     = 2.0

	// jitterFactor spreads each delay over [d*(1-f), d*(1+f)].
	jitterFactor = 0.5
)

// BackoffConfig configures exponential backoff between attempts.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     bool
}

// Policy defines when and how often a call is retried.
type Policy struct {
	// MaxAttempts counts every call including the first.
	MaxAttempts int

	// Methods lists the HTTP methods that may be retried. Calls with any
	// other method are attempted exactly once.
	Methods []string

	Backoff BackoffConfig

	// PerTryTimeout bounds each attempt when positive.
	PerTryTimeout time.Duration

	// RetryableStatuses restricts which backend status codes are retried.
	// Empty means every 5xx.
	RetryableStatuses []int

	// RetryOn overrides the default retry conditions.
	RetryOn []Condition
}

// DefaultPolicy returns a Policy with default values.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: DefaultMaxAttempts,
		Methods:     []string{http.MethodGet},
		Backoff: BackoffConfig{
			Initial:    DefaultInitialBackoff,
			Max:        DefaultMaxBackoff,
			Multiplier: DefaultMultiplier,
			Jitter:     true,
		},
	}
}

// Validate fills unset or invalid values with defaults.
func (p *Policy) Validate() {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if len(p.Methods) == 0 {
		p.Methods = []string{http.MethodGet}
	}
	if p.Backoff.Initial <= 0 {
		p.Backoff.Initial = DefaultInitialBackoff
	}
	if p.Backoff.Max <= 0 {
		p.Backoff.Max = DefaultMaxBackoff
	}
	if p.Backoff.Max < p.Backoff.Initial {
		p.Backoff.Max = p.Backoff.Initial
	}
	if p.Backoff.Multiplier < 1 {
		p.Backoff.Multiplier = DefaultMultiplier
	}
	if p.PerTryTimeout < 0 {
		p.PerTryTimeout = 0
	}
	if len(p.RetryOn) == 0 {
		var statuses Condition = RetryOn5xx()
		if len(p.RetryableStatuses) > 0 {
			statuses = RetryOnStatusCodes(p.RetryableStatuses...)
		}
		p.RetryOn = []Condition{statuses, RetryOnTransportErrors()}
	}
}

// AllowsMethod reports whether calls with method may be retried.
func (p *Policy) AllowsMethod(method string) bool {
	for _, m := range p.Methods {
		if m == "*" || strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// ShouldRetry reports whether err may be followed by another attempt.
func (p *Policy) ShouldRetry(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	for _, c := range p.RetryOn {
		if c.ShouldRetry(err) {
			return true
		}
	}
	return false
}

// WithMaxAttempts sets the total number of attempts.
func (p *Policy) WithMaxAttempts(n int) *Policy {
	p.MaxAttempts = n
	return p
}

// WithMethods sets the retryable methods.
func (p *Policy) WithMethods(methods ...string) *Policy {
	p.Methods = methods
	return p
}

// WithBackoff sets the backoff configuration.
func (p *Policy) WithBackoff(initial, maxDelay time.Duration, multiplier float64, jitter bool) *Policy {
	p.Backoff = BackoffConfig{Initial: initial, Max: maxDelay, Multiplier: multiplier, Jitter: jitter}
	return p
}

// WithPerTryTimeout sets the per-attempt timeout.
func (p *Policy) WithPerTryTimeout(d time.Duration) *Policy {
	p.PerTryTimeout = d
	return p
}

// WithRetryableStatuses sets the retryable backend status codes.
func (p *Policy) WithRetryableStatuses(statuses ...int) *Policy {
	p.RetryableStatuses = statuses
	return p
}

// WithRetryOn sets the retry conditions.
func (p *Policy) WithRetryOn(conditions ...Condition) *Policy {
	p.RetryOn = conditions
	return p
}
