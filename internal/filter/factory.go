package filter

import (
	"fmt"
	"time"

	"github.com/vyrodovalexey/edgerouter/internal/auth"
	"github.com/vyrodovalexey/edgerouter/internal/circuitbreaker"
	"github.com/vyrodovalexey/edgerouter/internal/correlation"
	"github.com/vyrodovalexey/edgerouter/internal/observability"
	"github.com/vyrodovalexey/edgerouter/internal/ratelimit"
	"github.com/vyrodovalexey/edgerouter/internal/retry"
)

// Factory compiles filter specs into chains using shared registries.
type Factory struct {
	breakers       *circuitbreaker.Registry
	limiters       *ratelimit.Registry
	fallback       FallbackInvoker
	tracer         *correlation.Tracer
	gate           *auth.Gate
	requestTimeout time.Duration
	render         ErrorRenderer
	logger         observability.Logger
	now            func() time.Time
}

// FactoryOption is a functional option for configuring the Factory.
type FactoryOption func(*Factory)

// WithFallback sets the fallback invoker used by breaker filters.
func WithFallback(fallback FallbackInvoker) FactoryOption {
	return func(f *Factory) {
		f.fallback = fallback
	}
}

// WithCorrelation adds correlation propagation and echo to every chain.
func WithCorrelation(tracer *correlation.Tracer) FactoryOption {
	return func(f *Factory) {
		f.tracer = tracer
	}
}

// WithGate makes authorization the first admission step of every chain.
func WithGate(gate *auth.Gate) FactoryOption {
	return func(f *Factory) {
		f.gate = gate
	}
}

// WithRequestTimeout bounds the breaker and retry sequence of every chain.
func WithRequestTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) {
		f.requestTimeout = d
	}
}

// WithErrorRenderer replaces RenderError.
func WithErrorRenderer(render ErrorRenderer) FactoryOption {
	return func(f *Factory) {
		f.render = render
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithClock replaces the time source of header producers.
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) {
		f.now = now
	}
}

// NewFactory creates a Factory.
func NewFactory(breakers *circuitbreaker.Registry, limiters *ratelimit.Registry, opts ...FactoryOption) *Factory {
	f := &Factory{
		breakers: breakers,
		limiters: limiters,
		render:   RenderError,
		logger:   observability.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Build compiles the specs of one route. Breakers are named after the
// spec, or after the route when the spec has no name; rate limiters are
// named after the route.
func (f *Factory) Build(routeID string, specs []Spec) (*Chain, error) {
	c := &Chain{render: f.render}

	if f.gate != nil {
		c.admission = append(c.admission, &authFilter{gate: f.gate})
	}

	var (
		breaker *CircuitBreakerSpec
		retries *RetrySpec
	)

	for i, s := range specs {
		switch s.Kind {
		case KindRewritePath:
			rf, err := newRewritePathFilter(s.RewritePath)
			if err != nil {
				return nil, fmt.Errorf("route %s filter %d: %w", routeID, i, err)
			}
			c.pre = append(c.pre, rf)
		case KindAddRequestHeader:
			c.pre = append(c.pre, &addRequestHeaderFilter{name: s.AddRequestHeader.Name, value: s.AddRequestHeader.Value})
		case KindAddResponseHeader:
			h := s.AddResponseHeader
			c.post = append(c.post, &addResponseHeaderFilter{name: h.Name, value: h.Value, producer: h.Producer, now: f.now})
		case KindRateLimit:
			rl := f.rateLimitFilter(routeID, s.RateLimit)
			c.admission = append(c.admission, rl)
			c.post = append(c.post, rl)
		case KindCircuitBreaker:
			if breaker != nil {
				return nil, fmt.Errorf("route %s declares more than one circuit breaker", routeID)
			}
			breaker = s.CircuitBreaker
		case KindRetry:
			if retries != nil {
				return nil, fmt.Errorf("route %s declares more than one retry filter", routeID)
			}
			retries = s.Retry
		default:
			return nil, fmt.Errorf("route %s filter %d: unknown kind %q", routeID, i, s.Kind)
		}
	}

	if f.tracer != nil {
		cf := &correlationFilter{tracer: f.tracer}
		c.pre = append(c.pre, cf)
		c.post = append(c.post, cf)
	}

	// Innermost first: retry, then the request timeout, then the breaker,
	// so a timeout counts as one breaker failure.
	if retries != nil {
		c.decorators = append(c.decorators, retryDecorator(f.retryExecutor(routeID, retries)))
	}
	if f.requestTimeout > 0 {
		c.decorators = append(c.decorators, timeoutDecorator(f.requestTimeout))
	}
	if breaker != nil {
		name := breaker.Name
		if name == "" {
			name = routeID
		}
		cb := f.breakers.GetOrCreateWithConfig(name, breakerConfig(breaker))
		c.decorators = append(c.decorators, breakerDecorator(cb, breaker.FallbackPath, f.fallback, f.logger))
	}

	return c, nil
}

func (f *Factory) rateLimitFilter(routeID string, s *RateLimitSpec) *rateLimitFilter {
	cfg := ratelimit.Config{Capacity: s.Capacity, RefillPerSecond: s.RefillPerSecond}
	cost := s.Cost
	if cost == 0 {
		cost = ratelimit.DefaultRequestCost
	}
	header := s.KeyHeader
	if header == "" {
		header = ratelimit.DefaultKeyHeader
	}

	return &rateLimitFilter{
		limiter: f.limiters.GetOrCreate(routeID, cfg),
		keyFunc: ratelimit.HeaderKeyFunc(header, s.DefaultKey),
		cost:    cost,
		logger:  f.logger,
	}
}

func (f *Factory) retryExecutor(routeID string, s *RetrySpec) *retry.Executor {
	policy := retry.DefaultPolicy().
		WithMaxAttempts(s.MaxAttempts).
		WithBackoff(s.Initial, s.Max, s.Multiplier, s.Jitter).
		WithPerTryTimeout(s.PerTryTimeout).
		WithRetryableStatuses(s.Statuses...)
	if len(s.Methods) > 0 {
		policy.WithMethods(s.Methods...)
	}

	exec := retry.NewExecutor(routeID, policy, f.logger.Zap(), retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		f.logger.Debug("retrying backend call",
			observability.String("route", routeID),
			observability.Int("attempt", attempt),
			observability.Duration("delay", delay),
			observability.Error(err),
		)
	}))
	return exec
}

func breakerConfig(s *CircuitBreakerSpec) *circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig()
	if s.FailureRatio > 0 {
		cfg.WithFailureRatio(s.FailureRatio)
	}
	if s.WindowSize > 0 {
		cfg.WithWindowSize(s.WindowSize)
	}
	if s.MinRequests > 0 {
		cfg.WithMinRequests(s.MinRequests)
	}
	if s.ConsecutiveFailures > 0 {
		cfg.WithMaxFailures(s.ConsecutiveFailures)
	}
	if s.Wait > 0 {
		cfg.WithTimeout(s.Wait)
	}
	if s.HalfOpenCalls > 0 {
		cfg.WithHalfOpenMax(s.HalfOpenCalls)
	}
	return cfg
}
