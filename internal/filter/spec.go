package filter

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vyrodovalexey/edgerouter/internal/config"
)

// Kind discriminates the filter variants.
type Kind string

// Filter kinds.
const (
	KindRewritePath       Kind = "rewritePath"
	KindAddResponseHeader Kind = "addResponseHeader"
	KindAddRequestHeader  Kind = "addRequestHeader"
	KindCircuitBreaker    Kind = "circuitBreaker"
	KindRetry             Kind = "retry"
	KindRateLimit         Kind = "rateLimit"
)

// Producer computes a header value.
type Producer string

// Header value producers.
const (
	ProducerStatic    Producer = "static"
	ProducerTimestamp Producer = "timestamp"
	ProducerDuration  Producer = "duration"
)

// Spec is a tagged filter declaration. Exactly the field matching Kind is
// set.
type Spec struct {
	Kind Kind

	RewritePath       *RewritePathSpec
	AddResponseHeader *HeaderSpec
	AddRequestHeader  *HeaderSpec
	CircuitBreaker    *CircuitBreakerSpec
	Retry             *RetrySpec
	RateLimit         *RateLimitSpec
}

// RewritePathSpec replaces the outbound path. Regexp is Go syntax and may
// declare named groups that Replacement references as ${name}. With an
// empty Regexp, Replacement is expanded from the route captures instead.
type RewritePathSpec struct {
	Regexp      string
	Replacement string
}

// HeaderSpec adds a header.
type HeaderSpec struct {
	Name     string
	Value    string
	Producer Producer
}

// CircuitBreakerSpec guards dispatch with a named breaker. FallbackPath,
// when set, names the local fallback endpoint served instead of an error.
type CircuitBreakerSpec struct {
	Name                string
	FallbackPath        string
	FailureRatio        float64
	WindowSize          int
	MinRequests         int
	ConsecutiveFailures int
	Wait                time.Duration
	HalfOpenCalls       int
}

// RetrySpec re-executes dispatch. MaxAttempts counts the first call.
type RetrySpec struct {
	MaxAttempts   int
	Methods       []string
	Statuses      []int
	Initial       time.Duration
	Max           time.Duration
	Multiplier    float64
	Jitter        bool
	PerTryTimeout time.Duration
}

// RateLimitSpec admits requests through a token bucket keyed per caller.
type RateLimitSpec struct {
	Capacity        int
	RefillPerSecond float64
	Cost            int
	KeyHeader       string
	DefaultKey      string
}

// RewritePath creates a RewritePath spec.
func RewritePath(regexp, replacement string) Spec {
	return Spec{Kind: KindRewritePath, RewritePath: &RewritePathSpec{Regexp: regexp, Replacement: replacement}}
}

// AddResponseHeader creates an AddResponseHeader spec.
func AddResponseHeader(name string, producer Producer, value string) Spec {
	return Spec{Kind: KindAddResponseHeader, AddResponseHeader: &HeaderSpec{Name: name, Value: value, Producer: producer}}
}

// AddRequestHeader creates an AddRequestHeader spec.
func AddRequestHeader(name, value string) Spec {
	return Spec{Kind: KindAddRequestHeader, AddRequestHeader: &HeaderSpec{Name: name, Value: value, Producer: ProducerStatic}}
}

// CircuitBreaker creates a CircuitBreaker spec.
func CircuitBreaker(s CircuitBreakerSpec) Spec {
	return Spec{Kind: KindCircuitBreaker, CircuitBreaker: &s}
}

// Retry creates a Retry spec.
func Retry(s RetrySpec) Spec {
	return Spec{Kind: KindRetry, Retry: &s}
}

// RateLimit creates a RateLimit spec.
func RateLimit(s RateLimitSpec) Spec {
	return Spec{Kind: KindRateLimit, RateLimit: &s}
}

// SpecsFromRoute converts a route's configuration into filter specs. A
// route-level rewrite becomes a leading RewritePath filter.
func SpecsFromRoute(rc config.RouteConfig) ([]Spec, error) {
	specs := make([]Spec, 0, len(rc.Filters)+1)
	if rc.Rewrite != nil {
		specs = append(specs, RewritePath(rc.Rewrite.Regexp, rc.Rewrite.Replacement))
	}
	for i, fc := range rc.Filters {
		s, err := SpecFromConfig(fc)
		if err != nil {
			return nil, fmt.Errorf("route %s filter %d: %w", rc.ID, i, err)
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// SpecFromConfig converts one filter declaration.
func SpecFromConfig(fc config.FilterConfig) (Spec, error) {
	switch Kind(fc.Kind()) {
	case KindRewritePath:
		return RewritePath(fc.RewritePath.Regexp, fc.RewritePath.Replacement), nil
	case KindAddResponseHeader:
		return AddResponseHeader(fc.AddResponseHeader.Name, producerOf(fc.AddResponseHeader.Producer), fc.AddResponseHeader.Value), nil
	case KindAddRequestHeader:
		return AddRequestHeader(fc.AddRequestHeader.Name, fc.AddRequestHeader.Value), nil
	case KindCircuitBreaker:
		cb := fc.CircuitBreaker
		return CircuitBreaker(CircuitBreakerSpec{
			Name:                cb.Name,
			FallbackPath:        strings.TrimPrefix(cb.FallbackURI, "forward:"),
			FailureRatio:        cb.FailureRateThreshold,
			WindowSize:          cb.SlidingWindowSize,
			MinRequests:         cb.MinimumCalls,
			ConsecutiveFailures: cb.ConsecutiveFailures,
			Wait:                cb.WaitDuration.Duration(),
			HalfOpenCalls:       cb.HalfOpenCalls,
		}), nil
	case KindRetry:
		r := fc.Retry
		methods := r.Methods
		if len(methods) == 0 {
			methods = []string{http.MethodGet}
		}
		return Retry(RetrySpec{
			MaxAttempts:   r.MaxAttempts,
			Methods:       methods,
			Statuses:      r.Statuses,
			Initial:       r.Backoff.Initial.Duration(),
			Max:           r.Backoff.Max.Duration(),
			Multiplier:    r.Backoff.Multiplier,
			Jitter:        r.Backoff.Jitter,
			PerTryTimeout: r.PerTryTimeout.Duration(),
		}), nil
	case KindRateLimit:
		rl := fc.RateLimit
		return RateLimit(RateLimitSpec{
			Capacity:        rl.Capacity,
			RefillPerSecond: rl.RefillPerSecond,
			Cost:            rl.RequestCost,
			KeyHeader:       rl.KeyHeader,
			DefaultKey:      rl.DefaultKey,
		}), nil
	default:
		return Spec{}, fmt.Errorf("filter must set exactly one kind")
	}
}

func producerOf(s string) Producer {
	if s == "" {
		return ProducerStatic
	}
	return Producer(s)
}
