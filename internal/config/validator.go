package config

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/vyrodovalexey/edgerouter/internal/util"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Is makes ValidationErrors match util.ErrConfigInvalid.
func (e ValidationErrors) Is(target error) bool {
	return target == util.ErrConfigInvalid
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

var knownMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodOptions: {},
	http.MethodConnect: {},
	http.MethodTrace:   {},
}

// Validator validates gateway configuration.
type Validator struct {
	errors ValidationErrors

	// breakers holds the thresholds of each breaker name seen so far.
	breakers map[string]CircuitBreakerConfig
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateConfig validates a gateway configuration.
func ValidateConfig(cfg *GatewayConfig) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(cfg *GatewayConfig) error {
	v.errors = nil
	v.breakers = make(map[string]CircuitBreakerConfig)

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateLogging(&cfg.Logging)
	v.validateTimeouts(&cfg.Timeouts)
	v.validateAuth(&cfg.Auth)
	v.validateDiscovery(cfg)
	v.validateRateLimitStore(&cfg.RateLimitStore)
	v.validateFallbacks(cfg.Fallbacks)
	v.validateRoutes(cfg)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateLogging(l *LoggingConfig) {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("unsupported level %q", l.Level))
	}
	switch l.Format {
	case "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("unsupported format %q", l.Format))
	}
}

func (v *Validator) validateTimeouts(t *TimeoutsConfig) {
	if t.Request <= 0 {
		v.addError("timeouts.request", "must be positive")
	}
	if t.Call <= 0 {
		v.addError("timeouts.call", "must be positive")
	}
	if t.Call > t.Request {
		v.addError("timeouts.call", "must not exceed timeouts.request")
	}
	if t.Request <= t.FallbackLatency {
		v.addError("timeouts.request",
			fmt.Sprintf("must exceed timeouts.fallbackLatency (%s)", t.FallbackLatency))
	}
}

func (v *Validator) validateAuth(a *AuthConfig) {
	if !a.Enabled {
		return
	}
	if len(a.ProtectedPaths) == 0 {
		v.addError("auth.protectedPaths", "at least one protected path is required when auth is enabled")
	}
	for i, p := range a.ProtectedPaths {
		if !strings.HasPrefix(p, "/") {
			v.addError(fmt.Sprintf("auth.protectedPaths[%d]", i), "must start with /")
		}
	}
	v.validateMethods("auth.openMethods", a.OpenMethods)
	if a.JWT.JWKSURL == "" && a.JWT.Secret == "" {
		v.addError("auth.jwt", "either jwksUrl or secret is required")
	}
}

func (v *Validator) validateDiscovery(cfg *GatewayConfig) {
	d := &cfg.Discovery
	switch d.Type {
	case DiscoveryStatic:
		for _, r := range cfg.Routes {
			if r.Service == "" {
				continue
			}
			if len(d.Static[r.Service]) == 0 {
				v.addError("discovery.static."+r.Service,
					fmt.Sprintf("no instances declared for service used by route %q", r.ID))
			}
		}
	case DiscoveryConsul:
		if d.Consul.Address == "" {
			v.addError("discovery.consul.address", "address is required")
		}
	default:
		v.addError("discovery.type", fmt.Sprintf("unsupported type %q", d.Type))
	}
	if d.CacheSize < 0 {
		v.addError("discovery.cacheSize", "must not be negative")
	}
}

func (v *Validator) validateRateLimitStore(s *RateLimitStoreConfig) {
	switch s.Type {
	case RateLimitStoreMemory:
	case RateLimitStoreRedis:
		if s.Redis.Address == "" {
			v.addError("rateLimitStore.redis.address", "address is required")
		}
	default:
		v.addError("rateLimitStore.type", fmt.Sprintf("unsupported type %q", s.Type))
	}
}

func (v *Validator) validateFallbacks(fallbacks []FallbackConfig) {
	seen := make(map[string]struct{}, len(fallbacks))
	for i, fb := range fallbacks {
		path := fmt.Sprintf("fallbacks[%d]", i)
		if !strings.HasPrefix(fb.Path, "/") {
			v.addError(path+".path", "must start with /")
		}
		if _, dup := seen[fb.Path]; dup {
			v.addError(path+".path", fmt.Sprintf("duplicate fallback %q", fb.Path))
		}
		seen[fb.Path] = struct{}{}
		if fb.Status < 100 || fb.Status > 599 {
			v.addError(path+".status", fmt.Sprintf("invalid status %d", fb.Status))
		}
	}
}

func (v *Validator) validateRoutes(cfg *GatewayConfig) {
	seen := make(map[string]struct{}, len(cfg.Routes))
	for i := range cfg.Routes {
		r := &cfg.Routes[i]
		path := fmt.Sprintf("routes[%d]", i)

		if r.ID == "" {
			v.addError(path+".id", "id is required")
		} else if _, dup := seen[r.ID]; dup {
			v.addError(path+".id", fmt.Sprintf("duplicate route id %q", r.ID))
		}
		seen[r.ID] = struct{}{}

		if !strings.HasPrefix(r.Path, "/") {
			v.addError(path+".path", "must start with /")
		}
		if r.Service == "" {
			v.addError(path+".service", "service is required")
		}
		v.validateMethods(path+".methods", r.Methods)
		if r.Rewrite != nil {
			v.validateRewrite(path+".rewrite", r.Rewrite)
		}

		for j, f := range r.Filters {
			v.validateFilter(cfg, fmt.Sprintf("%s.filters[%d]", path, j), f)
		}
	}
}

func (v *Validator) validateMethods(path string, methods []string) {
	for _, m := range methods {
		if _, ok := knownMethods[strings.ToUpper(m)]; !ok {
			v.addError(path, fmt.Sprintf("unknown method %q", m))
		}
	}
}

func (v *Validator) validateRewrite(path string, rw *RewriteConfig) {
	if rw.Regexp == "" {
		v.addError(path+".regexp", "regexp is required")
		return
	}
	if _, err := regexp.Compile(rw.Regexp); err != nil {
		v.addError(path+".regexp", err.Error())
	}
}

func (v *Validator) validateFilter(cfg *GatewayConfig, path string, f FilterConfig) {
	switch f.Kind() {
	case "rewritePath":
		v.validateRewrite(path+".rewritePath", f.RewritePath)
	case "addResponseHeader":
		v.validateHeader(path+".addResponseHeader", f.AddResponseHeader, true)
	case "addRequestHeader":
		v.validateHeader(path+".addRequestHeader", f.AddRequestHeader, false)
	case "circuitBreaker":
		v.validateCircuitBreaker(cfg, path+".circuitBreaker", f.CircuitBreaker)
	case "retry":
		v.validateRetry(path+".retry", f.Retry)
	case "rateLimit":
		v.validateRateLimit(path+".rateLimit", f.RateLimit)
	default:
		v.addError(path, "exactly one filter type must be set")
	}
}

func (v *Validator) validateHeader(path string, h *HeaderConfig, allowProducers bool) {
	if h.Name == "" {
		v.addError(path+".name", "name is required")
	}
	switch h.Producer {
	case "", "static":
	case "timestamp", "duration":
		if !allowProducers {
			v.addError(path+".producer", fmt.Sprintf("producer %q is only valid on response headers", h.Producer))
		}
	default:
		v.addError(path+".producer", fmt.Sprintf("unsupported producer %q", h.Producer))
	}
}

func (v *Validator) validateCircuitBreaker(cfg *GatewayConfig, path string, cb *CircuitBreakerConfig) {
	if cb.Name == "" {
		v.addError(path+".name", "name is required")
	} else {
		// Routes share a breaker by name, so they must agree on its
		// thresholds. Fallbacks stay per route.
		thresholds := *cb
		thresholds.FallbackURI = ""
		if prev, ok := v.breakers[cb.Name]; ok && prev != thresholds {
			v.addError(path+".name", fmt.Sprintf("breaker %q is declared with different settings", cb.Name))
		} else if !ok {
			v.breakers[cb.Name] = thresholds
		}
	}
	if cb.FallbackURI != "" {
		if _, ok := cfg.FallbackByPath(strings.TrimPrefix(cb.FallbackURI, "forward:")); !ok {
			v.addError(path+".fallbackUri", fmt.Sprintf("no fallback declared for %q", cb.FallbackURI))
		}
	}
	if cb.FailureRateThreshold < 0 || cb.FailureRateThreshold > 1 {
		v.addError(path+".failureRateThreshold", "must be between 0 and 1")
	}
	if cb.SlidingWindowSize < 0 || cb.MinimumCalls < 0 || cb.ConsecutiveFailures < 0 || cb.HalfOpenCalls < 0 {
		v.addError(path, "counts must not be negative")
	}
	if cb.WaitDuration < 0 {
		v.addError(path+".waitDuration", "must not be negative")
	}
}

func (v *Validator) validateRetry(path string, r *RetryConfig) {
	if r.MaxAttempts < 1 {
		v.addError(path+".maxAttempts", "must be at least 1")
	}
	v.validateMethods(path+".methods", r.Methods)
	for _, s := range r.Statuses {
		if s < 100 || s > 599 {
			v.addError(path+".statuses", fmt.Sprintf("invalid status %d", s))
		}
	}
	b := r.Backoff
	if b.Initial < 0 || b.Max < 0 {
		v.addError(path+".backoff", "durations must not be negative")
	}
	if b.Max > 0 && b.Initial > b.Max {
		v.addError(path+".backoff.initial", "must not exceed backoff.max")
	}
	if b.Multiplier != 0 && b.Multiplier < 1 {
		v.addError(path+".backoff.multiplier", "must be at least 1")
	}
}

func (v *Validator) validateRateLimit(path string, rl *RateLimitConfig) {
	if rl.Capacity < 1 {
		v.addError(path+".capacity", "must be at least 1")
	}
	if rl.RefillPerSecond <= 0 {
		v.addError(path+".refillPerSecond", "must be positive")
	}
	if rl.RequestCost < 0 {
		v.addError(path+".requestCost", "must not be negative")
	}
	if rl.RequestCost > rl.Capacity {
		v.addError(path+".requestCost", "must not exceed capacity")
	}
}
