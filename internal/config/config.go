package config

import "time"

// Default values applied by ApplyDefaults.
const (
	DefaultServerAddress       = ":8072"
	DefaultMetricsAddress      = ":9090"
	DefaultMetricsPath         = "/metrics"
	DefaultCorrelationHeader   = "sbdb-correlation-id"
	DefaultFallbackPath        = "/contactSupport"
	DefaultFallbackMessage     = "An error occured. Please try after some time or contact support team!"
	DefaultRequestTimeout      = 10 * time.Second
	DefaultCallTimeout         = 5 * time.Second
	DefaultFallbackLatency     = 5 * time.Second
	DefaultShutdownTimeout     = 30 * time.Second
	DefaultMaxBodyBytes        = 10 << 20
	DefaultDiscoveryCacheTTL   = 10 * time.Second
	DefaultDiscoveryCacheSize  = 256
	DefaultBucketTTL           = 10 * time.Minute
	DefaultBucketCleanup       = time.Minute
	DefaultRedisPrefix         = "request_rate_limiter"
	DefaultJWKSRefreshInterval = 15 * time.Minute
)

// Discovery types.
const (
	DiscoveryStatic = "static"
	DiscoveryConsul = "consul"
)

// Rate limiter store types.
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// GatewayConfig is the root configuration document.
type GatewayConfig struct {
	Name           string               `yaml:"name" json:"name"`
	Server         ServerConfig         `yaml:"server" json:"server"`
	Logging        LoggingConfig        `yaml:"logging" json:"logging"`
	Observability  ObservabilityConfig  `yaml:"observability" json:"observability"`
	Timeouts       TimeoutsConfig       `yaml:"timeouts" json:"timeouts"`
	Correlation    CorrelationConfig    `yaml:"correlation" json:"correlation"`
	Auth           AuthConfig           `yaml:"auth" json:"auth"`
	Discovery      DiscoveryConfig      `yaml:"discovery" json:"discovery"`
	RateLimitStore RateLimitStoreConfig `yaml:"rateLimitStore" json:"rateLimitStore"`
	Fallbacks      []FallbackConfig     `yaml:"fallbacks" json:"fallbacks"`
	Routes         []RouteConfig        `yaml:"routes" json:"routes"`
}

// ServerConfig configures the inbound HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address" json:"address"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
	MaxBodyBytes    int64    `yaml:"maxBodyBytes" json:"maxBodyBytes"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
	Path    string `yaml:"path" json:"path"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Endpoint     string  `yaml:"endpoint" json:"endpoint"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
	Insecure     bool    `yaml:"insecure" json:"insecure"`
}

// TimeoutsConfig bounds a single backend call and a whole request.
//
// Request covers the breaker and retry sequence including backoff waits.
// It must exceed FallbackLatency, the time a downstream service's own
// fallback is expected to take, so that the downstream answer arrives
// before this gateway gives up and trips its own breaker.
type TimeoutsConfig struct {
	Request         Duration `yaml:"request" json:"request"`
	Call            Duration `yaml:"call" json:"call"`
	FallbackLatency Duration `yaml:"fallbackLatency" json:"fallbackLatency"`
}

// CorrelationConfig configures correlation id propagation.
type CorrelationConfig struct {
	Header string `yaml:"header" json:"header"`
}

// AuthConfig configures the authorization gate.
type AuthConfig struct {
	Enabled        bool      `yaml:"enabled" json:"enabled"`
	ProtectedPaths []string  `yaml:"protectedPaths" json:"protectedPaths"`
	OpenMethods    []string  `yaml:"openMethods" json:"openMethods"`
	JWT            JWTConfig `yaml:"jwt" json:"jwt"`
}

// JWTConfig configures bearer token validation.
type JWTConfig struct {
	JWKSURL         string   `yaml:"jwksUrl" json:"jwksUrl"`
	RefreshInterval Duration `yaml:"refreshInterval" json:"refreshInterval"`
	Secret          string   `yaml:"secret" json:"-"`
	Issuer          string   `yaml:"issuer" json:"issuer"`
	Audience        string   `yaml:"audience" json:"audience"`
	Algorithms      []string `yaml:"algorithms" json:"algorithms"`
	Leeway          Duration `yaml:"leeway" json:"leeway"`
}

// DiscoveryConfig configures service name resolution.
type DiscoveryConfig struct {
	Type      string              `yaml:"type" json:"type"`
	Static    map[string][]string `yaml:"static" json:"static"`
	Consul    ConsulConfig        `yaml:"consul" json:"consul"`
	CacheTTL  Duration            `yaml:"cacheTTL" json:"cacheTTL"`
	CacheSize int                 `yaml:"cacheSize" json:"cacheSize"`
}

// ConsulConfig configures the Consul catalog source.
type ConsulConfig struct {
	Address    string `yaml:"address" json:"address"`
	Scheme     string `yaml:"scheme" json:"scheme"`
	Datacenter string `yaml:"datacenter" json:"datacenter"`
	Token      string `yaml:"token" json:"-"`
	Tag        string `yaml:"tag" json:"tag"`
}

// RateLimitStoreConfig selects where token buckets live.
type RateLimitStoreConfig struct {
	Type            string      `yaml:"type" json:"type"`
	Redis           RedisConfig `yaml:"redis" json:"redis"`
	BucketTTL       Duration    `yaml:"bucketTTL" json:"bucketTTL"`
	CleanupInterval Duration    `yaml:"cleanupInterval" json:"cleanupInterval"`
}

// RedisConfig configures the Redis connection for distributed buckets.
type RedisConfig struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// FallbackConfig declares a local fallback endpoint.
type FallbackConfig struct {
	Path        string `yaml:"path" json:"path"`
	Status      int    `yaml:"status" json:"status"`
	Body        string `yaml:"body" json:"body"`
	ContentType string `yaml:"contentType" json:"contentType"`
}

// RouteConfig declares one route.
type RouteConfig struct {
	ID      string         `yaml:"id" json:"id"`
	Path    string         `yaml:"path" json:"path"`
	Methods []string       `yaml:"methods" json:"methods"`
	Service string         `yaml:"service" json:"service"`
	Rewrite *RewriteConfig `yaml:"rewrite" json:"rewrite"`
	Filters []FilterConfig `yaml:"filters" json:"filters"`
}

// RewriteConfig rewrites the outbound path. Regexp uses Go syntax and may
// declare named groups referenced from Replacement as ${name}.
type RewriteConfig struct {
	Regexp      string `yaml:"regexp" json:"regexp"`
	Replacement string `yaml:"replacement" json:"replacement"`
}

// FilterConfig is a tagged union: exactly one field must be set.
type FilterConfig struct {
	RewritePath       *RewriteConfig        `yaml:"rewritePath" json:"rewritePath,omitempty"`
	AddResponseHeader *HeaderConfig         `yaml:"addResponseHeader" json:"addResponseHeader,omitempty"`
	AddRequestHeader  *HeaderConfig         `yaml:"addRequestHeader" json:"addRequestHeader,omitempty"`
	CircuitBreaker    *CircuitBreakerConfig `yaml:"circuitBreaker" json:"circuitBreaker,omitempty"`
	Retry             *RetryConfig          `yaml:"retry" json:"retry,omitempty"`
	RateLimit         *RateLimitConfig      `yaml:"rateLimit" json:"rateLimit,omitempty"`
}

// HeaderConfig adds a header. Producer is static (default), timestamp or
// duration; Value is used only by the static producer.
type HeaderConfig struct {
	Name     string `yaml:"name" json:"name"`
	Value    string `yaml:"value" json:"value"`
	Producer string `yaml:"producer" json:"producer"`
}

// CircuitBreakerConfig configures a route breaker.
type CircuitBreakerConfig struct {
	Name                 string   `yaml:"name" json:"name"`
	FallbackURI          string   `yaml:"fallbackUri" json:"fallbackUri"`
	FailureRateThreshold float64  `yaml:"failureRateThreshold" json:"failureRateThreshold"`
	SlidingWindowSize    int      `yaml:"slidingWindowSize" json:"slidingWindowSize"`
	MinimumCalls         int      `yaml:"minimumCalls" json:"minimumCalls"`
	ConsecutiveFailures  int      `yaml:"consecutiveFailures" json:"consecutiveFailures"`
	WaitDuration         Duration `yaml:"waitDuration" json:"waitDuration"`
	HalfOpenCalls        int      `yaml:"halfOpenCalls" json:"halfOpenCalls"`
}

// RetryConfig configures a route retry policy. MaxAttempts counts the
// first call.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"maxAttempts" json:"maxAttempts"`
	Methods       []string      `yaml:"methods" json:"methods"`
	Statuses      []int         `yaml:"statuses" json:"statuses"`
	Backoff       BackoffConfig `yaml:"backoff" json:"backoff"`
	PerTryTimeout Duration      `yaml:"perTryTimeout" json:"perTryTimeout"`
}

// BackoffConfig configures exponential backoff between attempts.
type BackoffConfig struct {
	Initial    Duration `yaml:"initial" json:"initial"`
	Max        Duration `yaml:"max" json:"max"`
	Multiplier float64  `yaml:"multiplier" json:"multiplier"`
	Jitter     bool     `yaml:"jitter" json:"jitter"`
}

// RateLimitConfig configures a route token bucket.
type RateLimitConfig struct {
	Capacity        int     `yaml:"capacity" json:"capacity"`
	RefillPerSecond float64 `yaml:"refillPerSecond" json:"refillPerSecond"`
	RequestCost     int     `yaml:"requestCost" json:"requestCost"`
	KeyHeader       string  `yaml:"keyHeader" json:"keyHeader"`
	DefaultKey      string  `yaml:"defaultKey" json:"defaultKey"`
}

// DefaultConfig returns a configuration with defaults and no routes.
func DefaultConfig() *GatewayConfig {
	cfg := &GatewayConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with their default values.
func (c *GatewayConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "edgerouter"
	}

	c.applyServerDefaults()
	c.applyObservabilityDefaults()

	if c.Timeouts.Request == 0 {
		c.Timeouts.Request = Duration(DefaultRequestTimeout)
	}
	if c.Timeouts.Call == 0 {
		c.Timeouts.Call = Duration(DefaultCallTimeout)
	}
	if c.Timeouts.FallbackLatency == 0 {
		c.Timeouts.FallbackLatency = Duration(DefaultFallbackLatency)
	}

	if c.Correlation.Header == "" {
		c.Correlation.Header = DefaultCorrelationHeader
	}

	if len(c.Auth.OpenMethods) == 0 {
		c.Auth.OpenMethods = []string{"GET"}
	}
	if c.Auth.JWT.RefreshInterval == 0 {
		c.Auth.JWT.RefreshInterval = Duration(DefaultJWKSRefreshInterval)
	}

	if c.Discovery.Type == "" {
		c.Discovery.Type = DiscoveryStatic
	}
	if c.Discovery.CacheTTL == 0 {
		c.Discovery.CacheTTL = Duration(DefaultDiscoveryCacheTTL)
	}
	if c.Discovery.CacheSize == 0 {
		c.Discovery.CacheSize = DefaultDiscoveryCacheSize
	}

	c.applyRateLimitStoreDefaults()

	if len(c.Fallbacks) == 0 {
		c.Fallbacks = []FallbackConfig{{Path: DefaultFallbackPath}}
	}
	for i := range c.Fallbacks {
		fb := &c.Fallbacks[i]
		if fb.Status == 0 {
			fb.Status = 200
		}
		if fb.Body == "" {
			fb.Body = DefaultFallbackMessage
		}
		if fb.ContentType == "" {
			fb.ContentType = "text/plain; charset=utf-8"
		}
	}
}

func (c *GatewayConfig) applyServerDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultServerAddress
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(30 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(60 * time.Second)
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = Duration(120 * time.Second)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

func (c *GatewayConfig) applyObservabilityDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Observability.Metrics.Address == "" {
		c.Observability.Metrics.Address = DefaultMetricsAddress
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = DefaultMetricsPath
	}
	if c.Observability.Tracing.ServiceName == "" {
		c.Observability.Tracing.ServiceName = c.Name
	}
	if c.Observability.Tracing.SamplingRate == 0 {
		c.Observability.Tracing.SamplingRate = 1.0
	}
}

func (c *GatewayConfig) applyRateLimitStoreDefaults() {
	if c.RateLimitStore.Type == "" {
		c.RateLimitStore.Type = RateLimitStoreMemory
	}
	if c.RateLimitStore.Redis.Prefix == "" {
		c.RateLimitStore.Redis.Prefix = DefaultRedisPrefix
	}
	if c.RateLimitStore.BucketTTL == 0 {
		c.RateLimitStore.BucketTTL = Duration(DefaultBucketTTL)
	}
	if c.RateLimitStore.CleanupInterval == 0 {
		c.RateLimitStore.CleanupInterval = Duration(DefaultBucketCleanup)
	}
}

// FallbackByPath returns the fallback declared for path.
func (c *GatewayConfig) FallbackByPath(path string) (FallbackConfig, bool) {
	for _, fb := range c.Fallbacks {
		if fb.Path == path {
			return fb, true
		}
	}
	return FallbackConfig{}, false
}

// Kind returns the name of the populated filter variant, or "" when none
// or more than one is set.
func (f FilterConfig) Kind() string {
	kinds := make([]string, 0, 1)
	if f.RewritePath != nil {
		kinds = append(kinds, "rewritePath")
	}
	if f.AddResponseHeader != nil {
		kinds = append(kinds, "addResponseHeader")
	}
	if f.AddRequestHeader != nil {
		kinds = append(kinds, "addRequestHeader")
	}
	if f.CircuitBreaker != nil {
		kinds = append(kinds, "circuitBreaker")
	}
	if f.Retry != nil {
		kinds = append(kinds, "retry")
	}
	if f.RateLimit != nil {
		kinds = append(kinds, "rateLimit")
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}
