package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/edgerouter/internal/auth"
	"github.com/vyrodovalexey/edgerouter/internal/circuitbreaker"
	"github.com/vyrodovalexey/edgerouter/internal/config"
	"github.com/vyrodovalexey/edgerouter/internal/correlation"
	"github.com/vyrodovalexey/edgerouter/internal/filter"
	"github.com/vyrodovalexey/edgerouter/internal/middleware"
	"github.com/vyrodovalexey/edgerouter/internal/observability"
	"github.com/vyrodovalexey/edgerouter/internal/ratelimit"
)

// State represents the gateway state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Gateway is the edge router: a gin engine running the request pipeline
// behind one HTTP listener.
type Gateway struct {
	config    *config.GatewayConfig
	logger    observability.Logger
	engine    *gin.Engine
	listener  *Listener
	pipeline  *pipeline
	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex

	dispatcher Dispatcher
	breakers   *circuitbreaker.Registry
	limiters   *ratelimit.Registry
	gate       *auth.Gate
	tracer     *observability.Tracer
	metrics    *observability.Metrics
	now        func() time.Time

	shutdownTimeout time.Duration
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithShutdownTimeout sets the shutdown timeout.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		g.shutdownTimeout = timeout
	}
}

// WithDispatcher sets the backend dispatcher. It is required.
func WithDispatcher(d Dispatcher) Option {
	return func(g *Gateway) {
		g.dispatcher = d
	}
}

// WithBreakers shares a circuit breaker registry.
func WithBreakers(r *circuitbreaker.Registry) Option {
	return func(g *Gateway) {
		g.breakers = r
	}
}

// WithLimiters shares a rate limiter registry.
func WithLimiters(r *ratelimit.Registry) Option {
	return func(g *Gateway) {
		g.limiters = r
	}
}

// WithGate enables the authorization gate on every route.
func WithGate(gate *auth.Gate) Option {
	return func(g *Gateway) {
		g.gate = gate
	}
}

// WithTracer starts a server span for every request.
func WithTracer(tracer *observability.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = tracer
	}
}

// WithMetrics records request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithClock replaces the clock used by response header producers.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// New creates a new Gateway and compiles cfg. The returned gateway already
// serves through Handler; Start only adds the listener.
func New(cfg *config.GatewayConfig, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	g := &Gateway{
		config:          cfg,
		logger:          observability.NopLogger(),
		shutdownTimeout: config.DefaultShutdownTimeout,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.dispatcher == nil {
		return nil, ErrNoDispatcher
	}
	if g.breakers == nil {
		g.breakers = circuitbreaker.NewRegistry(nil, g.logger.Zap())
	}
	if g.limiters == nil {
		g.limiters = ratelimit.NewRegistry(ratelimit.RegistryConfig{}, g.logger.Zap())
	}
	if d := cfg.Server.ShutdownTimeout.Duration(); d > 0 {
		g.shutdownTimeout = d
	}

	snap, err := g.build(cfg)
	if err != nil {
		return nil, err
	}

	g.pipeline = &pipeline{
		dispatcher: g.dispatcher,
		logger:     g.logger,
	}
	g.pipeline.current.Store(snap)

	g.state.Store(int32(StateStopped))
	g.setupEngine()

	return g, nil
}

// build compiles cfg into a snapshot using the shared registries.
func (g *Gateway) build(cfg *config.GatewayConfig) (*snapshot, error) {
	tracer := correlation.NewTracer(cfg.Correlation.Header, correlation.WithLogger(g.logger))
	fallbacks := NewFallbacks(cfg.Fallbacks)

	opts := []filter.FactoryOption{
		filter.WithFallback(fallbacks),
		filter.WithCorrelation(tracer),
		filter.WithRequestTimeout(cfg.Timeouts.Request.Duration()),
		filter.WithLogger(g.logger),
		filter.WithClock(g.now),
	}
	if g.gate != nil {
		opts = append(opts, filter.WithGate(g.gate))
	}

	factory := filter.NewFactory(g.breakers, g.limiters, opts...)
	return compile(cfg, factory, tracer, fallbacks)
}

// setupEngine builds the gin engine. Every request that no gin route
// claims runs through the pipeline.
func (g *Gateway) setupEngine() {
	gin.SetMode(gin.ReleaseMode)
	g.engine = gin.New()

	mws := []func(http.Handler) http.Handler{middleware.Recovery(g.logger)}
	if g.tracer != nil {
		mws = append(mws, observability.TracingMiddleware(g.tracer))
	}
	mws = append(mws, middleware.Logging(g.logger))
	if g.metrics != nil {
		mws = append(mws, middleware.Metrics(g.metrics))
	}
	mws = append(mws, middleware.BodyLimit(g.config.Server.MaxBodyBytes, g.logger))

	g.engine.NoRoute(gin.WrapH(middleware.Chain(g.pipeline, mws...)))
}

// Start starts the gateway.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrGatewayNotStopped
	}

	cfg := g.Config()
	g.logger.Info("starting gateway",
		observability.String("name", cfg.Name),
		observability.Int("routes", len(cfg.Routes)),
	)

	g.listener = NewListener("http", cfg.Server, g.engine, WithListenerLogger(g.logger))
	if err := g.listener.Start(ctx); err != nil {
		g.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to start listener: %w", err)
	}

	g.startTime = time.Now()
	g.state.Store(int32(StateRunning))

	g.logger.Info("gateway started",
		observability.String("name", cfg.Name),
		observability.String("address", g.listener.Address()),
	)

	return nil
}

// Stop stops the gateway gracefully.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrGatewayNotRunning
	}

	g.logger.Info("stopping gateway",
		observability.String("name", g.Config().Name),
	)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.shutdownTimeout)
		defer cancel()
	}

	err := g.listener.Stop(ctx)
	g.state.Store(int32(StateStopped))

	g.logger.Info("gateway stopped",
		observability.String("name", g.Config().Name),
	)

	return err
}

// Reload compiles cfg and swaps it in. On error the running configuration
// stays in place. Breakers and limiters whose names survive keep their
// state; the others are dropped.
func (g *Gateway) Reload(cfg *config.GatewayConfig) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("reloading gateway configuration",
		observability.String("name", cfg.Name),
	)

	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	snap, err := g.build(cfg)
	if err != nil {
		return fmt.Errorf("failed to compile configuration: %w", err)
	}

	g.pipeline.current.Store(snap)
	g.config = cfg

	g.breakers.Retain(snap.breakers)
	g.limiters.Retain(snap.limiters)

	g.logger.Info("gateway configuration reloaded",
		observability.String("name", cfg.Name),
		observability.Int("routes", snap.table.Len()),
	)

	return nil
}

// State returns the current gateway state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// IsRunning returns true if the gateway is running.
func (g *Gateway) IsRunning() bool {
	return g.State() == StateRunning
}

// Uptime returns the gateway uptime.
func (g *Gateway) Uptime() time.Duration {
	if g.startTime.IsZero() {
		return 0
	}
	return time.Since(g.startTime)
}

// Config returns the current configuration.
func (g *Gateway) Config() *config.GatewayConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.config
}

// Handler returns the gateway HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.engine
}

// Address returns the listener address, or "" before Start.
func (g *Gateway) Address() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Address()
}

// Routes describes the compiled routes in match order.
func (g *Gateway) Routes() []RouteInfo {
	return g.pipeline.current.Load().describe()
}

// Breakers returns the circuit breaker registry.
func (g *Gateway) Breakers() *circuitbreaker.Registry {
	return g.breakers
}
