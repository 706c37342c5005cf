package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/edgerouter/internal/auth"
	"github.com/vyrodovalexey/edgerouter/internal/circuitbreaker"
	"github.com/vyrodovalexey/edgerouter/internal/config"
	"github.com/vyrodovalexey/edgerouter/internal/discovery"
	"github.com/vyrodovalexey/edgerouter/internal/gateway"
	"github.com/vyrodovalexey/edgerouter/internal/health"
	"github.com/vyrodovalexey/edgerouter/internal/observability"
	"github.com/vyrodovalexey/edgerouter/internal/proxy"
	"github.com/vyrodovalexey/edgerouter/internal/ratelimit"
	"github.com/vyrodovalexey/edgerouter/internal/retry"
)

// Startup bounds for external dependencies.
const (
	dependencyStartupTimeout = 30 * time.Second
	dependencyMaxAttempts    = 5
)

// application holds all application components.
type application struct {
	gateway       *gateway.Gateway
	healthChecker *health.Checker
	metrics       *observability.Metrics
	reloadMetrics *reloadMetrics
	tracer        *observability.Tracer
	config        *config.GatewayConfig
	breakers      *circuitbreaker.Registry
	limiters      *ratelimit.Registry
	redisClient   redis.UniversalClient
	static        *discovery.StaticSource
	cache         *discovery.CachedSource
	validator     *auth.JWTValidator
	logger        observability.Logger
}

// initApplication initializes all application components.
func initApplication(cfg *config.GatewayConfig, logger observability.Logger) *application {
	metrics := observability.NewMetrics("gateway")
	metrics.SetBuildInfo(version, gitCommit, buildTime)
	tracer := initTracer(cfg, logger)
	healthChecker := health.NewChecker(version)

	app := &application{
		healthChecker: healthChecker,
		metrics:       metrics,
		reloadMetrics: newReloadMetrics(metrics),
		tracer:        tracer,
		config:        cfg,
		logger:        logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), dependencyStartupTimeout)
	defer cancel()

	resolver, err := app.initDiscovery(cfg)
	if err != nil {
		fatalWithSync(logger, "failed to initialize service discovery", observability.Error(err))
		return nil
	}

	if err := app.initRateLimitStore(ctx, cfg); err != nil {
		fatalWithSync(logger, "failed to connect rate limiter store", observability.Error(err))
		return nil
	}

	app.breakers = circuitbreaker.NewRegistry(nil, logger.Zap())

	gate, err := app.initGate(ctx, cfg)
	if err != nil {
		fatalWithSync(logger, "failed to initialize authorization", observability.Error(err))
		return nil
	}

	dispatcher := proxy.NewDispatcher(resolver, proxy.NewHTTPTransport(nil),
		proxy.WithCallTimeout(cfg.Timeouts.Call.Duration()),
		proxy.WithLogger(logger),
		proxy.WithTracer(tracer),
	)

	gwOpts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithDispatcher(dispatcher),
		gateway.WithBreakers(app.breakers),
		gateway.WithLimiters(app.limiters),
		gateway.WithTracer(tracer),
	}
	if cfg.Observability.Metrics.Enabled {
		gwOpts = append(gwOpts, gateway.WithMetrics(metrics))
	}
	if gate != nil {
		gwOpts = append(gwOpts, gateway.WithGate(gate))
	}

	gw, err := gateway.New(cfg, gwOpts...)
	if err != nil {
		fatalWithSync(logger, "failed to create gateway", observability.Error(err))
		return nil
	}
	app.gateway = gw

	app.registerHealthChecks()

	return app
}

// initDiscovery builds the resolver chain: source, cache, balancer.
func (app *application) initDiscovery(cfg *config.GatewayConfig) (*discovery.Resolver, error) {
	var source discovery.Source

	switch cfg.Discovery.Type {
	case config.DiscoveryConsul:
		c := cfg.Discovery.Consul
		consul, err := discovery.NewConsulSource(discovery.ConsulConfig{
			Address:    c.Address,
			Scheme:     c.Scheme,
			Datacenter: c.Datacenter,
			Token:      c.Token,
			Tag:        c.Tag,
		})
		if err != nil {
			return nil, err
		}
		app.healthChecker.RegisterDependency(
			health.PingHealthCheck("consul", health.DependencyTypeDiscovery, consul),
		)
		source = consul
	default:
		static, err := discovery.NewStaticSource(cfg.Discovery.Static)
		if err != nil {
			return nil, err
		}
		app.static = static
		source = static
	}

	app.cache = discovery.NewCachedSource(source, cfg.Discovery.CacheSize, cfg.Discovery.CacheTTL.Duration())

	app.logger.Info("service discovery initialized",
		observability.String("type", cfg.Discovery.Type),
		observability.Duration("cache_ttl", cfg.Discovery.CacheTTL.Duration()),
	)

	return discovery.NewResolver(app.cache, discovery.WithLogger(app.logger)), nil
}

// initRateLimitStore creates the limiter registry. A Redis store is
// pinged with backoff until it answers or the attempts run out.
func (app *application) initRateLimitStore(ctx context.Context, cfg *config.GatewayConfig) error {
	store := cfg.RateLimitStore
	regCfg := ratelimit.RegistryConfig{
		Prefix:          store.Redis.Prefix,
		BucketTTL:       store.BucketTTL.Duration(),
		CleanupInterval: store.CleanupInterval.Duration(),
	}

	if store.Type == config.RateLimitStoreRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     store.Redis.Address,
			Password: store.Redis.Password,
			DB:       store.Redis.DB,
		})

		policy := retry.DefaultPolicy().WithMaxAttempts(dependencyMaxAttempts)
		err := retry.Do(ctx, "redis", policy, app.logger.Zap(), func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("redis %s: %w", store.Redis.Address, err)
		}

		app.redisClient = client
		regCfg.Redis = client
		app.healthChecker.RegisterDependency(health.RedisHealthCheck("redis", client))

		app.logger.Info("rate limiter store connected",
			observability.String("address", store.Redis.Address),
			observability.String("prefix", store.Redis.Prefix),
		)
	}

	app.limiters = ratelimit.NewRegistry(regCfg, app.logger.Zap())
	return nil
}

// initGate returns nil when authorization is disabled.
func (app *application) initGate(ctx context.Context, cfg *config.GatewayConfig) (*auth.Gate, error) {
	if !cfg.Auth.Enabled {
		return nil, nil
	}

	j := cfg.Auth.JWT
	validator, err := auth.NewJWTValidator(ctx, auth.JWTConfig{
		JWKSURL:         j.JWKSURL,
		RefreshInterval: j.RefreshInterval.Duration(),
		Secret:          j.Secret,
		Issuer:          j.Issuer,
		Audience:        j.Audience,
		Algorithms:      j.Algorithms,
		Leeway:          j.Leeway.Duration(),
	})
	if err != nil {
		return nil, err
	}
	app.validator = validator

	gate := auth.NewGate(auth.GateConfig{
		Enabled:        true,
		ProtectedPaths: cfg.Auth.ProtectedPaths,
		OpenMethods:    cfg.Auth.OpenMethods,
	}, validator, auth.WithLogger(app.logger))

	app.logger.Info("authorization enabled",
		observability.Strings("protected_paths", cfg.Auth.ProtectedPaths),
		observability.Strings("open_methods", cfg.Auth.OpenMethods),
	)

	return gate, nil
}

func (app *application) registerHealthChecks() {
	app.healthChecker.RegisterDependency(
		health.BreakerHealthCheck("circuit_breakers", app.breakers.Stats),
	)
}

// close releases clients held by the application.
func (app *application) close() {
	if app.validator != nil {
		app.validator.Close()
	}
	if app.limiters != nil {
		if err := app.limiters.Close(); err != nil {
			app.logger.Error("failed to close rate limiters", observability.Error(err))
		}
	}
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("failed to close redis client", observability.Error(err))
		}
	}
}
