package main

import (
	"github.com/vyrodovalexey/edgerouter/internal/config"
	"github.com/vyrodovalexey/edgerouter/internal/observability"
)

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.GatewayConfig {
	logger.Info("starting edgerouter",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fatalWithSync(logger, "failed to load configuration", observability.Error(err))
		return nil
	}

	if err := config.ValidateConfig(cfg); err != nil {
		fatalWithSync(logger, "invalid configuration", observability.Error(err))
		return nil
	}

	logger.Info("configuration loaded",
		observability.String("name", cfg.Name),
		observability.String("address", cfg.Server.Address),
		observability.String("discovery", cfg.Discovery.Type),
		observability.String("rate_limit_store", cfg.RateLimitStore.Type),
		observability.Int("routes", len(cfg.Routes)),
		observability.Int("fallbacks", len(cfg.Fallbacks)),
		observability.Bool("auth", cfg.Auth.Enabled),
	)

	return cfg
}

// tracerConfig maps the tracing section onto the tracer.
func tracerConfig(cfg *config.GatewayConfig) observability.TracerConfig {
	t := cfg.Observability.Tracing
	return observability.TracerConfig{
		ServiceName:    t.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   t.Endpoint,
		SamplingRate:   t.SamplingRate,
		Enabled:        t.Enabled,
		Insecure:       t.Insecure,
	}
}

// initTracer initializes the tracer.
func initTracer(cfg *config.GatewayConfig, logger observability.Logger) *observability.Tracer {
	tracer, err := observability.NewTracer(tracerConfig(cfg))
	if err != nil {
		fatalWithSync(logger, "failed to initialize tracer", observability.Error(err))
		return nil
	}

	return tracer
}
