package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/edgerouter/internal/config"
	"github.com/vyrodovalexey/edgerouter/internal/observability"
)

// reloadMetrics holds Prometheus metrics for configuration reloads. The
// collectors live in the gateway registry so they appear on /metrics.
type reloadMetrics struct {
	configReloadTotal       *prometheus.CounterVec
	configReloadDuration    prometheus.Histogram
	configReloadLastSuccess prometheus.Gauge
	configWatcherStatus     prometheus.Gauge
}

// newReloadMetrics creates reload metrics and registers them with m.
func newReloadMetrics(m *observability.Metrics) *reloadMetrics {
	rm := &reloadMetrics{
		configReloadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "config_reload_total",
				Help:      "Total number of configuration reloads",
			},
			[]string{"result"},
		),
		configReloadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Name:      "config_reload_duration_seconds",
				Help:      "Duration of configuration reload operations",
				Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1},
			},
		),
		configReloadLastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Name:      "config_reload_last_success_timestamp",
				Help:      "Timestamp of last successful config reload",
			},
		),
		configWatcherStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Name:      "config_watcher_running",
				Help:      "Whether the config file watcher is running (1=running, 0=stopped)",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		rm.configReloadTotal,
		rm.configReloadDuration,
		rm.configReloadLastSuccess,
		rm.configWatcherStatus,
	} {
		_ = m.Registry().Register(c)
	}

	return rm
}

func (rm *reloadMetrics) observe(start time.Time, err error) {
	rm.configReloadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		rm.configReloadTotal.WithLabelValues("failure").Inc()
		return
	}
	rm.configReloadTotal.WithLabelValues("success").Inc()
	rm.configReloadLastSuccess.SetToCurrentTime()
}

// reload applies a validated configuration. The static discovery table
// is updated before the routes that may name new services.
func (app *application) reload(cfg *config.GatewayConfig) (err error) {
	start := time.Now()
	defer func() { app.reloadMetrics.observe(start, err) }()

	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	if app.static != nil && cfg.Discovery.Type == config.DiscoveryStatic {
		if err := app.static.Update(cfg.Discovery.Static); err != nil {
			return err
		}
		app.cache.Purge()
	} else if cfg.Discovery.Type != app.config.Discovery.Type {
		app.logger.Warn("discovery type change requires a restart",
			observability.String("current", app.config.Discovery.Type),
			observability.String("requested", cfg.Discovery.Type),
		)
	}

	if err := app.gateway.Reload(cfg); err != nil {
		return err
	}
	app.config = cfg

	return nil
}

// startConfigWatcher starts the configuration watcher. A watcher that
// fails to start is logged and the gateway keeps running on the initial
// configuration.
func startConfigWatcher(
	ctx context.Context,
	app *application,
	configPath string,
	logger observability.Logger,
) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.GatewayConfig) error {
		logger.Info("configuration changed, reloading")
		return app.reload(newCfg)
	}, config.WithLogger(logger))
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx, app.config); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		return nil
	}

	app.reloadMetrics.configWatcherStatus.Set(1)
	return watcher
}
