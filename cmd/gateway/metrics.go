package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/vyrodovalexey/edgerouter/internal/gateway"
	"github.com/vyrodovalexey/edgerouter/internal/observability"
)

// createAdminServer creates the admin HTTP server: probes, metrics and
// the route and breaker views.
func createAdminServer(app *application, logger observability.Logger) *http.Server {
	obs := app.config.Observability.Metrics

	adminCfg := gateway.AdminConfig{Checker: app.healthChecker}
	if obs.Enabled {
		adminCfg.Metrics = app.metrics.Handler()
		adminCfg.MetricsPath = obs.Path
	}

	logger.Info("starting admin server",
		observability.String("address", obs.Address),
		observability.String("metrics_path", obs.Path),
		observability.Bool("metrics", obs.Enabled),
	)

	return &http.Server{
		Addr:              obs.Address,
		Handler:           gateway.NewAdminHandler(app.gateway, adminCfg),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// runAdminServer runs the admin server until it is shut down.
func runAdminServer(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
