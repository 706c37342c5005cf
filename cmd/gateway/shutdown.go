package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/edgerouter/internal/config"
	"github.com/vyrodovalexey/edgerouter/internal/observability"
)

// drainDelay gives load balancers time to see the failing readiness
// probe before listeners close.
var drainDelay = 5 * time.Second

// runGateway starts the gateway, the admin server and the config
// watcher, then blocks until a signal arrives or the admin server fails.
func runGateway(app *application, flags cliFlags, logger observability.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.gateway.Start(ctx); err != nil {
		fatalWithSync(logger, "failed to start gateway", observability.Error(err))
		return
	}

	admin := createAdminServer(app, logger)

	var watcher *config.Watcher
	if flags.watch {
		watcher = startConfigWatcher(ctx, app, flags.configPath, logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runAdminServer(admin)
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info("received shutdown signal")
		}
		shutdown(app, admin, watcher, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("admin server error", observability.Error(err))
	}

	logger.Info("gateway stopped")
}

// shutdown drains and stops every component in reverse start order.
func shutdown(app *application, admin *http.Server, watcher *config.Watcher, logger observability.Logger) {
	app.healthChecker.SetDraining(true)
	if drainDelay > 0 {
		logger.Info("draining", observability.Duration("delay", drainDelay))
		time.Sleep(drainDelay)
	}

	timeout := app.config.Server.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
		app.reloadMetrics.configWatcherStatus.Set(0)
	}

	if err := app.gateway.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop gateway gracefully", observability.Error(err))
	}

	logger.Info("stopping admin server")
	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop admin server gracefully", observability.Error(err))
	}

	app.close()

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}
}
