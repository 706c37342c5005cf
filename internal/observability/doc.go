// Package observability provides logging, metrics, and tracing
// for the edge router.
//
// # Logging
//
// The Logger interface provides structured logging backed by zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.WithContext(ctx).Info("request dispatched",
//	    observability.String("route", "loans"),
//	    observability.Int("status", 200),
//	)
//
// WithContext adds the correlation id and the active trace/span ids.
//
// # Metrics
//
// Metrics owns a dedicated Prometheus registry for request metrics.
// Handler serves it together with the collectors that the resilience
// packages register on the default registry.
//
// # Tracing
//
// Tracer wraps an OpenTelemetry tracer provider with OTLP gRPC export.
// When tracing is disabled a no-op tracer is returned so callers never
// need nil checks.
package observability
