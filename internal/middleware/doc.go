// Package middleware provides the HTTP middleware wrapped around the
// gateway pipeline.
//
//   - Recovery: panic recovery with stack trace logging
//   - Logging: one structured access log line per request
//   - Metrics: request count, duration and in-flight gauge
//   - BodyLimit: early rejection of oversized request bodies
//
// The pipeline annotates the request with its route, correlation id and
// outcome through Info, so that the outer middleware can report them.
//
// # Usage
//
//	handler := middleware.Chain(pipeline,
//	    middleware.Recovery(logger),
//	    middleware.Logging(logger),
//	    middleware.Metrics(metrics),
//	    middleware.BodyLimit(maxBody, logger),
//	)
package middleware
