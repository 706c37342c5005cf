// Package gateway wires the request pipeline into an HTTP server.
//
// A Gateway owns a gin engine whose catch-all handler runs the pipeline:
// the correlation id is ensured first, then the route table is consulted,
// then the route's filter chain dispatches the request to its backend
// service. Routes, filter chains and fallback endpoints are compiled into
// an immutable snapshot; Reload compiles a new one and swaps it in while
// in-flight requests finish on the old one.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg,
//	    gateway.WithLogger(logger),
//	    gateway.WithDispatcher(dispatcher),
//	    gateway.WithBreakers(breakers),
//	    gateway.WithLimiters(limiters),
//	)
//	if err := gw.Start(ctx); err != nil { ... }
//	defer gw.Stop(ctx)
//
// An admin engine built by NewAdminHandler serves health probes, metrics
// and breaker state on a separate address.
package gateway
