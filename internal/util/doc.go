// Package util provides shared types and helpers for the edge router.
//
// # Error Taxonomy
//
// Every failure the request pipeline can surface to a client is one of
// the typed errors in this package:
//
//   - RouteNotFoundError: no route matched the request
//   - UnauthorizedError: the authorization gate rejected the request
//   - RateLimitError: the caller's token bucket was empty
//   - DispatchError: the backend call failed (transport error or 5xx)
//   - CircuitOpenError: the route's breaker short-circuited the call
//   - FallbackError: the fallback handler itself failed
//
// Each type matches its sentinel with errors.Is, so callers can branch on
// the category without knowing the concrete type:
//
//	if errors.Is(err, util.ErrRateLimited) { ... }
//
// # Context Helpers
//
// Route and service identifiers are carried through the request context:
//
//	ctx = util.ContextWithRouteID(ctx, "loans")
//	routeID := util.RouteIDFromContext(ctx)
//
// # HTTP Utilities
//
// StatusCapturingResponseWriter records the status written by a handler
// so that middleware can log and measure it.
package util
