// Package filter compiles per-route filter declarations into chains and
// runs requests through them.
//
// A Chain has four stages:
//
//   - admission: the authorization gate, then rate limiters. A rejection
//     here never reaches the backend.
//   - pre: request mutations in declared order (path rewrite, request
//     headers), then correlation id propagation.
//   - dispatch: the backend call wrapped, from the inside out, by the retry
//     executor, the request timeout and the circuit breaker. A breaker
//     rejection or failure is answered by the route's fallback endpoint
//     when one is configured.
//   - post: response headers, rate limit headers and correlation echo. Post
//     filters run exactly once per request, whatever produced the
//     response.
//
// Errors that end the pipeline are turned into client responses by an
// ErrorRenderer; RenderError is the default.
package filter
