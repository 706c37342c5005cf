// Package proxy sends requests to backend services.
//
// A Dispatcher resolves a logical service name to an instance address
// through a Resolver and sends the request through a Transport. The
// gateway pipeline builds one Request per inbound call; each dispatch
// attempt works on its own copy, so retries and fallbacks never see
// headers added by an earlier attempt.
//
// # Failure mapping
//
// A resolver with no instance, a transport error and a backend 5xx answer
// are all reported as *util.DispatchError. For a 5xx answer the error
// carries the backend status, headers and body so that the client can be
// given the backend's own answer. Backend 4xx answers are successful
// dispatches.
//
// # Usage
//
//	d := proxy.NewDispatcher(resolver, proxy.NewHTTPTransport(nil),
//	    proxy.WithCallTimeout(5*time.Second),
//	    proxy.WithLogger(logger),
//	)
//	resp, err := d.Dispatch(ctx, "ACCOUNTS", req)
package proxy
