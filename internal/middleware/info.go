package middleware

import (
	"context"
	"net/http"
)

// Info collects what the pipeline learned about a request. Outer
// middleware create it; the pipeline fills it in.
type Info struct {
	RouteID       string
	Service       string
	CorrelationID string
	Outcome       string
}

type infoKey struct{}

// InfoFromContext returns the request annotation, or nil outside the
// middleware chain.
func InfoFromContext(ctx context.Context) *Info {
	info, _ := ctx.Value(infoKey{}).(*Info)
	return info
}

// withInfo returns r carrying an Info, reusing one that is already there.
func withInfo(r *http.Request) (*http.Request, *Info) {
	if info := InfoFromContext(r.Context()); info != nil {
		return r, info
	}
	info := &Info{}
	return r.WithContext(context.WithValue(r.Context(), infoKey{}, info)), info
}

// Chain wraps h with mws. The first middleware is the outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
