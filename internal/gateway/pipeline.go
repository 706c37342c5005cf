package gateway

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/edgerouter/internal/correlation"
	"github.com/vyrodovalexey/edgerouter/internal/filter"
	"github.com/vyrodovalexey/edgerouter/internal/middleware"
	"github.com/vyrodovalexey/edgerouter/internal/observability"
	"github.com/vyrodovalexey/edgerouter/internal/proxy"
	"github.com/vyrodovalexey/edgerouter/internal/util"
)

// Dispatcher sends a request to an instance of a backend service.
type Dispatcher interface {
	Dispatch(ctx context.Context, service string, req *proxy.Request) (*proxy.Response, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, service string, req *proxy.Request) (*proxy.Response, error)

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, service string, req *proxy.Request) (*proxy.Response, error) {
	return f(ctx, service, req)
}

// pipeline is the catch-all handler: correlation, route matching, then the
// route's filter chain around the dispatcher.
type pipeline struct {
	current    atomic.Pointer[snapshot]
	dispatcher Dispatcher
	logger     observability.Logger
}

func (p *pipeline) dispatch(ctx context.Context, ex *filter.Exchange) (*proxy.Response, error) {
	return p.dispatcher.Dispatch(ctx, ex.Service, ex.Request)
}

// ServeHTTP implements http.Handler.
func (p *pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := util.StartTimeFromContext(r.Context())
	if start.IsZero() {
		start = time.Now()
	}

	// In-flight requests keep the snapshot they started with.
	snap := p.current.Load()

	cc := snap.tracer.Ensure(r.Header)
	ctx := correlation.WithContext(r.Context(), cc)
	info := middleware.InfoFromContext(ctx)
	if info == nil {
		info = &middleware.Info{}
	}
	info.CorrelationID = cc.ID

	match, err := snap.table.Match(r.Method, r.URL.Path)
	if err != nil {
		if p.serveFallback(w, r, snap, cc, info) {
			return
		}
		ex := filter.NewExchange(r, nil, cc, start)
		info.Outcome = string(filter.OutcomeNotFound)
		p.write(ctx, w, snap, filter.RenderError(ctx, ex, err), cc)
		return
	}

	route := match.Route
	info.RouteID = route.ID
	info.Service = route.Service
	ctx = util.ContextWithRouteID(ctx, route.ID)
	ctx = util.ContextWithService(ctx, route.Service)
	ctx = util.ContextWithCaptures(ctx, match.Captures)

	req, err := proxy.NewRequest(r, snap.maxBody)
	if err != nil {
		info.Outcome = string(filter.OutcomeRejected)
		resp := filter.JSONError(http.StatusRequestEntityTooLarge, err.Error(), r.URL.Path, cc.ID)
		p.write(ctx, w, snap, resp, cc)
		return
	}

	ex := filter.NewExchange(r, req, cc, start)
	ex.RouteID = route.ID
	ex.Service = route.Service
	ex.Captures = match.Captures

	chain := snap.chains[route.ID]
	if err := chain.Run(ctx, ex, p.dispatch); err != nil {
		p.logger.WithContext(ctx).Debug("request ended with error",
			observability.String("route", route.ID),
			observability.String("outcome", string(ex.Outcome)),
			observability.Error(err),
		)
	}
	info.Outcome = string(ex.Outcome)

	p.write(ctx, w, snap, ex.Response, cc)
}

// serveFallback answers GET and HEAD on a fallback endpoint that no route
// claimed.
func (p *pipeline) serveFallback(w http.ResponseWriter, r *http.Request, snap *snapshot, cc correlation.Context, info *middleware.Info) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	resp, ok := snap.fallbacks.Lookup(r.URL.Path)
	if !ok {
		return false
	}
	info.Outcome = string(filter.OutcomeFallback)
	if r.Method == http.MethodHead {
		resp.Body = nil
	}
	p.write(r.Context(), w, snap, resp, cc)
	return true
}

func (p *pipeline) write(ctx context.Context, w http.ResponseWriter, snap *snapshot, resp *proxy.Response, cc correlation.Context) {
	snap.tracer.Echo(resp.Header, cc)
	if err := resp.Write(w); err != nil {
		p.logger.WithContext(ctx).Debug("failed to write response",
			observability.Error(err),
		)
	}
}
