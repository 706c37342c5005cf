package proxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/edgerouter/internal/observability"
	"github.com/vyrodovalexey/edgerouter/internal/util"
)

// Resolver maps a logical service name to an instance base URL.
type Resolver interface {
	Resolve(ctx context.Context, service string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, service string) (string, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, service string) (string, error) {
	return f(ctx, service)
}

// Dispatcher is the boundary between the pipeline and backends.
type Dispatcher struct {
	resolver    Resolver
	transport   Transport
	callTimeout time.Duration
	logger      observability.Logger
	tracer      *observability.Tracer
}

// DispatcherOption is a functional option for configuring the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger for the dispatcher.
func WithLogger(logger observability.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithCallTimeout bounds a single backend call.
func WithCallTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.callTimeout = timeout
	}
}

// WithTracer starts a client span for every call.
func WithTracer(tracer *observability.Tracer) DispatcherOption {
	return func(d *Dispatcher) {
		d.tracer = tracer
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(resolver Resolver, transport Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		resolver:  resolver,
		transport: transport,
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends a copy of req to an instance of service. Backend answers
// below 500 are returned as responses; everything else is a
// *util.DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, service string, req *Request) (*Response, error) {
	start := time.Now()
	out := req.Clone()

	if d.tracer != nil {
		var span trace.Span
		ctx, span = d.tracer.StartSpan(ctx, "dispatch "+service,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("http.request.method", out.Method),
				attribute.String("url.path", out.Path),
				attribute.String("peer.service", service),
			),
		)
		defer span.End()
		observability.InjectTraceContext(ctx, out.Header)

		resp, err := d.dispatch(ctx, service, out, start)
		observability.RecordError(span, err)
		if resp != nil {
			span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		}
		return resp, err
	}

	return d.dispatch(ctx, service, out, start)
}

func (d *Dispatcher) dispatch(ctx context.Context, service string, req *Request, start time.Time) (*Response, error) {
	address, err := d.resolver.Resolve(ctx, service)
	if err != nil {
		recordBackendError(service, "service_unavailable")
		d.logger.WithContext(ctx).Warn("service resolution failed",
			observability.String("service", service),
			observability.Error(err),
		)
		if !errors.Is(err, util.ErrServiceUnavailable) {
			err = util.NewServiceUnavailableError(service, err)
		}
		return nil, util.NewDispatchError(service, "", err)
	}

	resp, err := d.transport.Send(ctx, address, req, d.callTimeout)
	recordBackendDuration(service, time.Since(start))
	if err != nil {
		recordBackendError(service, classifyTransportError(err))
		d.logger.WithContext(ctx).Debug("backend call failed",
			observability.String("service", service),
			observability.String("address", address),
			observability.Error(err),
		)
		return nil, util.NewDispatchError(service, address, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		recordBackendError(service, "server_error")
		return nil, util.NewDispatchStatusError(service, address, resp.StatusCode, resp.Header, resp.Body)
	}

	return resp, nil
}

func classifyTransportError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrResponseTooLarge):
		return "response_too_large"
	default:
		return "connection"
	}
}
