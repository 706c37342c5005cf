// Package correlation assigns every request a correlation id and carries it
// to backends and back to the client.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/edgerouter/internal/observability"
)

// DefaultHeader is the header carrying the correlation id.
const DefaultHeader = "sbdb-correlation-id"

// Origin tells whether the id came with the request or was generated.
type Origin int

const (
	// InboundProvided means the client sent the id.
	InboundProvided Origin = iota
	// Generated means the gateway created the id.
	Generated
)

// String returns the string representation of the origin.
func (o Origin) String() string {
	if o == Generated {
		return "generated"
	}
	return "inbound"
}

// Context is the correlation state of one request. It never changes once
// created.
type Context struct {
	ID     string
	Origin Origin
}

// Tracer ensures, propagates and echoes correlation ids.
type Tracer struct {
	header   string
	generate func() string
	logger   observability.Logger
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithGenerator replaces the id generator.
func WithGenerator(fn func() string) Option {
	return func(t *Tracer) {
		t.generate = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(t *Tracer) {
		t.logger = logger
	}
}

// NewTracer creates a Tracer for header. An empty header means
// DefaultHeader.
func NewTracer(header string, opts ...Option) *Tracer {
	if header == "" {
		header = DefaultHeader
	}
	t := &Tracer{
		header:   http.CanonicalHeaderKey(header),
		generate: func() string { return uuid.New().String() },
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Header returns the canonical header name.
func (t *Tracer) Header() string {
	return t.header
}

// Ensure returns the id found in inbound, or generates one when the header
// is absent or blank.
func (t *Tracer) Ensure(inbound http.Header) Context {
	if id := strings.TrimSpace(inbound.Get(t.header)); id != "" {
		t.logger.Debug("correlation id found in inbound request",
			observability.String("correlation_id", id),
		)
		return Context{ID: id, Origin: InboundProvided}
	}

	id := t.generate()
	t.logger.Debug("correlation id generated",
		observability.String("correlation_id", id),
	)
	return Context{ID: id, Origin: Generated}
}

// Propagate writes the id onto an outbound request header.
func (t *Tracer) Propagate(outbound http.Header, c Context) {
	if c.ID == "" {
		return
	}
	outbound.Set(t.header, c.ID)
}

// Echo sets the id on a response header unless one is already present.
func (t *Tracer) Echo(response http.Header, c Context) {
	if c.ID == "" || response.Get(t.header) != "" {
		return
	}
	response.Set(t.header, c.ID)
}

type contextKey struct{}

// WithContext stores c in ctx and registers its id for logging.
func WithContext(ctx context.Context, c Context) context.Context {
	ctx = context.WithValue(ctx, contextKey{}, c)
	return observability.ContextWithCorrelationID(ctx, c.ID)
}

// FromContext returns the correlation state stored in ctx.
func FromContext(ctx context.Context) (Context, bool) {
	c, ok := ctx.Value(contextKey{}).(Context)
	return c, ok
}

// IDFromContext returns the correlation id stored in ctx, or "".
func IDFromContext(ctx context.Context) string {
	c, _ := FromContext(ctx)
	return c.ID
}
