package auth

import (
	"context"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/vyrodovalexey/edgerouter/internal/observability"
	"github.com/vyrodovalexey/edgerouter/internal/util"
)

// TokenValidator validates a bearer token.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// TokenValidatorFunc adapts a function to TokenValidator.
type TokenValidatorFunc func(ctx context.Context, token string) (*Claims, error)

// Validate implements TokenValidator.
func (f TokenValidatorFunc) Validate(ctx context.Context, token string) (*Claims, error) {
	return f(ctx, token)
}

// Default gate settings.
var (
	DefaultOpenMethods    = []string{"GET"}
	DefaultProtectedPaths = []string{"/sbdb/accounts/**", "/sbdb/cards/**", "/sbdb/loans/**"}
)

// GateConfig configures a Gate.
type GateConfig struct {
	// Enabled turns the gate on. A disabled gate admits everything.
	Enabled bool

	// ProtectedPaths are doublestar patterns. Empty means
	// DefaultProtectedPaths.
	ProtectedPaths []string

	// OpenMethods never need a credential. Empty means DefaultOpenMethods.
	OpenMethods []string
}

// Gate decides whether a request may proceed.
type Gate struct {
	enabled     bool
	protected   []string
	openMethods map[string]struct{}
	validator   TokenValidator
	logger      observability.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the gate logger.
func WithLogger(logger observability.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate creates a Gate. validator may be nil when the gate is disabled;
// an enabled gate without a validator rejects every protected request.
func NewGate(cfg GateConfig, validator TokenValidator, opts ...GateOption) *Gate {
	protected := cfg.ProtectedPaths
	if len(protected) == 0 {
		protected = DefaultProtectedPaths
	}
	methods := cfg.OpenMethods
	if len(methods) == 0 {
		methods = DefaultOpenMethods
	}

	g := &Gate{
		enabled:     cfg.Enabled,
		protected:   append([]string(nil), protected...),
		openMethods: make(map[string]struct{}, len(methods)),
		validator:   validator,
		logger:      observability.NopLogger(),
	}
	for _, m := range methods {
		g.openMethods[strings.ToUpper(m)] = struct{}{}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequiresToken reports whether a request with method and path needs a
// bearer token.
func (g *Gate) RequiresToken(method, path string) bool {
	if !g.enabled {
		return false
	}
	if _, open := g.openMethods[strings.ToUpper(method)]; open {
		return false
	}
	return g.isProtected(path)
}

func (g *Gate) isProtected(path string) bool {
	for _, pattern := range g.protected {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
		// "/x/**" also protects "/x" itself.
		if base, found := strings.CutSuffix(pattern, "/**"); found && path == base {
			return true
		}
	}
	return false
}

// Authorize admits or rejects a request. Admitted requests that presented
// no token get nil claims. Every rejection is a *util.UnauthorizedError.
func (g *Gate) Authorize(ctx context.Context, method, path, authorization string) (*Claims, error) {
	if !g.RequiresToken(method, path) {
		return nil, nil
	}

	start := time.Now()
	claims, err := g.validate(ctx, authorization)
	if err != nil {
		reason := reasonFor(err)
		recordDecision(resultDenied, reason, time.Since(start))
		g.logger.WithContext(ctx).Debug("request rejected by authorization gate",
			observability.String("method", method),
			observability.String("path", path),
			observability.String("reason", reason),
			observability.Error(err),
		)
		return nil, util.NewUnauthorizedError(path, reason, err)
	}

	recordDecision(resultAllowed, "", time.Since(start))
	return claims, nil
}

func (g *Gate) validate(ctx context.Context, authorization string) (*Claims, error) {
	token, err := ExtractBearer(authorization)
	if err != nil {
		return nil, err
	}
	if g.validator == nil {
		return nil, ErrNoValidator
	}
	return g.validator.Validate(ctx, token)
}
