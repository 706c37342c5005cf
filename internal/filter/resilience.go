package filter

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/vyrodovalexey/edgerouter/internal/auth"
	"github.com/vyrodovalexey/edgerouter/internal/circuitbreaker"
	"github.com/vyrodovalexey/edgerouter/internal/observability"
	"github.com/vyrodovalexey/edgerouter/internal/proxy"
	"github.com/vyrodovalexey/edgerouter/internal/ratelimit"
	"github.com/vyrodovalexey/edgerouter/internal/retry"
	"github.com/vyrodovalexey/edgerouter/internal/util"
)

// FallbackInvoker serves a local fallback endpoint in-process.
type FallbackInvoker interface {
	Invoke(ctx context.Context, path string, ex *Exchange) (*proxy.Response, error)
}

// FallbackInvokerFunc adapts a function to FallbackInvoker.
type FallbackInvokerFunc func(ctx context.Context, path string, ex *Exchange) (*proxy.Response, error)

// Invoke implements FallbackInvoker.
func (f FallbackInvokerFunc) Invoke(ctx context.Context, path string, ex *Exchange) (*proxy.Response, error) {
	return f(ctx, path, ex)
}

// breakerDecorator runs dispatch through a breaker. When the breaker
// rejects the call or the call fails and a fallback path is configured,
// the fallback is invoked directly: it is neither retried nor recorded by
// the breaker.
func breakerDecorator(cb *circuitbreaker.CircuitBreaker, fallbackPath string, fallback FallbackInvoker, logger observability.Logger) Decorator {
	return func(next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, ex *Exchange) (*proxy.Response, error) {
			var resp *proxy.Response
			err := cb.Execute(ctx, func(ctx context.Context) error {
				r, callErr := next(ctx, ex)
				resp = r
				return callErr
			})
			if err == nil {
				return resp, nil
			}
			if fallbackPath == "" || fallback == nil {
				return nil, err
			}

			logger.WithContext(ctx).Info("serving fallback",
				observability.String("route", ex.RouteID),
				observability.String("breaker", cb.Name()),
				observability.String("state", cb.State().String()),
				observability.String("fallback", fallbackPath),
				observability.Error(err),
			)

			fbResp, fbErr := fallback.Invoke(ctx, fallbackPath, ex)
			if fbErr != nil {
				ex.Outcome = OutcomeFailed
				return nil, util.NewFallbackError(fallbackPath, errors.Join(fbErr, err))
			}
			ex.Outcome = OutcomeFallback
			return fbResp, nil
		}
	}
}

// timeoutDecorator bounds everything it wraps, backoff waits included.
// Expiry is reported as a dispatch failure caused by
// context.DeadlineExceeded.
func timeoutDecorator(timeout time.Duration) Decorator {
	return func(next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, ex *Exchange) (*proxy.Response, error) {
			tctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			resp, err := next(tctx, ex)
			if err != nil && tctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				if !errors.Is(err, context.DeadlineExceeded) {
					err = errors.Join(err, context.DeadlineExceeded)
				}
				var de *util.DispatchError
				if !errors.As(err, &de) {
					err = util.NewDispatchError(ex.Service, "", err)
				}
			}
			return resp, err
		}
	}
}

// retryDecorator re-executes dispatch under a retry executor.
func retryDecorator(exec *retry.Executor) Decorator {
	return func(next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, ex *Exchange) (*proxy.Response, error) {
			var resp *proxy.Response
			err := exec.Execute(ctx, ex.Request.Method, func(ctx context.Context, _ int) error {
				r, callErr := next(ctx, ex)
				resp = r
				return callErr
			})
			if err != nil {
				return nil, err
			}
			return resp, nil
		}
	}
}

// rateLimitFilter admits requests through a token bucket. A limiter error
// admits the request.
type rateLimitFilter struct {
	limiter ratelimit.Limiter
	keyFunc ratelimit.KeyFunc
	cost    int
	logger  observability.Logger
}

func (f *rateLimitFilter) Name() string { return string(KindRateLimit) }

func (f *rateLimitFilter) Pre(ctx context.Context, ex *Exchange) error {
	key := f.keyFunc(ex.Inbound)
	res, err := f.limiter.Admit(ctx, key, f.cost)
	if err != nil {
		f.logger.WithContext(ctx).Warn("rate limiter unavailable, admitting request",
			observability.String("route", ex.RouteID),
			observability.Error(err),
		)
		return nil
	}

	ex.RateLimit = res
	if !res.Allowed {
		ex.Outcome = OutcomeRejected
		return util.NewRateLimitError(key, res.Limit, res.RetryAfter)
	}
	return nil
}

func (f *rateLimitFilter) Post(_ context.Context, ex *Exchange) {
	if ex.RateLimit == nil {
		return
	}
	cfg := f.limiter.Config()
	h := ex.Response.Header
	h.Set("X-RateLimit-Remaining", strconv.Itoa(ex.RateLimit.Remaining))
	h.Set("X-RateLimit-Burst-Capacity", strconv.Itoa(cfg.Capacity))
	h.Set("X-RateLimit-Replenish-Rate", strconv.FormatFloat(cfg.RefillPerSecond, 'f', -1, 64))
	h.Set("X-RateLimit-Requested-Tokens", strconv.Itoa(f.cost))
}

// authFilter applies the authorization gate to the inbound request.
type authFilter struct {
	gate *auth.Gate
}

func (f *authFilter) Name() string { return "authorization" }

func (f *authFilter) Pre(ctx context.Context, ex *Exchange) error {
	_, err := f.gate.Authorize(ctx, ex.Inbound.Method, ex.Inbound.URL.Path, ex.Inbound.Header.Get("Authorization"))
	if err != nil {
		ex.Outcome = OutcomeUnauthorized
		return err
	}
	return nil
}

// retryAfterSeconds rounds d up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
