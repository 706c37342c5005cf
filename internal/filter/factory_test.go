package filter

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/edgerouter/internal/auth"
	"github.com/vyrodovalexey/edgerouter/internal/circuitbreaker"
	"github.com/vyrodovalexey/edgerouter/internal/correlation"
	"github.com/vyrodovalexey/edgerouter/internal/proxy"
	"github.com/vyrodovalexey/edgerouter/internal/ratelimit"
	"github.com/vyrodovalexey/edgerouter/internal/retry"
	"github.com/vyrodovalexey/edgerouter/internal/util"
)

const supportText = "An error occured. Please try after some time or contact support team!"

func newTestFactory(t *testing.T, opts ...FactoryOption) *Factory {
	t.Helper()

	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(), zap.NewNop())
	limiters := ratelimit.NewRegistry(ratelimit.RegistryConfig{}, zap.NewNop())
	t.Cleanup(func() { _ = limiters.Close() })

	fallback := FallbackInvokerFunc(func(_ context.Context, path string, _ *Exchange) (*proxy.Response, error) {
		if path != "/contactSupport" {
			return nil, errors.New("unknown fallback " + path)
		}
		return proxy.NewResponse(http.StatusOK, "text/plain", []byte(supportText)), nil
	})

	base := []FactoryOption{WithFallback(fallback)}
	return NewFactory(breakers, limiters, append(base, opts...)...)
}

func failingDispatch(calls *atomic.Int32) DispatchFunc {
	return func(_ context.Context, _ *Exchange) (*proxy.Response, error) {
		calls.Add(1)
		return nil, util.NewDispatchError("TEST", "http://backend", errors.New("connection refused"))
	}
}

func TestFactory_Build_RejectsInvalidSpecs(t *testing.T) {
	t.Parallel()

	f := newTestFactory(t)

	_, err := f.Build("r", []Spec{RewritePath("(", "/")})
	assert.Error(t, err)

	_, err = f.Build("r", []Spec{Retry(RetrySpec{}), Retry(RetrySpec{})})
	assert.Error(t, err)

	_, err = f.Build("r", []Spec{CircuitBreaker(CircuitBreakerSpec{}), CircuitBreaker(CircuitBreakerSpec{})})
	assert.Error(t, err)

	_, err = f.Build("r", []Spec{{Kind: "bogus"}})
	assert.Error(t, err)
}

func TestFactory_RewriteLoansPath(t *testing.T) {
	t.Parallel()

	f := newTestFactory(t)
	c, err := f.Build("loans", []Spec{
		RewritePath(`/sbdb/loans/(?P<segment>.*)`, "/${segment}"),
		AddResponseHeader("X-Response-Time", ProducerTimestamp, ""),
	})
	require.NoError(t, err)

	ex := newTestExchange(t, http.MethodGet, "/sbdb/loans/accounts/55", nil)
	var calls atomic.Int32
	require.NoError(t, c.Run(context.Background(), ex, okDispatch(&calls)))

	assert.Equal(t, "/accounts/55", ex.Request.Path)
	assert.Equal(t, "/accounts/55", string(ex.Response.Body))
	_, perr := time.Parse(time.RFC3339Nano, ex.Response.Header.Get("X-Response-Time"))
	assert.NoError(t, perr)
}

func TestFactory_BreakerServesFallbackWithoutDispatch(t *testing.T) {
	t.Parallel()

	f := newTestFactory(t)
	c, err := f.Build("accounts", []Spec{CircuitBreaker(CircuitBreakerSpec{
		Name:                "accountsCircuitBreaker",
		FallbackPath:        "/contactSupport",
		ConsecutiveFailures: 2,
		WindowSize:          10,
		MinRequests:         10,
		Wait:                50 * time.Millisecond,
	})})
	require.NoError(t, err)

	var calls atomic.Int32
	run := func(dispatch DispatchFunc) *Exchange {
		ex := newTestExchange(t, http.MethodGet, "/sbdb/accounts/api/fetch", nil)
		require.NoError(t, c.Run(context.Background(), ex, dispatch))
		return ex
	}

	// Failures are answered by the fallback while they open the circuit.
	for i := 0; i < 2; i++ {
		ex := run(failingDispatch(&calls))
		assert.Equal(t, OutcomeFallback, ex.Outcome)
		assert.Equal(t, supportText, string(ex.Response.Body))
	}
	assert.Equal(t, int32(2), calls.Load())

	cb := f.breakers.Get("accountsCircuitBreaker")
	require.NotNil(t, cb)
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())

	// Open: the backend is not called.
	for i := 0; i < 5; i++ {
		ex := run(failingDispatch(&calls))
		assert.Equal(t, OutcomeFallback, ex.Outcome)
		assert.Equal(t, http.StatusOK, ex.Response.StatusCode)
	}
	assert.Equal(t, int32(2), calls.Load())

	time.Sleep(60 * time.Millisecond)

	// After the wait exactly one trial reaches the backend.
	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := func(_ context.Context, ex *Exchange) (*proxy.Response, error) {
		calls.Add(1)
		close(entered)
		<-release
		return proxy.NewResponse(http.StatusOK, "text/plain", []byte("ok")), nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var trial *Exchange
	go func() {
		defer wg.Done()
		ex := newTestExchange(t, http.MethodGet, "/sbdb/accounts/api/fetch", nil)
		_ = c.Run(context.Background(), ex, blocking)
		trial = ex
	}()
	<-entered

	for i := 0; i < 3; i++ {
		ex := run(failingDispatch(&calls))
		assert.Equal(t, OutcomeFallback, ex.Outcome)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, OutcomeDispatched, trial.Outcome)
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
}

func TestFactory_BreakerWithoutFallback(t *testing.T) {
	t.Parallel()

	f := newTestFactory(t)
	c, err := f.Build("nofallback", []Spec{CircuitBreaker(CircuitBreakerSpec{
		ConsecutiveFailures: 1,
		WindowSize:          10,
		MinRequests:         10,
		Wait:                time.Minute,
	})})
	require.NoError(t, err)

	var calls atomic.Int32
	ex := newTestExchange(t, http.MethodGet, "/x", nil)
	require.Error(t, c.Run(context.Background(), ex, failingDispatch(&calls)))
	assert.Equal(t, http.StatusBadGateway, ex.Response.StatusCode)

	ex = newTestExchange(t, http.MethodGet, "/x", nil)
	err = c.Run(context.Background(), ex, failingDispatch(&calls))
	assert.ErrorIs(t, err, util.ErrCircuitOpen)
	assert.Equal(t, http.StatusServiceUnavailable, ex.Response.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFactory_FallbackFailure(t *testing.T) {
	t.Parallel()

	f := newTestFactory(t)
	c, err := f.Build("badfallback", []Spec{CircuitBreaker(CircuitBreakerSpec{FallbackPath: "/missing"})})
	require.NoError(t, err)

	var calls atomic.Int32
	ex := newTestExchange(t, http.MethodGet, "/x", nil)
	err = c.Run(context.Background(), ex, failingDispatch(&calls))
	assert.ErrorIs(t, err, util.ErrFallbackFailure)
	assert.Equal(t, OutcomeFailed, ex.Outcome)
	assert.Equal(t, http.StatusServiceUnavailable, ex.Response.StatusCode)
}

func TestFactory_RetryOnlyGet(t *testing.T) {
	t.Parallel()

	f := newTestFactory(t)
	c, err := f.Build("loans", []Spec{Retry(RetrySpec{
		MaxAttempts: 4,
		Methods:     []string{http.MethodGet},
		Initial:     time.Millisecond,
		Max:         2 * time.Millisecond,
		Multiplier:  2,
	})})
	require.NoError(t, err)

	tests := []struct {
		method    string
		wantCalls int32
	}{
		{method: http.MethodGet, wantCalls: 4},
		{method: http.MethodPost, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			ex := newTestExchange(t, tt.method, "/sbdb/loans/api/fetch", nil)
			err := c.Run(context.Background(), ex, failingDispatch(&calls))

			require.Error(t, err)
			assert.Equal(t, tt.wantCalls, calls.Load())

			var ae *retry.AttemptsError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, int(tt.wantCalls), ae.Attempts)
			assert.ErrorIs(t, err, util.ErrDispatchFailure)
			assert.Equal(t, http.StatusBadGateway, ex.Response.StatusCode)
		})
	}
}

func TestFactory_CorrelationPreservedAcrossRetries(t *testing.T) {
	t.Parallel()

	tracer := correlation.NewTracer(correlation.DefaultHeader)
	f := newTestFactory(t, WithCorrelation(tracer))
	c, err := f.Build("loans", []Spec{Retry(RetrySpec{
		MaxAttempts: 3,
		Initial:     time.Millisecond,
		Max:         time.Millisecond,
	})})
	require.NoError(t, err)

	ex := newTestExchange(t, http.MethodGet, "/x", map[string]string{correlation.DefaultHeader: "abc-123"})

	var seen []string
	dispatch := func(_ context.Context, ex *Exchange) (*proxy.Response, error) {
		seen = append(seen, ex.Request.Header.Get(correlation.DefaultHeader))
		if len(seen) < 3 {
			return nil, util.NewDispatchError("TEST", "", errors.New("reset"))
		}
		return proxy.NewResponse(http.StatusOK, "", nil), nil
	}

	require.NoError(t, c.Run(context.Background(), ex, dispatch))
	assert.Equal(t, []string{"abc-123", "abc-123", "abc-123"}, seen)
	assert.Equal(t, "abc-123", ex.Response.Header.Get(correlation.DefaultHeader))
}

func TestFactory_RateLimit(t *testing.T) {
	t.Parallel()

	f := newTestFactory(t)
	c, err := f.Build("cards", []Spec{RateLimit(RateLimitSpec{
		Capacity:        1,
		RefillPerSecond: 1,
		Cost:            1,
		KeyHeader:       "user",
		DefaultKey:      "anonymous",
	})})
	require.NoError(t, err)

	var calls atomic.Int32

	ex := newTestExchange(t, http.MethodGet, "/sbdb/cards/api/fetch", nil)
	require.NoError(t, c.Run(context.Background(), ex, okDispatch(&calls)))
	assert.Equal(t, http.StatusOK, ex.Response.StatusCode)
	assert.Equal(t, "0", ex.Response.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", ex.Response.Header.Get("X-RateLimit-Burst-Capacity"))

	ex = newTestExchange(t, http.MethodGet, "/sbdb/cards/api/fetch", nil)
	err = c.Run(context.Background(), ex, okDispatch(&calls))
	assert.ErrorIs(t, err, util.ErrRateLimited)
	assert.Equal(t, OutcomeRejected, ex.Outcome)
	assert.Equal(t, http.StatusTooManyRequests, ex.Response.StatusCode)
	assert.Equal(t, "1", ex.Response.Header.Get("Retry-After"))
	assert.Equal(t, "0", ex.Response.Header.Get("X-RateLimit-Remaining"))

	// Another caller has its own bucket.
	ex = newTestExchange(t, http.MethodGet, "/sbdb/cards/api/fetch", map[string]string{"user": "alice"})
	require.NoError(t, c.Run(context.Background(), ex, okDispatch(&calls)))

	assert.Equal(t, int32(2), calls.Load())
}

func TestFactory_AuthorizationBeforeDispatch(t *testing.T) {
	t.Parallel()

	gate := auth.NewGate(auth.GateConfig{Enabled: true}, auth.TokenValidatorFunc(
		func(_ context.Context, token string) (*auth.Claims, error) {
			if token != "good" {
				return nil, auth.ErrInvalidToken
			}
			return &auth.Claims{Subject: "u"}, nil
		}))
	f := newTestFactory(t, WithGate(gate))
	c, err := f.Build("accounts", nil)
	require.NoError(t, err)

	var calls atomic.Int32

	ex := newTestExchange(t, http.MethodPost, "/sbdb/accounts/api/create", nil)
	err = c.Run(context.Background(), ex, okDispatch(&calls))
	assert.ErrorIs(t, err, util.ErrUnauthorized)
	assert.Equal(t, OutcomeUnauthorized, ex.Outcome)
	assert.Equal(t, http.StatusUnauthorized, ex.Response.StatusCode)
	assert.Equal(t, "Bearer", ex.Response.Header.Get("WWW-Authenticate"))

	ex = newTestExchange(t, http.MethodPost, "/sbdb/accounts/api/create", map[string]string{"Authorization": "Bearer good"})
	require.NoError(t, c.Run(context.Background(), ex, okDispatch(&calls)))

	ex = newTestExchange(t, http.MethodGet, "/sbdb/accounts/api/fetch", nil)
	require.NoError(t, c.Run(context.Background(), ex, okDispatch(&calls)))

	assert.Equal(t, int32(2), calls.Load())
}

func TestFactory_RequestTimeout(t *testing.T) {
	t.Parallel()

	f := newTestFactory(t, WithRequestTimeout(20*time.Millisecond))
	c, err := f.Build("slow", nil)
	require.NoError(t, err)

	slow := func(ctx context.Context, _ *Exchange) (*proxy.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ex := newTestExchange(t, http.MethodGet, "/x", nil)
	err = c.Run(context.Background(), ex, slow)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, util.ErrDispatchFailure)
	assert.Equal(t, http.StatusGatewayTimeout, ex.Response.StatusCode)
}

func TestFactory_AddRequestAndResponseHeaders(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newTestFactory(t, WithClock(func() time.Time { return start.Add(1500 * time.Millisecond) }))
	c, err := f.Build("headers", []Spec{
		AddRequestHeader("X-Gateway", "edge"),
		AddResponseHeader("X-Static", ProducerStatic, "v"),
		AddResponseHeader("X-Elapsed", ProducerDuration, ""),
	})
	require.NoError(t, err)

	ex := newTestExchange(t, http.MethodGet, "/x", nil)
	ex.Start = start

	var got string
	dispatch := func(_ context.Context, ex *Exchange) (*proxy.Response, error) {
		got = ex.Request.Header.Get("X-Gateway")
		return proxy.NewResponse(http.StatusOK, "", nil), nil
	}
	require.NoError(t, c.Run(context.Background(), ex, dispatch))

	assert.Equal(t, "edge", got)
	assert.Empty(t, ex.Inbound.Header.Get("X-Gateway"))
	assert.Equal(t, "v", ex.Response.Header.Get("X-Static"))
	assert.Equal(t, "1.5s", ex.Response.Header.Get("X-Elapsed"))
}
