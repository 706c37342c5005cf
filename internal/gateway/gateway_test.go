package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgerouter/internal/auth"
	"github.com/vyrodovalexey/edgerouter/internal/circuitbreaker"
	"github.com/vyrodovalexey/edgerouter/internal/config"
	"github.com/vyrodovalexey/edgerouter/internal/discovery"
	"github.com/vyrodovalexey/edgerouter/internal/filter"
	"github.com/vyrodovalexey/edgerouter/internal/health"
	"github.com/vyrodovalexey/edgerouter/internal/proxy"
)

const supportText = "An error occured. Please try after some time or contact support team!"

// backend records what it receives and answers with its own path.
type backend struct {
	*httptest.Server
	calls       atomic.Int32
	lastPath    atomic.Value
	correlation atomic.Value
	status      atomic.Int32
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	b.status.Store(http.StatusOK)
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.calls.Add(1)
		b.lastPath.Store(r.URL.RequestURI())
		b.correlation.Store(r.Header.Get("sbdb-correlation-id"))
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(int(b.status.Load()))
		_, _ = io.WriteString(w, "backend:"+r.URL.Path)
	}))
	t.Cleanup(b.Close)
	return b
}

// downURL returns the address of a server that is no longer listening.
func downURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func rewrite(service string) *config.RewriteConfig {
	return &config.RewriteConfig{
		Regexp:      "/sbdb/" + service + "/(?P<segment>.*)",
		Replacement: "/${segment}",
	}
}

func responseTime() config.FilterConfig {
	return config.FilterConfig{AddResponseHeader: &config.HeaderConfig{Name: "X-Response-Time", Producer: "timestamp"}}
}

// referenceConfig mirrors configs/gateway.yaml with short timings.
func referenceConfig(accounts, cards, loans string) *config.GatewayConfig {
	cfg := &config.GatewayConfig{
		Timeouts: config.TimeoutsConfig{
			Request:         config.Duration(2 * time.Second),
			Call:            config.Duration(time.Second),
			FallbackLatency: config.Duration(time.Second),
		},
		Discovery: config.DiscoveryConfig{
			Type: config.DiscoveryStatic,
			Static: map[string][]string{
				"ACCOUNTS": {accounts},
				"CARDS":    {cards},
				"LOANS":    {loans},
			},
		},
		Routes: []config.RouteConfig{
			{
				ID:      "accounts",
				Path:    "/sbdb/accounts/**",
				Service: "ACCOUNTS",
				Rewrite: rewrite("accounts"),
				Filters: []config.FilterConfig{
					responseTime(),
					{CircuitBreaker: &config.CircuitBreakerConfig{
						Name:                "accountsCircuitBreaker",
						FallbackURI:         "forward:/contactSupport",
						ConsecutiveFailures: 3,
						SlidingWindowSize:   10,
						MinimumCalls:        10,
						WaitDuration:        config.Duration(time.Minute),
					}},
				},
			},
			{
				ID:      "loans",
				Path:    "/sbdb/loans/**",
				Service: "LOANS",
				Rewrite: rewrite("loans"),
				Filters: []config.FilterConfig{
					responseTime(),
					{Retry: &config.RetryConfig{
						MaxAttempts: 4,
						Methods:     []string{http.MethodGet},
						Backoff: config.BackoffConfig{
							Initial:    config.Duration(time.Millisecond),
							Max:        config.Duration(5 * time.Millisecond),
							Multiplier: 2,
						},
					}},
				},
			},
			{
				ID:      "cards",
				Path:    "/sbdb/cards/**",
				Service: "CARDS",
				Rewrite: rewrite("cards"),
				Filters: []config.FilterConfig{
					responseTime(),
					{RateLimit: &config.RateLimitConfig{
						Capacity:        1,
						RefillPerSecond: 1,
						RequestCost:     1,
						KeyHeader:       "user",
						DefaultKey:      "anonymous",
					}},
					{CircuitBreaker: &config.CircuitBreakerConfig{
						Name:                "cardsCircuitBreaker",
						FallbackURI:         "forward:/contactSupport",
						ConsecutiveFailures: 3,
						SlidingWindowSize:   10,
						MinimumCalls:        10,
						WaitDuration:        config.Duration(time.Minute),
					}},
				},
			},
		},
	}
	cfg.ApplyDefaults()
	cfg.Server.Address = "127.0.0.1:0"
	return cfg
}

func newDispatcher(t *testing.T, cfg *config.GatewayConfig) *proxy.Dispatcher {
	t.Helper()
	src, err := discovery.NewStaticSource(cfg.Discovery.Static)
	require.NoError(t, err)
	return proxy.NewDispatcher(
		discovery.NewResolver(src),
		proxy.NewHTTPTransport(nil),
		proxy.WithCallTimeout(cfg.Timeouts.Call.Duration()),
	)
}

func newTestGateway(t *testing.T, cfg *config.GatewayConfig, opts ...Option) *Gateway {
	t.Helper()
	require.NoError(t, config.ValidateConfig(cfg))
	opts = append([]Option{WithDispatcher(newDispatcher(t, cfg))}, opts...)
	gw, err := New(cfg, opts...)
	require.NoError(t, err)
	return gw
}

func serve(gw *Gateway, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, vv := range header {
		req.Header[k] = vv
	}
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilConfig)

	cfg := referenceConfig("http://a", "http://c", "http://l")
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrNoDispatcher)

	cfg.Routes[0].Filters = append(cfg.Routes[0].Filters, cfg.Routes[0].Filters[1])
	_, err = New(cfg, WithDispatcher(newDispatcher(t, cfg)))
	assert.Error(t, err)
}

func TestGateway_AccountsRewriteAndCorrelation(t *testing.T) {
	t.Parallel()

	accounts := newBackend(t)
	gw := newTestGateway(t, referenceConfig(accounts.URL, "http://c", "http://l"))

	rec := serve(gw, http.MethodGet, "/sbdb/accounts/myAccount?customerId=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "backend:/myAccount", rec.Body.String())
	assert.Equal(t, "/myAccount?customerId=7", accounts.lastPath.Load())

	id := rec.Header().Get("sbdb-correlation-id")
	assert.NotEmpty(t, id)
	assert.Equal(t, id, accounts.correlation.Load())

	_, err := time.Parse(time.RFC3339Nano, rec.Header().Get("X-Response-Time"))
	assert.NoError(t, err)

	rec = serve(gw, http.MethodGet, "/sbdb/accounts/myAccount", http.Header{"Sbdb-Correlation-Id": {"abc-123"}})
	assert.Equal(t, "abc-123", rec.Header().Get("sbdb-correlation-id"))
	assert.Equal(t, "abc-123", accounts.correlation.Load())
}

func TestGateway_RouteNotFound(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, referenceConfig("http://a", "http://c", "http://l"))

	rec := serve(gw, http.MethodGet, "/unknown/x", http.Header{"Sbdb-Correlation-Id": {"abc-123"}})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get("sbdb-correlation-id"))

	var body filter.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, body.Status)
	assert.Equal(t, "/unknown/x", body.Path)
	assert.Equal(t, "abc-123", body.CorrelationID)
}

func TestGateway_FallbackEndpoint(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, referenceConfig("http://a", "http://c", "http://l"))

	rec := serve(gw, http.MethodGet, "/contactSupport", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, supportText, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("sbdb-correlation-id"))

	rec = serve(gw, http.MethodHead, "/contactSupport", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = serve(gw, http.MethodPost, "/contactSupport", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// CARDS is down: the first failures are answered by the fallback, then the
// breaker opens and requests no longer reach the backend.
func TestGateway_CardsDown(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, referenceConfig("http://a", downURL(t), "http://l"))

	for i := 0; i < 5; i++ {
		rec := serve(gw, http.MethodGet, "/sbdb/cards/myCards", http.Header{"User": {"user-" + string(rune('a'+i))}})
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, supportText, rec.Body.String())
		assert.NotEmpty(t, rec.Header().Get("X-Response-Time"))
		assert.NotEmpty(t, rec.Header().Get("sbdb-correlation-id"))
	}

	cb := gw.Breakers().Get("cardsCircuitBreaker")
	require.NotNil(t, cb)
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())

	// Other routes are unaffected.
	assert.Nil(t, gw.Breakers().Get("loansCircuitBreaker"))
	assert.Equal(t, circuitbreaker.StateClosed, gw.Breakers().Get("accountsCircuitBreaker").State())
}

func TestGateway_CardsOpenBreakerSkipsBackend(t *testing.T) {
	t.Parallel()

	cards := newBackend(t)
	cards.status.Store(http.StatusInternalServerError)
	gw := newTestGateway(t, referenceConfig("http://a", cards.URL, "http://l"))

	for i := 0; i < 6; i++ {
		rec := serve(gw, http.MethodGet, "/sbdb/cards/myCards", http.Header{"User": {"u" + string(rune('a'+i))}})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, supportText, rec.Body.String())
		if i == 2 {
			assert.Equal(t, circuitbreaker.StateOpen, gw.Breakers().Get("cardsCircuitBreaker").State())
		}
	}
	assert.Equal(t, int32(3), cards.calls.Load())
}

func TestGateway_ReloadReconfiguresBreaker(t *testing.T) {
	t.Parallel()

	accounts := newBackend(t)
	cards := newBackend(t)
	cards.status.Store(http.StatusInternalServerError)
	gw := newTestGateway(t, referenceConfig(accounts.URL, cards.URL, "http://l"))

	callCards := func(n int, offset int) {
		for i := 0; i < n; i++ {
			rec := serve(gw, http.MethodGet, "/sbdb/cards/myCards", http.Header{"User": {"u" + string(rune('a'+offset+i))}})
			require.Equal(t, http.StatusOK, rec.Code)
		}
	}

	callCards(4, 0)
	tripped := gw.Breakers().Get("cardsCircuitBreaker")
	require.Equal(t, circuitbreaker.StateOpen, tripped.State())
	require.Equal(t, int32(3), cards.calls.Load())
	accountsBreaker := gw.Breakers().Get("accountsCircuitBreaker")

	next := referenceConfig(accounts.URL, cards.URL, "http://l")
	next.Routes[2].Filters[2].CircuitBreaker.ConsecutiveFailures = 5
	require.NoError(t, gw.Reload(next))

	reconfigured := gw.Breakers().Get("cardsCircuitBreaker")
	assert.NotSame(t, tripped, reconfigured)
	assert.Equal(t, circuitbreaker.StateClosed, reconfigured.State())
	assert.Same(t, accountsBreaker, gw.Breakers().Get("accountsCircuitBreaker"), "unchanged breakers keep their state")

	callCards(6, 4)
	assert.Equal(t, int32(8), cards.calls.Load())
	assert.Equal(t, circuitbreaker.StateOpen, reconfigured.State())
}

func TestGateway_CardsRateLimit(t *testing.T) {
	t.Parallel()

	cards := newBackend(t)
	gw := newTestGateway(t, referenceConfig("http://a", cards.URL, "http://l"))

	rec := serve(gw, http.MethodGet, "/sbdb/cards/myCards", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/myCards", cards.lastPath.Load())

	rec = serve(gw, http.MethodGet, "/sbdb/cards/myCards", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.NotEmpty(t, rec.Header().Get("sbdb-correlation-id"))
	assert.NotEmpty(t, rec.Header().Get("X-Response-Time"))

	rec = serve(gw, http.MethodGet, "/sbdb/cards/myCards", http.Header{"User": {"alice"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(2), cards.calls.Load())
}

func TestGateway_LoansRetry(t *testing.T) {
	t.Parallel()

	loans := newBackend(t)
	loans.status.Store(http.StatusServiceUnavailable)
	gw := newTestGateway(t, referenceConfig("http://a", "http://c", loans.URL))

	rec := serve(gw, http.MethodGet, "/sbdb/loans/accounts/55", http.Header{"Sbdb-Correlation-Id": {"abc-123"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, int32(4), loans.calls.Load())
	assert.Equal(t, "/accounts/55", loans.lastPath.Load())
	assert.Equal(t, "abc-123", loans.correlation.Load())
	assert.Equal(t, "abc-123", rec.Header().Get("sbdb-correlation-id"))

	rec = serve(gw, http.MethodPost, "/sbdb/loans/accounts/55", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, int32(5), loans.calls.Load())
}

func TestGateway_Authorization(t *testing.T) {
	t.Parallel()

	accounts := newBackend(t)
	cfg := referenceConfig(accounts.URL, "http://c", "http://l")
	gate := auth.NewGate(auth.GateConfig{Enabled: true}, auth.TokenValidatorFunc(
		func(_ context.Context, token string) (*auth.Claims, error) {
			if token == "good" {
				return &auth.Claims{Subject: "alice"}, nil
			}
			return nil, auth.ErrInvalidToken
		},
	))
	gw := newTestGateway(t, cfg, WithGate(gate))

	rec := serve(gw, http.MethodPost, "/sbdb/accounts/myAccount", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, int32(0), accounts.calls.Load())

	rec = serve(gw, http.MethodPost, "/sbdb/accounts/myAccount", http.Header{"Authorization": {"Bearer bad"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(gw, http.MethodPost, "/sbdb/accounts/myAccount", http.Header{"Authorization": {"Bearer good"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(gw, http.MethodGet, "/sbdb/accounts/myAccount", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(2), accounts.calls.Load())
}

func TestGateway_Reload(t *testing.T) {
	t.Parallel()

	accounts := newBackend(t)
	cards := newBackend(t)
	cfg := referenceConfig(accounts.URL, cards.URL, "http://l")
	gw := newTestGateway(t, cfg)

	// Trip the cards breaker's dispatch path once so it exists.
	serve(gw, http.MethodGet, "/sbdb/cards/myCards", nil)
	require.NotNil(t, gw.Breakers().Get("cardsCircuitBreaker"))

	next := referenceConfig(accounts.URL, cards.URL, "http://l")
	next.Routes = next.Routes[:1]
	next.Routes = append(next.Routes, config.RouteConfig{
		ID:      "customers",
		Path:    "/sbdb/customers/**",
		Service: "ACCOUNTS",
		Rewrite: rewrite("customers"),
	})
	require.NoError(t, gw.Reload(next))

	rec := serve(gw, http.MethodGet, "/sbdb/customers/42", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/42", accounts.lastPath.Load())

	rec = serve(gw, http.MethodGet, "/sbdb/cards/myCards", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Nil(t, gw.Breakers().Get("cardsCircuitBreaker"))
	assert.NotNil(t, gw.Breakers().Get("accountsCircuitBreaker"))
	assert.Same(t, next, gw.Config())

	invalid := referenceConfig(accounts.URL, cards.URL, "http://l")
	invalid.Timeouts.Request = invalid.Timeouts.FallbackLatency
	assert.Error(t, gw.Reload(invalid))
	assert.Same(t, next, gw.Config())

	ids := make([]string, 0, 2)
	for _, r := range gw.Routes() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"accounts", "customers"}, ids)
}

func TestGateway_StartStop(t *testing.T) {
	t.Parallel()

	accounts := newBackend(t)
	gw := newTestGateway(t, referenceConfig(accounts.URL, "http://c", "http://l"))
	assert.Equal(t, StateStopped, gw.State())
	assert.ErrorIs(t, gw.Stop(context.Background()), ErrGatewayNotRunning)

	require.NoError(t, gw.Start(context.Background()))
	assert.True(t, gw.IsRunning())
	assert.Equal(t, "running", gw.State().String())
	assert.ErrorIs(t, gw.Start(context.Background()), ErrGatewayNotStopped)

	resp, err := http.Get("http://" + gw.Address() + "/sbdb/accounts/myAccount")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "backend:/myAccount", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, gw.Stop(ctx))
	assert.Equal(t, StateStopped, gw.State())
}

func TestGateway_DispatcherFunc(t *testing.T) {
	t.Parallel()

	cfg := referenceConfig("http://a", "http://c", "http://l")
	gw, err := New(cfg, WithDispatcher(DispatcherFunc(
		func(_ context.Context, service string, req *proxy.Request) (*proxy.Response, error) {
			if service == "LOANS" {
				return nil, errors.New("boom")
			}
			return proxy.NewResponse(http.StatusAccepted, "text/plain", []byte(service+" "+req.Path)), nil
		},
	)))
	require.NoError(t, err)

	rec := serve(gw, http.MethodGet, "/sbdb/accounts/x", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "ACCOUNTS /x", rec.Body.String())

	rec = serve(gw, http.MethodPost, "/sbdb/loans/x", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAdminHandler(t *testing.T) {
	t.Parallel()

	cards := newBackend(t)
	cards.status.Store(http.StatusBadGateway)
	gw := newTestGateway(t, referenceConfig("http://a", cards.URL, "http://l"))

	for i := 0; i < 3; i++ {
		serve(gw, http.MethodGet, "/sbdb/cards/x", http.Header{"User": {"u" + string(rune('a'+i))}})
	}

	checker := health.NewChecker("test")
	checker.RegisterDependency(health.BreakerHealthCheck("breakers", gw.Breakers().Stats))
	admin := NewAdminHandler(gw, AdminConfig{
		Checker: checker,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "metrics")
		}),
	})

	get := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		admin.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	rec := get(http.MethodGet, "/admin/routes")
	require.Equal(t, http.StatusOK, rec.Code)
	var routes []RouteInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &routes))
	require.Len(t, routes, 3)
	assert.Equal(t, "cards", routes[2].ID)
	assert.Equal(t, "CARDS", routes[2].Service)
	assert.Contains(t, routes[2].Filters, "rateLimit")

	rec = get(http.MethodGet, "/admin/breakers")
	var breakers []BreakerInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &breakers))
	require.Len(t, breakers, 2)
	assert.Equal(t, "cardsCircuitBreaker", breakers[1].Name)
	assert.Equal(t, "open", breakers[1].State)

	rec = get(http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"degraded"`))

	rec = get(http.MethodPost, "/admin/breakers/reset")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, circuitbreaker.StateClosed, gw.Breakers().Get("cardsCircuitBreaker").State())

	assert.Equal(t, http.StatusOK, get(http.MethodGet, "/live").Code)
	assert.Equal(t, http.StatusOK, get(http.MethodGet, "/health").Code)
	assert.Equal(t, "metrics", get(http.MethodGet, "/metrics").Body.String())
}
