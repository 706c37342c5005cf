package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgerouter/internal/config"
	"github.com/vyrodovalexey/edgerouter/internal/gateway"
	"github.com/vyrodovalexey/edgerouter/internal/observability"
)

const testConfig = `
name: test-router
server:
  address: 127.0.0.1:0
observability:
  metrics:
    enabled: true
    address: 127.0.0.1:0
discovery:
  type: static
  static:
    ACCOUNTS: ["%ACCOUNTS%"]
routes:
  - id: accounts
    path: /sbdb/accounts/**
    service: ACCOUNTS
    rewrite:
      regexp: /sbdb/accounts/(?P<segment>.*)
      replacement: /$${segment}
`

func writeConfig(t *testing.T, backendURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	content := strings.ReplaceAll(testConfig, "%ACCOUNTS%", backendURL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("backend:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func loadTestApp(t *testing.T, mutate func(*config.GatewayConfig)) *application {
	t.Helper()
	backend := newBackend(t)
	logger := observability.NopLogger()

	cfg := loadAndValidateConfig(writeConfig(t, backend.URL), logger)
	require.NotNil(t, cfg)
	if mutate != nil {
		mutate(cfg)
	}

	app := initApplication(cfg, logger)
	require.NotNil(t, app)
	t.Cleanup(app.close)
	return app
}

func TestParseFlags(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG_PATH", "/etc/edgerouter.yaml")
	t.Setenv("GATEWAY_LOG_LEVEL", "debug")
	t.Setenv("GATEWAY_WATCH_CONFIG", "off")

	flags := parseFlags(nil)
	assert.Equal(t, "/etc/edgerouter.yaml", flags.configPath)
	assert.Equal(t, "debug", flags.logLevel)
	assert.Equal(t, "json", flags.logFormat)
	assert.False(t, flags.watch)
	assert.False(t, flags.showVersion)

	flags = parseFlags([]string{"-config", "local.yaml", "-log-format", "console", "-version"})
	assert.Equal(t, "local.yaml", flags.configPath)
	assert.Equal(t, "console", flags.logFormat)
	assert.True(t, flags.showVersion)
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{value: "", fallback: true, want: true},
		{value: "TRUE", fallback: false, want: true},
		{value: "1", fallback: false, want: true},
		{value: "no", fallback: true, want: false},
		{value: "maybe", fallback: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_EDGEROUTER_BOOL", tt.value)
			assert.Equal(t, tt.want, getEnvBool("TEST_EDGEROUTER_BOOL", tt.fallback))
		})
	}
}

func TestLoadAndValidateConfig_ExitsOnError(t *testing.T) {
	var code int
	exitFunc = func(c int) { code = c }
	t.Cleanup(func() { exitFunc = os.Exit })

	cfg := loadAndValidateConfig(filepath.Join(t.TempDir(), "missing.yaml"), observability.NopLogger())
	assert.Nil(t, cfg)
	assert.Equal(t, 1, code)
}

func TestTracerConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Observability.Tracing.Enabled = true
	cfg.Observability.Tracing.Endpoint = "otel:4317"

	tc := tracerConfig(cfg)
	assert.True(t, tc.Enabled)
	assert.Equal(t, "otel:4317", tc.OTLPEndpoint)
	assert.Equal(t, "edgerouter", tc.ServiceName)
	assert.Equal(t, version, tc.ServiceVersion)
	assert.InDelta(t, 1.0, tc.SamplingRate, 0.0001)
}

func TestInitApplication_ServesRoutes(t *testing.T) {
	app := loadTestApp(t, nil)

	rec := httptest.NewRecorder()
	app.gateway.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sbdb/accounts/myAccount", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "backend:/myAccount", rec.Body.String())

	rec = httptest.NewRecorder()
	app.gateway.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, config.DefaultFallbackPath, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.DefaultFallbackMessage, rec.Body.String())
}

func TestInitApplication_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)

	app := loadTestApp(t, func(cfg *config.GatewayConfig) {
		cfg.RateLimitStore.Type = config.RateLimitStoreRedis
		cfg.RateLimitStore.Redis.Address = mr.Addr()
	})

	require.NotNil(t, app.redisClient)
	assert.NoError(t, app.limiters.Ping(context.Background()))
	assert.Contains(t, app.healthChecker.CheckNames(), "redis")
}

func TestAdminServer(t *testing.T) {
	app := loadTestApp(t, nil)
	srv := createAdminServer(app, observability.NopLogger())

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gateway_build_info")

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/routes", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var routes []gateway.RouteInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &routes))
	require.Len(t, routes, 1)
	assert.Equal(t, "accounts", routes[0].ID)
}

func TestReload_UpdatesStaticDiscovery(t *testing.T) {
	app := loadTestApp(t, nil)
	moved := newBackend(t)

	next := *app.config
	next.Discovery.Static = map[string][]string{"ACCOUNTS": {moved.URL}}
	next.Routes = append([]config.RouteConfig{}, app.config.Routes...)
	next.Routes[0].Path = "/sbdb/accounts/v2/**"

	require.NoError(t, app.reload(&next))
	assert.Same(t, &next, app.config)

	rec := httptest.NewRecorder()
	app.gateway.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sbdb/accounts/v2/myAccount", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	bad := next
	bad.Routes = []config.RouteConfig{{ID: "broken"}}
	assert.Error(t, app.reload(&bad))
	assert.Same(t, &next, app.config)
}

func TestShutdown(t *testing.T) {
	drainDelay = 0
	app := loadTestApp(t, nil)
	require.NoError(t, app.gateway.Start(context.Background()))

	admin := createAdminServer(app, observability.NopLogger())
	shutdown(app, admin, nil, observability.NopLogger())

	assert.True(t, app.healthChecker.IsDraining())
	assert.False(t, app.gateway.IsRunning())
}
