package filter

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgerouter/internal/config"
)

func TestSpecsFromRoute(t *testing.T) {
	t.Parallel()

	rc := config.RouteConfig{
		ID:      "loans",
		Path:    "/sbdb/loans/**",
		Service: "LOANS",
		Rewrite: &config.RewriteConfig{Regexp: `/sbdb/loans/(?<segment>.*)`, Replacement: "/${segment}"},
		Filters: []config.FilterConfig{
			{AddResponseHeader: &config.HeaderConfig{Name: "X-Response-Time", Producer: "timestamp"}},
			{Retry: &config.RetryConfig{
				MaxAttempts: 4,
				Backoff: config.BackoffConfig{
					Initial:    config.Duration(100 * time.Millisecond),
					Max:        config.Duration(time.Second),
					Multiplier: 2,
					Jitter:     true,
				},
			}},
			{CircuitBreaker: &config.CircuitBreakerConfig{
				Name:         "loansCircuitBreaker",
				FallbackURI:  "forward:/contactSupport",
				WaitDuration: config.Duration(10 * time.Second),
			}},
			{RateLimit: &config.RateLimitConfig{Capacity: 1, RefillPerSecond: 1, RequestCost: 1, KeyHeader: "user"}},
		},
	}

	specs, err := SpecsFromRoute(rc)
	require.NoError(t, err)
	require.Len(t, specs, 5)

	assert.Equal(t, KindRewritePath, specs[0].Kind)
	assert.Equal(t, "/${segment}", specs[0].RewritePath.Replacement)

	assert.Equal(t, KindAddResponseHeader, specs[1].Kind)
	assert.Equal(t, ProducerTimestamp, specs[1].AddResponseHeader.Producer)

	require.Equal(t, KindRetry, specs[2].Kind)
	assert.Equal(t, 4, specs[2].Retry.MaxAttempts)
	assert.Equal(t, []string{http.MethodGet}, specs[2].Retry.Methods)
	assert.Equal(t, 100*time.Millisecond, specs[2].Retry.Initial)
	assert.True(t, specs[2].Retry.Jitter)

	require.Equal(t, KindCircuitBreaker, specs[3].Kind)
	assert.Equal(t, "/contactSupport", specs[3].CircuitBreaker.FallbackPath)
	assert.Equal(t, 10*time.Second, specs[3].CircuitBreaker.Wait)

	require.Equal(t, KindRateLimit, specs[4].Kind)
	assert.Equal(t, 1, specs[4].RateLimit.Cost)
	assert.Equal(t, "user", specs[4].RateLimit.KeyHeader)
}

func TestSpecFromConfig_Invalid(t *testing.T) {
	t.Parallel()

	_, err := SpecFromConfig(config.FilterConfig{})
	assert.Error(t, err)

	_, err = SpecFromConfig(config.FilterConfig{
		RewritePath:      &config.RewriteConfig{},
		AddRequestHeader: &config.HeaderConfig{Name: "x"},
	})
	assert.Error(t, err)

	_, err = SpecsFromRoute(config.RouteConfig{ID: "r", Filters: []config.FilterConfig{{}}})
	assert.Error(t, err)
}

func TestExpandCaptures(t *testing.T) {
	t.Parallel()

	captures := map[string]string{"remaining": "accounts/55"}
	assert.Equal(t, "/accounts/55", expandCaptures("/${remaining}", captures))
	assert.Equal(t, "/v1/", expandCaptures("/v1/${missing}", captures))
	assert.Equal(t, "/", expandCaptures("${missing}", captures))
}
