package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordRequest(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test_record")
	m.RecordRequest(http.MethodGet, "loans", http.StatusOK, 20*time.Millisecond, 128)
	m.RecordRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond, 64)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodGet, "loans", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodGet, UnmatchedRoute, "404")))
}

func TestMetrics_OutcomesAndActive(t *testing.T) {
	t.Parallel()

	m := NewMetrics("")
	m.RecordOutcome("cards", "rate_limited")
	m.RecordOutcome("", "not_found")
	m.IncActiveRequests()
	m.IncActiveRequests()
	m.DecActiveRequests()
	m.SetBuildInfo("dev", "abc", "now")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomesTotal.WithLabelValues("cards", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomesTotal.WithLabelValues(UnmatchedRoute, "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeRequests))
	assert.NotNil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test_handler")
	m.RecordOutcome("accounts", "fallback")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_handler_request_outcomes_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
