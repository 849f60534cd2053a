package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposure(t *testing.T) {
	ObserveFetch("personalized", time.Now().Add(-1500*time.Millisecond), nil)
	ObserveFetch("discovery", time.Now(), errors.New("boom"))
	IncAPIRetry("/posts")
	IncDropped("post", 2)
	IncCommandRun("feed")
	Rollbacks.WithLabelValues("like").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, m := range []string{
		"studly_feed_fetches_total",
		"studly_feed_fetch_errors_total",
		"studly_feed_fetch_duration_seconds",
		"studly_api_retries_total",
		"studly_dropped_records_total",
		"studly_mutation_rollbacks_total",
		"studly_command_runs_total",
	} {
		assert.Contains(t, body, m)
	}
	assert.Contains(t, body, `studly_feed_fetch_errors_total{mode="discovery"} 1`)
}
