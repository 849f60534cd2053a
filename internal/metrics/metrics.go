package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FeedFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studly_feed_fetches_total",
		Help: "Feed page fetches by source",
	}, []string{"mode"})
	FeedFetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studly_feed_fetch_errors_total",
		Help: "Failed feed page fetches by source",
	}, []string{"mode"})
	FeedFetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "studly_feed_fetch_duration_seconds",
		Help:    "Feed page fetch duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	DroppedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studly_dropped_records_total",
		Help: "Records dropped by the normalizer",
	}, []string{"kind"})
	ModeSwitches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studly_feed_exhaustion_total",
		Help: "Personalized to discovery switches",
	})
	BackgroundPolls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studly_background_polls_total",
		Help: "Background refresh ticks",
	})
	BackgroundPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "studly_background_pending",
		Help: "Fetched but unapplied posts",
	})
	Mutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studly_mutations_total",
		Help: "Optimistic mutations by kind",
	}, []string{"kind"})
	Rollbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studly_mutation_rollbacks_total",
		Help: "Optimistic mutations reverted after a failed call",
	}, []string{"kind"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studly_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studly_command_runs_total",
		Help: "CLI command runs",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studly_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(FeedFetches, FeedFetchErrors, FeedFetchDuration, DroppedRecords, ModeSwitches,
		BackgroundPolls, BackgroundPending, Mutations, Rollbacks, APIRetries, CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("STUDLY_METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveFetch records one page fetch for mode.
func ObserveFetch(mode string, start time.Time, err error) {
	FeedFetches.WithLabelValues(mode).Inc()
	FeedFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		FeedFetchErrors.WithLabelValues(mode).Inc()
	}
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

func IncDropped(kind string, n int) {
	if n > 0 {
		DroppedRecords.WithLabelValues(kind).Add(float64(n))
	}
}

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
