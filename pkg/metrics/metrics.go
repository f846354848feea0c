// Package metrics defines the Prometheus collectors used by the services and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	IndexFlushesTotal    *prometheus.CounterVec
	IndexRPCRetries      *prometheus.CounterVec
	IndexBreakerState    prometheus.Gauge

	FeedbackRequestsTotal *prometheus.CounterVec
	FeedbackStageDuration *prometheus.HistogramVec
	FeedbackModelTerms    *prometheus.HistogramVec
	FeedbackDegradations  *prometheus.CounterVec
}

// New creates all collectors and registers them on reg. A nil reg uses the
// Prometheus default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (ok, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search latency in seconds, first pass plus feedback.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total index flush operations by status.",
			},
			[]string{"status"},
		),
		IndexRPCRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_rpc_retries_total",
				Help: "Remote index calls retried after a transport failure, by method.",
			},
			[]string{"method"},
		),
		IndexBreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_circuit_breaker_state",
				Help: "Remote index circuit breaker state (0 closed, 1 open, 2 half-open).",
			},
		),
		FeedbackRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedback_requests_total",
				Help: "Rerank requests by model and outcome (reranked, fallback, error).",
			},
			[]string{"model", "outcome"},
		),
		FeedbackStageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feedback_stage_duration_seconds",
				Help:    "Duration of each rerank stage.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"stage"},
		),
		FeedbackModelTerms: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feedback_model_terms",
				Help:    "Number of terms in the estimated feedback model.",
				Buckets: []float64{0, 1, 5, 10, 20, 50, 100, 500},
			},
			[]string{"model"},
		),
		FeedbackDegradations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedback_degradations_total",
				Help: "Non-fatal estimation degradations by kind.",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.IndexFlushesTotal,
		m.IndexRPCRetries,
		m.IndexBreakerState,
		m.FeedbackRequestsTotal,
		m.FeedbackStageDuration,
		m.FeedbackModelTerms,
		m.FeedbackDegradations,
	)

	return m
}

// ObserveStage records how long one rerank stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.FeedbackStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveOutcome counts a finished rerank request.
func (m *Metrics) ObserveOutcome(model, outcome string) {
	m.FeedbackRequestsTotal.WithLabelValues(model, outcome).Inc()
}

// ObserveModelSize records the vocabulary size of an estimated model.
func (m *Metrics) ObserveModelSize(model string, terms int) {
	m.FeedbackModelTerms.WithLabelValues(model).Observe(float64(terms))
}

// Handler returns the scrape handler for g, or the default gatherer when g
// is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
