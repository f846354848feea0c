package handler

import (
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/metrics"
)

// Trackers fans each search event out to every tracker in order.
type Trackers []Tracker

func (t Trackers) TrackSearch(e analytics.SearchEvent) {
	for _, tr := range t {
		tr.TrackSearch(e)
	}
}

// MetricsTracker counts served searches on the Prometheus collectors.
type MetricsTracker struct {
	Metrics *metrics.Metrics
}

func (t MetricsTracker) TrackSearch(e analytics.SearchEvent) {
	result := "ok"
	if e.TotalHits == 0 {
		result = "zero_result"
	}
	t.Metrics.SearchQueriesTotal.WithLabelValues(result).Inc()

	status := "miss"
	if e.CacheHit {
		status = "hit"
		t.Metrics.CacheHitsTotal.Inc()
	} else {
		t.Metrics.CacheMissesTotal.Inc()
	}
	t.Metrics.SearchLatency.WithLabelValues(status).Observe(float64(e.LatencyMs) / 1000)
}
