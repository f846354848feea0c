package feedback

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Events receives the non-fatal degradations of an estimation run. The
// estimate still completes; these only make the degradation visible.
type Events interface {
	StatsUnavailable(field, term string, err error)
	CollectionUnavailable(field string, err error)
	VectorUnavailable(docID string, err error)
	InvalidWeight(model, term string, weight float64)
}

// NopEvents discards everything.
type NopEvents struct{}

func (NopEvents) StatsUnavailable(string, string, error) {}
func (NopEvents) CollectionUnavailable(string, error)    {}
func (NopEvents) VectorUnavailable(string, error)        {}
func (NopEvents) InvalidWeight(string, string, float64)  {}

// LogEvents writes each event as a structured warning.
type LogEvents struct {
	logger *slog.Logger
}

func NewLogEvents(logger *slog.Logger) *LogEvents {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEvents{logger: logger.With("component", "feedback-events")}
}

func (e *LogEvents) StatsUnavailable(field, term string, err error) {
	e.logger.Warn("term statistics unavailable, term skipped", "field", field, "term", term, "error", err)
}

func (e *LogEvents) CollectionUnavailable(field string, err error) {
	e.logger.Warn("collection statistics unavailable", "field", field, "error", err)
}

func (e *LogEvents) VectorUnavailable(docID string, err error) {
	e.logger.Warn("document vector unavailable", "doc_id", docID, "error", err)
}

func (e *LogEvents) InvalidWeight(model, term string, weight float64) {
	e.logger.Warn("non-finite weight dropped", "model", model, "term", term, "weight", weight)
}

// MetricEvents counts events by kind on a counter vector with a single
// "kind" label, then forwards them to next.
type MetricEvents struct {
	next    Events
	counter *prometheus.CounterVec
}

func NewMetricEvents(next Events, counter *prometheus.CounterVec) *MetricEvents {
	if next == nil {
		next = NopEvents{}
	}
	return &MetricEvents{next: next, counter: counter}
}

func (e *MetricEvents) StatsUnavailable(field, term string, err error) {
	e.counter.WithLabelValues("stats_unavailable").Inc()
	e.next.StatsUnavailable(field, term, err)
}

func (e *MetricEvents) CollectionUnavailable(field string, err error) {
	e.counter.WithLabelValues("collection_unavailable").Inc()
	e.next.CollectionUnavailable(field, err)
}

func (e *MetricEvents) VectorUnavailable(docID string, err error) {
	e.counter.WithLabelValues("vector_unavailable").Inc()
	e.next.VectorUnavailable(docID, err)
}

func (e *MetricEvents) InvalidWeight(model, term string, weight float64) {
	e.counter.WithLabelValues("invalid_weight").Inc()
	e.next.InvalidWeight(model, term, weight)
}
