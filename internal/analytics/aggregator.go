package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/kafka"
)

// maxLatencies bounds the latency window used for percentiles.
const maxLatencies = 10000

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	Fallbacks         int64            `json:"fallbacks"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	Reformulations    int64            `json:"reformulations"`
	AvgExpansionTerms float64          `json:"avg_expansion_terms"`
	SearchesByModel   map[string]int64 `json:"searches_by_model"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	TopExpansionTerms []QueryCount     `json:"top_expansion_terms"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
	CapturedAt        time.Time        `json:"captured_at"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds search and reformulation events into AggregatedStats.
type Aggregator struct {
	mu                sync.Mutex
	totalSearches     int64
	cacheHits         int64
	fallbacks         int64
	zeroResults       int64
	reformulations    int64
	expansionTerms    int64
	byModel           map[string]int64
	latencies         []int64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	termCounts        map[string]int64
	startTime         time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byModel:           make(map[string]int64),
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		termCounts:        make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent returns a kafka.MessageHandler feeding agg. Undecodable
// messages are logged and skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := decodeEvent(value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
			return nil
		}
		switch e := event.(type) {
		case *SearchEvent:
			agg.RecordSearch(*e)
		case *ReformulationEvent:
			agg.RecordReformulation(*e)
		}
		return nil
	}
}

// PublishBatch records collector events in-process, so an Aggregator can
// stand in for the Kafka publisher when Kafka is disabled.
func (a *Aggregator) PublishBatch(_ context.Context, events []kafka.Event) error {
	for _, ev := range events {
		switch e := ev.Value.(type) {
		case SearchEvent:
			a.RecordSearch(e)
		case ReformulationEvent:
			a.RecordReformulation(e)
		}
	}
	return nil
}

func (a *Aggregator) RecordSearch(e SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches++
	if e.CacheHit {
		a.cacheHits++
	}
	if e.Fallback {
		a.fallbacks++
	}
	a.byModel[e.Model]++
	a.queryCounts[e.Query]++
	if e.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultQueries[e.Query]++
	}
	if len(a.latencies) == maxLatencies {
		a.latencies = append(a.latencies[:0], a.latencies[maxLatencies/2:]...)
	}
	a.latencies = append(a.latencies, e.LatencyMs)
}

func (a *Aggregator) RecordReformulation(e ReformulationEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reformulations++
	a.expansionTerms += int64(e.Terms)
	for _, c := range e.Clauses {
		a.termCounts[c.Term]++
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.totalSearches - a.cacheHits,
		Fallbacks:       a.fallbacks,
		ZeroResultCount: a.zeroResults,
		Reformulations:  a.reformulations,
		SearchesByModel: make(map[string]int64, len(a.byModel)),
		CapturedAt:      time.Now().UTC(),
	}
	for m, n := range a.byModel {
		stats.SearchesByModel[m] = n
	}
	if a.reformulations > 0 {
		stats.AvgExpansionTerms = float64(a.expansionTerms) / float64(a.reformulations)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	stats.TopExpansionTerms = topN(a.termCounts, 20)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n largest counts, ties broken by key.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
