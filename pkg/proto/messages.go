// Package proto defines the shared message types used for internal RPC
// between the searcher and the indexer.
//
// The types use JSON struct tags for serialization over the platform's
// JSON-over-TCP RPC layer (see pkg/rpc).
package proto

import "time"

// ---------- Common ----------

// HealthCheckResponse reports whether the index is serving.
type HealthCheckResponse struct {
	Status   string `json:"status"` // SERVING, NOT_SERVING
	DocCount int64  `json:"doc_count"`
	Segments int    `json:"segments"`
}

// ---------- Index statistics ----------

// DocumentRequest names one stored field of one document.
type DocumentRequest struct {
	DocID string `json:"doc_id"`
	Field string `json:"field"`
}

// DocumentVectorResponse carries a document's term vector.
type DocumentVectorResponse struct {
	Terms map[string]int64 `json:"terms"`
}

// DocumentTextResponse carries a document's stored text.
type DocumentTextResponse struct {
	Text string `json:"text"`
}

// TermRequest names a term in a field.
type TermRequest struct {
	Field string `json:"field"`
	Term  string `json:"term"`
}

// DocumentFrequencyResponse is the output of Index.DocumentFrequency.
type DocumentFrequencyResponse struct {
	DocFreq int64 `json:"doc_freq"`
}

// TermStatisticsResponse is the output of Index.TermStatistics.
type TermStatisticsResponse struct {
	DocFreq       int64 `json:"doc_freq"`
	TotalTermFreq int64 `json:"total_term_freq"`
}

// CollectionRequest names a field.
type CollectionRequest struct {
	Field string `json:"field"`
}

// CollectionStatisticsResponse is the output of Index.CollectionStatistics.
type CollectionStatisticsResponse struct {
	DocCount         int64 `json:"doc_count"`
	SumTotalTermFreq int64 `json:"sum_total_term_freq"`
}

// ---------- Search ----------

// SearchRequest is the input to the first-pass Index.Search RPC.
type SearchRequest struct {
	Query    string `json:"query"`
	Limit    int    `json:"limit"`
	TieBreak string `json:"tie_break"`
}

// Clause is one weighted term of a feedback query.
type Clause struct {
	Term  string  `json:"term"`
	Boost float64 `json:"boost"`
}

// Filter restricts matches on a field to a set of values without scoring.
type Filter struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// FeedbackRequest is the input to Index.ExecuteFeedback.
type FeedbackRequest struct {
	Field    string   `json:"field"`
	Clauses  []Clause `json:"clauses"`
	Filters  []Filter `json:"filters,omitempty"`
	Limit    int      `json:"limit"`
	TieBreak string   `json:"tie_break"`
}

// ScoredDocuments is a ranked result list in parallel-slice form.
type ScoredDocuments struct {
	Handles      []int64   `json:"handles"`
	IDs          []string  `json:"ids"`
	Scores       []float64 `json:"scores"`
	SecondaryIDs []int64   `json:"secondary_ids,omitempty"`
	TotalHits    int       `json:"total_hits"`
}

// ---------- Events ----------

// CacheInvalidation is published by the indexer when newly indexed
// documents make cached rankings stale.
type CacheInvalidation struct {
	Reason    string    `json:"reason"`
	Documents int64     `json:"documents"`
	At        time.Time `json:"at"`
}
