package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/query"
)

type EventType string

const (
	EventSearch        EventType = "search"
	EventReformulation EventType = "reformulation"
)

// SearchEvent summarises one served search or feedback request.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	QueryID   string    `json:"qid,omitempty"`
	Model     string    `json:"model"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Fallback  bool      `json:"fallback"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// ReformulationEvent records a feedback query produced by the reranker.
type ReformulationEvent struct {
	Type EventType `json:"type"`
	query.Reformulation
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// decodeEvent returns a *SearchEvent or *ReformulationEvent by the type
// field of value.
func decodeEvent(value []byte) (any, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		return nil, fmt.Errorf("decoding event type: %w", err)
	}
	var event any
	switch head.Type {
	case EventSearch:
		event = &SearchEvent{}
	case EventReformulation:
		event = &ReformulationEvent{}
	default:
		return nil, fmt.Errorf("unknown event type %q", head.Type)
	}
	if err := json.Unmarshal(value, event); err != nil {
		return nil, fmt.Errorf("decoding %s event: %w", head.Type, err)
	}
	return event, nil
}
