// Package feedback holds the contracts shared by the pseudo-relevance
// feedback layer: the index and analyzer collaborators, statistics types,
// configuration, ranked result lists, tie-breaking and the diagnostics
// side channel.
//
// The estimators live in feedback/model, document vectors in
// feedback/docvector, and the end-to-end rerank pipeline in feedback/rerank.
package feedback

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/errors"
)

var (
	// ErrNoTermVector is returned by an Index when a document has no stored
	// term vector for the field; callers fall back to the stored text.
	ErrNoTermVector = errors.New("no term vector stored")

	ErrInvalidInput      = fmt.Errorf("invalid feedback input: %w", apperrors.ErrInvalidInput)
	ErrUnknownModel      = fmt.Errorf("unknown feedback model: %w", apperrors.ErrInvalidInput)
	ErrInvalidConfig     = fmt.Errorf("invalid feedback config: %w", apperrors.ErrInvalidInput)
	ErrInvalidPartition  = fmt.Errorf("invalid relevance partition: %w", apperrors.ErrInvalidInput)
	ErrPartitionRequired = fmt.Errorf("model requires relevance judgments: %w", apperrors.ErrInvalidInput)
)

// TermStats are the per-(field, term) statistics of the index.
type TermStats struct {
	DocFreq       int64 `json:"doc_freq"`
	TotalTermFreq int64 `json:"total_term_freq"`
}

// CollectionStats are the per-field statistics of the index.
type CollectionStats struct {
	DocCount         int64 `json:"doc_count"`
	SumTotalTermFreq int64 `json:"sum_total_term_freq"`
}

// Index is the read side of an inverted index as the feedback layer needs
// it. Terms passed in are already analyzed.
type Index interface {
	// DocumentVector returns term frequencies of the document's field, or
	// ErrNoTermVector when none were stored.
	DocumentVector(ctx context.Context, docID, field string) (map[string]int64, error)
	DocumentText(ctx context.Context, docID, field string) (string, error)
	// DocumentFrequency equals TermStatistics(...).DocFreq. The feedback
	// layer reads df through TermStatistics, which returns ttf in the same
	// lookup; DocumentFrequency serves callers needing df alone.
	DocumentFrequency(ctx context.Context, field, term string) (int64, error)
	TermStatistics(ctx context.Context, field, term string) (TermStats, error)
	CollectionStatistics(ctx context.Context, field string) (CollectionStats, error)
}

// Analyzer turns text into index terms, exactly as the indexed field was
// analyzed.
type Analyzer interface {
	Analyze(text string) []string
}
