// Package model implements the feedback estimators: RM3, Rocchio,
// log-logistic and EM distillation. Each turns the feedback document
// vectors of one query into a weighted term vector.
package model

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/stats"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/vector"
)

// Documents with an L1 norm at or below this contribute nothing.
const minDocNorm = 0.001

// Partition splits the feedback documents into judged sets, as indices
// into Input.Docs.
type Partition struct {
	Relevant    []int `json:"relevant"`
	NonRelevant []int `json:"non_relevant"`
}

// Validate rejects indices outside [0, n) and indices present in both sets.
func (p Partition) Validate(n int) error {
	relevant := make(map[int]bool, len(p.Relevant))
	for _, i := range p.Relevant {
		if i < 0 || i >= n {
			return fmt.Errorf("%w: relevant index %d outside [0,%d)", feedback.ErrInvalidPartition, i, n)
		}
		relevant[i] = true
	}
	for _, i := range p.NonRelevant {
		if i < 0 || i >= n {
			return fmt.Errorf("%w: non-relevant index %d outside [0,%d)", feedback.ErrInvalidPartition, i, n)
		}
		if relevant[i] {
			return fmt.Errorf("%w: index %d is both relevant and non-relevant", feedback.ErrInvalidPartition, i)
		}
	}
	return nil
}

// Input is everything an estimator reads for one query.
type Input struct {
	Query string
	Docs  []*vector.Vector
	// Scores are the first-pass scores, parallel to Docs.
	Scores []float64
	// Partition is nil when no judgments are available.
	Partition *Partition
	Stats     *stats.Cache
}

// Model estimates a feedback term vector.
type Model interface {
	// Name is the factory kind, e.g. "rm3".
	Name() string
	// Tag describes the model and its parameters for logs and run tags.
	Tag() string
	// NeedsPartition reports whether Estimate requires Input.Partition.
	NeedsPartition() bool
	Estimate(ctx context.Context, in Input) (*vector.Vector, error)
}

// base carries what every estimator shares.
type base struct {
	name     string
	analyzer feedback.Analyzer
	cfg      feedback.Config
	events   feedback.Events
	logger   *slog.Logger
}

func newBase(name string, analyzer feedback.Analyzer, cfg feedback.Config, events feedback.Events) base {
	if events == nil {
		events = feedback.NopEvents{}
	}
	return base{
		name:     name,
		analyzer: analyzer,
		cfg:      cfg,
		events:   events,
		logger:   slog.Default().With("component", "feedback-model", "model", name),
	}
}

func (b base) Name() string { return b.name }

// finite reports and removes non-finite weights.
func (b base) finite(v *vector.Vector) *vector.Vector {
	for _, e := range v.NonFinite() {
		b.events.InvalidWeight(b.name, e.Term, e.Weight)
	}
	return v.DropNaN()
}

func (b base) queryVector(query string) *vector.Vector {
	return vector.FromTerms(b.analyzer.Analyze(query))
}

func checkInput(in Input, needPartition bool) error {
	if len(in.Scores) < len(in.Docs) {
		return fmt.Errorf("%w: %d scores for %d documents", feedback.ErrInvalidInput, len(in.Scores), len(in.Docs))
	}
	if needPartition && in.Partition == nil {
		return feedback.ErrPartitionRequired
	}
	if in.Partition != nil {
		if err := in.Partition.Validate(len(in.Docs)); err != nil {
			return err
		}
	}
	return nil
}

func norms(docs []*vector.Vector) []float64 {
	out := make([]float64, len(docs))
	for i, d := range docs {
		out[i] = d.L1Norm()
	}
	return out
}

func subset(docs []*vector.Vector, idx []int) []*vector.Vector {
	out := make([]*vector.Vector, len(idx))
	for i, j := range idx {
		out[i] = docs[j]
	}
	return out
}
