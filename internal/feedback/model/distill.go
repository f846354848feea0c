package model

import (
	"context"
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/vector"
)

// DistillParams are the mixture weights of the non-relevant and collection
// components and the number of EM iterations. The relevant component gets
// 1 - NonRelevantWeight - CollectionWeight.
type DistillParams struct {
	NonRelevantWeight float64
	CollectionWeight  float64
	Iterations        int
}

func DefaultDistillParams() DistillParams {
	return DistillParams{NonRelevantWeight: 0.2, CollectionWeight: 0.1, Iterations: 100}
}

func (p DistillParams) Validate() error {
	if p.NonRelevantWeight < 0 || p.CollectionWeight < 0 || p.NonRelevantWeight+p.CollectionWeight >= 1 {
		return fmt.Errorf("%w: distill mixture weights %g + %g must be non-negative and sum below 1",
			feedback.ErrInvalidConfig, p.NonRelevantWeight, p.CollectionWeight)
	}
	if p.Iterations <= 0 {
		return fmt.Errorf("%w: distill iterations must be positive, got %d", feedback.ErrInvalidConfig, p.Iterations)
	}
	return nil
}

// Distill separates the relevant-document language model from
// non-relevant and collection noise by expectation maximisation.
type Distill struct {
	base
	params DistillParams

	// OnIteration, when set, observes the model after each M-step.
	OnIteration func(iteration int, pRel *vector.Vector, logLikelihood float64)
}

func NewDistill(analyzer feedback.Analyzer, cfg feedback.Config, params DistillParams, events feedback.Events) *Distill {
	return &Distill{base: newBase(KindDistill, analyzer, cfg, events), params: params}
}

func (m *Distill) NeedsPartition() bool { return true }

func (m *Distill) Tag() string {
	return fmt.Sprintf("Distill(fbDocs=%d,fbTerms=%d,nonRelevantWeight=%g,collectionWeight=%g,iterations=%d)",
		m.cfg.FbDocs, m.cfg.FbTerms, m.params.NonRelevantWeight, m.params.CollectionWeight, m.params.Iterations)
}

func (m *Distill) Estimate(ctx context.Context, in Input) (*vector.Vector, error) {
	if err := checkInput(in, true); err != nil {
		return nil, err
	}
	cs, err := in.Stats.Collection(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return vector.New(), nil
	}

	rel := m.finite(mle(subset(in.Docs, in.Partition.Relevant)))
	norel := m.finite(mle(subset(in.Docs, in.Partition.NonRelevant)))

	coll := vector.New()
	for _, term := range vector.Vocabulary([]*vector.Vector{rel, norel}) {
		ts, err := in.Stats.Term(ctx, term)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		if cs.SumTotalTermFreq > 0 {
			coll.Set(term, float64(ts.TotalTermFreq)/float64(cs.SumTotalTermFreq))
		}
	}

	return m.em(ctx, in.Docs, rel, norel, coll)
}

func (m *Distill) em(ctx context.Context, docs []*vector.Vector, rel, norel, coll *vector.Vector) (*vector.Vector, error) {
	relWeight := 1 - m.params.NonRelevantWeight - m.params.CollectionWeight
	vocab := rel.Terms()
	pRel := rel.Clone()

	for iter := 0; iter < m.params.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := vector.New()
		for _, w := range vocab {
			num := relWeight * pRel.Weight(w)
			den := num + m.params.NonRelevantWeight*norel.Weight(w) + m.params.CollectionWeight*coll.Weight(w)
			var tn float64
			if den != 0 {
				tn = num / den
			}
			var sum float64
			for _, doc := range docs {
				sum += doc.Weight(w) * tn
			}
			next.Set(w, sum)
		}
		next.ScaleToUnitL1Norm()
		pRel = next

		ll := m.logLikelihood(docs, pRel, norel, coll, relWeight)
		m.logger.Debug("em iteration", "iteration", iter, "log_likelihood", ll)
		if m.OnIteration != nil {
			m.OnIteration(iter, pRel, ll)
		}
	}
	return m.finite(pRel), nil
}

// logLikelihood of the feedback documents under the current mixture.
// Terms whose mixture probability is zero are skipped.
func (m *Distill) logLikelihood(docs []*vector.Vector, pRel, norel, coll *vector.Vector, relWeight float64) float64 {
	var ll float64
	for _, doc := range docs {
		for _, e := range doc.Entries() {
			p := relWeight*pRel.Weight(e.Term) +
				m.params.NonRelevantWeight*norel.Weight(e.Term) +
				m.params.CollectionWeight*coll.Weight(e.Term)
			if p > 0 {
				ll += e.Weight * math.Log(p)
			}
		}
	}
	return ll
}

// mle is the maximum-likelihood language model of a document set: summed
// term frequencies over the summed document norms.
func mle(set []*vector.Vector) *vector.Vector {
	out := vector.New()
	ns := norms(set)
	var total float64
	for _, n := range ns {
		total += n
	}
	if total == 0 {
		return out
	}
	for _, term := range vector.Vocabulary(set) {
		var sum float64
		for i, doc := range set {
			if ns[i] > minDocNorm {
				sum += math.Max(doc.Weight(term), 0)
			}
		}
		out.Set(term, sum/total)
	}
	return out
}
