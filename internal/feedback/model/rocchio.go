package model

import (
	"context"
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/vector"
)

const rocchioThreshold = 0.0001

// RocchioParams weight the query, the relevant centroid and the
// non-relevant centroid.
type RocchioParams struct {
	Alpha float64
	Beta  float64
	Gamma float64
}

func DefaultRocchioParams() RocchioParams {
	return RocchioParams{Alpha: 1.0, Beta: 0.85, Gamma: 0.0}
}

// Rocchio combines a tf-idf query vector with the centroids of the judged
// relevant and non-relevant documents.
type Rocchio struct {
	base
	params RocchioParams
}

func NewRocchio(analyzer feedback.Analyzer, cfg feedback.Config, params RocchioParams, events feedback.Events) *Rocchio {
	return &Rocchio{base: newBase(KindRocchio, analyzer, cfg, events), params: params}
}

func (m *Rocchio) NeedsPartition() bool { return true }

func (m *Rocchio) Tag() string {
	return fmt.Sprintf("Rocchio(fbDocs=%d,fbTerms=%d,alpha=%g,beta=%g,gamma=%g)",
		m.cfg.FbDocs, m.cfg.FbTerms, m.params.Alpha, m.params.Beta, m.params.Gamma)
}

func (m *Rocchio) Estimate(ctx context.Context, in Input) (*vector.Vector, error) {
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
	idf := func(term string) (float64, int64, bool, error) {
		ts, err := in.Stats.Term(ctx, term)
		if err != nil {
			if ctx.Err() != nil {
				return 0, 0, false, err
			}
			return 0, 0, false, nil
		}
		return math.Log(float64(cs.DocCount) / float64(ts.DocFreq)), ts.DocFreq, true, nil
	}

	qfv, err := m.queryModel(in.Query, idf)
	if err != nil {
		return nil, err
	}
	rel, err := m.centroid(in.Docs, in.Partition.Relevant, idf)
	if err != nil {
		return nil, err
	}
	norel, err := m.centroid(in.Docs, in.Partition.NonRelevant, idf)
	if err != nil {
		return nil, err
	}

	model := vector.LinearCombine(qfv, rel, m.params.Alpha, m.params.Beta)
	model = vector.LinearCombine(model, norel, 1, -m.params.Gamma)
	model.PruneToSize(m.cfg.FbTerms).PruneToThreshold(rocchioThreshold).ScaleToUnitL1Norm()
	return m.finite(model), nil
}

// idfFunc returns ln(docCount/docFreq) and docFreq; ok is false when the
// term's statistics are unavailable.
type idfFunc func(term string) (idf float64, docFreq int64, ok bool, err error)

// queryModel weights each query term by (0.5 + 0.5·tf/maxTf)·idf.
func (m *Rocchio) queryModel(query string, idf idfFunc) (*vector.Vector, error) {
	counts := m.queryVector(query)
	maxTf := counts.MaxNorm()
	qfv := vector.New()
	for _, term := range counts.Terms() {
		w, df, ok, err := idf(term)
		if err != nil {
			return nil, err
		}
		if !ok || df <= 0 {
			continue
		}
		qfv.Set(term, (0.5+0.5*counts.Weight(term)/maxTf)*w)
	}
	return m.finite(qfv), nil
}

// centroid is the mean tf·idf vector of docs[idx...].
func (m *Rocchio) centroid(docs []*vector.Vector, idx []int, idf idfFunc) (*vector.Vector, error) {
	set := subset(docs, idx)
	out := vector.New()
	if len(set) == 0 {
		return out, nil
	}
	ns := norms(set)
	for _, term := range vector.Vocabulary(set) {
		w, _, ok, err := idf(term)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var sum float64
		for i, doc := range set {
			if ns[i] <= minDocNorm {
				continue
			}
			if tf := doc.Weight(term); tf > 0 {
				sum += tf * w
			}
		}
		out.Set(term, sum/float64(len(set)))
	}
	return m.finite(out), nil
}
