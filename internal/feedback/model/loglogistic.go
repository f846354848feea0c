package model

import (
	"context"
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/vector"
)

// DefaultLogLogisticC is used when no smoothing parameter is configured.
const DefaultLogLogisticC = 0.2

type LogLogisticParams struct {
	C float64
}

// LogLogistic is the DFR log-logistic feedback model. A term's weight is
// the mean over feedback documents of ln((t + λ)/λ) with
// t = tf·ln(1 + c·avgLen/len) and λ = df/N.
type LogLogistic struct {
	base
	params LogLogisticParams
}

func NewLogLogistic(analyzer feedback.Analyzer, cfg feedback.Config, params LogLogisticParams, events feedback.Events) *LogLogistic {
	if params.C == 0 {
		params.C = DefaultLogLogisticC
	}
	return &LogLogistic{base: newBase(KindLogLogistic, analyzer, cfg, events), params: params}
}

func (m *LogLogistic) NeedsPartition() bool { return false }

func (m *LogLogistic) Tag() string {
	return fmt.Sprintf("LogLogistic(fbDocs=%d,fbTerms=%d,c=%g)", m.cfg.FbDocs, m.cfg.FbTerms, m.params.C)
}

func (m *LogLogistic) Estimate(ctx context.Context, in Input) (*vector.Vector, error) {
	if err := checkInput(in, false); err != nil {
		return nil, err
	}
	out := vector.New()
	cs, err := in.Stats.Collection(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return out, nil
	}
	if len(in.Docs) == 0 {
		return out, nil
	}

	n := float64(cs.DocCount)
	avgLen := float64(cs.SumTotalTermFreq) / n
	ns := norms(in.Docs)
	for _, term := range vector.Vocabulary(in.Docs) {
		ts, err := in.Stats.Term(ctx, term)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		lambda := float64(ts.DocFreq) / n
		var w float64
		for i, doc := range in.Docs {
			if ns[i] <= minDocNorm {
				continue
			}
			t := doc.Weight(term) * math.Log(1+m.params.C*avgLen/ns[i])
			w += math.Log((t + lambda) / lambda)
		}
		out.Set(term, w/float64(len(in.Docs)))
	}
	m.finite(out)

	if m.cfg.PruneModel {
		out.PruneToSize(m.cfg.FbTerms)
	}
	if m.cfg.Normalize {
		out.ScaleToUnitL1Norm()
	}
	return out, nil
}
