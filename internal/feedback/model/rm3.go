package model

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/vector"
)

// RM3 is the relevance model interpolated with the original query.
type RM3 struct {
	base
}

func NewRM3(analyzer feedback.Analyzer, cfg feedback.Config, events feedback.Events) *RM3 {
	return &RM3{base: newBase(KindRM3, analyzer, cfg, events)}
}

func (m *RM3) NeedsPartition() bool { return false }

func (m *RM3) Tag() string {
	return fmt.Sprintf("RM3(fbDocs=%d,fbTerms=%d,originalQueryWeight=%g)",
		m.cfg.FbDocs, m.cfg.FbTerms, m.cfg.OriginalQueryWeight)
}

func (m *RM3) Estimate(ctx context.Context, in Input) (*vector.Vector, error) {
	if err := checkInput(in, false); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	qfv := m.queryVector(in.Query).ScaleToUnitL1Norm()

	ns := norms(in.Docs)
	fb := vector.New()
	for _, term := range vector.Vocabulary(in.Docs) {
		var w float64
		for i, doc := range in.Docs {
			if ns[i] > minDocNorm {
				w += doc.Weight(term) / ns[i] * in.Scores[i]
			}
		}
		fb.Set(term, w)
	}
	m.finite(fb)
	fb.PruneToSize(m.cfg.FbTerms).ScaleToUnitL1Norm()

	return vector.Interpolate(qfv, fb, m.cfg.OriginalQueryWeight), nil
}
