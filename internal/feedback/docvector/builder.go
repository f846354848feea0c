// Package docvector turns the top-ranked feedback documents into filtered
// term-frequency vectors.
package docvector

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/stats"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/stopword"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/vector"
)

const defaultWorkers = 4

// Builder fetches document vectors from the index, falling back to
// re-analyzing stored text when no term vector was kept.
type Builder struct {
	index    feedback.Index
	analyzer feedback.Analyzer
	cfg      feedback.Config
	filter   stopword.Filter
	events   feedback.Events
	workers  int
}

func New(index feedback.Index, analyzer feedback.Analyzer, cfg feedback.Config, events feedback.Events, workers int) *Builder {
	if events == nil {
		events = feedback.NopEvents{}
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Builder{
		index:    index,
		analyzer: analyzer,
		cfg:      cfg,
		filter:   stopword.Filter{RemoveStopwords: cfg.RemoveStopwords, ShortText: cfg.ShortText},
		events:   events,
		workers:  workers,
	}
}

// Build returns one vector per document for the first FbDocs documents, in
// rank order. A document whose vector cannot be read gets an empty vector.
func (b *Builder) Build(ctx context.Context, docs feedback.ScoredDocuments, cache *stats.Cache) ([]*vector.Vector, error) {
	n := min(b.cfg.FbDocs, docs.Len())
	numDocs, err := b.numDocs(ctx, cache)
	if err != nil {
		return nil, err
	}

	out := make([]*vector.Vector, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := 0; i < n; i++ {
		docID := docs.IDs[i]
		g.Go(func() error {
			v, err := b.document(gctx, docID, cache, numDocs)
			if err != nil {
				if isContextErr(err) {
					return err
				}
				b.events.VectorUnavailable(docID, err)
				v = vector.New()
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building document vectors: %w", err)
	}
	return out, nil
}

// FromTexts builds vectors from caller-supplied document contents.
func (b *Builder) FromTexts(ctx context.Context, texts []string, cache *stats.Cache) ([]*vector.Vector, error) {
	numDocs, err := b.numDocs(ctx, cache)
	if err != nil {
		return nil, err
	}
	out := make([]*vector.Vector, len(texts))
	for i, text := range texts {
		v, err := b.filtered(ctx, countTerms(b.analyzer.Analyze(text)), cache, numDocs)
		if err != nil {
			return nil, fmt.Errorf("building vector %d from text: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// numDocs is the denominator of the stopword df ratio. Unavailable
// collection statistics disable the frequency test.
func (b *Builder) numDocs(ctx context.Context, cache *stats.Cache) (int64, error) {
	if !b.filter.NeedsDocFreq() {
		return 0, nil
	}
	cs, err := cache.Collection(ctx)
	if err != nil {
		if isContextErr(err) {
			return 0, err
		}
		return 0, nil
	}
	return cs.DocCount, nil
}

func (b *Builder) document(ctx context.Context, docID string, cache *stats.Cache, numDocs int64) (*vector.Vector, error) {
	counts, err := b.index.DocumentVector(ctx, docID, cache.Field())
	if errors.Is(err, feedback.ErrNoTermVector) {
		text, textErr := b.index.DocumentText(ctx, docID, cache.Field())
		if textErr != nil {
			return nil, fmt.Errorf("reading stored text of %s: %w", docID, textErr)
		}
		counts, err = countTerms(b.analyzer.Analyze(text)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading term vector of %s: %w", docID, err)
	}
	return b.filtered(ctx, counts, cache, numDocs)
}

func (b *Builder) filtered(ctx context.Context, counts map[string]int64, cache *stats.Cache, numDocs int64) (*vector.Vector, error) {
	v := vector.New()
	for term, tf := range counts {
		if !stopword.Admissible(term) {
			continue
		}
		var df int64
		if b.filter.NeedsDocFreq() && numDocs > 0 {
			n, err := cache.DocFreq(ctx, term)
			if err != nil {
				if isContextErr(err) {
					return nil, err
				}
				continue
			}
			df = n
		}
		if b.filter.Keep(term, df, numDocs) {
			v.Set(term, float64(tf))
		}
	}
	if b.cfg.PruneDocTerms {
		v.PruneToSize(b.cfg.FbTerms)
	}
	return v, nil
}

func countTerms(terms []string) map[string]int64 {
	counts := make(map[string]int64, len(terms))
	for _, t := range terms {
		counts[t]++
	}
	return counts
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
