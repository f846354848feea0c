// Package executor runs queries against the index engine: the first-pass
// boolean plan and the weighted disjunction of the feedback pass.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/query"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/searcher/ranker"
)

// IDField is the pseudo-field that filters on external document ids.
const IDField = "id"

type SearchResult struct {
	Query     string                   `json:"query"`
	TotalHits int                      `json:"total_hits"`
	Docs      feedback.ScoredDocuments `json:"docs"`
	TermStats map[string]int           `json:"term_stats"`
}

type Executor struct {
	engine *indexer.Engine
	field  string
	logger *slog.Logger
}

// New returns an Executor whose first pass searches field.
func New(engine *indexer.Engine, field string) *Executor {
	return &Executor{
		engine: engine,
		field:  field,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Search parses and executes a first-pass query.
func (e *Executor) Search(ctx context.Context, q string, limit int, tb feedback.TieBreak) (*SearchResult, error) {
	return e.Execute(ctx, parser.Parse(q), limit, tb)
}

func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int, tb feedback.TieBreak) (*SearchResult, error) {
	if plan.Empty() {
		return &SearchResult{Query: plan.RawQuery, TermStats: map[string]int{}}, nil
	}

	terms := make([]ranker.TermPostings, 0, len(plan.Terms))
	termStats := make(map[string]int)
	for _, term := range plan.Terms {
		postings, err := e.engine.Postings(ctx, e.field, term)
		if err != nil {
			return nil, fmt.Errorf("searching term %q: %w", term, err)
		}
		termStats[term] = len(postings)
		if len(postings) > 0 {
			terms = append(terms, ranker.TermPostings{Term: term, Boost: 1, DocFreq: int64(len(postings)), Postings: postings})
		}
	}

	var candidates map[string]struct{}
	switch plan.Type {
	case parser.QueryAND:
		if len(terms) < len(plan.Terms) {
			candidates = map[string]struct{}{}
		} else {
			candidates = intersectPostings(terms)
		}
	case parser.QueryOR:
		candidates = unionPostings(terms)
	}
	for _, term := range plan.ExcludeTerms {
		postings, err := e.engine.Postings(ctx, e.field, term)
		if err != nil {
			e.logger.Error("searching exclude term failed", "term", term, "error", err)
			continue
		}
		for _, p := range postings {
			delete(candidates, p.DocID)
		}
	}

	ranked, err := e.rank(ctx, e.field, restrict(terms, candidates), limit, tb)
	if err != nil {
		return nil, err
	}
	e.logger.Info("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"candidates", len(candidates),
		"results", ranked.Len(),
	)
	return &SearchResult{
		Query:     plan.RawQuery,
		TotalHits: len(candidates),
		Docs:      ranked,
		TermStats: termStats,
	}, nil
}

// ExecuteFeedback scores q's clauses with boosted BM25 over the documents
// matching any clause and every filter.
func (e *Executor) ExecuteFeedback(ctx context.Context, q *query.Query, k int, tb feedback.TieBreak) (feedback.ScoredDocuments, error) {
	if q.Empty() {
		return feedback.ScoredDocuments{}, nil
	}
	terms := make([]ranker.TermPostings, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		postings, err := e.engine.Postings(ctx, q.Field, c.Term)
		if err != nil {
			return feedback.ScoredDocuments{}, fmt.Errorf("searching feedback term %q: %w", c.Term, err)
		}
		if len(postings) > 0 {
			terms = append(terms, ranker.TermPostings{
				Term:     c.Term,
				Boost:    c.Boost,
				DocFreq:  int64(len(postings)),
				Postings: postings,
			})
		}
	}

	candidates := unionPostings(terms)
	for _, f := range q.Filters {
		if err := e.applyFilter(ctx, f, candidates); err != nil {
			return feedback.ScoredDocuments{}, err
		}
	}

	ranked, err := e.rank(ctx, q.Field, restrict(terms, candidates), k, tb)
	if err != nil {
		return feedback.ScoredDocuments{}, err
	}
	e.logger.Debug("feedback query executed",
		"clauses", len(q.Clauses),
		"filters", len(q.Filters),
		"candidates", len(candidates),
		"results", ranked.Len(),
	)
	return ranked, nil
}

// applyFilter removes candidates whose filter field is not one of f.Values.
func (e *Executor) applyFilter(ctx context.Context, f query.Filter, candidates map[string]struct{}) error {
	allowed := f.Set()
	for docID := range candidates {
		value := docID
		if f.Field != IDField {
			doc, err := e.engine.Document(ctx, docID)
			if err != nil {
				return fmt.Errorf("reading filter field %s of %s: %w", f.Field, docID, err)
			}
			value = doc.Fields[f.Field]
		}
		if _, ok := allowed[value]; !ok {
			delete(candidates, docID)
		}
	}
	return nil
}

func (e *Executor) rank(ctx context.Context, field string, terms []ranker.TermPostings, limit int, tb feedback.TieBreak) (feedback.ScoredDocuments, error) {
	cs, err := e.engine.CollectionStatistics(ctx, field)
	if err != nil {
		return feedback.ScoredDocuments{}, err
	}
	params := ranker.RankParams{
		TotalDocs:    cs.DocCount,
		AvgDocLength: e.engine.AvgFieldLength(field),
	}
	getDocInfo := func(docID string) ranker.DocInfo {
		meta, _ := e.engine.DocMeta(docID)
		return ranker.DocInfo{
			Handle:      meta.Handle,
			DocLength:   meta.Lengths[field],
			SecondaryID: meta.SecondaryID,
		}
	}
	return ranker.Rank(terms, params, getDocInfo, limit, tb), nil
}

// restrict drops postings outside candidates, keeping each term's
// collection document frequency.
func restrict(terms []ranker.TermPostings, candidates map[string]struct{}) []ranker.TermPostings {
	out := make([]ranker.TermPostings, 0, len(terms))
	for _, t := range terms {
		kept := t
		kept.Postings = nil
		for _, p := range t.Postings {
			if _, ok := candidates[p.DocID]; ok {
				kept.Postings = append(kept.Postings, p)
			}
		}
		if len(kept.Postings) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

func intersectPostings(terms []ranker.TermPostings) map[string]struct{} {
	if len(terms) == 0 {
		return make(map[string]struct{})
	}
	shortest := 0
	for i, t := range terms {
		if len(t.Postings) < len(terms[shortest].Postings) {
			shortest = i
		}
	}
	candidates := make(map[string]struct{})
	for _, p := range terms[shortest].Postings {
		candidates[p.DocID] = struct{}{}
	}
	for i, t := range terms {
		if i == shortest {
			continue
		}
		docSet := make(map[string]struct{}, len(t.Postings))
		for _, p := range t.Postings {
			docSet[p.DocID] = struct{}{}
		}
		for docID := range candidates {
			if _, exists := docSet[docID]; !exists {
				delete(candidates, docID)
			}
		}
	}
	return candidates
}

func unionPostings(terms []ranker.TermPostings) map[string]struct{} {
	result := make(map[string]struct{})
	for _, t := range terms {
		for _, p := range t.Postings {
			result[p.DocID] = struct{}{}
		}
	}
	return result
}
