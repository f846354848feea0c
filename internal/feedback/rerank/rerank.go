// Package rerank runs the feedback pipeline for one query: document
// vectors, model estimation, query construction, second-pass execution and
// tie-breaking.
package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/docvector"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/model"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/query"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/stats"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/vector"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/tracing"
)

const (
	StageBuildVectors  = "build_vectors"
	StageEstimateModel = "estimate_model"
	StageBuildQuery    = "build_query"
	StageExecute       = "execute"
	StageTieBreak      = "tie_break"
)

const (
	OutcomeReranked = "reranked"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// DefaultIDField is the filter field that matches external document ids.
const DefaultIDField = "id"

// Searcher runs the second-pass query.
type Searcher interface {
	ExecuteFeedback(ctx context.Context, q *query.Query, k int, tb feedback.TieBreak) (feedback.ScoredDocuments, error)
}

// Recorder receives stage timings and outcomes. *metrics.Metrics
// implements it.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	ObserveOutcome(model, outcome string)
	ObserveModelSize(model string, terms int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, time.Duration) {}
func (nopRecorder) ObserveOutcome(string, string)      {}
func (nopRecorder) ObserveModelSize(string, int)       {}

// Options configure a Reranker. Zero values select defaults.
type Options struct {
	Field    string
	Config   feedback.Config
	TieBreak feedback.TieBreak
	// RestrictToCandidates limits the second pass to the first-pass ids.
	RestrictToCandidates bool
	IDField              string
	Workers              int
	Events               feedback.Events
	Observer             query.Observer
	Recorder             Recorder
}

// Request is one query to rerank.
type Request struct {
	QueryID string
	Query   string
	// Docs is the first-pass ranking.
	Docs feedback.ScoredDocuments
	// Partition indexes into the first min(FbDocs, len(Docs)) documents.
	Partition *model.Partition
	// Filter, when set, is intersected with the candidate restriction.
	Filter *query.Filter
	// Texts, when set, are the contents of Docs and replace vector
	// retrieval from the index.
	Texts []string
	// Limit is the number of second-pass hits; zero uses len(Docs).
	Limit int
}

// Result is the reranked list. On Fallback, Docs is the first-pass list.
type Result struct {
	Docs     feedback.ScoredDocuments `json:"docs"`
	Query    *query.Query             `json:"query,omitempty"`
	Model    *vector.Vector           `json:"-"`
	Fallback bool                     `json:"fallback"`
	Tag      string                   `json:"tag"`
}

// Reranker is safe for concurrent use; every call gets its own
// statistics cache. Options.Config must be valid.
type Reranker struct {
	index    feedback.Index
	searcher Searcher
	model    model.Model
	vectors  *docvector.Builder
	queries  *query.Builder
	opts     Options
	logger   *slog.Logger
}

func New(index feedback.Index, analyzer feedback.Analyzer, searcher Searcher, m model.Model, opts Options) *Reranker {
	if opts.IDField == "" {
		opts.IDField = DefaultIDField
	}
	if opts.Events == nil {
		opts.Events = feedback.NopEvents{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Reranker{
		index:    index,
		searcher: searcher,
		model:    m,
		vectors:  docvector.New(index, analyzer, opts.Config, opts.Events, opts.Workers),
		queries:  query.NewBuilder(opts.Field, opts.Config, opts.Observer),
		opts:     opts,
		logger:   slog.Default().With("component", "reranker", "model", m.Name()),
	}
}

// Model returns the estimator this reranker runs.
func (r *Reranker) Model() model.Model { return r.model }

// Rerank runs the pipeline. Degraded estimation and second-pass failures
// fall back to the first-pass list; invalid requests and cancellation
// return an error.
func (r *Reranker) Rerank(ctx context.Context, req Request) (*Result, error) {
	res, err := r.rerank(ctx, req)
	switch {
	case err != nil:
		r.opts.Recorder.ObserveOutcome(r.model.Name(), OutcomeError)
	case res.Fallback:
		r.opts.Recorder.ObserveOutcome(r.model.Name(), OutcomeFallback)
	default:
		r.opts.Recorder.ObserveOutcome(r.model.Name(), OutcomeReranked)
	}
	return res, err
}

func (r *Reranker) rerank(ctx context.Context, req Request) (*Result, error) {
	if err := req.Docs.Validate(); err != nil {
		return nil, err
	}
	n := min(r.opts.Config.FbDocs, req.Docs.Len())
	if req.Texts != nil && len(req.Texts) < n {
		return nil, fmt.Errorf("%w: %d texts for %d feedback documents", feedback.ErrInvalidInput, len(req.Texts), n)
	}
	if r.model.NeedsPartition() && req.Partition == nil {
		return nil, fmt.Errorf("%s: %w", r.model.Name(), feedback.ErrPartitionRequired)
	}
	if req.Partition != nil {
		if err := req.Partition.Validate(n); err != nil {
			return nil, err
		}
	}

	ctx, root := r.span(ctx, req.QueryID)
	if root != nil {
		defer func() {
			root.End()
			root.Log(r.logger)
		}()
	}
	cache := stats.New(r.index, r.opts.Field, r.opts.Events)

	var docs []*vector.Vector
	err := r.stage(ctx, StageBuildVectors, func(ctx context.Context) error {
		var err error
		if req.Texts != nil {
			docs, err = r.vectors.FromTexts(ctx, req.Texts[:n], cache)
		} else {
			docs, err = r.vectors.Build(ctx, req.Docs, cache)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	var fb *vector.Vector
	err = r.stage(ctx, StageEstimateModel, func(ctx context.Context) error {
		var err error
		fb, err = r.model.Estimate(ctx, model.Input{
			Query:     req.Query,
			Docs:      docs,
			Scores:    req.Docs.Scores[:n],
			Partition: req.Partition,
			Stats:     cache,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	r.opts.Recorder.ObserveModelSize(r.model.Name(), fb.Len())

	if fb.Len() == 0 {
		r.logger.WarnContext(ctx, "empty feedback model, returning first-pass results", "qid", req.QueryID)
		return r.fallback(req, nil, fb), nil
	}

	var q *query.Query
	if err := r.stage(ctx, StageBuildQuery, func(ctx context.Context) error {
		q = r.queries.Build(ctx, req.QueryID, req.Query, fb, r.filters(req)...)
		return nil
	}); err != nil {
		return nil, err
	}

	k := req.Limit
	if k <= 0 {
		k = req.Docs.Len()
	}
	var hits feedback.ScoredDocuments
	err = r.stage(ctx, StageExecute, func(ctx context.Context) error {
		var err error
		hits, err = r.searcher.ExecuteFeedback(ctx, q, k, r.opts.TieBreak)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		r.logger.ErrorContext(ctx, "feedback query failed, returning first-pass results",
			"qid", req.QueryID, "error", err)
		return r.fallback(req, q, fb), nil
	}

	if err := r.stage(ctx, StageTieBreak, func(context.Context) error {
		hits = ApplyTieBreak(hits, r.opts.TieBreak)
		return nil
	}); err != nil {
		return nil, err
	}
	return &Result{Docs: hits, Query: q, Model: fb, Tag: r.model.Tag()}, nil
}

func (r *Reranker) filters(req Request) []query.Filter {
	var out []query.Filter
	if r.opts.RestrictToCandidates {
		out = append(out, query.Filter{Field: r.opts.IDField, Values: append([]string(nil), req.Docs.IDs...)})
	}
	if req.Filter != nil {
		out = append(out, *req.Filter)
	}
	return out
}

func (r *Reranker) fallback(req Request, q *query.Query, fb *vector.Vector) *Result {
	docs := ApplyTieBreak(req.Docs, r.opts.TieBreak)
	if req.Limit > 0 {
		docs = docs.Truncate(req.Limit)
	}
	return &Result{Docs: docs, Query: q, Model: fb, Fallback: true, Tag: r.model.Tag()}
}

// span starts a root span unless ctx already carries one. The returned
// span is nil when the caller owns the trace.
func (r *Reranker) span(ctx context.Context, queryID string) (context.Context, *tracing.Span) {
	if tracing.SpanFromContext(ctx) != nil {
		return ctx, nil
	}
	ctx, span := tracing.StartSpan(ctx, "rerank", "")
	span.SetAttr("qid", queryID)
	span.SetAttr("model", r.model.Name())
	return ctx, span
}

// stage runs fn under a child span and records its duration. It returns
// fn's error, or ctx.Err() when fn succeeded but ctx ended meanwhile.
func (r *Reranker) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracing.StartChildSpan(ctx, name)
	start := time.Now()
	err := fn(ctx)
	span.End()
	r.opts.Recorder.ObserveStage(name, time.Since(start))
	if err != nil {
		span.Fail(err)
		return err
	}
	return ctx.Err()
}

// ApplyTieBreak reorders runs of equal scores by tb and leaves everything
// else, scores included, untouched. TieBreakArbitrary keeps the input order.
func ApplyTieBreak(docs feedback.ScoredDocuments, tb feedback.TieBreak) feedback.ScoredDocuments {
	if tb == feedback.TieBreakArbitrary || docs.Len() < 2 {
		return docs
	}
	refs := make([]feedback.DocRef, docs.Len())
	for i := range refs {
		refs[i] = docs.Ref(i)
	}
	for start := 0; start < len(refs); {
		end := start + 1
		for end < len(refs) && refs[end].Score == refs[start].Score {
			end++
		}
		if end-start > 1 {
			run := refs[start:end]
			sort.SliceStable(run, func(i, j int) bool { return tb.Less(run[i], run[j]) })
		}
		start = end
	}

	var out feedback.ScoredDocuments
	if docs.SecondaryIDs != nil {
		out.SecondaryIDs = make([]int64, 0, len(refs))
	}
	for _, ref := range refs {
		out.Append(ref)
	}
	return out
}
