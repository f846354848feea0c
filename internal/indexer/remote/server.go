// Package remote exposes an index over pkg/rpc and provides the client the
// searcher uses when the index runs in a separate indexer process.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/query"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/rpc"
)

const (
	MethodDocumentVector       = "Index.DocumentVector"
	MethodDocumentText         = "Index.DocumentText"
	MethodDocumentFrequency    = "Index.DocumentFrequency"
	MethodTermStatistics       = "Index.TermStatistics"
	MethodCollectionStatistics = "Index.CollectionStatistics"
	MethodSearch               = "Index.Search"
	MethodExecuteFeedback      = "Index.ExecuteFeedback"
	MethodHealth               = "Index.Health"
)

// Searcher runs first-pass and feedback queries. *executor.Executor
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, q string, limit int, tb feedback.TieBreak) (*executor.SearchResult, error)
	ExecuteFeedback(ctx context.Context, q *query.Query, k int, tb feedback.TieBreak) (feedback.ScoredDocuments, error)
}

// HealthFunc reports the serving state of the index.
type HealthFunc func() proto.HealthCheckResponse

type service struct {
	index    feedback.Index
	searcher Searcher
	health   HealthFunc
	logger   *slog.Logger
}

// Register installs the Index.* methods on srv.
func Register(srv *rpc.Server, index feedback.Index, searcher Searcher, health HealthFunc) {
	s := &service{
		index:    index,
		searcher: searcher,
		health:   health,
		logger:   slog.Default().With("component", "index-rpc"),
	}
	srv.Register(MethodDocumentVector, s.documentVector)
	srv.Register(MethodDocumentText, s.documentText)
	srv.Register(MethodDocumentFrequency, s.documentFrequency)
	srv.Register(MethodTermStatistics, s.termStatistics)
	srv.Register(MethodCollectionStatistics, s.collectionStatistics)
	srv.Register(MethodSearch, s.search)
	srv.Register(MethodExecuteFeedback, s.executeFeedback)
	srv.Register(MethodHealth, s.healthCheck)
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return rpc.Errorf(rpc.CodeInvalid, "decoding request: %v", err)
	}
	return nil
}

func (s *service) documentVector(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.DocumentRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	terms, err := s.index.DocumentVector(ctx, req.DocID, req.Field)
	if err != nil {
		return nil, toRPCError(err)
	}
	return proto.DocumentVectorResponse{Terms: terms}, nil
}

func (s *service) documentText(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.DocumentRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	text, err := s.index.DocumentText(ctx, req.DocID, req.Field)
	if err != nil {
		return nil, toRPCError(err)
	}
	return proto.DocumentTextResponse{Text: text}, nil
}

func (s *service) documentFrequency(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.TermRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	df, err := s.index.DocumentFrequency(ctx, req.Field, req.Term)
	if err != nil {
		return nil, toRPCError(err)
	}
	return proto.DocumentFrequencyResponse{DocFreq: df}, nil
}

func (s *service) termStatistics(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.TermRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	ts, err := s.index.TermStatistics(ctx, req.Field, req.Term)
	if err != nil {
		return nil, toRPCError(err)
	}
	return proto.TermStatisticsResponse{DocFreq: ts.DocFreq, TotalTermFreq: ts.TotalTermFreq}, nil
}

func (s *service) collectionStatistics(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.CollectionRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	cs, err := s.index.CollectionStatistics(ctx, req.Field)
	if err != nil {
		return nil, toRPCError(err)
	}
	return proto.CollectionStatisticsResponse{DocCount: cs.DocCount, SumTotalTermFreq: cs.SumTotalTermFreq}, nil
}

func (s *service) search(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.SearchRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	tb, err := feedback.ParseTieBreak(req.TieBreak)
	if err != nil {
		return nil, toRPCError(err)
	}
	res, err := s.searcher.Search(ctx, req.Query, req.Limit, tb)
	if err != nil {
		return nil, toRPCError(err)
	}
	out := toProtoDocs(res.Docs)
	out.TotalHits = res.TotalHits
	return out, nil
}

func (s *service) executeFeedback(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.FeedbackRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	tb, err := feedback.ParseTieBreak(req.TieBreak)
	if err != nil {
		return nil, toRPCError(err)
	}
	q := &query.Query{Field: req.Field}
	for _, c := range req.Clauses {
		q.Clauses = append(q.Clauses, query.Clause{Term: c.Term, Boost: c.Boost})
	}
	for _, f := range req.Filters {
		q.Filters = append(q.Filters, query.Filter{Field: f.Field, Values: f.Values})
	}
	docs, err := s.searcher.ExecuteFeedback(ctx, q, req.Limit, tb)
	if err != nil {
		return nil, toRPCError(err)
	}
	out := toProtoDocs(docs)
	out.TotalHits = docs.Len()
	return out, nil
}

func (s *service) healthCheck(ctx context.Context, raw json.RawMessage) (any, error) {
	if s.health == nil {
		return proto.HealthCheckResponse{Status: "SERVING"}, nil
	}
	return s.health(), nil
}

// toRPCError picks the wire code for err so the client can restore the
// matching sentinel.
func toRPCError(err error) error {
	switch {
	case errors.Is(err, feedback.ErrNoTermVector):
		return rpc.Errorf(rpc.CodeUnsupported, "%v", err)
	case errors.Is(err, apperrors.ErrDocumentNotFound):
		return rpc.Errorf(rpc.CodeNotFound, "%v", err)
	case errors.Is(err, apperrors.ErrInvalidInput):
		return rpc.Errorf(rpc.CodeInvalid, "%v", err)
	default:
		return err
	}
}

func toProtoDocs(d feedback.ScoredDocuments) proto.ScoredDocuments {
	return proto.ScoredDocuments{
		Handles:      d.Handles,
		IDs:          d.IDs,
		Scores:       d.Scores,
		SecondaryIDs: d.SecondaryIDs,
	}
}

func fromProtoDocs(d proto.ScoredDocuments) feedback.ScoredDocuments {
	return feedback.ScoredDocuments{
		Handles:      d.Handles,
		IDs:          d.IDs,
		Scores:       d.Scores,
		SecondaryIDs: d.SecondaryIDs,
	}
}
