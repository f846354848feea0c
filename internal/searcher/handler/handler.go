// Package handler serves the search HTTP API: first-pass retrieval followed
// by a feedback rerank, explicit feedback, relevance judgments and cache
// administration.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/judgment"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/model"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/rerank"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/middleware"
)

// ModelNone disables the feedback pass.
const ModelNone = "none"

// FirstPass runs the initial retrieval.
type FirstPass interface {
	Search(ctx context.Context, q string, limit int, tb feedback.TieBreak) (*executor.SearchResult, error)
}

// Judgments stores relevance judgments and maps them onto ranked lists.
// *judgment.Store satisfies it.
type Judgments interface {
	Record(ctx context.Context, judgments ...judgment.Judgment) error
	Partition(ctx context.Context, queryID string, ids []string) (*model.Partition, error)
}

// Tracker receives one event per served search. *analytics.Collector
// satisfies it.
type Tracker interface {
	TrackSearch(e analytics.SearchEvent)
}

type Options struct {
	DefaultModel string
	TieBreak     feedback.TieBreak
	FbDocs       int
	DefaultLimit int
	MaxResults   int
	Tracker      Tracker
}

// ResultDoc is one ranked document in a response.
type ResultDoc struct {
	Rank  int     `json:"rank"`
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// SearchResponse is the body of a search or feedback response.
type SearchResponse struct {
	Query        string      `json:"query"`
	QueryID      string      `json:"qid,omitempty"`
	Model        string      `json:"model"`
	Tag          string      `json:"tag,omitempty"`
	TotalHits    int         `json:"total_hits"`
	Fallback     bool        `json:"fallback"`
	Reformulated string      `json:"reformulated,omitempty"`
	Results      []ResultDoc `json:"results"`
}

// FeedbackRequest is the body of POST /api/v1/feedback. Relevant and
// NonRelevant are 0-based positions in the first-pass ranking.
type FeedbackRequest struct {
	Query       string `json:"query"`
	QueryID     string `json:"qid"`
	Model       string `json:"model"`
	Limit       int    `json:"limit"`
	Relevant    []int  `json:"relevant"`
	NonRelevant []int  `json:"non_relevant"`
}

type JudgmentsRequest struct {
	Judgments []judgment.Judgment `json:"judgments"`
}

type Handler struct {
	searcher  FirstPass
	rerankers map[string]*rerank.Reranker
	judgments Judgments
	cache     *cache.QueryCache
	opts      Options
	logger    *slog.Logger
}

// New returns a Handler. rerankers is keyed by model kind; judgments and
// queryCache may be nil.
func New(searcher FirstPass, rerankers map[string]*rerank.Reranker, judgments Judgments, queryCache *cache.QueryCache, opts Options) *Handler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxResults < opts.DefaultLimit {
		opts.MaxResults = opts.DefaultLimit
	}
	if opts.FbDocs <= 0 {
		opts.FbDocs = feedback.DefaultConfig().FbDocs
	}
	return &Handler{
		searcher:  searcher,
		rerankers: rerankers,
		judgments: judgments,
		cache:     queryCache,
		opts:      opts,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Register installs the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/feedback", h.Feedback)
	mux.HandleFunc("POST /api/v1/judgments", h.RecordJudgments)
	mux.HandleFunc("GET /api/v1/models", h.Models)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	params := r.URL.Query()

	q := strings.TrimSpace(params.Get("q"))
	if q == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, err := h.limit(params.Get("limit"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	modelName := h.modelName(params.Get("model"))
	qid := params.Get("qid")

	compute := func() (*SearchResponse, error) {
		return h.run(ctx, q, qid, modelName, limit, nil)
	}
	var resp *SearchResponse
	cacheHit := false
	if h.cache != nil {
		key := cache.Key{Query: q, QueryID: qid, Model: modelName, Limit: limit, TieBreak: h.opts.TieBreak.String()}
		resp, cacheHit, err = cache.GetOrCompute(ctx, h.cache, key, compute)
	} else {
		resp, err = compute()
	}
	if err != nil {
		h.fail(ctx, w, "search failed", err)
		return
	}

	latencyMs := time.Since(start).Milliseconds()
	log.Info("search completed",
		"query", q,
		"model", modelName,
		"total_hits", resp.TotalHits,
		"returned", len(resp.Results),
		"fallback", resp.Fallback,
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	h.track(ctx, resp, cacheHit, latencyMs)
	if h.cache != nil {
		w.Header().Set("X-Cache", cacheStatus(cacheHit))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func cacheStatus(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

// Feedback reranks with explicit relevance feedback on the first-pass list.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		h.writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = h.opts.DefaultLimit
	}
	limit = min(limit, h.opts.MaxResults)

	var explicit *model.Partition
	if len(req.Relevant) > 0 || len(req.NonRelevant) > 0 {
		explicit = &model.Partition{Relevant: req.Relevant, NonRelevant: req.NonRelevant}
	}

	resp, err := h.run(r.Context(), req.Query, req.QueryID, h.modelName(req.Model), limit, explicit)
	if err != nil {
		h.fail(r.Context(), w, "feedback failed", err)
		return
	}
	h.track(r.Context(), resp, false, time.Since(start).Milliseconds())
	h.writeJSON(w, http.StatusOK, resp)
}

// run executes the first pass and, unless the model is ModelNone, the
// feedback rerank. explicit overrides stored judgments when non-nil.
func (h *Handler) run(ctx context.Context, q, qid, modelName string, limit int, explicit *model.Partition) (*SearchResponse, error) {
	var rr *rerank.Reranker
	if modelName != ModelNone {
		var ok bool
		if rr, ok = h.rerankers[modelName]; !ok {
			return nil, apperrors.Invalid("unknown model %q", modelName)
		}
	}

	depth := limit
	if rr != nil {
		depth = max(limit, h.opts.FbDocs)
	}
	first, err := h.searcher.Search(ctx, q, depth, h.opts.TieBreak)
	if err != nil {
		return nil, err
	}
	resp := &SearchResponse{Query: q, QueryID: qid, Model: modelName, TotalHits: first.TotalHits}
	if rr == nil {
		resp.Results = results(first.Docs.Truncate(limit))
		return resp, nil
	}

	req := rerank.Request{QueryID: qid, Query: q, Docs: first.Docs, Limit: limit}
	switch {
	case explicit != nil:
		req.Partition = explicit
	case rr.Model().NeedsPartition() && h.judgments != nil && qid != "":
		ids := first.Docs.IDs[:min(h.opts.FbDocs, first.Docs.Len())]
		if req.Partition, err = h.judgments.Partition(ctx, qid, ids); err != nil {
			return nil, fmt.Errorf("loading judgments for %s: %w", qid, err)
		}
	}

	res, err := rr.Rerank(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Tag = res.Tag
	resp.Fallback = res.Fallback
	if res.Query != nil {
		resp.Reformulated = res.Query.String()
	}
	resp.Results = results(res.Docs)
	return resp, nil
}

func (h *Handler) RecordJudgments(w http.ResponseWriter, r *http.Request) {
	if h.judgments == nil {
		h.writeError(w, http.StatusServiceUnavailable, "judgment storage is disabled")
		return
	}
	var req JudgmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Judgments) == 0 {
		h.writeError(w, http.StatusBadRequest, "no judgments given")
		return
	}
	if err := h.judgments.Record(r.Context(), req.Judgments...); err != nil {
		h.fail(r.Context(), w, "recording judgments failed", err)
		return
	}
	// Cached rankings of judged models may now be stale.
	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context()); err != nil {
			h.logger.Warn("cache invalidation after judgments failed", "error", err)
		}
	}
	h.writeJSON(w, http.StatusCreated, map[string]int{"recorded": len(req.Judgments)})
}

func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	type modelInfo struct {
		Name           string `json:"name"`
		Tag            string `json:"tag"`
		NeedsJudgments bool   `json:"needs_judgments"`
		Default        bool   `json:"default"`
	}
	out := make([]modelInfo, 0, len(h.rerankers))
	for name, rr := range h.rerankers {
		out = append(out, modelInfo{
			Name:           name,
			Tag:            rr.Model().Tag(),
			NeedsJudgments: rr.Model().NeedsPartition(),
			Default:        name == h.opts.DefaultModel,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) track(ctx context.Context, resp *SearchResponse, cacheHit bool, latencyMs int64) {
	if h.opts.Tracker == nil {
		return
	}
	h.opts.Tracker.TrackSearch(analytics.SearchEvent{
		Query:     resp.Query,
		QueryID:   resp.QueryID,
		Model:     resp.Model,
		TotalHits: resp.TotalHits,
		Returned:  len(resp.Results),
		LatencyMs: latencyMs,
		CacheHit:  cacheHit,
		Fallback:  resp.Fallback,
		RequestID: middleware.GetRequestID(ctx),
	})
}

func (h *Handler) limit(raw string) (int, error) {
	if raw == "" {
		return h.opts.DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return min(n, h.opts.MaxResults), nil
}

func (h *Handler) modelName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return h.opts.DefaultModel
	}
	return name
}

func results(docs feedback.ScoredDocuments) []ResultDoc {
	out := make([]ResultDoc, docs.Len())
	for i := range out {
		out[i] = ResultDoc{Rank: i + 1, ID: docs.IDs[i], Score: docs.Scores[i]}
	}
	return out
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	status := apperrors.HTTPStatusCode(err)
	switch {
	case status >= http.StatusInternalServerError:
		logger.FromContext(ctx).Error(msg, "error", err)
	case status == apperrors.StatusClientClosedRequest:
		logger.FromContext(ctx).Debug("client went away", "error", err)
	}
	h.writeError(w, status, apperrors.PublicMessage(err, msg))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
