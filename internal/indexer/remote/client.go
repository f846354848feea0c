package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/query"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/rpc"
)

// ClientConfig controls the connection pool and fault tolerance of a
// Client. Zero values take defaults. Timeout bounds each attempt of a call;
// OnRetry, when set, is told about every retried call.
type ClientConfig struct {
	Addr    string
	Conns   int
	Timeout time.Duration
	Retry   resilience.RetryConfig
	Breaker resilience.CircuitBreakerConfig
	OnRetry func(method string, err error)
}

// Client is a remote feedback.Index and rerank.Searcher. Transport failures
// are retried and counted by a circuit breaker; answers from the index such
// as "not found" are neither.
type Client struct {
	conns   []*rpc.Client
	next    atomic.Uint64
	retry   resilience.RetryConfig
	onRetry func(method string, err error)
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

var _ feedback.Index = (*Client)(nil)

// Dial opens cfg.Conns connections to the indexer at cfg.Addr.
func Dial(cfg ClientConfig) (*Client, error) {
	if cfg.Conns <= 0 {
		cfg.Conns = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retry.Backoff == (resilience.Backoff{}) {
		cfg.Retry.Backoff = resilience.DefaultBackoff
	}
	cfg.Retry.AttemptTimeout = cfg.Timeout
	cfg.Retry.Retryable = isTransportError
	cfg.Breaker.IsFailure = func(err error) bool {
		return isTransportError(err) || rpc.CodeOf(err) == rpc.CodeInternal
	}

	c := &Client{
		retry:   cfg.Retry,
		onRetry: cfg.OnRetry,
		breaker: resilience.NewCircuitBreaker("indexer:"+cfg.Addr, cfg.Breaker),
		logger:  slog.Default().With("component", "index-client", "addr", cfg.Addr),
	}
	for i := 0; i < cfg.Conns; i++ {
		conn, err := rpc.Dial(cfg.Addr)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("connecting to indexer: %w: %v", apperrors.ErrIndexUnavailable, err)
		}
		c.conns = append(c.conns, conn)
	}
	c.logger.Info("connected to indexer", "conns", cfg.Conns)
	return c, nil
}

// Close closes every pooled connection.
func (c *Client) Close() error {
	var errs []error
	for _, conn := range c.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	retry := c.retry
	if c.onRetry != nil {
		retry.OnRetry = func(_ int, err error) { c.onRetry(method, err) }
	}
	err := resilience.Retry(ctx, method, retry, func(actx context.Context) error {
		return c.breaker.Execute(func() error {
			conn := c.conns[c.next.Add(1)%uint64(len(c.conns))]
			return conn.Call(actx, method, params, result)
		})
	})
	if err != nil {
		return mapError(ctx, method, err)
	}
	return nil
}

// isTransportError reports whether err came from the connection rather than
// from the index.
func isTransportError(err error) bool {
	if err == nil || rpc.CodeOf(err) != "" {
		return false
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// mapError restores the sentinel the server-side error was coded from.
func mapError(ctx context.Context, method string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", method, ctxErr)
	}
	switch rpc.CodeOf(err) {
	case rpc.CodeUnsupported:
		return fmt.Errorf("%s: %w", method, feedback.ErrNoTermVector)
	case rpc.CodeNotFound:
		return fmt.Errorf("%s: %w", method, apperrors.ErrDocumentNotFound)
	case rpc.CodeInvalid, rpc.CodeUnknownMethod:
		return fmt.Errorf("%s: %v: %w", method, err, apperrors.ErrInvalidInput)
	case rpc.CodeDeadline:
		return fmt.Errorf("%s: %v: %w", method, err, apperrors.ErrTimeout)
	case rpc.CodeInternal:
		return fmt.Errorf("%s: %v: %w", method, err, apperrors.ErrInternal)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %v: %w", method, err, apperrors.ErrTimeout)
	}
	return fmt.Errorf("%s: %w: %v", method, apperrors.ErrIndexUnavailable, err)
}

func (c *Client) DocumentVector(ctx context.Context, docID, field string) (map[string]int64, error) {
	var resp proto.DocumentVectorResponse
	if err := c.call(ctx, MethodDocumentVector, proto.DocumentRequest{DocID: docID, Field: field}, &resp); err != nil {
		return nil, err
	}
	return resp.Terms, nil
}

func (c *Client) DocumentText(ctx context.Context, docID, field string) (string, error) {
	var resp proto.DocumentTextResponse
	if err := c.call(ctx, MethodDocumentText, proto.DocumentRequest{DocID: docID, Field: field}, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *Client) DocumentFrequency(ctx context.Context, field, term string) (int64, error) {
	var resp proto.DocumentFrequencyResponse
	if err := c.call(ctx, MethodDocumentFrequency, proto.TermRequest{Field: field, Term: term}, &resp); err != nil {
		return 0, err
	}
	return resp.DocFreq, nil
}

func (c *Client) TermStatistics(ctx context.Context, field, term string) (feedback.TermStats, error) {
	var resp proto.TermStatisticsResponse
	if err := c.call(ctx, MethodTermStatistics, proto.TermRequest{Field: field, Term: term}, &resp); err != nil {
		return feedback.TermStats{}, err
	}
	return feedback.TermStats{DocFreq: resp.DocFreq, TotalTermFreq: resp.TotalTermFreq}, nil
}

func (c *Client) CollectionStatistics(ctx context.Context, field string) (feedback.CollectionStats, error) {
	var resp proto.CollectionStatisticsResponse
	if err := c.call(ctx, MethodCollectionStatistics, proto.CollectionRequest{Field: field}, &resp); err != nil {
		return feedback.CollectionStats{}, err
	}
	return feedback.CollectionStats{DocCount: resp.DocCount, SumTotalTermFreq: resp.SumTotalTermFreq}, nil
}

// Search runs a first-pass query on the indexer.
func (c *Client) Search(ctx context.Context, q string, limit int, tb feedback.TieBreak) (*executor.SearchResult, error) {
	var resp proto.ScoredDocuments
	req := proto.SearchRequest{Query: q, Limit: limit, TieBreak: tb.String()}
	if err := c.call(ctx, MethodSearch, req, &resp); err != nil {
		return nil, err
	}
	return &executor.SearchResult{
		Query:     q,
		TotalHits: resp.TotalHits,
		Docs:      fromProtoDocs(resp),
	}, nil
}

// ExecuteFeedback runs a second-pass feedback query on the indexer.
func (c *Client) ExecuteFeedback(ctx context.Context, q *query.Query, k int, tb feedback.TieBreak) (feedback.ScoredDocuments, error) {
	req := proto.FeedbackRequest{Field: q.Field, Limit: k, TieBreak: tb.String()}
	for _, cl := range q.Clauses {
		req.Clauses = append(req.Clauses, proto.Clause{Term: cl.Term, Boost: cl.Boost})
	}
	for _, f := range q.Filters {
		req.Filters = append(req.Filters, proto.Filter{Field: f.Field, Values: f.Values})
	}
	var resp proto.ScoredDocuments
	if err := c.call(ctx, MethodExecuteFeedback, req, &resp); err != nil {
		return feedback.ScoredDocuments{}, err
	}
	return fromProtoDocs(resp), nil
}

// Health asks the indexer for its serving state.
func (c *Client) Health(ctx context.Context) (proto.HealthCheckResponse, error) {
	var resp proto.HealthCheckResponse
	err := c.call(ctx, MethodHealth, struct{}{}, &resp)
	return resp, err
}

// Ping is the indexer readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Health(ctx)
	if err != nil {
		return err
	}
	if resp.Status != "SERVING" {
		return fmt.Errorf("indexer status %s: %w", resp.Status, apperrors.ErrIndexUnavailable)
	}
	return nil
}
