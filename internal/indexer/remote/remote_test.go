package remote

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/model"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/query"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/rerank"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/rpc"
)

const field = "contents"

func startIndexer(t *testing.T) (*rpc.Server, *Client) {
	t.Helper()
	engine, err := indexer.NewEngine(config.IndexerConfig{
		DataDir:          t.TempDir(),
		SegmentMaxSize:   1 << 30,
		FlushInterval:    time.Hour,
		TermVectorFields: []string{field},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { engine.Close() })
	for _, d := range []index.Document{
		{ID: "doc0", Fields: map[string]string{field: "Banana slug: Ariolimax columbianus"}},
		{ID: "doc1", Fields: map[string]string{field: "Santa Cruz mountains banana slug"}},
		{ID: "doc2", Fields: map[string]string{field: "Santa Cruz campus mascot"}},
	} {
		if err := engine.IndexDocument(d); err != nil {
			t.Fatal(err)
		}
	}

	srv := rpc.NewServer()
	Register(srv, engine, executor.New(engine, field), func() proto.HealthCheckResponse {
		st := engine.Stats()
		return proto.HealthCheckResponse{Status: "SERVING", DocCount: st.Docs, Segments: st.Segments}
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.ServeListener(ln)
	t.Cleanup(srv.Stop)

	client, err := Dial(ClientConfig{
		Addr:  ln.Addr().String(),
		Conns: 2,
		Retry: resilience.RetryConfig{MaxAttempts: 2, Backoff: resilience.Backoff{Initial: time.Millisecond}},
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return srv, client
}

func TestStatistics(t *testing.T) {
	_, c := startIndexer(t)
	ctx := context.Background()

	ts, err := c.TermStatistics(ctx, field, "banana")
	if err != nil {
		t.Fatal(err)
	}
	if ts.DocFreq != 2 || ts.TotalTermFreq != 2 {
		t.Errorf("banana stats = %+v", ts)
	}
	df, err := c.DocumentFrequency(ctx, field, "santa")
	if err != nil || df != 2 {
		t.Errorf("df(santa) = %d, %v", df, err)
	}
	cs, err := c.CollectionStatistics(ctx, field)
	if err != nil {
		t.Fatal(err)
	}
	if cs.DocCount != 3 || cs.SumTotalTermFreq != 13 {
		t.Errorf("collection stats = %+v", cs)
	}
}

func TestDocuments(t *testing.T) {
	_, c := startIndexer(t)
	ctx := context.Background()

	vec, err := c.DocumentVector(ctx, "doc1", field)
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 5 || vec["banana"] != 1 {
		t.Errorf("doc1 vector = %v", vec)
	}
	text, err := c.DocumentText(ctx, "doc2", field)
	if err != nil || text != "Santa Cruz campus mascot" {
		t.Errorf("doc2 text = %q, %v", text, err)
	}
}

func TestErrorsKeepTheirSentinel(t *testing.T) {
	_, c := startIndexer(t)
	ctx := context.Background()

	if _, err := c.DocumentVector(ctx, "missing", field); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("missing doc err = %v", err)
	}
	if _, err := c.DocumentVector(ctx, "doc0", "title"); !errors.Is(err, feedback.ErrNoTermVector) {
		t.Errorf("no vector err = %v", err)
	}
	if c.breaker.State() != resilience.StateClosed {
		t.Errorf("answers from the index tripped the breaker")
	}
}

func TestSearchAndFeedback(t *testing.T) {
	_, c := startIndexer(t)
	ctx := context.Background()

	res, err := c.Search(ctx, "banana slug", 10, feedback.TieBreakDocID)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalHits != 2 || res.Docs.Len() != 2 {
		t.Fatalf("search = %+v", res)
	}

	q := &query.Query{
		Field:   field,
		Clauses: []query.Clause{{Term: "santa", Boost: 1}},
		Filters: []query.Filter{{Field: executor.IDField, Values: []string{"doc1"}}},
	}
	docs, err := c.ExecuteFeedback(ctx, q, 10, feedback.TieBreakDocID)
	if err != nil {
		t.Fatal(err)
	}
	if docs.Len() != 1 || docs.IDs[0] != "doc1" {
		t.Errorf("feedback docs = %v", docs.IDs)
	}
}

func TestRerankOverRPC(t *testing.T) {
	_, c := startIndexer(t)
	ctx := context.Background()
	first, err := c.Search(ctx, "banana slug", 10, feedback.TieBreakDocID)
	if err != nil {
		t.Fatal(err)
	}

	cfg := feedback.DefaultConfig()
	cfg.RemoveStopwords = false
	r := rerank.New(c, tokenizer.Analyzer{}, c, model.NewRM3(tokenizer.Analyzer{}, cfg, nil), rerank.Options{
		Field:    field,
		Config:   cfg,
		TieBreak: feedback.TieBreakDocID,
	})
	res, err := r.Rerank(ctx, rerank.Request{QueryID: "q1", Query: "banana slug", Docs: first.Docs, Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if res.Fallback || res.Docs.Len() != 3 || res.Docs.IDs[2] != "doc2" {
		t.Errorf("result = %+v", res)
	}
}

func TestHealth(t *testing.T) {
	_, c := startIndexer(t)
	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "SERVING" || resp.DocCount != 3 {
		t.Errorf("health = %+v", resp)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestServerGoneIsUnavailable(t *testing.T) {
	srv, c := startIndexer(t)
	srv.Stop()

	_, err := c.CollectionStatistics(context.Background(), field)
	if !errors.Is(err, apperrors.ErrIndexUnavailable) {
		t.Errorf("err = %v, want ErrIndexUnavailable", err)
	}
}

func TestMapError(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		err  error
		want error
	}{
		{rpc.Errorf(rpc.CodeNotFound, "x"), apperrors.ErrDocumentNotFound},
		{rpc.Errorf(rpc.CodeUnsupported, "x"), feedback.ErrNoTermVector},
		{rpc.Errorf(rpc.CodeInvalid, "x"), apperrors.ErrInvalidInput},
		{rpc.Errorf(rpc.CodeDeadline, "x"), apperrors.ErrTimeout},
		{rpc.Errorf(rpc.CodeInternal, "x"), apperrors.ErrInternal},
		{errors.New("connection reset"), apperrors.ErrIndexUnavailable},
		{context.DeadlineExceeded, apperrors.ErrTimeout},
	}
	for _, tt := range tests {
		if got := mapError(ctx, "Index.Test", tt.err); !errors.Is(got, tt.want) {
			t.Errorf("mapError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if got := mapError(cancelled, "Index.Test", errors.New("eof")); !errors.Is(got, context.Canceled) {
		t.Errorf("cancelled mapError = %v", got)
	}
}

func TestIsTransportError(t *testing.T) {
	if isTransportError(rpc.Errorf(rpc.CodeNotFound, "x")) {
		t.Error("coded errors are answers, not transport failures")
	}
	if isTransportError(resilience.ErrCircuitOpen) {
		t.Error("open circuit should not be retried")
	}
	if !isTransportError(errors.New("broken pipe")) {
		t.Error("plain errors are transport failures")
	}
}
