package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/judgment"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/model"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/rerank"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/redis"
)

const field = "contents"

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, pkgredis.ErrNil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) DeleteByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.data))
	m.data = map[string][]byte{}
	return n, nil
}

type fakeJudgments struct {
	byQuery map[string][]judgment.Judgment
}

func (f *fakeJudgments) Record(_ context.Context, js ...judgment.Judgment) error {
	for _, j := range js {
		f.byQuery[j.QueryID] = append(f.byQuery[j.QueryID], j)
	}
	return nil
}

func (f *fakeJudgments) Partition(_ context.Context, qid string, ids []string) (*model.Partition, error) {
	return judgment.PartitionFrom(f.byQuery[qid], ids), nil
}

type tracker struct {
	mu     sync.Mutex
	events []analytics.SearchEvent
}

func (tr *tracker) TrackSearch(e analytics.SearchEvent) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, e)
}

type countingSearcher struct {
	FirstPass
	calls int
}

func (c *countingSearcher) Search(ctx context.Context, q string, limit int, tb feedback.TieBreak) (*executor.SearchResult, error) {
	c.calls++
	return c.FirstPass.Search(ctx, q, limit, tb)
}

type fixture struct {
	mux       *http.ServeMux
	searcher  *countingSearcher
	judgments *fakeJudgments
	store     *memStore
	tracker   *tracker
}

func newFixture(t *testing.T, withCache bool) *fixture {
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
	exec := executor.New(engine, field)

	cfg := feedback.DefaultConfig()
	cfg.RemoveStopwords = false
	rerankers := map[string]*rerank.Reranker{}
	for _, kind := range model.Kinds() {
		m, err := model.New(kind, tokenizer.Analyzer{}, cfg, model.DefaultParams(), nil)
		if err != nil {
			t.Fatal(err)
		}
		rerankers[kind] = rerank.New(engine, tokenizer.Analyzer{}, exec, m, rerank.Options{
			Field:    field,
			Config:   cfg,
			TieBreak: feedback.TieBreakDocID,
		})
	}

	f := &fixture{
		searcher:  &countingSearcher{FirstPass: exec},
		judgments: &fakeJudgments{byQuery: map[string][]judgment.Judgment{}},
		store:     &memStore{data: map[string][]byte{}},
		tracker:   &tracker{},
	}
	var qc *cache.QueryCache
	if withCache {
		qc = cache.New(f.store, time.Minute)
	}
	h := New(f.searcher, rerankers, f.judgments, qc, Options{
		DefaultModel: model.KindRM3,
		TieBreak:     feedback.TieBreakDocID,
		FbDocs:       cfg.FbDocs,
		DefaultLimit: 3,
		MaxResults:   10,
		Tracker:      f.tracker,
	})
	f.mux = http.NewServeMux()
	h.Register(f.mux)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, SearchResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	var resp SearchResponse
	if rec.Code == http.StatusOK {
		json.Unmarshal(rec.Body.Bytes(), &resp)
	}
	return rec, resp
}

func ids(resp SearchResponse) []string {
	out := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = r.ID
	}
	return out
}

func TestSearchReranks(t *testing.T) {
	f := newFixture(t, false)
	rec, resp := f.do(t, http.MethodGet, "/api/v1/search?q=banana+slug", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if resp.Model != model.KindRM3 || resp.Fallback {
		t.Errorf("resp = %+v", resp)
	}
	got := ids(resp)
	if len(got) != 3 || got[2] != "doc2" {
		t.Errorf("ids = %v, want expansion to reach doc2", got)
	}
	if !strings.Contains(resp.Reformulated, "contents:santa") {
		t.Errorf("reformulated = %q", resp.Reformulated)
	}
	if resp.Results[0].Rank != 1 {
		t.Errorf("ranks start at %d", resp.Results[0].Rank)
	}
}

func TestSearchWithoutFeedback(t *testing.T) {
	f := newFixture(t, false)
	rec, resp := f.do(t, http.MethodGet, "/api/v1/search?q=banana+slug&model=none", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := ids(resp); len(got) != 2 || resp.Reformulated != "" {
		t.Errorf("first pass only: ids = %v, reformulated = %q", got, resp.Reformulated)
	}
}

func TestSearchBadRequests(t *testing.T) {
	f := newFixture(t, false)
	for _, target := range []string{
		"/api/v1/search",
		"/api/v1/search?q=banana&limit=0",
		"/api/v1/search?q=banana&limit=ten",
		"/api/v1/search?q=banana&model=bm25prf",
		"/api/v1/search?q=banana&model=rocchio",
	} {
		rec, _ := f.do(t, http.MethodGet, target, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400 (%s)", target, rec.Code, rec.Body)
		}
	}
}

func TestJudgedModelUsesStoredJudgments(t *testing.T) {
	f := newFixture(t, false)
	body := `{"judgments":[{"query_id":"q7","doc_id":"doc1","relevance":1},{"query_id":"q7","doc_id":"doc0","relevance":0}]}`
	rec, _ := f.do(t, http.MethodPost, "/api/v1/judgments", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("record status = %d, body = %s", rec.Code, rec.Body)
	}

	rec, resp := f.do(t, http.MethodGet, "/api/v1/search?q=banana+slug&model=rocchio&qid=q7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if resp.Fallback || len(resp.Results) == 0 || resp.QueryID != "q7" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestExplicitFeedback(t *testing.T) {
	f := newFixture(t, false)
	body := `{"query":"banana slug","qid":"q1","model":"distill","relevant":[1],"non_relevant":[0]}`
	rec, resp := f.do(t, http.MethodPost, "/api/v1/feedback", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if resp.Model != model.KindDistill || len(resp.Results) == 0 {
		t.Errorf("resp = %+v", resp)
	}

	for _, body := range []string{
		`{"query":"banana","model":"rocchio"}`,
		`{"query":"banana slug","model":"rocchio","relevant":[5]}`,
		`{"query":"banana slug","model":"rocchio","relevant":[0],"non_relevant":[0]}`,
	} {
		if rec, _ := f.do(t, http.MethodPost, "/api/v1/feedback", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestSearchIsCached(t *testing.T) {
	f := newFixture(t, true)
	for i, want := range []string{"MISS", "HIT"} {
		rec, _ := f.do(t, http.MethodGet, "/api/v1/search?q=banana+slug", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := rec.Header().Get("X-Cache"); got != want {
			t.Errorf("request %d X-Cache = %q, want %q", i, got, want)
		}
	}
	if f.searcher.calls != 1 {
		t.Errorf("first pass ran %d times, want 1", f.searcher.calls)
	}
	if len(f.tracker.events) != 2 || f.tracker.events[0].CacheHit || !f.tracker.events[1].CacheHit {
		t.Errorf("tracked events = %+v", f.tracker.events)
	}

	rec, _ := f.do(t, http.MethodGet, "/api/v1/cache/stats", "")
	var stats map[string]any
	json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats["hits"] != float64(1) || stats["misses"] != float64(1) {
		t.Errorf("stats = %v", stats)
	}

	if rec, _ := f.do(t, http.MethodPost, "/api/v1/cache/invalidate", ""); rec.Code != http.StatusOK {
		t.Fatalf("invalidate status = %d", rec.Code)
	}
	f.do(t, http.MethodGet, "/api/v1/search?q=banana+slug", "")
	if f.searcher.calls != 2 {
		t.Errorf("first pass ran %d times after invalidation, want 2", f.searcher.calls)
	}
}

func TestModels(t *testing.T) {
	f := newFixture(t, false)
	rec, _ := f.do(t, http.MethodGet, "/api/v1/models", "")
	var models []struct {
		Name           string `json:"name"`
		NeedsJudgments bool   `json:"needs_judgments"`
		Default        bool   `json:"default"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &models); err != nil {
		t.Fatal(err)
	}
	if len(models) != 4 {
		t.Fatalf("models = %+v", models)
	}
	for _, m := range models {
		judged := m.Name == model.KindRocchio || m.Name == model.KindDistill
		if m.NeedsJudgments != judged {
			t.Errorf("%s needs judgments = %v", m.Name, m.NeedsJudgments)
		}
		if m.Default != (m.Name == model.KindRM3) {
			t.Errorf("%s default = %v", m.Name, m.Default)
		}
	}
}

func TestCacheDisabled(t *testing.T) {
	f := newFixture(t, false)
	if rec, _ := f.do(t, http.MethodPost, "/api/v1/cache/invalidate", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}
