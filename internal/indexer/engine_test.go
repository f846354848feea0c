package indexer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/errors"
)

func testConfig(dir string) config.IndexerConfig {
	return config.IndexerConfig{
		DataDir:          dir,
		SegmentMaxSize:   1 << 30,
		FlushInterval:    time.Hour,
		TermVectorFields: []string{"contents"},
		SecondaryIDField: "tweetid",
	}
}

var toyCorpus = []index.Document{
	{ID: "doc0", Fields: map[string]string{"contents": "Banana slug: Ariolimax columbianus", "title": "slug"}},
	{ID: "doc1", Fields: map[string]string{"contents": "Santa Cruz mountains banana slug", "tweetid": "17"}},
	{ID: "doc2", Fields: map[string]string{"contents": "Santa Cruz campus mascot"}},
}

func newToyEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(testConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	for _, doc := range toyCorpus {
		if err := e.IndexDocument(doc); err != nil {
			t.Fatalf("IndexDocument(%s): %v", doc.ID, err)
		}
	}
	return e
}

func checkToyStats(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	cs, err := e.CollectionStatistics(ctx, "contents")
	if err != nil {
		t.Fatal(err)
	}
	if cs.DocCount != 3 || cs.SumTotalTermFreq != 13 {
		t.Errorf("collection stats = %+v, want 3/13", cs)
	}
	ts, err := e.TermStatistics(ctx, "contents", "banana")
	if err != nil {
		t.Fatal(err)
	}
	if ts.DocFreq != 2 || ts.TotalTermFreq != 2 {
		t.Errorf("banana stats = %+v", ts)
	}
	for _, term := range []string{"santa", "banana", "mascot", "zebra"} {
		df, err := e.DocumentFrequency(ctx, "contents", term)
		if err != nil {
			t.Fatal(err)
		}
		ts, err := e.TermStatistics(ctx, "contents", term)
		if err != nil {
			t.Fatal(err)
		}
		if df != ts.DocFreq {
			t.Errorf("df(%s) = %d, term statistics df = %d", term, df, ts.DocFreq)
		}
	}
	if df, _ := e.DocumentFrequency(ctx, "contents", "santa"); df != 2 {
		t.Errorf("df(santa) = %d", df)
	}
	vec, err := e.DocumentVector(ctx, "doc1", "contents")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 5 || vec["mountain"] != 1 {
		t.Errorf("doc1 vector = %v", vec)
	}
	text, err := e.DocumentText(ctx, "doc2", "contents")
	if err != nil || text != "Santa Cruz campus mascot" {
		t.Errorf("doc2 text = %q, %v", text, err)
	}
	postings, err := e.Postings(ctx, "contents", "slug")
	if err != nil || len(postings) != 2 || postings[0].DocID != "doc0" {
		t.Errorf("slug postings = %+v, %v", postings, err)
	}
	meta, ok := e.DocMeta("doc1")
	if !ok || meta.SecondaryID != 17 || meta.Lengths["contents"] != 5 {
		t.Errorf("doc1 meta = %+v", meta)
	}
}

func TestEngineStatistics(t *testing.T) {
	e := newToyEngine(t)
	checkToyStats(t, e)
	if got := e.AvgFieldLength("contents"); got != 13.0/3 {
		t.Errorf("avg length = %g", got)
	}
}

func TestEngineFlushAndRecover(t *testing.T) {
	dir := t.TempDir()
	e, err := NewEngine(testConfig(dir))
	if err != nil {
		t.Fatal(err)
	}
	for _, doc := range toyCorpus[:2] {
		if err := e.IndexDocument(doc); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := e.IndexDocument(toyCorpus[2]); err != nil {
		t.Fatal(err)
	}
	// Statistics span the segment and the memory index.
	checkToyStats(t, e)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewEngine(testConfig(dir))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	checkToyStats(t, reopened)
	if s := reopened.Stats(); s.Segments != 2 || s.Docs != 3 {
		t.Errorf("stats after recovery = %+v", s)
	}
	if err := reopened.IndexDocument(index.Document{ID: "doc3", Fields: map[string]string{"contents": "new"}}); err != nil {
		t.Fatal(err)
	}
	m0, _ := reopened.DocMeta("doc2")
	m3, _ := reopened.DocMeta("doc3")
	if m3.Handle <= m0.Handle {
		t.Errorf("handle %d reused after recovery (doc2 has %d)", m3.Handle, m0.Handle)
	}
}

func TestEngineErrors(t *testing.T) {
	e := newToyEngine(t)
	ctx := context.Background()

	if err := e.IndexDocument(toyCorpus[0]); !errors.Is(err, apperrors.ErrDocumentExists) {
		t.Errorf("duplicate add = %v", err)
	}
	if err := e.IndexDocument(index.Document{}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("empty id = %v", err)
	}
	if _, err := e.DocumentVector(ctx, "doc0", "title"); !errors.Is(err, feedback.ErrNoTermVector) {
		t.Errorf("title vector = %v", err)
	}
	if _, err := e.DocumentText(ctx, "missing", "contents"); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("missing doc = %v", err)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := e.TermStatistics(cancelled, "contents", "banana"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled ctx = %v", err)
	}
	cs, err := e.CollectionStatistics(ctx, "nofield")
	if err != nil || cs.DocCount != 0 {
		t.Errorf("unknown field stats = %+v, %v", cs, err)
	}
}

func TestEngineAutoFlush(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.SegmentMaxSize = 1
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	for i := 0; i < 3; i++ {
		doc := index.Document{ID: fmt.Sprintf("d%d", i), Fields: map[string]string{"contents": "banana slug"}}
		if err := e.IndexDocument(doc); err != nil {
			t.Fatal(err)
		}
	}
	if s := e.Stats(); s.Segments != 3 || s.MemDocs != 0 {
		t.Errorf("stats = %+v, want 3 segments", s)
	}
	ts, _ := e.TermStatistics(context.Background(), "contents", "banana")
	if ts.DocFreq != 3 {
		t.Errorf("df = %d", ts.DocFreq)
	}
}

func BenchmarkIndexDocument(b *testing.B) {
	e, err := NewEngine(testConfig(b.TempDir()))
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		doc := index.Document{ID: fmt.Sprintf("doc-%d", i), Fields: map[string]string{
			"contents": "Santa Cruz mountains are home to the banana slug Ariolimax columbianus",
		}}
		if err := e.IndexDocument(doc); err != nil {
			b.Fatal(err)
		}
	}
}
