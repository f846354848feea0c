package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/config"
)

func newServer(t *testing.T) (*http.ServeMux, *indexer.Engine) {
	t.Helper()
	engine, err := indexer.NewEngine(config.IndexerConfig{
		DataDir:          t.TempDir(),
		SegmentMaxSize:   1 << 30,
		FlushInterval:    time.Hour,
		TermVectorFields: []string{"contents"},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { engine.Close() })
	sink := publisher.HandlerSink{Handle: consumer.HandleMessage(engine, nil)}
	mux := http.NewServeMux()
	New(publisher.New(sink, nil), "contents").Register(mux)
	return mux, engine
}

func post(t *testing.T, mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestIngestIndexesLocally(t *testing.T) {
	mux, engine := newServer(t)
	rec := post(t, mux, `{"id":"doc0","fields":{"contents":"Banana slug: Ariolimax columbianus"}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var resp ingestion.IngestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.DocumentID != "doc0" || resp.Status != ingestion.StatusAccepted {
		t.Errorf("resp = %+v", resp)
	}
	if engine.TotalDocs() != 1 {
		t.Errorf("docs = %d", engine.TotalDocs())
	}
	vec, err := engine.DocumentVector(context.Background(), "doc0", "contents")
	if err != nil || vec["banana"] != 1 {
		t.Errorf("vector = %v, %v", vec, err)
	}
}

func TestIngestRejectsBadRequests(t *testing.T) {
	mux, engine := newServer(t)
	for _, body := range []string{`{`, `{"id":"doc0"}`, `{"fields":{"contents":"x"}}`} {
		rec := post(t, mux, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", body, rec.Code)
		}
	}
	if engine.TotalDocs() != 0 {
		t.Errorf("docs = %d", engine.TotalDocs())
	}
}
