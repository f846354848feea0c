package judgment

import (
	"context"
	"os"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/postgres"
)

func TestPartitionFrom(t *testing.T) {
	judgments := []Judgment{
		{QueryID: "q1", DocID: "d1", Relevance: 2},
		{QueryID: "q1", DocID: "d3", Relevance: 0},
		{QueryID: "q1", DocID: "d4", Relevance: 1},
		{QueryID: "q1", DocID: "d9", Relevance: 1},
	}
	p := PartitionFrom(judgments, []string{"d1", "d2", "d3", "d4"})
	if p == nil {
		t.Fatal("nil partition")
	}
	if !reflect.DeepEqual(p.Relevant, []int{0, 3}) || !reflect.DeepEqual(p.NonRelevant, []int{2}) {
		t.Errorf("partition = %+v", p)
	}
	if err := p.Validate(4); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if PartitionFrom(judgments, []string{"x", "y"}) != nil {
		t.Error("expected nil partition when nothing is judged")
	}
}

func TestJudgmentValidate(t *testing.T) {
	if err := (Judgment{DocID: "d1"}).validate(); err == nil {
		t.Error("missing query id accepted")
	}
	if err := (Judgment{QueryID: "q", DocID: "d"}).validate(); err != nil {
		t.Errorf("valid judgment rejected: %v", err)
	}
}

func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	port := 5432
	if v := os.Getenv("TEST_POSTGRES_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			port = n
		}
	}
	cfg := config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "feedback_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "feedback"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}
	db, err := postgres.New(context.Background(), cfg)
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestStoreRoundTrip(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	s := NewStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	qid := "test-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	t.Cleanup(func() {
		db.DB.Exec(`DELETE FROM relevance_judgments WHERE query_id = $1`, qid)
	})

	if err := s.Record(ctx,
		Judgment{QueryID: qid, DocID: "d1", Relevance: 1},
		Judgment{QueryID: qid, DocID: "d2", Relevance: 1},
	); err != nil {
		t.Fatal(err)
	}
	// Re-judging overwrites.
	if err := s.Record(ctx, Judgment{QueryID: qid, DocID: "d2", Relevance: 0}); err != nil {
		t.Fatal(err)
	}

	p, err := s.Partition(ctx, qid, []string{"d2", "d1"})
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || !reflect.DeepEqual(p.Relevant, []int{1}) || !reflect.DeepEqual(p.NonRelevant, []int{0}) {
		t.Errorf("partition = %+v", p)
	}
}
