package snapshot

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/postgres"
)

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

type fixedSource struct{ stats analytics.AggregatedStats }

func (f fixedSource) Stats() analytics.AggregatedStats { return f.stats }

func TestSaveLatestList(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	s := NewStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	// Future timestamps keep these rows ahead of anything already stored.
	base := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	t.Cleanup(func() {
		db.DB.Exec(`DELETE FROM analytics_snapshots WHERE captured_at >= $1`, base)
	})

	for i := int64(1); i <= 3; i++ {
		stats := analytics.AggregatedStats{
			TotalSearches:   i * 10,
			Reformulations:  i,
			SearchesByModel: map[string]int64{"rm3": i},
			CapturedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Save(ctx, stats); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := s.Latest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.TotalSearches != 30 || latest.SearchesByModel["rm3"] != 3 {
		t.Fatalf("latest = %+v", latest)
	}

	list, err := s.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].TotalSearches != 30 || list[1].TotalSearches != 20 {
		t.Errorf("list = %+v", list)
	}
}

func TestPeriodicSaveWritesFinalSnapshot(t *testing.T) {
	db := skipIfNoPostgres(t)
	s := NewStore(db)
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	at := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	t.Cleanup(func() {
		db.DB.Exec(`DELETE FROM analytics_snapshots WHERE captured_at = $1`, at)
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.StartPeriodicSave(ctx, fixedSource{analytics.AggregatedStats{TotalSearches: 7, CapturedAt: at}}, time.Hour)
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var n int
		if err := db.DB.QueryRow(`SELECT COUNT(*) FROM analytics_snapshots WHERE captured_at = $1`, at).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("final snapshot was not saved after cancellation")
}
