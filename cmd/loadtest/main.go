// Command loadtest drives the search API with every feedback model in turn
// and reports latency, fallback and cache rates per model.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -models rm3,loglogistic -duration 30s
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/searcher/handler"
)

var defaultQueries = []string{
	"banana slug",
	"santa cruz",
	"relevance feedback",
	"query expansion",
	"language model",
	"term weighting",
	"pseudo relevance",
	"information retrieval",
}

type modelStats struct {
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int
	errors    int
	fallbacks int
	cached    int
	expanded  int
}

func newModelStats() *modelStats {
	return &modelStats{codes: make(map[int]int)}
}

// record files one response. resp is nil when the request failed or the
// body could not be decoded.
func (s *modelStats) record(d time.Duration, code int, resp *handler.SearchResponse, cacheHit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		s.errors++
		return
	}
	s.codes[code]++
	if code != http.StatusOK {
		s.errors++
		return
	}
	s.latencies = append(s.latencies, d)
	if cacheHit {
		s.cached++
	}
	if resp == nil {
		return
	}
	if resp.Fallback {
		s.fallbacks++
	}
	if resp.Reformulated != "" {
		s.expanded++
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 8, "concurrent workers per model")
	duration := flag.Duration("duration", 20*time.Second, "run time per model")
	models := flag.String("models", "none,rm3,loglogistic", "comma-separated models to exercise")
	queryFile := flag.String("queries", "", "file with one query per line")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		data, err := os.ReadFile(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
		queries = slices.DeleteFunc(strings.Split(string(data), "\n"), func(q string) bool {
			return strings.TrimSpace(q) == ""
		})
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        *concurrency * 2,
			MaxIdleConnsPerHost: *concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	fmt.Println("=== Relevance Feedback Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s per model\n", *duration)
	fmt.Printf("Queries:     %d unique\n\n", len(queries))

	total := 0
	for _, model := range strings.Split(*models, ",") {
		model = strings.TrimSpace(model)
		if model == "" {
			continue
		}
		stats := run(client, *baseURL, model, queries, *concurrency, *duration)
		printReport(model, stats, *duration)
		total += len(stats.latencies) + stats.errors
	}
	if total == 0 {
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func run(client *http.Client, baseURL, model string, queries []string, workers int, d time.Duration) *modelStats {
	stats := newModelStats()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		next := w
		g.Go(func() error {
			for ctx.Err() == nil {
				q := queries[next%len(queries)]
				next++
				searchURL := fmt.Sprintf("%s/api/v1/search?q=%s&model=%s&limit=10",
					baseURL, url.QueryEscape(q), url.QueryEscape(model))
				start := time.Now()
				code, resp, hit := fetch(ctx, client, searchURL)
				if ctx.Err() != nil {
					return nil
				}
				stats.record(time.Since(start), code, resp, hit)
			}
			return nil
		})
	}
	g.Wait()
	return stats
}

func fetch(ctx context.Context, client *http.Client, rawURL string) (int, *handler.SearchResponse, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, false
	}
	res, err := client.Do(req)
	if err != nil {
		return 0, nil, false
	}
	defer res.Body.Close()
	hit := res.Header.Get("X-Cache") == "HIT"
	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return res.StatusCode, nil, hit
	}
	var body handler.SearchResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return res.StatusCode, nil, hit
	}
	return res.StatusCode, &body, hit
}

func printReport(model string, s *modelStats, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := len(s.latencies)
	fmt.Printf("=== model %s ===\n", model)
	fmt.Printf("Requests/sec:  %.2f\n", float64(ok+s.errors)/d.Seconds())
	fmt.Printf("Successful:    %d\n", ok)
	fmt.Printf("Errors:        %d\n", s.errors)
	if ok > 0 {
		fmt.Printf("Fallbacks:     %.1f%%\n", 100*float64(s.fallbacks)/float64(ok))
		fmt.Printf("Reformulated:  %.1f%%\n", 100*float64(s.expanded)/float64(ok))
		fmt.Printf("Cache hits:    %.1f%%\n", 100*float64(s.cached)/float64(ok))

		sorted := slices.Clone(s.latencies)
		slices.Sort(sorted)
		fmt.Printf("P50 / P95 / P99: %s / %s / %s (max %s)\n",
			percentile(sorted, 50), percentile(sorted, 95), percentile(sorted, 99), sorted[len(sorted)-1])
	}

	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, s.codes[code])
	}
	fmt.Println()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
