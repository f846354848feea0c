package model

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/feedbacktest"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/stats"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/vector"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/tokenizer"
)

var benchVocab = strings.Fields(`banana slug ariolimax columbianus santa cruz mountain campus
	mascot redwood forest coast fog university student banana yellow mollusk
	gastropod mucus tidepool ocean monterey bay surfing wharf boardwalk`)

// benchCorpus builds n documents of 40 terms drawn deterministically from
// benchVocab.
func benchCorpus(n int) []feedbacktest.Doc {
	docs := make([]feedbacktest.Doc, n)
	for i := range docs {
		words := make([]string, 40)
		for j := range words {
			words[j] = benchVocab[(i*7+j*j+j)%len(benchVocab)]
		}
		docs[i] = feedbacktest.Doc{ID: fmt.Sprintf("doc%d", i), Text: strings.Join(words, " ")}
	}
	return docs
}

func BenchmarkEstimate(b *testing.B) {
	corpus := benchCorpus(500)
	idx := feedbacktest.NewIndex(corpus...)
	cfg := toyConfig()
	docs := make([]*vector.Vector, cfg.FbDocs)
	scores := make([]float64, cfg.FbDocs)
	for i := range docs {
		docs[i] = vector.FromTerms(tokenizer.Terms(corpus[i].Text))
		scores[i] = float64(cfg.FbDocs - i)
	}
	partition := &Partition{Relevant: []int{0, 1, 2, 3, 4}, NonRelevant: []int{5, 6, 7}}

	for _, kind := range Kinds() {
		m, err := New(kind, tokenizer.Analyzer{}, cfg, DefaultParams(), nil)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(kind, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				in := Input{
					Query:     "banana slug",
					Docs:      docs,
					Scores:    scores,
					Partition: partition,
					Stats:     stats.New(idx, feedbacktest.Field, nil),
				}
				if _, err := m.Estimate(context.Background(), in); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
