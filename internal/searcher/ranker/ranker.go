// Package ranker scores candidate documents with weighted BM25.
package ranker

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/index"
)

const (
	k1 = 1.2
	b  = 0.75
)

// TermPostings are the candidate postings of one query term. DocFreq is the
// term's collection document frequency, which may exceed len(Postings) when
// the candidates were filtered.
type TermPostings struct {
	Term     string
	Boost    float64
	DocFreq  int64
	Postings index.PostingList
}

type RankParams struct {
	TotalDocs    int64
	AvgDocLength float64
}

type DocInfo struct {
	Handle      int64
	DocLength   int
	SecondaryID int64
}

// Rank sums boost·idf·tfNorm over the terms for every posted document and
// returns the top limit under tb. A limit of zero or less keeps everything.
func Rank(
	terms []TermPostings,
	params RankParams,
	getDocInfo func(docID string) DocInfo,
	limit int,
	tb feedback.TieBreak,
) feedback.ScoredDocuments {
	scores := make(map[string]float64)
	order := make([]string, 0)
	for _, t := range terms {
		idf := computeIDF(params.TotalDocs, t.DocFreq)
		for _, posting := range t.Postings {
			info := getDocInfo(posting.DocID)
			tfNorm := computeTFNorm(
				float64(posting.Frequency),
				float64(info.DocLength),
				params.AvgDocLength,
			)
			if _, ok := scores[posting.DocID]; !ok {
				order = append(order, posting.DocID)
			}
			scores[posting.DocID] += t.Boost * idf * tfNorm
		}
	}

	var result feedback.ScoredDocuments
	for _, docID := range order {
		info := getDocInfo(docID)
		result.Append(feedback.DocRef{
			Handle:      info.Handle,
			ID:          docID,
			Score:       scores[docID],
			SecondaryID: info.SecondaryID,
		})
	}
	return result.Sort(tb).Truncate(limit)
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
