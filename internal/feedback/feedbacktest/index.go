// Package feedbacktest provides an in-memory feedback.Index over a small
// corpus for tests of the feedback packages.
package feedbacktest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/tokenizer"
)

// Field is the only field the test index knows.
const Field = "contents"

// Doc is one corpus entry.
type Doc struct {
	ID   string
	Text string
}

// ToyCorpus is a three-document corpus. After analysis:
//
//	doc0: banana slug ariolimax columbianu
//	doc1: santa cruz mountain banana slug
//	doc2: santa cruz campu mascot
var ToyCorpus = []Doc{
	{ID: "doc0", Text: "Banana slug: Ariolimax columbianus"},
	{ID: "doc1", Text: "Santa Cruz mountains banana slug"},
	{ID: "doc2", Text: "Santa Cruz campus mascot"},
}

// Index serves statistics computed from its documents. The exported
// fields inject failures and may be set before use.
type Index struct {
	// NoVectors makes DocumentVector report ErrNoTermVector for every doc.
	NoVectors bool
	// VectorErr and TextErr fail retrieval of specific documents.
	VectorErr map[string]error
	TextErr   map[string]error
	// TermErr fails TermStatistics for specific terms.
	TermErr map[string]error
	// CollectionErr fails CollectionStatistics.
	CollectionErr error

	texts map[string]string
	terms map[string]map[string]int64
	df    map[string]int64
	ttf   map[string]int64
	sum   int64

	mu    sync.Mutex
	calls map[string]int
}

var _ feedback.Index = (*Index)(nil)

func NewIndex(docs ...Doc) *Index {
	idx := &Index{
		VectorErr: map[string]error{},
		TextErr:   map[string]error{},
		TermErr:   map[string]error{},
		texts:     map[string]string{},
		terms:     map[string]map[string]int64{},
		df:        map[string]int64{},
		ttf:       map[string]int64{},
		calls:     map[string]int{},
	}
	for _, d := range docs {
		idx.texts[d.ID] = d.Text
		counts := map[string]int64{}
		for _, t := range tokenizer.Terms(d.Text) {
			counts[t]++
			idx.ttf[t]++
			idx.sum++
		}
		for t := range counts {
			idx.df[t]++
		}
		idx.terms[d.ID] = counts
	}
	return idx
}

// Toy returns an index over ToyCorpus.
func Toy() *Index { return NewIndex(ToyCorpus...) }

// Calls reports how often method was invoked.
func (i *Index) Calls(method string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls[method]
}

func (i *Index) count(method string) {
	i.mu.Lock()
	i.calls[method]++
	i.mu.Unlock()
}

func (i *Index) DocumentVector(ctx context.Context, docID, field string) (map[string]int64, error) {
	i.count("DocumentVector")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := i.VectorErr[docID]; err != nil {
		return nil, err
	}
	if i.NoVectors {
		return nil, feedback.ErrNoTermVector
	}
	counts, ok := i.terms[docID]
	if !ok {
		return nil, fmt.Errorf("document %s not found", docID)
	}
	out := make(map[string]int64, len(counts))
	for t, n := range counts {
		out[t] = n
	}
	return out, nil
}

func (i *Index) DocumentText(ctx context.Context, docID, field string) (string, error) {
	i.count("DocumentText")
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := i.TextErr[docID]; err != nil {
		return "", err
	}
	text, ok := i.texts[docID]
	if !ok {
		return "", fmt.Errorf("document %s not found", docID)
	}
	return text, nil
}

func (i *Index) DocumentFrequency(ctx context.Context, field, term string) (int64, error) {
	ts, err := i.TermStatistics(ctx, field, term)
	return ts.DocFreq, err
}

func (i *Index) TermStatistics(ctx context.Context, field, term string) (feedback.TermStats, error) {
	i.count("TermStatistics")
	if err := ctx.Err(); err != nil {
		return feedback.TermStats{}, err
	}
	if err := i.TermErr[term]; err != nil {
		return feedback.TermStats{}, err
	}
	return feedback.TermStats{DocFreq: i.df[term], TotalTermFreq: i.ttf[term]}, nil
}

func (i *Index) CollectionStatistics(ctx context.Context, field string) (feedback.CollectionStats, error) {
	i.count("CollectionStatistics")
	if err := ctx.Err(); err != nil {
		return feedback.CollectionStats{}, err
	}
	if i.CollectionErr != nil {
		return feedback.CollectionStats{}, i.CollectionErr
	}
	return feedback.CollectionStats{DocCount: int64(len(i.texts)), SumTotalTermFreq: i.sum}, nil
}

// Ranked returns ScoredDocuments for ids with the given scores.
func Ranked(ids []string, scores []float64) feedback.ScoredDocuments {
	d := feedback.ScoredDocuments{
		Handles: make([]int64, len(ids)),
		IDs:     append([]string(nil), ids...),
		Scores:  append([]float64(nil), scores...),
	}
	for i := range ids {
		d.Handles[i] = int64(i)
	}
	return d
}

// Events records every diagnostic event.
type Events struct {
	mu          sync.Mutex
	Stats       []string
	Collections int
	Vectors     []string
	Invalid     []string
}

func (e *Events) StatsUnavailable(field, term string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Stats = append(e.Stats, term)
}

func (e *Events) CollectionUnavailable(field string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Collections++
}

func (e *Events) VectorUnavailable(docID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Vectors = append(e.Vectors, docID)
}

func (e *Events) InvalidWeight(model, term string, weight float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Invalid = append(e.Invalid, term)
}
