package model

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/feedbacktest"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/stats"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/vector"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/tokenizer"
)

const tol = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < tol }

func toyVectors() []*vector.Vector {
	out := make([]*vector.Vector, len(feedbacktest.ToyCorpus))
	for i, d := range feedbacktest.ToyCorpus {
		out[i] = vector.FromTerms(tokenizer.Terms(d.Text))
	}
	return out
}

func toyConfig() feedback.Config {
	cfg := feedback.DefaultConfig()
	cfg.RemoveStopwords = false
	return cfg
}

func toyInput(idx *feedbacktest.Index, docs []*vector.Vector, scores []float64) Input {
	return Input{
		Query:  "banana slug",
		Docs:   docs,
		Scores: scores,
		Stats:  stats.New(idx, feedbacktest.Field, nil),
	}
}

func TestPartitionValidate(t *testing.T) {
	tests := []struct {
		name string
		p    Partition
		ok   bool
	}{
		{"empty", Partition{}, true},
		{"valid", Partition{Relevant: []int{0, 1}, NonRelevant: []int{2}}, true},
		{"out of range", Partition{Relevant: []int{3}}, false},
		{"negative", Partition{NonRelevant: []int{-1}}, false},
		{"overlap", Partition{Relevant: []int{1}, NonRelevant: []int{1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate(3)
			if (err == nil) != tt.ok {
				t.Fatalf("Validate = %v, ok %v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, feedback.ErrInvalidPartition) {
				t.Errorf("error %v does not wrap ErrInvalidPartition", err)
			}
		})
	}
}

func TestRM3(t *testing.T) {
	m := NewRM3(tokenizer.Analyzer{}, toyConfig(), nil)
	in := toyInput(feedbacktest.Toy(), toyVectors()[:2], []float64{1, 0.5})
	got, err := m.Estimate(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	// fb(banana) = (1/4·1 + 1/5·0.5) / 1.5, interpolated with q(banana) = 0.5.
	if want := 0.25 + 0.5*0.35/1.5; !near(got.Weight("banana"), want) {
		t.Errorf("banana = %.6f, want %.6f", got.Weight("banana"), want)
	}
	if want := 0.5 * 0.1 / 1.5; !near(got.Weight("santa"), want) {
		t.Errorf("santa = %.6f, want %.6f", got.Weight("santa"), want)
	}
	if !near(got.L1Norm(), 1) {
		t.Errorf("L1 = %g", got.L1Norm())
	}
	if got.Len() != 7 {
		t.Errorf("terms = %v", got.Terms())
	}
}

func TestRM3PrunesFeedbackTerms(t *testing.T) {
	cfg := toyConfig()
	cfg.FbTerms = 2
	m := NewRM3(tokenizer.Analyzer{}, cfg, nil)
	got, err := m.Estimate(context.Background(), toyInput(feedbacktest.Toy(), toyVectors()[:2], []float64{1, 0.5}))
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 2 || !near(got.Weight("banana"), 0.5) || !near(got.Weight("slug"), 0.5) {
		t.Errorf("model = %v", got.Entries())
	}
}

func TestRM3InterpolationExtremes(t *testing.T) {
	ctx := context.Background()
	docs := toyVectors()
	scores := []float64{1, 0.5, 0.25}

	cfg := toyConfig()
	cfg.OriginalQueryWeight = 1
	onlyQuery, err := NewRM3(tokenizer.Analyzer{}, cfg, nil).Estimate(ctx, toyInput(feedbacktest.Toy(), docs, scores))
	if err != nil {
		t.Fatal(err)
	}
	if onlyQuery.Len() != 2 || onlyQuery.Weight("banana") != 0.5 {
		t.Errorf("weight 1 = %v", onlyQuery.Entries())
	}

	cfg.OriginalQueryWeight = 0
	onlyFeedback, err := NewRM3(tokenizer.Analyzer{}, cfg, nil).Estimate(ctx, toyInput(feedbacktest.Toy(), docs, scores))
	if err != nil {
		t.Fatal(err)
	}
	if onlyFeedback.Len() != 10 || !near(onlyFeedback.L1Norm(), 1) {
		t.Errorf("weight 0 = %v", onlyFeedback.Entries())
	}
}

func TestRM3IgnoresDegenerateDocuments(t *testing.T) {
	ctx := context.Background()
	m := NewRM3(tokenizer.Analyzer{}, toyConfig(), nil)
	docs := toyVectors()[:2]
	base, err := m.Estimate(ctx, toyInput(feedbacktest.Toy(), docs, []float64{1, 0.5}))
	if err != nil {
		t.Fatal(err)
	}

	withEmpty := append([]*vector.Vector{vector.New()}, docs...)
	got, err := m.Estimate(ctx, toyInput(feedbacktest.Toy(), withEmpty, []float64{10, 1, 0.5}))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range base.Entries() {
		if !near(got.Weight(e.Term), e.Weight) {
			t.Errorf("%s = %g, want %g", e.Term, got.Weight(e.Term), e.Weight)
		}
	}
}

func TestRM3RejectsShortScores(t *testing.T) {
	m := NewRM3(tokenizer.Analyzer{}, toyConfig(), nil)
	_, err := m.Estimate(context.Background(), toyInput(feedbacktest.Toy(), toyVectors(), []float64{1}))
	if !errors.Is(err, feedback.ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}
}

func rocchioExpected() (banana, ariolimax float64) {
	q := math.Log(3.0 / 2)
	a := math.Log(3.0)
	banana = q + 0.85*q
	ariolimax = 0.85 * a
	total := 2*banana + 2*ariolimax
	return banana / total, ariolimax / total
}

func TestRocchio(t *testing.T) {
	m := NewRocchio(tokenizer.Analyzer{}, toyConfig(), DefaultRocchioParams(), nil)
	in := toyInput(feedbacktest.Toy(), toyVectors(), []float64{3, 2, 1})
	in.Partition = &Partition{Relevant: []int{0}, NonRelevant: []int{2}}
	got, err := m.Estimate(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	wantBanana, wantArio := rocchioExpected()
	if !near(got.Weight("banana"), wantBanana) || !near(got.Weight("ariolimax"), wantArio) {
		t.Errorf("model = %v, want banana %.6f ariolimax %.6f", got.Entries(), wantBanana, wantArio)
	}
	if got.Has("santa") || got.Len() != 4 {
		t.Errorf("gamma 0 let non-relevant terms in: %v", got.Terms())
	}
}

func TestRocchioGammaDropsNegativeTerms(t *testing.T) {
	params := DefaultRocchioParams()
	params.Gamma = 0.5
	m := NewRocchio(tokenizer.Analyzer{}, toyConfig(), params, nil)
	in := toyInput(feedbacktest.Toy(), toyVectors(), []float64{3, 2, 1})
	in.Partition = &Partition{Relevant: []int{0}, NonRelevant: []int{2}}
	got, err := m.Estimate(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range got.Entries() {
		if e.Weight < rocchioThreshold {
			t.Errorf("%s kept with weight %g", e.Term, e.Weight)
		}
	}
	if got.Has("campu") || !got.Has("banana") {
		t.Errorf("terms = %v", got.Terms())
	}
}

func TestRocchioRequiresPartition(t *testing.T) {
	m := NewRocchio(tokenizer.Analyzer{}, toyConfig(), DefaultRocchioParams(), nil)
	in := toyInput(feedbacktest.Toy(), toyVectors(), []float64{3, 2, 1})
	if _, err := m.Estimate(context.Background(), in); !errors.Is(err, feedback.ErrPartitionRequired) {
		t.Errorf("err = %v", err)
	}
	in.Partition = &Partition{Relevant: []int{5}}
	if _, err := m.Estimate(context.Background(), in); !errors.Is(err, feedback.ErrInvalidPartition) {
		t.Errorf("err = %v", err)
	}
}

func TestRocchioSkipsTermsWithoutStats(t *testing.T) {
	idx := feedbacktest.Toy()
	idx.TermErr["ariolimax"] = errors.New("lookup failed")
	events := &feedbacktest.Events{}
	m := NewRocchio(tokenizer.Analyzer{}, toyConfig(), DefaultRocchioParams(), events)
	in := toyInput(idx, toyVectors(), []float64{3, 2, 1})
	in.Stats = stats.New(idx, feedbacktest.Field, events)
	in.Partition = &Partition{Relevant: []int{0}}
	got, err := m.Estimate(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if got.Has("ariolimax") || !got.Has("columbianu") {
		t.Errorf("terms = %v", got.Terms())
	}
	if len(events.Stats) != 1 {
		t.Errorf("stats events = %v", events.Stats)
	}
}

func logLogisticWeight(c float64, tfs, lens []float64, total int) float64 {
	avgLen := 13.0 / 3
	lambda := 2.0 / 3
	var w float64
	for i, tf := range tfs {
		t := tf * math.Log(1+c*avgLen/lens[i])
		w += math.Log((t + lambda) / lambda)
	}
	return w / float64(total)
}

func TestLogLogistic(t *testing.T) {
	m := NewLogLogistic(tokenizer.Analyzer{}, toyConfig(), LogLogisticParams{C: 0.5}, nil)
	got, err := m.Estimate(context.Background(), toyInput(feedbacktest.Toy(), toyVectors(), []float64{3, 2, 1}))
	if err != nil {
		t.Fatal(err)
	}
	want := logLogisticWeight(0.5, []float64{1, 1, 0}, []float64{4, 5, 4}, 3)
	if !near(got.Weight("banana"), want) {
		t.Errorf("banana = %.9f, want %.9f", got.Weight("banana"), want)
	}
	if got.Len() != 10 {
		t.Errorf("without pruning all terms stay, got %d", got.Len())
	}
}

func TestLogLogisticMonotoneInTF(t *testing.T) {
	const docLen = 6
	m := NewLogLogistic(tokenizer.Analyzer{}, toyConfig(), LogLogisticParams{}, nil)
	prev := -1.0
	for tf := 0; tf <= docLen; tf++ {
		terms := make([]string, 0, docLen)
		for i := 0; i < docLen; i++ {
			if i < tf {
				terms = append(terms, "banana")
			} else {
				terms = append(terms, "slug")
			}
		}
		in := toyInput(feedbacktest.Toy(), []*vector.Vector{vector.FromTerms(terms)}, []float64{1})
		got, err := m.Estimate(context.Background(), in)
		if err != nil {
			t.Fatal(err)
		}
		w := got.Weight("banana")
		if w < prev {
			t.Errorf("tf %d: weight %g below tf %d weight %g", tf, w, tf-1, prev)
		}
		prev = w
	}
}

func TestLogLogisticDividesByAllDocuments(t *testing.T) {
	m := NewLogLogistic(tokenizer.Analyzer{}, toyConfig(), LogLogisticParams{C: 0.5}, nil)
	docs := append(toyVectors(), vector.New())
	got, err := m.Estimate(context.Background(), toyInput(feedbacktest.Toy(), docs, []float64{3, 2, 1, 0}))
	if err != nil {
		t.Fatal(err)
	}
	want := logLogisticWeight(0.5, []float64{1, 1, 0}, []float64{4, 5, 4}, 4)
	if !near(got.Weight("banana"), want) {
		t.Errorf("banana = %.9f, want %.9f", got.Weight("banana"), want)
	}
}

func TestLogLogisticPruneAndNormalize(t *testing.T) {
	cfg := toyConfig()
	cfg.PruneModel = true
	cfg.Normalize = true
	cfg.FbTerms = 3
	m := NewLogLogistic(tokenizer.Analyzer{}, cfg, LogLogisticParams{}, nil)
	got, err := m.Estimate(context.Background(), toyInput(feedbacktest.Toy(), toyVectors(), []float64{3, 2, 1}))
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 3 || !near(got.L1Norm(), 1) {
		t.Errorf("model = %v", got.Entries())
	}
	if !strings.Contains(m.Tag(), "c=0.2") {
		t.Errorf("default c missing from tag %q", m.Tag())
	}
}

func TestCollectionUnavailableYieldsEmptyModel(t *testing.T) {
	idx := feedbacktest.Toy()
	idx.CollectionErr = errors.New("stats service down")
	events := &feedbacktest.Events{}
	part := &Partition{Relevant: []int{0}, NonRelevant: []int{2}}
	models := []Model{
		NewLogLogistic(tokenizer.Analyzer{}, toyConfig(), LogLogisticParams{}, events),
		NewRocchio(tokenizer.Analyzer{}, toyConfig(), DefaultRocchioParams(), events),
		NewDistill(tokenizer.Analyzer{}, toyConfig(), DefaultDistillParams(), events),
	}
	for _, m := range models {
		in := toyInput(idx, toyVectors(), []float64{3, 2, 1})
		in.Stats = stats.New(idx, feedbacktest.Field, events)
		in.Partition = part
		got, err := m.Estimate(context.Background(), in)
		if err != nil {
			t.Fatalf("%s: %v", m.Name(), err)
		}
		if got.Len() != 0 {
			t.Errorf("%s: model = %v, want empty", m.Name(), got.Entries())
		}
	}
	if events.Collections != len(models) {
		t.Errorf("collection events = %d", events.Collections)
	}
}

func distillInput() Input {
	in := toyInput(feedbacktest.Toy(), toyVectors(), []float64{3, 2, 1})
	in.Partition = &Partition{Relevant: []int{0, 1}, NonRelevant: []int{2}}
	return in
}

func TestDistill(t *testing.T) {
	m := NewDistill(tokenizer.Analyzer{}, toyConfig(), DefaultDistillParams(), nil)
	iterations := 0
	m.OnIteration = func(int, *vector.Vector, float64) { iterations++ }
	got, err := m.Estimate(context.Background(), distillInput())
	if err != nil {
		t.Fatal(err)
	}
	if iterations != 100 {
		t.Errorf("iterations = %d, want 100", iterations)
	}
	if !near(got.L1Norm(), 1) || got.Len() != 7 {
		t.Errorf("model = %v", got.Entries())
	}
	if !near(got.Weight("banana"), got.Weight("slug")) {
		t.Errorf("banana %g != slug %g", got.Weight("banana"), got.Weight("slug"))
	}
	// santa and cruz are explained by the non-relevant document too.
	if got.Weight("santa") >= got.Weight("banana") {
		t.Errorf("santa %g should weigh less than banana %g", got.Weight("santa"), got.Weight("banana"))
	}
	if got.Has("campu") {
		t.Error("non-relevant-only term in model")
	}
}

func TestDistillEveryIterationIsDistribution(t *testing.T) {
	m := NewDistill(tokenizer.Analyzer{}, toyConfig(), DefaultDistillParams(), nil)
	m.OnIteration = func(i int, p *vector.Vector, _ float64) {
		for _, e := range p.Entries() {
			if e.Weight < 0 {
				t.Errorf("iteration %d: %s = %g", i, e.Term, e.Weight)
			}
		}
		if !near(p.L1Norm(), 1) {
			t.Errorf("iteration %d: L1 = %g", i, p.L1Norm())
		}
	}
	if _, err := m.Estimate(context.Background(), distillInput()); err != nil {
		t.Fatal(err)
	}
}

func TestDistillFirstIteration(t *testing.T) {
	params := DefaultDistillParams()
	params.Iterations = 1
	m := NewDistill(tokenizer.Analyzer{}, toyConfig(), params, nil)
	got, err := m.Estimate(context.Background(), distillInput())
	if err != nil {
		t.Fatal(err)
	}
	// p_rel(banana) = 2/9, p_c = 2/13; p_rel(ariolimax) = 1/9, p_c = 1/13;
	// neither occurs in the non-relevant document.
	tnBanana := 0.7 * 2 / 9 / (0.7*2/9 + 0.1*2/13)
	tnArio := 0.7 * 1 / 9 / (0.7*1/9 + 0.1*1/13)
	want := (2 * tnBanana) / (1 * tnArio)
	if ratio := got.Weight("banana") / got.Weight("ariolimax"); !near(ratio, want) {
		t.Errorf("banana/ariolimax = %.9f, want %.9f", ratio, want)
	}
}

func TestDistillIterationsUseSnapshots(t *testing.T) {
	params := DefaultDistillParams()
	params.Iterations = 5
	m := NewDistill(tokenizer.Analyzer{}, toyConfig(), params, nil)
	var first *vector.Vector
	var firstBanana float64
	m.OnIteration = func(i int, p *vector.Vector, _ float64) {
		if i == 0 {
			first, firstBanana = p, p.Weight("banana")
		}
	}
	final, err := m.Estimate(context.Background(), distillInput())
	if err != nil {
		t.Fatal(err)
	}
	if first == final || first.Weight("banana") != firstBanana {
		t.Error("iteration snapshot was mutated by later iterations")
	}
}

func TestFactory(t *testing.T) {
	for _, kind := range Kinds() {
		m, err := New(kind, tokenizer.Analyzer{}, toyConfig(), DefaultParams(), nil)
		if err != nil {
			t.Fatalf("New(%s): %v", kind, err)
		}
		if m.Name() != kind || m.Tag() == "" {
			t.Errorf("%s: name %q tag %q", kind, m.Name(), m.Tag())
		}
	}
	if _, err := New("bm25", tokenizer.Analyzer{}, toyConfig(), DefaultParams(), nil); !errors.Is(err, feedback.ErrUnknownModel) {
		t.Errorf("unknown kind err = %v", err)
	}
	bad := toyConfig()
	bad.FbDocs = 0
	if _, err := New(KindRM3, tokenizer.Analyzer{}, bad, DefaultParams(), nil); !errors.Is(err, feedback.ErrInvalidConfig) {
		t.Errorf("bad config err = %v", err)
	}
	params := DefaultParams()
	params.Distill.Iterations = 0
	if _, err := New(KindDistill, tokenizer.Analyzer{}, toyConfig(), params, nil); !errors.Is(err, feedback.ErrInvalidConfig) {
		t.Errorf("bad distill params err = %v", err)
	}
	m, _ := New(KindRM3, tokenizer.Analyzer{}, toyConfig(), DefaultParams(), nil)
	if want := "RM3(fbDocs=10,fbTerms=10,originalQueryWeight=0.5)"; m.Tag() != want {
		t.Errorf("tag = %q, want %q", m.Tag(), want)
	}
}

func TestEstimateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewLogLogistic(tokenizer.Analyzer{}, toyConfig(), LogLogisticParams{}, nil)
	if _, err := m.Estimate(ctx, toyInput(feedbacktest.Toy(), toyVectors(), []float64{3, 2, 1})); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}
