package tokenizer

import (
	"strings"
	"testing"
)

var benchTexts = map[string]string{
	"short": "Banana slug: Ariolimax columbianus",
	"medium": `Pseudo-relevance feedback assumes the top documents of a first-pass
        ranking are relevant, estimates a term model from them and issues an
        expanded query. The expansion terms are weighted by their frequency in
        the feedback documents and smoothed with collection statistics.`,
	"long": strings.Repeat(`Relevance models interpolate the original query with terms drawn
        from feedback documents. Rocchio moves the query vector toward judged
        relevant documents and away from non-relevant ones, while divergence
        from randomness models score terms against an information-based prior.
        Mixture models distill the relevant language model with expectation
        maximisation over background and non-relevant components. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range benchTexts {
		b.Run(name, func(b *testing.B) {
			b.SetBytes(int64(len(text)))
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}

func BenchmarkTerms(b *testing.B) {
	text := benchTexts["long"]
	b.SetBytes(int64(len(text)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Terms(text)
	}
}
