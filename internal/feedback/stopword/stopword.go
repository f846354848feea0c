// Package stopword decides which terms may enter a feedback model.
package stopword

import (
	"regexp"
	"unicode/utf8"
)

const (
	minTermLen = 2
	maxTermLen = 20

	// Document-frequency ratios above which a term counts as a stopword.
	shortTextLargeThreshold = 0.007
	shortTextThreshold      = 0.01
	defaultThreshold        = 0.1

	largeCollection = 100_000_000
)

var admissible = regexp.MustCompile(`^[a-z0-9]+$`)

// Filter discards malformed terms and, when RemoveStopwords is set, terms
// that occur in too large a share of the collection.
type Filter struct {
	RemoveStopwords bool
	ShortText       bool
}

// Admissible reports whether term has an acceptable shape, independent of
// collection statistics.
func Admissible(term string) bool {
	n := utf8.RuneCountInString(term)
	if n < minTermLen || n > maxTermLen {
		return false
	}
	return admissible.MatchString(term)
}

// NeedsDocFreq reports whether Keep consults its df argument.
func (f Filter) NeedsDocFreq() bool { return f.RemoveStopwords }

// Threshold is the df ratio above which a term is discarded for a
// collection of numDocs documents.
func (f Filter) Threshold(numDocs int64) float64 {
	if f.ShortText {
		if numDocs > largeCollection {
			return shortTextLargeThreshold
		}
		return shortTextThreshold
	}
	return defaultThreshold
}

// Keep reports whether term survives the filter. A term at exactly the
// threshold is kept. numDocs <= 0 disables the frequency test.
func (f Filter) Keep(term string, df, numDocs int64) bool {
	if !Admissible(term) {
		return false
	}
	if !f.RemoveStopwords || numDocs <= 0 {
		return true
	}
	return float64(df)/float64(numDocs) <= f.Threshold(numDocs)
}
