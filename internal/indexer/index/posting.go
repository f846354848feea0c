package index

import "strings"

// Posting records one document's occurrences of a term. Handle is the
// engine-assigned internal document number.
type Posting struct {
	Handle    int64  `json:"h"`
	DocID     string `json:"id"`
	Frequency int    `json:"f"`
	Positions []int  `json:"p,omitempty"`
}

type PostingList []Posting

// TermEntry holds the postings of one field-qualified term key.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// TotalFrequency sums term occurrences over the list.
func (pl PostingList) TotalFrequency() int64 {
	var total int64
	for _, p := range pl {
		total += int64(p.Frequency)
	}
	return total
}

// Key qualifies term with its field, e.g. "contents:banana".
func Key(field, term string) string {
	return field + ":" + term
}

// SplitKey is the inverse of Key.
func SplitKey(key string) (field, term string) {
	field, term, _ = strings.Cut(key, ":")
	return field, term
}
