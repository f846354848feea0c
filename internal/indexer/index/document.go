package index

import (
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/tokenizer"
)

// Document is the unit of ingestion: an external id plus named text fields.
type Document struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// StoredDoc is what the index keeps per document besides postings: the raw
// field text, analyzed field lengths, term vectors for the configured
// fields and an optional numeric secondary id.
type StoredDoc struct {
	Handle      int64                       `json:"handle"`
	ID          string                      `json:"id"`
	Fields      map[string]string           `json:"fields"`
	Lengths     map[string]int              `json:"lengths"`
	Vectors     map[string]map[string]int64 `json:"vectors,omitempty"`
	SecondaryID int64                       `json:"secondary_id,omitempty"`
}

// Options controls which per-document structures Analyze produces.
type Options struct {
	TermVectorFields []string
	SecondaryIDField string
}

// Analyzed is a tokenized document ready to be added to a MemoryIndex.
type Analyzed struct {
	Doc      StoredDoc
	Postings map[string]*Posting
}

// Analyze tokenizes every field of doc and builds its postings, keyed by
// field-qualified term.
func Analyze(handle int64, doc Document, opts Options) Analyzed {
	stored := StoredDoc{
		Handle:  handle,
		ID:      doc.ID,
		Fields:  make(map[string]string, len(doc.Fields)),
		Lengths: make(map[string]int, len(doc.Fields)),
	}
	vectorFields := make(map[string]bool, len(opts.TermVectorFields))
	for _, f := range opts.TermVectorFields {
		vectorFields[f] = true
	}

	postings := make(map[string]*Posting)
	for field, text := range doc.Fields {
		stored.Fields[field] = text
		if field == opts.SecondaryIDField {
			if id, err := strconv.ParseInt(text, 10, 64); err == nil {
				stored.SecondaryID = id
			}
		}
		tokens := tokenizer.Tokenize(text)
		stored.Lengths[field] = len(tokens)

		var vec map[string]int64
		if vectorFields[field] {
			vec = make(map[string]int64)
			if stored.Vectors == nil {
				stored.Vectors = make(map[string]map[string]int64)
			}
			stored.Vectors[field] = vec
		}
		for _, token := range tokens {
			key := Key(field, token.Term)
			p, exists := postings[key]
			if !exists {
				p = &Posting{
					Handle:    handle,
					DocID:     doc.ID,
					Positions: make([]int, 0, 4),
				}
				postings[key] = p
			}
			p.Frequency++
			p.Positions = append(p.Positions, token.Position)
			if vec != nil {
				vec[token.Term]++
			}
		}
	}
	return Analyzed{Doc: stored, Postings: postings}
}
