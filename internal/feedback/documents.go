package feedback

import (
	"fmt"
	"sort"
	"strings"
)

// TieBreak orders documents whose scores are equal.
type TieBreak int

const (
	// TieBreakArbitrary keeps the engine's internal order (ascending handle).
	TieBreakArbitrary TieBreak = iota
	// TieBreakDocID orders by external id ascending.
	TieBreakDocID
	// TieBreakSecondary orders by secondary id descending, newest first for
	// tweet-like corpora.
	TieBreakSecondary
)

func (t TieBreak) String() string {
	switch t {
	case TieBreakArbitrary:
		return "arbitrary"
	case TieBreakDocID:
		return "docid"
	case TieBreakSecondary:
		return "secondary"
	default:
		return fmt.Sprintf("tiebreak(%d)", int(t))
	}
}

// ParseTieBreak accepts the names produced by String. The empty string is
// TieBreakDocID.
func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "docid":
		return TieBreakDocID, nil
	case "arbitrary":
		return TieBreakArbitrary, nil
	case "secondary":
		return TieBreakSecondary, nil
	default:
		return 0, fmt.Errorf("%w: unknown tie break %q", ErrInvalidConfig, s)
	}
}

// DocRef is one row of a ScoredDocuments list.
type DocRef struct {
	Handle      int64
	ID          string
	Score       float64
	SecondaryID int64
}

// Less orders a before b: higher score first, then by the tie-break key.
func (t TieBreak) Less(a, b DocRef) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	switch t {
	case TieBreakDocID:
		if a.ID != b.ID {
			return a.ID < b.ID
		}
	case TieBreakSecondary:
		if a.SecondaryID != b.SecondaryID {
			return a.SecondaryID > b.SecondaryID
		}
	}
	return a.Handle < b.Handle
}

// ScoredDocuments is a ranked result list held as parallel slices.
// SecondaryIDs may be nil.
type ScoredDocuments struct {
	Handles      []int64   `json:"handles"`
	IDs          []string  `json:"ids"`
	Scores       []float64 `json:"scores"`
	SecondaryIDs []int64   `json:"secondary_ids,omitempty"`
}

func (d ScoredDocuments) Len() int { return len(d.IDs) }

func (d ScoredDocuments) Validate() error {
	n := len(d.IDs)
	if len(d.Handles) != n || len(d.Scores) != n {
		return fmt.Errorf("%w: scored documents have %d ids, %d handles, %d scores",
			ErrInvalidInput, n, len(d.Handles), len(d.Scores))
	}
	if d.SecondaryIDs != nil && len(d.SecondaryIDs) != n {
		return fmt.Errorf("%w: scored documents have %d ids but %d secondary ids",
			ErrInvalidInput, n, len(d.SecondaryIDs))
	}
	return nil
}

func (d ScoredDocuments) Ref(i int) DocRef {
	ref := DocRef{Handle: d.Handles[i], ID: d.IDs[i], Score: d.Scores[i]}
	if d.SecondaryIDs != nil {
		ref.SecondaryID = d.SecondaryIDs[i]
	}
	return ref
}

// Append adds one row.
func (d *ScoredDocuments) Append(ref DocRef) {
	d.Handles = append(d.Handles, ref.Handle)
	d.IDs = append(d.IDs, ref.ID)
	d.Scores = append(d.Scores, ref.Score)
	if d.SecondaryIDs != nil || ref.SecondaryID != 0 {
		for len(d.SecondaryIDs) < len(d.IDs)-1 {
			d.SecondaryIDs = append(d.SecondaryIDs, 0)
		}
		d.SecondaryIDs = append(d.SecondaryIDs, ref.SecondaryID)
	}
}

// Sort returns a copy ordered by score with ties resolved by tb. Scores are
// not modified.
func (d ScoredDocuments) Sort(tb TieBreak) ScoredDocuments {
	refs := make([]DocRef, d.Len())
	for i := range refs {
		refs[i] = d.Ref(i)
	}
	sort.SliceStable(refs, func(i, j int) bool { return tb.Less(refs[i], refs[j]) })

	out := ScoredDocuments{
		Handles: make([]int64, len(refs)),
		IDs:     make([]string, len(refs)),
		Scores:  make([]float64, len(refs)),
	}
	if d.SecondaryIDs != nil {
		out.SecondaryIDs = make([]int64, len(refs))
	}
	for i, r := range refs {
		out.Handles[i] = r.Handle
		out.IDs[i] = r.ID
		out.Scores[i] = r.Score
		if out.SecondaryIDs != nil {
			out.SecondaryIDs[i] = r.SecondaryID
		}
	}
	return out
}

// Truncate returns the first k rows.
func (d ScoredDocuments) Truncate(k int) ScoredDocuments {
	if k < 0 || k >= d.Len() {
		return d
	}
	out := ScoredDocuments{Handles: d.Handles[:k], IDs: d.IDs[:k], Scores: d.Scores[:k]}
	if d.SecondaryIDs != nil {
		out.SecondaryIDs = d.SecondaryIDs[:k]
	}
	return out
}
