// Package vector implements the sparse term-weight vector used for
// document representations and feedback models.
//
// Mutating methods return the receiver so calls chain:
//
//	fb.PruneToSize(10).ScaleToUnitL1Norm()
//
// Ordering, whenever one is needed, is weight descending then term
// ascending, so pruning and output are deterministic.
package vector

import (
	"math"
	"sort"
)

// Entry is one (term, weight) pair.
type Entry struct {
	Term   string
	Weight float64
}

// Vector maps terms to weights. The zero value is not usable; call New.
type Vector struct {
	w map[string]float64
}

func New() *Vector {
	return &Vector{w: make(map[string]float64)}
}

// FromTerms counts term occurrences.
func FromTerms(terms []string) *Vector {
	v := New()
	for _, t := range terms {
		v.w[t]++
	}
	return v
}

// FromCounts converts integer term frequencies.
func FromCounts(counts map[string]int64) *Vector {
	v := &Vector{w: make(map[string]float64, len(counts))}
	for t, n := range counts {
		v.w[t] = float64(n)
	}
	return v
}

func (v *Vector) Add(term string, delta float64) *Vector {
	v.w[term] += delta
	return v
}

func (v *Vector) Set(term string, weight float64) *Vector {
	v.w[term] = weight
	return v
}

// Weight returns 0 for absent terms.
func (v *Vector) Weight(term string) float64 { return v.w[term] }

func (v *Vector) Has(term string) bool {
	_, ok := v.w[term]
	return ok
}

func (v *Vector) Len() int { return len(v.w) }

// Terms returns the terms in ascending order.
func (v *Vector) Terms() []string {
	terms := make([]string, 0, len(v.w))
	for t := range v.w {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// Entries returns every entry ordered by weight descending, term ascending.
func (v *Vector) Entries() []Entry {
	entries := make([]Entry, 0, len(v.w))
	for t, w := range v.w {
		entries = append(entries, Entry{Term: t, Weight: w})
	}
	sort.Slice(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
	return entries
}

func less(a, b Entry) bool {
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	return a.Term < b.Term
}

// PruneToSize keeps the k highest-weighted entries.
func (v *Vector) PruneToSize(k int) *Vector {
	if k < 0 {
		k = 0
	}
	if len(v.w) <= k {
		return v
	}
	entries := v.Entries()
	v.w = make(map[string]float64, k)
	for _, e := range entries[:k] {
		v.w[e.Term] = e.Weight
	}
	return v
}

// PruneToThreshold drops entries whose weight is below eps.
func (v *Vector) PruneToThreshold(eps float64) *Vector {
	for t, w := range v.w {
		if w < eps {
			delete(v.w, t)
		}
	}
	return v
}

// L1Norm is the sum of absolute weights.
func (v *Vector) L1Norm() float64 {
	var sum float64
	for _, w := range v.w {
		sum += math.Abs(w)
	}
	return sum
}

// MaxNorm is the largest weight, 0 for an empty vector.
func (v *Vector) MaxNorm() float64 {
	var max float64
	first := true
	for _, w := range v.w {
		if first || w > max {
			max = w
			first = false
		}
	}
	return max
}

// ScaleToUnitL1Norm divides every weight by the L1 norm. A vector whose
// norm is zero is left unchanged.
func (v *Vector) ScaleToUnitL1Norm() *Vector {
	norm := v.L1Norm()
	if norm == 0 {
		return v
	}
	for t, w := range v.w {
		v.w[t] = w / norm
	}
	return v
}

// NonFinite returns the NaN and infinite entries, ordered by term.
func (v *Vector) NonFinite() []Entry {
	var out []Entry
	for t, w := range v.w {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			out = append(out, Entry{Term: t, Weight: w})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Term < out[j].Term })
	return out
}

// DropNaN removes NaN and infinite weights.
func (v *Vector) DropNaN() *Vector {
	for t, w := range v.w {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			delete(v.w, t)
		}
	}
	return v
}

func (v *Vector) Clone() *Vector {
	c := &Vector{w: make(map[string]float64, len(v.w))}
	for t, w := range v.w {
		c.w[t] = w
	}
	return c
}

// LinearCombine returns wa·a + wb·b over the union of the keys of the
// operands whose coefficient is non-zero.
func LinearCombine(a, b *Vector, wa, wb float64) *Vector {
	out := New()
	if wa != 0 {
		for t, w := range a.w {
			out.w[t] += wa * w
		}
	}
	if wb != 0 {
		for t, w := range b.w {
			out.w[t] += wb * w
		}
	}
	return out
}

// Interpolate returns wa·a + (1-wa)·b.
func Interpolate(a, b *Vector, wa float64) *Vector {
	return LinearCombine(a, b, wa, 1-wa)
}

// Vocabulary returns the union of the terms of vs, ascending.
func Vocabulary(vs []*Vector) []string {
	seen := make(map[string]struct{})
	for _, v := range vs {
		if v == nil {
			continue
		}
		for t := range v.w {
			seen[t] = struct{}{}
		}
	}
	terms := make([]string, 0, len(seen))
	for t := range seen {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}
