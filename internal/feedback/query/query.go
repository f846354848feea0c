// Package query turns an estimated feedback model into the weighted
// disjunctive query of the second retrieval pass.
package query

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/vector"
)

// Clause is one SHOULD term of the feedback query.
type Clause struct {
	Term  string  `json:"term"`
	Boost float64 `json:"boost"`
}

// Filter restricts matches to documents whose Field takes one of Values.
// It does not contribute to scores.
type Filter struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// Set returns Values as a lookup set.
func (f Filter) Set() map[string]struct{} {
	s := make(map[string]struct{}, len(f.Values))
	for _, v := range f.Values {
		s[v] = struct{}{}
	}
	return s
}

// Query is a boosted disjunction over one field. A document must satisfy
// every filter.
type Query struct {
	Field   string   `json:"field"`
	Clauses []Clause `json:"clauses"`
	Filters []Filter `json:"filters,omitempty"`
}

// Empty reports whether the query has no scoring clauses.
func (q *Query) Empty() bool { return q == nil || len(q.Clauses) == 0 }

// Terms returns the clause terms in clause order.
func (q *Query) Terms() []string {
	out := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		out[i] = c.Term
	}
	return out
}

// String renders the query in Lucene syntax, e.g.
//
//	+#id:(d1 d2) +((contents:banana)^0.25 (contents:slug)^0.2)
func (q *Query) String() string {
	var sb strings.Builder
	for i, c := range q.Clauses {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("(")
		sb.WriteString(q.Field)
		sb.WriteByte(':')
		sb.WriteString(c.Term)
		sb.WriteString(")^")
		sb.WriteString(strconv.FormatFloat(c.Boost, 'g', 6, 64))
	}
	if len(q.Filters) == 0 {
		return sb.String()
	}

	var out strings.Builder
	for _, f := range q.Filters {
		out.WriteString("+#")
		out.WriteString(f.Field)
		out.WriteString(":(")
		out.WriteString(strings.Join(f.Values, " "))
		out.WriteString(") ")
	}
	out.WriteString("+(")
	out.WriteString(sb.String())
	out.WriteString(")")
	return out.String()
}

// Reformulation describes one rewritten query.
type Reformulation struct {
	QueryID      string   `json:"query_id"`
	Original     string   `json:"original"`
	Reformulated string   `json:"reformulated"`
	Terms        int      `json:"terms"`
	Clauses      []Clause `json:"clauses"`
}

// Observer is notified of every reformulation when query output is enabled.
type Observer interface {
	ObserveReformulation(ctx context.Context, r Reformulation)
}

// Observers fans a reformulation out to each member.
type Observers []Observer

func (o Observers) ObserveReformulation(ctx context.Context, r Reformulation) {
	for _, obs := range o {
		obs.ObserveReformulation(ctx, r)
	}
}

// LogObserver writes reformulations to slog at info level.
type LogObserver struct {
	logger *slog.Logger
}

func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger.With("component", "feedback-query")}
}

func (o *LogObserver) ObserveReformulation(ctx context.Context, r Reformulation) {
	o.logger.InfoContext(ctx, "query reformulated",
		"qid", r.QueryID,
		"original", r.Original,
		"reformulated", r.Reformulated,
		"terms", r.Terms,
	)
}

// Builder emits feedback queries over a fixed field.
type Builder struct {
	field       string
	outputQuery bool
	observer    Observer
}

// NewBuilder returns a Builder for field. A nil observer logs through slog.
func NewBuilder(field string, cfg feedback.Config, observer Observer) *Builder {
	if observer == nil {
		observer = NewLogObserver(nil)
	}
	return &Builder{field: field, outputQuery: cfg.OutputQuery, observer: observer}
}

func (b *Builder) Field() string { return b.field }

// Build emits one clause per model entry, heaviest first, and attaches
// the filters. Filters without values are ignored.
func (b *Builder) Build(ctx context.Context, queryID, original string, model *vector.Vector, filters ...Filter) *Query {
	q := &Query{Field: b.field}
	for _, e := range model.Entries() {
		q.Clauses = append(q.Clauses, Clause{Term: e.Term, Boost: e.Weight})
	}
	for _, f := range filters {
		if len(f.Values) > 0 {
			q.Filters = append(q.Filters, f)
		}
	}

	if b.outputQuery {
		b.observer.ObserveReformulation(ctx, Reformulation{
			QueryID:      queryID,
			Original:     original,
			Reformulated: q.String(),
			Terms:        len(q.Clauses),
			Clauses:      q.Clauses,
		})
	}
	return q
}
