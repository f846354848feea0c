// Package parser turns a first-pass query string into a plan of analyzed
// terms. Terms are conjunctive unless the query contains OR; a term after
// NOT excludes matching documents.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/tokenizer"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "OR"
	}
	return "AND"
}

type QueryPlan struct {
	Terms        []string
	Type         QueryType
	ExcludeTerms []string
	RawQuery     string
}

// Empty reports whether the plan has nothing to match.
func (p *QueryPlan) Empty() bool { return len(p.Terms) == 0 }

// Text is the analyzed form of the positive terms, the query text handed
// to the feedback models.
func (p *QueryPlan) Text() string { return strings.Join(p.Terms, " ") }

func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	seen := make(map[string]bool)
	excludeNext := false
	for _, word := range strings.Fields(query) {
		switch strings.ToUpper(word) {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			plan.Type = QueryOR
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		// A word such as "banana-slug" may analyze to several terms.
		for _, term := range tokenizer.Terms(word) {
			if excludeNext {
				plan.ExcludeTerms = append(plan.ExcludeTerms, term)
				continue
			}
			if !seen[term] {
				seen[term] = true
				plan.Terms = append(plan.Terms, term)
			}
		}
		excludeNext = false
	}
	return plan
}
