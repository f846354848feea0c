// Package stats memoises index statistics for the duration of one
// feedback request.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
)

type termResult struct {
	stats feedback.TermStats
	err   error
}

// Cache holds the collection statistics of one field and the term
// statistics looked up so far. A Cache belongs to a single request; the
// request's own vector workers may share it.
type Cache struct {
	index  feedback.Index
	field  string
	events feedback.Events

	group singleflight.Group

	mu         sync.Mutex
	collLoaded bool
	coll       feedback.CollectionStats
	collErr    error
	terms      map[string]termResult
}

func New(index feedback.Index, field string, events feedback.Events) *Cache {
	if events == nil {
		events = feedback.NopEvents{}
	}
	return &Cache{
		index:  index,
		field:  field,
		events: events,
		terms:  make(map[string]termResult),
	}
}

func (c *Cache) Field() string { return c.field }

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Collection returns the field's collection statistics. A failure is
// remembered and reported once; context errors are not remembered.
func (c *Cache) Collection(ctx context.Context) (feedback.CollectionStats, error) {
	c.mu.Lock()
	if c.collLoaded {
		defer c.mu.Unlock()
		return c.coll, c.collErr
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("\x00collection", func() (any, error) {
		return c.index.CollectionStatistics(ctx, c.field)
	})
	if err != nil && isContextErr(err) {
		return feedback.CollectionStats{}, err
	}
	cs, _ := v.(feedback.CollectionStats)
	if err != nil {
		err = fmt.Errorf("collection statistics for %s: %w", c.field, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.collLoaded {
		c.collLoaded = true
		c.coll, c.collErr = cs, err
		if err != nil {
			c.events.CollectionUnavailable(c.field, err)
		}
	}
	return c.coll, c.collErr
}

// Term returns the statistics of an analyzed term. A lookup failure is
// remembered and reported once per term; callers skip the term.
func (c *Cache) Term(ctx context.Context, term string) (feedback.TermStats, error) {
	c.mu.Lock()
	if r, ok := c.terms[term]; ok {
		c.mu.Unlock()
		return r.stats, r.err
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(term, func() (any, error) {
		return c.index.TermStatistics(ctx, c.field, term)
	})
	if err != nil && isContextErr(err) {
		return feedback.TermStats{}, err
	}
	ts, _ := v.(feedback.TermStats)

	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.terms[term]; ok {
		return r.stats, r.err
	}
	c.terms[term] = termResult{stats: ts, err: err}
	if err != nil {
		c.events.StatsUnavailable(c.field, term, err)
	}
	return ts, err
}

// DocFreq is Term(...).DocFreq.
func (c *Cache) DocFreq(ctx context.Context, term string) (int64, error) {
	ts, err := c.Term(ctx, term)
	return ts.DocFreq, err
}

// Len is the number of terms looked up so far.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.terms)
}
