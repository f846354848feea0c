// Package cache keeps reranked search responses in Redis. Concurrent misses
// for the same key are collapsed with singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/proto"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/redis"
)

const keyPrefix = "rerank:"

// Store is the subset of the Redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
}

var _ Store = (*pkgredis.Client)(nil)

// Key identifies one cached response. Judged models depend on the stored
// judgments, so QueryID is part of the key.
type Key struct {
	Query    string
	QueryID  string
	Model    string
	Limit    int
	TieBreak string
}

func (k Key) String() string {
	raw := fmt.Sprintf("%s|qid=%s|model=%s|limit=%d|tb=%s",
		strings.Join(strings.Fields(strings.ToLower(k.Query)), " "), k.QueryID, k.Model, k.Limit, k.TieBreak)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

type QueryCache struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(store Store, ttl time.Duration) *QueryCache {
	return &QueryCache{
		store:  store,
		ttl:    ttl,
		logger: slog.Default().With("component", "rerank-cache"),
	}
}

// Get decodes the cached value for key into dest.
func (c *QueryCache) Get(ctx context.Context, key Key, dest any) bool {
	k := key.String()
	data, err := c.store.Get(ctx, k)
	if err != nil {
		if !pkgredis.IsMiss(err) {
			c.logger.Error("cache get failed", "key", k, "error", err)
		}
		c.misses.Add(1)
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.misses.Add(1)
		return false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", key.Query, "model", key.Model, "key", k)
	return true
}

func (c *QueryCache) Set(ctx context.Context, key Key, value any) {
	k := key.String()
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.store.Set(ctx, k, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached value for key, or computes, stores and
// returns it. The boolean reports a cache hit.
func GetOrCompute[T any](ctx context.Context, c *QueryCache, key Key, compute func() (*T, error)) (*T, bool, error) {
	var cached T
	if c.Get(ctx, key, &cached) {
		return &cached, true, nil
	}
	val, err, _ := c.group.Do(key.String(), func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*T), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.DeleteByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

// HandleInvalidation returns a kafka.MessageHandler that drops every cached
// response when the indexer reports new documents. Undecodable messages
// still invalidate.
func HandleInvalidation(c *QueryCache) kafka.MessageHandler {
	return func(ctx context.Context, _ []byte, value []byte) error {
		event, err := kafka.DecodeJSON[proto.CacheInvalidation](value)
		if err != nil {
			c.logger.Warn("undecodable invalidation event", "error", err)
		} else {
			c.logger.Debug("invalidation received", "reason", event.Reason, "documents", event.Documents)
		}
		return c.Invalidate(ctx)
	}
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
