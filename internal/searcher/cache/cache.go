// Package cache keeps search results in Redis keyed by the snapshot
// generation they were computed against, so a commit makes every older
// entry unreachable without an explicit purge.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/searcher"
)

const keyPrefix = "embedsearch:q:"

// Store is the key-value backend; *redis.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Request identifies one search. Exactly one of Text or Query is used,
// depending on Kind.
type Request struct {
	Kind   string               `json:"kind"`
	Text   string               `json:"text,omitempty"`
	Fields []string             `json:"fields,omitempty"`
	Query  json.RawMessage      `json:"query,omitempty"`
	Param  searcher.SearchParam `json:"param"`
}

type QueryCache struct {
	store      Store
	ttl        time.Duration
	generation func() uint64
	group      singleflight.Group
	breaker    *resilience.Breaker
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New returns a cache over store. generation reports the generation of the
// snapshot searches currently run against. Store calls go through a
// circuit breaker configured by breaker.
func New(store Store, ttl time.Duration, generation func() uint64, m *metrics.Metrics, breaker resilience.BreakerConfig) *QueryCache {
	if m == nil {
		m = metrics.New(nil)
	}
	return &QueryCache{
		store:      store,
		ttl:        ttl,
		generation: generation,
		breaker:    resilience.NewBreaker("query-cache", breaker),
		metrics:    m,
		logger:     slog.Default().With("component", "query-cache"),
	}
}

// GetOrCompute returns the cached result for req at the current generation,
// or runs compute once per key across concurrent callers. A result is only
// stored under the key when it was read from that generation, so a commit
// racing the search never files newer hits under an older key. Store
// failures degrade to a miss.
func (c *QueryCache) GetOrCompute(ctx context.Context, req Request, compute func() (searcher.Result, error)) (searcher.Result, bool, error) {
	gen := c.generation()
	key, err := c.buildKey(gen, req)
	if err != nil {
		return searcher.Result{}, false, err
	}
	if res, ok := c.get(ctx, key); ok {
		c.metrics.CacheHitsTotal.Inc()
		return res, true, nil
	}
	c.metrics.CacheMissesTotal.Inc()

	val, err, _ := c.group.Do(key, func() (any, error) {
		if res, ok := c.get(ctx, key); ok {
			return res, nil
		}
		res, err := compute()
		if err != nil {
			return nil, err
		}
		if res.Generation == gen {
			c.set(ctx, key, res)
		}
		return res, nil
	})
	if err != nil {
		return searcher.Result{}, false, err
	}
	return val.(searcher.Result), false, nil
}

func (c *QueryCache) get(ctx context.Context, key string) (searcher.Result, bool) {
	var (
		data  []byte
		found bool
	)
	err := c.breaker.Do(func() error {
		var err error
		data, found, err = c.store.Get(ctx, key)
		return err
	})
	if errors.Is(err, resilience.ErrBreakerOpen) {
		return searcher.Result{}, false
	}
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return searcher.Result{}, false
	}
	if !found {
		return searcher.Result{}, false
	}
	var res searcher.Result
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Warn("cache entry unreadable", "key", key, "error", err)
		return searcher.Result{}, false
	}
	return res, true
}

func (c *QueryCache) set(ctx context.Context, key string, res searcher.Result) {
	if res.Hits == nil {
		res.Hits = []searcher.IDDocument{}
	}
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Do(func() error { return c.store.Set(ctx, key, data, c.ttl) })
	if err != nil && !errors.Is(err, resilience.ErrBreakerOpen) {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// DropGeneration deletes the entries computed against generation gen.
func (c *QueryCache) DropGeneration(ctx context.Context, gen uint64) error {
	deleted, err := c.store.FlushByPattern(ctx, fmt.Sprintf("%sg%d:*", keyPrefix, gen))
	if err != nil {
		return fmt.Errorf("dropping cache generation %d: %w", gen, err)
	}
	c.logger.Debug("cache generation dropped", "generation", gen, "keys_deleted", deleted)
	return nil
}

// Invalidate deletes every entry.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// buildKey hashes req after sorting its field lists, whose order does not
// change the result.
func (c *QueryCache) buildKey(gen uint64, req Request) (string, error) {
	req.Fields = sortedCopy(req.Fields)
	req.Param.Fields = sortedCopy(req.Param.Fields)
	raw, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding cache key: %w", err)
	}
	hash := sha256.Sum256(raw)
	return fmt.Sprintf("%sg%d:%x", keyPrefix, gen, hash[:16]), nil
}

func sortedCopy(s []string) []string {
	if s == nil {
		return nil
	}
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}
