package web

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"

	"github.com/leonardcser/webcache-mcp/internal/cache"
	"github.com/leonardcser/webcache-mcp/internal/logger"
	"github.com/leonardcser/webcache-mcp/internal/metrics"
)

const (
	DefaultTTL = 10 * time.Second

	// DefaultFetchTimeout bounds a shared fetch, which outlives the callers
	// waiting on it.
	DefaultFetchTimeout = 30 * time.Second
)

var ErrFetchFailed = errors.New("web: fetch failed")

// Fetcher is the expensive operation a PageCache sits in front of.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type FetcherFunc func(ctx context.Context, url string) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (string, error) { return f(ctx, url) }

// PageCache memoizes a Fetcher in a KeyStore for a fixed TTL and counts
// every lookup of a key at "count:<key>". The body is stored at "<key>".
type PageCache struct {
	store      cache.KeyStore
	fetcher    Fetcher
	ttl        time.Duration
	counterTTL time.Duration
	timeout    time.Duration
	metrics    *metrics.Metrics
	group      singleflight.Group
}

type PageCacheOption func(*PageCache)

// WithTTL sets how long a fetched body is served from the store.
func WithTTL(ttl time.Duration) PageCacheOption {
	return func(c *PageCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCounterTTL lets access counters expire ttl after each lookup.
// Zero keeps them forever.
func WithCounterTTL(ttl time.Duration) PageCacheOption {
	return func(c *PageCache) { c.counterTTL = ttl }
}

// WithFetchTimeout bounds each underlying fetch.
func WithFetchTimeout(d time.Duration) PageCacheOption {
	return func(c *PageCache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) PageCacheOption {
	return func(c *PageCache) { c.metrics = m }
}

func NewPageCache(store cache.KeyStore, fetcher Fetcher, opts ...PageCacheOption) *PageCache {
	c := &PageCache{store: store, fetcher: fetcher, ttl: DefaultTTL, timeout: DefaultFetchTimeout}
	for _, o := range opts {
		o(c)
	}
	return c
}

func CounterKey(key string) string { return "count:" + key }

// Get returns the body for key, fetching it on a miss. Concurrent misses on
// the same key share one fetch, which is not tied to any caller's ctx: a
// caller whose ctx ends stops waiting, the others still get the body. A
// failed fetch is never cached.
func (c *PageCache) Get(ctx context.Context, key string) (string, error) {
	if _, err := c.store.Incr(ctx, CounterKey(key)); err != nil {
		return "", err
	}
	if c.counterTTL > 0 {
		if err := c.store.Expire(ctx, CounterKey(key), c.counterTTL); err != nil {
			return "", err
		}
	}

	v, err := c.store.Get(ctx, key)
	if err == nil {
		c.metrics.Hit()
		return string(v), nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return "", err
	}

	c.metrics.Miss()
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.fill(fetchCtx, key)
	})
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %s: %w", ErrFetchFailed, key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *PageCache) fill(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	body, err := c.fetcher.Fetch(ctx, key)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		c.metrics.FetchFailed()
		return "", fmt.Errorf("%w: %s: %w", ErrFetchFailed, key, err)
	}
	if err := c.store.Put(ctx, key, []byte(body), c.ttl); err != nil {
		logger.Warnf("page cache: store %s: %v", key, err)
		return "", err
	}
	return body, nil
}

// Accesses returns how many lookups key has seen.
func (c *PageCache) Accesses(ctx context.Context, key string) (int64, error) {
	n, err := cache.GetInt(ctx, c.store, CounterKey(key))
	if errors.Is(err, cache.ErrNotFound) {
		return 0, nil
	}
	return n, err
}

// Prefetch looks up every key with at most workers concurrent fetches and
// returns the first error.
func (c *PageCache) Prefetch(ctx context.Context, keys []string, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	p := pool.New().WithContext(ctx).WithMaxGoroutines(workers)
	for _, k := range keys {
		p.Go(func(ctx context.Context) error {
			_, err := c.Get(ctx, k)
			return err
		})
	}
	return p.Wait()
}
