// Package pagecache memoizes computed navigation results per branch tip
// generation and makes concurrent requests for one key share a computation.
package pagecache

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/thiagokokada/revlog/internal/vcs"
)

const DefaultSize = 512

type Kind string

const (
	KindPage          Kind = "page"
	KindRevision      Kind = "revision"
	KindRevisionDiffs Kind = "revision+diffs"
	KindChangeSet     Kind = "changeset"
	KindDiff          Kind = "diff"
	KindAnnotate      Kind = "annotate"
	KindScan          Kind = "scan"
	KindCompare       Kind = "compare"
	KindCompareDiffs  Kind = "compare+diffs"
	KindFiles         Kind = "files"
	KindSearch        Kind = "search"
)

// Key identifies one cached result. Base is set when a diff or change set
// is computed against an explicit revision instead of the first parent.
type Key struct {
	Kind     Kind
	Revision string
	Base     string
	PageSize int
	Path     string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%d:%s", k.Kind, k.Revision, k.Base, k.PageSize, k.Path)
}

type metrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	shared    prometheus.Counter
	evictions prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: "revlog",
			Subsystem: "page_cache",
			Name:      name,
			Help:      help,
		})
	}
	return &metrics{
		hits:      counter("hits_total", "Lookups served from the cache."),
		misses:    counter("misses_total", "Lookups that required a computation."),
		shared:    counter("shared_total", "Lookups that joined an in-flight computation."),
		evictions: counter("evictions_total", "Entries evicted to respect the size bound."),
	}
}

// Cache is a bounded LRU keyed by Key. Values must be treated as immutable
// by every reader.
type Cache struct {
	mu      sync.Mutex
	entries *simplelru.LRU[Key, any]
	gen     uint64
	purging bool

	group   singleflight.Group
	metrics *metrics
	log     *zap.Logger
}

type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	log        *zap.Logger
}

// WithRegisterer exposes the cache counters on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

func New(size int, opts ...Option) (*Cache, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if size <= 0 {
		size = DefaultSize
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	c := &Cache{metrics: newMetrics(o.registerer), log: o.log}
	entries, err := simplelru.NewLRU[Key, any](size, func(Key, any) {
		if !c.purging {
			c.metrics.evictions.Inc()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create page cache: %w", err)
	}
	c.entries = entries
	return c, nil
}

func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Invalidate drops every entry when gen differs from the current generation.
// Results of computations started under an older generation are discarded.
func (c *Cache) Invalidate(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen {
		return
	}
	c.log.Debug("Invalidating page cache",
		zap.Uint64("from", c.gen),
		zap.Uint64("to", gen),
		zap.Int("entries", c.entries.Len()),
	)
	c.gen = gen
	c.purging = true
	c.entries.Purge()
	c.purging = false
}

func (c *Cache) get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Get(key)
}

func (c *Cache) add(gen uint64, key Key, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.entries.Add(key, v)
}

// GetOrCompute returns the cached value for key or computes it with fn.
// Concurrent callers for one key share a single fn call. fn runs detached
// from the caller's cancellation so an abandoned request still fills the
// cache for the others; the caller itself returns ctx.Err() as soon as its
// context is done. Errors are never cached.
func GetOrCompute[V any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (V, error)) (V, error) {
	var zero V
	if v, ok := c.get(key); ok {
		c.metrics.hits.Inc()
		return typed[V](key, v)
	}
	c.metrics.misses.Inc()

	gen := c.Generation()
	flightKey := fmt.Sprintf("%d|%s", gen, key)
	computeCtx := context.WithoutCancel(ctx)
	// Only the caller that started the flight sees its closure run.
	leader := false
	ch := c.group.DoChan(flightKey, func() (any, error) {
		leader = true
		if v, ok := c.get(key); ok {
			return v, nil
		}
		v, err := fn(computeCtx)
		if err != nil {
			return nil, err
		}
		c.add(gen, key, v)
		return v, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if !leader {
			c.metrics.shared.Inc()
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return typed[V](key, res.Val)
	}
}

func typed[V any](key Key, v any) (V, error) {
	out, ok := v.(V)
	if !ok {
		var zero V
		return zero, fmt.Errorf("cache entry %s holds %T: %w", key, v, vcs.ErrInvariant)
	}
	return out, nil
}
