package cache

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xraph/reckon/observability"
)

// Loader computes the authoritative value for a key.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// ReadThrough serves values from a Backend and loads misses through a Loader.
// Concurrent misses for the same key share one Loader call, and every stored
// entry gets a random TTL extension of up to Jitter.
type ReadThrough[K comparable, V any] struct {
	backend Backend[K, V]
	load    Loader[K, V]
	group   singleflight.Group
	opts    options

	hits   observability.Counter
	misses observability.Counter
	errs   observability.Counter
}

type options struct {
	ttl     time.Duration
	jitter  time.Duration
	name    string
	logger  *zap.Logger
	metrics observability.MetricFactory
}

// Option configures a ReadThrough.
type Option func(*options)

// WithTTL sets the base entry lifetime (default 5m).
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithJitter sets the maximum random TTL extension (default 30s).
func WithJitter(j time.Duration) Option {
	return func(o *options) { o.jitter = j }
}

// WithName labels the cache in logs and metric names.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metric factory used for hit/miss/error counters.
func WithMetrics(f observability.MetricFactory) Option {
	return func(o *options) { o.metrics = f }
}

// NewReadThrough creates a ReadThrough cache. A nil backend disables caching
// while keeping single-flight collapsing.
func NewReadThrough[K comparable, V any](backend Backend[K, V], load Loader[K, V], opts ...Option) *ReadThrough[K, V] {
	o := options{
		ttl:     5 * time.Minute,
		jitter:  30 * time.Second,
		name:    "default",
		logger:  zap.NewNop(),
		metrics: observability.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if backend == nil {
		backend = NoopCache[K, V]{}
	}

	prefix := "reckon.cache." + o.name
	return &ReadThrough[K, V]{
		backend: backend,
		load:    load,
		opts:    o,
		hits:    o.metrics.Counter(prefix + ".hits"),
		misses:  o.metrics.Counter(prefix + ".misses"),
		errs:    o.metrics.Counter(prefix + ".errors"),
	}
}

// Get returns the cached value for key or loads it.
func (c *ReadThrough[K, V]) Get(ctx context.Context, key K) (V, error) {
	v, ok, err := c.backend.Get(ctx, key)
	switch {
	case err != nil:
		c.errs.Inc()
		c.opts.logger.Debug("cache get failed",
			zap.String("cache", c.opts.name),
			zap.Any("key", key),
			zap.Error(err),
		)
	case ok:
		c.hits.Inc()
		return v, nil
	}
	c.misses.Inc()

	res, err, _ := c.group.Do(fmt.Sprint(key), func() (any, error) {
		loaded, err := c.load(ctx, key)
		if err != nil {
			return loaded, err
		}
		if setErr := c.backend.Set(ctx, key, loaded, c.entryTTL()); setErr != nil {
			c.errs.Inc()
			c.opts.logger.Debug("cache set failed",
				zap.String("cache", c.opts.name),
				zap.Any("key", key),
				zap.Error(setErr),
			)
		}
		return loaded, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil //nolint:forcetypeassert // the flight function only returns V
}

// Invalidate removes key from the backend.
func (c *ReadThrough[K, V]) Invalidate(ctx context.Context, key K) {
	if err := c.backend.Delete(ctx, key); err != nil {
		c.errs.Inc()
		c.opts.logger.Debug("cache delete failed",
			zap.String("cache", c.opts.name),
			zap.Any("key", key),
			zap.Error(err),
		)
	}
}

func (c *ReadThrough[K, V]) entryTTL() time.Duration {
	if c.opts.ttl <= 0 || c.opts.jitter <= 0 {
		return c.opts.ttl
	}
	return c.opts.ttl + rand.N(c.opts.jitter)
}
