package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/reckon/cache"
	"github.com/xraph/reckon/observability"
)

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) (int, bool, error) {
	return 0, false, errors.New("redis down")
}

func (failingBackend) Set(context.Context, string, int, time.Duration) error {
	return errors.New("redis down")
}

func (failingBackend) Delete(context.Context, string) error { return errors.New("redis down") }

type recordingBackend struct {
	*cache.TTLCache[string, int]
	mu   sync.Mutex
	ttls []time.Duration
}

func (b *recordingBackend) Set(ctx context.Context, k string, v int, ttl time.Duration) error {
	b.mu.Lock()
	b.ttls = append(b.ttls, ttl)
	b.mu.Unlock()
	return b.TTLCache.Set(ctx, k, v, ttl)
}

func TestReadThrough_HitAndMiss(t *testing.T) {
	ctx := context.Background()
	var loads atomic.Int32
	rt := cache.NewReadThrough[string, int](cache.NewTTLCache[string, int](), func(_ context.Context, k string) (int, error) {
		loads.Add(1)
		return len(k), nil
	})

	v, err := rt.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	v, err = rt.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, int32(1), loads.Load())

	rt.Invalidate(ctx, "abc")
	_, err = rt.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}

func TestReadThrough_SingleFlight(t *testing.T) {
	ctx := context.Background()
	var loads atomic.Int32
	release := make(chan struct{})

	rt := cache.NewReadThrough[string, int](nil, func(_ context.Context, _ string) (int, error) {
		loads.Add(1)
		<-release
		return 42, nil
	})

	const n = 16
	var wg sync.WaitGroup
	results := make([]int, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = rt.Get(ctx, "USD")
		}()
	}

	// Give the goroutines time to join the flight before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	for _, r := range results {
		assert.Equal(t, 42, r)
	}
}

func TestReadThrough_BackendErrorsAreSwallowed(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg, nil)

	rt := cache.NewReadThrough[string, int](failingBackend{}, func(context.Context, string) (int, error) {
		return 9, nil
	}, cache.WithName("fx"), cache.WithMetrics(f))

	v, err := rt.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 9, v)
	rt.Invalidate(ctx, "k")

	assert.InDelta(t, 3.0, testutil.ToFloat64(f.Counter("reckon.cache.fx.errors").(prometheus.Counter)), 0.0001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(f.Counter("reckon.cache.fx.misses").(prometheus.Counter)), 0.0001)
}

func TestReadThrough_LoaderErrorIsReturned(t *testing.T) {
	boom := errors.New("not found")
	rt := cache.NewReadThrough[string, int](cache.NewTTLCache[string, int](), func(context.Context, string) (int, error) {
		return 0, boom
	})

	_, err := rt.Get(context.Background(), "k")
	assert.ErrorIs(t, err, boom)
}

func TestReadThrough_Jitter(t *testing.T) {
	b := &recordingBackend{TTLCache: cache.NewTTLCache[string, int]()}
	rt := cache.NewReadThrough[string, int](b, func(context.Context, string) (int, error) { return 1, nil },
		cache.WithTTL(time.Minute), cache.WithJitter(10*time.Second))

	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		_, err := rt.Get(context.Background(), k)
		require.NoError(t, err)
	}

	require.Len(t, b.ttls, 8)
	for _, ttl := range b.ttls {
		assert.GreaterOrEqual(t, ttl, time.Minute)
		assert.Less(t, ttl, time.Minute+10*time.Second)
	}
}

func TestTTLCache(t *testing.T) {
	ctx := context.Background()
	c := cache.NewTTLCache[string, string]()

	require.NoError(t, c.Set(ctx, "k", "v", time.Millisecond))
	require.NoError(t, c.Set(ctx, "forever", "v", 0))
	assert.Equal(t, 2, c.Len())

	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := c.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, c.Delete(ctx, "forever"))
	assert.Equal(t, 0, c.Len())
}
