package pagecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestCache(t *testing.T, size int) *Cache {
	t.Helper()
	c, err := New(size)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestGetOrComputeCachesValue(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4)
	key := Key{Kind: KindDiff, Revision: "abc", Path: "a.go"}
	var calls atomic.Int32
	compute := func(context.Context) (string, error) {
		calls.Add(1)
		return "value", nil
	}
	for range 3 {
		got, err := GetOrCompute(context.Background(), c, key, compute)
		if err != nil || got != "value" {
			t.Fatalf("GetOrCompute() = %q, %v", got, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("compute calls = %d, want 1", calls.Load())
	}
	if hits := testutil.ToFloat64(c.metrics.hits); hits != 2 {
		t.Fatalf("hits = %v, want 2", hits)
	}
}

func TestGetOrComputeSharesConcurrentComputation(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4)
	key := Key{Kind: KindDiff, Revision: "abc", Path: "a.go"}
	release := make(chan struct{})
	var calls atomic.Int32
	compute := func(context.Context) ([]int, error) {
		calls.Add(1)
		<-release
		return []int{1, 2, 3}, nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := GetOrCompute(context.Background(), c, key, compute)
			if err == nil && len(got) != 3 {
				err = errors.New("short result")
			}
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("GetOrCompute() error = %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("compute calls = %d, want 1", calls.Load())
	}
}

func TestSharedCountsOnlyWaiters(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4)
	key := Key{Kind: KindDiff, Revision: "abc", Path: "a.go"}
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(context.Context) (string, error) {
		close(started)
		<-release
		return "value", nil
	}

	const waiters = 10
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = GetOrCompute(context.Background(), c, key, compute)
	}()
	<-started
	for range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = GetOrCompute(context.Background(), c, key, compute)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if misses := testutil.ToFloat64(c.metrics.misses); misses != waiters+1 {
		t.Fatalf("misses = %v, want %d", misses, waiters+1)
	}
	if shared := testutil.ToFloat64(c.metrics.shared); shared != waiters {
		t.Fatalf("shared = %v, want %d", shared, waiters)
	}
	if _, err := GetOrCompute(context.Background(), c, key, compute); err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}
	if shared := testutil.ToFloat64(c.metrics.shared); shared != waiters {
		t.Fatalf("shared after a hit = %v, want %d", shared, waiters)
	}
}

func TestKeyDistinguishesBase(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4)
	plain := Key{Kind: KindDiff, Revision: "abc", Path: "a.go"}
	based := Key{Kind: KindDiff, Revision: "abc", Base: "def", Path: "a.go"}
	for key, want := range map[Key]string{plain: "parent", based: "base"} {
		got, err := GetOrCompute(context.Background(), c, key, func(context.Context) (string, error) {
			return want, nil
		})
		if err != nil || got != want {
			t.Fatalf("GetOrCompute(%s) = %q, %v", key, got, err)
		}
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if plain.String() == based.String() {
		t.Fatalf("keys render identically: %s", plain)
	}
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4)
	key := Key{Kind: KindChangeSet, Revision: "abc"}
	boom := errors.New("boom")
	if _, err := GetOrCompute(context.Background(), c, key, func(context.Context) (int, error) {
		return 0, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("GetOrCompute() error = %v, want boom", err)
	}
	got, err := GetOrCompute(context.Background(), c, key, func(context.Context) (int, error) {
		return 7, nil
	})
	if err != nil || got != 7 {
		t.Fatalf("GetOrCompute() = %d, %v", got, err)
	}
}

func TestGetOrComputeCancelledWaiterDoesNotAbortComputation(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4)
	key := Key{Kind: KindPage, Revision: "abc", PageSize: 20}
	release := make(chan struct{})
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(done)
		_, err := GetOrCompute(ctx, c, key, func(computeCtx context.Context) (string, error) {
			<-release
			if computeCtx.Err() != nil {
				return "", computeCtx.Err()
			}
			return "page", nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("GetOrCompute() error = %v, want canceled", err)
		}
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done
	close(release)

	deadline := time.Now().Add(time.Second)
	for c.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got, err := GetOrCompute(context.Background(), c, key, func(context.Context) (string, error) {
		return "", errors.New("should be cached")
	})
	if err != nil || got != "page" {
		t.Fatalf("GetOrCompute() = %q, %v", got, err)
	}
}

func TestInvalidateDropsEntries(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4)
	key := Key{Kind: KindRevision, Revision: "abc"}
	ctx := context.Background()
	if _, err := GetOrCompute(ctx, c, key, func(context.Context) (int, error) { return 1, nil }); err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}
	c.Invalidate(c.Generation())
	if c.Len() != 1 {
		t.Fatalf("same generation should keep entries")
	}
	c.Invalidate(1)
	if c.Len() != 0 {
		t.Fatalf("Len() = %d after invalidation", c.Len())
	}
	got, err := GetOrCompute(ctx, c, key, func(context.Context) (int, error) { return 2, nil })
	if err != nil || got != 2 {
		t.Fatalf("GetOrCompute() = %d, %v", got, err)
	}
	if ev := testutil.ToFloat64(c.metrics.evictions); ev != 0 {
		t.Fatalf("invalidation counted as %v evictions", ev)
	}
}

func TestInvalidateDiscardsInFlightResult(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 4)
	key := Key{Kind: KindRevision, Revision: "abc"}
	ctx := context.Background()
	got, err := GetOrCompute(ctx, c, key, func(context.Context) (int, error) {
		c.Invalidate(5)
		return 1, nil
	})
	if err != nil || got != 1 {
		t.Fatalf("GetOrCompute() = %d, %v", got, err)
	}
	if c.Len() != 0 {
		t.Fatalf("stale result was cached")
	}
}

func TestLRUEviction(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 2)
	ctx := context.Background()
	for _, rev := range []string{"a", "b", "c"} {
		if _, err := GetOrCompute(ctx, c, Key{Kind: KindRevision, Revision: rev}, func(context.Context) (string, error) {
			return rev, nil
		}); err != nil {
			t.Fatalf("GetOrCompute() error = %v", err)
		}
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if ev := testutil.ToFloat64(c.metrics.evictions); ev != 1 {
		t.Fatalf("evictions = %v, want 1", ev)
	}
	if _, ok := c.get(Key{Kind: KindRevision, Revision: "a"}); ok {
		t.Fatalf("oldest entry should have been evicted")
	}
}

func TestTypeMismatchIsInvariant(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, 2)
	ctx := context.Background()
	key := Key{Kind: KindRevision, Revision: "a"}
	if _, err := GetOrCompute(ctx, c, key, func(context.Context) (int, error) { return 1, nil }); err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}
	if _, err := GetOrCompute(ctx, c, key, func(context.Context) (string, error) { return "", nil }); err == nil {
		t.Fatalf("expected type mismatch error")
	}
}

func TestWithRegisterer(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	if _, err := New(2, WithRegisterer(reg)); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) != 4 {
		t.Fatalf("registered %d metric families, want 4", len(families))
	}
}
