package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	c := New(4, time.Minute)
	c.Put("a", 1)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRUEviction(t *testing.T) {
	c := New(2, time.Minute)
	c.Put("a", 1)
	c.Put("b", 2)

	// Touch a so b becomes the eviction victim.
	_, _ = c.Get("a")
	c.Put("c", 3)

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	_, okC := c.Get("c")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.True(t, okC)
	assert.Equal(t, 2, c.Len())
}

func TestTTLExpiry(t *testing.T) {
	c := New(4, time.Minute)
	current := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Put("a", 1)
	_, ok := c.Get("a")
	require.True(t, ok)

	current = current.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestDoCachesSuccess(t *testing.T) {
	c := New(4, time.Minute)
	calls := 0
	fn := func(context.Context) (any, error) {
		calls++
		return "result", nil
	}

	v, err := c.Do(context.Background(), "k", fn)
	require.NoError(t, err)
	assert.Equal(t, "result", v)

	v, err = c.Do(context.Background(), "k", fn)
	require.NoError(t, err)
	assert.Equal(t, "result", v)
	assert.Equal(t, 1, calls)
}

func TestDoDoesNotCacheErrors(t *testing.T) {
	c := New(4, time.Minute)
	calls := 0
	fn := func(context.Context) (any, error) {
		calls++
		return nil, errors.New("boom")
	}

	_, err := c.Do(context.Background(), "k", fn)
	require.Error(t, err)
	_, err = c.Do(context.Background(), "k", fn)
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoSingleFlight(t *testing.T) {
	c := New(4, time.Minute)
	var calls int32
	release := make(chan struct{})

	fn := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Do(context.Background(), "k", fn)
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	// Give the goroutines time to pile onto the in-flight slot.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Equal(t, "shared", v)
	}
}

func TestDoWaiterHonoursCancellation(t *testing.T) {
	c := New(4, time.Minute)
	release := make(chan struct{})
	defer close(release)

	go func() {
		_, _ = c.Do(context.Background(), "k", func(context.Context) (any, error) {
			<-release
			return "late", nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Do(ctx, "k", func(context.Context) (any, error) { return "other", nil })
	assert.Error(t, err)
}

func TestZeroCapacityStoresNothing(t *testing.T) {
	c := New(0, time.Minute)
	calls := 0
	fn := func(context.Context) (any, error) {
		calls++
		return "v", nil
	}

	_, err := c.Do(context.Background(), "k", fn)
	require.NoError(t, err)
	_, err = c.Do(context.Background(), "k", fn)
	require.NoError(t, err)
	// No storage: both sequential calls compute.
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, c.Len())
}
