package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache() (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return New(WithClock(clock.Now)), clock
}

func TestCache_SetGet(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "workflow:1", []byte("a"), time.Minute))

	got, ok := c.Get(ctx, "workflow:1")
	assert.True(t, ok)
	assert.Equal(t, []byte("a"), got)

	_, ok = c.Get(ctx, "workflow:2")
	assert.False(t, ok)
}

func TestCache_ValuesAreCopied(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()
	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", value, time.Minute))

	value[0] = 'X'
	got, _ := c.Get(ctx, "k")
	got[1] = 'Y'

	again, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newTestCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "short", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "long", []byte("2"), time.Hour))

	clock.Advance(59 * time.Second)
	_, ok := c.Get(ctx, "short")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get(ctx, "short")
	assert.False(t, ok, "expires at exactly ttl")
	assert.Equal(t, 1, c.Len(), "expired entry removed on read")

	_, ok = c.Get(ctx, "long")
	assert.True(t, ok)
}

func TestCache_NonPositiveTTLRemoves(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	require.NoError(t, c.Set(ctx, "k", []byte("v2"), 0))

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestCache_DeleteAndPrefix(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()
	for _, k := range []string{"workflow:1", "workflow:1:documents", "workflow:1:results", "workflow:12", "workflows:stats"} {
		require.NoError(t, c.Set(ctx, k, []byte("v"), time.Minute))
	}

	require.NoError(t, c.DeletePrefix(ctx, "workflow:1:"))
	require.NoError(t, c.Delete(ctx, "workflows:stats", "absent"))

	for k, want := range map[string]bool{
		"workflow:1":           true,
		"workflow:1:documents": false,
		"workflow:1:results":   false,
		"workflow:12":          true,
		"workflows:stats":      false,
	} {
		_, ok := c.Get(ctx, k)
		assert.Equal(t, want, ok, k)
	}
}

func TestCache_Purge(t *testing.T) {
	c, clock := newTestCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", nil, time.Minute))
	require.NoError(t, c.Set(ctx, "b", nil, time.Minute))
	require.NoError(t, c.Set(ctx, "c", nil, time.Hour))

	clock.Advance(2 * time.Minute)

	assert.Equal(t, 2, c.Purge())
	assert.Equal(t, 1, c.Len())
}

func TestCache_Concurrency(t *testing.T) {
	c := New()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("workflow:%d", i%5)
			_ = c.Set(ctx, key, []byte("v"), time.Minute)
			c.Get(ctx, key)
			_ = c.DeletePrefix(ctx, "workflow:")
		}(i)
	}
	wg.Wait()
}
