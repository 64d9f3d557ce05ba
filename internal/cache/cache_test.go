package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *InMemoryCache {
	t.Helper()
	c := NewInMemoryCache()
	t.Cleanup(c.Stop)
	return c
}

func entries(c *InMemoryCache) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func TestInMemoryCache_Expiry(t *testing.T) {
	c := newTestCache(t)
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, entries(c))
}

func TestInMemoryCache_PruneDropsUnreadExpiredEntries(t *testing.T) {
	c := newTestCache(t)
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 10000; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("prompt-%d", i), []byte("v"), time.Minute))
	}
	require.NoError(t, c.Set(ctx, "long-lived", []byte("v"), 2*time.Hour))

	now = now.Add(time.Hour)
	assert.Equal(t, 10000, c.prune())
	assert.Equal(t, 1, entries(c))

	got, err := c.Get(ctx, "long-lived")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestInMemoryCache_BackgroundSweep(t *testing.T) {
	c := NewInMemoryCacheWithInterval(10 * time.Millisecond)
	t.Cleanup(c.Stop)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Millisecond))
	assert.Eventually(t, func() bool { return entries(c) == 0 }, time.Second, 10*time.Millisecond)

	c.Stop()
	c.Stop()
}

func TestInMemoryCache_Delete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Hour))
	require.NoError(t, c.Delete(ctx, "k"))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryCache_CopiesValue(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, time.Hour))
	buf[0] = 'z'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestJSONHelpers(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	type reply struct {
		Text string `json:"text"`
	}
	require.NoError(t, SetJSON(ctx, c, "r", reply{Text: "hi"}, time.Hour))

	var out reply
	require.NoError(t, GetJSON(ctx, c, "r", &out))
	assert.Equal(t, "hi", out.Text)

	assert.ErrorIs(t, GetJSON(ctx, c, "missing", &out), ErrNotFound)

	require.NoError(t, c.Set(ctx, "raw", []byte("not json"), time.Hour))
	assert.ErrorIs(t, GetJSON(ctx, c, "raw", &out), ErrCorrupt)
}
