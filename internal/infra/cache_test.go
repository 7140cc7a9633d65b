package infra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheKeyIsStableAndNamespaced(t *testing.T) {
	c := NewCache(nil)
	k1 := c.Key("search", "bitcoin price")
	k2 := c.Key("search", "bitcoin price")
	k3 := c.Key("synthesis", "bitcoin price")
	require.Equal(t, k1, k2)
	require.NotEqual(t, k1, k3)
	require.Contains(t, k1, "search:")
	// long payloads still hash down to fixed-size keys
	long := c.Key("search", string(make([]byte, 10000)))
	require.Len(t, long, len("search:")+64)
}

func TestCacheSetGetRedis(t *testing.T) {
	mr, rdb := newTestRedis(t)
	c := NewCache(rdb)
	ctx := context.Background()

	c.Set(ctx, "search", "meteo paris", []byte(`{"temp":12}`), TTLRealtime)
	got, ok := c.Get(ctx, "search", "meteo paris")
	require.True(t, ok)
	require.Equal(t, []byte(`{"temp":12}`), got)

	mr.FastForward(TTLRealtime + time.Second)
	// memory copy also expired via injected clock
	c.now = func() time.Time { return time.Now().Add(TTLRealtime + time.Second) }
	_, ok = c.Get(ctx, "search", "meteo paris")
	require.False(t, ok)
}

func TestCacheMissAndDelete(t *testing.T) {
	c := NewCache(nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, "search", "absent")
	require.False(t, ok)

	c.Set(ctx, "search", "q", []byte("v"), TTLStable)
	_, ok = c.Get(ctx, "search", "q")
	require.True(t, ok)
	c.Delete(ctx, "search", "q")
	_, ok = c.Get(ctx, "search", "q")
	require.False(t, ok)
}

func TestCacheMemoryExpiry(t *testing.T) {
	c := NewCache(nil)
	ctx := context.Background()
	base := time.Unix(5000, 0)
	c.now = func() time.Time { return base }

	c.Set(ctx, "synthesis", "q", []byte("v"), TTLSynthesis)
	_, ok := c.Get(ctx, "synthesis", "q")
	require.True(t, ok)

	c.now = func() time.Time { return base.Add(TTLSynthesis + time.Second) }
	_, ok = c.Get(ctx, "synthesis", "q")
	require.False(t, ok)
}

func TestCacheLRUEviction(t *testing.T) {
	c := NewCache(nil)
	c.max = 3
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Set(ctx, "search", fmt.Sprintf("q%d", i), []byte("v"), TTLStable)
	}
	// touch q0 so q1 becomes the eviction candidate
	_, ok := c.Get(ctx, "search", "q0")
	require.True(t, ok)

	c.Set(ctx, "search", "q3", []byte("v"), TTLStable)
	_, ok = c.Get(ctx, "search", "q1")
	require.False(t, ok)
	_, ok = c.Get(ctx, "search", "q0")
	require.True(t, ok)
	_, ok = c.Get(ctx, "search", "q3")
	require.True(t, ok)
}
