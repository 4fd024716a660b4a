package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lodstream/internal/resource"
)

func TestLRU_Basic(t *testing.T) {
	c := NewLRUBlockCache(30, nil)
	ctx := context.Background()

	k1 := Key{Blob: "a.lod", Block: 0}
	k2 := Key{Blob: "a.lod", Block: 1}
	k3 := Key{Blob: "b.lod", Block: 0}

	c.Set(ctx, k1, make([]byte, 10))
	c.Set(ctx, k2, make([]byte, 10))

	// Touch k1 so k2 becomes the eviction candidate.
	_, ok := c.Get(ctx, k1)
	require.True(t, ok)

	c.Set(ctx, k3, make([]byte, 15))

	_, ok = c.Get(ctx, k2)
	assert.False(t, ok, "least recently used block must be evicted")
	_, ok = c.Get(ctx, k1)
	assert.True(t, ok)
	assert.Equal(t, int64(25), c.Size())
	assert.Equal(t, 2, c.Len())

	hits, misses := c.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
}

func TestLRU_EdgeCases(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 100})
	c := NewLRUBlockCache(50, rc)
	ctx := context.Background()
	k := Key{Blob: "model.lod", Block: 1}

	// 1. Item larger than capacity
	c.Set(ctx, k, make([]byte, 60))
	_, ok := c.Get(ctx, k)
	assert.False(t, ok, "item > capacity should not be cached")

	// 2. Update existing item, growing then shrinking
	c.Set(ctx, k, make([]byte, 10))
	assert.Equal(t, int64(10), c.Size())
	c.Set(ctx, k, make([]byte, 20))
	assert.Equal(t, int64(20), c.Size())
	c.Set(ctx, k, make([]byte, 5))
	assert.Equal(t, int64(5), c.Size())
	assert.Equal(t, int64(5), rc.MemoryUsage())

	// 3. Growth denied by the controller keeps the old value
	rc2 := resource.NewController(resource.Config{MemoryLimitBytes: 10})
	c2 := NewLRUBlockCache(50, rc2)
	c2.Set(ctx, k, make([]byte, 8))
	c2.Set(ctx, k, make([]byte, 12))

	got, ok := c2.Get(ctx, k)
	require.True(t, ok)
	assert.Len(t, got, 8)

	// 4. Close releases accounted memory
	require.NoError(t, c.Close())
	assert.Zero(t, rc.MemoryUsage())
}

func TestLRU_InvalidateBlob(t *testing.T) {
	c := NewLRUBlockCache(1<<10, nil)
	ctx := context.Background()

	for i := range 4 {
		c.Set(ctx, Key{Blob: "a.lod", Block: uint64(i)}, []byte{byte(i)})
		c.Set(ctx, Key{Blob: "b.lod", Block: uint64(i)}, []byte{byte(i)})
	}

	assert.Equal(t, 2, c.Blobs())

	c.InvalidateBlob("a.lod")

	assert.Equal(t, 4, c.Len())
	assert.Equal(t, 1, c.Blobs())
	assert.Equal(t, int64(4), c.Size())

	_, ok := c.Get(ctx, Key{Blob: "a.lod", Block: 0})
	assert.False(t, ok)
	_, ok = c.Get(ctx, Key{Blob: "b.lod", Block: 3})
	assert.True(t, ok)

	// Unknown blobs are a no-op.
	c.InvalidateBlob("missing.lod")
	assert.Equal(t, 4, c.Len())
}

func TestLRU_EvictsAcrossBlobsInRecencyOrder(t *testing.T) {
	c := NewLRUBlockCache(4, nil)
	ctx := context.Background()

	c.Set(ctx, Key{Blob: "a.lod", Block: 0}, []byte{0})
	c.Set(ctx, Key{Blob: "b.lod", Block: 0}, []byte{1})
	c.Set(ctx, Key{Blob: "a.lod", Block: 1}, []byte{2})
	c.Set(ctx, Key{Blob: "b.lod", Block: 1}, []byte{3})

	_, ok := c.Get(ctx, Key{Blob: "a.lod", Block: 0})
	require.True(t, ok)

	// Two more blocks push out b#0 then a#1, the two oldest untouched.
	c.Set(ctx, Key{Blob: "c.lod", Block: 0}, []byte{4})
	c.Set(ctx, Key{Blob: "c.lod", Block: 1}, []byte{5})

	for _, k := range []Key{{"b.lod", 0}, {"a.lod", 1}} {
		_, ok := c.Get(ctx, k)
		assert.False(t, ok, k.String())
	}

	for _, k := range []Key{{"a.lod", 0}, {"b.lod", 1}, {"c.lod", 0}, {"c.lod", 1}} {
		_, ok := c.Get(ctx, k)
		assert.True(t, ok, k.String())
	}

	assert.Equal(t, 4, c.Len())
	assert.Equal(t, 3, c.Blobs())
}

func TestShardedLRU_Concurrent(t *testing.T) {
	rc := resource.NewController(resource.Config{})
	c := NewShardedLRUBlockCache(64*1024, rc)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range 200 {
				k := Key{Blob: fmt.Sprintf("m%d.lod", w), Block: uint64(i)}
				c.Set(ctx, k, make([]byte, 16))
				_, _ = c.Get(ctx, k)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, rc.MemoryUsage(), c.Size())
	hits, _ := c.Stats()
	assert.Positive(t, hits)

	for w := range 8 {
		c.InvalidateBlob(fmt.Sprintf("m%d.lod", w))
	}
	assert.Zero(t, c.Size())
	assert.Zero(t, rc.MemoryUsage())
	require.NoError(t, c.Close())
}
