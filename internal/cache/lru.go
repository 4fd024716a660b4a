package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/lodstream/internal/resource"
)

// block is one cached block, linked into the recency ring.
type block struct {
	key        Key
	data       []byte
	prev, next *block
}

// LRUBlockCache is a byte-bounded LRU of payload blocks. Blocks are indexed
// per blob, so replacing a blob drops its blocks without scanning the rest.
type LRUBlockCache struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	count    int
	blobs    map[string]map[uint64]*block
	ring     block // ring.next is the most recent, ring.prev the eviction candidate
	rc       *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

// NewLRUBlockCache creates a cache holding at most capacity bytes of
// blocks. A non-nil rc is charged for every cached byte.
func NewLRUBlockCache(capacity int64, rc *resource.Controller) *LRUBlockCache {
	c := &LRUBlockCache{
		capacity: capacity,
		blobs:    make(map[string]map[uint64]*block),
		rc:       rc,
	}
	c.ring.next = &c.ring
	c.ring.prev = &c.ring

	return c
}

func (c *LRUBlockCache) lookup(key Key) *block {
	return c.blobs[key.Blob][key.Block]
}

func (c *LRUBlockCache) unlink(b *block) {
	b.prev.next = b.next
	b.next.prev = b.prev
	b.prev, b.next = nil, nil
}

func (c *LRUBlockCache) pushFront(b *block) {
	b.prev = &c.ring
	b.next = c.ring.next
	c.ring.next.prev = b
	c.ring.next = b
}

// Get returns a cached block and marks it most recently used.
func (c *LRUBlockCache) Get(_ context.Context, key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.lookup(key)
	if b == nil {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	c.unlink(b)
	c.pushFront(b)

	return b.data, true
}

// Set caches data under key. Blocks larger than the capacity, or growth the
// controller refuses, leave the cache unchanged.
func (c *LRUBlockCache) Set(_ context.Context, key Key, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := int64(len(data))
	if n > c.capacity {
		return
	}

	if b := c.lookup(key); b != nil {
		delta := n - int64(len(b.data))
		if delta > 0 {
			if err := c.rc.AcquireMemory(delta); err != nil {
				return
			}
		} else {
			c.rc.ReleaseMemory(-delta)
		}

		b.data = data
		c.size += delta
		c.unlink(b)
		c.pushFront(b)
		c.shrink(c.capacity)

		return
	}

	// Make room first so the bytes released are available to the controller.
	c.shrink(c.capacity - n)

	if err := c.rc.AcquireMemory(n); err != nil {
		return
	}

	blocks := c.blobs[key.Blob]
	if blocks == nil {
		blocks = make(map[uint64]*block)
		c.blobs[key.Blob] = blocks
	}

	b := &block{key: key, data: data}
	blocks[key.Block] = b
	c.pushFront(b)
	c.size += n
	c.count++
}

// InvalidateBlob drops every cached block of the named blob.
func (c *LRUBlockCache) InvalidateBlob(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, b := range c.blobs[name] {
		c.remove(b)
	}
}

// shrink evicts least recently used blocks until size <= limit.
func (c *LRUBlockCache) shrink(limit int64) {
	for c.size > limit && c.ring.prev != &c.ring {
		c.remove(c.ring.prev)
	}
}

func (c *LRUBlockCache) remove(b *block) {
	c.unlink(b)

	blocks := c.blobs[b.key.Blob]
	delete(blocks, b.key.Block)

	if len(blocks) == 0 {
		delete(c.blobs, b.key.Blob)
	}

	n := int64(len(b.data))
	c.size -= n
	c.count--
	c.rc.ReleaseMemory(n)
}

// Close drops all blocks and returns their memory to the controller.
func (c *LRUBlockCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.ring.prev != &c.ring {
		c.remove(c.ring.prev)
	}

	return nil
}

// Stats returns hit and miss counts.
func (c *LRUBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the cached bytes.
func (c *LRUBlockCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.size
}

// Len returns the number of cached blocks.
func (c *LRUBlockCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.count
}

// Blobs returns the number of blobs with at least one cached block.
func (c *LRUBlockCache) Blobs() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.blobs)
}
