package cache

import (
	"context"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/lodstream/internal/resource"
)

const numShards = 64

// ShardedLRUBlockCache splits blocks across LRU shards. Consecutive blocks
// of one blob land on consecutive shards, so a sequential node read spreads
// its lock traffic instead of hammering one shard.
type ShardedLRUBlockCache struct {
	shards [numShards]*LRUBlockCache
}

// NewShardedLRUBlockCache divides capacity evenly across the shards.
func NewShardedLRUBlockCache(capacity int64, rc *resource.Controller) *ShardedLRUBlockCache {
	per := max(capacity/numShards, 1)

	s := &ShardedLRUBlockCache{}
	for i := range s.shards {
		s.shards[i] = NewLRUBlockCache(per, rc)
	}

	return s
}

func shardOf(key Key) uint64 {
	return (xxhash.Sum64String(key.Blob) + key.Block) % numShards
}

func (s *ShardedLRUBlockCache) shard(key Key) *LRUBlockCache {
	return s.shards[shardOf(key)]
}

// Get returns a cached block.
func (s *ShardedLRUBlockCache) Get(ctx context.Context, key Key) ([]byte, bool) {
	return s.shard(key).Get(ctx, key)
}

// Set caches a block.
func (s *ShardedLRUBlockCache) Set(ctx context.Context, key Key, b []byte) {
	s.shard(key).Set(ctx, key, b)
}

// InvalidateBlob drops the blob's blocks from every shard.
func (s *ShardedLRUBlockCache) InvalidateBlob(name string) {
	for _, sh := range s.shards {
		sh.InvalidateBlob(name)
	}
}

// Close closes all shards.
func (s *ShardedLRUBlockCache) Close() error {
	for _, sh := range s.shards {
		if err := sh.Close(); err != nil {
			return err
		}
	}

	return nil
}

// Stats returns aggregated hit/miss statistics.
func (s *ShardedLRUBlockCache) Stats() (hits, misses int64) {
	for _, sh := range s.shards {
		h, m := sh.Stats()
		hits += h
		misses += m
	}

	return hits, misses
}

// Size returns the total size across all shards.
func (s *ShardedLRUBlockCache) Size() int64 {
	var total int64
	for _, sh := range s.shards {
		total += sh.Size()
	}

	return total
}
