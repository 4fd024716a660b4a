// Package cache provides block caches for remote payload reads.
//
// Payload blobs on object storage are read in fixed-size blocks. Blocks are
// immutable, so a block cached once never needs refreshing; it only has to
// be dropped when the blob is replaced.
//
// # Block Cache (RAM)
//
// LRUBlockCache indexes blocks per blob so InvalidateBlob only touches the
// replaced blob. ShardedLRUBlockCache spreads blocks across 64 shards,
// offsetting an xxhash of the blob name by the block index. Memory is
// accounted against a resource.Controller.
//
// # Disk Cache (L2)
//
// DiskBlockCache keeps blocks on local disk:
//   - Async writes through a bounded semaphore, never blocking readers
//   - Optional lz4 or zstd block compression
//   - LRU eviction with a byte limit
//   - Index rebuilt from disk on startup
//
// TieredBlockCache chains a RAM cache in front of a disk cache and promotes
// disk hits into RAM.
package cache
