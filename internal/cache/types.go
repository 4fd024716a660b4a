package cache

import (
	"context"
	"fmt"
)

// Key identifies one block of one blob.
type Key struct {
	// Blob is the name of the blob in its store.
	Blob string
	// Block is the block index (byte offset / block size).
	Block uint64
}

func (k Key) String() string {
	return fmt.Sprintf("%s#%d", k.Blob, k.Block)
}

// BlockCache is a byte-oriented cache for immutable blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set caches a block. Implementations may copy or retain; caller must treat b as immutable.
	Set(ctx context.Context, key Key, b []byte)
	// InvalidateBlob drops every block of the named blob. Called when the
	// blob is replaced or deleted.
	InvalidateBlob(name string)
	// Close releases any resources (e.g. background writers).
	Close() error
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}
