package cache

import (
	"context"
	"errors"
)

// TieredBlockCache serves blocks from a RAM tier backed by a disk tier.
// Disk hits are promoted to RAM; sets go to both tiers.
type TieredBlockCache struct {
	ram  BlockCache
	disk BlockCache
}

// NewTieredBlockCache chains ram in front of disk.
func NewTieredBlockCache(ram, disk BlockCache) *TieredBlockCache {
	return &TieredBlockCache{ram: ram, disk: disk}
}

// Get checks RAM, then disk.
func (t *TieredBlockCache) Get(ctx context.Context, key Key) ([]byte, bool) {
	if b, ok := t.ram.Get(ctx, key); ok {
		return b, true
	}

	b, ok := t.disk.Get(ctx, key)
	if ok {
		t.ram.Set(ctx, key, b)
	}

	return b, ok
}

// Set stores the block in both tiers.
func (t *TieredBlockCache) Set(ctx context.Context, key Key, b []byte) {
	t.ram.Set(ctx, key, b)
	t.disk.Set(ctx, key, b)
}

// InvalidateBlob drops the blob from both tiers.
func (t *TieredBlockCache) InvalidateBlob(name string) {
	t.ram.InvalidateBlob(name)
	t.disk.InvalidateBlob(name)
}

// Close closes both tiers.
func (t *TieredBlockCache) Close() error {
	return errors.Join(t.ram.Close(), t.disk.Close())
}

// Stats reports RAM hits plus disk hits; misses are those of the last tier.
func (t *TieredBlockCache) Stats() (hits, misses int64) {
	rh, _ := t.ram.Stats()
	dh, dm := t.disk.Stats()

	return rh + dh, dm
}
