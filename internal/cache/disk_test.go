package cache

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func surfelBlock(n int) []byte {
	// Repetitive content compresses well.
	return bytes.Repeat([]byte("xyzrgb01"), n/8)
}

func TestDiskBlockCache(t *testing.T) {
	tmpDir := t.TempDir()
	c, err := NewDiskBlockCache(DiskCacheConfig{RootDir: tmpDir, MaxSizeBytes: 1024})
	require.NoError(t, err)

	ctx := context.Background()
	key1 := Key{Blob: "city.lod", Block: 0}
	data1 := make([]byte, 400)
	data1[7] = 42

	c.Set(ctx, key1, data1)
	c.Flush()

	assert.FileExists(t, c.filePath(key1))

	got, ok := c.Get(ctx, key1)
	require.True(t, ok)
	assert.Equal(t, data1, got)

	// Two more blocks exceed the limit and evict key1.
	key2 := Key{Blob: "city.lod", Block: 1}
	key3 := Key{Blob: "city.lod", Block: 2}
	c.Set(ctx, key2, make([]byte, 400))
	c.Flush()
	c.Set(ctx, key3, make([]byte, 400))
	c.Flush()

	_, ok = c.Get(ctx, key1)
	assert.False(t, ok, "key1 should be evicted")
	assert.NoFileExists(t, c.filePath(key1))

	_, ok = c.Get(ctx, key2)
	assert.True(t, ok)
	_, ok = c.Get(ctx, key3)
	assert.True(t, ok)

	require.NoError(t, c.Close())
}

func TestDiskBlockCache_Compression(t *testing.T) {
	for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(comp.String(), func(t *testing.T) {
			c, err := NewDiskBlockCache(DiskCacheConfig{
				RootDir:      t.TempDir(),
				MaxSizeBytes: 1 << 20,
				Compression:  comp,
			})
			require.NoError(t, err)

			key := Key{Blob: "scan.lod", Block: 9}
			data := surfelBlock(4096)

			c.Set(context.Background(), key, data)
			c.Flush()

			got, ok := c.Get(context.Background(), key)
			require.True(t, ok)
			assert.Equal(t, data, got)

			if comp != CompressionNone {
				assert.Less(t, c.Size(), int64(len(data)), "compressible block should shrink")
			}
		})
	}
}

func TestDiskBlockCache_Reopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DiskCacheConfig{RootDir: dir, MaxSizeBytes: 1 << 20, Compression: CompressionLZ4}

	c, err := NewDiskBlockCache(cfg)
	require.NoError(t, err)

	key := Key{Blob: "models/city.lod", Block: 3}
	data := surfelBlock(1024)
	c.Set(context.Background(), key, data)
	require.NoError(t, c.Close())

	// A stray file without a valid header is dropped on scan.
	stray := c.filePath(Key{Blob: "other.lod", Block: 1})
	require.NoError(t, os.MkdirAll(filepath.Dir(stray), 0755))
	require.NoError(t, os.WriteFile(stray, []byte{1}, 0644))

	c2, err := NewDiskBlockCache(cfg)
	require.NoError(t, err)

	got, ok := c2.Get(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, data, got)
	assert.NoFileExists(t, stray)

	c2.InvalidateBlob("models/city.lod")
	_, ok = c2.Get(context.Background(), key)
	assert.False(t, ok)
	assert.Zero(t, c2.Size())
}

func TestTieredBlockCache(t *testing.T) {
	disk, err := NewDiskBlockCache(DiskCacheConfig{RootDir: t.TempDir(), MaxSizeBytes: 1 << 20})
	require.NoError(t, err)

	ram := NewLRUBlockCache(1<<20, nil)
	tc := NewTieredBlockCache(ram, disk)
	ctx := context.Background()
	key := Key{Blob: "a.lod", Block: 0}

	tc.Set(ctx, key, []byte("block"))
	disk.Flush()

	// Drop the RAM copy; the disk tier still serves and re-promotes it.
	ram.InvalidateBlob("a.lod")

	got, ok := tc.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "block", string(got))
	assert.Equal(t, 1, ram.Len())

	require.NoError(t, tc.Close())
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "LZ4": CompressionLZ4, "zstd": CompressionZSTD} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}

func TestDecodeBlockRejectsGarbage(t *testing.T) {
	_, err := decodeBlock([]byte{1, 2})
	assert.ErrorIs(t, err, ErrBadBlock)

	enc, err := encodeBlock(surfelBlock(256), CompressionLZ4)
	require.NoError(t, err)
	_, err = decodeBlock(enc[:len(enc)-4])
	assert.ErrorIs(t, err, ErrBadBlock)
}
