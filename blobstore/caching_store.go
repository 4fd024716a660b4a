package blobstore

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lodstream/internal/cache"
)

// DefaultBlockSize is the cache granularity when none is given.
const DefaultBlockSize = 64 * 1024

// Compile time check to ensure CachingStore satisfies the BlobStore interface.
var _ BlobStore = (*CachingStore)(nil)

// CachingStore adds block-level read caching to another store. It is meant
// for remote payloads that are read many times across frames.
type CachingStore struct {
	inner     BlobStore
	cache     cache.BlockCache
	blockSize int64
}

// NewCachingStore wraps inner. blockSize defaults to DefaultBlockSize if <= 0.
func NewCachingStore(inner BlobStore, c cache.BlockCache, blockSize int64) *CachingStore {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	return &CachingStore{inner: inner, cache: c, blockSize: blockSize}
}

// Open opens the inner blob and reads it through the cache.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}

	return &cachingBlob{inner: b, cache: s.cache, name: name, blockSize: s.blockSize}, nil
}

// Create passes through; the blob is invalidated since it may be replaced.
func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	s.cache.InvalidateBlob(name)
	return s.inner.Create(ctx, name)
}

// Put invalidates cached blocks and writes through.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.cache.InvalidateBlob(name)
	return s.inner.Put(ctx, name, data)
}

// Delete invalidates cached blocks and deletes the inner blob.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.cache.InvalidateBlob(name)
	return s.inner.Delete(ctx, name)
}

// List passes through.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

type cachingBlob struct {
	inner     Blob
	cache     cache.BlockCache
	name      string
	blockSize int64
}

func (b *cachingBlob) Close() error { return b.inner.Close() }
func (b *cachingBlob) Size() int64  { return b.inner.Size() }

func (b *cachingBlob) key(blk int64) cache.Key {
	return cache.Key{Blob: b.name, Block: uint64(blk)}
}

func (b *cachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	size := b.Size()
	if off >= size {
		return 0, io.EOF
	}

	end := min(off+int64(len(p)), size)
	first := off / b.blockSize
	last := (end - 1) / b.blockSize

	if err := b.fill(ctx, first, last); err != nil {
		return 0, err
	}

	total := 0

	for blk := first; blk <= last; blk++ {
		data, err := b.block(ctx, blk)
		if err != nil {
			return total, err
		}

		blkStart := blk * b.blockSize
		lo := max(blkStart, off)
		hi := min(blkStart+int64(len(data)), end)

		if hi <= lo {
			break
		}

		total += copy(p[lo-off:hi-off], data[lo-blkStart:hi-blkStart])
	}

	if total < len(p) {
		return total, io.EOF
	}

	return total, nil
}

// fill loads missing blocks in [first, last], one backend read per run of
// consecutive misses.
func (b *cachingBlob) fill(ctx context.Context, first, last int64) error {
	type run struct{ start, count int64 }

	var runs []run

	for blk := first; blk <= last; blk++ {
		if _, ok := b.cache.Get(ctx, b.key(blk)); ok {
			continue
		}

		if n := len(runs); n > 0 && runs[n-1].start+runs[n-1].count == blk {
			runs[n-1].count++
		} else {
			runs = append(runs, run{start: blk, count: 1})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, r := range runs {
		g.Go(func() error {
			start := r.start * b.blockSize
			length := min(r.count*b.blockSize, b.Size()-start)

			buf := make([]byte, length)

			n, err := b.inner.ReadAt(gctx, buf, start)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}

			buf = buf[:n]

			for i := range r.count {
				lo := i * b.blockSize
				if lo >= int64(len(buf)) {
					break
				}

				hi := min(lo+b.blockSize, int64(len(buf)))
				// Copy so a cached block does not pin the whole run.
				blk := make([]byte, hi-lo)
				copy(blk, buf[lo:hi])
				b.cache.Set(gctx, b.key(r.start+i), blk)
			}

			return nil
		})
	}

	return g.Wait()
}

func (b *cachingBlob) block(ctx context.Context, blk int64) ([]byte, error) {
	if data, ok := b.cache.Get(ctx, b.key(blk)); ok {
		return data, nil
	}

	// The cache may have evicted the block since fill.
	start := blk * b.blockSize
	buf := make([]byte, min(b.blockSize, b.Size()-start))

	n, err := b.inner.ReadAt(ctx, buf, start)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if n > 0 {
		b.cache.Set(ctx, b.key(blk), buf[:n])
	}

	return buf[:n], nil
}

func (b *cachingBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	return newSectionReader(ctx, b, off, length), nil
}
