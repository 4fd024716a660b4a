package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/semaphore"
)

// DiskCacheConfig holds configuration for the disk cache.
type DiskCacheConfig struct {
	// RootDir is the directory where cache files are stored.
	RootDir string
	// MaxSizeBytes is the maximum size of the cache on disk.
	MaxSizeBytes int64
	// MaxConcurrentWrites limits background disk writes.
	// Defaults to 16 if <= 0.
	MaxConcurrentWrites int64
	// Compression applied to blocks before they are written.
	Compression Compression
}

// DiskBlockCache implements BlockCache backed by the local filesystem.
//
// Files live at <root>/<xxhash(blob)>/<block>.blk and start with the blob
// name so the index can be rebuilt from disk:
//
//	[NameLen u16][Name][encoded block]
type DiskBlockCache struct {
	mu          sync.Mutex
	rootDir     string
	maxSize     int64
	currentSize int64
	compression Compression

	writeSem *semaphore.Weighted
	wg       sync.WaitGroup

	items   map[Key]*lruEntry
	lruHead *lruEntry
	lruTail *lruEntry

	hits   atomic.Int64
	misses atomic.Int64
}

type lruEntry struct {
	key        Key
	size       int64
	filePath   string
	next, prev *lruEntry
}

// NewDiskBlockCache creates a disk-backed block cache and indexes the
// blocks already present under RootDir.
func NewDiskBlockCache(config DiskCacheConfig) (*DiskBlockCache, error) {
	if err := os.MkdirAll(config.RootDir, 0755); err != nil {
		return nil, err
	}

	maxWrites := config.MaxConcurrentWrites
	if maxWrites <= 0 {
		maxWrites = 16
	}

	c := &DiskBlockCache{
		rootDir:     filepath.Clean(config.RootDir),
		maxSize:     config.MaxSizeBytes,
		compression: config.Compression,
		items:       make(map[Key]*lruEntry),
		writeSem:    semaphore.NewWeighted(maxWrites),
	}

	c.scanExistingFiles()

	return c, nil
}

func (c *DiskBlockCache) scanExistingFiles() {
	_ = filepath.WalkDir(c.rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // keep scanning past unreadable entries
		}

		if d.IsDir() || !strings.HasSuffix(path, ".blk") {
			return nil
		}

		key, size, ok := c.readKey(path)
		if !ok {
			_ = os.Remove(path)
			return nil
		}

		c.addToLRU(key, path, size)

		return nil
	})

	for c.currentSize > c.maxSize && c.lruTail != nil {
		c.evictOne()
	}
}

func (c *DiskBlockCache) readKey(path string) (Key, int64, bool) {
	block, err := strconv.ParseUint(strings.TrimSuffix(filepath.Base(path), ".blk"), 10, 64)
	if err != nil {
		return Key{}, 0, false
	}

	f, err := os.Open(path)
	if err != nil {
		return Key{}, 0, false
	}
	defer f.Close()

	var n uint16
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return Key{}, 0, false
	}

	name := make([]byte, n)
	if _, err := io.ReadFull(f, name); err != nil {
		return Key{}, 0, false
	}

	fi, err := f.Stat()
	if err != nil {
		return Key{}, 0, false
	}

	key := Key{Blob: string(name), Block: block}
	if c.filePath(key) != path {
		return Key{}, 0, false
	}

	return key, fi.Size(), true
}

func (c *DiskBlockCache) filePath(key Key) string {
	dir := fmt.Sprintf("%016x", xxhash.Sum64String(key.Blob))

	return filepath.Join(c.rootDir, dir, strconv.FormatUint(key.Block, 10)+".blk")
}

// Get returns a cached block, reading and decoding it from disk.
func (c *DiskBlockCache) Get(_ context.Context, key Key) ([]byte, bool) {
	c.mu.Lock()
	ent, ok := c.items[key]
	if ok {
		c.moveToFront(ent)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	data, err := c.load(ent)
	if err != nil {
		c.mu.Lock()
		if cur, ok := c.items[key]; ok && cur == ent {
			_ = os.Remove(ent.filePath)
			c.removeEntry(ent)
		}
		c.mu.Unlock()

		c.misses.Add(1)

		return nil, false
	}

	c.hits.Add(1)

	return data, true
}

func (c *DiskBlockCache) load(ent *lruEntry) ([]byte, error) {
	raw, err := os.ReadFile(ent.filePath)
	if err != nil {
		return nil, err
	}

	if len(raw) < 2 {
		return nil, ErrBadBlock
	}

	skip := 2 + int(binary.LittleEndian.Uint16(raw))
	if len(raw) < skip {
		return nil, ErrBadBlock
	}

	return decodeBlock(raw[skip:])
}

// Set writes the block to disk in the background. Writes are dropped when
// too many are already in flight.
func (c *DiskBlockCache) Set(_ context.Context, key Key, b []byte) {
	if len(key.Blob) > 0xFFFF {
		return
	}

	c.mu.Lock()
	if ent, ok := c.items[key]; ok {
		c.moveToFront(ent)
		c.mu.Unlock()

		return
	}
	c.mu.Unlock()

	if !c.writeSem.TryAcquire(1) {
		return
	}

	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		defer c.writeSem.Release(1)

		size, path, err := c.write(key, b)
		if err != nil {
			return
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		if _, ok := c.items[key]; ok {
			return
		}

		for c.currentSize+size > c.maxSize && c.lruTail != nil {
			c.evictOne()
		}

		if size > c.maxSize {
			_ = os.Remove(path)
			return
		}

		c.addToLRU(key, path, size)
	}()
}

func (c *DiskBlockCache) write(key Key, b []byte) (int64, string, error) {
	enc, err := encodeBlock(b, c.compression)
	if err != nil {
		return 0, "", err
	}

	path := c.filePath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "tmp-blk-*")
	if err != nil {
		return 0, "", err
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	var hdr [2]byte
	binary.LittleEndian.PutUint16(hdr[:], uint16(len(key.Blob)))

	for _, part := range [][]byte{hdr[:], []byte(key.Blob), enc} {
		if _, err := tmp.Write(part); err != nil {
			_ = tmp.Close()
			return 0, "", err
		}
	}

	if err := tmp.Close(); err != nil {
		return 0, "", err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return 0, "", err
	}

	return int64(2 + len(key.Blob) + len(enc)), path, nil
}

// InvalidateBlob removes the blob's blocks and their files.
func (c *DiskBlockCache) InvalidateBlob(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*lruEntry

	for k, ent := range c.items {
		if k.Blob == name {
			toRemove = append(toRemove, ent)
		}
	}

	for _, ent := range toRemove {
		_ = os.Remove(ent.filePath)
		c.removeEntry(ent)
	}
}

// Flush waits for all background writes to complete.
func (c *DiskBlockCache) Flush() {
	c.wg.Wait()
}

// Close waits for all background writes to complete.
func (c *DiskBlockCache) Close() error {
	c.Flush()

	return nil
}

// Stats returns hit and miss counts.
func (c *DiskBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the bytes currently indexed on disk.
func (c *DiskBlockCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.currentSize
}

// Internal LRU helpers (must hold lock)

func (c *DiskBlockCache) addToLRU(key Key, path string, size int64) {
	ent := &lruEntry{key: key, filePath: path, size: size}
	c.items[key] = ent
	c.currentSize += size

	if c.lruHead == nil {
		c.lruHead = ent
		c.lruTail = ent

		return
	}

	ent.next = c.lruHead
	c.lruHead.prev = ent
	c.lruHead = ent
}

func (c *DiskBlockCache) moveToFront(ent *lruEntry) {
	if c.lruHead == ent {
		return
	}

	if ent.prev != nil {
		ent.prev.next = ent.next
	}

	if ent.next != nil {
		ent.next.prev = ent.prev
	}

	if c.lruTail == ent {
		c.lruTail = ent.prev
	}

	ent.next = c.lruHead
	ent.prev = nil

	if c.lruHead != nil {
		c.lruHead.prev = ent
	}

	c.lruHead = ent
	if c.lruTail == nil {
		c.lruTail = ent
	}
}

func (c *DiskBlockCache) removeEntry(ent *lruEntry) {
	if ent.prev != nil {
		ent.prev.next = ent.next
	} else {
		c.lruHead = ent.next
	}

	if ent.next != nil {
		ent.next.prev = ent.prev
	} else {
		c.lruTail = ent.prev
	}

	ent.next, ent.prev = nil, nil
	delete(c.items, ent.key)
	c.currentSize -= ent.size
}

func (c *DiskBlockCache) evictOne() {
	if c.lruTail == nil {
		return
	}

	_ = os.Remove(c.lruTail.filePath)
	c.removeEntry(c.lruTail)
}
