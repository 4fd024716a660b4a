package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/hupe1980/lodstream/internal/fs"
	"github.com/hupe1980/lodstream/internal/mmap"
)

// Compile time check to ensure LocalStore satisfies the BlobStore interface.
var _ BlobStore = (*LocalStore)(nil)

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithFileSystem routes all file access through fsys. Used for fault
// injection in tests.
func WithFileSystem(fsys fs.FileSystem) LocalOption {
	return func(s *LocalStore) {
		if fsys != nil {
			s.fs = fsys
		}
	}
}

// WithMmap maps blobs read-only instead of reading them with pread.
// Mapping bypasses the configured FileSystem.
func WithMmap(enabled bool) LocalOption {
	return func(s *LocalStore) {
		s.mmap = enabled
	}
}

// LocalStore implements BlobStore on a directory of the local filesystem.
// With an empty root, names are used as paths unchanged.
type LocalStore struct {
	root string
	fs   fs.FileSystem
	mmap bool
	seq  atomic.Uint64
}

// NewLocalStore creates a store rooted at root.
func NewLocalStore(root string, opts ...LocalOption) *LocalStore {
	s := &LocalStore{root: root, fs: fs.Default}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Root returns the root directory.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) path(name string) string {
	if s.root == "" {
		return filepath.FromSlash(name)
	}

	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Open opens a blob for reading.
func (s *LocalStore) Open(ctx context.Context, name string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := s.path(name)

	if s.mmap {
		m, err := mmap.Open(p)
		if err != nil {
			return nil, err
		}

		_ = m.Advise(mmap.AccessRandom)

		return &mappedBlob{m: m}, nil
	}

	f, err := s.fs.OpenFile(p, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	if st.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("blobstore: %s is a directory", name)
	}

	return &fileBlob{f: f, size: st.Size()}, nil
}

// Create writes to a temporary file that is renamed into place on Close.
func (s *LocalStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	final := s.path(name)
	if err := s.fs.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return nil, err
	}

	tmp := fmt.Sprintf("%s.tmp-%d", final, s.seq.Add(1))

	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	return &localWritableBlob{fs: s.fs, f: f, tmp: tmp, final: final}, nil
}

// Put writes a blob atomically.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	w, err := s.Create(ctx, name)
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}

	if err := w.Sync(); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}

// Delete removes a blob.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	err := s.fs.Remove(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}

// List walks the root and returns slash separated names with the prefix.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	root := s.root
	if root == "" {
		root = "."
	}

	var names []string

	var walk func(dir, rel string) error

	walk = func(dir, rel string) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		entries, err := s.fs.ReadDir(dir)
		if err != nil {
			return err
		}

		for _, e := range entries {
			name := path.Join(rel, e.Name())
			if e.IsDir() {
				if err := walk(filepath.Join(dir, e.Name()), name); err != nil {
					return err
				}

				continue
			}

			if strings.Contains(e.Name(), ".tmp-") {
				continue
			}

			if strings.HasPrefix(name, prefix) {
				names = append(names, name)
			}
		}

		return nil
	}

	if err := walk(root, ""); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	slices.Sort(names)

	return names, nil
}

type fileBlob struct {
	f    fs.File
	size int64
}

func (b *fileBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return b.f.ReadAt(p, off)
}

func (b *fileBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	return newSectionReader(ctx, b, off, length), nil
}

func (b *fileBlob) Close() error { return b.f.Close() }
func (b *fileBlob) Size() int64  { return b.size }

type mappedBlob struct {
	m *mmap.Mapping
}

func (b *mappedBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return sliceReadAt(b.m.Bytes(), p, off)
}

func (b *mappedBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	return newSectionReader(ctx, b, off, length), nil
}

func (b *mappedBlob) Bytes() ([]byte, error) { return b.m.Bytes(), nil }
func (b *mappedBlob) Close() error           { return b.m.Close() }
func (b *mappedBlob) Size() int64            { return int64(b.m.Size()) }

type localWritableBlob struct {
	fs     fs.FileSystem
	f      fs.File
	tmp    string
	final  string
	closed bool
}

func (w *localWritableBlob) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w *localWritableBlob) Sync() error {
	return w.f.Sync()
}

func (w *localWritableBlob) Close() error {
	if w.closed {
		return os.ErrClosed
	}

	w.closed = true

	if err := w.f.Close(); err != nil {
		_ = w.fs.Remove(w.tmp)
		return err
	}

	if err := w.fs.Rename(w.tmp, w.final); err != nil {
		_ = w.fs.Remove(w.tmp)
		return err
	}

	return nil
}
