package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrInjected is the error returned by injected faults without an explicit Err.
var ErrInjected = errors.New("fs: injected fault")

// Fault defines read-side failure behavior for matching files.
type Fault struct {
	// ReadDelay is slept before every ReadAt.
	ReadDelay time.Duration
	// FailReads makes every ReadAt fail once FailAfterReads reads succeeded.
	FailReads      bool
	FailAfterReads int
	// FailOpen makes OpenFile fail for matching names.
	FailOpen bool
	// Err overrides ErrInjected.
	Err error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}

	return ErrInjected
}

// FaultyFS is a FileSystem wrapper that can inject latency and errors.
type FaultyFS struct {
	FS FileSystem

	mu    sync.Mutex
	rules map[string]Fault // substring of the name -> fault
	reads int64
}

// NewFaultyFS creates a new FaultyFS wrapping the provided FS (or Default if nil).
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = Default
	}

	return &FaultyFS{
		FS:    fs,
		rules: make(map[string]Fault),
	}
}

// AddRule adds a fault for every file whose name contains pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rules[pattern] = fault
}

// ClearRules removes all faults.
func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()

	clear(f.rules)
}

// Reads returns the number of ReadAt calls served by faulty files.
func (f *FaultyFS) Reads() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.reads
}

func (f *FaultyFS) match(name string) (Fault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var (
		fault Fault
		found bool
	)

	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) {
			fault, found = rule, true
		}
	}

	return fault, found
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	if fault, ok := f.match(name); ok && fault.FailOpen {
		return nil, &os.PathError{Op: "open", Path: name, Err: fault.err()}
	}

	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}

	return &faultyFile{File: file, fs: f, name: name}, nil
}

func (f *FaultyFS) Remove(name string) error {
	return f.FS.Remove(name)
}

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	return f.FS.Rename(oldpath, newpath)
}

func (f *FaultyFS) Stat(name string) (os.FileInfo, error) {
	return f.FS.Stat(name)
}

func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}

func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error) {
	return f.FS.ReadDir(name)
}

// faultyFile consults the rules on every read, so faults added or cleared
// after open take effect.
type faultyFile struct {
	File
	fs   *FaultyFS
	name string

	mu    sync.Mutex
	reads int
}

func (ff *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	fault, ok := ff.fs.match(ff.name)
	if !ok {
		return ff.File.ReadAt(p, off)
	}

	if fault.ReadDelay > 0 {
		time.Sleep(fault.ReadDelay)
	}

	ff.fs.mu.Lock()
	ff.fs.reads++
	ff.fs.mu.Unlock()

	ff.mu.Lock()
	n := ff.reads
	ff.reads++
	ff.mu.Unlock()

	if fault.FailReads && n >= fault.FailAfterReads {
		return 0, fault.err()
	}

	return ff.File.ReadAt(p, off)
}
