// Package watch reports tree files that appear in a directory so a running
// session can hot-add them.
package watch

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before it is reported.
const DefaultDebounce = 250 * time.Millisecond

// ErrNotDir is returned when the watched path is not a directory.
var ErrNotDir = errors.New("watch: not a directory")

// Event names a tree file that was created or rewritten.
type Event struct {
	// Name is the path relative to the watched directory, slash separated.
	Name string
	// Path is the full path on disk.
	Path string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Values <= 0 keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithSuffix changes the reported file suffix (default ".bvh").
func WithSuffix(s string) Option {
	return func(w *Watcher) {
		w.suffix = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// Watcher watches a directory tree for new tree files.
type Watcher struct {
	dir      string
	debounce time.Duration
	suffix   string
	logger   *slog.Logger

	fsw    *fsnotify.Watcher
	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// New starts watching dir and every directory below it.
func New(dir string, opts ...Option) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return nil, ErrNotDir
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		dir:      dir,
		debounce: DefaultDebounce,
		suffix:   ".bvh",
		logger:   slog.New(slog.DiscardHandler),
		fsw:      fsw,
		events:   make(chan Event, 32),
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}

	for _, opt := range opts {
		opt(w)
	}

	if err := w.addTree(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w.wg.Add(1)

	go w.run()

	return w, nil
}

// Events returns the channel of debounced events. It is closed by Close.
func (w *Watcher) Events() <-chan Event { return w.events }

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Close stops watching and closes the events channel.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}

	w.closed = true
	for name, t := range w.timers {
		t.Stop()
		delete(w.timers, name)
	}
	w.mu.Unlock()

	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	close(w.events)

	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			w.logger.Warn("watch error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watch subdirectory", "path", ev.Name, "error", err)
			}

			return
		}
	}

	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	if !strings.HasSuffix(ev.Name, w.suffix) {
		return
	}

	path := ev.Name

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}

	w.timers[path] = time.AfterFunc(w.debounce, func() { w.fire(path) })
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}

	delete(w.timers, path)
	w.wg.Add(1)
	w.mu.Unlock()

	defer w.wg.Done()

	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		rel = filepath.Base(path)
	}

	ev := Event{Name: filepath.ToSlash(rel), Path: path}

	w.logger.Debug("tree file settled", "name", ev.Name)

	select {
	case w.events <- ev:
	case <-w.done:
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if d.IsDir() {
			return w.fsw.Add(path)
		}

		return nil
	})
}
