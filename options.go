package lodstream

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/lodstream/blobstore"
	"github.com/hupe1980/lodstream/cache"
	"github.com/hupe1980/lodstream/catalog"
	"github.com/hupe1980/lodstream/registry"
)

// DefaultMemoryRatio is the share of system memory used for slots when no
// explicit size is configured.
const DefaultMemoryRatio = 0.25

type options struct {
	store         blobstore.BlobStore
	catalog       catalog.Catalog
	memoryRatio   float64
	cacheBytes    uint64
	slotCount     int
	workers       int
	ioLimit       int64
	eviction      cache.EvictionPolicy
	watchDir      string
	watchDebounce time.Duration
	heapArena     bool
	logger        *Logger
	metrics       MetricsObserver
}

// Option configures Open.
type Option func(*options)

// WithStore sets where trees and payloads are read from. Without it names
// are resolved as local file paths.
func WithStore(s blobstore.BlobStore) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithCatalog sets the models registered by Open.
func WithCatalog(c catalog.Catalog) Option {
	return func(o *options) {
		o.catalog = c
	}
}

// WithModels is shorthand for WithCatalog(catalog.Static(entries)).
func WithModels(entries ...registry.Entry) Option {
	return func(o *options) {
		o.catalog = catalog.Static(entries)
	}
}

// WithMemoryRatio sizes the slot pool as a share of total system memory.
func WithMemoryRatio(ratio float64) Option {
	return func(o *options) {
		o.memoryRatio = ratio
	}
}

// WithCacheBytes sizes the slot pool to a fixed number of bytes. It takes
// precedence over WithMemoryRatio.
func WithCacheBytes(n uint64) Option {
	return func(o *options) {
		o.cacheBytes = n
	}
}

// WithSlotCount fixes the number of slots. It takes precedence over the
// byte based options.
func WithSlotCount(n int) Option {
	return func(o *options) {
		o.slotCount = n
	}
}

// WithWorkers sets the number of loader goroutines.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithIOLimit caps the payload bytes read per second. Zero is unlimited.
//
// A renderer budget of N bytes per frame at F frames per second is
// WithIOLimit(N * F).
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithEviction sets the slot eviction policy. The default is
// cache.LowestPriority.
func WithEviction(p cache.EvictionPolicy) Option {
	return func(o *options) {
		if p != nil {
			o.eviction = p
		}
	}
}

// WithWatchDir hot-adds tree files that appear below dir. The directory
// must be reachable through the store: for a local store it should lie
// under the store root.
func WithWatchDir(dir string) Option {
	return func(o *options) {
		o.watchDir = dir
	}
}

// WithWatchDebounce sets how long a new tree file must stay unchanged.
func WithWatchDebounce(d time.Duration) Option {
	return func(o *options) {
		o.watchDebounce = d
	}
}

// WithHeapArena keeps slots on the Go heap instead of an anonymous mapping.
func WithHeapArena() Option {
	return func(o *options) {
		o.heapArena = true
	}
}

// WithLogger configures structured logging. Pass nil to disable logging.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}

		o.logger = l
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsObserver receives loader events. If it also implements
// SlotObserver it gets a slot snapshot every Reconcile.
func WithMetricsObserver(m MetricsObserver) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsObserver{}
		}

		o.metrics = m
	}
}

// EvictionPolicy maps "priority", "lru" and "none" to a policy.
func EvictionPolicy(name string) (cache.EvictionPolicy, error) {
	switch name {
	case "", "priority":
		return cache.LowestPriority{}, nil
	case "lru":
		return cache.LeastRecentlyUsed{}, nil
	case "none":
		return cache.NoEviction{}, nil
	default:
		return nil, fmt.Errorf("%w: eviction %q", ErrInvalidOption, name)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		memoryRatio: DefaultMemoryRatio,
		workers:     4,
		eviction:    cache.LowestPriority{},
		logger:      NoopLogger(),
		metrics:     NoopMetricsObserver{},
	}

	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	if o.store == nil {
		o.store = blobstore.NewLocalStore("")
	}

	if o.catalog == nil {
		o.catalog = catalog.Static(nil)
	}

	return o
}
