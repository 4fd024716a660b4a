package lodstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lodstream/blobstore"
	"github.com/hupe1980/lodstream/budget"
	"github.com/hupe1980/lodstream/cache"
	"github.com/hupe1980/lodstream/internal/resource"
	"github.com/hupe1980/lodstream/model"
	"github.com/hupe1980/lodstream/queue"
	"github.com/hupe1980/lodstream/registry"
	"github.com/hupe1980/lodstream/stream"
	"github.com/hupe1980/lodstream/watch"
)

// Status is the outcome of a Request.
type Status uint8

const (
	// StatusResident means the node's bytes are committed and readable.
	StatusResident Status = iota
	// StatusLoading means the node is queued or being read.
	StatusLoading
	// StatusQueued means the request reserved a slot and queued a load.
	StatusQueued
	// StatusRejected means no slot was free and nothing could be evicted.
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusResident:
		return "resident"
	case StatusLoading:
		return "loading"
	case StatusQueued:
		return "queued"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ReconcileStats summarises one Reconcile.
type ReconcileStats struct {
	// Frame is the frame number the pass closed, starting at 1.
	Frame     uint64
	Committed int
	Failed    int
	Cancelled int
	// Applied is the number of hot-added models that became visible.
	Applied int
	// Bytes is the payload committed by this pass.
	Bytes uint64
}

// Stats is a snapshot of the session.
type Stats struct {
	Frame       uint64
	Models      int
	SlotSize    int
	Slots       cache.Stats
	Stream      stream.Stats
	MemoryUsage int64
	MemoryLimit int64
	IOBytes     int64
}

// Session streams node payloads of registered models into a fixed pool of
// slots. Request, Reconcile, Slot and Close belong to one consumer
// goroutine; AddModel and the read-only accessors are safe from any.
type Session struct {
	opts     options
	logger   *Logger
	store    blobstore.BlobStore
	registry *registry.Registry
	rc       *resource.Controller
	arena    *cache.Arena
	index    *cache.Index
	pool     *stream.Pool
	slotSize int

	frame  atomic.Uint64
	closed atomic.Bool

	watcher *watch.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// closer releases resources OpenConfig created for the store.
	closer io.Closer
}

// Open registers the catalog's models, sizes the slot pool and starts the
// loader workers.
//
//	s, err := lodstream.Open(ctx,
//	    lodstream.WithStore(blobstore.NewLocalStore("/data")),
//	    lodstream.WithModels(registry.Entry{Path: "bunny.bvh"}),
//	    lodstream.WithMemoryRatio(0.25),
//	)
func Open(ctx context.Context, optFns ...Option) (*Session, error) {
	o := applyOptions(optFns)

	if o.workers <= 0 {
		return nil, fmt.Errorf("%w: workers %d", ErrInvalidOption, o.workers)
	}

	entries, err := o.catalog.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	if len(entries) == 0 {
		return nil, ErrNoModels
	}

	reg := registry.New(o.store, registry.WithLogger(o.logger.Logger))

	ids, err := reg.AddModels(ctx, entries)
	if err != nil {
		return nil, translateError(err)
	}

	reg.Apply()

	for i, id := range ids {
		o.logger.LogModelAdded(ctx, entries[i].Path, id, nil)
	}

	slotSize := int(reg.SlotSize())
	if slotSize <= 0 {
		return nil, fmt.Errorf("%w: empty nodes", ErrIncompatibleModel)
	}

	slots, err := slotCount(o, uint64(slotSize))
	if err != nil {
		return nil, err
	}

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:   int64(slots) * int64(slotSize),
		IOLimitBytesPerSec: o.ioLimit,
	})

	arenaOpts := []cache.ArenaOption{cache.WithResourceController(rc)}
	if o.heapArena {
		arenaOpts = append(arenaOpts, cache.WithHeapMemory())
	}

	arena, err := cache.NewArena(slots, slotSize, arenaOpts...)
	if err != nil {
		return nil, err
	}

	index := cache.NewIndex(slots,
		cache.WithEvictionPolicy(o.eviction),
		cache.WithLogger(o.logger.Logger),
	)

	pool, err := stream.New(reg, arena, stream.Config{Workers: o.workers, SlotSize: slotSize},
		stream.WithLogger(o.logger.Logger),
		stream.WithMetricsObserver(loggingObserver{MetricsObserver: o.metrics, logger: o.logger}),
		stream.WithResourceController(rc),
	)
	if err != nil {
		_ = arena.Close()
		return nil, err
	}

	s := &Session{
		opts:     o,
		logger:   o.logger,
		store:    o.store,
		registry: reg,
		rc:       rc,
		arena:    arena,
		index:    index,
		pool:     pool,
		slotSize: slotSize,
	}

	if o.watchDir != "" {
		if err := s.startWatcher(); err != nil {
			_ = pool.Close()
			_ = arena.Close()

			return nil, err
		}
	}

	o.logger.InfoContext(ctx, "session opened",
		"models", len(ids),
		"slots", slots,
		"slot_size", slotSize,
		"workers", o.workers,
		"mapped", arena.Mapped(),
	)

	return s, nil
}

// slotCount resolves the pool size from the options.
func slotCount(o options, slotSize uint64) (int, error) {
	var n uint64

	switch {
	case o.slotCount != 0:
		if o.slotCount < 0 {
			return 0, fmt.Errorf("%w: slot count %d", ErrInvalidOption, o.slotCount)
		}

		n = uint64(o.slotCount)
	case o.cacheBytes != 0:
		n = budget.MaxElementsInBuffer(o.cacheBytes, slotSize)
	default:
		st, err := budget.NewStatus(o.memoryRatio, slotSize)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidOption, err)
		}

		n = st.MaxElementsAllowed(0)
	}

	if n == 0 {
		return 0, fmt.Errorf("%w: budget holds no %d byte slot", ErrInvalidOption, slotSize)
	}

	if n > uint64(model.InvalidSlot) {
		n = uint64(model.InvalidSlot)
	}

	return int(n), nil
}

// AddModel loads the tree at path and stages it. It becomes requestable
// after the next Reconcile or Apply. An empty key defaults to path.
func (s *Session) AddModel(ctx context.Context, path, key string) (model.ModelID, error) {
	if s.closed.Load() {
		return model.InvalidModel, ErrClosed
	}

	id, err := s.registry.AddModel(ctx, path, key)
	err = translateError(err)

	s.logger.LogModelAdded(ctx, path, id, err)

	return id, err
}

// Apply makes staged models visible without waiting for Reconcile.
func (s *Session) Apply() int {
	return s.registry.Apply()
}

// Lookup resolves a model key.
func (s *Session) Lookup(key string) (model.ModelID, bool) {
	return s.registry.Lookup(key)
}

// Models returns the visible models ordered by id.
func (s *Session) Models() []*registry.Model {
	return s.registry.Models()
}

// Model returns a visible model.
func (s *Session) Model(id model.ModelID) (*registry.Model, error) {
	m, err := s.registry.GetModel(id)
	return m, translateError(err)
}

// SlotSize returns the bytes of one node.
func (s *Session) SlotSize() int { return s.slotSize }

// Request asks for node n of model m with the given priority. Resident
// nodes are touched, loading nodes take the new priority and missing nodes
// get a slot and a queued load. StatusRejected is not an error: the pool is
// full of higher priority nodes and the request should be repeated next
// frame.
func (s *Session) Request(m model.ModelID, n model.NodeID, prio model.Priority) (Status, error) {
	if s.closed.Load() {
		return StatusRejected, ErrClosed
	}

	if prio.IsNaN() {
		return StatusRejected, ErrInvalidPriority
	}

	mdl, err := s.registry.GetModel(m)
	if err != nil {
		return StatusRejected, translateError(err)
	}

	if uint32(n) >= mdl.Tree.NumNodes() {
		return StatusRejected, &ErrNodeOutOfRange{Model: m, Node: n, NumNodes: mdl.Tree.NumNodes()}
	}

	if _, state, ok := s.index.Lookup(m, n); ok {
		s.index.Touch(m, n, prio)

		if state == cache.SlotOccupied {
			return StatusResident, nil
		}

		s.pool.AcknowledgeUpdate(m, n, prio)

		return StatusLoading, nil
	}

	slot, err := s.index.ReserveSlot(m, n, prio)
	if err != nil {
		if errors.Is(err, cache.ErrPoolFull) {
			return StatusRejected, nil
		}

		return StatusRejected, translateError(err)
	}

	if !s.pool.AcknowledgeRequest(model.Job{Model: m, Node: n, Slot: slot, Priority: prio}) {
		// Closed underneath us, or a stale duplicate; the slot goes back.
		if err := s.index.UnreserveSlot(slot); err != nil {
			return StatusRejected, translateError(err)
		}

		if s.pool.AcknowledgeQuery(m, n) == queue.NotIndexed {
			return StatusRejected, ErrClosed
		}

		return StatusLoading, nil
	}

	return StatusQueued, nil
}

// Reconcile closes a frame: staged models become visible, finished loads
// are committed, failed loads release their slots and every load no worker
// has started is cancelled. Nodes still wanted must be requested again.
func (s *Session) Reconcile() (ReconcileStats, error) {
	if s.closed.Load() {
		return ReconcileStats{}, ErrClosed
	}

	r := ReconcileStats{Applied: s.registry.Apply()}

	s.pool.Lock()

	commits, commitErr := s.pool.ResolvePendingCommits(s.index)
	cancelled, cancelErr := s.pool.PerformQueueMaintenance(s.index)

	s.pool.Unlock()

	s.index.Tick()

	r.Frame = s.frame.Add(1)
	r.Committed = commits.Committed
	r.Failed = commits.Failed
	r.Bytes = commits.Bytes
	r.Cancelled = cancelled

	if so, ok := s.opts.metrics.(SlotObserver); ok {
		so.OnSlots(s.index.Stats())
	}

	err := translateError(errors.Join(commitErr, cancelErr))

	s.logger.LogReconcile(context.Background(), r, err)

	return r, err
}

// Slot returns the committed bytes of a resident node. The slice aliases
// the pool and stays valid until the next Request, which may evict it.
func (s *Session) Slot(m model.ModelID, n model.NodeID) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	id, state, ok := s.index.Lookup(m, n)
	if !ok || state != cache.SlotOccupied {
		return nil, fmt.Errorf("%w: %s", ErrNotResident, model.Key{Model: m, Node: n})
	}

	b, err := s.arena.Slot(id)

	return b, translateError(err)
}

// IsResident reports whether the node's bytes are committed.
func (s *Session) IsResident(m model.ModelID, n model.NodeID) bool {
	return s.index.IsResident(m, n)
}

// Resident returns the resident nodes of model m.
func (s *Session) Resident(m model.ModelID) *roaring.Bitmap {
	return s.index.Resident(m)
}

// Query reports whether a load of the node is pending or in flight.
func (s *Session) Query(m model.ModelID, n model.NodeID) queue.QueryResult {
	return s.pool.AcknowledgeQuery(m, n)
}

// Stats returns a snapshot. It must not race with Reconcile.
func (s *Session) Stats() Stats {
	return Stats{
		Frame:       s.frame.Load(),
		Models:      s.registry.NumModels(),
		SlotSize:    s.slotSize,
		Slots:       s.index.Stats(),
		Stream:      s.pool.Stats(),
		MemoryUsage: s.rc.MemoryUsage(),
		MemoryLimit: s.rc.MemoryLimit(),
		IOBytes:     s.rc.IOBytes(),
	}
}

// BeginMeasure starts a throughput window.
func (s *Session) BeginMeasure() {
	s.pool.BeginMeasure()
}

// EndMeasure closes the window started by BeginMeasure and logs it.
func (s *Session) EndMeasure() stream.Measurement {
	m := s.pool.EndMeasure()
	s.logger.LogMeasure(context.Background(), m)

	return m
}

func (s *Session) startWatcher() error {
	w, err := watch.New(s.opts.watchDir,
		watch.WithDebounce(s.opts.watchDebounce),
		watch.WithLogger(s.logger.Logger),
	)
	if err != nil {
		return fmt.Errorf("watch %s: %w", s.opts.watchDir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.watcher = w
	s.cancel = cancel
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		for ev := range w.Events() {
			name := s.storeName(ev)
			if _, ok := s.registry.Lookup(name); ok {
				continue
			}

			// Errors are logged by AddModel; a rewritten or incomplete
			// dataset is retried on its next write.
			_, _ = s.AddModel(ctx, name, name)
		}
	}()

	return nil
}

// storeName maps a watched file to the name the store knows it by.
func (s *Session) storeName(ev watch.Event) string {
	ls, ok := s.store.(*blobstore.LocalStore)
	if !ok {
		return ev.Name
	}

	if ls.Root() == "" {
		return ev.Path
	}

	rel, err := filepath.Rel(ls.Root(), ev.Path)
	if err != nil {
		return ev.Name
	}

	return filepath.ToSlash(rel)
}
