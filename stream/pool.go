package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	fifo "github.com/eapache/queue"

	"github.com/hupe1980/lodstream/blobstore"
	"github.com/hupe1980/lodstream/internal/resource"
	"github.com/hupe1980/lodstream/internal/sema"
	"github.com/hupe1980/lodstream/model"
	"github.com/hupe1980/lodstream/queue"
	"github.com/hupe1980/lodstream/registry"
)

// Source resolves models and opens their payloads. *registry.Registry
// implements it.
type Source interface {
	GetModel(id model.ModelID) (*registry.Model, error)
	OpenPayload(ctx context.Context, id model.ModelID) (blobstore.Blob, error)
}

// Slots hands out the byte range of a slot. *cache.Arena implements it.
type Slots interface {
	Slot(id model.SlotID) ([]byte, error)
}

// Committer publishes or releases slots. *cache.Index implements it.
type Committer interface {
	ApplySlot(id model.SlotID, m model.ModelID, n model.NodeID) error
	UnreserveSlot(id model.SlotID) error
}

// Config sizes a Pool.
type Config struct {
	// Workers is the number of loader goroutines. Default 4.
	Workers int
	// SlotSize is the number of bytes read per job: one node.
	SlotSize int
}

// CommitStats summarises one ResolvePendingCommits call.
type CommitStats struct {
	Committed int
	Failed    int
	Bytes     uint64
}

// Stats is a snapshot of the pool counters.
type Stats struct {
	Pending     int
	InFlight    int
	History     int
	Failed      int
	BytesLoaded uint64
	Loads       uint64
	Failures    uint64
}

type failure struct {
	job model.Job
	err error
}

// Pool is the out-of-core loader. One consumer goroutine drives it; the
// workers run in the background until Close.
type Pool struct {
	source  Source
	slots   Slots
	cfg     Config
	logger  *slog.Logger
	metrics MetricsObserver
	rc      *resource.Controller

	queue  *queue.Queue
	sem    *sema.Semaphore
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
	locked atomic.Bool

	// mu is the pool mutex. Workers hold it to publish a load; the consumer
	// holds it between Lock and Unlock.
	mu          sync.Mutex
	history     *fifo.Queue
	failed      []failure
	bytesLoaded uint64
	loads       uint64
	failures    uint64
	measure     measureState
}

// New starts a pool with cfg.Workers workers.
func New(source Source, slots Slots, cfg Config, opts ...Option) (*Pool, error) {
	if cfg.SlotSize <= 0 {
		return nil, fmt.Errorf("%w: slot size %d", ErrInvalidConfig, cfg.SlotSize)
	}

	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		source:  source,
		slots:   slots,
		cfg:     cfg,
		logger:  slog.New(slog.DiscardHandler),
		metrics: NoopMetricsObserver{},
		queue:   queue.New(64),
		sem:     sema.New(),
		ctx:     ctx,
		cancel:  cancel,
		history: fifo.New(),
	}

	for _, opt := range opts {
		opt(p)
	}

	for i := range cfg.Workers {
		p.wg.Add(1)

		go p.worker(i)
	}

	p.logger.Debug("stream pool started", "workers", cfg.Workers, "slot_size", cfg.SlotSize)

	return p, nil
}

// AcknowledgeRequest queues a load of job.Node into job.Slot. It returns
// false if the node was already queued or in flight; a queued duplicate
// takes the new priority.
func (p *Pool) AcknowledgeRequest(job model.Job) bool {
	if p.closed.Load() {
		return false
	}

	if !p.queue.PushJob(job) {
		return false
	}

	p.sem.Signal(1)
	p.metrics.OnQueueDepth(p.queue.NumJobs(), p.queue.NumInFlight())

	return true
}

// AcknowledgeQuery reports whether a node is pending, claimed or unknown.
func (p *Pool) AcknowledgeQuery(m model.ModelID, n model.NodeID) queue.QueryResult {
	return p.queue.IsNodeIndexed(m, n)
}

// AcknowledgeUpdate changes the priority of a queued or claimed job.
func (p *Pool) AcknowledgeUpdate(m model.ModelID, n model.NodeID, prio model.Priority) bool {
	return p.queue.UpdateJob(m, n, prio)
}

// Lock takes the pool mutex for a reconcile pass. Workers finish their reads
// but cannot publish until Unlock.
func (p *Pool) Lock() {
	p.mu.Lock()
	p.locked.Store(true)
}

// Unlock releases the pool mutex. Unlocking an unlocked pool panics.
func (p *Pool) Unlock() {
	if !p.locked.CompareAndSwap(true, false) {
		panic("stream: unlock of unlocked pool")
	}

	p.mu.Unlock()
}

// ResolvePendingCommits publishes every loaded job to idx and releases the
// slots of failed jobs. The pool must be locked.
func (p *Pool) ResolvePendingCommits(idx Committer) (CommitStats, error) {
	if !p.locked.Load() {
		return CommitStats{}, ErrNotLocked
	}

	var (
		stats CommitStats
		errs  []error
	)

	for p.history.Length() > 0 {
		job, _ := p.history.Remove().(model.Job)

		if err := idx.ApplySlot(job.Slot, job.Model, job.Node); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", job, err))
		} else {
			stats.Committed++
			stats.Bytes += uint64(p.cfg.SlotSize)
		}

		p.queue.PopJob(job.Model, job.Node)
	}

	for _, f := range p.failed {
		if err := idx.UnreserveSlot(f.job.Slot); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", f.job, err))
		}

		p.queue.PopJob(f.job.Model, f.job.Node)
		stats.Failed++
	}

	clear(p.failed)
	p.failed = p.failed[:0]

	p.metrics.OnCommit(stats.Committed, stats.Failed)

	return stats, errors.Join(errs...)
}

// PerformQueueMaintenance cancels every job no worker has claimed yet and
// releases its slot. The pool must be locked.
func (p *Pool) PerformQueueMaintenance(idx Committer) (int, error) {
	if !p.locked.Load() {
		return 0, ErrNotLocked
	}

	var (
		n    int
		errs []error
	)

	for {
		job, ok := p.queue.PopPending()
		if !ok {
			break
		}

		if err := idx.UnreserveSlot(job.Slot); err != nil {
			errs = append(errs, fmt.Errorf("cancel %s: %w", job, err))
		}

		n++
	}

	p.metrics.OnCancel(n)
	p.metrics.OnQueueDepth(0, p.queue.NumInFlight())

	return n, errors.Join(errs...)
}

// Stats returns the current counters. Between Lock and Unlock use
// LockedStats instead.
func (p *Pool) Stats() Stats {
	pending, inFlight := p.queue.NumJobs(), p.queue.NumInFlight()

	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Pending:     pending,
		InFlight:    inFlight,
		History:     p.history.Length(),
		Failed:      len(p.failed),
		BytesLoaded: p.bytesLoaded,
		Loads:       p.loads,
		Failures:    p.failures,
	}
}

// statsLocked is Stats for a caller that holds the pool lock.
func (p *Pool) statsLocked() Stats {
	return Stats{
		Pending:     p.queue.NumJobs(),
		InFlight:    p.queue.NumInFlight(),
		History:     p.history.Length(),
		Failed:      len(p.failed),
		BytesLoaded: p.bytesLoaded,
		Loads:       p.loads,
		Failures:    p.failures,
	}
}

// LockedStats returns the counters while the consumer holds the lock.
func (p *Pool) LockedStats() (Stats, error) {
	if !p.locked.Load() {
		return Stats{}, ErrNotLocked
	}

	return p.statsLocked(), nil
}

// Close stops all workers and waits for them. Claimed jobs that have not
// been published are dropped.
func (p *Pool) Close() error {
	if p.locked.Load() {
		return ErrLocked
	}

	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.cancel()
	p.sem.Close()
	p.wg.Wait()

	p.logger.Debug("stream pool stopped")

	return nil
}

type workerState struct {
	id      int
	blobs   map[model.ModelID]blobstore.Blob
	scratch []byte
}

func (w *workerState) close() {
	for id, b := range w.blobs {
		_ = b.Close()
		delete(w.blobs, id)
	}

	w.scratch = nil
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	w := &workerState{
		id:      id,
		blobs:   make(map[model.ModelID]blobstore.Blob),
		scratch: make([]byte, p.cfg.SlotSize),
	}
	defer w.close()

	for p.sem.Wait() {
		if p.ctx.Err() != nil {
			return
		}

		job, ok := p.queue.Claim()
		if !ok {
			// Cancelled by maintenance after the signal.
			continue
		}

		p.load(w, job)
	}
}

func (p *Pool) load(w *workerState, job model.Job) {
	start := time.Now()

	err := p.read(w, job)
	if p.ctx.Err() != nil {
		return
	}

	p.mu.Lock()

	if err == nil {
		var dst []byte

		dst, err = p.slots.Slot(job.Slot)
		if err == nil {
			copy(dst, w.scratch)
			p.bytesLoaded += uint64(len(w.scratch))
			p.loads++
			p.history.Add(job)
		}
	}

	if err != nil {
		p.failed = append(p.failed, failure{job: job, err: err})
		p.failures++
	}

	p.mu.Unlock()

	p.metrics.OnLoad(time.Since(start), len(w.scratch), err)

	if err != nil {
		p.metrics.OnFailure(job, err)
		p.logger.Warn("load failed", "worker", w.id, "model", job.Model, "node", job.Node, "slot", job.Slot, "error", err)
	}
}

// read fills w.scratch with the node's bytes. No pool lock is held.
func (p *Pool) read(w *workerState, job model.Job) error {
	m, err := p.source.GetModel(job.Model)
	if err != nil {
		return err
	}

	b, ok := w.blobs[job.Model]
	if !ok {
		b, err = p.source.OpenPayload(p.ctx, job.Model)
		if err != nil {
			return fmt.Errorf("open payload %s: %w", m.Payload, err)
		}

		w.blobs[job.Model] = b
	}

	if err := p.rc.AcquireRead(p.ctx); err != nil {
		return err
	}
	defer p.rc.ReleaseRead()

	if err := p.rc.AcquireIO(p.ctx, len(w.scratch)); err != nil {
		return err
	}

	if err := blobstore.ReadFull(p.ctx, b, w.scratch, m.NodeOffset(job.Node)); err != nil {
		return fmt.Errorf("read node %d of %s: %w", job.Node, m.Payload, err)
	}

	return nil
}
