package queue

import (
	"container/heap"
	"sync"

	"github.com/hupe1980/lodstream/model"
)

// QueryResult is the answer of IsNodeIndexed.
type QueryResult uint8

const (
	// NotIndexed means the queue does not know the node.
	NotIndexed QueryResult = iota
	// Indexed means a worker claimed the node; its read is in flight or
	// awaiting commit. The job can no longer be cancelled.
	Indexed
	// IndexedPending means the node waits in the queue and may still be
	// cancelled.
	IndexedPending
)

func (r QueryResult) String() string {
	switch r {
	case Indexed:
		return "indexed"
	case IndexedPending:
		return "indexed_pending"
	default:
		return "not_indexed"
	}
}

type entry struct {
	job     model.Job
	claimed bool
	index   int // position in the pending heap, -1 once claimed
}

// Compile time check to ensure pendingHeap satisfies the heap interface.
var _ heap.Interface = (*pendingHeap)(nil)

type pendingHeap []*entry

func (h pendingHeap) Len() int           { return len(h) }
func (h pendingHeap) Less(i, j int) bool { return h[i].job.Outranks(h[j].job) }

func (h pendingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *pendingHeap) Push(x any) {
	e, _ := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]

	return e
}

// Queue is the deduplicating priority queue of load jobs.
type Queue struct {
	mu       sync.Mutex
	entries  map[model.Key]*entry
	pending  pendingHeap
	inFlight int
}

// New creates an empty queue sized for about capacity jobs.
func New(capacity int) *Queue {
	capacity = max(capacity, 0)

	return &Queue{
		entries: make(map[model.Key]*entry, capacity),
		pending: make(pendingHeap, 0, capacity),
	}
}

// PushJob adds a pending job. If the node is already queued the push is a
// duplicate: a pending entry takes the new priority, and false is returned.
func (q *Queue) PushJob(job model.Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.entries[job.Key()]; ok {
		q.updateLocked(e, job.Priority)
		return false
	}

	e := &entry{job: job}
	q.entries[job.Key()] = e
	heap.Push(&q.pending, e)

	return true
}

// TopJob returns the highest ranked pending job without removing it.
func (q *Queue) TopJob() (model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return model.Job{}, false
	}

	return q.pending[0].job, true
}

// Claim hands the highest ranked pending job to a worker. The job keeps its
// key in the queue until PopJob.
func (q *Queue) Claim() (model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return model.Job{}, false
	}

	e, _ := heap.Pop(&q.pending).(*entry)
	e.claimed = true
	q.inFlight++

	return e.job, true
}

// PopJob removes the job for (m, n), pending or claimed.
func (q *Queue) PopJob(m model.ModelID, n model.NodeID) (model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := model.Key{Model: m, Node: n}

	e, ok := q.entries[key]
	if !ok {
		return model.Job{}, false
	}

	delete(q.entries, key)

	if e.claimed {
		q.inFlight--
	} else {
		heap.Remove(&q.pending, e.index)
	}

	return e.job, true
}

// PopPending removes and returns the highest ranked pending job. Claimed
// jobs are never returned.
func (q *Queue) PopPending() (model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return model.Job{}, false
	}

	e, _ := heap.Pop(&q.pending).(*entry)
	delete(q.entries, e.job.Key())

	return e.job, true
}

// UpdateJob changes the priority of a queued job. It reports whether the
// node is known to the queue.
func (q *Queue) UpdateJob(m model.ModelID, n model.NodeID, prio model.Priority) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[model.Key{Model: m, Node: n}]
	if !ok {
		return false
	}

	q.updateLocked(e, prio)

	return true
}

func (q *Queue) updateLocked(e *entry, prio model.Priority) {
	if e.job.Priority == prio {
		return
	}

	e.job.Priority = prio
	if !e.claimed {
		heap.Fix(&q.pending, e.index)
	}
}

// IsNodeIndexed reports whether (m, n) is pending, claimed or unknown.
func (q *Queue) IsNodeIndexed(m model.ModelID, n model.NodeID) QueryResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[model.Key{Model: m, Node: n}]

	switch {
	case !ok:
		return NotIndexed
	case e.claimed:
		return Indexed
	default:
		return IndexedPending
	}
}

// NumJobs returns the number of pending (unclaimed) jobs.
func (q *Queue) NumJobs() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// NumInFlight returns the number of claimed jobs not yet popped.
func (q *Queue) NumInFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.inFlight
}

// Len returns the number of known jobs, pending and claimed.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}
