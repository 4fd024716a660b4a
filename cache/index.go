package cache

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lodstream/model"
)

// SlotState is the lifecycle state of a slot.
type SlotState uint8

const (
	SlotFree SlotState = iota
	SlotReserved
	SlotOccupied
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotReserved:
		return "reserved"
	case SlotOccupied:
		return "occupied"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Stats is a snapshot of index counters.
type Stats struct {
	Capacity     int
	Free         int
	Reserved     int
	Occupied     int
	Reservations uint64
	Evictions    uint64
	Rejections   uint64
	Commits      uint64
}

// EvictFunc is called for every evicted owner, with the index lock held.
type EvictFunc func(owner model.Key, slot model.SlotID)

// Option configures an Index.
type Option func(*Index)

// WithEvictionPolicy sets the policy consulted when no slot is free.
// The default is LowestPriority.
func WithEvictionPolicy(p EvictionPolicy) Option {
	return func(ix *Index) {
		if p != nil {
			ix.policy = p
		}
	}
}

// WithOnEvict registers a callback for evictions.
func WithOnEvict(fn EvictFunc) Option {
	return func(ix *Index) {
		ix.onEvict = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.logger = l
		}
	}
}

// Index is the bidirectional slot <-> (model, node) table.
type Index struct {
	mu sync.Mutex

	slots    []SlotInfo
	free     *roaring.Bitmap
	owners   map[model.Key]model.SlotID
	resident map[model.ModelID]*roaring.Bitmap
	clock    uint64

	policy  EvictionPolicy
	onEvict EvictFunc
	logger  *slog.Logger

	numReserved  int
	numOccupied  int
	reservations uint64
	evictions    uint64
	rejections   uint64
	commits      uint64
}

// NewIndex creates an index over capacity slots, all free.
func NewIndex(capacity int, opts ...Option) *Index {
	capacity = max(capacity, 0)

	ix := &Index{
		slots:    make([]SlotInfo, capacity),
		free:     roaring.New(),
		owners:   make(map[model.Key]model.SlotID, capacity),
		resident: make(map[model.ModelID]*roaring.Bitmap),
		policy:   LowestPriority{},
		logger:   slog.New(slog.DiscardHandler),
	}

	for i := range ix.slots {
		ix.slots[i] = SlotInfo{ID: model.SlotID(i), Owner: model.Key{Model: model.InvalidModel, Node: model.InvalidNode}}
	}

	if capacity > 0 {
		ix.free.AddRange(0, uint64(capacity))
	}

	for _, opt := range opts {
		opt(ix)
	}

	return ix
}

// Capacity returns the number of slots.
func (ix *Index) Capacity() int {
	return len(ix.slots)
}

// Tick advances the recency clock and returns the new value.
func (ix *Index) Tick() uint64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.clock++

	return ix.clock
}

// Clock returns the current recency clock.
func (ix *Index) Clock() uint64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	return ix.clock
}

// ReserveSlot claims a slot for (m, n). The lowest free slot is used; if none
// is free the eviction policy may free an occupied one. ErrPoolFull is
// returned otherwise.
func (ix *Index) ReserveSlot(m model.ModelID, n model.NodeID, prio model.Priority) (model.SlotID, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	key := model.Key{Model: m, Node: n}
	if id, ok := ix.owners[key]; ok {
		return id, fmt.Errorf("%w: %s in slot %d", ErrAlreadyIndexed, key, id)
	}

	var id model.SlotID

	if !ix.free.IsEmpty() {
		id = model.SlotID(ix.free.Minimum())
		ix.free.Remove(uint32(id))
	} else {
		victim, ok := ix.policy.Victim(ix.slots, Request{Key: key, Priority: prio, Clock: ix.clock})
		if !ok || int(victim) >= len(ix.slots) || ix.slots[victim].State != SlotOccupied {
			ix.rejections++
			return model.InvalidSlot, ErrPoolFull
		}

		id = victim
		ix.evict(id)
	}

	ix.slots[id] = SlotInfo{ID: id, State: SlotReserved, Owner: key, Priority: prio, Touched: ix.clock}
	ix.owners[key] = id
	ix.numReserved++
	ix.reservations++

	return id, nil
}

// evict turns an occupied slot into an unowned one that is not in the free
// set; the caller reuses it immediately.
func (ix *Index) evict(id model.SlotID) {
	s := &ix.slots[id]
	owner := s.Owner

	delete(ix.owners, owner)
	ix.clearResident(owner)
	ix.numOccupied--
	ix.evictions++

	ix.logger.Debug("slot evicted", "slot", id, "model", owner.Model, "node", owner.Node, "priority", s.Priority)

	if ix.onEvict != nil {
		ix.onEvict(owner, id)
	}
}

// UnreserveSlot returns a Reserved slot to the free set.
func (ix *Index) UnreserveSlot(id model.SlotID) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if int(id) >= len(ix.slots) {
		return fmt.Errorf("%w: %d", ErrSlotOutOfRange, id)
	}

	s := &ix.slots[id]
	if s.State != SlotReserved {
		return &StateError{Slot: id, Op: "unreserve", State: s.State, Owner: s.Owner}
	}

	delete(ix.owners, s.Owner)
	ix.slots[id] = SlotInfo{ID: id, Owner: model.Key{Model: model.InvalidModel, Node: model.InvalidNode}}
	ix.free.Add(uint32(id))
	ix.numReserved--

	return nil
}

// ApplySlot marks a slot Reserved by (m, n) as Occupied once its bytes are
// in place.
func (ix *Index) ApplySlot(id model.SlotID, m model.ModelID, n model.NodeID) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if int(id) >= len(ix.slots) {
		return fmt.Errorf("%w: %d", ErrSlotOutOfRange, id)
	}

	key := model.Key{Model: m, Node: n}
	s := &ix.slots[id]

	if s.State != SlotReserved || s.Owner != key {
		return &StateError{Slot: id, Op: "apply " + key.String() + " to", State: s.State, Owner: s.Owner}
	}

	s.State = SlotOccupied
	ix.numReserved--
	ix.numOccupied++
	ix.commits++

	bm, ok := ix.resident[m]
	if !ok {
		bm = roaring.New()
		ix.resident[m] = bm
	}

	bm.Add(uint32(n))

	return nil
}

// Lookup returns the slot and its state for (m, n).
func (ix *Index) Lookup(m model.ModelID, n model.NodeID) (model.SlotID, SlotState, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	id, ok := ix.owners[model.Key{Model: m, Node: n}]
	if !ok {
		return model.InvalidSlot, SlotFree, false
	}

	return id, ix.slots[id].State, true
}

// Touch refreshes the priority and recency of the slot owned by (m, n).
func (ix *Index) Touch(m model.ModelID, n model.NodeID, prio model.Priority) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	id, ok := ix.owners[model.Key{Model: m, Node: n}]
	if !ok {
		return false
	}

	ix.slots[id].Priority = prio
	ix.slots[id].Touched = ix.clock

	return true
}

// Slot returns a snapshot of one slot.
func (ix *Index) Slot(id model.SlotID) (SlotInfo, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if int(id) >= len(ix.slots) {
		return SlotInfo{}, fmt.Errorf("%w: %d", ErrSlotOutOfRange, id)
	}

	return ix.slots[id], nil
}

// IsResident reports whether (m, n) occupies a slot.
func (ix *Index) IsResident(m model.ModelID, n model.NodeID) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	bm, ok := ix.resident[m]

	return ok && bm.Contains(uint32(n))
}

// Resident returns a copy of the set of occupied nodes of model m.
func (ix *Index) Resident(m model.ModelID) *roaring.Bitmap {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if bm, ok := ix.resident[m]; ok {
		return bm.Clone()
	}

	return roaring.New()
}

// Stats returns a snapshot of the index counters.
func (ix *Index) Stats() Stats {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	return Stats{
		Capacity:     len(ix.slots),
		Free:         int(ix.free.GetCardinality()),
		Reserved:     ix.numReserved,
		Occupied:     ix.numOccupied,
		Reservations: ix.reservations,
		Evictions:    ix.evictions,
		Rejections:   ix.rejections,
		Commits:      ix.commits,
	}
}

func (ix *Index) clearResident(k model.Key) {
	if bm, ok := ix.resident[k.Model]; ok {
		bm.Remove(uint32(k.Node))

		if bm.IsEmpty() {
			delete(ix.resident, k.Model)
		}
	}
}
