package cache

import (
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/lodstream/internal/conv"
	"github.com/hupe1980/lodstream/internal/mmap"
	"github.com/hupe1980/lodstream/internal/resource"
	"github.com/hupe1980/lodstream/model"
)

// Arena owns the bytes of all slots in one contiguous block.
type Arena struct {
	slotSize int
	slots    int
	data     []byte
	mapping  *mmap.Mapping
	rc       *resource.Controller
	closed   atomic.Bool
}

type arenaOptions struct {
	rc   *resource.Controller
	heap bool
}

// ArenaOption configures an Arena.
type ArenaOption func(*arenaOptions)

// WithResourceController accounts the arena size against rc's memory limit.
func WithResourceController(rc *resource.Controller) ArenaOption {
	return func(o *arenaOptions) {
		o.rc = rc
	}
}

// WithHeapMemory allocates slots on the Go heap instead of an anonymous
// mapping.
func WithHeapMemory() ArenaOption {
	return func(o *arenaOptions) {
		o.heap = true
	}
}

// NewArena allocates slots cells of slotSize bytes each.
func NewArena(slots, slotSize int, opts ...ArenaOption) (*Arena, error) {
	if slots < 0 || slotSize <= 0 {
		return nil, fmt.Errorf("cache: invalid arena geometry %d x %d", slots, slotSize)
	}

	o := arenaOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	total, err := conv.MulUint64(uint64(slots), uint64(slotSize))
	if err != nil {
		return nil, err
	}

	size, err := conv.Uint64ToInt(total)
	if err != nil {
		return nil, err
	}

	if err := o.rc.AcquireMemory(int64(size)); err != nil {
		return nil, fmt.Errorf("cache: arena of %d bytes: %w", size, err)
	}

	a := &Arena{slotSize: slotSize, slots: slots, rc: o.rc}

	if !o.heap {
		if m, err := mmap.Anonymous(size); err == nil {
			_ = m.Advise(mmap.AccessRandom)
			a.mapping = m
			a.data = m.Bytes()

			return a, nil
		}
	}

	a.data = make([]byte, size)

	return a, nil
}

// Slot returns the bytes of slot id. The slice's capacity ends at the slot
// boundary.
func (a *Arena) Slot(id model.SlotID) ([]byte, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}

	if int(id) >= a.slots {
		return nil, fmt.Errorf("%w: %d of %d", ErrSlotOutOfRange, id, a.slots)
	}

	off := int(id) * a.slotSize
	end := off + a.slotSize

	return a.data[off:end:end], nil
}

// SlotSize returns the size of one slot in bytes.
func (a *Arena) SlotSize() int { return a.slotSize }

// Len returns the number of slots.
func (a *Arena) Len() int { return a.slots }

// Size returns the total arena size in bytes.
func (a *Arena) Size() int { return len(a.data) }

// Mapped reports whether the arena lives in an anonymous mapping.
func (a *Arena) Mapped() bool { return a.mapping != nil }

// Close releases the slot memory. Slices returned by Slot must not be used
// afterwards.
func (a *Arena) Close() error {
	if a.closed.Swap(true) {
		return nil
	}

	a.rc.ReleaseMemory(int64(len(a.data)))
	a.data = nil

	if a.mapping != nil {
		return a.mapping.Close()
	}

	return nil
}
