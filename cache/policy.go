package cache

import "github.com/hupe1980/lodstream/model"

// SlotInfo is a read-only view of one slot.
type SlotInfo struct {
	ID       model.SlotID
	State    SlotState
	Owner    model.Key
	Priority model.Priority
	// Touched is the clock value of the last request for the owner.
	Touched uint64
}

// Request describes the reservation that needs a victim.
type Request struct {
	Key      model.Key
	Priority model.Priority
	// Clock is the index clock at the time of the request.
	Clock uint64
}

// EvictionPolicy chooses which occupied slot gives way to a new request.
type EvictionPolicy interface {
	// Victim returns the slot to evict. Only Occupied slots are eligible;
	// the index rejects any other choice.
	Victim(slots []SlotInfo, req Request) (model.SlotID, bool)
}

// EvictionPolicyFunc adapts a function to EvictionPolicy.
type EvictionPolicyFunc func(slots []SlotInfo, req Request) (model.SlotID, bool)

// Victim calls f.
func (f EvictionPolicyFunc) Victim(slots []SlotInfo, req Request) (model.SlotID, bool) {
	return f(slots, req)
}

// LowestPriority evicts the occupied slot with the lowest priority, least
// recently touched first, provided it ranks strictly below the request.
type LowestPriority struct{}

// Victim implements EvictionPolicy.
func (LowestPriority) Victim(slots []SlotInfo, req Request) (model.SlotID, bool) {
	best := -1

	for i := range slots {
		s := &slots[i]
		if s.State != SlotOccupied || s.Priority >= req.Priority {
			continue
		}

		if best < 0 {
			best = i
			continue
		}

		b := &slots[best]
		if s.Priority < b.Priority || (s.Priority == b.Priority && s.Touched < b.Touched) {
			best = i
		}
	}

	if best < 0 {
		return model.InvalidSlot, false
	}

	return slots[best].ID, true
}

// LeastRecentlyUsed evicts the occupied slot touched longest ago. Slots
// touched at the request's clock are still in use and never evicted.
type LeastRecentlyUsed struct{}

// Victim implements EvictionPolicy.
func (LeastRecentlyUsed) Victim(slots []SlotInfo, req Request) (model.SlotID, bool) {
	best := -1

	for i := range slots {
		s := &slots[i]
		if s.State != SlotOccupied || s.Touched >= req.Clock {
			continue
		}

		if best < 0 || s.Touched < slots[best].Touched {
			best = i
		}
	}

	if best < 0 {
		return model.InvalidSlot, false
	}

	return slots[best].ID, true
}

// NoEviction never evicts; a full pool rejects requests.
type NoEviction struct{}

// Victim implements EvictionPolicy.
func (NoEviction) Victim([]SlotInfo, Request) (model.SlotID, bool) {
	return model.InvalidSlot, false
}
