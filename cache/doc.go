// Package cache maps loaded nodes to fixed-size slots.
//
// An [Index] tracks which (model, node) owns which slot and in which state
// the slot is:
//
//	Free ──ReserveSlot──▶ Reserved ──ApplySlot──▶ Occupied
//	  ▲                      │                       │
//	  └────UnreserveSlot─────┘                       │
//	  ▲                                              │
//	  └─────────────eviction by ReserveSlot──────────┘
//
// A node owns at most one slot and a slot has at most one owner. Slots are
// handed out lowest id first. When none is free, the configured
// [EvictionPolicy] may pick an occupied victim whose priority is below the
// request's.
//
// An [Arena] owns the slot bytes. Workers write into the slot their job
// reserved; readers only look at slots the index reports as Occupied.
package cache
