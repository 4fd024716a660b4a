package model

import (
	"fmt"
	"math"
)

// ModelID is the sequential identifier of a registered model.
type ModelID uint32

// InvalidModel is never assigned by the registry.
const InvalidModel ModelID = ^ModelID(0)

// NodeID indexes a node inside a model's hierarchy.
// Nodes are numbered breadth first starting at the root (0).
type NodeID uint32

// InvalidNode is used as a sentinel for "no node".
const InvalidNode NodeID = ^NodeID(0)

// SlotID indexes a fixed-size cell in the slot arena.
type SlotID uint32

// InvalidSlot marks a job or owner without a slot.
const InvalidSlot SlotID = ^SlotID(0)

// Priority orders loads. Higher values are served first. NaN is not a
// valid priority; Outranks ranks it below every number.
type Priority float32

// IsNaN reports whether p is NaN.
func (p Priority) IsNaN() bool { return math.IsNaN(float64(p)) }

// Key identifies one loadable unit: a node of a model.
type Key struct {
	Model ModelID
	Node  NodeID
}

// String returns a string representation of the Key.
func (k Key) String() string {
	return fmt.Sprintf("Key(%d:%d)", k.Model, k.Node)
}

// Less orders keys by model id, then node id.
func (k Key) Less(o Key) bool {
	if k.Model != o.Model {
		return k.Model < o.Model
	}

	return k.Node < o.Node
}

// Job is a request to load the bytes of one node into one slot.
type Job struct {
	Model    ModelID
	Node     NodeID
	Slot     SlotID
	Priority Priority
}

// Key returns the (model, node) identity of the job.
func (j Job) Key() Key {
	return Key{Model: j.Model, Node: j.Node}
}

// String returns a string representation of the Job.
func (j Job) String() string {
	return fmt.Sprintf("Job(%d:%d slot=%d prio=%g)", j.Model, j.Node, j.Slot, j.Priority)
}

// Outranks reports whether j should be served before o.
// Higher priority wins; ties go to the lower model id, then the lower node id.
func (j Job) Outranks(o Job) bool {
	switch jn, on := j.Priority.IsNaN(), o.Priority.IsNaN(); {
	case jn && on:
	case jn != on:
		return on
	case j.Priority != o.Priority:
		return j.Priority > o.Priority
	}

	return j.Key().Less(o.Key())
}
