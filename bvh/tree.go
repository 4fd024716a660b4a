package bvh

import (
	"fmt"

	"github.com/hupe1980/lodstream/model"
)

// State describes how far a tree has progressed through preprocessing.
type State uint32

const (
	StateNull State = iota
	StateEmpty
	StateAfterDownsweep
	StateAfterUpsweep
	StateSerialized
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateEmpty:
		return "empty"
	case StateAfterDownsweep:
		return "after_downsweep"
	case StateAfterUpsweep:
		return "after_upsweep"
	case StateSerialized:
		return "serialized"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Visibility flags a node for the renderer.
type Visibility uint32

const (
	Visible Visibility = iota
	Invisible
)

// Vec3 is a point or direction in model space.
type Vec3 [3]float32

// Box is an axis-aligned bounding box.
type Box struct {
	Min Vec3
	Max Vec3
}

// Node holds the per-node attributes of a tree.
type Node struct {
	Centroid       Vec3
	Depth          uint32
	ReductionError float32
	AvgRadius      float32
	Visibility     Visibility
	Box            Box
}

// Tree is the in-memory form of a tree file. It is read-only once loaded.
type Tree struct {
	Depth          uint32
	FanFactor      uint32
	SurfelsPerNode uint32
	SurfelSize     uint32
	State          State
	Translation    Vec3
	Nodes          []Node

	// Extension is the opaque tree extension payload, nil when absent.
	Extension []byte
	// NodeExtensions holds opaque per-node payloads for the first
	// len(NodeExtensions) nodes.
	NodeExtensions [][]byte
}

// NumNodes returns the number of nodes.
func (t *Tree) NumNodes() uint32 {
	return uint32(len(t.Nodes))
}

// NodeBytes returns the size of one node's payload in bytes.
func (t *Tree) NodeBytes() uint64 {
	return uint64(t.SurfelsPerNode) * uint64(t.SurfelSize)
}

// Validate checks that the tree can be written and addressed.
func (t *Tree) Validate() error {
	if t.FanFactor < 2 {
		return fmt.Errorf("%w: fan factor %d", ErrInvalidTree, t.FanFactor)
	}

	if t.SurfelsPerNode == 0 || t.SurfelSize == 0 {
		return fmt.Errorf("%w: zero node size", ErrInvalidTree)
	}

	if len(t.NodeExtensions) > len(t.Nodes) {
		return fmt.Errorf("%w: %d node extensions for %d nodes", ErrInvalidTree, len(t.NodeExtensions), len(t.Nodes))
	}

	return nil
}

// Parent returns the parent of n. The root has no parent.
func (t *Tree) Parent(n model.NodeID) (model.NodeID, bool) {
	if n == 0 || t.FanFactor == 0 {
		return model.InvalidNode, false
	}

	return (n - 1) / model.NodeID(t.FanFactor), true
}

// Child returns the i-th child of n if it exists.
func (t *Tree) Child(n model.NodeID, i uint32) (model.NodeID, bool) {
	if i >= t.FanFactor {
		return model.InvalidNode, false
	}

	c := uint64(n)*uint64(t.FanFactor) + 1 + uint64(i)
	if c >= uint64(len(t.Nodes)) {
		return model.InvalidNode, false
	}

	return model.NodeID(c), true
}

// LengthOfDepth returns how many nodes a complete tree has at depth d.
func (t *Tree) LengthOfDepth(d uint32) uint64 {
	n := uint64(1)
	for range d {
		n *= uint64(t.FanFactor)
	}

	return n
}

// FirstNodeOfDepth returns the id of the leftmost node at depth d.
func (t *Tree) FirstNodeOfDepth(d uint32) model.NodeID {
	var first uint64
	for i := range d {
		first += t.LengthOfDepth(i)
	}

	return model.NodeID(first)
}

// DepthOfNode computes the depth of n from the tree topology.
func (t *Tree) DepthOfNode(n model.NodeID) uint32 {
	var d uint32
	for n > 0 {
		n, _ = t.Parent(n)
		d++
	}

	return d
}

// NodesAtDepth returns the ids of all existing nodes at depth d.
func (t *Tree) NodesAtDepth(d uint32) []model.NodeID {
	first := uint64(t.FirstNodeOfDepth(d))
	last := first + t.LengthOfDepth(d)

	if last > uint64(len(t.Nodes)) {
		last = uint64(len(t.Nodes))
	}

	if first >= last {
		return nil
	}

	out := make([]model.NodeID, 0, last-first)
	for i := first; i < last; i++ {
		out = append(out, model.NodeID(i))
	}

	return out
}

// NodeOffset returns the byte offset of node n in the payload file.
func NodeOffset(n model.NodeID, surfelsPerNode, surfelSize uint32) int64 {
	return int64(n) * int64(surfelsPerNode) * int64(surfelSize)
}
