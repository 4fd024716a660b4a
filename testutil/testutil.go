package testutil

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/hupe1980/lodstream/blobstore"
	"github.com/hupe1980/lodstream/bvh"
	"github.com/hupe1980/lodstream/model"
)

// RNG wraps a seeded source. It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.rand.Intn(n)
}

// Float32 returns a pseudo-random number in [0,1).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.rand.Float32()
}

// Zipf returns a value in [0,n) following a Zipf distribution with exponent s.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 1 {
		return 0
	}

	// Inverse CDF over the harmonic weights.
	var norm float64
	for k := 1; k <= n; k++ {
		norm += 1 / math.Pow(float64(k), s)
	}

	u := r.rand.Float64() * norm

	var acc float64
	for k := 1; k <= n; k++ {
		acc += 1 / math.Pow(float64(k), s)
		if u <= acc {
			return k - 1
		}
	}

	return n - 1
}

// Cut returns count distinct random nodes of a tree with n nodes.
func (r *RNG) Cut(n, count int) []model.NodeID {
	r.mu.Lock()
	defer r.mu.Unlock()

	perm := r.rand.Perm(n)
	count = min(count, n)

	out := make([]model.NodeID, count)
	for i := range count {
		out[i] = model.NodeID(perm[i])
	}

	return out
}

// NewTree builds a complete tree of the given depth and fan factor.
func NewTree(depth, fan, surfelsPerNode, surfelSize uint32) *bvh.Tree {
	var nodes uint64

	level := uint64(1)
	for range depth + 1 {
		nodes += level
		level *= uint64(fan)
	}

	return NewTreeNodes(depth, fan, surfelsPerNode, surfelSize, int(nodes))
}

// NewTreeNodes builds a tree with an explicit node count.
func NewTreeNodes(depth, fan, surfelsPerNode, surfelSize uint32, numNodes int) *bvh.Tree {
	t := &bvh.Tree{
		Depth:          depth,
		FanFactor:      fan,
		SurfelsPerNode: surfelsPerNode,
		SurfelSize:     surfelSize,
		State:          bvh.StateAfterUpsweep,
		Nodes:          make([]bvh.Node, numNodes),
	}

	for i := range t.Nodes {
		f := float32(i)
		t.Nodes[i] = bvh.Node{
			Centroid:   bvh.Vec3{f, f, f},
			Depth:      t.DepthOfNode(model.NodeID(i)),
			AvgRadius:  0.01,
			Visibility: bvh.Visible,
			Box:        bvh.Box{Min: bvh.Vec3{f - 1, f - 1, f - 1}, Max: bvh.Vec3{f + 1, f + 1, f + 1}},
		}
	}

	return t
}

// PayloadByte is the byte at offset off of node n in a dataset with seed.
func PayloadByte(seed byte, n model.NodeID, off int) byte {
	return seed ^ byte(n) ^ byte(n>>8) ^ byte(off*31)
}

// NodePayload returns the expected bytes of node n.
func NodePayload(seed byte, n model.NodeID, size int) []byte {
	out := make([]byte, size)
	for i := range out {
		out[i] = PayloadByte(seed, n, i)
	}

	return out
}

// IsNodePayload reports whether b holds exactly the bytes of node n.
func IsNodePayload(b []byte, seed byte, n model.NodeID) bool {
	return bytes.Equal(b, NodePayload(seed, n, len(b)))
}

// Payload returns the full payload of a tree.
func Payload(t *bvh.Tree, seed byte) []byte {
	size := int(t.NodeBytes())
	out := make([]byte, 0, size*len(t.Nodes))

	for i := range t.Nodes {
		out = append(out, NodePayload(seed, model.NodeID(i), size)...)
	}

	return out
}

// PutDataset writes a tree blob and its payload blob into store.
func PutDataset(tb testing.TB, store blobstore.BlobStore, name string, t *bvh.Tree, seed byte) {
	tb.Helper()

	var buf bytes.Buffer
	if _, err := bvh.Write(&buf, t); err != nil {
		tb.Fatalf("write tree %s: %v", name, err)
	}

	ctx := context.Background()

	if err := store.Put(ctx, name, buf.Bytes()); err != nil {
		tb.Fatalf("put tree %s: %v", name, err)
	}

	if err := store.Put(ctx, bvh.PayloadName(name), Payload(t, seed)); err != nil {
		tb.Fatalf("put payload %s: %v", name, err)
	}
}
