package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lodstream/blobstore"
	"github.com/hupe1980/lodstream/bvh"
	"github.com/hupe1980/lodstream/model"
)

// Entry names a tree blob and the key it is registered under.
type Entry struct {
	Path string
	Key  string
}

// Model is a registered point cloud: its tree plus where its payload lives.
type Model struct {
	ID      model.ModelID
	Key     string
	Path    string
	Payload string
	Tree    *bvh.Tree
}

// NodeOffset returns the payload offset of node n.
func (m *Model) NodeOffset(n model.NodeID) int64 {
	return bvh.NodeOffset(n, m.Tree.SurfelsPerNode, m.Tree.SurfelSize)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithPayloadCheck controls whether AddModel verifies that the payload blob
// exists and covers every node. Enabled by default.
func WithPayloadCheck(enabled bool) Option {
	return func(r *Registry) {
		r.checkPayload = enabled
	}
}

// WithLoadConcurrency bounds parallel tree loads in AddModels. Default 4.
func WithLoadConcurrency(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.loadConcurrency = n
		}
	}
}

// Registry is the set of models of one session. Safe for concurrent use.
type Registry struct {
	store           blobstore.BlobStore
	logger          *slog.Logger
	checkPayload    bool
	loadConcurrency int

	mu        sync.Mutex
	committed map[model.ModelID]*Model
	pending   []*Model
	keys      map[string]model.ModelID

	// Layout fixed by the first added model; pending values become
	// visible with the models on Apply.
	surfelSize, surfelsPerNode               uint32
	pendingSurfelSize, pendingSurfelsPerNode uint32
}

// New creates an empty registry that loads trees and payloads from store.
func New(store blobstore.BlobStore, opts ...Option) *Registry {
	r := &Registry{
		store:           store,
		logger:          slog.New(slog.DiscardHandler),
		checkPayload:    true,
		loadConcurrency: 4,
		committed:       make(map[model.ModelID]*Model),
		keys:            make(map[string]model.ModelID),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Store returns the blob store models are loaded from.
func (r *Registry) Store() blobstore.BlobStore { return r.store }

// AddModel loads the tree at path and stages it under key. An empty key
// defaults to the path. The model is invisible until Apply.
func (r *Registry) AddModel(ctx context.Context, path, key string) (model.ModelID, error) {
	ids, err := r.AddModels(ctx, []Entry{{Path: path, Key: key}})
	if err != nil {
		return model.InvalidModel, err
	}

	return ids[0], nil
}

// AddModels loads several trees concurrently and stages them with ids in
// input order. Either all entries are staged or none.
func (r *Registry) AddModels(ctx context.Context, entries []Entry) ([]model.ModelID, error) {
	loaded := make([]*Model, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.loadConcurrency)

	for i, e := range entries {
		g.Go(func() error {
			m, err := r.load(gctx, e)
			if err != nil {
				return err
			}

			loaded[i] = m

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Validate the whole batch before touching any state.
	size, spn := r.pendingSurfelSize, r.pendingSurfelsPerNode
	batch := make(map[string]bool, len(loaded))

	for _, m := range loaded {
		if _, ok := r.keys[m.Key]; ok || batch[m.Key] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, m.Key)
		}

		batch[m.Key] = true

		if size == 0 {
			size, spn = m.Tree.SurfelSize, m.Tree.SurfelsPerNode
			continue
		}

		if m.Tree.SurfelSize != size {
			return nil, &ErrSlotSizeMismatch{Key: m.Key, Field: "surfel size", Expected: size, Actual: m.Tree.SurfelSize}
		}

		if m.Tree.SurfelsPerNode != spn {
			return nil, &ErrSlotSizeMismatch{Key: m.Key, Field: "surfels per node", Expected: spn, Actual: m.Tree.SurfelsPerNode}
		}
	}

	r.pendingSurfelSize, r.pendingSurfelsPerNode = size, spn

	next := model.ModelID(len(r.committed) + len(r.pending))
	ids := make([]model.ModelID, len(loaded))

	for i, m := range loaded {
		m.ID = next + model.ModelID(i)
		ids[i] = m.ID
		r.keys[m.Key] = m.ID
		r.pending = append(r.pending, m)

		r.logger.Debug("model added",
			"id", m.ID,
			"key", m.Key,
			"nodes", m.Tree.NumNodes(),
			"depth", m.Tree.Depth,
		)
	}

	return ids, nil
}

func (r *Registry) load(ctx context.Context, e Entry) (*Model, error) {
	if e.Key == "" {
		e.Key = e.Path
	}

	b, err := r.store.Open(ctx, e.Path)
	if err != nil {
		return nil, fmt.Errorf("registry: open tree %s: %w", e.Path, err)
	}
	defer b.Close()

	tree, err := bvh.Read(blobstore.ReaderAt(ctx, b), b.Size())
	if err != nil {
		return nil, fmt.Errorf("registry: read tree %s: %w", e.Path, err)
	}

	if err := tree.Validate(); err != nil {
		return nil, fmt.Errorf("registry: %s: %w", e.Path, err)
	}

	m := &Model{
		ID:      model.InvalidModel,
		Key:     e.Key,
		Path:    e.Path,
		Payload: bvh.PayloadName(e.Path),
		Tree:    tree,
	}

	if r.checkPayload {
		if err := r.verifyPayload(ctx, m); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (r *Registry) verifyPayload(ctx context.Context, m *Model) error {
	b, err := r.store.Open(ctx, m.Payload)
	if err != nil {
		return fmt.Errorf("registry: open payload %s: %w", m.Payload, err)
	}
	defer b.Close()

	need := uint64(m.Tree.NumNodes()) * m.Tree.NodeBytes()
	if uint64(b.Size()) < need {
		return fmt.Errorf("%w: %s has %d bytes, %d nodes need %d", ErrPayloadTooSmall, m.Payload, b.Size(), m.Tree.NumNodes(), need)
	}

	return nil
}

// Apply makes all pending models visible and returns how many were applied.
func (r *Registry) Apply() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.pending)
	for _, m := range r.pending {
		r.committed[m.ID] = m
	}

	r.pending = r.pending[:0]
	r.surfelSize, r.surfelsPerNode = r.pendingSurfelSize, r.pendingSurfelsPerNode

	if n > 0 {
		r.logger.Debug("models applied", "count", n, "total", len(r.committed))
	}

	return n
}

// GetModel returns a committed model.
func (r *Registry) GetModel(id model.ModelID) (*Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.committed[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	return m, nil
}

// Lookup resolves the key of a committed model.
func (r *Registry) Lookup(key string) (model.ModelID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.keys[key]
	if !ok {
		return model.InvalidModel, false
	}

	if _, committed := r.committed[id]; !committed {
		return model.InvalidModel, false
	}

	return id, true
}

// Models returns the committed models ordered by id.
func (r *Registry) Models() []*Model {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Model, 0, len(r.committed))
	for _, m := range r.committed {
		out = append(out, m)
	}

	slices.SortFunc(out, func(a, b *Model) int { return int(a.ID) - int(b.ID) })

	return out
}

// NumModels returns the number of committed models.
func (r *Registry) NumModels() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.committed)
}

// NumPending returns the number of models waiting for Apply.
func (r *Registry) NumPending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pending)
}

// SurfelSize returns the committed surfel size in bytes, 0 if empty.
func (r *Registry) SurfelSize() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.surfelSize
}

// SurfelsPerNode returns the committed surfels per node, 0 if empty.
func (r *Registry) SurfelsPerNode() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.surfelsPerNode
}

// SlotSize returns the bytes of one node, the size of every pool slot.
func (r *Registry) SlotSize() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return uint64(r.surfelSize) * uint64(r.surfelsPerNode)
}

// OpenPayload opens the payload blob of a committed model.
func (r *Registry) OpenPayload(ctx context.Context, id model.ModelID) (blobstore.Blob, error) {
	m, err := r.GetModel(id)
	if err != nil {
		return nil, err
	}

	return r.store.Open(ctx, m.Payload)
}
