package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lodstream/blobstore"
	"github.com/hupe1980/lodstream/bvh"
	"github.com/hupe1980/lodstream/model"
	"github.com/hupe1980/lodstream/testutil"
)

func newStore(t *testing.T) *blobstore.MemoryStore {
	t.Helper()

	store := blobstore.NewMemoryStore()
	testutil.PutDataset(t, store, "a.bvh", testutil.NewTree(1, 2, 16, 32), 1)
	testutil.PutDataset(t, store, "b.bvh", testutil.NewTree(2, 2, 16, 32), 2)
	testutil.PutDataset(t, store, "wide.bvh", testutil.NewTree(1, 2, 16, 48), 3)
	testutil.PutDataset(t, store, "dense.bvh", testutil.NewTree(1, 2, 32, 32), 4)

	return store
}

func TestRegistry_AddApply(t *testing.T) {
	ctx := context.Background()
	reg := New(newStore(t))

	// 1. Pending models are invisible
	id, err := reg.AddModel(ctx, "a.bvh", "alpha")
	require.NoError(t, err)
	assert.Equal(t, model.ModelID(0), id)

	_, err = reg.GetModel(id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, reg.NumModels())
	assert.Zero(t, reg.SlotSize())
	assert.Equal(t, 1, reg.NumPending())

	_, ok := reg.Lookup("alpha")
	assert.False(t, ok)

	// 2. Apply commits
	assert.Equal(t, 1, reg.Apply())

	m, err := reg.GetModel(id)
	require.NoError(t, err)
	assert.Equal(t, "alpha", m.Key)
	assert.Equal(t, "a.lod", m.Payload)
	assert.Equal(t, uint32(3), m.Tree.NumNodes())
	assert.Equal(t, uint32(32), reg.SurfelSize())
	assert.Equal(t, uint32(16), reg.SurfelsPerNode())
	assert.Equal(t, uint64(512), reg.SlotSize())
	assert.Equal(t, int64(2*512), m.NodeOffset(2))

	// 3. Ids are sequential
	id, err = reg.AddModel(ctx, "b.bvh", "")
	require.NoError(t, err)
	assert.Equal(t, model.ModelID(1), id)
	reg.Apply()

	id, ok = reg.Lookup("b.bvh")
	require.True(t, ok)
	assert.Equal(t, model.ModelID(1), id)

	models := reg.Models()
	require.Len(t, models, 2)
	assert.Equal(t, "alpha", models[0].Key)
	assert.Equal(t, 0, reg.Apply())
}

func TestRegistry_RejectsIncompatible(t *testing.T) {
	ctx := context.Background()
	reg := New(newStore(t))

	_, err := reg.AddModel(ctx, "a.bvh", "")
	require.NoError(t, err)

	// Pending models already fix the layout.
	_, err = reg.AddModel(ctx, "wide.bvh", "")
	require.ErrorIs(t, err, ErrIncompatibleModel)

	var mm *ErrSlotSizeMismatch
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, "surfel size", mm.Field)
	assert.Equal(t, uint32(32), mm.Expected)
	assert.Equal(t, uint32(48), mm.Actual)

	_, err = reg.AddModel(ctx, "dense.bvh", "")
	require.ErrorIs(t, err, ErrIncompatibleModel)

	_, err = reg.AddModel(ctx, "a.bvh", "")
	require.ErrorIs(t, err, ErrDuplicateKey)

	// Rejections do not consume ids.
	id, err := reg.AddModel(ctx, "b.bvh", "")
	require.NoError(t, err)
	assert.Equal(t, model.ModelID(1), id)
}

func TestRegistry_SetupErrors(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	reg := New(store)

	_, err := reg.AddModel(ctx, "missing.bvh", "")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, "junk.bvh", make([]byte, 64)))
	_, err = reg.AddModel(ctx, "junk.bvh", "")
	require.ErrorIs(t, err, bvh.ErrCorrupt)

	testutil.PutDataset(t, store, "short.bvh", testutil.NewTree(1, 2, 16, 32), 5)
	require.NoError(t, store.Put(ctx, "short.lod", make([]byte, 100)))
	_, err = reg.AddModel(ctx, "short.bvh", "")
	require.ErrorIs(t, err, ErrPayloadTooSmall)

	require.NoError(t, store.Delete(ctx, "short.lod"))
	_, err = reg.AddModel(ctx, "short.bvh", "")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	// Without the payload check only the tree is needed.
	id, err := New(store, WithPayloadCheck(false)).AddModel(ctx, "short.bvh", "")
	require.NoError(t, err)
	assert.Equal(t, model.ModelID(0), id)
}

func TestRegistry_AddModelsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	for i := range 8 {
		testutil.PutDataset(t, store, fmt.Sprintf("tile-%d.bvh", i), testutil.NewTree(1, 2, 16, 32), byte(i))
	}

	reg := New(store, WithLoadConcurrency(3))

	entries := make([]Entry, 8)
	for i := range entries {
		entries[i] = Entry{Path: fmt.Sprintf("tile-%d.bvh", i), Key: fmt.Sprintf("tile-%d", i)}
	}

	ids, err := reg.AddModels(ctx, entries)
	require.NoError(t, err)

	for i, id := range ids {
		assert.Equal(t, model.ModelID(i), id, "ids follow input order")
	}

	reg.Apply()
	assert.Equal(t, 8, reg.NumModels())

	// One incompatible entry rejects the whole batch.
	_, err = reg.AddModels(ctx, []Entry{{Path: "a.bvh"}, {Path: "wide.bvh"}})
	require.ErrorIs(t, err, ErrIncompatibleModel)
	assert.Zero(t, reg.NumPending())

	_, err = reg.AddModels(ctx, []Entry{{Path: "a.bvh", Key: "x"}, {Path: "b.bvh", Key: "x"}})
	require.ErrorIs(t, err, ErrDuplicateKey)
	assert.Zero(t, reg.NumPending())
}

func TestRegistry_OpenPayload(t *testing.T) {
	ctx := context.Background()
	reg := New(newStore(t))

	id, err := reg.AddModel(ctx, "b.bvh", "")
	require.NoError(t, err)

	_, err = reg.OpenPayload(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	reg.Apply()

	b, err := reg.OpenPayload(ctx, id)
	require.NoError(t, err)
	defer b.Close()

	buf := make([]byte, reg.SlotSize())
	m, _ := reg.GetModel(id)
	require.NoError(t, blobstore.ReadFull(ctx, b, buf, m.NodeOffset(4)))
	assert.True(t, testutil.IsNodePayload(buf, 2, 4))
}
