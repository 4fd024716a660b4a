package lodstream_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lodstream"
	"github.com/hupe1980/lodstream/blobstore"
	"github.com/hupe1980/lodstream/cache"
	"github.com/hupe1980/lodstream/internal/fs"
	"github.com/hupe1980/lodstream/model"
	"github.com/hupe1980/lodstream/queue"
	"github.com/hupe1980/lodstream/registry"
	"github.com/hupe1980/lodstream/testutil"
)

const (
	seedA = 11
	seedB = 22
)

// nodes per test tree: depth 2, fan 2
const numNodes = 7

func newStore(t *testing.T) *blobstore.MemoryStore {
	t.Helper()

	store := blobstore.NewMemoryStore()
	testutil.PutDataset(t, store, "a.bvh", testutil.NewTree(2, 2, 64, 16), seedA)
	testutil.PutDataset(t, store, "b.bvh", testutil.NewTree(2, 2, 64, 16), seedB)

	return store
}

func open(t *testing.T, store blobstore.BlobStore, opts ...lodstream.Option) *lodstream.Session {
	t.Helper()

	base := []lodstream.Option{
		lodstream.WithStore(store),
		lodstream.WithModels(registry.Entry{Path: "a.bvh"}, registry.Entry{Path: "b.bvh"}),
		lodstream.WithSlotCount(16),
		lodstream.WithWorkers(2),
		lodstream.WithHeapArena(),
	}

	s, err := lodstream.Open(context.Background(), append(base, opts...)...)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, s.Close()) })

	return s
}

type want struct {
	m    model.ModelID
	n    model.NodeID
	prio model.Priority
}

// frames requests the cut and reconciles until done reports true.
func frames(t *testing.T, s *lodstream.Session, cut []want, done func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		_, err := s.Reconcile()
		require.NoError(t, err)

		if done() {
			return
		}

		for _, w := range cut {
			_, err := s.Request(w.m, w.n, w.prio)
			require.NoError(t, err)
		}

		time.Sleep(2 * time.Millisecond)
	}

	t.Fatal("cut did not converge")
}

func TestOpen_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := lodstream.Open(ctx, lodstream.WithStore(newStore(t)))
	require.ErrorIs(t, err, lodstream.ErrNoModels)

	_, err = lodstream.Open(ctx,
		lodstream.WithStore(newStore(t)),
		lodstream.WithModels(registry.Entry{Path: "missing.bvh"}),
	)
	require.ErrorIs(t, err, lodstream.ErrNotFound)

	_, err = lodstream.Open(ctx,
		lodstream.WithStore(newStore(t)),
		lodstream.WithModels(registry.Entry{Path: "a.bvh"}),
		lodstream.WithWorkers(0),
	)
	require.ErrorIs(t, err, lodstream.ErrInvalidOption)

	_, err = lodstream.Open(ctx,
		lodstream.WithStore(newStore(t)),
		lodstream.WithModels(registry.Entry{Path: "a.bvh"}),
		lodstream.WithCacheBytes(100),
	)
	require.ErrorIs(t, err, lodstream.ErrInvalidOption)
}

func TestSession_RequestReconcileSlot(t *testing.T) {
	s := open(t, newStore(t))

	assert.Equal(t, 64*16, s.SlotSize())

	// 1. A first request reserves and queues
	st, err := s.Request(0, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, lodstream.StatusQueued, st)

	// 2. A repeat before the frame closes only updates the priority
	st, err = s.Request(0, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, lodstream.StatusLoading, st)

	// 3. Nothing is readable before it is committed
	_, err = s.Slot(0, 0)
	require.ErrorIs(t, err, lodstream.ErrNotResident)

	cut := make([]want, 0, numNodes)
	for n := range model.NodeID(numNodes) {
		cut = append(cut, want{0, n, model.Priority(numNodes - n)})
	}

	frames(t, s, cut, func() bool {
		return s.Resident(0).GetCardinality() == numNodes
	})

	// 4. Every slot holds its node's bytes
	for n := range model.NodeID(numNodes) {
		b, err := s.Slot(0, n)
		require.NoError(t, err)
		assert.Len(t, b, s.SlotSize())
		assert.True(t, testutil.IsNodePayload(b, seedA, n), "node %d", n)
	}

	// 5. A resident node is touched, not reloaded
	st, err = s.Request(0, 3, 9)
	require.NoError(t, err)
	assert.Equal(t, lodstream.StatusResident, st)
	assert.Equal(t, queue.NotIndexed, s.Query(0, 3))

	stats := s.Stats()
	assert.Equal(t, numNodes, stats.Slots.Occupied)
	assert.Equal(t, 2, stats.Models)
	assert.Positive(t, stats.Frame)
	assert.GreaterOrEqual(t, stats.Stream.BytesLoaded, uint64(numNodes*s.SlotSize()))
	assert.Equal(t, int64(16*s.SlotSize()), stats.MemoryUsage)
	assert.Equal(t, stats.MemoryLimit, stats.MemoryUsage)
}

func TestSession_RequestErrors(t *testing.T) {
	s := open(t, newStore(t))

	_, err := s.Request(7, 0, 1)
	require.ErrorIs(t, err, lodstream.ErrNotFound)

	_, err = s.Request(0, numNodes, 1)
	require.ErrorIs(t, err, lodstream.ErrNotFound)

	var oor *lodstream.ErrNodeOutOfRange
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, uint32(numNodes), oor.NumNodes)

	_, err = s.Model(9)
	require.ErrorIs(t, err, lodstream.ErrNotFound)

	st, err := s.Request(0, 0, model.Priority(math.NaN()))
	require.ErrorIs(t, err, lodstream.ErrInvalidPriority)
	assert.Equal(t, lodstream.StatusRejected, st)
	assert.Equal(t, queue.NotIndexed, s.Query(0, 0))
	assert.Zero(t, s.Stats().Slots.Reserved)
}

func TestSession_EvictsLowerPriority(t *testing.T) {
	s := open(t, newStore(t), lodstream.WithSlotCount(2), lodstream.WithWorkers(1))

	// 1. Fill both slots with priority 1
	frames(t, s, []want{{0, 0, 1}, {0, 1, 1}}, func() bool {
		return s.IsResident(0, 0) && s.IsResident(0, 1)
	})

	// 2. A more important node evicts one of them
	st, err := s.Request(1, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, lodstream.StatusQueued, st)
	assert.Equal(t, uint64(1), s.Resident(0).GetCardinality())

	// 3. A less important node finds no victim
	st, err = s.Request(1, 1, 0.5)
	require.NoError(t, err)
	assert.Equal(t, lodstream.StatusRejected, st)

	assert.Equal(t, uint64(1), s.Stats().Slots.Evictions)
}

func TestSession_NoEviction(t *testing.T) {
	s := open(t, newStore(t),
		lodstream.WithSlotCount(1),
		lodstream.WithEviction(cache.NoEviction{}),
	)

	frames(t, s, []want{{0, 0, 1}}, func() bool { return s.IsResident(0, 0) })

	st, err := s.Request(1, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, lodstream.StatusRejected, st)
}

// TestSession_HigherPriorityWinsSingleSlot runs two workers against one
// slot. A (priority 5) is requested before B (priority 10) every frame and
// loads slower; B must end up resident.
func TestSession_HigherPriorityWinsSingleSlot(t *testing.T) {
	faults := fs.NewFaultyFS(nil)
	store := blobstore.NewLocalStore(t.TempDir(), blobstore.WithFileSystem(faults))

	testutil.PutDataset(t, store, "a.bvh", testutil.NewTree(2, 2, 64, 16), seedA)
	testutil.PutDataset(t, store, "b.bvh", testutil.NewTree(2, 2, 64, 16), seedB)

	faults.AddRule("a.lod", fs.Fault{ReadDelay: 20 * time.Millisecond})
	faults.AddRule("b.lod", fs.Fault{ReadDelay: 5 * time.Millisecond})

	s := open(t, store, lodstream.WithSlotCount(1), lodstream.WithWorkers(2))

	frames(t, s, []want{{0, 1, 5}, {1, 2, 10}}, func() bool { return s.IsResident(1, 2) })

	assert.False(t, s.IsResident(0, 1))

	b, err := s.Slot(1, 2)
	require.NoError(t, err)
	assert.True(t, testutil.IsNodePayload(b, seedB, 2))
}

func TestSession_FailedLoadIsRetried(t *testing.T) {
	faults := fs.NewFaultyFS(nil)
	store := blobstore.NewLocalStore(t.TempDir(), blobstore.WithFileSystem(faults))

	testutil.PutDataset(t, store, "a.bvh", testutil.NewTree(2, 2, 64, 16), seedA)
	testutil.PutDataset(t, store, "b.bvh", testutil.NewTree(2, 2, 64, 16), seedB)

	metrics := &lodstream.BasicMetricsCollector{}
	s := open(t, store, lodstream.WithMetricsObserver(metrics))

	faults.AddRule("a.lod", fs.Fault{FailReads: true})

	// 1. Failing reads release their slot
	_, err := s.Request(0, 0, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return metrics.GetStats().Failures > 0 }, 5*time.Second, time.Millisecond)

	r, err := s.Reconcile()
	require.NoError(t, err)
	assert.Equal(t, 1, r.Failed)
	assert.False(t, s.IsResident(0, 0))
	assert.Equal(t, 0, s.Stats().Slots.Reserved)

	// 2. Once storage recovers the same node loads
	faults.ClearRules()

	frames(t, s, []want{{0, 0, 1}}, func() bool { return s.IsResident(0, 0) })

	stats := metrics.GetStats()
	assert.Positive(t, stats.Commits)
	assert.Positive(t, stats.CommitFailures)
	assert.Equal(t, int64(1), stats.Occupied)
}

func TestSession_HotAddModel(t *testing.T) {
	store := newStore(t)
	s := open(t, store)

	ctx := context.Background()

	testutil.PutDataset(t, store, "c.bvh", testutil.NewTree(2, 2, 64, 16), 33)

	// 1. Staged models are invisible until the frame closes
	id, err := s.AddModel(ctx, "c.bvh", "c")
	require.NoError(t, err)
	assert.Equal(t, model.ModelID(2), id)

	_, ok := s.Lookup("c")
	assert.False(t, ok)

	_, err = s.Request(id, 0, 1)
	require.ErrorIs(t, err, lodstream.ErrNotFound)

	r, err := s.Reconcile()
	require.NoError(t, err)
	assert.Equal(t, 1, r.Applied)

	got, ok := s.Lookup("c")
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.Len(t, s.Models(), 3)

	frames(t, s, []want{{id, 4, 1}}, func() bool { return s.IsResident(id, 4) })

	b, err := s.Slot(id, 4)
	require.NoError(t, err)
	assert.True(t, testutil.IsNodePayload(b, 33, 4))
}

func TestSession_IncompatibleModel(t *testing.T) {
	store := newStore(t)
	s := open(t, store)

	testutil.PutDataset(t, store, "wide.bvh", testutil.NewTree(2, 2, 128, 16), 44)

	_, err := s.AddModel(context.Background(), "wide.bvh", "")
	require.ErrorIs(t, err, lodstream.ErrIncompatibleModel)

	var mismatch *lodstream.ErrSlotSizeMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, uint32(64), mismatch.Expected)
	assert.Equal(t, uint32(128), mismatch.Actual)
}

func TestSession_WatchDir(t *testing.T) {
	dir := t.TempDir()
	store := blobstore.NewLocalStore(dir)

	testutil.PutDataset(t, store, "a.bvh", testutil.NewTree(2, 2, 64, 16), seedA)

	s, err := lodstream.Open(context.Background(),
		lodstream.WithStore(store),
		lodstream.WithModels(registry.Entry{Path: "a.bvh"}),
		lodstream.WithSlotCount(4),
		lodstream.WithHeapArena(),
		lodstream.WithWatchDir(dir),
		lodstream.WithWatchDebounce(100*time.Millisecond),
	)
	require.NoError(t, err)
	defer s.Close()

	testutil.PutDataset(t, store, filepath.ToSlash(filepath.Join("scans", "d.bvh")), testutil.NewTree(2, 2, 64, 16), 55)

	require.Eventually(t, func() bool {
		_, err := s.Reconcile()
		require.NoError(t, err)

		_, ok := s.Lookup("scans/d.bvh")

		return ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSession_MeasureAndClose(t *testing.T) {
	s, err := lodstream.Open(context.Background(),
		lodstream.WithStore(newStore(t)),
		lodstream.WithModels(registry.Entry{Path: "a.bvh"}),
		lodstream.WithSlotCount(8),
		lodstream.WithHeapArena(),
		lodstream.WithLogger(nil),
	)
	require.NoError(t, err)

	s.BeginMeasure()

	frames(t, s, []want{{0, 0, 1}, {0, 1, 1}, {0, 2, 1}}, func() bool {
		return s.Resident(0).GetCardinality() == 3
	})

	m := s.EndMeasure()
	assert.GreaterOrEqual(t, m.Loads, uint64(3))
	assert.GreaterOrEqual(t, m.Bytes, uint64(3*s.SlotSize()))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Request(0, 0, 1)
	require.ErrorIs(t, err, lodstream.ErrClosed)

	_, err = s.Reconcile()
	require.ErrorIs(t, err, lodstream.ErrClosed)

	_, err = s.Slot(0, 0)
	require.ErrorIs(t, err, lodstream.ErrClosed)
}
