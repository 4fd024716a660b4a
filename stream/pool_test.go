package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

type fixture struct {
	faults *fs.FaultyFS
	reg    *registry.Registry
	index  *cache.Index
	arena  *cache.Arena
	pool   *Pool
	slot   int
}

func newFixture(t *testing.T, workers, slots int, opts ...Option) *fixture {
	t.Helper()

	faults := fs.NewFaultyFS(nil)
	store := blobstore.NewLocalStore(t.TempDir(), blobstore.WithFileSystem(faults))

	testutil.PutDataset(t, store, "a.bvh", testutil.NewTree(2, 2, 64, 16), seedA)
	testutil.PutDataset(t, store, "b.bvh", testutil.NewTree(2, 2, 64, 16), seedB)

	ctx := context.Background()
	reg := registry.New(store)

	_, err := reg.AddModels(ctx, []registry.Entry{{Path: "a.bvh"}, {Path: "b.bvh"}})
	require.NoError(t, err)
	reg.Apply()

	slotSize := int(reg.SlotSize())

	arena, err := cache.NewArena(slots, slotSize, cache.WithHeapMemory())
	require.NoError(t, err)

	pool, err := New(reg, arena, Config{Workers: workers, SlotSize: slotSize}, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pool.Close())
		require.NoError(t, arena.Close())
	})

	return &fixture{faults: faults, reg: reg, index: cache.NewIndex(slots), arena: arena, pool: pool, slot: slotSize}
}

// request reserves a slot and queues the load, the way a session does.
func (f *fixture) request(t *testing.T, m model.ModelID, n model.NodeID, prio model.Priority) (model.SlotID, error) {
	t.Helper()

	id, err := f.index.ReserveSlot(m, n, prio)
	if err != nil {
		return id, err
	}

	require.True(t, f.pool.AcknowledgeRequest(model.Job{Model: m, Node: n, Slot: id, Priority: prio}))

	return id, nil
}

func (f *fixture) reconcile(t *testing.T) (CommitStats, int) {
	t.Helper()

	f.pool.Lock()
	defer f.pool.Unlock()

	stats, err := f.pool.ResolvePendingCommits(f.index)
	require.NoError(t, err)

	cancelled, err := f.pool.PerformQueueMaintenance(f.index)
	require.NoError(t, err)

	return stats, cancelled
}

func (f *fixture) waitLoaded(t *testing.T, n int) {
	t.Helper()

	require.Eventually(t, func() bool {
		s := f.pool.Stats()
		return s.History+s.Failed == n && s.InFlight == n && s.Pending == 0
	}, 5*time.Second, time.Millisecond)
}

func TestPool_LoadAndCommit(t *testing.T) {
	f := newFixture(t, 3, 8)

	// 1. Request five nodes of model 1
	slots := map[model.NodeID]model.SlotID{}
	for n := range model.NodeID(5) {
		id, err := f.request(t, 1, n, model.Priority(n))
		require.NoError(t, err)
		slots[n] = id
	}

	f.waitLoaded(t, 5)

	// 2. Nothing is visible before the reconcile pass
	assert.False(t, f.index.IsResident(1, 0))
	assert.Equal(t, queue.Indexed, f.pool.AcknowledgeQuery(1, 0))

	stats, cancelled := f.reconcile(t)
	assert.Equal(t, 5, stats.Committed)
	assert.Equal(t, uint64(5*f.slot), stats.Bytes)
	assert.Zero(t, cancelled)

	// 3. Slots hold exactly the requested nodes
	for n, id := range slots {
		_, state, ok := f.index.Lookup(1, n)
		require.True(t, ok)
		assert.Equal(t, cache.SlotOccupied, state)

		b, err := f.arena.Slot(id)
		require.NoError(t, err)
		assert.True(t, testutil.IsNodePayload(b, seedB, n), "slot %d holds node %d", id, n)
		assert.Equal(t, queue.NotIndexed, f.pool.AcknowledgeQuery(1, n))
	}

	assert.Equal(t, uint64(5), f.index.Resident(1).GetCardinality())
	assert.Equal(t, uint64(5*f.slot), f.pool.Stats().BytesLoaded)
}

func TestPool_RequiresLock(t *testing.T) {
	f := newFixture(t, 1, 1)

	_, err := f.pool.ResolvePendingCommits(f.index)
	require.ErrorIs(t, err, ErrNotLocked)

	_, err = f.pool.PerformQueueMaintenance(f.index)
	require.ErrorIs(t, err, ErrNotLocked)

	_, err = f.pool.LockedStats()
	require.ErrorIs(t, err, ErrNotLocked)

	assert.Panics(t, func() { f.pool.Unlock() })

	f.pool.Lock()
	require.ErrorIs(t, f.pool.Close(), ErrLocked)

	s, err := f.pool.LockedStats()
	require.NoError(t, err)
	assert.Zero(t, s.Pending)
	f.pool.Unlock()
}

func TestPool_DuplicateRequest(t *testing.T) {
	f := newFixture(t, 1, 4)
	f.faults.AddRule("a.lod", fs.Fault{ReadDelay: 50 * time.Millisecond})

	id, err := f.request(t, 0, 3, 1)
	require.NoError(t, err)

	assert.False(t, f.pool.AcknowledgeRequest(model.Job{Model: 0, Node: 3, Slot: id, Priority: 9}))
	assert.True(t, f.pool.AcknowledgeUpdate(0, 3, 9))
	assert.False(t, f.pool.AcknowledgeUpdate(0, 4, 9))
}

func TestPool_MaintenanceCancelsUnclaimed(t *testing.T) {
	f := newFixture(t, 1, 4)
	f.faults.AddRule("a.lod", fs.Fault{ReadDelay: 100 * time.Millisecond})

	for n := range model.NodeID(3) {
		_, err := f.request(t, 0, n, model.Priority(10-n))
		require.NoError(t, err)
	}

	// 1. The single worker claims the highest priority job
	require.Eventually(t, func() bool { return f.pool.Stats().InFlight == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, queue.Indexed, f.pool.AcknowledgeQuery(0, 0))
	assert.Equal(t, queue.IndexedPending, f.pool.AcknowledgeQuery(0, 2))

	// 2. Maintenance drops the two pending ones and frees their slots
	_, cancelled := f.reconcile(t)
	assert.Equal(t, 2, cancelled)
	assert.Equal(t, queue.NotIndexed, f.pool.AcknowledgeQuery(0, 2))
	assert.Equal(t, 2, f.index.Stats().Free)

	// 3. The claimed job still commits
	f.waitLoaded(t, 1)
	stats, _ := f.reconcile(t)
	assert.Equal(t, 1, stats.Committed)
	assert.True(t, f.index.IsResident(0, 0))
}

func TestPool_FailedReadReleasesSlot(t *testing.T) {
	var failures atomic.Int32

	obs := &countingObserver{failures: &failures}
	f := newFixture(t, 2, 2, WithMetricsObserver(obs))
	f.faults.AddRule("b.lod", fs.Fault{FailReads: true})

	id, err := f.request(t, 1, 2, 1)
	require.NoError(t, err)

	f.waitLoaded(t, 1)

	stats, _ := f.reconcile(t)
	assert.Equal(t, 0, stats.Committed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, int32(1), failures.Load())

	info, err := f.index.Slot(id)
	require.NoError(t, err)
	assert.Equal(t, cache.SlotFree, info.State)
	assert.Equal(t, queue.NotIndexed, f.pool.AcknowledgeQuery(1, 2))

	// A later request re-issues the load once the fault is gone.
	f.faults.ClearRules()

	_, err = f.request(t, 1, 2, 1)
	require.NoError(t, err)
	f.waitLoaded(t, 1)

	stats, _ = f.reconcile(t)
	assert.Equal(t, 1, stats.Committed)
}

// TestPool_HigherPriorityWinsSingleSlot runs two workers against one slot.
// Node A (priority 5) is requested before node B (priority 10) every frame;
// B must end up resident.
func TestPool_HigherPriorityWinsSingleSlot(t *testing.T) {
	f := newFixture(t, 2, 1)
	f.faults.AddRule("a.lod", fs.Fault{ReadDelay: 20 * time.Millisecond})
	f.faults.AddRule("b.lod", fs.Fault{ReadDelay: 5 * time.Millisecond})

	cut := []model.Job{
		{Model: 0, Node: 1, Priority: 5},
		{Model: 1, Node: 2, Priority: 10},
	}

	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		f.reconcile(t)
		f.index.Tick()

		for _, j := range cut {
			if _, state, ok := f.index.Lookup(j.Model, j.Node); ok {
				if state == cache.SlotOccupied {
					f.index.Touch(j.Model, j.Node, j.Priority)
				} else {
					f.pool.AcknowledgeUpdate(j.Model, j.Node, j.Priority)
				}

				continue
			}

			if _, err := f.request(t, j.Model, j.Node, j.Priority); err != nil {
				require.ErrorIs(t, err, cache.ErrPoolFull)
			}
		}

		if f.index.IsResident(1, 2) {
			break
		}

		time.Sleep(2 * time.Millisecond)
	}

	require.True(t, f.index.IsResident(1, 2))
	assert.False(t, f.index.IsResident(0, 1))

	id, _, _ := f.index.Lookup(1, 2)
	b, err := f.arena.Slot(id)
	require.NoError(t, err)
	assert.True(t, testutil.IsNodePayload(b, seedB, 2))
}

func TestPool_MeasureAndClose(t *testing.T) {
	f := newFixture(t, 2, 4)

	assert.Zero(t, f.pool.EndMeasure())

	f.pool.BeginMeasure()

	for n := range model.NodeID(4) {
		_, err := f.request(t, 0, n, 1)
		require.NoError(t, err)
	}

	f.waitLoaded(t, 4)

	m := f.pool.EndMeasure()
	assert.Equal(t, uint64(4), m.Loads)
	assert.Equal(t, uint64(4*f.slot), m.Bytes)
	assert.Contains(t, m.String(), "4 loads")

	require.NoError(t, f.pool.Close())
	require.NoError(t, f.pool.Close())
	assert.False(t, f.pool.AcknowledgeRequest(model.Job{Model: 0, Node: 6, Slot: 0}))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(nil, nil, Config{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

type countingObserver struct {
	NoopMetricsObserver
	failures *atomic.Int32
}

func (o *countingObserver) OnFailure(_ model.Job, err error) {
	if errors.Is(err, fs.ErrInjected) {
		o.failures.Add(1)
	}
}
