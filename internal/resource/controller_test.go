package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	// Acquire 50
	require.NoError(t, c.AcquireMemory(50))
	assert.Equal(t, int64(50), c.MemoryUsage())

	// Acquire 40
	require.NoError(t, c.AcquireMemory(40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	// Acquire 20 (should fail - limit exceeded)
	assert.ErrorIs(t, c.AcquireMemory(20), ErrMemoryLimitExceeded)
	assert.Equal(t, int64(90), c.MemoryUsage())

	// Release 50
	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())

	// Now Acquire 20 should succeed
	require.NoError(t, c.AcquireMemory(20))
	assert.Equal(t, int64(60), c.MemoryUsage())
	assert.Equal(t, int64(100), c.MemoryLimit())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireMemory(1000))
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())
}

func TestController_Reads(t *testing.T) {
	c := NewController(Config{MaxConcurrentReads: 2})

	require.NoError(t, c.AcquireRead(t.Context()))
	require.NoError(t, c.AcquireRead(t.Context()))
	assert.False(t, c.TryAcquireRead())

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireRead(ctx))

	c.ReleaseRead()
	assert.True(t, c.TryAcquireRead())
}

func TestController_IOLargerThanBurst(t *testing.T) {
	// 1 MiB/s with a 64 KiB bucket: a 128 KiB read must be split, not rejected.
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20, IOBurstBytes: 64 << 10})

	require.NoError(t, c.AcquireIO(t.Context(), 128<<10))
	assert.Equal(t, int64(128<<10), c.IOBytes())
}

func TestController_IOCancelled(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1024})

	// Drain the bucket.
	require.True(t, c.TryAcquireIO(1024))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.Error(t, c.AcquireIO(ctx, 1024))
	assert.False(t, c.TryAcquireIO(1024))
}

func TestController_NilSafe(t *testing.T) {
	var c *Controller

	require.NoError(t, c.AcquireMemory(10))
	c.ReleaseMemory(10)
	assert.Zero(t, c.MemoryUsage())
	assert.Zero(t, c.MemoryLimit())
	require.NoError(t, c.AcquireRead(t.Context()))
	assert.True(t, c.TryAcquireRead())
	c.ReleaseRead()
	require.NoError(t, c.AcquireIO(t.Context(), 1<<30))
	assert.True(t, c.TryAcquireIO(1<<30))
	assert.Zero(t, c.IOBytes())
}
