// Package resource governs the memory, read concurrency and read bandwidth of
// a streaming session.
//
//	┌────────────────────────────────────────────────────────┐
//	│                       Controller                       │
//	├──────────────────┬──────────────────┬──────────────────┤
//	│  Memory Limit    │  Backend Reads   │  IO Rate Limiter │
//	│  (fail-fast)     │  (semaphore)     │  (token bucket)  │
//	├──────────────────┼──────────────────┼──────────────────┤
//	│  AcquireMemory   │  AcquireRead     │  AcquireIO       │
//	│  ReleaseMemory   │  TryAcquireRead  │  TryAcquireIO    │
//	│  MemoryUsage     │  ReleaseRead     │  IOBytes         │
//	└──────────────────┴──────────────────┴──────────────────┘
//
// The slot arena and the block cache account their allocations against the
// memory limit. AcquireMemory never blocks:
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 4 << 30})
//	if err := rc.AcquireMemory(arenaBytes); err != nil {
//	    // ErrMemoryLimitExceeded
//	}
//
// Stream workers call AcquireIO before each node read so that loading never
// exceeds the configured upload bandwidth:
//
//	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 64 << 20})
//	if err := rc.AcquireIO(ctx, slotSize); err != nil {
//	    return err
//	}
//
// All methods are safe for concurrent use and are no-ops on a nil Controller.
package resource
