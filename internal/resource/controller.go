package resource

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for slot and block cache memory.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxConcurrentReads bounds parallel backend reads outside the stream
	// workers (model loading, cache fills). If 0, defaults to 4.
	MaxConcurrentReads int64

	// IOLimitBytesPerSec caps the bytes stream workers read per second.
	// If 0, unlimited.
	IOLimitBytesPerSec int64

	// IOBurstBytes is the token bucket size. Defaults to IOLimitBytesPerSec.
	IOBurstBytes int64
}

// Controller manages memory, read concurrency and read bandwidth.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Concurrency
	readSem *semaphore.Weighted

	// IO
	ioLimiter *rate.Limiter
	ioBytes   atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentReads <= 0 {
		cfg.MaxConcurrentReads = 4
	}

	c := &Controller{
		cfg:     cfg,
		readSem: semaphore.NewWeighted(cfg.MaxConcurrentReads),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		burst := cfg.IOBurstBytes
		if burst <= 0 {
			burst = cfg.IOLimitBytesPerSec
		}

		c.cfg.IOBurstBytes = burst
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(burst))
	}

	return c
}

// AcquireMemory attempts to reserve memory.
// Returns ErrMemoryLimitExceeded if limit would be exceeded.
// Non-blocking - callers control retry/backoff policy.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return ErrMemoryLimitExceeded
	}

	c.memUsed.Add(bytes)

	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}

	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}

	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}

	return c.cfg.MemoryLimitBytes
}

// AcquireRead reserves a backend read slot, blocking while all are busy.
func (c *Controller) AcquireRead(ctx context.Context) error {
	if c == nil {
		return nil
	}

	return c.readSem.Acquire(ctx, 1)
}

// TryAcquireRead reserves a backend read slot without blocking.
func (c *Controller) TryAcquireRead() bool {
	if c == nil {
		return true
	}

	return c.readSem.TryAcquire(1)
}

// ReleaseRead releases a backend read slot.
func (c *Controller) ReleaseRead() {
	if c == nil {
		return
	}

	c.readSem.Release(1)
}

// AcquireIO waits until the bandwidth limit allows reading bytes. Requests
// larger than the burst are admitted in burst-sized steps.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil {
		return nil
	}

	c.ioBytes.Add(int64(bytes))

	if c.ioLimiter == nil {
		return nil
	}

	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}

		bytes -= n
	}

	return nil
}

// TryAcquireIO attempts to acquire IO tokens without blocking.
func (c *Controller) TryAcquireIO(bytes int) bool {
	if c == nil || c.ioLimiter == nil {
		return true
	}

	if !c.ioLimiter.AllowN(time.Now(), bytes) {
		return false
	}

	c.ioBytes.Add(int64(bytes))

	return true
}

// IOBytes returns the total bytes admitted through AcquireIO and TryAcquireIO.
func (c *Controller) IOBytes() int64 {
	if c == nil {
		return 0
	}

	return c.ioBytes.Load()
}
