package lodstream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hupe1980/lodstream/cache"
	"github.com/hupe1980/lodstream/model"
	"github.com/hupe1980/lodstream/stream"
)

// MetricsObserver receives loader events. Implementations must be safe for
// concurrent use; load events arrive from worker goroutines.
//
// Example Prometheus integration:
//
//	obs := observability.NewPrometheusObserver()
//	http.Handle("/metrics", obs.Handler())
//	s, _ := lodstream.Open(ctx, lodstream.WithMetricsObserver(obs), ...)
type MetricsObserver = stream.MetricsObserver

// SlotObserver is optionally implemented by a MetricsObserver to receive a
// slot index snapshot after every Reconcile.
type SlotObserver interface {
	OnSlots(stats cache.Stats)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver = stream.NoopMetricsObserver

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and tests without external dependencies.
type BasicMetricsCollector struct {
	LoadCount      atomic.Int64
	LoadErrors     atomic.Int64
	LoadBytes      atomic.Int64
	LoadTotalNanos atomic.Int64
	Failures       atomic.Int64
	Commits        atomic.Int64
	CommitFailures atomic.Int64
	Cancels        atomic.Int64
	Pending        atomic.Int64
	InFlight       atomic.Int64
	Occupied       atomic.Int64
	Evictions      atomic.Int64
}

var (
	_ MetricsObserver = (*BasicMetricsCollector)(nil)
	_ SlotObserver    = (*BasicMetricsCollector)(nil)
)

// OnLoad implements MetricsObserver.
func (b *BasicMetricsCollector) OnLoad(d time.Duration, bytes int, err error) {
	b.LoadCount.Add(1)
	b.LoadTotalNanos.Add(d.Nanoseconds())

	if err != nil {
		b.LoadErrors.Add(1)
		return
	}

	b.LoadBytes.Add(int64(bytes))
}

// OnFailure implements MetricsObserver.
func (b *BasicMetricsCollector) OnFailure(model.Job, error) {
	b.Failures.Add(1)
}

// OnCommit implements MetricsObserver.
func (b *BasicMetricsCollector) OnCommit(committed, failed int) {
	b.Commits.Add(int64(committed))
	b.CommitFailures.Add(int64(failed))
}

// OnCancel implements MetricsObserver.
func (b *BasicMetricsCollector) OnCancel(cancelled int) {
	b.Cancels.Add(int64(cancelled))
}

// OnQueueDepth implements MetricsObserver.
func (b *BasicMetricsCollector) OnQueueDepth(pending, inFlight int) {
	b.Pending.Store(int64(pending))
	b.InFlight.Store(int64(inFlight))
}

// OnSlots implements SlotObserver.
func (b *BasicMetricsCollector) OnSlots(s cache.Stats) {
	b.Occupied.Store(int64(s.Occupied))
	b.Evictions.Store(int64(s.Evictions))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		LoadCount:      b.LoadCount.Load(),
		LoadErrors:     b.LoadErrors.Load(),
		LoadBytes:      b.LoadBytes.Load(),
		LoadAvgNanos:   b.getAvgLoadNanos(),
		Failures:       b.Failures.Load(),
		Commits:        b.Commits.Load(),
		CommitFailures: b.CommitFailures.Load(),
		Cancels:        b.Cancels.Load(),
		Pending:        b.Pending.Load(),
		InFlight:       b.InFlight.Load(),
		Occupied:       b.Occupied.Load(),
		Evictions:      b.Evictions.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgLoadNanos() int64 {
	count := b.LoadCount.Load()
	if count == 0 {
		return 0
	}

	return b.LoadTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	LoadCount      int64
	LoadErrors     int64
	LoadBytes      int64
	LoadAvgNanos   int64
	Failures       int64
	Commits        int64
	CommitFailures int64
	Cancels        int64
	Pending        int64
	InFlight       int64
	Occupied       int64
	Evictions      int64
}

// loggingObserver logs failed loads before forwarding every event.
type loggingObserver struct {
	MetricsObserver
	logger *Logger
}

func (o loggingObserver) OnFailure(job model.Job, err error) {
	o.logger.LogLoadFailed(context.Background(), job, err)
	o.MetricsObserver.OnFailure(job, err)
}
