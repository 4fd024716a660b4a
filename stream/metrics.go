package stream

import (
	"time"

	"github.com/hupe1980/lodstream/model"
)

// MetricsObserver receives pool events. Implementations must be safe for
// concurrent use; OnLoad and OnFailure are called from workers.
type MetricsObserver interface {
	// OnLoad is called after a worker read, successful or not.
	OnLoad(duration time.Duration, bytes int, err error)
	// OnFailure is called for every job dropped because its read failed.
	OnFailure(job model.Job, err error)
	// OnCommit is called after ResolvePendingCommits.
	OnCommit(committed, failed int)
	// OnCancel is called after PerformQueueMaintenance.
	OnCancel(cancelled int)
	// OnQueueDepth reports pending and claimed job counts.
	OnQueueDepth(pending, inFlight int)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnLoad(time.Duration, int, error) {}
func (NoopMetricsObserver) OnFailure(model.Job, error)       {}
func (NoopMetricsObserver) OnCommit(int, int)                {}
func (NoopMetricsObserver) OnCancel(int)                     {}
func (NoopMetricsObserver) OnQueueDepth(int, int)            {}
