// Package stream loads node payloads into slots with a pool of workers.
//
// The consumer (usually once per frame) requests nodes with
// AcknowledgeRequest. Workers sleep on a counting semaphore, claim the
// highest ranked job, read exactly one slot of bytes from the model's payload
// with no lock held, then copy them into the job's slot and append the job to
// the commit history under the pool mutex.
//
// Between frames the consumer takes the explicit pool lock, which also stops
// workers from publishing, and reconciles:
//
//	pool.Lock()
//	stats, _ := pool.ResolvePendingCommits(index)  // History -> Occupied slots
//	cancelled, _ := pool.PerformQueueMaintenance(index) // drop unclaimed jobs
//	pool.Unlock()
//
// Jobs that are still wanted are requested again in the next frame; jobs a
// worker already claimed always finish and commit.
package stream
