// Package queue implements the deduplicating job queue of the stream pool.
//
// Every (model, node) appears at most once. A job is Pending until a worker
// claims it and Claimed until the consumer pops it after commit or failure:
//
//	PushJob ──▶ Pending ──Claim──▶ Claimed ──PopJob──▶ (gone)
//	               │
//	               └──PopPending / PopJob──▶ (gone, cancelled)
//
// Pending jobs are served highest priority first; ties go to the lowest
// model id, then the lowest node id. Claimed jobs keep their key so a second
// request for the same node is recognised as a duplicate while its read is
// in flight.
//
// The queue is safe for concurrent use by workers and the consumer.
package queue
