// Package sema provides the counting wake semaphore of the stream workers.
//
// golang.org/x/sync/semaphore bounds concurrent holders of a weight; it has no
// notion of producer signals that accumulate while nobody waits, nor of a
// broadcast shutdown. Semaphore covers exactly that.
package sema

import "sync"

// Semaphore is a counting semaphore with a broadcast close.
type Semaphore struct {
	mu     sync.Mutex
	cond   *sync.Cond
	count  int
	closed bool
}

// New creates a semaphore with no pending signals.
func New() *Semaphore {
	s := &Semaphore{}
	s.cond = sync.NewCond(&s.mu)

	return s
}

// Signal adds n wake-ups. Signals after Close are dropped.
func (s *Semaphore) Signal(n int) {
	if n <= 0 {
		return
	}

	s.mu.Lock()
	if !s.closed {
		s.count += n
	}
	s.mu.Unlock()

	if n == 1 {
		s.cond.Signal()
	} else {
		s.cond.Broadcast()
	}
}

// Wait blocks until a signal is available and consumes it. It returns false
// once the semaphore is closed, even if signals remain.
func (s *Semaphore) Wait() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.count == 0 && !s.closed {
		s.cond.Wait()
	}

	if s.closed {
		return false
	}

	s.count--

	return true
}

// TryWait consumes a signal without blocking.
func (s *Semaphore) TryWait() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.count == 0 {
		return false
	}

	s.count--

	return true
}

// Pending returns the number of unconsumed signals.
func (s *Semaphore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.count
}

// Close wakes every waiter. Subsequent Wait calls return false.
func (s *Semaphore) Close() {
	s.mu.Lock()
	s.closed = true
	s.count = 0
	s.mu.Unlock()

	s.cond.Broadcast()
}
