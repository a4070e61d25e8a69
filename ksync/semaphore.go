// Package ksync implements the counting semaphore, mutex (with priority
// inheritance) and manual-reset event of spec.md §4.7.
//
// Every primitive here only tracks ownership/count and FIFO waiters; it
// never transitions a thread's state itself. State transitions
// (RUNNING -> WAITING, WAITING -> READY) and the actual yield are §5
// concerns orchestrated by the kernel package, which is the only package
// that imports both ksync and sched. This mirrors Design Note §9 ("global
// singleton managers become explicit components... there is one root")
// and keeps ksync free of a dependency on proc/sched, avoiding an import
// cycle while still matching the teacher's idiom of a small struct plus an
// embedded wait-list grounded on biscuit/src/accnt/accnt.go's embedded
// sync.Mutex and atomic counters.
package ksync

import (
	"sync"

	"nanokern/defs"
	"nanokern/waitq"
)

/// Semaphore is the counting semaphore of §4.7.
type Semaphore struct {
	mu      sync.Mutex
	count   int32
	max     int32
	waiters *waitq.Queue
}

/// NewSemaphore creates a semaphore with the given initial count and
/// maximum value.
func NewSemaphore(initial, max int32) *Semaphore {
	return &Semaphore{count: initial, max: max, waiters: waitq.New()}
}

/// Wait decrements the semaphore if count > 0 and returns true (proceed).
/// Otherwise it enqueues tid as a waiter and returns false: the caller
/// must block the thread with reason Semaphore.
func (s *Semaphore) Wait(tid defs.Tid_t) (proceed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count > 0 {
		s.count--
		return true
	}
	s.waiters.Push(tid)
	return false
}

/// Signal wakes the head waiter (without incrementing count) if any are
/// queued; otherwise it increments count, failing with OverflowsMax if
/// that would exceed max (§4.7).
func (s *Semaphore) Signal() (woke defs.Tid_t, didWake bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tid, ok := s.waiters.Pop(); ok {
		return tid, true, nil
	}
	if s.count >= s.max {
		return 0, false, defs.New(defs.OverflowsMax, "ksync", "semaphore signal past max")
	}
	s.count++
	return 0, false, nil
}

/// Count returns the current count, for diagnostics and tests.
func (s *Semaphore) Count() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

/// Waiters returns the FIFO order of waiting thread ids.
func (s *Semaphore) Waiters() []defs.Tid_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters.All()
}

/// RemoveWaiter forcibly pulls tid off the wait list (§5 cancellation: a
/// terminated thread must be removed from whatever it is waiting on).
func (s *Semaphore) RemoveWaiter(tid defs.Tid_t) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters.Remove(tid)
}
