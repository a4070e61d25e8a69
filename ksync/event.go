package ksync

import (
	"sync"

	"nanokern/defs"
	"nanokern/waitq"
)

/// Event is the manual-reset event of §4.7.
type Event struct {
	mu        sync.Mutex
	signalled bool
	waiters   *waitq.Queue
}

/// NewEvent creates an event in the given initial state.
func NewEvent(initiallySignalled bool) *Event {
	return &Event{signalled: initiallySignalled, waiters: waitq.New()}
}

/// Set marks the event signalled and returns every waiting thread id to be
/// woken — a manual-reset event wakes *all* waiters, not just the head
/// (§4.7).
func (e *Event) Set() []defs.Tid_t {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signalled = true
	woken := e.waiters.All()
	e.waiters = waitq.New()
	return woken
}

/// Reset clears the signalled state.
func (e *Event) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signalled = false
}

/// Wait returns true immediately if the event is already signalled.
/// Otherwise it enqueues tid and returns false: the caller must block with
/// reason Event.
func (e *Event) Wait(tid defs.Tid_t) (proceed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.signalled {
		return true
	}
	e.waiters.Push(tid)
	return false
}

/// Signalled reports the current state.
func (e *Event) Signalled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signalled
}

/// RemoveWaiter forcibly pulls tid off the wait list (§5 cancellation).
func (e *Event) RemoveWaiter(tid defs.Tid_t) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waiters.Remove(tid)
}
