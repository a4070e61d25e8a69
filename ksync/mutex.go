package ksync

import (
	"sync"

	"nanokern/defs"
	"nanokern/waitq"
)

/// Mutex is the priority-inheritance-capable mutex of §4.7. It tracks
/// ownership and FIFO waiters only; the kernel package is responsible for
/// actually boosting/reverting the owning thread's current_priority, since
/// priority lives on the thread record, not here (see Design Note §9:
/// "priority-inheritance via direct field mutation becomes a stack of
/// inherited priorities on each thread").
type Mutex struct {
	mu      sync.Mutex
	owner   defs.Tid_t
	held    bool
	waiters *waitq.Queue
}

/// NewMutex creates an unlocked mutex.
func NewMutex() *Mutex {
	return &Mutex{waiters: waitq.New()}
}

/// Lock attempts to take ownership for tid. If the mutex is free, tid
/// becomes the owner and owned is true. If tid already owns it, Lock fails
/// with Recursive. Otherwise tid is enqueued as a waiter and owned is
/// false; the caller must apply priority inheritance to the current owner
/// (via Owner()) and block tid with reason Mutex.
func (m *Mutex) Lock(tid defs.Tid_t) (owned bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held {
		m.held = true
		m.owner = tid
		return true, nil
	}
	if m.owner == tid {
		return false, defs.New(defs.Recursive, "ksync", "mutex already held by caller")
	}
	m.waiters.Push(tid)
	return false, nil
}

/// TryLock is the non-blocking variant: it never enqueues and instead
/// fails with WouldBlock if the mutex is held by another thread.
func (m *Mutex) TryLock(tid defs.Tid_t) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held {
		m.held = true
		m.owner = tid
		return nil
	}
	if m.owner == tid {
		return defs.New(defs.Recursive, "ksync", "mutex already held by caller")
	}
	return defs.New(defs.WouldBlock, "ksync", "mutex held by another thread")
}

/// Unlock releases the mutex. The caller must be the current owner
/// (NotOwner otherwise). If a waiter is queued, ownership transfers to it
/// atomically before Unlock returns — the Design Note §9 correction to the
/// source's buggy "set is_locked after wake" sequencing: "unlock transfers
/// ownership to the dequeued waiter atomically before marking it READY."
/// The caller must then mark newOwner READY and revert the previous
/// owner's inherited priority.
func (m *Mutex) Unlock(tid defs.Tid_t) (newOwner defs.Tid_t, hasNewOwner bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held || m.owner != tid {
		return 0, false, defs.New(defs.NotOwner, "ksync", "unlock by non-owner")
	}
	if next, ok := m.waiters.Pop(); ok {
		m.owner = next
		return next, true, nil
	}
	m.held = false
	m.owner = 0
	return 0, false, nil
}

/// Owner returns the current owner and whether the mutex is held.
func (m *Mutex) Owner() (defs.Tid_t, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner, m.held
}

/// Waiters returns the FIFO order of waiting thread ids.
func (m *Mutex) Waiters() []defs.Tid_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiters.All()
}

/// RemoveWaiter forcibly pulls tid off the wait list (§5 cancellation).
func (m *Mutex) RemoveWaiter(tid defs.Tid_t) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiters.Remove(tid)
}
