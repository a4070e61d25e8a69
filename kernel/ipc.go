package kernel

import (
	"nanokern/defs"
	"nanokern/ksync"
	"nanokern/pipe"
)

/// NewSemaphore registers a new counting semaphore and returns its id.
func (k *Kernel) NewSemaphore(initial, max int32) SemId {
	k.nextSem++
	k.semaphores[k.nextSem] = ksync.NewSemaphore(initial, max)
	return k.nextSem
}

func (k *Kernel) semaphore(id SemId) (*ksync.Semaphore, error) {
	s, ok := k.semaphores[id]
	if !ok {
		return nil, defs.New(defs.NotFound, "kernel", "no such semaphore")
	}
	return s, nil
}

/// WaitSemaphore decrements id for tid, blocking tid (RUNNING -> WAITING)
/// if the count was already zero (§4.7).
func (k *Kernel) WaitSemaphore(id SemId, tid defs.Tid_t) error {
	s, err := k.semaphore(id)
	if err != nil {
		return err
	}
	if s.Wait(tid) {
		return nil
	}
	t, ok := k.Threads.Get(tid)
	if !ok {
		return defs.New(defs.NotFound, "kernel", "no such thread")
	}
	k.Sched.RemoveFromReadyStructures(tid)
	return t.Block(defs.Waiting, defs.ReasonSemaphore, 0)
}

/// SignalSemaphore wakes the head waiter on id, if any, else increments
/// its count (§4.7).
func (k *Kernel) SignalSemaphore(id SemId) error {
	s, err := k.semaphore(id)
	if err != nil {
		return err
	}
	woke, didWake, err := s.Signal()
	if err != nil {
		return err
	}
	if didWake {
		return k.Sched.MakeReady(woke, k.Now())
	}
	return nil
}

/// NewMutex registers a new priority-inheriting mutex and returns its id.
func (k *Kernel) NewMutex() MutexId {
	k.nextMutex++
	k.mutexes[k.nextMutex] = ksync.NewMutex()
	return k.nextMutex
}

func (k *Kernel) mutex(id MutexId) (*ksync.Mutex, error) {
	m, ok := k.mutexes[id]
	if !ok {
		return nil, defs.New(defs.NotFound, "kernel", "no such mutex")
	}
	return m, nil
}

/// LockMutex attempts to take id for tid. If another thread holds it, tid
/// blocks and the chain of mutex owners tid is transitively blocked
/// behind is boosted to tid's priority, if more urgent (§4.5 priority
/// inheritance, applied here since priority lives on thread.TCB, not
/// ksync.Mutex — see ksync/mutex.go's doc comment. "Transitively applied
/// if H is itself blocked on another mutex": if id's owner is itself
/// waiting on a different mutex, that mutex's owner is boosted too, and
/// so on up the chain).
func (k *Kernel) LockMutex(id MutexId, tid defs.Tid_t) error {
	m, err := k.mutex(id)
	if err != nil {
		return err
	}
	owned, lerr := m.Lock(tid)
	if lerr != nil {
		return lerr
	}
	if owned {
		delete(k.waitingOnMutex, tid)
		return nil
	}
	waiter, ok := k.Threads.Get(tid)
	if !ok {
		return defs.New(defs.NotFound, "kernel", "no such thread")
	}
	k.waitingOnMutex[tid] = id
	k.boostChainLocked(id, waiter.Priority)
	k.Sched.RemoveFromReadyStructures(tid)
	return waiter.Block(defs.Waiting, defs.ReasonMutex, 0)
}

// boostChainLocked walks from id's current owner through whatever mutex
// that owner is itself blocked on (via waitingOnMutex), boosting each
// link's priority to prio in turn. visited guards against a cycle (which
// should never occur with well-formed lock ordering, but must not hang
// the kernel if it somehow does).
func (k *Kernel) boostChainLocked(id MutexId, prio int) {
	visited := make(map[MutexId]bool)
	for {
		if visited[id] {
			return
		}
		visited[id] = true
		m, err := k.mutex(id)
		if err != nil {
			return
		}
		ownerTid, held := m.Owner()
		if !held {
			return
		}
		owner, ok := k.Threads.Get(ownerTid)
		if !ok {
			return
		}
		if k.boosted[id] {
			owner.Tighten(prio)
		} else if owner.PushInherited(prio) {
			k.boosted[id] = true
		}
		nextID, blocked := k.waitingOnMutex[ownerTid]
		if !blocked {
			return
		}
		id = nextID
	}
}

/// UnlockMutex releases id held by tid. If a waiter was queued, ownership
/// transfers to it atomically and it is made READY; tid's inherited
/// priority (borrowed on id's account) is reverted (§4.5, §4.7).
func (k *Kernel) UnlockMutex(id MutexId, tid defs.Tid_t) error {
	m, err := k.mutex(id)
	if err != nil {
		return err
	}
	newOwner, hasNewOwner, uerr := m.Unlock(tid)
	if uerr != nil {
		return uerr
	}
	if k.boosted[id] {
		if owner, ok := k.Threads.Get(tid); ok {
			owner.PopInherited()
		}
		delete(k.boosted, id)
	}
	if hasNewOwner {
		delete(k.waitingOnMutex, newOwner)
		return k.Sched.MakeReady(newOwner, k.Now())
	}
	return nil
}

/// NewEvent registers a new manual-reset event and returns its id.
func (k *Kernel) NewEvent(initiallySignalled bool) EventId {
	k.nextEvent++
	k.events[k.nextEvent] = ksync.NewEvent(initiallySignalled)
	return k.nextEvent
}

func (k *Kernel) event(id EventId) (*ksync.Event, error) {
	e, ok := k.events[id]
	if !ok {
		return nil, defs.New(defs.NotFound, "kernel", "no such event")
	}
	return e, nil
}

/// WaitEvent blocks tid on id unless it is already signalled (§4.7).
func (k *Kernel) WaitEvent(id EventId, tid defs.Tid_t) error {
	e, err := k.event(id)
	if err != nil {
		return err
	}
	if e.Wait(tid) {
		return nil
	}
	t, ok := k.Threads.Get(tid)
	if !ok {
		return defs.New(defs.NotFound, "kernel", "no such thread")
	}
	k.Sched.RemoveFromReadyStructures(tid)
	return t.Block(defs.Waiting, defs.ReasonEvent, 0)
}

/// SetEvent signals id, waking every waiter (§4.7: manual-reset events
/// wake all waiters, not just one).
func (k *Kernel) SetEvent(id EventId) error {
	e, err := k.event(id)
	if err != nil {
		return err
	}
	for _, tid := range e.Set() {
		if err := k.Sched.MakeReady(tid, k.Now()); err != nil {
			return err
		}
	}
	return nil
}

/// ResetEvent clears id's signalled state.
func (k *Kernel) ResetEvent(id EventId) error {
	e, err := k.event(id)
	if err != nil {
		return err
	}
	e.Reset()
	return nil
}

/// NewPipe registers a new bounded pipe and returns its id.
func (k *Kernel) NewPipe(size int, blocking bool) PipeId {
	k.nextPipe++
	k.pipes[k.nextPipe] = pipe.New(size, blocking)
	return k.nextPipe
}

func (k *Kernel) pipeByID(id PipeId) (*pipe.Pipe, error) {
	p, ok := k.pipes[id]
	if !ok {
		return nil, defs.New(defs.NotFound, "kernel", "no such pipe")
	}
	return p, nil
}

/// ReadPipe reads from id for tid, blocking if empty and the pipe is
/// blocking (§4.6). On a successful read that frees buffer space, a
/// blocked writer (if any) is woken.
func (k *Kernel) ReadPipe(id PipeId, tid defs.Tid_t, buf []byte) (int, bool, error) {
	p, err := k.pipeByID(id)
	if err != nil {
		return 0, false, err
	}
	res := p.Read(tid, buf)
	if res.Block {
		t, ok := k.Threads.Get(tid)
		if !ok {
			return 0, false, defs.New(defs.NotFound, "kernel", "no such thread")
		}
		k.Sched.RemoveFromReadyStructures(tid)
		return 0, false, t.Block(defs.Waiting, defs.ReasonPipeEmpty, 0)
	}
	if res.WokeWriter {
		if err := k.Sched.MakeReady(res.Wake, k.Now()); err != nil {
			return res.N, res.EOF, err
		}
	}
	return res.N, res.EOF, nil
}

/// WritePipe writes to id for tid, blocking if full and the pipe is
/// blocking, waking a blocked reader on success (§4.6).
func (k *Kernel) WritePipe(id PipeId, tid defs.Tid_t, buf []byte) (int, error) {
	p, err := k.pipeByID(id)
	if err != nil {
		return 0, err
	}
	res := p.Write(tid, buf)
	if res.Err != nil {
		return 0, res.Err
	}
	if res.Block {
		t, ok := k.Threads.Get(tid)
		if !ok {
			return 0, defs.New(defs.NotFound, "kernel", "no such thread")
		}
		k.Sched.RemoveFromReadyStructures(tid)
		return 0, t.Block(defs.Waiting, defs.ReasonPipeFull, 0)
	}
	if res.WokeReader {
		if err := k.Sched.MakeReady(res.Wake, k.Now()); err != nil {
			return res.N, err
		}
	}
	return res.N, nil
}

/// DestroyPipe tears id down and makes every waiting reader and writer
/// READY (§4.6). The woken threads are not handed an error value; the
/// pipe id is simply gone, so a retried ReadPipe/WritePipe gets NotFound.
func (k *Kernel) DestroyPipe(id PipeId) error {
	p, err := k.pipeByID(id)
	if err != nil {
		return err
	}
	for _, tid := range p.Destroy() {
		if t, ok := k.Threads.Get(tid); ok {
			_ = t.Wake()
		}
		_ = k.Sched.MakeReady(tid, k.Now())
	}
	delete(k.pipes, id)
	return nil
}
