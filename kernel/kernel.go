// Package kernel wires every other package into the one root context
// spec.md §5 calls for ("there is one root, constructed once at boot")
// and performs the state transitions that ksync, pipe, proc and thread
// deliberately leave to their caller: this is the only package that
// imports both the blocking primitives and the scheduler, so it is the
// only place an actual RUNNING -> WAITING -> READY cycle happens.
//
// Grounded on biscuit/src/kernel/chentry.go's role as the thing that ties
// the rest of the tree together, generalized from a one-shot ELF patcher
// into a long-lived root object per Design Note §9's "explicit root
// context, not a package-level singleton" guidance.
package kernel

import (
	"io"

	"nanokern/config"
	"nanokern/defs"
	"nanokern/frame"
	"nanokern/kheap"
	"nanokern/klog"
	"nanokern/ksync"
	"nanokern/mmapfile"
	"nanokern/paging"
	"nanokern/pipe"
	"nanokern/proc"
	"nanokern/sched"
	"nanokern/shm"
	"nanokern/thread"
	"nanokern/timer"
)

/// Kernel is the root object: every subsystem hangs off it, constructed
/// once at boot by New.
type Kernel struct {
	Config config.Config

	Frames *frame.Allocator
	Paging *paging.Manager
	Heap   *kheap.Heap
	Procs  *proc.Store
	Threads *thread.Store
	Sched  *sched.Scheduler
	Ticker *timer.Ticker
	Log    *klog.Logger
	SHM    *shm.Manager
	MMap   *mmapfile.Manager

	semaphores map[SemId]*ksync.Semaphore
	mutexes    map[MutexId]*ksync.Mutex
	events     map[EventId]*ksync.Event
	pipes      map[PipeId]*pipe.Pipe
	nextSem    SemId
	nextMutex  MutexId
	nextEvent  EventId
	nextPipe   PipeId

	// waitingOnMutex records, for a thread currently blocked in LockMutex,
	// which mutex it is blocked on — the link boostChainLocked walks to
	// apply priority inheritance transitively through a chain of blocked
	// owners (§4.5: "Transitively applied if H is itself blocked on
	// another mutex").
	waitingOnMutex map[defs.Tid_t]MutexId

	// boosted records which mutexes currently hold an active
	// PushInherited revert point on their owner, so a second, transitive
	// boost reaching an already-boosted owner tightens its priority in
	// place (Tighten) instead of pushing a second revert point that
	// UnlockMutex's single PopInherited call could never fully undo.
	boosted map[MutexId]bool
}

type SemId uint32
type MutexId uint32
type EventId uint32
type PipeId uint32

/// New boots a kernel with the given configuration, logging diagnostics to
/// out.
func New(cfg config.Config, out io.Writer) (*Kernel, error) {
	frames := frame.New(frame.Addr(cfg.PhysMemBase), cfg.PhysMemFrames)
	pg, err := paging.NewManager(frames)
	if err != nil {
		return nil, err
	}

	k := &Kernel{
		Config:     cfg,
		Frames:     frames,
		Paging:     pg,
		Heap:       kheap.New(0x4000_0000, uintptr(cfg.KernelHeapSize)),
		Procs:      proc.NewStore(),
		Threads:    thread.NewStore(),
		Ticker:     timer.New(cfg.TickFrequencyHz),
		SHM:        shm.NewManager(frames),
		MMap:       mmapfile.NewManager(frames, pg),
		semaphores: make(map[SemId]*ksync.Semaphore),
		mutexes:    make(map[MutexId]*ksync.Mutex),
		events:     make(map[EventId]*ksync.Event),
		pipes:      make(map[PipeId]*pipe.Pipe),
		waitingOnMutex: make(map[defs.Tid_t]MutexId),
		boosted:        make(map[MutexId]bool),
	}
	k.Sched = sched.New(k.Threads, cfg.DefaultPolicy, cfg.SchedConfig())
	k.Log = klog.New(out, k.Ticker, klog.Info)
	return k, nil
}

/// Now returns the current tick.
func (k *Kernel) Now() uint64 {
	return k.Ticker.NowTicks()
}

/// CreateProcess creates a new process and its main thread, both in state
/// New, then moves both to READY and enqueues the main thread with the
/// scheduler (§4.10 "process creation").
func (k *Kernel) CreateProcess(parent defs.Pid_t, name string, uid defs.Uid_t, gid defs.Gid_t, priority int, policy defs.Policy_t, stackBase, stackSize, entry uintptr) (*proc.PCB, *thread.TCB, error) {
	now := k.Now()
	dir, err := k.Paging.CreateDirectory()
	if err != nil {
		return nil, nil, err
	}
	p := k.Procs.Create(parent, name, priority, policy, dir, now)
	p.UID, p.GID = uid, gid
	p.PGID = p.ID
	p.SID = p.ID

	t := k.Threads.Create(p.ID, priority, policy, stackBase, stackSize, entry, now)
	t.LocalID = len(p.Threads) + 1
	p.MainThread = t.ID
	p.Threads = append(p.Threads, t.ID)

	if err := p.Transition(defs.Ready, now); err != nil {
		return nil, nil, err
	}
	if err := t.Transition(defs.Ready); err != nil {
		return nil, nil, err
	}
	if err := k.Sched.MakeReady(t.ID, now); err != nil {
		return nil, nil, err
	}
	k.Log.Infof("kernel", "created process %d (%s), main thread %d", p.ID, name, t.ID)
	return p, t, nil
}

/// CreateThread adds an additional thread to an existing process, sharing
/// its address space (§4.10 "thread creation").
func (k *Kernel) CreateThread(pid defs.Pid_t, priority int, stackBase, stackSize, entry uintptr) (*thread.TCB, error) {
	p, ok := k.Procs.Get(pid)
	if !ok {
		return nil, defs.New(defs.NotFound, "kernel", "no such process")
	}
	now := k.Now()
	t := k.Threads.Create(pid, priority, p.Policy, stackBase, stackSize, entry, now)
	t.LocalID = len(p.Threads) + 1
	p.Threads = append(p.Threads, t.ID)
	if err := t.Transition(defs.Ready); err != nil {
		return nil, err
	}
	if err := k.Sched.MakeReady(t.ID, now); err != nil {
		return nil, err
	}
	return t, nil
}

/// TerminateThread tears a single thread out of the runnable universe
/// without touching its siblings or its process's state (§4.10).
func (k *Kernel) TerminateThread(tid defs.Tid_t) error {
	t, ok := k.Threads.Get(tid)
	if !ok {
		return defs.New(defs.NotFound, "kernel", "no such thread")
	}
	k.Sched.RemoveFromReadyStructures(tid)
	if cur, has := k.Sched.Current(); has && cur == tid {
		k.Sched.ClearCurrent()
	}
	return t.Transition(defs.Terminated)
}

/// TerminateProcess tears down every thread of pid and transitions pid to
/// Zombie (if its parent is still alive) or straight to Terminated
/// (§4.10). It does not free pid's address space; that is deferred to
/// Reap so a parent can still inspect exit status beforehand.
func (k *Kernel) TerminateProcess(pid defs.Pid_t, exitCode int) error {
	p, ok := k.Procs.Get(pid)
	if !ok {
		return defs.New(defs.NotFound, "kernel", "no such process")
	}
	now := k.Now()
	for _, tid := range p.Threads {
		_ = k.TerminateThread(tid)
	}
	_, parentAlive := k.Procs.Get(p.ParentID)
	hasParent := p.ParentID != p.ID && parentAlive
	p.Terminate(exitCode, hasParent, now)

	if hasParent {
		for _, tid := range k.Threads.All() {
			t, _ := k.Threads.Get(tid)
			if t != nil && t.State == defs.Waiting && t.BlockReason == defs.ReasonWaitChild {
				_ = k.Sched.MakeReady(tid, now)
			}
		}
	}
	k.Log.Infof("kernel", "terminated process %d, exit code %d", pid, exitCode)
	return nil
}

/// Reap finalizes a Zombie process once its parent has collected its exit
/// status, freeing its page directory (§4.10).
func (k *Kernel) Reap(pid defs.Pid_t) error {
	p, ok := k.Procs.Get(pid)
	if !ok {
		return defs.New(defs.NotFound, "kernel", "no such process")
	}
	now := k.Now()
	if err := p.Reap(now); err != nil {
		return err
	}
	if err := k.Paging.DestroyDirectory(p.Dir); err != nil {
		return err
	}
	k.Procs.Remove(pid)
	return nil
}

/// SignalGroup delivers a signal to every process in pgid's process group
/// by terminating them (SPEC_FULL.md supplemented feature grounded on
/// original_source/kernel/Kernel/Process.h's group-kill semantics; this
/// kernel does not model individual signal handlers, only the
/// deliver-as-termination path spec.md §1 keeps in scope).
func (k *Kernel) SignalGroup(pgid defs.Pid_t, exitCode int) []defs.Pid_t {
	var affected []defs.Pid_t
	for _, pid := range k.Procs.InGroup(pgid) {
		if err := k.TerminateProcess(pid, exitCode); err == nil {
			affected = append(affected, pid)
		}
	}
	return affected
}

/// Tick advances the timer by one tick and runs the scheduler's periodic
/// bookkeeping, returning whether the caller should invoke Reschedule
/// (§4.5, §6 "timer driver collaborator").
func (k *Kernel) Tick() sched.TickResult {
	now := k.Ticker.Tick()
	return k.Sched.OnTick(now)
}

/// Reschedule picks the next thread to run and performs the context
/// switch, including the page-directory switch (§4.5 "context switch
/// contract"). It returns false if there is nothing ready to run (the
/// idle condition).
func (k *Kernel) Reschedule() (sched.SwitchEvent, bool, error) {
	now := k.Now()
	if cur, has := k.Sched.Current(); has {
		if t, ok := k.Threads.Get(cur); ok && t.State == defs.Running {
			_ = t.Transition(defs.Ready)
			_ = k.Sched.MakeReady(cur, now)
		}
		k.Sched.ClearCurrent()
	}
	tid, ok := k.Sched.PickNext(now)
	if !ok {
		return sched.SwitchEvent{}, false, nil
	}
	ev, err := k.Sched.Dispatch(tid, now)
	if err != nil {
		return ev, false, err
	}
	k.Sched.ResetWait(tid)
	if t, ok := k.Threads.Get(tid); ok {
		if p, ok := k.Procs.Get(t.Pid); ok {
			k.Paging.SwitchDirectory(p.Dir)
		}
	}
	return ev, true, nil
}

/// Yield voluntarily gives up the CPU without blocking (§4.4 "cooperative
/// yield"): the running thread returns to Ready and is requeued with the
/// scheduler. Yield does not itself switch threads; the next Reschedule
/// call picks the thread to run.
func (k *Kernel) Yield(tid defs.Tid_t) error {
	t, ok := k.Threads.Get(tid)
	if !ok {
		return defs.New(defs.NotFound, "kernel", "no such thread")
	}
	t.Yields++
	if err := t.Transition(defs.Ready); err != nil {
		return err
	}
	return k.Sched.MakeReady(tid, k.Now())
}
