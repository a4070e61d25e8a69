// Package proc implements the Process Control Block (PCB) record and
// store of spec.md §3/§4.4/§4.10.
//
// Grounded on biscuit/src/fd/fd.go's Cwd_t (small per-process record
// guarded by its own lock) and biscuit/src/tinfo/tinfo.go's
// Threadinfo_t, restructured onto the arena package per Design Note §9
// exactly as thread.Store is.
package proc

import (
	"nanokern/arena"
	"nanokern/defs"
	"nanokern/paging"
)

/// RTConfig_t mirrors thread.RTParams_t at process granularity for the
/// process-wide policy configuration (§3's PCB "real-time parameters").
type RTConfig_t struct {
	Policy      defs.RTSubPolicy_t
	Deadline    uint64
	Period      uint64
	WCET        uint64
	Budget      uint64
	Criticality int
}

/// PCB is the process control block (§3).
type PCB struct {
	ID       defs.Pid_t
	ParentID defs.Pid_t
	UID      defs.Uid_t
	GID      defs.Gid_t
	PGID     defs.Pid_t
	SID      defs.Pid_t

	State         defs.State_t
	PrevState     defs.State_t
	LastStateTick uint64
	BlockReason   defs.BlockReason_t
	SuspendDepth  int
	CachedState   defs.State_t

	Dir *paging.Directory

	HeapLow, HeapHigh uintptr
	StackBase, StackSize uintptr

	Policy          defs.Policy_t
	BasePriority    int
	CurrentPriority int
	Shares          int
	RT              RTConfig_t

	MainThread defs.Tid_t
	Threads    []defs.Tid_t

	ExitCode    int
	CreatedAt   uint64
	TerminatedAt uint64
	Name        string
}

/// Store owns every PCB in the system.
type Store struct {
	a *arena.Arena[PCB]
}

/// NewStore creates an empty process store.
func NewStore() *Store {
	return &Store{a: arena.New[PCB]()}
}

/// Create inserts a new PCB in state New.
func (s *Store) Create(parent defs.Pid_t, name string, priority int, policy defs.Policy_t, dir *paging.Directory, now uint64) *PCB {
	p := PCB{
		ParentID:        parent,
		Name:            name,
		State:           defs.StateNew,
		PrevState:       defs.StateNew,
		LastStateTick:   now,
		Dir:             dir,
		Policy:          policy,
		BasePriority:    priority,
		CurrentPriority: priority,
		Shares:          1024,
		CreatedAt:       now,
	}
	h := s.a.Insert(p)
	pid := defs.Pid_t(h)
	pp, _ := s.a.Get(h)
	pp.ID = pid
	return pp
}

/// Get returns the PCB for pid, if live.
func (s *Store) Get(pid defs.Pid_t) (*PCB, bool) {
	return s.a.Get(arena.Handle(pid))
}

/// Remove deletes pid's PCB from the store.
func (s *Store) Remove(pid defs.Pid_t) bool {
	return s.a.Remove(arena.Handle(pid))
}

/// All returns every live process id.
func (s *Store) All() []defs.Pid_t {
	hs := s.a.Live()
	out := make([]defs.Pid_t, len(hs))
	for i, h := range hs {
		out[i] = defs.Pid_t(h)
	}
	return out
}

/// InGroup returns every live process sharing pgid, for group-wide signal
/// delivery (SPEC_FULL.md supplemented feature).
func (s *Store) InGroup(pgid defs.Pid_t) []defs.Pid_t {
	var out []defs.Pid_t
	for _, h := range s.a.Live() {
		p, _ := s.a.Get(h)
		if p.PGID == pgid {
			out = append(out, p.ID)
		}
	}
	return out
}

/// Transition moves p to a new state per the §4.4 matrix.
func (p *PCB) Transition(to defs.State_t, now uint64) error {
	if !defs.CanTransition(p.State, to) {
		return defs.New(defs.InvalidTransition, "proc", p.State.String()+" -> "+to.String())
	}
	p.PrevState = p.State
	p.State = to
	p.LastStateTick = now
	return nil
}

/// Suspend nests exactly like thread.TCB.Suspend (§4.4).
func (p *PCB) Suspend(now uint64) error {
	if p.SuspendDepth == 0 {
		if !defs.CanTransition(p.State, defs.Suspended) {
			return defs.New(defs.InvalidTransition, "proc", p.State.String()+" -> SUSPENDED")
		}
		p.CachedState = p.State
		p.PrevState = p.State
		p.State = defs.Suspended
		p.LastStateTick = now
	}
	p.SuspendDepth++
	return nil
}

/// Resume nests exactly like thread.TCB.Resume (§4.4, §8 scenario 6).
func (p *PCB) Resume(now uint64) error {
	if p.SuspendDepth == 0 {
		return defs.New(defs.InvalidTransition, "proc", "resume with zero suspend depth")
	}
	p.SuspendDepth--
	if p.SuspendDepth == 0 {
		p.PrevState = p.State
		p.State = p.CachedState
		p.LastStateTick = now
	}
	return nil
}

/// Terminate transitions p to Zombie (if it has a living parent) or
/// straight to Terminated, bypassing the ordinary §4.4 matrix: ZOMBIE is
/// reachable only through this dedicated lifecycle operation (§4.10).
func (p *PCB) Terminate(exitCode int, hasParent bool, now uint64) {
	p.ExitCode = exitCode
	p.TerminatedAt = now
	p.PrevState = p.State
	if hasParent {
		p.State = defs.Zombie
	} else {
		p.State = defs.Terminated
	}
	p.LastStateTick = now
}

/// Reap finalizes a Zombie process once its parent has collected the exit
/// code (§4.10: "defer teardown until the parent reads the exit code").
func (p *PCB) Reap(now uint64) error {
	if p.State != defs.Zombie {
		return defs.New(defs.InvalidTransition, "proc", p.State.String()+" -> TERMINATED (reap)")
	}
	p.PrevState = p.State
	p.State = defs.Terminated
	p.LastStateTick = now
	return nil
}
