// Package thread implements the Thread Control Block (TCB) record and
// store of spec.md §3/§4.4: the schedulable unit that shares its owning
// process's address space.
//
// Grounded on biscuit/src/tinfo/tinfo.go's Tnote_t/Threadinfo_t (per-thread
// liveness/kill state kept in an owning table) and
// biscuit/src/caller/caller.go's register-dump-adjacent bookkeeping,
// restructured onto the arena package per Design Note §9.
package thread

import (
	"nanokern/arena"
	"nanokern/defs"
)

/// RTParams_t carries the real-time scheduling parameters named on the PCB
/// by §3 and reused here since RT admission/dispatch (§4.5, the Realtime
/// sub-policies) operates per-thread.
type RTParams_t struct {
	SubPolicy   defs.RTSubPolicy_t
	Deadline    uint64 // absolute tick deadline, for EDF
	Period      uint64 // ticks, for rate-monotonic and utilization admission
	WCET        uint64 // worst-case execution time, ticks
	Budget      uint64 // ticks remaining in the current period
	Criticality int
}

/// TCB is the thread control block (§3).
type TCB struct {
	ID  defs.Tid_t
	Pid defs.Pid_t

	// LocalID is this thread's ordinal within its owning process (the
	// main thread is 1, the next thread created in that process is 2,
	// and so on) — distinct from ID, which is a kernel-wide handle.
	// Assigned by the kernel at creation time (§4.10: "thread id within
	// process starts at 1").
	LocalID int

	State     defs.State_t
	PrevState defs.State_t

	// BlockReason/WakeAt describe why and until-when a WAITING/BLOCKED
	// thread is off the ready set (§4.4 "Blocking").
	BlockReason defs.BlockReason_t
	WakeAt      uint64 // 0 means no timeout

	// Suspension nesting (§4.4 "Suspension counting").
	SuspendDepth  int
	CachedState   defs.State_t

	Policy   defs.Policy_t
	Priority int // current_priority: smaller is more urgent
	BasePriority int
	// inherited is a stack of priorities this thread's mutex-holding has
	// borrowed from blocked higher-priority waiters (Design Note §9:
	// "priority-inheritance... becomes a stack of inherited priorities on
	// each thread; unlock pops").
	inherited []int

	MLFQLevel int
	Shares    int // CPU-shares weight for the fair-share policy; default 1024

	SliceRemaining int
	CumulativeCPU  uint64 // ticks of CPU time ever received
	WaitTicks      uint64 // ticks spent READY/WAITING, not yet RUNNING
	CreatedAt      uint64
	FirstRunAt     uint64 // 0 until the thread has run once
	ResponseTicks  uint64 // FirstRunAt - CreatedAt, computed once
	LastRunAt      uint64

	Preemptions     uint64
	Yields          uint64
	ContextSwitches uint64

	RT RTParams_t

	StackBase uintptr
	StackSize uintptr
	IP        uintptr
	Regs      [16]uint64 // opaque saved register file

	TLS uintptr
}

/// Store owns every TCB in the system.
type Store struct {
	a *arena.Arena[TCB]
}

/// NewStore creates an empty thread store.
func NewStore() *Store {
	return &Store{a: arena.New[TCB]()}
}

/// Create inserts a new TCB in state New and returns its id. now is the
/// current tick, used as CreatedAt for scheduler tie-breaking.
func (s *Store) Create(pid defs.Pid_t, priority int, policy defs.Policy_t, stackBase, stackSize uintptr, entry uintptr, now uint64) *TCB {
	t := TCB{
		Pid:          pid,
		State:        defs.StateNew,
		PrevState:    defs.StateNew,
		Policy:       policy,
		Priority:     priority,
		BasePriority: priority,
		Shares:       1024,
		StackBase:    stackBase,
		StackSize:    stackSize,
		IP:           entry,
		CreatedAt:    now,
	}
	h := s.a.Insert(t)
	tid := defs.Tid_t(h)
	tp, _ := s.a.Get(h)
	tp.ID = tid
	return tp
}

/// Get returns the TCB for tid, if live.
func (s *Store) Get(tid defs.Tid_t) (*TCB, bool) {
	return s.a.Get(arena.Handle(tid))
}

/// Remove deletes tid's TCB from the store.
func (s *Store) Remove(tid defs.Tid_t) bool {
	return s.a.Remove(arena.Handle(tid))
}

/// All returns the ids of every live thread.
func (s *Store) All() []defs.Tid_t {
	hs := s.a.Live()
	out := make([]defs.Tid_t, len(hs))
	for i, h := range hs {
		out[i] = defs.Tid_t(h)
	}
	return out
}

/// Transition moves t from its current state to to, following the §4.4
/// matrix. InvalidTransition is returned for anything the matrix forbids.
func (t *TCB) Transition(to defs.State_t) error {
	if !defs.CanTransition(t.State, to) {
		return defs.New(defs.InvalidTransition, "thread", t.State.String()+" -> "+to.String())
	}
	t.PrevState = t.State
	t.State = to
	return nil
}

/// Block transitions t to Waiting or Blocked and records why, optionally
/// with a wake-at tick for timeouts (§4.4).
func (t *TCB) Block(to defs.State_t, reason defs.BlockReason_t, wakeAt uint64) error {
	if to != defs.Waiting && to != defs.Blocked {
		return defs.New(defs.InvalidArgument, "thread", "Block target must be Waiting or Blocked")
	}
	if err := t.Transition(to); err != nil {
		return err
	}
	t.BlockReason = reason
	t.WakeAt = wakeAt
	return nil
}

/// Wake transitions a Waiting/Blocked thread back to Ready and clears its
/// blocking reason and timeout.
func (t *TCB) Wake() error {
	if err := t.Transition(defs.Ready); err != nil {
		return err
	}
	t.BlockReason = defs.ReasonNone
	t.WakeAt = 0
	return nil
}

/// Suspend nests: the first call caches the pre-suspend state and moves t
/// to Suspended; each further call only increments the depth counter
/// (§4.4 "Suspension counting").
func (t *TCB) Suspend() error {
	if t.SuspendDepth == 0 {
		if !defs.CanTransition(t.State, defs.Suspended) {
			return defs.New(defs.InvalidTransition, "thread", t.State.String()+" -> SUSPENDED")
		}
		t.CachedState = t.State
		t.PrevState = t.State
		t.State = defs.Suspended
	}
	t.SuspendDepth++
	return nil
}

/// Resume decrements the suspend depth and, only once it reaches zero,
/// restores the cached pre-suspend state. Resuming a thread whose depth is
/// already zero fails with InvalidTransition (§4.4, §8 scenario 6).
func (t *TCB) Resume() error {
	if t.SuspendDepth == 0 {
		return defs.New(defs.InvalidTransition, "thread", "resume with zero suspend depth")
	}
	t.SuspendDepth--
	if t.SuspendDepth == 0 {
		t.PrevState = t.State
		t.State = t.CachedState
	}
	return nil
}

/// PushInherited records a borrowed priority from a higher-priority
/// blocker (numerically smaller is more urgent) and applies it as the
/// current priority if it is more urgent than what t already has (§4.5
/// priority inheritance, transitively applied). Reports whether a new
/// revert point was recorded, so a caller tracking one inheritance
/// episode per held resource knows whether a matching PopInherited is
/// owed.
func (t *TCB) PushInherited(priority int) bool {
	if priority >= t.Priority {
		return false
	}
	t.inherited = append(t.inherited, t.Priority)
	t.Priority = priority
	return true
}

/// Tighten lowers t's current priority further if priority is more
/// urgent, without recording a new revert point. Used when a thread is
/// boosted a second time while still within the same inheritance episode
/// (e.g. a second, higher-priority waiter joins behind a mutex it
/// already inherited through): only one PopInherited should undo a
/// single held resource's worth of boosting.
func (t *TCB) Tighten(priority int) {
	if priority < t.Priority {
		t.Priority = priority
	}
}

/// PopInherited reverts the most recent borrowed priority. Called when the
/// mutex that triggered the inheritance is released.
func (t *TCB) PopInherited() {
	n := len(t.inherited)
	if n == 0 {
		return
	}
	t.Priority = t.inherited[n-1]
	t.inherited = t.inherited[:n-1]
}
