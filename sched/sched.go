// Package sched implements the pluggable multi-policy scheduler of
// spec.md §4.5: cooperative, round-robin, priority, MLFQ, fair-share and
// real-time dispatch, all driven by the timer tick.
//
// There is no single teacher file for a multi-policy scheduler — biscuit's
// own scheduler source was filtered out of the retrieval pack by size.
// This package instead generalizes the teacher's accounting idiom
// (biscuit/src/accnt/accnt.go: embedded mutex, explicit tick/time
// bookkeeping, a Now()-style accessor) into the policy-dispatch model
// spec.md §4.5 names, and follows Design Note §9's "stack of inherited
// priorities" and "explicit root context" guidance for how policies are
// plugged in.
package sched

import (
	"sync"

	"nanokern/defs"
	"nanokern/thread"
	"nanokern/waitq"
)

/// Config holds every scheduler tunable named by §6 "Configuration".
type Config struct {
	TickFrequencyHz   uint32
	Quantum           int // round-robin quantum, in ticks
	MLFQLevels        int
	MLFQBaseQuantum   int
	MLFQBoostInterval uint64
	AgingEnabled      bool
	AgingThreshold    uint64 // ticks of wait before current_priority is bumped
	RTSubPolicy       defs.RTSubPolicy_t
	FallbackPolicy    defs.Policy_t // policy RT falls back to when no RT thread is ready
}

/// DefaultConfig returns the configuration named by §6's defaults.
func DefaultConfig() Config {
	return Config{
		TickFrequencyHz:   100,
		Quantum:           10,
		MLFQLevels:        3,
		MLFQBaseQuantum:   10,
		MLFQBoostInterval: 100,
		AgingEnabled:      true,
		AgingThreshold:    50,
		RTSubPolicy:       defs.RTEDF,
		FallbackPolicy:    defs.PolicyPriority,
	}
}

/// SwitchEvent describes one context switch, returned by Dispatch so
/// the kernel package can perform the associated page-directory switch
/// (§4.5 "context switch contract") and bookkeeping.
type SwitchEvent struct {
	Happened bool
	From     defs.Tid_t
	HadFrom  bool
	To       defs.Tid_t
}

/// Scheduler multiplexes the CPU across every Ready thread under the
/// active policy.
type Scheduler struct {
	mu sync.Mutex

	threads *thread.Store
	cfg     Config
	policy  defs.Policy_t

	// cooperative/priority/fair-share scan this arrival-ordered slice and
	// apply their own (selection key, CreatedAt) tie-break (§4.5 Policies;
	// §5 Ordering Guarantees).
	readySet []defs.Tid_t

	rr   *waitq.Queue
	mlfq []*waitq.Queue

	lastBoost uint64

	current    defs.Tid_t
	hasCurrent bool

	idleTicks uint64
}

/// New creates a scheduler over threads under the given policy/config.
func New(threads *thread.Store, policy defs.Policy_t, cfg Config) *Scheduler {
	s := &Scheduler{
		threads: threads,
		cfg:     cfg,
		policy:  policy,
		rr:      waitq.New(),
	}
	s.mlfq = make([]*waitq.Queue, util_max(cfg.MLFQLevels, 1))
	for i := range s.mlfq {
		s.mlfq[i] = waitq.New()
	}
	return s
}

const util_maxInt = int(^uint(0) >> 1)

func util_max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

/// SetPolicy changes the active non-RT dispatch policy. RT threads always
/// take precedence regardless of this setting (§4.5).
func (s *Scheduler) SetPolicy(p defs.Policy_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
}

/// Policy returns the active policy.
func (s *Scheduler) Policy() defs.Policy_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

func (s *Scheduler) sliceFor(t *thread.TCB) int {
	switch s.policy {
	case defs.PolicyCooperative:
		// Cooperative threads are never timer-preempted (§4.5: "otherwise
		// never preempts") — only yield/block trigger a switch, so there
		// is no real slice to exhaust.
		return util_maxInt
	case defs.PolicyRoundRobin:
		return s.cfg.Quantum
	case defs.PolicyMLFQ:
		level := t.MLFQLevel
		if level >= len(s.mlfq) {
			level = len(s.mlfq) - 1
		}
		return s.cfg.MLFQBaseQuantum * (level + 1)
	default:
		return s.cfg.Quantum
	}
}

/// MakeReady transitions tid to Ready (from whatever state it legally can
/// be in; a thread that is already Ready is left as it is) and enqueues it
/// into the structures the active dispatch discipline needs. now is not
/// recorded: order within a ready class is the order of MakeReady calls.
func (s *Scheduler) MakeReady(tid defs.Tid_t, now uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads.Get(tid)
	if !ok {
		return defs.New(defs.NotFound, "sched", "unknown thread")
	}
	if t.State != defs.Ready {
		if err := t.Wake(); err != nil {
			return err
		}
	}
	s.enqueueLocked(t, now)
	return nil
}

// enqueueLocked files t into whichever structure PickNext will later scan.
// A realtime thread always goes into the generic ready set, regardless of
// the active non-RT policy, so it is tracked exactly once and only
// pickRealtimeLocked ever dequeues it (§4.5: "if any RT thread is READY,
// pick among RT threads"); filing it into the active policy's own
// structure too would let it be popped a second time by that policy's
// picker once it is already running.
func (s *Scheduler) enqueueLocked(t *thread.TCB, now uint64) {
	if t.Policy == defs.PolicyRealtime {
		s.readySet = append(s.readySet, t.ID)
		return
	}
	switch s.policy {
	case defs.PolicyRoundRobin:
		s.rr.Push(t.ID)
	case defs.PolicyMLFQ:
		lvl := util_min(t.MLFQLevel, len(s.mlfq)-1)
		s.mlfq[lvl].Push(t.ID)
	default:
		s.readySet = append(s.readySet, t.ID)
	}
}

func util_min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// removeFromSlice deletes tid from the generic ready-set slice, used both
// by the ready-set pickers and by cancellation.
func removeFromSlice(sl []defs.Tid_t, tid defs.Tid_t) []defs.Tid_t {
	for i, v := range sl {
		if v == tid {
			return append(sl[:i], sl[i+1:]...)
		}
	}
	return sl
}

/// PickNext selects the next thread to run under the active discipline,
/// preferring any Ready real-time thread regardless of policy (§4.5:
/// "if any RT thread is READY, pick among RT threads... otherwise fall
/// back to the non-RT active policy").
func (s *Scheduler) PickNext(now uint64) (defs.Tid_t, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tid, ok := s.pickRealtimeLocked(); ok {
		return tid, true
	}

	switch s.policy {
	case defs.PolicyCooperative:
		return s.pickByKeyLocked(func(t *thread.TCB) (int, bool) { return t.Priority, true })
	case defs.PolicyPriority:
		return s.pickByKeyLocked(func(t *thread.TCB) (int, bool) { return t.Priority, true })
	case defs.PolicyFairShare:
		return s.pickFairShareLocked()
	case defs.PolicyRoundRobin:
		tid, ok := s.rr.Pop()
		return tid, ok
	case defs.PolicyMLFQ:
		for lvl := range s.mlfq {
			if tid, ok := s.mlfq[lvl].Pop(); ok {
				return tid, true
			}
		}
		return 0, false
	default:
		return s.pickByKeyLocked(func(t *thread.TCB) (int, bool) { return t.Priority, true })
	}
}

func (s *Scheduler) pickRealtimeLocked() (defs.Tid_t, bool) {
	var best defs.Tid_t
	var bestT *thread.TCB
	found := false
	for _, tid := range s.readySet {
		t, ok := s.threads.Get(tid)
		if !ok || t.Policy != defs.PolicyRealtime || t.State != defs.Ready {
			continue
		}
		if !found {
			best, bestT, found = tid, t, true
			continue
		}
		if rtLess(t, bestT, s.cfg.RTSubPolicy) {
			best, bestT = tid, t
		}
	}
	if !found {
		return 0, false
	}
	s.readySet = removeFromSlice(s.readySet, best)
	return best, true
}

func rtLess(a, b *thread.TCB, sub defs.RTSubPolicy_t) bool {
	switch sub {
	case defs.RTEDF:
		if a.RT.Deadline != b.RT.Deadline {
			return a.RT.Deadline < b.RT.Deadline
		}
	case defs.RTRateMonotonic:
		if a.RT.Period != b.RT.Period {
			return a.RT.Period < b.RT.Period
		}
	case defs.RTRoundRobin:
		// handled by arrival order already (stable scan); fall through
	case defs.RTFifo:
		// handled by arrival order already (stable scan); fall through
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.CreatedAt < b.CreatedAt
}

// pickByKeyLocked scans the generic ready set for the element with the
// smallest (key, CreatedAt) pair, removing and returning it.
func (s *Scheduler) pickByKeyLocked(key func(*thread.TCB) (int, bool)) (defs.Tid_t, bool) {
	var best defs.Tid_t
	var bestKey int
	var bestCreated uint64
	found := false
	for _, tid := range s.readySet {
		t, ok := s.threads.Get(tid)
		if !ok || t.State != defs.Ready {
			continue
		}
		k, use := key(t)
		if !use {
			continue
		}
		if !found || k < bestKey || (k == bestKey && t.CreatedAt < bestCreated) {
			best, bestKey, bestCreated, found = tid, k, t.CreatedAt, true
		}
	}
	if !found {
		return 0, false
	}
	s.readySet = removeFromSlice(s.readySet, best)
	return best, true
}

func (s *Scheduler) pickFairShareLocked() (defs.Tid_t, bool) {
	var best defs.Tid_t
	var bestRatio float64
	var bestT *thread.TCB
	found := false
	for _, tid := range s.readySet {
		t, ok := s.threads.Get(tid)
		if !ok || t.State != defs.Ready {
			continue
		}
		shares := t.Shares
		if shares <= 0 {
			shares = 1024
		}
		ratio := float64(t.CumulativeCPU) / float64(shares)
		if !found || ratio < bestRatio ||
			(ratio == bestRatio && t.Priority < bestT.Priority) ||
			(ratio == bestRatio && t.Priority == bestT.Priority && t.CreatedAt < bestT.CreatedAt) {
			best, bestRatio, bestT, found = tid, ratio, t, true
		}
	}
	if !found {
		return 0, false
	}
	s.readySet = removeFromSlice(s.readySet, best)
	return best, true
}

/// Dispatch marks tid RUNNING, sets its slice, records first-run/response
/// time and returns a SwitchEvent describing the outgoing thread (if any)
/// so the kernel package can perform the page-directory switch (§4.5
/// "context switch contract").
func (s *Scheduler) Dispatch(tid defs.Tid_t, now uint64) (SwitchEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := SwitchEvent{Happened: true, To: tid}
	if s.hasCurrent {
		ev.From, ev.HadFrom = s.current, true
	}

	t, ok := s.threads.Get(tid)
	if !ok {
		return ev, defs.New(defs.NotFound, "sched", "unknown thread")
	}
	if err := t.Transition(defs.Running); err != nil {
		return ev, err
	}
	t.SliceRemaining = s.sliceFor(t)
	if t.FirstRunAt == 0 {
		t.FirstRunAt = now
		t.ResponseTicks = now - t.CreatedAt
	}
	t.LastRunAt = now
	t.ContextSwitches++
	s.current = tid
	s.hasCurrent = true
	return ev, nil
}

/// Current returns the currently running thread, if any.
func (s *Scheduler) Current() (defs.Tid_t, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.hasCurrent
}

/// ClearCurrent forgets the running thread, e.g. because it blocked or
/// terminated without a replacement having been dispatched yet.
func (s *Scheduler) ClearCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasCurrent = false
}

/// RemoveFromReadyStructures forcibly removes tid from whichever ready
/// structure it might be sitting in (§5 cancellation: a terminated
/// thread must be pulled off the scheduler, too).
func (s *Scheduler) RemoveFromReadyStructures(tid defs.Tid_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readySet = removeFromSlice(s.readySet, tid)
	s.rr.Remove(tid)
	for _, q := range s.mlfq {
		q.Remove(tid)
	}
}

/// TickResult reports what OnTick observed, for the kernel package to act
/// on.
type TickResult struct {
	Woken         []defs.Tid_t // Waiting threads whose timeout elapsed
	NeedReschedule bool
}

/// OnTick advances scheduling state by one tick (§4.5): decrements the
/// running thread's slice, ages priorities if configured, wakes timed-out
/// waiters, and reports whether a reschedule is needed.
func (s *Scheduler) OnTick(now uint64) TickResult {
	s.mu.Lock()
	var res TickResult
	needResched := false

	if s.hasCurrent {
		if t, ok := s.threads.Get(s.current); ok {
			t.CumulativeCPU++
			if s.policy != defs.PolicyCooperative {
				t.SliceRemaining--
				if t.SliceRemaining <= 0 {
					if s.policy == defs.PolicyMLFQ {
						t.MLFQLevel = util_min(t.MLFQLevel+1, len(s.mlfq)-1)
					}
					t.Preemptions++
					needResched = true
				}
			}
			if t.State != defs.Running {
				needResched = true
			}
		} else {
			needResched = true
		}
	} else {
		s.idleTicks++
	}

	if s.policy == defs.PolicyMLFQ && now-s.lastBoost >= s.cfg.MLFQBoostInterval {
		s.boostAllLocked()
		s.lastBoost = now
		needResched = true
	}

	if s.cfg.AgingEnabled {
		s.ageLocked(now)
	}

	var woken []defs.Tid_t
	for _, tid := range s.threads.All() {
		t, ok := s.threads.Get(tid)
		if !ok || t.State != defs.Waiting || t.WakeAt == 0 || t.WakeAt > now {
			continue
		}
		woken = append(woken, tid)
	}
	s.mu.Unlock()

	for _, tid := range woken {
		_ = s.MakeReady(tid, now)
	}
	res.Woken = woken
	res.NeedReschedule = needResched || len(woken) > 0
	return res
}

// boostAllLocked promotes every tracked thread back to MLFQ level 0,
// including those presently queued (§4.5 "periodic boost").
func (s *Scheduler) boostAllLocked() {
	merged := waitq.New()
	for _, q := range s.mlfq {
		for _, tid := range q.All() {
			merged.Push(tid)
		}
	}
	for _, tid := range s.threads.All() {
		if t, ok := s.threads.Get(tid); ok {
			t.MLFQLevel = 0
		}
	}
	s.mlfq[0] = merged
	for i := 1; i < len(s.mlfq); i++ {
		s.mlfq[i] = waitq.New()
	}
}

// ageLocked bumps current_priority toward more urgent for any Ready/
// Waiting thread whose wait has exceeded the configured threshold,
// proportional to the overflow, preserving BasePriority for restoration
// (§4.5 "Priority aging").
func (s *Scheduler) ageLocked(now uint64) {
	for _, tid := range s.threads.All() {
		t, ok := s.threads.Get(tid)
		if !ok || (t.State != defs.Ready && t.State != defs.Waiting) {
			continue
		}
		if t.Policy == defs.PolicyRealtime {
			continue // RT threads are never aged (§4.5)
		}
		t.WaitTicks++
		if t.WaitTicks <= s.cfg.AgingThreshold {
			continue
		}
		overflow := t.WaitTicks - s.cfg.AgingThreshold
		boost := int(overflow / util_max64(s.cfg.AgingThreshold, 1))
		if boost <= 0 {
			boost = 1
		}
		newPriority := t.Priority - boost
		if newPriority < 0 {
			newPriority = 0
		}
		if newPriority < t.Priority {
			t.Priority = newPriority
		}
	}
}

func util_max64(a uint64, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

/// ResetWait clears a thread's accumulated wait-ticks counter, called
/// whenever it actually runs so aging measures time-since-last-ran rather
/// than time-since-birth.
func (s *Scheduler) ResetWait(tid defs.Tid_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads.Get(tid); ok {
		t.WaitTicks = 0
	}
}
