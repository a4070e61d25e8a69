package sched

import (
	"testing"

	"nanokern/defs"
	"nanokern/thread"

	"github.com/stretchr/testify/require"
)

func setupThreads(store *thread.Store, n int, policy defs.Policy_t) []defs.Tid_t {
	ids := make([]defs.Tid_t, n)
	for i := 0; i < n; i++ {
		tcb := store.Create(1, 10, policy, 0, 0, 0, uint64(i))
		_ = tcb.Transition(defs.Ready)
		ids[i] = tcb.ID
	}
	return ids
}

func TestPriorityPolicyPicksMostUrgentThenOldest(t *testing.T) {
	store := thread.NewStore()
	a := store.Create(1, 5, defs.PolicyPriority, 0, 0, 0, 0)
	_ = a.Transition(defs.Ready)
	b := store.Create(1, 1, defs.PolicyPriority, 0, 0, 0, 1)
	_ = b.Transition(defs.Ready)
	c := store.Create(1, 1, defs.PolicyPriority, 0, 0, 0, 2)
	_ = c.Transition(defs.Ready)

	s := New(store, defs.PolicyPriority, DefaultConfig())
	require.NoError(t, s.MakeReady(a.ID, 0))
	require.NoError(t, s.MakeReady(b.ID, 0))
	require.NoError(t, s.MakeReady(c.ID, 0))

	tid, ok := s.PickNext(0)
	require.True(t, ok)
	require.Equal(t, b.ID, tid, "equal priority 1 ties broken by oldest creation time")
}

func TestRoundRobinIsFIFO(t *testing.T) {
	store := thread.NewStore()
	ids := setupThreads(store, 3, defs.PolicyRoundRobin)
	s := New(store, defs.PolicyRoundRobin, DefaultConfig())
	for _, id := range ids {
		require.NoError(t, s.MakeReady(id, 0))
	}
	for _, want := range ids {
		got, ok := s.PickNext(0)
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

func TestCooperativeThreadNeverTimerPreempted(t *testing.T) {
	store := thread.NewStore()
	tcb := store.Create(1, 10, defs.PolicyCooperative, 0, 0, 0, 0)
	_ = tcb.Transition(defs.Ready)

	s := New(store, defs.PolicyCooperative, DefaultConfig())
	require.NoError(t, s.MakeReady(tcb.ID, 0))

	tid, ok := s.PickNext(0)
	require.True(t, ok)
	_, err := s.Dispatch(tid, 0)
	require.NoError(t, err)

	for i := uint64(1); i <= 10_000; i++ {
		res := s.OnTick(i)
		require.False(t, res.NeedReschedule, "a cooperative thread only yields or blocks, never a timer tick")
	}
}

func TestMLFQDemotesOnSliceExhaustion(t *testing.T) {
	store := thread.NewStore()
	tcb := store.Create(1, 10, defs.PolicyMLFQ, 0, 0, 0, 0)
	_ = tcb.Transition(defs.Ready)

	cfg := DefaultConfig()
	cfg.MLFQBaseQuantum = 1
	s := New(store, defs.PolicyMLFQ, cfg)
	require.NoError(t, s.MakeReady(tcb.ID, 0))

	tid, ok := s.PickNext(0)
	require.True(t, ok)
	_, err := s.Dispatch(tid, 0)
	require.NoError(t, err)
	require.Equal(t, 0, tcb.MLFQLevel)

	res := s.OnTick(1)
	require.True(t, res.NeedReschedule)
	require.Equal(t, 1, tcb.MLFQLevel, "exhausting its slice demotes the thread one MLFQ level")
}

func TestMLFQBoostResetsLevels(t *testing.T) {
	store := thread.NewStore()
	tcb := store.Create(1, 10, defs.PolicyMLFQ, 0, 0, 0, 0)
	tcb.MLFQLevel = 2
	_ = tcb.Transition(defs.Ready)

	cfg := DefaultConfig()
	cfg.MLFQBoostInterval = 5
	s := New(store, defs.PolicyMLFQ, cfg)
	require.NoError(t, s.MakeReady(tcb.ID, 0))

	s.OnTick(5)
	require.Equal(t, 0, tcb.MLFQLevel, "periodic boost resets every thread to level 0")
}

func TestRealtimeThreadPreemptsNonRTPolicy(t *testing.T) {
	store := thread.NewStore()
	normal := store.Create(1, 1, defs.PolicyPriority, 0, 0, 0, 0)
	_ = normal.Transition(defs.Ready)
	rt := store.Create(1, 50, defs.PolicyRealtime, 0, 0, 0, 1)
	rt.RT.Deadline = 10
	_ = rt.Transition(defs.Ready)

	s := New(store, defs.PolicyPriority, DefaultConfig())
	require.NoError(t, s.MakeReady(normal.ID, 0))
	require.NoError(t, s.MakeReady(rt.ID, 0))

	tid, ok := s.PickNext(0)
	require.True(t, ok)
	require.Equal(t, rt.ID, tid, "an RT-ready thread always wins over the active non-RT policy")
}

func TestAgingBoostsLongWaitingThread(t *testing.T) {
	store := thread.NewStore()
	tcb := store.Create(1, 20, defs.PolicyPriority, 0, 0, 0, 0)
	_ = tcb.Transition(defs.Ready)

	cfg := DefaultConfig()
	cfg.AgingThreshold = 2
	s := New(store, defs.PolicyPriority, cfg)
	require.NoError(t, s.MakeReady(tcb.ID, 0))

	for i := uint64(1); i <= 4; i++ {
		s.OnTick(i)
	}
	require.Less(t, tcb.Priority, 20, "a thread waiting past the aging threshold becomes more urgent")
}
