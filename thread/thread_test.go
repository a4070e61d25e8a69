package thread

import (
	"testing"

	"nanokern/defs"

	"github.com/stretchr/testify/require"
)

func TestCreateStartsInNew(t *testing.T) {
	s := NewStore()
	tcb := s.Create(1, 10, defs.PolicyPriority, 0x1000, 0x2000, 0x4000, 0)
	require.Equal(t, defs.StateNew, tcb.State)
	require.Equal(t, 10, tcb.Priority)
}

func TestBlockAndWake(t *testing.T) {
	s := NewStore()
	tcb := s.Create(1, 10, defs.PolicyPriority, 0, 0, 0, 0)
	require.NoError(t, tcb.Transition(defs.Ready))
	require.NoError(t, tcb.Transition(defs.Running))

	require.NoError(t, tcb.Block(defs.Waiting, defs.ReasonSemaphore, 100))
	require.Equal(t, defs.Waiting, tcb.State)
	require.Equal(t, defs.ReasonSemaphore, tcb.BlockReason)
	require.Equal(t, uint64(100), tcb.WakeAt)

	require.NoError(t, tcb.Wake())
	require.Equal(t, defs.Ready, tcb.State)
	require.Equal(t, defs.ReasonNone, tcb.BlockReason)
	require.Zero(t, tcb.WakeAt)
}

func TestSuspendNesting(t *testing.T) {
	s := NewStore()
	tcb := s.Create(1, 10, defs.PolicyPriority, 0, 0, 0, 0)
	require.NoError(t, tcb.Transition(defs.Ready))
	require.NoError(t, tcb.Transition(defs.Running))

	require.NoError(t, tcb.Suspend())
	require.Equal(t, defs.Suspended, tcb.State)
	require.NoError(t, tcb.Suspend()) // nested suspend, depth 2
	require.Equal(t, defs.Suspended, tcb.State)

	require.NoError(t, tcb.Resume()) // depth back to 1, still suspended
	require.Equal(t, defs.Suspended, tcb.State)

	require.NoError(t, tcb.Resume()) // depth 0, restores cached RUNNING
	require.Equal(t, defs.Running, tcb.State)
}

func TestResumeWithZeroDepthFails(t *testing.T) {
	s := NewStore()
	tcb := s.Create(1, 10, defs.PolicyPriority, 0, 0, 0, 0)
	err := tcb.Resume()
	require.Error(t, err)
}

func TestInvalidTransitionRejected(t *testing.T) {
	s := NewStore()
	tcb := s.Create(1, 10, defs.PolicyPriority, 0, 0, 0, 0)
	err := tcb.Transition(defs.Running)
	require.Error(t, err)
}

func TestPriorityInheritanceStackPushPop(t *testing.T) {
	s := NewStore()
	tcb := s.Create(1, 20, defs.PolicyPriority, 0, 0, 0, 0)

	tcb.PushInherited(5) // more urgent (smaller), applies
	require.Equal(t, 5, tcb.Priority)

	tcb.PushInherited(10) // less urgent than current borrowed priority, ignored
	require.Equal(t, 5, tcb.Priority)

	tcb.PopInherited()
	require.Equal(t, 20, tcb.Priority)
}
