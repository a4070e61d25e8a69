package proc

import (
	"testing"

	"nanokern/defs"

	"github.com/stretchr/testify/require"
)

func TestTerminateToZombieWhenParentAlive(t *testing.T) {
	s := NewStore()
	p := s.Create(1, "child", 10, defs.PolicyPriority, nil, 0)
	require.NoError(t, p.Transition(defs.Ready, 1))

	p.Terminate(7, true, 2)
	require.Equal(t, defs.Zombie, p.State)
	require.Equal(t, 7, p.ExitCode)
}

func TestTerminateStraightToTerminatedWithoutParent(t *testing.T) {
	s := NewStore()
	p := s.Create(0, "orphan", 10, defs.PolicyPriority, nil, 0)
	p.Terminate(0, false, 1)
	require.Equal(t, defs.Terminated, p.State)
}

func TestReapRequiresZombie(t *testing.T) {
	s := NewStore()
	p := s.Create(1, "child", 10, defs.PolicyPriority, nil, 0)
	err := p.Reap(1)
	require.Error(t, err)

	p.Terminate(0, true, 1)
	require.NoError(t, p.Reap(2))
	require.Equal(t, defs.Terminated, p.State)
}

func TestSuspendNestingMirrorsThread(t *testing.T) {
	s := NewStore()
	p := s.Create(1, "p", 10, defs.PolicyPriority, nil, 0)
	require.NoError(t, p.Transition(defs.Ready, 1))

	require.NoError(t, p.Suspend(2))
	require.NoError(t, p.Suspend(3))
	require.Equal(t, defs.Suspended, p.State)

	require.NoError(t, p.Resume(4))
	require.Equal(t, defs.Suspended, p.State)
	require.NoError(t, p.Resume(5))
	require.Equal(t, defs.Ready, p.State)
}

func TestInGroupFiltersByPGID(t *testing.T) {
	s := NewStore()
	a := s.Create(0, "a", 1, defs.PolicyPriority, nil, 0)
	a.PGID = a.ID
	b := s.Create(0, "b", 1, defs.PolicyPriority, nil, 0)
	b.PGID = a.ID
	c := s.Create(0, "c", 1, defs.PolicyPriority, nil, 0)
	c.PGID = c.ID

	group := s.InGroup(a.ID)
	require.ElementsMatch(t, []defs.Pid_t{a.ID, b.ID}, group)
}
