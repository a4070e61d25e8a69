package defs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransitionMatrix(t *testing.T) {
	require.True(t, CanTransition(StateNew, Ready))
	require.True(t, CanTransition(Running, Waiting))
	require.True(t, CanTransition(Suspended, Ready))
	require.False(t, CanTransition(StateNew, Running))
	require.False(t, CanTransition(Waiting, Running))
	require.False(t, CanTransition(Terminated, Ready))
}

func TestZombieUnreachableThroughTransition(t *testing.T) {
	for s := StateNew; s <= Terminated; s++ {
		require.False(t, CanTransition(s, Zombie), "state %s must never transition to ZOMBIE generically", s)
	}
}

func TestKErrorIsMatchesKindAndComponent(t *testing.T) {
	err := New(NotFound, "sched", "unknown thread")
	require.True(t, errors.Is(err, Of(NotFound)))
	require.True(t, errors.Is(err, New(NotFound, "sched", "")))
	require.False(t, errors.Is(err, New(NotFound, "paging", "")))
	require.False(t, errors.Is(err, Of(OutOfMemory)))
}

func TestKErrorMessage(t *testing.T) {
	err := New(Fatal, "frame", "double free")
	require.Equal(t, "frame: Fatal: double free", err.Error())
}
