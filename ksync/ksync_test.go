package ksync

import (
	"errors"
	"testing"

	"nanokern/defs"

	"github.com/stretchr/testify/require"
)

func TestSemaphoreWaitSignal(t *testing.T) {
	s := NewSemaphore(1, 4)
	require.True(t, s.Wait(1))
	require.False(t, s.Wait(2), "second waiter must block since count is now zero")
	require.Equal(t, []defs.Tid_t{2}, s.Waiters())

	woke, didWake, err := s.Signal()
	require.NoError(t, err)
	require.True(t, didWake)
	require.Equal(t, defs.Tid_t(2), woke)
	require.Zero(t, s.Count())
}

func TestSemaphoreSignalPastMaxOverflows(t *testing.T) {
	s := NewSemaphore(2, 2)
	_, _, err := s.Signal()
	require.True(t, errors.Is(err, defs.Of(defs.OverflowsMax)))
}

func TestMutexExclusionAndHandoff(t *testing.T) {
	m := NewMutex()
	owned, err := m.Lock(1)
	require.NoError(t, err)
	require.True(t, owned)

	owned, err = m.Lock(2)
	require.NoError(t, err)
	require.False(t, owned)

	newOwner, has, err := m.Unlock(1)
	require.NoError(t, err)
	require.True(t, has)
	require.Equal(t, defs.Tid_t(2), newOwner)

	owner, held := m.Owner()
	require.True(t, held)
	require.Equal(t, defs.Tid_t(2), owner)
}

func TestMutexRecursiveLockFails(t *testing.T) {
	m := NewMutex()
	_, err := m.Lock(1)
	require.NoError(t, err)
	_, err = m.Lock(1)
	require.True(t, errors.Is(err, defs.Of(defs.Recursive)))
}

func TestMutexUnlockByNonOwnerFails(t *testing.T) {
	m := NewMutex()
	_, _ = m.Lock(1)
	_, _, err := m.Unlock(2)
	require.True(t, errors.Is(err, defs.Of(defs.NotOwner)))
}

func TestEventWakesAllWaiters(t *testing.T) {
	e := NewEvent(false)
	require.False(t, e.Wait(1))
	require.False(t, e.Wait(2))

	woken := e.Set()
	require.ElementsMatch(t, []defs.Tid_t{1, 2}, woken)
	require.True(t, e.Signalled())

	require.True(t, e.Wait(3), "a thread waiting on an already-signalled event must proceed immediately")
}

func TestEventReset(t *testing.T) {
	e := NewEvent(true)
	require.True(t, e.Wait(1))
	e.Reset()
	require.False(t, e.Wait(2))
}
