package waitq

import (
	"testing"

	"nanokern/defs"

	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	q := New()
	q.Push(1)
	q.Push(2)
	q.Push(3)

	tid, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, defs.Tid_t(1), tid)

	tid, ok = q.Peek()
	require.True(t, ok)
	require.Equal(t, defs.Tid_t(2), tid)
	require.Equal(t, 2, q.Len())
}

func TestRemoveFromMiddle(t *testing.T) {
	q := New()
	q.Push(1)
	q.Push(2)
	q.Push(3)
	require.True(t, q.Remove(2))
	require.Equal(t, []defs.Tid_t{1, 3}, q.All())
	require.False(t, q.Remove(2))
}

func TestEmpty(t *testing.T) {
	q := New()
	require.True(t, q.Empty())
	_, ok := q.Pop()
	require.False(t, ok)
}
