package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertGetRemove(t *testing.T) {
	a := New[string]()
	h := a.Insert("alpha")

	v, ok := a.Get(h)
	require.True(t, ok)
	require.Equal(t, "alpha", *v)

	require.True(t, a.Remove(h))
	_, ok = a.Get(h)
	require.False(t, ok)
}

func TestStaleHandleAfterReuseIsRejected(t *testing.T) {
	a := New[int]()
	h1 := a.Insert(1)
	require.True(t, a.Remove(h1))

	h2 := a.Insert(2)
	require.Equal(t, h1.Index(), h2.Index())
	require.NotEqual(t, h1.Generation(), h2.Generation())

	_, ok := a.Get(h1)
	require.False(t, ok, "stale handle from before the slot was recycled must not alias the new occupant")

	v, ok := a.Get(h2)
	require.True(t, ok)
	require.Equal(t, 2, *v)
}

func TestLiveAndLen(t *testing.T) {
	a := New[int]()
	h1 := a.Insert(10)
	h2 := a.Insert(20)
	require.Equal(t, 2, a.Len())

	a.Remove(h1)
	require.Equal(t, 1, a.Len())
	require.Equal(t, []Handle{h2}, a.Live())
}
