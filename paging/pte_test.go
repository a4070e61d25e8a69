package paging

import (
	"testing"

	"nanokern/frame"

	"github.com/stretchr/testify/require"
)

func TestPTERoundTrip(t *testing.T) {
	addr := frame.Addr(0x1234000)
	p := EncodePTE(addr, true, true, false, true, false)

	require.True(t, p.Present())
	require.True(t, p.Writable())
	require.False(t, p.User())
	require.True(t, p.WriteThrough())
	require.False(t, p.CacheDisable())
	require.Equal(t, addr, p.Frame())

	p2 := EncodePTE(p.Frame(), p.Present(), p.Writable(), p.User(), p.WriteThrough(), p.CacheDisable())
	require.Equal(t, p, p2)
}

func TestAccessedDirtyBits(t *testing.T) {
	p := EncodePTE(0x2000, true, true, true, false, false)
	require.False(t, p.Accessed())
	require.False(t, p.Dirty())

	p = p.SetAccessed()
	require.True(t, p.Accessed())
	require.False(t, p.Dirty())

	p = p.SetDirty()
	require.True(t, p.Dirty())
	require.True(t, p.Accessed())
}

func TestWithFramePreservesFlags(t *testing.T) {
	p := EncodePTE(0x3000, true, true, true, true, true).SetDirty()
	p2 := p.WithFrame(0x9000)
	require.Equal(t, frame.Addr(0x9000), p2.Frame())
	require.Equal(t, p.Present(), p2.Present())
	require.Equal(t, p.Writable(), p2.Writable())
	require.Equal(t, p.Dirty(), p2.Dirty())
}
