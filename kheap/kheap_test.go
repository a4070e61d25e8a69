package kheap

import (
	"errors"
	"testing"

	"nanokern/defs"

	"github.com/stretchr/testify/require"
)

func TestAllocateFreeCoalesces(t *testing.T) {
	h := New(0x1000, 0x100)
	a, err := h.Allocate(0x10)
	require.NoError(t, err)
	b, err := h.Allocate(0x10)
	require.NoError(t, err)

	require.NoError(t, h.Free(a))
	require.NoError(t, h.Free(b))

	// After freeing both neighbors, the whole region should have coalesced
	// back into a single free block.
	blocks := h.Blocks()
	require.Len(t, blocks, 1)
	require.True(t, blocks[0].Free)
	require.Equal(t, uintptr(0x100), blocks[0].Size)
}

func TestZeroSizeAllocationRejected(t *testing.T) {
	h := New(0x1000, 0x100)
	_, err := h.Allocate(0)
	require.True(t, errors.Is(err, defs.Of(defs.InvalidArgument)))
}

func TestDoubleFreeFails(t *testing.T) {
	h := New(0x1000, 0x100)
	a, err := h.Allocate(0x10)
	require.NoError(t, err)
	require.NoError(t, h.Free(a))
	err = h.Free(a)
	require.True(t, errors.Is(err, defs.Of(defs.Fatal)))
}

func TestOutOfMemory(t *testing.T) {
	h := New(0x1000, 0x20)
	_, err := h.Allocate(0x40)
	require.True(t, errors.Is(err, defs.Of(defs.OutOfMemory)))
}

func TestAllocateAlignedReturnsAlignedAddress(t *testing.T) {
	h := New(0x1003, 0x200)
	addr, err := h.AllocateAligned(0x20, 0x40)
	require.NoError(t, err)
	require.Zero(t, addr%0x40)
}

func TestAllocateAlignedRejectsNonPowerOfTwo(t *testing.T) {
	h := New(0x1000, 0x100)
	_, err := h.AllocateAligned(0x10, 3)
	require.True(t, errors.Is(err, defs.Of(defs.InvalidArgument)))
}
