package shm

import (
	"testing"

	"nanokern/defs"
	"nanokern/frame"

	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	alloc := frame.New(0x20000, 16)
	return NewManager(alloc)
}

func TestCreateAttachDetachLifecycle(t *testing.T) {
	m := newManager(t)
	r, err := m.Create(1, frame.PageSize*2)
	require.NoError(t, err)
	require.Len(t, r.Frames, 2)

	_, err = m.Attach(r.ID, 2)
	require.NoError(t, err)
	require.Equal(t, 1, r.AttachCount())
	require.Equal(t, 1, r.RefCount())

	require.NoError(t, m.Detach(r.ID, 2))
	require.Equal(t, 0, r.AttachCount())
	require.Equal(t, 0, r.RefCount())
	require.Equal(t, 1, m.Count(), "region persists until explicitly removed")
}

func TestAttachCountAndRefCountDiverge(t *testing.T) {
	m := newManager(t)
	r, err := m.Create(1, frame.PageSize)
	require.NoError(t, err)

	_, err = m.Attach(r.ID, 2)
	require.NoError(t, err)
	_, err = m.Attach(r.ID, 2)
	require.NoError(t, err, "the same process may attach the same region more than once")
	_, err = m.Attach(r.ID, 3)
	require.NoError(t, err)

	require.Equal(t, 3, r.AttachCount(), "attach_count counts every Attach call")
	require.Equal(t, 2, r.RefCount(), "ref_count counts distinct attached processes")

	require.NoError(t, m.Detach(r.ID, 2))
	require.Equal(t, 2, r.AttachCount())
	require.Equal(t, 2, r.RefCount(), "pid 2 still has one outstanding attach")

	require.NoError(t, m.Detach(r.ID, 2))
	require.Equal(t, 1, r.AttachCount())
	require.Equal(t, 1, r.RefCount(), "pid 2's last detach drops it from the ref set")

	require.NoError(t, m.Detach(r.ID, 3))
	require.Equal(t, 0, r.AttachCount())
	require.Equal(t, 0, r.RefCount())
}

func TestRemoveDefersDestructionUntilLastDetach(t *testing.T) {
	m := newManager(t)
	r, err := m.Create(1, frame.PageSize)
	require.NoError(t, err)
	_, err = m.Attach(r.ID, 2)
	require.NoError(t, err)

	require.NoError(t, m.Remove(r.ID))
	require.True(t, r.MarkedForDeletion())
	require.Equal(t, 1, m.Count(), "still attached, so the region is not yet destroyed")

	_, err = m.Attach(r.ID, 3)
	require.Error(t, err, "a region marked for deletion rejects new attaches")

	require.NoError(t, m.Detach(r.ID, 2))
	require.Equal(t, 0, m.Count(), "last detach after mark-for-deletion sweeps the region")
}

func TestRemoveWithNoAttachersDestroysImmediately(t *testing.T) {
	m := newManager(t)
	r, err := m.Create(1, frame.PageSize)
	require.NoError(t, err)
	require.NoError(t, m.Remove(r.ID))
	require.Equal(t, 0, m.Count())
}

func TestDetachWithZeroAttachCountFails(t *testing.T) {
	m := newManager(t)
	r, err := m.Create(1, frame.PageSize)
	require.NoError(t, err)
	err = m.Detach(r.ID, defs.Pid_t(2))
	require.Error(t, err)
}
