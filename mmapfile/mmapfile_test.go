package mmapfile

import (
	"testing"

	"nanokern/defs"
	"nanokern/frame"
	"nanokern/fsiface"
	"nanokern/paging"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *paging.Manager, *paging.Directory) {
	t.Helper()
	alloc := frame.New(0x40000, 32)
	pg, err := paging.NewManager(alloc)
	require.NoError(t, err)
	dir, err := pg.CreateDirectory()
	require.NoError(t, err)
	return NewManager(alloc, pg), pg, dir
}

func TestSharedMappingWritesBackOnSync(t *testing.T) {
	m, _, dir := newTestManager(t)
	f := fsiface.NewMemFile(int64(frame.PageSize))
	mp, err := m.Map(1, dir, f, 0, 0x10000, frame.PageSize, defs.MapRead|defs.MapWrite|defs.MapShared)
	require.NoError(t, err)

	require.NoError(t, m.Write(mp, 0, []byte("hello")))
	require.NoError(t, m.Sync(mp))

	out := make([]byte, 5)
	_, err = f.ReadAt(out, 0)
	require.NoError(t, err)
	require.Equal(t, "hello", string(out))
}

func TestPrivateMappingNeverWritesBack(t *testing.T) {
	m, _, dir := newTestManager(t)
	f := fsiface.NewMemFile(int64(frame.PageSize))
	mp, err := m.Map(1, dir, f, 0, 0x10000, frame.PageSize, defs.MapRead|defs.MapWrite|defs.MapPrivate)
	require.NoError(t, err)

	require.NoError(t, m.Write(mp, 0, []byte("hello")))
	require.NoError(t, m.Sync(mp))

	out := make([]byte, 5)
	_, _ = f.ReadAt(out, 0)
	require.NotEqual(t, "hello", string(out))
}

func TestSharedMappingPTEIsNotUserAccessible(t *testing.T) {
	m, pg, dir := newTestManager(t)
	f := fsiface.NewMemFile(int64(frame.PageSize))
	_, err := m.Map(1, dir, f, 0, 0x10000, frame.PageSize, defs.MapRead|defs.MapWrite|defs.MapShared)
	require.NoError(t, err)

	pte, ok := pg.LookupPTE(dir, 0x10000)
	require.True(t, ok)
	require.False(t, pte.User(), "SHARED mappings stay kernel-only, unlike PRIVATE")
}

func TestPrivateMappingPTEIsUserAccessible(t *testing.T) {
	m, pg, dir := newTestManager(t)
	f := fsiface.NewMemFile(int64(frame.PageSize))
	_, err := m.Map(1, dir, f, 0, 0x10000, frame.PageSize, defs.MapRead|defs.MapWrite|defs.MapPrivate)
	require.NoError(t, err)

	pte, ok := pg.LookupPTE(dir, 0x10000)
	require.True(t, ok)
	require.True(t, pte.User())
}

func TestMapRangeExceedingFileSizeFails(t *testing.T) {
	m, _, dir := newTestManager(t)
	f := fsiface.NewMemFile(4)
	_, err := m.Map(1, dir, f, 0, 0x10000, frame.PageSize, defs.MapRead)
	require.Error(t, err)
}

func TestUnmapFreesFramesAndPageTableEntries(t *testing.T) {
	m, pg, dir := newTestManager(t)
	f := fsiface.NewMemFile(int64(frame.PageSize))
	mp, err := m.Map(1, dir, f, 0, 0x20000, frame.PageSize, defs.MapRead|defs.MapWrite)
	require.NoError(t, err)

	_, ok := pg.Lookup(dir, 0x20000)
	require.True(t, ok)

	require.NoError(t, m.Unmap(mp))
	_, ok = pg.Lookup(dir, 0x20000)
	require.False(t, ok)
}

func TestWriteToReadOnlyMappingFails(t *testing.T) {
	m, _, dir := newTestManager(t)
	f := fsiface.NewMemFile(int64(frame.PageSize))
	mp, err := m.Map(1, dir, f, 0, 0x30000, frame.PageSize, defs.MapRead)
	require.NoError(t, err)
	err = m.Write(mp, 0, []byte("x"))
	require.Error(t, err)
}
