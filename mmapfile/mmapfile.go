// Package mmapfile implements memory-mapped files (spec.md §4.9): a file
// region is paged in as a run of frames sharing (SHARED) or not sharing
// (PRIVATE) their write-back to the backing file, synced on demand or on
// unmap, with the whole setup rolled back if any step fails partway.
//
// Grounded on biscuit/src/vm/as.go's Vm_t address-space bookkeeping
// (a per-mapping record kept alongside the page directory) and
// original_source/kernel/Kernel/MemoryMappedFile.h's Map/Sync/Unmap
// operation set and SHARED/PRIVATE distinction. Because paging.Manager
// only simulates frame *identity* (see paging.go's doc comment), the
// actual page bytes a mapping reads and writes are held here in a
// per-frame buffer table, the same way paging.Manager keeps a
// map[frame.Addr]*pageTable registry to simulate table memory.
package mmapfile

import (
	"sync"

	"nanokern/defs"
	"nanokern/frame"
	"nanokern/fsiface"
	"nanokern/paging"
)

/// Id_t identifies one active mapping.
type Id_t uint32

/// Mapping is one active memory-mapped file region.
type Mapping struct {
	ID         Id_t
	Pid        defs.Pid_t
	File       fsiface.File
	FileOffset int64
	VirtBase   uintptr
	Length     int
	Flags      defs.MapFlag_t

	dir    *paging.Directory
	frames []frame.Addr
	dirty  []bool
}

/// Shared reports whether this mapping writes back to its file.
func (m *Mapping) Shared() bool {
	return m.Flags&defs.MapShared != 0
}

/// Manager owns every active mapping, the frames backing them and the
/// page-sized buffers simulating their contents.
type Manager struct {
	mu      sync.Mutex
	frames  *frame.Allocator
	paging  *paging.Manager
	buffers map[frame.Addr][]byte
	mapping map[Id_t]*Mapping
	nextID  Id_t
}

/// NewManager creates a mapping manager over the given frame allocator and
/// page table manager.
func NewManager(alloc *frame.Allocator, pg *paging.Manager) *Manager {
	return &Manager{
		frames:  alloc,
		paging:  pg,
		buffers: make(map[frame.Addr][]byte),
		mapping: make(map[Id_t]*Mapping),
	}
}

/// Map pages in length bytes of file starting at fileOffset, at virtBase in
/// dir, with the given flags. Any failure partway (out of frames, a
/// virtual page already mapped) rolls back every frame allocated and page
/// mapped so far (§4.9 "a failed map leaves no partial state behind").
func (m *Manager) Map(pid defs.Pid_t, dir *paging.Directory, file fsiface.File, fileOffset int64, virtBase uintptr, length int, flags defs.MapFlag_t) (*Mapping, error) {
	if length <= 0 {
		return nil, defs.New(defs.InvalidArgument, "mmapfile", "zero-length mapping")
	}
	size, err := file.Size()
	if err != nil {
		return nil, err
	}
	if fileOffset < 0 || fileOffset+int64(length) > size {
		return nil, defs.New(defs.InvalidArgument, "mmapfile", "range exceeds file size")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pages := (length + frame.PageSize - 1) / frame.PageSize
	mp := &Mapping{
		Pid: pid, File: file, FileOffset: fileOffset,
		VirtBase: virtBase, Length: length, Flags: flags, dir: dir,
	}

	// USER is set iff the mapping is PRIVATE; SHARED mappings stay
	// kernel-only, per original_source/kernel/Kernel/MemoryMappedFile.cpp's
	// `if (flags & MAP_PRIVATE) page_flags |= PAGE_USER;` (§4.9 step 2).
	pageFlags := defs.PtePresent
	if flags&defs.MapPrivate != 0 {
		pageFlags |= defs.PteUser
	}
	if flags&defs.MapWrite != 0 {
		pageFlags |= defs.PteWritable
	}

	for i := 0; i < pages; i++ {
		addr, aerr := m.frames.Allocate()
		if aerr != nil {
			m.rollbackLocked(mp)
			return nil, aerr
		}
		buf := make([]byte, frame.PageSize)
		off := fileOffset + int64(i*frame.PageSize)
		n, _ := file.ReadAt(buf, off)
		_ = n // a short read at EOF just leaves the tail zero-filled

		virt := virtBase + uintptr(i*frame.PageSize)
		if merr := m.paging.Map(dir, virt, addr, pageFlags, flags&defs.MapFixed != 0); merr != nil {
			_ = m.frames.Free(addr)
			m.rollbackLocked(mp)
			return nil, merr
		}
		m.buffers[addr] = buf
		mp.frames = append(mp.frames, addr)
		mp.dirty = append(mp.dirty, false)
	}

	m.nextID++
	mp.ID = m.nextID
	m.mapping[mp.ID] = mp
	return mp, nil
}

// rollbackLocked undoes every frame/page already committed to mp before a
// failure aborted the rest of the setup.
func (m *Manager) rollbackLocked(mp *Mapping) {
	for i, addr := range mp.frames {
		virt := mp.VirtBase + uintptr(i*frame.PageSize)
		_, _ = m.paging.Unmap(mp.dir, virt)
		delete(m.buffers, addr)
		_ = m.frames.Free(addr)
	}
	mp.frames = nil
	mp.dirty = nil
}

/// Write stores data at byteOffset within the mapping (offset relative to
/// VirtBase, not the file) and marks the touched pages dirty. Only valid
/// if the mapping was opened MapWrite.
func (m *Manager) Write(mp *Mapping, byteOffset int, data []byte) error {
	if mp.Flags&defs.MapWrite == 0 {
		return defs.New(defs.NotOwner, "mmapfile", "mapping is read-only")
	}
	if byteOffset < 0 || byteOffset+len(data) > mp.Length {
		return defs.New(defs.InvalidArgument, "mmapfile", "write exceeds mapping length")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining := data
	pos := byteOffset
	for len(remaining) > 0 {
		page := pos / frame.PageSize
		inPage := pos % frame.PageSize
		n := frame.PageSize - inPage
		if n > len(remaining) {
			n = len(remaining)
		}
		addr := mp.frames[page]
		copy(m.buffers[addr][inPage:inPage+n], remaining[:n])
		mp.dirty[page] = true
		remaining = remaining[n:]
		pos += n
	}
	return nil
}

/// Read copies byteOffset..+len(out) from the mapping's buffered pages
/// into out.
func (m *Manager) Read(mp *Mapping, byteOffset int, out []byte) error {
	if byteOffset < 0 || byteOffset+len(out) > mp.Length {
		return defs.New(defs.InvalidArgument, "mmapfile", "read exceeds mapping length")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining := out
	pos := byteOffset
	for len(remaining) > 0 {
		page := pos / frame.PageSize
		inPage := pos % frame.PageSize
		n := frame.PageSize - inPage
		if n > len(remaining) {
			n = len(remaining)
		}
		addr := mp.frames[page]
		copy(remaining[:n], m.buffers[addr][inPage:inPage+n])
		remaining = remaining[n:]
		pos += n
	}
	return nil
}

/// Sync writes every dirty page back to the backing file if the mapping
/// is SHARED, then clears the dirty bits. A PRIVATE mapping never writes
/// back (§4.9); Sync is a no-op for it.
func (m *Manager) Sync(mp *Mapping) error {
	if !mp.Shared() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncLocked(mp)
}

func (m *Manager) syncLocked(mp *Mapping) error {
	for i, addr := range mp.frames {
		if !mp.dirty[i] {
			continue
		}
		off := mp.FileOffset + int64(i*frame.PageSize)
		if _, err := mp.File.WriteAt(m.buffers[addr], off); err != nil {
			return err
		}
		mp.dirty[i] = false
	}
	return mp.File.Sync()
}

/// Unmap tears the mapping down: SHARED mappings are synced first, then
/// every page is unmapped and its frame freed (§4.9).
func (m *Manager) Unmap(mp *Mapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mp.Shared() {
		if err := m.syncLocked(mp); err != nil {
			return err
		}
	}
	for i, addr := range mp.frames {
		virt := mp.VirtBase + uintptr(i*frame.PageSize)
		if _, err := m.paging.Unmap(mp.dir, virt); err != nil {
			return err
		}
		delete(m.buffers, addr)
		if err := m.frames.Free(addr); err != nil {
			return err
		}
	}
	delete(m.mapping, mp.ID)
	return nil
}

/// Get returns the mapping for id, if active.
func (m *Manager) Get(id Id_t) (*Mapping, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, ok := m.mapping[id]
	return mp, ok
}
