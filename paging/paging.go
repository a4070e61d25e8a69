// Package paging implements the two-level x86-style page tables of
// spec.md §4.2: 4 KiB pages, 1024 entries per table and per directory.
//
// Grounded on biscuit/src/vm/as.go's Vm_t (per-address-space mutex guarding
// the pmap, Lock_pmap/Lockassert_pmap idiom) and on
// original_source/kernel/Kernel/Paging.h for the exact operation set
// (CreatePageDirectory/SwitchPageDirectory/MapPage/UnmapPage/
// GetPhysicalAddress/CopyPageDirectory). Because nanokern is not a real
// MMU driver, "physical memory" is the frame.Allocator's bookkeeping and a
// page table's "contents" are the entries array kept alongside its
// allocated frame in the Manager's table registry — the frame exists for
// accounting and ownership purposes (so double-free and
// frame-still-in-use invariants hold) even though no raw bytes are pushed
// through it.
package paging

import (
	"sync"

	"nanokern/defs"
	"nanokern/frame"
)

const entries = 1024

// offsetBits/tableBits (and dirIndexShift, their sum) split a 32-bit
// virtual address into (directory index, table index, page offset):
// 10+10+12 bits.
const offsetBits = 12
const tableBits = 10
const dirIndexShift = offsetBits + tableBits

// kernelDirStart is the first directory index considered part of the
// shared kernel mapping; every process directory carries identical PTEs
// at and above this index (§4.2: "clones the kernel mapping into it so
// every user process sees the same kernel virtual range").
const kernelDirStart = 768

type pageTable struct {
	entries [entries]PTE
}

/// Directory is a process (or the kernel's) top-level page directory.
type Directory struct {
	ID      frame.Addr
	entries [entries]PTE
}

/// Manager owns every directory and page table frame in the system plus
/// the notion of the currently active directory (§4.2, invariant 6: "the
/// currently running thread's page directory is the directory the MMU is
/// using").
type Manager struct {
	mu sync.Mutex

	alloc *frame.Allocator

	tables map[frame.Addr]*pageTable
	dirs   map[frame.Addr]*Directory

	kernel  *Directory
	current *Directory
}

/// NewManager creates a paging manager backed by alloc and establishes the
/// initial kernel directory.
func NewManager(alloc *frame.Allocator) (*Manager, error) {
	m := &Manager{
		alloc:  alloc,
		tables: make(map[frame.Addr]*pageTable),
		dirs:   make(map[frame.Addr]*Directory),
	}
	kd, err := m.newEmptyDirectory()
	if err != nil {
		return nil, err
	}
	m.kernel = kd
	m.current = kd
	return m, nil
}

func (m *Manager) newEmptyDirectory() (*Directory, error) {
	addr, err := m.alloc.Allocate()
	if err != nil {
		return nil, defs.New(defs.OutOfMemory, "paging", "no frame for directory")
	}
	d := &Directory{ID: addr}
	m.dirs[addr] = d
	return d, nil
}

/// Kernel returns the kernel's own directory (used as the clone source for
/// CreateDirectory and as the initial "current" directory at boot).
func (m *Manager) Kernel() *Directory {
	return m.kernel
}

/// Current returns the directory the (simulated) MMU is presently using.
func (m *Manager) Current() *Directory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

/// CreateDirectory allocates a directory and clones the kernel mapping
/// into it, so every user process sees the same kernel virtual range
/// (§4.2).
func (m *Manager) CreateDirectory() (*Directory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.newEmptyDirectory()
	if err != nil {
		return nil, err
	}
	for i := kernelDirStart; i < entries; i++ {
		d.entries[i] = m.kernel.entries[i]
	}
	return d, nil
}

/// SwitchDirectory loads d as the active directory, as if writing the
/// MMU's directory-base register. Only the scheduler should call this, and
/// only at context-switch points (§5).
func (m *Manager) SwitchDirectory(d *Directory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = d
}

func splitVirt(virt uintptr) (dirIdx, tblIdx uint32) {
	dirIdx = uint32((virt >> dirIndexShift) & (entries - 1))
	tblIdx = uint32((virt >> offsetBits) & (entries - 1))
	return
}

func flagsToPTE(addr frame.Addr, flags defs.PageFlag_t) PTE {
	return EncodePTE(addr,
		flags&defs.PtePresent != 0,
		flags&defs.PteWritable != 0,
		flags&defs.PteUser != 0,
		flags&defs.PteWriteThrough != 0,
		flags&defs.PteCacheDisable != 0,
	)
}

func (m *Manager) tableFor(d *Directory, dirIdx uint32, create bool) (*pageTable, error) {
	pde := d.entries[dirIdx]
	if pde.Present() {
		return m.tables[pde.Frame()], nil
	}
	if !create {
		return nil, nil
	}
	addr, err := m.alloc.Allocate()
	if err != nil {
		return nil, defs.New(defs.OutOfMemory, "paging", "no frame for page table")
	}
	pt := &pageTable{}
	m.tables[addr] = pt
	d.entries[dirIdx] = EncodePTE(addr, true, true, true, false, false)
	return pt, nil
}

/// Map establishes virt -> phys in d with the given flags. It fails with
/// AlreadyExists if the entry is already present and overwrite is false
/// (§4.2).
func (m *Manager) Map(d *Directory, virt uintptr, phys frame.Addr, flags defs.PageFlag_t, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dirIdx, tblIdx := splitVirt(virt)
	pt, err := m.tableFor(d, dirIdx, true)
	if err != nil {
		return err
	}
	if pt.entries[tblIdx].Present() && !overwrite {
		return defs.New(defs.AlreadyExists, "paging", "virtual address already mapped")
	}
	pt.entries[tblIdx] = flagsToPTE(phys, flags|defs.PtePresent)
	if d == m.current {
		m.flush(virt)
	}
	return nil
}

/// Unmap clears the mapping for virt and returns the frame that was
/// mapped there so the caller can free it. Unmapping an absent address is
/// not fatal; it returns NotFound (§4.2).
func (m *Manager) Unmap(d *Directory, virt uintptr) (frame.Addr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dirIdx, tblIdx := splitVirt(virt)
	pt, err := m.tableFor(d, dirIdx, false)
	if err != nil {
		return 0, err
	}
	if pt == nil || !pt.entries[tblIdx].Present() {
		return 0, defs.New(defs.NotFound, "paging", "address not mapped")
	}
	freed := pt.entries[tblIdx].Frame()
	pt.entries[tblIdx] = 0
	if d == m.current {
		m.flush(virt)
	}
	return freed, nil
}

/// Lookup returns the physical address virt is mapped to, or false if it
/// is not mapped.
func (m *Manager) Lookup(d *Directory, virt uintptr) (frame.Addr, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dirIdx, tblIdx := splitVirt(virt)
	pt, _ := m.tableFor(d, dirIdx, false)
	if pt == nil || !pt.entries[tblIdx].Present() {
		return 0, false
	}
	return pt.entries[tblIdx].Frame(), true
}

/// LookupPTE returns the raw page table entry mapping virt, or false if it
/// is not mapped. Used by callers that need to inspect flag bits (e.g.
/// User/Writable) beyond just the resolved frame.
func (m *Manager) LookupPTE(d *Directory, virt uintptr) (PTE, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dirIdx, tblIdx := splitVirt(virt)
	pt, _ := m.tableFor(d, dirIdx, false)
	if pt == nil || !pt.entries[tblIdx].Present() {
		return 0, false
	}
	return pt.entries[tblIdx], true
}

// flush is a no-op in this host-process simulation; it marks the point
// where a real kernel would invalidate the affected TLB entry, required
// by §5 only when mutating the *current* directory.
func (m *Manager) flush(virt uintptr) {
	_ = virt
}

/// CopyDirectory produces a new directory where every user page present in
/// src is eagerly copied into a freshly allocated frame (Design Note §9:
/// "the spec's eager-copy contract must still hold observationally" even
/// if an implementation chooses copy-on-write internally; this
/// implementation takes the simpler eager path directly). newFrame is
/// invoked once per present user page and must return a frame already
/// filled with that page's bytes.
func (m *Manager) CopyDirectory(src *Directory, newFrame func(old frame.Addr) (frame.Addr, error)) (*Directory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dst, err := m.newEmptyDirectory()
	if err != nil {
		return nil, err
	}
	for i := kernelDirStart; i < entries; i++ {
		dst.entries[i] = src.entries[i]
	}
	for dirIdx := 0; dirIdx < kernelDirStart; dirIdx++ {
		pde := src.entries[dirIdx]
		if !pde.Present() {
			continue
		}
		srcTable := m.tables[pde.Frame()]
		tblAddr, err := m.alloc.Allocate()
		if err != nil {
			return nil, defs.New(defs.OutOfMemory, "paging", "no frame for copied page table")
		}
		dstTable := &pageTable{}
		m.tables[tblAddr] = dstTable
		dst.entries[dirIdx] = EncodePTE(tblAddr, true, true, true, false, false)

		for tblIdx := 0; tblIdx < entries; tblIdx++ {
			spte := srcTable.entries[tblIdx]
			if !spte.Present() {
				continue
			}
			nf, err := newFrame(spte.Frame())
			if err != nil {
				return nil, err
			}
			dstTable.entries[tblIdx] = spte.WithFrame(nf)
		}
	}
	return dst, nil
}

/// DestroyDirectory frees every page-table frame and the directory's own
/// frame. It does not free the data frames mapped by those tables — the
/// caller (process lifecycle) must unmap and free those first; invariant
/// 5 ("a page directory owned by a live process is never freed") is the
/// caller's responsibility to uphold by only calling this after the owning
/// process is fully torn down.
func (m *Manager) DestroyDirectory(d *Directory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d == m.current {
		return defs.New(defs.Fatal, "paging", "cannot destroy the active directory")
	}
	for i := 0; i < kernelDirStart; i++ {
		pde := d.entries[i]
		if !pde.Present() {
			continue
		}
		delete(m.tables, pde.Frame())
		if err := m.alloc.Free(pde.Frame()); err != nil {
			return err
		}
	}
	delete(m.dirs, d.ID)
	return m.alloc.Free(d.ID)
}
