// Package shm implements shared memory regions (spec.md §4.8): named
// regions of physical frames that unrelated processes can attach and
// detach by id, torn down once both the creator has marked them for
// deletion and the last attacher has detached.
//
// Grounded on biscuit/src/mem/mem.go's Refup/Refdown reference-counting
// idiom (a region's frames are refcounted the same way the teacher
// refcounts a physical page) and original_source/kernel/Kernel/SharedMemory.h's
// field shapes (owner, size, ref_count vs attach_count, marked-for-deletion
// flag). ref_count and attach_count are kept distinct, per that header:
// attach_count is every Attach call (a process may attach the same region
// more than once), ref_count is the number of distinct processes
// currently attached.
package shm

import (
	"sync"

	"nanokern/defs"
	"nanokern/frame"
)

/// Id_t identifies a shared memory region.
type Id_t uint32

/// Region is one shared memory segment: a contiguous run of frames plus
/// its attach bookkeeping.
type Region struct {
	ID      Id_t
	Owner   defs.Pid_t
	Size    int // bytes
	Frames  []frame.Addr

	attachCount  int
	attachedPids map[defs.Pid_t]int
	markedForDeletion bool
	destroyed   bool
}

/// AttachCount reports the total number of outstanding Attach calls
/// against this region (a single process attaching twice counts twice).
func (r *Region) AttachCount() int {
	return r.attachCount
}

/// RefCount reports the number of distinct processes currently attached
/// to this region, as opposed to AttachCount's raw call count.
func (r *Region) RefCount() int {
	return len(r.attachedPids)
}

/// MarkedForDeletion reports whether Remove has been called on this
/// region already (§4.8: deletion is deferred until the last attacher
/// detaches).
func (r *Region) MarkedForDeletion() bool {
	return r.markedForDeletion
}

/// Manager owns every shared memory region in the system.
type Manager struct {
	mu      sync.Mutex
	frames  *frame.Allocator
	regions map[Id_t]*Region
	nextID  Id_t
}

/// NewManager creates a shared memory manager allocating its regions'
/// frames from alloc.
func NewManager(alloc *frame.Allocator) *Manager {
	return &Manager{frames: alloc, regions: make(map[Id_t]*Region)}
}

/// Create allocates a new region of at least size bytes, owned by owner,
/// with an initial attach count of zero (§4.8: "create does not itself
/// attach the creator").
func (m *Manager) Create(owner defs.Pid_t, size int) (*Region, error) {
	if size <= 0 {
		return nil, defs.New(defs.InvalidArgument, "shm", "zero-size region")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	count := (size + frame.PageSize - 1) / frame.PageSize
	frames := make([]frame.Addr, 0, count)
	for i := 0; i < count; i++ {
		addr, err := m.frames.Allocate()
		if err != nil {
			for _, a := range frames {
				_ = m.frames.Free(a)
			}
			return nil, err
		}
		frames = append(frames, addr)
	}

	m.nextID++
	r := &Region{ID: m.nextID, Owner: owner, Size: size, Frames: frames, attachedPids: make(map[defs.Pid_t]int)}
	m.regions[r.ID] = r
	return r, nil
}

/// Get returns the region for id, if it exists and is not yet destroyed.
func (m *Manager) Get(id Id_t) (*Region, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regions[id]
	if !ok || r.destroyed {
		return nil, defs.New(defs.NotFound, "shm", "no such region")
	}
	return r, nil
}

/// Attach increments id's attach count and pid's per-process ref on it,
/// making its frames available for the caller to map into its own address
/// space (the caller is responsible for the actual paging.Map calls; this
/// only tracks the reference, per §4.8's separation of the region's
/// lifetime from any one process's mapping of it).
func (m *Manager) Attach(id Id_t, pid defs.Pid_t) (*Region, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regions[id]
	if !ok || r.destroyed {
		return nil, defs.New(defs.NotFound, "shm", "no such region")
	}
	if r.markedForDeletion {
		return nil, defs.New(defs.InvalidArgument, "shm", "region marked for deletion")
	}
	r.attachCount++
	r.attachedPids[pid]++
	return r, nil
}

/// Detach decrements id's attach count and pid's per-process ref on it. If
/// the region was already marked for deletion and this was the last
/// attacher (attach count, not ref count, reaching zero), the region's
/// frames are freed and it is removed from the manager (§4.8
/// "sweeper-on-detach teardown").
func (m *Manager) Detach(id Id_t, pid defs.Pid_t) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regions[id]
	if !ok || r.destroyed {
		return defs.New(defs.NotFound, "shm", "no such region")
	}
	if r.attachedPids[pid] == 0 {
		return defs.New(defs.InvalidArgument, "shm", "detach by process with no outstanding attach")
	}
	r.attachCount--
	r.attachedPids[pid]--
	if r.attachedPids[pid] == 0 {
		delete(r.attachedPids, pid)
	}
	if r.attachCount == 0 && r.markedForDeletion {
		m.destroyLocked(r)
	}
	return nil
}

/// Remove marks id for deletion (§4.8: "mark_for_deletion... the region's
/// id becomes invalid for future attach calls immediately, but existing
/// attachers keep their mapping until they detach"). If no process has it
/// attached, the region is destroyed immediately.
func (m *Manager) Remove(id Id_t) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regions[id]
	if !ok || r.destroyed {
		return defs.New(defs.NotFound, "shm", "no such region")
	}
	r.markedForDeletion = true
	if r.attachCount == 0 {
		m.destroyLocked(r)
	}
	return nil
}

func (m *Manager) destroyLocked(r *Region) {
	for _, a := range r.Frames {
		_ = m.frames.Free(a)
	}
	r.destroyed = true
	r.Frames = nil
	delete(m.regions, r.ID)
}

/// Count returns the number of regions still tracked (live or pending
/// final detach), for diagnostics and tests.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.regions)
}
