// Package frame implements the physical frame allocator of spec.md §4.1.
// It hands out 4 KiB physical frames above a reserved low region and
// tracks a free list plus usage statistics.
//
// Grounded on biscuit/src/mem/mem.go's Physmem_t: an index-addressed free
// list threaded through a parallel slice (nexti), protected by an embedded
// sync.Mutex. The teacher also shards the free list per-CPU
// (phys.percpu); this kernel targets a single CPU (spec.md §1 Non-goals:
// "SMP and multi-core affinity beyond recording a mask"), so that sharding
// is dropped and the free list is a single linked stack.
package frame

import (
	"sync"

	"nanokern/defs"
)

/// PageShift and PageSize describe the fixed 4 KiB frame size (§3).
const PageShift = 12
const PageSize = 1 << PageShift

/// Addr is a physical, frame-aligned address.
type Addr uintptr

/// page describes one physical frame slot in the allocator's tracking
/// array. nexti chains free slots into a singly-linked free list;
/// ^uint32(0) terminates the chain, mirroring the teacher's sentinel.
type page struct {
	nexti uint32
	used  bool
}

/// Allocator owns every physical frame above the reserved low region and
/// the free list linking the unused ones.
type Allocator struct {
	mu sync.Mutex

	base  Addr // address of the first frame this allocator manages
	pages []page

	freeHead uint32 // index of first free page, or sentinel
	freeLen  int
}

const sentinel = ^uint32(0)

/// New creates an allocator managing count frames starting at base, which
/// must already exclude the kernel image and BIOS low-memory region (§4.1).
func New(base Addr, count int) *Allocator {
	if count <= 0 {
		panic("frame: zero-size allocator")
	}
	a := &Allocator{
		base:  base,
		pages: make([]page, count),
	}
	for i := 0; i < count-1; i++ {
		a.pages[i].nexti = uint32(i + 1)
	}
	a.pages[count-1].nexti = sentinel
	a.freeHead = 0
	a.freeLen = count
	return a
}

func (a *Allocator) addrOf(idx uint32) Addr {
	return a.base + Addr(idx)*PageSize
}

func (a *Allocator) indexOf(addr Addr) (uint32, bool) {
	if addr < a.base {
		return 0, false
	}
	off := addr - a.base
	if off%PageSize != 0 {
		return 0, false
	}
	idx := uint64(off / PageSize)
	if idx >= uint64(len(a.pages)) {
		return 0, false
	}
	return uint32(idx), true
}

/// Allocate returns a free, frame-aligned physical address, or
/// OutOfMemory if none remain.
func (a *Allocator) Allocate() (Addr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.freeHead == sentinel {
		return 0, defs.New(defs.OutOfMemory, "frame", "no free frames")
	}
	idx := a.freeHead
	a.freeHead = a.pages[idx].nexti
	a.freeLen--
	a.pages[idx].used = true
	a.pages[idx].nexti = 0
	return a.addrOf(idx), nil
}

/// Free returns addr to the free list. A double-free is a Fatal
/// invariant violation (§4.1) and the kernel should stop rather than
/// silently corrupt the free list.
func (a *Allocator) Free(addr Addr) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx, ok := a.indexOf(addr)
	if !ok {
		return defs.New(defs.InvalidArgument, "frame", "address not frame-aligned or out of range")
	}
	if !a.pages[idx].used {
		return defs.New(defs.Fatal, "frame", "double free of physical frame")
	}
	a.pages[idx].used = false
	a.pages[idx].nexti = a.freeHead
	a.freeHead = idx
	a.freeLen++
	return nil
}

/// Stats reports total and used frame counts (§4.1, testable property 2:
/// frames_used + frames_free == total_frames always holds).
func (a *Allocator) Stats() (total, used int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pages), len(a.pages) - a.freeLen
}

/// Total returns the number of frames this allocator manages.
func (a *Allocator) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pages)
}
