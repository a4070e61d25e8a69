// Package arena implements the generation-checked slot arena Design
// Note §9 calls for in place of the source's manual malloc/free with
// embedded next-pointers: "the PCB/TCB store owns a dense table; threads
// refer to each other by typed indices, not pointers. Freed slots are
// recycled with a generation counter to detect use-after-free."
//
// There is no single teacher file this generalizes — biscuit instead
// keeps live objects behind Go pointers and a map (tinfo.Threadinfo_t's
// Notes map, fd.go's one-shot Fd_t). Arena is written in that same
// register-then-look-up idiom but swaps the map for a dense, reusable
// slice so that handles are small integers suitable for encoding as a
// Pid_t/Tid_t (spec.md §3: "unique, recyclable above a reserved kernel
// value").
package arena

// Handle packs a slot index and a generation counter. A Handle is only
// valid for the generation it was issued under; reusing a freed slot bumps
// the generation so stale handles are reliably detected rather than
// silently aliasing a new occupant.
type Handle uint32

const indexBits = 20
const indexMask = 1<<indexBits - 1

// Pack combines an index and generation into a Handle.
func Pack(index, generation uint32) Handle {
	return Handle(uint32(generation)<<indexBits | (index & indexMask))
}

func (h Handle) Index() uint32      { return uint32(h) & indexMask }
func (h Handle) Generation() uint32 { return uint32(h) >> indexBits }

type slot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// Arena is a dense, index-addressed table of live T values with
// generation-checked handles and a free list of recycled slots.
type Arena[T any] struct {
	slots    []slot[T]
	freeList []uint32
}

// New returns an empty arena with slot 0 permanently reserved, so the
// first real Insert returns a nonzero handle. This keeps arena-derived
// ids (Pid_t/Tid_t) from ever colliding with the reserved kernel value 0
// (defs.KernelPid / the kernel's own thread id), per spec.md's "unique,
// recyclable above a reserved kernel value".
func New[T any]() *Arena[T] {
	a := &Arena[T]{}
	a.slots = append(a.slots, slot[T]{occupied: true})
	return a
}

// Insert stores value in a recycled or fresh slot and returns its handle.
func (a *Arena[T]) Insert(value T) Handle {
	if n := len(a.freeList); n > 0 {
		idx := a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		s := &a.slots[idx]
		s.value = value
		s.occupied = true
		return Pack(idx, s.generation)
	}
	idx := uint32(len(a.slots))
	a.slots = append(a.slots, slot[T]{value: value, occupied: true})
	return Pack(idx, 0)
}

// Get returns the value for h and whether h is still live (correct
// generation and occupied).
func (a *Arena[T]) Get(h Handle) (*T, bool) {
	idx := h.Index()
	if int(idx) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[idx]
	if !s.occupied || s.generation != h.Generation() {
		return nil, false
	}
	return &s.value, true
}

// Remove frees h's slot, bumping its generation so any outstanding copies
// of h become stale.
func (a *Arena[T]) Remove(h Handle) bool {
	idx := h.Index()
	if int(idx) >= len(a.slots) {
		return false
	}
	s := &a.slots[idx]
	if !s.occupied || s.generation != h.Generation() {
		return false
	}
	var zero T
	s.value = zero
	s.occupied = false
	s.generation++
	a.freeList = append(a.freeList, idx)
	return true
}

// Live returns the handles of every currently occupied slot, in index
// order. Used by components that must iterate "every process"/"every
// thread" (the scheduler's ready-set scan, the reaper sweep).
func (a *Arena[T]) Live() []Handle {
	out := make([]Handle, 0, len(a.slots))
	for i := 1; i < len(a.slots); i++ {
		s := &a.slots[i]
		if s.occupied {
			out = append(out, Pack(uint32(i), s.generation))
		}
	}
	return out
}

// Len returns the number of live (occupied) slots.
func (a *Arena[T]) Len() int {
	n := 0
	for i := 1; i < len(a.slots); i++ {
		if a.slots[i].occupied {
			n++
		}
	}
	return n
}
