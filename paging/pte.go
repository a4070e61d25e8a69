package paging

import "nanokern/frame"

// PTE is a single page-table (or page-directory) entry encoded in the
// classic x86 bitfield layout named by spec.md §3: present, writable,
// user-accessible, write-through, cache-disable, accessed, dirty, plus a
// 20-bit frame index occupying bits 12-31.
//
// Design Note §9 calls for "raw page-table bitfields... modelled as a
// value type with explicit accessor methods; the on-disk/in-MMU encoding
// is tested round-trip (encode(decode(x)) == x)". PTE is that value type;
// see pte_test.go for the round-trip test.
type PTE uint32

const (
	pteP   PTE = 1 << 0
	pteW   PTE = 1 << 1
	pteU   PTE = 1 << 2
	ptePWT PTE = 1 << 3
	ptePCD PTE = 1 << 4
	pteA   PTE = 1 << 5
	pteD   PTE = 1 << 6

	pteFrameShift = 12
	pteFrameMask  = PTE(0xFFFFF) << pteFrameShift
)

// EncodePTE builds a PTE from a frame address and flag bits. Only the bits
// named in defs.PageFlag_t are settable directly; Accessed/Dirty are
// managed by SetAccessed/SetDirty.
func EncodePTE(addr frame.Addr, present, writable, user, writeThrough, cacheDisable bool) PTE {
	var p PTE
	if present {
		p |= pteP
	}
	if writable {
		p |= pteW
	}
	if user {
		p |= pteU
	}
	if writeThrough {
		p |= ptePWT
	}
	if cacheDisable {
		p |= ptePCD
	}
	p |= PTE(addr) & pteFrameMask
	return p
}

func (p PTE) Present() bool      { return p&pteP != 0 }
func (p PTE) Writable() bool     { return p&pteW != 0 }
func (p PTE) User() bool         { return p&pteU != 0 }
func (p PTE) WriteThrough() bool { return p&ptePWT != 0 }
func (p PTE) CacheDisable() bool { return p&ptePCD != 0 }
func (p PTE) Accessed() bool     { return p&pteA != 0 }
func (p PTE) Dirty() bool        { return p&pteD != 0 }

func (p PTE) Frame() frame.Addr {
	return frame.Addr(p & pteFrameMask)
}

func (p PTE) SetAccessed() PTE { return p | pteA }
func (p PTE) SetDirty() PTE    { return p | pteD | pteA }

// WithFrame returns p with its frame bits replaced by addr, preserving
// every flag bit.
func (p PTE) WithFrame(addr frame.Addr) PTE {
	return (p &^ pteFrameMask) | (PTE(addr) & pteFrameMask)
}
