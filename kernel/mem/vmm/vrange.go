package vmm

import (
	"github.com/google/btree"

	"github.com/nucleos-project/nucleus/kernel"
)

// ErrNoVirtualSpace is returned when a virtual range allocator cannot find a
// large enough free run to satisfy a reservation.
var ErrNoVirtualSpace = &kernel.Error{Module: "vmm", Message: "no free virtual address range of the requested size"}

// ErrRangeReserved is returned by ReserveAt when the requested run is not
// entirely free, either because it overlaps an already-reserved range or
// because it falls outside [base, base+pages).
var ErrRangeReserved = &kernel.Error{Module: "vmm", Message: "requested virtual range is already reserved or out of bounds"}

// vrange describes a run of pages, identified by its starting page and
// length. Ranges are ordered by their starting page so the backing btree can
// be walked in address order to find free gaps.
type vrange struct {
	start Page
	pages uint64
}

func (r vrange) end() Page { return r.start + Page(r.pages) }

// Less implements btree.Item, ordering ranges by their start page.
func (r vrange) Less(than btree.Item) bool {
	return r.start < than.(vrange).start
}

// RangeAllocator hands out non-overlapping runs of virtual pages inside
// [base, base+pages) using a btree of the currently reserved ranges. It
// backs the per-address-space virtual memory reservations made on top of
// KTable/TTable (heap growth, thread stacks, arbitrary mappings).
type RangeAllocator struct {
	base     Page
	pages    uint64
	reserved *btree.BTree
}

// NewRangeAllocator creates an allocator covering [base, base+pages) pages,
// initially entirely free.
func NewRangeAllocator(base Page, pages uint64) *RangeAllocator {
	return &RangeAllocator{base: base, pages: pages, reserved: btree.New(32)}
}

// Reserve finds the lowest-addressed free run of n contiguous pages and
// marks it reserved, returning its starting page.
func (a *RangeAllocator) Reserve(n uint64) (Page, *kernel.Error) {
	if n == 0 {
		return a.base, nil
	}

	cursor := a.base
	limit := a.base + Page(a.pages)
	var found bool
	var result Page

	a.reserved.Ascend(func(item btree.Item) bool {
		r := item.(vrange)
		if r.start > cursor && uint64(r.start-cursor) >= n {
			result = cursor
			found = true
			return false
		}
		if r.end() > cursor {
			cursor = r.end()
		}
		return true
	})

	if !found {
		if limit-cursor >= Page(n) {
			result = cursor
			found = true
		}
	}

	if !found {
		return 0, ErrNoVirtualSpace
	}

	a.reserved.ReplaceOrInsert(vrange{start: result, pages: n})
	return result, nil
}

// ReserveAt reserves the specific run [at, at+n), failing with
// ErrRangeReserved if any part of it falls outside [base, base+pages) or
// overlaps an already-reserved range. Unlike Reserve, which picks the
// placement itself, the caller here dictates the exact virtual address --
// used when a virtual range must line up with something already fixed,
// such as an identity-style mapping.
func (a *RangeAllocator) ReserveAt(at Page, n uint64) (Page, *kernel.Error) {
	if n == 0 {
		return at, nil
	}

	if at < a.base || uint64(at-a.base)+n > a.pages {
		return 0, ErrRangeReserved
	}

	requested := vrange{start: at, pages: n}
	overlaps := false
	a.reserved.AscendRange(vrange{start: 0}, vrange{start: requested.end()}, func(item btree.Item) bool {
		r := item.(vrange)
		if r.end() > requested.start {
			overlaps = true
			return false
		}
		return true
	})

	if overlaps {
		return 0, ErrRangeReserved
	}

	a.reserved.ReplaceOrInsert(requested)
	return at, nil
}

// Release returns a previously reserved run, identified by its starting
// page, to the free set. n must equal the length the range was reserved
// with; this is a debug cross-check against caller bugs (unmapping a
// different length than was mapped), not a runtime condition, so a mismatch
// panics rather than being reported as an error. Releasing a start page that
// was never reserved is likewise a caller bug and panics.
func (a *RangeAllocator) Release(start Page, n uint64) {
	item := a.reserved.Delete(vrange{start: start})
	if item == nil {
		panic(&kernel.Error{Module: "vmm", Message: "released a virtual range that was never reserved"})
	}
	if got := item.(vrange).pages; got != n {
		panic(&kernel.Error{Module: "vmm", Message: "released virtual range length does not match its reservation"})
	}
}
