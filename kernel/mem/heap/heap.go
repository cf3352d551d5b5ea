// Package heap implements the kernel's single global allocator: a bump
// pointer backed by a growable virtual mapping, with a best-effort free
// list for the only deallocation shape worth tracking cheaply (freeing the
// topmost outstanding allocation shrinks the bump pointer back).
package heap

import (
	"github.com/nucleos-project/nucleus/kernel"
	"github.com/nucleos-project/nucleus/kernel/mem"
	"github.com/nucleos-project/nucleus/kernel/mem/pmm"
	"github.com/nucleos-project/nucleus/kernel/mem/vmm"
)

// mapFn lets tests substitute page-table installation, which touches real
// physical memory and cannot run on a host test binary.
var mapFn = vmm.Map

type freeRegion struct {
	addr uintptr
	size uintptr
}

// Heap is a single contiguous virtual region, bump-allocated from its base.
// The region is reserved up front (maxPages) but only grown (mapped) one
// page at a time as the bump pointer actually needs the room.
type Heap struct {
	base     uintptr
	end      uintptr // address one past the last currently-mapped byte
	bump     uintptr
	maxPages uint64
	pages    uint64
	frameFn  vmm.FrameAllocatorFn
	free     []freeRegion
	lastAddr uintptr
	lastSize uintptr
}

// New creates a heap whose virtual region starts at virtBase and may grow
// up to maxPages pages. frameFn supplies the physical frames used both to
// back heap growth and to host any intermediate page tables Map needs.
func New(virtBase vmm.Page, maxPages uint64, frameFn vmm.FrameAllocatorFn) *Heap {
	base := virtBase.Address()
	return &Heap{base: base, end: base, bump: base, maxPages: maxPages, frameFn: frameFn}
}

func alignUp(addr, align uintptr) uintptr {
	if align <= 1 {
		return addr
	}
	return (addr + align - 1) &^ (align - 1)
}

// Allocate returns an address for a block of size bytes aligned to align
// (a power of two), growing the backing mapping if the bump pointer would
// otherwise exceed the currently mapped range.
func (h *Heap) Allocate(size, align uintptr) (uintptr, *kernel.Error) {
	if size == 0 {
		size = 1
	}

	for i, r := range h.free {
		if r.size >= size && r.addr%align == 0 {
			h.free = append(h.free[:i], h.free[i+1:]...)
			return r.addr, nil
		}
	}

	addr := alignUp(h.bump, align)
	newBump := addr + size
	if newBump > h.end {
		if err := h.grow(newBump); err != nil {
			return 0, err
		}
	}

	h.bump = newBump
	h.lastAddr, h.lastSize = addr, size
	return addr, nil
}

// grow maps whole pages onto the end of the heap's virtual region until it
// covers untilAddr.
func (h *Heap) grow(untilAddr uintptr) *kernel.Error {
	for h.end < untilAddr {
		if h.pages >= h.maxPages {
			return pmm.ErrOutOfMemory
		}

		frame, err := h.frameFn()
		if err != nil {
			return err
		}

		page := vmm.PageFromAddress(h.end)
		if err := mapFn(page, frame, vmm.FlagPresent|vmm.FlagRW|vmm.FlagNoExecute, h.frameFn); err != nil {
			return err
		}

		h.pages++
		h.end += uintptr(mem.PageSize)
	}
	return nil
}

// Deallocate returns a previously allocated block. If it is the topmost
// outstanding allocation, the bump pointer shrinks back over it; otherwise
// the block joins the best-effort free list for a future same-or-smaller
// allocation to reuse.
func (h *Heap) Deallocate(addr, size uintptr) {
	if addr == h.lastAddr && addr+size == h.bump {
		h.bump = addr
		h.lastAddr, h.lastSize = 0, 0
		return
	}
	h.free = append(h.free, freeRegion{addr: addr, size: size})
}

// Reallocate resizes a previously allocated block, preserving the minimum
// of the old and new sizes of its contents. Shrinking never moves the
// block; growing allocates a fresh block, copies, and frees the old one.
func (h *Heap) Reallocate(addr, oldSize, newSize, align uintptr) (uintptr, *kernel.Error) {
	if newSize <= oldSize {
		return addr, nil
	}

	newAddr, err := h.Allocate(newSize, align)
	if err != nil {
		return 0, err
	}

	mem.Memcopy(addr, newAddr, mem.Size(oldSize))
	h.Deallocate(addr, oldSize)
	return newAddr, nil
}
