package vmm

import (
	"unsafe"

	"github.com/nucleos-project/nucleus/kernel/mem"
)

// ptePtrFn returns a pointer to the supplied entry address. Tests override
// this to feed walk() a synthetic table instead of dereferencing a live
// recursive mapping. The kernel build inlines it away.
var ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
	return unsafe.Pointer(entryAddr)
}

// pageTableWalker receives the page level and page table entry at each step
// of a walk. Returning false aborts the walk.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for virtAddr, invoking walkFn with the
// entry at each of the pageLevels paging levels, from the top-most table down
// to the final page table entry. It relies on the recursive self-mapping
// installed at pdtVirtualAddr: dereferencing that address accesses the
// top-most table, and each successive indirection shifts in one more level by
// re-interpreting the entry address as a table address.
func walk(virtAddr uintptr, walkFn pageTableWalker) {
	var (
		level                            uint8
		tableAddr, entryAddr, entryIndex uintptr
	)

	for level, tableAddr = uint8(0), pdtVirtualAddr; level < pageLevels; level, tableAddr = level+1, entryAddr {
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		entryAddr = tableAddr + (entryIndex << mem.PointerShift)

		if !walkFn(level, (*pageTableEntry)(ptePtrFn(entryAddr))) {
			return
		}

		entryAddr <<= pageLevelBits[level]
	}
}
