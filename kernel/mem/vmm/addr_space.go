package vmm

import (
	"github.com/nucleos-project/nucleus/kernel"
	"github.com/nucleos-project/nucleus/kernel/mem"
)

// earlyReserveLastUsed tracks the last reserved page address, decreasing
// after each allocation request. It starts at tempMappingAddr, the end of
// the kernel's reserved virtual address space.
var earlyReserveLastUsed = tempMappingAddr

var errEarlyReserveNoSpace = &kernel.Error{Module: "early_reserve", Message: "remaining virtual address space not large enough to satisfy reservation request"}

// EarlyReserveRegion reserves a page-aligned contiguous virtual memory
// region of the requested size, rounding size up to a page multiple if
// necessary, and returns its virtual address. It allocates from the end of
// the kernel address space downward and is intended for use only during
// early kernel bootstrap, before the heap and general-purpose virtual range
// allocator (see Reserve) are available.
func EarlyReserveRegion(size mem.Size) (uintptr, *kernel.Error) {
	size = (size + (mem.PageSize - 1)) &^ (mem.PageSize - 1)

	if uintptr(size) > earlyReserveLastUsed {
		return 0, errEarlyReserveNoSpace
	}

	earlyReserveLastUsed -= uintptr(size)
	return earlyReserveLastUsed, nil
}
