package vmm

import (
	"unsafe"

	"github.com/nucleos-project/nucleus/kernel"
	"github.com/nucleos-project/nucleus/kernel/mem"
	"github.com/nucleos-project/nucleus/kernel/mem/pmm"
)

// nextAddrFn lets tests intercept the virtual address computed for a
// newly-allocated table before it gets zeroed. The kernel build inlines it
// away to the identity function.
var nextAddrFn = func(entryAddr uintptr) uintptr { return entryAddr }

// flushTLBEntryFn lets tests override calls to flushTLBEntry, which faults
// outside ring 0.
var flushTLBEntryFn = flushTLBEntry

var errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}

// FrameAllocatorFn allocates a single physical frame.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// Map establishes a mapping between page and frame in the currently active
// page tables, allocating any missing intermediate tables via allocFn.
func Map(page Page, frame pmm.Frame, flags PageTableEntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			if pte.HasFlags(FlagPresent) {
				err = ErrAlreadyMapped
				return false
			}
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(FlagPresent | flags)
			flushTLBEntryFn(page.Address())
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		if !pte.HasFlags(FlagPresent) {
			newTableFrame, allocErr := allocFn()
			if allocErr != nil {
				err = allocErr
				return false
			}

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW)

			nextTableAddr := uintptr(unsafe.Pointer(pte)) << pageLevelBits[pteLevel+1]
			mem.Memset(nextAddrFn(nextTableAddr), 0, mem.PageSize)
		}

		return true
	})

	return err
}

// MapTemporary maps frame to the fixed temporary virtual address, replacing
// whatever was mapped there before. It is used to initialize page table
// frames and inactive page directories.
func MapTemporary(frame pmm.Frame, allocFn FrameAllocatorFn) (Page, *kernel.Error) {
	if err := Map(PageFromAddress(tempMappingAddr), frame, FlagRW, allocFn); err != nil {
		return 0, err
	}
	return PageFromAddress(tempMappingAddr), nil
}

// Unmap removes a mapping previously installed by Map or MapTemporary.
func Unmap(page Page) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			pte.ClearFlags(FlagPresent)
			flushTLBEntryFn(page.Address())
			return true
		}

		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}
		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}
		return true
	})

	return err
}
