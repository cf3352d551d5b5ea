package vmm

import (
	"unsafe"

	"github.com/nucleos-project/nucleus/kernel"
	"github.com/nucleos-project/nucleus/kernel/mem"
	"github.com/nucleos-project/nucleus/kernel/mem/pmm"
)

// PageDirectoryTable is the top-most table in the 4-level paging scheme. It
// is the unit of address-space isolation: the kernel keeps one, and each
// thread with its own address space owns another.
type PageDirectoryTable struct {
	pdtFrame pmm.Frame
}

// Init sets up the page directory table rooted at pdtFrame. If pdtFrame
// already matches the active table, Init is a no-op; otherwise it
// establishes a temporary mapping to zero the frame and install the
// recursive self-mapping in its last entry.
func (pdt *PageDirectoryTable) Init(pdtFrame pmm.Frame, allocFn FrameAllocatorFn) *kernel.Error {
	pdt.pdtFrame = pdtFrame

	if pdtFrame.Address() == activePDTFn() {
		return nil
	}

	pdtPage, err := mapTemporaryFn(pdtFrame, allocFn)
	if err != nil {
		return err
	}

	mem.Memset(pdtPage.Address(), 0, mem.PageSize)
	lastEntryAddr := pdtPage.Address() + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)
	lastEntry := (*pageTableEntry)(unsafe.Pointer(lastEntryAddr))
	*lastEntry = 0
	lastEntry.SetFlags(FlagPresent | FlagRW)
	lastEntry.SetFrame(pdtFrame)

	unmapFn(pdtPage)
	return nil
}

// Map establishes a page -> frame mapping inside this table, temporarily
// activating it via the recursive mapping trick if it is not the currently
// active table.
func (pdt PageDirectoryTable) Map(page Page, frame pmm.Frame, flags PageTableEntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	var (
		activeFrame      = pmm.Frame(activePDTFn() >> mem.PageShift)
		lastEntryAddr    uintptr
		lastEntry        *pageTableEntry
	)

	if activeFrame != pdt.pdtFrame {
		lastEntryAddr = activeFrame.Address() + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)
		lastEntry = (*pageTableEntry)(unsafe.Pointer(lastEntryAddr))
		lastEntry.SetFrame(pdt.pdtFrame)
		flushTLBEntryFn(lastEntryAddr)
	}

	err := mapFn(page, frame, flags, allocFn)

	if activeFrame != pdt.pdtFrame {
		lastEntry.SetFrame(activeFrame)
		flushTLBEntryFn(lastEntryAddr)
	}

	return err
}

// Unmap removes a mapping previously installed via Map on this table.
func (pdt PageDirectoryTable) Unmap(page Page) *kernel.Error {
	var (
		activeFrame   = pmm.Frame(activePDTFn() >> mem.PageShift)
		lastEntryAddr uintptr
		lastEntry     *pageTableEntry
	)

	if activeFrame != pdt.pdtFrame {
		lastEntryAddr = activeFrame.Address() + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)
		lastEntry = (*pageTableEntry)(unsafe.Pointer(lastEntryAddr))
		lastEntry.SetFrame(pdt.pdtFrame)
		flushTLBEntryFn(lastEntryAddr)
	}

	err := unmapFn(page)

	if activeFrame != pdt.pdtFrame {
		lastEntry.SetFrame(activeFrame)
		flushTLBEntryFn(lastEntryAddr)
	}

	return err
}

// Frame returns the physical frame backing this table.
func (pdt PageDirectoryTable) Frame() pmm.Frame { return pdt.pdtFrame }

// Activate loads this table into CR3 and flushes the TLB.
func (pdt PageDirectoryTable) Activate() {
	switchPDTFn(pdt.pdtFrame.Address())
}
