package vmm

import (
	"unsafe"

	"github.com/nucleos-project/nucleus/kernel"
	"github.com/nucleos-project/nucleus/kernel/mem/pmm"
)

// kernelHalfStart and kernelHalfEnd bound the PML4 slots every TTable
// aliases from the KTable at construction time. tempMappingEntryIndex (510)
// and recursiveEntryIndex (511) are deliberately excluded: each table needs
// its own, private entry for both, so aliasing them would corrupt whichever
// table is not currently active.
const (
	kernelHalfStart = uintptr(256)
	kernelHalfEnd   = tempMappingEntryIndex
	kernelHalfLen   = kernelHalfEnd - kernelHalfStart
)

// KTable is the single page table that owns every kernel-only mapping:
// identity-mapped RAM, the kernel heap, MMIO windows opened by the ACPI
// bridge. There is exactly one KTable per CPU. Every TTable created via
// NewTTable aliases KTable's upper half into itself once, at creation time,
// which is what makes the kernel reachable from inside any thread's address
// space without switching tables first.
type KTable struct {
	pdt PageDirectoryTable
}

// NewKTable sets up the shared kernel table rooted at frame.
func NewKTable(frame pmm.Frame, allocFn FrameAllocatorFn) (*KTable, *kernel.Error) {
	k := &KTable{}
	if err := k.pdt.Init(frame, allocFn); err != nil {
		return nil, err
	}
	return k, nil
}

// Map establishes page -> frame in the kernel's own address space.
func (k *KTable) Map(page Page, frame pmm.Frame, flags PageTableEntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	return k.pdt.Map(page, frame, flags, allocFn)
}

// Unmap removes a mapping previously installed via Map.
func (k *KTable) Unmap(page Page) *kernel.Error {
	return k.pdt.Unmap(page)
}

// Frame returns the physical frame backing the kernel table.
func (k *KTable) Frame() pmm.Frame { return k.pdt.Frame() }

// Activate loads the kernel table into CR3.
func (k *KTable) Activate() { k.pdt.Activate() }

// TTable is a per-thread top-level page table. Its lower half (PML4 slots
// 0-255) is private to the owning thread -- its own stack, its own heap
// mappings if it has any. Its upper half (slots 256-509) is aliased from
// the KTable once, at construction time: since an alias copies a PML4
// entry (a pointer to a shared PDPT frame, not the PDPT's contents), any
// kernel mapping installed later -- kernel heap growth, a new ACPI MMIO
// window -- lands inside a PDPT every TTable already points to, so it
// needs no further synchronization across existing TTables.
type TTable struct {
	pdt PageDirectoryTable
}

// NewTTable allocates a fresh top-level table rooted at frame, gives it its
// own recursive self-map entry, and aliases the kernel's upper half from k
// into it.
func NewTTable(k *KTable, frame pmm.Frame, allocFn FrameAllocatorFn) (*TTable, *kernel.Error) {
	kernelHalf, err := readKernelHalf(k, allocFn)
	if err != nil {
		return nil, err
	}

	t := &TTable{}
	if err := t.pdt.Init(frame, allocFn); err != nil {
		return nil, err
	}

	page, err := mapTemporaryFn(frame, allocFn)
	if err != nil {
		return nil, err
	}
	entries := (*[1 << pageLevelBits[0]]pageTableEntry)(unsafe.Pointer(page.Address()))
	for i, e := range kernelHalf {
		entries[kernelHalfStart+uintptr(i)] = e
	}
	unmapFn(page)

	return t, nil
}

// readKernelHalf copies the KTable's [kernelHalfStart, kernelHalfEnd) PML4
// entries into a Go-owned buffer. A separate copy step is needed because
// there is only one temporary mapping window: the KTable and the new
// TTable's frame cannot both be mapped through it at the same time.
func readKernelHalf(k *KTable, allocFn FrameAllocatorFn) ([kernelHalfLen]pageTableEntry, *kernel.Error) {
	var out [kernelHalfLen]pageTableEntry

	page, err := mapTemporaryFn(k.pdt.pdtFrame, allocFn)
	if err != nil {
		return out, err
	}
	entries := (*[1 << pageLevelBits[0]]pageTableEntry)(unsafe.Pointer(page.Address()))
	for i := range out {
		out[i] = entries[kernelHalfStart+uintptr(i)]
	}
	unmapFn(page)

	return out, nil
}

// Map establishes page -> frame in this thread's address space.
func (t *TTable) Map(page Page, frame pmm.Frame, flags PageTableEntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	return t.pdt.Map(page, frame, flags, allocFn)
}

// Unmap removes a mapping previously installed via Map.
func (t *TTable) Unmap(page Page) *kernel.Error {
	return t.pdt.Unmap(page)
}

// Frame returns the physical frame backing this table.
func (t *TTable) Frame() pmm.Frame { return t.pdt.Frame() }

// Activate loads this table into CR3, switching the running thread into
// its address space.
func (t *TTable) Activate() { t.pdt.Activate() }
