package hal

import (
	"github.com/nucleos-project/nucleus/kernel"
	"github.com/nucleos-project/nucleus/kernel/mem"
	"github.com/nucleos-project/nucleus/kernel/mem/pmm"
	"github.com/nucleos-project/nucleus/kernel/mem/vmm"
)

var (
	mapFn   = vmm.Map
	unmapFn = vmm.Unmap
)

// AcpiRegion is the result of mapping a physical region on behalf of the
// (out of scope, third-party) ACPI table walker: a pointer usable for the
// whole requested [pa, pa+size) extent, plus the metadata needed to unmap
// it again.
type AcpiRegion struct {
	Addr  uintptr
	base  vmm.Page
	pages uint64
	virt  *vmm.RangeAllocator
}

// MapPhysicalRegion implements the map_physical_region half of the ACPI
// handler contract: it reserves a virtual range and maps the run of whole
// pages covering [pa, pa+size), padding for pa's misalignment within its
// first page, and returns a pointer usable for the entire requested extent.
//
// Unlike the heap-backed Mapping type, this maps fixed, caller-supplied
// physical frames -- an MMIO region's address is dictated by the hardware,
// never chosen by a frame allocator -- so it talks to vmm.Map directly
// rather than going through kernel/mem/mapping.
func MapPhysicalRegion(pa uintptr, size uintptr, virt *vmm.RangeAllocator, allocFn vmm.FrameAllocatorFn) (*AcpiRegion, *kernel.Error) {
	pageBase := pa &^ uintptr(mem.PageSize-1)
	offset := pa - pageBase
	pages := uint64((offset + size + uintptr(mem.PageSize) - 1) >> mem.PageShift)

	virtBase, err := virt.Reserve(pages)
	if err != nil {
		return nil, err
	}

	flags := vmm.FlagPresent | vmm.FlagRW | vmm.FlagNoExecute
	firstFrame := pmm.Frame(pageBase >> mem.PageShift)
	var i uint64
	for ; i < pages; i++ {
		if err = mapFn(virtBase+vmm.Page(i), firstFrame.Add(i), flags, allocFn); err != nil {
			for ; i > 0; i-- {
				unmapFn(virtBase + vmm.Page(i-1))
			}
			virt.Release(virtBase, pages)
			return nil, err
		}
	}

	return &AcpiRegion{Addr: virtBase.Address() + offset, base: virtBase, pages: pages, virt: virt}, nil
}

// UnmapPhysicalRegion implements the unmap_physical_region half of the ACPI
// handler contract: it unmaps every page of the region and releases the
// virtual range. The backing physical frames are never handed to a frame
// allocator, since they were never allocated from one.
func UnmapPhysicalRegion(r *AcpiRegion) {
	for i := r.pages; i > 0; i-- {
		unmapFn(r.base + vmm.Page(i-1))
	}
	r.virt.Release(r.base, r.pages)
}
