// Package kmain wires together the kernel's boot sequence: it turns the raw
// multiboot payload and the physical extent of the loaded kernel image into
// a working frame allocator, virtual memory manager and Go runtime, then
// hands control to the rest of the system.
package kmain

import (
	"github.com/nucleos-project/nucleus/kernel"
	"github.com/nucleos-project/nucleus/kernel/goruntime"
	"github.com/nucleos-project/nucleus/kernel/hal"
	"github.com/nucleos-project/nucleus/kernel/hal/irq"
	"github.com/nucleos-project/nucleus/kernel/hal/multiboot"
	"github.com/nucleos-project/nucleus/kernel/mem"
	"github.com/nucleos-project/nucleus/kernel/mem/heap"
	"github.com/nucleos-project/nucleus/kernel/mem/pmm"
	"github.com/nucleos-project/nucleus/kernel/mem/pmm/allocator"
	"github.com/nucleos-project/nucleus/kernel/mem/vmm"
	"github.com/nucleos-project/nucleus/kernel/module"
	"github.com/nucleos-project/nucleus/kernel/sched"
)

// maxBootRegions bounds the number of free memory regions this package can
// track while bootstrapping -- before the Go allocator is viable, region
// bookkeeping has to live in a fixed-size array rather than a growable
// slice.
const maxBootRegions = 32

var (
	errKmainReturned  = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errNoUsableMemory = &kernel.Error{Module: "kmain", Message: "no usable memory regions reported by bootloader"}

	// frames backs every physical frame request made after boot: vmm's
	// own page table bootstrap, the Go runtime's heap growth via
	// goruntime, and any later subsystem wired through allocFrame.
	frames *allocator.BitmapAllocator

	// kernelHeap serves the module ABI surface's Alloc/Dealloc/Realloc
	// entries; it is independent of the Go runtime's own heap.
	kernelHeap *heap.Heap

	// scheduler is this CPU's thread scheduler, created once the heap
	// exists to host its task table and ready queue.
	scheduler *sched.Scheduler
)

// kernelHeapPages bounds the kernel heap's virtual reservation; it only
// maps pages as the bump pointer actually needs them (see heap.Heap), so
// this is a ceiling on growth rather than up-front physical cost.
const kernelHeapPages = 4096

func allocFrame() (pmm.Frame, *kernel.Error) {
	return frames.AllocateOne()
}

// Kmain is the only Go symbol visible (exported) to the rt0 initialization
// code. It is invoked after rt0 has set up the GDT and a minimal g0 struct
// that lets Go code run on the 4K bootstrap stack.
//
// The rt0 code passes the address of the multiboot info payload provided by
// the bootloader, along with the physical start/end addresses of the loaded
// kernel image.
//
// Kmain is not expected to return. If it does, the rt0 code halts the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	hal.InitTerminal()
	hal.ActiveTerminal.Clear()

	regions, lowest, highest, err := collectRegions(kernelStart, kernelEnd)
	if err != nil {
		kernel.Panic(err)
	}

	// Phase 1: the watermark allocator hands out frames for the bitmap
	// allocator's own backing storage before the Go heap exists to host
	// it.
	water := allocator.NewWatermarkAllocator(regions)
	frames = allocator.NewBitmapAllocator(lowest, uint32(highest-lowest))

	vmm.SetFrameAllocator(func() (pmm.Frame, *kernel.Error) { return water.AllocateOne() })
	goruntime.SetFrameAllocator(func() (pmm.Frame, *kernel.Error) { return water.AllocateOne() })

	// kernelPageOffset is 0: this kernel runs identity-mapped rather than
	// relocated to a higher-half virtual base.
	if err = vmm.Init(0); err != nil {
		kernel.Panic(err)
	}

	// Phase 2: the Go allocator is viable now (goruntime's sysAlloc can
	// map pages via the watermark allocator), so the bitmap allocator's
	// own slice can be built on the heap. Hand off the remainder of free
	// memory and switch every caller over to it.
	water.Drain(frames)
	vmm.SetFrameAllocator(allocFrame)
	goruntime.SetFrameAllocator(allocFrame)

	irq.Init()

	heapBase, err := vmm.EarlyReserveRegion(mem.Size(kernelHeapPages) * mem.PageSize)
	if err != nil {
		kernel.Panic(err)
	}
	kernelHeap = heap.New(vmm.PageFromAddress(heapBase), kernelHeapPages, allocFrame)

	module.BindHeap(kernelHeap)
	module.BindHighmem(allocFrame)

	scheduler = sched.New()

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating kernel.Panic as dead-code and eliminating it.
	kernel.Panic(errKmainReturned)
}

// collectRegions converts the bootloader-reported memory map into the
// region list the watermark allocator bootstraps from, excluding whatever
// portion of each region overlaps the loaded kernel image. It also returns
// the lowest and highest frame numbers seen, which size the bitmap
// allocator's single contiguous coverage range.
func collectRegions(kernelStart, kernelEnd uintptr) ([]allocator.Region, pmm.Frame, pmm.Frame, *kernel.Error) {
	var (
		regions          [maxBootRegions]allocator.Region
		count            int
		lowest           = pmm.InvalidFrame
		highest          pmm.Frame
		kernelStartFrame = pmm.Frame(kernelStart >> mem.PageShift)
		kernelEndFrame   = pmm.Frame((kernelEnd + uintptr(mem.PageSize) - 1) >> mem.PageShift)
	)

	multiboot.VisitMemRegions(func(entry *multiboot.MemoryMapEntry) bool {
		if entry.Type != multiboot.MemAvailable || count >= maxBootRegions {
			return true
		}

		pageMask := uint64(mem.PageSize) - 1
		base := pmm.Frame(((entry.PhysAddress + pageMask) &^ pageMask) >> mem.PageShift)
		end := pmm.Frame((entry.PhysAddress + entry.Length) >> mem.PageShift)
		if end <= base {
			return true
		}

		// Clip away whatever part of this region the kernel image
		// itself occupies; it is already in use and must not be
		// handed out as free memory. A kernel image that sits in the
		// interior of a region (free space on both sides) is not
		// split into two regions; see DESIGN.md.
		if end > kernelStartFrame && base < kernelEndFrame {
			if base < kernelStartFrame {
				end = kernelStartFrame
			} else {
				base = kernelEndFrame
			}
			if end <= base {
				return true
			}
		}

		regions[count] = allocator.Region{Base: base, Len: uint32(end - base)}
		count++

		if base < lowest {
			lowest = base
		}
		if end > highest {
			highest = end
		}
		return true
	})

	if count == 0 {
		return nil, 0, 0, errNoUsableMemory
	}
	return regions[:count], lowest, highest, nil
}
