package vmm

import (
	"github.com/nucleos-project/nucleus/kernel"
	"github.com/nucleos-project/nucleus/kernel/cpu"
	"github.com/nucleos-project/nucleus/kernel/hal/irq"
	"github.com/nucleos-project/nucleus/kernel/hal/multiboot"
	"github.com/nucleos-project/nucleus/kernel/kfmt/early"
	"github.com/nucleos-project/nucleus/kernel/mem"
	"github.com/nucleos-project/nucleus/kernel/mem/pmm"
)

// ReservedZeroedFrame is the physical frame reserved by Init and shared by
// every copy-on-write mapping until the first write fault against it.
var ReservedZeroedFrame pmm.Frame

// protectReservedZeroedPage is set once ReservedZeroedFrame has been handed
// out; after that point it must never be mapped RW.
var protectReservedZeroedPage bool

// frameAllocator is registered via SetFrameAllocator and used whenever vmm
// needs a new physical frame, e.g. to host an intermediate page table.
var frameAllocator FrameAllocatorFn

// KernelTable is the shared kernel-half page table built by Init. Every
// TTable created afterwards via NewTTable aliases its upper half from this
// table, which is what keeps the kernel mapped into every thread's address
// space.
var KernelTable *KTable

var (
	panicFn                   = kernel.Panic
	handleExceptionWithCodeFn = irq.HandleExceptionWithCode
	readCR2Fn                 = cpu.ReadCR2
	activePDTFn               = activePDT
	switchPDTFn               = switchPDT
	mapFn                     = Map
	mapTemporaryFn            = MapTemporary
	unmapFn                   = Unmap
)

// SetFrameAllocator registers the physical frame allocator vmm uses whenever
// it needs a fresh frame to back a page table.
func SetFrameAllocator(allocFn FrameAllocatorFn) {
	frameAllocator = allocFn
}

func pageFaultHandler(errorCode uint64, frame *irq.Frame, regs *irq.Regs) {
	var (
		faultAddress = uintptr(readCR2Fn())
		faultPage    = PageFromAddress(faultAddress)
		pageEntry    *pageTableEntry
	)

	walk(faultPage.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		present := pte.HasFlags(FlagPresent)
		if pteLevel == pageLevels-1 && present {
			pageEntry = pte
		}
		return present
	})

	if pageEntry != nil && !pageEntry.HasFlags(FlagRW) && pageEntry.HasFlags(FlagCopyOnWrite) {
		copyFrame, err := frameAllocator()
		if err == nil {
			var tmpPage Page
			if tmpPage, err = mapTemporaryFn(copyFrame, frameAllocator); err == nil {
				mem.Memcopy(faultPage.Address(), tmpPage.Address(), mem.PageSize)
				unmapFn(tmpPage)

				pageEntry.ClearFlags(FlagCopyOnWrite)
				pageEntry.SetFlags(FlagPresent | FlagRW)
				pageEntry.SetFrame(copyFrame)
				flushTLBEntryFn(faultPage.Address())
				return
			}
		}
		nonRecoverablePageFault(faultAddress, errorCode, frame, regs, err)
		return
	}

	nonRecoverablePageFault(faultAddress, errorCode, frame, regs, nil)
}

func nonRecoverablePageFault(faultAddress uintptr, errorCode uint64, frame *irq.Frame, regs *irq.Regs, err *kernel.Error) {
	early.Printf("\npage fault while accessing address: 0x%16x\nreason: ", faultAddress)
	switch errorCode {
	case 0:
		early.Printf("read from non-present page")
	case 1:
		early.Printf("page protection violation (read)")
	case 2:
		early.Printf("write to non-present page")
	case 3:
		early.Printf("page protection violation (write)")
	case 4:
		early.Printf("page-fault in user-mode")
	case 8:
		early.Printf("page table has reserved bit set")
	case 16:
		early.Printf("instruction fetch")
	default:
		early.Printf("unknown")
	}

	early.Printf("\n\nregisters:\n")
	regs.Print()
	frame.Print()

	panicFn(err)
}

func generalProtectionFaultHandler(_ uint64, frame *irq.Frame, regs *irq.Regs) {
	early.Printf("\ngeneral protection fault while accessing address: 0x%x\n", readCR2Fn())
	early.Printf("registers:\n")
	regs.Print()
	frame.Print()

	panicFn(nil)
}

// reserveZeroedFrame allocates and zeroes the physical frame shared by every
// lazily-populated copy-on-write mapping.
func reserveZeroedFrame() *kernel.Error {
	var (
		err      *kernel.Error
		tempPage Page
	)

	if ReservedZeroedFrame, err = frameAllocator(); err != nil {
		return err
	} else if tempPage, err = mapTemporaryFn(ReservedZeroedFrame, frameAllocator); err != nil {
		return err
	}
	mem.Memset(tempPage.Address(), 0, mem.PageSize)
	unmapFn(tempPage)

	protectReservedZeroedPage = true
	return nil
}

// Init establishes a granular page directory for the kernel image,
// reserves the shared copy-on-write zero frame and installs the page fault
// and general protection fault handlers. kernelPageOffset is the virtual
// address at which the bootloader's identity mapping places the start of
// the kernel image's higher-half virtual memory area.
func Init(kernelPageOffset uintptr) *kernel.Error {
	if err := setupPDTForKernel(kernelPageOffset); err != nil {
		return err
	}

	if err := reserveZeroedFrame(); err != nil {
		return err
	}

	handleExceptionWithCodeFn(irq.PageFaultException, pageFaultHandler)
	handleExceptionWithCodeFn(irq.GPFException, generalProtectionFaultHandler)
	return nil
}

// setupPDTForKernel builds a fresh page directory for the kernel's own
// virtual memory area using the multiboot memory map to find usable RAM, and
// activates it. Unlike a full ELF-section-aware mapper, every kernel page is
// mapped present+RW+NX-clear; fine-grained per-section permissions are left
// as a follow-up (see DESIGN.md).
func setupPDTForKernel(kernelPageOffset uintptr) *kernel.Error {
	pdtFrame, err := frameAllocator()
	if err != nil {
		return err
	}
	k, err := NewKTable(pdtFrame, frameAllocator)
	if err != nil {
		return err
	}

	var mapErr *kernel.Error
	multiboot.VisitMemRegions(func(entry *multiboot.MemoryMapEntry) bool {
		if entry.Type != multiboot.MemAvailable {
			return true
		}

		firstFrame := pmm.Frame(entry.PhysAddress >> mem.PageShift)
		frameCount := mem.Size(entry.Length).Pages()
		for i := uint32(0); i < frameCount; i++ {
			curFrame := firstFrame.Add(uint64(i))
			curPage := PageFromAddress(kernelPageOffset + uintptr(curFrame.Address()))
			if mapErr = k.Map(curPage, curFrame, FlagPresent|FlagRW, frameAllocator); mapErr != nil {
				return false
			}
		}
		return true
	})
	if mapErr != nil {
		return mapErr
	}

	for rsvAddr := earlyReserveLastUsed; rsvAddr < tempMappingAddr; rsvAddr += uintptr(mem.PageSize) {
		page := PageFromAddress(rsvAddr)

		physAddr, translateErr := Translate(rsvAddr)
		if translateErr != nil {
			return translateErr
		}
		if err = k.Map(page, pmm.Frame(physAddr>>mem.PageShift), FlagPresent|FlagRW, frameAllocator); err != nil {
			return err
		}
	}

	k.Activate()
	KernelTable = k
	return nil
}

