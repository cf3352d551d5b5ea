// Package module implements the kernel's module ABI surface: a small,
// stable table of function pointers a dynamically linked driver module
// resolves its undefined symbols against, plus the linker-section metadata
// (name, author, license, class/subclass) every module declares about
// itself. The loader that actually resolves an ELF's undefined symbols
// against this table is out of scope; this package only defines and serves
// the table.
package module

import (
	"github.com/nucleos-project/nucleus/kernel"
	"github.com/nucleos-project/nucleus/kernel/cpu"
	"github.com/nucleos-project/nucleus/kernel/mem/heap"
	"github.com/nucleos-project/nucleus/kernel/mem/pmm"
	"github.com/nucleos-project/nucleus/kernel/mem/vmm"
)

// License enumerates the SPDX identifiers a module may declare. The numeric
// values match the linker-section encoding the original macro plumbing
// assigned, so module ELFs built against either toolchain agree on the
// wire representation.
type License uint64

const (
	LicenseUnknown License = iota
	LicenseApache1_0
	LicenseApache1_1
	LicenseApache2_0
	LicenseGPL1Only
	LicenseGPL1OrLater
	LicenseGPL2Only
	LicenseGPL2OrLater
	LicenseGPL3Only
	LicenseGPL3OrLater
	LicenseMPL1_0
	LicenseMPL1_1
	LicenseMPL2_0
)

// Class identifies the kind of module, determining which additional entry
// symbol (beyond the standard init) the loader must resolve.
type Class uint64

const (
	ClassUnknown Class = iota
	ClassAllocator
)

// Subclass narrows Class. AllocatorGeneral is the only subclass defined so
// far, matching a general-purpose physical memory allocator module.
type Subclass uint64

const (
	SubclassAllocatorGeneral Subclass = iota
)

// Info is a module's self-declared linker-section metadata: its name, fully
// qualified name, author, license and class/subclass. A real module ELF
// carries each field as a separate symbol in a dedicated section; here they
// are collected into one struct for convenience, since this package does
// not itself parse ELF sections.
type Info struct {
	Name     string
	FQN      string
	Author   string
	License  License
	Class    Class
	Subclass Subclass
}

// ABI is the flat, C-ABI-shaped table of kernel entry points a loaded
// module resolves its undefined symbols against. Every field is a plain
// function value rather than an interface so the table can be handed to
// code with no notion of the kernel's internal types beyond these
// signatures -- the dynamic-dispatch contract the loader depends on.
type ABI struct {
	Alloc        func(size, align uintptr) (uintptr, *kernel.Error)
	Dealloc      func(addr, size uintptr)
	Realloc      func(addr, oldSize, newSize, align uintptr) (uintptr, *kernel.Error)
	Panic        func(e interface{})
	EnableIRQ    func()
	DisableIRQ   func() bool
	RestoreIRQ   func(wasEnabled bool)
	Translate    func(virtAddr uintptr) (uintptr, *kernel.Error)
	MapPage      func(page vmm.Page, frame pmm.Frame, flags vmm.PageTableEntryFlag) *kernel.Error
	UnmapPage    func(page vmm.Page) *kernel.Error
	AllocHighmem func() (pmm.Frame, *kernel.Error)
	SystemTime   func() uint64
}

// kernelHeap backs Alloc/Dealloc/Realloc for every loaded module. It is set
// by BindHeap once the kernel's own heap has been constructed; until then
// the table's allocation entries are nil and must not be resolved against.
var kernelHeap *heap.Heap

// BindHeap registers the kernel heap that Default's allocation entries
// forward to. Called once, after kmain has brought up the heap.
func BindHeap(h *heap.Heap) {
	kernelHeap = h
}

// highmemFn supplies the frame allocator Default's AllocHighmem entry
// forwards to. Set by BindHighmem once the kernel's physical allocator is
// up; defaults to a function that always fails, so a module loaded before
// that point gets a clean error instead of a nil-pointer panic.
var highmemFn vmm.FrameAllocatorFn = func() (pmm.Frame, *kernel.Error) {
	return pmm.InvalidFrame, errHighmemNotBound
}

var errHighmemNotBound = &kernel.Error{Module: "module", Message: "highmem allocator not yet bound"}

// BindHighmem registers the physical frame allocator Default's AllocHighmem
// entry forwards to.
func BindHighmem(allocFn vmm.FrameAllocatorFn) {
	highmemFn = allocFn
}

// systemTimeFn supplies Default's SystemTime entry. Set by BindClock once
// the kernel's monotonic clock is running.
var systemTimeFn = func() uint64 { return 0 }

// BindClock registers the monotonic clock Default's SystemTime entry
// forwards to.
func BindClock(nowFn func() uint64) {
	systemTimeFn = nowFn
}

// mapCalledWith lets tests intercept the call Default's MapPage entry makes,
// without actually touching page tables on a host test binary.
var mapCalledWith = vmm.Map

// Default builds the ABI table from the kernel's currently bound
// subsystems. Call it fresh for each module load rather than caching the
// result, since the bound heap/allocator/clock can change across boots.
func Default() ABI {
	return ABI{
		Alloc: func(size, align uintptr) (uintptr, *kernel.Error) {
			return kernelHeap.Allocate(size, align)
		},
		Dealloc: func(addr, size uintptr) {
			kernelHeap.Deallocate(addr, size)
		},
		Realloc: func(addr, oldSize, newSize, align uintptr) (uintptr, *kernel.Error) {
			return kernelHeap.Reallocate(addr, oldSize, newSize, align)
		},
		Panic:      kernel.Panic,
		EnableIRQ:  cpu.EnableInterrupts,
		DisableIRQ: cpu.DisableInterruptsSave,
		RestoreIRQ: cpu.RestoreInterrupts,
		Translate:  vmm.Translate,
		MapPage: func(page vmm.Page, frame pmm.Frame, flags vmm.PageTableEntryFlag) *kernel.Error {
			return mapCalledWith(page, frame, flags, highmemFn)
		},
		UnmapPage:    vmm.Unmap,
		AllocHighmem: func() (pmm.Frame, *kernel.Error) { return highmemFn() },
		SystemTime:   func() uint64 { return systemTimeFn() },
	}
}
