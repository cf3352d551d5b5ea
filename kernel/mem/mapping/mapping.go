// Package mapping implements the RAII virtual memory mapping layer: a
// Mapping owns both a run of physical frames and the virtual pages they are
// mapped into, and tears both down together when it is destroyed.
package mapping

import (
	"github.com/nucleos-project/nucleus/kernel"
	"github.com/nucleos-project/nucleus/kernel/mem/pmm"
	"github.com/nucleos-project/nucleus/kernel/mem/vmm"
)

// Kind distinguishes the small set of mapping shapes this kernel needs.
// Regular mappings cover exactly Length pages; stacks reserve one extra
// virtual page below the mapped range as an unmapped guard.
type Kind uint8

const (
	// KindRegular maps virtual_length == physical_length with no offset.
	KindRegular Kind = iota
	// KindStack reserves virtual_length == physical_length+1, leaving the
	// lowest virtual page (the guard page) unmapped.
	KindStack
)

// virtualLength converts a physical run length (in pages) to the virtual
// run length this kind of mapping requires.
func (k Kind) virtualLength(length uint64) uint64 {
	if k == KindStack {
		return length + 1
	}
	return length
}

// offset is the page offset from the start of the virtual run to the first
// mapped page; it is 1 for a stack (page 0 of the run is the guard) and 0
// otherwise.
func (k Kind) offset() uint64 {
	if k == KindStack {
		return 1
	}
	return 0
}

// FrameAllocator is the physical allocator a Mapping draws its backing
// frames from; *allocator.BitmapAllocator satisfies this directly.
type FrameAllocator interface {
	AllocateContiguous(n uint32) (pmm.Frame, *kernel.Error)
	pmm.FrameSource
}

// Config describes the mapping to build. Placement is deliberately limited
// to "anywhere the allocators can find room" -- the spec's aligned/at/below
// physical and virtual placement variants are not exercised by any caller in
// this kernel (frame and page placement is never pinned outside of boot,
// which uses the lower-level vmm.Map/PageDirectoryTable.Map directly) and
// are left as a documented gap; see DESIGN.md.
type Config struct {
	Kind   Kind
	Length uint64 // physical run length, in pages
	Flags  vmm.PageTableEntryFlag

	Frames   FrameAllocator
	Virtual  *vmm.RangeAllocator
	AllocFn  vmm.FrameAllocatorFn // used for intermediate page table frames
}

// mapFn/unmapFn let tests substitute the real page-table operations, which
// dereference physical memory and cannot run on a host test binary.
var (
	mapFn   = vmm.Map
	unmapFn = vmm.Unmap
)

// Mapping is a scope-bound owner of a physical frame run and the virtual
// page run it is mapped into. Destroy tears down both.
type Mapping struct {
	kind    Kind
	flags   vmm.PageTableEntryFlag
	frames  *pmm.OwnedFrames
	virtual *vmm.RangeAllocator
	base    vmm.Page // first page of the virtual run (may be the guard page)
	virtLen uint64
	length  uint64
	offset  uint64
}

// New builds a mapping per cfg: it allocates a physical frame run and a
// virtual page run, then maps each physical frame into its corresponding
// virtual page (offset by the guard page for stacks).
func New(cfg Config) (*Mapping, *kernel.Error) {
	virtLen := cfg.Kind.virtualLength(cfg.Length)
	offset := cfg.Kind.offset()

	frameBase, err := cfg.Frames.AllocateContiguous(uint32(cfg.Length))
	if err != nil {
		return nil, err
	}
	frames := pmm.NewOwnedFrames(frameBase, uint32(cfg.Length), cfg.Frames)

	virtBase, err := cfg.Virtual.Reserve(virtLen)
	if err != nil {
		frames.Free()
		return nil, err
	}

	m := &Mapping{
		kind:    cfg.Kind,
		flags:   cfg.Flags,
		frames:  frames,
		virtual: cfg.Virtual,
		base:    virtBase,
		virtLen: virtLen,
		length:  cfg.Length,
		offset:  offset,
	}

	for i := uint64(0); i < cfg.Length; i++ {
		page := virtBase + vmm.Page(offset+i)
		frame := frameBase.Add(i)
		if err = mapFn(page, frame, cfg.Flags, cfg.AllocFn); err != nil {
			m.unmapFrom(i)
			frames.Free()
			cfg.Virtual.Release(virtBase, virtLen)
			return nil, err
		}
	}

	return m, nil
}

// unmapFrom removes the first n already-installed mappings, in reverse
// order, used to unwind a partially constructed Mapping.
func (m *Mapping) unmapFrom(n uint64) {
	for i := n; i > 0; i-- {
		unmapFn(m.base + vmm.Page(m.offset+i-1))
	}
}

// VirtualBase returns the first page of the virtual run, including the
// guard page for a stack mapping.
func (m *Mapping) VirtualBase() vmm.Page { return m.base }

// VirtualLength returns the number of virtual pages the mapping reserves,
// including the guard page for a stack mapping.
func (m *Mapping) VirtualLength() uint64 { return m.virtLen }

// FrameBase returns the first physical frame backing this mapping.
func (m *Mapping) FrameBase() pmm.Frame { return m.frames.Base() }

// Destroy unmaps every installed page in reverse order, then returns the
// virtual range and the physical frame run to their respective allocators.
func (m *Mapping) Destroy() {
	m.unmapFrom(m.length)
	m.frames.Free()
	m.virtual.Release(m.base, m.virtLen)
}
