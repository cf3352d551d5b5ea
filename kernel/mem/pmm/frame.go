// Package pmm contains the types shared by the physical memory allocators:
// a Frame (a page-aligned unit of physical memory) and the reference-counted
// OwnedFrames run that RAII mappings build on top of.
package pmm

import (
	"math"

	"github.com/nucleos-project/nucleus/kernel/mem"
)

// Frame describes a physical memory page index. Frame(n) corresponds to the
// physical address n*mem.PageSize.
type Frame uint64

// InvalidFrame is returned by allocators when they fail to reserve the
// requested frame.
const InvalidFrame = Frame(math.MaxUint64)

// Zero is the sentinel frame returned by a zero-length allocation request.
func Zero() Frame { return Frame(0) }

// Valid reports whether this is a usable frame, i.e. not InvalidFrame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address pointed to by this frame.
func (f Frame) Address() uintptr {
	return uintptr(f << mem.PageShift)
}

// PA returns the frame's base address as a page-aligned mem.PA.
func (f Frame) PA() mem.PA {
	return mem.NewPA(f.Address(), mem.Align(mem.PageSize))
}

// PageOrder returns the page order of this frame. The page order is encoded
// in the 8 MSB of the frame number.
func (f Frame) PageOrder() mem.PageOrder {
	return mem.PageOrder((f >> 56) & 0xFF)
}

// Size returns the size of this frame.
func (f Frame) Size() mem.Size {
	return mem.PageSize << ((f >> 56) & 0xFF)
}

// Add returns the frame n positions after f.
func (f Frame) Add(n uint64) Frame {
	return f + Frame(n)
}
