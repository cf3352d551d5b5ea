package allocator

import (
	"sort"

	"github.com/nucleos-project/nucleus/kernel"
	"github.com/nucleos-project/nucleus/kernel/kfmt/early"
	"github.com/nucleos-project/nucleus/kernel/mem/pmm"
)

// Region describes one free physical memory region, typically parsed from
// the bootloader-provided memory map.
type Region struct {
	Base pmm.Frame
	Len  uint32
}

// WatermarkAllocator is the simple allocator used during early bootstrap,
// before the bitmap allocator's own metadata can be allocated. It walks free
// regions from the highest region downward, allocating from the top of the
// current region and never freeing. Once the bitmap allocator has been
// constructed, Drain hands the unused remainder back so nothing is lost.
type WatermarkAllocator struct {
	regions []Region // sorted ascending by Base
	cursor  int       // index of the highest region not yet exhausted
}

// NewWatermarkAllocator seeds the allocator with the given free regions.
func NewWatermarkAllocator(regions []Region) *WatermarkAllocator {
	sorted := make([]Region, len(regions))
	copy(sorted, regions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Base < sorted[j].Base })
	return &WatermarkAllocator{regions: sorted, cursor: len(sorted) - 1}
}

// AllocateContiguous returns the base frame of n frames taken from the top
// of the highest region with enough remaining room, moving the watermark
// down. It never reuses a frame handed out by a previous call.
func (w *WatermarkAllocator) AllocateContiguous(n uint32) (pmm.Frame, *kernel.Error) {
	if n == 0 {
		return pmm.Zero(), nil
	}
	for w.cursor >= 0 && w.regions[w.cursor].Len < n {
		w.cursor--
	}
	if w.cursor < 0 {
		return pmm.InvalidFrame, pmm.ErrOutOfMemory
	}
	r := &w.regions[w.cursor]
	r.Len -= n
	return r.Base.Add(uint64(r.Len)), nil
}

// AllocateOne is equivalent to AllocateContiguous(1).
func (w *WatermarkAllocator) AllocateOne() (pmm.Frame, *kernel.Error) {
	return w.AllocateContiguous(1)
}

// Drain pushes every frame this allocator has not yet handed out into dst,
// then leaves the watermark allocator empty. This is the mandatory
// two-phase bootstrap handoff: building the bitmap allocator's own metadata
// requires an allocator, so the watermark allocator serves that metadata
// allocation before donating the rest of free memory to the bitmap.
func (w *WatermarkAllocator) Drain(dst *BitmapAllocator) {
	pushed := uint32(0)
	for i, r := range w.regions {
		if r.Len == 0 {
			continue
		}
		dst.Push(r.Base, r.Len)
		pushed += r.Len
		w.regions[i].Len = 0
	}
	w.cursor = -1
	early.Printf("[watermark_alloc] drained %d frames into bitmap allocator\n", pushed)
}
