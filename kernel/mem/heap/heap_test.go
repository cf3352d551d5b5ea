package heap

import (
	"testing"
	"unsafe"

	"github.com/nucleos-project/nucleus/kernel"
	"github.com/nucleos-project/nucleus/kernel/mem"
	"github.com/nucleos-project/nucleus/kernel/mem/pmm"
	"github.com/nucleos-project/nucleus/kernel/mem/vmm"
)

func addrToPtr(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr)
}

func withMockedMap(t *testing.T) *[]vmm.Page {
	t.Helper()
	orig := mapFn
	t.Cleanup(func() { mapFn = orig })

	var calls []vmm.Page
	mapFn = func(page vmm.Page, _ pmm.Frame, _ vmm.PageTableEntryFlag, _ vmm.FrameAllocatorFn) *kernel.Error {
		calls = append(calls, page)
		return nil
	}
	return &calls
}

func fakeFrameFn() vmm.FrameAllocatorFn {
	next := pmm.Frame(1)
	return func() (pmm.Frame, *kernel.Error) {
		f := next
		next = next.Add(1)
		return f, nil
	}
}

func TestHeapAllocateGrowsOnePageAtATime(t *testing.T) {
	calls := withMockedMap(t)
	h := New(vmm.PageFromAddress(0x1000*uintptr(mem.PageSize)), 16, fakeFrameFn())

	addr, err := h.Allocate(uintptr(mem.PageSize)/2, 8)
	if err != nil {
		t.Fatal(err)
	}
	if addr != h.base {
		t.Fatalf("expected first allocation to start at the heap base; got %#x", addr)
	}
	if len(*calls) != 1 {
		t.Fatalf("expected exactly one page to be mapped for a half-page allocation; got %d", len(*calls))
	}

	// A second allocation that crosses the mapped boundary triggers
	// another page to be mapped.
	if _, err = h.Allocate(uintptr(mem.PageSize), 8); err != nil {
		t.Fatal(err)
	}
	if len(*calls) != 2 {
		t.Fatalf("expected a second page to be mapped; got %d calls", len(*calls))
	}
}

func TestHeapDeallocateTopmostShrinksBump(t *testing.T) {
	withMockedMap(t)
	h := New(vmm.PageFromAddress(0), 16, fakeFrameFn())

	addr, err := h.Allocate(64, 8)
	if err != nil {
		t.Fatal(err)
	}
	bumpAfterAlloc := h.bump

	h.Deallocate(addr, 64)
	if h.bump != h.base {
		t.Fatalf("expected freeing the only (topmost) allocation to shrink the bump pointer back to base; got %#x (was %#x)", h.bump, bumpAfterAlloc)
	}

	// Re-allocating the same size should reuse the same address.
	addr2, err := h.Allocate(64, 8)
	if err != nil {
		t.Fatal(err)
	}
	if addr2 != addr {
		t.Fatalf("expected the bump pointer to reuse address %#x after shrinking; got %#x", addr, addr2)
	}
}

func TestHeapDeallocateNonTopmostGoesToFreeList(t *testing.T) {
	withMockedMap(t)
	h := New(vmm.PageFromAddress(0), 16, fakeFrameFn())

	a1, _ := h.Allocate(32, 8)
	_, err := h.Allocate(32, 8)
	if err != nil {
		t.Fatal(err)
	}

	h.Deallocate(a1, 32)
	if len(h.free) != 1 {
		t.Fatalf("expected freeing a non-topmost block to add a free-list entry; got %d entries", len(h.free))
	}

	a3, err := h.Allocate(32, 8)
	if err != nil {
		t.Fatal(err)
	}
	if a3 != a1 {
		t.Fatalf("expected a same-size allocation to be satisfied from the free list at %#x; got %#x", a1, a3)
	}
	if len(h.free) != 0 {
		t.Fatal("expected the free list entry to be consumed")
	}
}

// TestHeapReallocateGrowPreservesContents backs the heap's virtual region
// with a real Go-owned buffer (rather than an arbitrary address) so the
// actual Memcopy this path performs lands on addressable memory, the same
// trick the teacher's own PDT tests use to stand in for physical frames.
func TestHeapReallocateGrowPreservesContents(t *testing.T) {
	withMockedMap(t)

	var backing [5 * int(mem.PageSize)]byte
	rawAddr := uintptr(unsafe.Pointer(&backing[0]))
	alignedAddr := (rawAddr + uintptr(mem.PageSize) - 1) &^ (uintptr(mem.PageSize) - 1)
	base := vmm.PageFromAddress(alignedAddr)
	h := New(base, 4, fakeFrameFn())

	addr, err := h.Allocate(16, 8)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 16; i++ {
		*(*byte)(addrToPtr(addr + uintptr(i))) = byte(i)
	}

	newAddr, err := h.Reallocate(addr, 16, 32, 8)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 16; i++ {
		if got := *(*byte)(addrToPtr(newAddr + uintptr(i))); got != byte(i) {
			t.Fatalf("byte %d: expected %d; got %d", i, i, got)
		}
	}
}
