package mapping

import (
	"testing"

	"github.com/nucleos-project/nucleus/kernel"
	"github.com/nucleos-project/nucleus/kernel/mem/pmm"
	"github.com/nucleos-project/nucleus/kernel/mem/vmm"
)

// fakeFrames is a minimal FrameAllocator that always succeeds, handing out
// a contiguous run starting at nextBase and recording deallocations.
type fakeFrames struct {
	nextBase   pmm.Frame
	freed      []pmm.Frame
	freedCount []uint32
}

func (f *fakeFrames) AllocateContiguous(n uint32) (pmm.Frame, *kernel.Error) {
	base := f.nextBase
	f.nextBase = f.nextBase.Add(uint64(n))
	return base, nil
}

func (f *fakeFrames) DeallocateContiguous(base pmm.Frame, n uint32) {
	f.freed = append(f.freed, base)
	f.freedCount = append(f.freedCount, n)
}

func withMockedPageOps(t *testing.T, mapCalls *[]vmm.Page, unmapCalls *[]vmm.Page) {
	t.Helper()
	origMap, origUnmap := mapFn, unmapFn
	t.Cleanup(func() { mapFn, unmapFn = origMap, origUnmap })

	mapFn = func(page vmm.Page, _ pmm.Frame, _ vmm.PageTableEntryFlag, _ vmm.FrameAllocatorFn) *kernel.Error {
		*mapCalls = append(*mapCalls, page)
		return nil
	}
	unmapFn = func(page vmm.Page) *kernel.Error {
		*unmapCalls = append(*unmapCalls, page)
		return nil
	}
}

func TestMappingRegular(t *testing.T) {
	var mapCalls, unmapCalls []vmm.Page
	withMockedPageOps(t, &mapCalls, &unmapCalls)

	frames := &fakeFrames{nextBase: pmm.Frame(100)}
	virt := vmm.NewRangeAllocator(vmm.Page(0), 1024)

	m, err := New(Config{
		Kind:    KindRegular,
		Length:  4,
		Flags:   vmm.FlagPresent | vmm.FlagRW,
		Frames:  frames,
		Virtual: virt,
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := m.VirtualLength(); got != 4 {
		t.Fatalf("expected virtual length 4 for a regular mapping; got %d", got)
	}
	if len(mapCalls) != 4 {
		t.Fatalf("expected 4 map calls; got %d", len(mapCalls))
	}
	for i, page := range mapCalls {
		if exp := m.VirtualBase() + vmm.Page(i); page != exp {
			t.Errorf("map call %d: expected page %d; got %d", i, exp, page)
		}
	}

	m.Destroy()

	if len(unmapCalls) != 4 {
		t.Fatalf("expected 4 unmap calls; got %d", len(unmapCalls))
	}
	// Unmap order must be the reverse of map order.
	for i, page := range unmapCalls {
		if exp := m.VirtualBase() + vmm.Page(3-i); page != exp {
			t.Errorf("unmap call %d: expected page %d; got %d", i, exp, page)
		}
	}
	if len(frames.freed) != 1 || frames.freed[0] != pmm.Frame(100) || frames.freedCount[0] != 4 {
		t.Fatalf("expected the frame run to be returned to the allocator; got %v/%v", frames.freed, frames.freedCount)
	}
}

func TestStackHasGuardPage(t *testing.T) {
	var mapCalls, unmapCalls []vmm.Page
	withMockedPageOps(t, &mapCalls, &unmapCalls)

	frames := &fakeFrames{nextBase: pmm.Frame(200)}
	virt := vmm.NewRangeAllocator(vmm.Page(0), 1024)

	s, err := NewStack(4, Config{
		Flags:   vmm.FlagPresent | vmm.FlagRW,
		Frames:  frames,
		Virtual: virt,
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := s.VirtualLength(); got != 5 {
		t.Fatalf("expected a 4-frame stack to reserve 5 virtual pages (including the guard); got %d", got)
	}

	// The guard page (the first page of the virtual run) must never be
	// mapped: every recorded map call starts one page above VirtualBase.
	for _, page := range mapCalls {
		if page == s.VirtualBase() {
			t.Fatal("guard page must not be mapped")
		}
	}

	if exp, got := (s.VirtualBase() + vmm.Page(5)).Address(), s.VirtualEnd(); exp != got {
		t.Fatalf("expected VirtualEnd to be %#x; got %#x", exp, got)
	}
}
