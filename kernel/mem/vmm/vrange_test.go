package vmm

import "testing"

func TestReserveFindsLowestFreeRun(t *testing.T) {
	a := NewRangeAllocator(100, 10)

	p1, err := a.Reserve(3)
	if err != nil || p1 != 100 {
		t.Fatalf("expected first reservation at 100; got (%d, %v)", p1, err)
	}

	p2, err := a.Reserve(3)
	if err != nil || p2 != 103 {
		t.Fatalf("expected second reservation at 103; got (%d, %v)", p2, err)
	}

	a.Release(p1, 3)

	p3, err := a.Reserve(3)
	if err != nil || p3 != 100 {
		t.Fatalf("expected the freed run at 100 to be reused; got (%d, %v)", p3, err)
	}
}

func TestReserveFailsWhenTooLarge(t *testing.T) {
	a := NewRangeAllocator(100, 4)

	if _, err := a.Reserve(5); err != ErrNoVirtualSpace {
		t.Fatalf("expected ErrNoVirtualSpace; got %v", err)
	}
}

func TestReserveAtSucceedsOnFreeRange(t *testing.T) {
	a := NewRangeAllocator(100, 10)

	got, err := a.ReserveAt(102, 3)
	if err != nil || got != 102 {
		t.Fatalf("expected ReserveAt to succeed at 102; got (%d, %v)", got, err)
	}
}

func TestReserveAtFailsOnOverlap(t *testing.T) {
	a := NewRangeAllocator(100, 10)

	if _, err := a.Reserve(3); err != nil {
		t.Fatalf("setup reservation failed: %v", err)
	}

	specs := []Page{99, 100, 101, 102}
	for _, at := range specs {
		if _, err := a.ReserveAt(at, 3); err != ErrRangeReserved {
			t.Fatalf("expected ReserveAt(%d, 3) to fail with ErrRangeReserved; got %v", at, err)
		}
	}
}

func TestReserveAtFailsOutOfBounds(t *testing.T) {
	a := NewRangeAllocator(100, 10)

	if _, err := a.ReserveAt(99, 3); err != ErrRangeReserved {
		t.Fatalf("expected out-of-bounds ReserveAt below base to fail; got %v", err)
	}
	if _, err := a.ReserveAt(108, 3); err != ErrRangeReserved {
		t.Fatalf("expected out-of-bounds ReserveAt past the end to fail; got %v", err)
	}
}

func TestReserveAtThenReserveAvoidsTheReservedRun(t *testing.T) {
	a := NewRangeAllocator(100, 10)

	if _, err := a.ReserveAt(100, 3); err != nil {
		t.Fatalf("ReserveAt failed: %v", err)
	}

	got, err := a.Reserve(3)
	if err != nil || got != 103 {
		t.Fatalf("expected Reserve to skip the pinned run and land at 103; got (%d, %v)", got, err)
	}
}

func TestReleaseLengthMismatchPanics(t *testing.T) {
	a := NewRangeAllocator(100, 10)
	p, err := a.Reserve(3)
	if err != nil {
		t.Fatalf("setup reservation failed: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected Release with a mismatched length to panic")
		}
	}()
	a.Release(p, 2)
}

func TestReleaseOfUnreservedRangePanics(t *testing.T) {
	a := NewRangeAllocator(100, 10)

	defer func() {
		if recover() == nil {
			t.Fatal("expected Release of a never-reserved range to panic")
		}
	}()
	a.Release(100, 3)
}
