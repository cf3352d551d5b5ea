package allocator

import "github.com/nucleos-project/nucleus/kernel/mem/pmm"

// Location constrains where AllocateAt should place a requested run. Only
// one variant is populated per call; the zero value of Location is invalid.
type Location struct {
	kind locationKind
	// Aligned
	align uintptr
	// At
	frame pmm.Frame
	// Below
	below          pmm.Frame
	belowAlignment uintptr
}

type locationKind uint8

const (
	locationAligned locationKind = iota
	locationAt
	locationBelow
)

// Aligned requests a run whose base frame is a multiple of align (in bytes).
func Aligned(align uintptr) Location {
	return Location{kind: locationAligned, align: align}
}

// At requests a run starting exactly at frame.
func At(frame pmm.Frame) Location {
	return Location{kind: locationAt, frame: frame}
}

// Below requests a run satisfying the nested location that additionally ends
// before the limit frame, aligned to withAlignment bytes.
func Below(limit pmm.Frame, withAlignment uintptr) Location {
	return Location{kind: locationBelow, below: limit, belowAlignment: withAlignment}
}
