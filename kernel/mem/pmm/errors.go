package pmm

import "github.com/nucleos-project/nucleus/kernel"

var (
	// ErrOutOfMemory is returned by every physical allocator on exhaustion.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of memory"}

	// ErrOutOfRange is returned when an operation targets a frame outside
	// the coverage of the allocator it was issued against.
	ErrOutOfRange = &kernel.Error{Module: "pmm", Message: "frame out of allocator range"}

	// ErrNotPrezeroed refines ErrOutOfMemory: memory exists but none of it
	// is guaranteed to already be zero. Callers that only wanted a hint to
	// skip redundant zeroing fall back to explicit zeroing on this error.
	ErrNotPrezeroed = &kernel.Error{Module: "pmm", Message: "memory available but not prezeroed"}

	// ErrUnsupportedLocation is returned by allocate_at placements that a
	// particular allocator implementation does not support.
	ErrUnsupportedLocation = &kernel.Error{Module: "pmm", Message: "unsupported allocation location"}
)
