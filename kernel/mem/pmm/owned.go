package pmm

import "sync"

// FrameSource is implemented by any allocator that OwnedFrames can return a
// run to once the last live reference drops.
type FrameSource interface {
	DeallocateContiguous(base Frame, n uint32)
}

// refcount tracks the live clones of a single (base, len) run. The teacher's
// source marks the split/clone path as unimplemented (`todo!`); this
// implements option (a) from DESIGN_NOTES: a sparse table keyed by base frame
// holding an atomic-by-mutex strong count, so OwnedFrames can be safely
// cloned and split instead of being restricted to exclusive ownership.
type refcount struct {
	mu     sync.Mutex
	counts map[Frame]uint32
}

var runRefcounts = &refcount{counts: make(map[Frame]uint32)}

func (r *refcount) retain(base Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[base]++
}

// release decrements the count for base and reports whether it reached zero
// (i.e. whether the caller is the last owner and must return the run).
func (r *refcount) release(base Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counts[base]
	if !ok || c == 0 {
		// Never retained (freshly allocated, not yet cloned) - treat as last owner.
		return true
	}
	c--
	if c == 0 {
		delete(r.counts, base)
		return true
	}
	r.counts[base] = c
	return false
}

// OwnedFrames is a reference-counted, contiguous run of physical frames tied
// to the allocator that produced it. Two live OwnedFrames either are
// disjoint or share a common ancestor produced by Split. When the last clone
// drops, the run is returned to its allocator.
type OwnedFrames struct {
	base   Frame
	len    uint32
	source FrameSource
	freed  bool
}

// NewOwnedFrames wraps a (base, len) run freshly produced by source. len must
// be > 0.
func NewOwnedFrames(base Frame, len uint32, source FrameSource) *OwnedFrames {
	if len == 0 {
		panic("pmm: OwnedFrames run must be non-empty")
	}
	return &OwnedFrames{base: base, len: len, source: source}
}

// Base returns the first frame of the run.
func (o *OwnedFrames) Base() Frame { return o.base }

// Len returns the number of frames in the run.
func (o *OwnedFrames) Len() uint32 { return o.len }

// Clone returns a second owning handle to the same run, bumping the
// reference count. Both handles must be freed independently.
func (o *OwnedFrames) Clone() *OwnedFrames {
	runRefcounts.retain(o.base)
	return &OwnedFrames{base: o.base, len: o.len, source: o.source}
}

// Split divides the run into [0, at) and [at, len), returning the new run
// that starts at the split point. Both halves share the original's ancestry
// for refcounting purposes, so freeing one does not affect the other; the
// underlying frames are only returned to the allocator once every live
// fragment has been freed.
func (o *OwnedFrames) Split(at uint32) *OwnedFrames {
	if at == 0 || at >= o.len {
		panic("pmm: split point out of range")
	}
	runRefcounts.retain(o.base)
	runRefcounts.retain(o.base.Add(uint64(at)))
	tail := &OwnedFrames{base: o.base.Add(uint64(at)), len: o.len - at, source: o.source}
	o.len = at
	return tail
}

// Free releases this handle. If it is the last live handle for its base, the
// run is returned to the allocator that produced it.
func (o *OwnedFrames) Free() {
	if o.freed {
		return
	}
	o.freed = true
	if runRefcounts.release(o.base) {
		o.source.DeallocateContiguous(o.base, o.len)
	}
}
