package sync

import "sync/atomic"

type onceState uint32

const (
	onceUncalled onceState = iota
	onceRunning
	onceCalled
	oncePoisoned
)

// OnceLock guards a single lazily-computed value: the first caller to reach
// GetOrInit runs the initializer, every other concurrent caller spins until
// it finishes, and every caller after that reads the cached value lock-free.
type OnceLock struct {
	state onceState
	value interface{}
}

// GetOrInit returns the cached value, running init to produce (and cache)
// it if this is the first call. If init panics, the lock is left poisoned
// and every call (including this one, via re-panic) fails from then on.
func (o *OnceLock) GetOrInit(init func() interface{}) interface{} {
	for {
		switch onceState(atomic.LoadUint32((*uint32)(&o.state))) {
		case onceCalled:
			return o.value
		case oncePoisoned:
			panic("sync: OnceLock.GetOrInit called on a poisoned lock")
		case onceUncalled:
			if atomic.CompareAndSwapUint32((*uint32)(&o.state), uint32(onceUncalled), uint32(onceRunning)) {
				o.runInit(init)
				return o.value
			}
		default: // onceRunning
			pauseFn()
		}
	}
}

func (o *OnceLock) runInit(init func() interface{}) {
	defer func() {
		if r := recover(); r != nil {
			atomic.StoreUint32((*uint32)(&o.state), uint32(oncePoisoned))
			panic(r)
		}
	}()
	o.value = init()
	atomic.StoreUint32((*uint32)(&o.state), uint32(onceCalled))
}

// BootstrapOnceLock is an OnceLock that additionally carries a synchronous
// fallback value, readable by callers that arrive before the real
// initializer has completed -- used during boot for singletons like the
// logger and the monotonic clock, which need *a* value immediately even
// though the fully-initialized one isn't ready yet.
type BootstrapOnceLock struct {
	OnceLock
	fallback interface{}
}

// NewBootstrapOnceLock creates a lock that serves fallback until init
// completes via GetOrInit.
func NewBootstrapOnceLock(fallback interface{}) *BootstrapOnceLock {
	return &BootstrapOnceLock{fallback: fallback}
}

// Get returns the real value if initialization has completed, and the
// fallback value otherwise. It never blocks.
func (b *BootstrapOnceLock) Get() interface{} {
	if onceState(atomic.LoadUint32((*uint32)(&b.state))) == onceCalled {
		return b.value
	}
	return b.fallback
}
