package mapping

import (
	"github.com/nucleos-project/nucleus/kernel"
	"github.com/nucleos-project/nucleus/kernel/mem/vmm"
)

// Stack wraps a Mapping built with KindStack, exposing the top-of-stack
// virtual address used to prime a new thread's initial stack pointer.
type Stack struct {
	*Mapping
}

// NewStack builds a stack mapping of length physical frames. cfg.Kind is
// overwritten with KindStack; the returned Stack reserves one additional
// virtual page below the mapped range as an unmapped guard page.
func NewStack(length uint64, cfg Config) (*Stack, *kernel.Error) {
	cfg.Kind = KindStack
	cfg.Length = length
	m, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return &Stack{Mapping: m}, nil
}

// VirtualEnd returns the address one past the last mapped byte of the
// stack -- the end of the highest mapped page -- which becomes the initial
// rsp for a newly spawned thread, since the stack grows down from here.
func (s *Stack) VirtualEnd() uintptr {
	return (s.base + vmm.Page(s.virtLen)).Address()
}
