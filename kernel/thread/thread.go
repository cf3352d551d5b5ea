// Package thread implements the kernel's thread control block, the stack
// priming sequence that gives a freshly spawned thread somewhere to start
// running, and the context switch primitive the scheduler drives.
package thread

import (
	"unsafe"

	"github.com/nucleos-project/nucleus/kernel/mem/mapping"
	"github.com/nucleos-project/nucleus/kernel/mem/vmm"
)

// State is the coarse running/ready/blocked classification the scheduler
// uses to decide who gets the CPU next.
type State uint8

const (
	Running State = iota
	Ready
	Blocked
)

// stackSentinel marks the bottom of a freshly primed stack; if execution
// ever pops it as a return address, the stack has been corrupted or walked
// off the end, either way a kernel-fatal condition.
const stackSentinel = 0xdeadbeef

// stackPages is the number of physical pages reserved for every thread's
// stack.
const stackPages = 8

// SaveState holds the callee-saved register values a context switch
// preserves across a thread suspension, per the amd64 System V ABI: the
// caller-saved registers are the interrupted or calling code's own problem
// to save, not the scheduler's.
type SaveState struct {
	RSP uintptr
	RBX uint64
	RBP uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
}

// TCB is a thread control block: a saved register state, the stack it
// executes on, the page table it runs under and its scheduling state. The
// TID field is left for the scheduler to assign; this package has no notion
// of thread identity, only of a thread's execution context.
type TCB struct {
	Name   string
	State  State
	Save   SaveState
	Stack  *mapping.Stack
	TTable *vmm.TTable
}

// Spawn allocates a new thread's stack, primes it so its first resume
// begins at init, and returns the TCB ready to be handed to the scheduler.
//
// init is expected to release whichever lock the scheduler held across
// schedule() and then tail-call main(args[0], args[1], args[2], args[3]);
// it never returns. The stack is primed, top-down, with: a sentinel,
// main's address, the four arguments in reverse, a zeroed saved base
// pointer, and init's address -- so the first SwitchThread into this
// thread pops init's address as its return address with main and args
// already waiting on the stack exactly where init expects them.
func Spawn(name string, ttable *vmm.TTable, stackCfg mapping.Config, initAddr, mainAddr uintptr, args [4]uint64) (*TCB, error) {
	stack, err := mapping.NewStack(stackPages, stackCfg)
	if err != nil {
		return nil, err
	}

	initialRSP := primeStack(stack.VirtualEnd(), initAddr, mainAddr, args)

	return &TCB{
		Name:   name,
		State:  Ready,
		Save:   SaveState{RSP: initialRSP},
		Stack:  stack,
		TTable: ttable,
	}, nil
}

// Bootstrap returns a TCB representing the thread of execution already
// running when the scheduler is created -- the boot stack kmain itself runs
// on. It carries no primed stack or page table of its own: the first
// SwitchThread call that switches away from it fills in its Save/Stack/
// TTable fields from whatever is actually live at that point, exactly like
// suspending any other running thread.
func Bootstrap(name string) *TCB {
	return &TCB{
		Name:  name,
		State: Running,
	}
}

// primeStack writes the initial stack frame top-down below top and returns
// the resulting stack pointer. Split out of Spawn so the priming layout
// itself can be exercised against a plain Go-owned buffer, without routing
// through a real page-table-backed Stack.
func primeStack(top, initAddr, mainAddr uintptr, args [4]uint64) uintptr {
	frame := []uint64{
		stackSentinel,
		uint64(mainAddr),
		args[3],
		args[2],
		args[1],
		args[0],
		0, // saved RBP
		uint64(initAddr),
	}
	for i, word := range frame {
		*(*uint64)(unsafe.Pointer(wordPtr(top, len(frame)-i))) = word
	}
	return top - uintptr(len(frame))*8
}

// wordPtr returns a pointer to the wordsFromTop'th 8-byte word below top,
// counting from 1 so wordsFromTop==1 addresses the last word below top.
func wordPtr(top uintptr, wordsFromTop int) uintptr {
	return top - uintptr(wordsFromTop)*8
}

// SwitchThread saves the caller's callee-saved registers into old.Save,
// switches the page table root if new runs under a different one, and
// loads new.Save into the registers before returning into new's stack. It
// is a leaf function implemented in assembly: the Go compiler cannot be
// trusted to keep callee-saved registers in the expected locations across
// an ordinary call, and the return address it pops on the way out belongs
// to whichever thread SwitchThread is resuming, not its caller.
//
// Callers must hold the scheduler's IrqCell guard across this call; on a
// thread's very first resume, the guard is released by init instead, since
// SwitchThread itself never returns there.
func SwitchThread(old, new *TCB)
