// Package sched implements the kernel's cooperative, per-CPU thread
// scheduler: a TID-keyed task table, a FIFO ready queue and the handful of
// operations (add_task, schedule, block, thread_yield) that drive them.
package sched

import (
	"github.com/google/btree"

	"github.com/nucleos-project/nucleus/kernel"
	"github.com/nucleos-project/nucleus/kernel/thread"
)

// TID identifies a thread within one CPU's scheduler.
type TID uint64

// ErrDuplicateTID is returned by the internal two-entry lookup when asked
// to fetch the same TID twice; per the scheduler's contract this indicates
// a bug in the caller, not a runtime condition any legitimate code path can
// trigger.
var ErrDuplicateTID = &kernel.Error{Module: "sched", Message: "duplicate TID requested from task table"}

type taskEntry struct {
	tid TID
	tcb *thread.TCB
}

// Less implements btree.Item, ordering entries by TID.
func (e *taskEntry) Less(than btree.Item) bool {
	return e.tid < than.(*taskEntry).tid
}

// Scheduler is per-CPU state: every method assumes the caller already holds
// whatever IrqCell guards it, so none of them take a lock themselves.
type Scheduler struct {
	tasks       *btree.BTree
	ready       []TID
	current     TID
	nextTID     TID
	haveCurrent bool
}

// bootstrapTID is reserved for the thread of execution already running when
// a Scheduler is created -- the stack kmain itself runs on -- so that the
// very first Schedule call always has a valid outgoing task to switch from.
const bootstrapTID TID = 0

// New creates a scheduler whose current task is TID 0, a bootstrap entry
// representing the caller's own, already-running thread of execution.
// AddTask's first real task is therefore always TID 1.
func New() *Scheduler {
	s := &Scheduler{tasks: btree.New(32)}
	s.tasks.ReplaceOrInsert(&taskEntry{tid: bootstrapTID, tcb: thread.Bootstrap("bootstrap")})
	s.current, s.haveCurrent = bootstrapTID, true
	return s
}

// AddTask allocates a fresh TID for tcb, inserts it into the task table and
// enqueues it onto the ready queue, returning the assigned TID.
func (s *Scheduler) AddTask(tcb *thread.TCB) TID {
	s.nextTID++
	tid := s.nextTID
	s.tasks.ReplaceOrInsert(&taskEntry{tid: tid, tcb: tcb})
	s.ready = append(s.ready, tid)
	return tid
}

func (s *Scheduler) lookup(tid TID) *thread.TCB {
	item := s.tasks.Get(&taskEntry{tid: tid})
	if item == nil {
		return nil
	}
	return item.(*taskEntry).tcb
}

// twoDistinct fetches the TCBs for two TIDs that must not be the same task,
// mirroring the source's "get two distinct mutable entries" guard: a
// duplicate is a logic bug, surfaced as an error here rather than allowed
// to alias the same TCB under two names.
func (s *Scheduler) twoDistinct(a, b TID) (*thread.TCB, *thread.TCB, *kernel.Error) {
	if a == b {
		return nil, nil, ErrDuplicateTID
	}
	return s.lookup(a), s.lookup(b), nil
}

// popReady removes and returns the head of the FIFO ready queue, or false
// if it is empty.
func (s *Scheduler) popReady() (TID, bool) {
	if len(s.ready) == 0 {
		return 0, false
	}
	tid := s.ready[0]
	s.ready = s.ready[1:]
	return tid, true
}

// Schedule picks the next task to run and switches to it. If the ready
// queue is empty and the current task is still Running, it simply returns
// (there is nothing better to do than keep running). If the ready queue's
// only entry is the current task, switching to self is skipped entirely.
// With nothing runnable and no current task, it idles: halting with
// interrupts enabled until the next IRQ wakes it to try again.
func (s *Scheduler) Schedule() {
	for {
		next, ok := s.popReady()
		if !ok {
			if s.haveCurrent && s.lookup(s.current).State == thread.Running {
				return
			}
			idleFn()
			continue
		}

		if s.haveCurrent && next == s.current {
			return
		}

		s.switchTo(next)
		return
	}
}

func (s *Scheduler) switchTo(next TID) {
	var oldTCB, newTCB *thread.TCB

	if s.haveCurrent {
		// next != s.current is guaranteed by Schedule before switchTo is
		// called, so this can only fail on a caller bug.
		var err *kernel.Error
		if oldTCB, newTCB, err = s.twoDistinct(s.current, next); err != nil {
			panic(err)
		}
		// Requeue the outgoing task whenever it is still runnable: a
		// preempted task is still Running here, and a yielding task has
		// already been marked Ready by Block before Schedule was called.
		// Only a task put to sleep via Block(thread.Blocked) must be
		// dropped from the ready queue.
		if oldTCB.State != thread.Blocked {
			oldTCB.State = thread.Ready
			s.ready = append(s.ready, s.current)
		}
	} else {
		newTCB = s.lookup(next)
	}

	newTCB.State = thread.Running
	s.current, s.haveCurrent = next, true
	switchThreadFn(oldTCB, newTCB)
}

// switchThreadFn indirects thread.SwitchThread, the asm leaf function that
// cannot run on a host test binary.
var switchThreadFn = thread.SwitchThread

// Block sets the current task's state (Blocked, or any other non-Running
// state the caller chooses) and reschedules; the task will not reappear on
// the ready queue until something else transitions it back to Ready.
func (s *Scheduler) Block(state thread.State) {
	if s.haveCurrent {
		s.lookup(s.current).State = state
	}
	s.Schedule()
}

// ThreadYield cooperatively yields the CPU while keeping the caller
// runnable: it is exactly Block(Ready).
func (s *Scheduler) ThreadYield() {
	s.Block(thread.Ready)
}

// idleFn halts the CPU with interrupts enabled until the next IRQ, then
// returns so Schedule can retry the ready queue. Overridable for tests.
var idleFn = defaultIdle
