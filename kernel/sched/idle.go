package sched

import "github.com/nucleos-project/nucleus/kernel/cpu"

// defaultIdle halts the CPU with interrupts enabled until the next IRQ
// fires. The interrupt handler (almost always the timer) is expected to
// requeue a task before returning, so Schedule's retry loop finds
// something runnable the next time around.
func defaultIdle() {
	cpu.EnableInterrupts()
	cpu.Halt()
}
