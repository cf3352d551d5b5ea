package sync

import "github.com/nucleos-project/nucleus/kernel/cpu"

// These indirections let tests substitute the CPU-level interrupt and pause
// primitives, which cannot run on a host test binary.
var (
	disableInterruptsSaveFn = cpu.DisableInterruptsSave
	restoreInterruptsFn     = cpu.RestoreInterrupts
	pauseFn                 = func() {}
)
