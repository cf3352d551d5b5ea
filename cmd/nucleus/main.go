package main

import "github.com/nucleos-project/nucleus/kernel/kmain"

// multibootInfoPtr, kernelStart and kernelEnd are populated by the rt0
// assembly stub before it jumps here; they are package-level variables
// rather than arguments baked into the call so the compiler cannot inline
// main away and drop the real kernel code from the generated object file.
var (
	multibootInfoPtr uintptr
	kernelStart      uintptr
	kernelEnd        uintptr
)

// main is the only Go symbol visible to the rt0 initialization code. It is
// invoked after rt0 has set up the GDT and a minimal g0 struct that lets Go
// code run on the 4K bootstrap stack, and works purely as a trampoline into
// kmain.Kmain, the real kernel entrypoint.
//
// main is not expected to return. If it does, the rt0 code halts the CPU.
func main() {
	kmain.Kmain(multibootInfoPtr, kernelStart, kernelEnd)
}
