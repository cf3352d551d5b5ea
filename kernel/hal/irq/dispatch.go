package irq

import (
	"github.com/nucleos-project/nucleus/kernel/cpu"
	"github.com/nucleos-project/nucleus/kernel/kfmt"
)

// numVectors is the size of the IDT: 32 architectural exceptions plus the
// 224 vectors available for device IRQs.
const numVectors = 256

const (
	// legacyPICBase is the first of the 16 vectors the legacy 8259A pair is
	// remapped to during early boot. The PIC is fully masked immediately
	// after the remap, so nothing should ever arrive here once the local
	// APIC is up; a vector in this range is logged and dropped rather than
	// treated as a bug, since a spurious legacy IRQ can still be raised by
	// hardware racing the PIC-to-APIC handover.
	legacyPICBase = 32
	legacyPICEnd  = 48

	// FirstIRQVector is the first vector routed to the per-CPU IRQ handler
	// table; everything below it is either an architectural exception or
	// the masked legacy PIC range.
	FirstIRQVector = 48

	// SpuriousVector is the vector the local APIC is programmed to raise
	// when it withdraws an interrupt it already began delivering.
	SpuriousVector = 255
)

var (
	exceptionHandlers         [numVectors]ExceptionHandler
	exceptionHandlersWithCode [numVectors]ExceptionHandlerWithCode
	irqHandlers               [numVectors]Handler
)

// HandleException registers an exception handler (without an error code) for
// the given vector, overwriting any previously registered handler.
func HandleException(exceptionNum ExceptionNum, handler ExceptionHandler) {
	exceptionHandlers[exceptionNum] = handler
}

// HandleExceptionWithCode registers an exception handler (with an error
// code) for the given vector, overwriting any previously registered handler.
func HandleExceptionWithCode(exceptionNum ExceptionNum, handler ExceptionHandlerWithCode) {
	exceptionHandlersWithCode[exceptionNum] = handler
}

// HandleIRQ registers a device interrupt handler for the given IRQ number,
// overwriting any previously registered handler.
func HandleIRQ(irqNum IRQNum, handler Handler) {
	irqHandlers[FirstIRQVector+irqNum] = handler
}

// dispatchException is the common entry point every exception trampoline
// that does not push an error code funnels through. It is called with
// interrupts disabled and the vector's handler, if any, unmasked to run.
//
//go:nosplit
func dispatchException(vector uint8, frame *Frame, regs *Regs) {
	if h := exceptionHandlers[vector]; h != nil {
		h(frame, regs)
		return
	}
	unhandled(ExceptionNum(vector), frame, regs)
}

// dispatchExceptionWithCode is the common entry point for exceptions that
// push an error code word ahead of the trampoline-saved frame.
//
//go:nosplit
func dispatchExceptionWithCode(vector uint8, errCode uint64, frame *Frame, regs *Regs) {
	if h := exceptionHandlersWithCode[vector]; h != nil {
		h(errCode, frame, regs)
		return
	}
	unhandled(ExceptionNum(vector), frame, regs)
}

// dispatchIRQ is the common entry point for device interrupts. It runs the
// handler's main phase, then its EOI phase; a handler with no Main
// registered yet is treated as spurious and only EOI'd if it supplied one.
//
//go:nosplit
func dispatchIRQ(vector uint8, frame *Frame, regs *Regs) {
	if vector >= legacyPICBase && vector < legacyPICEnd {
		kfmt.Printf("dropped masked legacy PIC vector %d\n", vector)
		return
	}
	if vector == SpuriousVector {
		kfmt.Printf("dropped APIC spurious interrupt\n")
		return
	}

	h := irqHandlers[vector]
	if h.Main != nil {
		h.Main(frame, regs)
	}
	if h.EOI != nil {
		h.EOI()
	}
}

// unhandled is reached when an exception fires with no registered handler.
// Per the kernel-wide policy that a failure inside interrupt context is
// fatal, this prints a diagnostic and halts rather than returning.
func unhandled(num ExceptionNum, frame *Frame, regs *Regs) {
	kfmt.Printf("unhandled exception %d: %s (fault=%v, errCode=%v)\n", num, num.Kind(), num.Fault(), num.HasErrorCode())
	frame.Print()
	regs.Print()
	for {
		cpu.Halt()
	}
}
