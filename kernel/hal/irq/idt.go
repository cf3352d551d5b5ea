package irq

// gateDescriptor is the on-disk layout of a single amd64 IDT entry: a
// 16-byte interrupt/trap gate pointing at a trampoline, annotated with the
// interrupt stack table index and descriptor privilege level to use.
type gateDescriptor struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

const (
	// kernelCodeSelector is the GDT selector installed for ring 0 code,
	// matching the flat, identity-mapped segment setup built at boot.
	kernelCodeSelector = 0x08

	// gateTypeInterrupt marks a gate that clears IF on entry, the shape
	// every vector in this kernel uses -- nested interrupts are re-enabled
	// explicitly by a handler that wants them, never implicitly by the CPU.
	gateTypeInterrupt = 0x8E
)

var idt [numVectors]gateDescriptor

func buildGate(trampoline uintptr, ist uint8) gateDescriptor {
	return gateDescriptor{
		offsetLow:  uint16(trampoline),
		selector:   kernelCodeSelector,
		ist:        ist,
		typeAttr:   gateTypeInterrupt,
		offsetMid:  uint16(trampoline >> 16),
		offsetHigh: uint32(trampoline >> 32),
	}
}

// Init populates the IDT with one gate per vector and loads it as the
// active interrupt descriptor table. Vectors whose exceptions re-enter with
// an unreliable stack pointer (double fault, NMI, machine check) run on a
// dedicated interrupt stack table slot so a second fault in the same class
// cannot corrupt the handler's own stack.
func Init() {
	for vector := 0; vector < numVectors; vector++ {
		idt[vector] = buildGate(trampolineAddr(uint8(vector)), istForVector(ExceptionNum(vector)))
	}
	loadIDT(&idt[0], uint16(len(idt)*16-1))
}

func istForVector(e ExceptionNum) uint8 {
	switch e {
	case DoubleFault, NMI, MachineCheck:
		return 1
	default:
		return 0
	}
}

// trampolineAddr returns the entry address of the per-vector assembly stub
// that saves Regs and Frame and calls into dispatchException,
// dispatchExceptionWithCode or dispatchIRQ as appropriate for the vector.
func trampolineAddr(vector uint8) uintptr

// loadIDT installs the table at base, of the given byte size minus one, as
// the CPU's active IDT (the amd64 LIDT instruction).
func loadIDT(base *gateDescriptor, limit uint16)
