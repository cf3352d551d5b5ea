package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the value stored in the CR2 register, i.e. the faulting
// address of the most recent page fault.
func ReadCR2() uint64

// Outb writes a byte to the given I/O port (the OUT instruction).
func Outb(port uint16, value uint8)

// Inb reads a byte from the given I/O port (the IN instruction).
func Inb(port uint16) uint8

// DisableInterruptsSave disables local interrupts and returns whether they
// were enabled beforehand, so the caller can restore exactly that state
// later via RestoreInterrupts. Used by the interrupt-safe lock types so a
// nested acquire on the same core does not wrongly re-enable interrupts an
// outer acquire is still relying on staying off.
func DisableInterruptsSave() bool

// RestoreInterrupts re-enables local interrupts if wasEnabled is true, and
// otherwise leaves them disabled.
func RestoreInterrupts(wasEnabled bool)

var cpuidFn = ID

// ID returns information about the CPU and its features. It is implemented
// as a CPUID instruction with EAX=leaf and returns the values placed in EAX,
// EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}
