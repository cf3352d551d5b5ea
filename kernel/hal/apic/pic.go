package apic

import "github.com/nucleos-project/nucleus/kernel/cpu"

// Legacy 8259A I/O ports: a master/slave pair, each exposing a command port
// and a data port one I/O address above it.
const (
	masterCommandPort = 0x20
	masterDataPort    = 0x21
	slaveCommandPort  = 0xA0
	slaveDataPort     = 0xA1

	icw1Init     = 0x11 // edge-triggered, cascade mode, ICW4 follows
	icw4Mode8086 = 0x01

	picMaskAll = 0xFF
)

var outb = cpu.Outb

// RemapAndMask reprograms the legacy 8259A pair onto vectorBase..vectorBase+15
// (clear of the CPU exception range) and immediately masks every line on
// both chips. All interrupt delivery after this call goes through the local
// APIC; the PIC is left remapped, rather than left at its power-on vectors
// 0..15, purely so a stray legacy IRQ that slips in during the handover
// lands on a vector this kernel recognizes and drops instead of one that
// aliases a CPU exception.
func RemapAndMask(vectorBase uint8) {
	outb(masterCommandPort, icw1Init)
	outb(slaveCommandPort, icw1Init)

	outb(masterDataPort, vectorBase)    // ICW2: master's vector offset
	outb(slaveDataPort, vectorBase+8)   // ICW2: slave's vector offset
	outb(masterDataPort, 1<<2)          // ICW3: slave is cascaded on master IRQ2
	outb(slaveDataPort, 2)              // ICW3: slave's cascade identity

	outb(masterDataPort, icw4Mode8086)
	outb(slaveDataPort, icw4Mode8086)

	outb(masterDataPort, picMaskAll)
	outb(slaveDataPort, picMaskAll)
}
