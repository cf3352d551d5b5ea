package apic

import "unsafe"

// Timer LVT bits (offset regTimerLVT): vector in bits 0..7, mask in bit 16,
// mode in bits 17..18 (0 = one-shot, 1 = periodic).
const (
	lvtMaskBit      = 1 << 16
	lvtPeriodicMode = 1 << 17
	lvtVectorMask   = 0xFF
)

// divisorCode maps a timer divisor to the byte pattern the divide
// configuration register (offset regTimerDivide) expects. The hardware
// encoding is not monotonic in the divisor value, hence the table rather
// than a formula.
var divisorCode = map[uint32]uint32{
	1:   0b1011,
	2:   0b0000,
	4:   0b0001,
	8:   0b0010,
	16:  0b0011,
	32:  0b1000,
	64:  0b1001,
	128: 0b1010,
}

// HPET register offsets, relative to the HPET's own mapped MMIO base.
const (
	hpetCapabilities  = 0x00
	hpetGeneralConfig = 0x10
	hpetMainCounter   = 0xF0

	hpetEnableBit = 1 << 0
)

// Timer is the local APIC's timer: a single periodic or one-shot source,
// calibrated once at boot against the HPET so tick counts can be converted
// to and from wall-clock time.
type Timer struct {
	irqVector    uint8
	divisor      uint32
	picosPerTick uint64
}

// NewTimer creates a Timer for the already-initialized local APIC.
func NewTimer() *Timer {
	return &Timer{divisor: 16}
}

// SetIRQNumber sets the vector the timer's LVT entry delivers to.
func (t *Timer) SetIRQNumber(vector uint8) {
	t.irqVector = vector
}

// SetDivisor sets the APIC timer's clock divisor (1, 2, 4, ..., 128).
func (t *Timer) SetDivisor(divisor uint32) {
	t.divisor = divisor
	write(regTimerDivide, divisorCode[divisor])
}

// GetTimePeriodPicos returns the calibrated time, in picoseconds, that one
// APIC timer tick (at the currently configured divisor) represents.
func (t *Timer) GetTimePeriodPicos() uint64 {
	return t.picosPerTick
}

// SetOneshotTime arms the timer to fire once after the given tick count.
func (t *Timer) SetOneshotTime(ticks uint32) {
	write(regTimerLVT, uint32(t.irqVector))
	write(regTimerInitCount, ticks)
}

// StartPeriodic arms the timer to fire every ticks ticks until StopPeriodic
// is called.
func (t *Timer) StartPeriodic(ticks uint32) {
	write(regTimerLVT, uint32(t.irqVector)|lvtPeriodicMode)
	write(regTimerInitCount, ticks)
}

// StopPeriodic masks the timer's LVT entry, halting delivery without losing
// the configured vector or divisor.
func (t *Timer) StopPeriodic() {
	write(regTimerLVT, read(regTimerLVT)|lvtMaskBit)
}

// EoiHandle is a cheap handle carrying only the mapped APIC base, returned
// by EoiHandle so an IRQ handler's EOI phase can acknowledge the interrupt
// without re-acquiring whatever lock guards the full Timer.
type EoiHandle struct {
	apicBase uintptr
}

// EOI signals end-of-interrupt through this handle's APIC base.
func (h EoiHandle) EOI() {
	*(*uint32)(unsafe.Pointer(h.apicBase + regEOI)) = 0
}

// EoiHandleFor returns an EoiHandle bound to the local APIC Init installed.
func (t *Timer) EoiHandle() EoiHandle {
	return EoiHandle{apicBase: base}
}

// readHPETCounter and hpetEnabled are small helpers over a caller-mapped
// HPET MMIO base, kept free functions (rather than methods) since the HPET
// is used only as a transient calibration reference, never a Timer field.
func readHPETCounter(hpetBase uintptr) uint64 {
	return *(*uint64)(unsafe.Pointer(hpetBase + hpetMainCounter))
}

func hpetPeriodFemtos(hpetBase uintptr) uint64 {
	caps := *(*uint64)(unsafe.Pointer(hpetBase + hpetCapabilities))
	return caps >> 32
}

func ensureHPETEnabled(hpetBase uintptr) {
	cfg := (*uint64)(unsafe.Pointer(hpetBase + hpetGeneralConfig))
	*cfg |= hpetEnableBit
}

// Calibrate measures GetTimePeriodPicos using the HPET as a reference
// clock, per the calibration algorithm: mask the timer, set the divisor,
// capture the HPET counter, arm a one-shot of calibrationTicks APIC ticks,
// spin until it expires, capture the HPET again, then restore the timer's
// previous LVT entry and divisor.
func (t *Timer) Calibrate(hpetBase uintptr, calibrationTicks uint32) {
	ensureHPETEnabled(hpetBase)

	prevLVT := read(regTimerLVT)
	prevDivide := read(regTimerDivide)

	write(regTimerLVT, read(regTimerLVT)|lvtMaskBit)
	t.SetDivisor(t.divisor)

	startCount := readHPETCounter(hpetBase)
	write(regTimerInitCount, calibrationTicks)
	for read(regTimerCurCount) != 0 {
	}
	endCount := readHPETCounter(hpetBase)

	hpetTicksElapsed := endCount - startCount
	hpetPeriodFs := hpetPeriodFemtos(hpetBase)

	// picoseconds = femtoseconds / 1000; the APIC runs at half the bus
	// clock (the "divide-by-2" the spec calls out), hence *2000 rather
	// than *1000 in the denominator.
	t.picosPerTick = (hpetTicksElapsed * hpetPeriodFs) / (uint64(calibrationTicks) * 2000)

	write(regTimerLVT, prevLVT)
	write(regTimerDivide, prevDivide)
}
