// Package timer implements the periodic 1 ms tick described in section
// 4.5, over either the legacy 8254 PIT (channel 0, edge-triggered on ISA
// IRQ 0 through the I/O APIC) or the Local APIC timer. It exposes a
// monotonic millisecond counter that never resets while the kernel is up
// and a single attachable tick handler that TaskManager hangs its
// scheduling decision off of.
package timer

import (
	"corekernel/kernel"
	"corekernel/kernel/cpu"
	"corekernel/kernel/irq"
	"corekernel/kernel/irq/apic"
	"corekernel/kernel/sync"
)

// Backend selects which hardware source drives the 1 ms tick.
type Backend uint8

const (
	// BackendPIT reloads 8254 channel 0 to fire at ~1 kHz, delivered
	// through the I/O APIC on ISA IRQ 0.
	BackendPIT Backend = iota

	// BackendLAPIC reprograms the Local APIC timer in periodic mode
	// using a count calibrated against the PIT during Initialize.
	BackendLAPIC
)

const (
	// TickPeriodMillis is the fixed tick period this package programs
	// every backend to deliver.
	TickPeriodMillis = 1

	pitFrequencyHz  = 1193182
	pitReloadValue  = pitFrequencyHz / 1000 // ~1193, yields ~1.000ms ticks
	pitChannel0Data = 0x40
	pitCommandPort  = 0x43
	pitChannel0Sel  = 0x36 // channel 0, lobyte/hibyte, mode 3, binary

	isaIRQ0 = 0

	// lapicCalibrationDivisor is used to derive a LAPIC initial-count value from a short PIT-timed window
	// when BackendLAPIC is selected; the PIT itself stays the timebase
	// used to calibrate, even though it is not the delivery source.
	lapicCalibrationDivisor = 16
)

var (
	errAlreadyInitialized = &kernel.Error{Module: "timer", Message: "timer already initialized", Kind: kernel.KindAlreadyExists}
	errNotInitialized      = &kernel.Error{Module: "timer", Message: "timer not initialized", Kind: kernel.KindInvalidParameter}

	mu          sync.Spinlock
	initialized bool
	backendKind Backend
	vector      uint8
	refCount    int32

	millisCounter sync.Atomic64
	tickHandler   TickHandler
)

// TickHandler is invoked once per tick from inside the ISR; it must be
// brief, since the Timer's own EOI and bookkeeping also run in that
// window with interrupts disabled.
type TickHandler func()

// Initialize reserves an interrupt vector, wires it to the chosen backend,
// and leaves the source masked (call Enable to start ticking). It may
// only be called once.
func Initialize(b Backend) *kernel.Error {
	mu.Acquire()
	defer mu.Release()

	if initialized {
		return errAlreadyInitialized
	}

	v, err := irq.ReserveInterrupt()
	if err != nil {
		return err
	}
	if err := irq.RegisterIRQ(v, onTick); err != nil {
		return err
	}
	vector = v
	backendKind = b

	switch b {
	case BackendPIT:
		programPIT()
		if err := apic.SetupIRQ(isaIRQ0, apic.IRQDescriptor{
			InterruptVector: vector,
			Delivery:        apic.Fixed,
			DestinationMode: apic.Physical,
			Polarity:        apic.ActiveHigh,
			Trigger:         apic.Edge,
			Masked:          true,
			Destination:     apic.GetLAPICID(),
		}); err != nil {
			return err
		}
	case BackendLAPIC:
		apic.SetTimerDivideConfiguration(lapicCalibrationDivisor)
		apic.SetTimerLVT(vector, true)
		apic.SetTimerInitialCount(calibrateLAPICCount())
		apic.MaskTimerLVT()
	}

	initialized = true
	return nil
}

// programPIT reloads channel 0 for a ~1 ms period in mode 3 (square wave).
func programPIT() {
	cpu.OutB(pitCommandPort, pitChannel0Sel)
	cpu.OutB(pitChannel0Data, uint8(pitReloadValue&0xFF))
	cpu.OutB(pitChannel0Data, uint8(pitReloadValue>>8))
}

// calibrateLAPICCount derives a LAPIC timer initial-count value for a
// ~1 ms period by polling the PIT's current-count register over a short
// window; used only when BackendLAPIC is selected, since the PIT is never
// the delivery source in that mode.
func calibrateLAPICCount() uint32 {
	const calibrationReload = 0xFFFF
	cpu.OutB(pitCommandPort, 0x34) // channel 0, lobyte/hibyte, mode 2
	cpu.OutB(pitChannel0Data, uint8(calibrationReload&0xFF))
	cpu.OutB(pitChannel0Data, uint8(calibrationReload>>8))

	apic.SetTimerInitialCount(0xFFFFFFFF)

	start := readPITCount()
	for readPITCount() > start-pitReloadValue {
		// Busy-wait one PIT tick period; readPITCount decreases toward 0.
	}

	elapsed := uint32(0xFFFFFFFF) - apic.GetTimerCurrentCount()
	if elapsed == 0 {
		elapsed = 1
	}
	return elapsed
}

func readPITCount() uint16 {
	cpu.OutB(pitCommandPort, 0x00) // latch channel 0
	lo := cpu.InB(pitChannel0Data)
	hi := cpu.InB(pitChannel0Data)
	return uint16(hi)<<8 | uint16(lo)
}

// Enable arms the tick source; calls nest via a reference count so
// multiple subsystems can request ticking without racing to unmask.
func Enable() *kernel.Error {
	mu.Acquire()
	defer mu.Release()

	if !initialized {
		return errNotInitialized
	}
	refCount++
	if refCount == 1 {
		setMasked(false)
	}
	return nil
}

// Disable releases one Enable reference; the source is masked once the
// count reaches zero.
func Disable() *kernel.Error {
	mu.Acquire()
	defer mu.Release()

	if !initialized {
		return errNotInitialized
	}
	if refCount == 0 {
		return nil
	}
	refCount--
	if refCount == 0 {
		setMasked(true)
	}
	return nil
}

func setMasked(masked bool) {
	switch backendKind {
	case BackendPIT:
		if masked {
			apic.MaskIRQ(isaIRQ0)
		} else {
			apic.UnmaskIRQ(isaIRQ0)
		}
	case BackendLAPIC:
		if masked {
			apic.MaskTimerLVT()
		} else {
			apic.UnmaskTimerLVT()
		}
	}
}

// GetCountMillis returns the monotonic millisecond counter. It never
// resets while the kernel is up; at one tick per ~584 million years of
// uint64 headroom, naive arithmetic against it is always safe.
func GetCountMillis() uint64 {
	return millisCounter.Load(sync.OrderAcquire)
}

// GetCountMicros returns GetCountMillis scaled to microseconds; this
// timer's resolution is 1 ms, so sub-millisecond precision is not
// available.
func GetCountMicros() uint64 {
	return GetCountMillis() * 1000
}

// SetHandler installs the tick callback invoked once per tick from inside
// the ISR, replacing any previous handler. Pass nil to detach.
func SetHandler(h TickHandler) {
	mu.Acquire()
	tickHandler = h
	mu.Release()
}

// ReattachIRQ replaces the raw ISR-level handler for the timer's reserved
// vector, used by TaskManager to splice the context-switch dispatcher in
// ahead of (or instead of) the plain tick bookkeeping.
func ReattachIRQ(newFn irq.IRQHandler) {
	irq.ForceIRQHandler(vector, newFn)
}

// onTick is the default ISR: advance the monotonic counter, EOI, and run
// the registered tick handler. TaskManager's scheduler dispatcher replaces
// this via ReattachIRQ but still calls back into Tick to keep the counter
// and EOI behavior centralized.
func onTick(frame *irq.Frame, regs *irq.Regs) {
	Tick()
}

// Tick performs the bookkeeping every backend's ISR must do each period:
// advance the monotonic counter, signal end-of-interrupt, and invoke the
// registered handler. Exported so a replacement ISR installed via
// ReattachIRQ (e.g. the scheduler dispatcher) can still reuse it.
func Tick() {
	millisCounter.FetchAdd(TickPeriodMillis, sync.OrderRelaxed)
	apic.SendEOI()
	if tickHandler != nil {
		tickHandler()
	}
}
