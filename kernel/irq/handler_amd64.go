package irq

import (
	"corekernel/kernel"
	"corekernel/kernel/sync"
)

// ExceptionNum identifies one of the 32 CPU-reserved exception vectors.
type ExceptionNum uint8

const (
	// DivideByZero occurs when dividing by zero via DIV/IDIV.
	DivideByZero = ExceptionNum(0)

	// NMI is a non-maskable hardware interrupt signaling unrecoverable
	// hardware conditions.
	NMI = ExceptionNum(2)

	// Overflow occurs when the INTO instruction detects an overflow.
	Overflow = ExceptionNum(4)

	// BoundRangeExceeded occurs when BOUND is invoked with an
	// out-of-range index.
	BoundRangeExceeded = ExceptionNum(5)

	// InvalidOpcode occurs when the CPU decodes an undefined opcode.
	InvalidOpcode = ExceptionNum(6)

	// DeviceNotAvailable occurs when an FPU/MMX/SSE instruction runs
	// with no FPU present or FPU access disabled in CR0.
	DeviceNotAvailable = ExceptionNum(7)

	// DoubleFault occurs when an exception is unhandled or when an
	// exception occurs while the CPU is already servicing one.
	DoubleFault = ExceptionNum(8)

	// InvalidTSS occurs when the TSS references an invalid segment
	// selector.
	InvalidTSS = ExceptionNum(10)

	// SegmentNotPresent occurs when a present gate is invoked through
	// an invalid stack segment selector.
	SegmentNotPresent = ExceptionNum(11)

	// StackSegmentFault occurs on a non-canonical stack access or a
	// stack segment limit violation.
	StackSegmentFault = ExceptionNum(12)

	// GPFException is raised on a general protection fault.
	GPFException = ExceptionNum(13)

	// PageFaultException is raised when a page-table entry is missing
	// or a privilege/RW check fails.
	PageFaultException = ExceptionNum(14)

	// FloatingPointException is raised by an unmasked x87 FP exception.
	FloatingPointException = ExceptionNum(16)

	// AlignmentCheck is raised on an unaligned access with alignment
	// checking enabled.
	AlignmentCheck = ExceptionNum(17)

	// MachineCheck signals an internal CPU-detected hardware error.
	MachineCheck = ExceptionNum(18)

	// SIMDFloatingPointException is raised by an unmasked SSE exception.
	SIMDFloatingPointException = ExceptionNum(19)
)

// vectorTableSize is the number of IDT entries (8086-compatible limit of
// 256 interrupt/exception/trap vectors on x86-64).
const vectorTableSize = 256

// reservedExceptionVectors is the first block of vectors the CPU itself
// dispatches to; they are never available for IRQ/MSI assignment.
const reservedExceptionVectors = 32

// softwareYieldVector is reserved at init time for a future cooperative
// yield trap, mirroring the fixed software-interrupt vector carved out of
// the usable range before any device claims one.
const softwareYieldVector = 0x21

// ExceptionHandler handles an exception that does not push an error code.
// Any modification the handler makes to frame/regs is propagated back to
// the faulting context on return.
type ExceptionHandler func(frame *Frame, regs *Regs)

// ExceptionHandlerWithCode handles an exception that pushes an error code.
type ExceptionHandlerWithCode func(errorCode uint64, frame *Frame, regs *Regs)

// IRQHandler handles a hardware interrupt or MSI delivered on a
// non-exception vector.
type IRQHandler func(frame *Frame, regs *Regs)

var (
	errNoVectorsAvailable = &kernel.Error{Module: "irq", Message: "no interrupt vectors available", Kind: kernel.KindOutOfBounds}
	errVectorInUse        = &kernel.Error{Module: "irq", Message: "interrupt vector already in use", Kind: kernel.KindAlreadyExists}
	errVectorNotReserved  = &kernel.Error{Module: "irq", Message: "interrupt vector was not reserved", Kind: kernel.KindInvalidParameter}

	reserveMu    sync.Spinlock
	usageBitmap  [vectorTableSize / 64]uint64

	exceptionHandlers     [reservedExceptionVectors]ExceptionHandler
	exceptionCodeHandlers [reservedExceptionVectors]ExceptionHandlerWithCode
	irqHandlers           [vectorTableSize]IRQHandler
)

func init() {
	for v := 0; v < reservedExceptionVectors; v++ {
		markReserved(uint8(v))
	}
	markReserved(softwareYieldVector)
}

func markReserved(vector uint8) {
	usageBitmap[vector/64] |= 1 << (vector % 64)
}

func markFree(vector uint8) {
	usageBitmap[vector/64] &^= 1 << (vector % 64)
}

func isReserved(vector uint8) bool {
	return usageBitmap[vector/64]&(1<<(vector%64)) != 0
}

// ReserveInterrupt claims the first free vector at or above
// reservedExceptionVectors and returns it, for use by device drivers that
// need a dedicated IRQ or MSI vector.
func ReserveInterrupt() (uint8, *kernel.Error) {
	reserveMu.Acquire()
	defer reserveMu.Release()

	for v := reservedExceptionVectors; v < vectorTableSize; v++ {
		if !isReserved(uint8(v)) {
			markReserved(uint8(v))
			return uint8(v), nil
		}
	}
	return 0, errNoVectorsAvailable
}

// ReleaseInterrupt returns a previously reserved vector to the free pool
// and clears any handler installed on it.
func ReleaseInterrupt(vector uint8) *kernel.Error {
	reserveMu.Acquire()
	defer reserveMu.Release()

	if !isReserved(vector) || vector < reservedExceptionVectors {
		return errVectorNotReserved
	}
	markFree(vector)
	irqHandlers[vector] = nil
	return nil
}

// HandleException registers an exception handler (without an error code)
// for the given CPU exception vector.
func HandleException(exceptionNum ExceptionNum, handler ExceptionHandler) {
	exceptionHandlers[exceptionNum] = handler
}

// HandleExceptionWithCode registers an exception handler (with an error
// code) for the given CPU exception vector.
func HandleExceptionWithCode(exceptionNum ExceptionNum, handler ExceptionHandlerWithCode) {
	exceptionCodeHandlers[exceptionNum] = handler
}

// RegisterIRQ installs handler on a previously reserved vector. It fails if
// the vector was never reserved or already carries a handler.
func RegisterIRQ(vector uint8, handler IRQHandler) *kernel.Error {
	reserveMu.Acquire()
	defer reserveMu.Release()

	if !isReserved(vector) || vector < reservedExceptionVectors {
		return errVectorNotReserved
	}
	if irqHandlers[vector] != nil {
		return errVectorInUse
	}
	irqHandlers[vector] = handler
	return nil
}

// ForceIRQHandler installs handler on vector unconditionally, overwriting
// whatever was previously registered. Used for the early PIC remap aliases
// and other fixed, pre-reserved assignments set up before drivers attach.
func ForceIRQHandler(vector uint8, handler IRQHandler) {
	reserveMu.Acquire()
	defer reserveMu.Release()
	markReserved(vector)
	irqHandlers[vector] = handler
}
