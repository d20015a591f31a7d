package irq

import (
	"corekernel/kernel"
	"corekernel/kernel/kfmt"
)

// goRouteInterrupt is invoked by commonDispatch (idt_amd64.s) once per
// interrupt, after it has saved every general-purpose register into regs
// and located the CPU-pushed exception frame. vector identifies which gate
// fired; errorCode is the CPU-pushed error code for the vectors that carry
// one and zero for every other vector.
func goRouteInterrupt(vector uint8, errorCode uint64, frame *Frame, regs *Regs) {
	if vector < reservedExceptionVectors {
		if h := exceptionCodeHandlers[vector]; h != nil {
			h(errorCode, frame, regs)
			return
		}
		if h := exceptionHandlers[vector]; h != nil {
			h(frame, regs)
			return
		}
		kfmt.PanicShutdown("irq", "unhandled CPU exception", kernel.KindDeviceError)
		return
	}

	if h := irqHandlers[vector]; h != nil {
		h(frame, regs)
		return
	}
	kfmt.PanicShutdown("irq", "unhandled interrupt vector", kernel.KindDeviceError)
}
