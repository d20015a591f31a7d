package kfmt

import (
	"corekernel/kernel"
	"corekernel/kernel/cpu"
)

var (
	// cpuHaltFn is overridden by tests and inlined by the compiler in the
	// freestanding build.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause", Kind: kernel.KindUnavailable}
)

// Panic writes the supplied error (if any) to the active output sink and
// halts the CPU. Panic never returns.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		panicString(t)
		return
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	cpuHaltFn()
}

// panicString serves as a redirect target for runtime.throw.
func panicString(msg string) {
	errRuntimePanic.Message = msg
	Panic(errRuntimePanic)
}

// PanicShutdown is used by call sites (e.g. the xHCI bring-up sequence)
// that need to report a fatal condition tied to a specific module and
// error kind without constructing a *kernel.Error by hand.
func PanicShutdown(module, message string, kind kernel.Kind) {
	Panic(&kernel.Error{Module: module, Message: message, Kind: kind})
}
