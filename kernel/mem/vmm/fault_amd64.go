package vmm

import (
	"corekernel/kernel"
	"corekernel/kernel/cpu"
	"corekernel/kernel/irq"
	"corekernel/kernel/kfmt"
	"corekernel/kernel/mem"
)

var (
	readCR2Fn = cpu.ReadCR2

	errPresentPageFault = &kernel.Error{Module: "vmm", Message: "page fault with present bit set", Kind: kernel.KindDeviceError}
	errSwapNotSupported  = &kernel.Error{Module: "vmm", Message: "swap not supported", Kind: kernel.KindUnavailable}
	errHugePageFault     = &kernel.Error{Module: "vmm", Message: "fault on huge page", Kind: kernel.KindUnavailable}
)

// pagerInstance is the Pager the installed #PF handler operates against.
// There is exactly one Pager for the whole kernel (every address space is
// reached through the primary/secondary recursive slots of that single
// instance), so the handler closes over it rather than taking a receiver —
// irq.HandleExceptionWithCode requires a plain function value.
var pagerInstance *Pager

// InstallFaultHandlers registers the #PF handler against the given Pager;
// no #GP handler is registered here. Called once during boot after the Pager and the interrupt
// fabric are both initialized.
func InstallFaultHandlers(p *Pager) {
	pagerInstance = p
	irq.HandleExceptionWithCode(irq.PageFaultException, pageFaultHandler)
}

// pageFaultHandler implements the on-demand-only fault policy of section
// 4.2: if the present bit in the error code is set, panic (no CoW, no
// protection-violation recovery in this design); otherwise parse CR2,
// locate the PTE via the recursive mapping, and if the on-demand bit is
// set, allocate a frame and install it, preserving the original
// user/RW/global/PAT/PCD/PWT bits plus Present. Any other case panics.
func pageFaultHandler(errorCode uint64, frame *irq.Frame, regs *irq.Regs) {
	faultAddr := readCR2Fn()
	presentBit := errorCode&0x1 != 0

	if presentBit {
		dumpFault(faultAddr, errorCode, frame, regs)
		kfmt.PanicShutdown("vmm", "page fault with present bit set", kernel.KindDeviceError)
		return
	}

	pageAddr := faultAddr &^ uintptr(mem.PageSize-1)

	var (
		target  *pageTableEntry
		missing bool
		huge    bool
	)
	walk(pageAddr, mem.PrimaryRecursiveBase, func(level uint8, pte *pageTableEntry) bool {
		if level == pageLevels-1 {
			target = pte
			return true
		}
		if pte.HasFlags(FlagHugePage) {
			huge = true
			return false
		}
		if !pte.HasFlags(FlagPresent) {
			missing = true
			return false
		}
		return true
	})

	if huge {
		dumpFault(faultAddr, errorCode, frame, regs)
		kfmt.PanicShutdown("vmm", errHugePageFault.Message, kernel.KindUnavailable)
		return
	}
	if missing || target == nil || !target.HasFlags(FlagOnDemand) {
		dumpFault(faultAddr, errorCode, frame, regs)
		kfmt.PanicShutdown("vmm", errSwapNotSupported.Message, kernel.KindUnavailable)
		return
	}

	// Bit 7 of a 4 KiB leaf PTE is PAT (FlagHugePage only at higher levels).
	preserved := *target & pageTableEntry(FlagRW|FlagUserAccessible|FlagWriteThroughCaching|FlagDoNotCache|FlagHugePage|FlagGlobal)

	newFrame, err := pagerInstance.frameAlloc()
	if err != nil {
		dumpFault(faultAddr, errorCode, frame, regs)
		kfmt.PanicShutdown("vmm", "out of frames servicing on-demand fault", kernel.KindOutOfMemory)
		return
	}

	*target = 0
	target.SetFrame(newFrame)
	target.SetFlags(FlagPresent | PageTableEntryFlag(preserved))
	kernel.Memset(pageAddr, 0, uintptr(mem.PageSize))
	flushTLBEntryFn(pageAddr)
}

func dumpFault(faultAddr uintptr, errorCode uint64, frame *irq.Frame, regs *irq.Regs) {
	kfmt.Printf("\npage fault while accessing address: 0x%16x\nerror code: 0x%x\n", faultAddr, errorCode)
	regs.Print()
	frame.Print()
}
