package vmm

import (
	"corekernel/kernel"
	"corekernel/kernel/cpu"
	"corekernel/kernel/mem"
	"corekernel/kernel/mem/pmm"
)

// AddressSpace identifies a task's page tables by the physical address of
// its PML4 (its CR3 value).
type AddressSpace struct {
	CR3 uintptr
}

// kernelHalfPML4Start is the first PML4 index belonging to the shared
// kernel half of the address space (bit 63 set); every address space
// shares these top-level entries.
const kernelHalfPML4Start = 256

// DeriveFreshCR3 allocates a new PML4 frame, zeroes it, maps it through the
// secondary recursive slot, copies every kernel-half PML4E from the
// currently active address space into it (so kernel text/data/heap stay
// shared), and pre-installs an on-demand mapping for the new task's kernel
// stack with a guarded bottom page. The new address space is not yet
// activated; the caller installs it into a Task's context and switches to
// it via cpu.WriteCR3 at context-switch time.
func (p *Pager) DeriveFreshCR3(taskID uint64) (*AddressSpace, *kernel.Error) {
	if p.frameAlloc == nil {
		return nil, errOutOfFrames
	}

	pml4Frame, err := p.frameAlloc()
	if err != nil {
		return nil, err
	}

	if err := p.MapPage(pml4Frame, mem.SecondaryRecursiveBase&^uintptr(mem.PageSize-1), FlagPresent|FlagRW, false); err != nil {
		return nil, err
	}
	kernel.Memset(mem.SecondaryRecursiveBase&^uintptr(mem.PageSize-1), 0, uintptr(mem.PageSize))

	for idx := kernelHalfPML4Start; idx < 512; idx++ {
		primaryEntryAddr := mem.PrimaryRecursiveBase + uintptr(idx)<<mem.PointerShift
		secondaryEntryAddr := mem.SecondaryRecursiveBase + uintptr(idx)<<mem.PointerShift
		*(*pageTableEntry)(ptePtrFn(secondaryEntryAddr)) = *(*pageTableEntry)(ptePtrFn(primaryEntryAddr))
	}

	// Point the new PML4's own secondary-recursive slot back at itself so
	// the new task, once activated as primary, can still be edited
	// through its own primary slot, and install its own self-referential
	// primary slot entry too.
	primarySlotAddr := mem.SecondaryRecursiveBase + uintptr(mem.PrimaryRecursiveSlot)<<mem.PointerShift
	secondarySlotAddr := mem.SecondaryRecursiveBase + uintptr(mem.SecondaryRecursiveSlot)<<mem.PointerShift
	selfEntry := pageTableEntry(0)
	selfEntry.SetFrame(pmm.Frame(pml4Frame))
	selfEntry.SetFlags(FlagPresent | FlagRW)
	*(*pageTableEntry)(ptePtrFn(primarySlotAddr)) = selfEntry
	*(*pageTableEntry)(ptePtrFn(secondarySlotAddr)) = selfEntry

	stackBase := mem.PerTaskMemStart + uintptr(taskID)*mem.PerTaskRegionSize + uintptr(mem.PageSize)
	stackPages := uint64(mem.PerTaskStackPages)
	if err := p.MapOnDemand(stackBase, stackPages, FlagRW, true); err != nil {
		return nil, err
	}

	return &AddressSpace{CR3: pml4Frame.Address()}, nil
}

// FreeSecondaryRecursiveMapping walks every user PML4E of the address
// space currently installed in the secondary slot, recursively freeing
// every present page table and every 4 KiB/2 MiB/1 GiB leaf frame back to
// the allocator, then clears the secondary PML4 slot and flushes the TLB.
// Called only after the owning task has terminated and no other thread
// holds a reference (section 3's AddressSpace lifecycle).
func (p *Pager) FreeSecondaryRecursiveMapping() *kernel.Error {
	if p.frameFree == nil {
		return errOutOfFrames
	}

	for pml4Idx := 0; pml4Idx < kernelHalfPML4Start; pml4Idx++ {
		pml4EntryAddr := mem.SecondaryRecursiveBase + uintptr(pml4Idx)<<mem.PointerShift
		pml4e := (*pageTableEntry)(ptePtrFn(pml4EntryAddr))
		if !pml4e.HasFlags(FlagPresent) {
			continue
		}
		if err := p.freeSubtree(mem.SecondaryRecursiveBase, pml4Idx, 0); err != nil {
			return err
		}
		if err := p.frameFree(pml4e.Frame()); err != nil {
			return err
		}
		*pml4e = 0
	}

	secondaryPML4SelfAddr := mem.SecondaryRecursiveBase + uintptr(mem.SecondaryRecursiveSlot)<<mem.PointerShift
	*(*pageTableEntry)(ptePtrFn(secondaryPML4SelfAddr)) = 0
	cpu.FlushTLBEntry(mem.SecondaryRecursiveBase)

	return nil
}

// freeSubtree recursively frees every present child table and leaf frame
// reachable from the entry at the given index of the table addressed by
// tableBase at paging level `level` (0 = PML4, 3 would be a leaf and is
// never recursed into further).
func (p *Pager) freeSubtree(tableBase uintptr, index int, level uint8) *kernel.Error {
	entryAddr := tableBase + uintptr(index)<<mem.PointerShift
	entry := (*pageTableEntry)(ptePtrFn(entryAddr))
	if !entry.HasFlags(FlagPresent) {
		return nil
	}

	if level == pageLevels-1 || entry.HasFlags(FlagHugePage) {
		return p.frameFree(entry.Frame())
	}

	childTableBase := entryAddr << pageLevelBits[level]
	for i := 0; i < 512; i++ {
		if err := p.freeSubtree(childTableBase, i, level+1); err != nil {
			return err
		}
	}

	return p.frameFree(entry.Frame())
}
