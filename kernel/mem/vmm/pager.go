// Package vmm manages x86-64 4-level page tables through a self-referential
// recursive mapping, exposing map/unmap operations for kernel, user, DMA and
// transient "general" mappings (section 4.2).
package vmm

import (
	"corekernel/kernel"
	"corekernel/kernel/cpu"
	"corekernel/kernel/mem"
	"corekernel/kernel/mem/pmm"
	"corekernel/kernel/sync"
	"unsafe"
)

var (
	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported by map_page", Kind: kernel.KindInvalidParameter}
	errOutOfFrames       = &kernel.Error{Module: "vmm", Message: "frame allocator exhausted", Kind: kernel.KindOutOfMemory}
	errGeneralMapFull    = &kernel.Error{Module: "vmm", Message: "general mapping window exhausted", Kind: kernel.KindOutOfMemory}

	// flushTLBEntryFn and ptePtrFn (see walk.go) are test seams;
	// automatically inlined in the freestanding build.
	flushTLBEntryFn = cpu.FlushTLBEntry
)

// FrameAllocatorFn allocates a single physical frame.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// FrameFreerFn returns a single physical frame.
type FrameFreerFn func(pmm.Frame) *kernel.Error

// Pager implements the recursive-mapping page table manager described in
// section 4.2. A single Pager instance serves every address space; which
// address space an operation targets is selected by passing secondary=true
// (edit a foreign address space through the secondary recursive slot) or
// false (edit the currently active one through the primary slot).
type Pager struct {
	mu sync.Spinlock

	frameAlloc FrameAllocatorFn
	frameFree  FrameFreerFn

	// generalMapNext is the bump cursor map_general advances; freed
	// general mappings are not recycled, matching the kernel-lifetime
	// assumption documented for unmap_page.
	generalMapNext uintptr
}

// NewPager returns a Pager with no frame allocator registered; call
// SetFrameAllocator/SetFrameFreer before the first Map call.
func NewPager() *Pager {
	return &Pager{generalMapNext: mem.GeneralMapStart}
}

// SetFrameAllocator registers the callback used to allocate frames for
// intermediate page tables and general mappings.
func (p *Pager) SetFrameAllocator(fn FrameAllocatorFn) { p.frameAlloc = fn }

// SetFrameFreer registers the callback used to return frames when tearing
// down a secondary address space.
func (p *Pager) SetFrameFreer(fn FrameFreerFn) { p.frameFree = fn }

func recursiveBaseFor(secondary bool) uintptr {
	if secondary {
		return mem.SecondaryRecursiveBase
	}
	return mem.PrimaryRecursiveBase
}

// MapPage walks down from the recursive root, allocating and zeroing any
// missing intermediate table, then installs the leaf entry with the given
// flags (Present is always added) and invalidates the TLB for that page.
func (p *Pager) MapPage(phys pmm.Frame, virt uintptr, flags PageTableEntryFlag, secondary bool) *kernel.Error {
	p.mu.Acquire()
	defer p.mu.Release()

	var err *kernel.Error
	base := recursiveBaseFor(secondary)

	walk(virt, base, func(level uint8, pte *pageTableEntry) bool {
		if level == pageLevels-1 {
			*pte = 0
			pte.SetFrame(phys)
			pte.SetFlags(flags | FlagPresent)
			if !secondary {
				flushTLBEntryFn(virt)
			}
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		if !pte.HasFlags(FlagPresent) {
			if p.frameAlloc == nil {
				err = errOutOfFrames
				return false
			}
			newTable, allocErr := p.frameAlloc()
			if allocErr != nil {
				err = allocErr
				return false
			}

			*pte = 0
			pte.SetFrame(newTable)
			pte.SetFlags(FlagPresent | FlagRW | FlagUserAccessible)

			nextTableAddr := uintptr(unsafe.Pointer(pte)) << pageLevelBits[level]
			kernel.Memset(nextTableAddr, 0, uintptr(mem.PageSize))
		}

		return true
	})

	return err
}

// UnmapPage zeroes the leaf entry and invalidates the TLB. Intermediate
// tables are never freed (kernel lifetime assumption).
func (p *Pager) UnmapPage(virt uintptr, secondary bool) *kernel.Error {
	p.mu.Acquire()
	defer p.mu.Release()

	var err *kernel.Error
	base := recursiveBaseFor(secondary)

	walk(virt, base, func(level uint8, pte *pageTableEntry) bool {
		if level == pageLevels-1 {
			*pte = 0
			if !secondary {
				flushTLBEntryFn(virt)
			}
			return true
		}
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}
		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}
		return true
	})

	return err
}

// MapOnDemand installs non-present entries with the OnDemand bit set
// across [virt, virt+pages*PageSize). The page-fault handler allocates the
// physical backing when each page is first touched.
func (p *Pager) MapOnDemand(virt uintptr, pages uint64, flags PageTableEntryFlag, secondary bool) *kernel.Error {
	p.mu.Acquire()
	defer p.mu.Release()

	base := recursiveBaseFor(secondary)
	var err *kernel.Error

	for i := uint64(0); i < pages && err == nil; i++ {
		pageAddr := virt + uintptr(i)*uintptr(mem.PageSize)
		walk(pageAddr, base, func(level uint8, pte *pageTableEntry) bool {
			if level == pageLevels-1 {
				*pte = 0
				pte.SetFlags(flags | FlagOnDemand)
				return true
			}
			if pte.HasFlags(FlagHugePage) {
				err = errNoHugePageSupport
				return false
			}
			if !pte.HasFlags(FlagPresent) {
				if p.frameAlloc == nil {
					err = errOutOfFrames
					return false
				}
				newTable, allocErr := p.frameAlloc()
				if allocErr != nil {
					err = allocErr
					return false
				}
				*pte = 0
				pte.SetFrame(newTable)
				pte.SetFlags(FlagPresent | FlagRW | FlagUserAccessible)
				nextTableAddr := uintptr(unsafe.Pointer(pte)) << pageLevelBits[level]
				kernel.Memset(nextTableAddr, 0, uintptr(mem.PageSize))
			}
			return true
		})
	}

	return err
}

// ChangeFlags updates the non-address bits of every leaf entry across
// [virt, virt+pages*PageSize) and invalidates each page's TLB entry.
func (p *Pager) ChangeFlags(virt uintptr, pages uint64, flags PageTableEntryFlag, secondary bool) *kernel.Error {
	p.mu.Acquire()
	defer p.mu.Release()

	base := recursiveBaseFor(secondary)
	var err *kernel.Error

	for i := uint64(0); i < pages && err == nil; i++ {
		pageAddr := virt + uintptr(i)*uintptr(mem.PageSize)
		walk(pageAddr, base, func(level uint8, pte *pageTableEntry) bool {
			if level == pageLevels-1 {
				if !pte.HasFlags(FlagPresent) && !pte.HasFlags(FlagOnDemand) {
					err = ErrInvalidMapping
					return false
				}
				frame := pte.Frame()
				wasPresent := pte.HasFlags(FlagPresent)
				*pte = 0
				pte.SetFrame(frame)
				pte.SetFlags(flags)
				if wasPresent {
					pte.SetFlags(FlagPresent)
					if !secondary {
						flushTLBEntryFn(pageAddr)
					}
				}
				return true
			}
			if !pte.HasFlags(FlagPresent) {
				err = ErrInvalidMapping
				return false
			}
			return true
		})
	}

	return err
}

// MapGeneral takes the next n pages of the fixed general-mapping window
// (a bump cursor; released pages are not reused), installs them pointing
// at consecutive frames starting at phys, and returns the base virtual address. Used for transient MMIO
// windows (xHCI BAR0, LAPIC/IOAPIC, PCI ECAM slices).
func (p *Pager) MapGeneral(phys pmm.Frame, n uint64, flags PageTableEntryFlag) (uintptr, *kernel.Error) {
	p.mu.Acquire()
	base := p.generalMapNext
	p.generalMapNext += uintptr(n) * uintptr(mem.PageSize)
	overflowed := p.generalMapNext > mem.GeneralMapLimit
	p.mu.Release()

	if overflowed {
		return 0, errGeneralMapFull
	}

	for i := uint64(0); i < n; i++ {
		virt := base + uintptr(i)*uintptr(mem.PageSize)
		if err := p.MapPage(phys+pmm.Frame(i), virt, flags, false); err != nil {
			return 0, err
		}
	}

	return base, nil
}

// PhysicalOf returns the physical backing of a mapped address, honoring
// 2 MiB and 1 GiB pages, or ErrInvalidMapping if virt is not mapped.
func (p *Pager) PhysicalOf(virt uintptr, secondary bool) (uintptr, *kernel.Error) {
	p.mu.Acquire()
	defer p.mu.Release()

	base := recursiveBaseFor(secondary)
	var (
		phys uintptr
		err  *kernel.Error
	)

	walk(virt, base, func(level uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}
		if level == pageLevels-1 || pte.HasFlags(FlagHugePage) {
			mask := uintptr(mem.PageSize - 1)
			if level == 1 {
				mask = uintptr(mem.HugePageSize1G - 1)
			} else if level == 2 {
				mask = uintptr(mem.HugePageSize2M - 1)
			}
			phys = pte.Frame().Address() | (virt & mask)
			return false
		}
		return true
	})

	if err != nil {
		return 0, err
	}
	return phys, nil
}
