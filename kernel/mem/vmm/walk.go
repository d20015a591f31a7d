package vmm

import (
	"corekernel/kernel"
	"corekernel/kernel/mem"
	"unsafe"
)

const pageLevels = 4

var (
	pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
	pageLevelBits   = [pageLevels]uint8{9, 9, 9, 9}
)

// ptePtrFn returns a pointer to the supplied entry address. Tests override
// this seam so walk can be exercised without a live recursive mapping; in
// the freestanding build this is automatically inlined away.
var ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
	return unsafe.Pointer(entryAddr)
}

// pageTableWalker receives the current page level (0 = PML4E, 3 = PTE) and
// the corresponding entry. Returning false aborts the walk.
type pageTableWalker func(level uint8, pte *pageTableEntry) bool

// walk performs a page table walk for virtAddr through the recursive
// mapping rooted at recursiveBase (either the primary or the secondary
// slot from section 4.2), invoking walkFn once per level.
func walk(virtAddr uintptr, recursiveBase uintptr, walkFn pageTableWalker) {
	var (
		level                            uint8
		tableAddr, entryAddr, entryIndex uintptr
	)

	for level, tableAddr = uint8(0), recursiveBase; level < pageLevels; level, tableAddr = level+1, entryAddr {
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		entryAddr = tableAddr + (entryIndex << mem.PointerShift)

		if !walkFn(level, (*pageTableEntry)(ptePtrFn(entryAddr))) {
			return
		}

		entryAddr <<= pageLevelBits[level]
	}
}

// pteForAddress returns the final (level-3) page table entry corresponding
// to virtAddr, following the recursive mapping rooted at recursiveBase.
// Returns ErrInvalidMapping if any intermediate level is not present.
func pteForAddress(virtAddr uintptr, recursiveBase uintptr) (*pageTableEntry, *kernel.Error) {
	var entry *pageTableEntry
	var missing bool

	walk(virtAddr, recursiveBase, func(level uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			missing = true
			return false
		}
		entry = pte
		return true
	})

	if missing {
		return nil, ErrInvalidMapping
	}
	return entry, nil
}
