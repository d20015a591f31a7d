// Package pmm manages physical memory frame allocation: an ascending
// free-block list for conventional memory and a dedicated bitmap for the
// legacy 16 MiB DMA zone.
package pmm

import (
	"corekernel/kernel/mem"
	"math"
)

// Frame describes a physical memory page index (not a raw address).
type Frame uintptr

// InvalidFrame is returned by allocators when they fail to reserve the
// requested frame.
const InvalidFrame = Frame(math.MaxUint64)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of this frame, masked to the
// architectural MAXPHYADDR and rounded down to a page boundary.
func (f Frame) Address() uintptr {
	const maxPhyAddrMask = uintptr(1)<<mem.MaxPhyAddrBits - 1
	return (uintptr(f) << mem.PageShift) & maxPhyAddrMask &^ uintptr(mem.PageSize-1)
}

// FrameFromAddress returns the Frame containing the given physical
// address.
func FrameFromAddress(addr uintptr) Frame {
	return Frame(addr >> mem.PageShift)
}
