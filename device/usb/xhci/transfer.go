package xhci

import "corekernel/kernel/sync"

// TransferRing is a single-segment, spinlock-serialized ring used for a
// device's default control endpoint transfers (Setup/Data/Status stage
// TRBs) and for the interrupt IN endpoint a class driver like device/usb/hid
// polls, mirroring CommandRing's cycle-bit discipline (section 4.7).
type TransferRing struct {
	mu       sync.Spinlock
	trbs     []TRB
	physBase uint64
	enqueue  int
	cycle    bool
}

// NewTransferRing wraps a zeroed, already-mapped page of TRB slots,
// installing the trailing Link TRB every single-segment ring in this
// driver relies on to self-wrap.
func NewTransferRing(virtAddr uintptr, physAddr uint64, pageSize uintptr) *TransferRing {
	trbs := ringAt(virtAddr, pageSize)
	last := len(trbs) - 1
	trbs[last] = NewLink(true, physAddr, true)
	return &TransferRing{trbs: trbs, physBase: physAddr, cycle: true}
}

// Enqueue appends trb under the ring's lock and returns the physical
// address it was written to.
func (r *TransferRing) Enqueue(trb TRB) uint64 {
	r.mu.Acquire()
	defer r.mu.Release()
	return r.enqueueLocked(trb)
}

func (r *TransferRing) enqueueLocked(trb TRB) uint64 {
	trb.SetCycle(r.cycle)
	r.trbs[r.enqueue] = trb
	addr := r.physBase + uint64(r.enqueue)*trbSize

	r.enqueue++
	if r.enqueue == len(r.trbs)-1 {
		r.trbs[r.enqueue].SetCycle(r.cycle)
		r.enqueue = 0
		r.cycle = !r.cycle
	}
	return addr
}

// Acquire/Release let a multi-TRB transfer (Setup+Data+Status) enqueue all
// of its TRBs as one critical section before the doorbell is rung.
func (r *TransferRing) Acquire() { r.mu.Acquire() }
func (r *TransferRing) Release() { r.mu.Release() }
