package xhci

import (
	"corekernel/kernel"
	"corekernel/kernel/sync"
	"unsafe"
)

const trbSize = 16 // bytes per TRB slot

// ringAt overlays a TRB slice on a page-sized buffer already mapped at
// virtAddr, reserving the last slot for a Link TRB back to the segment's
// start (this driver only ever allocates single-segment rings, per
// section 4.7 steps 5 and 6).
func ringAt(virtAddr uintptr, pageSize uintptr) []TRB {
	count := int(pageSize / trbSize)
	return unsafe.Slice((*TRB)(unsafe.Pointer(virtAddr)), count)
}

// CommandRing is the single-segment, spinlock-serialized command ring
// described in section 4.7's command ring protocol: callers enqueue under
// the lock, ring the doorbell, and poll a per-command completion slot the
// ISR fills in.
type CommandRing struct {
	mu       sync.Spinlock
	trbs     []TRB
	physBase uint64
	enqueue  int
	cycle    bool
}

// NewCommandRing wraps a zeroed, already-mapped page of TRB slots. The
// software cycle starts at 1 per section 4.7 step 5.
func NewCommandRing(virtAddr uintptr, physAddr uint64, pageSize uintptr) *CommandRing {
	trbs := ringAt(virtAddr, pageSize)
	last := len(trbs) - 1
	trbs[last] = NewLink(true, physAddr, true)
	return &CommandRing{trbs: trbs, physBase: physAddr, cycle: true}
}

// Enqueue appends trb (with the ring's current cycle bit) at the enqueue
// pointer, advancing past (and toggling cycle across) the trailing Link
// TRB as needed, and returns the physical address the TRB was written to
// so the caller can match it against the CommandCompletion event's
// pointer field.
func (r *CommandRing) Enqueue(trb TRB) uint64 {
	r.mu.Acquire()
	defer r.mu.Release()
	return r.enqueueLocked(trb)
}

// enqueueLocked is Enqueue's body, callable by a command-submission helper
// that already holds the ring's lock across the whole enqueue-then-ring-
// doorbell-then-wait sequence (see Acquire/Release below).
func (r *CommandRing) enqueueLocked(trb TRB) uint64 {
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

// Acquire/Release expose the ring's lock so a command-submission helper can
// serialize the enqueue-then-ring-doorbell-then-wait sequence as one
// critical section, calling enqueueLocked instead of re-entering Enqueue's
// own lock.
func (r *CommandRing) Acquire() { r.mu.Acquire() }
func (r *CommandRing) Release() { r.mu.Release() }

// EventRing is the single-segment primary event ring an interrupter
// consumes from; its dequeue index advances as the ISR consumes completed
// events, wrapping and toggling the consumer cycle bit at the segment end.
type EventRing struct {
	trbs     []TRB
	physBase uint64
	dequeue  int
	cycle    bool
}

// NewEventRing wraps a zeroed, already-mapped page of event TRB slots (no
// trailing Link TRB: the ERST, not a Link TRB, tells hardware to wrap).
func NewEventRing(virtAddr uintptr, physAddr uint64, pageSize uintptr) *EventRing {
	return &EventRing{trbs: ringAt(virtAddr, pageSize), physBase: physAddr, cycle: true}
}

// Pending returns the next unconsumed event TRB and advances the
// dequeue pointer, or ok=false if the TRB at the dequeue pointer's cycle
// bit does not match the consumer's expected cycle (i.e. no new event).
func (r *EventRing) Pending() (TRB, bool) {
	t := r.trbs[r.dequeue]
	if t.Cycle() != r.cycle {
		return TRB{}, false
	}
	r.dequeue++
	if r.dequeue == len(r.trbs) {
		r.dequeue = 0
		r.cycle = !r.cycle
	}
	return t, true
}

// DequeuePointer returns the current physical dequeue pointer, written to
// ERDP (with EHB set) at the end of each ISR invocation per section 4.7's
// event ring consumer description.
func (r *EventRing) DequeuePointer() uint64 {
	return r.physBase + uint64(r.dequeue)*trbSize
}

// ERST is the one-entry Event Ring Segment Table this driver programs
// (single segment, per section 4.7 step 6).
type ERST struct {
	RingSegmentBaseLo  uint32
	RingSegmentBaseHi  uint32
	RingSegmentSize    uint32
	reserved           uint32
}

var errRingAllocation = &kernel.Error{Module: "xhci", Message: "failed to allocate a ring page", Kind: kernel.KindOutOfMemory}
