package xhci

import (
	"testing"
	"unsafe"
)

func newTestTransferRing(t *testing.T, slots int) (*TransferRing, []byte) {
	t.Helper()
	buf := make([]byte, slots*trbSize)
	phys := uint64(uintptr(unsafe.Pointer(&buf[0])))
	return NewTransferRing(uintptr(unsafe.Pointer(&buf[0])), phys, uintptr(len(buf))), buf
}

func TestTransferRingStartsWithCycleSet(t *testing.T) {
	r, _ := newTestTransferRing(t, 4)
	if !r.cycle {
		t.Fatalf("expected the software cycle to start at true")
	}
}

func TestTransferRingEnqueueReturnsWrittenAddress(t *testing.T) {
	r, _ := newTestTransferRing(t, 4)
	addr := r.Enqueue(NewNormal(false, 0x8000, 8, true))
	if addr != r.physBase {
		t.Fatalf("expected the first enqueue to land at the ring's base address")
	}
	if r.trbs[0].Pointer() != 0x8000 {
		t.Fatalf("expected the enqueued TRB's pointer field to be preserved")
	}
}

func TestTransferRingWrapsAndTogglesCycleAtLinkTRB(t *testing.T) {
	const slots = 4 // 3 usable + 1 link
	r, _ := newTestTransferRing(t, slots)

	for i := 0; i < slots-1; i++ {
		r.Enqueue(NewNormal(false, 0, 0, false))
	}
	if r.enqueue != 0 {
		t.Fatalf("expected enqueue pointer to wrap back to 0; got %d", r.enqueue)
	}
	if r.cycle != false {
		t.Fatalf("expected cycle to toggle after wrapping past the link TRB")
	}
}

func TestTransferRingEnqueueLockedMatchesEnqueue(t *testing.T) {
	r, _ := newTestTransferRing(t, 4)
	r.Acquire()
	addr := r.enqueueLocked(NewNormal(false, 0x9000, 4, true))
	r.Release()

	if addr != r.physBase {
		t.Fatalf("expected enqueueLocked's first write to land at the ring's base address")
	}
}
