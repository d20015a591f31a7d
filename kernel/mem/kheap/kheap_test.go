package kheap

import (
	"corekernel/kernel"
	"testing"
	"unsafe"
)

// newTestHeap backs the arena with a real host buffer and a GrowFn that
// simply accepts every growth request, since the buffer is already backed
// by ordinary Go memory for its whole length.
func newTestHeap(t *testing.T, arenaBytes int) *Heap {
	t.Helper()
	buf := make([]byte, arenaBytes)
	base := uintptr(unsafe.Pointer(&buf[0]))
	return New(func(uintptr, uint64) *kernel.Error { return nil }, base)
}

func TestAllocReturnsDistinctNonOverlappingRegions(t *testing.T) {
	h := newTestHeap(t, 1<<20)

	a, err := h.Alloc(64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := h.Alloc(128)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a == b {
		t.Fatalf("expected distinct allocations, got the same address twice")
	}
	if a%minAlignment != 0 || b%minAlignment != 0 {
		t.Fatalf("expected %d-byte aligned pointers, got %#x and %#x", minAlignment, a, b)
	}

	lo, hi := a, a+64
	if b >= lo && b < hi {
		t.Fatalf("allocation b (%#x) overlaps allocation a [%#x, %#x)", b, lo, hi)
	}
}

func TestFreeThenAllocReusesSpace(t *testing.T) {
	h := newTestHeap(t, 1<<20)

	a, err := h.Alloc(256)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.Free(a); err != nil {
		t.Fatalf("unexpected error freeing: %v", err)
	}

	b, err := h.Alloc(256)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("expected the freed chunk to be reused; got a=%#x b=%#x", a, b)
	}
}

func TestFreeCoalescesAdjacentChunks(t *testing.T) {
	h := newTestHeap(t, 1<<20)

	a, err := h.Alloc(64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := h.Alloc(64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := h.Free(a); err != nil {
		t.Fatalf("unexpected error freeing a: %v", err)
	}
	if err := h.Free(b); err != nil {
		t.Fatalf("unexpected error freeing b: %v", err)
	}

	// The two freed chunks plus any header overhead should have merged
	// into a span at least as large as a single allocation spanning both.
	c, err := h.Alloc(64 + 64)
	if err != nil {
		t.Fatalf("expected coalesced space to satisfy a larger allocation: %v", err)
	}
	if c != a {
		t.Fatalf("expected the coalesced block to start at the lower address %#x; got %#x", a, c)
	}
}

func TestFreeRejectsOutOfRangePointer(t *testing.T) {
	h := newTestHeap(t, 4096)
	if err := h.Free(0); err == nil {
		t.Fatalf("expected an error freeing a null pointer")
	}
}

func TestAllocRejectsZeroSize(t *testing.T) {
	h := newTestHeap(t, 4096)
	if _, err := h.Alloc(0); err == nil {
		t.Fatalf("expected an error for a zero-size allocation")
	}
}
