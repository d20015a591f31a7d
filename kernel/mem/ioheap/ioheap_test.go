package ioheap

import (
	"testing"
	"unsafe"
)

// newTestHeap builds a Heap directly over a real host buffer, bypassing
// New (which requires a live Pager and frame allocator) so the first-fit/
// coalescing logic can be exercised on the host.
func newTestHeap(t *testing.T, arenaBytes int) *Heap {
	t.Helper()
	buf := make([]byte, arenaBytes)
	base := uintptr(unsafe.Pointer(&buf[0]))
	limit := base + uintptr(arenaBytes)

	h := &Heap{base: base, limit: limit}
	root := nodeAt(base)
	*root = freeNode{size: uintptr(limit - base)}
	h.head = root
	return h
}

func TestAllocHonorsAlignment(t *testing.T) {
	h := newTestHeap(t, 1<<16)

	ptr, err := h.Alloc(32, 64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ptr%64 != 0 {
		t.Fatalf("expected 64-byte aligned pointer, got %#x", ptr)
	}
}

func TestFreeThenAllocReusesSpace(t *testing.T) {
	h := newTestHeap(t, 1<<16)

	a, err := h.Alloc(128, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.Free(a); err != nil {
		t.Fatalf("unexpected error freeing: %v", err)
	}

	b, err := h.Alloc(128, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("expected the freed chunk to be reused; got a=%#x b=%#x", a, b)
	}
}

func TestFreeCoalescesWithSuccessor(t *testing.T) {
	h := newTestHeap(t, 1<<16)

	a, err := h.Alloc(64, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := h.Alloc(64, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := h.Free(b); err != nil {
		t.Fatalf("unexpected error freeing b: %v", err)
	}
	if err := h.Free(a); err != nil {
		t.Fatalf("unexpected error freeing a: %v", err)
	}

	c, err := h.Alloc(64+64, 8)
	if err != nil {
		t.Fatalf("expected the coalesced span to satisfy a larger allocation: %v", err)
	}
	if c < a {
		t.Fatalf("expected the coalesced allocation to start at or after %#x; got %#x", a, c)
	}
}

func TestAllocRejectsBadAlignment(t *testing.T) {
	h := newTestHeap(t, 4096)
	if _, err := h.Alloc(16, 3); err == nil {
		t.Fatalf("expected an error for a non-power-of-two alignment")
	}
}

func TestFreeRejectsOutOfRangePointer(t *testing.T) {
	h := newTestHeap(t, 4096)
	if err := h.Free(0); err == nil {
		t.Fatalf("expected an error freeing a null pointer")
	}
}
