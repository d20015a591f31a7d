package pmm

import (
	"corekernel/kernel/mem"
	"testing"
)

func TestAllocatorInitSplitsDMAZone(t *testing.T) {
	a := New()

	// A single conventional region straddling the DMA zone boundary.
	err := a.Init([]MemoryMapEntry{
		{PhysStart: 0, Pages: DMAZoneFrames + 16, Kind: KindConventional},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, exp := a.AvailableFrames(), uint64(16); got != exp {
		t.Fatalf("expected %d available conventional frames outside the DMA zone; got %d", exp, got)
	}

	// Frame 0 is pinned allocated regardless of what the memory map said.
	if got := a.QueryDMA(0); got != DMAAllocated {
		t.Fatalf("expected frame 0 to be pinned allocated; got %v", got)
	}

	if got := a.QueryDMA(uintptr(mem.PageSize)); got != DMAFree {
		t.Fatalf("expected frame 1 to be free; got %v", got)
	}

	if got := a.QueryDMA(uintptr(mem.DMAIdentityLimit)); got != DMAOutOfRange {
		t.Fatalf("expected first address past the DMA zone to be out of range; got %v", got)
	}
}

func TestAllocatorIgnoresReservedRegions(t *testing.T) {
	a := New()
	err := a.Init([]MemoryMapEntry{
		{PhysStart: uintptr(DMAZoneFrames) * uintptr(mem.PageSize), Pages: 4, Kind: KindReserved},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := a.AvailableFrames(); got != 0 {
		t.Fatalf("expected reserved regions to contribute no frames; got %d", got)
	}
}

func TestAllocateAndFreeRoundTrip(t *testing.T) {
	a := New()
	base := uintptr(DMAZoneFrames) * uintptr(mem.PageSize)
	if err := a.Init([]MemoryMapEntry{{PhysStart: base, Pages: 4, Kind: KindConventional}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var allocated []Frame
	for i := 0; i < 4; i++ {
		f, err := a.Allocate()
		if err != nil {
			t.Fatalf("unexpected error allocating frame %d: %v", i, err)
		}
		allocated = append(allocated, f)
	}

	if _, err := a.Allocate(); err == nil {
		t.Fatal("expected allocator to report out-of-memory once the region is exhausted")
	}

	for _, f := range allocated {
		if err := a.Free(f); err != nil {
			t.Fatalf("unexpected error freeing frame %v: %v", f, err)
		}
	}

	if got, exp := a.AvailableFrames(), uint64(4); got != exp {
		t.Fatalf("expected all 4 frames back after freeing; got %d available", got)
	}

	// The freed frames should have coalesced back into a single block
	// spanning the whole region, so one more allocate_run(4) must succeed.
	if _, err := a.AllocateRun(4); err != nil {
		t.Fatalf("expected coalesced free list to satisfy a run allocation: %v", err)
	}
}

func TestAllocateRunShrinksBlock(t *testing.T) {
	a := New()
	base := uintptr(DMAZoneFrames) * uintptr(mem.PageSize)
	if err := a.Init([]MemoryMapEntry{{PhysStart: base, Pages: 10, Kind: KindConventional}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := a.AllocateRun(6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exp := FrameFromAddress(base); f != exp {
		t.Fatalf("expected run to start at %v; got %v", exp, f)
	}
	if got, exp := a.AvailableFrames(), uint64(4); got != exp {
		t.Fatalf("expected 4 frames left after allocating a run of 6; got %d", got)
	}

	if _, err := a.AllocateRun(5); err == nil {
		t.Fatal("expected allocate_run to fail when no block is large enough")
	}
}

func TestAllocateDMA(t *testing.T) {
	a := New()

	f, err := a.AllocateDMA(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Frame 0 is pinned, so the first available run starts at frame 1.
	if f != Frame(1) {
		t.Fatalf("expected first DMA allocation to start at frame 1; got %v", f)
	}

	for i := uint64(0); i < 4; i++ {
		if got := a.QueryDMA(uintptr(uint64(f)+i) * uintptr(mem.PageSize)); got != DMAAllocated {
			t.Fatalf("expected frame %d to be allocated", uint64(f)+i)
		}
	}

	a.FreeDMA(f, 4)
	for i := uint64(0); i < 4; i++ {
		if got := a.QueryDMA(uintptr(uint64(f)+i) * uintptr(mem.PageSize)); got != DMAFree {
			t.Fatalf("expected frame %d to be free again", uint64(f)+i)
		}
	}
}

func TestAllocatorRejectsZeroLengthRequests(t *testing.T) {
	a := New()
	if _, err := a.AllocateRun(0); err == nil {
		t.Fatal("expected AllocateRun(0) to return an error")
	}
	if _, err := a.AllocateDMA(0); err == nil {
		t.Fatal("expected AllocateDMA(0) to return an error")
	}
	if err := a.FreeRun(Frame(0), 0); err == nil {
		t.Fatal("expected FreeRun(_, 0) to return an error")
	}
}
