package acpi

import (
	"testing"
	"unsafe"
)

func buildFakeMCFG(entries []MCFGEntry) []byte {
	const mcfgHeaderReserved = 8
	size := int(unsafe.Sizeof(SDTHeader{})) + mcfgHeaderReserved + len(entries)*int(unsafe.Sizeof(mcfgEntryRaw{}))
	buf := make([]byte, size)

	h := (*SDTHeader)(unsafe.Pointer(&buf[0]))
	h.Signature = [4]byte{'M', 'C', 'F', 'G'}
	h.Length = uint32(size)

	base := uintptr(unsafe.Pointer(&buf[0])) + unsafe.Sizeof(SDTHeader{}) + mcfgHeaderReserved
	for i, e := range entries {
		raw := (*mcfgEntryRaw)(unsafe.Pointer(base + uintptr(i)*unsafe.Sizeof(mcfgEntryRaw{})))
		raw.BaseAddress = uint64(e.BaseAddress)
		raw.SegmentGroup = e.SegmentGroup
		raw.StartBus = e.StartBus
		raw.EndBus = e.EndBus
	}
	return buf
}

func TestParseMCFGReturnsEveryEntry(t *testing.T) {
	want := []MCFGEntry{
		{BaseAddress: 0xE0000000, SegmentGroup: 0, StartBus: 0, EndBus: 255},
	}
	buf := buildFakeMCFG(want)

	got := ParseMCFG(uintptr(unsafe.Pointer(&buf[0])))
	if len(got) != 1 {
		t.Fatalf("expected 1 entry; got %d", len(got))
	}
	if got[0] != want[0] {
		t.Fatalf("expected %+v; got %+v", want[0], got[0])
	}
}

func TestParseMCFGHandlesMultipleSegments(t *testing.T) {
	want := []MCFGEntry{
		{BaseAddress: 0xE0000000, SegmentGroup: 0, StartBus: 0, EndBus: 255},
		{BaseAddress: 0xF0000000, SegmentGroup: 1, StartBus: 0, EndBus: 127},
	}
	buf := buildFakeMCFG(want)

	got := ParseMCFG(uintptr(unsafe.Pointer(&buf[0])))
	if len(got) != 2 {
		t.Fatalf("expected 2 entries; got %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: expected %+v; got %+v", i, want[i], got[i])
		}
	}
}
