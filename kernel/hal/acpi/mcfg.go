package acpi

import "unsafe"

// MCFGEntry mirrors one MCFG configuration space base address allocation
// entry (one per PCI segment group), matching the original_source
// PCI_CSBA layout.
type MCFGEntry struct {
	BaseAddress   uintptr
	SegmentGroup  uint16
	StartBus      uint8
	EndBus        uint8
}

type mcfgEntryRaw struct {
	BaseAddress   uint64
	SegmentGroup  uint16
	StartBus      uint8
	EndBus        uint8
	reserved      uint32
}

// ParseMCFG walks the MCFG at virtAddr (already mapped by the caller) and
// returns its configuration space base address allocations. This kernel
// only consumes the ECAM base for segment group 0 (section 4.8's PCI
// enumeration is single-segment), but returns every entry present.
func ParseMCFG(virtAddr uintptr) []MCFGEntry {
	h := headerAt(virtAddr)

	const mcfgHeaderReserved = 8
	base := virtAddr + unsafe.Sizeof(SDTHeader{}) + mcfgHeaderReserved
	end := virtAddr + uintptr(h.Length)

	var entries []MCFGEntry
	for cursor := base; cursor+unsafe.Sizeof(mcfgEntryRaw{}) <= end; cursor += unsafe.Sizeof(mcfgEntryRaw{}) {
		raw := (*mcfgEntryRaw)(unsafe.Pointer(cursor))
		entries = append(entries, MCFGEntry{
			BaseAddress:  uintptr(raw.BaseAddress),
			SegmentGroup: raw.SegmentGroup,
			StartBus:     raw.StartBus,
			EndBus:       raw.EndBus,
		})
	}
	return entries
}
