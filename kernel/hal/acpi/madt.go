package acpi

import (
	"corekernel/kernel/irq/apic"
	"unsafe"
)

const (
	madtEntryLocalAPIC         = 0
	madtEntryIOAPIC            = 1
	madtEntryInterruptOverride = 2
	madtEntryLocalAPICOverride = 5
)

const madtFlagPCATCompat = 1 << 0

type madtHeader struct {
	SDTHeader
	LocalAPICAddress uint32
	Flags            uint32
}

type madtEntryHeader struct {
	Type   uint8
	Length uint8
}

type madtIOAPIC struct {
	madtEntryHeader
	ID                        uint8
	reserved                  uint8
	Address                   uint32
	GlobalSystemInterruptBase uint32
}

type madtInterruptOverride struct {
	madtEntryHeader
	Bus    uint8
	Source uint8
	GSI    uint32
	Flags  uint16
}

type madtLocalAPICOverride struct {
	madtEntryHeader
	reserved         uint16
	LocalAPICAddress uint64
}

// mpsPolarity/mpsTrigger decode the low nibbles of a MADT entry's MPS INTI
// flags field (ACPI 5.2.12.5): 00 = conforms to bus spec, 01 = active
// high/edge, 11 = active low/level.
func mpsPolarity(flags uint16) apic.Polarity {
	switch flags & 0x3 {
	case 0x3:
		return apic.ActiveLow
	default:
		return apic.ActiveHigh
	}
}

func mpsTrigger(flags uint16) apic.Trigger {
	switch (flags >> 2) & 0x3 {
	case 0x3:
		return apic.Level
	default:
		return apic.Edge
	}
}

// ParseMADT walks the MADT at virtAddr (already mapped by the caller) and
// returns the subset of it apic.Initialize needs: the Local APIC base
// address (possibly overridden by a type-5 entry), whether the legacy
// 8259 pair is still wired (PCAT_COMPAT), and every I/O APIC and interrupt
// source override record.
func ParseMADT(virtAddr uintptr) apic.MADTInfo {
	h := (*madtHeader)(unsafe.Pointer(virtAddr))

	info := apic.MADTInfo{
		LocalAPICAddress: uintptr(h.LocalAPICAddress),
		PCATCompat:       h.Flags&madtFlagPCATCompat != 0,
	}

	end := virtAddr + uintptr(h.Length)
	cursor := virtAddr + unsafe.Sizeof(madtHeader{})

	for cursor < end {
		entry := (*madtEntryHeader)(unsafe.Pointer(cursor))
		if entry.Length == 0 {
			break
		}

		switch entry.Type {
		case madtEntryIOAPIC:
			e := (*madtIOAPIC)(unsafe.Pointer(cursor))
			info.IOAPICs = append(info.IOAPICs, apic.IOAPICRecord{
				ID:                        e.ID,
				Address:                   e.Address,
				GlobalSystemInterruptBase: e.GlobalSystemInterruptBase,
			})
		case madtEntryInterruptOverride:
			e := (*madtInterruptOverride)(unsafe.Pointer(cursor))
			info.Overrides = append(info.Overrides, apic.SourceOverride{
				Bus:      e.Bus,
				Source:   e.Source,
				GSI:      e.GSI,
				Polarity: mpsPolarity(e.Flags),
				Trigger:  mpsTrigger(e.Flags),
			})
		case madtEntryLocalAPICOverride:
			e := (*madtLocalAPICOverride)(unsafe.Pointer(cursor))
			info.LocalAPICAddress = uintptr(e.LocalAPICAddress)
		case madtEntryLocalAPIC:
			// Per-CPU LAPIC enumeration is out of scope: this kernel boots
			// single-core and discovers its own LAPIC ID from the MSR/CPUID
			// path in kernel/cpu, not from the MADT.
		}

		cursor += uintptr(entry.Length)
	}

	return info
}
