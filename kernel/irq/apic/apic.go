// Package apic brings up the Local APIC and I/O APIC interrupt fabric
// described in section 4.4: local-APIC enablement, I/O APIC redirection
// table programming from the parsed MADT, and disabling the legacy PIC
// once every ISA line has been taken over.
package apic

import (
	"corekernel/kernel"
	"corekernel/kernel/cpu"
	"corekernel/kernel/mem/pmm"
	"corekernel/kernel/mem/vmm"
)

// DeliveryMode selects how an interrupt is delivered to its destination
// CPU(s).
type DeliveryMode uint8

const (
	Fixed DeliveryMode = iota
	LowestPriority
	SMI
	NMI
	Init
	ExtInit
)

// DestinationMode selects whether Destination names a physical APIC ID or
// a logical destination set.
type DestinationMode uint8

const (
	Physical DestinationMode = iota
	Logical
)

// Polarity is the pin polarity of a redirected ISA/PCI interrupt line.
type Polarity uint8

const (
	ActiveHigh Polarity = iota
	ActiveLow
)

// Trigger is the trigger mode of a redirected interrupt line.
type Trigger uint8

const (
	Edge Trigger = iota
	Level
)

// IRQDescriptor fully parameterizes one I/O APIC redirection table entry.
type IRQDescriptor struct {
	InterruptVector uint8
	Delivery        DeliveryMode
	DestinationMode DestinationMode
	Polarity        Polarity
	Trigger         Trigger
	Masked          bool
	Destination     uint8
}

// IOAPICRecord mirrors one MADT I/O APIC entry (type 1).
type IOAPICRecord struct {
	ID                       uint8
	Address                  uint32
	GlobalSystemInterruptBase uint32
}

// SourceOverride mirrors one MADT Interrupt Source Override entry (type 2):
// ISA IRQ `Source` is actually wired to global system interrupt `GSI`, with
// Polarity/Trigger possibly differing from the ISA defaults.
type SourceOverride struct {
	Bus      uint8
	Source   uint8
	GSI      uint32
	Polarity Polarity
	Trigger  Trigger
}

// MADTInfo is the subset of a parsed MADT apic.Initialize needs; populated
// by kernel/hal/acpi so this package never has to parse ACPI tables itself.
type MADTInfo struct {
	LocalAPICAddress uintptr
	PCATCompat       bool
	IOAPICs          []IOAPICRecord
	Overrides        []SourceOverride
}

var (
	errNoAPIC = &kernel.Error{Module: "apic", Message: "CPU does not support APIC", Kind: kernel.KindUnavailable}

	lapic  *localAPIC
	ioapics []*ioAPIC
	overrides []SourceOverride

	logicalIDCounter uint8 = 1

	pager *vmm.Pager
)

// SetPager wires the Pager used to map LAPIC/IOAPIC MMIO windows. Must be
// called before Initialize.
func SetPager(p *vmm.Pager) { pager = p }

// Initialize brings up the Local APIC, maps and programs every I/O APIC
// named in info, remaps and masks the legacy PIC if info.PCATCompat is set,
// and returns the caller's own logical APIC ID.
func Initialize(info MADTInfo) (uint8, *kernel.Error) {
	if !cpu.HasAPIC() {
		return 0, errNoAPIC
	}

	myID, err := setupLocalAPIC(info.LocalAPICAddress)
	if err != nil {
		return 0, err
	}

	overrides = info.Overrides

	for _, rec := range info.IOAPICs {
		a, err := newIOAPIC(rec)
		if err != nil {
			return 0, err
		}
		ioapics = append(ioapics, a)
	}

	if info.PCATCompat {
		remapAndDisablePIC()
	}

	return myID, nil
}

// ReserveLogicalID hands out the next power-of-two logical destination ID,
// matching the original firmware-bring-up convention of assigning each core
// a distinct bit in the logical destination register.
func ReserveLogicalID() uint8 {
	id := logicalIDCounter
	logicalIDCounter <<= 1
	return id
}

// GetLAPICLogicalID returns this core's logical destination ID.
func GetLAPICLogicalID() uint8 {
	if lapic == nil {
		return 0
	}
	return lapic.logicalID
}

// GetLAPICID returns this core's physical APIC ID.
func GetLAPICID() uint8 {
	if lapic == nil {
		return 0
	}
	return lapic.readID()
}

// SendEOI signals end-of-interrupt to the local APIC.
func SendEOI() {
	if lapic != nil {
		lapic.sendEOI()
	}
}

// overrideFor returns the source override (if any) registered for ISA IRQ
// isaIRQ, and whether one was found.
func overrideFor(isaIRQ uint8) (SourceOverride, bool) {
	for _, o := range overrides {
		if o.Bus == 0 && o.Source == isaIRQ {
			return o, true
		}
	}
	return SourceOverride{}, false
}

// SetupIRQ routes ISA IRQ isaIRQ (applying any MADT source override found
// for it) to desc through whichever I/O APIC owns its global system
// interrupt.
func SetupIRQ(isaIRQ uint8, desc IRQDescriptor) *kernel.Error {
	gsi := uint32(isaIRQ)
	if o, ok := overrideFor(isaIRQ); ok {
		gsi = o.GSI
		desc.Polarity = o.Polarity
		desc.Trigger = o.Trigger
	}
	return setupGSI(gsi, desc)
}

func setupGSI(gsi uint32, desc IRQDescriptor) *kernel.Error {
	for _, a := range ioapics {
		if gsi >= a.gsiBase && gsi < a.gsiBase+uint32(a.maxRedirectionEntries()) {
			a.setRedirectionEntry(gsi-a.gsiBase, desc)
			return nil
		}
	}
	return &kernel.Error{Module: "apic", Message: "no I/O APIC owns this global system interrupt", Kind: kernel.KindNotFound}
}

// MaskIRQ masks the I/O APIC redirection entry for ISA IRQ isaIRQ.
func MaskIRQ(isaIRQ uint8) {
	setMask(isaIRQ, true)
}

// UnmaskIRQ unmasks the I/O APIC redirection entry for ISA IRQ isaIRQ.
func UnmaskIRQ(isaIRQ uint8) {
	setMask(isaIRQ, false)
}

func setMask(isaIRQ uint8, masked bool) {
	gsi := uint32(isaIRQ)
	if o, ok := overrideFor(isaIRQ); ok {
		gsi = o.GSI
	}
	for _, a := range ioapics {
		if gsi >= a.gsiBase && gsi < a.gsiBase+uint32(a.maxRedirectionEntries()) {
			a.setMasked(gsi-a.gsiBase, masked)
			return
		}
	}
}

func mapMMIO(phys uintptr) (uintptr, *kernel.Error) {
	return pager.MapGeneral(pmm.FrameFromAddress(phys), 1, vmm.FlagRW|vmm.FlagDoNotCache)
}
