// Package kmain wires every package this kernel core builds into the
// boot sequence section 4's scenario SC-1 describes: parse the UEFI
// loader-data handoff, bring the allocators and interrupt fabric up,
// enumerate PCI and claim the xHCI controller, then drop into the
// scheduler with the boot keyboard's queue feeding a `> ` prompt loop.
package kmain

import (
	"corekernel/kernel"
	"corekernel/kernel/hal/acpi"
	"corekernel/kernel/hal/bootinfo"
	"corekernel/kernel/irq"
	"corekernel/kernel/irq/apic"
	"corekernel/kernel/kfmt"
	"corekernel/kernel/mem/ioheap"
	"corekernel/kernel/mem/kheap"
	"corekernel/kernel/mem/pmm"
	"corekernel/kernel/mem/vmm"
	"corekernel/kernel/pci"
	"corekernel/kernel/task"
	"corekernel/kernel/timer"
	"corekernel/device/keyboard"
	"corekernel/device/usb/xhci"

	"corekernel/device/usb/hid" // also registers the boot-keyboard class driver
	"unsafe"
)

// efiMemoryDescriptor mirrors the UEFI EFI_MEMORY_DESCRIPTOR layout the
// bootinfo handoff page's memory map is built from.
type efiMemoryDescriptor struct {
	Type          uint32
	pad           uint32
	PhysicalStart uint64
	VirtualStart  uint64
	NumberOfPages uint64
	Attribute     uint64
}

// efiMemoryKind maps a raw UEFI memory type to the subset FrameAllocator
// distinguishes; every type it doesn't track collapses to KindReserved.
func efiMemoryKind(t uint32) pmm.MemoryKind {
	switch t {
	case 1:
		return pmm.KindLoaderCode
	case 2:
		return pmm.KindLoaderData
	case 3:
		return pmm.KindBootServicesCode
	case 4:
		return pmm.KindBootServicesData
	case 7:
		return pmm.KindConventional
	default:
		return pmm.KindReserved
	}
}

// walkMemoryMap decodes info's raw UEFI memory map into the entries
// FrameAllocator.Init seeds its free lists from.
func walkMemoryMap(info bootinfo.Info) []pmm.MemoryMapEntry {
	count := int(info.MmapSize / info.MmapDescSize)
	entries := make([]pmm.MemoryMapEntry, 0, count)
	for i := 0; i < count; i++ {
		d := (*efiMemoryDescriptor)(unsafe.Pointer(info.Mmap + uintptr(i)*uintptr(info.MmapDescSize)))
		entries = append(entries, pmm.MemoryMapEntry{
			PhysStart: uintptr(d.PhysicalStart),
			Pages:     d.NumberOfPages,
			Kind:      efiMemoryKind(d.Type),
		})
	}
	return entries
}

// mapPhysPage maps one physical page for a transient ACPI table read.
func mapPhysPage(pager *vmm.Pager) func(phys uintptr) (uintptr, *kernel.Error) {
	return func(phys uintptr) (uintptr, *kernel.Error) {
		return pager.MapGeneral(pmm.FrameFromAddress(phys), 1, vmm.FlagRW)
	}
}

// Kmain is the only Go symbol the rt0 assembly stub calls into. It never
// returns; if the boot sequence below runs out of steps, it parks the
// scheduler loop forever.
//
//go:noinline
func Kmain() {
	info, err := bootinfo.Parse()
	if err != nil {
		kfmt.Panic(err)
	}

	alloc := pmm.New()
	if err := alloc.Init(walkMemoryMap(info)); err != nil {
		kfmt.Panic(err)
	}

	pager := vmm.NewPager()
	pager.SetFrameAllocator(func() (pmm.Frame, *kernel.Error) { return alloc.Allocate() })
	pager.SetFrameFreer(alloc.Free)

	kheap.NewFromPager(pager)

	ioAlloc := func() (pmm.Frame, *kernel.Error) { return alloc.Allocate() }
	ioHeap, err := ioheap.New(pager, ioAlloc, vmm.FlagRW|vmm.FlagDoNotCache)
	if err != nil {
		kfmt.Panic(err)
	}

	irq.Init()

	rsdp, err := acpi.ParseRSDP(info.AcpiRSDP)
	if err != nil {
		kfmt.Panic(err)
	}
	mapPhys := mapPhysPage(pager)
	xsdtVirt, err := mapPhys(rsdp.XSDTAddress)
	if err != nil {
		kfmt.Panic(err)
	}

	apic.SetPager(pager)
	if madtVirt, err := acpi.FindTable(xsdtVirt, "APIC", mapPhys); err == nil {
		if _, err := apic.Initialize(acpi.ParseMADT(madtVirt)); err != nil {
			kfmt.Panic(err)
		}
	} else {
		kfmt.Panic(err)
	}

	if err := timer.Initialize(timer.BackendLAPIC); err != nil {
		kfmt.Panic(err)
	}
	if err := timer.Enable(); err != nil {
		kfmt.Panic(err)
	}

	// tasks is handed to shellLoop for completeness; Dispatch itself needs
	// the outgoing task's saved stack pointer, which only the raw
	// assembly ISR trampoline captures, so the real per-tick dispatch
	// wiring happens there rather than through timer's Go-level handler.
	tasks := task.New()

	mcfgVirt, err := acpi.FindTable(xsdtVirt, "MCFG", mapPhys)
	if err != nil {
		kfmt.Panic(err)
	}
	var ecam pci.ECAM
	for _, e := range acpi.ParseMCFG(mcfgVirt) {
		if e.SegmentGroup != 0 {
			continue
		}
		ecam, err = pci.MapECAM(pager, e.BaseAddress, e.StartBus, e.EndBus)
		if err != nil {
			kfmt.Panic(err)
		}
		break
	}

	if xhciDev, found := pci.FindClass(ecam, pci.ClassXHCI); found {
		controller, err := xhci.Initialize(xhciDev, pager, ioAlloc, alloc.Free, timer.GetCountMillis)
		if err != nil {
			kfmt.Printf("xhci: initialization failed: %s\n", err.Error())
		} else {
			controller.SetIOHeap(ioHeap)
			controller.ServicePorts()
		}
	} else {
		kfmt.Printf("xhci: no USB3 host controller present\n")
	}

	kfmt.Printf("> ")
	shellLoop(tasks)
}

// keyPacketSize is BasicKeyPacket's wire size (device/keyboard/keypacket.go).
const keyPacketSize = 4

// shellLoop drains the boot keyboard's queue forever, echoing the
// keypoint of every key-down event to the active sink. tasks is never
// otherwise touched here; TaskManager's own tick handler drives
// scheduling from the timer ISR.
func shellLoop(tasks *task.Manager) {
	_ = tasks
	queue := hid.DefaultQueue()
	var packet [keyPacketSize]byte
	for {
		n, err := queue.Read(packet[:])
		if err != nil || n == 0 {
			continue
		}
		flags := uint16(packet[2]) | uint16(packet[3])<<8
		if flags&keyboard.FlagKeyPressed != 0 {
			kfmt.Printf("%c", packet[1])
		}
	}
}
