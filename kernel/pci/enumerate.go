package pci

import (
	"corekernel/kernel"
	"corekernel/kernel/mem/pmm"
	"corekernel/kernel/mem/vmm"
)

// ECAM identifies one mapped segment-group configuration-space window
// (derived from one acpi.MCFGEntry) that Enumerate walks.
type ECAM struct {
	virtBase uintptr
	startBus uint8
	endBus   uint8
}

// MapECAM maps the physical ECAM window [base, base + busCount*1MiB) and
// returns an ECAM ready for Enumerate. Each bus occupies 1 MiB of ECAM
// space (32 devices * 8 functions * 4 KiB).
func MapECAM(pager *vmm.Pager, base uintptr, startBus, endBus uint8) (ECAM, *kernel.Error) {
	busCount := uint64(endBus) - uint64(startBus) + 1
	pages := busCount * maxDevice * maxFunction * configSpaceSize / 4096

	virt, err := pager.MapGeneral(pmm.FrameFromAddress(base), pages, vmm.FlagRW|vmm.FlagDoNotCache)
	if err != nil {
		return ECAM{}, err
	}
	return ECAM{virtBase: virt, startBus: startBus, endBus: endBus}, nil
}

// deviceAt returns the Device view of addr within this ECAM window,
// without checking presence.
func (e ECAM) deviceAt(addr Address) Device {
	return Device{Address: addr, cfg: e.virtBase + addr.offset()}
}

// Enumerate walks every bus/device/function in e invoking visit for each
// populated function, per section 4.8: function 0 of every device is
// always probed; the remaining 7 functions are probed only when function
// 0 reports the multi-function bit.
func Enumerate(e ECAM, visit func(Device)) {
	for bus := int(e.startBus); bus <= int(e.endBus); bus++ {
		for dev := 0; dev < maxDevice; dev++ {
			fn0 := e.deviceAt(Address{Bus: uint8(bus), Device: uint8(dev), Function: 0})
			if !fn0.present() {
				continue
			}
			visit(fn0)

			if !fn0.IsMultiFunction() {
				continue
			}
			for fn := 1; fn < maxFunction; fn++ {
				d := e.deviceAt(Address{Bus: uint8(bus), Device: uint8(dev), Function: uint8(fn)})
				if d.present() {
					visit(d)
				}
			}
		}
	}
}

// FindClass walks e and returns the first device whose class triple
// matches c, used by boot-time bring-up to locate the xHCI controller
// (ClassXHCI) without a full enumeration callback.
func FindClass(e ECAM, c Class) (Device, bool) {
	var found Device
	ok := false
	Enumerate(e, func(d Device) {
		if !ok && d.ClassMatches(c) {
			found = d
			ok = true
		}
	})
	return found, ok
}
