package pci

import (
	"corekernel/kernel"
	"corekernel/kernel/irq/apic"
)

const (
	capabilityIDMSI = 0x05

	statusCapabilitiesList = 1 << 4
	capabilitiesPointerOff = 0x34

	msiControlMultipleMessageCapableMask = 0x7 << 1
	msiControlMultipleMessageEnableMask  = 0x7 << 4
	msiControl64BitCapable               = 1 << 7
)

var errNoMSICapability = &kernel.Error{Module: "pci", Message: "device does not advertise an MSI capability", Kind: kernel.KindUnavailable}

// msiCapability is the view of one MSI capability structure found by
// walking a device's capability list; addr is its configuration-space
// offset.
type msiCapability struct {
	dev  Device
	addr uintptr
}

// GetMSI walks dev's capability list looking for the MSI capability
// (ID 0x05), per section 4.4. It returns an error if the device has no
// capability list or does not advertise MSI.
func GetMSI(dev Device) (msiCapability, *kernel.Error) {
	if dev.read16(0x06)&statusCapabilitiesList == 0 {
		return msiCapability{}, errNoMSICapability
	}

	off := uintptr(dev.read8(capabilitiesPointerOff))
	for off != 0 {
		id := dev.read8(off)
		if id == capabilityIDMSI {
			return msiCapability{dev: dev, addr: off}, nil
		}
		off = uintptr(dev.read8(off + 1))
	}
	return msiCapability{}, errNoMSICapability
}

// maxVectorsSupported returns the largest power-of-two vector count this
// MSI capability advertises support for (the Multiple Message Capable
// field, bits [3:1] of the message control word).
func (m msiCapability) maxVectorsSupported() uint8 {
	control := m.dev.read16(m.addr + 2)
	return uint8(1) << ((control & msiControlMultipleMessageCapableMask) >> 1)
}

// ConfigureMSI picks the largest power-of-two vector count supported by
// the device not exceeding requestedVectors, programs the message
// address/data for delivery to this core's logical APIC ID at vector, and
// enables MSI delivery (masking the legacy INTx pin is left to the
// caller, matching how other gopher device bring-up leaves unrelated
// Command bits untouched).
func ConfigureMSI(dev Device, vector uint8, requestedVectors uint8) *kernel.Error {
	m, err := GetMSI(dev)
	if err != nil {
		return err
	}

	granted := m.maxVectorsSupported()
	for granted > requestedVectors {
		granted >>= 1
	}
	if granted == 0 {
		granted = 1
	}

	addr, data := apic.BuildMSIMessage(apic.GetLAPICLogicalID(), vector)

	control := m.dev.read16(m.addr + 2)
	log2Granted := uint16(0)
	for v := granted; v > 1; v >>= 1 {
		log2Granted++
	}
	control = (control &^ uint16(msiControlMultipleMessageEnableMask)) | (log2Granted << 4)

	if control&msiControl64BitCapable != 0 {
		m.dev.write32(m.addr+4, addr)
		m.dev.write32(m.addr+8, 0)
		m.dev.write32(m.addr+12, data)
	} else {
		m.dev.write32(m.addr+4, addr)
		m.dev.write32(m.addr+8, data)
	}

	control |= 1 // MSI enable
	m.dev.write16(m.addr+2, control)

	return nil
}
