package xhci

import "unsafe"

// CapabilityRegisters is the fixed-offset block at BAR0+0; every other
// register block's offset is derived from fields in here.
type CapabilityRegisters struct {
	CapLength   uint8
	reserved    uint8
	HCIVersion  uint16
	HCSParams1  uint32
	HCSParams2  uint32
	HCSParams3  uint32
	HCCParams1  uint32
	DBOff       uint32
	RTSOff      uint32
	HCCParams2  uint32
}

func (c *CapabilityRegisters) MaxSlots() uint8     { return uint8(c.HCSParams1) }
func (c *CapabilityRegisters) MaxIntrs() uint16    { return uint16(c.HCSParams1 >> 8) }
func (c *CapabilityRegisters) MaxPorts() uint8     { return uint8(c.HCSParams1 >> 24) }
func (c *CapabilityRegisters) MaxScratchpadBuffers() uint32 {
	hi := (c.HCSParams2 >> 27) & 0x1F
	lo := (c.HCSParams2 >> 21) & 0x1F
	return hi<<5 | lo
}
func (c *CapabilityRegisters) PageSizeShift() uint32 { return 12 } // advertised via PAGESIZE, fixed 4K in practice

// OperationalRegisters sits at BAR0 + CapLength.
type OperationalRegisters struct {
	USBCmd     uint32
	USBStatus  uint32
	PageSize   uint32
	_          [2]uint32
	DNCtrl     uint32
	CRCRLo     uint32
	CRCRHi     uint32
	_          [4]uint32
	DCBAAPLo   uint32
	DCBAAPHi   uint32
	Config     uint32
}

const (
	usbCmdRunStop    = 1 << 0
	usbCmdHCReset    = 1 << 1
	usbCmdINTE       = 1 << 2

	usbStatusHCHalted = 1 << 0
	usbStatusCNR      = 1 << 11
	usbStatusEINT     = 1 << 3

	crcrRCS = 1 << 0
)

func (o *OperationalRegisters) SetRunStop(v bool)  { o.setBit(&o.USBCmd, usbCmdRunStop, v) }
func (o *OperationalRegisters) SetHCReset(v bool)  { o.setBit(&o.USBCmd, usbCmdHCReset, v) }
func (o *OperationalRegisters) SetINTE(v bool)     { o.setBit(&o.USBCmd, usbCmdINTE, v) }
func (o *OperationalRegisters) ControllerNotReady() bool { return o.USBStatus&usbStatusCNR != 0 }
func (o *OperationalRegisters) HCHalted() bool           { return o.USBStatus&usbStatusHCHalted != 0 }
func (o *OperationalRegisters) EventInterrupt() bool     { return o.USBStatus&usbStatusEINT != 0 }
func (o *OperationalRegisters) AckEventInterrupt()       { o.USBStatus = usbStatusEINT }

func (o *OperationalRegisters) setBit(reg *uint32, bit uint32, v bool) {
	if v {
		*reg |= bit
	} else {
		*reg &^= bit
	}
}

func (o *OperationalRegisters) SetCRCR(phys uint64, rcs bool) {
	v := phys &^ 0x3F
	if rcs {
		v |= crcrRCS
	}
	o.CRCRLo = uint32(v)
	o.CRCRHi = uint32(v >> 32)
}

func (o *OperationalRegisters) SetDCBAAP(phys uint64) {
	o.DCBAAPLo = uint32(phys)
	o.DCBAAPHi = uint32(phys >> 32)
}

func (o *OperationalRegisters) SetMaxSlotsEnabled(n uint8) {
	o.Config = (o.Config &^ 0xFF) | uint32(n)
}

// InterrupterRegisters is one entry of the Runtime register block's
// interrupter array (the primary interrupter is index 0).
type InterrupterRegisters struct {
	IMAN     uint32
	IMODI    uint32
	ERSTSZ   uint32
	_        uint32
	ERSTBALo uint32
	ERSTBAHi uint32
	ERDPLo   uint32
	ERDPHi   uint32
}

const (
	imanInterruptPending = 1 << 0
	imanInterruptEnable  = 1 << 1
	erdpEventHandlerBusy = 1 << 3

	defaultIMODI = 4000
)

func (i *InterrupterRegisters) Enable() {
	i.IMODI = defaultIMODI
	i.IMAN = imanInterruptEnable
}

func (i *InterrupterRegisters) AckPending() { i.IMAN |= imanInterruptPending }

func (i *InterrupterRegisters) SetERST(phys uint64) {
	i.ERSTSZ = 1
	i.ERSTBALo = uint32(phys)
	i.ERSTBAHi = uint32(phys >> 32)
}

func (i *InterrupterRegisters) SetERDP(phys uint64) {
	v := (phys &^ 0xF) | erdpEventHandlerBusy
	i.ERDPLo = uint32(v)
	i.ERDPHi = uint32(v >> 32)
}

// PortRegisters is one entry of the Operational register block's per-port
// array, located at OperationalBase + 0x400 + 0x10*(port-1).
type PortRegisters struct {
	PortSC   uint32
	PortPMSC uint32
	PortLI   uint32
	PortHLPMC uint32
}

const (
	portSCCCS = 1 << 0 // Current Connect Status
	portSCPED = 1 << 1 // Port Enabled/Disabled
	portSCPR  = 1 << 4 // Port Reset
	portSCPP  = 1 << 9 // Port Power
	portSCPRC = 1 << 21 // Port Reset Change
	portSCCSC = 1 << 17 // Connect Status Change
	portSCWriteClearMask = 0xFE3800 // write-1-to-clear status bits
)

func (p *PortRegisters) ConnectStatus() bool  { return p.PortSC&portSCCCS != 0 }
func (p *PortRegisters) Enabled() bool        { return p.PortSC&portSCPED != 0 }
func (p *PortRegisters) PortPower() bool      { return p.PortSC&portSCPP != 0 }
func (p *PortRegisters) ResetChanged() bool   { return p.PortSC&portSCPRC != 0 }
func (p *PortRegisters) ConnectChanged() bool { return p.PortSC&portSCCSC != 0 }
func (p *PortRegisters) Speed() uint8         { return uint8((p.PortSC >> 10) & 0xF) }

// StartReset writes PR=1 while preserving the write-1-to-clear status
// bits (writing a stale read-back value there would silently ack a status
// change that hasn't been serviced yet).
func (p *PortRegisters) StartReset() {
	p.PortSC = (p.PortSC &^ portSCWriteClearMask) | portSCPR
}

// AckChanges clears the specific write-1-to-clear bits the caller passed.
func (p *PortRegisters) AckChanges(bits uint32) {
	p.PortSC = (p.PortSC &^ portSCWriteClearMask) | (bits & portSCWriteClearMask)
}

// Doorbell rings the doorbell register for the given slot (0 = command
// ring); target selects the endpoint (control endpoint target is 1) and
// stream ID is always 0 for this driver, which never uses streams.
func ringDoorbell(doorbellBase uintptr, slot uint8, target uint8) {
	reg := (*uint32)(unsafe.Pointer(doorbellBase + uintptr(slot)*4))
	*reg = uint32(target)
}

func capabilityRegistersAt(virt uintptr) *CapabilityRegisters {
	return (*CapabilityRegisters)(unsafe.Pointer(virt))
}

func operationalRegistersAt(virt uintptr, capLength uint8) *OperationalRegisters {
	return (*OperationalRegisters)(unsafe.Pointer(virt + uintptr(capLength)))
}

func runtimeInterrupterAt(virt uintptr, rtsoff uint32, index int) *InterrupterRegisters {
	return (*InterrupterRegisters)(unsafe.Pointer(virt + uintptr(rtsoff) + 0x20 + uintptr(index)*32))
}

func doorbellArrayAt(virt uintptr, dboff uint32) uintptr {
	return virt + uintptr(dboff)
}

func portRegistersAt(opVirt uintptr, port uint8) *PortRegisters {
	return (*PortRegisters)(unsafe.Pointer(opVirt + 0x400 + uintptr(port-1)*0x10))
}
