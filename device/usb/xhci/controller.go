// Package xhci drives a USB3 xHCI host controller per section 4.7: MMIO
// register bring-up, Command/Event rings with cycle-bit producer/consumer
// discipline, root-hub port lifecycle, and default-control-endpoint device
// enumeration.
package xhci

import (
	"corekernel/kernel"
	"corekernel/kernel/cpu"
	"corekernel/kernel/irq"
	"corekernel/kernel/mem/ioheap"
	"corekernel/kernel/mem/pmm"
	"corekernel/kernel/mem/vmm"
	"corekernel/kernel/pci"
	"corekernel/kernel/sync"
	"unsafe"
)

const (
	pageSize = 4096

	hcResetTimeoutMillis     = 1000
	controllerHaltTimeoutMillis = 1000
	portPowerTimeoutMillis   = 200

	requestedMSIVectors = 1
)

var (
	errNoFrames      = &kernel.Error{Module: "xhci", Message: "out of physical frames bringing up the controller", Kind: kernel.KindOutOfMemory}
	errHCResetTimeout = &kernel.Error{Module: "xhci", Message: "host controller reset timed out", Kind: kernel.KindDeviceError}
	errHaltTimeout    = &kernel.Error{Module: "xhci", Message: "host controller did not leave the halted state", Kind: kernel.KindDeviceError}
	errNoSlotAvailable = &kernel.Error{Module: "xhci", Message: "no device slot is currently bound to this slot id", Kind: kernel.KindNotFound}
)

// Controller owns one xHCI host controller instance: its mapped register
// blocks, command/event rings, DCBAA, scratchpad buffers, and the table of
// devices bound to enabled slots.
type Controller struct {
	pager      *vmm.Pager
	allocFrame func() (pmm.Frame, *kernel.Error)
	freeFrame  func(pmm.Frame) *kernel.Error
	nowMillis  func() uint64

	pciDev pci.Device

	cap       *CapabilityRegisters
	op        *OperationalRegisters
	intr0     *InterrupterRegisters
	doorbells uintptr

	maxSlots uint8
	maxPorts uint8

	dcbaaVirt uintptr

	cmdRing *CommandRing
	evtRing *EventRing

	scratchpadFrames []pmm.Frame

	slots slotTable
	cmd   pendingCommand

	irqVector uint8

	portsDirty sync.AtomicBool

	ioHeap *ioheap.Heap
}

// SetIOHeap wires the IOHeap used to allocate transient DMA buffers for
// control transfers (GET_DESCRIPTOR responses and the like). Must be
// called before EnumerateDevice.
func (c *Controller) SetIOHeap(h *ioheap.Heap) { c.ioHeap = h }

// spinWait busy-waits on cond until it is true or c.nowMillis() passes
// deadlineMillis, using cpu.SpinWaitMillsFor so every blocking xHCI
// protocol operation shares one timeout primitive (section 5).
func (c *Controller) spinWait(deadlineMillis uint64, cond func() bool) bool {
	return cpu.SpinWaitMillsFor(c.nowMillis, deadlineMillis, cond)
}

// allocPage allocates and maps one zeroed, uncached page suitable for a
// ring, context, or DCBAA backing store, returning both its kernel virtual
// address and physical address.
func (c *Controller) allocPage() (uintptr, uint64, *kernel.Error) {
	frame, err := c.allocFrame()
	if err != nil {
		return 0, 0, errNoFrames
	}
	virt, err := c.pager.MapGeneral(frame, 1, vmm.FlagRW|vmm.FlagDoNotCache)
	if err != nil {
		return 0, 0, err
	}
	kernel.Memset(virt, 0, pageSize)
	return virt, uint64(frame.Address()), nil
}

func (c *Controller) setDCBAAEntry(slot uint8, phys uint64) {
	ptr := (*uint64)(unsafe.Pointer(c.dcbaaVirt + uintptr(slot)*8))
	*ptr = phys
}

// Initialize brings up the xHCI controller at pciDev per section 4.7
// steps 1-9: BAR0 mapping, host controller reset, DCBAA/Command
// Ring/Event Ring allocation, scratchpad buffers, interrupter and MSI
// configuration, and finally Run/Stop plus port power.
func Initialize(pciDev pci.Device, pager *vmm.Pager, allocFrame func() (pmm.Frame, *kernel.Error), freeFrame func(pmm.Frame) *kernel.Error, nowMillis func() uint64) (*Controller, *kernel.Error) {
	c := &Controller{
		pager:      pager,
		allocFrame: allocFrame,
		freeFrame:  freeFrame,
		nowMillis:  nowMillis,
		pciDev:     pciDev,
	}

	// Step 1: map BAR0 and locate the fixed-offset register blocks.
	virt, err := pciDev.MapBAR(pager, 0)
	if err != nil {
		return nil, err
	}
	capRegs := capabilityRegistersAt(virt)
	c.cap = capRegs
	c.op = operationalRegistersAt(virt, capRegs.CapLength)
	c.doorbells = doorbellArrayAt(virt, capRegs.DBOff)
	c.intr0 = runtimeInterrupterAt(virt, capRegs.RTSOff, 0)

	c.maxSlots = capRegs.MaxSlots()
	c.maxPorts = capRegs.MaxPorts()

	// Step 2: host controller reset, then wait for CNR to clear.
	c.op.SetHCReset(true)
	if !c.spinWait(c.nowMillis()+hcResetTimeoutMillis, func() bool {
		return c.op.USBCmd&usbCmdHCReset == 0
	}) {
		return nil, errHCResetTimeout
	}
	if !c.spinWait(c.nowMillis()+hcResetTimeoutMillis, func() bool { return !c.op.ControllerNotReady() }) {
		return nil, errHCResetTimeout
	}

	// Step 3: tell the controller how many device slots to reserve.
	c.op.SetMaxSlotsEnabled(c.maxSlots)

	// Step 4: Device Context Base Address Array, one entry per slot plus
	// the scratchpad array pointer at index 0.
	dcbaaVirt, dcbaaPhys, err := c.allocPage()
	if err != nil {
		return nil, err
	}
	c.dcbaaVirt = dcbaaVirt
	c.op.SetDCBAAP(dcbaaPhys)

	// Step 5: Command Ring.
	cmdVirt, cmdPhys, err := c.allocPage()
	if err != nil {
		return nil, err
	}
	c.cmdRing = NewCommandRing(cmdVirt, cmdPhys, pageSize)
	c.op.SetCRCR(cmdPhys, true)

	// Step 6: Event Ring plus its one-entry ERST.
	evtVirt, evtPhys, err := c.allocPage()
	if err != nil {
		return nil, err
	}
	c.evtRing = NewEventRing(evtVirt, evtPhys, pageSize)

	erstVirt, erstPhys, err := c.allocPage()
	if err != nil {
		return nil, err
	}
	erst := (*ERST)(unsafe.Pointer(erstVirt))
	erst.RingSegmentBaseLo = uint32(evtPhys)
	erst.RingSegmentBaseHi = uint32(evtPhys >> 32)
	erst.RingSegmentSize = uint32(pageSize / trbSize)

	c.intr0.SetERST(erstPhys)
	c.intr0.SetERDP(evtPhys)
	c.intr0.Enable()

	// Step 7: scratchpad buffers, if this controller requires any.
	if n := capRegs.MaxScratchpadBuffers(); n > 0 {
		arrayVirt, arrayPhys, err := c.allocPage()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < n; i++ {
			frame, err := c.allocFrame()
			if err != nil {
				return nil, errNoFrames
			}
			c.scratchpadFrames = append(c.scratchpadFrames, frame)
			entry := (*uint64)(unsafe.Pointer(arrayVirt + uintptr(i)*8))
			*entry = uint64(frame.Address())
		}
		c.setDCBAAEntry(0, arrayPhys)
	}

	// Step 8: reserve an interrupt vector, wire it to this controller's
	// ISR, and configure the device's MSI capability to target it.
	vector, err := irq.ReserveInterrupt()
	if err != nil {
		return nil, err
	}
	c.irqVector = vector
	if err := irq.RegisterIRQ(vector, c.handleIRQ); err != nil {
		return nil, err
	}
	if err := pci.ConfigureMSI(pciDev, vector, requestedMSIVectors); err != nil {
		return nil, err
	}
	c.op.SetINTE(true)

	// Step 9: start the controller and wait for it to leave Halted.
	c.op.SetRunStop(true)
	if !c.spinWait(c.nowMillis()+controllerHaltTimeoutMillis, func() bool { return !c.op.HCHalted() }) {
		return nil, errHaltTimeout
	}

	// Power every root hub port so a pre-connected device raises a Port
	// Status Change event instead of sitting unnoticed (port lifecycle,
	// section 4.7).
	for port := uint8(1); port <= c.maxPorts; port++ {
		p := portRegistersAt(uintptr(unsafe.Pointer(c.op)), port)
		if !p.PortPower() {
			p.PortSC = (p.PortSC &^ portSCWriteClearMask) | portSCPP
			c.spinWait(c.nowMillis()+portPowerTimeoutMillis, func() bool { return p.PortPower() })
		}
	}

	return c, nil
}

// deviceAtSlot returns the Device bound to slotID, or nil if the slot is
// not currently bound (a stale event referencing a torn-down device).
func (c *Controller) deviceAtSlot(slotID uint8) *Device {
	return c.slots.get(slotID)
}
