package xhci

import (
	"corekernel/kernel"
	"corekernel/kernel/sync"
	"unsafe"
)

// transferTimeoutMillis bounds a control transfer round trip the same way
// commandTimeoutMillis bounds a command ring round trip (section 5).
const transferTimeoutMillis = 1000

const (
	requestGetDescriptor   = 0x06
	requestSetConfiguration = 0x09

	controlEndpointTarget = 1 // doorbell target for DCI 1, the default control endpoint
)

var (
	errControlTransferTimeout = &kernel.Error{Module: "xhci", Message: "control transfer timed out", Kind: kernel.KindDeviceError}
	errControlTransferFailed  = &kernel.Error{Module: "xhci", Message: "control transfer completed with a non-success completion code", Kind: kernel.KindDeviceError}
	errCommandFailed          = &kernel.Error{Module: "xhci", Message: "command ring command did not complete successfully", Kind: kernel.KindDeviceError}
	errDeviceUnavailable      = &kernel.Error{Module: "xhci", Message: "device is draining outstanding transfers and no longer accepts new ones", Kind: kernel.KindUnavailable}
)

// pendingTransfer mirrors pendingCommand's seq-cst handoff, scoped to one
// device's default control endpoint.
type pendingTransfer struct {
	awaiting   sync.Atomic64
	resultCode sync.Atomic32
	ready      sync.AtomicBool
}

// Device is one USB device occupying an enabled xHCI slot: its default
// control endpoint transfer ring, its Input/Output Device Context pages,
// and (once a class driver has claimed one of its functions) the driver
// servicing its interrupt endpoint.
type Device struct {
	SlotID uint8
	PortID uint8
	Speed  PortSpeed

	maxPacketSize0 uint16

	ctrlRing   *TransferRing
	inputVirt  uintptr
	inputPhys  uint64
	outputPhys uint64

	// interruptRing is the transfer ring backing the device's interrupt IN
	// endpoint, set up by Controller.configureEndpoints once a class
	// driver has claimed one of the device's functions.
	interruptRing *TransferRing

	pending pendingTransfer

	// busyCount/unavailable implement the drain pattern section 4.7
	// describes for safe device teardown: a port-status-change-driven
	// disconnect calls SetUnavailable, then waits for busyCount to reach
	// zero before tearing the slot down, while SetBusy/ReleaseBusy bracket
	// every in-flight transfer so none of them can observe freed state.
	busyCount   sync.Atomic32
	unavailable sync.AtomicBool

	driver Driver

	Descriptor    DeviceDescriptor
	Configuration *Configuration
}

// SetBusy marks one transfer as in flight, refusing if the device is
// already draining. Every control/interrupt transfer against dev must be
// bracketed by a successful SetBusy and a matching ReleaseBusy.
func (d *Device) SetBusy() bool {
	if d.unavailable.Load(sync.OrderAcquire) {
		return false
	}
	d.busyCount.FetchAdd(1, sync.OrderAcqRel)
	if d.unavailable.Load(sync.OrderAcquire) {
		d.ReleaseBusy()
		return false
	}
	return true
}

// ReleaseBusy ends one SetBusy-protected transfer.
func (d *Device) ReleaseBusy() { d.busyCount.FetchSub(1, sync.OrderAcqRel) }

// SetUnavailable marks the device as draining: no further SetBusy call
// will succeed. Callers then wait for busyCount to settle at zero (see
// Controller.drainDevice) before freeing the device's slot and contexts.
func (d *Device) SetUnavailable() { d.unavailable.Store(true, sync.OrderRelease) }

func (d *Device) busy() uint32 { return d.busyCount.Load(sync.OrderAcquire) }

// drainDevice waits up to deadlineMillis for dev's in-flight transfer
// count to reach zero after SetUnavailable has been called.
func (c *Controller) drainDevice(dev *Device, deadlineMillis uint64) bool {
	return c.spinWait(deadlineMillis, func() bool { return dev.busy() == 0 })
}

// controlTransfer issues a Setup (+ optional Data) + Status control
// transfer sequence against dev's default control endpoint and waits for
// the Status Stage's Transfer Event, per section 4.7's description of the
// default control pipe protocol.
func (c *Controller) controlTransfer(dev *Device, requestType, request uint8, value, index uint16, bufVirt uintptr, length uint16) *kernel.Error {
	if !dev.SetBusy() {
		return errDeviceUnavailable
	}
	defer dev.ReleaseBusy()

	in := requestType&0x80 != 0
	var trt uint8
	if length > 0 {
		if in {
			trt = 3
		} else {
			trt = 2
		}
	}

	var dataPhys uint64
	if length > 0 {
		phys, err := c.ioHeap.PhysicalOf(bufVirt)
		if err != nil {
			return err
		}
		dataPhys = uint64(phys)
	}

	statusIn := true
	if length > 0 {
		statusIn = !in
	}

	dev.ctrlRing.Acquire()
	dev.ctrlRing.enqueueLocked(NewSetupStage(false, requestType, request, value, index, length, trt))
	if length > 0 {
		dev.ctrlRing.enqueueLocked(NewDataStage(false, dataPhys, length, in))
	}
	statusAddr := dev.ctrlRing.enqueueLocked(NewStatusStage(false, statusIn, true))
	dev.ctrlRing.Release()

	dev.pending.ready.Store(false, sync.OrderRelaxed)
	dev.pending.awaiting.Store(statusAddr, sync.OrderSeqCst)

	ringDoorbell(c.doorbells, dev.SlotID, controlEndpointTarget)

	ok := c.spinWait(c.nowMillis()+transferTimeoutMillis, func() bool { return dev.pending.ready.Load(sync.OrderAcquire) })
	dev.pending.awaiting.Store(0, sync.OrderRelease)
	if !ok {
		return errControlTransferTimeout
	}
	code := CompletionCode(dev.pending.resultCode.Load(sync.OrderRelaxed))
	if classify(code) != CompletionResultSuccess {
		return errControlTransferFailed
	}
	return nil
}

// getDescriptor issues a standard GET_DESCRIPTOR request and returns a
// host-owned copy of the response, using the controller's IOHeap for the
// transient DMA buffer the transfer itself reads into.
func (c *Controller) getDescriptor(dev *Device, descType uint8, index uint8, length uint16) ([]byte, *kernel.Error) {
	bufVirt, err := c.ioHeap.Alloc(uintptr(length), 8)
	if err != nil {
		return nil, err
	}
	defer c.ioHeap.Free(bufVirt)

	value := uint16(descType)<<8 | uint16(index)
	if err := c.controlTransfer(dev, 0x80, requestGetDescriptor, value, 0, bufVirt, length); err != nil {
		return nil, err
	}

	out := make([]byte, length)
	if length > 0 {
		kernel.Memcopy(bufVirt, uintptr(unsafe.Pointer(&out[0])), uintptr(length))
	}
	return out, nil
}

// setConfiguration issues a standard SET_CONFIGURATION request (no data
// stage).
func (c *Controller) setConfiguration(dev *Device, configurationValue uint8) *kernel.Error {
	return c.controlTransfer(dev, 0x00, requestSetConfiguration, uint16(configurationValue), 0, 0, 0)
}

// GetClassDescriptor issues a GET_DESCRIPTOR request with caller-supplied
// recipient and index fields, for class drivers (device/usb/hid's report
// descriptor fetch, notably) that need the interface recipient form
// getDescriptor's device-only shortcut doesn't cover.
func (c *Controller) GetClassDescriptor(dev *Device, requestType, descType, index uint8, wIndex, length uint16) ([]byte, *kernel.Error) {
	bufVirt, err := c.ioHeap.Alloc(uintptr(length), 8)
	if err != nil {
		return nil, err
	}
	defer c.ioHeap.Free(bufVirt)

	value := uint16(descType)<<8 | uint16(index)
	if err := c.controlTransfer(dev, requestType, requestGetDescriptor, value, wIndex, bufVirt, length); err != nil {
		return nil, err
	}

	out := make([]byte, length)
	if length > 0 {
		kernel.Memcopy(bufVirt, uintptr(unsafe.Pointer(&out[0])), uintptr(length))
	}
	return out, nil
}

// deliverTransferEvent is the event-ring ISR's per-device dispatch: if the
// event matches the address controlTransfer is currently awaiting, publish
// it through the pendingTransfer handoff; otherwise offer it to an
// attached class driver awaiting its own interrupt transfer.
func (d *Device) deliverTransferEvent(c *Controller, event TRB) {
	addr := d.pending.awaiting.Load(sync.OrderAcquire)
	if addr != 0 && event.Pointer() == addr {
		d.pending.resultCode.Store(uint32(event.CompletionCode()), sync.OrderRelaxed)
		d.pending.ready.Store(true, sync.OrderSeqCst)
		return
	}
	if d.driver != nil && d.driver.GetAwaitingTRB() == event.Pointer() {
		d.driver.HandleEvent(c, d, event)
	}
}

var errNoInterruptEndpoint = &kernel.Error{Module: "xhci", Message: "device has no configured interrupt endpoint", Kind: kernel.KindUnavailable}

// EnqueueInterruptTransfer places a Normal TRB on dev's interrupt IN
// transfer ring pointing at the physical buffer bufPhys, returning the
// TRB's own physical address so the caller (a class driver) can track it
// as the address it is awaiting a Transfer Event for.
func (d *Device) EnqueueInterruptTransfer(bufPhys uint64, length uint16) (uint64, *kernel.Error) {
	if d.interruptRing == nil {
		return 0, errNoInterruptEndpoint
	}
	return d.interruptRing.Enqueue(NewNormal(false, bufPhys, length, true)), nil
}

// RingInterruptDoorbell rings the doorbell for endpoint epNum's IN
// direction, telling the controller to service the TRB(s) a class driver
// just enqueued with EnqueueInterruptTransfer.
func (d *Device) RingInterruptDoorbell(c *Controller, epNum uint8) {
	ringDoorbell(c.doorbells, d.SlotID, endpointContextIndex(epNum, true))
}

// AllocIOBuffer allocates a persistent DMA buffer from the controller's
// IOHeap, for class drivers that need a buffer to outlive a single
// control transfer (an interrupt IN report buffer, notably). Callers
// free it with FreeIOBuffer once the device is released.
func (c *Controller) AllocIOBuffer(size, align uintptr) (virt uintptr, phys uint64, err *kernel.Error) {
	virt, err = c.ioHeap.Alloc(size, align)
	if err != nil {
		return 0, 0, err
	}
	p, err := c.ioHeap.PhysicalOf(virt)
	if err != nil {
		c.ioHeap.Free(virt)
		return 0, 0, err
	}
	return virt, uint64(p), nil
}

// FreeIOBuffer releases a buffer obtained from AllocIOBuffer.
func (c *Controller) FreeIOBuffer(virt uintptr) *kernel.Error {
	return c.ioHeap.Free(virt)
}
