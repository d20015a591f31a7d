package hid

import (
	"corekernel/device/keyboard"
	"corekernel/device/usb/xhci"
	"corekernel/kernel"
	"corekernel/kernel/sync"
	"unsafe"
)

const (
	classHID = 0x03

	descTypeHIDDescriptor    = 0x21
	descTypeReportDescriptor = 0x22

	// device-to-host, standard, interface recipient: the HID class
	// descriptor and its report descriptor both live at the interface,
	// not the device (Device.cpp's GetHIDDescriptor/GetReportDescriptor).
	requestTypeGetInterfaceDescriptor = 0x81
)

var (
	errNoInterruptEndpoint = &kernel.Error{Module: "hid", Message: "function has no interrupt IN endpoint", Kind: kernel.KindUnavailable}
	errNoHIDDescriptor     = &kernel.Error{Module: "hid", Message: "interface carries no HID class descriptor", Kind: kernel.KindDeviceError}
	errEmptyHierarchy      = &kernel.Error{Module: "hid", Message: "report descriptor produced no usable device", Kind: kernel.KindDeviceError}
)

// hidClassDescriptor is the decoded fields of a class-specific HID
// descriptor (type 0x21), which names the length of the Report
// Descriptor a GET_DESCRIPTOR(Report) request then fetches separately
// (Device.cpp's GetHIDDescriptor).
type hidClassDescriptor struct {
	bcdHID                 uint16
	countryCode            uint8
	reportDescriptorLength uint16
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }

// parseHIDClassDescriptor scans an interface's unrecognized descriptor
// bytes for a HID descriptor (type 0x21) and, within it, the table entry
// naming the Report Descriptor's (type 0x22) length.
func parseHIDClassDescriptor(extra [][]byte) (hidClassDescriptor, bool) {
	for _, body := range extra {
		if len(body) < 9 || body[1] != descTypeHIDDescriptor {
			continue
		}
		numDescriptors := int(body[5])
		for i := 0; i < numDescriptors; i++ {
			off := 6 + i*3
			if off+3 > len(body) {
				break
			}
			if body[off] != descTypeReportDescriptor {
				continue
			}
			return hidClassDescriptor{
				bcdHID:                 le16(body[2:]),
				countryCode:            body[4],
				reportDescriptorLength: le16(body[off+1:]),
			}, true
		}
	}
	return hidClassDescriptor{}, false
}

// findInterruptIn returns the first interface in fn carrying an interrupt
// IN endpoint, and that endpoint.
func findInterruptIn(fn *xhci.Function) (*xhci.Interface, xhci.EndpointDescriptor, bool) {
	for i := range fn.Interfaces {
		iface := &fn.Interfaces[i]
		for _, ep := range iface.Endpoints {
			if ep.IsIn() && ep.TransferType() == xhci.EndpointTypeInterruptIn {
				return iface, ep, true
			}
		}
	}
	return nil, xhci.EndpointDescriptor{}, false
}

// Device is the xHCI-facing HID class driver: it fetches and parses a
// claimed interface's report descriptor, then keeps exactly one
// interrupt IN transfer outstanding at all times, dispatching each
// completed report to the parsed Hierarchy and immediately re-arming
// (Device.cpp's InitiateTransaction/SignalTransferComplete).
type Device struct {
	hierarchy *Hierarchy

	reportBufVirt uintptr
	reportBufPhys uint64
	reportSize    int

	hasMultipleReports bool
	epNum              uint8

	awaiting sync.Atomic64

	queue *keyboard.Queue
}

// NewDevice returns a HID class driver that delivers decoded key events
// to queue.
func NewDevice(queue *keyboard.Queue) *Device {
	return &Device{queue: queue}
}

// defaultQueueCapacity sizes bootKeyboardQueue, the single shared queue
// every HID keyboard function this controller claims delivers key events
// to (section 6: one boot keyboard, one shell input surface).
const defaultQueueCapacity = 32

var bootKeyboardQueue = keyboard.NewQueue(defaultQueueCapacity)

// DefaultQueue returns the shared boot-keyboard key event queue, for
// whatever wires up the shell's input surface.
func DefaultQueue() *keyboard.Queue { return bootKeyboardQueue }

func init() {
	xhci.RegisterDriver(classHID, func(fn *xhci.Function) (xhci.Driver, bool) {
		if _, _, ok := findInterruptIn(fn); !ok {
			return nil, false
		}
		return NewDevice(bootKeyboardQueue), true
	})
}

// Queue exposes the driver's key event queue to whatever wires up
// `/Devices/keyboard`.
func (d *Device) Queue() *keyboard.Queue { return d.queue }

// PostInitialization fetches fn's HID and Report descriptors, parses the
// Report Descriptor into a Hierarchy, allocates a persistent report
// buffer sized to it, and arms the first interrupt IN transfer.
func (d *Device) PostInitialization(c *xhci.Controller, dev *xhci.Device, fn *xhci.Function) *kernel.Error {
	iface, ep, ok := findInterruptIn(fn)
	if !ok {
		return errNoInterruptEndpoint
	}

	hd, ok := parseHIDClassDescriptor(iface.Extra)
	if !ok {
		return errNoHIDDescriptor
	}

	reportDescBytes, err := c.GetClassDescriptor(dev, requestTypeGetInterfaceDescriptor, descTypeReportDescriptor, 0, uint16(iface.Number), hd.reportDescriptorLength)
	if err != nil {
		return err
	}

	parser := NewReportParser(NewReportDescriptor(reportDescBytes))
	hierarchy, perr := parser.Parse(func() InterfaceDevice { return NewKeyboard(d.queue) })
	if perr != nil {
		return perr
	}
	if _, found := hierarchy.Device(DeviceClassKeyboard); !found {
		hierarchy.Release()
		return errEmptyHierarchy
	}

	d.hierarchy = hierarchy
	d.hasMultipleReports = hierarchy.HasMultipleReports()
	d.reportSize = hierarchy.MaxReportSize()
	d.epNum = ep.Address & 0x0F

	bufVirt, bufPhys, err := c.AllocIOBuffer(uintptr(d.reportSize), 8)
	if err != nil {
		hierarchy.Release()
		return err
	}
	d.reportBufVirt = bufVirt
	d.reportBufPhys = bufPhys

	return d.armTransfer(c, dev)
}

// armTransfer enqueues one interrupt IN transfer and records its TRB
// address as the one GetAwaitingTRB reports, so the event-ring ISR can
// route the matching Transfer Event back to HandleEvent.
func (d *Device) armTransfer(c *xhci.Controller, dev *xhci.Device) *kernel.Error {
	addr, err := dev.EnqueueInterruptTransfer(d.reportBufPhys, uint16(d.reportSize))
	if err != nil {
		return err
	}
	d.awaiting.Store(addr, sync.OrderRelease)
	dev.RingInterruptDoorbell(c, d.epNum)
	return nil
}

// GetAwaitingTRB returns the physical address of the interrupt IN TRB
// this driver currently awaits completion of.
func (d *Device) GetAwaitingTRB() uint64 { return d.awaiting.Load(sync.OrderAcquire) }

// HandleEvent dispatches the completed report to the parsed Hierarchy,
// splitting off a leading Report ID byte when the descriptor declared
// more than one report, then immediately re-arms the next transfer.
func (d *Device) HandleEvent(c *xhci.Controller, dev *xhci.Device, event xhci.TRB) {
	_ = event

	data := make([]byte, d.reportSize)
	if d.reportSize > 0 {
		kernel.Memcopy(d.reportBufVirt, uintptr(unsafe.Pointer(&data[0])), uintptr(d.reportSize))
	}

	var reportID uint8
	payload := data
	if d.hasMultipleReports && len(data) > 0 {
		reportID = data[0]
		payload = data[1:]
	}
	d.hierarchy.SendReport(reportID, payload)

	d.armTransfer(c, dev)
}

// Release tears down the parsed Hierarchy. The report buffer allocated by
// PostInitialization is not returned to the IOHeap.
func (d *Device) Release(dev *xhci.Device) {
	_ = dev
	if d.hierarchy != nil {
		d.hierarchy.Release()
		d.hierarchy = nil
	}
}
