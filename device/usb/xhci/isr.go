package xhci

import (
	"corekernel/kernel/irq"
	"corekernel/kernel/irq/apic"
)

// handleIRQ is this controller's MSI interrupt handler, registered with
// irq.RegisterIRQ during Initialize. It acknowledges the interrupt, drains
// every pending event off the primary event ring, dispatches each by TRB
// type, and writes the dequeue pointer back with the Event Handler Busy
// bit set, per section 4.7's event ring consumer description.
func (c *Controller) handleIRQ(frame *irq.Frame, regs *irq.Regs) {
	c.op.AckEventInterrupt()
	c.intr0.AckPending()

	for {
		event, ok := c.evtRing.Pending()
		if !ok {
			break
		}

		switch event.Type() {
		case TRBTypeCommandCompletion:
			c.deliverCommandCompletion(event)
		case TRBTypePortStatusChange:
			c.markPortsDirty()
		case TRBTypeTransferEvent:
			c.routeTransferEvent(event)
		}
	}

	c.intr0.SetERDP(c.evtRing.DequeuePointer())
	apic.SendEOI()
}

// routeTransferEvent delivers a Transfer Event to the device bound to the
// event's slot: the default control pipe's pendingTransfer handoff if the
// event matches what controlTransfer is awaiting, otherwise the device's
// attached class driver.
func (c *Controller) routeTransferEvent(event TRB) {
	dev := c.deviceAtSlot(event.SlotID())
	if dev == nil {
		return
	}
	dev.deliverTransferEvent(c, event)
}
