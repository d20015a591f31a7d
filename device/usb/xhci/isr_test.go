package xhci

import (
	"corekernel/kernel/sync"
	"testing"
)

func TestRouteTransferEventDeliversToBoundSlot(t *testing.T) {
	c := &Controller{}
	dev := &Device{SlotID: 3}
	dev.pending.awaiting.Store(0x1234, sync.OrderSeqCst)
	c.slots.bind(3, dev)

	var event TRB
	event.setSlotID(3)
	event.setPointer64(0x1234)

	c.routeTransferEvent(event)

	if !dev.pending.ready.Load(sync.OrderAcquire) {
		t.Fatalf("expected the bound device to receive the event")
	}
}

func TestRouteTransferEventIgnoresUnboundSlot(t *testing.T) {
	c := &Controller{}

	var event TRB
	event.setSlotID(7)
	event.setPointer64(0x1234)

	// Must not panic when no device is bound to the event's slot.
	c.routeTransferEvent(event)
}
