package xhci

import (
	"corekernel/kernel/sync"
	"unsafe"
)

// portSnapshot is the subset of a root hub port's PORTSC register this
// driver's lifecycle decision depends on, captured once per scan so the
// decision itself (decidePortAction) can be tested without touching MMIO.
type portSnapshot struct {
	connected      bool
	connectChanged bool
	enabled        bool
	resetChanged   bool
	speed          uint8
}

// portAction is what a port's current snapshot calls for.
type portAction uint8

const (
	portActionNone portAction = iota
	portActionStartReset
	portActionEnumerate
	portActionDisconnect
)

// decidePortAction implements section 4.7's port lifecycle: a fresh
// connection starts a reset, a completed reset on an enabled port is
// handed to device enumeration, and a connect-status drop tears the port's
// device down. It also returns which write-1-to-clear PORTSC bits the
// caller should acknowledge.
func decidePortAction(s portSnapshot) (portAction, uint32) {
	switch {
	case s.connectChanged && s.connected:
		return portActionStartReset, portSCCSC
	case s.connectChanged && !s.connected:
		return portActionDisconnect, portSCCSC
	case s.resetChanged && s.enabled:
		return portActionEnumerate, portSCPRC
	default:
		return portActionNone, 0
	}
}

// portsDirty is set by the event-ring ISR (markPortsDirty) and
// cleared by ServicePorts, which does the actual register reads, resets,
// and device enumeration outside interrupt context: enumeration's command
// and control-transfer round trips can take up to their full timeouts, far
// too long to run with interrupts funneled through a single ISR.
func (c *Controller) markPortsDirty() { c.portsDirty.Store(true, sync.OrderRelease) }

// ServicePorts scans every root hub port once if the ISR has flagged a
// change since the last scan, acting on whatever decidePortAction decides
// for its current PORTSC snapshot. Callers invoke this from whatever
// polling context drives device work (this design has no mechanism to
// schedule an arbitrary closure as a preemptible kernel task, so the
// port-update "task" section 4.7 describes is this plain method, meant to
// be invoked periodically).
func (c *Controller) ServicePorts() {
	if !c.portsDirty.Load(sync.OrderAcquire) {
		return
	}
	c.portsDirty.Store(false, sync.OrderRelease)

	opBase := uintptr(unsafe.Pointer(c.op))
	for port := uint8(1); port <= c.maxPorts; port++ {
		p := portRegistersAt(opBase, port)
		snap := portSnapshot{
			connected:      p.ConnectStatus(),
			connectChanged: p.ConnectChanged(),
			enabled:        p.Enabled(),
			resetChanged:   p.ResetChanged(),
			speed:          p.Speed(),
		}
		action, ack := decidePortAction(snap)
		if ack != 0 {
			p.AckChanges(ack)
		}

		switch action {
		case portActionStartReset:
			p.StartReset()
		case portActionEnumerate:
			c.EnumerateDevice(port, PortSpeed(snap.speed))
		case portActionDisconnect:
			c.disconnectPort(port)
		}
	}
}

// disconnectPort tears down whichever slot is bound to port, draining any
// in-flight transfers first so neither the ISR nor a class driver observes
// freed state (section 4.7's safe device teardown).
func (c *Controller) disconnectPort(port uint8) {
	for slot := 1; slot < maxSlots; slot++ {
		dev := c.slots.get(uint8(slot))
		if dev == nil || dev.PortID != port {
			continue
		}

		dev.SetUnavailable()
		c.drainDevice(dev, c.nowMillis()+transferTimeoutMillis)

		if dev.driver != nil {
			dev.driver.Release(dev)
		}

		c.slots.unbind(uint8(slot))
		c.SendCommand(NewDisableSlot(false, uint8(slot)))
		return
	}
}
