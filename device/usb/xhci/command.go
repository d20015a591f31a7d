package xhci

import "corekernel/kernel/sync"

// commandTimeoutMillis bounds a command ring round trip: section 5's
// description of the protocol gives the caller a fixed window to observe a
// Command Completion Event before treating the command as lost.
const commandTimeoutMillis = 200

// pendingCommand is the seq-cst-store / acquire-load handoff between the
// event-ring ISR (producer, never blocks) and SendCommand's polling loop
// (consumer). The completion TRB's four dwords are copied into plain
// Atomic32 fields rather than behind a lock so the ISR never has to
// acquire anything to deliver a result.
type pendingCommand struct {
	awaiting sync.Atomic64
	d0, d1, d2, d3 sync.Atomic32
	ready    sync.AtomicBool
}

// deliverCommandCompletion is called from the event-ring ISR for every
// Command Completion Event; it publishes the event if (and only if) it
// matches the TRB address SendCommand is currently waiting on.
func (c *Controller) deliverCommandCompletion(event TRB) {
	addr := c.cmd.awaiting.Load(sync.OrderAcquire)
	if addr == 0 || event.Pointer() != addr {
		return
	}
	c.cmd.d0.Store(event.data[0], sync.OrderRelaxed)
	c.cmd.d1.Store(event.data[1], sync.OrderRelaxed)
	c.cmd.d2.Store(event.data[2], sync.OrderRelaxed)
	c.cmd.d3.Store(event.data[3], sync.OrderRelaxed)
	c.cmd.ready.Store(true, sync.OrderSeqCst)
}

// SendCommand enqueues trb on the command ring, rings the command
// doorbell, and busy-waits up to commandTimeoutMillis for the matching
// Command Completion Event, returning it and its classified Completion.
// A timeout returns a zero TRB and CompletionResultTimeout with no partial
// state observable by the caller, per section 5(ii).
func (c *Controller) SendCommand(trb TRB) (TRB, Completion) {
	c.cmdRing.Acquire()
	c.cmd.ready.Store(false, sync.OrderRelaxed)
	addr := c.cmdRing.enqueueLocked(trb)
	c.cmd.awaiting.Store(addr, sync.OrderSeqCst)
	c.cmdRing.Release()

	ringDoorbell(c.doorbells, 0, 0)

	deadline := c.nowMillis() + commandTimeoutMillis
	ok := c.spinWait(deadline, func() bool { return c.cmd.ready.Load(sync.OrderAcquire) })
	c.cmd.awaiting.Store(0, sync.OrderRelease)
	if !ok {
		return TRB{}, CompletionResultTimeout
	}

	var result TRB
	result.data[0] = c.cmd.d0.Load(sync.OrderRelaxed)
	result.data[1] = c.cmd.d1.Load(sync.OrderRelaxed)
	result.data[2] = c.cmd.d2.Load(sync.OrderRelaxed)
	result.data[3] = c.cmd.d3.Load(sync.OrderRelaxed)
	return result, classify(result.CompletionCode())
}
