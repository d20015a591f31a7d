package xhci

import (
	"corekernel/kernel"
	"corekernel/kernel/sync"
	"testing"
)

type fakeDriver struct {
	awaiting   uint64
	handled    []TRB
	released   bool
}

func (f *fakeDriver) PostInitialization(c *Controller, dev *Device, fn *Function) *kernel.Error {
	return nil
}
func (f *fakeDriver) GetAwaitingTRB() uint64 { return f.awaiting }
func (f *fakeDriver) HandleEvent(c *Controller, dev *Device, event TRB) {
	f.handled = append(f.handled, event)
}
func (f *fakeDriver) Release(dev *Device) { f.released = true }

func TestDeliverTransferEventMatchesPendingControlTransfer(t *testing.T) {
	dev := &Device{}
	dev.pending.awaiting.Store(0x4000, sync.OrderSeqCst)

	var event TRB
	event.setPointer64(0x4000)
	event.data[2] = uint32(CompletionSuccess) << trbCompletionCodeShift

	dev.deliverTransferEvent(&Controller{}, event)

	if !dev.pending.ready.Load(sync.OrderAcquire) {
		t.Fatalf("expected the pending control transfer to be marked ready")
	}
	if CompletionCode(dev.pending.resultCode.Load(sync.OrderRelaxed)) != CompletionSuccess {
		t.Fatalf("expected the completion code to be recorded")
	}
}

func TestDeliverTransferEventRoutesToDriverWhenNoPendingMatch(t *testing.T) {
	drv := &fakeDriver{awaiting: 0x5000}
	dev := &Device{driver: drv}

	var event TRB
	event.setPointer64(0x5000)

	dev.deliverTransferEvent(&Controller{}, event)

	if len(drv.handled) != 1 {
		t.Fatalf("expected the driver to receive the event, got %d deliveries", len(drv.handled))
	}
}

func TestDeliverTransferEventIgnoredWhenNothingMatches(t *testing.T) {
	drv := &fakeDriver{awaiting: 0x5000}
	dev := &Device{driver: drv}

	var event TRB
	event.setPointer64(0x9999)

	dev.deliverTransferEvent(&Controller{}, event)

	if len(drv.handled) != 0 {
		t.Fatalf("expected no delivery for an unmatched event")
	}
}

func TestSetBusyFailsOnceUnavailable(t *testing.T) {
	dev := &Device{}
	if !dev.SetBusy() {
		t.Fatalf("expected SetBusy to succeed on a fresh device")
	}
	dev.ReleaseBusy()

	dev.SetUnavailable()
	if dev.SetBusy() {
		t.Fatalf("expected SetBusy to fail once the device is marked unavailable")
	}
}

func TestSetBusyReleaseBusyTracksCount(t *testing.T) {
	dev := &Device{}
	dev.SetBusy()
	dev.SetBusy()
	if dev.busy() != 2 {
		t.Fatalf("expected busy count 2, got %d", dev.busy())
	}
	dev.ReleaseBusy()
	if dev.busy() != 1 {
		t.Fatalf("expected busy count 1 after one release, got %d", dev.busy())
	}
}

func TestEnqueueInterruptTransferFailsWithoutConfiguredEndpoint(t *testing.T) {
	dev := &Device{}
	if _, err := dev.EnqueueInterruptTransfer(0x1000, 8); err == nil {
		t.Fatalf("expected an error when no interrupt endpoint is configured")
	}
}
