package xhci

import "testing"

func TestTRBCycleRoundTrips(t *testing.T) {
	trb := NewNoOp(true)
	if !trb.Cycle() {
		t.Fatalf("expected cycle bit set")
	}
	trb.SetCycle(false)
	if trb.Cycle() {
		t.Fatalf("expected cycle bit cleared")
	}
}

func TestNewEnableSlotSetsType(t *testing.T) {
	trb := NewEnableSlot(true, 0)
	if trb.Type() != TRBTypeEnableSlot {
		t.Fatalf("expected TRBTypeEnableSlot; got %d", trb.Type())
	}
}

func TestNewAddressDeviceEncodesBSRAndSlot(t *testing.T) {
	trb := NewAddressDevice(true, true, 5, 0x1000)
	if trb.Type() != TRBTypeAddressDevice {
		t.Fatalf("expected TRBTypeAddressDevice")
	}
	if trb.SlotID() != 5 {
		t.Fatalf("expected slot id 5; got %d", trb.SlotID())
	}
	if trb.data[3]&(1<<9) == 0 {
		t.Fatalf("expected BSR bit set")
	}
	if trb.Pointer() != 0x1000 {
		t.Fatalf("expected pointer 0x1000; got %#x", trb.Pointer())
	}
}

func TestNewAddressDeviceWithoutBSR(t *testing.T) {
	trb := NewAddressDevice(false, false, 2, 0x2000)
	if trb.data[3]&(1<<9) != 0 {
		t.Fatalf("expected BSR bit clear")
	}
}

func TestCompletionCodeDecoding(t *testing.T) {
	var trb TRB
	trb.data[2] = uint32(CompletionSuccess) << trbCompletionCodeShift
	if trb.CompletionCode() != CompletionSuccess {
		t.Fatalf("expected CompletionSuccess; got %d", trb.CompletionCode())
	}
}

func TestNewSetupStageEncodesRequest(t *testing.T) {
	trb := NewSetupStage(true, 0x80, 0x06, 0x0100, 0, 18, 3)
	if trb.Type() != TRBTypeSetupStage {
		t.Fatalf("expected TRBTypeSetupStage")
	}
	if trb.data[2] != 8 {
		t.Fatalf("expected TRB transfer length 8 for a setup packet; got %d", trb.data[2])
	}
	if trb.data[3]&(1<<6) == 0 {
		t.Fatalf("expected Immediate Data bit set")
	}
}
