package xhci

import "testing"

func TestSlotContextFieldsRoundTrip(t *testing.T) {
	var s SlotContext
	s.SetRouteString(0x12345)
	s.SetPortSpeed(PortSpeedHigh)
	s.SetContextEntries(3)
	s.SetRootHubPort(7)

	if s.data[0]&slotRouteStringMask != 0x12345 {
		t.Fatalf("expected route string 0x12345 preserved")
	}
	if PortSpeed((s.data[0]&slotPortSpeedMask)>>slotPortSpeedShift) != PortSpeedHigh {
		t.Fatalf("expected port speed high")
	}
	if (s.data[0]&slotContextEntriesMask)>>slotContextEntriesShift != 3 {
		t.Fatalf("expected context entries 3")
	}
	if (s.data[1]&slotRootHubPortMask)>>slotRootHubPortShift != 7 {
		t.Fatalf("expected root hub port 7")
	}
}

func TestEndpointContextFieldsRoundTrip(t *testing.T) {
	var e EndpointContext
	e.SetEndpointType(EndpointTypeInterruptIn)
	e.SetMaxPacketSize(64)
	e.SetInterval(6)
	e.SetTRDequeuePointer(0x1000, true)

	if (e.data[1]&epTypeMask)>>epTypeShift != uint32(EndpointTypeInterruptIn) {
		t.Fatalf("expected endpoint type interrupt-in")
	}
	if (e.data[1]&epMaxPacketSizeMask)>>epMaxPacketSizeShift != 64 {
		t.Fatalf("expected max packet size 64")
	}
	if (e.data[0]&epIntervalMask)>>epIntervalShift != 6 {
		t.Fatalf("expected interval 6")
	}
	if e.data[2]&epDCSBit == 0 {
		t.Fatalf("expected DCS bit set")
	}
	if e.data[2]&^0xF != 0x1000 {
		t.Fatalf("expected TR dequeue pointer 0x1000")
	}
}

func TestDefaultMaxPacketSizeBySpeed(t *testing.T) {
	cases := []struct {
		speed PortSpeed
		want  uint16
	}{
		{PortSpeedLow, 8},
		{PortSpeedFull, 64},
		{PortSpeedHigh, 64},
		{PortSpeedSuperGen1x1, 512},
	}
	for _, c := range cases {
		if got := c.speed.DefaultMaxPacketSize(); got != c.want {
			t.Fatalf("speed %d: expected %d; got %d", c.speed, c.want, got)
		}
	}
}

func TestEndpointContextIndex(t *testing.T) {
	if got := endpointContextIndex(0, false); got != 1 {
		t.Fatalf("expected control endpoint index 1; got %d", got)
	}
	if got := endpointContextIndex(1, true); got != 3 {
		t.Fatalf("expected EP1 IN index 3; got %d", got)
	}
	if got := endpointContextIndex(1, false); got != 2 {
		t.Fatalf("expected EP1 OUT index 2; got %d", got)
	}
}

func TestInputControlContextAddDropBits(t *testing.T) {
	var ic InputControlContext
	ic.SetAddContext(1)
	ic.SetAddContext(3)
	if ic.data[1] != (1<<1)|(1<<3) {
		t.Fatalf("expected add-context bits 1 and 3 set; got %#x", ic.data[1])
	}

	ic.SetDropContext(1) // below 2, must be ignored per the spec's reserved bits
	if ic.data[0] != 0 {
		t.Fatalf("expected drop context id < 2 to be ignored; got %#x", ic.data[0])
	}
	ic.SetDropContext(4)
	if ic.data[0] != 1<<4 {
		t.Fatalf("expected drop-context bit 4 set; got %#x", ic.data[0])
	}
}
