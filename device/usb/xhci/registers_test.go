package xhci

import "testing"

func TestPortRegistersStartResetPreservesOtherBitsButClearsStatusBits(t *testing.T) {
	p := &PortRegisters{PortSC: portSCCCS | portSCPED | portSCPRC | portSCPP}
	p.StartReset()

	if p.PortSC&portSCPR == 0 {
		t.Fatalf("expected PR bit set after StartReset")
	}
	if p.PortSC&portSCPRC != 0 {
		t.Fatalf("expected write-1-to-clear status bits cleared by the read-modify-write")
	}
	if p.PortSC&portSCCCS == 0 || p.PortSC&portSCPP == 0 {
		t.Fatalf("expected non-status bits (CCS, PP) to survive StartReset")
	}
}

func TestPortRegistersAckChangesClearsOnlyRequestedBits(t *testing.T) {
	p := &PortRegisters{PortSC: portSCCCS | portSCPRC | portSCCSC}
	p.AckChanges(portSCPRC)

	if p.PortSC&portSCPRC == 0 {
		t.Fatalf("expected PRC written as 1 so the controller clears it")
	}
	if p.PortSC&portSCCSC != 0 {
		t.Fatalf("expected CSC written as 0 so the controller leaves it untouched")
	}
	if p.PortSC&portSCCCS == 0 {
		t.Fatalf("expected CCS to be preserved")
	}
}

func TestCapabilityRegistersMaxScratchpadBuffers(t *testing.T) {
	c := &CapabilityRegisters{HCSParams2: (3 << 27) | (1 << 21)}
	if got := c.MaxScratchpadBuffers(); got != 97 {
		t.Fatalf("expected 97 scratchpad buffers (hi=3,lo=1 -> 3<<5|1); got %d", got)
	}
}

func TestMaxSlotsReadsLowByte(t *testing.T) {
	c := &CapabilityRegisters{HCSParams1: 0x01020364}
	if c.MaxSlots() != 0x64 {
		t.Fatalf("expected max slots 0x64; got %#x", c.MaxSlots())
	}
}
