// Package xhci drives a USB3 xHCI host controller per section 4.7: MMIO
// register bring-up, Command/Event rings with cycle-bit producer/consumer
// discipline, root-hub port lifecycle, and default-control-endpoint device
// enumeration.
package xhci

// TRB is the 16-byte Transfer Request Block every xHCI ring slot holds,
// interpreted differently depending on its Type field (bits [15:10] of
// the fourth dword).
type TRB struct {
	data [4]uint32
}

// TRBType enumerates the TRB kinds this driver produces or consumes.
type TRBType uint8

const (
	TRBTypeNormal TRBType = 1 + iota
	TRBTypeSetupStage
	TRBTypeDataStage
	TRBTypeStatusStage
	_ // Isoch, unused
	TRBTypeLink
	_ // EventData, unused
	_ // NoOpTransfer, unused
	TRBTypeEnableSlot
	TRBTypeDisableSlot
	TRBTypeAddressDevice
	TRBTypeConfigureEndpoint
)

const (
	TRBTypeTransferEvent        TRBType = 32
	TRBTypeCommandCompletion    TRBType = 33
	TRBTypePortStatusChange     TRBType = 34
)

// CompletionCode mirrors the xHCI specification's TRB completion code
// field, truncated to the values this driver distinguishes.
type CompletionCode uint8

const (
	CompletionInvalid CompletionCode = iota
	CompletionSuccess
	CompletionDataBufferError
	CompletionBabbleDetectedError
	CompletionUSBTransactionError
	CompletionTRBError
	CompletionStallError
	CompletionResourceError
	CompletionBandwidthError
	CompletionNoSlotsAvailableError
)

const (
	trbCycleBit            = 1 << 0
	trbToggleCycleBit      = 1 << 1
	trbTypeShift           = 10
	trbTypeMask            = 0x3F << trbTypeShift
	trbSlotIDShift         = 24
	trbEndpointIDShift     = 16
	trbCompletionCodeShift = 24
)

// Cycle reports this TRB's cycle bit.
func (t *TRB) Cycle() bool { return t.data[3]&trbCycleBit != 0 }

// SetCycle sets or clears the cycle bit.
func (t *TRB) SetCycle(c bool) {
	if c {
		t.data[3] |= trbCycleBit
	} else {
		t.data[3] &^= trbCycleBit
	}
}

// Type returns this TRB's type field.
func (t *TRB) Type() TRBType { return TRBType((t.data[3] & trbTypeMask) >> trbTypeShift) }

func (t *TRB) setType(ty TRBType) {
	t.data[3] = (t.data[3] &^ trbTypeMask) | (uint32(ty) << trbTypeShift)
}

// SlotID returns the slot ID field command/event TRBs carry in dword 3.
func (t *TRB) SlotID() uint8 { return uint8(t.data[3] >> trbSlotIDShift) }

func (t *TRB) setSlotID(id uint8) {
	t.data[3] = (t.data[3] &^ (0xFF << trbSlotIDShift)) | (uint32(id) << trbSlotIDShift)
}

// CompletionCode returns an event TRB's completion code field (dword 2,
// bits [31:24]).
func (t *TRB) CompletionCode() CompletionCode {
	return CompletionCode(t.data[2] >> trbCompletionCodeShift)
}

// Pointer returns an event TRB's 64-bit pointer field (dwords 0-1): the
// command/transfer TRB the event refers to.
func (t *TRB) Pointer() uint64 {
	return uint64(t.data[0]) | uint64(t.data[1])<<32
}

// setPointer64 writes a 64-bit pointer into dwords 0-1, used by every TRB
// kind that carries a buffer/context/ring address.
func (t *TRB) setPointer64(addr uint64) {
	t.data[0] = uint32(addr)
	t.data[1] = uint32(addr >> 32)
}

// NewNoOp builds a Normal-type TRB with no buffer, used by the ring tests
// to fill slots when exercising wraparound.
func NewNoOp(cycle bool) TRB {
	var t TRB
	t.setType(TRBTypeNormal)
	t.SetCycle(cycle)
	return t
}

// NewEnableSlot builds an Enable Slot command TRB requesting a slot of the
// given USB3 slot type (0 for USB2-only controllers).
func NewEnableSlot(cycle bool, slotType uint8) TRB {
	var t TRB
	t.setType(TRBTypeEnableSlot)
	t.data[3] |= uint32(slotType) << 16
	t.SetCycle(cycle)
	return t
}

// NewDisableSlot builds a Disable Slot command TRB, issued once a device's
// port disconnects and its drain has completed (section 4.7's safe device
// teardown).
func NewDisableSlot(cycle bool, slotID uint8) TRB {
	var t TRB
	t.setType(TRBTypeDisableSlot)
	t.setSlotID(slotID)
	t.SetCycle(cycle)
	return t
}

// NewAddressDevice builds an Address Device command TRB. bsr selects the
// "block set address request" legacy path (section 4.7 step 5).
func NewAddressDevice(cycle bool, bsr bool, slotID uint8, inputContextPhys uint64) TRB {
	var t TRB
	t.setPointer64(inputContextPhys)
	if bsr {
		t.data[3] |= 1 << 9
	}
	t.setType(TRBTypeAddressDevice)
	t.setSlotID(slotID)
	t.SetCycle(cycle)
	return t
}

// NewConfigureEndpoint builds a Configure Endpoint command TRB.
func NewConfigureEndpoint(cycle bool, slotID uint8, inputContextPhys uint64) TRB {
	var t TRB
	t.setPointer64(inputContextPhys)
	t.setType(TRBTypeConfigureEndpoint)
	t.setSlotID(slotID)
	t.SetCycle(cycle)
	return t
}

// NewLink builds a Link TRB pointing at the ring segment's base address,
// toggling the producer's cycle bit on wraparound when toggle is set.
func NewLink(cycle bool, nextSegmentPhys uint64, toggle bool) TRB {
	var t TRB
	t.setPointer64(nextSegmentPhys)
	if toggle {
		t.data[3] |= trbToggleCycleBit
	}
	t.setType(TRBTypeLink)
	t.SetCycle(cycle)
	return t
}

// NewNormal builds a Normal transfer TRB (used for interrupt IN transfers
// once a device's endpoints are configured).
func NewNormal(cycle bool, bufferPhys uint64, length uint16, interruptOnCompletion bool) TRB {
	var t TRB
	t.setPointer64(bufferPhys)
	t.data[2] = uint32(length)
	if interruptOnCompletion {
		t.data[3] |= 1 << 5
	}
	t.setType(TRBTypeNormal)
	t.SetCycle(cycle)
	return t
}

// NewSetupStage builds a Setup Stage transfer TRB carrying an 8-byte USB
// setup packet as immediate data.
func NewSetupStage(cycle bool, requestType, request uint8, value, index, length uint16, transferType uint8) TRB {
	var t TRB
	t.data[0] = uint32(requestType) | uint32(request)<<8 | uint32(value)<<16
	t.data[1] = uint32(index) | uint32(length)<<16
	t.data[2] = 8
	t.data[3] |= 1 << 6 // Immediate Data
	t.data[3] |= uint32(transferType) << 16
	t.setType(TRBTypeSetupStage)
	t.SetCycle(cycle)
	return t
}

// NewDataStage builds a Data Stage transfer TRB.
func NewDataStage(cycle bool, bufferPhys uint64, length uint16, in bool) TRB {
	var t TRB
	t.setPointer64(bufferPhys)
	t.data[2] = uint32(length)
	if in {
		t.data[3] |= 1 << 16
	}
	t.setType(TRBTypeDataStage)
	t.SetCycle(cycle)
	return t
}

// NewStatusStage builds a Status Stage transfer TRB.
func NewStatusStage(cycle bool, in bool, interruptOnCompletion bool) TRB {
	var t TRB
	if in {
		t.data[3] |= 1 << 16
	}
	if interruptOnCompletion {
		t.data[3] |= 1 << 5
	}
	t.setType(TRBTypeStatusStage)
	t.SetCycle(cycle)
	return t
}
