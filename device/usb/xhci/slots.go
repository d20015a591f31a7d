package xhci

import "corekernel/kernel/sync"

// maxSlots bounds the flat slot table every controller allocates: the
// xHCI specification caps MaxSlots at 255, and the DCBAA is sized to
// match whatever the hardware actually advertises in HCSPARAMS1, but the
// in-memory Device table is a fixed array rather than a map, indexed
// directly by slot id (slot ids are small, dense integers assigned by
// the hardware itself; a hash map buys nothing here and costs an
// allocation on the hot device-enumeration path).
const maxSlots = 256

// slotTable tracks which slot ids are bound to a live Device, replacing
// a hash-map-keyed-by-slot-id with a flat array indexed directly by slot
// id (slot 0 is never valid and always nil).
type slotTable struct {
	mu      sync.Spinlock
	devices [maxSlots]*Device
}

func (s *slotTable) bind(slotID uint8, d *Device) {
	s.mu.Acquire()
	s.devices[slotID] = d
	s.mu.Release()
}

func (s *slotTable) unbind(slotID uint8) {
	s.mu.Acquire()
	s.devices[slotID] = nil
	s.mu.Release()
}

func (s *slotTable) get(slotID uint8) *Device {
	s.mu.Acquire()
	defer s.mu.Release()
	return s.devices[slotID]
}
