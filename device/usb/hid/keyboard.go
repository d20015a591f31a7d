package hid

import "corekernel/device/keyboard"

const (
	usagePageKeyboardKeypad = 0x07
	usagePageLEDs           = 0x08

	modifierUsageMin = 0xE0
	modifierUsageMax = 0xE7

	// bitmapSize covers the full one-byte usage ID space the Keyboard/
	// Keypad page uses for its key array, per Keyboard.hpp's
	// BITMAP_SIZE (256 single-bit slots, tracked across two 64-bit words
	// groups there; a plain bool slice is the idiomatic Go equivalent).
	bitmapSize = 256
)

// reportItem is one Input/Output item attached to a report, recording
// enough of the field's HIDState to decode it out of a live report byte
// stream later (ported from Keyboard.hpp's Item, minus the intrusive
// list link and byte offset, which AddItem here computes from the
// report's running item list instead of mutating shared state up front).
type reportItem struct {
	isConstant   bool
	usagePage    uint32
	usageMinimum uint32
	usageMaximum uint32
	size         uint32
	count        uint32
	offsetBits   uint32
}

func (it reportItem) isModifierByte() bool {
	return it.usagePage == usagePageKeyboardKeypad &&
		it.usageMinimum == modifierUsageMin && it.usageMaximum == modifierUsageMax &&
		it.size == 1 && it.count == 8
}

func (it reportItem) isKeyArray() bool {
	return it.usagePage == usagePageKeyboardKeypad && !it.isModifierByte() && it.size == 8
}

// report is one Input or Output report (keyed by report ID) within a
// collection, holding its items in the order they were added.
type report struct {
	id    uint32
	items []reportItem
}

func (r *report) addItem(it reportItem) {
	if n := len(r.items); n > 0 {
		last := r.items[n-1]
		it.offsetBits = last.offsetBits + last.size*last.count
	}
	r.items = append(r.items, it)
}

func (r *report) sizeBits() uint32 {
	if n := len(r.items); n > 0 {
		last := r.items[n-1]
		return last.offsetBits + last.size*last.count
	}
	return 0
}

// reportCollection is one Collection(Application) scope's input/output
// reports, nested via parent for EndCollection to pop back to.
type reportCollection struct {
	parent  *reportCollection
	inputs  []*report
	outputs []*report
}

func (c *reportCollection) getOrAddReport(id uint32, input bool) *report {
	list := &c.inputs
	if !input {
		list = &c.outputs
	}
	for _, r := range *list {
		if r.id == id {
			return r
		}
	}
	r := &report{id: id}
	*list = append(*list, r)
	return r
}

func (c *reportCollection) getReport(id uint32, input bool) (*report, bool) {
	list := c.inputs
	if !input {
		list = c.outputs
	}
	for _, r := range list {
		if r.id == id {
			return r, true
		}
	}
	return nil, false
}

// Keyboard is the InterfaceDevice a ReportParser instantiates when it
// sees a Generic Desktop / Generic Keyboard usage. It decodes USB HID
// boot-protocol-shaped keyboard reports (an 8-bit modifier array plus an
// N-slot key usage array) into BasicKeyPacket edge events pushed to out.
type Keyboard struct {
	collections []*reportCollection
	current     *reportCollection

	maxReportSize int

	currentKeys  [bitmapSize]bool
	previousKeys [bitmapSize]bool

	out *keyboard.Queue
}

// NewKeyboard returns a Keyboard that pushes decoded key events to out.
func NewKeyboard(out *keyboard.Queue) *Keyboard {
	return &Keyboard{out: out}
}

// DeviceClass identifies this InterfaceDevice to Hierarchy.Device.
func (k *Keyboard) DeviceClass() DeviceClass { return DeviceClassKeyboard }

// IsUsageSupported accepts the Generic Keyboard usage (to be instantiated
// at all) plus the Keyboard/Keypad and LED pages its reports are built
// from, per Keyboard.cpp's IsUsageSupported.
func (k *Keyboard) IsUsageSupported(page, usage uint32) bool {
	switch page {
	case usagePageGenericDesktop:
		return usage == usageGenericKeyboard
	case usagePageKeyboardKeypad, usagePageLEDs:
		return true
	default:
		return false
	}
}

// IsReportSupported reports whether any collection declared a report
// with the given ID and direction.
func (k *Keyboard) IsReportSupported(reportID uint32, input bool) bool {
	for _, c := range k.collections {
		if _, ok := c.getReport(reportID, input); ok {
			return true
		}
	}
	return false
}

// MaxReportSize returns the largest input or output report size, in
// bytes, across every collection.
func (k *Keyboard) MaxReportSize() int {
	if k.maxReportSize != 0 {
		return k.maxReportSize
	}
	max := uint32(0)
	for _, c := range k.collections {
		for _, r := range c.inputs {
			if bits := r.sizeBits(); bits > max {
				max = bits
			}
		}
		for _, r := range c.outputs {
			if bits := r.sizeBits(); bits > max {
				max = bits
			}
		}
	}
	k.maxReportSize = int((max + 7) / 8)
	return k.maxReportSize
}

func (k *Keyboard) addReportItem(state HIDState, config IOConfiguration, input bool) bool {
	if config.Variable && state.Global.ReportSize != 1 {
		return false
	}
	if k.current == nil {
		return false
	}

	r := k.current.getOrAddReport(state.Global.ReportID, input)
	r.addItem(reportItem{
		isConstant:   config.Constant,
		usagePage:    state.Global.UsagePage,
		usageMinimum: state.Local.UsageMinimum,
		usageMaximum: state.Local.UsageMaximum,
		size:         state.Global.ReportSize,
		count:        state.Global.ReportCount,
	})
	return true
}

// AddInput attaches an Input item to the current collection's report.
func (k *Keyboard) AddInput(state HIDState, config IOConfiguration) bool {
	return k.addReportItem(state, config, true)
}

// AddOutput attaches an Output item to the current collection's report.
func (k *Keyboard) AddOutput(state HIDState, config IOConfiguration) bool {
	return k.addReportItem(state, config, false)
}

// StartCollection opens a new Application collection (the only kind this
// driver's boot-protocol-shaped keyboard reports use).
func (k *Keyboard) StartCollection(state HIDState, kind CollectionType) bool {
	_ = state
	if kind != CollectionApplication {
		return false
	}
	c := &reportCollection{parent: k.current}
	k.collections = append(k.collections, c)
	k.current = c
	return true
}

// EndCollection pops back to the enclosing collection, if any.
func (k *Keyboard) EndCollection() bool {
	if k.current == nil {
		return false
	}
	k.current = k.current.parent
	return true
}

// Release drops every collection this keyboard parsed.
func (k *Keyboard) Release() {
	k.collections = nil
	k.current = nil
}

// flagsForModifierBits translates the HID boot-protocol modifier byte's
// eight bits directly into keyboard.Flag* bits: both are ordered Left
// Ctrl/Shift/Alt/GUI then Right Ctrl/Shift/Alt/GUI, so the translation is
// the identity function on the bit pattern.
func flagsForModifierBits(modifierByte uint8) uint16 {
	return uint16(modifierByte)
}

// readBits extracts an unsigned little-endian bitfield of width bits
// starting at bit offset from a byte-oriented report.
func readBits(data []byte, offset, width uint32) uint32 {
	var v uint32
	for i := uint32(0); i < width; i++ {
		bitIndex := offset + i
		byteIndex := bitIndex / 8
		if int(byteIndex) >= len(data) {
			break
		}
		bit := (data[byteIndex] >> (bitIndex % 8)) & 1
		v |= uint32(bit) << i
	}
	return v
}

// HandleReport decodes one completed interrupt IN report: the modifier
// byte sets the flags on every emitted packet, and the key usage array
// is diffed against the previous report to emit an edge-triggered
// BasicKeyPacket per newly pressed or released key (section 8 SC-6).
func (k *Keyboard) HandleReport(reportID uint8, data []byte) {
	var flags uint16
	var pressed [bitmapSize]bool

	for _, c := range k.collections {
		r, ok := c.getReport(uint32(reportID), true)
		if !ok {
			continue
		}
		for _, it := range r.items {
			if it.isConstant {
				continue
			}
			if it.isModifierByte() {
				flags = flagsForModifierBits(uint8(readBits(data, it.offsetBits, 8)))
				continue
			}
			if !it.isKeyArray() {
				continue
			}
			for slot := uint32(0); slot < it.count; slot++ {
				usage := readBits(data, it.offsetBits+slot*it.size, it.size)
				if usage == 0 || usage >= bitmapSize {
					continue
				}
				pressed[usage] = true
			}
		}
	}

	k.currentKeys = pressed

	for usage := 1; usage < bitmapSize; usage++ {
		if k.currentKeys[usage] && !k.previousKeys[usage] {
			k.out.Write(keyboard.BasicKeyPacket{
				Scancode: uint8(usage),
				Keypoint: uint8(usage),
				Flags:    flags | keyboard.FlagKeyPressed,
			})
		} else if !k.currentKeys[usage] && k.previousKeys[usage] {
			k.out.Write(keyboard.BasicKeyPacket{
				Scancode: uint8(usage),
				Keypoint: uint8(usage),
				Flags:    flags,
			})
		}
	}

	k.previousKeys = k.currentKeys
}
