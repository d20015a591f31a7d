package hid

import "corekernel/kernel"

// Global item tags this driver understands; spec section 6 restricts
// support to exactly these (section 4.7's "only the Global tags Usage
// Page / Logical Min/Max / Report Size / Report ID / Report Count").
const (
	globalTagUsagePage      = 0x0
	globalTagLogicalMinimum = 0x1
	globalTagLogicalMaximum = 0x2
	globalTagReportSize     = 0x7
	globalTagReportID       = 0x8
	globalTagReportCount    = 0x9
)

// Local item tags this driver understands.
const (
	localTagUsage        = 0x0
	localTagUsageMinimum = 0x1
	localTagUsageMaximum = 0x2
)

// Main item tags.
const (
	mainTagInput         = 0x8
	mainTagOutput        = 0x9
	mainTagCollection    = 0xA
	mainTagFeature       = 0xB
	mainTagEndCollection = 0xC
)

const (
	usagePageGenericDesktop = 0x01
	usageGenericKeyboard    = 0x06
)

var errUnsupportedReportDescriptor = &kernel.Error{Module: "hid", Message: "report descriptor uses an unsupported item, page, or usage", Kind: kernel.KindInvalidParameter}

// GlobalState is the HID Global item state in effect at any point during
// a descriptor walk; it persists across items until overwritten (the HID
// 1.11 "global" semantics), and a copy of it is attached to every Main
// item dispatched while it is current.
type GlobalState struct {
	UsagePage      uint32
	LogicalMinimum uint32
	LogicalMaximum uint32
	ReportSize     uint32
	ReportID       uint32
	ReportCount    uint32
}

// LocalState is the HID Local item state; unlike GlobalState it resets
// at every Main item.
type LocalState struct {
	Usage        uint32
	UsageMinimum uint32
	UsageMaximum uint32
}

// Hierarchy is the set of InterfaceDevices a report descriptor walk
// produced, plus whether any report carries a leading Report ID byte
// (section 4.7: "if set, the Interrupt IN transfer buffer is sized to
// max_report_size + 1 and the first byte of each report is treated as
// the report id").
type Hierarchy struct {
	devices            []InterfaceDevice
	hasMultipleReports bool
	maxReportSize      int
}

// Device returns the hierarchy's InterfaceDevice of the given class, if
// the descriptor walk instantiated one.
func (h *Hierarchy) Device(class DeviceClass) (InterfaceDevice, bool) {
	for _, d := range h.devices {
		if d.DeviceClass() == class {
			return d, true
		}
	}
	return nil, false
}

// HasMultipleReports reports whether a nonzero Report ID was seen.
func (h *Hierarchy) HasMultipleReports() bool { return h.hasMultipleReports }

// MaxReportSize returns the largest MaxReportSize any device in the
// hierarchy reports, plus one byte for the Report ID prefix if present.
func (h *Hierarchy) MaxReportSize() int {
	if h.maxReportSize == 0 {
		max := 0
		for _, d := range h.devices {
			if n := d.MaxReportSize(); n > max {
				max = n
			}
		}
		if h.hasMultipleReports {
			max++
		}
		h.maxReportSize = max
	}
	return h.maxReportSize
}

// SendReport dispatches a completed interrupt IN report to every device
// in the hierarchy; reportID is 0 when HasMultipleReports is false.
func (h *Hierarchy) SendReport(reportID uint8, data []byte) {
	for _, d := range h.devices {
		d.HandleReport(reportID, data)
	}
}

// Release tears down every device the hierarchy holds.
func (h *Hierarchy) Release() {
	for _, d := range h.devices {
		d.Release()
	}
	h.devices = nil
}

// ReportParser walks a ReportDescriptor's items, threading Global/Local
// state through to the Main item dispatch that attaches report fields to
// an InterfaceDevice, per section 4.7's "HID path".
type ReportParser struct {
	descriptor *ReportDescriptor

	global GlobalState
	local  LocalState
	device InterfaceDevice

	hasMultipleReports bool
}

// NewReportParser wraps descriptor for a single Parse call.
func NewReportParser(descriptor *ReportDescriptor) *ReportParser {
	return &ReportParser{descriptor: descriptor}
}

// parserUsageSupported is the narrow page/usage check applied before any
// InterfaceDevice has been instantiated: a report descriptor must lead
// with a Generic Desktop / Generic Keyboard usage before this driver
// will create one. Once a device exists, its own IsUsageSupported takes
// over (a Keyboard also accepts the Keyboard/Keypad and LED usage pages
// its key array and output reports live on).
func parserUsageSupported(page, usage uint32) bool {
	return page == usagePageGenericDesktop && usage == usageGenericKeyboard
}

// handleGlobalItem applies a Global item to g, rejecting a Usage Page
// neither the parser's own allow-list nor device (if any) supports.
func handleGlobalItem(item Item, g *GlobalState, device InterfaceDevice) bool {
	switch item.Tag {
	case globalTagUsagePage:
		if item.Value != usagePageGenericDesktop && (device == nil || !device.IsUsageSupported(item.Value, 0)) {
			return false
		}
		g.UsagePage = item.Value
	case globalTagLogicalMinimum:
		g.LogicalMinimum = item.Value
	case globalTagLogicalMaximum:
		g.LogicalMaximum = item.Value
	case globalTagReportSize:
		g.ReportSize = item.Value
	case globalTagReportID:
		g.ReportID = item.Value
	case globalTagReportCount:
		g.ReportCount = item.Value
	default:
		return false
	}
	return true
}

// handleLocalItem applies a Local item to l. A Usage tag is validated
// against device's own acceptance once a device exists, or the parser's
// narrower allow-list while none has been instantiated yet.
func handleLocalItem(item Item, g *GlobalState, l *LocalState, device InterfaceDevice) bool {
	switch item.Tag {
	case localTagUsage:
		supported := parserUsageSupported(g.UsagePage, item.Value)
		if device != nil {
			supported = device.IsUsageSupported(g.UsagePage, item.Value)
		}
		if !supported {
			return false
		}
		l.Usage = item.Value
	case localTagUsageMinimum:
		l.UsageMinimum = item.Value
	case localTagUsageMaximum:
		l.UsageMaximum = item.Value
	default:
		return false
	}
	return true
}

// Parse walks the whole descriptor, lazily instantiating exactly one
// Keyboard device the first time a Generic Keyboard usage is seen, and
// dispatching every Main item to it. Any item referencing an
// unsupported page/usage, an unsupported Main tag, or a Feature item
// aborts the walk (section 6: "Feature is currently rejected").
func (p *ReportParser) Parse(newKeyboard func() InterfaceDevice) (*Hierarchy, *kernel.Error) {
	h := &Hierarchy{}

	for {
		item, ok := p.descriptor.GetNextItem()
		if !ok {
			break
		}

		switch item.Type {
		case ItemGlobal:
			if !handleGlobalItem(item, &p.global, p.device) {
				h.Release()
				return nil, errUnsupportedReportDescriptor
			}
			if item.Tag == globalTagReportID && item.Value != 0 {
				p.hasMultipleReports = true
			}

		case ItemLocal:
			previousUsage := p.local.Usage
			if !handleLocalItem(item, &p.global, &p.local, p.device) {
				h.Release()
				return nil, errUnsupportedReportDescriptor
			}
			if item.Tag == localTagUsage && p.local.Usage != previousUsage {
				if p.global.UsagePage != usagePageGenericDesktop {
					continue
				}
				if p.local.Usage != usageGenericKeyboard || (p.device != nil && p.device.DeviceClass() == DeviceClassKeyboard) {
					continue
				}
				if existing, found := h.Device(DeviceClassKeyboard); found {
					p.device = existing
				} else {
					dev := newKeyboard()
					h.devices = append(h.devices, dev)
					p.device = dev
				}
			}

		case ItemMain:
			if p.device == nil {
				h.Release()
				return nil, errUnsupportedReportDescriptor
			}

			state := HIDState{Global: p.global, Local: p.local}
			config := decodeIOConfiguration(item.Value)

			switch item.Tag {
			case mainTagInput:
				if !p.device.AddInput(state, config) {
					h.Release()
					return nil, errUnsupportedReportDescriptor
				}
			case mainTagOutput:
				if !p.device.AddOutput(state, config) {
					h.Release()
					return nil, errUnsupportedReportDescriptor
				}
			case mainTagFeature:
				h.Release()
				return nil, errUnsupportedReportDescriptor
			case mainTagCollection:
				kind, ok := collectionType(item.Value)
				if !ok || !p.device.StartCollection(state, kind) {
					h.Release()
					return nil, errUnsupportedReportDescriptor
				}
			case mainTagEndCollection:
				if !p.device.EndCollection() {
					h.Release()
					return nil, errUnsupportedReportDescriptor
				}
			default:
				h.Release()
				return nil, errUnsupportedReportDescriptor
			}

			p.local = LocalState{}
		}
	}

	if len(h.devices) > 1 && !p.hasMultipleReports {
		h.Release()
		return nil, errUnsupportedReportDescriptor
	}
	h.hasMultipleReports = p.hasMultipleReports
	return h, nil
}

func collectionType(value uint32) (CollectionType, bool) {
	switch value {
	case 0x00:
		return CollectionPhysical, true
	case 0x01:
		return CollectionApplication, true
	case 0x02:
		return CollectionLogical, true
	case 0x03:
		return CollectionReport, true
	case 0x04:
		return CollectionNamedArray, true
	case 0x05:
		return CollectionUsageSwitch, true
	case 0x06:
		return CollectionUsageModifier, true
	default:
		return 0, false
	}
}
