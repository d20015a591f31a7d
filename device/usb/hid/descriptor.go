// Package hid implements the USB HID 1.11 report descriptor grammar
// (section 4.7's "HID path") and the class driver(s) that interpret a
// parsed descriptor against live interrupt IN reports.
package hid

// ItemType classifies a short-item's two-bit Type field.
type ItemType uint8

const (
	ItemMain ItemType = iota
	ItemGlobal
	ItemLocal
	itemReserved
)

// Item is one decoded short item: its type, its four-bit tag, and its
// sign-extended-by-caller raw value (callers interpret the sign
// themselves, per tag; Usage/ReportSize/etc are always read unsigned).
type Item struct {
	Type  ItemType
	Tag   uint8
	Value uint32
}

// ReportDescriptor walks a raw HID report descriptor byte stream one
// short item at a time.
type ReportDescriptor struct {
	data     []byte
	position int
}

// NewReportDescriptor wraps data for sequential item decoding.
func NewReportDescriptor(data []byte) *ReportDescriptor {
	return &ReportDescriptor{data: data}
}

// GetNextItem decodes the short item at the descriptor's current
// position and advances past it. ok is false once the descriptor is
// exhausted or a long item / reserved type is encountered (this driver
// never produces long items and treats one as the end of a well-formed
// descriptor).
func (d *ReportDescriptor) GetNextItem() (Item, bool) {
	if d.position >= len(d.data) {
		return Item{}, false
	}

	prefix := d.data[d.position]
	d.position++

	size := prefix & 0x03
	itemType := ItemType((prefix >> 2) & 0x03)
	tag := (prefix >> 4) & 0x0F

	if itemType == itemReserved {
		return Item{}, false
	}

	var byteCount int
	switch size {
	case 0:
		byteCount = 0
	case 1:
		byteCount = 1
	case 2:
		byteCount = 2
	default:
		byteCount = 4
	}

	if d.position+byteCount > len(d.data) {
		return Item{}, false
	}

	var value uint32
	for i := 0; i < byteCount; i++ {
		value |= uint32(d.data[d.position+i]) << (8 * uint(i))
	}
	d.position += byteCount

	return Item{Type: itemType, Tag: tag, Value: value}, true
}
