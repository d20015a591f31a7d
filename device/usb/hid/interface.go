package hid

// DeviceClass identifies which concrete InterfaceDevice a report
// descriptor's usage caused the parser to instantiate.
type DeviceClass uint8

const (
	DeviceClassInvalid DeviceClass = iota
	DeviceClassKeyboard
)

// CollectionType mirrors the HID Collection main item's value field.
type CollectionType uint8

const (
	CollectionPhysical CollectionType = iota
	CollectionApplication
	CollectionLogical
	CollectionReport
	CollectionNamedArray
	CollectionUsageSwitch
	CollectionUsageModifier
)

// HIDState is the Global/Local state in effect when a Main item is
// encountered, handed to the InterfaceDevice so it can attach the item
// to the right report/usage.
type HIDState struct {
	Global GlobalState
	Local  LocalState
}

// IOConfiguration decodes an Input/Output main item's bitfield.
type IOConfiguration struct {
	Constant      bool
	Variable      bool
	Relative      bool
	Wrap          bool
	NonLinear     bool
	NoPreferred   bool
	NullState     bool
	Volatile      bool
	BufferedBytes bool
}

func decodeIOConfiguration(value uint32) IOConfiguration {
	return IOConfiguration{
		Constant:      value&0x01 != 0,
		Variable:      value&0x02 != 0,
		Relative:      value&0x04 != 0,
		Wrap:          value&0x08 != 0,
		NonLinear:     value&0x10 != 0,
		NoPreferred:   value&0x20 != 0,
		NullState:     value&0x40 != 0,
		Volatile:      value&0x80 != 0,
		BufferedBytes: value&0x100 != 0,
	}
}

// InterfaceDevice is the capability set a parsed report descriptor's
// usage attaches a concrete class device (Keyboard, presently) through:
// every Main item the parser walks is dispatched to the single
// InterfaceDevice its Generic Desktop usage selected.
type InterfaceDevice interface {
	DeviceClass() DeviceClass

	IsUsageSupported(page, usage uint32) bool
	IsReportSupported(reportID uint32, input bool) bool

	MaxReportSize() int

	AddInput(state HIDState, config IOConfiguration) bool
	AddOutput(state HIDState, config IOConfiguration) bool
	StartCollection(state HIDState, kind CollectionType) bool
	EndCollection() bool

	HandleReport(reportID uint8, data []byte)

	Release()
}
