package xhci

import "corekernel/kernel"

const (
	descTypeDevice                  = 0x01
	descTypeConfiguration           = 0x02
	descTypeInterface               = 0x04
	descTypeEndpoint                = 0x05
	descTypeInterfaceAssociation    = 0x0B

	deviceDescriptorLength = 18
)

var (
	errZeroLengthDescriptor = &kernel.Error{Module: "xhci", Message: "encountered a zero-length descriptor", Kind: kernel.KindInvalidParameter}
	errShortDeviceDescriptor = &kernel.Error{Module: "xhci", Message: "device descriptor shorter than 18 bytes", Kind: kernel.KindInvalidParameter}
	errBadDeviceDescriptorType = &kernel.Error{Module: "xhci", Message: "device descriptor has the wrong bDescriptorType", Kind: kernel.KindInvalidParameter}
)

// DeviceDescriptor mirrors the USB device descriptor's fields this driver
// consumes (section 4.7 step 6: "GET_DESCRIPTOR(device) reads 18 bytes...
// and validates the length/type").
type DeviceDescriptor struct {
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	NumConfigurations uint8
}

// ParseDeviceDescriptor validates and decodes an 18-byte GET_DESCRIPTOR
// response.
func ParseDeviceDescriptor(b []byte) (DeviceDescriptor, *kernel.Error) {
	if len(b) < deviceDescriptorLength {
		return DeviceDescriptor{}, errShortDeviceDescriptor
	}
	if b[0] != deviceDescriptorLength || b[1] != descTypeDevice {
		return DeviceDescriptor{}, errBadDeviceDescriptorType
	}
	return DeviceDescriptor{
		DeviceClass:       b[4],
		DeviceSubClass:    b[5],
		DeviceProtocol:    b[6],
		MaxPacketSize0:    b[7],
		VendorID:          le16(b[8:]),
		ProductID:         le16(b[10:]),
		NumConfigurations: b[17],
	}, nil
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }

// EndpointDescriptor is one USB endpoint descriptor's decoded fields.
type EndpointDescriptor struct {
	Address       uint8
	Attributes    uint8
	MaxPacketSize uint16
	Interval      uint8
}

// IsIn reports whether this is an IN endpoint (bit 7 of bEndpointAddress).
func (e EndpointDescriptor) IsIn() bool { return e.Address&0x80 != 0 }

// TransferType decodes bmAttributes[1:0] into an EndpointType, ignoring
// direction (the caller supplies direction separately via IsIn).
func (e EndpointDescriptor) TransferType() EndpointType {
	switch e.Attributes & 0x3 {
	case 0:
		return EndpointTypeControl
	case 1:
		if e.IsIn() {
			return EndpointTypeIsochIn
		}
		return EndpointTypeIsochOut
	case 2:
		if e.IsIn() {
			return EndpointTypeBulkIn
		}
		return EndpointTypeBulkOut
	default:
		if e.IsIn() {
			return EndpointTypeInterruptIn
		}
		return EndpointTypeInterruptOut
	}
}

// Interface is one USB interface descriptor's decoded fields plus the
// endpoints and unrecognized interior descriptors (HID report descriptor
// headers among them) that followed it before the next Interface or
// Configuration descriptor.
type Interface struct {
	Number           uint8
	AlternateSetting uint8
	Class            uint8
	SubClass         uint8
	Protocol         uint8
	Endpoints        []EndpointDescriptor
	Extra            [][]byte
}

// Function groups one or more Interfaces under a single class/subclass/
// protocol triple, either because they share the class of their sole
// Interface or because an Interface Association Descriptor explicitly
// grouped them (section 4.7 step 7).
type Function struct {
	Class      uint8
	SubClass   uint8
	Protocol   uint8
	Interfaces []Interface
}

// Configuration is the parsed tree of Functions a configuration
// descriptor's byte stream decodes into.
type Configuration struct {
	ConfigurationValue uint8
	Functions          []Function
}

// PrefetchTotalLength reads the 2-byte wTotalLength field from a 4-byte+
// configuration descriptor prefetch, per section 4.7 step 7's two-pass
// fetch.
func PrefetchTotalLength(b []byte) (uint16, *kernel.Error) {
	if len(b) < 4 {
		return 0, errShortDeviceDescriptor
	}
	return le16(b[2:]), nil
}

// ParseConfiguration walks a full configuration descriptor byte stream
// top-down, per section 4.7 step 7: unknown interior descriptors attach
// to the current Interface's Extra list, Interface Association
// Descriptors open an explicit Function grouping, and a zero-length
// descriptor aborts parsing.
func ParseConfiguration(b []byte) (*Configuration, *kernel.Error) {
	if len(b) < 9 || b[1] != descTypeConfiguration {
		return nil, errBadDeviceDescriptorType
	}

	cfg := &Configuration{ConfigurationValue: b[5]}

	var curFunc *Function
	var curIface *Interface
	var iadRemaining int

	closeInterface := func() {
		if curIface != nil && curFunc != nil {
			curFunc.Interfaces = append(curFunc.Interfaces, *curIface)
			curIface = nil
		}
	}
	closeFunction := func() {
		closeInterface()
		if curFunc != nil {
			cfg.Functions = append(cfg.Functions, *curFunc)
			curFunc = nil
		}
	}

	off := 9 // skip the configuration descriptor itself
	for off < len(b) {
		length := int(b[off])
		if length == 0 {
			return nil, errZeroLengthDescriptor
		}
		if off+length > len(b) {
			break
		}
		descType := b[off+1]
		body := b[off : off+length]

		switch descType {
		case descTypeInterfaceAssociation:
			closeFunction()
			curFunc = &Function{Class: body[4], SubClass: body[5], Protocol: body[6]}
			iadRemaining = int(body[3])

		case descTypeInterface:
			closeInterface()
			if body[3] == 0 {
				if iadRemaining > 0 {
					iadRemaining--
				} else {
					closeFunction()
				}
			}
			if curFunc == nil {
				curFunc = &Function{Class: body[5], SubClass: body[6], Protocol: body[7]}
			}
			curIface = &Interface{
				Number:           body[2],
				AlternateSetting: body[3],
				Class:            body[5],
				SubClass:         body[6],
				Protocol:         body[7],
			}

		case descTypeEndpoint:
			if curIface != nil {
				curIface.Endpoints = append(curIface.Endpoints, EndpointDescriptor{
					Address:       body[2],
					Attributes:    body[3],
					MaxPacketSize: le16(body[4:]),
					Interval:      body[6],
				})
			}

		default:
			if curIface != nil {
				curIface.Extra = append(curIface.Extra, body)
			}
		}

		off += length
	}
	closeFunction()

	return cfg, nil
}
