package xhci

import "testing"

func TestParseDeviceDescriptor(t *testing.T) {
	b := make([]byte, 18)
	b[0] = 18
	b[1] = descTypeDevice
	b[4] = 0x03 // class HID
	b[7] = 64
	b[8], b[9] = 0x86, 0x80 // vendor 0x8086
	b[17] = 1

	d, err := ParseDeviceDescriptor(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.DeviceClass != 0x03 || d.VendorID != 0x8086 || d.NumConfigurations != 1 {
		t.Fatalf("unexpected decode: %+v", d)
	}
}

func TestParseDeviceDescriptorRejectsShortBuffer(t *testing.T) {
	if _, err := ParseDeviceDescriptor(make([]byte, 10)); err == nil {
		t.Fatalf("expected an error for a short buffer")
	}
}

func TestParseDeviceDescriptorRejectsWrongType(t *testing.T) {
	b := make([]byte, 18)
	b[0] = 18
	b[1] = descTypeConfiguration
	if _, err := ParseDeviceDescriptor(b); err == nil {
		t.Fatalf("expected an error for the wrong descriptor type")
	}
}

// buildConfig assembles a configuration descriptor byte stream from a
// configuration header followed by arbitrary interior descriptor bodies.
func buildConfig(bodies ...[]byte) []byte {
	total := 9
	for _, b := range bodies {
		total += len(b)
	}
	out := make([]byte, 9, total)
	out[0] = 9
	out[1] = descTypeConfiguration
	out[2] = byte(total)
	out[5] = 1 // bConfigurationValue
	for _, b := range bodies {
		out = append(out, b...)
	}
	return out
}

func interfaceDesc(num, numEndpoints, class, subclass, protocol uint8) []byte {
	return []byte{9, descTypeInterface, num, 0, numEndpoints, class, subclass, protocol, 0}
}

func endpointDesc(address, attrs uint8, maxPacket uint16, interval uint8) []byte {
	return []byte{7, descTypeEndpoint, address, attrs, byte(maxPacket), byte(maxPacket >> 8), interval}
}

func iadDesc(first, count, class, subclass, protocol uint8) []byte {
	return []byte{8, descTypeInterfaceAssociation, first, count, class, subclass, protocol, 0}
}

func TestParseConfigurationSingleInterfaceBecomesOneFunction(t *testing.T) {
	b := buildConfig(
		interfaceDesc(0, 1, 0x03, 0x01, 0x01),
		endpointDesc(0x81, 0x03, 8, 10),
	)

	cfg, err := ParseConfiguration(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Functions) != 1 {
		t.Fatalf("expected 1 function; got %d", len(cfg.Functions))
	}
	f := cfg.Functions[0]
	if f.Class != 0x03 {
		t.Fatalf("expected function class inherited from its sole interface")
	}
	if len(f.Interfaces) != 1 || len(f.Interfaces[0].Endpoints) != 1 {
		t.Fatalf("expected 1 interface with 1 endpoint")
	}
	ep := f.Interfaces[0].Endpoints[0]
	if !ep.IsIn() || ep.TransferType() != EndpointTypeInterruptIn {
		t.Fatalf("expected an interrupt IN endpoint; got %+v", ep)
	}
}

func TestParseConfigurationIADGroupsMultipleInterfaces(t *testing.T) {
	b := buildConfig(
		iadDesc(0, 2, 0x02, 0x02, 0x01),
		interfaceDesc(0, 0, 0x02, 0x02, 0x01),
		interfaceDesc(1, 0, 0x0A, 0x00, 0x00),
	)

	cfg, err := ParseConfiguration(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Functions) != 1 {
		t.Fatalf("expected the IAD to group both interfaces into 1 function; got %d", len(cfg.Functions))
	}
	if len(cfg.Functions[0].Interfaces) != 2 {
		t.Fatalf("expected 2 interfaces under the grouped function; got %d", len(cfg.Functions[0].Interfaces))
	}
}

func TestParseConfigurationUnknownDescriptorAttachesToExtra(t *testing.T) {
	hidDesc := []byte{9, 0x21, 0x11, 0x01, 0, 1, 0x22, 0x42, 0x00}
	b := buildConfig(
		interfaceDesc(0, 1, 0x03, 0x01, 0x01),
		hidDesc,
		endpointDesc(0x81, 0x03, 8, 10),
	)

	cfg, err := ParseConfiguration(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	iface := cfg.Functions[0].Interfaces[0]
	if len(iface.Extra) != 1 {
		t.Fatalf("expected 1 extra descriptor (the HID descriptor); got %d", len(iface.Extra))
	}
	if iface.Extra[0][1] != 0x21 {
		t.Fatalf("expected the extra descriptor's type to be 0x21 (HID)")
	}
}

func TestParseConfigurationAbortsOnZeroLengthDescriptor(t *testing.T) {
	b := buildConfig(interfaceDesc(0, 0, 0, 0, 0), []byte{0, 0})
	if _, err := ParseConfiguration(b); err == nil {
		t.Fatalf("expected an error for a zero-length descriptor")
	}
}

func TestPrefetchTotalLength(t *testing.T) {
	b := buildConfig(interfaceDesc(0, 0, 0, 0, 0))
	total, err := PrefetchTotalLength(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if int(total) != len(b) {
		t.Fatalf("expected total length %d; got %d", len(b), total)
	}
}
