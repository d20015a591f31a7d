package pci

import (
	"testing"
	"unsafe"
)

// fakeECAM backs an ECAM window with a real host buffer sized for
// busCount buses, matching the real MapECAM layout (1 MiB per bus).
func fakeECAM(busCount int) ([]byte, ECAM) {
	buf := make([]byte, busCount*maxDevice*maxFunction*configSpaceSize)
	for i := range buf {
		buf[i] = 0xFF
	}
	e := ECAM{virtBase: uintptr(unsafe.Pointer(&buf[0])), startBus: 0, endBus: uint8(busCount - 1)}
	return buf, e
}

func writeDevice(e ECAM, addr Address, vendor, device uint16, class Class, headerType uint8) {
	d := e.deviceAt(addr)
	d.write16(0x00, vendor)
	d.write16(0x02, device)
	*(*byte)(unsafe.Pointer(d.cfg + 0x09)) = class.ProgIF
	*(*byte)(unsafe.Pointer(d.cfg + 0x0A)) = class.Subclass
	*(*byte)(unsafe.Pointer(d.cfg + 0x0B)) = class.BaseClass
	*(*byte)(unsafe.Pointer(d.cfg + 0x0E)) = headerType
}

func TestEnumerateVisitsOnlyPopulatedFunctions(t *testing.T) {
	_, e := fakeECAM(1)
	writeDevice(e, Address{Bus: 0, Device: 1, Function: 0}, 0x8086, 0x1111, Class{}, 0x00)
	writeDevice(e, Address{Bus: 0, Device: 2, Function: 0}, 0x8086, 0x2222, Class{}, 0x00)

	var visited []Address
	Enumerate(e, func(d Device) { visited = append(visited, d.Address) })

	if len(visited) != 2 {
		t.Fatalf("expected 2 populated functions; got %d", len(visited))
	}
}

func TestEnumerateScansAllFunctionsWhenMultiFunction(t *testing.T) {
	_, e := fakeECAM(1)
	writeDevice(e, Address{Bus: 0, Device: 1, Function: 0}, 0x8086, 0x1111, Class{}, 0x80)
	writeDevice(e, Address{Bus: 0, Device: 1, Function: 3}, 0x8086, 0x3333, Class{}, 0x00)

	var visited []Address
	Enumerate(e, func(d Device) { visited = append(visited, d.Address) })

	if len(visited) != 2 {
		t.Fatalf("expected function 0 and function 3 to both be visited; got %d", len(visited))
	}
}

func TestEnumerateSkipsRemainingFunctionsWhenNotMultiFunction(t *testing.T) {
	_, e := fakeECAM(1)
	writeDevice(e, Address{Bus: 0, Device: 1, Function: 0}, 0x8086, 0x1111, Class{}, 0x00)
	writeDevice(e, Address{Bus: 0, Device: 1, Function: 3}, 0x8086, 0x3333, Class{}, 0x00)

	var visited []Address
	Enumerate(e, func(d Device) { visited = append(visited, d.Address) })

	if len(visited) != 1 {
		t.Fatalf("expected only function 0 visited since it is not multi-function; got %d", len(visited))
	}
}

func TestFindClassLocatesXHCIController(t *testing.T) {
	_, e := fakeECAM(1)
	writeDevice(e, Address{Bus: 0, Device: 1, Function: 0}, 0x8086, 0x1111, Class{}, 0x00)
	writeDevice(e, Address{Bus: 0, Device: 5, Function: 0}, 0x8086, 0x9D2F, ClassXHCI, 0x00)

	d, ok := FindClass(e, ClassXHCI)
	if !ok {
		t.Fatalf("expected to find an xHCI controller")
	}
	if d.Device != 5 {
		t.Fatalf("expected device 5; got %d", d.Device)
	}
}

func TestFindClassReturnsFalseWhenAbsent(t *testing.T) {
	_, e := fakeECAM(1)
	writeDevice(e, Address{Bus: 0, Device: 1, Function: 0}, 0x8086, 0x1111, Class{}, 0x00)

	if _, ok := FindClass(e, ClassXHCI); ok {
		t.Fatalf("expected no xHCI controller to be found")
	}
}
