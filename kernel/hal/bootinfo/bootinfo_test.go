package bootinfo

import (
	"testing"
	"unsafe"
)

func buildFakePage(t *testing.T) ([]byte, Info) {
	t.Helper()
	const pageSize = 4096
	buf := make([]byte, pageSize)
	base := uintptr(unsafe.Pointer(&buf[0]))

	h := (*header)(unsafe.Pointer(&buf[0]))
	h.DMABitMapOffset = 64
	h.MmapOffset = 2176
	h.MmapSizeOffset = 256
	h.MmapDescSizeOffset = 264
	h.AcpiRSDPOffset = 272
	h.PCIeECAM0Offset = 280
	h.RTServicesOffset = 288
	h.GFXDataOffset = 296

	*(*uint64)(unsafe.Pointer(base + 256)) = 42
	*(*uint64)(unsafe.Pointer(base + 264)) = 48

	want := Info{
		DMABitMap:    base + 64,
		Mmap:         base + 2176,
		MmapSize:     42,
		MmapDescSize: 48,
		AcpiRSDP:     base + 272,
		PCIeECAM0:    base + 280,
		RTServices:   base + 288,
		GFXData:      base + 296,
	}
	return buf, want
}

func TestParseAtResolvesEveryOffset(t *testing.T) {
	buf, want := buildFakePage(t)

	got, err := parseAt(uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v; got %+v", want, got)
	}
}

func TestParseAtRejectsShortRegion(t *testing.T) {
	buf := make([]byte, 4)
	if _, err := parseAt(uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf))); err == nil {
		t.Fatalf("expected an error for a region smaller than the header")
	}
}

func TestDMABitmapCoversExpectedRange(t *testing.T) {
	buf, _ := buildFakePage(t)
	base := uintptr(unsafe.Pointer(&buf[0]))
	info, err := parseAt(base, uintptr(len(buf)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bitmap := info.DMABitmap()
	if len(bitmap) != dmaBitmapBytes {
		t.Fatalf("expected %d bytes; got %d", dmaBitmapBytes, len(bitmap))
	}

	buf[64+5] = 0xFF
	if bitmap[5] != 0xFF {
		t.Fatalf("expected DMABitmap to alias the underlying page")
	}
}
