// Package bootinfo reads the loader-data handoff page the bootloader
// leaves mapped at mem.LoaderDataStart (section 6): a fixed table of
// 64-bit offsets to the UEFI memory map, the DMA-zone bitmap, the ACPI
// RSDP, the MCFG-extracted ECAM base, UEFI runtime services, and the
// graphics framebuffer descriptor.
package bootinfo

import (
	"corekernel/kernel"
	"corekernel/kernel/mem"
	"unsafe"
)

var errShortRead = &kernel.Error{Module: "bootinfo", Message: "loader-data page is smaller than the handoff header", Kind: kernel.KindInvalidParameter}

// header mirrors the fixed handoff struct the bootloader writes, field for
// field and in order: every member is a 64-bit offset (from the start of
// the loader-data page, not an absolute address) to the structure it
// names.
type header struct {
	DMABitMapOffset    uint64
	MmapOffset         uint64
	MmapSizeOffset     uint64
	MmapDescSizeOffset uint64
	AcpiRSDPOffset     uint64
	PCIeECAM0Offset    uint64
	RTServicesOffset   uint64
	GFXDataOffset      uint64
}

// dmaBitmapBytes is the size of the DMA-zone bitmap in the handoff page:
// 2048 bytes for the 4096 4-KiB frames of the first 16 MiB.
const dmaBitmapBytes = 2048

// Info is the parsed view of the loader-data page, with every offset
// already resolved to an absolute kernel virtual address.
type Info struct {
	DMABitMap        uintptr
	Mmap             uintptr
	MmapSize         uint64
	MmapDescSize     uint64
	AcpiRSDP         uintptr
	PCIeECAM0        uintptr
	RTServices       uintptr
	GFXData          uintptr
}

// Parse reads the handoff header at mem.LoaderDataStart and resolves every
// offset it contains to an absolute virtual address.
func Parse() (Info, *kernel.Error) {
	return parseAt(mem.LoaderDataStart, mem.LoaderDataLimit-mem.LoaderDataStart)
}

func parseAt(base uintptr, size uintptr) (Info, *kernel.Error) {
	if size < unsafe.Sizeof(header{}) {
		return Info{}, errShortRead
	}
	h := (*header)(unsafe.Pointer(base))

	return Info{
		DMABitMap:    base + uintptr(h.DMABitMapOffset),
		Mmap:         base + uintptr(h.MmapOffset),
		MmapSize:     *(*uint64)(unsafe.Pointer(base + uintptr(h.MmapSizeOffset))),
		MmapDescSize: *(*uint64)(unsafe.Pointer(base + uintptr(h.MmapDescSizeOffset))),
		AcpiRSDP:     base + uintptr(h.AcpiRSDPOffset),
		PCIeECAM0:    base + uintptr(h.PCIeECAM0Offset),
		RTServices:   base + uintptr(h.RTServicesOffset),
		GFXData:      base + uintptr(h.GFXDataOffset),
	}, nil
}

// DMABitmap returns the 2048-byte DMA-zone allocation bitmap as a slice
// backed directly by the loader-data page (covering the 4096 4-KiB frames
// of the first 16 MiB of physical memory).
func (i Info) DMABitmap() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(i.DMABitMap)), dmaBitmapBytes)
}
