// Package acpi parses the fixed set of ACPI tables this kernel core
// consumes (section 6): the RSDP (v2, XSDT-only), the XSDT itself, the
// MADT, and the MCFG. It never evaluates AML; any table beyond these four
// is out of scope, matching spec.md's tty/VFS-adjacent Non-goals.
package acpi

import (
	"corekernel/kernel"
	"unsafe"
)

var (
	errBadSignature = &kernel.Error{Module: "acpi", Message: "table signature mismatch", Kind: kernel.KindInvalidParameter}
	errNotFound     = &kernel.Error{Module: "acpi", Message: "requested ACPI table not present in the XSDT", Kind: kernel.KindNotFound}

	errUnsupportedRevision = &kernel.Error{Module: "acpi", Message: "RSDP revision predates ACPI 2.0 (no XSDT)", Kind: kernel.KindInvalidParameter}
)

var rsdpSignature = [8]byte{'R', 'S', 'D', ' ', 'P', 'T', 'R', ' '}

// SDTHeader is the common header every ACPI table shares (signature
// matching is byte-exact against Signature, per section 6).
type SDTHeader struct {
	Signature       [4]byte
	Length          uint32
	Revision        uint8
	Checksum        uint8
	OEMID           [6]byte
	OEMTableID      [8]byte
	OEMRevision     uint32
	CreatorID       [4]byte
	CreatorRevision uint32
}

// rsdpV2 is the ACPI 2.0+ root system descriptor pointer. This kernel only
// accepts v2+ RSDPs (XSDT-only, per section 6); a v1-only RSDP is rejected
// rather than falling back to the 32-bit RSDT.
type rsdpV2 struct {
	signature        [8]byte
	checksum         uint8
	oemID            [6]byte
	revision         uint8
	rsdtAddress      uint32
	length           uint32
	xsdtAddress      uint64
	extendedChecksum uint8
	reserved         [3]byte
}

// RSDP is the parsed view ParseRSDP returns to callers.
type RSDP struct {
	XSDTAddress uintptr
	Revision    uint8
}

// ParseRSDP validates the signature and revision of the RSDP located at
// virtAddr (already mapped by the caller, per section 6's "RSDP at a mapped
// page") and returns its XSDT address.
func ParseRSDP(virtAddr uintptr) (RSDP, *kernel.Error) {
	r := (*rsdpV2)(unsafe.Pointer(virtAddr))
	if r.signature != rsdpSignature {
		return RSDP{}, errBadSignature
	}
	if r.revision < 2 {
		return RSDP{}, errUnsupportedRevision
	}
	return RSDP{XSDTAddress: uintptr(r.xsdtAddress), Revision: r.revision}, nil
}

func headerAt(virtAddr uintptr) *SDTHeader {
	return (*SDTHeader)(unsafe.Pointer(virtAddr))
}

// XSDTEntries returns the physical addresses of every table the XSDT at
// virtAddr points to. Callers map the XSDT itself before calling this (its
// own length is read from the embedded SDTHeader).
func XSDTEntries(virtAddr uintptr) []uintptr {
	h := headerAt(virtAddr)
	count := (int(h.Length) - int(unsafe.Sizeof(SDTHeader{}))) / 8
	entries := make([]uintptr, count)
	base := virtAddr + unsafe.Sizeof(SDTHeader{})
	for i := 0; i < count; i++ {
		ptr := (*uint64)(unsafe.Pointer(base + uintptr(i)*8))
		entries[i] = uintptr(*ptr)
	}
	return entries
}

// FindTable scans the physical addresses returned by XSDTEntries (each
// mapped transiently via mapFn) for one whose signature matches sig,
// returning its already-mapped virtual header address.
func FindTable(xsdtVirtAddr uintptr, sig string, mapFn func(phys uintptr) (uintptr, *kernel.Error)) (uintptr, *kernel.Error) {
	for _, phys := range XSDTEntries(xsdtVirtAddr) {
		virt, err := mapFn(phys)
		if err != nil {
			return 0, err
		}
		h := headerAt(virt)
		if string(h.Signature[:]) == sig {
			return virt, nil
		}
	}
	return 0, errNotFound
}
