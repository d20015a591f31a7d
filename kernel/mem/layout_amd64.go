// +build amd64

package mem

// VirtualRegion describes a named, fixed-at-compile-time slice of the
// kernel's canonical virtual address space.
type VirtualRegion struct {
	Name  string
	Start uintptr
	Limit uintptr
}

// Canonical virtual layout. Every boundary below is fixed at compile time;
// nothing in this table is negotiated with the bootloader except the sizes
// of the EFI runtime / GOP framebuffer / ACPI NVS windows, which are sized
// to fit the largest region the UEFI memory map is expected to report and
// are otherwise just reserved slices of this table.
const (
	// DMAIdentityStart/DMAIdentityLimit cover the legacy 16 MiB DMA zone,
	// identity mapped so DMA-capable 16-bit-era devices can address
	// buffers without a bounce buffer.
	DMAIdentityStart = uintptr(0)
	DMAIdentityLimit = uintptr(16 * Mb)

	// KernelImageStart is the fixed base of the loaded kernel image, its
	// font data and its loader-provided data page.
	KernelImageStart    = uintptr(0xFFFF_8000_0000_0000)
	LoaderFontStart     = uintptr(0xFFFF_8000_0020_0000)
	LoaderFontLimit     = uintptr(0xFFFF_8000_0021_0000)
	LoaderDataStart     = uintptr(0xFFFF_8000_0021_0000)
	LoaderDataLimit     = uintptr(0xFFFF_8000_0021_1000)
	EFIRuntimeStart     = uintptr(0xFFFF_8000_0040_0000)
	EFIRuntimeLimit     = uintptr(0xFFFF_8000_0080_0000)
	GOPFramebufferStart = uintptr(0xFFFF_8000_0080_0000)
	GOPFramebufferLimit = uintptr(0xFFFF_8000_0480_0000)
	ACPINVSStart        = uintptr(0xFFFF_8000_0480_0000)
	ACPINVSLimit        = uintptr(0xFFFF_8000_0580_0000)

	// PhysMapWorkStart/Limit is scratch virtual space the frame allocator
	// and boot-time page table builders use to transiently map a
	// just-allocated physical frame before it is linked into a permanent
	// mapping.
	PhysMapWorkStart = uintptr(0xFFFF_8000_0600_0000)
	PhysMapWorkLimit = uintptr(0xFFFF_8000_0610_0000)

	// GeneralMapStart/Limit is the window map_general scans for transient
	// MMIO mappings (xHCI BAR0, LAPIC/IOAPIC registers, PCI ECAM slices).
	GeneralMapStart = uintptr(0xFFFF_8000_1000_0000)
	GeneralMapLimit = uintptr(0xFFFF_8000_2000_0000)

	// KernelHeapMetaStart/Limit is a reserved window that nothing maps:
	// KernelHeap keeps its AVL free-node tree inside the free chunks of
	// its own arena.
	KernelHeapMetaStart = uintptr(0xFFFF_8000_2000_0000)
	KernelHeapMetaLimit = uintptr(0xFFFF_8000_2100_0000)

	// KernelHeapStart/Limit is the arena KernelHeap carves allocations
	// from; pages in this range are mapped on demand.
	KernelHeapStart = uintptr(0xFFFF_8000_4000_0000)
	KernelHeapLimit = uintptr(0xFFFF_8000_C000_0000)

	// IOHeapStart/Limit is the window IOHeap maps uncached/write-combined
	// for DMA-sharable allocations.
	IOHeapStart = uintptr(0xFFFF_8000_C000_0000)
	IOHeapLimit = uintptr(0xFFFF_8000_C100_0000)

	// PrimaryRecursiveSlot/SecondaryRecursiveSlot are the PML4 indices
	// reserved for the two self-referential recursive mappings described
	// in section 4.2: primary always points at the running address
	// space's own PML4; secondary is repointed at a foreign PML4 for
	// cross-address-space edits (derive_fresh_cr3,
	// free_secondary_recursive_mapping).
	PrimaryRecursiveSlot   = 510
	SecondaryRecursiveSlot = 509

	// PrimaryRecursiveBase/SecondaryRecursiveBase are the canonical
	// virtual addresses obtained by walking the recursive slot through
	// all four page-table levels; the Pager computes every other PTE/PDE
	// /PDPTE/PML4E address as a constant offset from these bases.
	PrimaryRecursiveBase   = uintptr(0xFFFF_FF7F_BFDF_E000)
	SecondaryRecursiveBase = uintptr(0xFFFF_FEFF_7FBF_D000)

	// PerTaskMemStart/Limit holds each task's kernel stack, its guard
	// page, and a reserve region, indexed by task id so tasks never
	// collide even though their cr3 (and hence physical backing) differ.
	PerTaskMemStart = uintptr(0xFFFF_8002_0000_0000)
	PerTaskMemLimit = uintptr(0xFFFF_8004_0000_0000)
	PerTaskStackPages = 8
	PerTaskGuardPages = 1
	PerTaskRegionSize = uintptr(PerTaskStackPages+PerTaskGuardPages+8) * uintptr(PageSize)

	// UserVMemManageStart/Limit is reserved for the per-task user virtual
	// space bookkeeping; user mappings themselves live below bit 47 in
	// each task's private half of the address space and are not part of
	// this table.
	UserVMemManageStart = uintptr(0xFFFF_8004_0000_0000)
	UserVMemManageLimit = uintptr(0xFFFF_8008_0000_0000)
)

// Layout enumerates every VirtualRegion above in address order.
var Layout = []VirtualRegion{
	{"dma_identity", DMAIdentityStart, DMAIdentityLimit},
	{"kernel_image", KernelImageStart, LoaderFontStart},
	{"loader_font", LoaderFontStart, LoaderFontLimit},
	{"loader_data", LoaderDataStart, LoaderDataLimit},
	{"efi_runtime", EFIRuntimeStart, EFIRuntimeLimit},
	{"gop_framebuffer", GOPFramebufferStart, GOPFramebufferLimit},
	{"acpi_nvs", ACPINVSStart, ACPINVSLimit},
	{"phys_map_work", PhysMapWorkStart, PhysMapWorkLimit},
	{"general_map", GeneralMapStart, GeneralMapLimit},
	{"kernel_heap_meta", KernelHeapMetaStart, KernelHeapMetaLimit},
	{"kernel_heap", KernelHeapStart, KernelHeapLimit},
	{"io_heap", IOHeapStart, IOHeapLimit},
	{"per_task_mem", PerTaskMemStart, PerTaskMemLimit},
	{"user_vmem_manage", UserVMemManageStart, UserVMemManageLimit},
}
