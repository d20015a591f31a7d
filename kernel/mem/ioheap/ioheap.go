// Package ioheap implements the IOHeap described in section 4.3: a
// first-fit allocator with per-allocation alignment over a 16 MiB region
// mapped with the cacheability the caller requires (typically uncached or
// write-combining), used for buffers shared with device DMA controllers.
//
// Unlike KernelHeap, the arena is frame-backed eagerly at Init time rather
// than on demand: a DMA controller needs the physical address of a buffer
// the instant it is handed a TRB pointing at it, so the page cannot be
// left for the page-fault handler to fill in on first CPU touch.
package ioheap

import (
	"corekernel/kernel"
	"corekernel/kernel/mem"
	"corekernel/kernel/mem/pmm"
	"corekernel/kernel/mem/vmm"
	"corekernel/kernel/sync"
	"unsafe"
)

var (
	errOutOfMemory  = &kernel.Error{Module: "ioheap", Message: "io heap exhausted", Kind: kernel.KindOutOfMemory}
	errInvalidParam = &kernel.Error{Module: "ioheap", Message: "invalid parameter", Kind: kernel.KindInvalidParameter}
)

// header precedes every allocation returned by Alloc. padding is the
// number of bytes between the owning free-list node's original address
// and this header, so Free can recover the node address without a side
// table; size is the total chunk size measured from the node's original
// address, used for successor-adjacency coalescing.
type header struct {
	padding uint32
	size    uint32
}

const headerSize = unsafe.Sizeof(header{})

// freeNode occupies the first bytes of every free chunk in the region.
// The list is kept in ascending address order so first-fit scans hit the
// lowest-addressed fit and Free's successor-adjacency check is a single
// pointer follow rather than a search.
type freeNode struct {
	next *freeNode
	size uintptr
}

func nodeAt(addr uintptr) *freeNode { return (*freeNode)(unsafe.Pointer(addr)) }
func addrOf(n *freeNode) uintptr    { return uintptr(unsafe.Pointer(n)) }

// Heap is the IOHeap described in section 4.3.
type Heap struct {
	mu sync.Spinlock

	base  uintptr
	limit uintptr
	pager *vmm.Pager
	head  *freeNode
}

// New backs [mem.IOHeapStart, mem.IOHeapLimit) with physical frames drawn
// from alloc, mapped through pager with the cacheability flags the
// caller's device class requires (e.g. vmm.FlagDoNotCache for a
// controller with no write-combining support), and returns a Heap over
// the resulting arena.
func New(pager *vmm.Pager, alloc func() (pmm.Frame, *kernel.Error), flags vmm.PageTableEntryFlag) (*Heap, *kernel.Error) {
	base, limit := mem.IOHeapStart, mem.IOHeapLimit
	pages := uint64(limit-base) / uint64(mem.PageSize)

	for i := uint64(0); i < pages; i++ {
		frame, err := alloc()
		if err != nil {
			return nil, err
		}
		virt := base + uintptr(i)*uintptr(mem.PageSize)
		if err := pager.MapPage(frame, virt, vmm.FlagRW|flags, false); err != nil {
			return nil, err
		}
	}

	h := &Heap{base: base, limit: limit, pager: pager}
	root := nodeAt(base)
	*root = freeNode{size: uintptr(limit - base)}
	h.head = root
	return h, nil
}

// Alloc reserves size bytes aligned to align (a power of two, at most one
// page) and returns the usable address.
func (h *Heap) Alloc(size uintptr, align uintptr) (uintptr, *kernel.Error) {
	if size == 0 || align == 0 || align&(align-1) != 0 || align > uintptr(mem.PageSize) {
		return 0, errInvalidParam
	}

	h.mu.Acquire()
	defer h.mu.Release()

	var prev *freeNode
	for n := h.head; n != nil; prev, n = n, n.next {
		nodeAddr := addrOf(n)
		nodeSize := n.size
		payloadAddr := alignUp(nodeAddr+headerSize, align)
		padding := payloadAddr - headerSize - nodeAddr
		consumed := padding + headerSize + size

		if nodeSize < consumed {
			continue
		}
		remaining := nodeSize - consumed

		const splitThreshold = headerSize + unsafe.Sizeof(freeNode{})
		if remaining >= splitThreshold {
			h.unlink(prev, n)
			tail := nodeAt(nodeAddr + consumed)
			*tail = freeNode{size: remaining}
			h.insertAfter(prev, tail)
		} else {
			consumed = nodeSize
			h.unlink(prev, n)
		}

		hdr := (*header)(unsafe.Pointer(payloadAddr - headerSize))
		hdr.padding = uint32(padding)
		hdr.size = uint32(consumed)

		return payloadAddr, nil
	}

	return 0, errOutOfMemory
}

// Free returns a chunk previously obtained from Alloc to the free list,
// coalescing with its immediate successor if the two ranges are adjacent.
func (h *Heap) Free(ptr uintptr) *kernel.Error {
	if ptr < h.base+headerSize || ptr >= h.limit {
		return errInvalidParam
	}

	hdr := (*header)(unsafe.Pointer(ptr - headerSize))
	nodeAddr := ptr - headerSize - uintptr(hdr.padding)
	size := uintptr(hdr.size)

	h.mu.Acquire()
	defer h.mu.Release()

	var prev *freeNode
	n := h.head
	for n != nil && addrOf(n) < nodeAddr {
		prev, n = n, n.next
	}

	if n != nil && nodeAddr+size == addrOf(n) {
		size += n.size
		n = n.next
	}

	fresh := nodeAt(nodeAddr)
	*fresh = freeNode{next: n, size: size}
	if prev == nil {
		h.head = fresh
	} else {
		prev.next = fresh
	}

	return nil
}

// PhysicalOf returns the physical address backing a pointer returned by
// Alloc, for use in DMA descriptors (TRBs, DCBAA entries, ERST).
func (h *Heap) PhysicalOf(ptr uintptr) (uintptr, *kernel.Error) {
	return h.pager.PhysicalOf(ptr, false)
}

func (h *Heap) unlink(prev, n *freeNode) {
	if prev == nil {
		h.head = n.next
	} else {
		prev.next = n.next
	}
}

func (h *Heap) insertAfter(prev, n *freeNode) {
	if prev == nil {
		n.next = h.head
		h.head = n
		return
	}
	n.next = prev.next
	prev.next = n
}

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}
