// Package kheap implements the general-purpose kernel allocator described
// in section 4.3: a best-fit allocator over an AVL tree of free blocks,
// carved from the reserved KernelHeapStart/KernelHeapLimit arena and grown
// on demand by asking vmm.Pager for more backing pages as the arena fills.
package kheap

import (
	"corekernel/kernel"
	"corekernel/kernel/mem"
	"corekernel/kernel/mem/vmm"
	"corekernel/kernel/sync"
	"unsafe"
)

// minAlignment is the minimum alignment guaranteed to every allocation;
// matches section 4.3.
const minAlignment = 8

// chunkHeaderSize is the size in bytes of the allocated-chunk header that
// precedes every pointer Alloc returns.
const chunkHeaderSize = unsafe.Sizeof(chunkHeader{})

// growPages is the number of kernel-heap pages mapped on demand each time
// the arena needs to grow; coarse enough to amortize the Pager call.
const growPages = 16

var (
	errOutOfMemory  = &kernel.Error{Module: "kheap", Message: "kernel heap exhausted", Kind: kernel.KindOutOfMemory}
	errInvalidParam = &kernel.Error{Module: "kheap", Message: "invalid parameter", Kind: kernel.KindInvalidParameter}
)

// GrowFn maps `pages` additional on-demand pages starting at virt into the
// kernel heap arena. The production wiring is Pager.MapOnDemand with
// FlagRW and secondary=false; tests substitute a fake that just pretends
// the pages exist so the AVL/best-fit logic can be exercised on the host
// without a live MMU.
type GrowFn func(virt uintptr, pages uint64) *kernel.Error

// chunkHeader precedes every allocation returned by Alloc. size is the
// total chunk size including this header, so Free can recover it without
// any side table.
type chunkHeader struct {
	size uintptr
}

// freeNode occupies the first bytes of every free chunk; it is never
// overwritten because the space it sits in is, by definition, unused while
// the chunk is free. The tree is keyed by the node's own address, which
// lets Free locate the immediate predecessor/successor chunk by address
// arithmetic in O(log n) for coalescing; BestFit does a bounded in-order
// walk rather than maintaining a second size-keyed index, since the
// kernel heap's free-list population stays small in practice.
type freeNode struct {
	size   uintptr
	left   *freeNode
	right  *freeNode
	parent *freeNode
	height int8
}

func addrOf(n *freeNode) uintptr { return uintptr(unsafe.Pointer(n)) }

func nodeAt(addr uintptr) *freeNode { return (*freeNode)(unsafe.Pointer(addr)) }

// Heap is the KernelHeap described in section 4.3.
type Heap struct {
	mu sync.Spinlock

	grow       GrowFn
	root       *freeNode
	arenaStart uintptr
	arenaEnd   uintptr
}

// New returns a Heap with no backing pages yet mapped; the first Alloc
// call grows the arena starting at arenaStart using growFn. Production
// callers pass mem.KernelHeapStart; tests pass the address of a real host
// buffer so the AVL/best-fit logic runs against real, readable memory.
func New(growFn GrowFn, arenaStart uintptr) *Heap {
	return &Heap{grow: growFn, arenaStart: arenaStart, arenaEnd: arenaStart}
}

// NewFromPager is the production constructor: growth is backed by the
// Pager's on-demand mapping over the reserved kernel-heap arena.
func NewFromPager(pager *vmm.Pager) *Heap {
	return New(func(virt uintptr, pages uint64) *kernel.Error {
		return pager.MapOnDemand(virt, pages, vmm.FlagRW, false)
	}, mem.KernelHeapStart)
}

// Alloc reserves at least size bytes, aligned to minAlignment, and returns
// the address of the usable region.
func (h *Heap) Alloc(size uintptr) (uintptr, *kernel.Error) {
	if size == 0 {
		return 0, errInvalidParam
	}

	need := alignUp(size+chunkHeaderSize, minAlignment)

	h.mu.Acquire()
	defer h.mu.Release()

	node := h.bestFit(need)
	if node == nil {
		if err := h.growArena(need); err != nil {
			return 0, err
		}
		node = h.bestFit(need)
		if node == nil {
			return 0, errOutOfMemory
		}
	}

	chunkAddr := addrOf(node)
	chunkSize := node.size
	h.remove(node)

	const splitThreshold = chunkHeaderSize + minAlignment
	if chunkSize-need >= splitThreshold {
		h.insert(chunkAddr+need, chunkSize-need)
		chunkSize = need
	}

	hdr := (*chunkHeader)(unsafe.Pointer(chunkAddr))
	hdr.size = chunkSize

	return chunkAddr + chunkHeaderSize, nil
}

// Free returns a chunk previously obtained from Alloc to the free tree,
// coalescing with either neighbor if it is also free and adjacent.
func (h *Heap) Free(ptr uintptr) *kernel.Error {
	h.mu.Acquire()
	arenaStart, arenaEnd := h.arenaStart, h.arenaEnd
	h.mu.Release()
	if ptr < arenaStart+chunkHeaderSize || ptr >= arenaEnd {
		return errInvalidParam
	}

	chunkAddr := ptr - chunkHeaderSize
	hdr := (*chunkHeader)(unsafe.Pointer(chunkAddr))
	size := hdr.size

	h.mu.Acquire()
	defer h.mu.Release()

	if succ := h.find(chunkAddr + size); succ != nil {
		size += succ.size
		h.remove(succ)
	}
	var pred *freeNode
	for n := h.root; n != nil; {
		if addrOf(n) < chunkAddr {
			pred, n = n, n.right
		} else {
			n = n.left
		}
	}
	if pred != nil && addrOf(pred)+pred.size == chunkAddr {
		chunkAddr = addrOf(pred)
		size += pred.size
		h.remove(pred)
	}
	h.insert(chunkAddr, size)
	return nil
}

// growArena maps at least `need` additional bytes of on-demand kernel-heap
// virtual memory and adds it to the tree as one new free block.
func (h *Heap) growArena(need uintptr) *kernel.Error {
	pages := (need + uintptr(mem.PageSize) - 1) / uintptr(mem.PageSize)
	if pages < growPages {
		pages = growPages
	}
	if h.arenaEnd+pages*uintptr(mem.PageSize) > mem.KernelHeapLimit {
		return errOutOfMemory
	}

	base := h.arenaEnd
	if err := h.grow(base, uint64(pages)); err != nil {
		return err
	}
	h.arenaEnd += pages * uintptr(mem.PageSize)
	h.insert(base, pages*uintptr(mem.PageSize))
	return nil
}

// bestFit walks the tree and returns the smallest free node whose size is
// at least need, or nil.
func (h *Heap) bestFit(need uintptr) *freeNode {
	var best *freeNode
	var walk func(*freeNode)
	walk = func(n *freeNode) {
		if n == nil {
			return
		}
		if n.size >= need && (best == nil || n.size < best.size) {
			best = n
		}
		walk(n.left)
		walk(n.right)
	}
	walk(h.root)
	return best
}

// find returns the free node whose own address equals addr, or nil.
func (h *Heap) find(addr uintptr) *freeNode {
	n := h.root
	for n != nil {
		na := addrOf(n)
		switch {
		case addr == na:
			return n
		case addr < na:
			n = n.left
		default:
			n = n.right
		}
	}
	return nil
}

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}
