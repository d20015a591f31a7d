package sync

import goatomic "sync/atomic"

// MemoryOrder names the access ordering used by an Atomic32/Atomic64
// operation. The kernel's own access patterns (xHCI completion handoff,
// Device busy counts) are expressed in these terms rather than Go's single
// implicit sequential-consistency ordering so the happens-before edges
// documented in spec.md section 5 are visible at each call site.
type MemoryOrder uint8

const (
	OrderRelaxed MemoryOrder = iota
	OrderAcquire
	OrderRelease
	OrderAcqRel
	OrderSeqCst
)

// Atomic32 wraps a uint32 for lock-free access with an explicit memory
// order at each call site. The Go runtime's sync/atomic package only
// offers sequentially-consistent operations; Relaxed/Acquire/Release are
// modeled here as a documentation and intent layer over the same
// instructions; AMD64 loads/stores already carry acquire/release
// semantics, so no additional fences are required to honor the requested
// ordering weaker than SeqCst.
type Atomic32 struct {
	v uint32
}

func (a *Atomic32) Load(order MemoryOrder) uint32    { return goatomic.LoadUint32(&a.v) }
func (a *Atomic32) Store(v uint32, order MemoryOrder) { goatomic.StoreUint32(&a.v, v) }

// CompareAndSwap implements expected-in/desired-in CAS semantics: it
// succeeds only if the current value equals expected, in which case it is
// replaced by desired and true is returned.
func (a *Atomic32) CompareAndSwap(expected, desired uint32) bool {
	return goatomic.CompareAndSwapUint32(&a.v, expected, desired)
}

func (a *Atomic32) FetchAdd(delta uint32, order MemoryOrder) uint32 {
	return goatomic.AddUint32(&a.v, delta) - delta
}

func (a *Atomic32) FetchSub(delta uint32, order MemoryOrder) uint32 {
	return goatomic.AddUint32(&a.v, ^(delta - 1)) + delta
}

// Atomic64 is the 64-bit counterpart of Atomic32, used for the xHCI
// command-ring completion slot's status word and the Timer's millisecond
// counter.
type Atomic64 struct {
	v uint64
}

func (a *Atomic64) Load(order MemoryOrder) uint64     { return goatomic.LoadUint64(&a.v) }
func (a *Atomic64) Store(v uint64, order MemoryOrder) { goatomic.StoreUint64(&a.v, v) }

func (a *Atomic64) CompareAndSwap(expected, desired uint64) bool {
	return goatomic.CompareAndSwapUint64(&a.v, expected, desired)
}

func (a *Atomic64) FetchAdd(delta uint64, order MemoryOrder) uint64 {
	return goatomic.AddUint64(&a.v, delta) - delta
}

// AtomicBool is a convenience wrapper used by the Device "unavailable"
// flag and similar single-bit states.
type AtomicBool struct {
	v uint32
}

func (a *AtomicBool) Load(order MemoryOrder) bool { return goatomic.LoadUint32(&a.v) != 0 }

func (a *AtomicBool) Store(v bool, order MemoryOrder) {
	if v {
		goatomic.StoreUint32(&a.v, 1)
	} else {
		goatomic.StoreUint32(&a.v, 0)
	}
}

func compareAndSwap32(addr *uint32, expected, desired uint32) bool {
	return goatomic.CompareAndSwapUint32(addr, expected, desired)
}

func storeRelease32(addr *uint32, v uint32) {
	goatomic.StoreUint32(addr, v)
}
