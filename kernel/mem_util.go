package kernel

import (
	"reflect"
	"unsafe"
)

// Memset sets size bytes at the given address to the supplied value. The
// implementation is based on bytes.Repeat: instead of looping byte by byte,
// it performs log2(size) copy calls, which is considerably faster for the
// page-sized (4096 byte) fills that dominate frame/page-table zeroing.
func Memset(addr uintptr, value byte, size uintptr) {
	if size == 0 {
		return
	}

	target := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: addr,
	}))

	target[0] = value
	for index := uintptr(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}

// Memcopy copies size bytes from src to dst. The two regions must not
// overlap; this package has no separate overlap-safe variant.
func Memcopy(src, dst uintptr, size uintptr) {
	if size == 0 {
		return
	}

	srcSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: src,
	}))
	dstSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: dst,
	}))

	copy(dstSlice, srcSlice)
}

// Memcmp compares size bytes starting at a and b and reports whether they
// are identical.
func Memcmp(a, b uintptr, size uintptr) bool {
	if size == 0 {
		return true
	}

	aSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{Len: int(size), Cap: int(size), Data: a}))
	bSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{Len: int(size), Cap: int(size), Data: b}))

	for i := range aSlice {
		if aSlice[i] != bSlice[i] {
			return false
		}
	}
	return true
}
