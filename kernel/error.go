// Package kernel contains the types and routines that are shared by every
// other package in the kernel core: the non-allocating error type and the
// raw memory helpers used before the Go allocator is available (the panic
// entrypoints live in package kfmt).
package kernel

// Kind classifies an Error so that callers can decide whether a failure is
// locally recoverable or fatal without string-matching Message.
type Kind uint8

const (
	// KindOutOfMemory is returned by allocators (FrameAllocator,
	// KernelHeap, IOHeap) when they cannot satisfy a request. Top-level
	// bring-up routines treat it as fatal; callers initiated by a
	// running task propagate it locally.
	KindOutOfMemory Kind = iota

	// KindInvalidParameter is returned when a caller violates a
	// documented precondition (nil pointer, misaligned size,
	// out-of-range index).
	KindInvalidParameter

	// KindDeviceError is returned when hardware reports a negative
	// acknowledgment or a protocol timeout. The offending device is
	// released; other devices continue operating.
	KindDeviceError

	// KindNotFound, KindAlreadyExists and KindOutOfBounds surface
	// filesystem-ish failures from the in-memory VFS the shell queries;
	// the kernel core only needs to be able to name them.
	KindNotFound
	KindAlreadyExists
	KindOutOfBounds

	// KindUnavailable is returned when an object has been marked for
	// teardown (for example an xhci.Device after SetUnavailable) and a caller
	// attempts a new operation against it.
	KindUnavailable
)

// Error describes a kernel error. All kernel errors are defined as global
// variables that are pointers to the Error structure. This requirement
// stems from the fact that the Go allocator is not available during early
// boot, so we cannot rely on errors.New or fmt.Errorf to build one-off
// error values.
type Error struct {
	// Module is the package that generated the error.
	Module string

	// Message describes what went wrong.
	Message string

	// Kind classifies the failure; zero value is KindOutOfMemory which
	// is intentionally the most conservative (fatal-by-default) kind.
	Kind Kind
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// NewError builds an Error value. It exists so call sites read as
// `kernel.NewError(...)` like a constructor while still producing a bare
// struct literal that callers store in a package-level var (see every
// errFoo variable in this repository) rather than allocating on each
// failure.
func NewError(module, message string, kind Kind) *Error {
	return &Error{Module: module, Message: message, Kind: kind}
}
