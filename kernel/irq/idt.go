package irq

import "unsafe"

// idtEntry is one 16-byte x86-64 interrupt gate descriptor.
type idtEntry struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

const (
	gateTypeInterrupt  = 0x8E // present, DPL0, 64-bit interrupt gate
	kernelCodeSelector = 0x08
)

var idt [vectorTableSize]idtEntry

// stubTable holds the address of each vector's dispatch stub, generated in
// idt_amd64.s; only the assembler knows the stub addresses, so this table
// is populated by a DATA block rather than at Go init time.
var stubTable [vectorTableSize]uintptr

// Init builds every IDT gate from stubTable and loads it into the CPU with
// LIDT. Every gate is installed present from the start; registering a
// handler via HandleException, HandleExceptionWithCode or RegisterIRQ only
// selects which Go callback the common dispatcher invokes once a vector
// fires, it never touches gate presence.
func Init() {
	for v := 0; v < vectorTableSize; v++ {
		installGate(v, stubTable[v])
	}
	loadIDT(uintptr(unsafe.Pointer(&idt[0])), uint16(unsafe.Sizeof(idt)-1))
}

func installGate(vector int, stubAddr uintptr) {
	e := &idt[vector]
	e.offsetLow = uint16(stubAddr)
	e.selector = kernelCodeSelector
	e.ist = 0
	e.typeAttr = gateTypeInterrupt
	e.offsetMid = uint16(stubAddr >> 16)
	e.offsetHigh = uint32(stubAddr >> 32)
	e.reserved = 0
}

// loadIDT executes LIDT against the table at base with the given limit.
func loadIDT(base uintptr, limit uint16)
