package main

import "corekernel/kernel/kmain"

// main is the only Go symbol visible to the rt0 initialization code. It
// trampolines into the real kernel entrypoint and exists only to keep the
// compiler from optimizing Kmain away, since nothing in the Go-visible
// call graph otherwise reaches it.
//
// main is not expected to return. If it does, the rt0 code halts the CPU.
func main() {
	kmain.Kmain()
}
