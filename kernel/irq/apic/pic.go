package apic

import "corekernel/kernel/cpu"

// Legacy 8259 PIC I/O ports.
const (
	masterCommand = 0x20
	masterData    = 0x21
	slaveCommand  = 0xA0
	slaveData     = 0xA1

	icw1Init    = 0x10
	icw1ICW4    = 0x01
	icw4_8086   = 0x01

	masterVectorRemap = 0x20 // ISA IRQ0 now lands on vector 0x20
	slaveVectorRemap  = 0x28 // ISA IRQ8 now lands on vector 0x28
)

// remapAndDisablePIC moves the PIC's vector range out of the CPU exception
// range (matching the SOFTWARE_YIELD_IRQ/vector-0x20-0x2F remap the
// original firmware bring-up performs before masking it off entirely in
// favor of the I/O APIC) and then masks every line, leaving the 8259
// present on the bus but never delivering.
func remapAndDisablePIC() {
	masterMask := cpu.InB(masterData)
	slaveMask := cpu.InB(slaveData)

	cpu.OutB(masterCommand, icw1Init|icw1ICW4)
	cpu.OutB(slaveCommand, icw1Init|icw1ICW4)
	cpu.OutB(masterData, masterVectorRemap)
	cpu.OutB(slaveData, slaveVectorRemap)
	cpu.OutB(masterData, 0x04) // tell master about slave on IRQ2
	cpu.OutB(slaveData, 0x02)  // tell slave its cascade identity
	cpu.OutB(masterData, icw4_8086)
	cpu.OutB(slaveData, icw4_8086)

	cpu.OutB(masterData, masterMask)
	cpu.OutB(slaveData, slaveMask)

	// Fully mask every line now that the I/O APIC owns interrupt
	// routing; the 8259 stays remapped (not re-overlapping CPU
	// exception vectors) in case a spurious line fires during the
	// handoff window.
	cpu.OutB(masterData, 0xFF)
	cpu.OutB(slaveData, 0xFF)
}
