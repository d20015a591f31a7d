package cpu

// Self describes the per-CPU state a processor bring-up path populates.
// Section 9's design notes call for a multi-processor-ready abstraction
// even though only the bootstrap processor is ever started in this
// design: this package holds a single Self, and every field below
// describes the BSP (see spec.md's Non-goals).
type Self struct {
	// LAPICID is the local APIC ID this processor reported during LAPIC
	// bring-up (kernel/irq/apic).
	LAPICID uint8

	// LogicalID is the power-of-two logical destination ID this
	// processor was assigned for interrupt redirection.
	LogicalID uint8

	// BootstrapProcessor is true for exactly one Self in a deployment:
	// the only one actually brought out of reset in this design.
	BootstrapProcessor bool
}

var current Self

// CurrentSelf returns the calling processor's Self. Since only the BSP is
// ever started, this always returns the same value; the accessor exists
// so call sites do not depend on that fact remaining true.
func CurrentSelf() *Self {
	return &current
}

// SetCurrentSelf installs the Self value for the processor that just
// completed LAPIC bring-up.
func SetCurrentSelf(s Self) {
	current = s
}

// SpinWaitMillsFor busy-waits, periodically checking cond, until either
// cond reports true or nowMillis() reaches deadlineMillis. It reports
// whether cond became true before the deadline. Every blocking xHCI
// protocol operation in device/usb/xhci (command-ring round trips, host
// reset, device transfers) is built on this primitive per spec.md
// section 5's "periodically checking the tick counter via
// Self::SpinWaitMillsFor".
func SpinWaitMillsFor(nowMillis func() uint64, deadlineMillis uint64, cond func() bool) bool {
	for {
		if cond() {
			return true
		}
		if nowMillis() >= deadlineMillis {
			return cond()
		}
		Pause()
	}
}
