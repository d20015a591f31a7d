package xhci

import "corekernel/kernel"

// Driver is the capability set a USB class driver (device/usb/hid's
// keyboard driver, for instance) implements to attach to an enumerated
// Function. Keeping this interface in package xhci rather than importing
// a concrete class driver avoids an import cycle: class drivers import
// xhci to drive transfers, so xhci cannot import them back.
type Driver interface {
	// PostInitialization runs once SET_CONFIGURATION and every endpoint
	// in fn have been configured; the driver may issue further control
	// or interrupt transfers against dev from here on.
	PostInitialization(c *Controller, dev *Device, fn *Function) *kernel.Error

	// GetAwaitingTRB returns the physical address of the transfer TRB
	// this driver is currently waiting to see a Transfer Event for (an
	// interrupt IN report buffer, typically), so the event-ring ISR can
	// route a Transfer Event to the right driver without every driver
	// inspecting every event.
	GetAwaitingTRB() uint64

	// HandleEvent delivers a Transfer Event TRB whose pointer matched
	// GetAwaitingTRB's most recent return value.
	HandleEvent(c *Controller, dev *Device, event TRB)

	// Release runs when dev is disconnected or torn down; drivers give
	// up any buffers or queued state here.
	Release(dev *Device)
}

// DriverFactory probes an enumerated Function and returns a Driver bound
// to it, or ok=false if the driver does not recognize the function (a
// class code match is necessary but not sufficient, e.g. HID boot
// keyboard vs. mouse subclass/protocol checks).
type DriverFactory func(fn *Function) (Driver, bool)

var driverFactories = map[uint8][]DriverFactory{}

// RegisterDriver attaches factory to every Function whose Class matches
// classCode; a class driver package calls this from its own init().
func RegisterDriver(classCode uint8, factory DriverFactory) {
	driverFactories[classCode] = append(driverFactories[classCode], factory)
}

// lookupDriver returns the first registered factory for fn.Class that
// claims fn, or ok=false if none do.
func lookupDriver(fn *Function) (Driver, bool) {
	for _, factory := range driverFactories[fn.Class] {
		if d, ok := factory(fn); ok {
			return d, true
		}
	}
	return nil, false
}
