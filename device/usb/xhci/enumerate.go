package xhci

import (
	"corekernel/kernel"
	"unsafe"
)

// EnumerateDevice runs the section 4.7 step 5-8 sequence against a device
// that just finished reset on root hub port portID at the given speed:
// Enable Slot, two-phase Address Device, device descriptor fetch, and a
// per-configuration scan for a registered class driver willing to claim
// one of the configuration's functions. It returns the bound Device even
// if no driver claims it (addressed but otherwise idle).
func (c *Controller) EnumerateDevice(portID uint8, speed PortSpeed) (*Device, *kernel.Error) {
	result, completion := c.SendCommand(NewEnableSlot(false, 0))
	if completion != CompletionResultSuccess {
		return nil, errCommandFailed
	}
	slotID := result.SlotID()

	_, outPhys, err := c.allocPage()
	if err != nil {
		return nil, err
	}
	c.setDCBAAEntry(slotID, outPhys)

	inVirt, inPhys, err := c.allocPage()
	if err != nil {
		return nil, err
	}

	ctrlVirt, ctrlPhys, err := c.allocPage()
	if err != nil {
		return nil, err
	}
	ctrlRing := NewTransferRing(ctrlVirt, ctrlPhys, pageSize)

	maxPacket0 := speed.DefaultMaxPacketSize()

	ic := (*InputDeviceContext)(unsafe.Pointer(inVirt))
	ic.InputControl.SetAddContext(0)
	ic.InputControl.SetAddContext(1)
	ic.Slot.SetRouteString(0)
	ic.Slot.SetPortSpeed(speed)
	ic.Slot.SetContextEntries(1)
	ic.Slot.SetRootHubPort(portID)

	ep0 := &ic.Endpoints[endpointContextIndex(0, false)-1]
	ep0.SetEndpointType(EndpointTypeControl)
	ep0.SetMaxPacketSize(maxPacket0)
	ep0.SetErrorCount(3)
	ep0.SetAverageTRBLength(8)
	ep0.SetTRDequeuePointer(ctrlPhys, true)

	dev := &Device{
		SlotID:         slotID,
		PortID:         portID,
		Speed:          speed,
		maxPacketSize0: maxPacket0,
		ctrlRing:       ctrlRing,
		inputVirt:      inVirt,
		inputPhys:      inPhys,
		outputPhys:     outPhys,
	}
	c.slots.bind(slotID, dev)

	// Two-phase Address Device (section 4.7 step 5's BSR legacy path):
	// the first, BSR=true, command validates the contexts and lets the
	// hardware report the device's real bMaxPacketSize0 via an 8-byte
	// GET_DESCRIPTOR before the second, BSR=false, command commits the
	// USB address. A non-Success legacy completion skips the
	// GET_DESCRIPTOR (the device isn't addressed yet to answer it) and
	// falls through to the BSR=false command as the final attempt.
	legacyOK := true
	if _, completion := c.SendCommand(NewAddressDevice(false, true, slotID, inPhys)); completion != CompletionResultSuccess {
		legacyOK = false
	}

	if legacyOK {
		if partial, err := c.getDescriptor(dev, descTypeDevice, 0, 8); err == nil && len(partial) >= 8 {
			dev.maxPacketSize0 = uint16(partial[7])
			ep0.SetMaxPacketSize(dev.maxPacketSize0)
		}
	}

	if _, completion := c.SendCommand(NewAddressDevice(false, false, slotID, inPhys)); completion != CompletionResultSuccess {
		c.slots.unbind(slotID)
		return nil, errCommandFailed
	}

	full, err := c.getDescriptor(dev, descTypeDevice, 0, deviceDescriptorLength)
	if err != nil {
		c.slots.unbind(slotID)
		return nil, err
	}
	desc, err := ParseDeviceDescriptor(full)
	if err != nil {
		c.slots.unbind(slotID)
		return nil, err
	}
	dev.Descriptor = desc

	for cfgIndex := uint8(0); cfgIndex < desc.NumConfigurations; cfgIndex++ {
		prefetch, err := c.getDescriptor(dev, descTypeConfiguration, cfgIndex, 4)
		if err != nil {
			continue
		}
		total, err := PrefetchTotalLength(prefetch)
		if err != nil {
			continue
		}
		full, err := c.getDescriptor(dev, descTypeConfiguration, cfgIndex, total)
		if err != nil {
			continue
		}
		cfg, err := ParseConfiguration(full)
		if err != nil {
			continue
		}

		for i := range cfg.Functions {
			fn := &cfg.Functions[i]
			drv, ok := lookupDriver(fn)
			if !ok {
				continue
			}
			if err := c.setConfiguration(dev, cfg.ConfigurationValue); err != nil {
				continue
			}
			if err := c.configureEndpoints(dev, fn); err != nil {
				continue
			}

			dev.Configuration = cfg
			dev.driver = drv
			if err := drv.PostInitialization(c, dev, fn); err != nil {
				dev.driver = nil
				continue
			}
			return dev, nil
		}
	}

	return dev, nil
}

// configureEndpoints rebuilds dev's Input Context to add every endpoint
// found in fn's interfaces, allocates each a transfer ring, and issues the
// Configure Endpoint command (section 4.7 step 8).
func (c *Controller) configureEndpoints(dev *Device, fn *Function) *kernel.Error {
	ic := (*InputDeviceContext)(unsafe.Pointer(dev.inputVirt))
	*ic = InputDeviceContext{}
	ic.InputControl.SetAddContext(0)
	ic.Slot.SetRouteString(0)
	ic.Slot.SetPortSpeed(dev.Speed)
	ic.Slot.SetRootHubPort(dev.PortID)

	maxDCI := uint8(1)
	for _, iface := range fn.Interfaces {
		for _, ep := range iface.Endpoints {
			epType := ep.TransferType()
			dci := endpointContextIndex(ep.Address&0x0F, ep.IsIn())
			if dci > maxDCI {
				maxDCI = dci
			}
			ic.InputControl.SetAddContext(dci)

			interval, err := EndpointInterval(dev.Speed, epType, ep.Interval)
			if err != nil {
				return err
			}

			ringVirt, ringPhys, err := c.allocPage()
			if err != nil {
				return err
			}
			ring := NewTransferRing(ringVirt, ringPhys, pageSize)
			if epType == EndpointTypeInterruptIn {
				dev.interruptRing = ring
			}

			epCtx := &ic.Endpoints[dci-1]
			epCtx.SetEndpointType(epType)
			epCtx.SetMaxPacketSize(ep.MaxPacketSize)
			epCtx.SetErrorCount(3)
			epCtx.SetInterval(interval)
			epCtx.SetAverageTRBLength(uint16(ep.MaxPacketSize))
			epCtx.SetTRDequeuePointer(ringPhys, true)
		}
	}
	ic.Slot.SetContextEntries(maxDCI)

	if _, completion := c.SendCommand(NewConfigureEndpoint(false, dev.SlotID, dev.inputPhys)); completion != CompletionResultSuccess {
		return errCommandFailed
	}
	return nil
}
