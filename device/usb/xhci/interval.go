package xhci

import "corekernel/kernel"

var errIsochronousNotSupportedAtLowSpeed = &kernel.Error{
	Module:  "xhci",
	Message: "isochronous endpoints are not defined for low-speed devices",
	Kind:    kernel.KindInvalidParameter,
}

// log2Ceil returns ceil(log2(n)) for n >= 1.
func log2Ceil(n uint32) uint8 {
	var bits uint8
	v := uint32(1)
	for v < n {
		v <<= 1
		bits++
	}
	return bits
}

func clamp(v, lo, hi uint8) uint8 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EndpointInterval translates a USB endpoint descriptor's bInterval field
// (in frames, for full/low speed; in 125us microframes expressed as
// 2^(bInterval-1), for high/super speed) into the xHCI Endpoint Context
// Interval exponent, following the speed- and type-specific rules of
// section 4.7: "LS/FS interrupt = log2(interval*8) clamped to [3, 10];
// HS/SS interrupt = clamp(interval, 1, 16) - 1; isochronous: LS is
// rejected, FS is interval-1+3, HS/SS is interval-1; bulk/control HS uses
// log2, otherwise 0."
func EndpointInterval(speed PortSpeed, epType EndpointType, bInterval uint8) (uint8, *kernel.Error) {
	isInterrupt := epType == EndpointTypeInterruptIn || epType == EndpointTypeInterruptOut
	isIsoch := epType == EndpointTypeIsochIn || epType == EndpointTypeIsochOut
	isLowOrFull := speed == PortSpeedLow || speed == PortSpeedFull

	switch {
	case isInterrupt && isLowOrFull:
		return clamp(log2Ceil(uint32(bInterval)*8), 3, 10), nil

	case isInterrupt:
		return clamp(bInterval, 1, 16) - 1, nil

	case isIsoch && speed == PortSpeedLow:
		return 0, errIsochronousNotSupportedAtLowSpeed

	case isIsoch && speed == PortSpeedFull:
		return bInterval - 1 + 3, nil

	case isIsoch:
		return bInterval - 1, nil

	case speed == PortSpeedHigh:
		return log2Ceil(uint32(bInterval)), nil

	default:
		return 0, nil
	}
}
