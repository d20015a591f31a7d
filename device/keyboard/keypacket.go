// Package keyboard implements the shell input surface spec section 6
// describes: a fixed-size BasicKeyPacket wire record and the
// fixed-capacity ring buffer that queues them between a keyboard driver
// (device/usb/hid's Keyboard, presently) and whatever reads
// `/Devices/keyboard`.
package keyboard

// Modifier/state flag bits carried in BasicKeyPacket.Flags.
const (
	FlagLeftControl  uint16 = 0x01
	FlagLeftShift    uint16 = 0x02
	FlagLeftAlt      uint16 = 0x04
	FlagLeftGUI      uint16 = 0x08
	FlagRightControl uint16 = 0x10
	FlagRightShift   uint16 = 0x20
	FlagRightAlt     uint16 = 0x40
	FlagRightGUI     uint16 = 0x80
	FlagKeyPressed   uint16 = 0x100
)

// BasicKeyPacket is the fixed-size record written to the `/Devices/keyboard`
// byte stream: a raw scancode, a keypoint (the normalized key identity a
// driver-independent dispatcher keys off of), and the modifier/state
// flags active at the time of the event.
type BasicKeyPacket struct {
	Scancode uint8
	Keypoint uint8
	Flags    uint16
}

// packetSize is BasicKeyPacket's encoded wire size: one byte scancode,
// one byte keypoint, two bytes flags (little-endian), matching the
// struct's natural layout with no padding.
const packetSize = 4

func encodePacket(p BasicKeyPacket) [packetSize]byte {
	return [packetSize]byte{p.Scancode, p.Keypoint, byte(p.Flags), byte(p.Flags >> 8)}
}
