// Package inputmap translates host input representations (macOS key
// codes, a host modifier bitfield, clipboard payload formats) into the
// guest's virtual-key-code and clipboard-tag spaces, and back (spec.md
// §4.8).
package inputmap

// KeyCode is a macOS virtual key code, as delivered in a key event.
type KeyCode uint32

// GuestKeyCode is a Windows virtual-key code in the guest's space.
type GuestKeyCode uint32

// keyTable maps macOS key codes to Windows VK_* codes, covering letters,
// digits, function keys, navigation, arrows, and modifiers.
var keyTable = map[KeyCode]GuestKeyCode{
	0x00: 0x41, // kVK_ANSI_A -> VK_A
	0x0B: 0x42, // B
	0x08: 0x43, // C
	0x02: 0x44, // D
	0x0E: 0x45, // E
	0x03: 0x46, // F
	0x05: 0x47, // G
	0x04: 0x48, // H
	0x22: 0x49, // I
	0x26: 0x4A, // J
	0x28: 0x4B, // K
	0x25: 0x4C, // L
	0x2E: 0x4D, // M
	0x2D: 0x4E, // N
	0x1F: 0x4F, // O
	0x23: 0x50, // P
	0x0C: 0x51, // Q
	0x0F: 0x52, // R
	0x01: 0x53, // S
	0x11: 0x54, // T
	0x20: 0x55, // U
	0x09: 0x56, // V
	0x0D: 0x57, // W
	0x07: 0x58, // X
	0x10: 0x59, // Y
	0x06: 0x5A, // Z

	0x1D: 0x30, // 0
	0x12: 0x31, // 1
	0x13: 0x32, // 2
	0x14: 0x33, // 3
	0x15: 0x34, // 4
	0x17: 0x35, // 5
	0x16: 0x36, // 6
	0x1A: 0x37, // 7
	0x1C: 0x38, // 8
	0x19: 0x39, // 9

	0x7A: 0x70, // F1
	0x78: 0x71, // F2
	0x63: 0x72, // F3
	0x76: 0x73, // F4
	0x60: 0x74, // F5
	0x61: 0x75, // F6
	0x62: 0x76, // F7
	0x64: 0x77, // F8
	0x65: 0x78, // F9
	0x6D: 0x79, // F10
	0x67: 0x7A, // F11
	0x6F: 0x7B, // F12

	0x24: 0x0D, // Return -> VK_RETURN
	0x30: 0x09, // Tab
	0x31: 0x20, // Space
	0x33: 0x08, // Delete (backspace)
	0x35: 0x1B, // Escape
	0x75: 0x2E, // Forward delete

	0x7B: 0x25, // Left arrow
	0x7C: 0x27, // Right arrow
	0x7D: 0x28, // Down arrow
	0x7E: 0x26, // Up arrow
	0x73: 0x24, // Home
	0x77: 0x23, // End
	0x74: 0x21, // Page up
	0x79: 0x22, // Page down

	0x38: 0xA0, // Left shift
	0x3C: 0xA1, // Right shift
	0x3B: 0xA2, // Left control
	0x3E: 0xA3, // Right control
	0x3A: 0xA4, // Left option/alt
	0x3D: 0xA5, // Right option/alt
	0x37: 0x5B, // Left command -> VK_LWIN
	0x36: 0x5C, // Right command -> VK_RWIN
}

// Translate maps a macOS key code to the guest's virtual-key-code space.
// Unmapped codes return (0, false); callers must drop the event rather
// than forward a zero key code.
func Translate(code KeyCode) (GuestKeyCode, bool) {
	guest, ok := keyTable[code]
	return guest, ok
}
