// Package protocol implements the spicehost wire protocol: a framed
// envelope carrying self-describing JSON payloads between the host and
// the Windows guest agent, plus the fixed message-type taxonomy and
// capability flags both sides agree on.
package protocol

import "fmt"

// Version is the protocol version this build of the host speaks.
var Version = ProtocolVersion{Major: 1, Minor: 3}

// ProtocolVersion is a (major, minor) pair packed as (major<<16)|minor on
// the wire. Compatibility requires the same major and a guest minor no
// greater than the host minor.
type ProtocolVersion struct {
	Major uint16
	Minor uint16
}

// Packed encodes the version as (major<<16)|minor.
func (v ProtocolVersion) Packed() uint32 {
	return uint32(v.Major)<<16 | uint32(v.Minor)
}

// UnpackVersion decodes a packed (major<<16)|minor value.
func UnpackVersion(packed uint32) ProtocolVersion {
	return ProtocolVersion{Major: uint16(packed >> 16), Minor: uint16(packed)}
}

// IsCompatible reports whether a guest at the given version can
// interoperate with this host: same major, guest minor <= host minor.
func (v ProtocolVersion) IsCompatible(guest ProtocolVersion) bool {
	return guest.Major == v.Major && guest.Minor <= v.Minor
}

// MessageType is a single wire byte. 0x00-0x7F are host->guest; 0x80-0xFF
// are guest->host.
type MessageType uint8

// Host -> guest message types.
const (
	TypeLaunchProgram  MessageType = 0x01
	TypeRequestIcon    MessageType = 0x02
	TypeClipboardData  MessageType = 0x03
	TypeMouseInput     MessageType = 0x04
	TypeKeyboardInput  MessageType = 0x05
	TypeDragDropEvent  MessageType = 0x06
	TypeListSessions   MessageType = 0x08
	TypeCloseSession   MessageType = 0x09
	TypeListShortcuts  MessageType = 0x0A
	TypeShutdown       MessageType = 0x0F
)

// Guest -> host message types.
const (
	TypeWindowMetadata      MessageType = 0x80
	TypeFrameData           MessageType = 0x81
	TypeCapabilityFlags     MessageType = 0x82
	TypeDpiInfo             MessageType = 0x83
	TypeIconData            MessageType = 0x84
	TypeShortcutDetected    MessageType = 0x85
	TypeClipboardChanged    MessageType = 0x86
	TypeHeartbeat           MessageType = 0x87
	TypeTelemetryReport     MessageType = 0x88
	TypeProvisionProgress   MessageType = 0x89
	TypeProvisionError      MessageType = 0x8A
	TypeProvisionComplete   MessageType = 0x8B
	TypeSessionList         MessageType = 0x8C
	TypeShortcutList        MessageType = 0x8D
	TypeFrameReady          MessageType = 0x8E
	TypeWindowBufferAlloc   MessageType = 0x8F
	TypeError               MessageType = 0xFE
	TypeAck                 MessageType = 0xFF
)

// knownTypes lists every recognized byte so Decode can reject unknown
// values with a specific error rather than silently misinterpreting them.
var knownTypes = map[MessageType]bool{
	TypeLaunchProgram: true, TypeRequestIcon: true, TypeClipboardData: true,
	TypeMouseInput: true, TypeKeyboardInput: true, TypeDragDropEvent: true,
	TypeListSessions: true, TypeCloseSession: true, TypeListShortcuts: true,
	TypeShutdown: true,
	TypeWindowMetadata: true, TypeFrameData: true, TypeCapabilityFlags: true,
	TypeDpiInfo: true, TypeIconData: true, TypeShortcutDetected: true,
	TypeClipboardChanged: true, TypeHeartbeat: true, TypeTelemetryReport: true,
	TypeProvisionProgress: true, TypeProvisionError: true, TypeProvisionComplete: true,
	TypeSessionList: true, TypeShortcutList: true, TypeFrameReady: true,
	TypeWindowBufferAlloc: true, TypeError: true, TypeAck: true,
}

// IsHostDirected reports whether the type byte belongs to the 0x00-0x7F
// (host -> guest) range.
func (t MessageType) IsHostDirected() bool {
	return t < 0x80
}

// IsGuestDirected reports whether the type byte belongs to the 0x80-0xFF
// (guest -> host) range.
func (t MessageType) IsGuestDirected() bool {
	return t >= 0x80
}

// String renders a message type for logs and error messages.
func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02X)", uint8(t))
}

var typeNames = map[MessageType]string{
	TypeLaunchProgram: "LaunchProgram", TypeRequestIcon: "RequestIcon",
	TypeClipboardData: "ClipboardData", TypeMouseInput: "MouseInput",
	TypeKeyboardInput: "KeyboardInput", TypeDragDropEvent: "DragDropEvent",
	TypeListSessions: "ListSessions", TypeCloseSession: "CloseSession",
	TypeListShortcuts: "ListShortcuts", TypeShutdown: "Shutdown",
	TypeWindowMetadata: "WindowMetadata", TypeFrameData: "FrameData",
	TypeCapabilityFlags: "CapabilityFlags", TypeDpiInfo: "DpiInfo",
	TypeIconData: "IconData", TypeShortcutDetected: "ShortcutDetected",
	TypeClipboardChanged: "ClipboardChanged", TypeHeartbeat: "Heartbeat",
	TypeTelemetryReport: "TelemetryReport", TypeProvisionProgress: "ProvisionProgress",
	TypeProvisionError: "ProvisionError", TypeProvisionComplete: "ProvisionComplete",
	TypeSessionList: "SessionList", TypeShortcutList: "ShortcutList",
	TypeFrameReady: "FrameReady", TypeWindowBufferAlloc: "WindowBufferAllocated",
	TypeError: "Error", TypeAck: "Ack",
}

// ValidateType rejects unrecognized type bytes.
func ValidateType(t MessageType) error {
	if !knownTypes[t] {
		return &ProtocolError{Op: "validate-type", Reason: ReasonInvalidMessageType, Detail: fmt.Sprintf("0x%02X", uint8(t))}
	}
	return nil
}

// Capability is a single bit in the 32-bit guest capability flag set.
type Capability uint32

const (
	CapWindowTracking      Capability = 1 << 0
	CapDesktopDuplication  Capability = 1 << 1
	CapClipboardSync       Capability = 1 << 2
	CapDragDrop            Capability = 1 << 3
	CapIconExtraction      Capability = 1 << 4
	CapShortcutDetection   Capability = 1 << 5
	CapHighDPI             Capability = 1 << 6
	CapMultiMonitor        Capability = 1 << 7
)

// Has reports whether the flag set includes cap.
func (c Capability) Has(cap Capability) bool {
	return c&cap != 0
}

// MouseButton identifies a mouse button in a MouseInput event.
type MouseButton uint8

const (
	MouseButtonNone   MouseButton = 0
	MouseButtonLeft   MouseButton = 1
	MouseButtonRight  MouseButton = 2
	MouseButtonMiddle MouseButton = 3
)

// MouseEventKind discriminates the kind of mouse action carried.
type MouseEventKind uint8

const (
	MouseEventMove   MouseEventKind = 0
	MouseEventDown   MouseEventKind = 1
	MouseEventUp     MouseEventKind = 2
	MouseEventWheel  MouseEventKind = 3
)

// KeyEventKind discriminates key-down from key-up.
type KeyEventKind uint8

const (
	KeyEventDown KeyEventKind = 0
	KeyEventUp   KeyEventKind = 1
)

// DragDropOp discriminates the phase of a drag-and-drop gesture.
type DragDropOp uint8

const (
	DragDropEnter DragDropOp = 0
	DragDropOver  DragDropOp = 1
	DragDropDrop  DragDropOp = 2
	DragDropLeave DragDropOp = 3
)

// ClipboardFormat identifies a clipboard payload's encoding, shared by
// both the wire protocol and the host-native clipboard translator (C8).
type ClipboardFormat uint8

const (
	ClipboardFormatText ClipboardFormat = 0
	ClipboardFormatHTML ClipboardFormat = 1
	ClipboardFormatRTF  ClipboardFormat = 2
	ClipboardFormatPNG  ClipboardFormat = 3
	ClipboardFormatBMP  ClipboardFormat = 4
	ClipboardFormatTIFF ClipboardFormat = 5
	ClipboardFormatFileURLs ClipboardFormat = 6
)

// PixelFormat identifies the pixel layout of frame payload bytes.
type PixelFormat uint8

const (
	PixelFormatBGRA32 PixelFormat = 0
	PixelFormatRGB24  PixelFormat = 1
	PixelFormatRGBA32 PixelFormat = 2
)

// WindowEventKind discriminates the kind of window lifecycle event
// carried in a WindowMetadata message.
type WindowEventKind string

const (
	WindowEventCreated   WindowEventKind = "created"
	WindowEventUpdated   WindowEventKind = "updated"
	WindowEventDestroyed WindowEventKind = "destroyed"
	WindowEventFocused   WindowEventKind = "focused"
)

// ProvisionPhase names a step of the (out-of-scope) guest provisioning
// pipeline, reported to the host purely for display purposes.
type ProvisionPhase string

const (
	ProvisionPhaseBooting     ProvisionPhase = "booting"
	ProvisionPhaseInstalling  ProvisionPhase = "installing"
	ProvisionPhaseConfiguring ProvisionPhase = "configuring"
	ProvisionPhaseReady       ProvisionPhase = "ready"
)
