package protocol

// This file holds the JSON payload shapes carried inside envelopes -- the
// same shape as the teacher's internal/protocol/{request,response,stream}.go.
// There are no per-message helpers: every kind is written with Encode and
// read with Decode/TryReadMessage plus Envelope.Decode (envelope.go).

// --- host -> guest ---

// LaunchProgramMsg asks the guest agent to launch a program.
type LaunchProgramMsg struct {
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
}

// RequestIconMsg asks the guest for a window or executable's icon.
type RequestIconMsg struct {
	WindowID  uint32 `json:"windowId,omitempty"`
	ExePath   string `json:"exePath,omitempty"`
	MaxSize   int    `json:"maxSize,omitempty"`
}

// ClipboardDataMsg pushes host clipboard contents to the guest.
type ClipboardDataMsg struct {
	Format ClipboardFormat `json:"format"`
	Data   []byte          `json:"data"`
}

// MouseInputMsg carries a single mouse event for a window.
type MouseInputMsg struct {
	WindowID uint32         `json:"windowId"`
	Kind     MouseEventKind `json:"kind"`
	Button   MouseButton    `json:"button,omitempty"`
	X        int32          `json:"x"`
	Y        int32          `json:"y"`
	WheelDelta int32        `json:"wheelDelta,omitempty"`
	Modifiers  uint8        `json:"modifiers,omitempty"`
}

// KeyboardInputMsg carries a single key event for a window.
type KeyboardInputMsg struct {
	WindowID  uint32       `json:"windowId"`
	Kind      KeyEventKind `json:"kind"`
	KeyCode   uint32       `json:"keyCode"`
	Modifiers uint8        `json:"modifiers,omitempty"`
}

// DragDropEventMsg carries a drag-and-drop gesture update for a window.
type DragDropEventMsg struct {
	WindowID uint32     `json:"windowId"`
	Op       DragDropOp `json:"op"`
	X        int32      `json:"x"`
	Y        int32      `json:"y"`
	URIs     []string   `json:"uris,omitempty"`
}

// ListSessionsMsg requests the guest's active session list.
type ListSessionsMsg struct {
	MessageID uint64 `json:"messageId"`
}

// CloseSessionMsg asks the guest to close a session.
type CloseSessionMsg struct {
	MessageID uint64 `json:"messageId"`
	SessionID string `json:"sessionId"`
}

// ListShortcutsMsg requests the guest's detected shortcut list.
type ListShortcutsMsg struct {
	MessageID uint64 `json:"messageId"`
}

// ShutdownMsg asks the guest agent to shut down gracefully.
type ShutdownMsg struct {
	Reason string `json:"reason,omitempty"`
}

// --- guest -> host ---

// WindowMetadataMsg reports a window lifecycle event.
type WindowMetadataMsg struct {
	WindowID     uint32          `json:"windowId"`
	Title        string          `json:"title"`
	Bounds       Rect            `json:"bounds"`
	EventType    WindowEventKind `json:"eventType"`
	IsResizable  bool            `json:"isResizable"`
	ScaleFactor  float64         `json:"scaleFactor"`
}

// Rect is a window bounds rectangle in guest desktop coordinates.
type Rect struct {
	X      int32 `json:"x"`
	Y      int32 `json:"y"`
	Width  int32 `json:"width"`
	Height int32 `json:"height"`
}

// FrameDataHeader is the JSON header preceding a frame's raw pixel bytes.
// Per spec.md §3, exactly DataLength raw bytes follow this envelope
// immediately in the byte stream -- this is the one message whose payload
// is not wholly contained in the envelope.
type FrameDataHeader struct {
	WindowID    uint32      `json:"windowId"`
	Width       int32       `json:"width"`
	Height      int32       `json:"height"`
	Stride      int32       `json:"stride"`
	Format      PixelFormat `json:"format"`
	DataLength  uint32      `json:"dataLength"`
	FrameNumber uint64      `json:"frameNumber"`
	IsKeyFrame  bool        `json:"isKeyFrame"`
}

// CapabilityFlagsMsg reports the guest's capability flag set.
type CapabilityFlagsMsg struct {
	Flags Capability `json:"flags"`
}

// DpiInfoMsg reports the guest desktop's DPI scale.
type DpiInfoMsg struct {
	WindowID    uint32  `json:"windowId"`
	ScaleFactor float64 `json:"scaleFactor"`
}

// IconDataMsg carries an extracted icon image.
type IconDataMsg struct {
	WindowID uint32 `json:"windowId,omitempty"`
	ExePath  string `json:"exePath,omitempty"`
	PNGData  []byte `json:"pngData"`
}

// ShortcutDetectedMsg reports a single newly detected shortcut.
type ShortcutDetectedMsg struct {
	Name    string `json:"name"`
	ExePath string `json:"exePath"`
}

// ClipboardChangedMsg reports a guest clipboard change.
type ClipboardChangedMsg struct {
	Format ClipboardFormat `json:"format"`
	Data   []byte          `json:"data"`
}

// HeartbeatMsg is a liveness ping from the guest.
type HeartbeatMsg struct {
	UptimeSeconds uint64 `json:"uptimeSeconds"`
}

// TelemetryReportMsg carries free-form guest telemetry.
type TelemetryReportMsg struct {
	Metrics map[string]float64 `json:"metrics"`
}

// ProvisionProgressMsg reports provisioning-pipeline progress.
type ProvisionProgressMsg struct {
	Phase   ProvisionPhase `json:"phase"`
	Percent int            `json:"percent"`
}

// ProvisionErrorMsg reports a fatal provisioning error.
type ProvisionErrorMsg struct {
	Message string `json:"message"`
}

// ProvisionCompleteMsg reports provisioning completion.
type ProvisionCompleteMsg struct{}

// SessionInfo describes one guest session in a SessionListMsg.
type SessionInfo struct {
	ID           string  `json:"id"`
	PID          uint32  `json:"pid"`
	Exe          string  `json:"exe"`
	Title        *string `json:"title"`
	Start        int64   `json:"start"`
	LastActivity int64   `json:"lastActivity"`
	State        string  `json:"state"`
	WindowCount  int     `json:"windowCount"`
}

// SessionListMsg is the response to ListSessionsMsg.
type SessionListMsg struct {
	MessageID uint64        `json:"messageId"`
	Sessions  []SessionInfo `json:"sessions"`
}

// ShortcutInfo describes one shortcut in a ShortcutListMsg.
type ShortcutInfo struct {
	Name    string `json:"name"`
	ExePath string `json:"exePath"`
}

// ShortcutListMsg is the response to ListShortcutsMsg.
type ShortcutListMsg struct {
	MessageID uint64         `json:"messageId"`
	Shortcuts []ShortcutInfo `json:"shortcuts"`
}

// FrameReadyMsg notifies the host that a new frame is available in the
// shared-memory ring buffer for the given window.
type FrameReadyMsg struct {
	WindowID    uint32 `json:"windowId"`
	FrameNumber uint64 `json:"frameNumber"`
}

// WindowBufferAllocatedMsg is a per-window buffer allocation notification
// (spec.md §3 "Per-window buffer allocation").
type WindowBufferAllocatedMsg struct {
	WindowID         uint32 `json:"windowId"`
	BufferOffset     uint64 `json:"bufferOffset"`
	BufferSize       uint32 `json:"bufferSize"`
	SlotSize         uint32 `json:"slotSize"`
	SlotCount        uint32 `json:"slotCount"`
	IsCompressed     bool   `json:"isCompressed"`
	UsesSharedMemory bool   `json:"usesSharedMemory"`
	IsReallocation   bool   `json:"isReallocation"`
}

// ErrorMsg is a guest-reported error, optionally correlated to a pending
// control request via MessageID.
type ErrorMsg struct {
	MessageID *uint64 `json:"messageId,omitempty"`
	Code      string  `json:"code"`
	Message   string  `json:"message"`
}

// AckMsg is a guest-reported success acknowledgement, optionally
// correlated to a pending control request via MessageID.
type AckMsg struct {
	MessageID *uint64 `json:"messageId,omitempty"`
	Success   bool    `json:"success"`
	Reason    string  `json:"reason,omitempty"`
}
