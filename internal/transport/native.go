//go:build spice_native

package transport

/*
#cgo CFLAGS: -I${SRCDIR}/spice
#cgo LDFLAGS: -L${SRCDIR}/lib -lspice-client -lm

#include "spice/client.h"
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

// Native is the production Transport: it drives libspice-client through
// an opaque handle per open stream and a small set of exported Go
// callbacks the C side invokes by handle (spec.md §4.4 "a narrow, stable
// FFI boundary").
type Native struct {
	mu      sync.Mutex
	handle  *C.spice_session_t
	streams map[int32]*nativeSubscription

	controlMu sync.RWMutex
	onControl func(chunk []byte)
}

type nativeSubscription struct {
	windowID int32
	cHandle  *C.spice_stream_t
	cb       Callbacks
}

func (s *nativeSubscription) WindowID() uint32 { return uint32(s.windowID) }

func (s *nativeSubscription) Close() error {
	return nil
}

var (
	registryMu  sync.RWMutex
	registry    = make(map[int32]*nativeSubscription)
	nextHandle  int32
	handleMu    sync.Mutex
)

func allocHandle() int32 {
	handleMu.Lock()
	defer handleMu.Unlock()
	nextHandle++
	return nextHandle
}

// New opens the underlying libspice session. One Native serves every
// per-window stream opened against the same guest connection.
func New(cfg Config) (*Native, error) {
	var chost, cticket *C.char
	if cfg.Host != "" {
		chost = C.CString(cfg.Host)
		defer C.free(unsafe.Pointer(chost))
	}
	if cfg.Ticket != "" {
		cticket = C.CString(cfg.Ticket)
		defer C.free(unsafe.Pointer(cticket))
	}

	var session *C.spice_session_t
	switch cfg.Kind {
	case KindTCP:
		session = C.spice_session_open_tcp(chost, C.int(cfg.Port), C.int(boolToInt(cfg.TLS)), cticket)
	case KindSharedFD:
		session = C.spice_session_open_fd(C.int(cfg.Descriptor), cticket)
	default:
		return nil, &Error{Reason: ReasonConnectionFailed, Detail: fmt.Sprintf("unknown transport kind %q", cfg.Kind)}
	}
	if session == nil {
		if cfg.Kind == KindSharedFD {
			return nil, &Error{Reason: ReasonSharedMemoryUnavailable, Detail: "spice_session_open_fd returned null"}
		}
		return nil, &Error{Reason: ReasonConnectionFailed, Detail: "spice_session_open failed"}
	}

	n := &Native{handle: session, streams: make(map[int32]*nativeSubscription)}
	activeNativeMu.Lock()
	activeNative = n
	activeNativeMu.Unlock()
	return n, nil
}

var (
	activeNativeMu sync.Mutex
	activeNative   *Native
)

func (n *Native) OpenStream(ctx context.Context, cfg Config, windowID uint32, cb Callbacks) (Subscription, error) {
	h := allocHandle()
	cStream := C.spice_session_open_window_stream(n.handle, C.uint32_t(windowID), C.int32_t(h))
	if cStream == nil {
		return nil, &Error{Reason: ReasonConnectionFailed, Detail: fmt.Sprintf("window %d", windowID)}
	}

	sub := &nativeSubscription{windowID: int32(windowID), cHandle: cStream, cb: cb}

	registryMu.Lock()
	registry[h] = sub
	registryMu.Unlock()

	n.mu.Lock()
	n.streams[h] = sub
	n.mu.Unlock()

	return sub, nil
}

func (n *Native) CloseStream(sub Subscription) error {
	ns, ok := sub.(*nativeSubscription)
	if !ok {
		return fmt.Errorf("transport: not a native subscription")
	}
	C.spice_stream_close(ns.cHandle)
	return nil
}

func (n *Native) SendMouseEvent(sub Subscription, payload []byte) error {
	return n.sendRaw(sub, payload, C.SPICE_CHANNEL_INPUT)
}

func (n *Native) SendKeyboardEvent(sub Subscription, payload []byte) error {
	return n.sendRaw(sub, payload, C.SPICE_CHANNEL_INPUT)
}

func (n *Native) SendClipboard(sub Subscription, payload []byte) error {
	return n.sendRaw(sub, payload, C.SPICE_CHANNEL_CLIPBOARD)
}

func (n *Native) RequestClipboard(sub Subscription) error {
	ns, ok := sub.(*nativeSubscription)
	if !ok {
		return fmt.Errorf("transport: not a native subscription")
	}
	ret := C.spice_stream_request_clipboard(ns.cHandle)
	if ret != 0 {
		return &Error{Reason: ReasonConnectionFailed, Detail: "clipboard request rejected"}
	}
	return nil
}

func (n *Native) SendDragDropEvent(sub Subscription, payload []byte) error {
	return n.sendRaw(sub, payload, C.SPICE_CHANNEL_INPUT)
}

func (n *Native) sendRaw(sub Subscription, payload []byte, channel C.int) error {
	ns, ok := sub.(*nativeSubscription)
	if !ok {
		return fmt.Errorf("transport: not a native subscription")
	}
	if len(payload) == 0 {
		return nil
	}
	ret := C.spice_stream_send(ns.cHandle, channel, (*C.uint8_t)(unsafe.Pointer(&payload[0])), C.size_t(len(payload)))
	if ret != 0 {
		return &Error{Reason: ReasonConnectionFailed, Detail: "send rejected"}
	}
	return nil
}

func (n *Native) SetControlCallback(fn func(chunk []byte)) {
	n.controlMu.Lock()
	n.onControl = fn
	n.controlMu.Unlock()
}

func (n *Native) SendControlMessage(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	ret := C.spice_session_send_control(n.handle, (*C.uint8_t)(unsafe.Pointer(&data[0])), C.size_t(len(data)))
	return ret == 0
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

//export go_spice_on_data
func go_spice_on_data(handle C.int32_t, data *C.uint8_t, length C.size_t) {
	registryMu.RLock()
	sub, ok := registry[int32(handle)]
	registryMu.RUnlock()
	if !ok || sub.cb.OnData == nil {
		return
	}
	chunk := C.GoBytes(unsafe.Pointer(data), C.int(length))
	sub.cb.OnData(chunk)
}

//export go_spice_on_closed
func go_spice_on_closed(handle C.int32_t, reason *C.char) {
	registryMu.Lock()
	sub, ok := registry[int32(handle)]
	delete(registry, int32(handle))
	registryMu.Unlock()
	if !ok || sub.cb.OnClosed == nil {
		return
	}
	var err error
	if reason != nil {
		err = closeError(C.GoString(reason))
	}
	sub.cb.OnClosed(err)
}

//export go_spice_on_control
func go_spice_on_control(data *C.uint8_t, length C.size_t) {
	activeNativeMu.Lock()
	n := activeNative
	activeNativeMu.Unlock()
	if n == nil {
		return
	}
	n.controlMu.RLock()
	fn := n.onControl
	n.controlMu.RUnlock()
	if fn == nil {
		return
	}
	fn(C.GoBytes(unsafe.Pointer(data), C.int(length)))
}
