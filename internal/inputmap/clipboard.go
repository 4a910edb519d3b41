package inputmap

import "github.com/sadewadee/spicehost/internal/protocol"

// NativeClipboardTag identifies a macOS pasteboard type.
type NativeClipboardTag string

const (
	NativeClipboardText    NativeClipboardTag = "public.utf8-plain-text"
	NativeClipboardHTML    NativeClipboardTag = "public.html"
	NativeClipboardRTF     NativeClipboardTag = "public.rtf"
	NativeClipboardPNG     NativeClipboardTag = "public.png"
	NativeClipboardTIFF    NativeClipboardTag = "public.tiff"
	NativeClipboardFileURL NativeClipboardTag = "public.file-url"
)

// ToNative translates a wire clipboard format to the macOS pasteboard
// tag that should carry it. BMP has no native macOS tag and is promoted
// to PNG on receipt (spec.md §4.8).
func ToNative(f protocol.ClipboardFormat) NativeClipboardTag {
	switch f {
	case protocol.ClipboardFormatText:
		return NativeClipboardText
	case protocol.ClipboardFormatHTML:
		return NativeClipboardHTML
	case protocol.ClipboardFormatRTF:
		return NativeClipboardRTF
	case protocol.ClipboardFormatPNG, protocol.ClipboardFormatBMP:
		return NativeClipboardPNG
	case protocol.ClipboardFormatTIFF:
		return NativeClipboardTIFF
	case protocol.ClipboardFormatFileURLs:
		return NativeClipboardFileURL
	default:
		return NativeClipboardText
	}
}

// ToWire translates a macOS pasteboard tag to the wire clipboard format
// that should carry it to the guest. Formats with no Windows clipboard
// equivalent collapse to UTF-8 text (RTF, HTML, file URLs) or BMP
// (TIFF), per spec.md §4.8's specified lossy fallbacks.
func ToWire(tag NativeClipboardTag) protocol.ClipboardFormat {
	switch tag {
	case NativeClipboardText:
		return protocol.ClipboardFormatText
	case NativeClipboardHTML, NativeClipboardRTF, NativeClipboardFileURL:
		return protocol.ClipboardFormatText
	case NativeClipboardPNG:
		return protocol.ClipboardFormatPNG
	case NativeClipboardTIFF:
		return protocol.ClipboardFormatBMP
	default:
		return protocol.ClipboardFormatText
	}
}
