package inputmap

import (
	"testing"

	"github.com/sadewadee/spicehost/internal/protocol"
)

func TestTranslateKnownAndUnknownKeyCodes(t *testing.T) {
	if got, ok := Translate(0x00); !ok || got != 0x41 {
		t.Fatalf("Translate(A) = (%v, %v), want (0x41, true)", got, ok)
	}
	if _, ok := Translate(0xFFFF); ok {
		t.Fatal("expected unmapped key code to report false")
	}
}

func TestTranslateModifiersDropsFunctionFlag(t *testing.T) {
	host := uint8(HostModShift | HostModCommand | HostModFunction)
	got := TranslateModifiers(host)
	want := uint8(GuestModShift | GuestModWindows)
	if got != want {
		t.Fatalf("TranslateModifiers(%08b) = %08b, want %08b", host, got, want)
	}
}

func TestClipboardLossyFallbacks(t *testing.T) {
	tests := []struct {
		tag  NativeClipboardTag
		want protocol.ClipboardFormat
	}{
		{NativeClipboardHTML, protocol.ClipboardFormatText},
		{NativeClipboardRTF, protocol.ClipboardFormatText},
		{NativeClipboardFileURL, protocol.ClipboardFormatText},
		{NativeClipboardTIFF, protocol.ClipboardFormatBMP},
		{NativeClipboardText, protocol.ClipboardFormatText},
		{NativeClipboardPNG, protocol.ClipboardFormatPNG},
	}
	for _, tt := range tests {
		if got := ToWire(tt.tag); got != tt.want {
			t.Errorf("ToWire(%v) = %v, want %v", tt.tag, got, tt.want)
		}
	}

	if got := ToNative(protocol.ClipboardFormatBMP); got != NativeClipboardPNG {
		t.Fatalf("ToNative(BMP) = %v, want PNG (BMP becomes PNG on receive)", got)
	}
}
