package rtp

import (
	"reflect"
	"testing"

	"github.com/lanikai/webrtc/internal/packet"
)

func marshalHeader(t *testing.T, h Header) []byte {
	t.Helper()
	buf := make([]byte, h.Len())
	w := packet.NewWriter(buf)
	if err := h.Marshal(w); err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return w.Bytes()
}

func TestHeaderRoundTripNoExtension(t *testing.T) {
	h := Header{
		Marker:      true,
		PayloadType: 96,
		Sequence:    1000,
		Timestamp:   90000,
		SSRC:        0xdeadbeef,
		CSRC:        []uint32{1, 2},
	}
	data := marshalHeader(t, h)

	var decoded Header
	r := packet.NewReader(data)
	if err := decoded.Unmarshal(r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(h, decoded) {
		t.Fatalf("got %#v, want %#v", decoded, h)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected reader to be exhausted, %d bytes remaining", r.Remaining())
	}
}

func TestHeaderRoundTripOneByteExtension(t *testing.T) {
	h := Header{
		PayloadType: 111,
		Sequence:    1,
		Timestamp:   1,
		SSRC:        1,
		Extensions: []Extension{
			{ID: 1, Payload: []byte{0x12}},
			{ID: 2, Payload: []byte("mid0")},
		},
	}
	data := marshalHeader(t, h)

	var decoded Header
	if err := decoded.Unmarshal(packet.NewReader(data)); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got, want := decoded.ExtensionProfile, uint16(profileOneByte); got != want {
		t.Fatalf("profile = %#x, want %#x", got, want)
	}
	if !reflect.DeepEqual(decoded.Extensions, h.Extensions) {
		t.Fatalf("extensions = %v, want %v", decoded.Extensions, h.Extensions)
	}
	if payload, ok := decoded.Extension(2); !ok || string(payload) != "mid0" {
		t.Fatalf("Extension(2) = %q, %v", payload, ok)
	}
}

func TestHeaderRoundTripTwoByteExtension(t *testing.T) {
	h := Header{
		PayloadType:      96,
		Sequence:         5,
		Timestamp:        5,
		SSRC:             5,
		ExtensionProfile: 0x1000,
		Extensions: []Extension{
			{ID: 200, Payload: make([]byte, 20)},
		},
	}
	for i := range h.Extensions[0].Payload {
		h.Extensions[0].Payload[i] = byte(i)
	}
	data := marshalHeader(t, h)

	var decoded Header
	if err := decoded.Unmarshal(packet.NewReader(data)); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(decoded.Extensions, h.Extensions) {
		t.Fatalf("extensions = %v, want %v", decoded.Extensions, h.Extensions)
	}
}

func TestHeaderUnmarshalRejectsBadVersion(t *testing.T) {
	data := []byte{0x00, 96, 0, 1, 0, 0, 0, 1, 0, 0, 0, 1}
	var h Header
	err := h.Unmarshal(packet.NewReader(data))
	if _, ok := err.(errBadVersion); !ok {
		t.Fatalf("got %v, want errBadVersion", err)
	}
}
