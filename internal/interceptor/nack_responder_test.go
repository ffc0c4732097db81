package interceptor

import (
	"bytes"
	"testing"
	"time"

	"github.com/lanikai/webrtc/internal/rtcp"
	"github.com/lanikai/webrtc/internal/rtp"
)

func TestSendBufferRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := newSendBuffer(100); err == nil {
		t.Fatal("expected an error for a non-power-of-two size")
	}
	if _, err := newSendBuffer(128); err != nil {
		t.Fatalf("unexpected error for a valid size: %v", err)
	}
}

func TestNackResponderRetransmitsVerbatim(t *testing.T) {
	r := NewNackResponder()
	now := time.Unix(0, 0)

	sent := &rtp.Packet{Header: rtp.Header{SSRC: 7, Sequence: 5}, Payload: []byte("frame")}
	r.WriteRTP(sent, now)

	r.ReadRTCP(&rtcp.TransportLayerNack{
		Sender: 1,
		Media:  7,
		Nacks:  []rtcp.NackPair{{PacketID: 5}},
	}, now)

	rt, ok := r.PollRTP()
	if !ok {
		t.Fatal("expected a retransmission")
	}
	if rt.Header.SSRC != 7 || rt.Header.Sequence != 5 {
		t.Fatalf("unexpected retransmitted header: %#v", rt.Header)
	}
	if !bytes.Equal(rt.Payload, []byte("frame")) {
		t.Fatalf("payload = %q, want %q", rt.Payload, "frame")
	}
	if _, ok := r.PollRTP(); ok {
		t.Fatal("expected only one pending retransmission")
	}
}

func TestNackResponderEncapsulatesRTX(t *testing.T) {
	r := NewNackResponder()
	now := time.Unix(0, 0)
	r.EnableRTX(7, 1007, 99)

	sent := &rtp.Packet{Header: rtp.Header{SSRC: 7, PayloadType: 96, Sequence: 5}, Payload: []byte("frame")}
	r.WriteRTP(sent, now)

	r.ReadRTCP(&rtcp.TransportLayerNack{Sender: 1, Media: 7, Nacks: []rtcp.NackPair{{PacketID: 5}}}, now)

	rt, ok := r.PollRTP()
	if !ok {
		t.Fatal("expected a retransmission")
	}
	if rt.Header.SSRC != 1007 || rt.Header.PayloadType != 99 {
		t.Fatalf("unexpected RTX header: %#v", rt.Header)
	}
	if rt.Header.Sequence != 0 {
		t.Fatalf("first RTX sequence = %d, want 0", rt.Header.Sequence)
	}
	want := append([]byte{0x00, 0x05}, []byte("frame")...)
	if !bytes.Equal(rt.Payload, want) {
		t.Fatalf("payload = %x, want %x", rt.Payload, want)
	}
}

func TestNackResponderIgnoresUnknownStream(t *testing.T) {
	r := NewNackResponder()
	r.ReadRTCP(&rtcp.TransportLayerNack{Sender: 1, Media: 99, Nacks: []rtcp.NackPair{{PacketID: 1}}}, time.Unix(0, 0))
	if _, ok := r.PollRTP(); ok {
		t.Fatal("expected no retransmission for an unbuffered stream")
	}
}
