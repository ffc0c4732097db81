// Copyright (c) 2019 Lanikai Labs. All rights reserved.

package webrtc

import (
	"testing"
	"time"

	"github.com/lanikai/webrtc/internal/rtp"
	"github.com/lanikai/webrtc/internal/signaling"
)

func TestNewPeerConnectionOffererProposesActpass(t *testing.T) {
	pc := mustOfferer(t)
	if pc.localAnswerSetup != "actpass" {
		t.Fatalf("offerer must propose actpass, got %q", pc.localAnswerSetup)
	}
	if pc.state != PeerConnectionNew {
		t.Fatalf("expected new PeerConnectionState, got %s", pc.state)
	}
}

func TestNewPeerConnectionAnswererDefaultsToActive(t *testing.T) {
	pc := mustAnswerer(t, DefaultMediaEngine())
	if pc.localAnswerSetup != "active" {
		t.Fatalf("answerer with default AnsweringDTLSRole=Client must propose active, got %q", pc.localAnswerSetup)
	}
}

func TestNewPeerConnectionAnswererHonorsServerRole(t *testing.T) {
	cfg := DefaultConfiguration()
	cfg.AnsweringDTLSRole = DTLSRoleServer
	pc, err := NewPeerConnection(cfg, DefaultMediaEngine(), false)
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	if pc.localAnswerSetup != "passive" {
		t.Fatalf("answerer configured for server role must propose passive, got %q", pc.localAnswerSetup)
	}
}

func TestNewPeerConnectionRejectsBadConfiguration(t *testing.T) {
	cfg := DefaultConfiguration()
	cfg.NACKBufferSize = 3 // not a power of two
	_, err := NewPeerConnection(cfg, DefaultMediaEngine(), true)
	if err == nil {
		t.Fatal("expected a configuration error for a non-power-of-two NACK buffer size")
	}
	werr, ok := err.(*Error)
	if !ok || werr.Kind != KindConfiguration {
		t.Fatalf("expected KindConfiguration, got %v", err)
	}
}

func TestResolveReceiverFallsBackToFirstUnassignedReceiver(t *testing.T) {
	pc := mustOfferer(t)
	tr := pc.AddTransceiver(CodecKindAudio, DirectionSendRecv)

	pkt := rtp.Packet{Header: rtp.Header{SSRC: 0xdeadbeef, PayloadType: 111}}
	idx := pc.resolveReceiver(pkt)
	if idx != tr.receiverID {
		t.Fatalf("expected fallback to receiver %d, got %d", tr.receiverID, idx)
	}
	if !pc.receivers[idx].opened {
		t.Fatal("resolveReceiver must open the receiver on first sight")
	}
	if len(pc.events) == 0 || pc.events[len(pc.events)-1].Kind != EventTrackOpen {
		t.Fatal("expected a track-open event on first packet for a receiver")
	}

	// A second packet with the same SSRC must short-circuit through the
	// ssrcToRecv cache without emitting a second track-open event.
	nEvents := len(pc.events)
	idx2 := pc.resolveReceiver(pkt)
	if idx2 != idx {
		t.Fatalf("expected the same receiver on repeat SSRC, got %d then %d", idx, idx2)
	}
	if len(pc.events) != nEvents {
		t.Fatal("a cached SSRC must not emit another track-open event")
	}
}

func TestResolveReceiverByRIDExtension(t *testing.T) {
	pc := mustOfferer(t)
	tr := pc.AddTransceiver(CodecKindVideo, DirectionRecvOnly)
	tr.mid = "0"

	r, err := pc.AddSimulcastReceiver(tr.ID(), "hi")
	if err != nil {
		t.Fatalf("AddSimulcastReceiver: %v", err)
	}

	pkt := rtp.Packet{Header: rtp.Header{
		SSRC: 777,
		Extensions: []rtp.Extension{
			{ID: signaling.MIDExtensionID, Payload: []byte("0")},
			{ID: signaling.RIDExtensionID, Payload: []byte("hi")},
		},
	}}

	idx := pc.resolveReceiver(pkt)
	if idx != r.ID() {
		t.Fatalf("expected RID-matched receiver %d, got %d", r.ID(), idx)
	}
	if pc.ssrcToRecv[777] != idx {
		t.Fatal("resolveReceiver must cache the SSRC after a RID match so later packets skip extension parsing")
	}
}

func TestResolveReceiverUnknownSSRCNoReceiver(t *testing.T) {
	pc := mustOfferer(t)
	// No transceivers registered at all: nothing to attribute the packet to.
	idx := pc.resolveReceiver(rtp.Packet{Header: rtp.Header{SSRC: 1}})
	if idx != -1 {
		t.Fatalf("expected -1 with no receivers registered, got %d", idx)
	}
}

func TestPollEventAndPollReadAreFIFO(t *testing.T) {
	pc := mustOfferer(t)
	pc.events = append(pc.events,
		Event{Kind: EventICECandidate},
		Event{Kind: EventTrackOpen},
	)
	ev, ok := pc.PollEvent()
	if !ok || ev.Kind != EventICECandidate {
		t.Fatalf("expected first-queued ICE candidate event, got %+v ok=%v", ev, ok)
	}
	ev, ok = pc.PollEvent()
	if !ok || ev.Kind != EventTrackOpen {
		t.Fatalf("expected second-queued track-open event, got %+v ok=%v", ev, ok)
	}
	if _, ok := pc.PollEvent(); ok {
		t.Fatal("expected no more events")
	}

	pc.inboxRTP = append(pc.inboxRTP,
		inboundMedia{receiverID: 1, packet: rtp.Packet{Header: rtp.Header{SSRC: 1}}},
		inboundMedia{receiverID: 2, packet: rtp.Packet{Header: rtp.Header{SSRC: 2}}},
	)
	rid, _, ok := pc.PollRead()
	if !ok || rid != 1 {
		t.Fatalf("expected first-queued receiver 1, got %d ok=%v", rid, ok)
	}
	rid, _, ok = pc.PollRead()
	if !ok || rid != 2 {
		t.Fatalf("expected second-queued receiver 2, got %d ok=%v", rid, ok)
	}
}

func TestPollWriteDrainsOutboxFIFO(t *testing.T) {
	pc := mustOfferer(t)
	pc.outbox = append(pc.outbox,
		outboundDatagram{dest: nil, data: []byte("first")},
		outboundDatagram{dest: nil, data: []byte("second")},
	)
	_, data, ok := pc.PollWrite()
	if !ok || string(data) != "first" {
		t.Fatalf("expected first datagram, got %q ok=%v", data, ok)
	}
	_, data, ok = pc.PollWrite()
	if !ok || string(data) != "second" {
		t.Fatalf("expected second datagram, got %q ok=%v", data, ok)
	}
	if _, _, ok := pc.PollWrite(); ok {
		t.Fatal("expected outbox to be empty")
	}
}

func TestCloseIsIdempotentAndEmitsClosedEvents(t *testing.T) {
	pc := mustOfferer(t)
	if err := pc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if pc.State() != PeerConnectionClosed {
		t.Fatalf("expected closed state, got %s", pc.State())
	}
	if pc.sigMachine.State() != signaling.StateClosed {
		t.Fatalf("expected signaling state closed, got %s", pc.sigMachine.State())
	}

	eventsAfterFirstClose := len(pc.events)
	if err := pc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if len(pc.events) != eventsAfterFirstClose {
		t.Fatal("closing an already-closed connection must not emit duplicate events")
	}
}

func TestSendRTPOnClosedConnectionReturnsErrClosed(t *testing.T) {
	pc := mustOfferer(t)
	pc.AddTransceiver(CodecKindAudio, DirectionSendRecv)
	if err := pc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err := pc.SendRTP(0, []byte("hello"), 0, time.Unix(0, 0))
	if err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSendRTPBeforeSRTPReadyIsANoop(t *testing.T) {
	pc := mustOfferer(t)
	pc.AddTransceiver(CodecKindAudio, DirectionSendRecv)
	if err := pc.SendRTP(0, []byte("hello"), 0, time.Unix(0, 0)); err != nil {
		t.Fatalf("expected a quiet no-op racing ahead of the handshake, got %v", err)
	}
	if len(pc.outbox) != 0 {
		t.Fatal("SendRTP must not queue anything before SRTP keys are derived")
	}
}

func TestSendRTPUnknownSenderIsConfigurationError(t *testing.T) {
	pc := mustOfferer(t)
	err := pc.SendRTP(7, []byte("hello"), 0, time.Unix(0, 0))
	werr, ok := err.(*Error)
	if !ok || werr.Kind != KindConfiguration {
		t.Fatalf("expected KindConfiguration for an out-of-range sender id, got %v", err)
	}
}
