// Copyright (c) 2019 Lanikai Labs. All rights reserved.

package webrtc

import (
	"strings"
	"testing"

	"github.com/lanikai/webrtc/internal/signaling"
)

func mustOfferer(t *testing.T) *PeerConnection {
	t.Helper()
	pc, err := NewPeerConnection(DefaultConfiguration(), DefaultMediaEngine(), true)
	if err != nil {
		t.Fatalf("NewPeerConnection(offerer): %v", err)
	}
	return pc
}

func mustAnswerer(t *testing.T, engine *MediaEngine) *PeerConnection {
	t.Helper()
	pc, err := NewPeerConnection(DefaultConfiguration(), engine, false)
	if err != nil {
		t.Fatalf("NewPeerConnection(answerer): %v", err)
	}
	return pc
}

func TestAddTransceiverAssignsDistinctSSRCAndHandles(t *testing.T) {
	pc := mustOfferer(t)
	a := pc.AddTransceiver(CodecKindAudio, DirectionSendRecv)
	v := pc.AddTransceiver(CodecKindVideo, DirectionSendRecv)

	if a.ID() == v.ID() {
		t.Fatalf("expected distinct transceiver IDs, got %d and %d", a.ID(), v.ID())
	}
	sa := pc.senders[a.senderID]
	sv := pc.senders[v.senderID]
	if sa.SSRC() == sv.SSRC() {
		t.Fatalf("expected distinct SSRCs, got %d for both", sa.SSRC())
	}
	if sa.SSRC() == 0 || sv.SSRC() == 0 {
		t.Fatalf("randomSSRC must never hand out 0")
	}
}

func TestEnsureMIDSharesOneBucketAcrossKinds(t *testing.T) {
	pc := mustOfferer(t)
	a := pc.AddTransceiver(CodecKindAudio, DirectionSendRecv)
	v := pc.AddTransceiver(CodecKindVideo, DirectionSendRecv)

	midA := pc.ensureMID(a)
	midV := pc.ensureMID(v)
	if midA == midV {
		t.Fatalf("audio and video transceivers must not collide on mid, both got %q", midA)
	}
	// Re-fetching must not reallocate.
	if pc.ensureMID(a) != midA {
		t.Fatalf("ensureMID must be idempotent once a transceiver has a mid")
	}
}

// TestOfferAnswerCodecIntersection drives a full offer/answer round between
// an offerer advertising three codecs and an answerer supporting only two
// of them, and checks the answer negotiates exactly the overlap in the
// offerer's preference order (testable property 4).
func TestOfferAnswerCodecIntersection(t *testing.T) {
	offerer := mustOfferer(t)
	limited := NewMediaEngine()
	limited.RegisterCodec(OpusParams(111))
	limited.RegisterCodec(H264Params(96))
	answerer := mustAnswerer(t, limited)

	offerer.AddTransceiver(CodecKindAudio, DirectionSendRecv)
	offerer.AddTransceiver(CodecKindVideo, DirectionSendRecv)

	offer, err := offerer.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if err := offerer.SetLocalDescription(signaling.SDPTypeOffer, offer); err != nil {
		t.Fatalf("offerer.SetLocalDescription: %v", err)
	}
	if err := answerer.SetRemoteDescription(signaling.SDPTypeOffer, offer); err != nil {
		t.Fatalf("answerer.SetRemoteDescription: %v", err)
	}

	answer, err := answerer.CreateAnswer()
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if err := answerer.SetLocalDescription(signaling.SDPTypeAnswer, answer); err != nil {
		t.Fatalf("answerer.SetLocalDescription: %v", err)
	}
	if err := offerer.SetRemoteDescription(signaling.SDPTypeAnswer, answer); err != nil {
		t.Fatalf("offerer.SetRemoteDescription: %v", err)
	}

	if offerer.sigMachine.State() != signaling.StateStable {
		t.Fatalf("offerer expected stable, got %s", offerer.sigMachine.State())
	}
	if answerer.sigMachine.State() != signaling.StateStable {
		t.Fatalf("answerer expected stable, got %s", answerer.sigMachine.State())
	}

	// PCMU (offered, pt 0) has no match in the limited answerer engine, so
	// the answer must carry only opus and H264 rtpmaps.
	if strings.Contains(answer, "PCMU") {
		t.Fatalf("answer should not negotiate PCMU, the answerer never registered it:\n%s", answer)
	}
	if !strings.Contains(answer, "opus") || !strings.Contains(answer, "H264") {
		t.Fatalf("answer should negotiate both opus and H264:\n%s", answer)
	}

	// Both sides agree on the DTLS role: the offerer proposed actpass and
	// AnsweringDTLSRole defaults to client, so the answerer's setup is
	// "active" and the offerer ends up a server.
	if offerer.dtlsRole == answerer.dtlsRole {
		t.Fatalf("offerer and answerer must resolve to opposite DTLS roles, both got %v", offerer.dtlsRole)
	}
}

func TestCreateAnswerWithoutRemoteOfferFails(t *testing.T) {
	pc := mustAnswerer(t, DefaultMediaEngine())
	_, err := pc.CreateAnswer()
	if err == nil {
		t.Fatal("expected CreateAnswer to fail with no remote offer pending")
	}
	werr, ok := err.(*Error)
	if !ok || werr.Kind != KindSignalingViolation {
		t.Fatalf("expected KindSignalingViolation, got %v", err)
	}
}

func TestRollbackReturnsToStable(t *testing.T) {
	pc := mustOfferer(t)
	pc.AddTransceiver(CodecKindAudio, DirectionSendRecv)

	offer, err := pc.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if err := pc.SetLocalDescription(signaling.SDPTypeOffer, offer); err != nil {
		t.Fatalf("SetLocalDescription: %v", err)
	}
	if pc.sigMachine.State() != signaling.StateHaveLocalOffer {
		t.Fatalf("expected have-local-offer, got %s", pc.sigMachine.State())
	}
	if err := pc.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if pc.sigMachine.State() != signaling.StateStable {
		t.Fatalf("expected stable after rollback, got %s", pc.sigMachine.State())
	}
}

func TestAddSimulcastReceiverRegistersRIDLookup(t *testing.T) {
	pc := mustOfferer(t)
	tr := pc.AddTransceiver(CodecKindVideo, DirectionRecvOnly)
	tr.mid = "0"

	r, err := pc.AddSimulcastReceiver(tr.ID(), "hi")
	if err != nil {
		t.Fatalf("AddSimulcastReceiver: %v", err)
	}
	if r.RID() != "hi" {
		t.Fatalf("expected rid %q, got %q", "hi", r.RID())
	}
	idx, ok := pc.ridToRecv["0|hi"]
	if !ok || pc.receivers[idx] != r {
		t.Fatalf("AddSimulcastReceiver must index the new receiver by mid|rid")
	}
}

func TestAddSimulcastReceiverUnknownTransceiver(t *testing.T) {
	pc := mustOfferer(t)
	if _, err := pc.AddSimulcastReceiver(42, "hi"); err == nil {
		t.Fatal("expected an error for an out-of-range transceiver id")
	}
}
