// Copyright (c) 2019 Lanikai Labs. All rights reserved.

package webrtc

import "testing"

func TestEnableSenderRTXConfiguresSenderAndResponder(t *testing.T) {
	pc := mustOfferer(t)
	tr := pc.AddTransceiver(CodecKindVideo, DirectionSendRecv)
	s := pc.senders[tr.senderID]

	if err := pc.EnableSenderRTX(s.ID(), 0xabc, 97); err != nil {
		t.Fatalf("EnableSenderRTX: %v", err)
	}
	if s.rtxSSRC != 0xabc || s.rtxPayloadType != 97 {
		t.Fatalf("expected sender rtx fields set, got ssrc=%x pt=%d", s.rtxSSRC, s.rtxPayloadType)
	}
}

func TestEnableSenderRTXUnknownSender(t *testing.T) {
	pc := mustOfferer(t)
	if err := pc.EnableSenderRTX(99, 1, 1); err == nil {
		t.Fatal("expected an error for an out-of-range sender id")
	}
}

func TestWatchReceiverDoesNotPanic(t *testing.T) {
	pc := mustOfferer(t)
	// nackGen.Watch must be safely callable pre-negotiation; this only
	// arms generation for an SSRC the driver hasn't seen inbound traffic
	// from yet.
	pc.WatchReceiver(0x1234)
}
