// Copyright (c) 2019 Lanikai Labs. All rights reserved.

package webrtc

import (
	"time"

	"github.com/pkg/errors"
)

var errSenderNotFound = errors.New("webrtc: no such sender")

// SendRTP packetizes payload under the given sender's SSRC/payload type and
// RTP timestamp, pushes it through the outbound half of the interceptor
// chain (sender reports, NACK send-buffering), protects it, and queues it
// for poll_write. Returns ErrClosed if the connection has been closed.
// Before SRTP keys are derived it queues nothing and returns nil: that is
// the caller racing ahead of the DTLS handshake, not a distinct error kind,
// since it resolves on its own once negotiation completes.
func (pc *PeerConnection) SendRTP(senderID int, payload []byte, timestamp uint32, now time.Time) error {
	if pc.closed {
		return ErrClosed
	}
	if senderID < 0 || senderID >= len(pc.senders) {
		return newError(KindConfiguration, "SendRTP", errSenderNotFound)
	}
	if !pc.srtpReady {
		return nil
	}

	s := pc.senders[senderID]
	for _, pkt := range s.packetizer.Packetize(payload, timestamp) {
		if !pc.chain.WriteRTP(&pkt, now) {
			continue // an interceptor stage dropped this packet deliberately
		}
		pc.protectAndQueue(pkt)
	}
	return nil
}

// EnableSenderRTX configures RFC 4588 retransmission encapsulation for a
// sender: NACKed packets go out re-wrapped under rtxSSRC/rtxPayloadType
// instead of resent verbatim.
func (pc *PeerConnection) EnableSenderRTX(senderID int, rtxSSRC uint32, rtxPayloadType uint8) error {
	if senderID < 0 || senderID >= len(pc.senders) {
		return newError(KindConfiguration, "EnableSenderRTX", errSenderNotFound)
	}
	s := pc.senders[senderID]
	s.rtxSSRC = rtxSSRC
	s.rtxPayloadType = rtxPayloadType
	pc.nackRsp.EnableRTX(s.ssrc, rtxSSRC, rtxPayloadType)
	return nil
}

// WatchReceiver arms NACK generation for an inbound SSRC once it's known
// (typically right after a track-open event names it).
func (pc *PeerConnection) WatchReceiver(ssrc uint32) {
	pc.nackGen.Watch(ssrc)
}
