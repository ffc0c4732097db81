// Copyright (c) 2019 Lanikai Labs. All rights reserved.

package webrtc

import "github.com/lanikai/webrtc/internal/rtp"

// Direction is a transceiver's negotiated send/receive capability, carried
// in SDP as one of sendrecv/sendonly/recvonly/inactive.
type Direction int

const (
	DirectionSendRecv Direction = iota
	DirectionSendOnly
	DirectionRecvOnly
	DirectionInactive
)

func (d Direction) String() string {
	switch d {
	case DirectionSendOnly:
		return "sendonly"
	case DirectionRecvOnly:
		return "recvonly"
	case DirectionInactive:
		return "inactive"
	default:
		return "sendrecv"
	}
}

// Transceivers, senders, and receivers cross-reference each other and the
// peer connection's media engine and interceptor chain. Per the source's
// trait-object/Rc<RefCell<>> graph, this is expressed as an arena (the
// PeerConnection's transceivers/senders/receivers slices) plus integer
// handles rather than long-lived pointers between them; every lookup goes
// back through the owning PeerConnection.

// Transceiver pairs one local Sender with one local Receiver under a single
// negotiated MID, mirroring one m-line.
type Transceiver struct {
	id        int
	mid       string
	kind      CodecKind
	direction Direction

	senderID   int
	receiverID int
}

// ID returns this transceiver's handle, stable for its lifetime.
func (t *Transceiver) ID() int { return t.id }

// MID returns the media identifier this transceiver negotiated.
func (t *Transceiver) MID() string { return t.mid }

// Sender is the local, outbound half of a transceiver: it owns the SSRC an
// encoder's payloads are packetized and sent under.
type Sender struct {
	id            int
	transceiverID int

	ssrc        uint32
	payloadType uint8
	packetizer  *rtp.Packetizer

	// rtxSSRC/rtxPayloadType are nonzero once EnableSenderRTX has configured a
	// retransmission stream for this sender (RFC 4588).
	rtxSSRC        uint32
	rtxPayloadType uint8
}

// ID returns this sender's handle.
func (s *Sender) ID() int { return s.id }

// SSRC returns the synchronization source this sender packetizes under.
func (s *Sender) SSRC() uint32 { return s.ssrc }

// Receiver is the local, inbound half of a transceiver. A single
// Transceiver may own more than one Receiver once simulcast is in play:
// each RID (§8 S4) demultiplexes to a distinct Receiver, all parented to
// the same transceiver.
type Receiver struct {
	id            int
	transceiverID int

	ssrc uint32
	rid  string

	opened bool
}

// ID returns this receiver's handle.
func (r *Receiver) ID() int { return r.id }

// RID returns the simulcast RTP stream identifier this receiver was opened
// for, or "" if this transceiver isn't simulcast.
func (r *Receiver) RID() string { return r.rid }
