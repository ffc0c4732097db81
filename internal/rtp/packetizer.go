package rtp

import "math/rand"

// DefaultMTU is the payload size a Packetizer targets when none is
// configured. 1200 bytes keeps the resulting UDP datagram (plus RTP/SRTP/UDP/
// IP overhead) comfortably under the common 1500-byte Ethernet MTU.
const DefaultMTU = 1200

// Packetizer splits timestamped media frames into one or more RTP packets.
// It is deliberately codec-agnostic: it does not understand NAL units,
// slice boundaries, or any other codec-specific framing, so it cannot mark
// fragments the way RFC 6184's FU-A/STAP-A do. Callers whose codec needs
// that need to fragment the frame themselves before handing payloads to
// Packetize; this type only assigns RTP header fields and splits on size.
type Packetizer struct {
	SSRC        uint32
	PayloadType uint8

	// MTU caps each packet's payload size. Zero selects DefaultMTU.
	MTU int

	sequence    uint16
	sequenceSet bool
}

// NewPacketizer returns a Packetizer seeded with a random initial sequence
// number, as RFC 3550 §5.1 requires.
func NewPacketizer(ssrc uint32, payloadType uint8) *Packetizer {
	return &Packetizer{
		SSRC:        ssrc,
		PayloadType: payloadType,
		sequence:    uint16(rand.Uint32()),
	}
}

func (pz *Packetizer) mtu() int {
	if pz.MTU > 0 {
		return pz.MTU
	}
	return DefaultMTU
}

// Packetize splits payload into one or more RTP packets carrying the given
// RTP timestamp, in order, with the marker bit set on the last one. An empty
// payload still yields a single empty-payload packet (used by some codecs to
// signal end-of-frame), never zero packets.
func (pz *Packetizer) Packetize(payload []byte, timestamp uint32) []Packet {
	mtu := pz.mtu()
	n := 1
	if len(payload) > 0 {
		n = (len(payload) + mtu - 1) / mtu
	}

	packets := make([]Packet, 0, n)
	for i := 0; i < n; i++ {
		start := i * mtu
		end := start + mtu
		if end > len(payload) {
			end = len(payload)
		}
		packets = append(packets, Packet{
			Header: Header{
				Marker:      i == n-1,
				PayloadType: pz.PayloadType,
				Sequence:    pz.nextSequence(),
				Timestamp:   timestamp,
				SSRC:        pz.SSRC,
			},
			Payload: payload[start:end],
		})
	}
	return packets
}

func (pz *Packetizer) nextSequence() uint16 {
	if !pz.sequenceSet {
		pz.sequenceSet = true
		return pz.sequence
	}
	pz.sequence++
	return pz.sequence
}
