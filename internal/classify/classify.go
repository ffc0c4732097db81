// Package classify implements the inbound datagram classifier (§4.L): a
// cheap, allocation-free inspection of the first couple of bytes of a UDP
// payload, used to fan a single demultiplexed socket out to the STUN, DTLS,
// SRTP/SRTCP, or TURN-channel handlers. Modeled on the predicate functions
// (MatchSTUN, MatchDTLS, ...) that the teacher's internal/mux package
// dispatches incoming packets with, generalized into the 5-way classifier
// the engine's top-level driver needs.
package classify

// Protocol identifies which subsystem should receive a datagram.
type Protocol int

const (
	Unknown Protocol = iota
	STUN
	DTLS
	TURNChannel
	SRTP
	SRTCP
	Discard
)

// RTCP payload types occupy 64-95 inclusive (RFC 5761 §4 multiplexing rule).
const (
	rtcpPayloadTypeMin = 64
	rtcpPayloadTypeMax = 95
)

// Classify inspects the first byte(s) of data and returns which protocol it
// belongs to, per §4.L:
//
//	0x00..0x03 -> STUN
//	0x14..0x19 -> DTLS
//	0x40..0x5F -> TURN channel data (pass-through, not specified further)
//	0x80..0xBF -> SRTP or SRTCP, disambiguated by the second byte
//	otherwise  -> discard
func Classify(data []byte) Protocol {
	if len(data) == 0 {
		return Discard
	}
	b0 := data[0]
	switch {
	case b0 <= 0x03:
		return STUN
	case b0 >= 0x14 && b0 <= 0x19:
		return DTLS
	case b0 >= 0x40 && b0 <= 0x5F:
		return TURNChannel
	case b0 >= 0x80 && b0 <= 0xBF:
		if len(data) < 2 {
			return Discard
		}
		pt := data[1] & 0x7F
		if pt >= rtcpPayloadTypeMin && pt <= rtcpPayloadTypeMax {
			return SRTCP
		}
		return SRTP
	default:
		return Discard
	}
}

func (p Protocol) String() string {
	switch p {
	case STUN:
		return "STUN"
	case DTLS:
		return "DTLS"
	case TURNChannel:
		return "TURN-channel"
	case SRTP:
		return "SRTP"
	case SRTCP:
		return "SRTCP"
	case Discard:
		return "discard"
	default:
		return "unknown"
	}
}
