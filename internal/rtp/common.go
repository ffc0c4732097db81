package rtp

// Package rtp implements the RTP data transfer protocol (RFC 3550 §5), as a
// pure codec: Packet.MarshalTo and Unmarshal operate on caller-supplied
// buffers (Packet.Marshal allocates its own), with no socket, clock, or
// goroutine of their own. Demultiplexing a shared
// UDP socket's reads among STUN/DTLS/RTP/RTCP is internal/classify's job,
// not this package's.

import "fmt"

const (
	// RFC 3550 defines RTP version 2.
	rtpVersion = 2
)

type errBadVersion byte

func (e errBadVersion) Error() string {
	return fmt.Sprintf("invalid RTP version: %d", byte(e))
}
