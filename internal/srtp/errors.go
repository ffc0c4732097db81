// Package srtp implements Secure RTP and Secure RTCP (RFC 3711), the packet
// protection layer negotiated over DTLS-SRTP (RFC 5764) once a peer
// connection's DTLS handshake completes. A Context is a pure transform: it
// has no socket and no timers, only ProtectRTP/UnprotectRTP/ProtectRTCP/
// UnprotectRTCP methods operating on caller-supplied buffers, consistent
// with the rest of this engine's sans-I/O components.
package srtp

import "github.com/pkg/errors"

var (
	ErrPacketTooShort   = errors.New("srtp: packet too short")
	ErrAuthFailed       = errors.New("srtp: authentication tag mismatch")
	ErrReplay           = errors.New("srtp: replayed or too-old packet index")
	ErrUnsupportedProfile = errors.New("srtp: unsupported protection profile")
)
