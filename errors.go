// Copyright (c) 2019 Lanikai Labs. All rights reserved.

package webrtc

import "github.com/pkg/errors"

// Kind classifies an error returned across the peer connection's public
// verbs, distinguishing what a caller can react to from what is purely
// informational (see the HandshakeViolation/TransportClosure policy notes
// on each verb).
type Kind int

const (
	// KindProtocolFraming covers a malformed STUN/DTLS/RTP/RTCP header.
	// Never returned to a caller: the driver drops the datagram and
	// continues, matching DTLS §4.1.2.7's silent-discard policy.
	KindProtocolFraming Kind = iota

	// KindCryptographicFailure covers an AEAD tag mismatch, a replayed
	// sequence number, or a failed SRTP/DTLS integrity check. Never fatal
	// by itself: the packet is dropped and processing continues.
	KindCryptographicFailure

	// KindHandshakeViolation covers an out-of-order or invalid DTLS
	// handshake message, an illegal epoch jump, or sequence-number
	// overflow. Fatal: the connection transitions to closed and a
	// peer-connection-state-change(failed) event is queued.
	KindHandshakeViolation

	// KindSignalingViolation covers an illegal signaling-state transition
	// (§4.M). The state is left unchanged; the caller gets this error back
	// synchronously from create_offer/create_answer/set_local/set_remote.
	KindSignalingViolation

	// KindTransportClosure covers a received close_notify or an ICE
	// consent-check failure. The connection transitions to closed; all
	// subsequent verbs fail with this kind.
	KindTransportClosure

	// KindConfiguration covers a Configuration value that fails
	// construction-time validation (non-positive MTU, zero replay window,
	// NACK buffer size not a power of two, no network types enabled, or
	// both DTLS roles left on auto). NewPeerConnection returns this kind and
	// creates nothing.
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindProtocolFraming:
		return "protocol-framing"
	case KindCryptographicFailure:
		return "cryptographic-failure"
	case KindHandshakeViolation:
		return "handshake-violation"
	case KindSignalingViolation:
		return "signaling-violation"
	case KindTransportClosure:
		return "transport-closure"
	case KindConfiguration:
		return "configuration-error"
	default:
		return "unknown"
	}
}

// Error is the typed error every public verb returns instead of an opaque
// string, so a host can branch on Kind rather than matching message text.
type Error struct {
	Kind Kind
	Op   string // the verb or constructor that produced this error
	Err  error  // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "webrtc: " + e.Op + ": " + e.Kind.String()
	}
	return "webrtc: " + e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func wrapf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// ErrClosed is returned by every verb once the peer connection has reached
// the closed state (§5 "Suspension": after close(), all verbs either return
// closed errors or no-ops).
var ErrClosed = &Error{Kind: KindTransportClosure, Op: "peerconnection", Err: errors.New("peer connection is closed")}

// ErrSequenceOverflow describes a write that would advance a DTLS epoch's
// 48-bit sequence counter past its maximum. No code in this module returns
// it.
var ErrSequenceOverflow = &Error{Kind: KindHandshakeViolation, Op: "write", Err: errors.New("sequence number space exhausted")}
