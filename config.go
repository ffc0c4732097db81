// Copyright (c) 2019 Lanikai Labs. All rights reserved.

package webrtc

import (
	"time"

	"github.com/pkg/errors"
)

// DTLSRole selects which side of the DTLS handshake a peer connection plays.
// Auto defers the decision to the negotiated SDP "a=setup" attribute: the
// offerer proposes actpass and the answerer picks active or passive, per
// RFC 5763 §5.
type DTLSRole int

const (
	DTLSRoleAuto DTLSRole = iota
	DTLSRoleClient
	DTLSRoleServer
)

// ICEServer is one STUN or TURN server to consult while gathering
// server-reflexive or relay candidates.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// NetworkType is one transport family a peer connection is willing to
// gather candidates over.
type NetworkType int

const (
	NetworkUDP4 NetworkType = iota
	NetworkUDP6
	NetworkTCP4
	NetworkTCP6
)

// Configuration is the immutable set of options a PeerConnection is built
// from (§6's enumerated configuration table). A value is constructed once
// (typically starting from DefaultConfiguration) and never mutated afterward;
// every peer connection created from it owns its own copy of the derived
// runtime objects (certificates are generated per connection, not shared).
type Configuration struct {
	// MaximumTransmissionUnit bounds the DTLS fragment and compacted record
	// size. Default 1200.
	MaximumTransmissionUnit int

	// ReplayProtectionWindow is the sliding-window width W used by both the
	// DTLS record layer and the SRTP contexts. Default 64.
	ReplayProtectionWindow uint64

	// InitialTickerInterval holds a starting DTLS handshake retransmit
	// timeout. Default 1s. NewPeerConnection does not pass it to the DTLS
	// connection: the retransmit timer there always starts at 1s and
	// doubles on each retransmit up to a 60s ceiling, whatever this is set to.
	InitialTickerInterval time.Duration

	// DTLSRole picks this side's handshake role. Default DTLSRoleAuto.
	DTLSRole DTLSRole

	// AnsweringDTLSRole forces the role taken when this side is the
	// answerer and DTLSRole is DTLSRoleAuto. Ignored otherwise. Default
	// DTLSRoleClient, matching RFC 5763 §5's recommended default for an
	// answerer that did not receive an explicit "a=setup:active/passive".
	AnsweringDTLSRole DTLSRole

	ICEServers  []ICEServer
	NetworkTypes []NetworkType

	// RRInterval/SRInterval are the receiver/sender report cadences.
	// Default 1s each.
	RRInterval time.Duration
	SRInterval time.Duration

	// NACKBufferSize is the power-of-two send-buffer capacity the NACK
	// responder keeps per stream. Default 1024.
	NACKBufferSize uint16

	// NACKSkipLastN is the NACK generator's delayed-arrival grace window.
	// Default 5.
	NACKSkipLastN uint16
}

// DefaultConfiguration returns a Configuration with every option at its §6
// default, gathering over udp4/udp6 with no ICE servers configured.
func DefaultConfiguration() Configuration {
	return Configuration{
		MaximumTransmissionUnit: 1200,
		ReplayProtectionWindow:  64,
		InitialTickerInterval:   time.Second,
		DTLSRole:                DTLSRoleAuto,
		AnsweringDTLSRole:       DTLSRoleClient,
		NetworkTypes:            []NetworkType{NetworkUDP4, NetworkUDP6},
		RRInterval:              time.Second,
		SRInterval:              time.Second,
		NACKBufferSize:          1024,
		NACKSkipLastN:           5,
	}
}

// validate applies the §7 KindConfiguration policy: a bad Configuration
// fails here, before any connection object is created.
func (c Configuration) validate() error {
	if c.MaximumTransmissionUnit <= 0 {
		return newError(KindConfiguration, "NewPeerConnection", errors.Errorf("maximum transmission unit %d is not positive", c.MaximumTransmissionUnit))
	}
	if c.ReplayProtectionWindow == 0 {
		return newError(KindConfiguration, "NewPeerConnection", errors.New("replay protection window must be nonzero"))
	}
	if c.NACKBufferSize == 0 || c.NACKBufferSize&(c.NACKBufferSize-1) != 0 {
		return newError(KindConfiguration, "NewPeerConnection", errors.Errorf("nack buffer size %d is not a power of two", c.NACKBufferSize))
	}
	if len(c.NetworkTypes) == 0 {
		return newError(KindConfiguration, "NewPeerConnection", errors.New("no network types enabled"))
	}
	if c.DTLSRole == DTLSRoleAuto && c.AnsweringDTLSRole == DTLSRoleAuto {
		return newError(KindConfiguration, "NewPeerConnection", errors.New("answering dtls role cannot be auto"))
	}
	return nil
}

func (c Configuration) rrInterval() time.Duration {
	if c.RRInterval > 0 {
		return c.RRInterval
	}
	return time.Second
}

func (c Configuration) srInterval() time.Duration {
	if c.SRInterval > 0 {
		return c.SRInterval
	}
	return time.Second
}
