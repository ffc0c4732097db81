// Copyright (c) 2019 Lanikai Labs. All rights reserved.

package webrtc

import (
	"github.com/lanikai/webrtc/internal/ice"
	"github.com/lanikai/webrtc/internal/signaling"
)

// EventKind tags an Event's payload, matching §6's event list exactly: every
// externally visible state change is a tagged record drained through
// poll_event, never a callback.
type EventKind int

const (
	EventSignalingStateChange EventKind = iota
	EventICEConnectionStateChange
	EventPeerConnectionStateChange
	EventICECandidate
	EventTrackOpen
	EventTrackClose
	EventDataChannelOpen
	EventDataChannelMessage
	EventDataChannelClose
)

func (k EventKind) String() string {
	switch k {
	case EventSignalingStateChange:
		return "signaling-state-change"
	case EventICEConnectionStateChange:
		return "ice-connection-state-change"
	case EventPeerConnectionStateChange:
		return "peer-connection-state-change"
	case EventICECandidate:
		return "ice-candidate"
	case EventTrackOpen:
		return "track-open"
	case EventTrackClose:
		return "track-close"
	case EventDataChannelOpen:
		return "data-channel-open"
	case EventDataChannelMessage:
		return "data-channel-message"
	case EventDataChannelClose:
		return "data-channel-close"
	default:
		return "unknown"
	}
}

// ICEConnectionState mirrors the underlying checklist's progress, renamed
// into the W3C WebRTC vocabulary a host expects from this event.
type ICEConnectionState int

const (
	ICEConnectionNew ICEConnectionState = iota
	ICEConnectionChecking
	ICEConnectionConnected
	ICEConnectionFailed
)

func iceConnectionStateFrom(s ice.ChecklistState, started bool) ICEConnectionState {
	switch s {
	case ice.ChecklistCompleted:
		return ICEConnectionConnected
	case ice.ChecklistFailed:
		return ICEConnectionFailed
	default:
		if started {
			return ICEConnectionChecking
		}
		return ICEConnectionNew
	}
}

// PeerConnectionState is the aggregated connection state §4.N derives from
// the ICE and DTLS states (the W3C WebRTC rule: connected iff both are
// connected, failed if either is failed, closed if explicitly closed).
type PeerConnectionState int

const (
	PeerConnectionNew PeerConnectionState = iota
	PeerConnectionConnecting
	PeerConnectionConnected
	PeerConnectionFailed
	PeerConnectionClosed
)

func (s PeerConnectionState) String() string {
	switch s {
	case PeerConnectionNew:
		return "new"
	case PeerConnectionConnecting:
		return "connecting"
	case PeerConnectionConnected:
		return "connected"
	case PeerConnectionFailed:
		return "failed"
	case PeerConnectionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one tagged record drained through PeerConnection.PollEvent. Only
// the field(s) matching Kind are meaningful; the rest are zero.
type Event struct {
	Kind EventKind

	SignalingState signaling.State
	ICEState       ICEConnectionState
	PeerState      PeerConnectionState
	Candidate      ice.Candidate

	TransceiverID int
	ReceiverID    int
	RID           string

	DataChannelID int
	Message       []byte
}
