// Copyright (c) 2019 Lanikai Labs. All rights reserved.

package webrtc

import "github.com/lanikai/webrtc/internal/sdp"

// Codec implementation itself (encode/decode of VP8, H.264, Opus, ...) is a
// non-goal: the pipeline moves opaque payloads between the SRTP context and
// whatever the host does with them. What this file models is the
// negotiation surface spec.md §4.M needs: the set of codecs a media engine
// is willing to offer, each one's name/clock-rate/fmtp identity, and the
// intersection logic create_answer performs against a remote offer.

// CodecKind is the media type a CodecParams entry applies to.
type CodecKind string

const (
	CodecKindAudio CodecKind = "audio"
	CodecKindVideo CodecKind = "video"
)

// CodecParams describes one negotiable codec: its RTP payload type, name,
// clock rate, and opaque format-specific parameters string (the verbatim
// a=fmtp value, already marshaled). Two CodecParams are considered the same
// codec for intersection purposes when Kind, Name, ClockRate, and Channels
// match,
// matching the offer/answer codec-matching rule of RFC 3264 §6.1 (payload
// type numbers are a local alias, not part of codec identity).
type CodecParams struct {
	Kind        CodecKind
	PayloadType uint8
	Name        string
	ClockRate   uint32
	Channels    int // audio channel count; 0 for video
	FormatParams string
	Feedback    []string // rtcp-fb values, e.g. "nack", "nack pli", "goog-remb"
}

// sameCodec reports whether a and b name the same codec, ignoring payload
// type number and feedback list.
func (a CodecParams) sameCodec(b CodecParams) bool {
	return a.Kind == b.Kind && a.Name == b.Name && a.ClockRate == b.ClockRate && a.Channels == b.Channels
}

// H264Params returns the default H.264 constrained-baseline codec entry
// this engine offers, matching the teacher's hardcoded single-profile
// negotiation (level-asymmetry-allowed, packetization-mode=1,
// profile-level-id=42e01f) but expressed as data instead of a literal
// string built at answer time.
func H264Params(payloadType uint8) CodecParams {
	fmtp := sdp.H264FormatParameters{
		LevelAsymmetryAllowed: true,
		PacketizationMode:     1,
		ProfileLevelID:        0x42e01f,
	}
	return CodecParams{
		Kind:         CodecKindVideo,
		PayloadType:  payloadType,
		Name:         "H264",
		ClockRate:    90000,
		FormatParams: fmtp.Marshal(),
		Feedback:     []string{"nack", "nack pli", "goog-remb"},
	}
}

// OpusParams returns the default stereo Opus codec entry.
func OpusParams(payloadType uint8) CodecParams {
	return CodecParams{
		Kind:        CodecKindAudio,
		PayloadType: payloadType,
		Name:        "opus",
		ClockRate:   48000,
		Channels:    2,
	}
}

// PCMUParams returns the default G.711 mu-law codec entry (static payload
// type 0, no fmtp).
func PCMUParams(payloadType uint8) CodecParams {
	return CodecParams{
		Kind:        CodecKindAudio,
		PayloadType: payloadType,
		Name:        "PCMU",
		ClockRate:   8000,
		Channels:    1,
	}
}

// MediaEngine is the set of codecs a peer connection is willing to
// negotiate, grouped by media kind and kept in preference order: the order
// codecs are registered in is the order create_offer advertises them.
// create_answer keeps the remote offer's order and uses this list only to
// decide which offered codecs are supported (testable property 4: negotiated
// codecs are the intersection of both offered sets, in the offerer's
// preference order).
type MediaEngine struct {
	audio []CodecParams
	video []CodecParams
}

// NewMediaEngine returns an empty engine; call RegisterCodec to populate it.
func NewMediaEngine() *MediaEngine {
	return &MediaEngine{}
}

// DefaultMediaEngine returns an engine preconfigured with H.264 (pt 96),
// Opus (pt 111), and PCMU (pt 0), the same codec set the teacher's
// hardcoded answer logic assumed.
func DefaultMediaEngine() *MediaEngine {
	m := NewMediaEngine()
	m.RegisterCodec(H264Params(96))
	m.RegisterCodec(OpusParams(111))
	m.RegisterCodec(PCMUParams(0))
	return m
}

// RegisterCodec appends c to its kind's preference list.
func (m *MediaEngine) RegisterCodec(c CodecParams) {
	switch c.Kind {
	case CodecKindAudio:
		m.audio = append(m.audio, c)
	case CodecKindVideo:
		m.video = append(m.video, c)
	}
}

// Codecs returns this engine's preference-ordered codec list for kind.
func (m *MediaEngine) Codecs(kind CodecKind) []CodecParams {
	switch kind {
	case CodecKindAudio:
		return append([]CodecParams(nil), m.audio...)
	case CodecKindVideo:
		return append([]CodecParams(nil), m.video...)
	default:
		return nil
	}
}

// intersectCodecs returns the codecs of local (in local's preference order) that
// also appear, by codec identity, somewhere in remote.
func intersectCodecs(local, remote []CodecParams) []CodecParams {
	var out []CodecParams
	for _, l := range local {
		for _, r := range remote {
			if l.sameCodec(r) {
				out = append(out, l)
				break
			}
		}
	}
	return out
}
