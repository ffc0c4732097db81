package signaling

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/lanikai/webrtc/internal/sdp"
)

// ErrNoCodecOverlap is returned by BuildAnswer when a remote m-line's
// offered codecs share nothing with this side's locally supported set for
// that media kind.
var ErrNoCodecOverlap = errors.New("signaling: no codec overlap for m-line")

// CodecOffer is the signaling package's codec-identity view used when
// building or matching m-lines: enough to write/parse rtpmap, fmtp, and
// rtcp-fb attributes without the signaling package depending on the root
// package's richer CodecParams type (which would create an import cycle,
// since the root package is what calls BuildOffer/BuildAnswer).
type CodecOffer struct {
	PayloadType  uint8
	Name         string
	ClockRate    uint32
	Channels     int
	FormatParams string
	Feedback     []string
}

func (c CodecOffer) sameCodec(o CodecOffer) bool {
	return c.Name == o.Name && c.ClockRate == o.ClockRate && c.Channels == o.Channels
}

// rtpmap formats as "<pt> <name>/<clockrate>[/<channels>]" (RFC 8866 §6.6).
func (c CodecOffer) rtpmap() string {
	if c.Channels > 1 {
		return fmt.Sprintf("%d %s/%d/%d", c.PayloadType, c.Name, c.ClockRate, c.Channels)
	}
	return fmt.Sprintf("%d %s/%d", c.PayloadType, c.Name, c.ClockRate)
}

// MediaDescription is one m-line's worth of input to BuildOffer, or one
// m-line's worth of already-matched output from BuildAnswer.
type MediaDescription struct {
	Kind      string // "audio" or "video"
	MID       string
	Direction string // sendrecv/sendonly/recvonly/inactive

	Codecs []CodecOffer

	ICEUfrag    string
	ICEPwd      string
	Fingerprint string // "sha-256 AA:BB:...", already uppercase-hex
	Setup       string // actpass/active/passive

	SSRC    uint32
	Cname   string
	MsID    string
	TrackID string
}

const sdpUsername = "lanikai"

// MIDExtensionID/RIDExtensionID are the one-byte RTP header extension IDs
// (RFC 5285) this engine always advertises for the mid and rtp-stream-id
// extensions (RFC 8843/simulcast demux), in every offer and answer it
// builds. Fixing them avoids a per-session extmap negotiation pass: the
// offerer proposes these two IDs and the answerer accepts them as given,
// which is within the RFC 8285 §6 renegotiation rules and is what this
// engine always does on both sides.
const (
	MIDExtensionID = 1
	RIDExtensionID = 2
)

// BuildOffer assembles an SDP offer for the given media descriptions, one
// m-line per description, in order. MIDs are taken verbatim from each
// description (the caller reserves/allocates them via MIDAllocator before
// calling this, so already-assigned MIDs survive a create_offer reapply).
func BuildOffer(sessionID string, sessionVersion uint64, medias []MediaDescription) sdp.Session {
	s := newSessionSkeleton(sessionID, sessionVersion)
	mids := make([]string, len(medias))
	for i, m := range medias {
		mids[i] = m.MID
		s.Media = append(s.Media, buildMediaLine(m, m.Setup))
	}
	s.Attributes = append(s.Attributes, sdp.Attribute{Key: "group", Value: "BUNDLE " + strings.Join(mids, " ")})
	return s
}

// BuildAnswer matches a remote offer m-line by m-line against this side's
// locally supported codecs (by kind), choosing the codec intersection in
// the offerer's preference order (testable property 4), and returns the
// assembled answer session along with the negotiated codec list actually
// selected for each m-line, indexed the same as offer.Media.
func BuildAnswer(offer sdp.Session, sessionID string, sessionVersion uint64, localByKind map[string][]CodecOffer, setup string, localFor func(kind, mid string) MediaDescription) (sdp.Session, [][]CodecOffer, error) {
	s := newSessionSkeleton(sessionID, sessionVersion)
	negotiated := make([][]CodecOffer, len(offer.Media))

	var mids []string
	for i, remoteMedia := range offer.Media {
		remoteCodecs := parseRemoteCodecs(remoteMedia)
		local := localByKind[remoteMedia.Type]
		matched := intersectPreserving(remoteCodecs, local)
		if len(matched) == 0 {
			return sdp.Session{}, nil, errors.Wrapf(ErrNoCodecOverlap, "m-line %d (%s)", i, remoteMedia.Type)
		}
		negotiated[i] = matched

		mid := remoteMedia.GetAttr("mid")
		desc := localFor(remoteMedia.Type, mid)
		desc.MID = mid
		desc.Kind = remoteMedia.Type
		desc.Codecs = matched
		desc.Setup = answerSetup(remoteMedia.GetAttr("setup"), setup)

		s.Media = append(s.Media, buildMediaLine(desc, desc.Setup))
		mids = append(mids, mid)
	}
	if group := offer.GetAttr("group"); group != "" {
		s.Attributes = append(s.Attributes, sdp.Attribute{Key: "group", Value: group})
	} else if len(mids) > 0 {
		s.Attributes = append(s.Attributes, sdp.Attribute{Key: "group", Value: "BUNDLE " + strings.Join(mids, " ")})
	}
	return s, negotiated, nil
}

// answerSetup implements RFC 5763 §5's answerer rule: actpass from the
// offerer lets the answerer pick (we use our configured default role);
// an explicit active/passive from the offerer flips to the opposite.
func answerSetup(remoteSetup, defaultSetup string) string {
	switch remoteSetup {
	case "active":
		return "passive"
	case "passive":
		return "active"
	default:
		return defaultSetup
	}
}

// intersectPreserving returns the codecs of preferenceOrder (in that order)
// that also appear, by codec identity, in candidates.
func intersectPreserving(preferenceOrder, candidates []CodecOffer) []CodecOffer {
	var out []CodecOffer
	for _, p := range preferenceOrder {
		for _, c := range candidates {
			if p.sameCodec(c) {
				// Keep the offer's payload-type number (what both sides
				// must agree the wire value means) but this side's fmtp
				// and feedback, since those describe our own capability.
				merged := p
				merged.FormatParams = c.FormatParams
				merged.Feedback = c.Feedback
				out = append(out, merged)
				break
			}
		}
	}
	return out
}

// parseRemoteCodecs reads a media section's rtpmap/fmtp/rtcp-fb attributes
// into CodecOffer values, in the m-line's Format (payload type) order,
// which is the offerer's declared preference order (RFC 3264 §6.1).
func parseRemoteCodecs(m sdp.Media) []CodecOffer {
	rtpmaps := make(map[int]CodecOffer)
	for _, a := range m.Attributes {
		if a.Key != "rtpmap" {
			continue
		}
		fields := strings.Fields(a.Value)
		if len(fields) != 2 {
			continue
		}
		pt, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		parts := strings.Split(fields[1], "/")
		if len(parts) < 2 {
			continue
		}
		clockRate, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			continue
		}
		// An omitted channel count means one channel for audio; video codecs
		// carry none, matching the 0 the local codec entries use.
		channels := 0
		if m.Type == "audio" {
			channels = 1
		}
		if len(parts) == 3 {
			if n, err := strconv.Atoi(parts[2]); err == nil {
				channels = n
			}
		}
		rtpmaps[pt] = CodecOffer{PayloadType: uint8(pt), Name: parts[0], ClockRate: uint32(clockRate), Channels: channels}
	}
	for _, a := range m.Attributes {
		pt, val, ok := splitLeadingPT(a)
		if !ok {
			continue
		}
		c, exists := rtpmaps[pt]
		if !exists {
			continue
		}
		switch a.Key {
		case "fmtp":
			c.FormatParams = val
		case "rtcp-fb":
			c.Feedback = append(c.Feedback, val)
		}
		rtpmaps[pt] = c
	}

	out := make([]CodecOffer, 0, len(m.Format))
	for _, f := range m.Format {
		pt, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		if c, ok := rtpmaps[pt]; ok {
			out = append(out, c)
		}
	}
	return out
}

// splitLeadingPT splits an "fmtp"/"rtcp-fb" attribute value of the form
// "<pt> <rest>" into its payload type and remainder.
func splitLeadingPT(a sdp.Attribute) (pt int, rest string, ok bool) {
	if a.Key != "fmtp" && a.Key != "rtcp-fb" {
		return 0, "", false
	}
	fields := strings.SplitN(a.Value, " ", 2)
	n, err := strconv.Atoi(fields[0])
	if err != nil || len(fields) != 2 {
		return 0, "", false
	}
	return n, fields[1], true
}

func newSessionSkeleton(sessionID string, sessionVersion uint64) sdp.Session {
	return sdp.Session{
		Version: 0,
		Origin: sdp.Origin{
			Username:       sdpUsername,
			SessionId:      sessionID,
			SessionVersion: sessionVersion,
			NetworkType:    "IN",
			AddressType:    "IP4",
			Address:        "127.0.0.1",
		},
		Name: "-",
		Time: []sdp.Time{{}},
	}
}

func buildMediaLine(desc MediaDescription, setup string) sdp.Media {
	formats := make([]string, len(desc.Codecs))
	for i, c := range desc.Codecs {
		formats[i] = strconv.Itoa(int(c.PayloadType))
	}

	m := sdp.Media{
		Type:  desc.Kind,
		Port:  9,
		Proto: "UDP/TLS/RTP/SAVPF",
		Format: formats,
		Connection: &sdp.Connection{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     "0.0.0.0",
		},
	}
	m.Attributes = append(m.Attributes,
		sdp.Attribute{Key: "mid", Value: desc.MID},
		sdp.Attribute{Key: "rtcp", Value: "9 IN IP4 0.0.0.0"},
		sdp.Attribute{Key: "ice-ufrag", Value: desc.ICEUfrag},
		sdp.Attribute{Key: "ice-pwd", Value: desc.ICEPwd},
		sdp.Attribute{Key: "ice-options", Value: "trickle"},
		sdp.Attribute{Key: "fingerprint", Value: desc.Fingerprint},
		sdp.Attribute{Key: "setup", Value: setup},
		sdp.Attribute{Key: desc.Direction},
		sdp.Attribute{Key: "rtcp-mux"},
		sdp.Attribute{Key: "rtcp-rsize"},
		sdp.Attribute{Key: "extmap", Value: fmt.Sprintf("%d %s", MIDExtensionID, "urn:ietf:params:rtp-hdrext:sdes:mid")},
		sdp.Attribute{Key: "extmap", Value: fmt.Sprintf("%d %s", RIDExtensionID, "urn:ietf:params:rtp-hdrext:sdes:rtp-stream-id")},
	)
	for _, c := range desc.Codecs {
		m.Attributes = append(m.Attributes, sdp.Attribute{Key: "rtpmap", Value: c.rtpmap()})
		if c.FormatParams != "" {
			m.Attributes = append(m.Attributes, sdp.Attribute{Key: "fmtp", Value: fmt.Sprintf("%d %s", c.PayloadType, c.FormatParams)})
		}
		for _, fb := range c.Feedback {
			m.Attributes = append(m.Attributes, sdp.Attribute{Key: "rtcp-fb", Value: fmt.Sprintf("%d %s", c.PayloadType, fb)})
		}
	}
	if desc.SSRC != 0 {
		m.Attributes = append(m.Attributes,
			sdp.Attribute{Key: "ssrc", Value: fmt.Sprintf("%d cname:%s", desc.SSRC, desc.Cname)},
		)
		if desc.MsID != "" {
			m.Attributes = append(m.Attributes, sdp.Attribute{Key: "ssrc", Value: fmt.Sprintf("%d msid:%s %s", desc.SSRC, desc.MsID, desc.TrackID)})
		}
	}
	return m
}
