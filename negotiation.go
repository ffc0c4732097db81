// Copyright (c) 2019 Lanikai Labs. All rights reserved.

package webrtc

import (
	"math/rand"
	"strconv"

	"github.com/pkg/errors"

	"github.com/lanikai/webrtc/internal/dtls"
	"github.com/lanikai/webrtc/internal/rtp"
	"github.com/lanikai/webrtc/internal/sdp"
	"github.com/lanikai/webrtc/internal/signaling"
)

// midBucket is the single MIDAllocator bucket this driver uses for every
// media kind: mid values must be unique across the whole BUNDLE group
// (RFC 8843), not just within one kind, so audio and video share one
// counter rather than each restarting from 0.
const midBucket = "mid"

// AddTransceiver registers a new transceiver with a freshly allocated
// sender/receiver pair under the given media kind and direction. The
// transceiver's MID is assigned lazily, the first time it appears in a
// CreateOffer, so a transceiver added after an initial negotiation doesn't
// collide with MIDs already carried over. CreateAnswer assigns no MIDs; a
// transceiver that SetRemoteDescription creates takes the offer's mid.
func (pc *PeerConnection) AddTransceiver(kind CodecKind, direction Direction) *Transceiver {
	tID := len(pc.transceivers)
	sID := len(pc.senders)
	rID := len(pc.receivers)

	t := &Transceiver{id: tID, kind: kind, direction: direction, senderID: sID, receiverID: rID}
	pc.transceivers = append(pc.transceivers, t)

	ssrc := randomSSRC()
	var pt uint8
	if codecs := pc.engine.Codecs(kind); len(codecs) > 0 {
		pt = codecs[0].PayloadType
	}
	pc.senders = append(pc.senders, &Sender{
		id: sID, transceiverID: tID,
		ssrc: ssrc, payloadType: pt,
		packetizer: rtp.NewPacketizer(ssrc, pt),
	})
	pc.receivers = append(pc.receivers, &Receiver{id: rID, transceiverID: tID})

	return t
}

func randomSSRC() uint32 {
	v := rand.Uint32()
	if v == 0 {
		v = 1
	}
	return v
}

func (pc *PeerConnection) ensureMID(t *Transceiver) string {
	if t.mid == "" {
		t.mid = strconv.Itoa(pc.midAlloc.Allocate(midBucket))
	}
	return t.mid
}

// AddSimulcastReceiver registers an additional Receiver under an existing
// transceiver for one RFC 8851 simulcast RID, so inbound RTP carrying that
// mid+rid combination (via the MID/RID header extensions) demultiplexes to
// its own receiver instead of falling back to the transceiver's plain
// receiver (§8 S4). Must be called after the transceiver's mid is known
// (typically once SetRemoteDescription has applied the offer naming it).
func (pc *PeerConnection) AddSimulcastReceiver(transceiverID int, rid string) (*Receiver, error) {
	if transceiverID < 0 || transceiverID >= len(pc.transceivers) {
		return nil, newError(KindConfiguration, "AddSimulcastReceiver", errors.Errorf("no such transceiver %d", transceiverID))
	}
	t := pc.transceivers[transceiverID]
	rID := len(pc.receivers)
	r := &Receiver{id: rID, transceiverID: t.id, rid: rid}
	pc.receivers = append(pc.receivers, r)
	pc.ridToRecv[t.mid+"|"+rid] = rID
	return r, nil
}

func (pc *PeerConnection) transceiverByMID(mid string) *Transceiver {
	for _, t := range pc.transceivers {
		if t.mid == mid {
			return t
		}
	}
	return nil
}

func toCodecOffers(cs []CodecParams) []signaling.CodecOffer {
	out := make([]signaling.CodecOffer, len(cs))
	for i, c := range cs {
		out[i] = signaling.CodecOffer{
			PayloadType:  c.PayloadType,
			Name:         c.Name,
			ClockRate:    c.ClockRate,
			Channels:     c.Channels,
			FormatParams: c.FormatParams,
			Feedback:     c.Feedback,
		}
	}
	return out
}

// CreateOffer builds an SDP offer naming one m-line per registered
// transceiver, in the order they were added, advertising this engine's full
// codec set for each. It does not mutate signaling state; call
// SetLocalDescription to apply it.
func (pc *PeerConnection) CreateOffer() (string, error) {
	medias := make([]signaling.MediaDescription, len(pc.transceivers))
	for i, t := range pc.transceivers {
		mid := pc.ensureMID(t)
		s := pc.senders[t.senderID]
		medias[i] = signaling.MediaDescription{
			Kind:        string(t.kind),
			MID:         mid,
			Direction:   t.direction.String(),
			Codecs:      toCodecOffers(pc.engine.Codecs(t.kind)),
			ICEUfrag:    pc.localUfrag,
			ICEPwd:      pc.localPassword,
			Fingerprint: "sha-256 " + pc.fingerprint,
			Setup:       pc.localAnswerSetup,
			SSRC:        s.ssrc,
			Cname:       pc.sessionID,
			MsID:        pc.sessionID,
			TrackID:     mid,
		}
	}
	pc.sessVer++
	session := signaling.BuildOffer(pc.sessionID, pc.sessVer, medias)
	return session.String(), nil
}

// CreateAnswer matches the remote offer already set via SetRemoteDescription
// m-line by m-line against this engine's codecs, returning the assembled
// answer text. Requires the signaling machine to be in have-remote-offer.
func (pc *PeerConnection) CreateAnswer() (string, error) {
	if pc.sigMachine.State() != signaling.StateHaveRemoteOffer {
		return "", newError(KindSignalingViolation, "CreateAnswer", errors.Errorf("no remote offer pending (state %q)", pc.sigMachine.State()))
	}

	localByKind := map[string][]signaling.CodecOffer{
		"audio": toCodecOffers(pc.engine.Codecs(CodecKindAudio)),
		"video": toCodecOffers(pc.engine.Codecs(CodecKindVideo)),
	}
	pc.sessVer++
	answer, _, err := signaling.BuildAnswer(pc.remoteSession, pc.sessionID, pc.sessVer, localByKind, pc.localAnswerSetup, pc.localDescriptionFor)
	if err != nil {
		return "", newError(KindSignalingViolation, "CreateAnswer", err)
	}
	return answer.String(), nil
}

// localDescriptionFor supplies BuildAnswer with this side's per-m-line
// fields: the transceiver SetRemoteDescription already created for mid, or
// defaults if somehow absent.
func (pc *PeerConnection) localDescriptionFor(kind, mid string) signaling.MediaDescription {
	direction := DirectionSendRecv
	var ssrc uint32
	trackID := mid
	if t := pc.transceiverByMID(mid); t != nil {
		direction = t.direction
		ssrc = pc.senders[t.senderID].ssrc
	}
	return signaling.MediaDescription{
		Direction:   direction.String(),
		ICEUfrag:    pc.localUfrag,
		ICEPwd:      pc.localPassword,
		Fingerprint: "sha-256 " + pc.fingerprint,
		SSRC:        ssrc,
		Cname:       pc.sessionID,
		MsID:        pc.sessionID,
		TrackID:     trackID,
	}
}

// SetLocalDescription applies a locally generated offer/answer/pranswer to
// the signaling state machine (§7 Signaling state violation: a bad
// transition returns an error and leaves state untouched).
func (pc *PeerConnection) SetLocalDescription(sdpType signaling.SDPType, text string) error {
	session, err := sdp.ParseSession(text)
	if err != nil {
		return newError(KindProtocolFraming, "SetLocalDescription", err)
	}
	next, err := pc.sigMachine.Apply(signaling.OpSetLocal, sdpType)
	if err != nil {
		return newError(KindSignalingViolation, "SetLocalDescription", err)
	}
	pc.localSession = session
	pc.events = append(pc.events, Event{Kind: EventSignalingStateChange, SignalingState: next})
	if next == signaling.StateStable {
		pc.finalizeNegotiation()
	}
	return nil
}

// SetRemoteDescription applies a received offer/answer/pranswer. When sdpType
// is an offer, any m-line beyond what's already registered gets a matching
// sendrecv transceiver created automatically, mirroring how a browser
// surfaces ontrack for an offer it didn't initiate.
func (pc *PeerConnection) SetRemoteDescription(sdpType signaling.SDPType, text string) error {
	session, err := sdp.ParseSession(text)
	if err != nil {
		return newError(KindProtocolFraming, "SetRemoteDescription", err)
	}
	next, err := pc.sigMachine.Apply(signaling.OpSetRemote, sdpType)
	if err != nil {
		return newError(KindSignalingViolation, "SetRemoteDescription", err)
	}
	pc.remoteSession = session

	if sdpType == signaling.SDPTypeOffer {
		for i, m := range session.Media {
			if mid, ok := signaling.ParseMID(m.GetAttr("mid")); ok {
				pc.midAlloc.Reserve(midBucket, mid)
			}
			if i >= len(pc.transceivers) {
				t := pc.AddTransceiver(CodecKind(m.Type), DirectionSendRecv)
				t.mid = m.GetAttr("mid")
			}
		}
	}

	pc.events = append(pc.events, Event{Kind: EventSignalingStateChange, SignalingState: next})
	if next == signaling.StateStable {
		pc.finalizeNegotiation()
	}
	return nil
}

// Rollback aborts a pending local or remote offer, returning to stable
// (§4.M's rollback arc; S5 in §8).
func (pc *PeerConnection) Rollback() error {
	next, err := pc.sigMachine.Apply(signaling.OpRollback, signaling.SDPTypeOffer)
	if err != nil {
		return newError(KindSignalingViolation, "Rollback", err)
	}
	pc.events = append(pc.events, Event{Kind: EventSignalingStateChange, SignalingState: next})
	return nil
}

// finalizeNegotiation runs once the signaling machine reaches stable after
// an offer/answer round: it wires the negotiated ICE credentials into the
// bundled agent and resolves which side plays the DTLS client per RFC 5763
// §5 from whichever of the two descriptions carries a concrete
// active/passive a=setup (the offerer's own description, proposing
// actpass, never is -- the answer always is).
func (pc *PeerConnection) finalizeNegotiation() {
	if len(pc.remoteSession.Media) == 0 || len(pc.localSession.Media) == 0 {
		return
	}

	pc.remoteUfrag = pc.remoteSession.Media[0].GetAttr("ice-ufrag")
	pc.remotePassword = pc.remoteSession.Media[0].GetAttr("ice-pwd")
	pc.iceAgent.SetRemoteCredentials(pc.remoteUfrag, pc.remotePassword)
	pc.iceStarted = true

	if fp := pc.remoteSession.Media[0].GetAttr("fingerprint"); fp != "" {
		pc.remoteFingerprint = stripFingerprintAlgorithm(fp)
	}

	switch pc.localSession.Media[0].GetAttr("setup") {
	case "active":
		pc.dtlsRole = dtls.Client
	case "passive":
		pc.dtlsRole = dtls.Server
	default: // actpass: we're the offerer, defer to the answer's concrete choice
		if pc.remoteSession.Media[0].GetAttr("setup") == "active" {
			pc.dtlsRole = dtls.Server
		} else {
			pc.dtlsRole = dtls.Client
		}
	}
}

// stripFingerprintAlgorithm drops the leading "sha-256 " (or similar) token
// from an a=fingerprint attribute, leaving the bare colon-separated hex the
// dtls package compares against.
func stripFingerprintAlgorithm(attr string) string {
	for i := 0; i < len(attr); i++ {
		if attr[i] == ' ' {
			return attr[i+1:]
		}
	}
	return attr
}
