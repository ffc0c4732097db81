// Copyright (c) 2019 Lanikai Labs. All rights reserved.

package webrtc

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"time"

	"github.com/lanikai/webrtc/internal/classify"
	"github.com/lanikai/webrtc/internal/dtls"
	"github.com/lanikai/webrtc/internal/ice"
	"github.com/lanikai/webrtc/internal/interceptor"
	"github.com/lanikai/webrtc/internal/rtcp"
	"github.com/lanikai/webrtc/internal/rtp"
	"github.com/lanikai/webrtc/internal/sdp"
	"github.com/lanikai/webrtc/internal/signaling"
	"github.com/lanikai/webrtc/internal/srtp"
)

// defaultSRTPProfile is the sole use_srtp protection profile this engine
// offers: AEAD AES-128-GCM (RFC 7714), the modern default every other
// legacy CM/HMAC profile in the registry exists only to fall back to.
const defaultSRTPProfile = srtp.ProfileAEADAES128GCM

// outboundDatagram is one (destination, bytes) pair waiting in the strict
// FIFO output queue poll_write drains (§5: "the output queue is strict
// FIFO; nothing reorders once queued").
type outboundDatagram struct {
	dest *net.UDPAddr
	data []byte
}

// inboundMedia is one decrypted RTP packet attributed to a receiver,
// waiting in the queue poll_read drains.
type inboundMedia struct {
	receiverID int
	packet     rtp.Packet
}

// PeerConnection is the engine's single public surface: a sans-I/O state
// object exposing exactly the five verbs of §4.N (HandleRead, PollWrite,
// HandleTimeout, PollTimeout, PollEvent/PollRead). It owns an ICE agent, a
// DTLS connection, the post-handshake SRTP contexts, the RTP/RTCP
// interceptor chain, and the signaling state machine -- everything beneath
// it exclusively, save for the immutable Configuration and MediaEngine it
// was built from (§5's shared-value-object exception).
//
// Every verb is driven by a host-supplied `now`; nothing here starts a
// goroutine, a timer, or touches a socket.
type PeerConnection struct {
	cfg    Configuration
	engine *MediaEngine

	isOfferer bool
	sessionID string
	sessVer   uint64

	certDER     []byte
	signer      *dtls.ECDSASigner
	fingerprint string

	localUfrag, localPassword   string
	remoteUfrag, remotePassword string
	remoteFingerprint           string

	localSession  sdp.Session
	remoteSession sdp.Session

	iceAgent    *ice.Agent
	iceStarted  bool
	iceSelected *net.UDPAddr

	dtlsConn    *dtls.Connection
	dtlsRole    dtls.Role
	dtlsStarted bool

	localSRTP  *srtp.Context // outbound protect
	remoteSRTP *srtp.Context // inbound unprotect
	srtpReady  bool

	chain   *interceptor.Chain
	nackGen *interceptor.NackGenerator
	nackRsp *interceptor.NackResponder
	srGen   *interceptor.SenderReportGenerator
	rrGen   *interceptor.ReceiverReportGenerator

	sigMachine *signaling.Machine
	midAlloc   *signaling.MIDAllocator

	localAnswerSetup string // this side's proposed/chosen a=setup

	transceivers []*Transceiver
	senders      []*Sender
	receivers    []*Receiver
	ssrcToRecv   map[uint32]int // ssrc -> index into receivers
	ridToRecv    map[string]int // mid+"|"+rid -> index into receivers

	state    PeerConnectionState
	iceState ICEConnectionState

	outbox   []outboundDatagram
	events   []Event
	inboxRTP []inboundMedia

	closed bool
}

// NewPeerConnection validates cfg, generates a fresh self-signed DTLS
// certificate, and returns a PeerConnection in the "new" state. isOfferer
// decides which side initiates: the offerer proposes ICE-controlling and an
// SDP a=setup:actpass; the answerer is ICE-controlled and picks the DTLS
// role per cfg.AnsweringDTLSRole.
func NewPeerConnection(cfg Configuration, engine *MediaEngine, isOfferer bool) (*PeerConnection, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		engine = DefaultMediaEngine()
	}

	certDER, priv, err := dtls.GenerateSelfSigned()
	if err != nil {
		return nil, newError(KindConfiguration, "NewPeerConnection", err)
	}

	localUfrag, err := randomICECredential(4)
	if err != nil {
		return nil, newError(KindConfiguration, "NewPeerConnection", err)
	}
	localPassword, err := randomICECredential(22)
	if err != nil {
		return nil, newError(KindConfiguration, "NewPeerConnection", err)
	}

	iceRole := ice.Controlled
	setup := "passive"
	if isOfferer {
		iceRole = ice.Controlling
		setup = "actpass"
	} else if cfg.AnsweringDTLSRole == DTLSRoleServer {
		setup = "passive"
	} else {
		setup = "active"
	}

	pc := &PeerConnection{
		cfg:              cfg,
		engine:           engine,
		isOfferer:        isOfferer,
		sessionID:        randomSessionID(),
		certDER:          certDER,
		signer:           &dtls.ECDSASigner{PrivateKey: priv},
		fingerprint:      dtls.Fingerprint(certDER),
		localUfrag:       localUfrag,
		localPassword:    localPassword,
		localAnswerSetup: setup,
		sigMachine:       signaling.NewMachine(),
		midAlloc:         signaling.NewMIDAllocator(),
		ssrcToRecv:       make(map[uint32]int),
		ridToRecv:        make(map[string]int),
		state:            PeerConnectionNew,
		iceState:         ICEConnectionNew,
	}

	pc.iceAgent = ice.NewAgent("bundle", iceRole, localUfrag, localPassword)

	pc.nackGen = interceptor.NewNackGenerator(0, time.Time{})
	pc.nackGen.SetSkipLastN(cfg.NACKSkipLastN)
	nackRsp, err := interceptor.NewNackResponderWithBufferSize(cfg.NACKBufferSize)
	if err != nil {
		return nil, newError(KindConfiguration, "NewPeerConnection", err)
	}
	pc.nackRsp = nackRsp
	pc.srGen = interceptor.NewSenderReportGenerator(time.Time{})
	pc.srGen.SetPeriod(cfg.srInterval())
	pc.rrGen = interceptor.NewReceiverReportGenerator(0, time.Time{})
	pc.rrGen.SetPeriod(cfg.rrInterval())
	pc.chain = interceptor.NewChain(pc.nackGen, pc.nackRsp, pc.srGen, pc.rrGen)

	return pc, nil
}

func randomICECredential(minBytes int) (string, error) {
	buf := make([]byte, minBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func randomSessionID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%x", buf)
}

// AddLocalCandidate feeds one of this host's gathered local candidates into
// the bundled ICE agent and queues the corresponding ice-candidate event.
// Candidate gathering itself (opening sockets, querying STUN/TURN servers)
// is the host's job; this engine only reacts to what it's handed.
func (pc *PeerConnection) AddLocalCandidate(c ice.Candidate) {
	pc.iceAgent.AddLocalCandidate(c)
	pc.events = append(pc.events, Event{Kind: EventICECandidate, Candidate: c})
}

// AddRemoteCandidate feeds a trickled remote candidate into the bundled ICE
// agent.
func (pc *PeerConnection) AddRemoteCandidate(c ice.Candidate) {
	pc.iceAgent.AddRemoteCandidate(c)
}

// HandleRead is the driver's inbound verb: it classifies a single datagram
// from the network and routes it to whichever subsystem owns that wire
// protocol (§4.L), then lets every state machine downstream of that react.
func (pc *PeerConnection) HandleRead(now time.Time, data []byte, from *net.UDPAddr) error {
	if pc.closed {
		return ErrClosed
	}

	switch classify.Classify(data) {
	case classify.STUN:
		if err := pc.iceAgent.HandleRead(now, data, from); err != nil {
			// Malformed/unauthenticated STUN: a protocol framing error,
			// silently discarded per §7.
			break
		}
		pc.maybeStartDTLS(now)
	case classify.DTLS:
		if pc.dtlsStarted {
			if err := pc.dtlsConn.HandleRecord(now, data); err != nil {
				pc.failConnection(now)
			}
			pc.maybeDeriveSRTP()
			pc.drainDTLSAppData()
		}
	case classify.SRTP:
		pc.handleSRTP(now, data)
	case classify.SRTCP:
		pc.handleSRTCP(now, data)
	default:
		// TURN channel data and anything else unrecognized: discard.
	}

	pc.drainOutbound(now)
	pc.updateState(now)
	return nil
}

// maybeStartDTLS begins the DTLS handshake once the ICE checklist nominates
// a pair, if it hasn't already.
func (pc *PeerConnection) maybeStartDTLS(now time.Time) {
	if pc.dtlsStarted {
		return
	}
	pair, ok := pc.iceAgent.SelectedPair()
	if !ok {
		return
	}
	pc.iceSelected = pair.Remote.Addr()

	cfgDTLS := &dtls.Config{
		SRTPProfiles:     []uint16{uint16(defaultSRTPProfile)},
		CertificateDER:   pc.certDER,
		Signer:           pc.signer,
		ReplayWindowSize: pc.cfg.ReplayProtectionWindow,
	}

	var conn *dtls.Connection
	var err error
	if pc.dtlsRole == dtls.Client {
		conn, err = dtls.NewClient(cfgDTLS)
	} else {
		conn, err = dtls.NewServer(cfgDTLS)
	}
	if err != nil {
		pc.failConnection(now)
		return
	}
	pc.dtlsConn = conn
	pc.dtlsStarted = true
	if err := pc.dtlsConn.Start(now); err != nil {
		pc.failConnection(now)
	}
}

func (pc *PeerConnection) maybeDeriveSRTP() {
	if pc.srtpReady || !pc.dtlsConn.IsHandshakeComplete() {
		return
	}
	if pc.remoteFingerprint != "" && !dtls.FingerprintsMatch(pc.dtlsConn.PeerCertificate(), pc.remoteFingerprint) {
		// Handshake violation: the certificate presented doesn't match what
		// the signed SDP promised. Fatal, never silently accepted (§7).
		pc.setPeerState(PeerConnectionFailed)
		return
	}
	profile := srtp.Profile(pc.dtlsConn.NegotiatedSRTPProfile())
	if profile == 0 {
		profile = defaultSRTPProfile
	}
	material, err := pc.dtlsConn.ExportKeyingMaterial(2*profile.KeyLength() + 2*profile.SaltLength())
	if err != nil {
		return
	}
	// RFC 5764 §4.2: the exported material packs
	// client_write_key/server_write_key/client_write_salt/server_write_salt
	// in that fixed order; ExtractKeys picks out this side's "local" (write)
	// and "remote" (read) pair according to which DTLS role it played.
	localKey, localSalt, remoteKey, remoteSalt, err := srtp.ExtractKeys(profile, material, pc.dtlsRole == dtls.Client)
	if err != nil {
		return
	}
	local, err := srtp.NewContext(profile, localKey, localSalt)
	if err != nil {
		return
	}
	remote, err := srtp.NewContext(profile, remoteKey, remoteSalt)
	if err != nil {
		return
	}
	pc.localSRTP = local
	pc.remoteSRTP = remote
	pc.srtpReady = true
}

// drainDTLSAppData discards any post-handshake DTLS application data. The
// SCTP association carried over it (data channels) is a Non-goal; bytes
// that do arrive here are drained so the connection's internal queues don't
// grow unbounded, never surfaced as an event.
func (pc *PeerConnection) drainDTLSAppData() {
	for {
		if _, ok := pc.dtlsConn.Read(); !ok {
			return
		}
	}
}

func (pc *PeerConnection) handleSRTP(now time.Time, data []byte) {
	if !pc.srtpReady {
		return
	}
	plain, err := pc.remoteSRTP.UnprotectRTP(data)
	if err != nil {
		// Cryptographic failure: drop the packet, never fatal alone (§7).
		return
	}
	pkt, err := rtp.Unmarshal(plain)
	if err != nil {
		return
	}
	pc.chain.ReadRTP(&pkt, now)

	recvIdx := pc.resolveReceiver(pkt)
	if recvIdx < 0 {
		return
	}
	pc.inboxRTP = append(pc.inboxRTP, inboundMedia{receiverID: pc.receivers[recvIdx].id, packet: pkt})
}

func (pc *PeerConnection) handleSRTCP(now time.Time, data []byte) {
	if !pc.srtpReady {
		return
	}
	plain, err := pc.remoteSRTP.UnprotectRTCP(data)
	if err != nil {
		return
	}
	for len(plain) > 0 {
		pkt, hdr, err := rtcp.Unmarshal(plain)
		if err != nil {
			return
		}
		pc.chain.ReadRTCP(pkt, now)
		advance := 4 * (int(hdr.Length) + 1)
		if advance <= 0 || advance > len(plain) {
			return
		}
		plain = plain[advance:]
	}
}

// resolveReceiver attributes an inbound RTP packet to a receiver by RID
// (simulcast demux, §8 S4) when the stream's mid carries one, falling back
// to plain SSRC attribution, opening the receiver (and queuing a
// track-open event) on first sight.
func (pc *PeerConnection) resolveReceiver(pkt rtp.Packet) int {
	if idx, ok := pc.ssrcToRecv[pkt.Header.SSRC]; ok {
		return idx
	}

	var mid, rid string
	if v, ok := pkt.Header.Extension(signaling.MIDExtensionID); ok {
		mid = string(v)
	}
	if v, ok := pkt.Header.Extension(signaling.RIDExtensionID); ok {
		rid = string(v)
	}

	if rid != "" {
		key := mid + "|" + rid
		if idx, ok := pc.ridToRecv[key]; ok {
			pc.ssrcToRecv[pkt.Header.SSRC] = idx
			pc.openReceiver(idx, pkt.Header.SSRC)
			return idx
		}
	}

	for i, r := range pc.receivers {
		if r.rid == "" && r.ssrc == 0 {
			pc.ssrcToRecv[pkt.Header.SSRC] = i
			pc.openReceiver(i, pkt.Header.SSRC)
			return i
		}
	}
	return -1
}

func (pc *PeerConnection) openReceiver(idx int, ssrc uint32) {
	r := pc.receivers[idx]
	r.ssrc = ssrc
	if !r.opened {
		r.opened = true
		pc.events = append(pc.events, Event{Kind: EventTrackOpen, TransceiverID: r.transceiverID, ReceiverID: r.id, RID: r.rid})
	}
}

// failConnection transitions the connection to the terminal failed state
// following a DTLS handshake violation (§7 Handshake violation kind).
func (pc *PeerConnection) failConnection(now time.Time) {
	pc.setPeerState(PeerConnectionFailed)
}

// PollWrite drains the strict-FIFO outbound datagram queue: one
// (destination, bytes) pair per call, matching the order its contents were
// produced in (§5).
func (pc *PeerConnection) PollWrite() (*net.UDPAddr, []byte, bool) {
	if len(pc.outbox) == 0 {
		return nil, nil, false
	}
	d := pc.outbox[0]
	pc.outbox = pc.outbox[1:]
	return d.dest, d.data, true
}

// drainOutbound pulls every datagram currently available from the ICE
// agent, the DTLS connection, and protected outbound RTCP/retransmissions,
// appending them to the FIFO queue in that order.
func (pc *PeerConnection) drainOutbound(now time.Time) {
	for {
		dest, data, ok := pc.iceAgent.PollWrite()
		if !ok {
			break
		}
		pc.outbox = append(pc.outbox, outboundDatagram{dest, data})
	}

	if pc.dtlsStarted {
		for {
			data, ok := pc.dtlsConn.PollTransmit()
			if !ok {
				break
			}
			pc.outbox = append(pc.outbox, outboundDatagram{pc.iceSelected, data})
		}
	}

	if pc.srtpReady {
		for {
			pkt, ok := pc.chain.PollRTP()
			if !ok {
				break
			}
			pc.protectAndQueue(*pkt)
		}
		for {
			pkt, ok := pc.chain.PollRTCP()
			if !ok {
				break
			}
			raw, err := pkt.Marshal()
			if err != nil {
				continue
			}
			protected, err := pc.localSRTP.ProtectRTCP(raw)
			if err != nil {
				continue
			}
			pc.outbox = append(pc.outbox, outboundDatagram{pc.iceSelected, protected})
		}
	}
}

func (pc *PeerConnection) protectAndQueue(pkt rtp.Packet) {
	raw, err := pkt.Marshal()
	if err != nil {
		return
	}
	protected, err := pc.localSRTP.ProtectRTP(raw)
	if err != nil {
		return
	}
	pc.outbox = append(pc.outbox, outboundDatagram{pc.iceSelected, protected})
}

// HandleTimeout is the driver's time-advance verb: every owned state
// machine gets a chance to retransmit or expire, in the order their own
// internal deadlines don't actually depend on (ICE, then DTLS, then the
// interceptor chain), before the resulting output is drained.
func (pc *PeerConnection) HandleTimeout(now time.Time) {
	if pc.closed {
		return
	}
	pc.iceAgent.HandleTimeout(now)
	pc.maybeStartDTLS(now)
	if pc.dtlsStarted {
		if err := pc.dtlsConn.HandleTimeout(now); err != nil {
			pc.failConnection(now)
		}
		pc.maybeDeriveSRTP()
	}
	if pc.srtpReady {
		pc.chain.HandleTimeout(now)
	}
	pc.drainOutbound(now)
	pc.updateState(now)
}

// PollTimeout returns the earliest time at which HandleTimeout must next be
// called: a monotonic lower bound across every owned subsystem's own next
// deadline (§5: "not a promise of a firing time, only a lower bound").
func (pc *PeerConnection) PollTimeout() (time.Time, bool) {
	var (
		best  time.Time
		found bool
	)
	consider := func(t time.Time, ok bool) {
		if !ok {
			return
		}
		if !found || t.Before(best) {
			best, found = t, true
		}
	}

	consider(pc.iceAgent.PollTimeout())
	if pc.dtlsStarted {
		consider(pc.dtlsConn.NextTimeout())
	}
	if pc.srtpReady {
		consider(pc.chain.NextTimeout())
	}
	return best, found
}

// PollEvent drains one externally-visible state change at a time, in FIFO
// order (§6's event list; §7: "state changes visible outside the component
// become events on the poll_event stream").
func (pc *PeerConnection) PollEvent() (Event, bool) {
	if len(pc.events) == 0 {
		return Event{}, false
	}
	e := pc.events[0]
	pc.events = pc.events[1:]
	return e, true
}

// PollRead drains one decoded, decrypted inbound RTP packet at a time,
// tagged with the receiver it was attributed to.
func (pc *PeerConnection) PollRead() (receiverID int, pkt rtp.Packet, ok bool) {
	if len(pc.inboxRTP) == 0 {
		return 0, rtp.Packet{}, false
	}
	m := pc.inboxRTP[0]
	pc.inboxRTP = pc.inboxRTP[1:]
	return m.receiverID, m.packet, true
}

// updateState recomputes ICE and peer-connection state from the owned
// subsystems and queues change events for anything that moved, per the W3C
// rule captured in events.go: connected iff both ICE and DTLS are
// connected, failed if either failed, closed only when explicit.
func (pc *PeerConnection) updateState(now time.Time) {
	newICE := iceConnectionStateFrom(pc.iceAgent.State(), pc.iceStarted || pc.dtlsStarted)
	if newICE != pc.iceState {
		pc.iceState = newICE
		pc.events = append(pc.events, Event{Kind: EventICEConnectionStateChange, ICEState: newICE})
	}

	if pc.state == PeerConnectionClosed || pc.state == PeerConnectionFailed {
		return
	}

	next := PeerConnectionNew
	switch {
	case newICE == ICEConnectionFailed:
		next = PeerConnectionFailed
	case newICE == ICEConnectionConnected && pc.srtpReady:
		next = PeerConnectionConnected
	case newICE == ICEConnectionChecking || pc.dtlsStarted:
		next = PeerConnectionConnecting
	}
	pc.setPeerState(next)
}

func (pc *PeerConnection) setPeerState(next PeerConnectionState) {
	if next == pc.state {
		return
	}
	pc.state = next
	pc.events = append(pc.events, Event{Kind: EventPeerConnectionStateChange, PeerState: next})
}

// State returns the last computed peer connection state.
func (pc *PeerConnection) State() PeerConnectionState { return pc.state }

// Close transitions to the closed state per §7's Transport closure kind:
// afterwards HandleRead and SendRTP return ErrClosed and HandleTimeout
// returns without doing anything. It emits the terminal events exactly
// once.
func (pc *PeerConnection) Close() error {
	if pc.closed {
		return nil
	}
	pc.closed = true
	if pc.dtlsStarted {
		_ = pc.dtlsConn.Close()
	}
	pc.setPeerState(PeerConnectionClosed)
	pc.sigMachine.Close()
	pc.events = append(pc.events, Event{Kind: EventSignalingStateChange, SignalingState: signaling.StateClosed})
	return nil
}
