package dtls

import (
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/webrtc/internal/logging"
	"github.com/lanikai/webrtc/internal/replay"
)

// Role is which side of the handshake a Connection plays.
type Role int

const (
	Client Role = iota
	Server
)

// Signer produces a CertificateVerify signature over a transcript hash.
// Verifying the peer's signature is a Non-goal here: WebRTC endpoints
// authenticate by comparing the peer certificate's fingerprint (carried in
// SDP) against what arrives in the Certificate message, not by validating a
// certificate chain. A nil Signer means this side will not present a
// CertificateVerify message (anonymous ECDHE).
type Signer interface {
	Sign(transcriptHash []byte) ([]byte, error)
}

// Config configures a Connection's handshake. The zero value is not usable;
// use NewClient/NewServer which apply sensible defaults.
type Config struct {
	CipherSuite  CipherSuite // suite to negotiate; defaults to AEAD AES-128-GCM
	KeyAgreement KeyAgreement
	SRTPProfiles []uint16 // offered/selected use_srtp protection profiles

	// CertificateDER, if set, is sent as this side's Certificate message.
	CertificateDER []byte
	Signer         Signer

	// ReplayWindowSize overrides the per-epoch anti-replay sliding-window
	// width (replay_protection_window). Zero selects replay.DefaultWindowSize.
	ReplayWindowSize uint64

	Logger *logging.Logger
}

func (c *Config) replayWindowSize() uint64 {
	if c.ReplayWindowSize != 0 {
		return c.ReplayWindowSize
	}
	return replay.DefaultWindowSize
}

func (c *Config) logger() *logging.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.DefaultLogger.WithTag("dtls")
}

// deferredRecord is an out-of-order record buffered because it arrived for
// an epoch whose cipher isn't initialized yet (e.g. a peer's Finished
// racing ahead of our own epoch bump). Bounded per the §9 resolution that a
// connection buffers at most maxDeferredRecords such records before
// dropping the oldest.
type deferredRecord struct {
	header  RecordHeader
	payload []byte
}

const maxDeferredRecords = 128

// Connection is the sans-I/O DTLS 1.2 connection: handshake flight driver,
// record layer, epoch/replay state, and post-handshake application-data
// queues. It owns no socket; the caller pumps datagrams through HandleRecord
// and drains PollTransmit, exactly as the peer connection driver's top-level
// five verbs do for the whole engine (§4.F, §4.N).
type Connection struct {
	role Role
	cfg  *Config
	log  *logging.Logger

	currentFlight FlightNumber
	flightState   FlightState
	retransmitN   int
	nextDeadline  time.Time
	outboundQueue [][]byte // datagrams built for the current flight, replayed verbatim on retransmit

	handshakeDone bool
	closed        bool

	cache     *HandshakeCache
	fragments *FragmentBuffer

	nextOutMessageSeq uint16

	writeEpoch uint16
	readEpoch  uint16
	writeSeq   map[uint16]uint64
	replayWnd  map[uint16]*replay.Window
	writeCiph  map[uint16]CipherSuite
	readCiph   map[uint16]CipherSuite
	pendingSuite CipherSuite

	cookie []byte

	clientRandom []byte
	serverRandom []byte
	negotiatedSRTPProfile uint16
	peerPublicKey []byte
	peerCertDER   []byte
	masterSecret  []byte

	deferred []deferredRecord

	outbox      [][]byte
	appDataIn   [][]byte
	pendingErr  error
}

func newConnection(role Role, cfg *Config) *Connection {
	if cfg.CipherSuite == nil {
		cfg.CipherSuite = NewAEADCipherSuite128GCM()
	}
	c := &Connection{
		role:       role,
		cfg:        cfg,
		log:        cfg.logger(),
		cache:      NewHandshakeCache(),
		fragments:  NewFragmentBuffer(),
		writeSeq:   map[uint16]uint64{0: 0},
		replayWnd:  map[uint16]*replay.Window{0: replay.NewWindow(cfg.replayWindowSize())},
		writeCiph:  map[uint16]CipherSuite{0: nullCipherSuite{}},
		readCiph:   map[uint16]CipherSuite{0: nullCipherSuite{}},
		pendingSuite: cfg.CipherSuite,
	}
	return c
}

// NewClient creates a Connection that will initiate the handshake by
// sending Flight1 when Start is called.
func NewClient(cfg *Config) (*Connection, error) {
	if cfg.KeyAgreement == nil {
		kx, err := NewX25519KeyAgreement()
		if err != nil {
			return nil, err
		}
		cfg.KeyAgreement = kx
	}
	return newConnection(Client, cfg), nil
}

// NewServer creates a Connection that will wait for the client's Flight1
// before acting.
func NewServer(cfg *Config) (*Connection, error) {
	if cfg.KeyAgreement == nil {
		kx, err := NewX25519KeyAgreement()
		if err != nil {
			return nil, err
		}
		cfg.KeyAgreement = kx
	}
	return newConnection(Server, cfg), nil
}

// Start begins the handshake. For a client this sends Flight1; a server
// does nothing here and waits for the client's first datagram.
func (c *Connection) Start(now time.Time) error {
	if c.role != Client {
		return nil
	}
	c.clientRandom = newRandomBytes()
	ch := NewClientHello([]uint16{c.cfg.CipherSuite.ID()}, c.cfg.SRTPProfiles)
	ch.Random = randomFromBytes(c.clientRandom)
	return c.sendFlight(now, Flight1, []handshakeOut{{HandshakeTypeClientHello, ch.Marshal()}})
}

// IsHandshakeComplete reports whether Finished has been exchanged both ways.
func (c *Connection) IsHandshakeComplete() bool { return c.handshakeDone }

// PeerCertificate returns the DER bytes of the certificate the peer
// presented, or nil if none was exchanged.
func (c *Connection) PeerCertificate() []byte { return c.peerCertDER }

// PeerCertificateFingerprint returns the SHA-256 fingerprint of the peer
// certificate in the SDP a=fingerprint format.
func (c *Connection) PeerCertificateFingerprint() string {
	if c.peerCertDER == nil {
		return ""
	}
	return fingerprint(c.peerCertDER)
}

// ExportKeyingMaterial derives SRTP session keys per RFC 5764, once the
// handshake has completed.
func (c *Connection) ExportKeyingMaterial(length int) ([]byte, error) {
	if !c.handshakeDone {
		return nil, errors.New("dtls: handshake not complete")
	}
	return ExportKeyingMaterial(c.masterSecret, c.clientRandom, c.serverRandom, length), nil
}

// NegotiatedSRTPProfile returns the use_srtp protection profile both sides
// agreed on.
func (c *Connection) NegotiatedSRTPProfile() uint16 { return c.negotiatedSRTPProfile }

// PollTransmit pops the next outbound datagram, if any.
func (c *Connection) PollTransmit() ([]byte, bool) {
	if len(c.outbox) == 0 {
		return nil, false
	}
	d := c.outbox[0]
	c.outbox = c.outbox[1:]
	return d, true
}

// Write queues application data for encryption and transmission under the
// current epoch.
func (c *Connection) Write(payload []byte) error {
	if !c.handshakeDone {
		return errors.New("dtls: cannot write application data before handshake completes")
	}
	return c.sendRecord(ContentTypeApplicationData, payload)
}

// Read pops the next decrypted application-data payload, if any.
func (c *Connection) Read() ([]byte, bool) {
	if len(c.appDataIn) == 0 {
		return nil, false
	}
	p := c.appDataIn[0]
	c.appDataIn = c.appDataIn[1:]
	return p, true
}

// Close sends a close_notify alert and marks the connection closed.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	alert := Alert{Level: AlertLevelWarning, Description: AlertCloseNotify}
	return c.sendRecord(ContentTypeAlert, alert.Marshal())
}

// NextTimeout reports when HandleTimeout should next be called to drive
// retransmission.
func (c *Connection) NextTimeout() (time.Time, bool) {
	if c.flightState != FlightWaiting || c.nextDeadline.IsZero() {
		return time.Time{}, false
	}
	return c.nextDeadline, true
}

// HandleTimeout retransmits the current flight's last datagrams if the
// retransmit deadline has passed.
func (c *Connection) HandleTimeout(now time.Time) error {
	if c.flightState != FlightWaiting || c.nextDeadline.IsZero() || now.Before(c.nextDeadline) {
		return nil
	}
	if c.retransmitN >= maxRetransmits {
		return errHandshakeTimeout
	}
	c.retransmitN++
	c.outbox = append(c.outbox, c.outboundQueue...)
	c.nextDeadline = now.Add(retransmitBackoff(c.retransmitN))
	c.log.Debug("retransmitting %s (attempt %d)", c.currentFlight, c.retransmitN)
	return nil
}

// handshakeOut is one handshake message queued for transmission within the
// current flight.
type handshakeOut struct {
	msgType HandshakeType
	body    []byte
}

// sendFlight transitions to Preparing->Sending for the given flight,
// marshals each message with fragment/record framing (single fragment per
// message; this engine does not split outbound messages across multiple
// DTLS fragments since none here exceed a conservative MTU), and arms the
// retransmit timer.
func (c *Connection) sendFlight(now time.Time, flight FlightNumber, messages []handshakeOut) error {
	c.currentFlight = flight
	c.flightState = FlightSending
	var datagram []byte
	for _, m := range messages {
		hdr := HandshakeHeader{
			MsgType:        m.msgType,
			Length:         uint32(len(m.body)),
			MessageSeq:     c.nextOutMessageSeq,
			FragmentOffset: 0,
			FragmentLength: uint32(len(m.body)),
		}
		c.nextOutMessageSeq++
		// HelloVerifyRequest and the ClientHello preceding it are excluded
		// from the transcript hash (RFC 6347 §4.2.1); every other message
		// contributes.
		if m.msgType != HandshakeTypeHelloVerifyRequest {
			if !(m.msgType == HandshakeTypeClientHello && flight == Flight1) {
				c.cache.Push(m.msgType, hdr.MessageSeq, m.body)
			}
		}
		plain := append(hdr.Marshal(), m.body...)
		rec, err := c.encryptRecord(ContentTypeHandshake, plain)
		if err != nil {
			return err
		}
		datagram = append(datagram, rec...)
	}
	c.outboundQueue = [][]byte{datagram}
	c.outbox = append(c.outbox, datagram)
	c.flightState = FlightWaiting
	c.retransmitN = 0
	c.nextDeadline = now.Add(retransmitBackoff(0))
	return nil
}

// sendRecord encrypts and queues a single non-handshake record (Alert,
// ChangeCipherSpec, ApplicationData) under the current write epoch.
func (c *Connection) sendRecord(ct ContentType, plain []byte) error {
	rec, err := c.encryptRecord(ct, plain)
	if err != nil {
		return err
	}
	c.outbox = append(c.outbox, rec)
	return nil
}

func (c *Connection) encryptRecord(ct ContentType, plain []byte) ([]byte, error) {
	seq := c.writeSeq[c.writeEpoch]
	next, err := nextSequenceNumber(seq)
	if err != nil {
		return nil, err
	}
	suite := c.writeCiph[c.writeEpoch]
	ciphertext, err := suite.Encrypt(c.writeEpoch, seq, ct, plain)
	if err != nil {
		return nil, errors.Wrap(err, "dtls: encrypt record")
	}
	c.writeSeq[c.writeEpoch] = next
	rec := Record{
		Header: RecordHeader{
			ContentType:    ct,
			Version:        DTLS1_2,
			Epoch:          c.writeEpoch,
			SequenceNumber: seq,
		},
		Payload: ciphertext,
	}
	return rec.Marshal(), nil
}

// bumpWriteEpoch activates the pending cipher suite for future outbound
// records and resets the per-epoch sequence counter.
func (c *Connection) bumpWriteEpoch() {
	c.writeEpoch++
	c.writeSeq[c.writeEpoch] = 0
	c.writeCiph[c.writeEpoch] = c.pendingSuite
}

// bumpReadEpoch activates the pending cipher suite for future inbound
// records.
func (c *Connection) bumpReadEpoch() {
	c.readEpoch++
	c.replayWnd[c.readEpoch] = replay.NewWindow(c.cfg.replayWindowSize())
	c.readCiph[c.readEpoch] = c.pendingSuite
}

// HandleRecord processes one inbound UDP datagram, which may contain
// multiple concatenated DTLS records.
func (c *Connection) HandleRecord(now time.Time, data []byte) error {
	records, _ := SplitRecords(data)
	for _, rec := range records {
		if err := c.handleOneRecord(now, rec); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connection) handleOneRecord(now time.Time, rec Record) error {
	wnd, ok := c.replayWnd[rec.Header.Epoch]
	if !ok {
		// Epoch not yet active on our side; buffer it, bounded.
		c.deferred = append(c.deferred, deferredRecord{header: rec.Header, payload: rec.Payload})
		if len(c.deferred) > maxDeferredRecords {
			c.deferred = c.deferred[1:]
		}
		return nil
	}
	if !wnd.Check(rec.Header.SequenceNumber) {
		return nil // replay or too-old; silently discard per §4.A
	}
	suite := c.readCiph[rec.Header.Epoch]
	plain, err := suite.Decrypt(rec.Header.Epoch, rec.Header.SequenceNumber, rec.Header.ContentType, rec.Payload)
	if err != nil {
		return nil // bad_record_mac: discard, do not tear down the connection
	}
	wnd.Accept(rec.Header.SequenceNumber)

	switch rec.Header.ContentType {
	case ContentTypeHandshake:
		if err := c.handleHandshakePlaintext(now, plain); err != nil {
			return err
		}
	case ContentTypeChangeCipherSpec:
		c.bumpReadEpoch()
		c.drainDeferred(now)
	case ContentTypeAlert:
		alert, err := UnmarshalAlert(plain)
		if err != nil {
			return nil
		}
		if alert.Level == AlertLevelFatal {
			return &AlertError{Alert: alert}
		}
		if alert.Description == AlertCloseNotify {
			c.closed = true
		}
	case ContentTypeApplicationData:
		c.appDataIn = append(c.appDataIn, plain)
	}
	return nil
}

// drainDeferred retries any records that were buffered while waiting for
// the epoch bump that just happened.
func (c *Connection) drainDeferred(now time.Time) {
	pending := c.deferred
	c.deferred = nil
	for _, d := range pending {
		_ = c.handleOneRecord(now, Record{Header: d.header, Payload: d.payload})
	}
}

// sendFinishFlight sends zero or more plain handshake messages followed by
// ChangeCipherSpec and Finished, bumping the write epoch in between exactly
// as RFC 6347 requires (Finished is the first message protected by the
// newly negotiated cipher suite). finishedLabel is "client finished" or
// "server finished" per RFC 5246 §7.4.9.
func (c *Connection) sendFinishFlight(now time.Time, flight FlightNumber, preMessages []handshakeOut, finishedLabel string) error {
	c.currentFlight = flight
	c.flightState = FlightSending
	var datagram []byte
	for _, m := range preMessages {
		hdr := HandshakeHeader{
			MsgType:        m.msgType,
			Length:         uint32(len(m.body)),
			MessageSeq:     c.nextOutMessageSeq,
			FragmentLength: uint32(len(m.body)),
		}
		c.nextOutMessageSeq++
		c.cache.Push(m.msgType, hdr.MessageSeq, m.body)
		plain := append(hdr.Marshal(), m.body...)
		rec, err := c.encryptRecord(ContentTypeHandshake, plain)
		if err != nil {
			return err
		}
		datagram = append(datagram, rec...)
	}

	ccsRec, err := c.encryptRecord(ContentTypeChangeCipherSpec, []byte{1})
	if err != nil {
		return err
	}
	datagram = append(datagram, ccsRec...)
	c.bumpWriteEpoch()

	sessionHash := c.cache.SessionHash()
	verifyData := prf(c.masterSecret, finishedLabel, sessionHash[:], 12)
	hdr := HandshakeHeader{
		MsgType:        HandshakeTypeFinished,
		Length:         uint32(len(verifyData)),
		MessageSeq:     c.nextOutMessageSeq,
		FragmentLength: uint32(len(verifyData)),
	}
	c.nextOutMessageSeq++
	c.cache.Push(HandshakeTypeFinished, hdr.MessageSeq, verifyData)
	plain := append(hdr.Marshal(), verifyData...)
	rec, err := c.encryptRecord(ContentTypeHandshake, plain)
	if err != nil {
		return err
	}
	datagram = append(datagram, rec...)

	c.outboundQueue = [][]byte{datagram}
	c.outbox = append(c.outbox, datagram)
	c.flightState = FlightWaiting
	c.retransmitN = 0
	c.nextDeadline = now.Add(retransmitBackoff(0))
	return nil
}

// verifyFinished checks a received Finished message's verify_data against
// the transcript accumulated so far (not including this message), per
// RFC 5246 §7.4.9.
func (c *Connection) verifyFinished(label string, verifyData []byte) bool {
	sessionHash := c.cache.SessionHash()
	expected := prf(c.masterSecret, label, sessionHash[:], 12)
	if len(expected) != len(verifyData) {
		return false
	}
	for i := range expected {
		if expected[i] != verifyData[i] {
			return false
		}
	}
	return true
}

// handleHandshakePlaintext reassembles and dispatches one decrypted
// handshake record's worth of fragment(s).
func (c *Connection) handleHandshakePlaintext(now time.Time, plain []byte) error {
	for len(plain) >= handshakeHeaderLength {
		hdr, err := UnmarshalHandshakeHeader(plain)
		if err != nil {
			return nil
		}
		end := handshakeHeaderLength + int(hdr.FragmentLength)
		if end > len(plain) {
			return nil
		}
		fragment := plain[handshakeHeaderLength:end]
		plain = plain[end:]

		body, complete := c.fragments.Push(hdr, fragment)
		if !complete {
			continue
		}
		if err := c.dispatchHandshakeMessage(now, hdr.MsgType, hdr.MessageSeq, body); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connection) dispatchHandshakeMessage(now time.Time, msgType HandshakeType, msgSeq uint16, body []byte) error {
	// Received messages join the transcript in arrival order. ClientHello
	// (whose cookie-less first copy is excluded) and Finished (added only
	// after verification) are pushed by the role handlers; HelloVerifyRequest
	// never contributes (RFC 6347 §4.2.1).
	switch msgType {
	case HandshakeTypeClientHello, HandshakeTypeFinished, HandshakeTypeHelloVerifyRequest:
	default:
		c.cache.Push(msgType, msgSeq, body)
	}
	if c.role == Client {
		return c.clientHandle(now, msgType, msgSeq, body)
	}
	return c.serverHandle(now, msgType, msgSeq, body)
}

func newRandomBytes() []byte {
	r := newRandom()
	out := make([]byte, 32)
	out[0] = byte(r.unixTime >> 24)
	out[1] = byte(r.unixTime >> 16)
	out[2] = byte(r.unixTime >> 8)
	out[3] = byte(r.unixTime)
	copy(out[4:], r.bytes[:])
	return out
}

func randomFromBytes(b []byte) random {
	var r random
	r.unixTime = uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	copy(r.bytes[:], b[4:32])
	return r
}
