package dtls

import (
	"crypto/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/webrtc/internal/packet"
)

// HandshakeType identifies a handshake sub-message (RFC 6347 §4.3.2).
type HandshakeType uint8

const (
	HandshakeTypeHelloRequest       HandshakeType = 0
	HandshakeTypeClientHello        HandshakeType = 1
	HandshakeTypeServerHello        HandshakeType = 2
	HandshakeTypeHelloVerifyRequest HandshakeType = 3
	HandshakeTypeCertificate        HandshakeType = 11
	HandshakeTypeServerKeyExchange  HandshakeType = 12
	HandshakeTypeCertificateRequest HandshakeType = 13
	HandshakeTypeServerHelloDone    HandshakeType = 14
	HandshakeTypeCertificateVerify  HandshakeType = 15
	HandshakeTypeClientKeyExchange  HandshakeType = 16
	HandshakeTypeFinished           HandshakeType = 20
)

func (t HandshakeType) String() string {
	switch t {
	case HandshakeTypeHelloRequest:
		return "hello_request"
	case HandshakeTypeClientHello:
		return "client_hello"
	case HandshakeTypeServerHello:
		return "server_hello"
	case HandshakeTypeHelloVerifyRequest:
		return "hello_verify_request"
	case HandshakeTypeCertificate:
		return "certificate"
	case HandshakeTypeServerKeyExchange:
		return "server_key_exchange"
	case HandshakeTypeCertificateRequest:
		return "certificate_request"
	case HandshakeTypeServerHelloDone:
		return "server_hello_done"
	case HandshakeTypeCertificateVerify:
		return "certificate_verify"
	case HandshakeTypeClientKeyExchange:
		return "client_key_exchange"
	case HandshakeTypeFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// random is the 32-byte ClientHello/ServerHello random field: 4-byte unix
// time plus 28 bytes of entropy.
type random struct {
	unixTime uint32
	bytes    [28]byte
}

func newRandom() random {
	r := random{unixTime: uint32(time.Now().Unix())}
	if _, err := rand.Read(r.bytes[:]); err != nil {
		panic(err) // crypto/rand failing is unrecoverable
	}
	return r
}

func (r random) marshal(w *packet.Writer) {
	w.WriteUint32(r.unixTime)
	w.WriteSlice(r.bytes[:])
}

func unmarshalRandom(r *packet.Reader) random {
	var out random
	out.unixTime = r.ReadUint32()
	copy(out.bytes[:], r.ReadSlice(28))
	return out
}

// ClientHello is the first message of Flight1 (RFC 5246 §7.4.1.2, RFC 6347
// §4.2.1 cookie extension).
type ClientHello struct {
	Random             random
	SessionID          []byte
	Cookie             []byte
	CipherSuites       []uint16
	CompressionMethods []uint8
	UseSRTPProfiles    []uint16 // use_srtp extension (RFC 5764 §4.1.1)
}

// NewClientHello builds a ClientHello offering the given cipher suites and
// SRTP protection profiles.
func NewClientHello(cipherSuites []uint16, srtpProfiles []uint16) *ClientHello {
	return &ClientHello{
		Random:             newRandom(),
		CipherSuites:       cipherSuites,
		CompressionMethods: []uint8{0},
		UseSRTPProfiles:    srtpProfiles,
	}
}

func (h *ClientHello) Marshal() []byte {
	w := packet.NewWriterSize(64 + len(h.Cookie) + len(h.SessionID) + 2*len(h.CipherSuites) + 12 + 2*len(h.UseSRTPProfiles))
	w.WriteUint16(uint16(DTLS1_2))
	h.Random.marshal(w)
	w.WriteByte(byte(len(h.SessionID)))
	w.WriteSlice(h.SessionID)
	w.WriteByte(byte(len(h.Cookie)))
	w.WriteSlice(h.Cookie)
	w.WriteUint16(uint16(2 * len(h.CipherSuites)))
	for _, cs := range h.CipherSuites {
		w.WriteUint16(cs)
	}
	w.WriteByte(byte(len(h.CompressionMethods)))
	for _, cm := range h.CompressionMethods {
		w.WriteByte(cm)
	}
	// Extensions block: use_srtp only, enough to drive the SRTP profile
	// negotiation the peer connection relies on.
	if len(h.UseSRTPProfiles) > 0 {
		profileBytes := packet.NewWriterSize(2 + 2*len(h.UseSRTPProfiles) + 1)
		profileBytes.WriteUint16(uint16(2 * len(h.UseSRTPProfiles)))
		for _, p := range h.UseSRTPProfiles {
			profileBytes.WriteUint16(p)
		}
		profileBytes.WriteByte(0) // empty MKI
		ew := packet.NewWriterSize(4 + profileBytes.Length())
		ew.WriteUint16(extensionUseSRTP)
		ew.WriteUint16(uint16(profileBytes.Length()))
		ew.WriteSlice(profileBytes.Bytes())
		w.WriteUint16(uint16(ew.Length()))
		w.WriteSlice(ew.Bytes())
	} else {
		w.WriteUint16(0)
	}
	return w.Bytes()
}

func UnmarshalClientHello(data []byte) (*ClientHello, error) {
	if len(data) < 34 {
		return nil, errors.New("dtls: client_hello too short")
	}
	r := packet.NewReader(data)
	r.ReadUint16() // version
	h := &ClientHello{Random: unmarshalRandom(r)}
	sidLen := int(r.ReadByte())
	h.SessionID = r.ReadSlice(sidLen)
	cookieLen := int(r.ReadByte())
	h.Cookie = r.ReadSlice(cookieLen)
	csLen := int(r.ReadUint16()) / 2
	h.CipherSuites = make([]uint16, csLen)
	for i := range h.CipherSuites {
		h.CipherSuites[i] = r.ReadUint16()
	}
	cmLen := int(r.ReadByte())
	h.CompressionMethods = r.ReadSlice(cmLen)
	return h, nil
}

const extensionUseSRTP = 14

// HelloVerifyRequest carries the anti-DoS stateless cookie (RFC 6347 §4.2.1).
type HelloVerifyRequest struct {
	Cookie []byte
}

func (h *HelloVerifyRequest) Marshal() []byte {
	w := packet.NewWriterSize(3 + len(h.Cookie))
	w.WriteUint16(uint16(DTLS1_2))
	w.WriteByte(byte(len(h.Cookie)))
	w.WriteSlice(h.Cookie)
	return w.Bytes()
}

func UnmarshalHelloVerifyRequest(data []byte) (*HelloVerifyRequest, error) {
	if len(data) < 3 {
		return nil, errors.New("dtls: hello_verify_request too short")
	}
	r := packet.NewReader(data)
	r.ReadUint16()
	n := int(r.ReadByte())
	return &HelloVerifyRequest{Cookie: r.ReadSlice(n)}, nil
}

// ServerHello is the server's cipher suite and session parameter choice
// (RFC 5246 §7.4.1.3).
type ServerHello struct {
	Random            random
	SessionID         []byte
	CipherSuite       uint16
	CompressionMethod uint8
	UseSRTPProfile    uint16
}

func (h *ServerHello) Marshal() []byte {
	w := packet.NewWriterSize(49 + len(h.SessionID))
	w.WriteUint16(uint16(DTLS1_2))
	h.Random.marshal(w)
	w.WriteByte(byte(len(h.SessionID)))
	w.WriteSlice(h.SessionID)
	w.WriteUint16(h.CipherSuite)
	w.WriteByte(h.CompressionMethod)
	ew := packet.NewWriterSize(9)
	ew.WriteUint16(extensionUseSRTP)
	ew.WriteUint16(5)
	ew.WriteUint16(2) // protection profile list length: one profile
	ew.WriteUint16(h.UseSRTPProfile)
	ew.WriteByte(0)
	w.WriteUint16(uint16(ew.Length()))
	w.WriteSlice(ew.Bytes())
	return w.Bytes()
}

func UnmarshalServerHello(data []byte) (*ServerHello, error) {
	if len(data) < 35 {
		return nil, errors.New("dtls: server_hello too short")
	}
	r := packet.NewReader(data)
	r.ReadUint16()
	h := &ServerHello{Random: unmarshalRandom(r)}
	n := int(r.ReadByte())
	h.SessionID = r.ReadSlice(n)
	h.CipherSuite = r.ReadUint16()
	h.CompressionMethod = r.ReadByte()
	if r.Remaining() < 2 {
		return h, nil
	}
	extTotal := int(r.ReadUint16())
	extTotal = min(extTotal, r.Remaining())
	for extTotal >= 4 {
		extType := r.ReadUint16()
		extLen := int(r.ReadUint16())
		extTotal -= 4
		if extLen > extTotal || extLen > r.Remaining() {
			break
		}
		body := r.ReadSlice(extLen)
		extTotal -= extLen
		if extType == extensionUseSRTP && len(body) >= 4 {
			br := packet.NewReader(body)
			br.ReadUint16() // protection profile list length, always 2 in a ServerHello
			h.UseSRTPProfile = br.ReadUint16()
		}
	}
	return h, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Finished carries the verify_data computed over the handshake transcript
// (RFC 5246 §7.4.9).
type Finished struct {
	VerifyData []byte
}

func (f *Finished) Marshal() []byte {
	return append([]byte{}, f.VerifyData...)
}

func UnmarshalFinished(data []byte) *Finished {
	return &Finished{VerifyData: append([]byte{}, data...)}
}

// OpaqueHandshakeBody holds a handshake message whose contents are an
// external capability's concern (Certificate, ServerKeyExchange,
// CertificateRequest, ClientKeyExchange, CertificateVerify): the flight
// engine only needs to move these bytes between CipherSuite and the
// transcript hash, never to interpret them.
type OpaqueHandshakeBody struct {
	Type HandshakeType
	Body []byte
}

func (o *OpaqueHandshakeBody) Marshal() []byte {
	return o.Body
}
