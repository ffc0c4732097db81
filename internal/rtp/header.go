package rtp

import (
	errors "golang.org/x/xerrors"

	"github.com/lanikai/webrtc/internal/packet"
)

// An RTP packet consists of a fixed 12-byte header, zero or more 32-bit CSRC
// identifiers, an optional header extension, and the payload itself.
// See https://tools.ietf.org/html/rfc3550#section-5.1
//    0                   1                   2                   3
//    0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//   |V=2|P|X|  CC   |M|     PT      |       sequence number         |
//   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//   |                           timestamp                           |
//   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//   |           synchronization source (SSRC) identifier            |
//   +=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+
//   |            contributing source (CSRC) identifiers             |
//   |                             ....                              |
//   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type Header struct {
	Padding     bool
	Marker      bool
	PayloadType uint8
	Sequence    uint16
	Timestamp   uint32
	SSRC        uint32
	CSRC        []uint32

	// Extensions holds the one-byte or two-byte RTP header extension
	// elements (RFC 5285), if any. ExtensionProfile selects which of the
	// two encodings applies: profileOneByte (also used when the field is
	// zero) for IDs 1-14, or a value matching profileTwoByteMask when an
	// extension needs an ID above 14 or more than 16 bytes of payload.
	ExtensionProfile uint16
	Extensions       []Extension
}

// Extension is one element of an RTP header extension (RFC 5285).
type Extension struct {
	ID      uint8
	Payload []byte
}

// Well-known header extension URIs this engine negotiates via SDP extmap
// attributes. The wire ID assigned to each is negotiated per session, not
// fixed by this package.
const (
	ExtensionURIMID                  = "urn:ietf:params:rtp-hdrext:sdes:mid"
	ExtensionURIRTPStreamID          = "urn:ietf:params:rtp-hdrext:sdes:rtp-stream-id"
	ExtensionURIRepairedRTPStreamID  = "urn:ietf:params:rtp-hdrext:sdes:repaired-rtp-stream-id"
	ExtensionURIAbsSendTime          = "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time"
)

const (
	// profileOneByte is RFC 5285 §4.2's "defined by profile" value
	// selecting the one-byte header form (4-bit ID, 4-bit length-1).
	profileOneByte = 0xBEDE

	// profileTwoByteMask selects the two-byte form (RFC 5285 §4.3): a full
	// byte each for ID and length, needed once an extension wants more
	// than 16 bytes of payload or there are more than 14 distinct IDs.
	profileTwoByteMask = 0x1000
)

const headerSize = 12

// Len returns the number of bytes Header.Marshal will produce, excluding
// the payload.
func (h Header) Len() int {
	n := headerSize + 4*len(h.CSRC)
	if len(h.Extensions) > 0 {
		n += 4 + extensionBodyLen(h)
	}
	return n
}

func extensionBodyLen(h Header) int {
	n := 0
	twoByte := h.ExtensionProfile&0xfff0 == profileTwoByteMask
	for _, e := range h.Extensions {
		if twoByte {
			n += 2 + len(e.Payload)
		} else {
			n += 1 + len(e.Payload)
		}
	}
	return ((n + 3) / 4) * 4
}

func (h Header) hasExtension() bool {
	return len(h.Extensions) > 0
}

// Marshal serializes the header into w, which must have enough remaining
// capacity for Header.Len() bytes.
func (h Header) Marshal(w *packet.Writer) error {
	if err := w.CheckCapacity(w.Length() + h.Len()); err != nil {
		return errors.Errorf("rtp: header does not fit: %v", err)
	}

	w.WriteByte(joinByte2114(rtpVersion, h.Padding, h.hasExtension(), byte(len(h.CSRC))))
	w.WriteByte(joinByte17(h.Marker, h.PayloadType))
	w.WriteUint16(h.Sequence)
	w.WriteUint32(h.Timestamp)
	w.WriteUint32(h.SSRC)
	for _, csrc := range h.CSRC {
		w.WriteUint32(csrc)
	}

	if !h.hasExtension() {
		return nil
	}

	profile := h.ExtensionProfile
	if profile == 0 {
		profile = profileOneByte
	}
	w.WriteUint16(profile)

	lenOffset := w.Length()
	w.WriteUint16(0) // length in 32-bit words, patched below

	start := w.Length()
	twoByte := profile&0xfff0 == profileTwoByteMask
	for _, e := range h.Extensions {
		if twoByte {
			w.WriteByte(e.ID)
			w.WriteByte(uint8(len(e.Payload)))
		} else {
			if e.ID == 0 || e.ID > 14 || len(e.Payload) == 0 || len(e.Payload) > 16 {
				return errors.Errorf("rtp: one-byte extension id=%d len=%d out of range", e.ID, len(e.Payload))
			}
			w.WriteByte((e.ID << 4) | uint8(len(e.Payload)-1))
		}
		if err := w.WriteSlice(e.Payload); err != nil {
			return err
		}
	}
	w.Align(4)

	words := uint16((w.Length() - start) / 4)
	buf := w.Bytes()
	networkOrderPutUint16(buf[lenOffset:], words)

	return nil
}

func networkOrderPutUint16(buf []byte, v uint16) {
	buf[0] = byte(v >> 8)
	buf[1] = byte(v)
}

// Unmarshal parses an RTP header from r, leaving r positioned at the start
// of the payload.
func (h *Header) Unmarshal(r *packet.Reader) error {
	if err := r.CheckRemaining(headerSize); err != nil {
		return errors.Errorf("rtp: short header: %v", err)
	}

	var version, csrcCount byte
	var extension bool
	version, h.Padding, extension, csrcCount = splitByte2114(r.ReadByte())
	if version != rtpVersion {
		return errBadVersion(version)
	}
	if err := r.CheckRemaining(4 * int(csrcCount)); err != nil {
		return errors.Errorf("rtp: short CSRC list: %v", err)
	}
	h.Marker, h.PayloadType = splitByte17(r.ReadByte())
	h.Sequence = r.ReadUint16()
	h.Timestamp = r.ReadUint32()
	h.SSRC = r.ReadUint32()
	h.CSRC = nil
	for i := 0; i < int(csrcCount); i++ {
		h.CSRC = append(h.CSRC, r.ReadUint32())
	}

	h.Extensions = nil
	h.ExtensionProfile = 0
	if !extension {
		return nil
	}
	if err := r.CheckRemaining(4); err != nil {
		return errors.Errorf("rtp: short extension header: %v", err)
	}
	h.ExtensionProfile = r.ReadUint16()
	words := int(r.ReadUint16())
	if err := r.CheckRemaining(4 * words); err != nil {
		return errors.Errorf("rtp: short extension body: %v", err)
	}
	body := r.ReadSlice(4 * words)
	return h.parseExtensions(body)
}

func (h *Header) parseExtensions(body []byte) error {
	twoByte := h.ExtensionProfile&0xfff0 == profileTwoByteMask
	i := 0
	for i < len(body) {
		if twoByte {
			if i+2 > len(body) {
				return errors.New("rtp: truncated two-byte extension element")
			}
			id := body[i]
			n := int(body[i+1])
			i += 2
			if id == 0 {
				continue // padding
			}
			if i+n > len(body) {
				return errors.New("rtp: extension payload overruns body")
			}
			h.Extensions = append(h.Extensions, Extension{ID: id, Payload: body[i : i+n]})
			i += n
		} else {
			b := body[i]
			id := b >> 4
			if id == 0 {
				i++
				continue // padding
			}
			if id == 15 {
				break // reserved: stop parsing per RFC 5285 §4.2
			}
			n := int(b&0x0f) + 1
			i++
			if i+n > len(body) {
				return errors.New("rtp: extension payload overruns body")
			}
			h.Extensions = append(h.Extensions, Extension{ID: id, Payload: body[i : i+n]})
			i += n
		}
	}
	return nil
}

// Extension returns the first extension element with the given ID, if any.
func (h Header) Extension(id uint8) ([]byte, bool) {
	for _, e := range h.Extensions {
		if e.ID == id {
			return e.Payload, true
		}
	}
	return nil, false
}
