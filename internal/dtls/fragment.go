package dtls

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/lanikai/webrtc/internal/packet"
)

// handshakeHeaderLength is the 12-byte DTLS handshake message header: type
// (1), length (3), message_seq (2), fragment_offset (3), fragment_length (3).
const handshakeHeaderLength = 12

// HandshakeHeader is the per-message header that precedes every handshake
// fragment (RFC 6347 §4.2.2).
type HandshakeHeader struct {
	MsgType        HandshakeType
	Length         uint32 // 24 bits: length of the full (reassembled) body
	MessageSeq     uint16
	FragmentOffset uint32 // 24 bits
	FragmentLength uint32 // 24 bits
}

func (h *HandshakeHeader) Marshal() []byte {
	w := packet.NewWriterSize(handshakeHeaderLength)
	w.WriteByte(byte(h.MsgType))
	w.WriteUint24(h.Length)
	w.WriteUint16(h.MessageSeq)
	w.WriteUint24(h.FragmentOffset)
	w.WriteUint24(h.FragmentLength)
	return w.Bytes()
}

func UnmarshalHandshakeHeader(data []byte) (*HandshakeHeader, error) {
	if len(data) < handshakeHeaderLength {
		return nil, errors.Errorf("dtls: handshake header too short: %d bytes", len(data))
	}
	r := packet.NewReader(data)
	return &HandshakeHeader{
		MsgType:        HandshakeType(r.ReadByte()),
		Length:         r.ReadUint24(),
		MessageSeq:     r.ReadUint16(),
		FragmentOffset: r.ReadUint24(),
		FragmentLength: r.ReadUint24(),
	}, nil
}

// fragmentRange is a half-open byte range [Offset, Offset+Length) of a
// handshake message body that has been received.
type fragmentRange struct {
	offset, length uint32
	data           []byte
}

// pendingMessage accumulates fragments for one message_seq until the full
// body has arrived.
type pendingMessage struct {
	msgType HandshakeType
	total   uint32
	ranges  []fragmentRange
}

func (m *pendingMessage) addFragment(offset, length uint32, data []byte) {
	for _, r := range m.ranges {
		if offset >= r.offset && offset+length <= r.offset+r.length {
			return // fully covered by an existing range, a retransmit
		}
	}
	cp := make([]byte, length)
	copy(cp, data)
	m.ranges = append(m.ranges, fragmentRange{offset: offset, length: length, data: cp})
}

// complete reports whether the accumulated ranges cover [0, total) with no
// gaps, and if so returns the reassembled body.
func (m *pendingMessage) complete() ([]byte, bool) {
	if len(m.ranges) == 0 {
		return nil, m.total == 0
	}
	sort.Slice(m.ranges, func(i, j int) bool { return m.ranges[i].offset < m.ranges[j].offset })
	body := make([]byte, m.total)
	var covered uint32
	for _, r := range m.ranges {
		if r.offset > covered {
			return nil, false // gap
		}
		end := r.offset + r.length
		if end > covered {
			copy(body[r.offset:end], r.data)
			covered = end
		}
	}
	return body, covered >= m.total
}

// FragmentBuffer reassembles handshake messages from their wire fragments,
// keyed by message_seq (§4.B). A Connection keeps one buffer for its whole
// handshake; each message's entry is removed once that message completes.
type FragmentBuffer struct {
	pending map[uint16]*pendingMessage
}

// NewFragmentBuffer creates an empty reassembly buffer.
func NewFragmentBuffer() *FragmentBuffer {
	return &FragmentBuffer{pending: make(map[uint16]*pendingMessage)}
}

// Push records a handshake fragment. It returns the reassembled message body
// and true once all fragments for that message_seq have arrived.
func (b *FragmentBuffer) Push(h *HandshakeHeader, fragment []byte) ([]byte, bool) {
	pm, ok := b.pending[h.MessageSeq]
	if !ok {
		pm = &pendingMessage{msgType: h.MsgType, total: h.Length}
		b.pending[h.MessageSeq] = pm
	}
	pm.addFragment(h.FragmentOffset, h.FragmentLength, fragment)
	body, done := pm.complete()
	if done {
		delete(b.pending, h.MessageSeq)
	}
	return body, done
}

// Reset discards all partially-reassembled messages, e.g. on flight
// transition or epoch bump.
func (b *FragmentBuffer) Reset() {
	b.pending = make(map[uint16]*pendingMessage)
}
