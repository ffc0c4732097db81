package interceptor

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/lanikai/webrtc/internal/rtcp"
	"github.com/lanikai/webrtc/internal/rtp"
)

// defaultSendBufferSize is the number of recently-sent packets a send
// stream remembers for retransmission, per spec's default.
const defaultSendBufferSize = 1024

// sendBuffer is a fixed, power-of-two-sized ring of recently sent packets,
// indexed by sequence number so a NACK can look one up in O(1).
type sendBuffer struct {
	entries []rtp.Packet
	valid   []bool
	mask    uint16
}

func newSendBuffer(size uint16) (*sendBuffer, error) {
	if size == 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("interceptor: send buffer size %d is not a power of two", size)
	}
	return &sendBuffer{
		entries: make([]rtp.Packet, size),
		valid:   make([]bool, size),
		mask:    size - 1,
	}, nil
}

func (b *sendBuffer) add(pkt rtp.Packet) {
	idx := pkt.Header.Sequence & b.mask
	b.entries[idx] = pkt
	b.valid[idx] = true
}

func (b *sendBuffer) get(seq uint16) (rtp.Packet, bool) {
	idx := seq & b.mask
	if !b.valid[idx] || b.entries[idx].Header.Sequence != seq {
		return rtp.Packet{}, false
	}
	return b.entries[idx], true
}

// responderStream is one outbound media stream this responder protects.
type responderStream struct {
	buffer *sendBuffer

	hasRTX         bool
	rtxSSRC        uint32
	rtxPayloadType uint8
	rtxSequence    uint16
}

// NackResponder buffers recently sent RTP packets per stream and, on
// receiving a TransportLayerNack naming that stream, retransmits the
// requested packets (RFC 4585 §6.2.1). A stream configured with an RTX
// SSRC and payload type (RFC 4588) gets its retransmissions encapsulated
// instead of resent verbatim.
type NackResponder struct {
	baseStage

	bufferSize uint16
	streams    map[uint32]*responderStream
	pending    []*rtp.Packet
}

// NewNackResponder returns an empty responder. Streams are registered
// lazily on first WriteRTP with the default buffer size; call EnableRTX
// before the first packet if a stream needs RFC 4588 retransmission.
func NewNackResponder() *NackResponder {
	return &NackResponder{bufferSize: defaultSendBufferSize, streams: make(map[uint32]*responderStream)}
}

// NewNackResponderWithBufferSize is like NewNackResponder but overrides the
// default power-of-two send-buffer capacity (the nack_buffer_size
// configuration option).
func NewNackResponderWithBufferSize(size uint16) (*NackResponder, error) {
	if size == 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("interceptor: send buffer size %d is not a power of two", size)
	}
	return &NackResponder{bufferSize: size, streams: make(map[uint32]*responderStream)}, nil
}

func (r *NackResponder) stream(ssrc uint32) *responderStream {
	s, ok := r.streams[ssrc]
	if !ok {
		buf, err := newSendBuffer(r.bufferSize)
		if err != nil {
			panic(err) // bufferSize was already validated at construction
		}
		s = &responderStream{buffer: buf}
		r.streams[ssrc] = s
	}
	return s
}

// EnableRTX configures ssrc's retransmissions to use RFC 4588 encapsulation
// with the given RTX SSRC and payload type, instead of verbatim resends.
func (r *NackResponder) EnableRTX(ssrc, rtxSSRC uint32, rtxPayloadType uint8) {
	s := r.stream(ssrc)
	s.hasRTX = true
	s.rtxSSRC = rtxSSRC
	s.rtxPayloadType = rtxPayloadType
}

func (r *NackResponder) WriteRTP(pkt *rtp.Packet, now time.Time) bool {
	r.stream(pkt.Header.SSRC).buffer.add(*pkt)
	return true
}

func (r *NackResponder) ReadRTCP(pkt rtcp.Packet, now time.Time) {
	nack, ok := pkt.(*rtcp.TransportLayerNack)
	if !ok {
		return
	}
	s, ok := r.streams[nack.Media]
	if !ok {
		return
	}
	for _, pair := range nack.Nacks {
		for _, seq := range pair.PacketList() {
			orig, ok := s.buffer.get(seq)
			if !ok {
				continue // no longer buffered; nothing we can do
			}
			if rt := r.retransmit(s, orig); rt != nil {
				r.pending = append(r.pending, rt)
			}
		}
	}
}

// retransmit builds the packet to actually put back on the wire for a
// requested retransmission: RTX-encapsulated if the stream has RTX
// configured, otherwise a verbatim copy of the original.
func (r *NackResponder) retransmit(s *responderStream, orig rtp.Packet) *rtp.Packet {
	if !s.hasRTX {
		cp := orig
		cp.Payload = append([]byte(nil), orig.Payload...)
		return &cp
	}

	payload := make([]byte, 2+len(orig.Payload))
	binary.BigEndian.PutUint16(payload, orig.Header.Sequence)
	copy(payload[2:], orig.Payload)

	header := orig.Header
	header.SSRC = s.rtxSSRC
	header.PayloadType = s.rtxPayloadType
	header.Sequence = s.rtxSequence
	s.rtxSequence++

	return &rtp.Packet{Header: header, Payload: payload}
}

func (r *NackResponder) PollRTP() (*rtp.Packet, bool) {
	if len(r.pending) == 0 {
		return nil, false
	}
	pkt := r.pending[0]
	r.pending = r.pending[1:]
	return pkt, true
}
