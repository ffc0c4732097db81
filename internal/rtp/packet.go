package rtp

import (
	errors "golang.org/x/xerrors"

	"github.com/lanikai/webrtc/internal/packet"
)

// Packet is a decoded RTP data packet: the fixed header plus the payload
// bytes that follow it (after CSRC list and header extension, if present).
type Packet struct {
	Header  Header
	Payload []byte
}

// Marshal serializes the packet into a freshly allocated buffer.
func (p Packet) Marshal() ([]byte, error) {
	buf := make([]byte, p.Header.Len()+len(p.Payload))
	w := packet.NewWriter(buf)
	if err := p.Header.Marshal(w); err != nil {
		return nil, err
	}
	if err := w.WriteSlice(p.Payload); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// MarshalTo serializes the packet into buf, which must be at least
// p.Header.Len()+len(p.Payload) bytes, returning the written slice.
func (p Packet) MarshalTo(buf []byte) ([]byte, error) {
	w := packet.NewWriter(buf)
	if err := p.Header.Marshal(w); err != nil {
		return nil, err
	}
	if err := w.WriteSlice(p.Payload); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unmarshal parses an RTP packet from raw. The returned Packet's Payload
// aliases raw; callers that retain it past the lifetime of raw must copy.
func Unmarshal(raw []byte) (Packet, error) {
	var p Packet
	r := packet.NewReader(raw)
	if err := p.Header.Unmarshal(r); err != nil {
		return Packet{}, errors.Errorf("rtp: unmarshal: %v", err)
	}
	p.Payload = r.ReadRemaining()
	return p, nil
}
