// MIT License
//
// Copyright (c) 2018 Pions
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package rtcp

import "encoding/binary"

const tlnSSRCLength = 8

// NackPair packs one base sequence number plus a bitmask of up to 16
// additional, later lost packets (RFC 4585 §6.2.1).
type NackPair struct {
	PacketID    uint16
	LostPackets uint16 // BLP: bit i set means PacketID+i+1 is also lost
}

// PacketList expands a NackPair into the sequence numbers it reports lost.
func (n NackPair) PacketList() []uint16 {
	lost := []uint16{n.PacketID}
	seq := n.PacketID + 1
	for mask := n.LostPackets; mask != 0; mask >>= 1 {
		if mask&1 == 1 {
			lost = append(lost, seq)
		}
		seq++
	}
	return lost
}

// TransportLayerNack (generic NACK) requests retransmission of specific lost
// RTP packets (RFC 4585 §6.2.1).
type TransportLayerNack struct {
	Sender uint32 // SSRC of the NACK sender
	Media  uint32 // SSRC of the media source
	Nacks  []NackPair
}

func (p TransportLayerNack) Header() Header {
	return Header{
		Count:  FormatTLN,
		Type:   TypeTransportSpecificFeedback,
		Length: uint16(p.len()/4 - 1),
	}
}

func (p TransportLayerNack) DestinationSSRC() []uint32 {
	return []uint32{p.Media}
}

func (p TransportLayerNack) len() int {
	return headerLength + tlnSSRCLength + 4*len(p.Nacks)
}

func (p TransportLayerNack) Marshal() ([]byte, error) {
	rawPacket := make([]byte, p.len())
	binary.BigEndian.PutUint32(rawPacket[headerLength:], p.Sender)
	binary.BigEndian.PutUint32(rawPacket[headerLength+4:], p.Media)
	offset := headerLength + 8
	for _, n := range p.Nacks {
		binary.BigEndian.PutUint16(rawPacket[offset:], n.PacketID)
		binary.BigEndian.PutUint16(rawPacket[offset+2:], n.LostPackets)
		offset += 4
	}

	hData, err := p.Header().Marshal()
	if err != nil {
		return nil, err
	}
	copy(rawPacket, hData)

	return rawPacket, nil
}

func (p *TransportLayerNack) Unmarshal(rawPacket []byte) error {
	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypeTransportSpecificFeedback || h.Count != FormatTLN {
		return errWrongType
	}

	body := rawPacket[headerLength:]
	if len(body) < 8 {
		return errPacketTooShort
	}
	p.Sender = binary.BigEndian.Uint32(body[0:4])
	p.Media = binary.BigEndian.Uint32(body[4:8])

	nacks := body[8:]
	if len(nacks)%4 != 0 {
		return errPacketTooShort
	}
	p.Nacks = nil
	for i := 0; i < len(nacks)/4; i++ {
		p.Nacks = append(p.Nacks, NackPair{
			PacketID:    binary.BigEndian.Uint16(nacks[i*4:]),
			LostPackets: binary.BigEndian.Uint16(nacks[i*4+2:]),
		})
	}

	return nil
}
