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

// Goodbye indicates that one or more sources are no longer active (RFC 3550
// §6.6).
type Goodbye struct {
	Sources []uint32
	Reason  string
}

func (g Goodbye) Header() Header {
	return Header{
		Count:  uint8(len(g.Sources)),
		Type:   TypeGoodbye,
		Length: uint16(g.len()/4 - 1),
	}
}

func (g Goodbye) DestinationSSRC() []uint32 {
	return g.Sources
}

func (g Goodbye) len() int {
	n := headerLength + 4*len(g.Sources)
	if g.Reason != "" {
		n += 1 + len(g.Reason)
	}
	return n + ((4 - n%4) % 4)
}

func (g Goodbye) Marshal() ([]byte, error) {
	if len(g.Sources) > maxReports {
		return nil, errTooManySources
	}
	if len(g.Reason) > 0xff {
		return nil, errReasonTooLong
	}

	rawPacket := make([]byte, g.len())
	offset := headerLength
	for _, src := range g.Sources {
		binary.BigEndian.PutUint32(rawPacket[offset:], src)
		offset += 4
	}
	if g.Reason != "" {
		rawPacket[offset] = byte(len(g.Reason))
		offset++
		offset += copy(rawPacket[offset:], g.Reason)
	}

	hData, err := g.Header().Marshal()
	if err != nil {
		return nil, err
	}
	copy(rawPacket, hData)

	return rawPacket, nil
}

func (g *Goodbye) Unmarshal(rawPacket []byte) error {
	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypeGoodbye {
		return errWrongType
	}

	body := rawPacket[headerLength:]
	if len(body) < 4*int(h.Count) {
		return errPacketTooShort
	}
	g.Sources = nil
	offset := 0
	for i := 0; i < int(h.Count); i++ {
		g.Sources = append(g.Sources, binary.BigEndian.Uint32(body[offset:]))
		offset += 4
	}
	g.Reason = ""
	if offset < len(body) {
		n := int(body[offset])
		offset++
		if offset+n > len(body) {
			return errPacketTooShort
		}
		g.Reason = string(body[offset : offset+n])
	}

	return nil
}
