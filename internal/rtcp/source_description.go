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

// SDESType is the type of a source description (SDES) item (RFC 3550 §6.5).
type SDESType uint8

const (
	SDESEnd   SDESType = 0
	SDESCNAME SDESType = 1
	SDESNote  SDESType = 7
)

// SourceDescriptionItem is a single CNAME/NOTE/etc item attached to one
// chunk of a Source Description packet.
type SourceDescriptionItem struct {
	Type SDESType
	Text string
}

func (s SourceDescriptionItem) len() int {
	// type (1 byte) + length (1 byte) + text
	return 2 + len(s.Text)
}

// SourceDescriptionChunk groups zero or more items under a single SSRC/CSRC.
type SourceDescriptionChunk struct {
	Source uint32
	Items  []SourceDescriptionItem
}

func (c SourceDescriptionChunk) len() int {
	n := 4 // ssrc/csrc
	for _, it := range c.Items {
		n += it.len()
	}
	n++ // null terminator
	// chunks are padded to a multiple of 4 bytes
	return n + ((4 - n%4) % 4)
}

// SourceDescription carries CNAME and other per-source descriptive text (RFC
// 3550 §6.5).
type SourceDescription struct {
	Chunks []SourceDescriptionChunk
}

func (s SourceDescription) Header() Header {
	return Header{
		Count:  uint8(len(s.Chunks)),
		Type:   TypeSourceDescription,
		Length: uint16(s.len()/4 - 1),
	}
}

func (s SourceDescription) DestinationSSRC() []uint32 {
	ssrcs := make([]uint32, 0, len(s.Chunks))
	for _, c := range s.Chunks {
		ssrcs = append(ssrcs, c.Source)
	}
	return ssrcs
}

func (s SourceDescription) len() int {
	n := headerLength
	for _, c := range s.Chunks {
		n += c.len()
	}
	return n
}

func (s SourceDescription) Marshal() ([]byte, error) {
	if len(s.Chunks) > maxReports {
		return nil, errTooManyChunks
	}

	rawPacket := make([]byte, s.len())
	offset := headerLength
	for _, c := range s.Chunks {
		start := offset
		binary.BigEndian.PutUint32(rawPacket[offset:], c.Source)
		offset += 4
		for _, it := range c.Items {
			if len(it.Text) > 0xff {
				return nil, errSDESTextTooLong
			}
			if it.Type == SDESEnd {
				return nil, errSDESMissingType
			}
			rawPacket[offset] = byte(it.Type)
			offset++
			rawPacket[offset] = byte(len(it.Text))
			offset++
			offset += copy(rawPacket[offset:], it.Text)
		}
		rawPacket[offset] = byte(SDESEnd)
		offset++
		for (offset-start)%4 != 0 {
			rawPacket[offset] = 0
			offset++
		}
	}

	hData, err := s.Header().Marshal()
	if err != nil {
		return nil, err
	}
	copy(rawPacket, hData)

	return rawPacket, nil
}

func (s *SourceDescription) Unmarshal(rawPacket []byte) error {
	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypeSourceDescription {
		return errWrongType
	}

	body := rawPacket[headerLength:]
	s.Chunks = nil
	for len(body) >= 4 {
		var c SourceDescriptionChunk
		c.Source = binary.BigEndian.Uint32(body)
		offset := 4
		for offset < len(body) {
			itemType := SDESType(body[offset])
			offset++
			if itemType == SDESEnd {
				break
			}
			if offset >= len(body) {
				return errPacketTooShort
			}
			n := int(body[offset])
			offset++
			if offset+n > len(body) {
				return errPacketTooShort
			}
			c.Items = append(c.Items, SourceDescriptionItem{Type: itemType, Text: string(body[offset : offset+n])})
			offset += n
		}
		// consume padding up to the next 4-byte boundary
		offset += (4 - offset%4) % 4
		if offset > len(body) {
			offset = len(body)
		}
		s.Chunks = append(s.Chunks, c)
		body = body[offset:]
	}

	return nil
}
