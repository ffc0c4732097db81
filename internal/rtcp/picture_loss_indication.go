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

const pliLength = 8

// PictureLossIndication asks the media sender for a full intra frame,
// without specifying which frame was lost (RFC 4585 §6.3.1).
type PictureLossIndication struct {
	Sender uint32
	Media  uint32
}

func (p PictureLossIndication) Header() Header {
	return Header{
		Count:  FormatPLI,
		Type:   TypePayloadSpecificFeedback,
		Length: uint16((headerLength+pliLength)/4 - 1),
	}
}

func (p PictureLossIndication) DestinationSSRC() []uint32 {
	return []uint32{p.Media}
}

func (p PictureLossIndication) Marshal() ([]byte, error) {
	rawPacket := make([]byte, headerLength+pliLength)
	binary.BigEndian.PutUint32(rawPacket[headerLength:], p.Sender)
	binary.BigEndian.PutUint32(rawPacket[headerLength+4:], p.Media)

	hData, err := p.Header().Marshal()
	if err != nil {
		return nil, err
	}
	copy(rawPacket, hData)

	return rawPacket, nil
}

func (p *PictureLossIndication) Unmarshal(rawPacket []byte) error {
	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypePayloadSpecificFeedback || h.Count != FormatPLI {
		return errWrongType
	}

	body := rawPacket[headerLength:]
	if len(body) < pliLength {
		return errPacketTooShort
	}
	p.Sender = binary.BigEndian.Uint32(body[0:4])
	p.Media = binary.BigEndian.Uint32(body[4:8])

	return nil
}
