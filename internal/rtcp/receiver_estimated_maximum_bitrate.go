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

var rembIdentifier = [4]byte{'R', 'E', 'M', 'B'}

// ReceiverEstimatedMaximumBitrate carries a receiver's estimate of the
// maximum bitrate it can currently sustain across one or more streams
// (draft-alvestrand-rmcat-remb-03 §2.2). Not part of RFC 4585 itself; kept
// because senders already understand it and it composes with the NACK/PLI
// feedback path without requiring a new transport.
type ReceiverEstimatedMaximumBitrate struct {
	Sender    uint32
	Bitrate   float32 // bits per second
	SSRCs     []uint32
}

func (r ReceiverEstimatedMaximumBitrate) Header() Header {
	return Header{
		Count:  FormatREMB,
		Type:   TypePayloadSpecificFeedback,
		Length: uint16(r.len()/4 - 1),
	}
}

func (r ReceiverEstimatedMaximumBitrate) DestinationSSRC() []uint32 {
	return r.SSRCs
}

func (r ReceiverEstimatedMaximumBitrate) len() int {
	return headerLength + 16 + 4*len(r.SSRCs)
}

// exponentMantissa packs a bitrate into REMB's 6-bit-exponent/18-bit-mantissa
// representation, the same scheme the original feedback message used.
func exponentMantissa(bitrate float32) (exponent, mantissa uint32) {
	bits := uint64(bitrate)
	mantissa = uint32(bits)
	for mantissa > 0x3FFFF {
		mantissa >>= 1
		exponent++
	}
	return
}

func (r ReceiverEstimatedMaximumBitrate) Marshal() ([]byte, error) {
	rawPacket := make([]byte, r.len())
	body := rawPacket[headerLength:]

	binary.BigEndian.PutUint32(body[0:4], r.Sender)
	// media SSRC is always zero for REMB
	binary.BigEndian.PutUint32(body[4:8], 0)
	copy(body[8:12], rembIdentifier[:])
	body[12] = byte(len(r.SSRCs))

	exponent, mantissa := exponentMantissa(r.Bitrate)
	em := ((exponent & 0x3F) << 18) | (mantissa & 0x3FFFF)
	body[13] = byte(em >> 16)
	body[14] = byte(em >> 8)
	body[15] = byte(em)

	offset := 16
	for _, ssrc := range r.SSRCs {
		binary.BigEndian.PutUint32(body[offset:], ssrc)
		offset += 4
	}

	hData, err := r.Header().Marshal()
	if err != nil {
		return nil, err
	}
	copy(rawPacket, hData)

	return rawPacket, nil
}

func (r *ReceiverEstimatedMaximumBitrate) Unmarshal(rawPacket []byte) error {
	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypePayloadSpecificFeedback || h.Count != FormatREMB {
		return errWrongType
	}

	body := rawPacket[headerLength:]
	if len(body) < 16 {
		return errPacketTooShort
	}
	r.Sender = binary.BigEndian.Uint32(body[0:4])
	if binary.BigEndian.Uint32(body[4:8]) != 0 {
		return errWrongType
	}
	if string(body[8:12]) != string(rembIdentifier[:]) {
		return errWrongType
	}
	numSSRC := int(body[12])

	em := uint32(body[13])<<16 | uint32(body[14])<<8 | uint32(body[15])
	exponent := (em >> 18) & 0x3F
	mantissa := em & 0x3FFFF
	r.Bitrate = float32(uint64(mantissa) << exponent)

	r.SSRCs = nil
	offset := 16
	for i := 0; i < numSSRC && offset+4 <= len(body); i++ {
		r.SSRCs = append(r.SSRCs, binary.BigEndian.Uint32(body[offset:]))
		offset += 4
	}

	return nil
}
