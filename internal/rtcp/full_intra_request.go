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

const firEntryLength = 8

// FIREntry names one target SSRC and the sequence number of this FIR
// request, incremented each time the requester re-issues the request.
type FIREntry struct {
	SSRC           uint32
	SequenceNumber uint8
}

// FullIntraRequest asks one or more specific media senders for a full intra
// frame (RFC 5104 §4.3.1), unlike PictureLossIndication which is scoped to a
// single stream and carries no per-request sequence number.
type FullIntraRequest struct {
	Sender  uint32
	Media   uint32
	Entries []FIREntry
}

func (f FullIntraRequest) Header() Header {
	return Header{
		Count:  FormatFIR,
		Type:   TypePayloadSpecificFeedback,
		Length: uint16(f.len()/4 - 1),
	}
}

func (f FullIntraRequest) DestinationSSRC() []uint32 {
	ssrcs := make([]uint32, 0, len(f.Entries))
	for _, e := range f.Entries {
		ssrcs = append(ssrcs, e.SSRC)
	}
	return ssrcs
}

func (f FullIntraRequest) len() int {
	return headerLength + 8 + firEntryLength*len(f.Entries)
}

func (f FullIntraRequest) Marshal() ([]byte, error) {
	rawPacket := make([]byte, f.len())
	binary.BigEndian.PutUint32(rawPacket[headerLength:], f.Sender)
	binary.BigEndian.PutUint32(rawPacket[headerLength+4:], f.Media)

	offset := headerLength + 8
	for _, e := range f.Entries {
		binary.BigEndian.PutUint32(rawPacket[offset:], e.SSRC)
		rawPacket[offset+4] = e.SequenceNumber
		// bytes offset+5..offset+7 are reserved, left zero
		offset += firEntryLength
	}

	hData, err := f.Header().Marshal()
	if err != nil {
		return nil, err
	}
	copy(rawPacket, hData)

	return rawPacket, nil
}

func (f *FullIntraRequest) Unmarshal(rawPacket []byte) error {
	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypePayloadSpecificFeedback || h.Count != FormatFIR {
		return errWrongType
	}

	body := rawPacket[headerLength:]
	if len(body) < 8 {
		return errPacketTooShort
	}
	f.Sender = binary.BigEndian.Uint32(body[0:4])
	f.Media = binary.BigEndian.Uint32(body[4:8])

	entries := body[8:]
	if len(entries)%firEntryLength != 0 {
		return errPacketTooShort
	}
	f.Entries = nil
	for i := 0; i < len(entries)/firEntryLength; i++ {
		e := entries[i*firEntryLength:]
		f.Entries = append(f.Entries, FIREntry{
			SSRC:           binary.BigEndian.Uint32(e),
			SequenceNumber: e[4],
		})
	}

	return nil
}
