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

const srHeaderLength = 24

// SenderReport is sent periodically by active senders to report transmission
// and reception statistics for all packets sent during the interval (RFC
// 3550 §6.4.1).
type SenderReport struct {
	SSRC        uint32
	NTPTime     uint64
	RTPTime     uint32
	PacketCount uint32
	OctetCount  uint32
	Reports     []ReportBlock
}

func (r SenderReport) Header() Header {
	return Header{
		Count:  uint8(len(r.Reports)),
		Type:   TypeSenderReport,
		Length: uint16(r.len()/4 - 1),
	}
}

func (r SenderReport) DestinationSSRC() []uint32 {
	ssrcs := make([]uint32, 0, len(r.Reports)+1)
	ssrcs = append(ssrcs, r.SSRC)
	for _, rb := range r.Reports {
		ssrcs = append(ssrcs, rb.SSRC)
	}
	return ssrcs
}

func (r SenderReport) Marshal() ([]byte, error) {
	if len(r.Reports) > maxReports {
		return nil, errTooManyReports
	}

	rawPacket := make([]byte, r.len())
	packetBody := rawPacket[headerLength:]

	binary.BigEndian.PutUint32(packetBody[0:4], r.SSRC)
	binary.BigEndian.PutUint64(packetBody[4:12], r.NTPTime)
	binary.BigEndian.PutUint32(packetBody[12:16], r.RTPTime)
	binary.BigEndian.PutUint32(packetBody[16:20], r.PacketCount)
	binary.BigEndian.PutUint32(packetBody[20:24], r.OctetCount)
	for i, rb := range r.Reports {
		rb.marshal(packetBody[srHeaderLength+i*reportBlockLength:])
	}

	hData, err := r.Header().Marshal()
	if err != nil {
		return nil, err
	}
	copy(rawPacket, hData)

	return rawPacket, nil
}

func (r *SenderReport) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < headerLength+srHeaderLength {
		return errPacketTooShort
	}

	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypeSenderReport {
		return errWrongType
	}

	body := rawPacket[headerLength:]
	r.SSRC = binary.BigEndian.Uint32(body[0:4])
	r.NTPTime = binary.BigEndian.Uint64(body[4:12])
	r.RTPTime = binary.BigEndian.Uint32(body[12:16])
	r.PacketCount = binary.BigEndian.Uint32(body[16:20])
	r.OctetCount = binary.BigEndian.Uint32(body[20:24])

	reports := body[srHeaderLength:]
	if len(reports)%reportBlockLength != 0 {
		return errPacketTooShort
	}
	r.Reports = nil
	for i := 0; i < len(reports)/reportBlockLength; i++ {
		var rb ReportBlock
		if err := rb.unmarshal(reports[i*reportBlockLength:]); err != nil {
			return err
		}
		r.Reports = append(r.Reports, rb)
	}

	return nil
}

func (r SenderReport) len() int {
	return headerLength + srHeaderLength + len(r.Reports)*reportBlockLength
}
