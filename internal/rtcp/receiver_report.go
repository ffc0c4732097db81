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

const (
	rrSSRCLength    = 4
	reportBlockLength = 24
	maxReports      = 31
)

// ReportBlock carries one source's reception statistics, shared by the
// Sender Report and Receiver Report packet formats (RFC 3550 §6.4.1).
type ReportBlock struct {
	SSRC               uint32
	FractionLost       uint8
	TotalLost          uint32 // 24 bits on the wire
	LastSequenceNumber uint32
	Jitter             uint32
	LastSenderReport   uint32
	Delay              uint32 // delay since last SR, in 1/65536 seconds
}

func (b ReportBlock) marshal(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], b.SSRC)
	buf[4] = b.FractionLost
	buf[5] = byte(b.TotalLost >> 16)
	buf[6] = byte(b.TotalLost >> 8)
	buf[7] = byte(b.TotalLost)
	binary.BigEndian.PutUint32(buf[8:12], b.LastSequenceNumber)
	binary.BigEndian.PutUint32(buf[12:16], b.Jitter)
	binary.BigEndian.PutUint32(buf[16:20], b.LastSenderReport)
	binary.BigEndian.PutUint32(buf[20:24], b.Delay)
}

func (b *ReportBlock) unmarshal(buf []byte) error {
	if len(buf) < reportBlockLength {
		return errPacketTooShort
	}
	b.SSRC = binary.BigEndian.Uint32(buf[0:4])
	b.FractionLost = buf[4]
	b.TotalLost = uint32(buf[5])<<16 | uint32(buf[6])<<8 | uint32(buf[7])
	b.LastSequenceNumber = binary.BigEndian.Uint32(buf[8:12])
	b.Jitter = binary.BigEndian.Uint32(buf[12:16])
	b.LastSenderReport = binary.BigEndian.Uint32(buf[16:20])
	b.Delay = binary.BigEndian.Uint32(buf[20:24])
	return nil
}

// ReceiverReport is sent by a participant that is not also a sender, or by a
// sender that also wants to report on other sources (RFC 3550 §6.4.2).
type ReceiverReport struct {
	SSRC    uint32
	Reports []ReportBlock
}

func (r ReceiverReport) Header() Header {
	return Header{
		Count:  uint8(len(r.Reports)),
		Type:   TypeReceiverReport,
		Length: uint16((rrSSRCLength + len(r.Reports)*reportBlockLength)/4 + headerLength/4 - 1),
	}
}

func (r ReceiverReport) DestinationSSRC() []uint32 {
	ssrcs := make([]uint32, 0, len(r.Reports))
	for _, rb := range r.Reports {
		ssrcs = append(ssrcs, rb.SSRC)
	}
	return ssrcs
}

func (r ReceiverReport) Marshal() ([]byte, error) {
	if len(r.Reports) > maxReports {
		return nil, errTooManyReports
	}

	rawPacket := make([]byte, r.len())
	packetBody := rawPacket[headerLength:]

	binary.BigEndian.PutUint32(packetBody, r.SSRC)
	for i, rb := range r.Reports {
		rb.marshal(packetBody[rrSSRCLength+i*reportBlockLength:])
	}

	hData, err := r.Header().Marshal()
	if err != nil {
		return nil, err
	}
	copy(rawPacket, hData)

	return rawPacket, nil
}

func (r *ReceiverReport) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < (headerLength + rrSSRCLength) {
		return errPacketTooShort
	}

	var h Header
	if err := h.Unmarshal(rawPacket); err != nil {
		return err
	}
	if h.Type != TypeReceiverReport {
		return errWrongType
	}

	packetBody := rawPacket[headerLength:]
	r.SSRC = binary.BigEndian.Uint32(packetBody)

	reports := packetBody[rrSSRCLength:]
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

func (r ReceiverReport) len() int {
	return headerLength + rrSSRCLength + len(r.Reports)*reportBlockLength
}
