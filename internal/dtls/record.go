// Package dtls implements the DTLS 1.2 connection state machine that drives
// the WebRTC peer connection's secure channel: record layer framing,
// handshake flight sequencing, fragmentation/reassembly, epoch management,
// anti-replay, and retransmission (RFC 6347). The cryptographic primitives
// themselves (AEAD, ECDHE, certificate signing) are treated as an external
// capability, injected through the CipherSuite interface — this package
// only drives the protocol state machine around them.
package dtls

import (
	"github.com/pkg/errors"

	"github.com/lanikai/webrtc/internal/packet"
)

// ContentType identifies the kind of payload carried by a DTLS record.
type ContentType uint8

const (
	ContentTypeChangeCipherSpec ContentType = 20
	ContentTypeAlert            ContentType = 21
	ContentTypeHandshake        ContentType = 22
	ContentTypeApplicationData  ContentType = 23
)

func (t ContentType) String() string {
	switch t {
	case ContentTypeChangeCipherSpec:
		return "change_cipher_spec"
	case ContentTypeAlert:
		return "alert"
	case ContentTypeHandshake:
		return "handshake"
	case ContentTypeApplicationData:
		return "application_data"
	default:
		return "unknown"
	}
}

// ProtocolVersion is a DTLS 1.2 wire version, encoded as the bitwise
// complement of the conventional major.minor version (RFC 6347 §4.1).
type ProtocolVersion uint16

// DTLS1_2 is {254, 253} ("DTLS 1.2").
const DTLS1_2 ProtocolVersion = 0xfefd

// recordHeaderLength is the fixed 13-byte prefix: content type (1), version
// (2), epoch (2), sequence number (6), length (2).
const recordHeaderLength = 13

// MaxSequenceNumber is the largest legal 48-bit sequence number for a single
// epoch. Reaching it is a hard error per §4.F.
const MaxSequenceNumber = (1 << 48) - 1

// RecordHeader is the 13-byte DTLS record layer header.
type RecordHeader struct {
	ContentType    ContentType
	Version        ProtocolVersion
	Epoch          uint16
	SequenceNumber uint64 // 48 bits
	Length         uint16
}

// Marshal serializes the header. Bit-exact with RFC 6347 §4.1.
func (h *RecordHeader) Marshal() []byte {
	w := packet.NewWriterSize(recordHeaderLength)
	w.WriteByte(byte(h.ContentType))
	w.WriteUint16(uint16(h.Version))
	w.WriteUint16(h.Epoch)
	w.WriteUint48(h.SequenceNumber)
	w.WriteUint16(h.Length)
	return w.Bytes()
}

// UnmarshalRecordHeader parses a 13-byte record header.
func UnmarshalRecordHeader(data []byte) (*RecordHeader, error) {
	if len(data) < recordHeaderLength {
		return nil, errors.Errorf("dtls: record header too short: %d bytes", len(data))
	}
	r := packet.NewReader(data)
	h := &RecordHeader{
		ContentType: ContentType(r.ReadByte()),
		Version:     ProtocolVersion(r.ReadUint16()),
		Epoch:       r.ReadUint16(),
	}
	h.SequenceNumber = r.ReadUint48()
	h.Length = r.ReadUint16()
	return h, nil
}

// Record is a single DTLS record: header plus its (possibly still
// ciphertext) fragment.
type Record struct {
	Header  RecordHeader
	Payload []byte // plaintext or ciphertext, matching Header.ContentType/length semantics
}

// Marshal serializes header+payload. The caller is responsible for having
// already encrypted Payload if required for this epoch.
func (rec *Record) Marshal() []byte {
	rec.Header.Length = uint16(len(rec.Payload))
	out := rec.Header.Marshal()
	return append(out, rec.Payload...)
}

// SplitRecords parses a (possibly compacted) UDP payload into its
// constituent DTLS records, without decrypting them. Multiple records may be
// concatenated into a single datagram up to the MTU, per §4.F outbound
// compaction.
func SplitRecords(data []byte) ([]Record, error) {
	var records []Record
	for len(data) > 0 {
		hdr, err := UnmarshalRecordHeader(data)
		if err != nil {
			// Malformed record: per §4.1.2.7, discard silently. Stop parsing
			// the rest of the datagram too, since we've lost length framing.
			break
		}
		total := recordHeaderLength + int(hdr.Length)
		if total > len(data) {
			break
		}
		records = append(records, Record{
			Header:  *hdr,
			Payload: data[recordHeaderLength:total],
		})
		data = data[total:]
	}
	return records, nil
}

var errSequenceOverflow = errors.New("dtls: sequence number overflow")

// nextSequenceNumber returns cur+1, or an error if that would overflow the
// 48-bit sequence space (§4.F "sequence overflow").
func nextSequenceNumber(cur uint64) (uint64, error) {
	if cur >= MaxSequenceNumber {
		return 0, errSequenceOverflow
	}
	return cur + 1, nil
}
