// Package stun implements the subset of STUN (RFC 5389) that the ICE agent
// needs: message encode/decode, short-term message integrity, fingerprint,
// and the attributes used by connectivity checks (RFC 5245/8445 usage).
package stun

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"net"
	"strings"

	"github.com/pkg/errors"
)

// Message classes (2 bits).
const (
	ClassRequest         uint16 = 0
	ClassIndication       uint16 = 1
	ClassSuccessResponse  uint16 = 2
	ClassErrorResponse    uint16 = 3
)

// BindingMethod is the only STUN method the core needs.
const BindingMethod uint16 = 0x1

const headerLength = 20
const magicCookie = 0x2112A442

const magicCookieBytes = "\x21\x12\xA4\x42"
const fingerprintXor = 0x5354554e

// Attribute types used by the core.
const (
	AttrMappedAddress     uint16 = 0x0001
	AttrUsername          uint16 = 0x0006
	AttrMessageIntegrity  uint16 = 0x0008
	AttrErrorCode         uint16 = 0x0009
	AttrUnknownAttributes uint16 = 0x000A
	AttrXorMappedAddress  uint16 = 0x0020
	AttrPriority          uint16 = 0x0024
	AttrUseCandidate      uint16 = 0x0025
	AttrSoftware          uint16 = 0x8022
	AttrFingerprint       uint16 = 0x8028
	AttrIceControlled     uint16 = 0x8029
	AttrIceControlling    uint16 = 0x802A
)

// Attribute is a single STUN TLV attribute.
type Attribute struct {
	Type   uint16
	Length uint16
	Value  []byte
}

// Message is a decoded or to-be-encoded STUN message.
type Message struct {
	// Length is the message body length in bytes, not including the 20-byte
	// header. Recomputed whenever an attribute is added.
	Length uint16

	Class  uint16
	Method uint16

	// TransactionID is always 12 bytes (96 bits).
	TransactionID string

	Attributes []*Attribute
}

// New creates a STUN message of the given class/method. An empty
// transactionID generates a random one.
func New(class, method uint16, transactionID string) *Message {
	if transactionID == "" {
		buf := make([]byte, 12)
		rand.Read(buf)
		transactionID = string(buf)
	}
	return &Message{Class: class, Method: method, TransactionID: transactionID}
}

// NewBindingRequest creates a Binding request, per RFC 8445 §7.2.2.
func NewBindingRequest(transactionID string) *Message {
	return New(ClassRequest, BindingMethod, transactionID)
}

// NewBindingIndication creates a Binding indication, used for ICE keepalives
// (RFC 8445 §11).
func NewBindingIndication() *Message {
	msg := New(ClassIndication, BindingMethod, "")
	msg.AddFingerprint()
	return msg
}

// NewBindingSuccessResponse creates a success response carrying the mapped
// address of the requester, with message integrity and fingerprint.
func NewBindingSuccessResponse(transactionID string, mapped net.Addr, password string) *Message {
	msg := New(ClassSuccessResponse, BindingMethod, transactionID)
	msg.SetXorMappedAddress(mapped)
	msg.AddMessageIntegrity(password)
	msg.AddFingerprint()
	return msg
}

// Parse decodes a STUN message. Returns (nil, nil) if data does not look
// like a STUN message at all (the caller is expected to try another
// protocol classifier in that case, per §4.L's silent-discard policy for
// malformed records).
func Parse(data []byte) (*Message, error) {
	msg := parseHeader(data)
	if msg == nil {
		return nil, nil
	}
	if len(data) < headerLength+int(msg.Length) {
		return nil, errors.Errorf("stun: truncated message: have %d bytes, want %d", len(data), headerLength+int(msg.Length))
	}

	b := bytes.NewBuffer(data[headerLength : headerLength+int(msg.Length)])
	for b.Len() > 0 {
		attr, err := parseAttribute(b)
		if err != nil {
			return msg, err
		}
		msg.Attributes = append(msg.Attributes, attr)
	}
	return msg, nil
}

func parseHeader(data []byte) *Message {
	if len(data) < headerLength {
		return nil
	}
	messageType := binary.BigEndian.Uint16(data[0:2])
	if messageType>>14 != 0 {
		return nil
	}
	length := binary.BigEndian.Uint16(data[2:4])
	if length%4 != 0 {
		return nil
	}
	if binary.BigEndian.Uint32(data[4:8]) != magicCookie {
		return nil
	}
	class, method := decomposeMessageType(messageType)
	return &Message{
		Length:        length,
		Class:         class,
		Method:        method,
		TransactionID: string(data[8:20]),
	}
}

const classMask1 = 0x0100
const classMask2 = 0x0010
const methodMask1 = 0x3e00
const methodMask2 = 0x00e0
const methodMask3 = 0x000f

func composeMessageType(class, method uint16) uint16 {
	t := (class<<7)&classMask1 | (class<<4)&classMask2
	t |= (method<<2)&methodMask1 | (method<<1)&methodMask2 | (method & methodMask3)
	return t
}

func decomposeMessageType(t uint16) (uint16, uint16) {
	class := (t&classMask1)>>7 | (t&classMask2)>>4
	method := (t&methodMask1)>>2 | (t&methodMask2)>>1 | (t & methodMask3)
	return class, method
}

func parseAttribute(b *bytes.Buffer) (*Attribute, error) {
	if b.Len() < 4 {
		return nil, errors.Errorf("stun: truncated attribute header: %d bytes left", b.Len())
	}
	typ := binary.BigEndian.Uint16(b.Next(2))
	length := binary.BigEndian.Uint16(b.Next(2))
	if int(length) > b.Len() {
		return nil, errors.Errorf("stun: attribute %#x claims length %d, only %d bytes remain", typ, length, b.Len())
	}
	value := make([]byte, length)
	copy(value, b.Next(int(length)))
	b.Next(pad4(length))
	return &Attribute{typ, length, value}, nil
}

func pad4(n uint16) int {
	return -int(n) & 3
}

func (attr *Attribute) numBytes() int {
	return 4 + int(attr.Length) + pad4(attr.Length)
}

// Bytes encodes the message.
func (msg *Message) Bytes() []byte {
	buf := make([]byte, headerLength+msg.Length)
	messageType := composeMessageType(msg.Class, msg.Method)
	binary.BigEndian.PutUint16(buf[0:2], messageType)
	binary.BigEndian.PutUint16(buf[2:4], msg.Length)
	binary.BigEndian.PutUint32(buf[4:8], magicCookie)
	copy(buf[8:20], msg.TransactionID)

	offset := headerLength
	for _, attr := range msg.Attributes {
		binary.BigEndian.PutUint16(buf[offset:], attr.Type)
		binary.BigEndian.PutUint16(buf[offset+2:], attr.Length)
		copy(buf[offset+4:], attr.Value)
		offset += attr.numBytes()
	}
	return buf
}

// AddAttribute appends a raw attribute and updates Length.
func (msg *Message) AddAttribute(t uint16, v []byte) *Attribute {
	vcopy := make([]byte, len(v))
	copy(vcopy, v)
	attr := &Attribute{Type: t, Length: uint16(len(v)), Value: vcopy}
	msg.Attributes = append(msg.Attributes, attr)
	msg.Length += uint16(attr.numBytes())
	return attr
}

// Get returns the first attribute of the given type, or nil.
func (msg *Message) Get(t uint16) *Attribute {
	for _, attr := range msg.Attributes {
		if attr.Type == t {
			return attr
		}
	}
	return nil
}

func (msg *Message) AddUsername(username string) {
	msg.AddAttribute(AttrUsername, []byte(username))
}

func (msg *Message) Username() string {
	if attr := msg.Get(AttrUsername); attr != nil {
		return string(attr.Value)
	}
	return ""
}

func (msg *Message) AddPriority(p uint32) {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, p)
	msg.AddAttribute(AttrPriority, v)
}

func (msg *Message) Priority() (uint32, bool) {
	attr := msg.Get(AttrPriority)
	if attr == nil || len(attr.Value) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(attr.Value), true
}

func (msg *Message) AddUseCandidate() {
	msg.AddAttribute(AttrUseCandidate, nil)
}

func (msg *Message) HasUseCandidate() bool {
	return msg.Get(AttrUseCandidate) != nil
}

func (msg *Message) AddIceControlling(tiebreaker uint64) {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, tiebreaker)
	msg.AddAttribute(AttrIceControlling, v)
}

func (msg *Message) AddIceControlled(tiebreaker uint64) {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, tiebreaker)
	msg.AddAttribute(AttrIceControlled, v)
}

func (msg *Message) IsIceControlling() bool { return msg.Get(AttrIceControlling) != nil }
func (msg *Message) IsIceControlled() bool  { return msg.Get(AttrIceControlled) != nil }

// MappedAddress returns the (XOR-)MAPPED-ADDRESS attribute's address, or nil.
func (msg *Message) MappedAddress() *net.UDPAddr {
	if attr := msg.Get(AttrXorMappedAddress); attr != nil {
		return extractAddr(attr, msg.TransactionID, true)
	}
	if attr := msg.Get(AttrMappedAddress); attr != nil {
		return extractAddr(attr, msg.TransactionID, false)
	}
	return nil
}

func extractAddr(attr *Attribute, transactionID string, doXor bool) *net.UDPAddr {
	if len(attr.Value) < 8 {
		return nil
	}
	addr := new(net.UDPAddr)
	addr.Port = int(binary.BigEndian.Uint16(attr.Value[2:4]))
	family := attr.Value[1]
	switch family {
	case 0x01:
		addr.IP = make([]byte, 4)
		copy(addr.IP, attr.Value[4:8])
	case 0x02:
		if len(attr.Value) < 20 {
			return nil
		}
		addr.IP = make([]byte, 16)
		copy(addr.IP, attr.Value[4:20])
	default:
		return nil
	}
	if doXor {
		addr.Port ^= magicCookie >> 16
		xorBytes(addr.IP[0:4], magicCookieBytes)
		if len(addr.IP) == 16 {
			xorBytes(addr.IP[4:], transactionID)
		}
	}
	return addr
}

// SetXorMappedAddress adds an XOR-MAPPED-ADDRESS attribute for addr.
func (msg *Message) SetXorMappedAddress(addr net.Addr) {
	var ip net.IP
	var port int
	switch a := addr.(type) {
	case *net.UDPAddr:
		ip, port = a.IP, a.Port
	case *net.TCPAddr:
		ip, port = a.IP, a.Port
	}

	var value []byte
	if ip4 := ip.To4(); ip4 != nil {
		value = make([]byte, 8)
		value[1] = 0x01
		copy(value[4:8], ip4)
	} else {
		value = make([]byte, 20)
		value[1] = 0x02
		copy(value[4:20], ip.To16())
	}
	binary.BigEndian.PutUint16(value[2:4], uint16(port))
	xorBytes(value[2:4], magicCookieBytes[0:2])
	xorBytes(value[4:8], magicCookieBytes)
	if len(value) == 20 {
		xorBytes(value[8:], msg.TransactionID)
	}
	msg.AddAttribute(AttrXorMappedAddress, value)
}

func xorBytes(dest []byte, xor string) {
	for i := range dest {
		dest[i] ^= xor[i]
	}
}

// AddMessageIntegrity appends a MESSAGE-INTEGRITY attribute computed over
// everything before it, keyed by password (RFC 5389 §15.4).
func (msg *Message) AddMessageIntegrity(password string) {
	attr := msg.AddAttribute(AttrMessageIntegrity, make([]byte, 20))
	b := msg.Bytes()
	beforeIntegrity := len(b) - attr.numBytes()
	sig := hmac.New(sha1.New, []byte(password))
	sig.Write(b[0:beforeIntegrity])
	copy(attr.Value, sig.Sum(nil))
}

// VerifyMessageIntegrity recomputes the HMAC using password and compares it
// against the MESSAGE-INTEGRITY attribute, if present.
func (msg *Message) VerifyMessageIntegrity(password string) bool {
	idx := -1
	for i, attr := range msg.Attributes {
		if attr.Type == AttrMessageIntegrity {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}
	attr := msg.Attributes[idx]

	// Integrity covers everything up through the attributes preceding
	// MESSAGE-INTEGRITY, with the STUN header length field temporarily set
	// to end at this attribute.
	truncated := &Message{
		Class:         msg.Class,
		Method:        msg.Method,
		TransactionID: msg.TransactionID,
		Attributes:    msg.Attributes[:idx],
	}
	for _, a := range truncated.Attributes {
		truncated.Length += uint16(a.numBytes())
	}
	truncated.Length += uint16(attr.numBytes())

	b := truncated.Bytes()
	sig := hmac.New(sha1.New, []byte(password))
	sig.Write(b)
	return hmac.Equal(sig.Sum(nil), attr.Value)
}

// AddFingerprint appends a FINGERPRINT attribute (RFC 5389 §15.5).
func (msg *Message) AddFingerprint() {
	attr := msg.AddAttribute(AttrFingerprint, make([]byte, 4))
	b := msg.Bytes()
	beforeFingerprint := len(b) - attr.numBytes()
	crc := crc32.ChecksumIEEE(b[0:beforeFingerprint])
	binary.BigEndian.PutUint32(attr.Value, crc^fingerprintXor)
}

// CheckError reports why CheckMessage rejected a message.
type CheckError struct {
	Reason string
}

func (e *CheckError) Error() string { return "stun: " + e.Reason }

// CheckMessage validates an inbound STUN message against the constraints
// the ICE agent imposes on connectivity checks (§4.G):
//   - USERNAME must be present
//   - PRIORITY must be present
//   - exactly one of ICE-CONTROLLING / ICE-CONTROLLED must be present
//   - MESSAGE-INTEGRITY must verify against localPassword
//   - ICE-CONTROLLED forbids USE-CANDIDATE
func CheckMessage(msg *Message, localPassword string) error {
	if msg.Get(AttrUsername) == nil {
		return &CheckError{"missing USERNAME"}
	}
	if msg.Get(AttrPriority) == nil {
		return &CheckError{"missing PRIORITY"}
	}
	controlling := msg.IsIceControlling()
	controlled := msg.IsIceControlled()
	if controlling == controlled {
		return &CheckError{"must have exactly one of ICE-CONTROLLING/ICE-CONTROLLED"}
	}
	if !msg.VerifyMessageIntegrity(localPassword) {
		return &CheckError{"MESSAGE-INTEGRITY verification failed"}
	}
	if controlled && msg.HasUseCandidate() {
		return &CheckError{"ICE-CONTROLLED must not carry USE-CANDIDATE"}
	}
	return nil
}

func (msg *Message) String() string {
	var b strings.Builder
	switch msg.Class {
	case ClassRequest:
		b.WriteString("STUN request")
	case ClassIndication:
		b.WriteString("STUN indication")
	case ClassSuccessResponse:
		b.WriteString("STUN success response")
	case ClassErrorResponse:
		b.WriteString("STUN error response")
	}
	if msg.Method != BindingMethod {
		fmt.Fprintf(&b, ", method %#x", msg.Method)
	}
	fmt.Fprintf(&b, ", tid=%s", hex.EncodeToString([]byte(msg.TransactionID)))
	for _, attr := range msg.Attributes {
		switch attr.Type {
		case AttrUsername:
			fmt.Fprintf(&b, ", USERNAME=%s", string(attr.Value))
		case AttrUseCandidate:
			b.WriteString(", USE-CANDIDATE")
		case AttrIceControlling:
			b.WriteString(", ICE-CONTROLLING")
		case AttrIceControlled:
			b.WriteString(", ICE-CONTROLLED")
		case AttrPriority:
			if p, ok := msg.Priority(); ok {
				fmt.Fprintf(&b, ", PRIORITY=%d", p)
			}
		}
	}
	return b.String()
}

// IsMessage is a fast pre-check for whether data could plausibly be a STUN
// message, for use before a full Parse. The inbound classifier (package
// classify) does not call it; it applies its own first-byte ranges.
func IsMessage(data []byte) bool {
	if len(data) < headerLength {
		return false
	}
	return data[0] <= 0x03
}
