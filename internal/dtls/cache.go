package dtls

import "crypto/sha256"

// cachedMessage is one handshake message as it contributed to the
// transcript: the raw 12-byte header plus reassembled body, exactly as
// transmitted (retransmissions do not produce new entries).
type cachedMessage struct {
	header HandshakeHeader
	body   []byte
}

// HandshakeCache is the append-only ordered log of every handshake message
// sent or received during the current handshake (§4.D). It is the source of
// the transcript hash used for Finished verify_data and
// CertificateVerify signatures.
type HandshakeCache struct {
	messages []cachedMessage
}

// NewHandshakeCache creates an empty cache.
func NewHandshakeCache() *HandshakeCache {
	return &HandshakeCache{}
}

// Push appends one reassembled handshake message, in transmission order.
// Pushing the same message_seq+type twice (a retransmit) is a no-op.
func (c *HandshakeCache) Push(msgType HandshakeType, messageSeq uint16, body []byte) {
	for _, m := range c.messages {
		if m.header.MsgType == msgType && m.header.MessageSeq == messageSeq {
			return
		}
	}
	c.messages = append(c.messages, cachedMessage{
		header: HandshakeHeader{
			MsgType:        msgType,
			Length:         uint32(len(body)),
			MessageSeq:     messageSeq,
			FragmentOffset: 0,
			FragmentLength: uint32(len(body)),
		},
		body: body,
	})
}

// SessionHash returns SHA-256 over the concatenation of every cached
// message's 12-byte header and body, in the order they were pushed — the
// transcript hash used to compute verify_data (RFC 5246 §7.4.9).
func (c *HandshakeCache) SessionHash() [32]byte {
	h := sha256.New()
	for _, m := range c.messages {
		h.Write(m.header.Marshal())
		h.Write(m.body)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Reset clears the cache, e.g. at the start of a new handshake (ICE
// restart or renegotiation).
func (c *HandshakeCache) Reset() {
	c.messages = nil
}

// Len reports how many distinct messages have been cached.
func (c *HandshakeCache) Len() int {
	return len(c.messages)
}
