package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"

	"github.com/lanikai/webrtc/internal/replay"
)

// maxSequenceDelta is the folding threshold for reconstructing a 48-bit
// packet index from a 16-bit sequence number (RFC 3711 §3.3.1): a jump of
// more than half the sequence space is treated as a wraparound.
const maxSequenceDelta = 1 << 15

// ssrcState tracks SRTP/SRTCP packet-index reconstruction and replay
// detection for one SSRC, on one direction of one Context.
type ssrcState struct {
	rolloverCounter uint32
	highestSeq      uint16
	initialized     bool
	window          *replay.Window

	// txIndex is the next SRTCP index this side will send, used only on a
	// Context created for the outbound direction.
	txIndex uint32
}

// guessIndex reconstructs the 48-bit packet index (RFC 3711 §3.3.1) for an
// observed RTP sequence number, without committing it: the caller must
// verify the packet's authentication tag before calling commit, mirroring
// replay.Window's Check/Accept split.
func (s *ssrcState) guessIndex(seq uint16) uint64 {
	if !s.initialized {
		return uint64(seq)
	}
	delta := int32(seq) - int32(s.highestSeq)
	if delta > maxSequenceDelta {
		delta -= 1 << 16
	} else if delta < -maxSequenceDelta {
		delta += 1 << 16
	}
	cur := int64(uint64(s.rolloverCounter)<<16 | uint64(s.highestSeq))
	idx := cur + int64(delta)
	if idx < 0 {
		idx = 0
	}
	return uint64(idx)
}

// commit advances the rollover counter/high-water mark to the given
// (seq, index) pair, once the packet has been authenticated.
func (s *ssrcState) commit(seq uint16, index uint64) {
	if !s.initialized {
		s.initialized = true
		s.window = replay.NewWindow(replay.DefaultWindowSize)
		s.rolloverCounter = uint32(index >> 16)
		s.highestSeq = seq
		return
	}
	cur := uint64(s.rolloverCounter)<<16 | uint64(s.highestSeq)
	if index > cur {
		s.rolloverCounter = uint32(index >> 16)
		s.highestSeq = seq
	}
}

// ensureWindow lazily creates the replay window so guessIndex/Check can be
// called on a never-seen SSRC before the first commit.
func (s *ssrcState) ensureWindow() *replay.Window {
	if s.window == nil {
		s.window = replay.NewWindow(replay.DefaultWindowSize)
	}
	return s.window
}

// Context is a one-directional SRTP/SRTCP cryptographic context: created
// once per direction (local-write for protecting outbound packets,
// remote-write for unprotecting inbound ones) from the keying material a
// completed DTLS-SRTP handshake exports (RFC 5764 §4.2). It holds no
// socket; Protect/Unprotect are pure buffer transforms, per §4.I.
type Context struct {
	profile Profile
	tagLen  int

	rtpBlock   cipher.Block
	rtpGCM     cipher.AEAD
	rtpAuthKey []byte
	rtpSalt    []byte

	rtcpBlock   cipher.Block
	rtcpGCM     cipher.AEAD
	rtcpAuthKey []byte
	rtcpSalt    []byte

	rtp  map[uint32]*ssrcState
	rtcp map[uint32]*ssrcState
}

// NewContext derives the RTP and RTCP session keys from a single master
// key/salt pair (one direction's output of ExtractKeys) and builds the
// cipher the negotiated profile calls for.
func NewContext(profile Profile, masterKey, masterSalt []byte) (*Context, error) {
	c := &Context{
		profile: profile,
		tagLen:  profile.AuthTagLength(),
		rtp:     make(map[uint32]*ssrcState),
		rtcp:    make(map[uint32]*ssrcState),
	}

	rtpKey := deriveKey(masterKey, masterSalt, labelRTPEncryption, profile.KeyLength())
	c.rtpSalt = deriveKey(masterKey, masterSalt, labelRTPSalt, profile.SaltLength())
	rtcpKey := deriveKey(masterKey, masterSalt, labelRTCPEncryption, profile.KeyLength())
	c.rtcpSalt = deriveKey(masterKey, masterSalt, labelRTCPSalt, profile.SaltLength())

	var err error
	if c.rtpBlock, err = aes.NewCipher(rtpKey); err != nil {
		return nil, err
	}
	if c.rtcpBlock, err = aes.NewCipher(rtcpKey); err != nil {
		return nil, err
	}

	if profile.IsAEAD() {
		if c.rtpGCM, err = cipher.NewGCMWithTagSize(c.rtpBlock, c.tagLen); err != nil {
			return nil, err
		}
		if c.rtcpGCM, err = cipher.NewGCMWithTagSize(c.rtcpBlock, c.tagLen); err != nil {
			return nil, err
		}
	} else {
		c.rtpAuthKey = deriveKey(masterKey, masterSalt, labelRTPAuth, 20)
		c.rtcpAuthKey = deriveKey(masterKey, masterSalt, labelRTCPAuth, 20)
	}

	return c, nil
}

func ssrcFor(t map[uint32]*ssrcState, ssrc uint32) *ssrcState {
	s, ok := t[ssrc]
	if !ok {
		s = &ssrcState{}
		t[ssrc] = s
	}
	return s
}

// rtpHeaderLength returns the offset of the payload within an RTP packet,
// accounting for the CSRC list (RFC 3550 §5.1).
func rtpHeaderLength(pkt []byte) (int, error) {
	if len(pkt) < 12 {
		return 0, ErrPacketTooShort
	}
	csrcCount := int(pkt[0] & 0x0f)
	n := 12 + 4*csrcCount
	if len(pkt) < n {
		return 0, ErrPacketTooShort
	}
	return n, nil
}

// ProtectRTP encrypts the payload of an RTP packet in place (conceptually;
// the returned slice may share the input's backing array) and appends the
// authentication tag, per RFC 3711 §3.1/§4.1/§4.2 or, for the AEAD profiles,
// RFC 7714 §8-9.
func (c *Context) ProtectRTP(pkt []byte) ([]byte, error) {
	payloadStart, err := rtpHeaderLength(pkt)
	if err != nil {
		return nil, err
	}
	ssrc := binary.BigEndian.Uint32(pkt[8:12])
	seq := binary.BigEndian.Uint16(pkt[2:4])

	s := ssrcFor(c.rtp, ssrc)
	index := s.guessIndex(seq)
	s.commit(seq, index)

	header := pkt[:payloadStart]
	payload := pkt[payloadStart:]

	if c.profile.IsAEAD() {
		nonce := gcmNonce(c.rtpSalt, ssrc, index)
		sealed := c.rtpGCM.Seal(nil, nonce, payload, header)
		out := make([]byte, payloadStart+len(sealed))
		copy(out, header)
		copy(out[payloadStart:], sealed)
		return out, nil
	}

	iv := counterIV(c.rtpSalt, ssrc, index)
	ciphertext := make([]byte, len(payload))
	cipher.NewCTR(c.rtpBlock, iv).XORKeyStream(ciphertext, payload)

	out := make([]byte, payloadStart+len(ciphertext)+c.tagLen)
	copy(out, header)
	copy(out[payloadStart:], ciphertext)

	tag := c.rtpAuthTag(out[:payloadStart+len(ciphertext)], uint32(index>>16))
	copy(out[payloadStart+len(ciphertext):], tag)
	return out, nil
}

// UnprotectRTP verifies and decrypts an inbound SRTP packet, checking for
// replay per SSRC with the same sliding-window detector §4.A uses.
func (c *Context) UnprotectRTP(pkt []byte) ([]byte, error) {
	payloadStart, err := rtpHeaderLength(pkt)
	if err != nil {
		return nil, err
	}
	ssrc := binary.BigEndian.Uint32(pkt[8:12])
	seq := binary.BigEndian.Uint16(pkt[2:4])

	s := ssrcFor(c.rtp, ssrc)
	index := s.guessIndex(seq)
	if !s.ensureWindow().Check(index) {
		return nil, ErrReplay
	}

	header := pkt[:payloadStart]

	if c.profile.IsAEAD() {
		nonce := gcmNonce(c.rtpSalt, ssrc, index)
		plaintext, err := c.rtpGCM.Open(nil, nonce, pkt[payloadStart:], header)
		if err != nil {
			return nil, ErrAuthFailed
		}
		s.window.Accept(index)
		s.commit(seq, index)
		out := make([]byte, payloadStart+len(plaintext))
		copy(out, header)
		copy(out[payloadStart:], plaintext)
		return out, nil
	}

	if len(pkt) < payloadStart+c.tagLen {
		return nil, ErrPacketTooShort
	}
	tagStart := len(pkt) - c.tagLen
	expected := c.rtpAuthTag(pkt[:tagStart], uint32(index>>16))
	if !hmac.Equal(expected, pkt[tagStart:]) {
		return nil, ErrAuthFailed
	}

	iv := counterIV(c.rtpSalt, ssrc, index)
	plaintext := make([]byte, tagStart-payloadStart)
	cipher.NewCTR(c.rtpBlock, iv).XORKeyStream(plaintext, pkt[payloadStart:tagStart])

	s.window.Accept(index)
	s.commit(seq, index)

	out := make([]byte, payloadStart+len(plaintext))
	copy(out, header)
	copy(out[payloadStart:], plaintext)
	return out, nil
}

// rtpAuthTag computes the SRTP HMAC-SHA1 tag (RFC 3711 §4.2): the
// authenticated portion is the packet so far (header || ciphertext)
// concatenated with the 32-bit rollover counter, which is never transmitted
// but must be included in M.
func (c *Context) rtpAuthTag(authenticatedPortion []byte, roc uint32) []byte {
	m := make([]byte, len(authenticatedPortion)+4)
	copy(m, authenticatedPortion)
	binary.BigEndian.PutUint32(m[len(authenticatedPortion):], roc)
	return hmacSHA1(c.rtpAuthKey, m)[:c.tagLen]
}

// eFlag marks an SRTCP packet's 31-bit index as encrypted (RFC 3711 §3.4).
const eFlag = 1 << 31

// ProtectRTCP encrypts an RTCP compound packet's payload (everything after
// the fixed 8-byte header of its first packet) and appends the SRTCP index
// and authentication tag.
func (c *Context) ProtectRTCP(pkt []byte) ([]byte, error) {
	if len(pkt) < 8 {
		return nil, ErrPacketTooShort
	}
	ssrc := binary.BigEndian.Uint32(pkt[4:8])
	s := ssrcFor(c.rtcp, ssrc)
	index := s.txIndex
	s.txIndex++

	header := pkt[:8]
	payload := pkt[8:]

	var ciphertext []byte
	if c.profile.IsAEAD() {
		nonce := gcmNonce(c.rtcpSalt, ssrc, uint64(index))
		ciphertext = c.rtcpGCM.Seal(nil, nonce, payload, header)
	} else {
		ciphertext = make([]byte, len(payload))
		iv := counterIV(c.rtcpSalt, ssrc, uint64(index))
		cipher.NewCTR(c.rtcpBlock, iv).XORKeyStream(ciphertext, payload)
	}

	out := make([]byte, 0, 8+len(ciphertext)+4+c.tagLen)
	out = append(out, header...)
	out = append(out, ciphertext...)

	var idxField [4]byte
	binary.BigEndian.PutUint32(idxField[:], eFlag|index)
	out = append(out, idxField[:]...)

	if !c.profile.IsAEAD() {
		tag := hmacSHA1(c.rtcpAuthKey, out)[:c.tagLen]
		out = append(out, tag...)
	}
	return out, nil
}

// UnprotectRTCP verifies and decrypts an inbound SRTCP packet.
func (c *Context) UnprotectRTCP(pkt []byte) ([]byte, error) {
	if c.profile.IsAEAD() {
		if len(pkt) < 8+4+c.tagLen {
			return nil, ErrPacketTooShort
		}
		tail := len(pkt) - 4
		idxField := binary.BigEndian.Uint32(pkt[tail:])
		index := idxField &^ eFlag
		ssrc := binary.BigEndian.Uint32(pkt[4:8])

		s := ssrcFor(c.rtcp, ssrc)
		if !s.ensureWindow().Check(uint64(index)) {
			return nil, ErrReplay
		}

		header := pkt[:8]
		nonce := gcmNonce(c.rtcpSalt, ssrc, uint64(index))
		plaintext, err := c.rtcpGCM.Open(nil, nonce, pkt[8:tail], header)
		if err != nil {
			return nil, ErrAuthFailed
		}
		s.window.Accept(uint64(index))

		out := make([]byte, 0, 8+len(plaintext))
		out = append(out, header...)
		out = append(out, plaintext...)
		return out, nil
	}

	if len(pkt) < 8+4+c.tagLen {
		return nil, ErrPacketTooShort
	}
	tagStart := len(pkt) - c.tagLen
	idxStart := tagStart - 4

	expected := hmacSHA1(c.rtcpAuthKey, pkt[:tagStart])[:c.tagLen]
	if !hmac.Equal(expected, pkt[tagStart:]) {
		return nil, ErrAuthFailed
	}

	idxField := binary.BigEndian.Uint32(pkt[idxStart:tagStart])
	index := idxField &^ eFlag
	ssrc := binary.BigEndian.Uint32(pkt[4:8])

	s := ssrcFor(c.rtcp, ssrc)
	if !s.ensureWindow().Check(uint64(index)) {
		return nil, ErrReplay
	}

	header := pkt[:8]
	if idxField&eFlag == 0 {
		// Not encrypted; payload passes through unmodified.
		s.window.Accept(uint64(index))
		out := append([]byte(nil), pkt[:idxStart]...)
		return out, nil
	}

	iv := counterIV(c.rtcpSalt, ssrc, uint64(index))
	plaintext := make([]byte, idxStart-8)
	cipher.NewCTR(c.rtcpBlock, iv).XORKeyStream(plaintext, pkt[8:idxStart])
	s.window.Accept(uint64(index))

	out := make([]byte, 0, 8+len(plaintext))
	out = append(out, header...)
	out = append(out, plaintext...)
	return out, nil
}

// counterIV builds the 128-bit AES-CM counter block (RFC 3711 §4.1.1):
//
//	xxxxxxxxxxxxxx00  <- salt (112 bits = 14 bytes)
//	0000xxxx00000000  <- SSRC (32 bits), bytes 4-7
//	00000000xxxxxx00  <- packet index (48 bits), bytes 8-13
//
// IV = (k_s * 2^16) XOR (SSRC * 2^64) XOR (index * 2^16).
func counterIV(salt []byte, ssrc uint32, index uint64) []byte {
	iv := make([]byte, aes.BlockSize)
	copy(iv, salt) // 14-byte salt occupies the high 112 bits; low 16 bits start zero
	xor32(iv[4:8], ssrc)
	xor48(iv[8:14], index)
	return iv
}

// gcmNonce builds the 96-bit AES-GCM nonce (RFC 7714 §8.1): two zero bytes,
// the SSRC, then the 48-bit packet index, all XORed with the session salt.
func gcmNonce(salt []byte, ssrc uint32, index uint64) []byte {
	nonce := make([]byte, 12)
	copy(nonce, salt)
	xor32(nonce[2:6], ssrc)
	xor48(nonce[6:12], index)
	return nonce
}

func xor32(b []byte, v uint32) {
	b[0] ^= byte(v >> 24)
	b[1] ^= byte(v >> 16)
	b[2] ^= byte(v >> 8)
	b[3] ^= byte(v)
}

func xor48(b []byte, v uint64) {
	b[0] ^= byte(v >> 40)
	b[1] ^= byte(v >> 32)
	b[2] ^= byte(v >> 24)
	b[3] ^= byte(v >> 16)
	b[4] ^= byte(v >> 8)
	b[5] ^= byte(v)
}

func hmacSHA1(key, msg []byte) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}
